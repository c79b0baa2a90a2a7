package follower

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/via-protocol/verifier-node/internal/bitcoinrpc"
	"github.com/via-protocol/verifier-node/internal/committee"
	"github.com/via-protocol/verifier-node/internal/config"
	"github.com/via-protocol/verifier-node/internal/coordinator"
	"github.com/via-protocol/verifier-node/internal/musig"
	"github.com/via-protocol/verifier-node/internal/session"
)

// fakeBTC satisfies bitcoinrpc.Client with everything a 2-of-2 signing
// round needs, recording the last broadcast transaction for assertions.
type fakeBTC struct {
	broadcastHex string
	broadcastErr error
	confirmed    bool
}

func (f *fakeBTC) FetchUTXOs(string) ([]bitcoinrpc.UTXO, error) { return nil, nil }
func (f *fakeBTC) GetFeeRate(uint16) (uint64, error)            { return 2, nil }
func (f *fakeBTC) BroadcastSignedTransaction(txHex string) (string, error) {
	if f.broadcastErr != nil {
		return "", f.broadcastErr
	}
	f.broadcastHex = txHex
	return "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef", nil
}
func (f *fakeBTC) CheckTxConfirmation(string, uint32) (bool, error) { return f.confirmed, nil }

// alwaysPendingHandler hands out one fixed operation forever and never
// reports it as already in progress, so the test can drive the coordinator
// and broadcast path without a real withdrawal builder.
type alwaysPendingHandler struct {
	op        session.Operation
	broadcast bool
}

func (h *alwaysPendingHandler) Session() (session.Operation, bool) { return h.op, true }
func (h *alwaysPendingHandler) IsSessionInProgress(session.Operation) (bool, error) {
	return h.broadcast, nil
}
func (h *alwaysPendingHandler) PreProcessSession(session.Operation) (bool, error) { return true, nil }
func (h *alwaysPendingHandler) VerifyMessage(session.Operation) bool              { return true }
func (h *alwaysPendingHandler) BeforeBroadcastFinalTransaction(session.Operation) (bool, error) {
	return !h.broadcast, nil
}
func (h *alwaysPendingHandler) AfterBroadcastFinalTransaction(string, session.Operation) error {
	h.broadcast = true
	return nil
}

// twoVerifierFixture builds a committee of 2, a coordinator HTTP server
// backed by a real Coordinator, and a Verifier per member sharing it.
type twoVerifierFixture struct {
	server    *httptest.Server
	verifiers [2]*Verifier
	btc       *fakeBTC
	handler   *alwaysPendingHandler
}

func setupTwoVerifiers(t *testing.T, messageHex string) *twoVerifierFixture {
	t.Helper()

	net := committee.NetworkParams("regtest")
	var privKeys []*btcec.PrivateKey
	var pubHex []string
	for i := 0; i < 2; i++ {
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			t.Fatalf("NewPrivateKey() error = %v", err)
		}
		privKeys = append(privKeys, priv)
		pubHex = append(pubHex, hex.EncodeToString(priv.PubKey().SerializeCompressed()))
	}

	roster, err := committee.LoadRoster(pubHex, net)
	if err != nil {
		t.Fatalf("LoadRoster() error = %v", err)
	}

	var message [32]byte
	raw, err := hex.DecodeString(messageHex)
	if err != nil {
		t.Fatalf("decode message hex: %v", err)
	}
	copy(message[:], raw)

	unsignedTx := wire.NewMsgTx(2)
	unsignedTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}, nil, nil))
	unsignedTx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))
	txBytes, err := encodeSignedTx(unsignedTx)
	if err != nil {
		t.Fatalf("encode unsigned tx: %v", err)
	}
	unsignedTxRaw, err := hex.DecodeString(txBytes)
	if err != nil {
		t.Fatalf("decode unsigned tx hex: %v", err)
	}

	handler := &alwaysPendingHandler{op: session.Operation{
		Type:            session.TypeWithdrawal,
		BatchNumber:     5,
		RequiredSigners: 2,
		MessageToSign:   message,
		UnsignedTxBytes: unsignedTxRaw,
	}}
	manager := session.NewManager(map[session.Type]session.Handler{session.TypeWithdrawal: handler})
	coord := coordinator.New(manager)
	router := coordinator.NewRouter(coord, roster, config.AuthTimestampSkew)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	btc := &fakeBTC{confirmed: true}

	fixture := &twoVerifierFixture{server: server, btc: btc, handler: handler}
	for i := 0; i < 2; i++ {
		self := &committee.Self{Identity: mustIdentity(t, roster, i), PrivKey: privKeys[i]}
		signer, err := musig.NewSigner(privKeys[i], i, roster.PubKeys())
		if err != nil {
			t.Fatalf("NewSigner(%d) error = %v", i, err)
		}
		// Only the coordinator-mode verifier gets a direct reference to the
		// in-process Coordinator, used to close the session after broadcast.
		var localCoordinator *coordinator.Coordinator
		mode := config.ModeFollower
		if i == 0 {
			mode = config.ModeCoordinator
			localCoordinator = coord
		}
		fixture.verifiers[i] = New(self, mode, signer, server.URL, btc, localCoordinator, manager, time.Second)
	}
	return fixture
}

func mustIdentity(t *testing.T, roster *committee.Roster, idx int) committee.Identity {
	t.Helper()
	id, ok := roster.At(idx)
	if !ok {
		t.Fatalf("roster.At(%d) not found", idx)
	}
	return id
}

// TestTwoVerifierRound drives a full COORDINATOR+FOLLOWER round: opening a
// session, exchanging nonces, exchanging partial signatures, and
// broadcasting the final transaction (§4.7, testable property 6).
func TestTwoVerifierRound(t *testing.T) {
	fixture := setupTwoVerifiers(t, "aa"+hex.EncodeToString(make([]byte, 31)))
	ctx := context.Background()

	// Coordinator tick 1: opens the session, then immediately submits its
	// own nonce (required=2, so one more nonce is needed).
	if err := fixture.verifiers[0].Tick(ctx); err != nil {
		t.Fatalf("coordinator tick 1: %v", err)
	}
	// Follower tick 1: submits its nonce. Both nonces are now in.
	if err := fixture.verifiers[1].Tick(ctx); err != nil {
		t.Fatalf("follower tick 1: %v", err)
	}
	// Coordinator tick 2: both nonces are present, submits its partial sig.
	if err := fixture.verifiers[0].Tick(ctx); err != nil {
		t.Fatalf("coordinator tick 2: %v", err)
	}
	// Follower tick 2: submits its own partial sig. Both are now in.
	if err := fixture.verifiers[1].Tick(ctx); err != nil {
		t.Fatalf("follower tick 2: %v", err)
	}
	// Coordinator tick 3: both partial sigs are in, combines, broadcasts.
	if err := fixture.verifiers[0].Tick(ctx); err != nil {
		t.Fatalf("coordinator tick 3: %v", err)
	}
	// Coordinator tick 4: session is closed and empty, nothing to do.
	if err := fixture.verifiers[0].Tick(ctx); err != nil {
		t.Fatalf("coordinator tick 4: %v", err)
	}

	if fixture.btc.broadcastHex == "" {
		t.Fatal("expected a transaction to have been broadcast")
	}
	if !fixture.handler.broadcast {
		t.Error("expected AfterBroadcastFinalTransaction to have been called")
	}
}

// notYetConfirmedHandler reports one pending operation whose PreProcessSession
// gate (the prior batch's confirmation check, §3 invariant 4) always
// declines — so OpenSession always rejects with config.ErrNotConfirmed,
// exercising the decline-and-reset path of maybeOpenNewSession on a
// genuinely empty session (as opposed to a session that's merely already
// active, which no longer calls createNewSession at all).
type notYetConfirmedHandler struct {
	op session.Operation
}

func (h *notYetConfirmedHandler) Session() (session.Operation, bool)                 { return h.op, true }
func (h *notYetConfirmedHandler) IsSessionInProgress(session.Operation) (bool, error) { return false, nil }
func (h *notYetConfirmedHandler) PreProcessSession(session.Operation) (bool, error)   { return false, nil }
func (h *notYetConfirmedHandler) VerifyMessage(session.Operation) bool                { return true }
func (h *notYetConfirmedHandler) BeforeBroadcastFinalTransaction(session.Operation) (bool, error) {
	return true, nil
}
func (h *notYetConfirmedHandler) AfterBroadcastFinalTransaction(string, session.Operation) error {
	return nil
}

func TestCreateNewSession_ReinitializesSignerOnRejection(t *testing.T) {
	roster, keys := testSingleMemberRoster(t)
	handler := &notYetConfirmedHandler{op: session.Operation{
		Type: session.TypeWithdrawal, BatchNumber: 9, RequiredSigners: 1,
	}}
	manager := session.NewManager(map[session.Type]session.Handler{session.TypeWithdrawal: handler})
	coord := coordinator.New(manager)
	router := coordinator.NewRouter(coord, roster, config.AuthTimestampSkew)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	self := &committee.Self{Identity: mustIdentity(t, roster, 0), PrivKey: keys[0]}
	signer, err := musig.NewSigner(keys[0], 0, roster.PubKeys())
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	v := New(self, config.ModeCoordinator, signer, server.URL, &fakeBTC{confirmed: true}, coord, manager, time.Second)

	// Prime the signer as if a prior (now stale) session had begun.
	if err := signer.StartSigningSession([32]byte{1}); err != nil {
		t.Fatalf("StartSigningSession: %v", err)
	}

	if err := v.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if !signer.HasNotStarted() {
		t.Error("expected signer to be reset after createNewSession was declined")
	}
}

func testSingleMemberRoster(t *testing.T) (*committee.Roster, []*btcec.PrivateKey) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey() error = %v", err)
	}
	roster, err := committee.LoadRoster(
		[]string{hex.EncodeToString(priv.PubKey().SerializeCompressed())},
		committee.NetworkParams("regtest"),
	)
	if err != nil {
		t.Fatalf("LoadRoster() error = %v", err)
	}
	return roster, []*btcec.PrivateKey{priv}
}

func TestBuildAndBroadcast_PropagatesBroadcastFailure(t *testing.T) {
	fixture := setupTwoVerifiers(t, "cc"+hex.EncodeToString(make([]byte, 31)))
	fixture.btc.broadcastErr = errors.New("node unreachable")
	ctx := context.Background()

	// Coordinator tick 1: opens session, submits its own nonce.
	if err := fixture.verifiers[0].Tick(ctx); err != nil {
		t.Fatalf("coordinator tick 1: %v", err)
	}
	// Follower tick 1: submits its nonce. Both nonces now in.
	if err := fixture.verifiers[1].Tick(ctx); err != nil {
		t.Fatalf("follower tick 1: %v", err)
	}
	// Coordinator tick 2: submits its partial sig.
	if err := fixture.verifiers[0].Tick(ctx); err != nil {
		t.Fatalf("coordinator tick 2: %v", err)
	}
	// Follower tick 2: submits its partial sig. Both are now in.
	if err := fixture.verifiers[1].Tick(ctx); err != nil {
		t.Fatalf("follower tick 2: %v", err)
	}

	// Coordinator tick 3: both partial sigs are in, combines, and the
	// broadcast itself fails — this must surface as a tick error.
	if err := fixture.verifiers[0].Tick(ctx); err == nil {
		t.Fatal("expected a broadcast failure to surface as a tick error")
	}
}
