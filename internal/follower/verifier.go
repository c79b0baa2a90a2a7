package follower

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/via-protocol/verifier-node/internal/bitcoinrpc"
	"github.com/via-protocol/verifier-node/internal/committee"
	"github.com/via-protocol/verifier-node/internal/config"
	"github.com/via-protocol/verifier-node/internal/coordinator"
	"github.com/via-protocol/verifier-node/internal/musig"
	"github.com/via-protocol/verifier-node/internal/retry"
	"github.com/via-protocol/verifier-node/internal/session"
)

// Verifier drives one committee member's side of the signing protocol:
// every tick it reconciles local MuSig2 state against the coordinator's
// session (§4.7). In COORDINATOR mode it additionally decides when a new
// session should start and builds/broadcasts the final transaction once
// RequiredSigners partial signatures are in; in FOLLOWER mode it only contributes
// nonces and partial signatures. Both roles run the identical tick body —
// the coordinator process talks to its own HTTP surface exactly like a
// remote follower would (§4.7 "coordinator self-participation").
type Verifier struct {
	mode   config.VerifierMode
	signer *musig.Signer
	client *client

	btcClient bitcoinrpc.Client
	manager   *session.Manager

	// localCoordinator is set only in COORDINATOR mode, where this process
	// also hosts the Coordinator the client talks to over loopback. It is
	// used solely to close the session once the final transaction has been
	// recorded (§4.6 SIGNING → BROADCAST → EMPTY) — that transition isn't
	// one of the six documented HTTP endpoints, so the coordinator process
	// drives it in-process rather than inventing a seventh one.
	localCoordinator *coordinator.Coordinator

	pollInterval time.Duration
}

// New builds a Verifier. coordinatorURL is this process's own loopback
// address in COORDINATOR mode, or the remote coordinator's base URL in
// FOLLOWER mode — the client treats both uniformly. localCoordinator must be
// the in-process Coordinator backing coordinatorURL in COORDINATOR mode, and
// nil in FOLLOWER mode.
func New(
	self *committee.Self,
	mode config.VerifierMode,
	signer *musig.Signer,
	coordinatorURL string,
	btcClient bitcoinrpc.Client,
	localCoordinator *coordinator.Coordinator,
	manager *session.Manager,
	pollInterval time.Duration,
) *Verifier {
	return &Verifier{
		mode:             mode,
		signer:           signer,
		client:           newClient(coordinatorURL, self, config.CoordinatorRequestsPerSecond, config.CoordinatorRequestTimeout),
		btcClient:        btcClient,
		localCoordinator: localCoordinator,
		manager:          manager,
		pollInterval:     pollInterval,
	}
}

// Run ticks Tick every pollInterval until ctx is cancelled or stop fires,
// matching the teacher's graceful-shutdown select loop.
func (v *Verifier) Run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("verifier loop stopping: context cancelled")
			return
		case <-stop:
			slog.Info("verifier loop stopping: stop signal received")
			return
		case <-ticker.C:
			if err := v.Tick(ctx); err != nil {
				slog.Error("verifier tick failed", "error", err)
			}
		}
	}
}

// Tick implements one iteration of the signing protocol (§4.7).
func (v *Verifier) Tick(ctx context.Context) error {
	sessionInfo, err := v.client.getSession(ctx)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	if v.mode == config.ModeCoordinator {
		if err := v.maybeOpenNewSession(ctx, sessionInfo); err != nil {
			return err
		}

		sessionInfo, err = v.client.getSession(ctx)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
	}

	if sessionInfo.L1BlockNumber == 0 {
		slog.Info("empty session, nothing to process")
		return nil
	}

	if v.mode == config.ModeCoordinator {
		broadcast, err := v.buildAndBroadcastFinalTransaction(ctx, sessionInfo)
		if err != nil {
			return fmt.Errorf("build and broadcast final transaction: %w", err)
		}
		if broadcast {
			return nil
		}
	}

	return v.contributeToSession(ctx, sessionInfo)
}

// maybeOpenNewSession implements §4.7 step 1 literally: attempt to open a
// session only when none is active. The prior batch's confirmation gate
// (§3 invariant 4) is enforced server-side by the withdrawal handler's
// PreProcessSession, which OpenSession consults — there is nothing left for
// the follower to check locally before asking. Calling createNewSession
// unconditionally every tick (as if blind to whether one is already open)
// would make this call fail, and thus reset the signer, on nearly every tick
// of a signing round in progress; gating on L1BlockNumber == 0 avoids that.
func (v *Verifier) maybeOpenNewSession(ctx context.Context, sessionInfo coordinator.SigningSessionResponse) error {
	if sessionInfo.L1BlockNumber != 0 {
		return nil
	}

	ok, err := v.client.createNewSession(ctx)
	if err != nil {
		return fmt.Errorf("create new session: %w", err)
	}
	if !ok {
		v.signer.Reset()
	}
	return nil
}

// contributeToSession implements §4.7 steps 2-4: gather this signer's
// nonce, then its partial signature, reinitializing on a stale local
// session (scenario S6).
func (v *Verifier) contributeToSession(ctx context.Context, sessionInfo coordinator.SigningSessionResponse) error {
	sessionSignatures, err := v.client.getSessionSignatures(ctx)
	if err != nil {
		return fmt.Errorf("get session signatures: %w", err)
	}
	sessionNonces, err := v.client.getSessionNonces(ctx)
	if err != nil {
		return fmt.Errorf("get session nonces: %w", err)
	}

	verifierIndex := v.signer.SignerIndex()
	_, hasSig := sessionSignatures[verifierIndex]
	_, hasNonce := sessionNonces[verifierIndex]

	if hasSig && hasNonce {
		return nil
	}

	if !hasSig && !hasNonce && (v.signer.HasCreatedPartialSig() || v.signer.HasSubmittedNonce()) {
		v.signer.Reset()
		return nil
	}

	if sessionInfo.ReceivedNonces < sessionInfo.RequiredSigners {
		message, err := hex.DecodeString(sessionInfo.MessageToSign)
		if err != nil {
			return fmt.Errorf("decode message to sign: %w", err)
		}
		var digest [32]byte
		copy(digest[:], message)

		if v.signer.HasNotStarted() {
			if err := v.signer.StartSigningSession(digest); err != nil {
				return fmt.Errorf("start signing session: %w", err)
			}
		}

		if !hasNonce {
			nonce, ok := v.signer.OurNonce()
			if !ok {
				return fmt.Errorf("%w: no nonce available after starting signing session", config.ErrSignerMisuse)
			}
			submitted, err := v.client.submitNonce(ctx, verifierIndex, musig.EncodeNonce(nonce))
			if err != nil {
				return fmt.Errorf("submit nonce: %w", err)
			}
			if submitted {
				v.signer.MarkNonceSubmitted()
			}
		}
		return nil
	}

	if v.signer.HasCreatedPartialSig() {
		return nil
	}
	return v.submitPartialSignature(ctx, sessionNonces, verifierIndex)
}

func (v *Verifier) submitPartialSignature(ctx context.Context, sessionNonces map[int]string, verifierIndex int) error {
	for idx, nonceB64 := range sessionNonces {
		if idx == verifierIndex {
			continue
		}
		nonce, err := musig.DecodeNonce(nonceB64)
		if err != nil {
			return fmt.Errorf("decode nonce from signer %d: %w", idx, err)
		}
		if err := v.signer.ReceiveNonce(idx, nonce); err != nil {
			return fmt.Errorf("receive nonce from signer %d: %w", idx, err)
		}
	}

	partialSig, err := v.signer.CreatePartialSignature()
	if err != nil {
		return fmt.Errorf("create partial signature: %w", err)
	}
	encoded, err := musig.EncodePartialSignature(partialSig)
	if err != nil {
		return fmt.Errorf("encode partial signature: %w", err)
	}

	submitted, err := v.client.submitPartialSignature(ctx, verifierIndex, encoded)
	if err != nil {
		return fmt.Errorf("submit partial signature: %w", err)
	}
	if submitted {
		v.signer.MarkPartialSigSubmitted()
	}
	return nil
}

// createFinalSignature implements §4.7 step 5 (COORDINATOR only): once
// RequiredSigners partial signatures are in, combine them and verify the result before
// trusting it for broadcast. Idempotent: a final signature already combined
// on a prior tick is reused rather than re-gathered.
func (v *Verifier) createFinalSignature(ctx context.Context, sessionInfo coordinator.SigningSessionResponse) (ready bool, err error) {
	if v.signer.HasFinalSignature() {
		return true, nil
	}
	if sessionInfo.ReceivedPartialSignatures < sessionInfo.RequiredSigners {
		return false, nil
	}

	signatures, err := v.client.getSessionSignatures(ctx)
	if err != nil {
		return false, fmt.Errorf("get session signatures: %w", err)
	}

	verifierIndex := v.signer.SignerIndex()
	for idx, pair := range signatures {
		if idx == verifierIndex {
			continue
		}
		sig, err := musig.DecodePartialSignature(pair.Signature)
		if err != nil {
			return false, fmt.Errorf("decode partial signature from signer %d: %w", idx, err)
		}
		if err := v.signer.ReceivePartialSignature(idx, sig); err != nil {
			return false, fmt.Errorf("receive partial signature from signer %d: %w", idx, err)
		}
	}

	finalSig, err := v.signer.CreateFinalSignature()
	if err != nil {
		return false, fmt.Errorf("create final signature: %w", err)
	}

	message, err := hex.DecodeString(sessionInfo.MessageToSign)
	if err != nil {
		return false, fmt.Errorf("decode message to sign: %w", err)
	}
	if !musig.VerifySignature(v.signer.AggregatedPubKey(), finalSig, message) {
		return false, fmt.Errorf("%w: final signature does not verify against the aggregated bridge key", config.ErrSignerMisuse)
	}
	return true, nil
}

// buildAndBroadcastFinalTransaction implements §4.7 step 6 (COORDINATOR
// only): attach the completed signature to every input and broadcast,
// deferring to the withdrawal session handler's Before/After hooks rather
// than writing to the ledger directly — the handler already owns that
// invariant (§4.5), and reusing it keeps this one codepath the sole writer
// of a batch's withdrawal txid.
func (v *Verifier) buildAndBroadcastFinalTransaction(ctx context.Context, sessionInfo coordinator.SigningSessionResponse) (bool, error) {
	ready, err := v.createFinalSignature(ctx, sessionInfo)
	if err != nil {
		return false, err
	}
	if !ready {
		return false, nil
	}

	handler, ok := v.manager.Handler(session.TypeWithdrawal)
	if !ok {
		return false, fmt.Errorf("no withdrawal session handler registered")
	}
	op := session.Operation{Type: session.TypeWithdrawal, BatchNumber: sessionInfo.L1BlockNumber}

	clearToBroadcast, err := handler.BeforeBroadcastFinalTransaction(op)
	if err != nil {
		return false, fmt.Errorf("before-broadcast check for batch %d: %w", sessionInfo.L1BlockNumber, err)
	}
	if !clearToBroadcast {
		return false, nil
	}

	finalSig, err := v.signer.CreateFinalSignature()
	if err != nil {
		return false, fmt.Errorf("create final signature: %w", err)
	}

	tx, err := decodeUnsignedTx(sessionInfo.UnsignedTx)
	if err != nil {
		return false, fmt.Errorf("decode unsigned transaction: %w", err)
	}
	attachWitness(tx, finalSig.Serialize())

	signedHex, err := encodeSignedTx(tx)
	if err != nil {
		return false, fmt.Errorf("encode signed transaction: %w", err)
	}

	var txid string
	err = retry.Do("broadcast withdrawal transaction", config.DefaultRetryMaxAttempts, config.DefaultRetryDelay, func() error {
		var broadcastErr error
		txid, broadcastErr = v.btcClient.BroadcastSignedTransaction(signedHex)
		return broadcastErr
	})
	if err != nil {
		return false, fmt.Errorf("broadcast signed transaction: %w", err)
	}

	if err := handler.AfterBroadcastFinalTransaction(txid, op); err != nil {
		return false, fmt.Errorf("after-broadcast recording for batch %d: %w", sessionInfo.L1BlockNumber, err)
	}

	slog.Info("withdrawal transaction broadcast",
		"batchNumber", sessionInfo.L1BlockNumber,
		"txid", txid,
	)

	if v.localCoordinator != nil {
		v.localCoordinator.Close()
	}
	v.signer.Reset()
	return true, nil
}

func decodeUnsignedTx(txHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("deserialize: %w", err)
	}
	return tx, nil
}

// attachWitness attaches the same completed signature (plus the SIGHASH_ALL
// suffix) to every input's witness, per §9's sighash-simplification design
// note: the bridge's small same-keyed UTXO set makes a single shared
// signature valid for every input regardless of its own sighash.
func attachWitness(tx *wire.MsgTx, sig []byte) {
	withSighash := append(append([]byte{}, sig...), config.TaprootSighashSuffix)
	for _, in := range tx.TxIn {
		in.Witness = wire.TxWitness{withSighash}
	}
}

func encodeSignedTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
