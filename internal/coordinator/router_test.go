package coordinator

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/via-protocol/verifier-node/internal/authsig"
	"github.com/via-protocol/verifier-node/internal/committee"
	"github.com/via-protocol/verifier-node/internal/config"
	"github.com/via-protocol/verifier-node/internal/session"
)

func testRoster(t *testing.T) (*committee.Roster, []*btcec.PrivateKey) {
	t.Helper()
	var keys []*btcec.PrivateKey
	var pubHex []string
	for i := 0; i < 2; i++ {
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			t.Fatalf("NewPrivateKey() error = %v", err)
		}
		keys = append(keys, priv)
		pubHex = append(pubHex, hex.EncodeToString(priv.PubKey().SerializeCompressed()))
	}
	roster, err := committee.LoadRoster(pubHex, committee.NetworkParams("regtest"))
	if err != nil {
		t.Fatalf("LoadRoster() error = %v", err)
	}
	return roster, keys
}

func signedRequest(t *testing.T, priv *btcec.PrivateKey, idx int, method, target string, body []byte) *http.Request {
	t.Helper()
	timestamp := time.Now().Unix()
	headers, err := authsig.BuildHeaders(priv, idx, timestamp, body)
	if err != nil {
		t.Fatalf("BuildHeaders() error = %v", err)
	}
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestRouter_NewSessionThenNonceThenSignature(t *testing.T) {
	roster, keys := testRoster(t)
	h := &fakeHandler{
		op:    session.Operation{Type: session.TypeWithdrawal, BatchNumber: 3, RequiredSigners: 2},
		hasOp: true, ready: true,
	}
	c := New(session.NewManager(map[session.Type]session.Handler{session.TypeWithdrawal: h}))
	router := NewRouter(c, roster, config.AuthTimestampSkew)

	// POST /session/new
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, keys[0], 0, http.MethodPost, "/session/new", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /session/new status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// A second new-session attempt while one is in flight is rejected.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, keys[0], 0, http.MethodPost, "/session/new", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("second POST /session/new status = %d, want 409", rec.Code)
	}

	// GET /session
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, keys[0], 0, http.MethodGet, "/session/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /session status = %d", rec.Code)
	}
	var sessResp SigningSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sessResp); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if sessResp.L1BlockNumber != 3 || sessResp.RequiredSigners != 2 {
		t.Errorf("session response = %+v, want L1BlockNumber=3 RequiredSigners=2", sessResp)
	}

	// POST /session/nonce for each signer.
	for idx, priv := range keys {
		body, _ := json.Marshal(NoncePair{SignerIndex: idx, Nonce: "nonce-" + hex.EncodeToString([]byte{byte(idx)})})
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, signedRequest(t, priv, idx, http.MethodPost, "/session/nonce", body))
		if rec.Code != http.StatusOK {
			t.Fatalf("POST /session/nonce[%d] status = %d, body = %s", idx, rec.Code, rec.Body.String())
		}
	}

	// GET /session/nonce
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, keys[0], 0, http.MethodGet, "/session/nonce", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /session/nonce status = %d", rec.Code)
	}
	var nonces map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &nonces); err != nil {
		t.Fatalf("decode nonces: %v", err)
	}
	if len(nonces) != 2 {
		t.Errorf("nonces = %v, want 2 entries", nonces)
	}

	// POST /session/signature now succeeds since RequiredSigners nonces
	// were gathered, advancing the session past NONCE_GATHERING.
	body, _ := json.Marshal(PartialSignaturePair{SignerIndex: 0, Signature: "sig-0"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, keys[0], 0, http.MethodPost, "/session/signature", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /session/signature status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// GET /session/signature
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, keys[0], 0, http.MethodGet, "/session/signature", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /session/signature status = %d", rec.Code)
	}
	var sigs map[string]PartialSignaturePair
	if err := json.Unmarshal(rec.Body.Bytes(), &sigs); err != nil {
		t.Fatalf("decode signatures: %v", err)
	}
	if got, ok := sigs["0"]; !ok || got.Signature != "sig-0" {
		t.Errorf("signatures[0] = %+v, ok=%v, want Signature=sig-0", got, ok)
	}
}

func TestRouter_RejectsUnsignedRequest(t *testing.T) {
	roster, _ := testRoster(t)
	c := New(session.NewManager(map[session.Type]session.Handler{}))
	router := NewRouter(c, roster, config.AuthTimestampSkew)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned GET /session status = %d, want 401", rec.Code)
	}
}

func TestRouter_PartialSignatureBeforeSigningPhaseRejected(t *testing.T) {
	roster, keys := testRoster(t)
	h := &fakeHandler{
		op:    session.Operation{Type: session.TypeWithdrawal, BatchNumber: 1, RequiredSigners: 2},
		hasOp: true, ready: true,
	}
	c := New(session.NewManager(map[session.Type]session.Handler{session.TypeWithdrawal: h}))
	router := NewRouter(c, roster, config.AuthTimestampSkew)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, keys[0], 0, http.MethodPost, "/session/new", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /session/new status = %d", rec.Code)
	}

	body, _ := json.Marshal(PartialSignaturePair{SignerIndex: 0, Signature: "sig-0"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, keys[0], 0, http.MethodPost, "/session/signature", body))
	if rec.Code != http.StatusConflict {
		t.Fatalf("premature POST /session/signature status = %d, want 409", rec.Code)
	}
}
