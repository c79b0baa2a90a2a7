package authsig

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/via-protocol/verifier-node/internal/committee"
	"github.com/via-protocol/verifier-node/internal/config"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey() error = %v", err)
	}
	payload := []byte(`{"hello":"world"}`)
	sig := Sign(priv, payload)

	if !Verify(priv.PubKey(), payload, sig) {
		t.Fatal("Verify() = false for a freshly produced signature")
	}
	if Verify(priv.PubKey(), []byte(`{"hello":"tampered"}`), sig) {
		t.Fatal("Verify() = true for a tampered payload, want false")
	}
}

func TestCanonicalPayload_NoBodyUsesTimestampObject(t *testing.T) {
	payload, err := CanonicalPayload(2, 1700000000, nil)
	if err != nil {
		t.Fatalf("CanonicalPayload() error = %v", err)
	}
	want := `{"timestamp":"1700000000","verifier_index":"2"}`
	if string(payload) != want {
		t.Errorf("CanonicalPayload() = %s, want %s", payload, want)
	}
}

func TestCanonicalPayload_BodyIsSignedVerbatim(t *testing.T) {
	body := []byte(`{"signer_index":0,"nonce":"abc"}`)
	payload, err := CanonicalPayload(0, 1700000000, body)
	if err != nil {
		t.Fatalf("CanonicalPayload() error = %v", err)
	}
	if string(payload) != string(body) {
		t.Errorf("CanonicalPayload() = %s, want exact body bytes %s", payload, body)
	}
}

func testRoster(t *testing.T) (*committee.Roster, *btcec.PrivateKey) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey() error = %v", err)
	}
	pubKeyHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())
	roster, err := committee.LoadRoster([]string{pubKeyHex}, committee.NetworkParams("regtest"))
	if err != nil {
		t.Fatalf("LoadRoster() error = %v", err)
	}
	return roster, priv
}

func TestMiddleware_AcceptsValidSignedRequest(t *testing.T) {
	roster, priv := testRoster(t)
	mw := Middleware(roster, config.AuthTimestampSkew)

	handlerCalled := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	timestamp := time.Now().Unix()
	headers, err := BuildHeaders(priv, 0, timestamp, nil)
	if err != nil {
		t.Fatalf("BuildHeaders() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !handlerCalled {
		t.Fatal("downstream handler was not invoked")
	}
}

func TestMiddleware_RejectsStaleTimestamp(t *testing.T) {
	roster, priv := testRoster(t)
	mw := Middleware(roster, 60*time.Second)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	staleTimestamp := time.Now().Add(-time.Hour).Unix()
	headers, err := BuildHeaders(priv, 0, staleTimestamp, nil)
	if err != nil {
		t.Fatalf("BuildHeaders() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware_RejectsUnknownVerifierIndex(t *testing.T) {
	roster, priv := testRoster(t)
	mw := Middleware(roster, config.AuthTimestampSkew)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	timestamp := time.Now().Unix()
	headers, err := BuildHeaders(priv, 0, timestamp, nil)
	if err != nil {
		t.Fatalf("BuildHeaders() error = %v", err)
	}
	headers[HeaderVerifierIndex] = strconv.Itoa(99)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
