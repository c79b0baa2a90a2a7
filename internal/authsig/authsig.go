// Package authsig implements the Auth Layer (C8): per-request ECDSA
// signatures over either the exact request body bytes or a canonical
// {timestamp, verifier_index} payload when there is no body, verified
// against the committee roster by verifier index. Grounded on
// original_source's verifier/mod.rs::create_request_headers (client side)
// and auth_middleware (server side, out of index but described in spec.md
// §4.8).
package authsig

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Header names carried on every request (§4.8).
const (
	HeaderTimestamp     = "X-Timestamp"
	HeaderVerifierIndex = "X-Verifier-Index"
	HeaderSignature     = "X-Signature"
)

// timestampPayload is signed in place of a body when the request carries
// none (§4.8: "the signed payload is {"timestamp": "...", "verifier_index":
// "..."}").
type timestampPayload struct {
	Timestamp     string `json:"timestamp"`
	VerifierIndex string `json:"verifier_index"`
}

// CanonicalPayload returns the exact bytes that must be signed for a
// request: bodyBytes verbatim when non-nil (the client signs the bytes it
// will send), or the canonical timestamp/verifier-index JSON object when
// there is no body.
func CanonicalPayload(verifierIndex int, timestamp int64, bodyBytes []byte) ([]byte, error) {
	if bodyBytes != nil {
		return bodyBytes, nil
	}
	payload := timestampPayload{
		Timestamp:     fmt.Sprintf("%d", timestamp),
		VerifierIndex: fmt.Sprintf("%d", verifierIndex),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal timestamp payload: %w", err)
	}
	return data, nil
}

// Sign produces a base64-encoded ECDSA signature over sha256(payload).
func Sign(privKey *btcec.PrivateKey, payload []byte) string {
	digest := sha256.Sum256(payload)
	sig := ecdsa.Sign(privKey, digest[:])
	return base64.StdEncoding.EncodeToString(sig.Serialize())
}

// Verify checks a base64-encoded ECDSA signature over sha256(payload)
// against pubKey.
func Verify(pubKey *btcec.PublicKey, payload []byte, signatureB64 string) bool {
	raw, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(raw)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(payload)
	return sig.Verify(digest[:], pubKey)
}

// BuildHeaders signs either bodyBytes (non-nil) or the canonical
// timestamp/verifier-index payload and returns the three headers a caller
// must attach to its request.
func BuildHeaders(privKey *btcec.PrivateKey, verifierIndex int, timestamp int64, bodyBytes []byte) (map[string]string, error) {
	payload, err := CanonicalPayload(verifierIndex, timestamp, bodyBytes)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderTimestamp:     fmt.Sprintf("%d", timestamp),
		HeaderVerifierIndex: fmt.Sprintf("%d", verifierIndex),
		HeaderSignature:     Sign(privKey, payload),
	}, nil
}
