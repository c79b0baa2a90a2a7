package musig

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/musig2"
)

// EncodeNonce base64-encodes a public nonce for transport over the
// coordinator's HTTP surface (§6 NoncePair.nonce).
func EncodeNonce(nonce [musig2.PubNonceSize]byte) string {
	return base64.StdEncoding.EncodeToString(nonce[:])
}

// DecodeNonce reverses EncodeNonce.
func DecodeNonce(b64 string) ([musig2.PubNonceSize]byte, error) {
	var nonce [musig2.PubNonceSize]byte
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nonce, fmt.Errorf("decode nonce: %w", err)
	}
	if len(raw) != musig2.PubNonceSize {
		return nonce, fmt.Errorf("decode nonce: want %d bytes, got %d", musig2.PubNonceSize, len(raw))
	}
	copy(nonce[:], raw)
	return nonce, nil
}

// EncodePartialSignature base64-encodes a partial signature for transport
// over the coordinator's HTTP surface (§6 PartialSignaturePair.signature).
func EncodePartialSignature(sig *musig2.PartialSignature) (string, error) {
	var buf bytes.Buffer
	if err := sig.Encode(&buf); err != nil {
		return "", fmt.Errorf("encode partial signature: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodePartialSignature reverses EncodePartialSignature.
func DecodePartialSignature(b64 string) (*musig2.PartialSignature, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode partial signature: %w", err)
	}
	var sig musig2.PartialSignature
	if err := sig.Decode(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("decode partial signature: %w", err)
	}
	return &sig, nil
}
