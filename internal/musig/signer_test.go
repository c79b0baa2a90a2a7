package musig

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
)

func generateCommittee(t *testing.T, n int) ([]*btcec.PrivateKey, []*btcec.PublicKey) {
	t.Helper()
	privKeys := make([]*btcec.PrivateKey, n)
	pubKeys := make([]*btcec.PublicKey, n)
	for i := 0; i < n; i++ {
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			t.Fatalf("NewPrivateKey() error = %v", err)
		}
		privKeys[i] = priv
		pubKeys[i] = priv.PubKey()
	}
	return privKeys, pubKeys
}

// TestSignerRoundTrip covers testable property 6: a full two-round session
// across 3 signers produces a signature that verifies against the
// aggregated public key and message.
func TestSignerRoundTrip(t *testing.T) {
	const n = 3
	privKeys, pubKeys := generateCommittee(t, n)

	signers := make([]*Signer, n)
	for i := range signers {
		s, err := NewSigner(privKeys[i], i, pubKeys)
		if err != nil {
			t.Fatalf("NewSigner(%d) error = %v", i, err)
		}
		signers[i] = s
	}

	message := sha256.Sum256([]byte("withdrawal sighash fixture"))

	for _, s := range signers {
		if !s.HasNotStarted() {
			t.Fatalf("signer %d: HasNotStarted() = false before session start", s.SignerIndex())
		}
		if err := s.StartSigningSession(message); err != nil {
			t.Fatalf("signer %d: StartSigningSession() error = %v", s.SignerIndex(), err)
		}
	}

	ourNonces := make([][musig2.PubNonceSize]byte, n)
	for i, s := range signers {
		nonce, ok := s.OurNonce()
		if !ok {
			t.Fatalf("signer %d: OurNonce() not ok", i)
		}
		ourNonces[i] = nonce
	}

	for i, s := range signers {
		for j := range signers {
			if i == j {
				continue
			}
			if err := s.ReceiveNonce(j, ourNonces[j]); err != nil {
				t.Fatalf("signer %d: ReceiveNonce(%d) error = %v", i, j, err)
			}
		}
		s.MarkNonceSubmitted()
		if !s.HasSubmittedNonce() {
			t.Fatalf("signer %d: HasSubmittedNonce() = false after MarkNonceSubmitted", i)
		}
	}

	partialSigs := make([]*musig2.PartialSignature, n)
	for i, s := range signers {
		sig, err := s.CreatePartialSignature()
		if err != nil {
			t.Fatalf("signer %d: CreatePartialSignature() error = %v", i, err)
		}
		partialSigs[i] = sig
		s.MarkPartialSigSubmitted()
	}

	for i, s := range signers {
		for j := range signers {
			if i == j {
				continue
			}
			if err := s.ReceivePartialSignature(j, partialSigs[j]); err != nil {
				t.Fatalf("signer %d: ReceivePartialSignature(%d) error = %v", i, j, err)
			}
		}
	}

	for i, s := range signers {
		final, err := s.CreateFinalSignature()
		if err != nil {
			t.Fatalf("signer %d: CreateFinalSignature() error = %v", i, err)
		}
		if !VerifySignature(s.AggregatedPubKey(), final, message[:]) {
			t.Fatalf("signer %d: VerifySignature() = false, want true", i)
		}
	}
}

// TestSignerReset covers testable scenario S6: resetting a signer clears all
// session state so HasNotStarted/HasSubmittedNonce/HasCreatedPartialSig
// report as if the signer were fresh.
func TestSignerReset(t *testing.T) {
	privKeys, pubKeys := generateCommittee(t, 2)
	s, err := NewSigner(privKeys[0], 0, pubKeys)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	message := sha256.Sum256([]byte("fixture"))
	if err := s.StartSigningSession(message); err != nil {
		t.Fatalf("StartSigningSession() error = %v", err)
	}
	s.MarkNonceSubmitted()

	s.Reset()

	if !s.HasNotStarted() {
		t.Errorf("HasNotStarted() = false after Reset, want true")
	}
	if s.HasSubmittedNonce() {
		t.Errorf("HasSubmittedNonce() = true after Reset, want false")
	}
	if s.HasCreatedPartialSig() {
		t.Errorf("HasCreatedPartialSig() = true after Reset, want false")
	}
}
