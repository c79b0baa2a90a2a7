// Package musig wraps btcec/v2/musig2's two-round Taproot aggregated
// signature session behind the explicit not-started/nonce-submitted/
// partial-sig-submitted state machine the MuSig2 follower (C7) inspects
// every tick (spec.md §4.7). Grounded on original_source's via_musig2::Signer
// usage in verifier/mod.rs (has_not_started, start_signing_session,
// our_nonce, mark_nonce_submitted, receive_nonce, create_partial_signature,
// mark_partial_sig_submitted, receive_partial_signature,
// create_final_signature, aggregated_pubkey, signer_index).
package musig

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/via-protocol/verifier-node/internal/config"
)

// Signer drives one committee member's side of a MuSig2 signing session.
// Not safe for concurrent StartSigningSession/Receive*/Create* calls from
// more than one tick at a time — the follower's tick loop is single-writer
// by construction (§5); the mutex here only makes each individual method
// call safe to make from another goroutine.
type Signer struct {
	mu sync.Mutex

	privKey     *btcec.PrivateKey
	signerIndex int
	pubKeys     []*btcec.PublicKey
	aggPubKey   *btcec.PublicKey

	session             *musig2.Session
	message             [32]byte
	nonceSubmitted      bool
	partialSigSubmitted bool
	finalSig            *schnorr.Signature
}

// NewSigner builds a Signer for signerIndex's private key against the fixed
// ordered committee roster pubKeys (key aggregation order matters, §6).
func NewSigner(privKey *btcec.PrivateKey, signerIndex int, pubKeys []*btcec.PublicKey) (*Signer, error) {
	aggKey, err := AggregateBridgeKey(pubKeys)
	if err != nil {
		return nil, err
	}
	return &Signer{
		privKey:     privKey,
		signerIndex: signerIndex,
		pubKeys:     pubKeys,
		aggPubKey:   aggKey,
	}, nil
}

// AggregateBridgeKey computes the MuSig2 key-path Taproot aggregate of
// pubKeys in the given (unsorted, roster-fixed) order — the bridge address's
// underlying public key (§6: "aggregation is MuSig2 key-aggregation over the
// roster in that fixed order").
func AggregateBridgeKey(pubKeys []*btcec.PublicKey) (*btcec.PublicKey, error) {
	agg, err := musig2.AggregateKeys(pubKeys, false, musig2.WithTaprootKeyTweak(nil))
	if err != nil {
		return nil, fmt.Errorf("aggregate musig2 bridge key: %w", err)
	}
	return agg.FinalKey, nil
}

// VerifySignature checks a finalized Schnorr signature against the
// aggregated bridge key and the 32-byte message that was signed (§4.7,
// testable property 6).
func VerifySignature(aggPubKey *btcec.PublicKey, sig *schnorr.Signature, message []byte) bool {
	return sig.Verify(message, aggPubKey)
}

func (s *Signer) SignerIndex() int                  { return s.signerIndex }
func (s *Signer) AggregatedPubKey() *btcec.PublicKey { return s.aggPubKey }

// HasNotStarted reports whether no signing session has been started yet.
func (s *Signer) HasNotStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session == nil
}

// HasSubmittedNonce reports whether this signer has already POSTed its
// public nonce for the current session.
func (s *Signer) HasSubmittedNonce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonceSubmitted
}

// HasCreatedPartialSig reports whether this signer has already POSTed its
// partial signature for the current session.
func (s *Signer) HasCreatedPartialSig() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partialSigSubmitted
}

// HasFinalSignature reports whether CreateFinalSignature has already
// succeeded for the current session — the coordinator uses this to avoid
// re-gathering partial signatures it has already combined (§4.7 step 5).
func (s *Signer) HasFinalSignature() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalSig != nil
}

// StartSigningSession begins a fresh two-round MuSig2 session over message,
// generating this signer's own nonce.
func (s *Signer) StartSigningSession(message [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return fmt.Errorf("%w: signing session already started", config.ErrSignerMisuse)
	}

	session, err := musig2.NewSession(
		s.privKey,
		musig2.WithKnownSigners(s.pubKeys),
		musig2.WithTaprootSignTweak(nil),
	)
	if err != nil {
		return fmt.Errorf("start musig2 session: %w", err)
	}

	s.session = session
	s.message = message
	return nil
}

// OurNonce returns this signer's public nonce for the active session.
func (s *Signer) OurNonce() (pubNonce [musig2.PubNonceSize]byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return pubNonce, false
	}
	return s.session.PublicNonce(), true
}

// MarkNonceSubmitted records that the nonce was accepted by the coordinator.
func (s *Signer) MarkNonceSubmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonceSubmitted = true
}

// ReceiveNonce absorbs a peer's public nonce into the active session.
func (s *Signer) ReceiveNonce(idx int, nonce [musig2.PubNonceSize]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return fmt.Errorf("%w: no active signing session", config.ErrSignerMisuse)
	}
	if _, err := s.session.RegisterPubNonce(nonce); err != nil {
		return fmt.Errorf("register nonce from signer %d: %w", idx, err)
	}
	return nil
}

// CreatePartialSignature produces this signer's partial signature over the
// session's message, once every peer's nonce has been registered.
func (s *Signer) CreatePartialSignature() (*musig2.PartialSignature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, fmt.Errorf("%w: no active signing session", config.ErrSignerMisuse)
	}
	sig, err := s.session.Sign(s.message)
	if err != nil {
		return nil, fmt.Errorf("create partial signature: %w", err)
	}
	return sig, nil
}

// MarkPartialSigSubmitted records that the partial signature was accepted
// by the coordinator.
func (s *Signer) MarkPartialSigSubmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partialSigSubmitted = true
}

// ReceivePartialSignature absorbs a peer's partial signature into the
// active session.
func (s *Signer) ReceivePartialSignature(idx int, sig *musig2.PartialSignature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return fmt.Errorf("%w: no active signing session", config.ErrSignerMisuse)
	}
	if _, err := s.session.CombineSig(sig); err != nil {
		return fmt.Errorf("combine partial signature from signer %d: %w", idx, err)
	}
	return nil
}

// CreateFinalSignature returns the combined Schnorr signature, once every
// peer's partial signature has been absorbed.
func (s *Signer) CreateFinalSignature() (*schnorr.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalSig != nil {
		return s.finalSig, nil
	}
	if s.session == nil {
		return nil, fmt.Errorf("%w: no active signing session", config.ErrSignerMisuse)
	}
	final := s.session.FinalSig()
	if final == nil {
		return nil, fmt.Errorf("%w: not all partial signatures have been received", config.ErrSignerMisuse)
	}
	s.finalSig = final
	return final, nil
}

// Reset discards all in-memory session state (§4.7 step 4, testable
// scenario S6): the follower calls this when it observes a new session
// while its own signer still thinks a prior one is in flight.
func (s *Signer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	s.message = [32]byte{}
	s.nonceSubmitted = false
	s.partialSigSubmitted = false
	s.finalSig = nil
}
