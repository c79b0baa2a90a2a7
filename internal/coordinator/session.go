// Package coordinator implements the MuSig2 Coordinator (C6): the single
// active signing session a coordinator process exposes over HTTP, and the
// chi router/handlers that serve it (spec.md §4.6). Grounded on
// original_source's coordinator/api_decl.rs (route shape, CORS, middleware
// ordering) and types.rs's SigningSession/ViaWithdrawalState; the exact
// handler bodies were not present in original_source, so their logic is
// derived directly from spec.md §4.6's state-machine table and endpoint
// descriptions.
package coordinator

import (
	"fmt"
	"sync"

	"github.com/via-protocol/verifier-node/internal/config"
	"github.com/via-protocol/verifier-node/internal/session"
)

// state mirrors spec.md §4.6's diagram. AGGREGATE and BROADCAST are not
// tracked here: they are the single atomic step performed by whichever
// verifier builds and broadcasts the final transaction, which immediately
// closes the session back to EMPTY (via Close).
type state int

const (
	stateEmpty state = iota
	stateNonceGathering
	stateSigning
)

// activeSession is the coordinator's one in-flight signing session. Nonces
// and partial signatures are kept as the base64 strings callers posted —
// the coordinator itself never needs to interpret their MuSig2 content, it
// only counts and relays them (§4.6).
type activeSession struct {
	state    state
	op       session.Operation
	nonces   map[int]string
	partials map[int]string
}

// Coordinator owns the single active session a coordinator process
// exposes over HTTP. manager resolves what operation should run next and
// validates its lifecycle transitions (§4.5); Coordinator itself only
// enforces the single-active-session exclusion and tallies submissions
// (§4.6, testable property 7). Broadcasting the final transaction, and
// closing the session once that succeeds, is the follower's job
// (internal/follower) — Coordinator exposes Close for it to call.
type Coordinator struct {
	mu      sync.RWMutex
	active  *activeSession
	manager *session.Manager
}

// New builds a Coordinator.
func New(manager *session.Manager) *Coordinator {
	return &Coordinator{manager: manager}
}

// OpenSession begins a new session iff none is in progress and the
// handler's pre-process gate (the prior batch's confirmation check, §3
// invariant 4) passes (§4.6: "iff none is in progress and the prior
// batch's txid is confirmed").
func (c *Coordinator) OpenSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return config.ErrSessionInProgress
	}

	opType, op, ok := c.manager.NextOperation()
	if !ok {
		return config.ErrSessionEmpty
	}

	handler, ok := c.manager.Handler(opType)
	if !ok {
		return fmt.Errorf("no handler registered for session type %v", opType)
	}

	inProgress, err := handler.IsSessionInProgress(op)
	if err != nil {
		return fmt.Errorf("check session in progress: %w", err)
	}
	if inProgress {
		return config.ErrSessionEmpty
	}

	ready, err := handler.PreProcessSession(op)
	if err != nil {
		return fmt.Errorf("pre-process session: %w", err)
	}
	if !ready {
		return config.ErrNotConfirmed
	}

	c.active = &activeSession{
		state:    stateNonceGathering,
		op:       op,
		nonces:   make(map[int]string),
		partials: make(map[int]string),
	}
	return nil
}

// Response returns the current session's externally-visible state. A nil
// active session reports the EMPTY zero value (§4.6, mirroring
// original_source's `SigningSession::default()`).
func (c *Coordinator) Response() SigningSessionResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.active == nil {
		return SigningSessionResponse{}
	}
	return SigningSessionResponse{
		L1BlockNumber:             c.active.op.BatchNumber,
		MessageToSign:             fmt.Sprintf("%x", c.active.op.MessageToSign),
		UnsignedTx:                fmt.Sprintf("%x", c.active.op.UnsignedTxBytes),
		RequiredSigners:           c.active.op.RequiredSigners,
		ReceivedNonces:            len(c.active.nonces),
		ReceivedPartialSignatures: len(c.active.partials),
	}
}

// Nonces returns a copy of the currently submitted public nonces, keyed by
// signer index (§4.6: "Return {index → nonce} map").
func (c *Coordinator) Nonces() map[int]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyStringMap(c.activeNoncesLocked())
}

// PartialSignatures returns a copy of the currently submitted partial
// signatures, keyed by signer index.
func (c *Coordinator) PartialSignatures() map[int]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyStringMap(c.activePartialsLocked())
}

func (c *Coordinator) activeNoncesLocked() map[int]string {
	if c.active == nil {
		return nil
	}
	return c.active.nonces
}

func (c *Coordinator) activePartialsLocked() map[int]string {
	if c.active == nil {
		return nil
	}
	return c.active.partials
}

func copyStringMap(m map[int]string) map[int]string {
	out := make(map[int]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SubmitNonce records signerIndex's public nonce for the active session,
// idempotent per signer (a retransmit is a no-op). Once RequiredSigners
// nonces have been submitted, the session moves to SIGNING (§4.6).
func (c *Coordinator) SubmitNonce(signerIndex int, nonce string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return config.ErrSessionEmpty
	}
	if _, ok := c.active.nonces[signerIndex]; !ok {
		c.active.nonces[signerIndex] = nonce
	}
	if len(c.active.nonces) >= c.active.op.RequiredSigners {
		c.active.state = stateSigning
	}
	return nil
}

// SubmitPartialSignature records signerIndex's partial signature for the
// active session, idempotent per signer. Requires the session to have
// already reached SIGNING (enough nonces gathered) — a premature signature
// is rejected rather than silently stored (§4.6 state diagram).
func (c *Coordinator) SubmitPartialSignature(signerIndex int, sig string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return config.ErrSessionEmpty
	}
	if c.active.state != stateSigning {
		return fmt.Errorf("%w: session is not in the signing phase", config.ErrSignerMisuse)
	}
	if _, ok := c.active.partials[signerIndex]; !ok {
		c.active.partials[signerIndex] = sig
	}
	return nil
}

// Close returns the session to EMPTY. Called once the broadcast of the
// final transaction (done by whichever verifier builds it, §4.7) has been
// recorded, completing the BROADCAST → EMPTY transition (§4.6).
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
}
