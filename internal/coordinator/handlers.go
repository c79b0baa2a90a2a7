package coordinator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/via-protocol/verifier-node/internal/config"
)

// NewSessionHandler serves POST /session/new.
func (c *Coordinator) NewSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := c.OpenSession(); err != nil {
		slog.Info("session open rejected", "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c.Response())
}

// GetSessionHandler serves GET /session.
func (c *Coordinator) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Response())
}

// PostNonceHandler serves POST /session/nonce.
func (c *Coordinator) PostNonceHandler(w http.ResponseWriter, r *http.Request) {
	var body NoncePair
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.SubmitNonce(body.SignerIndex, body.Nonce); err != nil {
		slog.Info("nonce submission rejected", "signerIndex", body.SignerIndex, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c.Response())
}

// GetNoncesHandler serves GET /session/nonce.
func (c *Coordinator) GetNoncesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Nonces())
}

// PostSignatureHandler serves POST /session/signature.
func (c *Coordinator) PostSignatureHandler(w http.ResponseWriter, r *http.Request) {
	var body PartialSignaturePair
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.SubmitPartialSignature(body.SignerIndex, body.Signature); err != nil {
		slog.Info("partial signature submission rejected", "signerIndex", body.SignerIndex, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c.Response())
}

// GetSignaturesHandler serves GET /session/signature. Entries carry the
// signer index redundantly alongside the map key, matching the original's
// HashMap<usize, PartialSignaturePair> wire shape.
func (c *Coordinator) GetSignaturesHandler(w http.ResponseWriter, r *http.Request) {
	raw := c.PartialSignatures()
	out := make(map[int]PartialSignaturePair, len(raw))
	for idx, sig := range raw {
		out[idx] = PartialSignaturePair{SignerIndex: idx, Signature: sig}
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor maps a session-lifecycle error to the HTTP status the six
// endpoints return. Unrecognized errors are a server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, config.ErrSessionInProgress),
		errors.Is(err, config.ErrSessionEmpty),
		errors.Is(err, config.ErrNotConfirmed),
		errors.Is(err, config.ErrSignerMisuse):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
