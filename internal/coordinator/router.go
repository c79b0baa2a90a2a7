package coordinator

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/via-protocol/verifier-node/internal/authsig"
	"github.com/via-protocol/verifier-node/internal/committee"
)

// NewRouter builds the chi router exposing the six /session endpoints
// (§4.6). Every request passes the auth middleware (§4.8) before reaching
// a handler — "before any body-extraction middleware" in spec.md terms
// falls out naturally here since Go's auth middleware both validates and
// replays the body in one pass (internal/authsig.Middleware).
func NewRouter(c *Coordinator, roster *committee.Roster, authSkew time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(permissiveCORS)

	slog.Info("coordinator router initialized", "middleware", []string{"realIP", "recoverer", "cors", "authsig"})

	r.Route("/session", func(r chi.Router) {
		r.Use(authsig.Middleware(roster, authSkew))

		r.Post("/new", c.NewSessionHandler)
		r.Get("/", c.GetSessionHandler)
		r.Post("/nonce", c.PostNonceHandler)
		r.Get("/nonce", c.GetNoncesHandler)
		r.Post("/signature", c.PostSignatureHandler)
		r.Get("/signature", c.GetSignaturesHandler)
	})

	return r
}
