package authsig

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/via-protocol/verifier-node/internal/committee"
	"github.com/via-protocol/verifier-node/internal/config"
)

// Middleware enforces the auth layer on every request to next: validates
// the X-Timestamp/X-Verifier-Index/X-Signature headers against roster,
// rejecting stale timestamps, unknown verifier indices, and signature
// mismatches (§4.8). Per §4.6, this runs before any body-extraction
// middleware.
func Middleware(roster *committee.Roster, skew time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idx, err := strconv.Atoi(r.Header.Get(HeaderVerifierIndex))
			if err != nil {
				http.Error(w, config.ErrUnknownVerifierIndex.Error(), http.StatusUnauthorized)
				return
			}
			member, ok := roster.At(idx)
			if !ok {
				http.Error(w, config.ErrUnknownVerifierIndex.Error(), http.StatusUnauthorized)
				return
			}

			timestamp, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
			if err != nil {
				http.Error(w, config.ErrInvalidSignature.Error(), http.StatusUnauthorized)
				return
			}
			if age := time.Since(time.Unix(timestamp, 0)); age > skew || age < -skew {
				http.Error(w, config.ErrStaleTimestamp.Error(), http.StatusUnauthorized)
				return
			}

			var bodyBytes []byte
			if r.ContentLength > 0 {
				data, err := io.ReadAll(r.Body)
				if err != nil {
					http.Error(w, "failed to read request body", http.StatusBadRequest)
					return
				}
				r.Body.Close()
				r.Body = io.NopCloser(bytes.NewReader(data))
				bodyBytes = data
			}

			payload, err := CanonicalPayload(idx, timestamp, bodyBytes)
			if err != nil {
				http.Error(w, "failed to build canonical payload", http.StatusInternalServerError)
				return
			}

			if !Verify(member.PubKey, payload, r.Header.Get(HeaderSignature)) {
				http.Error(w, config.ErrInvalidSignature.Error(), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
