package coordinator

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON encodes v as the flat JSON body the six session endpoints
// return (no envelope: followers decode these fields directly, per the
// original_source's SigningSessionResponse/NoncePair/PartialSignaturePair
// wire shapes, §6).
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError writes a minimal {"error": "..."} body. The status code alone
// is load-bearing for followers (§4.6 testable property 7: "a 4xx"); the
// body is for human diagnosis.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
