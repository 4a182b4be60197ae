package api

import (
	"net/http"

	"geminichat"
)

// HealthHandler returns an http.HandlerFunc reporting liveness plus a small
// operational snapshot: the configured model, current cache size, and the
// number of usable API keys.
//
// Dependencies:
//   - svc *geminichat.Service: source of the health snapshot.
//
// HTTP Responses:
//   - 200 OK: JSON health document. The endpoint never fails while the
//     process is serving; a drained key pool shows up as apiKeysCount 0.
func HealthHandler(svc *geminichat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeError(w, http.StatusInternalServerError, CodeInternalError, "service not available")
			return
		}
		h := svc.Health()
		writeJSON(w, http.StatusOK, HealthResponse{
			OK:           h.OK,
			Model:        h.Model,
			Timestamp:    h.Timestamp,
			CacheSize:    h.CacheSize,
			APIKeysCount: h.APIKeysCount,
		})
	}
}
