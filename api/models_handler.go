package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"geminichat"
)

// ModelsHandler returns an http.HandlerFunc listing the generative models
// visible to the currently rotated API key, so operators can check what the
// upstream account actually exposes.
//
// Dependencies:
//   - svc *geminichat.Service: performs the upstream model listing with a
//     key drawn from the rotation.
//
// HTTP Responses:
//   - 200 OK: JSON array of models with display names and supported actions.
//   - 401/429/500/503: mapped upstream and pool failures.
func ModelsHandler(svc *geminichat.Service, logger zerolog.Logger) http.HandlerFunc {
	log := logger.With().Str("handler", "models").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			log.Error().Msg("chat service not initialized")
			writeError(w, http.StatusInternalServerError, CodeInternalError, "service not available")
			return
		}

		models, err := svc.Models(r.Context())
		if err != nil {
			writeServiceError(w, err, svc.Config().Verbose())
			return
		}

		items := make([]ModelItem, 0, len(models))
		for _, m := range models {
			items = append(items, ModelItem{
				Name:             m.Name,
				DisplayName:      m.DisplayName,
				Description:      m.Description,
				SupportedActions: m.SupportedActions,
			})
		}
		writeJSON(w, http.StatusOK, ModelsResponse{
			Models:    items,
			Count:     len(items),
			Timestamp: time.Now().UTC(),
		})
	}
}
