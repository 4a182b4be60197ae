package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"geminichat"
)

// NewRouter assembles the full HTTP handler: the route table wrapped in the
// middleware chain. From the outside in the chain is CORS, response
// compression, request ID assignment, access logging, per-client rate
// limiting, and panic recovery. Rate limiting sits inside logging so
// rejected requests still show up in the access log.
func NewRouter(svc *geminichat.Service, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", HealthHandler(svc)).Methods(http.MethodGet)

	chat := ChatHandler(svc, logger)
	// The service fronted a medical assistant first; the original route name
	// stays alive as an alias next to the generic one.
	r.HandleFunc("/api/doctor-chat", chat).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/chat", chat).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/api/models", ModelsHandler(svc, logger)).Methods(http.MethodGet)

	r.HandleFunc("/api/licenses", ListLicensesHandler(svc)).Methods(http.MethodGet)
	r.HandleFunc("/api/licenses", AddLicenseHandler(svc, logger)).Methods(http.MethodPost)
	r.HandleFunc("/api/licenses/{key}", RemoveLicenseHandler(svc, logger)).Methods(http.MethodDelete)
	r.HandleFunc("/api/licenses/{key}", UpdateLicenseHandler(svc, logger)).Methods(http.MethodPatch)

	r.HandleFunc("/api/dashboard", DashboardHandler(svc, logger)).Methods(http.MethodGet)

	cfg := svc.Config()
	limiter := NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)

	var h http.Handler = r
	h = Recover(logger)(h)
	h = limiter.Middleware(h)
	h = AccessLog(logger)(h)
	h = RequestID(h)
	h = handlers.CompressHandler(h)
	h = handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
	)(h)
	return h
}
