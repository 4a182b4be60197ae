package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"geminichat"
)

// ListLicensesHandler returns an http.HandlerFunc that serves GET
// /api/licenses. It lists every pooled credential in masked form together
// with its per-key usage statistics, so operators can see how rotation is
// distributing load without ever reading a full key off the wire.
//
// Dependencies:
//   - svc *geminichat.Service: source of the credential snapshot.
//
// HTTP Responses:
//   - 200 OK: JSON listing of all pooled credentials. Content-Type: application/json.
//   - 500 Internal Server Error: if the service is not initialized.
func ListLicensesHandler(svc *geminichat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeError(w, http.StatusInternalServerError, CodeInternalError, "service not available")
			return
		}

		infos := svc.Keyring().Snapshot()
		items := make([]LicenseItem, len(infos))
		for i, info := range infos {
			items[i] = licenseItemFromInfo(info)
		}
		writeJSON(w, http.StatusOK, LicensesResponse{
			Licenses:  items,
			Count:     len(items),
			Timestamp: time.Now().UTC(),
		})
	}
}

// AddLicenseHandler returns an http.HandlerFunc that serves POST
// /api/licenses. The new credential joins the rotation immediately, enabled
// and with zeroed statistics.
//
// Dependencies:
//   - svc *geminichat.Service: owns the credential pool being mutated.
//
// Request Body:
//   - JSON object with a required "key" field holding the full API key string.
//
// HTTP Responses:
//   - 201 Created: credential pooled; response carries the masked alias only.
//   - 400 Bad Request: body is not valid JSON, the key is blank, or the key
//     is already pooled.
//   - 500 Internal Server Error: if the service is not initialized.
func AddLicenseHandler(svc *geminichat.Service, logger zerolog.Logger) http.HandlerFunc {
	log := logger.With().Str("handler", "licenses").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			log.Error().Msg("chat service not initialized")
			writeError(w, http.StatusInternalServerError, CodeInternalError, "service not available")
			return
		}

		var body AddLicenseRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "request body is not valid JSON: "+err.Error())
			return
		}

		if err := svc.Keyring().Add(body.Key); err != nil {
			if errors.Is(err, geminichat.ErrDuplicateCredential) {
				writeError(w, http.StatusBadRequest, CodeInvalidLicense, "API key is already pooled")
				return
			}
			writeError(w, http.StatusBadRequest, CodeInvalidLicense, err.Error())
			return
		}

		info, _ := findCredential(svc, strings.TrimSpace(body.Key))
		log.Info().Str("keyAlias", info.Name).Msg("api key added to the pool")
		writeJSON(w, http.StatusCreated, LicenseActionResponse{
			KeyAlias:  info.Name,
			IsEnabled: info.Enabled,
			Message:   "API key added to the pool",
			Timestamp: time.Now().UTC(),
		})
	}
}

// RemoveLicenseHandler returns an http.HandlerFunc that serves DELETE
// /api/licenses/{key}. The path segment is the full key string; removal is
// permitted even for the last pooled credential, after which chat requests
// fail with NO_API_KEYS until a key is added back.
//
// Dependencies:
//   - svc *geminichat.Service: owns the credential pool being mutated.
//
// HTTP Responses:
//   - 200 OK: credential removed from the pool.
//   - 404 Not Found: no pooled credential matches the given key.
//   - 500 Internal Server Error: if the service is not initialized.
func RemoveLicenseHandler(svc *geminichat.Service, logger zerolog.Logger) http.HandlerFunc {
	log := logger.With().Str("handler", "licenses").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			log.Error().Msg("chat service not initialized")
			writeError(w, http.StatusInternalServerError, CodeInternalError, "service not available")
			return
		}

		key := mux.Vars(r)["key"]
		info, ok := findCredential(svc, key)
		if !ok {
			writeError(w, http.StatusNotFound, CodeLicenseNotFound, "no pooled API key matches the given key")
			return
		}

		if err := svc.Keyring().Remove(key); err != nil {
			if errors.Is(err, geminichat.ErrCredentialNotFound) {
				writeError(w, http.StatusNotFound, CodeLicenseNotFound, "no pooled API key matches the given key")
				return
			}
			log.Error().Err(err).Str("keyAlias", info.Name).Msg("removing api key")
			writeError(w, http.StatusInternalServerError, CodeInternalError, "failed to remove API key")
			return
		}

		if remaining := svc.Keyring().Len(); remaining == 0 {
			log.Warn().Msg("api key pool is now empty; chat requests will fail until a key is added")
		}
		log.Info().Str("keyAlias", info.Name).Msg("api key removed from the pool")
		writeJSON(w, http.StatusOK, LicenseActionResponse{
			KeyAlias:  info.Name,
			IsEnabled: false,
			Message:   "API key removed from the pool",
			Timestamp: time.Now().UTC(),
		})
	}
}

// UpdateLicenseHandler returns an http.HandlerFunc that serves PATCH
// /api/licenses/{key}, setting whether the credential participates in
// rotation. Disabled credentials keep their statistics and can be re-enabled
// later.
//
// Dependencies:
//   - svc *geminichat.Service: owns the credential pool being mutated.
//
// Request Body:
//   - JSON object with an "enabled" boolean holding the desired state.
//
// HTTP Responses:
//   - 200 OK: state applied; response reflects the credential's new state.
//   - 400 Bad Request: body is not valid JSON.
//   - 404 Not Found: no pooled credential matches the given key.
//   - 500 Internal Server Error: if the service is not initialized.
func UpdateLicenseHandler(svc *geminichat.Service, logger zerolog.Logger) http.HandlerFunc {
	log := logger.With().Str("handler", "licenses").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			log.Error().Msg("chat service not initialized")
			writeError(w, http.StatusInternalServerError, CodeInternalError, "service not available")
			return
		}

		var body UpdateLicenseRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "request body is not valid JSON: "+err.Error())
			return
		}

		key := mux.Vars(r)["key"]
		if err := svc.Keyring().SetEnabled(key, body.Enabled); err != nil {
			if errors.Is(err, geminichat.ErrCredentialNotFound) {
				writeError(w, http.StatusNotFound, CodeLicenseNotFound, "no pooled API key matches the given key")
				return
			}
			log.Error().Err(err).Msg("updating api key state")
			writeError(w, http.StatusInternalServerError, CodeInternalError, "failed to update API key")
			return
		}

		info, _ := findCredential(svc, key)
		state := "disabled"
		if body.Enabled {
			state = "enabled"
		}
		log.Info().Str("keyAlias", info.Name).Bool("enabled", body.Enabled).Msg("api key state updated")
		writeJSON(w, http.StatusOK, LicenseActionResponse{
			KeyAlias:  info.Name,
			IsEnabled: body.Enabled,
			Message:   "API key " + state,
			Timestamp: time.Now().UTC(),
		})
	}
}

// findCredential scans the pool snapshot for the credential matching the
// exact key string.
func findCredential(svc *geminichat.Service, key string) (geminichat.CredentialInfo, bool) {
	for _, info := range svc.Keyring().Snapshot() {
		if info.Key == key {
			return info, true
		}
	}
	return geminichat.CredentialInfo{}, false
}

// licenseItemFromInfo converts a pool snapshot entry to its wire form,
// deriving millisecond latency and the percentage success rate.
func licenseItemFromInfo(info geminichat.CredentialInfo) LicenseItem {
	item := LicenseItem{
		KeyAlias:         info.Name,
		IsEnabled:        info.Enabled,
		Requests:         info.Requests,
		Successes:        info.Successes,
		Failures:         info.Failures,
		AverageLatencyMs: float64(info.AverageLatencyMicroseconds) / 1000.0,
	}
	if info.Requests > 0 {
		item.SuccessRatePercent = float64(info.Successes) / float64(info.Requests) * 100.0
	}
	return item
}
