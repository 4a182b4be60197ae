package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"geminichat"
)

// Machine-readable codes for failures surfaced by the HTTP layer. Validation
// codes originate in the service; these cover everything else.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeAPIKeyInvalid   = "API_KEY_INVALID"
	CodeQuotaExceeded   = "QUOTA_EXCEEDED"
	CodeSafetyBlocked   = "SAFETY_BLOCKED"
	CodeBadRequest      = "BAD_REQUEST"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeNoAPIKeys       = "NO_API_KEYS"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInvalidLicense  = "INVALID_LICENSE"
	CodeLicenseNotFound = "LICENSE_NOT_FOUND"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     ErrorBody{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}

// writeServiceError maps a service failure onto the wire. Validation errors
// keep their own codes with 400; pool exhaustion maps to 503; classified
// upstream failures map by kind. verbose controls whether upstream detail is
// echoed to the caller or replaced with a generic message.
func writeServiceError(w http.ResponseWriter, err error, verbose bool) {
	if re, ok := geminichat.AsRequestError(err); ok {
		writeError(w, http.StatusBadRequest, re.Code, re.Message)
		return
	}
	if errors.Is(err, geminichat.ErrNoCredentials) {
		writeError(w, http.StatusServiceUnavailable, CodeNoAPIKeys, "no API credentials are available to serve this request")
		return
	}
	if ue, ok := geminichat.AsUpstreamError(err); ok {
		status, code, generic := upstreamStatus(ue.Kind)
		message := generic
		if verbose && ue.Message != "" {
			message = ue.Message
		}
		writeError(w, status, code, message)
		return
	}

	message := "an internal error occurred"
	if verbose {
		message = err.Error()
	}
	writeError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// upstreamStatus maps a classified upstream failure onto its HTTP status,
// wire code, and generic message.
func upstreamStatus(kind geminichat.UpstreamErrorKind) (int, string, string) {
	switch kind {
	case geminichat.UpstreamAuth:
		return http.StatusUnauthorized, CodeAPIKeyInvalid, "the configured API credential was rejected upstream"
	case geminichat.UpstreamQuota:
		return http.StatusTooManyRequests, CodeQuotaExceeded, "upstream quota exceeded, try again later"
	case geminichat.UpstreamSafety:
		return http.StatusBadRequest, CodeSafetyBlocked, "the request was blocked by the content safety filter"
	case geminichat.UpstreamBadRequest:
		return http.StatusBadRequest, CodeBadRequest, "the upstream API rejected the request as malformed"
	default:
		return http.StatusInternalServerError, CodeInternalError, "an internal error occurred"
	}
}
