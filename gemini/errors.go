package gemini

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"geminichat"
)

// Classify converts a failure from the SDK boundary into a typed
// *geminichat.UpstreamError. Structured signals are preferred: a safety
// block from the SDK and HTTP status codes from the transport are inspected
// before falling back to the substring matching the upstream's error text
// historically required. A nil error classifies to nil; an already
// classified error passes through.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var ue *geminichat.UpstreamError
	if errors.As(err, &ue) {
		return ue
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &geminichat.UpstreamError{
			Kind:    geminichat.UpstreamSafety,
			Message: err.Error(),
			Err:     err,
		}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if kind, ok := kindFromStatus(gerr.Code, gerr.Message); ok {
			return &geminichat.UpstreamError{
				Kind:    kind,
				Message: gerr.Message,
				Err:     err,
			}
		}
	}

	msg := err.Error()
	return &geminichat.UpstreamError{
		Kind:    kindFromMessage(msg),
		Message: msg,
		Err:     err,
	}
}

// kindFromStatus maps an upstream HTTP status onto a failure class. The API
// reports invalid credentials as 400 INVALID_ARGUMENT with an "API key"
// message, so the 400 branch checks the message before settling on a
// malformed-request classification.
func kindFromStatus(code int, message string) (geminichat.UpstreamErrorKind, bool) {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return geminichat.UpstreamAuth, true
	case http.StatusTooManyRequests:
		return geminichat.UpstreamQuota, true
	case http.StatusBadRequest:
		if mentionsAPIKey(message) {
			return geminichat.UpstreamAuth, true
		}
		return geminichat.UpstreamBadRequest, true
	default:
		return geminichat.UpstreamUnknown, false
	}
}

// kindFromMessage is the legacy substring classification, retained as the
// fallback for failures that carry no structured signal.
func kindFromMessage(message string) geminichat.UpstreamErrorKind {
	lower := strings.ToLower(message)
	switch {
	case mentionsAPIKey(lower),
		strings.Contains(lower, "permission_denied"),
		strings.Contains(lower, "unauthenticated"):
		return geminichat.UpstreamAuth
	case strings.Contains(lower, "quota"),
		strings.Contains(lower, "resource_exhausted"),
		strings.Contains(lower, "rate limit"):
		return geminichat.UpstreamQuota
	case strings.Contains(lower, "safety"),
		strings.Contains(lower, "blocked"):
		return geminichat.UpstreamSafety
	case strings.Contains(lower, "invalid_argument"),
		strings.Contains(lower, "invalid argument"),
		strings.Contains(lower, "malformed"):
		return geminichat.UpstreamBadRequest
	default:
		return geminichat.UpstreamUnknown
	}
}

func mentionsAPIKey(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "api_key") || strings.Contains(lower, "api key")
}
