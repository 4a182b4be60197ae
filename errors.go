package geminichat

import (
	"errors"
	"fmt"
)

// Sentinel errors for keyring pool management.
var (
	// ErrNoCredentials is returned when the pool is empty or every credential is disabled.
	ErrNoCredentials = errors.New("no enabled API credentials available")

	// ErrCredentialNotFound is returned when a pool operation names an unknown credential.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrDuplicateCredential is returned when adding a credential that is already pooled.
	ErrDuplicateCredential = errors.New("credential already in pool")
)

// Machine-readable codes for request validation failures.
const (
	CodeMessageRequired = "MESSAGE_REQUIRED"
	CodeMessageTooLong  = "MESSAGE_TOO_LONG"
	CodeInvalidHistory  = "INVALID_HISTORY"
)

// RequestError describes a chat request rejected before any upstream call.
// Validation failures are reported synchronously and never retried.
type RequestError struct {
	Code    string // Machine-readable code, e.g. MESSAGE_REQUIRED.
	Message string // Human-readable description, safe to echo to callers.
}

func (e *RequestError) Error() string {
	return e.Message
}

// NewRequestError builds a RequestError with a formatted message.
func NewRequestError(code, format string, args ...any) *RequestError {
	return &RequestError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// UpstreamErrorKind enumerates the failure classes of the generative-language API.
type UpstreamErrorKind int

const (
	UpstreamUnknown    UpstreamErrorKind = iota // Unclassified failure.
	UpstreamAuth                                // Credential rejected by the API.
	UpstreamQuota                               // Quota or rate limit exhausted upstream.
	UpstreamSafety                              // Content blocked by the safety filter.
	UpstreamBadRequest                          // Upstream judged the request malformed.
)

// String returns a short identifier used in logs and error records.
func (k UpstreamErrorKind) String() string {
	switch k {
	case UpstreamAuth:
		return "auth"
	case UpstreamQuota:
		return "quota"
	case UpstreamSafety:
		return "safety"
	case UpstreamBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// UpstreamError is a classified failure from the external API collaborator.
// The adapter at the collaborator boundary owns the classification; nothing
// downstream inspects raw error text.
type UpstreamError struct {
	Kind    UpstreamErrorKind // Failure class, drives the HTTP mapping.
	Message string            // Upstream message, possibly redacted for callers.
	Err     error             // Underlying cause, if any.
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("upstream %s error", e.Kind)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// AsUpstreamError unwraps err into an UpstreamError, if it is one.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// AsRequestError unwraps err into a RequestError, if it is one.
func AsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
