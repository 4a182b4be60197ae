package geminichat

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamErrorKindStrings(t *testing.T) {
	assert.Equal(t, "auth", UpstreamAuth.String())
	assert.Equal(t, "quota", UpstreamQuota.String())
	assert.Equal(t, "safety", UpstreamSafety.String())
	assert.Equal(t, "bad_request", UpstreamBadRequest.String())
	assert.Equal(t, "unknown", UpstreamUnknown.String())
	assert.Equal(t, "unknown", UpstreamErrorKind(42).String())
}

func TestUpstreamErrorFormatting(t *testing.T) {
	withMessage := &UpstreamError{Kind: UpstreamQuota, Message: "quota exhausted"}
	assert.Equal(t, "upstream quota: quota exhausted", withMessage.Error())

	bare := &UpstreamError{Kind: UpstreamAuth}
	assert.Equal(t, "upstream auth error", bare.Error())
}

func TestUpstreamErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("calling upstream: %w", &UpstreamError{Kind: UpstreamUnknown, Err: cause})

	ue, ok := AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, UpstreamUnknown, ue.Kind)
	assert.True(t, errors.Is(err, cause))
}

func TestNewRequestErrorFormats(t *testing.T) {
	err := NewRequestError(CodeMessageTooLong, "message length %d exceeds the maximum of %d characters", 12, 10)
	assert.Equal(t, CodeMessageTooLong, err.Code)
	assert.Equal(t, "message length 12 exceeds the maximum of 10 characters", err.Error())

	wrapped := fmt.Errorf("validating: %w", err)
	re, ok := AsRequestError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeMessageTooLong, re.Code)

	_, ok = AsRequestError(errors.New("plain"))
	assert.False(t, ok)
	_, ok = AsUpstreamError(errors.New("plain"))
	assert.False(t, ok)
}
