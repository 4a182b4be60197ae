package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geminichat"
)

func TestModelsHandler(t *testing.T) {
	provider := &stubProvider{models: []geminichat.ModelInfo{
		{
			Name:             "models/test-model",
			DisplayName:      "Test Model",
			Description:      "A model for tests.",
			SupportedActions: []string{"generateContent"},
		},
		{Name: "models/other-model"},
	}}
	h := ModelsHandler(newTestService(t, provider, nil), zerolog.Nop())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Models, 2)
	assert.Equal(t, "models/test-model", resp.Models[0].Name)
	assert.Equal(t, "Test Model", resp.Models[0].DisplayName)
	assert.Equal(t, []string{"generateContent"}, resp.Models[0].SupportedActions)
}

func TestModelsHandlerUpstreamFailure(t *testing.T) {
	provider := &stubProvider{err: &geminichat.UpstreamError{Kind: geminichat.UpstreamAuth, Message: "key rejected"}}
	h := ModelsHandler(newTestService(t, provider, nil), zerolog.Nop())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeAPIKeyInvalid, decodeErrorBody(t, rec).Error.Code)
}
