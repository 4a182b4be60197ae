package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geminichat"
)

// stubProvider is a scriptable geminichat.Provider for handler tests.
type stubProvider struct {
	mu          sync.Mutex
	reply       geminichat.Reply
	chunks      []string
	models      []geminichat.ModelInfo
	err         error
	calls       int
	lastHistory []geminichat.Turn
}

func (p *stubProvider) record(history []geminichat.Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastHistory = history
}

func (p *stubProvider) Generate(_ context.Context, _ string, history []geminichat.Turn, _ string) (*geminichat.Reply, error) {
	p.record(history)
	if p.err != nil {
		return nil, p.err
	}
	r := p.reply
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	return &r, nil
}

func (p *stubProvider) Stream(_ context.Context, _ string, history []geminichat.Turn, _ string, emit func(string) error) (*geminichat.Reply, error) {
	p.record(history)
	if p.err != nil {
		return nil, p.err
	}
	var full strings.Builder
	for _, chunk := range p.chunks {
		if err := emit(chunk); err != nil {
			return nil, err
		}
		full.WriteString(chunk)
	}
	r := p.reply
	if full.Len() > 0 {
		r.Text = full.String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	return &r, nil
}

func (p *stubProvider) ListModels(_ context.Context, _ string) ([]geminichat.ModelInfo, error) {
	p.record(nil)
	if p.err != nil {
		return nil, p.err
	}
	return p.models, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// newTestService wires a real service around the stub provider with two
// pooled keys. mutate adjusts the config before assembly when non-nil.
func newTestService(t *testing.T, provider geminichat.Provider, mutate func(*geminichat.Config)) *geminichat.Service {
	t.Helper()
	cfg := &geminichat.Config{
		Port:            3000,
		Env:             "development",
		Model:           "test-model",
		SystemPrompt:    "be helpful",
		CacheTTL:        time.Minute,
		MaxMessageChars: 200,
		HistoryMaxTurns: 20,
		RateLimitWindow: time.Minute,
		RateLimitMax:    100,
		AllowedOrigins:  []string{"*"},
		LogLevel:        "info",
	}
	if mutate != nil {
		mutate(cfg)
	}
	ring, err := geminichat.NewKeyring([]string{"key-aaaaa", "key-bbbbb"})
	require.NoError(t, err)
	return geminichat.NewService(cfg, ring, geminichat.NewReplyCache(cfg.CacheTTL), provider, geminichat.NewServiceStats(), zerolog.Nop())
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func postJSON(t *testing.T, h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestChatHandlerPost(t *testing.T) {
	provider := &stubProvider{reply: geminichat.Reply{Text: "Rest and hydrate.", Model: "test-model", TokensUsed: 9}}
	h := ChatHandler(newTestService(t, provider, nil), zerolog.Nop())

	rec := postJSON(t, h, "/api/chat", `{"message":"I have a headache"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Rest and hydrate.", resp.Reply)
	assert.Equal(t, "model", resp.NextHistoryItem.Role)
	require.Len(t, resp.NextHistoryItem.Parts, 1)
	assert.Equal(t, "Rest and hydrate.", resp.NextHistoryItem.Parts[0].Text)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 9, resp.TokensUsed)
	assert.False(t, resp.Cached)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestChatHandlerServesCachedRepeat(t *testing.T) {
	provider := &stubProvider{reply: geminichat.Reply{Text: "ok", Model: "test-model"}}
	h := ChatHandler(newTestService(t, provider, nil), zerolog.Nop())

	first := postJSON(t, h, "/api/chat", `{"message":"same question"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(t, h, "/api/chat", `{"message":"  Same QUESTION "}`)
	require.Equal(t, http.StatusOK, second.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, "ok", resp.Reply)
	assert.Equal(t, 1, provider.callCount())
}

func TestChatHandlerGetQuery(t *testing.T) {
	provider := &stubProvider{reply: geminichat.Reply{Text: "and then?", Model: "test-model"}}
	h := ChatHandler(newTestService(t, provider, nil), zerolog.Nop())

	history := `[{"role":"user","parts":[{"text":"hi"}]},{"role":"model","parts":[{"text":"hello"}]}]`
	q := url.Values{"message": {"what next?"}, "history": {history}}
	req := httptest.NewRequest(http.MethodGet, "/api/chat?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	provider.mu.Lock()
	defer provider.mu.Unlock()
	require.Len(t, provider.lastHistory, 2)
	assert.Equal(t, geminichat.Turn{Role: "user", Parts: []string{"hi"}}, provider.lastHistory[0])
	assert.Equal(t, geminichat.Turn{Role: "model", Parts: []string{"hello"}}, provider.lastHistory[1])
}

func TestChatHandlerRejectsBadRequests(t *testing.T) {
	provider := &stubProvider{}
	h := ChatHandler(newTestService(t, provider, nil), zerolog.Nop())

	cases := []struct {
		name string
		do   func() *httptest.ResponseRecorder
		code string
	}{
		{
			"empty message",
			func() *httptest.ResponseRecorder { return postJSON(t, h, "/api/chat", `{"message":""}`) },
			geminichat.CodeMessageRequired,
		},
		{
			"body not json",
			func() *httptest.ResponseRecorder { return postJSON(t, h, "/api/chat", `{"message"`) },
			CodeInvalidRequest,
		},
		{
			"bad history role",
			func() *httptest.ResponseRecorder {
				return postJSON(t, h, "/api/chat", `{"message":"hi","history":[{"role":"narrator","parts":[{"text":"x"}]}]}`)
			},
			geminichat.CodeInvalidHistory,
		},
		{
			"blank history part",
			func() *httptest.ResponseRecorder {
				return postJSON(t, h, "/api/chat", `{"message":"hi","history":[{"role":"user","parts":[{"text":""}]}]}`)
			},
			geminichat.CodeInvalidHistory,
		},
		{
			"history query not json",
			func() *httptest.ResponseRecorder {
				q := url.Values{"message": {"hi"}, "history": {"[broken"}}
				req := httptest.NewRequest(http.MethodGet, "/api/chat?"+q.Encode(), nil)
				rec := httptest.NewRecorder()
				h(rec, req)
				return rec
			},
			geminichat.CodeInvalidHistory,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := tc.do()
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.code, decodeErrorBody(t, rec).Error.Code)
		})
	}
	assert.Zero(t, provider.callCount())
}

func TestChatHandlerMethodNotAllowed(t *testing.T) {
	h := ChatHandler(newTestService(t, &stubProvider{}, nil), zerolog.Nop())

	req := httptest.NewRequest(http.MethodDelete, "/api/chat", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestChatHandlerMapsUpstreamErrors(t *testing.T) {
	cases := []struct {
		name   string
		kind   geminichat.UpstreamErrorKind
		status int
		code   string
	}{
		{"auth", geminichat.UpstreamAuth, http.StatusUnauthorized, CodeAPIKeyInvalid},
		{"quota", geminichat.UpstreamQuota, http.StatusTooManyRequests, CodeQuotaExceeded},
		{"safety", geminichat.UpstreamSafety, http.StatusBadRequest, CodeSafetyBlocked},
		{"bad request", geminichat.UpstreamBadRequest, http.StatusBadRequest, CodeBadRequest},
		{"unknown", geminichat.UpstreamUnknown, http.StatusInternalServerError, CodeInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &stubProvider{err: &geminichat.UpstreamError{Kind: tc.kind, Message: "upstream detail"}}
			h := ChatHandler(newTestService(t, provider, nil), zerolog.Nop())

			rec := postJSON(t, h, "/api/chat", `{"message":"hi"}`)
			assert.Equal(t, tc.status, rec.Code)

			body := decodeErrorBody(t, rec)
			assert.Equal(t, tc.code, body.Error.Code)
			// Development mode echoes the upstream detail.
			assert.Equal(t, "upstream "+tc.kind.String()+": upstream detail", body.Error.Message)
		})
	}
}

func TestChatHandlerRedactsInProduction(t *testing.T) {
	provider := &stubProvider{err: &geminichat.UpstreamError{Kind: geminichat.UpstreamQuota, Message: "internal quota detail"}}
	svc := newTestService(t, provider, func(cfg *geminichat.Config) {
		cfg.Env = "production"
	})
	h := ChatHandler(svc, zerolog.Nop())

	rec := postJSON(t, h, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	body := decodeErrorBody(t, rec)
	assert.Equal(t, CodeQuotaExceeded, body.Error.Code)
	assert.Equal(t, "upstream quota exceeded, try again later", body.Error.Message)
	assert.NotContains(t, rec.Body.String(), "internal quota detail")
}

func TestChatHandlerEmptyPool(t *testing.T) {
	svc := newTestService(t, &stubProvider{}, nil)
	require.NoError(t, svc.Keyring().Remove("key-aaaaa"))
	require.NoError(t, svc.Keyring().Remove("key-bbbbb"))
	h := ChatHandler(svc, zerolog.Nop())

	rec := postJSON(t, h, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeNoAPIKeys, decodeErrorBody(t, rec).Error.Code)
}

func TestChatHandlerStreams(t *testing.T) {
	provider := &stubProvider{
		reply:  geminichat.Reply{Model: "test-model", TokensUsed: 17},
		chunks: []string{"Once ", "upon ", "a time."},
	}
	h := ChatHandler(newTestService(t, provider, nil), zerolog.Nop())

	rec := postJSON(t, h, "/api/chat", `{"message":"tell me a story","stream":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.True(t, rec.Flushed)

	text, metaRaw, found := strings.Cut(rec.Body.String(), "\n"+StreamMetadataMarker+"\n")
	require.True(t, found, "response must carry the metadata marker")
	assert.Equal(t, "Once upon a time.", text)

	var meta StreamMetadata
	require.NoError(t, json.Unmarshal([]byte(metaRaw), &meta))
	assert.Equal(t, "test-model", meta.Model)
	assert.Equal(t, 17, meta.TokensUsed)
	assert.False(t, meta.Cached)
	require.Len(t, meta.NextHistoryItem.Parts, 1)
	assert.Equal(t, "Once upon a time.", meta.NextHistoryItem.Parts[0].Text)
}

func TestChatHandlerStreamsCachedReply(t *testing.T) {
	provider := &stubProvider{reply: geminichat.Reply{Text: "Cached story.", Model: "test-model"}}
	h := ChatHandler(newTestService(t, provider, nil), zerolog.Nop())

	// Prime the cache with a plain request, then stream the same message.
	require.Equal(t, http.StatusOK, postJSON(t, h, "/api/chat", `{"message":"story?"}`).Code)

	q := url.Values{"message": {"story?"}, "stream": {"true"}}
	req := httptest.NewRequest(http.MethodGet, "/api/chat?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	text, metaRaw, found := strings.Cut(rec.Body.String(), "\n"+StreamMetadataMarker+"\n")
	require.True(t, found)
	assert.Equal(t, "Cached story.", text)

	var meta StreamMetadata
	require.NoError(t, json.Unmarshal([]byte(metaRaw), &meta))
	assert.True(t, meta.Cached)
	assert.Equal(t, 1, provider.callCount())
}

func TestChatHandlerStreamFailureBeforeFirstChunk(t *testing.T) {
	provider := &stubProvider{err: &geminichat.UpstreamError{Kind: geminichat.UpstreamQuota, Message: "spent"}}
	h := ChatHandler(newTestService(t, provider, nil), zerolog.Nop())

	rec := postJSON(t, h, "/api/chat", `{"message":"hi","stream":true}`)

	// No text hit the wire yet, so the caller still gets a JSON error.
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeQuotaExceeded, decodeErrorBody(t, rec).Error.Code)
}
