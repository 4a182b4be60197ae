// Package geminichat implements a chat service fronting Google's
// generative-language API: credential rotation, a TTL-bounded reply cache,
// and the request orchestration between them. HTTP handlers live in api/,
// the upstream adapter in gemini/, and the terminal monitor in tui/.
package geminichat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Roles accepted in conversation history. The upstream API knows exactly
// these two speakers.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one conversation history entry: who spoke and the text parts of
// what they said.
type Turn struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

// ChatRequest is a validated-or-not inbound chat request, decoded from
// either a JSON body or query parameters by the HTTP layer.
type ChatRequest struct {
	Message string // The user's message. Required.
	History []Turn // Prior conversation turns, oldest first. Optional.
	Stream  bool   // Deliver the reply incrementally when true.
}

// Reply is the outcome of a chat request, whether computed upstream or
// served from the cache.
type Reply struct {
	Text       string    // Full reply text.
	Model      string    // Model that produced the reply.
	TokensUsed int       // Total token count reported upstream, zero when unknown.
	Safety     string    // Safety/finish annotation, empty when the reply completed cleanly.
	Timestamp  time.Time // When the reply was produced. Cached replies keep their original timestamp.
	Cached     bool      // True when served from the reply cache.
}

// NextTurn returns the history entry a client should append to continue the
// conversation with this reply.
func (r *Reply) NextTurn() Turn {
	return Turn{Role: RoleModel, Parts: []string{r.Text}}
}

// ModelInfo describes one generative model available to a credential.
type ModelInfo struct {
	Name             string
	DisplayName      string
	Description      string
	SupportedActions []string
}

// HealthInfo is the service's liveness report.
type HealthInfo struct {
	OK           bool
	Model        string
	Timestamp    time.Time
	CacheSize    int
	APIKeysCount int
}

// Provider is the collaborator boundary to the external generative-language
// API. Implementations classify their failures into UpstreamError; nothing
// above this interface inspects raw upstream error text.
type Provider interface {
	// Generate runs a single-shot chat exchange and returns the full reply.
	Generate(ctx context.Context, apiKey string, history []Turn, message string) (*Reply, error)

	// Stream runs a chat exchange delivering text incrementally. Each chunk
	// is passed to emit in arrival order; the returned Reply carries the
	// accumulated full text. An error from emit aborts the exchange.
	Stream(ctx context.Context, apiKey string, history []Turn, message string, emit func(chunk string) error) (*Reply, error)

	// ListModels reports the models available to the given credential.
	ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error)
}

// Service owns the chat pipeline state: configuration, the credential
// keyring, the reply cache, the upstream provider, and service statistics.
// All state is instance-owned and passed in by the caller; the package keeps
// no globals, so independent instances can coexist in tests.
type Service struct {
	cfg      *Config
	keyring  *Keyring
	cache    *ReplyCache
	provider Provider
	stats    *ServiceStats
	log      zerolog.Logger
}

// NewService assembles a chat service from its collaborators.
func NewService(cfg *Config, keyring *Keyring, cache *ReplyCache, provider Provider, stats *ServiceStats, logger zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		keyring:  keyring,
		cache:    cache,
		provider: provider,
		stats:    stats,
		log:      logger.With().Str("component", "chat").Logger(),
	}
}

// Config exposes the service configuration to read-only consumers such as
// handlers and the TUI.
func (s *Service) Config() *Config {
	return s.cfg
}

// Stats exposes the service statistics collector.
func (s *Service) Stats() *ServiceStats {
	return s.stats
}

// Cache exposes the reply cache for monitoring surfaces.
func (s *Service) Cache() *ReplyCache {
	return s.cache
}

// Keyring exposes the credential pool.
func (s *Service) Keyring() *Keyring {
	return s.keyring
}

// Validate checks a chat request against the configured limits without
// contacting the provider. Failures come back as *RequestError.
func (s *Service) Validate(req ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return NewRequestError(CodeMessageRequired, "message is required and must be non-empty text")
	}
	if n := utf8.RuneCountInString(req.Message); n > s.cfg.MaxMessageChars {
		return NewRequestError(CodeMessageTooLong, "message length %d exceeds the maximum of %d characters", n, s.cfg.MaxMessageChars)
	}
	for i, turn := range req.History {
		if turn.Role != RoleUser && turn.Role != RoleModel {
			return NewRequestError(CodeInvalidHistory, "history[%d]: role must be %q or %q", i, RoleUser, RoleModel)
		}
		if len(turn.Parts) == 0 {
			return NewRequestError(CodeInvalidHistory, "history[%d]: parts must be a non-empty array", i)
		}
		if !hasText(turn.Parts) {
			return NewRequestError(CodeInvalidHistory, "history[%d]: parts must contain non-empty text", i)
		}
	}
	return nil
}

// Chat answers a single-shot chat request: validate, consult the cache, and
// on a miss rotate a credential, call upstream, and cache the result. Cache
// hits come back annotated Cached with their original timestamp.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*Reply, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	history := truncateHistory(req.History, s.cfg.HistoryMaxTurns)
	key := CacheKey(req.Message, history, s.cfg.CacheKeyHistoryTurns)

	if hit, ok := s.cache.Lookup(key); ok {
		s.stats.RecordCacheHit()
		s.log.Debug().Str("cacheKey", key).Msg("cache hit")
		return replyFromCache(hit), nil
	}
	s.stats.RecordCacheMiss()

	cred, err := s.keyring.Next()
	if err != nil {
		s.recordFailure("chat", "", err)
		return nil, err
	}
	s.log.Debug().Str("apiKey", cred.Name).Msg("using api key")

	start := time.Now()
	reply, err := s.provider.Generate(ctx, cred.Key, history, req.Message)
	latency := time.Since(start)
	cred.RecordUsage(err == nil, latency)
	s.stats.RecordRequest(s.cfg.Model, err == nil, latency)
	if err != nil {
		s.recordFailure("chat", cred.Name, err)
		return nil, err
	}

	s.cache.Store(key, cacheEntry(reply))
	return reply, nil
}

// ChatStream answers a chat request delivering the reply incrementally
// through emit. A cache hit emits the stored text as a single chunk; a miss
// streams from the provider in arrival order while accumulating the full
// text for the cache and the returned Reply.
func (s *Service) ChatStream(ctx context.Context, req ChatRequest, emit func(chunk string) error) (*Reply, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	history := truncateHistory(req.History, s.cfg.HistoryMaxTurns)
	key := CacheKey(req.Message, history, s.cfg.CacheKeyHistoryTurns)

	if hit, ok := s.cache.Lookup(key); ok {
		s.stats.RecordCacheHit()
		s.log.Debug().Str("cacheKey", key).Msg("cache hit (stream)")
		if err := emit(hit.Text); err != nil {
			return nil, err
		}
		return replyFromCache(hit), nil
	}
	s.stats.RecordCacheMiss()

	cred, err := s.keyring.Next()
	if err != nil {
		s.recordFailure("chat", "", err)
		return nil, err
	}
	s.log.Debug().Str("apiKey", cred.Name).Msg("using api key")

	start := time.Now()
	reply, err := s.provider.Stream(ctx, cred.Key, history, req.Message, emit)
	latency := time.Since(start)
	cred.RecordUsage(err == nil, latency)
	s.stats.RecordRequest(s.cfg.Model, err == nil, latency)
	if err != nil {
		s.recordFailure("chat", cred.Name, err)
		return nil, err
	}

	s.cache.Store(key, cacheEntry(reply))
	return reply, nil
}

// Models lists the models available to the next rotated credential.
func (s *Service) Models(ctx context.Context) ([]ModelInfo, error) {
	cred, err := s.keyring.Next()
	if err != nil {
		s.recordFailure("models", "", err)
		return nil, err
	}
	models, err := s.provider.ListModels(ctx, cred.Key)
	if err != nil {
		s.recordFailure("models", cred.Name, err)
		return nil, err
	}
	return models, nil
}

// Health reports the service liveness snapshot for the health endpoint.
func (s *Service) Health() HealthInfo {
	return HealthInfo{
		OK:           true,
		Model:        s.cfg.Model,
		Timestamp:    time.Now().UTC(),
		CacheSize:    s.cache.Size(),
		APIKeysCount: s.keyring.Len(),
	}
}

// recordFailure logs an upstream or pool failure and files it into the
// recent-error ring with its classified type.
func (s *Service) recordFailure(source, keyName string, err error) {
	errType := "unknown"
	if ue, ok := AsUpstreamError(err); ok {
		errType = ue.Kind.String()
	} else if errors.Is(err, ErrNoCredentials) {
		errType = "no_credentials"
	}
	if keyName == "" {
		keyName = "N/A"
	}
	s.log.Error().Err(err).Str("source", source).Str("apiKey", keyName).Msg("request failed")
	s.stats.AddError(ErrorDetail{
		Timestamp: time.Now(),
		Source:    source,
		Model:     s.cfg.Model,
		APIKeyID:  keyName,
		ErrorType: errType,
		Message:   err.Error(),
	})
}

// truncateHistory keeps the most recent max turns. A max of zero keeps
// history intact.
func truncateHistory(history []Turn, max int) []Turn {
	if max > 0 && len(history) > max {
		return history[len(history)-max:]
	}
	return history
}

// hasText reports whether at least one part carries non-blank text. The
// upstream API refuses turns with empty content.
func hasText(parts []string) bool {
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			return true
		}
	}
	return false
}

func replyFromCache(hit CachedReply) *Reply {
	return &Reply{
		Text:       hit.Text,
		Model:      hit.Model,
		TokensUsed: hit.TokensUsed,
		Safety:     hit.Safety,
		Timestamp:  hit.CreatedAt,
		Cached:     true,
	}
}

func cacheEntry(reply *Reply) CachedReply {
	created := reply.Timestamp
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return CachedReply{
		Text:       reply.Text,
		Model:      reply.Model,
		TokensUsed: reply.TokensUsed,
		Safety:     reply.Safety,
		CreatedAt:  created,
	}
}
