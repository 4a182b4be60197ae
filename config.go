package geminichat

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment names the service accepts for APP_ENV.
var allowedEnvs = []string{"development", "production"}

// Config carries every runtime setting of the service. All values come from
// the environment (a .env file may seed it before startup); nothing is read
// from disk at request time.
type Config struct {
	Port                 int           // HTTP listen port.
	Env                  string        // "development" or "production"; controls log format and error verbosity.
	Model                string        // Generative model identifier sent upstream.
	SystemPrompt         string        // System instruction applied to every chat session.
	APIKeys              []string      // Credential pool, in rotation order.
	CacheTTL             time.Duration // Reply cache time-to-live.
	MaxMessageChars      int           // Upper bound on inbound message length, in runes.
	HistoryMaxTurns      int           // History is truncated to this many most recent turns.
	CacheKeyHistoryTurns int           // When positive, folds this many trailing turns into the cache key.
	RateLimitWindow      time.Duration // Rate limit accounting window.
	RateLimitMax         int           // Requests allowed per client within the window.
	AllowedOrigins       []string      // CORS origins; "*" allows any.
	LogLevel             string        // zerolog level name.
}

// defaultSystemPrompt is applied when SYSTEM_PROMPT is unset. The service
// began life fronting a medical-assistant chat, so the stock persona keeps
// that framing.
const defaultSystemPrompt = "You are a careful, friendly medical information assistant. " +
	"Answer health questions with clear, general guidance, avoid definitive diagnoses, " +
	"and remind the user to consult a qualified clinician for personal medical concerns."

// LoadConfig reads the service configuration from the environment, applying
// defaults for everything except the credential pool. Validation failures
// are returned as errors; an empty credential list is not a config error
// here because the keyring constructor is the fail-fast point for it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetDefault("PORT", 3000)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash-latest")
	v.SetDefault("SYSTEM_PROMPT", defaultSystemPrompt)
	v.SetDefault("GEMINI_API_KEYS", "")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("MAX_MESSAGE_CHARS", 4000)
	v.SetDefault("HISTORY_MAX_TURNS", 20)
	v.SetDefault("CACHE_KEY_HISTORY_TURNS", 0)
	v.SetDefault("RATE_LIMIT_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_MAX", 400)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.AutomaticEnv()

	cfg := &Config{
		Port:                 v.GetInt("PORT"),
		Env:                  strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		Model:                strings.TrimSpace(v.GetString("GEMINI_MODEL")),
		SystemPrompt:         v.GetString("SYSTEM_PROMPT"),
		APIKeys:              splitKeyList(v.GetString("GEMINI_API_KEYS"), v.GetString("GEMINI_API_KEY")),
		CacheTTL:             v.GetDuration("CACHE_TTL"),
		MaxMessageChars:      v.GetInt("MAX_MESSAGE_CHARS"),
		HistoryMaxTurns:      v.GetInt("HISTORY_MAX_TURNS"),
		CacheKeyHistoryTurns: v.GetInt("CACHE_KEY_HISTORY_TURNS"),
		RateLimitWindow:      v.GetDuration("RATE_LIMIT_WINDOW"),
		RateLimitMax:         v.GetInt("RATE_LIMIT_MAX"),
		AllowedOrigins:       splitCSV(v.GetString("ALLOWED_ORIGINS")),
		LogLevel:             strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d: must be between 1 and 65535", c.Port)
	}
	envOK := false
	for _, allowed := range allowedEnvs {
		if c.Env == allowed {
			envOK = true
			break
		}
	}
	if !envOK {
		return fmt.Errorf("invalid APP_ENV %q: must be one of %s", c.Env, strings.Join(allowedEnvs, ", "))
	}
	if c.Model == "" {
		return fmt.Errorf("GEMINI_MODEL must not be empty")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("invalid CACHE_TTL %s: must be positive", c.CacheTTL)
	}
	if c.MaxMessageChars <= 0 {
		return fmt.Errorf("invalid MAX_MESSAGE_CHARS %d: must be positive", c.MaxMessageChars)
	}
	if c.HistoryMaxTurns < 0 {
		return fmt.Errorf("invalid HISTORY_MAX_TURNS %d: must not be negative", c.HistoryMaxTurns)
	}
	if c.CacheKeyHistoryTurns < 0 {
		return fmt.Errorf("invalid CACHE_KEY_HISTORY_TURNS %d: must not be negative", c.CacheKeyHistoryTurns)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_WINDOW %s: must be positive", c.RateLimitWindow)
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_MAX %d: must be positive", c.RateLimitMax)
	}
	return nil
}

// Verbose reports whether error responses should echo upstream detail.
// Production deployments get generic messages instead.
func (c *Config) Verbose() bool {
	return c.Env != "production"
}

// splitKeyList merges the comma-separated GEMINI_API_KEYS list with the
// singular GEMINI_API_KEY fallback, trimming whitespace and dropping blanks.
func splitKeyList(list, single string) []string {
	keys := splitCSV(list)
	if len(keys) == 0 {
		if key := strings.TrimSpace(single); key != "" {
			keys = []string{key}
		}
	}
	return keys
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
