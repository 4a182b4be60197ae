package api

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDHeader exposes the request ID to callers for correlation.
const RequestIDHeader = "X-Request-Id"

// RequestID tags every request with a UUID, honoring one supplied by the
// caller, and makes it available via the response header and the request
// context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID stored in ctx, or "" when absent.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// AccessLog emits one structured line per request: method, path, status,
// bytes written, duration, and the caller's address.
func AccessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.Info().
				Str("requestId", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", m.Code).
				Int64("bytes", m.Written).
				Dur("duration", m.Duration).
				Str("remote", clientIP(r)).
				Msg("request")
		})
	}
}

// RateLimiter applies a per-client token bucket sized so that at most max
// requests fit into the accounting window, with the bucket lazily created on
// a client's first request. Buckets refill continuously, approximating the
// fixed window the service historically enforced (15 minutes / 400 requests).
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	limit      rate.Limit
	burst      int
	retryAfter int
}

// NewRateLimiter builds a limiter allowing max requests per window per
// client. A max below one is treated as one request per window.
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	if max < 1 {
		max = 1
	}
	interval := window / time.Duration(max)
	retryAfter := int(interval / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		limit:      rate.Every(interval),
		burst:      max,
		retryAfter: retryAfter,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = lim
	}
	return lim
}

// Middleware rejects over-limit clients with 429, a RateLimit-Limit header,
// and a Retry-After hint.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter(clientIP(r)).Allow() {
			w.Header().Set("RateLimit-Limit", strconv.Itoa(rl.burst))
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter))
			writeError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Recover converts handler panics into 500 responses instead of dropped
// connections, logging the stack for diagnosis.
func Recover(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Interface("panic", rec).
						Bytes("stack", debug.Stack()).
						Str("requestId", GetRequestID(r.Context())).
						Str("path", r.URL.Path).
						Msg("handler panic")
					writeError(w, http.StatusInternalServerError, CodeInternalError, "an internal error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP identifies the caller for rate limiting: the first entry of
// X-Forwarded-For when present, otherwise the connection's remote host.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
