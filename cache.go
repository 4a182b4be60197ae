package geminichat

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// CachedReply is the immutable value stored per cache key: the computed reply
// plus the metadata needed to replay it to a later caller.
type CachedReply struct {
	Text       string    // Full reply text.
	Model      string    // Model that produced the reply.
	TokensUsed int       // Token count reported upstream, zero when unknown.
	Safety     string    // Safety/finish annotation, empty when clean.
	CreatedAt  time.Time // Write time; freshness is judged against this.
}

// ReplyCache is a time-windowed memo of replies keyed by normalized message
// text. Entries past the TTL are treated as absent on read but are not
// proactively removed, so the map can only grow (a documented limitation of
// this design, surfaced through Size for monitoring). Store always overwrites.
type ReplyCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]CachedReply
}

// NewReplyCache builds an empty cache with the given time-to-live.
func NewReplyCache(ttl time.Duration) *ReplyCache {
	return &ReplyCache{
		ttl:     ttl,
		entries: make(map[string]CachedReply),
	}
}

// CacheKey derives the cache key for a message. The key is the trimmed,
// lowercased message text. When historyTurns is positive, a digest of the
// most recent historyTurns conversation turns is folded in, so distinct
// conversations stop sharing replies; with the default of zero the key
// deliberately ignores history, reproducing the legacy collision behavior.
func CacheKey(message string, history []Turn, historyTurns int) string {
	key := strings.ToLower(strings.TrimSpace(message))
	if historyTurns <= 0 || len(history) == 0 {
		return key
	}
	tail := history
	if len(tail) > historyTurns {
		tail = tail[len(tail)-historyTurns:]
	}
	raw, err := json.Marshal(tail)
	if err != nil {
		return key
	}
	sum := sha256.Sum256(raw)
	return key + "|" + hex.EncodeToString(sum[:])
}

// Lookup returns the entry for key when it is present and fresh. Stale
// entries are reported absent without being removed.
func (c *ReplyCache) Lookup(key string) (CachedReply, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return CachedReply{}, false
	}
	if time.Since(entry.CreatedAt) >= c.ttl {
		return CachedReply{}, false
	}
	return entry, true
}

// Store writes the entry for key, overwriting any prior value.
func (c *ReplyCache) Store(key string, reply CachedReply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = reply
}

// Size reports the number of stored entries, stale ones included.
func (c *ReplyCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL reports the configured time-to-live.
func (c *ReplyCache) TTL() time.Duration {
	return c.ttl
}
