package geminichat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyNormalizesMessage(t *testing.T) {
	base := CacheKey("hello", nil, 0)
	assert.Equal(t, "hello", base)
	assert.Equal(t, base, CacheKey("  Hello  ", nil, 0))
	assert.Equal(t, base, CacheKey("HELLO", nil, 0))
	assert.NotEqual(t, base, CacheKey("hello there", nil, 0))
}

func TestCacheKeyIgnoresHistoryByDefault(t *testing.T) {
	history := []Turn{
		{Role: RoleUser, Parts: []string{"I have a headache"}},
		{Role: RoleModel, Parts: []string{"How long has it lasted?"}},
	}

	assert.Equal(t, CacheKey("two days", nil, 0), CacheKey("two days", history, 0))
}

func TestCacheKeyFoldsHistoryTail(t *testing.T) {
	short := []Turn{
		{Role: RoleUser, Parts: []string{"I have a headache"}},
		{Role: RoleModel, Parts: []string{"How long has it lasted?"}},
	}
	long := append([]Turn{
		{Role: RoleUser, Parts: []string{"hi"}},
		{Role: RoleModel, Parts: []string{"hello"}},
	}, short...)

	withShort := CacheKey("two days", short, 2)
	withLong := CacheKey("two days", long, 2)
	withOther := CacheKey("two days", []Turn{{Role: RoleUser, Parts: []string{"hi"}}}, 2)

	// Only the most recent turns participate, so the longer conversation with
	// the same tail produces the same key while a different tail does not.
	assert.Equal(t, withShort, withLong)
	assert.NotEqual(t, withShort, withOther)
	assert.NotEqual(t, withShort, CacheKey("two days", short, 0))
}

func TestLookupRoundTrip(t *testing.T) {
	cache := NewReplyCache(time.Minute)
	entry := CachedReply{
		Text:       "Drink water and rest.",
		Model:      "test-model",
		TokensUsed: 12,
		CreatedAt:  time.Now().UTC(),
	}
	cache.Store("headache", entry)

	got, ok := cache.Lookup("headache")
	require.True(t, ok)
	assert.Equal(t, entry.Text, got.Text)
	assert.Equal(t, entry.Model, got.Model)
	assert.Equal(t, entry.TokensUsed, got.TokensUsed)

	_, ok = cache.Lookup("fever")
	assert.False(t, ok)
}

func TestLookupExpiresEntries(t *testing.T) {
	cache := NewReplyCache(20 * time.Millisecond)
	cache.Store("q", CachedReply{Text: "a", CreatedAt: time.Now().UTC()})

	_, ok := cache.Lookup("q")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok = cache.Lookup("q")
	assert.False(t, ok)
	// Stale entries stay resident until overwritten.
	assert.Equal(t, 1, cache.Size())
}

func TestStoreOverwrites(t *testing.T) {
	cache := NewReplyCache(time.Minute)
	cache.Store("q", CachedReply{Text: "first", CreatedAt: time.Now().UTC()})
	cache.Store("q", CachedReply{Text: "second", CreatedAt: time.Now().UTC()})

	got, ok := cache.Lookup("q")
	require.True(t, ok)
	assert.Equal(t, "second", got.Text)
	assert.Equal(t, 1, cache.Size())
}

func TestTTLAccessor(t *testing.T) {
	assert.Equal(t, 5*time.Minute, NewReplyCache(5*time.Minute).TTL())
}
