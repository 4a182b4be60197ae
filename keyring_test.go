package geminichat

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyringCleansInput(t *testing.T) {
	ring, err := NewKeyring([]string{"  alpha-key-12345  ", "", "   ", "beta-key-67890"})
	require.NoError(t, err)

	assert.Equal(t, 2, ring.Len())
	assert.Equal(t, 2, ring.EnabledLen())

	infos := ring.Snapshot()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha-key-12345", infos[0].Key)
	assert.Equal(t, "...12345", infos[0].Name)
	assert.Equal(t, "Active", infos[0].Status)
	assert.True(t, infos[0].Enabled)
	assert.Equal(t, "...67890", infos[1].Name)
}

func TestNewKeyringRejectsEmptyPool(t *testing.T) {
	for _, keys := range [][]string{nil, {}, {"", "   "}} {
		ring, err := NewKeyring(keys)
		require.Error(t, err)
		assert.Nil(t, ring)
		assert.True(t, errors.Is(err, ErrNoCredentials))
	}
}

func TestNextRoundRobin(t *testing.T) {
	ring, err := NewKeyring([]string{"key-aaaaa", "key-bbbbb", "key-ccccc"})
	require.NoError(t, err)

	var order []string
	for i := 0; i < 4; i++ {
		cred, err := ring.Next()
		require.NoError(t, err)
		order = append(order, cred.Key)
	}

	// Three calls visit every pooled key once, the fourth wraps around.
	assert.Equal(t, []string{"key-aaaaa", "key-bbbbb", "key-ccccc", "key-aaaaa"}, order)
}

func TestNextSkipsDisabled(t *testing.T) {
	ring, err := NewKeyring([]string{"key-aaaaa", "key-bbbbb", "key-ccccc"})
	require.NoError(t, err)
	require.NoError(t, ring.SetEnabled("key-bbbbb", false))

	var order []string
	for i := 0; i < 4; i++ {
		cred, err := ring.Next()
		require.NoError(t, err)
		order = append(order, cred.Key)
	}

	assert.Equal(t, []string{"key-aaaaa", "key-ccccc", "key-aaaaa", "key-ccccc"}, order)
	assert.Equal(t, 3, ring.Len())
	assert.Equal(t, 2, ring.EnabledLen())
}

func TestNextAllDisabled(t *testing.T) {
	ring, err := NewKeyring([]string{"key-aaaaa", "key-bbbbb"})
	require.NoError(t, err)
	require.NoError(t, ring.SetEnabled("key-aaaaa", false))
	require.NoError(t, ring.SetEnabled("key-bbbbb", false))

	cred, err := ring.Next()
	assert.Nil(t, cred)
	assert.True(t, errors.Is(err, ErrNoCredentials))
}

func TestAddRejectsBlankAndDuplicate(t *testing.T) {
	ring, err := NewKeyring([]string{"key-aaaaa"})
	require.NoError(t, err)

	assert.Error(t, ring.Add("   "))
	assert.True(t, errors.Is(ring.Add("key-aaaaa"), ErrDuplicateCredential))
	assert.Equal(t, 1, ring.Len())

	require.NoError(t, ring.Add("  key-ddddd "))
	assert.Equal(t, 2, ring.Len())
	infos := ring.Snapshot()
	assert.Equal(t, "key-ddddd", infos[1].Key)
	assert.True(t, infos[1].Enabled)
}

func TestRemoveReclampsCursor(t *testing.T) {
	ring, err := NewKeyring([]string{"key-aaaaa", "key-bbbbb", "key-ccccc"})
	require.NoError(t, err)

	// Advance the cursor to the last slot, then shrink the pool under it.
	for i := 0; i < 2; i++ {
		_, err := ring.Next()
		require.NoError(t, err)
	}
	require.NoError(t, ring.Remove("key-bbbbb"))
	require.NoError(t, ring.Remove("key-ccccc"))

	cred, err := ring.Next()
	require.NoError(t, err)
	assert.Equal(t, "key-aaaaa", cred.Key)
}

func TestRemoveUnknownKey(t *testing.T) {
	ring, err := NewKeyring([]string{"key-aaaaa"})
	require.NoError(t, err)

	err = ring.Remove("key-zzzzz")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCredentialNotFound))
	assert.Contains(t, err.Error(), "...zzzzz")
	assert.NotContains(t, err.Error(), "key-zzzzz")
}

func TestRemoveLastCredentialEmptiesPool(t *testing.T) {
	ring, err := NewKeyring([]string{"key-aaaaa"})
	require.NoError(t, err)
	require.NoError(t, ring.Remove("key-aaaaa"))

	assert.Equal(t, 0, ring.Len())
	_, err = ring.Next()
	assert.True(t, errors.Is(err, ErrNoCredentials))
}

func TestToggleFlipsState(t *testing.T) {
	ring, err := NewKeyring([]string{"key-aaaaa"})
	require.NoError(t, err)

	enabled, err := ring.Toggle("key-aaaaa")
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Equal(t, 0, ring.EnabledLen())
	assert.Equal(t, "Disabled", ring.Snapshot()[0].Status)

	enabled, err = ring.Toggle("key-aaaaa")
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "Active", ring.Snapshot()[0].Status)

	_, err = ring.Toggle("key-zzzzz")
	assert.True(t, errors.Is(err, ErrCredentialNotFound))
}

func TestRecordUsageAggregates(t *testing.T) {
	cred := &Credential{Name: "...aaaaa", Key: "key-aaaaa", Enabled: true, Status: "Active"}

	cred.RecordUsage(true, 100*time.Microsecond)
	cred.RecordUsage(true, 300*time.Microsecond)
	cred.RecordUsage(false, 200*time.Microsecond)

	assert.Equal(t, uint64(3), cred.Requests)
	assert.Equal(t, uint64(2), cred.Successes)
	assert.Equal(t, uint64(1), cred.Failures)
	assert.Equal(t, uint64(600), cred.TotalLatencyMicroseconds)
	assert.Equal(t, uint64(200), cred.AverageLatencyMicroseconds)
}

func TestSnapshotIsCopy(t *testing.T) {
	ring, err := NewKeyring([]string{"key-aaaaa"})
	require.NoError(t, err)

	infos := ring.Snapshot()
	infos[0].Requests = 99
	infos[0].Status = "Disabled"

	fresh := ring.Snapshot()
	assert.Equal(t, uint64(0), fresh[0].Requests)
	assert.Equal(t, "Active", fresh[0].Status)
}

func TestMaskKeyShortKeys(t *testing.T) {
	for key, want := range map[string]string{
		"abcdef": "...bcdef",
		"abcde":  "abcde",
		"ab":     "ab",
	} {
		t.Run(fmt.Sprintf("%q", key), func(t *testing.T) {
			assert.Equal(t, want, maskKey(key))
		})
	}
}
