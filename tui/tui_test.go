package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"geminichat"
)

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{2 * 1024 * 1024, "2.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatBytes(tc.in))
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{2 * time.Hour, "2h"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1d 2h 3m 4s"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatDuration(tc.in))
	}
}

func TestKeyDisplayLabel(t *testing.T) {
	info := geminichat.CredentialInfo{Name: "...12345", Key: "secret-key-12345"}

	orig := keyDisplayFormat
	t.Cleanup(func() { keyDisplayFormat = orig })

	keyDisplayFormat = keyDisplayMasked
	assert.Equal(t, "...12345", keyDisplayLabel(info))

	keyDisplayFormat = keyDisplayFull
	assert.Equal(t, "secret-key-12345", keyDisplayLabel(info))

	keyDisplayFormat = keyDisplayPrefix
	assert.Equal(t, "secret-k...", keyDisplayLabel(info))

	short := geminichat.CredentialInfo{Name: "short", Key: "short"}
	assert.Equal(t, "short", keyDisplayLabel(short))
}
