package geminichat

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Credential holds statistics and status for a single API credential.
// It includes metrics like request counts and latencies, and whether the
// credential is currently enabled for use. Each Credential is protected by
// its own mutex for concurrent updates to its fields.
type Credential struct {
	Name                       string     // Masked name for display (e.g. "...key1"), safe for UIs and logs.
	Key                        string     // The actual API key string. Kept confidential, never serialized.
	Enabled                    bool       // True if the credential can be handed out for new requests.
	Requests                   uint64     // Total number of requests attempted with this credential.
	Successes                  uint64     // Total number of successful upstream calls with this credential.
	Failures                   uint64     // Total number of failed upstream calls with this credential.
	TotalLatencyMicroseconds   uint64     // Cumulative latency of all calls made with this credential.
	AverageLatencyMicroseconds uint64     // TotalLatencyMicroseconds / Requests.
	Status                     string     // User-facing status string, "Active" or "Disabled".
	mu                         sync.Mutex // Protects concurrent updates to the fields above.
}

// CredentialInfo is a point-in-time copy of a credential's status and stats,
// safe to pass to handlers and the TUI without further locking.
type CredentialInfo struct {
	Name                       string
	Key                        string
	Enabled                    bool
	Requests                   uint64
	Successes                  uint64
	Failures                   uint64
	AverageLatencyMicroseconds uint64
	Status                     string
}

// RecordUsage updates the request count, success/failure counts, and latency
// metrics for this credential. Thread-safe via the credential's own mutex.
func (c *Credential) RecordUsage(success bool, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Requests++
	if success {
		c.Successes++
	} else {
		c.Failures++
	}
	c.TotalLatencyMicroseconds += uint64(latency.Microseconds())
	if c.Requests > 0 {
		c.AverageLatencyMicroseconds = c.TotalLatencyMicroseconds / c.Requests
	}
}

// maskKey returns the display form of a credential: the last five characters
// prefixed with "...". Short keys are shown as-is.
func maskKey(key string) string {
	if len(key) > 5 {
		return fmt.Sprintf("...%s", key[len(key)-5:])
	}
	return key
}

// Keyring manages the pool of credentials for the generative-language API.
// It hands out credentials round-robin for outbound calls, supports runtime
// pool mutation (the licenses endpoints), status toggling, and snapshots for
// monitoring. The pool is ordered; a cursor tracks the next credential and
// wraps modulo pool size.
type Keyring struct {
	creds  []*Credential // All pooled credentials in configuration order.
	cursor int           // Index of the next credential to hand out.
	mu     sync.Mutex    // Protects cursor and the creds slice structure.
}

// NewKeyring builds a Keyring from raw key strings, trimming whitespace and
// dropping blank entries. Every credential starts enabled with zeroed stats.
// Returns an error when the cleaned pool is empty; callers treat that as
// fatal at startup.
func NewKeyring(keys []string) (*Keyring, error) {
	creds := make([]*Credential, 0, len(keys))
	for _, raw := range keys {
		key := strings.TrimSpace(raw)
		if key == "" {
			continue
		}
		creds = append(creds, &Credential{
			Name:    maskKey(key),
			Key:     key,
			Enabled: true,
			Status:  "Active",
		})
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("no API keys configured: %w", ErrNoCredentials)
	}
	return &Keyring{creds: creds}, nil
}

// Next selects and returns the next enabled credential using a round-robin
// strategy. It scans forward from the cursor, skipping disabled credentials,
// then advances the cursor past the selected one. Returns ErrNoCredentials
// when the pool is empty or every credential is disabled.
// Thread-safe via the Keyring's mutex.
func (k *Keyring) Next() (*Credential, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.creds) == 0 {
		return nil, ErrNoCredentials
	}

	for i := 0; i < len(k.creds); i++ {
		idx := (k.cursor + i) % len(k.creds)
		cred := k.creds[idx]
		cred.mu.Lock()
		enabled := cred.Enabled
		cred.mu.Unlock()

		if enabled {
			k.cursor = (idx + 1) % len(k.creds)
			return cred, nil
		}
	}

	return nil, ErrNoCredentials
}

// Add appends a new enabled credential to the pool. Blank keys and keys
// already pooled are rejected.
func (k *Keyring) Add(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("blank API key")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	for _, cred := range k.creds {
		if cred.Key == key {
			return ErrDuplicateCredential
		}
	}
	k.creds = append(k.creds, &Credential{
		Name:    maskKey(key),
		Key:     key,
		Enabled: true,
		Status:  "Active",
	})
	return nil
}

// Remove deletes the credential matching the exact key string. The cursor is
// re-clamped so rotation continues over the remaining pool. Removing the last
// credential is allowed; subsequent Next calls fail with ErrNoCredentials.
func (k *Keyring) Remove(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i, cred := range k.creds {
		if cred.Key == key {
			k.creds = append(k.creds[:i], k.creds[i+1:]...)
			if len(k.creds) > 0 {
				k.cursor %= len(k.creds)
			} else {
				k.cursor = 0
			}
			return nil
		}
	}
	return fmt.Errorf("key '%s': %w", maskKey(key), ErrCredentialNotFound)
}

// SetEnabled directly sets the enabled state of the credential matching the
// exact key string and updates its status string to match.
// Thread-safe: the Keyring's mutex protects the scan, the credential's own
// mutex the field update.
func (k *Keyring) SetEnabled(key string, enabled bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, cred := range k.creds {
		if cred.Key == key {
			cred.mu.Lock()
			cred.Enabled = enabled
			if enabled {
				cred.Status = "Active"
			} else {
				cred.Status = "Disabled"
			}
			cred.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("key '%s': %w", maskKey(key), ErrCredentialNotFound)
}

// Toggle flips the enabled state of the credential matching the exact key
// string and returns the new state.
func (k *Keyring) Toggle(key string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, cred := range k.creds {
		if cred.Key == key {
			cred.mu.Lock()
			cred.Enabled = !cred.Enabled
			if cred.Enabled {
				cred.Status = "Active"
			} else {
				cred.Status = "Disabled"
			}
			enabled := cred.Enabled
			cred.mu.Unlock()
			return enabled, nil
		}
	}
	return false, fmt.Errorf("key '%s': %w", maskKey(key), ErrCredentialNotFound)
}

// Snapshot creates deep copies of every credential's info for safe concurrent
// reads by monitoring surfaces, preventing races against live stat updates.
func (k *Keyring) Snapshot() []CredentialInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	infos := make([]CredentialInfo, len(k.creds))
	for i, cred := range k.creds {
		cred.mu.Lock()
		infos[i] = CredentialInfo{
			Name:                       cred.Name,
			Key:                        cred.Key,
			Enabled:                    cred.Enabled,
			Requests:                   cred.Requests,
			Successes:                  cred.Successes,
			Failures:                   cred.Failures,
			AverageLatencyMicroseconds: cred.AverageLatencyMicroseconds,
			Status:                     cred.Status,
		}
		cred.mu.Unlock()
	}
	return infos
}

// Len reports the pool size, enabled or not.
func (k *Keyring) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.creds)
}

// EnabledLen reports how many pooled credentials are currently enabled.
func (k *Keyring) EnabledLen() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	n := 0
	for _, cred := range k.creds {
		cred.mu.Lock()
		if cred.Enabled {
			n++
		}
		cred.mu.Unlock()
	}
	return n
}
