// Package contextstore persists per-session snapshots (memory + plan
// stack) behind a pluggable key-value interface with TTL expiry.
package contextstore

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/stateflow/pkg/models"
)

// keySuffix namespaces dialog-manager snapshots in shared stores.
const keySuffix = "__bot_builder_dm"

// DefaultTTL bounds snapshot lifetime when no TTL is configured (70 min).
const DefaultTTL = 4200000 * time.Millisecond

// ErrNotFound indicates no live snapshot exists under the key.
var ErrNotFound = errors.New("snapshot not found")

// SessionKey derives the storage key for a session id.
func SessionKey(sessionID string) string {
	return sessionID + keySuffix
}

// SessionID recovers the session id from a storage key; ok is false for
// keys outside the dialog-manager namespace.
func SessionID(key string) (string, bool) {
	if len(key) <= len(keySuffix) || key[len(key)-len(keySuffix):] != keySuffix {
		return "", false
	}
	return key[:len(key)-len(keySuffix)], true
}

// Store is the snapshot persistence contract. Callers serialize access per
// session; implementations are safe for concurrent disjoint keys.
type Store interface {
	// Get returns the snapshot under key, or ErrNotFound when absent or
	// expired.
	Get(ctx context.Context, key string) (*models.Snapshot, error)

	// Set stores the snapshot under key, restarting its TTL.
	Set(ctx context.Context, key string, snap *models.Snapshot) error

	// Delete removes the snapshot under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists live snapshot keys in the dialog-manager namespace.
	Keys(ctx context.Context) ([]string, error)

	// Close releases store resources.
	Close() error
}
