// Package storage holds the durable key-value state that survives restarts:
// the session token, the serialized user profile and the last selected level.
package storage

import (
	"context"
	"errors"
)

// Well-known keys. Each is written independently of the others.
const (
	KeyToken         = "token"
	KeyUser          = "user"
	KeySelectedLevel = "selectedLevel"
)

var ErrClosed = errors.New("store is closed")

// Store is a string key-value store. Writers never coordinate; the last
// write to a key wins.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes the given keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
