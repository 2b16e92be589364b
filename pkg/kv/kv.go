// Package kv is the durable key-value slot used for client-side state: the
// persisted cart and the auth token. Backends are interchangeable.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when nothing is stored under the key.
var ErrNotFound = errors.New("kv: key not found")

// Store is a minimal durable key-value slot.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
