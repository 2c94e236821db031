// Package storage provides the client's durable key-value store. Keys
// are written atomically, so a crash mid-flow never leaves a partially
// written envelope or counter.
package storage

import "context"

// Store is durable client-side key-value storage.
type Store interface {
	// Get returns nil with no error when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
