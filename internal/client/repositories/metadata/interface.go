// Package metadata is a small key-value store kept in the local SQLite
// database. It holds the session record and the sealed vault identity, each
// under its own namespace so that clearing one never touches the other.
package metadata

import "context"

// Repository is a namespaced byte-value store. Keys passed in and returned by
// List are relative to the namespace.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	// Clear removes every key of the namespace.
	Clear(ctx context.Context) error
}

var _ Repository = (*SQLiteRepository)(nil)
