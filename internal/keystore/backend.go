// Package keystore defines the durable storage contract for API keys and
// provides the default SQLite-backed implementation.
package keystore

import "github.com/RevCBH/gafferd/internal/keymanager"

// Backend is the durable storage contract keymanager.Manager drives. A
// third-party backend (Redis, etcd, ...) can be swapped in by implementing
// this interface.
type Backend interface {
	Open() error
	Close() error

	AllKeys() ([]keymanager.Record, error)
	// SetKey inserts a new key row under an optional parent. Implementations
	// must reject a non-empty parent that does not already exist.
	SetKey(key string, rec keymanager.Record, parent string) error
	GetKey(key string) (keymanager.Record, error)
	DeleteKey(key string) error
	HasKey(key string) (bool, error)

	// AllSubkeys returns every record whose parent is key, used by
	// cascade-delete and by the admin "children of this key" query.
	AllSubkeys(key string) ([]keymanager.Record, error)
}
