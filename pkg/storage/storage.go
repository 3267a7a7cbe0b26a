// Package storage provides the key-value persistence layer backing grid
// state. Implementations are deliberately small: the state store above
// them owns serialization, versioning and debouncing, so a backend only
// needs durable byte slices addressed by string keys.
//
// Two backends ship with the module. MemoryStore keeps everything in a
// map and is the default for tests and ephemeral grids. FileStore maps
// keys to files in a directory with atomic replace-on-write semantics
// and optional at-rest compression.
package storage

import "errors"

// ErrNotFound is returned by Get when no value exists for a key.
// Callers test for it with errors.Is.
var ErrNotFound = errors.New("storage: key not found")

// Store is the persistence contract used by the state layer.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set durably stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Delete removes the value stored under key. Deleting a missing
	// key is not an error.
	Delete(key string) error

	// Keys returns all keys that start with prefix, sorted.
	Keys(prefix string) ([]string, error)
}
