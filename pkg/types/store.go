package types

import "errors"

// Store is the key-value persistence medium the Registry writes envelopes
// into. Keys and values are opaque strings; a missing key is reported with
// ok == false and a nil error.
type Store interface {
	// Get returns the value stored under key.
	Get(key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error

	// Clear deletes every key in the store, not only those of one
	// registration.
	Clear() error
}

// KeyLister is implemented by stores that can enumerate their keys.
type KeyLister interface {
	// Keys returns every stored key in ascending order.
	Keys() ([]string, error)
}

// Backend is a Store with an explicit lifecycle. Callers attach to a backend,
// use it as a Store, and detach when done.
type Backend interface {
	Store
	KeyLister

	// Attach connects the backend to the storage described by config.
	// Returns ErrAlreadyAttached if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, store operations return ErrStoreDetached.
	Detach() error
}

// Backend lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrInvalidKey      = errors.New("invalid storage key")
)
