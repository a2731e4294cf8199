package types

import "errors"

// Registry errors.
var (
	ErrDuplicateKey   = errors.New("key name already in use")
	ErrNotRegistered  = errors.New("key name not registered")
	ErrInvalidKeyName = errors.New("key name must not be empty")
	ErrInvalidField   = errors.New("invalid field")
)

// Accessor errors.
var (
	ErrUnknownField = errors.New("unknown field")
	ErrTypeMismatch = errors.New("type mismatch")
)
