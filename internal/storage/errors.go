package storage

import "errors"

// Storage errors for append-only stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to append a record whose
	// (timestamp, signature) identity already exists.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreIO wraps failures of the backing medium (file, database, network).
	ErrStoreIO = errors.New("signal store i/o failure")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("signal store closed")
)
