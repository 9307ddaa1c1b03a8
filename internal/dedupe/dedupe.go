// Package dedupe suppresses redelivered events by signature.
package dedupe

import (
	"context"
	"time"
)

// DefaultTTL bounds how long a signature is remembered.
const DefaultTTL = 10 * time.Minute

// Cache remembers event signatures for a TTL.
type Cache interface {
	// Seen marks key as seen and reports whether it already was.
	Seen(ctx context.Context, key string) (bool, error)
	// Forget removes key so a redelivery is processed again.
	Forget(ctx context.Context, key string) error
	Close() error
}
