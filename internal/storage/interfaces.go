package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
)

// SignalStore is the append-only signal log.
// Implementations must be safe for concurrent use: appends are serialized
// and a read never observes a partially written record.
type SignalStore interface {
	// Append durably adds one record. Returns ErrDuplicateKey if a record
	// with the same (timestamp, signature) exists, ErrInvalidInput on a bad
	// record and ErrStoreIO when the medium fails.
	Append(ctx context.Context, r *domain.SignalRecord) error

	// ReadAll returns every record in append order.
	ReadAll(ctx context.Context) ([]domain.SignalRecord, error)

	// Close releases the backing resources.
	Close() error
}

// SinceReader is implemented by stores that can select a time window
// server-side. Records are returned in append order with Timestamp > t.
type SinceReader interface {
	ReadSince(ctx context.Context, t time.Time) ([]domain.SignalRecord, error)
}

// ValidateRecord checks the invariants every persisted record must satisfy.
func ValidateRecord(r *domain.SignalRecord) error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil record", ErrInvalidInput)
	case r.Signature == "":
		return fmt.Errorf("%w: empty signature", ErrInvalidInput)
	case !r.Label.IsValid():
		return fmt.Errorf("%w: label %q", ErrInvalidInput, r.Label)
	case r.AmountSOL.IsNegative():
		return fmt.Errorf("%w: negative amount %s", ErrInvalidInput, r.AmountSOL)
	case r.Timestamp.IsZero():
		return fmt.Errorf("%w: zero timestamp", ErrInvalidInput)
	}
	return nil
}

// IdentityKey returns the (timestamp, signature) identity of r as a map key.
func IdentityKey(r *domain.SignalRecord) string {
	return r.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z") + "|" + r.Signature
}
