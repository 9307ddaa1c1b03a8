package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
// Timestamps are stored with microsecond precision.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore. The schema must already exist
// (see migrations.RunPostgresMigrations).
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// Append inserts one row. Returns ErrDuplicateKey if (recorded_at, signature) exists.
func (s *SignalStore) Append(ctx context.Context, r *domain.SignalRecord) error {
	if err := storage.ValidateRecord(r); err != nil {
		return err
	}

	query := `
		INSERT INTO signal_log (recorded_at, label, amount_sol, description, signature)
		VALUES ($1, $2, $3::numeric, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		r.Timestamp.UTC().Truncate(time.Microsecond),
		r.Label.String(),
		r.AmountSOL.String(),
		domain.TruncateDescription(r.Description),
		r.Signature,
	)
	if err != nil {
		switch {
		case isDuplicateKeyError(err):
			return storage.ErrDuplicateKey
		case isCheckViolation(err):
			return fmt.Errorf("%w: %w", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("%w: insert signal: %w", storage.ErrStoreIO, err)
	}
	return nil
}

// ReadAll returns every row ordered by insertion id.
func (s *SignalStore) ReadAll(ctx context.Context) ([]domain.SignalRecord, error) {
	query := `
		SELECT recorded_at, label, amount_sol::text, description, signature
		FROM signal_log
		ORDER BY id ASC
	`
	return s.query(ctx, query)
}

// ReadSince returns rows with recorded_at strictly after t, in insertion order.
func (s *SignalStore) ReadSince(ctx context.Context, t time.Time) ([]domain.SignalRecord, error) {
	query := `
		SELECT recorded_at, label, amount_sol::text, description, signature
		FROM signal_log
		WHERE recorded_at > $1
		ORDER BY id ASC
	`
	return s.query(ctx, query, t.UTC())
}

// Close is a no-op; the pool is owned by the caller.
func (s *SignalStore) Close() error {
	return nil
}

func (s *SignalStore) query(ctx context.Context, query string, args ...any) ([]domain.SignalRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query signals: %w", storage.ErrStoreIO, err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

func scanSignals(rows pgx.Rows) ([]domain.SignalRecord, error) {
	var records []domain.SignalRecord

	for rows.Next() {
		var (
			r      domain.SignalRecord
			label  string
			amount string
		)
		if err := rows.Scan(&r.Timestamp, &label, &amount, &r.Description, &r.Signature); err != nil {
			return nil, fmt.Errorf("%w: scan signal row: %w", storage.ErrStoreIO, err)
		}

		l, err := domain.ParseLabel(label)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrStoreIO, err)
		}
		r.Label = l

		if r.AmountSOL, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("%w: parse amount %q: %w", storage.ErrStoreIO, amount, err)
		}
		r.Timestamp = r.Timestamp.UTC()
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate signal rows: %w", storage.ErrStoreIO, err)
	}

	return records, nil
}
