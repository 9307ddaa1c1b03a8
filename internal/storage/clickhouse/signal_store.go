package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage"
)

// SignalStore implements storage.SignalStore using a ClickHouse MergeTree table.
// MergeTree does not enforce keys, so identity checks and sequence assignment
// happen under a process-local lock; one writer process per table is assumed.
type SignalStore struct {
	conn    *Conn
	mu      sync.Mutex
	lastSeq uint64
}

// NewSignalStore creates a SignalStore and resumes the sequence from the table.
func NewSignalStore(ctx context.Context, conn *Conn) (*SignalStore, error) {
	var maxSeq uint64
	if err := conn.QueryRow(ctx, `SELECT max(seq) FROM signal_log`).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("%w: load sequence: %w", storage.ErrStoreIO, err)
	}
	return &SignalStore{conn: conn, lastSeq: maxSeq}, nil
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// Append inserts one row. Returns ErrDuplicateKey if (recorded_at, signature) exists.
func (s *SignalStore) Append(ctx context.Context, r *domain.SignalRecord) error {
	if err := storage.ValidateRecord(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := r.Timestamp.UTC()
	exists, err := s.exists(ctx, ts, r.Signature)
	if err != nil {
		return fmt.Errorf("%w: check exists: %w", storage.ErrStoreIO, err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO signal_log (seq, recorded_at, label, amount_sol, description, signature)
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare batch: %w", storage.ErrStoreIO, err)
	}

	seq := s.nextSeq()
	err = batch.Append(seq, ts, r.Label.String(), r.AmountSOL, domain.TruncateDescription(r.Description), r.Signature)
	if err != nil {
		_ = batch.Abort()
		return fmt.Errorf("%w: append to batch: %w", storage.ErrStoreIO, err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("%w: send batch: %w", storage.ErrStoreIO, err)
	}

	s.lastSeq = seq
	return nil
}

// ReadAll returns every row ordered by seq.
func (s *SignalStore) ReadAll(ctx context.Context) ([]domain.SignalRecord, error) {
	query := `
		SELECT recorded_at, label, amount_sol, description, signature
		FROM signal_log
		ORDER BY seq ASC
	`
	return s.query(ctx, query)
}

// ReadSince returns rows with recorded_at strictly after t, ordered by seq.
func (s *SignalStore) ReadSince(ctx context.Context, t time.Time) ([]domain.SignalRecord, error) {
	query := `
		SELECT recorded_at, label, amount_sol, description, signature
		FROM signal_log
		WHERE toUnixTimestamp64Nano(recorded_at) > ?
		ORDER BY seq ASC
	`
	return s.query(ctx, query, t.UTC().UnixNano())
}

// Close is a no-op; the connection is owned by the caller.
func (s *SignalStore) Close() error {
	return nil
}

// nextSeq is strictly increasing and roughly tracks wall time, so a restarted
// writer keeps ordering after rows written before the restart.
func (s *SignalStore) nextSeq() uint64 {
	seq := uint64(time.Now().UnixNano())
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	return seq
}

func (s *SignalStore) exists(ctx context.Context, ts time.Time, signature string) (bool, error) {
	query := `
		SELECT count(*) FROM signal_log
		WHERE toUnixTimestamp64Nano(recorded_at) = ? AND signature = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, ts.UnixNano(), signature).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SignalStore) query(ctx context.Context, query string, args ...any) ([]domain.SignalRecord, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query signals: %w", storage.ErrStoreIO, err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// chRows is the subset of driver.Rows used by scanSignals.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSignals(rows chRows) ([]domain.SignalRecord, error) {
	var records []domain.SignalRecord

	for rows.Next() {
		var (
			r      domain.SignalRecord
			label  string
			amount decimal.Decimal
		)
		if err := rows.Scan(&r.Timestamp, &label, &amount, &r.Description, &r.Signature); err != nil {
			return nil, fmt.Errorf("%w: scan signal row: %w", storage.ErrStoreIO, err)
		}

		l, err := domain.ParseLabel(label)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrStoreIO, err)
		}
		r.Label = l
		r.AmountSOL = amount
		r.Timestamp = r.Timestamp.UTC()
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate signal rows: %w", storage.ErrStoreIO, err)
	}

	return records, nil
}
