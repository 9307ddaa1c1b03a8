// Package csvlog implements storage.SignalStore as an append-only CSV file.
//
// Layout: a header row written once at creation, then one row per record:
//
//	timestamp,label,amount_sol,description,signature
//
// Timestamps are RFC 3339 UTC with nanoseconds; amounts have four decimals.
package csvlog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage"
)

// Header is the fixed column layout.
var Header = []string{"timestamp", "label", "amount_sol", "description", "signature"}

// ErrHeaderMismatch is returned when an existing file has a different header.
var ErrHeaderMismatch = errors.New("signal log header mismatch")

const amountPlaces = 4

// logFile is the subset of *os.File the store uses.
type logFile interface {
	io.Writer
	io.ReaderAt
	Sync() error
	Truncate(size int64) error
	Stat() (os.FileInfo, error)
	Close() error
}

// SignalStore is a file-backed storage.SignalStore.
// Each append is a single write followed by fsync while holding the write
// lock; reads hold the read lock, so a half-written row is never parsed.
type SignalStore struct {
	mu     sync.RWMutex
	path   string
	file   logFile
	size   int64               // bytes of complete rows
	keys   map[string]struct{} // (timestamp, signature) identities
	logger *zap.Logger
	closed bool
}

// Option configures a SignalStore.
type Option func(*SignalStore)

// WithLogger sets the logger used for recovery and skipped-row warnings.
func WithLogger(l *zap.Logger) Option {
	return func(s *SignalStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// Open opens the log at path, creating it with the header if absent.
// Reopening an initialized log is a no-op apart from dropping a torn
// trailing row left by an interrupted write.
func Open(path string, opts ...Option) (*SignalStore, error) {
	s := &SignalStore{
		path:   path,
		keys:   make(map[string]struct{}),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", storage.ErrStoreIO, path, err)
	}
	s.file = f

	if err := s.init(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *SignalStore) init() error {
	data, err := s.readFile()
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return s.writeRow(Header)
	}
	if headerLine := encodeHeader(); len(data) < len(headerLine) && bytes.HasPrefix(headerLine, data) {
		// Creation was interrupted before the header was complete.
		if err := s.file.Truncate(0); err != nil {
			return fmt.Errorf("%w: truncate torn header: %w", storage.ErrStoreIO, err)
		}
		return s.writeRow(Header)
	}

	records, complete, err := s.parse(data)
	if err != nil {
		return err
	}
	if complete < int64(len(data)) {
		s.logger.Warn("dropping torn trailing row",
			zap.String("path", s.path),
			zap.Int64("offset", complete),
			zap.Int("bytes", len(data)-int(complete)),
		)
		if err := s.file.Truncate(complete); err != nil {
			return fmt.Errorf("%w: truncate torn row: %w", storage.ErrStoreIO, err)
		}
	}
	s.size = complete

	for i := range records {
		s.keys[storage.IdentityKey(&records[i])] = struct{}{}
	}
	return nil
}

// Append writes one row and fsyncs before returning.
func (s *SignalStore) Append(_ context.Context, r *domain.SignalRecord) error {
	if err := storage.ValidateRecord(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	key := storage.IdentityKey(r)
	if _, exists := s.keys[key]; exists {
		return storage.ErrDuplicateKey
	}

	if err := s.writeRow(encodeRecord(r)); err != nil {
		return err
	}
	s.keys[key] = struct{}{}
	return nil
}

// ReadAll parses the whole log in append order.
func (s *SignalStore) ReadAll(_ context.Context) ([]domain.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	data, err := s.readFile()
	if err != nil {
		return nil, err
	}
	records, _, err := s.parse(data)
	return records, err
}

// Close closes the underlying file.
func (s *SignalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", storage.ErrStoreIO, err)
	}
	return nil
}

// Path returns the log file path.
func (s *SignalStore) Path() string {
	return s.path
}

// writeRow encodes row, writes it in one call and syncs. On a failed write
// or sync the file is cut back to the last complete row, so a row whose
// append reported an error never stays in the log.
func (s *SignalStore) writeRow(row []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("%w: encode row: %w", storage.ErrStoreIO, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: encode row: %w", storage.ErrStoreIO, err)
	}

	n, err := s.file.Write(buf.Bytes())
	if err != nil {
		if n > 0 {
			_ = s.file.Truncate(s.size)
		}
		return fmt.Errorf("%w: write row: %w", storage.ErrStoreIO, err)
	}
	if err := s.file.Sync(); err != nil {
		if terr := s.file.Truncate(s.size); terr != nil {
			s.logger.Error("failed to roll back unsynced row",
				zap.String("path", s.path),
				zap.Int64("size", s.size),
				zap.Error(terr),
			)
		}
		return fmt.Errorf("%w: fsync: %w", storage.ErrStoreIO, err)
	}
	s.size += int64(n)
	return nil
}

func (s *SignalStore) readFile() ([]byte, error) {
	info, err := s.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat: %w", storage.ErrStoreIO, err)
	}
	data := make([]byte, info.Size())
	if _, err := s.file.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read: %w", storage.ErrStoreIO, err)
	}
	return data, nil
}

// parse validates the header and decodes every newline-terminated row.
// It returns the records and the byte length of the complete prefix.
func (s *SignalStore) parse(data []byte) ([]domain.SignalRecord, int64, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil || !slices.Equal(header, Header) || !terminated(data, r.InputOffset()) {
		return nil, 0, fmt.Errorf("%w: %s", ErrHeaderMismatch, s.path)
	}
	complete := r.InputOffset()

	var records []domain.SignalRecord
	for row := 2; ; row++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		end := r.InputOffset()
		if !terminated(data, end) || (err != nil && end == int64(len(data))) {
			// Partial row from an interrupted write.
			break
		}
		complete = end
		if err != nil {
			s.logger.Warn("skipping unreadable row", zap.String("path", s.path), zap.Int("row", row), zap.Error(err))
			continue
		}
		rec, err := decodeRecord(fields)
		if err != nil {
			s.logger.Warn("skipping corrupt row", zap.String("path", s.path), zap.Int("row", row), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, complete, nil
}

func encodeHeader() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(Header)
	w.Flush()
	return buf.Bytes()
}

func terminated(data []byte, offset int64) bool {
	return offset > 0 && offset <= int64(len(data)) && data[offset-1] == '\n'
}

func encodeRecord(r *domain.SignalRecord) []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Label.String(),
		r.AmountSOL.StringFixed(amountPlaces),
		domain.TruncateDescription(r.Description),
		r.Signature,
	}
}

func decodeRecord(fields []string) (domain.SignalRecord, error) {
	if len(fields) != len(Header) {
		return domain.SignalRecord{}, fmt.Errorf("expected %d fields, got %d", len(Header), len(fields))
	}
	ts, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return domain.SignalRecord{}, fmt.Errorf("timestamp: %w", err)
	}
	label, err := domain.ParseLabel(fields[1])
	if err != nil {
		return domain.SignalRecord{}, err
	}
	amount, err := decimal.NewFromString(fields[2])
	if err != nil {
		return domain.SignalRecord{}, fmt.Errorf("amount_sol: %w", err)
	}
	return domain.SignalRecord{
		Timestamp:   ts.UTC(),
		Label:       label,
		AmountSOL:   amount,
		Description: fields[3],
		Signature:   fields[4],
	}, nil
}
