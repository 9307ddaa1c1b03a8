package csvlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage"
)

const headerLine = "timestamp,label,amount_sol,description,signature\n"

func openTemp(t *testing.T) (*SignalStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signals.csv")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func record(ts time.Time, sig, desc string, amount string) *domain.SignalRecord {
	return &domain.SignalRecord{
		Timestamp:   ts,
		Label:       domain.LabelWhaleSwap,
		AmountSOL:   decimal.RequireFromString(amount),
		Description: desc,
		Signature:   sig,
	}
}

func TestOpen_WritesHeaderOnce(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.Close())

	again, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, again.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, headerLine, string(data))
}

func TestOpen_RejectsForeignHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.csv")
	require.NoError(t, os.WriteFile(path, []byte("Timestamp,Type,Amount,Description\n"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrHeaderMismatch)
}

func TestOpen_RepairsTornHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "torn.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,lab"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, headerLine, string(data))
}

func TestAppend_RowLayout(t *testing.T) {
	s, path := openTemp(t)
	ts := time.Date(2025, 3, 1, 12, 30, 0, 123456789, time.FixedZone("CET", 3600))

	require.NoError(t, s.Append(context.Background(), record(ts, "5xSig", "Swap 150 SOL for USDC", "150")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, headerLine+"2025-03-01T11:30:00.123456789Z,WHALE_SWAP,150.0000,Swap 150 SOL for USDC,5xSig\n", string(data))
}

func TestAppend_QuotedDescriptionRoundTrip(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	desc := "line one, with comma\n\"quoted\" part"
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, record(ts, "sig", desc, "2.000000001")))

	got, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, desc, got[0].Description)
	assert.True(t, got[0].Timestamp.Equal(ts))
	assert.Equal(t, "2.0000", got[0].AmountSOL.StringFixed(4))
	assert.Equal(t, domain.LabelWhaleSwap, got[0].Label)
}

func TestAppend_TruncatesLongDescription(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, record(time.Now(), "sig", strings.Repeat("x", 500), "1")))

	got, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got[0].Description, domain.MaxDescriptionUnits)
}

func TestAppend_Duplicate(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, record(ts, "sig", "", "1")))
	assert.ErrorIs(t, s.Append(ctx, record(ts, "sig", "", "1")), storage.ErrDuplicateKey)

	// Identities survive a reopen.
	require.NoError(t, s.Close())
	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()
	assert.ErrorIs(t, again.Append(ctx, record(ts, "sig", "", "1")), storage.ErrDuplicateKey)
}

// syncFailingFile fails the next Sync after a successful Write.
type syncFailingFile struct {
	logFile
	failNext bool
}

func (f *syncFailingFile) Sync() error {
	if f.failNext {
		f.failNext = false
		return errors.New("input/output error")
	}
	return f.logFile.Sync()
}

func TestAppend_FailedSyncRollsBackRow(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, record(ts, "first", "", "1")))

	f := &syncFailingFile{logFile: s.file, failNext: true}
	s.file = f
	err := s.Append(ctx, record(ts, "unsynced", "", "2"))
	require.ErrorIs(t, err, storage.ErrStoreIO)

	// The failed row is gone and its identity is free for a retry.
	require.NoError(t, s.Append(ctx, record(ts, "unsynced", "", "2")))
	require.NoError(t, s.Append(ctx, record(ts, "third", "", "3")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "unsynced"))

	recs, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "first", recs[0].Signature)
	assert.Equal(t, "unsynced", recs[1].Signature)
	assert.Equal(t, "third", recs[2].Signature)
}

func TestOpen_DropsTornTrailingRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.csv")
	content := headerLine +
		"2025-03-01T00:00:00Z,CAPITAL_FLOW,2.0000,ok,sigA\n" +
		"2025-03-01T00:00:01Z,WHALE_SWAP,150.0000,\"cut mid"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, record(time.Date(2025, 3, 1, 0, 0, 2, 0, time.UTC), "sigB", "", "3")))

	got, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sigA", got[0].Signature)
	assert.Equal(t, "sigB", got[1].Signature)
}

func TestReadAll_SkipsCorruptRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.csv")
	content := headerLine +
		"2025-03-01T00:00:00Z,[CAPITAL FLOW],2.0000,legacy label,sigA\n" +
		"2025-03-01T00:00:01Z,AI_AGENT,0.0000,,sigB\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sigB", got[0].Signature)
}

func TestAppend_Concurrent(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			desc := fmt.Sprintf("event %d, \"%s\"", i, strings.Repeat("z", i))
			if err := s.Append(ctx, record(now, fmt.Sprintf("sig-%03d", i), desc, "1.5")); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}

	// Reads race with appends and must never see a broken row.
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for j := 0; j < 20; j++ {
				recs, err := s.ReadAll(ctx)
				if err != nil {
					t.Errorf("concurrent read: %v", err)
					return
				}
				for _, r := range recs {
					if !strings.HasPrefix(r.Signature, "sig-") {
						t.Errorf("broken record: %+v", r)
					}
				}
			}
		}()
	}
	wg.Wait()
	readers.Wait()

	got, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, n)

	seen := make(map[string]bool, n)
	for _, r := range got {
		seen[r.Signature] = true
		assert.Equal(t, "1.5000", r.AmountSOL.StringFixed(4))
	}
	assert.Len(t, seen, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), headerLine))
}

func TestClosedStore(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.Close())

	_, err := s.ReadAll(context.Background())
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.NoError(t, s.Close())
}
