// Package aggregator turns the recent part of the signal log into a trade decision.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/observability"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage"
)

// Defaults for the trade decision window.
const (
	DefaultLookback            = 10 * time.Minute
	DefaultConfidenceThreshold = 2
)

// ErrInvalidWindow is returned for a non-positive lookback or threshold.
var ErrInvalidWindow = errors.New("invalid aggregation window")

// Aggregator reads the signal store and never writes to it.
type Aggregator struct {
	store   storage.SignalStore
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Options for creating an Aggregator.
type Options struct {
	Store   storage.SignalStore
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// New creates a new Aggregator.
func New(opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		store:   opts.Store,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Aggregate selects records with timestamp > now-lookback. It returns a
// TradeSignal when at least threshold records qualify and nil otherwise.
// A store failure is returned wrapped in storage.ErrStoreIO.
func (a *Aggregator) Aggregate(ctx context.Context, now time.Time, lookback time.Duration, threshold int) (*domain.TradeSignal, error) {
	if lookback <= 0 || threshold <= 0 {
		return nil, fmt.Errorf("%w: lookback=%s threshold=%d", ErrInvalidWindow, lookback, threshold)
	}

	now = now.UTC()
	start := now.Add(-lookback)

	records, err := a.read(ctx, start)
	if err != nil {
		a.metrics.RecordStoreError("read")
		if !errors.Is(err, storage.ErrStoreIO) {
			err = fmt.Errorf("%w: %w", storage.ErrStoreIO, err)
		}
		return nil, fmt.Errorf("read signal log: %w", err)
	}

	window := make([]domain.SignalRecord, 0, len(records))
	for _, r := range records {
		if r.Timestamp.After(start) {
			window = append(window, r)
		}
	}

	fired := len(window) >= threshold
	a.metrics.RecordWindow(len(window), fired)
	a.logger.Debug("aggregated window",
		zap.Time("window_start", start),
		zap.Time("window_end", now),
		zap.Int("records", len(window)),
		zap.Int("threshold", threshold),
	)

	if !fired {
		return nil, nil
	}
	return &domain.TradeSignal{
		WindowStart: start,
		WindowEnd:   now,
		Records:     window,
		Count:       len(window),
	}, nil
}

// read uses a server-side window when the store supports it. The strict
// After filter in Aggregate is applied either way.
func (a *Aggregator) read(ctx context.Context, start time.Time) ([]domain.SignalRecord, error) {
	if sr, ok := a.store.(storage.SinceReader); ok {
		return sr.ReadSince(ctx, start)
	}
	return a.store.ReadAll(ctx)
}
