// Package ingestion runs delivered indexer batches through normalization,
// classification and the signal store.
package ingestion

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/classifier"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/dedupe"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/normalization"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/observability"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage"
)

// DefaultMaxConcurrent bounds batches processed at once.
const DefaultMaxConcurrent = 8

// Stats summarizes one processed batch.
type Stats struct {
	Events      int
	Malformed   int
	Duplicates  int
	Filtered    int
	Stored      int
	StoreErrors int
}

// Pipeline processes delivered batches. It is safe for concurrent use.
type Pipeline struct {
	normalizer *normalization.Normalizer
	classifier *classifier.Classifier
	store      storage.SignalStore
	dedupe     dedupe.Cache
	sem        *semaphore.Weighted
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// Options contains configuration for creating a Pipeline.
type Options struct {
	Normalizer    *normalization.Normalizer
	Classifier    *classifier.Classifier
	Store         storage.SignalStore
	Dedupe        dedupe.Cache // optional
	MaxConcurrent int64
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// NewPipeline creates a new Pipeline.
func NewPipeline(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	n := opts.Normalizer
	if n == nil {
		n = normalization.NewNormalizer(logger)
	}
	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}
	return &Pipeline{
		normalizer: n,
		classifier: opts.Classifier,
		store:      opts.Store,
		dedupe:     opts.Dedupe,
		sem:        semaphore.NewWeighted(limit),
		logger:     logger,
		metrics:    opts.Metrics,
		now:        time.Now,
	}
}

// Process handles one delivered payload. Failures are logged and counted,
// never returned: the producer always gets an acknowledgement. It returns
// false only when ctx ended before a processing slot was free.
func (p *Pipeline) Process(ctx context.Context, payload []byte) (Stats, bool) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.logger.Warn("batch dropped waiting for a processing slot", zap.Error(err))
		return Stats{}, false
	}
	defer p.sem.Release(1)

	start := time.Now()
	var st Stats

	res, err := p.normalizer.Normalize(payload)
	if err != nil {
		p.logger.Warn("malformed payload", zap.Int("bytes", len(payload)), zap.Error(err))
		p.metrics.RecordMalformedPayload()
		st.Malformed = 1
		return st, true
	}
	st.Malformed = len(res.Skipped)

	for _, ev := range res.Events {
		st.Events++
		p.handle(ctx, ev, &st)
	}

	p.metrics.RecordBatch(st.Events, st.Malformed, time.Since(start), st.StoreErrors == 0)
	p.logger.Debug("batch processed",
		zap.Int("events", st.Events),
		zap.Int("malformed", st.Malformed),
		zap.Int("duplicates", st.Duplicates),
		zap.Int("filtered", st.Filtered),
		zap.Int("stored", st.Stored),
	)
	return st, true
}

func (p *Pipeline) handle(ctx context.Context, ev *domain.TransactionEvent, st *Stats) {
	logger := p.logger.With(zap.String("signature", ev.Signature))

	tracked := p.dedupe != nil && ev.Signature != normalization.MissingSignature
	if tracked {
		seen, err := p.dedupe.Seen(ctx, ev.Signature)
		switch {
		case err != nil:
			logger.Warn("dedupe lookup failed, processing anyway", zap.Error(err))
			tracked = false
		case seen:
			logger.Debug("redelivered event skipped")
			p.metrics.RecordDedupeHit()
			st.Duplicates++
			return
		}
	}

	res := p.classifier.Classify(ev)
	if !p.classifier.IsSignificant(res) {
		logger.Debug("event below significance",
			zap.Stringer("label", res.Label),
			zap.String("amount_sol", res.AmountSOL.String()),
		)
		p.metrics.RecordFiltered()
		st.Filtered++
		return
	}

	rec := domain.NewSignalRecord(p.now(), ev, res)
	if err := p.store.Append(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			logger.Debug("signal already stored")
			st.Duplicates++
			return
		}
		logger.Error("failed to store signal", zap.Error(err))
		p.metrics.RecordStoreError("append")
		st.StoreErrors++
		if tracked {
			// Let a redelivery try again.
			if ferr := p.dedupe.Forget(ctx, ev.Signature); ferr != nil {
				logger.Warn("dedupe forget failed", zap.Error(ferr))
			}
		}
		return
	}

	p.metrics.RecordSignalStored(res.Label.String())
	st.Stored++
	logger.Info("signal stored",
		zap.Stringer("label", res.Label),
		zap.String("amount_sol", res.AmountSOL.StringFixed(4)),
		zap.String("matched", res.MatchedAddress),
	)
}
