// Package scheduler drives periodic aggregation and execution cycles.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/execution"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/observability"
)

// Defaults.
const (
	DefaultInterval     = 60 * time.Second
	DefaultCycleTimeout = 45 * time.Second
)

// Tick outcomes.
const (
	TickIdle      = "idle"       // window below threshold
	TickSkipped   = "skipped"    // previous cycle still in flight
	TickReadError = "read_error" // aggregator failed; treated as no signal
	TickExecuted  = "executed"
	TickTimeout   = "timeout"
)

// MinInterval is the finest interval cron's @every honors.
const MinInterval = time.Second

// ErrInvalidInterval is returned for an interval below MinInterval or a
// non-positive timeout or lookback.
var ErrInvalidInterval = errors.New("invalid scheduler interval")

// Aggregator produces a trade signal from recent records.
type Aggregator interface {
	Aggregate(ctx context.Context, now time.Time, lookback time.Duration, threshold int) (*domain.TradeSignal, error)
}

// Executor runs one execution cycle.
type Executor interface {
	Run(ctx context.Context, signal *domain.TradeSignal) *execution.Outcome
}

// Config for the scheduler loop.
type Config struct {
	Interval            time.Duration
	CycleTimeout        time.Duration
	Lookback            time.Duration
	ConfidenceThreshold int
}

// Options for creating a Scheduler.
type Options struct {
	Aggregator Aggregator
	Executor   Executor
	Config     Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Scheduler runs Tick at a fixed interval. At most one execution cycle is
// in flight at any time, including cycles abandoned after a timeout.
type Scheduler struct {
	agg      Aggregator
	exec     Executor
	cfg      Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	cron     *cron.Cron
	inFlight atomic.Bool
	now      func() time.Time
}

// New creates a new Scheduler.
func New(opts Options) (*Scheduler, error) {
	cfg := opts.Config
	if cfg.Interval < MinInterval || cfg.CycleTimeout <= 0 || cfg.Lookback <= 0 {
		return nil, fmt.Errorf("%w: interval=%s timeout=%s lookback=%s",
			ErrInvalidInterval, cfg.Interval, cfg.CycleTimeout, cfg.Lookback)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		agg:     opts.Aggregator,
		exec:    opts.Executor,
		cfg:     cfg,
		logger:  logger,
		metrics: opts.Metrics,
		now:     time.Now,
	}, nil
}

// Start schedules Tick every Interval under baseCtx. Ticks that would
// overlap a running one are skipped and panics are recovered.
func (s *Scheduler) Start(baseCtx context.Context) error {
	cl := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	spec := "@every " + s.cfg.Interval.String()
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(baseCtx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("cycle_timeout", s.cfg.CycleTimeout),
		zap.Duration("lookback", s.cfg.Lookback),
		zap.Int("threshold", s.cfg.ConfidenceThreshold),
	)
	s.cron.Start()
	return nil
}

// Stop stops scheduling and waits for a running tick to return.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Tick runs one aggregation and, if it yields a signal, one execution cycle
// bounded by CycleTimeout. It returns the tick outcome.
func (s *Scheduler) Tick(ctx context.Context) string {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("previous execution cycle still in flight, skipping tick")
		return s.finish(TickSkipped)
	}
	released := false
	defer func() {
		if !released {
			s.inFlight.Store(false)
		}
	}()

	signal, err := s.agg.Aggregate(ctx, s.now(), s.cfg.Lookback, s.cfg.ConfidenceThreshold)
	if err != nil {
		s.logger.Error("aggregation failed", zap.Error(err))
		return s.finish(TickReadError)
	}
	if signal == nil {
		s.logger.Debug("no trade signal in window")
		return s.finish(TickIdle)
	}

	s.logger.Info("trade signal confirmed", zap.Int("signals", signal.Count))

	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	done := make(chan *execution.Outcome, 1)
	released = true
	go func() {
		defer s.inFlight.Store(false)
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("execution cycle panicked", zap.Any("panic", p), zap.Stack("stack"))
				done <- &execution.Outcome{
					State: domain.StateFailed,
					Err:   fmt.Errorf("%w: panic: %v", execution.ErrExternalService, p),
				}
			}
		}()
		done <- s.exec.Run(cycleCtx, signal)
	}()

	select {
	case out := <-done:
		if out != nil && out.Err != nil {
			s.logger.Warn("execution cycle ended",
				zap.String("cycle_id", out.CycleID),
				zap.Stringer("state", out.State),
				zap.Stringer("failed_at", out.FailedAt),
				zap.Error(out.Err),
			)
		}
		return s.finish(TickExecuted)
	case <-cycleCtx.Done():
		select {
		case <-done:
			// Finished as the deadline hit.
			return s.finish(TickExecuted)
		default:
		}
		s.logger.Error("execution cycle timed out",
			zap.Stringer("state", domain.StateFailed),
			zap.Duration("timeout", s.cfg.CycleTimeout),
			zap.Error(cycleCtx.Err()),
		)
		return s.finish(TickTimeout)
	}
}

// InFlight reports whether an execution cycle is running.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Scheduler) finish(outcome string) string {
	s.metrics.RecordTick(outcome)
	return outcome
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
