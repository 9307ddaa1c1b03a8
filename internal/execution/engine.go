// Package execution runs one quote → unsigned tx → sign → submit cycle.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/jupiter"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/observability"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/retry"
)

// QuoteProvider is the swap aggregator.
type QuoteProvider interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)
	SwapTransaction(ctx context.Context, quote *domain.Quote, userPublicKey string) ([]byte, error)
}

// Signer holds the signing key.
type Signer interface {
	Address() string
	SignTransaction(raw []byte) ([]byte, solana.Signature, error)
}

// Submitter broadcasts signed transactions.
type Submitter interface {
	Submit(ctx context.Context, signed []byte) (string, error)
}

// Config is the fixed trade policy of every cycle.
type Config struct {
	InputMint      string
	OutputMint     string
	AmountLamports uint64
	SlippageBps    uint16
	QuotePolicy    retry.Policy // also used for the unsigned-transaction request
	SubmitPolicy   retry.Policy
	DryRun         bool // stop after signing
}

// DefaultConfig trades 0.01 SOL into USDC with 1% slippage, in dry-run mode.
func DefaultConfig() Config {
	return Config{
		InputMint:      domain.WrappedSOLMint,
		OutputMint:     domain.USDCMint,
		AmountLamports: domain.LamportsPerSOL / 100,
		SlippageBps:    100,
		QuotePolicy:    retry.QuotePolicy,
		SubmitPolicy:   retry.SubmitPolicy,
		DryRun:         true,
	}
}

// Outcome is the terminal result of one cycle.
type Outcome struct {
	CycleID     string
	State       domain.ExecutionState // SUCCEEDED or FAILED
	FailedAt    domain.ExecutionState // stage that failed; empty on success
	Quote       *domain.Quote
	TxSignature string
	Attempts    map[domain.ExecutionState]int
	Err         error
	DryRun      bool
	Duration    time.Duration
}

// Succeeded reports whether the cycle reached SUCCEEDED.
func (o *Outcome) Succeeded() bool {
	return o.State == domain.StateSucceeded
}

// Engine runs execution cycles. It is not safe to run two cycles at once;
// the scheduler guarantees single flight.
type Engine struct {
	quotes    QuoteProvider
	signer    Signer
	submitter Submitter
	cfg       Config
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// Options for creating an Engine.
type Options struct {
	Quotes    QuoteProvider
	Signer    Signer
	Submitter Submitter
	Config    Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// New creates a new Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		quotes:    opts.Quotes,
		signer:    opts.Signer,
		submitter: opts.Submitter,
		cfg:       opts.Config,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// cycle carries the state of one Run.
type cycle struct {
	e       *Engine
	out     *Outcome
	logger  *zap.Logger
	state   domain.ExecutionState
	started time.Time
}

// Run executes one cycle to a terminal state. It never panics on collaborator
// errors; every failure is reported in the Outcome.
func (e *Engine) Run(ctx context.Context, signal *domain.TradeSignal) *Outcome {
	id := uuid.NewString()
	c := &cycle{
		e: e,
		out: &Outcome{
			CycleID:  id,
			Attempts: make(map[domain.ExecutionState]int),
			DryRun:   e.cfg.DryRun,
		},
		logger:  e.logger.With(zap.String("cycle_id", id)),
		state:   domain.StateIdle,
		started: e.now(),
	}
	if signal != nil {
		c.logger.Info("execution cycle started",
			zap.Int("signals", signal.Count),
			zap.Time("window_start", signal.WindowStart),
			zap.Bool("dry_run", e.cfg.DryRun),
		)
	}

	quote, ok := c.quote(ctx)
	if !ok {
		return c.out
	}
	unsigned, ok := c.unsignedTx(ctx, quote)
	if !ok {
		return c.out
	}
	signed, sig, ok := c.sign(ctx, unsigned)
	if !ok {
		return c.out
	}

	if e.cfg.DryRun {
		c.out.TxSignature = sig.String()
		c.logger.Info("dry run: signed transaction not submitted", zap.String("signature", c.out.TxSignature))
		return c.succeed()
	}

	txSig, ok := c.submit(ctx, signed)
	if !ok {
		return c.out
	}
	c.out.TxSignature = txSig
	return c.succeed()
}

func (c *cycle) quote(ctx context.Context) (*domain.Quote, bool) {
	if !c.enter(ctx, domain.StateQuoting) {
		return nil, false
	}

	req := domain.QuoteRequest{
		InputMint:       c.e.cfg.InputMint,
		OutputMint:      c.e.cfg.OutputMint,
		AmountBaseUnits: c.e.cfg.AmountLamports,
		SlippageBps:     c.e.cfg.SlippageBps,
	}

	var quote *domain.Quote
	err := c.call(ctx, "quote", c.e.cfg.QuotePolicy, func(ctx context.Context) error {
		q, err := c.e.quotes.Quote(ctx, req)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return nil, c.fail(classify(err))
	}

	c.out.Quote = quote
	c.logger.Info("quote received",
		zap.String("out_amount", quote.OutAmount),
		zap.String("route", quote.RouteToken),
	)
	return quote, true
}

func (c *cycle) unsignedTx(ctx context.Context, quote *domain.Quote) ([]byte, bool) {
	if !c.enter(ctx, domain.StateAwaitingUnsignedTx) {
		return nil, false
	}

	var raw []byte
	err := c.call(ctx, "swap_transaction", c.e.cfg.QuotePolicy, func(ctx context.Context) error {
		tx, err := c.e.quotes.SwapTransaction(ctx, quote, c.e.signer.Address())
		if err != nil {
			return err
		}
		raw = tx
		return nil
	})
	if err != nil {
		return nil, c.fail(classify(err))
	}
	if len(raw) == 0 {
		return nil, c.fail(fmt.Errorf("%w: empty unsigned transaction", ErrMissingField))
	}
	return raw, true
}

func (c *cycle) sign(ctx context.Context, unsigned []byte) ([]byte, solana.Signature, bool) {
	if !c.enter(ctx, domain.StateSigning) {
		return nil, solana.Signature{}, false
	}

	c.out.Attempts[domain.StateSigning] = 1
	signed, sig, err := c.e.signer.SignTransaction(unsigned)
	if err != nil {
		return nil, solana.Signature{}, c.fail(fmt.Errorf("%w: %w", ErrSigning, err))
	}
	return signed, sig, true
}

func (c *cycle) submit(ctx context.Context, signed []byte) (string, bool) {
	if !c.enter(ctx, domain.StateSubmitting) {
		return "", false
	}

	var txSig string
	err := c.call(ctx, "submit", c.e.cfg.SubmitPolicy, func(ctx context.Context) error {
		s, err := c.e.submitter.Submit(ctx, signed)
		if err != nil {
			return err
		}
		txSig = s
		return nil
	})
	if err != nil {
		return "", c.fail(classify(err))
	}
	return txSig, true
}

// enter moves to stage unless the cycle context is already done.
func (c *cycle) enter(ctx context.Context, stage domain.ExecutionState) bool {
	if err := ctx.Err(); err != nil {
		c.state = stage
		c.fail(fmt.Errorf("%w before %s: %w", ErrAbandoned, stage, err))
		return false
	}
	c.logger.Debug("state transition", zap.Stringer("from", c.state), zap.Stringer("to", stage))
	c.state = stage
	return true
}

// call runs op under policy, recording attempts and stage latency.
func (c *cycle) call(ctx context.Context, name string, policy retry.Policy, op func(context.Context) error) error {
	start := time.Now()
	attempts, err := retry.Do(ctx, policy, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil {
			c.e.metrics.RecordCallAttempt(name, "error")
		} else {
			c.e.metrics.RecordCallAttempt(name, "ok")
		}
		return err
	}, func(err error, attempt int, wait time.Duration) {
		c.logger.Warn("external call failed, retrying",
			zap.String("call", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	})
	c.out.Attempts[c.state] = attempts
	c.e.metrics.RecordStage(c.state.String(), time.Since(start))
	return err
}

func (c *cycle) fail(err error) bool {
	c.out.State = domain.StateFailed
	c.out.FailedAt = c.state
	c.out.Err = err
	c.out.Duration = c.e.now().Sub(c.started)
	c.e.metrics.RecordCycle(domain.StateFailed.String(), c.state.String())
	c.logger.Error("execution cycle failed",
		zap.Stringer("stage", c.state),
		zap.Int("attempts", c.out.Attempts[c.state]),
		zap.Error(err),
	)
	return false
}

func (c *cycle) succeed() *Outcome {
	c.out.State = domain.StateSucceeded
	c.out.Duration = c.e.now().Sub(c.started)
	c.e.metrics.RecordCycle(domain.StateSucceeded.String(), "")
	c.logger.Info("execution cycle succeeded",
		zap.String("signature", c.out.TxSignature),
		zap.Bool("dry_run", c.out.DryRun),
		zap.Duration("elapsed", c.out.Duration),
	)
	return c.out
}

// classify maps a collaborator error onto the execution taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrAbandoned, err)
	case errors.Is(err, jupiter.ErrMissingField):
		return fmt.Errorf("%w: %w", ErrMissingField, err)
	default:
		return fmt.Errorf("%w: %w", ErrExternalService, err)
	}
}
