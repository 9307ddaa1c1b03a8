// Package main runs the signal service:
// - Ingestion (push): webhook → normalize → classify → signal store
// - Execution (scheduled): aggregate window → quote → sign → submit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/aggregator"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/classifier"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/config"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/dedupe"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/execution"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/httpapi"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/ingestion"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/jupiter"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/ledger"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/logger"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/normalization"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/observability"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/retry"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/scheduler"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage"
	chstore "github.com/milamanifest69-lgtm/SolanaProject/internal/storage/clickhouse"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage/csvlog"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage/memory"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage/migrations"
	pgstore "github.com/milamanifest69-lgtm/SolanaProject/internal/storage/postgres"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/wallet"
)

// Server holds all components of the service.
type Server struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	store   storage.SignalStore
	dedupe  dedupe.Cache
	wallet  *wallet.Wallet
	ledger  *ledger.Client
	sched   *scheduler.Scheduler
	httpSrv *http.Server

	started time.Time
	cleanup []func()

	mu        sync.Mutex
	lastCycle *execution.Outcome
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory signal store instead of the configured backend")
	noScheduler := flag.Bool("no-scheduler", false, "Run ingestion only, without the execution scheduler")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("config: %v", err))
		os.Exit(2)
	}
	if *useMemory {
		cfg.Store.Backend = config.StoreMemory
	}
	if *noScheduler {
		cfg.Scheduler.Enabled = false
	}
	if err := cfg.Validate(cfg.Scheduler.Enabled); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("%v", err))
		os.Exit(2)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("logger: %v", err))
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := newServer(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer server.Close()

	printBanner(cfg, server)

	// Channel to signal completion
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", zap.Stringer("signal", sig))
		cancel()

		// A second signal forces exit.
		select {
		case sig := <-sigCh:
			log.Warn("received second signal, forcing exit", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	close(done)

	if code := exitCode(server, log, err); code != 0 {
		_ = log.Sync()
		os.Exit(code)
	}
	log.Info("shutdown complete")
}

// exitCode maps the Run result to a process exit code. On failure it closes
// the server first, since os.Exit skips deferred cleanup.
func exitCode(server *Server, log *zap.Logger, err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	server.Close()
	log.Error("server error", zap.Error(err))
	return 1
}

// newServer builds every component. Any failure here is fatal.
func newServer(ctx context.Context, cfg config.Config, log *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		logger:  log,
		metrics: observability.NewMetrics("mila"),
		started: time.Now(),
	}
	log.Debug("configuration loaded", zap.Any("config", cfg.Redacted()))

	store, closeStore, err := createStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.cleanup = append(s.cleanup, closeStore)

	if cfg.Dedupe.Enabled {
		cache, err := createDedupe(ctx, cfg.Dedupe)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.dedupe = cache
		s.cleanup = append(s.cleanup, func() { _ = cache.Close() })
	}

	threshold, err := cfg.Threshold()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	policy, err := classifier.ParsePolicy(cfg.Significance.Policy)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	registry, err := cfg.WatchedRegistry()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	cls, err := classifier.New(registry, threshold, classifier.WithPolicy(policy))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	pipeline := ingestion.NewPipeline(ingestion.Options{
		Normalizer:    normalization.NewNormalizer(log.Named("normalizer")),
		Classifier:    cls,
		Store:         store,
		Dedupe:        s.dedupe,
		MaxConcurrent: cfg.Ingestion.MaxConcurrent,
		Logger:        log.Named("ingestion"),
		Metrics:       s.metrics,
	})

	router := httpapi.NewRouter(httpapi.Options{
		Processor:    pipeline,
		Metrics:      s.metrics,
		WebhookPath:  cfg.Server.WebhookPath,
		MaxBodyBytes: cfg.Ingestion.MaxBodyBytes,
		Logger:       log.Named("http"),
		Debug:        cfg.Log.Development,
	})
	router.GET("/status", s.handleStatus)
	s.httpSrv = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Scheduler.Enabled {
		if err := s.initExecution(); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// initExecution loads the wallet and builds the scheduler. A wallet that
// cannot be loaded is a configuration error.
func (s *Server) initExecution() error {
	cfg := s.cfg

	w, err := wallet.FromBase58(cfg.Solana.PrivateKey)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", config.ErrConfiguration, config.EnvPrivateKey, err)
	}
	s.wallet = w
	s.cleanup = append(s.cleanup, func() { _ = w.Close() })

	s.ledger = ledger.NewClient(cfg.Solana.RPCURL, ledger.WithSkipPreflight(cfg.Solana.SkipPreflight))
	s.cleanup = append(s.cleanup, func() { _ = s.ledger.Close() })

	jupOpts := []jupiter.ClientOption{jupiter.WithTimeout(cfg.Jupiter.Timeout)}
	if cfg.Jupiter.APIKey != "" {
		jupOpts = append(jupOpts, jupiter.WithAPIKey(cfg.Jupiter.APIKey))
	}

	engine := execution.New(execution.Options{
		Quotes:    jupiter.NewClient(cfg.Jupiter.BaseURL, jupOpts...),
		Signer:    w,
		Submitter: s.ledger,
		Config: execution.Config{
			InputMint:      cfg.Execution.InputMint,
			OutputMint:     cfg.Execution.OutputMint,
			AmountLamports: cfg.Execution.AmountLamports,
			SlippageBps:    cfg.Execution.SlippageBps,
			QuotePolicy:    retry.QuotePolicy,
			SubmitPolicy:   retry.SubmitPolicy,
			DryRun:         cfg.Execution.DryRun,
		},
		Logger:  s.logger.Named("execution").With(zap.Object("wallet", w)),
		Metrics: s.metrics,
	})

	agg := aggregator.New(aggregator.Options{
		Store:   s.store,
		Logger:  s.logger.Named("aggregator"),
		Metrics: s.metrics,
	})

	sched, err := scheduler.New(scheduler.Options{
		Aggregator: agg,
		Executor:   &recordingExecutor{inner: engine, server: s},
		Config: scheduler.Config{
			Interval:            cfg.Scheduler.Interval,
			CycleTimeout:        cfg.Scheduler.CycleTimeout,
			Lookback:            cfg.Aggregator.Lookback,
			ConfidenceThreshold: cfg.Aggregator.ConfidenceThreshold,
		},
		Logger:  s.logger.Named("scheduler"),
		Metrics: s.metrics,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	s.sched = sched
	return nil
}

// createStore opens the configured signal store backend.
func createStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (storage.SignalStore, func(), error) {
	switch cfg.Backend {
	case config.StoreMemory:
		return memory.NewSignalStore(), func() {}, nil

	case config.StorePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		log.Info("postgres ready", zap.Strings("applied_migrations", applied))
		return pgstore.NewSignalStore(pool), pool.Close, nil

	case config.StoreClickhouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		store, err := chstore.NewSignalStore(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open clickhouse signal store: %w", err)
		}
		log.Info("clickhouse ready")
		return store, func() { _ = conn.Close() }, nil

	default:
		store, err := csvlog.Open(cfg.CSVPath, csvlog.WithLogger(log.Named("csvlog")))
		if err != nil {
			return nil, nil, fmt.Errorf("open signal log: %w", err)
		}
		log.Info("signal log ready", zap.String("path", store.Path()))
		return store, func() { _ = store.Close() }, nil
	}
}

func createDedupe(ctx context.Context, cfg config.DedupeConfig) (dedupe.Cache, error) {
	if cfg.RedisURL == "" {
		return dedupe.NewMemoryCache(cfg.TTL), nil
	}
	cache, err := dedupe.NewRedisCache(ctx, cfg.RedisURL, cfg.Prefix, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return cache, nil
}

// Run serves HTTP and runs the scheduler until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if s.sched != nil {
		if err := s.sched.Start(ctx); err != nil {
			return err
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	if s.sched != nil {
		s.sched.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	return runErr
}

// Close releases resources in reverse order of acquisition.
func (s *Server) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

// recordingExecutor keeps the last outcome for /status.
type recordingExecutor struct {
	inner  *execution.Engine
	server *Server
}

func (r *recordingExecutor) Run(ctx context.Context, signal *domain.TradeSignal) *execution.Outcome {
	out := r.inner.Run(ctx, signal)
	r.server.mu.Lock()
	r.server.lastCycle = out
	r.server.mu.Unlock()
	return out
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status           string     `json:"status"`
	Uptime           string     `json:"uptime"`
	StoreBackend     string     `json:"store_backend"`
	Wallet           string     `json:"wallet,omitempty"`
	DryRun           bool       `json:"dry_run"`
	SchedulerEnabled bool       `json:"scheduler_enabled"`
	CycleInFlight    bool       `json:"cycle_in_flight"`
	LastCycle        *CycleInfo `json:"last_cycle,omitempty"`
}

// CycleInfo summarizes the most recent execution cycle.
type CycleInfo struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	FailedAt    string `json:"failed_at,omitempty"`
	TxSignature string `json:"tx_signature,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := StatusResponse{
		Status:           "running",
		Uptime:           time.Since(s.started).Round(time.Second).String(),
		StoreBackend:     s.cfg.Store.Backend,
		DryRun:           s.cfg.Execution.DryRun,
		SchedulerEnabled: s.sched != nil,
	}
	if s.wallet != nil {
		resp.Wallet = s.wallet.Address()
	}
	if s.sched != nil {
		resp.CycleInFlight = s.sched.InFlight()
	}

	s.mu.Lock()
	if out := s.lastCycle; out != nil {
		info := &CycleInfo{
			ID:          out.CycleID,
			State:       out.State.String(),
			FailedAt:    out.FailedAt.String(),
			TxSignature: out.TxSignature,
		}
		if out.Err != nil {
			info.Error = out.Err.Error()
		}
		resp.LastCycle = info
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, resp)
}

func printBanner(cfg config.Config, s *Server) {
	fmt.Println(color.YellowString("  ----------------- MILA signal service -----------------"))
	fmt.Println(color.CyanString("\t    Webhook: "), color.GreenString("%s%s", cfg.Server.HTTPAddr, cfg.Server.WebhookPath))
	fmt.Println(color.CyanString("\t    Signal store: "), color.GreenString("%s", cfg.Store.Backend))
	if s.wallet != nil {
		fmt.Println(color.CyanString("\t    Wallet: "), color.GreenString("%s", s.wallet.Address()))
		mode := color.GreenString("dry run")
		if !cfg.Execution.DryRun {
			mode = color.RedString("LIVE")
		}
		fmt.Println(color.CyanString("\t    Execution: "), mode)
	} else {
		fmt.Println(color.CyanString("\t    Execution: "), color.YellowString("disabled"))
	}
	fmt.Println(color.GreenString("Service running. Press Ctrl+C to stop."))
}
