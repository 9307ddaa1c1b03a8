// Package config loads runtime configuration from YAML, .env and MILA_* variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/classifier"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
)

// ErrConfiguration marks an unusable configuration. It is fatal at startup.
var ErrConfiguration = errors.New("configuration error")

// Environment variables holding secrets. They are read without prefix.
const (
	EnvPrivateKey = "SOLANA_PRIVATE_KEY"
	EnvRPCURL     = "SOLANA_RPC_URL"
)

// Store backends.
const (
	StoreCSV        = "csv"
	StoreMemory     = "memory"
	StorePostgres   = "postgres"
	StoreClickhouse = "clickhouse"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Store        StoreConfig        `mapstructure:"store"`
	Dedupe       DedupeConfig       `mapstructure:"dedupe"`
	Ingestion    IngestionConfig    `mapstructure:"ingestion"`
	Significance SignificanceConfig `mapstructure:"significance"`
	Registry     []RegistryEntry    `mapstructure:"registry"`
	Aggregator   AggregatorConfig   `mapstructure:"aggregator"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Execution    ExecutionConfig    `mapstructure:"execution"`
	Jupiter      JupiterConfig      `mapstructure:"jupiter"`
	Solana       SolanaConfig       `mapstructure:"solana"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	WebhookPath     string        `mapstructure:"webhook_path"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type StoreConfig struct {
	Backend       string `mapstructure:"backend"`
	CSVPath       string `mapstructure:"csv_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
}

type DedupeConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	TTL      time.Duration `mapstructure:"ttl"`
	RedisURL string        `mapstructure:"redis_url"` // empty uses the in-process cache
	Prefix   string        `mapstructure:"prefix"`
}

type IngestionConfig struct {
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
	MaxBodyBytes  int64 `mapstructure:"max_body_bytes"`
}

type SignificanceConfig struct {
	ThresholdSOL string `mapstructure:"threshold_sol"`
	Policy       string `mapstructure:"policy"`
}

type RegistryEntry struct {
	Address string `mapstructure:"address"`
	Name    string `mapstructure:"name"`
	Role    string `mapstructure:"role"`
}

type AggregatorConfig struct {
	Lookback            time.Duration `mapstructure:"lookback"`
	ConfidenceThreshold int           `mapstructure:"confidence_threshold"`
}

type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
}

type ExecutionConfig struct {
	InputMint      string `mapstructure:"input_mint"`
	OutputMint     string `mapstructure:"output_mint"`
	AmountLamports uint64 `mapstructure:"amount_lamports"`
	SlippageBps    uint16 `mapstructure:"slippage_bps"`
	DryRun         bool   `mapstructure:"dry_run"`
}

type JupiterConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SolanaConfig struct {
	RPCURL        string `mapstructure:"rpc_url"`
	PrivateKey    string `mapstructure:"private_key"`
	SkipPreflight bool   `mapstructure:"skip_preflight"`
}

// Load reads .env (if present), then path (if non-empty), then MILA_*
// variables. SOLANA_PRIVATE_KEY and SOLANA_RPC_URL fill the solana section.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: load .env: %w", ErrConfiguration, err)
	}

	v := viper.New()
	v.SetEnvPrefix("MILA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %w", ErrConfiguration, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode: %w", ErrConfiguration, err)
	}

	if s := os.Getenv(EnvPrivateKey); s != "" {
		cfg.Solana.PrivateKey = s
	}
	if s := os.Getenv(EnvRPCURL); s != "" {
		cfg.Solana.RPCURL = s
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":5000")
	v.SetDefault("server.webhook_path", "/webhook")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", true)

	v.SetDefault("store.backend", StoreCSV)
	v.SetDefault("store.csv_path", "ARCHIVE/intelligence_log.csv")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.clickhouse_dsn", "")

	v.SetDefault("dedupe.enabled", true)
	v.SetDefault("dedupe.ttl", "10m")
	v.SetDefault("dedupe.redis_url", "")
	v.SetDefault("dedupe.prefix", "mila:sig:")

	v.SetDefault("ingestion.max_concurrent", 8)
	v.SetDefault("ingestion.max_body_bytes", 4<<20)

	v.SetDefault("significance.threshold_sol", "100")
	v.SetDefault("significance.policy", string(classifier.PolicyOr))

	v.SetDefault("aggregator.lookback", "10m")
	v.SetDefault("aggregator.confidence_threshold", 2)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.cycle_timeout", "45s")

	v.SetDefault("execution.input_mint", domain.WrappedSOLMint)
	v.SetDefault("execution.output_mint", domain.USDCMint)
	v.SetDefault("execution.amount_lamports", domain.LamportsPerSOL/100)
	v.SetDefault("execution.slippage_bps", 100)
	v.SetDefault("execution.dry_run", true)

	v.SetDefault("jupiter.base_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("jupiter.api_key", "")
	v.SetDefault("jupiter.timeout", "15s")

	v.SetDefault("solana.rpc_url", "")
	v.SetDefault("solana.private_key", "")
	v.SetDefault("solana.skip_preflight", false)
}

// Validate checks the configuration. Every failure wraps ErrConfiguration.
// requireWallet is false when the scheduler is disabled.
func (c *Config) Validate(requireWallet bool) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if requireWallet {
		if c.Solana.PrivateKey == "" {
			add("%s is not set", EnvPrivateKey)
		}
		if c.Solana.RPCURL == "" {
			add("%s is not set", EnvRPCURL)
		} else if u, err := url.Parse(c.Solana.RPCURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("%s is not a valid URL", EnvRPCURL)
		}
	}

	switch c.Store.Backend {
	case StoreCSV:
		if c.Store.CSVPath == "" {
			add("store.csv_path is empty")
		}
	case StoreMemory:
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			add("store.postgres_dsn is empty")
		}
	case StoreClickhouse:
		if c.Store.ClickhouseDSN == "" {
			add("store.clickhouse_dsn is empty")
		}
	default:
		add("unknown store.backend %q", c.Store.Backend)
	}

	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		add("server.webhook_path must start with /")
	}
	if c.Ingestion.MaxConcurrent <= 0 {
		add("ingestion.max_concurrent must be positive")
	}
	if _, err := c.Threshold(); err != nil {
		errs = append(errs, err)
	}
	if _, err := classifier.ParsePolicy(c.Significance.Policy); err != nil {
		add("significance.policy: %w", err)
	}
	if _, err := c.WatchedRegistry(); err != nil {
		errs = append(errs, err)
	}

	if c.Aggregator.Lookback <= 0 {
		add("aggregator.lookback must be positive")
	}
	if c.Aggregator.ConfidenceThreshold < 1 {
		add("aggregator.confidence_threshold must be at least 1")
	}
	if c.Scheduler.Interval < time.Second {
		add("scheduler.interval must be at least 1s")
	}
	if c.Scheduler.CycleTimeout <= 0 {
		add("scheduler.cycle_timeout must be positive")
	}
	if c.Dedupe.Enabled && c.Dedupe.TTL <= 0 {
		add("dedupe.ttl must be positive")
	}
	if c.Execution.AmountLamports == 0 {
		add("execution.amount_lamports must be positive")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
}

// Threshold parses the significance threshold in SOL.
func (c *Config) Threshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Significance.ThresholdSOL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("significance.threshold_sol %q: %w", c.Significance.ThresholdSOL, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("significance.threshold_sol must not be negative")
	}
	return d, nil
}

// WatchedRegistry builds the watched-address registry. An empty list uses
// the built-in defaults.
func (c *Config) WatchedRegistry() (*classifier.Registry, error) {
	if len(c.Registry) == 0 {
		return classifier.DefaultRegistry(), nil
	}
	entries := make([]classifier.WatchedAddress, 0, len(c.Registry))
	for _, e := range c.Registry {
		entries = append(entries, classifier.WatchedAddress{
			Address: e.Address,
			Name:    e.Name,
			Role:    domain.Role(strings.ToUpper(e.Role)),
		})
	}
	r, err := classifier.NewRegistry(entries...)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return r, nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.Solana.PrivateKey != "" {
		c.Solana.PrivateKey = "[redacted]"
	}
	if c.Jupiter.APIKey != "" {
		c.Jupiter.APIKey = "[redacted]"
	}
	c.Store.PostgresDSN = redactURL(c.Store.PostgresDSN)
	c.Store.ClickhouseDSN = redactURL(c.Store.ClickhouseDSN)
	c.Dedupe.RedisURL = redactURL(c.Dedupe.RedisURL)
	c.Solana.RPCURL = redactURL(c.Solana.RPCURL)
	return c
}

func redactURL(s string) string {
	u, err := url.Parse(s)
	if err != nil || s == "" {
		return s
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}
