// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) initializer to build a Config with defaults.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/okian/hoops/internal/domain/types"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Broker and idempotency backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Result policies.
const (
	ResultAsserted = "asserted"
	ResultVerified = "verified"
	ResultDerived  = "derived"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the event store: memory, sqlite or postgres.
	Store       string `koanf:"store"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// Broker selects the notification transport: memory or redis.
	Broker        string `koanf:"broker"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// FeedQueueSize bounds the change feed queue; RelayWorkers drain it.
	FeedQueueSize int `koanf:"feed_queue_size"`
	RelayWorkers  int `koanf:"relay_workers"`

	// IdempotencySize bounds the in-memory ledger. IdempotencyBackend is
	// memory or redis; redis keys expire after IdempotencyTTLSec.
	IdempotencySize    int    `koanf:"idempotency_size"`
	IdempotencyBackend string `koanf:"idempotency_backend"`
	IdempotencyTTLSec  int    `koanf:"idempotency_ttl_sec"`

	// StatusClearAfterMS is how long a controller shows a transient status.
	StatusClearAfterMS int `koanf:"status_clear_after_ms"`
	// DisplayRefreshIntervalMS is the period of a display's full refresh.
	DisplayRefreshIntervalMS int `koanf:"display_refresh_interval_ms"`

	GamesPlayedPolicy string `koanf:"games_played_policy"`
	ResultPolicy      string `koanf:"result_policy"`
	RankingLimit      int    `koanf:"ranking_limit"`

	// CORSAllowedOrigins is a comma separated origin list.
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`

	// Metric names are <namespace>_<subsystem>_<name>. MetricsBuckets is a
	// comma separated, increasing list of latency buckets in milliseconds;
	// empty keeps the Prometheus defaults.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	MetricsBuckets   string `koanf:"metrics_buckets"`
}

var metricNamePart = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// New creates a Config holding the defaults. The context is reserved for
// future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		Store:                    StoreMemory,
		SQLitePath:               "hoops.db",
		Broker:                   BackendMemory,
		RedisAddr:                "localhost:6379",
		FeedQueueSize:            10_000,
		RelayWorkers:             runtime.NumCPU(),
		IdempotencySize:          50_000,
		IdempotencyBackend:       BackendMemory,
		IdempotencyTTLSec:        86_400,
		StatusClearAfterMS:       2_000,
		DisplayRefreshIntervalMS: 30_000,
		GamesPlayedPolicy:        string(types.PolicyDistinctGames),
		ResultPolicy:             ResultVerified,
		RankingLimit:             30,
		CORSAllowedOrigins:       "*",
		MetricsNamespace:         "hoops",
		MetricsSubsystem:         "scorebook",
	}
}

// StatusClearAfter returns StatusClearAfterMS as a duration.
func (c *Config) StatusClearAfter() time.Duration {
	return time.Duration(c.StatusClearAfterMS) * time.Millisecond
}

// DisplayRefreshInterval returns DisplayRefreshIntervalMS as a duration.
func (c *Config) DisplayRefreshInterval() time.Duration {
	return time.Duration(c.DisplayRefreshIntervalMS) * time.Millisecond
}

// IdempotencyTTL returns IdempotencyTTLSec as a duration.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLSec) * time.Second
}

// AllowedOrigins splits CORSAllowedOrigins.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// LatencyBuckets parses MetricsBuckets. It returns nil when unset.
func (c *Config) LatencyBuckets() ([]float64, error) {
	if strings.TrimSpace(c.MetricsBuckets) == "" {
		return nil, nil
	}
	parts := strings.Split(c.MetricsBuckets, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: metrics_buckets: %w", ErrInvalidConfig, err)
		}
		if len(out) > 0 && v <= out[len(out)-1] {
			return nil, fmt.Errorf("%w: metrics_buckets must increase", ErrInvalidConfig)
		}
		out = append(out, v)
	}
	return out, nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !oneOf(c.Store, StoreMemory, StoreSQLite, StorePostgres):
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case c.Store == StoreSQLite && strings.TrimSpace(c.SQLitePath) == "":
		return fmt.Errorf("%w: sqlite_path is required", ErrInvalidConfig)
	case c.Store == StorePostgres && strings.TrimSpace(c.PostgresDSN) == "":
		return fmt.Errorf("%w: postgres_dsn is required", ErrInvalidConfig)
	case !oneOf(c.Broker, BackendMemory, BackendRedis):
		return fmt.Errorf("%w: unknown broker %q", ErrInvalidConfig, c.Broker)
	case !oneOf(c.IdempotencyBackend, BackendMemory, BackendRedis):
		return fmt.Errorf("%w: unknown idempotency_backend %q", ErrInvalidConfig, c.IdempotencyBackend)
	case (c.Broker == BackendRedis || c.IdempotencyBackend == BackendRedis) && c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr is required", ErrInvalidConfig)
	case c.FeedQueueSize <= 0:
		return fmt.Errorf("%w: feed_queue_size must be positive", ErrInvalidConfig)
	case c.RelayWorkers <= 0:
		return fmt.Errorf("%w: relay_workers must be positive", ErrInvalidConfig)
	case c.IdempotencySize < 0:
		return fmt.Errorf("%w: idempotency_size must not be negative", ErrInvalidConfig)
	case c.StatusClearAfterMS < 0 || c.DisplayRefreshIntervalMS < 0:
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidConfig)
	case !oneOf(c.ResultPolicy, ResultAsserted, ResultVerified, ResultDerived):
		return fmt.Errorf("%w: unknown result_policy %q", ErrInvalidConfig, c.ResultPolicy)
	case c.RankingLimit <= 0:
		return fmt.Errorf("%w: ranking_limit must be positive", ErrInvalidConfig)
	}
	if _, err := types.ParsePolicy(c.GamesPlayedPolicy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !metricNamePart.MatchString(c.MetricsNamespace) || !metricNamePart.MatchString(c.MetricsSubsystem) {
		return fmt.Errorf("%w: metrics_namespace and metrics_subsystem must be metric name parts", ErrInvalidConfig)
	}
	if _, err := c.LatencyBuckets(); err != nil {
		return err
	}
	if !oneOf(strings.ToLower(c.LogFormat), "text", "json") {
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
