package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/okian/hoops/internal/adapters/http/api"
	"github.com/okian/hoops/internal/adapters/http/site"
	"github.com/okian/hoops/internal/adapters/http/swagger"
	"github.com/okian/hoops/internal/adapters/pubsub"
	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/adapters/repository/postgres"
	"github.com/okian/hoops/internal/adapters/repository/sqlite"
	service "github.com/okian/hoops/internal/app"
	"github.com/okian/hoops/internal/config"
	"github.com/okian/hoops/internal/domain/dedupe"
	"github.com/okian/hoops/internal/domain/types"
	"github.com/okian/hoops/pkg/logger"
	"github.com/okian/hoops/pkg/metrics"
)

// HTTP server timeout constants. There is no write timeout: live sockets
// stay open for the whole game.
const (
	readTimeout           = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't configured yet.
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	opts, err := metricsOptions(cfg)
	if err != nil {
		log.Error(ctx, "invalid metrics config", logger.Error(err))
		os.Exit(1)
	}
	metrics.Init(opts...)

	if err := run(ctx, cfg); err != nil {
		log.Error(ctx, "hoops exited", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the backends, starts the service and serves HTTP until ctx ends.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	var rdb redis.UniversalClient
	if cfg.Broker == config.BackendRedis || cfg.IdempotencyBackend == config.BackendRedis {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = store.Close()
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	svc := service.New(serviceOptions(cfg, store, rdb)...)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.Store),
			logger.String("broker", cfg.Broker))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sampleRuntime(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info(context.Background(), "server stopped")
	return err
}

// openStore opens the configured event store.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, postgres.Config{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		return repository.NewMemoryStore(), nil
	}
}

// serviceOptions maps the config onto service options. rdb may be nil when
// no redis backend is configured.
func serviceOptions(cfg *config.Config, store repository.Store, rdb redis.UniversalClient) []service.Option {
	opts := []service.Option{
		service.WithLogger(logger.Named("service")),
		service.WithStore(store),
		service.WithRelayWorkers(cfg.RelayWorkers),
		service.WithQueueSize(cfg.FeedQueueSize),
		service.WithStatusClearAfter(cfg.StatusClearAfter()),
		service.WithRefreshInterval(cfg.DisplayRefreshInterval()),
		service.WithGamesPlayedPolicy(types.GamesPlayedPolicy(cfg.GamesPlayedPolicy)),
		service.WithResultPolicy(service.ResultPolicy(cfg.ResultPolicy)),
		service.WithRankingLimit(cfg.RankingLimit),
	}
	if cfg.Broker == config.BackendRedis && rdb != nil {
		opts = append(opts, service.WithBroker(pubsub.NewRedisBroker(rdb)))
	}
	if cfg.IdempotencyBackend == config.BackendRedis && rdb != nil {
		opts = append(opts, service.WithDeduper(dedupe.NewRedisDeduper(rdb, dedupe.WithTTL(cfg.IdempotencyTTL()))))
	} else {
		opts = append(opts, service.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.IdempotencySize))))
	}
	return opts
}

// newHandler registers the display page, docs and API routes and applies CORS.
func newHandler(ctx context.Context, cfg *config.Config, svc *service.Service) http.Handler {
	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)
	server := api.NewServer(svc, svc, api.WithAllowedOrigins(cfg.AllowedOrigins()))
	server.Register(ctx, mux)
	return server.Handler(mux)
}

// metricsOptions maps the config onto metric names and buckets.
func metricsOptions(cfg *config.Config) ([]metrics.Option, error) {
	buckets, err := cfg.LatencyBuckets()
	if err != nil {
		return nil, err
	}
	return []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(buckets),
	}, nil
}

// sampleRuntime refreshes the system gauges until ctx ends.
func sampleRuntime(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()
	metrics.SampleRuntime()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SampleRuntime()
		}
	}
}
