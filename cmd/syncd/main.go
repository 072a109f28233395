package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/emperorhan/walletsync/internal/config"
	"github.com/emperorhan/walletsync/internal/derive"
	"github.com/emperorhan/walletsync/internal/domain/model"
	"github.com/emperorhan/walletsync/internal/provider"
	"github.com/emperorhan/walletsync/internal/store"
	"github.com/emperorhan/walletsync/internal/store/memory"
	"github.com/emperorhan/walletsync/internal/store/postgres"
	"github.com/emperorhan/walletsync/internal/store/redisq"
	"github.com/emperorhan/walletsync/internal/syncer"
	"github.com/emperorhan/walletsync/internal/tracing"
)

func resolveStore(cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if strings.TrimSpace(cfg.DB.URL) == "" {
		logger.Info("no DB_URL configured, using in-memory store")
		return memory.New(), func() {}, nil
	}

	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database")
	return postgres.NewStore(db), func() { db.Close() }, nil
}

func resolveQueue(cfg *config.Config, logger *slog.Logger) (redisq.Queue, error) {
	redisURL := strings.TrimSpace(cfg.Redis.URL)
	if redisURL == "" {
		logger.Info("no REDIS_URL configured, using in-memory queue")
		return redisq.NewMemory(), nil
	}

	stream, err := redisq.NewStream(redisURL)
	if err != nil {
		return nil, fmt.Errorf("initialize redis queue: %w", err)
	}
	logger.Info("redis queue enabled", "redis_url", redisURL)
	return stream, nil
}

func main() {
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting walletsync",
		"provider_url", cfg.Provider.URL,
		"provider_rps", cfg.Provider.RatePerSecond,
		"poll_interval_ms", cfg.Sync.PollIntervalMs,
		"max_retries", cfg.Sync.MaxRetries,
	)

	shutdownTracing, err := tracing.Init(context.Background(), "walletsync", cfg.Tracing)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	if cfg.Sync.TokenRegistry != "" {
		if err := model.LoadTokenRegistry(cfg.Sync.TokenRegistry); err != nil {
			logger.Error("failed to load token registry", "path", cfg.Sync.TokenRegistry, "error", err)
			os.Exit(1)
		}
		logger.Info("token registry loaded", "path", cfg.Sync.TokenRegistry)
	}

	st, closeStore, err := resolveStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	queue, err := resolveQueue(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize queue", "error", err, "redis_url", cfg.Redis.URL)
		os.Exit(1)
	}
	defer queue.Close()

	client := provider.NewClient(cfg.Provider.URL, logger)
	client.SetRateLimiter(provider.NewLimiter(float64(cfg.Provider.RatePerSecond), cfg.Provider.RateBurst))
	client.SetTimeout(cfg.Provider.Timeout)

	engine := syncer.NewEngine(client, st, derive.NewRegistry(), logger)
	worker := syncer.NewWorker(engine, queue,
		time.Duration(cfg.Sync.PollIntervalMs)*time.Millisecond,
		cfg.Sync.MaxRetries,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, logger)
	})

	g.Go(func() error {
		return worker.Run(gCtx)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("walletsync exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("walletsync shut down gracefully")
}

func runHealthServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
