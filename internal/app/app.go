package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/api"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/api/handler"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/config"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/nonce"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/observability"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/processor"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/ratelimit"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/service"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/store"
)

// Run bootstraps the HTTP server, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		orders store.OrderStore
		carts  store.CartClearer
		pool   *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		pool, err = store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		pg := store.NewPostgresStore(pool)
		orders, carts = pg, pg
	} else {
		logger.Warn("no database configured, using in-memory order store")
		mem := store.NewMemoryStore()
		orders, carts = mem, mem
	}

	var (
		nonces   nonce.Store
		redisCmd redis.Cmdable
	)
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		redisCmd = redisClient
		nonces = nonce.NewRedisStore(redisClient, cfg.NonceTTL)
	} else {
		logger.Warn("no redis configured, using in-memory nonce store")
		nonces = nonce.NewMemoryStore(cfg.NonceTTL)
	}

	proc := processor.NewClient(cfg.ProcessorURL, cfg.RequestTimeout, cfg.StatusTimeout)

	limiter := ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow)
	go sweepLoop(ctx, limiter, cfg.RateLimitWindow)

	initiator := service.NewInitiator(orders, proc, limiter, nonces, cfg)
	reconciler := service.NewReconciler(orders, carts, proc, cfg.SuccessStatus, cfg.ShopURL)

	router := api.NewRouter(api.Deps{
		Webhook:   handler.NewWebhookHandler(reconciler, cfg.ActiveWebhookSecret()),
		Checkout:  handler.NewCheckoutHandler(initiator),
		Status:    handler.NewStatusHandler(reconciler, nonces),
		Health:    handler.NewHealthHandler(pool, redisCmd),
		Logger:    logger,
		PublicRPS: cfg.PublicRateLimitRPS,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			zap.String("port", cfg.HTTPPort),
			zap.Bool("sandbox", cfg.Sandbox),
		)
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// sweepLoop drops stale rate-limit buckets so quiet clients do not pin
// memory for the lifetime of the process.
func sweepLoop(ctx context.Context, limiter *ratelimit.Limiter, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Sweep(now)
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
