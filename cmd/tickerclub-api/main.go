package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tickerclub/internal/api"
	"tickerclub/internal/auth"
	"tickerclub/internal/config"
	"tickerclub/internal/db"
	"tickerclub/internal/ledger"
	"tickerclub/internal/lobby"
	"tickerclub/internal/metrics"
	"tickerclub/internal/oracle"
	"tickerclub/internal/social"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	met := metrics.New("tickerclub")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	quoteOracle := oracle.New(
		oracle.NewClient(cfg.OracleURL, cfg.OracleAPIKey, cfg.OracleTimeout),
		oracle.NewRedisCache(redisClient, cfg.QuoteCacheTTL),
		logger, met,
		oracle.Config{
			FreshFor:       cfg.OracleFreshFor,
			RequestTimeout: cfg.OracleTimeout,
			RatePerSecond:  cfg.OracleRatePerSecond,
			RateBurst:      cfg.OracleRateBurst,
		},
	)

	feed := social.NewPublisher(cfg.KafkaBrokers, cfg.FeedTopic)
	defer feed.Close()

	authClient := auth.NewClient(cfg.AuthURL, cfg.AuthAPIKey)
	ledgerSvc := ledger.NewService(pool, logger, quoteOracle, feed, met)
	lobbySvc := lobby.NewService(pool, logger)
	posts := social.NewStore(pool)

	metricsSrv := metrics.StartServer(cfg.MetricsAddr, pool.Ping)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	server := api.New(cfg, logger, authClient, ledgerSvc, lobbySvc, posts)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("tickerclub api listening", "addr", cfg.Addr, "metrics_addr", cfg.MetricsAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
