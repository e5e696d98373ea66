package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tickerclub/internal/config"
	"tickerclub/internal/db"
	"tickerclub/internal/lobby"
	"tickerclub/internal/metrics"
	"tickerclub/internal/social"
)

const consumerGroup = "tickerclub-feed"

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

	store := social.NewStore(pool)
	lobbySvc := lobby.NewService(pool, logger)

	metricsSrv := metrics.StartServer(cfg.MetricsAddr, pool.Ping)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	go sweepExpiredGames(ctx, logger, lobbySvc, cfg.GameSweepEvery)

	reader := social.NewReader(cfg.KafkaBrokers, cfg.FeedTopic, consumerGroup)
	defer reader.Close()

	logger.Info("feed worker started", "topic", cfg.FeedTopic, "group", consumerGroup)
	if err := social.NewConsumer(reader, store, logger).Run(ctx); err != nil {
		logger.Error("feed consumer failed", "err", err)
		os.Exit(1)
	}
	logger.Info("feed worker shutdown")
}

func sweepExpiredGames(ctx context.Context, logger *slog.Logger, svc *lobby.Service, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.EndExpired(ctx)
			if err != nil {
				logger.Error("game sweep failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("games ended", "count", n)
			}
		}
	}
}
