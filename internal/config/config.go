package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type APIConfig struct {
	Addr        string
	MetricsAddr string
	DatabaseURL string
	RedisAddr   string

	KafkaBrokers string
	FeedTopic    string

	AuthURL    string
	AuthAPIKey string

	OracleURL           string
	OracleAPIKey        string
	OracleFreshFor      time.Duration
	OracleTimeout       time.Duration
	OracleRatePerSecond float64
	OracleRateBurst     int
	QuoteCacheTTL       time.Duration

	// GameSweepEvery controls how often the feed worker closes games
	// past their end date.
	GameSweepEvery time.Duration
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	_ = godotenv.Load()

	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("TICKERCLUB_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:                addr,
		MetricsAddr:         envDefault("TICKERCLUB_METRICS_ADDR", ":9090"),
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:           envDefault("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:        envDefault("KAFKA_BROKERS", "localhost:9092"),
		FeedTopic:           envDefault("TICKERCLUB_FEED_TOPIC", ""),
		AuthURL:             strings.TrimRight(strings.TrimSpace(os.Getenv("AUTH_URL")), "/"),
		AuthAPIKey:          strings.TrimSpace(os.Getenv("AUTH_API_KEY")),
		OracleURL:           strings.TrimRight(strings.TrimSpace(os.Getenv("ORACLE_URL")), "/"),
		OracleAPIKey:        strings.TrimSpace(os.Getenv("ORACLE_API_KEY")),
		OracleFreshFor:      envDurationDefault("TICKERCLUB_ORACLE_FRESH_FOR", 30*time.Second),
		OracleTimeout:       envDurationDefault("TICKERCLUB_ORACLE_TIMEOUT", 4*time.Second),
		OracleRatePerSecond: envFloatDefault("TICKERCLUB_ORACLE_RATE", 5),
		OracleRateBurst:     envIntDefault("TICKERCLUB_ORACLE_BURST", 10),
		QuoteCacheTTL:       envDurationDefault("TICKERCLUB_QUOTE_CACHE_TTL", 24*time.Hour),
		GameSweepEvery:      envDurationDefault("TICKERCLUB_GAME_SWEEP_EVERY", time.Minute),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AuthURL == "" {
		return cfg, fmt.Errorf("AUTH_URL is required")
	}
	if cfg.OracleURL == "" {
		return cfg, fmt.Errorf("ORACLE_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	_ = godotenv.Load()
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("TKC_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
