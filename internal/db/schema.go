package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS game`,
	`CREATE SCHEMA IF NOT EXISTS social`,
	`CREATE TABLE IF NOT EXISTS game.games (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		host_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		max_players INT NOT NULL,
		buy_in_cents BIGINT NOT NULL,
		current_players INT NOT NULL DEFAULT 0,
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS game.participants (
		user_id TEXT NOT NULL,
		game_id BIGINT NOT NULL REFERENCES game.games(id),
		initial_balance_cents BIGINT NOT NULL,
		current_balance_cents BIGINT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, game_id)
	)`,
	`CREATE TABLE IF NOT EXISTS game.portfolios (
		user_id TEXT NOT NULL,
		game_id BIGINT NOT NULL,
		cash_cents BIGINT NOT NULL,
		total_value_cents BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, game_id)
	)`,
	`CREATE TABLE IF NOT EXISTS game.holdings (
		user_id TEXT NOT NULL,
		game_id BIGINT NOT NULL,
		symbol TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		avg_cost_cents BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, game_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS game.trades (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		game_id BIGINT NOT NULL,
		symbol TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		price_cents BIGINT NOT NULL,
		side TEXT NOT NULL,
		total_cents BIGINT NOT NULL,
		executed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_user_game ON game.trades (user_id, game_id, executed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS social.posts (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		game_id BIGINT NOT NULL,
		content TEXT NOT NULL,
		symbol TEXT NOT NULL,
		trade_id UUID NOT NULL UNIQUE,
		trade_cents BIGINT NOT NULL,
		likes_count INT NOT NULL DEFAULT 0,
		comments_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_game_created ON social.posts (game_id, created_at DESC)`,
}

// EnsureSchema creates tables on startup. Every statement is idempotent
// so concurrent service starts are safe.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
