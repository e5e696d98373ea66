package social

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Post struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	GameID        int64     `json:"game_id"`
	Content       string    `json:"content"`
	Symbol        string    `json:"symbol"`
	TradeID       string    `json:"trade_id"`
	TradeCents    int64     `json:"trade_cents"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store owns the social.posts table. The write path is the feed worker;
// the API only reads.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// InsertFromEvent materializes a TradePosted event. The unique index on
// trade_id makes redelivered events a no-op.
func (s *Store) InsertFromEvent(ctx context.Context, ev TradePosted) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO social.posts (id, user_id, game_id, content, symbol, trade_id, trade_cents, likes_count, comments_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8)
		ON CONFLICT (trade_id) DO NOTHING
	`, uuid.NewString(), ev.UserID, ev.GameID, ev.Content, ev.Symbol, ev.TradeID, ev.TotalCents, ev.PostedAt)
	return err
}

func (s *Store) ListFeed(ctx context.Context, gameID int64, limit int) ([]Post, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, game_id, content, symbol, trade_id, trade_cents, likes_count, comments_count, created_at
		FROM social.posts
		WHERE game_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, gameID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.GameID, &p.Content, &p.Symbol, &p.TradeID,
			&p.TradeCents, &p.LikesCount, &p.CommentsCount, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
