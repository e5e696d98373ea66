package lobby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tickerclub/internal/ledger"
)

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrGameNotFound            = errors.New("game not found")
	ErrGameEnded               = errors.New("game has ended")
	ErrGameFull                = errors.New("game is full")
	ErrCodeGenerationExhausted = errors.New("could not generate a unique game code")
)

type Game struct {
	ID             int64     `json:"id"`
	Code           string    `json:"code"`
	Title          string    `json:"title"`
	HostID         string    `json:"host_id"`
	Status         string    `json:"status"`
	MaxPlayers     int       `json:"max_players"`
	BuyInCents     int64     `json:"buy_in_cents"`
	CurrentPlayers int       `json:"current_players"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
}

type CreateGameInput struct {
	HostID     string
	Title      string
	MaxPlayers int
	BuyInCents int64
	StartsAt   time.Time
	EndsAt     time.Time
}

type JoinResult struct {
	Game          Game `json:"game"`
	AlreadyJoined bool `json:"already_joined"`
}

type Service struct {
	db   *pgxpool.Pool
	log  *slog.Logger
	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewService(db *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:   db,
		log:  logger,
		rand: mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) nextCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return randomCode(s.rand)
}

// CreateGame inserts a game under a freshly generated join code,
// retrying on code collisions up to the fixed attempt budget. The host
// is enrolled as the first participant.
func (s *Service) CreateGame(ctx context.Context, in CreateGameInput) (Game, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.HostID == "" || in.Title == "" {
		return Game{}, fmt.Errorf("%w: host and title are required", ErrInvalidInput)
	}
	if in.MaxPlayers <= 0 {
		in.MaxPlayers = 10
	}
	if in.BuyInCents <= 0 {
		in.BuyInCents = ledger.DefaultStartingCashCents
	}
	if in.StartsAt.IsZero() {
		in.StartsAt = time.Now().UTC()
	}
	if in.EndsAt.IsZero() {
		in.EndsAt = in.StartsAt.Add(30 * 24 * time.Hour)
	}
	if !in.EndsAt.After(in.StartsAt) {
		return Game{}, fmt.Errorf("%w: end date must be after start date", ErrInvalidInput)
	}

	// The game row and the host enrollment commit together so a failed
	// enrollment never leaves a game nobody is in.
	var game Game
	code, err := claimCode(codeAttempts, s.nextCode, func(code string) (bool, error) {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return false, err
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx, `
			INSERT INTO game.games (code, title, host_id, status, max_players, buy_in_cents, current_players, starts_at, ends_at)
			VALUES ($1, $2, $3, 'active', $4, $5, 1, $6, $7)
			RETURNING id
		`, code, in.Title, in.HostID, in.MaxPlayers, in.BuyInCents, in.StartsAt, in.EndsAt).Scan(&game.ID)
		if isUniqueViolation(err) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if err := enrollTx(ctx, tx, game.ID, in.HostID, in.BuyInCents); err != nil {
			return false, err
		}
		return false, tx.Commit(ctx)
	})
	if err != nil {
		return Game{}, err
	}

	game.Code = code
	game.Title = in.Title
	game.HostID = in.HostID
	game.Status = "active"
	game.MaxPlayers = in.MaxPlayers
	game.BuyInCents = in.BuyInCents
	game.CurrentPlayers = 1
	game.StartsAt = in.StartsAt
	game.EndsAt = in.EndsAt

	s.log.Info("game created", "game_id", game.ID, "code", code, "host", in.HostID)
	return game, nil
}

// ValidateCode resolves a join code against active games.
func (s *Service) ValidateCode(ctx context.Context, code string) (Game, error) {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return Game{}, fmt.Errorf("%w: code must be 6 digits", ErrInvalidInput)
	}
	game, err := s.gameByCode(ctx, s.db, code)
	if err != nil {
		return Game{}, err
	}
	if game.Status != "active" {
		return Game{}, ErrGameEnded
	}
	return game, nil
}

// JoinGame enrolls a user in the game behind the code. A repeat join is
// reported as success with AlreadyJoined set; a full game is rejected.
func (s *Service) JoinGame(ctx context.Context, code, userID string) (JoinResult, error) {
	var out JoinResult
	code = strings.TrimSpace(code)
	if userID == "" || len(code) != 6 {
		return out, fmt.Errorf("%w: user and 6-digit code are required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	game, err := s.gameByCodeForUpdate(ctx, tx, code)
	if err != nil {
		return out, err
	}
	if game.Status != "active" {
		return out, ErrGameEnded
	}

	var joined bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM game.participants WHERE user_id = $1 AND game_id = $2
		)
	`, userID, game.ID).Scan(&joined); err != nil {
		return out, err
	}
	if joined {
		out.Game = game
		out.AlreadyJoined = true
		return out, tx.Commit(ctx)
	}

	if game.CurrentPlayers >= game.MaxPlayers {
		return out, fmt.Errorf("%w: %d of %d seats taken", ErrGameFull, game.CurrentPlayers, game.MaxPlayers)
	}

	if err := enrollTx(ctx, tx, game.ID, userID, game.BuyInCents); err != nil {
		return out, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game.games SET current_players = current_players + 1 WHERE id = $1
	`, game.ID); err != nil {
		return out, err
	}
	game.CurrentPlayers++
	out.Game = game
	return out, tx.Commit(ctx)
}

// EndExpired flips games past their end date to ended. Run from the
// worker on a ticker.
func (s *Service) EndExpired(ctx context.Context) (int64, error) {
	cmd, err := s.db.Exec(ctx, `
		UPDATE game.games
		SET status = 'ended'
		WHERE status = 'active' AND ends_at < now()
	`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// enrollTx creates the participant row and seeds the cash ledger from
// the game buy-in. Both inserts are idempotent.
func enrollTx(ctx context.Context, tx pgx.Tx, gameID int64, userID string, buyInCents int64) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO game.participants (user_id, game_id, initial_balance_cents, current_balance_cents)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id, game_id) DO NOTHING
	`, userID, gameID, buyInCents); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO game.portfolios (user_id, game_id, cash_cents, total_value_cents)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id, game_id) DO NOTHING
	`, userID, gameID, buyInCents)
	return err
}

const gameColumns = `id, code, title, host_id, status, max_players, buy_in_cents, current_players, starts_at, ends_at`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Service) gameByCode(ctx context.Context, q querier, code string) (Game, error) {
	return scanGame(q.QueryRow(ctx, `
		SELECT `+gameColumns+` FROM game.games WHERE code = $1
	`, code))
}

func (s *Service) gameByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (Game, error) {
	return scanGame(tx.QueryRow(ctx, `
		SELECT `+gameColumns+` FROM game.games WHERE code = $1 FOR UPDATE
	`, code))
}

func scanGame(row pgx.Row) (Game, error) {
	var g Game
	err := row.Scan(&g.ID, &g.Code, &g.Title, &g.HostID, &g.Status, &g.MaxPlayers,
		&g.BuyInCents, &g.CurrentPlayers, &g.StartsAt, &g.EndsAt)
	if err == pgx.ErrNoRows {
		return g, ErrGameNotFound
	}
	return g, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
