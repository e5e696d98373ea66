package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tickerclub/internal/metrics"
)

// PriceSource is the external quote oracle. Implementations cache and
// rate-limit upstream; a failed lookup returns an error per symbol.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (int64, error)
	Prices(ctx context.Context, symbols []string) map[string]int64
}

// FeedPublisher receives successful trades after commit. Failures are
// downgraded to a warning on the trade result, never a trade failure.
type FeedPublisher interface {
	PublishTrade(ctx context.Context, trade TradeRecord, note string) error
}

type Service struct {
	db     *pgxpool.Pool
	log    *slog.Logger
	oracle PriceSource
	feed   FeedPublisher
	met    *metrics.Metrics
	serial *keyedMutex
}

func NewService(db *pgxpool.Pool, logger *slog.Logger, oracle PriceSource, feed FeedPublisher, met *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:     db,
		log:    logger,
		oracle: oracle,
		feed:   feed,
		met:    met,
		serial: newKeyedMutex(),
	}
}

// ExecuteTrade validates funds/holdings, moves cash, rolls the
// position, and appends the trade record in one serializable
// transaction, retried on serialization conflicts. The social post is
// published after commit and cannot fail the trade.
func (s *Service) ExecuteTrade(ctx context.Context, in TradeInput) (TradeResult, error) {
	var out TradeResult
	in.Symbol = normalizeSymbol(in.Symbol)
	if err := validateOrder(in); err != nil {
		s.countFailure("invalid")
		return out, err
	}

	priceCents := in.PriceCents
	if priceCents == 0 {
		p, err := s.oracle.Price(ctx, in.Symbol)
		if err != nil {
			s.countFailure("oracle")
			return out, fmt.Errorf("%w: no usable quote for %s: %v", ErrOracleUnavailable, in.Symbol, err)
		}
		priceCents = p
	}

	key := ledgerKey(in.UserID, in.GameID)
	s.serial.Lock(key)
	defer s.serial.Unlock(key)

	started := time.Now()
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		res, err := s.executeTradeTx(ctx, in, priceCents)
		if err == nil {
			s.observeTrade(in.Side, time.Since(started))
			res.PostWarning = s.publishPost(ctx, in, res)
			return res, nil
		}
		if !isSerializationError(err) {
			s.countFailure(failureReason(err))
			return out, wrapPersistence(err)
		}
		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return out, err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	s.countFailure("conflict")
	return out, ErrTxConflict
}

func (s *Service) executeTradeTx(ctx context.Context, in TradeInput, priceCents int64) (TradeResult, error) {
	var out TradeResult
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	cash, err := lockPortfolio(ctx, tx, in.UserID, in.GameID)
	if err != nil {
		return out, err
	}

	snap := Snapshot{CashCents: cash, Holdings: map[string]Holding{}}
	var pos Holding
	err = tx.QueryRow(ctx, `
		SELECT symbol, quantity, avg_cost_cents
		FROM game.holdings
		WHERE user_id = $1 AND game_id = $2 AND symbol = $3
		FOR UPDATE
	`, in.UserID, in.GameID, in.Symbol).Scan(&pos.Symbol, &pos.Quantity, &pos.AvgCostCents)
	if err != nil && err != pgx.ErrNoRows {
		return out, err
	}
	if err == nil {
		snap.Holdings[in.Symbol] = pos
	}

	ap, err := apply(snap, in.Symbol, in.Quantity, priceCents, in.Side)
	if err != nil {
		return out, err
	}

	// Trade row first: a partial failure past this point aborts the
	// whole transaction, and on success the audit log predates the
	// balance mutation it explains.
	tradeID := uuid.NewString()
	executedAt := time.Now().UTC()
	if _, err := tx.Exec(ctx, `
		INSERT INTO game.trades (id, user_id, game_id, symbol, quantity, price_cents, side, total_cents, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tradeID, in.UserID, in.GameID, in.Symbol, in.Quantity, priceCents, string(in.Side), ap.TotalCents, executedAt); err != nil {
		return out, err
	}

	if err := s.writePosition(ctx, tx, in, ap); err != nil {
		return out, err
	}

	held := cloneHoldings(snap.Holdings)
	if ap.RemoveHolding {
		delete(held, in.Symbol)
	} else {
		held[in.Symbol] = Holding{Symbol: in.Symbol, Quantity: ap.NewQuantity, AvgCostCents: ap.NewAvgCostCents}
	}
	basis, err := costBasisCents(held)
	if err != nil {
		return out, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game.portfolios
		SET cash_cents = $1, total_value_cents = $2, updated_at = now()
		WHERE user_id = $3 AND game_id = $4
	`, ap.NewCashCents, ap.NewCashCents+basis, in.UserID, in.GameID); err != nil {
		return out, err
	}

	if err := tx.Commit(ctx); err != nil {
		return out, err
	}

	out = TradeResult{
		TradeID:          tradeID,
		Symbol:           in.Symbol,
		Side:             in.Side,
		Quantity:         in.Quantity,
		PriceCents:       priceCents,
		TotalCents:       ap.TotalCents,
		NewCashCents:     ap.NewCashCents,
		NewStockQuantity: ap.NewQuantity,
	}
	return out, nil
}

func (s *Service) writePosition(ctx context.Context, tx pgx.Tx, in TradeInput, ap applied) error {
	switch {
	case ap.RemoveHolding:
		_, err := tx.Exec(ctx, `
			DELETE FROM game.holdings
			WHERE user_id = $1 AND game_id = $2 AND symbol = $3
		`, in.UserID, in.GameID, in.Symbol)
		return err
	case !ap.HadHolding:
		_, err := tx.Exec(ctx, `
			INSERT INTO game.holdings (user_id, game_id, symbol, quantity, avg_cost_cents)
			VALUES ($1, $2, $3, $4, $5)
		`, in.UserID, in.GameID, in.Symbol, ap.NewQuantity, ap.NewAvgCostCents)
		return err
	default:
		_, err := tx.Exec(ctx, `
			UPDATE game.holdings
			SET quantity = $1, avg_cost_cents = $2, updated_at = now()
			WHERE user_id = $3 AND game_id = $4 AND symbol = $5
		`, ap.NewQuantity, ap.NewAvgCostCents, in.UserID, in.GameID, in.Symbol)
		return err
	}
}

// lockPortfolio reads the cash row under FOR UPDATE, creating it with
// the default starting balance when the user has never traded in this
// game before.
func lockPortfolio(ctx context.Context, tx pgx.Tx, userID string, gameID int64) (int64, error) {
	var cash int64
	err := tx.QueryRow(ctx, `
		SELECT cash_cents
		FROM game.portfolios
		WHERE user_id = $1 AND game_id = $2
		FOR UPDATE
	`, userID, gameID).Scan(&cash)
	if err == nil {
		return cash, nil
	}
	if err != pgx.ErrNoRows {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO game.portfolios (user_id, game_id, cash_cents, total_value_cents)
		VALUES ($1, $2, $3, $3)
	`, userID, gameID, DefaultStartingCashCents); err != nil {
		return 0, err
	}
	return DefaultStartingCashCents, nil
}

func (s *Service) publishPost(ctx context.Context, in TradeInput, res TradeResult) string {
	if s.feed == nil {
		return ""
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	trade := TradeRecord{
		ID:         res.TradeID,
		UserID:     in.UserID,
		GameID:     in.GameID,
		Symbol:     res.Symbol,
		Quantity:   res.Quantity,
		PriceCents: res.PriceCents,
		Side:       res.Side,
		TotalCents: res.TotalCents,
		ExecutedAt: time.Now().UTC(),
	}
	if err := s.feed.PublishTrade(pubCtx, trade, in.Note); err != nil {
		s.log.Warn("trade post publish failed", "trade_id", res.TradeID, "err", err)
		if s.met != nil {
			s.met.FeedPublishFailures.Inc()
		}
		return fmt.Sprintf("trade executed, but sharing it failed: %v", err)
	}
	return ""
}

// Valuation marks a portfolio to market, falling back to cost basis
// per symbol when a quote cannot be obtained.
func (s *Service) Valuation(ctx context.Context, userID string, gameID int64) (PortfolioView, error) {
	snap, err := s.loadSnapshot(ctx, userID, gameID)
	if err != nil {
		return PortfolioView{}, err
	}
	symbols := make([]string, 0, len(snap.Holdings))
	for sym := range snap.Holdings {
		symbols = append(symbols, sym)
	}
	prices := map[string]int64{}
	if len(symbols) > 0 {
		prices = s.oracle.Prices(ctx, symbols)
		if s.met != nil {
			s.met.ValuationFallbacks.Add(float64(len(symbols) - len(prices)))
		}
	}
	view, err := valueSnapshot(snap, prices)
	if err != nil {
		return view, err
	}
	view.GameID = gameID
	return view, nil
}

func (s *Service) loadSnapshot(ctx context.Context, userID string, gameID int64) (Snapshot, error) {
	snap := Snapshot{Holdings: map[string]Holding{}}
	err := s.db.QueryRow(ctx, `
		SELECT cash_cents
		FROM game.portfolios
		WHERE user_id = $1 AND game_id = $2
	`, userID, gameID).Scan(&snap.CashCents)
	if err == pgx.ErrNoRows {
		return snap, ErrPortfolioNotFound
	}
	if err != nil {
		return snap, wrapPersistence(err)
	}

	err = s.db.QueryRow(ctx, `
		SELECT initial_balance_cents
		FROM game.participants
		WHERE user_id = $1 AND game_id = $2
	`, userID, gameID).Scan(&snap.InitialBalanceCents)
	if err == pgx.ErrNoRows {
		snap.InitialBalanceCents = DefaultStartingCashCents
	} else if err != nil {
		return snap, wrapPersistence(err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT symbol, quantity, avg_cost_cents
		FROM game.holdings
		WHERE user_id = $1 AND game_id = $2
		ORDER BY symbol
	`, userID, gameID)
	if err != nil {
		return snap, wrapPersistence(err)
	}
	defer rows.Close()
	for rows.Next() {
		var h Holding
		if err := rows.Scan(&h.Symbol, &h.Quantity, &h.AvgCostCents); err != nil {
			return snap, wrapPersistence(err)
		}
		snap.Holdings[h.Symbol] = h
	}
	if err := rows.Err(); err != nil {
		return snap, wrapPersistence(err)
	}
	return snap, nil
}

func (s *Service) TradeHistory(ctx context.Context, userID string, gameID int64, limit int) ([]TradeRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, game_id, symbol, quantity, price_cents, side, total_cents, executed_at
		FROM game.trades
		WHERE user_id = $1 AND game_id = $2
		ORDER BY executed_at DESC
		LIMIT $3
	`, userID, gameID, limit)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var side string
		if err := rows.Scan(&t.ID, &t.UserID, &t.GameID, &t.Symbol, &t.Quantity, &t.PriceCents, &side, &t.TotalCents, &t.ExecutedAt); err != nil {
			return nil, wrapPersistence(err)
		}
		t.Side = Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Leaderboard ranks a game's participants by marked-to-market total
// value, sharing one batched quote lookup across all portfolios.
func (s *Service) Leaderboard(ctx context.Context, gameID int64, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT p.user_id, p.cash_cents, pa.initial_balance_cents
		FROM game.portfolios p
		JOIN game.participants pa ON pa.user_id = p.user_id AND pa.game_id = p.game_id
		WHERE p.game_id = $1
	`, gameID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	type base struct {
		cash    int64
		initial int64
	}
	players := map[string]base{}
	for rows.Next() {
		var uid string
		var b base
		if err := rows.Scan(&uid, &b.cash, &b.initial); err != nil {
			rows.Close()
			return nil, wrapPersistence(err)
		}
		players[uid] = b
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence(err)
	}

	hRows, err := s.db.Query(ctx, `
		SELECT user_id, symbol, quantity, avg_cost_cents
		FROM game.holdings
		WHERE game_id = $1
	`, gameID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	holdings := map[string][]Holding{}
	symbolSet := map[string]struct{}{}
	for hRows.Next() {
		var uid string
		var h Holding
		if err := hRows.Scan(&uid, &h.Symbol, &h.Quantity, &h.AvgCostCents); err != nil {
			hRows.Close()
			return nil, wrapPersistence(err)
		}
		holdings[uid] = append(holdings[uid], h)
		symbolSet[h.Symbol] = struct{}{}
	}
	hRows.Close()
	if err := hRows.Err(); err != nil {
		return nil, wrapPersistence(err)
	}

	symbols := make([]string, 0, len(symbolSet))
	for sym := range symbolSet {
		symbols = append(symbols, sym)
	}
	prices := map[string]int64{}
	if len(symbols) > 0 {
		prices = s.oracle.Prices(ctx, symbols)
	}

	out := make([]LeaderboardRow, 0, len(players))
	for uid, b := range players {
		snap := Snapshot{CashCents: b.cash, InitialBalanceCents: b.initial, Holdings: map[string]Holding{}}
		for _, h := range holdings[uid] {
			snap.Holdings[h.Symbol] = h
		}
		view, err := valueSnapshot(snap, prices)
		if err != nil {
			return nil, err
		}
		out = append(out, LeaderboardRow{
			UserID:          uid,
			TotalValueCents: view.TotalValueCents,
			TotalReturnPct:  view.TotalReturnPct,
		})
	}
	sortLeaderboard(out)
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = int64(i + 1)
	}
	return out, nil
}

func (s *Service) observeTrade(side Side, d time.Duration) {
	if s.met == nil {
		return
	}
	s.met.TradesExecuted.WithLabelValues(string(side)).Inc()
	s.met.TradeDuration.Observe(d.Seconds())
}

func (s *Service) countFailure(reason string) {
	if s.met != nil {
		s.met.TradeFailures.WithLabelValues(reason).Inc()
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrInvalidParameters):
		return "invalid"
	default:
		return "persistence"
	}
}

var domainErrs = []error{
	ErrInvalidParameters,
	ErrInsufficientFunds,
	ErrInsufficientShares,
	ErrPortfolioNotFound,
	ErrParticipantNotFound,
	ErrOracleUnavailable,
	ErrTxConflict,
}

func wrapPersistence(err error) error {
	if err == nil {
		return nil
	}
	for _, d := range domainErrs {
		if errors.Is(err, d) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func cloneHoldings(in map[string]Holding) map[string]Holding {
	out := make(map[string]Holding, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortLeaderboard(rows []LeaderboardRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalValueCents != rows[j].TotalValueCents {
			return rows[i].TotalValueCents > rows[j].TotalValueCents
		}
		return rows[i].UserID < rows[j].UserID
	})
}
