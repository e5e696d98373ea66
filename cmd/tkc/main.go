package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cl "tickerclub/internal/cli"
	"tickerclub/internal/config"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "tkc",
		Short:        "TickerClub trading game client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newGameCmd(&apiBase),
		newTradeCmd(&apiBase),
		newPortfolioCmd(&apiBase),
		newHistoryCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newFeedCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create a TickerClub account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Signup(ctx, email, password)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `tkc login`.")
				return nil
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to TickerClub",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newGameCmd(apiBase *string) *cobra.Command {
	game := &cobra.Command{
		Use:     "game",
		Short:   "Game lobby commands",
		Aliases: []string{"games"},
	}
	game.AddCommand(newGameCreateCmd(apiBase))
	game.AddCommand(newGameJoinCmd(apiBase))
	game.AddCommand(newGameCheckCmd(apiBase))
	return game
}

func newGameCreateCmd(apiBase *string) *cobra.Command {
	var maxPlayers int
	var buyIn float64
	var days int
	cmd := &cobra.Command{
		Use:   "create TITLE",
		Short: "Create a game and get its join code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			var endsAt time.Time
			if days > 0 {
				endsAt = time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)
			}
			out, err := newClient(apiBase).CreateGame(ctx, sess.AccessToken, args[0], maxPlayers, dollarsToCents(buyIn), endsAt)
			if err != nil {
				return err
			}
			return renderGame(out, "GAME CREATED")
		},
	}
	cmd.Flags().IntVar(&maxPlayers, "max-players", 10, "maximum number of players")
	cmd.Flags().Float64Var(&buyIn, "buy-in", 0, "starting balance in dollars (default $100,000)")
	cmd.Flags().IntVar(&days, "days", 30, "game length in days")
	return cmd
}

func newGameJoinCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "join CODE",
		Short: "Join a game by its 6-digit code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).JoinGame(ctx, sess.AccessToken, args[0])
			if err != nil {
				return err
			}
			return renderJoinResult(out)
		},
	}
}

func newGameCheckCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check CODE",
		Short: "Check whether a join code is valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ValidateCode(ctx, sess.AccessToken, args[0])
			if err != nil {
				return err
			}
			return renderGame(out, "GAME")
		},
	}
}

func newTradeCmd(apiBase *string) *cobra.Command {
	var price float64
	var note string
	cmd := &cobra.Command{
		Use:   "trade GAME_ID buy|sell SYMBOL QUANTITY",
		Short: "Execute a trade in a game",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			gameID, err := parseGameID(args[0])
			if err != nil {
				return err
			}
			side := strings.ToLower(strings.TrimSpace(args[1]))
			if side != "buy" && side != "sell" {
				return fmt.Errorf("side must be buy or sell, got %q", args[1])
			}
			qty, err := parsePositiveInt(args[3], "quantity")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Trade(ctx, sess.AccessToken, gameID, strings.ToUpper(args[2]), side, qty, dollarsToCents(price), note)
			if err != nil {
				return err
			}
			return renderTradeResult(out)
		},
	}
	cmd.Flags().Float64Var(&price, "price", 0, "limit price in dollars (default: market via oracle)")
	cmd.Flags().StringVar(&note, "note", "", "note to attach to the trade post")
	return cmd
}

func newPortfolioCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio GAME_ID",
		Short: "Show your portfolio in a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			gameID, err := parseGameID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Portfolio(ctx, sess.AccessToken, gameID)
			if err != nil {
				return err
			}
			return renderPortfolio(out)
		},
	}
}

func newHistoryCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history GAME_ID",
		Short: "Show your trade history in a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			gameID, err := parseGameID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).TradeHistory(ctx, sess.AccessToken, gameID, limit)
			if err != nil {
				return err
			}
			return renderHistory(out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max trades to show")
	return cmd
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard GAME_ID",
		Short: "Show a game's leaderboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			gameID, err := parseGameID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Leaderboard(ctx, sess.AccessToken, gameID)
			if err != nil {
				return err
			}
			return renderLeaderboard(out)
		},
	}
}

func newFeedCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "feed GAME_ID",
		Short: "Show a game's trade feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			gameID, err := parseGameID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Feed(ctx, sess.AccessToken, gameID, limit)
			if err != nil {
				return err
			}
			return renderFeed(out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max posts to show")
	return cmd
}
