package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"tickerclub/internal/ledger"
	"tickerclub/internal/lobby"
	"tickerclub/internal/social"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type historyPayload struct {
	Trades []ledger.TradeRecord `json:"trades"`
}

type leaderboardPayload struct {
	Rows []ledger.LeaderboardRow `json:"rows"`
}

type feedPayload struct {
	Posts []social.Post `json:"posts"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func parseGameID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid game id %q", s)
	}
	return id, nil
}

func parsePositiveInt(s, label string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive whole number, got %q", label, s)
	}
	return v, nil
}

func dollarsToCents(v float64) int64 {
	if v <= 0 {
		return 0
	}
	return ledger.DollarsToCents(v)
}

func renderGame(raw map[string]any, title string) error {
	g, err := decodeInto[lobby.Game](raw)
	if err != nil {
		return err
	}
	printGame(g, title)
	return nil
}

func printGame(g lobby.Game, title string) {
	accent.Printf("\n== %s ==\n", title)
	fmt.Printf("Code:       %s\n", g.Code)
	fmt.Printf("Title:      %s\n", g.Title)
	fmt.Printf("Status:     %s\n", g.Status)
	fmt.Printf("Players:    %d / %d\n", g.CurrentPlayers, g.MaxPlayers)
	fmt.Printf("Buy-in:     %s\n", formatCents(g.BuyInCents))
	fmt.Printf("Ends:       %s\n", g.EndsAt.Local().Format("2006-01-02 15:04"))
	fmt.Println()
}

func renderJoinResult(raw map[string]any) error {
	out, err := decodeInto[lobby.JoinResult](raw)
	if err != nil {
		return err
	}
	if out.AlreadyJoined {
		printInfo("Already in this game.")
	} else {
		printSuccess("Joined game.")
	}
	printGame(out.Game, "GAME")
	return nil
}

func renderTradeResult(raw map[string]any) error {
	out, err := decodeInto[ledger.TradeResult](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== TRADE %s ==\n", strings.ToUpper(string(out.Side)))
	fmt.Printf("Symbol:   %s\n", out.Symbol)
	fmt.Printf("Shares:   %d\n", out.Quantity)
	fmt.Printf("Price:    %s\n", formatCents(out.PriceCents))
	fmt.Printf("Total:    %s\n", formatCents(out.TotalCents))
	fmt.Printf("Cash:     %s\n", formatCents(out.NewCashCents))
	fmt.Printf("Position: %d shares\n", out.NewStockQuantity)
	if out.PostWarning != "" {
		printWarn(out.PostWarning)
	}
	fmt.Println()
	return nil
}

func renderPortfolio(raw map[string]any) error {
	p, err := decodeInto[ledger.PortfolioView](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== PORTFOLIO (Game %d) ==\n", p.GameID)
	fmt.Printf("Cash:         %s\n", formatCents(p.CashCents))
	fmt.Printf("Total Value:  %s\n", formatCents(p.TotalValueCents))
	fmt.Printf("Return:       %s (%s)\n", colorizeCents(p.TotalReturnCents), colorizePercent(p.TotalReturnPct))

	fmt.Println()
	accent.Println("Holdings")
	if len(p.Holdings) == 0 {
		printInfo("No holdings yet.")
		fmt.Println()
		return nil
	}
	fmt.Printf("%-8s %10s %12s %12s %14s %14s %-6s\n", "SYMBOL", "QTY", "AVG COST", "PRICE", "VALUE", "P/L", "NOTE")
	for _, h := range p.Holdings {
		note := ""
		if h.PricedAtCost {
			note = "cost"
		}
		fmt.Printf("%-8s %10d %12s %12s %14s %14s %-6s\n",
			h.Symbol,
			h.Quantity,
			formatCents(h.AvgCostCents),
			formatCents(h.PriceCents),
			formatCents(h.MarketCents),
			colorizeCents(h.UnrealizedCents),
			note,
		)
	}
	fmt.Println()
	return nil
}

func renderHistory(raw map[string]any) error {
	out, err := decodeInto[historyPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== TRADE HISTORY ==")
	if len(out.Trades) == 0 {
		printInfo("No trades yet.")
		return nil
	}
	fmt.Printf("%-16s %-5s %-8s %10s %12s %14s\n", "TIME", "SIDE", "SYMBOL", "QTY", "PRICE", "TOTAL")
	for _, t := range out.Trades {
		fmt.Printf("%-16s %-5s %-8s %10d %12s %14s\n",
			t.ExecutedAt.Local().Format("2006-01-02 15:04"),
			strings.ToUpper(string(t.Side)),
			t.Symbol,
			t.Quantity,
			formatCents(t.PriceCents),
			formatCents(t.TotalCents),
		)
	}
	fmt.Println()
	return nil
}

func renderLeaderboard(raw map[string]any) error {
	out, err := decodeInto[leaderboardPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== LEADERBOARD ==")
	if len(out.Rows) == 0 {
		printInfo("No players ranked yet.")
		return nil
	}
	fmt.Printf("%-6s %-38s %16s %10s\n", "RANK", "PLAYER", "TOTAL VALUE", "RETURN")
	for _, row := range out.Rows {
		fmt.Printf("%-6d %-38s %16s %10s\n",
			row.Rank,
			truncate(row.UserID, 38),
			formatCents(row.TotalValueCents),
			colorizePercent(row.TotalReturnPct),
		)
	}
	fmt.Println()
	return nil
}

func renderFeed(raw map[string]any) error {
	out, err := decodeInto[feedPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== TRADE FEED ==")
	if len(out.Posts) == 0 {
		printInfo("Nothing posted yet.")
		return nil
	}
	for _, p := range out.Posts {
		fmt.Printf("%s %s\n", neutral.Sprint(p.CreatedAt.Local().Format("2006-01-02 15:04")), truncate(p.UserID, 16))
		fmt.Printf("  %s\n", p.Content)
	}
	fmt.Println()
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeCents(v int64) string {
	text := formatCents(v)
	if v > 0 {
		text = "+" + text
	}
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatCents(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%s.%02d", sign, comma(v/100), v%100)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
