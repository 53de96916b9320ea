package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/predict-trader/internal/amounts"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List positions marked at the current book mid",
	Long: `Fetches the wallet's positions and marks each one at the mid of its outcome's
order book.

Examples:
  # Table of every position
  predict-trader positions

  # Only positions that can be redeemed now
  predict-trader positions --redeemable-only

  # Export to JSON
  predict-trader positions --format json > positions.json`,
	RunE: runPositions,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	positionsRedeemableOnly bool
	positionsFormat         string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(positionsCmd)

	positionsCmd.Flags().BoolVar(&positionsRedeemableOnly, "redeemable-only", false, "Show only redeemable positions")
	positionsCmd.Flags().StringVar(&positionsFormat, "format", "table", "Output format: table, json")
}

// PositionRow is one line of positions output.
type PositionRow struct {
	MarketID   string `json:"market_id"`
	Question   string `json:"question"`
	Outcome    string `json:"outcome"`
	Shares     string `json:"shares"`
	MarkPrice  string `json:"mark_price"`
	Value      string `json:"value"`
	Status     string `json:"status"`
	Redeemable bool   `json:"redeemable"`
}

func runPositions(cmd *cobra.Command, args []string) error {
	if positionsFormat != "table" && positionsFormat != "json" {
		return fmt.Errorf("%w: invalid format %q (valid: table, json)", types.ErrValidation, positionsFormat)
	}

	application, cleanup, err := bootstrap(nil, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	_, err = application.EnsureToken(ctx)
	if err != nil {
		return err
	}

	tracker, err := application.Positions()
	if err != nil {
		return err
	}

	err = tracker.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh positions: %w", err)
	}

	positions := tracker.Positions()
	if positionsRedeemableOnly {
		positions = tracker.Redeemable()
	}

	rows := buildPositionRows(positions)

	if positionsFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No positions found")
		return nil
	}

	printPositionTable(rows, totalValue(positions))
	return nil
}

// buildPositionRows converts positions to output rows, largest value first.
func buildPositionRows(positions []*types.Position) []PositionRow {
	sorted := make([]*types.Position, len(positions))
	copy(sorted, positions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value.GreaterThan(sorted[j].Value)
	})

	rows := make([]PositionRow, 0, len(sorted))
	for _, p := range sorted {
		status := "ACTIVE"
		if p.Resolution == types.ResolutionResolved {
			status = "RESOLVED"
		}

		rows = append(rows, PositionRow{
			MarketID:   p.MarketID,
			Question:   p.Question,
			Outcome:    p.OutcomeName,
			Shares:     amounts.FormatUnits(p.Shares),
			MarkPrice:  p.MarkPrice.StringFixed(2),
			Value:      p.Value.StringFixed(2),
			Status:     status,
			Redeemable: p.Redeemable(),
		})
	}

	return rows
}

func totalValue(positions []*types.Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.Value)
	}
	return total
}

func printPositionTable(rows []PositionRow, total decimal.Decimal) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MARKET\tOUTCOME\tSHARES\tMARK\tVALUE\tSTATUS\tQUESTION")
	for _, r := range rows {
		status := r.Status
		if r.Redeemable {
			status += " (redeemable)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.MarketID, r.Outcome, r.Shares, r.MarkPrice, r.Value, status, truncate(r.Question, 60))
	}
	_ = w.Flush()

	fmt.Printf("\n%d positions, total value %s\n", len(rows), total.StringFixed(2))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
