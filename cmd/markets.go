package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mselser95/predict-trader/internal/app"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "List markets",
	RunE:  runMarkets,
}

//nolint:gochecknoglobals // Cobra boilerplate
var marketsLimit int

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(marketsCmd)
	marketsCmd.Flags().IntVarP(&marketsLimit, "limit", "l", 50, "Maximum markets to print (0 for all)")
}

func runMarkets(cmd *cobra.Command, args []string) error {
	application, cleanup, err := bootstrap(&app.Options{ReadOnly: true}, false)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	markets, err := application.API().GetMarkets(ctx)
	if err != nil {
		return fmt.Errorf("get markets: %w", err)
	}

	if marketsLimit > 0 && len(markets) > marketsLimit {
		markets = markets[:marketsLimit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tOUTCOMES\tQUESTION")
	for _, m := range markets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.ID, marketType(m), m.Resolution, outcomeNames(m), truncate(m.Question, 70))
	}
	_ = w.Flush()

	return nil
}

func marketType(m *types.Market) string {
	switch {
	case m.NegRisk == nil:
		return "?"
	case *m.NegRisk && m.YieldBearing != nil && *m.YieldBearing:
		return "neg-risk/yield"
	case *m.NegRisk:
		return "neg-risk"
	case m.YieldBearing != nil && *m.YieldBearing:
		return "yield"
	default:
		return "standard"
	}
}

func outcomeNames(m *types.Market) string {
	names := ""
	for i, o := range m.Outcomes {
		if i > 0 {
			names += "/"
		}
		names += o.Name
	}
	return names
}
