package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/predict-trader/internal/amounts"
	"github.com/mselser95/predict-trader/internal/app"
	"github.com/mselser95/predict-trader/internal/redemption"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var redeemPositionsCmd = &cobra.Command{
	Use:   "redeem-positions",
	Short: "Redeem every resolved position",
	Long: `Redeems each position whose market has resolved, one transaction per position.

Standard markets redeem through the conditional tokens contract, neg-risk markets
through the neg-risk adapter; yield-bearing markets use their own deployments.
Positions whose market is resolved but not yet settled on-chain are reported and
skipped.

Use --dry-run to print the contract calls without sending anything.`,
	RunE: runRedeemPositions,
}

//nolint:gochecknoglobals // Cobra boilerplate
var redeemDryRun bool

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(redeemPositionsCmd)
	redeemPositionsCmd.Flags().BoolVar(&redeemDryRun, "dry-run", false, "Print redemption parameters without sending")
}

func runRedeemPositions(cmd *cobra.Command, args []string) error {
	application, cleanup, err := bootstrap(nil, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Minute)
	defer cancel()

	outcomes, err := application.RedeemAll(ctx, redeemDryRun)
	if err != nil {
		return err
	}

	if len(outcomes) == 0 {
		fmt.Println("No redeemable positions")
		return nil
	}

	failures := printRedemptions(outcomes, application, redeemDryRun)
	if failures > 0 {
		return fmt.Errorf("%d of %d redemptions failed", failures, len(outcomes))
	}

	return nil
}

func printRedemptions(outcomes []app.RedemptionOutcome, application *app.App, dryRun bool) int {
	failures := 0
	for _, out := range outcomes {
		p := out.Position
		fmt.Printf("Market %s, %s: %s shares\n", p.MarketID, p.OutcomeName, amounts.FormatUnits(p.Shares))

		if out.Params != nil {
			fmt.Printf("  target:   %s\n", out.Params.Target.Hex())
			fmt.Printf("  neg-risk: %v, yield-bearing: %v\n", out.Params.NegRisk, out.Params.YieldBearing)
			if dryRun {
				fmt.Printf("  calldata: 0x%x\n", out.Params.Data)
			}
		}

		switch {
		case out.Err != nil:
			failures++
			fmt.Printf("  FAILED: %s\n", describeError(redemption.Classify(out.Err), application.Translator()))
		case out.Result != nil:
			fmt.Printf("  redeemed: tx %s\n", out.Result.TxHash.Hex())
		}
		fmt.Println()
	}
	return failures
}
