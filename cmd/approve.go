package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/predict-trader/internal/allowance"
	"github.com/mselser95/predict-trader/internal/amounts"
	"github.com/mselser95/predict-trader/internal/submission"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Grant the exchange the token approvals trading needs",
	Long: `Checks and, where missing, grants the approvals a flow needs:

  buy     collateral allowance for the exchange (neg-risk: also the neg-risk
          exchange and adapter)
  sell    conditional token operator approval for the same spenders
  redeem  conditional token operator approval for the neg-risk adapter
  all     every pair of the market type, each checked once

Contracts not deployed on the network are skipped. Any failed pair makes the
command exit non-zero; run it again to retry.

Each approval is an on-chain transaction from PRIVATE_KEY. With APPROVAL_POLICY=exact
the collateral allowance is sized to --amount instead of unlimited.`,
	RunE: runApprove,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	approveAction  string
	approveMarket  string
	approveNegRisk bool
	approveAmount  string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(approveCmd)

	approveCmd.Flags().StringVarP(&approveAction, "action", "a", "all", "Flow to approve: buy, sell, redeem, all")
	approveCmd.Flags().StringVar(&approveMarket, "market", "", "Market id; its neg-risk flag picks the contracts")
	approveCmd.Flags().BoolVar(&approveNegRisk, "neg-risk", false, "Approve the neg-risk contracts (ignored with --market)")
	approveCmd.Flags().StringVar(&approveAmount, "amount", "", "Collateral amount in whole units, for the exact policy")
}

func runApprove(cmd *cobra.Command, args []string) error {
	actions, err := parseActions(approveAction)
	if err != nil {
		return err
	}

	var amount *big.Int
	if approveAmount != "" {
		amount, err = amounts.ParseQuantity(approveAmount)
		if err != nil {
			return fmt.Errorf("parse amount: %w", err)
		}
	}

	application, cleanup, err := bootstrap(nil, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	negRisk := approveNegRisk
	if approveMarket != "" {
		market, marketErr := application.API().GetMarket(ctx, approveMarket)
		if marketErr != nil {
			return fmt.Errorf("get market: %w", marketErr)
		}
		negRisk, err = market.RequireNegRisk()
		if err != nil {
			return err
		}
	}

	manager, err := application.Allowances()
	if err != nil {
		return err
	}

	w, _ := application.Wallet()
	fmt.Printf("=== Approvals (%s) ===\n\n", application.Network().Name)
	fmt.Printf("Address:  %s\n", w.Address().Hex())
	fmt.Printf("Neg-risk: %v\n\n", negRisk)

	translator := application.Translator()

	if len(actions) == 0 {
		report, ensureErr := manager.EnsureMarketApprovals(ctx, negRisk, amount)
		err = approvalOutcome("all", report, ensureErr, translator)
		if err != nil {
			return err
		}
		fmt.Printf("\nAll approvals in place.\n")
		return nil
	}

	var errs []error
	for _, action := range actions {
		flow := types.Flow{Action: action, NegRisk: negRisk, Amount: amount}
		report, ensureErr := manager.EnsureApprovals(ctx, flow)
		outcomeErr := approvalOutcome(action.String(), report, ensureErr, translator)
		if outcomeErr != nil {
			errs = append(errs, outcomeErr)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	fmt.Printf("\nAll approvals in place.\n")
	return nil
}

// parseActions maps the --action flag to flows. "all" returns no actions, meaning every
// pair of the market type.
func parseActions(s string) ([]types.Action, error) {
	switch strings.ToLower(s) {
	case "buy":
		return []types.Action{types.ActionBuy}, nil
	case "sell":
		return []types.Action{types.ActionSell}, nil
	case "redeem":
		return []types.Action{types.ActionRedeem}, nil
	case "all", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: invalid action %q (valid: buy, sell, redeem, all)", types.ErrValidation, s)
	}
}

// approvalOutcome prints a report and turns failed pairs into an ErrApproval error, so
// a reverted or rejected approval never reads as success.
func approvalOutcome(label string, report *allowance.Report, ensureErr error, translator *submission.Translator) error {
	if report != nil {
		printReport(label, report)
	}

	if ensureErr != nil {
		return fmt.Errorf("%w: %s approvals: %s", types.ErrApproval, label, describeError(ensureErr, translator))
	}

	if report == nil {
		return nil
	}

	failed := report.Failed()
	if len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d %s approvals failed, run approve again to retry",
			types.ErrApproval, len(failed), len(report.Results), label)
	}

	return nil
}

func printReport(label string, report *allowance.Report) {
	if len(report.Results) == 0 {
		fmt.Printf("%s: nothing to approve\n", label)
		return
	}

	fmt.Printf("%s:\n", label)
	for _, res := range report.Results {
		line := fmt.Sprintf("  %-28s %s", res.Pair.Name, res.State)
		if res.TxHash != (common.Hash{}) {
			line += " tx=" + res.TxHash.Hex()
		}
		if res.Err != nil {
			line += " err=" + res.Err.Error()
		}
		fmt.Println(line)
	}
}
