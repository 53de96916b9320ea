package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mselser95/predict-trader/internal/amounts"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var placeOrderCmd = &cobra.Command{
	Use:   "place-order",
	Short: "Sign and submit a limit or market order",
	Long: `Builds an order for one outcome of a market, signs it with PRIVATE_KEY and
submits it.

Limit orders take --price (0.01 to 0.99, two decimals). Market orders are priced
from the current order book; --price is ignored.

Examples:
  # Buy 10 YES shares at 0.42
  predict-trader place-order --market 123 --side buy --outcome yes --price 0.42 --quantity 10

  # Sell 5 NO shares into the book, granting missing approvals first
  predict-trader place-order --market 123 --side sell --outcome no --type market --quantity 5 --approve

  # Show the amounts without signing
  predict-trader place-order --market 123 --side buy --outcome 0 --price 0.5 --quantity 2 --dry-run`,
	RunE: runPlaceOrder,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	orderMarket   string
	orderSide     string
	orderType     string
	orderOutcome  string
	orderPrice    string
	orderQuantity string
	orderApprove  bool
	orderDryRun   bool
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(placeOrderCmd)

	placeOrderCmd.Flags().StringVar(&orderMarket, "market", "", "Market id (required)")
	placeOrderCmd.Flags().StringVar(&orderSide, "side", "buy", "Order side: buy or sell")
	placeOrderCmd.Flags().StringVar(&orderType, "type", "limit", "Order type: limit or market")
	placeOrderCmd.Flags().StringVar(&orderOutcome, "outcome", "0", "Outcome index or name")
	placeOrderCmd.Flags().StringVar(&orderPrice, "price", "", "Limit price per share")
	placeOrderCmd.Flags().StringVar(&orderQuantity, "quantity", "", "Number of shares (required)")
	placeOrderCmd.Flags().BoolVar(&orderApprove, "approve", false, "Grant missing approvals before signing")
	placeOrderCmd.Flags().BoolVar(&orderDryRun, "dry-run", false, "Print the computed amounts and stop")

	_ = placeOrderCmd.MarkFlagRequired("market")
	_ = placeOrderCmd.MarkFlagRequired("quantity")
}

func runPlaceOrder(cmd *cobra.Command, args []string) error {
	side, err := types.ParseSide(orderSide)
	if err != nil {
		return err
	}
	kind, err := types.ParseKind(orderType)
	if err != nil {
		return err
	}
	if kind == types.KindLimit && orderPrice == "" {
		return fmt.Errorf("%w: --price is required for limit orders", types.ErrValidation)
	}

	application, cleanup, err := bootstrap(nil, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	dialog, err := application.NewDialog(ctx, orderMarket)
	if err != nil {
		return err
	}

	outcome, err := resolveOutcome(dialog.Market(), orderOutcome)
	if err != nil {
		return err
	}

	intent := types.OrderIntent{
		Side:         side,
		Kind:         kind,
		OutcomeIndex: outcome.Index,
		Price:        orderPrice,
		Quantity:     orderQuantity,
	}

	if kind == types.KindMarket {
		err = dialog.RefreshBook(ctx)
		if err != nil {
			fmt.Printf("Warning: order book unavailable (%v)\n", err)
		}
	}

	quote, err := dialog.Quote(intent)
	if err != nil {
		return err
	}

	fmt.Printf("=== %s %s ===\n\n", side, kind)
	fmt.Printf("Market:   %s %s\n", dialog.Market().ID, dialog.Market().Question)
	fmt.Printf("Outcome:  %s (token %s)\n", outcome.Name, outcome.TokenID)
	printAmounts(quote)

	if orderDryRun {
		return nil
	}

	_, err = application.EnsureToken(ctx)
	if err != nil {
		return err
	}

	if orderApprove {
		flow := dialog.Flow(side, quote.Notional)
		report, approveErr := dialog.Approve(ctx, side, quote.Notional)
		err = approvalOutcome(flow.Action.String(), report, approveErr, application.Translator())
		if err != nil {
			return err
		}
	}

	attempt, err := dialog.Submit(ctx, intent)
	if err != nil {
		return fmt.Errorf("submit order: %s", describeError(err, application.Translator()))
	}

	fmt.Printf("\nOrder accepted\n")
	fmt.Printf("  Order ID:   %s\n", attempt.Result.OrderID)
	fmt.Printf("  Order hash: %s\n", attempt.Order.Hash.Hex())

	return nil
}

// resolveOutcome accepts an outcome index or a case-insensitive outcome name.
func resolveOutcome(market *types.Market, s string) (types.Outcome, error) {
	if index, err := strconv.Atoi(s); err == nil {
		return market.Outcome(index)
	}

	for _, o := range market.Outcomes {
		if strings.EqualFold(o.Name, s) {
			return o, nil
		}
	}

	return types.Outcome{}, fmt.Errorf("%w: market %s has no outcome %q", types.ErrUnknownOutcome, market.ID, s)
}

func printAmounts(a *amounts.Amounts) {
	fmt.Printf("Quantity: %s shares\n", amounts.FormatUnits(a.Quantity))
	fmt.Printf("Price:    %s\n", amounts.FormatUnits(a.PricePerShare))
	fmt.Printf("Notional: %s\n", amounts.FormatUnits(a.Notional))
	fmt.Printf("Maker:    %s\n", a.MakerAmount)
	fmt.Printf("Taker:    %s\n", a.TakerAmount)
	if a.Clamped {
		fmt.Printf("Note:     priced at the worst-case limit, the book could not fill the quantity\n")
	}
}
