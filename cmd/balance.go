package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/predict-trader/pkg/wallet"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show native and collateral balances",
	Long: `Reads the wallet's native balance, its collateral balance and the collateral
allowance granted to the exchange.`,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	application, cleanup, err := bootstrap(nil, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	w, err := application.Wallet()
	if err != nil {
		return err
	}

	network := application.Network()
	balances, err := wallet.GetBalances(ctx, w, w.Address(),
		common.HexToAddress(network.Contracts.Collateral),
		common.HexToAddress(network.Contracts.Exchange))
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	fmt.Printf("=== Balances (%s) ===\n\n", network.ChainName)
	fmt.Printf("Address:              %s\n", w.Address().Hex())
	fmt.Printf("%-22s%s\n", network.NativeSymbol+":", wallet.ToUnits(balances.Native).StringFixed(6))
	fmt.Printf("Collateral:           %s\n", wallet.ToUnits(balances.Collateral).StringFixed(2))
	fmt.Printf("Exchange allowance:   %s\n", wallet.ToUnits(balances.CollateralAllowance).StringFixed(2))

	return nil
}
