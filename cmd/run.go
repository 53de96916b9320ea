package cmd

import (
	"fmt"

	"github.com/mselser95/predict-trader/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracking service",
	Long: `Starts the long-running service, which will:
1. Poll the order books of the markets given with --market
2. Track positions and wallet balances when PRIVATE_KEY is set
3. Serve /metrics, /health, /ready, /api/book/{marketID} and /api/positions

Stops on SIGINT or SIGTERM.`,
	RunE: runService,
}

//nolint:gochecknoglobals // Cobra boilerplate
var runMarketIDs []string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVarP(&runMarketIDs, "market", "m", nil, "Market id to poll (repeatable)")
}

func runService(cmd *cobra.Command, args []string) error {
	application, _, err := bootstrap(&app.Options{Markets: runMarketIDs}, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = application.Logger().Sync()
	}()

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
