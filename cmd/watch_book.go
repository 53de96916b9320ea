package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mselser95/predict-trader/internal/app"
	"github.com/mselser95/predict-trader/internal/orderbook"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchBookCmd = &cobra.Command{
	Use:   "watch-book",
	Short: "Poll a market's order book and print the top levels",
	Long: `Polls the order book of one market and prints the best levels of the chosen
outcome whenever a newer snapshot arrives. Outcome 1 is derived from outcome 0's book.

Stops on Ctrl-C.`,
	RunE: runWatchBook,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	watchMarket   string
	watchOutcome  int
	watchDepth    int
	watchInterval time.Duration
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchBookCmd)

	watchBookCmd.Flags().StringVar(&watchMarket, "market", "", "Market id (required)")
	watchBookCmd.Flags().IntVar(&watchOutcome, "outcome", 0, "Outcome index: 0 or 1")
	watchBookCmd.Flags().IntVar(&watchDepth, "depth", 5, "Levels to print per side")
	watchBookCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Poll interval (default BOOK_POLL_INTERVAL)")

	_ = watchBookCmd.MarkFlagRequired("market")
}

func runWatchBook(cmd *cobra.Command, args []string) error {
	if watchOutcome != 0 && watchOutcome != 1 {
		return fmt.Errorf("outcome must be 0 or 1, got %d", watchOutcome)
	}

	application, cleanup, err := bootstrap(&app.Options{ReadOnly: true}, false)
	if err != nil {
		return err
	}
	defer cleanup()

	interval := watchInterval
	if interval <= 0 {
		interval = application.Config().BookPollInterval
	}

	poller, err := orderbook.NewPoller(&orderbook.PollerConfig{
		MarketID: watchMarket,
		Source:   application.API(),
		Store:    application.Books(),
		Interval: interval,
		Logger:   application.Logger(),
	})
	if err != nil {
		return fmt.Errorf("create poller: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = poller.Start(ctx)
	if err != nil {
		return fmt.Errorf("start poller: %w", err)
	}
	defer poller.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			book, ok := application.Books().Get(watchMarket, watchOutcome)
			if !ok || !book.UpdatedAt.After(last) {
				continue
			}
			last = book.UpdatedAt
			fmt.Print(renderBook(book, watchDepth))
		}
	}
}

// renderBook formats the top depth levels of each side, asks above bids.
func renderBook(book *orderbook.Book, depth int) string {
	out := fmt.Sprintf("--- market %s outcome %d @ %s ---\n",
		book.MarketID, book.Outcome, book.UpdatedAt.Format(time.TimeOnly))

	asks := book.Asks
	if len(asks) > depth {
		asks = asks[:depth]
	}
	for i := len(asks) - 1; i >= 0; i-- {
		out += fmt.Sprintf("  ask %s x %s\n", asks[i].Price.StringFixed(2), asks[i].Size.String())
	}

	out += fmt.Sprintf("  mid %s\n", book.Mid().StringFixed(3))

	bids := book.Bids
	if len(bids) > depth {
		bids = bids[:depth]
	}
	for _, l := range bids {
		out += fmt.Sprintf("  bid %s x %s\n", l.Price.StringFixed(2), l.Size.String())
	}

	return out
}
