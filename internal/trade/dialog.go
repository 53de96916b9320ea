// Package trade drives one market's order flow: quote from the live book, build the
// order, sign it behind the allowance gate and submit it.
package trade

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/predict-trader/internal/allowance"
	"github.com/mselser95/predict-trader/internal/amounts"
	"github.com/mselser95/predict-trader/internal/order"
	"github.com/mselser95/predict-trader/internal/orderbook"
	"github.com/mselser95/predict-trader/internal/signing"
	"github.com/mselser95/predict-trader/internal/submission"
	"github.com/mselser95/predict-trader/pkg/types"
	"go.uber.org/zap"
)

// ErrBusy is returned when an attempt is started while another is still running.
var ErrBusy = errors.New("a trade attempt is already in progress")

// Approvals gates signing and puts allowances in place.
type Approvals interface {
	signing.Gate
	EnsureApprovals(ctx context.Context, flow types.Flow) (*allowance.Report, error)
}

// Submitter posts signed orders.
type Submitter interface {
	Submit(ctx context.Context, req *submission.Request) (*submission.Result, error)
}

// Attempt is one completed trade.
type Attempt struct {
	ID      string
	Intent  types.OrderIntent
	Amounts *amounts.Amounts
	Order   *types.SignedOrder
	Result  *submission.Result
}

// Dialog holds everything needed to trade one market.
type Dialog struct {
	market  *types.Market
	negRisk bool

	calculator *amounts.Calculator
	factory    *order.Factory
	encoder    *order.Encoder
	signer     signing.Signer
	approvals  Approvals
	submitter  Submitter

	store  *orderbook.Store
	poller *orderbook.Poller

	busy   atomic.Bool
	logger *zap.Logger
}

// Config holds dialog configuration.
type Config struct {
	Market       *types.Market
	Books        orderbook.Source
	PollInterval time.Duration
	Calculator   *amounts.Calculator
	Factory      *order.Factory
	Encoder      *order.Encoder
	Signer       signing.Signer
	Approvals    Approvals
	Submitter    Submitter
	Logger       *zap.Logger
}

// New creates a dialog for cfg.Market. The market must report isNegRisk: it decides
// which exchange verifies the order.
func New(cfg *Config) (*Dialog, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Market == nil {
		return nil, errors.New("market cannot be nil")
	}

	if cfg.Books == nil || cfg.Calculator == nil || cfg.Factory == nil || cfg.Encoder == nil {
		return nil, errors.New("books, calculator, factory and encoder are required")
	}

	if cfg.Signer == nil || cfg.Approvals == nil || cfg.Submitter == nil {
		return nil, errors.New("signer, approvals and submitter are required")
	}

	negRisk, err := cfg.Market.RequireNegRisk()
	if err != nil {
		return nil, err
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	logger := cfg.Logger.With(zap.String("market-id", cfg.Market.ID))
	store := orderbook.NewStore(logger)

	poller, err := orderbook.NewPoller(&orderbook.PollerConfig{
		MarketID: cfg.Market.ID,
		Source:   cfg.Books,
		Store:    store,
		Interval: interval,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}

	return &Dialog{
		market:     cfg.Market,
		negRisk:    negRisk,
		calculator: cfg.Calculator,
		factory:    cfg.Factory,
		encoder:    cfg.Encoder,
		signer:     cfg.Signer,
		approvals:  cfg.Approvals,
		submitter:  cfg.Submitter,
		store:      store,
		poller:     poller,
		logger:     logger,
	}, nil
}

// Market returns the dialog's market.
func (d *Dialog) Market() *types.Market {
	return d.market
}

// Start begins polling the book.
func (d *Dialog) Start(ctx context.Context) error {
	return d.poller.Start(ctx)
}

// Stop ends polling. No book writes happen after it returns.
func (d *Dialog) Stop() {
	d.poller.Stop()
}

// RefreshBook fetches the book once, outside the polling schedule.
func (d *Dialog) RefreshBook(ctx context.Context) error {
	return d.poller.Refresh(ctx)
}

// Book returns the latest snapshot for an outcome.
func (d *Dialog) Book(outcome int) (*orderbook.Book, bool) {
	return d.store.Get(d.market.ID, outcome)
}

// Busy reports whether an attempt is in progress.
func (d *Dialog) Busy() bool {
	return d.busy.Load()
}

// Quote computes the amounts intent would trade. Market orders are priced against the
// latest book snapshot of the intent's outcome; without one the calculator's fallback
// clamp applies, or the quote fails with ErrInsufficientLiquidity.
func (d *Dialog) Quote(intent types.OrderIntent) (*amounts.Amounts, error) {
	if _, err := d.market.Outcome(intent.OutcomeIndex); err != nil {
		return nil, err
	}

	switch intent.Kind {
	case types.KindLimit:
		return d.calculator.Limit(intent.Side, intent.Price, intent.Quantity)
	case types.KindMarket:
		book, ok := d.Book(intent.OutcomeIndex)
		if !ok {
			d.logger.Debug("quote-without-book", zap.Int("outcome", intent.OutcomeIndex))
		}
		return d.calculator.Market(intent.Side, intent.Quantity, book)
	default:
		return nil, fmt.Errorf("%w: invalid order kind %q", types.ErrValidation, intent.Kind)
	}
}

// Flow returns the permission flow of a side with the given collateral amount.
func (d *Dialog) Flow(side types.Side, amount *big.Int) types.Flow {
	return types.FlowForSide(side, d.negRisk, amount)
}

// Approve puts every allowance this market needs in place for side.
func (d *Dialog) Approve(ctx context.Context, side types.Side, amount *big.Int) (*allowance.Report, error) {
	report, err := d.approvals.EnsureApprovals(ctx, d.Flow(side, amount))
	if err != nil {
		return nil, fmt.Errorf("ensure approvals: %w", err)
	}
	return report, nil
}

// Submit runs one attempt: quote, build, sign and submit. Only one attempt runs at a
// time; a concurrent call returns ErrBusy. Nothing is retried.
func (d *Dialog) Submit(ctx context.Context, intent types.OrderIntent) (*Attempt, error) {
	if !d.busy.CompareAndSwap(false, true) {
		AttemptsTotal.WithLabelValues(string(intent.Kind), "busy").Inc()
		return nil, ErrBusy
	}
	defer d.busy.Store(false)

	attempt := &Attempt{ID: uuid.NewString(), Intent: intent}
	logger := d.logger.With(zap.String("attempt-id", attempt.ID))

	start := time.Now()
	err := d.run(ctx, attempt, logger)
	if err != nil {
		AttemptsTotal.WithLabelValues(string(intent.Kind), resultLabel(err)).Inc()
		logger.Warn("trade-attempt-failed", zap.Error(err))
		return nil, err
	}

	AttemptsTotal.WithLabelValues(string(intent.Kind), "submitted").Inc()
	AttemptDuration.Observe(time.Since(start).Seconds())

	return attempt, nil
}

func (d *Dialog) run(ctx context.Context, attempt *Attempt, logger *zap.Logger) error {
	intent := attempt.Intent

	a, err := d.Quote(intent)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}
	attempt.Amounts = a

	logger.Info("trade-quoted",
		zap.String("side", intent.Side.String()),
		zap.String("kind", string(intent.Kind)),
		zap.Int("outcome", intent.OutcomeIndex),
		zap.String("quantity", amounts.FormatUnits(a.Quantity)),
		zap.String("price", amounts.FormatUnits(a.PricePerShare)),
		zap.String("notional", amounts.FormatUnits(a.Notional)),
		zap.Bool("clamped", a.Clamped))

	unsigned, err := d.factory.Build(d.market, intent, a)
	if err != nil {
		return fmt.Errorf("build order: %w", err)
	}

	session, err := signing.NewSession(&signing.Config{
		Encoder: d.encoder,
		Signer:  d.signer,
		Gate:    d.approvals,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create signing session: %w", err)
	}

	signed, err := session.Sign(ctx, signing.Request{
		Order:   unsigned,
		NegRisk: d.negRisk,
		Flow:    d.Flow(intent.Side, a.Notional),
	})
	if err != nil {
		return err
	}
	attempt.Order = signed

	result, err := d.submitter.Submit(ctx, &submission.Request{
		Order:         signed,
		Strategy:      intent.Kind,
		PricePerShare: a.PricePerShare,
	})
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	attempt.Result = result

	return nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, types.ErrValidation):
		return "invalid"
	case errors.Is(err, types.ErrLiquidity):
		return "no_liquidity"
	case errors.Is(err, types.ErrApproval):
		return "approval_required"
	case errors.Is(err, types.ErrSigningRejected):
		return "rejected"
	case errors.Is(err, types.ErrSubmissionRejected):
		return "submission_rejected"
	case errors.Is(err, types.ErrTransport):
		return "transport"
	default:
		return "error"
	}
}
