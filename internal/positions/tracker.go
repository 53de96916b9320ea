package positions

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/mselser95/predict-trader/internal/orderbook"
	"github.com/mselser95/predict-trader/internal/scheduler"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source lists an owner's positions.
type Source interface {
	GetPositions(ctx context.Context, owner string) ([]*types.Position, error)
}

// Tracker polls positions and marks them at the current book mid.
type Tracker struct {
	source      Source
	books       orderbook.Source
	owner       string
	concurrency int
	task        *scheduler.Task
	logger      *zap.Logger

	mu        sync.RWMutex
	positions []*types.Position
	updatedAt time.Time
}

// Config holds tracker configuration.
type Config struct {
	Source Source
	// Books is optional; positions stay unmarked without it.
	Books    orderbook.Source
	Owner    string
	Interval time.Duration
	// Concurrency bounds parallel book fetches. Defaults to 4.
	Concurrency int
	Logger      *zap.Logger
}

// New creates a positions tracker.
func New(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Source == nil {
		return nil, errors.New("source cannot be nil")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	t := &Tracker{
		source:      cfg.Source,
		books:       cfg.Books,
		owner:       cfg.Owner,
		concurrency: concurrency,
		logger:      cfg.Logger,
	}

	task, err := scheduler.New(&scheduler.Config{
		Name:     "positions",
		Interval: interval,
		Func:     t.Refresh,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	t.task = task

	return t, nil
}

// Start begins polling. The first refresh happens immediately.
func (t *Tracker) Start(ctx context.Context) error {
	t.logger.Info("positions-tracker-starting", zap.String("owner", t.owner))
	return t.task.Start(ctx)
}

// Stop cancels polling and waits for the loop to exit.
func (t *Tracker) Stop() {
	t.task.Stop()
	t.logger.Info("positions-tracker-stopped")
}

// Trigger asks the running loop for an immediate refresh.
func (t *Tracker) Trigger() {
	t.task.Trigger()
}

// Positions returns the latest snapshot. The slice is a copy; the positions themselves
// are never modified after publication.
func (t *Tracker) Positions() []*types.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*types.Position(nil), t.positions...)
}

// Redeemable returns the positions that are resolved and hold shares.
func (t *Tracker) Redeemable() []*types.Position {
	return FilterRedeemable(t.Positions())
}

// UpdatedAt returns when the snapshot was last replaced.
func (t *Tracker) UpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updatedAt
}

// Refresh fetches and marks positions once, replacing the snapshot on success. A failed
// fetch keeps the previous snapshot.
func (t *Tracker) Refresh(ctx context.Context) error {
	positions, err := t.source.GetPositions(ctx, t.owner)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	marked := t.mark(ctx, positions)

	total := decimal.Zero
	for _, p := range marked {
		total = total.Add(p.Value)
	}
	redeemable := len(FilterRedeemable(marked))

	t.mu.Lock()
	t.positions = marked
	t.updatedAt = time.Now()
	t.mu.Unlock()

	PositionsTracked.Set(float64(len(marked)))
	PositionsRedeemable.Set(float64(redeemable))
	PortfolioValue.Set(total.InexactFloat64())
	LastRefreshTimestamp.SetToCurrentTime()

	t.logger.Debug("positions-refreshed",
		zap.Int("count", len(marked)),
		zap.Int("redeemable", redeemable),
		zap.String("value", total.StringFixed(2)))

	return nil
}

// mark returns copies of positions with MarkPrice and Value filled in. Each market's
// book is fetched once; a failed fetch leaves that market's positions unmarked.
func (t *Tracker) mark(ctx context.Context, positions []*types.Position) []*types.Position {
	out := make([]*types.Position, len(positions))
	for i, p := range positions {
		c := *p
		out[i] = &c
	}

	if t.books == nil {
		return out
	}

	var mu sync.Mutex
	books := make(map[string]*orderbook.Book)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	seen := make(map[string]bool)
	for _, p := range out {
		if p.MarketID == "" || seen[p.MarketID] {
			continue
		}
		seen[p.MarketID] = true

		marketID := p.MarketID
		g.Go(func() error {
			book, err := t.books.GetOrderbook(gctx, marketID)
			if err != nil {
				MarkErrorsTotal.Inc()
				t.logger.Debug("position-mark-failed",
					zap.String("market-id", marketID),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			books[marketID] = book
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, p := range out {
		book, ok := books[p.MarketID]
		if !ok {
			continue
		}
		p.MarkPrice = MarkPrice(book, p.OutcomeIndex)
		p.Value = Value(p.MarkPrice, p.Shares)
	}

	return out
}

// MarkPrice is the mid of the outcome's book: the average of best bid and best ask, or
// the one side present. Outcome 1 is read from the reflected book.
func MarkPrice(book *orderbook.Book, outcomeIndex int) decimal.Decimal {
	switch outcomeIndex {
	case 0:
		return book.Mid()
	case 1:
		return orderbook.Reflect(book).Mid()
	default:
		return decimal.Zero
	}
}

// Value is price times shares, with shares in 18-decimal base units.
func Value(price decimal.Decimal, shares *big.Int) decimal.Decimal {
	if shares == nil {
		return decimal.Zero
	}
	return price.Mul(decimal.NewFromBigInt(shares, -18))
}

// FilterRedeemable keeps resolved positions that hold shares.
func FilterRedeemable(positions []*types.Position) []*types.Position {
	var out []*types.Position
	for _, p := range positions {
		if p.Redeemable() {
			out = append(out, p)
		}
	}
	return out
}
