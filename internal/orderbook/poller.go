package orderbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/predict-trader/internal/scheduler"
	"go.uber.org/zap"
)

// Source fetches a fresh outcome-0 snapshot for a market.
type Source interface {
	GetOrderbook(ctx context.Context, marketID string) (*Book, error)
}

// Poller keeps one market's snapshot in a Store fresh. A failed fetch leaves the
// previous snapshot in place.
type Poller struct {
	marketID string
	source   Source
	store    *Store
	task     *scheduler.Task
	logger   *zap.Logger
}

// PollerConfig holds poller configuration.
type PollerConfig struct {
	MarketID string
	Source   Source
	Store    *Store
	Interval time.Duration
	Logger   *zap.Logger
}

// NewPoller creates a poller for one market.
func NewPoller(cfg *PollerConfig) (*Poller, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.MarketID == "" {
		return nil, errors.New("market id cannot be empty")
	}

	if cfg.Source == nil || cfg.Store == nil {
		return nil, errors.New("source and store are required")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	p := &Poller{
		marketID: cfg.MarketID,
		source:   cfg.Source,
		store:    cfg.Store,
		logger:   cfg.Logger.With(zap.String("market-id", cfg.MarketID)),
	}

	task, err := scheduler.New(&scheduler.Config{
		Name:     "orderbook",
		Interval: cfg.Interval,
		Func:     p.refresh,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	p.task = task

	return p, nil
}

// Start begins polling. The first refresh happens immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("orderbook-poller-starting")
	return p.task.Start(ctx)
}

// Stop cancels polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.task.Stop()
	p.logger.Info("orderbook-poller-stopped")
}

// Refresh fetches once, outside the schedule.
func (p *Poller) Refresh(ctx context.Context) error {
	return p.refresh(ctx)
}

func (p *Poller) refresh(ctx context.Context) error {
	book, err := p.source.GetOrderbook(ctx, p.marketID)
	if err != nil {
		FetchErrorsTotal.Inc()
		return fmt.Errorf("fetch orderbook: %w", err)
	}

	p.store.Replace(book)
	return nil
}
