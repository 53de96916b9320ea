package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Tracker periodically fetches balances and updates Prometheus metrics.
type Tracker struct {
	reader       BalanceReader
	address      common.Address
	collateral   common.Address
	spender      common.Address
	pollInterval time.Duration
	logger       *zap.Logger

	mu     sync.RWMutex
	latest *Balances
}

// Config holds tracker configuration.
type Config struct {
	Reader       BalanceReader
	Address      common.Address
	Collateral   common.Address
	Spender      common.Address
	PollInterval time.Duration
	Logger       *zap.Logger
}

// New creates a new wallet tracker.
func New(cfg *Config) (t *Tracker, err error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Reader == nil {
		return nil, errors.New("balance reader cannot be nil")
	}

	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	tracker := &Tracker{
		reader:       cfg.Reader,
		address:      cfg.Address,
		collateral:   cfg.Collateral,
		spender:      cfg.Spender,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}

	return tracker, nil
}

// Run starts the tracker polling loop (blocking).
func (t *Tracker) Run(ctx context.Context) (err error) {
	t.logger.Info("wallet-tracker-starting",
		zap.Duration("poll-interval", t.pollInterval),
		zap.String("address", t.address.Hex()))

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	// Initial poll
	pollErr := t.poll(ctx)
	if pollErr != nil {
		t.logger.Error("initial-poll-failed", zap.Error(pollErr))
		UpdateErrorsTotal.Inc()
	}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("wallet-tracker-stopping")
			return ctx.Err()
		case <-ticker.C:
			pollErr = t.poll(ctx)
			if pollErr != nil {
				t.logger.Error("poll-failed", zap.Error(pollErr))
				UpdateErrorsTotal.Inc()
			}
		}
	}
}

// Latest returns the most recent successful snapshot, or nil.
func (t *Tracker) Latest() *Balances {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}

// poll performs a single polling cycle.
func (t *Tracker) poll(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		UpdateDuration.Observe(time.Since(start).Seconds())
	}()

	balCtx, balCancel := context.WithTimeout(ctx, 15*time.Second)
	defer balCancel()

	balances, err := GetBalances(balCtx, t.reader, t.address, t.collateral, t.spender)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	t.mu.Lock()
	t.latest = balances
	t.mu.Unlock()

	updateMetrics(balances)
	LastUpdateTimestamp.Set(float64(time.Now().Unix()))

	if balances.CollateralAllowance.Cmp(balances.Collateral) < 0 {
		t.logger.Warn("collateral-allowance-below-balance",
			zap.String("spender", t.spender.Hex()),
			zap.String("allowance", ToUnits(balances.CollateralAllowance).String()),
			zap.String("balance", ToUnits(balances.Collateral).String()))
	}

	t.logger.Debug("poll-complete", zap.Duration("duration", time.Since(start)))

	return nil
}

// updateMetrics updates Prometheus gauges with wallet data.
func updateMetrics(balances *Balances) {
	native, _ := ToUnits(balances.Native).Float64()
	NativeBalance.Set(native)

	collateral, _ := ToUnits(balances.Collateral).Float64()
	CollateralBalance.Set(collateral)

	allowance, _ := ToUnits(balances.CollateralAllowance).Float64()
	CollateralAllowance.Set(allowance)
}
