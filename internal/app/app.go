// Package app wires the trading components into a runnable process and exposes them to
// the command layer.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/mselser95/predict-trader/internal/allowance"
	"github.com/mselser95/predict-trader/internal/amounts"
	"github.com/mselser95/predict-trader/internal/api"
	"github.com/mselser95/predict-trader/internal/order"
	"github.com/mselser95/predict-trader/internal/orderbook"
	"github.com/mselser95/predict-trader/internal/positions"
	"github.com/mselser95/predict-trader/internal/redemption"
	"github.com/mselser95/predict-trader/internal/submission"
	"github.com/mselser95/predict-trader/pkg/cache"
	"github.com/mselser95/predict-trader/pkg/config"
	"github.com/mselser95/predict-trader/pkg/healthprobe"
	"github.com/mselser95/predict-trader/pkg/httpserver"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/mselser95/predict-trader/pkg/wallet"
	"go.uber.org/zap"
)

// ErrNoWallet is returned by wallet-backed accessors when no private key is configured.
var ErrNoWallet = errors.New("no wallet configured: set PRIVATE_KEY")

// App is the main application orchestrator.
type App struct {
	cfg     *config.Config
	network *config.Network
	logger  *zap.Logger

	marketCache *cache.RistrettoCache[*types.Market]
	api         *api.Client
	books       *orderbook.Store
	pollers     []*orderbook.Poller
	calculator  *amounts.Calculator
	translator  *submission.Translator

	// Wallet-backed; nil without a private key.
	provider   *wallet.KeyProvider
	encoder    *order.Encoder
	factory    *order.Factory
	allowances *allowance.Manager
	submitter  *submission.Client
	positions  *positions.Tracker
	redeemer   *redemption.Service
	balances   *wallet.Tracker

	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options holds application options.
type Options struct {
	// Markets are polled into the shared book store and served over HTTP.
	Markets []string
	// ReadOnly skips the network profile and the wallet. Only market data is available.
	ReadOnly bool
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Network returns the resolved network profile, nil in read-only mode.
func (a *App) Network() *config.Network {
	return a.network
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// API returns the backend client.
func (a *App) API() *api.Client {
	return a.api
}

// Books returns the shared book store.
func (a *App) Books() *orderbook.Store {
	return a.books
}

// Translator returns the rejection message translator for the configured locale.
func (a *App) Translator() *submission.Translator {
	return a.translator
}

// Wallet returns the connected wallet.
func (a *App) Wallet() (*wallet.KeyProvider, error) {
	if a.provider == nil {
		return nil, ErrNoWallet
	}
	return a.provider, nil
}

// Allowances returns the approval manager.
func (a *App) Allowances() (*allowance.Manager, error) {
	if a.allowances == nil {
		return nil, ErrNoWallet
	}
	return a.allowances, nil
}

// Positions returns the positions tracker.
func (a *App) Positions() (*positions.Tracker, error) {
	if a.positions == nil {
		return nil, ErrNoWallet
	}
	return a.positions, nil
}

// Redeemer returns the redemption service.
func (a *App) Redeemer() (*redemption.Service, error) {
	if a.redeemer == nil {
		return nil, ErrNoWallet
	}
	return a.redeemer, nil
}

// Balances returns the wallet balance tracker.
func (a *App) Balances() (*wallet.Tracker, error) {
	if a.balances == nil {
		return nil, ErrNoWallet
	}
	return a.balances, nil
}

// ChainParams returns what a wallet needs to add the configured network.
func (a *App) ChainParams() wallet.ChainParams {
	return chainParams(a.network, a.rpcURL())
}

func (a *App) rpcURL() string {
	if a.cfg.RPCURL != "" {
		return a.cfg.RPCURL
	}
	if a.network != nil {
		return a.network.RPCURL
	}
	return ""
}
