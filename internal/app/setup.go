package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
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

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		books:         orderbook.NewStore(logger),
		calculator:    amounts.NewCalculator(amounts.WithFallbackClamp(cfg.MarketFallbackClamp)),
		translator:    submission.NewTranslator(submission.Language(cfg.Locale)),
		healthChecker: healthprobe.New(),
		ctx:           ctx,
		cancel:        cancel,
	}

	err := a.setup(opts)
	if err != nil {
		a.closeResources()
		cancel()
		return nil, err
	}

	return a, nil
}

func (a *App) setup(opts *Options) error {
	var err error

	a.marketCache, err = setupCache(a.logger)
	if err != nil {
		return fmt.Errorf("setup cache: %w", err)
	}

	a.api, err = setupAPIClient(a.cfg, a.logger, a.marketCache)
	if err != nil {
		return fmt.Errorf("setup api client: %w", err)
	}

	a.pollers, err = setupPollers(a.cfg, a.logger, a.api, a.books, opts.Markets)
	if err != nil {
		return fmt.Errorf("setup book pollers: %w", err)
	}

	if !opts.ReadOnly {
		a.network, err = config.LoadNetwork(a.cfg.Network, a.cfg.NetworkFile)
		if err != nil {
			return fmt.Errorf("load network: %w", err)
		}

		a.encoder, err = setupEncoder(a.network)
		if err != nil {
			return fmt.Errorf("setup encoder: %w", err)
		}

		if a.cfg.PrivateKey != "" {
			err = a.setupWallet()
			if err != nil {
				return err
			}
		}
	}

	a.httpServer, err = setupHTTPServer(a)
	if err != nil {
		return fmt.Errorf("setup http server: %w", err)
	}

	return nil
}

// setupWallet builds every component that needs the connected account.
func (a *App) setupWallet() error {
	var err error

	a.provider, err = wallet.NewKeyProvider(a.ctx, &wallet.KeyProviderConfig{
		PrivateKey: a.cfg.PrivateKey,
		RPCURL:     a.rpcURL(),
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("setup wallet: %w", err)
	}

	a.factory, err = order.NewFactory(&order.FactoryConfig{
		Maker:     a.provider.Address(),
		Nonce:     a.cfg.OrderNonce,
		LimitTTL:  a.cfg.LimitOrderTTL,
		MarketTTL: a.cfg.MarketOrderTTL,
	})
	if err != nil {
		return fmt.Errorf("setup order factory: %w", err)
	}

	a.allowances, err = setupAllowances(a.cfg, a.network, a.logger, a.provider, a.ChainParams())
	if err != nil {
		return fmt.Errorf("setup allowances: %w", err)
	}

	a.submitter, err = submission.New(&submission.Config{
		BaseURL:    a.cfg.APIBaseURL,
		APIKey:     a.cfg.APIKey,
		Tokens:     a.api,
		HTTPClient: &http.Client{Timeout: a.cfg.HTTPTimeout},
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("setup submission client: %w", err)
	}

	a.positions, err = positions.New(&positions.Config{
		Source:   a.api,
		Books:    a.api,
		Owner:    a.provider.Address().Hex(),
		Interval: a.cfg.PositionPollInterval,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("setup positions tracker: %w", err)
	}

	params := a.ChainParams()
	a.redeemer, err = redemption.New(&redemption.Config{
		Chain:          a.provider,
		Contracts:      redemptionContracts(a.network),
		Network:        &params,
		Gate:           a.allowances,
		Refresher:      a.positions,
		ConfirmTimeout: a.cfg.TxTimeout,
		Logger:         a.logger,
	})
	if err != nil {
		return fmt.Errorf("setup redemption service: %w", err)
	}

	a.balances, err = wallet.New(&wallet.Config{
		Reader:       a.provider,
		Address:      a.provider.Address(),
		Collateral:   common.HexToAddress(a.network.Contracts.Collateral),
		Spender:      common.HexToAddress(a.network.Contracts.Exchange),
		PollInterval: a.cfg.PositionPollInterval,
		Logger:       a.logger,
	})
	if err != nil {
		return fmt.Errorf("setup balance tracker: %w", err)
	}

	return nil
}

func setupCache(logger *zap.Logger) (*cache.RistrettoCache[*types.Market], error) {
	return cache.NewRistrettoCache[*types.Market](&cache.RistrettoConfig{
		Name:        "markets",
		NumCounters: 10000, // 10x expected max items
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupAPIClient(cfg *config.Config, logger *zap.Logger, markets cache.Cache[*types.Market]) (*api.Client, error) {
	return api.New(&api.Config{
		BaseURL:        cfg.APIBaseURL,
		APIKey:         cfg.APIKey,
		Token:          cfg.AuthToken,
		HTTPClient:     &http.Client{Timeout: cfg.HTTPTimeout},
		MarketCache:    markets,
		MarketCacheTTL: cfg.MarketCacheTTL,
		Logger:         logger,
	})
}

func setupPollers(
	cfg *config.Config,
	logger *zap.Logger,
	source orderbook.Source,
	store *orderbook.Store,
	markets []string,
) ([]*orderbook.Poller, error) {
	pollers := make([]*orderbook.Poller, 0, len(markets))
	for _, marketID := range markets {
		poller, err := orderbook.NewPoller(&orderbook.PollerConfig{
			MarketID: marketID,
			Source:   source,
			Store:    store,
			Interval: cfg.BookPollInterval,
			Logger:   logger.With(zap.String("market-id", marketID)),
		})
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", marketID, err)
		}
		pollers = append(pollers, poller)
	}
	return pollers, nil
}

func setupEncoder(network *config.Network) (*order.Encoder, error) {
	exchange, err := network.Address("exchange", network.Contracts.Exchange)
	if err != nil {
		return nil, err
	}
	negRiskExchange, err := network.Address("neg_risk_exchange", network.Contracts.NegRiskExchange)
	if err != nil {
		return nil, err
	}

	return order.NewEncoder(order.Domain{
		Name:            network.DomainName,
		Version:         network.DomainVersion,
		ChainID:         network.ChainIDBig(),
		Exchange:        exchange,
		NegRiskExchange: negRiskExchange,
	})
}

func setupAllowances(
	cfg *config.Config,
	network *config.Network,
	logger *zap.Logger,
	w allowance.Wallet,
	params wallet.ChainParams,
) (*allowance.Manager, error) {
	policy, err := allowance.ParsePolicy(cfg.ApprovalPolicy)
	if err != nil {
		return nil, err
	}

	c := network.Contracts
	return allowance.New(&allowance.Config{
		Wallet: w,
		Contracts: allowance.Contracts{
			Collateral:        optionalAddress(c.Collateral),
			ConditionalTokens: optionalAddress(c.ConditionalTokens),
			Exchange:          optionalAddress(c.Exchange),
			NegRiskExchange:   optionalAddress(c.NegRiskExchange),
			NegRiskAdapter:    optionalAddress(c.NegRiskAdapter),
		},
		Network:        params,
		Policy:         policy,
		ConfirmTimeout: cfg.TxTimeout,
		Logger:         logger,
	})
}

func setupHTTPServer(a *App) (*httpserver.Server, error) {
	cfg := &httpserver.Config{
		Port:          a.cfg.HTTPPort,
		Logger:        a.logger,
		HealthChecker: a.healthChecker,
		Books:         a.books,
	}
	if a.positions != nil {
		cfg.Positions = a.positions
	}
	return httpserver.New(cfg)
}

func redemptionContracts(network *config.Network) redemption.Contracts {
	c := network.Contracts
	return redemption.Contracts{
		Collateral:                    optionalAddress(c.Collateral),
		ConditionalTokens:             optionalAddress(c.ConditionalTokens),
		YieldBearingConditionalTokens: optionalAddress(c.YieldBearingConditionalTokens),
		NegRiskAdapter:                optionalAddress(c.NegRiskAdapter),
		YieldBearingNegRiskAdapter:    optionalAddress(c.YieldBearingNegRiskAdapter),
	}
}

func chainParams(network *config.Network, rpcURL string) wallet.ChainParams {
	if network == nil {
		return wallet.ChainParams{}
	}
	return wallet.ChainParams{
		ChainID:      network.ChainIDBig(),
		ChainName:    network.ChainName,
		RPCURL:       rpcURL,
		ExplorerURL:  network.ExplorerURL,
		NativeSymbol: network.NativeSymbol,
	}
}

// optionalAddress parses a configured address; empty or malformed values become the
// zero address, which downstream components treat as "not deployed".
func optionalAddress(value string) common.Address {
	if !common.IsHexAddress(value) {
		return common.Address{}
	}
	return common.HexToAddress(value)
}
