package app

import (
	"context"
	"fmt"

	"github.com/mselser95/predict-trader/internal/redemption"
	"github.com/mselser95/predict-trader/internal/trade"
	"github.com/mselser95/predict-trader/pkg/types"
	"go.uber.org/zap"
)

// EnsureToken logs in with the wallet when the API client has no bearer token yet and
// returns the token in use.
func (a *App) EnsureToken(ctx context.Context) (string, error) {
	if token := a.api.Token(); token != "" {
		return token, nil
	}
	if a.provider == nil {
		return "", ErrNoWallet
	}

	token, err := a.api.Login(ctx, a.provider)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	a.logger.Info("logged-in", zap.String("address", a.provider.Address().Hex()))
	return token, nil
}

// NewDialog loads a market and opens a trade dialog for it. The caller starts and stops
// the dialog.
func (a *App) NewDialog(ctx context.Context, marketID string) (*trade.Dialog, error) {
	if a.provider == nil || a.factory == nil {
		return nil, ErrNoWallet
	}

	market, err := a.api.GetMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", marketID, err)
	}

	return trade.New(&trade.Config{
		Market:       market,
		Books:        a.api,
		PollInterval: a.cfg.BookPollInterval,
		Calculator:   a.calculator,
		Factory:      a.factory,
		Encoder:      a.encoder,
		Signer:       a.provider,
		Approvals:    a.allowances,
		Submitter:    a.submitter,
		Logger:       a.logger,
	})
}

// RedemptionOutcome is the result of redeeming one position.
type RedemptionOutcome struct {
	Position *types.Position
	Params   *redemption.Params
	Result   *redemption.Result
	Err      error
}

// RedeemAll redeems every redeemable position in the latest snapshot, one at a time.
// With dryRun set it only prepares the parameters. Failures are reported per position
// and do not stop the remaining redemptions.
func (a *App) RedeemAll(ctx context.Context, dryRun bool) ([]RedemptionOutcome, error) {
	if a.positions == nil || a.redeemer == nil {
		return nil, ErrNoWallet
	}

	_, err := a.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}

	err = a.positions.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh positions: %w", err)
	}

	redeemable := a.positions.Redeemable()
	outcomes := make([]RedemptionOutcome, 0, len(redeemable))

	for _, position := range redeemable {
		outcome := RedemptionOutcome{Position: position}

		market, marketErr := a.api.GetMarket(ctx, position.MarketID)
		if marketErr != nil {
			outcome.Err = fmt.Errorf("get market %s: %w", position.MarketID, marketErr)
			outcomes = append(outcomes, outcome)
			continue
		}

		if dryRun {
			outcome.Params, outcome.Err = a.redeemer.Prepare(position, market)
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome.Result, outcome.Err = a.redeemer.Redeem(ctx, position, market)
		if outcome.Result != nil {
			outcome.Params = outcome.Result.Params
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}
