package redemption

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/mselser95/predict-trader/pkg/wallet"
	"go.uber.org/zap"
)

// ErrRedemptionFailed covers redemption failures that are neither a user rejection nor
// an unsettled market.
var ErrRedemptionFailed = errors.New("redemption failed")

// notSettledMarkers are revert reasons the settlement contracts emit before the oracle
// has reported. They carry no structured code, so matching is by substring.
//
//nolint:gochecknoglobals // revert signatures
var notSettledMarkers = []string{
	"result for condition not received yet",
	"payout denominator",
	"condition not resolved",
}

// Refresher reloads positions after a successful redemption.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Gate refuses flows whose token approvals are not in place.
type Gate interface {
	Permit(ctx context.Context, flow types.Flow) error
}

// Result is a confirmed redemption.
type Result struct {
	Params *Params
	TxHash common.Hash
}

// Service redeems resolved positions.
type Service struct {
	chain          wallet.Chain
	network        *wallet.ChainParams
	contracts      Contracts
	gate           Gate
	refresher      Refresher
	confirmTimeout time.Duration
	logger         *zap.Logger
}

// Config holds redemption service configuration.
type Config struct {
	Chain     wallet.Chain
	Contracts Contracts
	// Network, when set, is enforced on the wallet before sending.
	Network *wallet.ChainParams
	// Gate, when set, must permit the redeem flow before a transaction is sent. Neg-risk
	// redemptions move shares through the adapter, which needs operator approval.
	Gate Gate
	// Refresher is optional.
	Refresher      Refresher
	ConfirmTimeout time.Duration
	Logger         *zap.Logger
}

// New creates a redemption service.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Chain == nil {
		return nil, errors.New("chain cannot be nil")
	}

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Service{
		chain:          cfg.Chain,
		network:        cfg.Network,
		contracts:      cfg.Contracts,
		gate:           cfg.Gate,
		refresher:      cfg.Refresher,
		confirmTimeout: timeout,
		logger:         cfg.Logger,
	}, nil
}

// Prepare derives the redemption parameters for position without sending anything.
func (s *Service) Prepare(position *types.Position, market *types.Market) (*Params, error) {
	return Prepare(position, market, s.contracts)
}

// Redeem sends the redemption transaction for position and waits for its receipt.
// Unresolved or incomplete markets are refused before any transaction is built.
func (s *Service) Redeem(ctx context.Context, position *types.Position, market *types.Market) (*Result, error) {
	params, err := s.Prepare(position, market)
	if err != nil {
		RedemptionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if s.network != nil {
		err = wallet.EnsureNetwork(ctx, s.chain, *s.network, s.logger)
		if err != nil {
			RedemptionsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("%w: %w", ErrRedemptionFailed, err)
		}
	}

	if s.gate != nil {
		err = s.gate.Permit(ctx, types.Flow{Action: types.ActionRedeem, NegRisk: params.NegRisk})
		if err != nil {
			RedemptionsTotal.WithLabelValues("approval_required").Inc()
			s.logger.Warn("redemption-not-permitted",
				zap.String("market-id", params.MarketID),
				zap.Error(err))
			return nil, err
		}
	}

	s.logger.Info("redemption-sending",
		zap.String("market-id", params.MarketID),
		zap.String("condition-id", params.ConditionID.Hex()),
		zap.Int("outcome-index", params.OutcomeIndex),
		zap.String("amount", params.Amount.String()),
		zap.Bool("neg-risk", params.NegRisk),
		zap.Bool("yield-bearing", params.YieldBearing),
		zap.String("target", params.Target.Hex()))

	start := time.Now()

	txHash, err := s.chain.SendTransaction(ctx, params.Target, params.Data)
	if err != nil {
		return nil, s.fail(params, common.Hash{}, err)
	}

	s.logger.Info("redemption-tx-sent",
		zap.String("market-id", params.MarketID),
		zap.String("tx-hash", txHash.Hex()))

	waitCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	receipt, err := s.chain.WaitMined(waitCtx, txHash)
	if err != nil {
		return nil, s.fail(params, txHash, fmt.Errorf("wait for tx: %w", err))
	}
	RedemptionDuration.Observe(time.Since(start).Seconds())

	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		RedemptionsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("redemption-reverted",
			zap.String("market-id", params.MarketID),
			zap.String("tx-hash", txHash.Hex()))
		return nil, fmt.Errorf("%w: transaction %s reverted", ErrRedemptionFailed, txHash.Hex())
	}

	RedemptionsTotal.WithLabelValues("redeemed").Inc()
	s.logger.Info("redemption-confirmed",
		zap.String("market-id", params.MarketID),
		zap.String("tx-hash", txHash.Hex()),
		zap.Uint64("gas-used", receipt.GasUsed))

	if s.refresher != nil {
		refreshErr := s.refresher.Refresh(ctx)
		if refreshErr != nil {
			s.logger.Warn("positions-refresh-failed", zap.Error(refreshErr))
		}
	}

	return &Result{Params: params, TxHash: txHash}, nil
}

func (s *Service) fail(params *Params, txHash common.Hash, err error) error {
	classified := Classify(err)

	result := "failed"
	switch {
	case errors.Is(classified, types.ErrSigningRejected):
		result = "rejected"
	case errors.Is(classified, types.ErrSettlementNotReady):
		result = "not_ready"
	}
	RedemptionsTotal.WithLabelValues(result).Inc()

	fields := []zap.Field{
		zap.String("market-id", params.MarketID),
		zap.String("result", result),
		zap.Error(err),
	}
	if txHash != (common.Hash{}) {
		fields = append(fields, zap.String("tx-hash", txHash.Hex()))
	}
	s.logger.Warn("redemption-failed", fields...)

	return classified
}

// Classify maps a wallet or chain error onto the redemption error classes: user
// rejection, market not yet settled, or ErrRedemptionFailed. Approval errors pass
// through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, types.ErrApproval) {
		return err
	}

	if types.IsUserRejection(err) {
		if errors.Is(err, types.ErrSigningRejected) {
			return err
		}
		return fmt.Errorf("%w: %w", types.ErrSigningRejected, err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range notSettledMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %w", types.ErrSettlementNotReady, err)
		}
	}

	if errors.Is(err, ErrRedemptionFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRedemptionFailed, err)
}
