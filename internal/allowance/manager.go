package allowance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/mselser95/predict-trader/pkg/wallet"
	"go.uber.org/zap"
)

// Policy selects how much collateral allowance is requested.
type Policy string

const (
	// PolicyUnlimited approves MaxUint256 once; anything at or above half of it counts
	// as sufficient.
	PolicyUnlimited Policy = "unlimited"
	// PolicyExact approves exactly the amount the flow needs.
	PolicyExact Policy = "exact"
)

// ParsePolicy parses an approval policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case PolicyUnlimited, "":
		return PolicyUnlimited, nil
	case PolicyExact:
		return PolicyExact, nil
	default:
		return "", fmt.Errorf("unknown approval policy %q", s)
	}
}

//nolint:gochecknoglobals // constant threshold
var unlimitedThreshold = new(big.Int).Rsh(math.MaxBig256, 1)

// Wallet is what the manager needs from the connected wallet.
type Wallet interface {
	Address() common.Address
	wallet.Chain
}

// Manager tracks approval state per pair and performs approvals.
type Manager struct {
	wallet         Wallet
	contracts      Contracts
	network        wallet.ChainParams
	policy         Policy
	confirmTimeout time.Duration
	logger         *zap.Logger

	approveMu sync.Mutex

	mu     sync.RWMutex
	states map[Pair]State
}

// Config holds allowance manager configuration.
type Config struct {
	Wallet    Wallet
	Contracts Contracts
	Network   wallet.ChainParams
	Policy    Policy
	// ConfirmTimeout bounds the wait for each approval receipt. Defaults to 2m.
	ConfirmTimeout time.Duration
	Logger         *zap.Logger
}

// New creates an allowance manager.
func New(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Wallet == nil {
		return nil, errors.New("wallet cannot be nil")
	}

	if cfg.Network.ChainID == nil {
		return nil, errors.New("network chain id cannot be nil")
	}

	c := cfg.Contracts
	if c.Collateral == (common.Address{}) || c.ConditionalTokens == (common.Address{}) || c.Exchange == (common.Address{}) {
		return nil, errors.New("collateral, conditional tokens and exchange addresses are required")
	}

	policy := cfg.Policy
	if policy == "" {
		policy = PolicyUnlimited
	}
	if policy != PolicyUnlimited && policy != PolicyExact {
		return nil, fmt.Errorf("unknown approval policy %q", policy)
	}

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	if c.NegRiskExchange == (common.Address{}) || c.NegRiskAdapter == (common.Address{}) {
		cfg.Logger.Warn("neg-risk-contracts-missing",
			zap.String("neg-risk-exchange", c.NegRiskExchange.Hex()),
			zap.String("neg-risk-adapter", c.NegRiskAdapter.Hex()))
	}

	return &Manager{
		wallet:         cfg.Wallet,
		contracts:      cfg.Contracts,
		network:        cfg.Network,
		policy:         policy,
		confirmTimeout: timeout,
		logger:         cfg.Logger,
		states:         make(map[Pair]State),
	}, nil
}

// Pairs returns every pair a market of the given type uses. Pairs whose spender is
// not deployed on this network (zero address) are left out.
func (m *Manager) Pairs(negRisk bool) []Pair {
	pairs := m.collateralPairs(negRisk)
	return append(pairs, m.operatorPairs(negRisk)...)
}

func (m *Manager) collateralPairs(negRisk bool) []Pair {
	owner := m.wallet.Address()
	c := m.contracts

	pairs := []Pair{
		{Name: pairCollateralExchange, Owner: owner, Spender: c.Exchange, Token: c.Collateral, Kind: KindERC20},
	}
	if negRisk {
		pairs = append(pairs,
			Pair{Name: pairCollateralNegRiskExchange, Owner: owner, Spender: c.NegRiskExchange, Token: c.Collateral, Kind: KindERC20},
			Pair{Name: pairCollateralNegRiskAdapter, Owner: owner, Spender: c.NegRiskAdapter, Token: c.Collateral, Kind: KindERC20},
		)
	}
	return deployed(pairs)
}

func (m *Manager) operatorPairs(negRisk bool) []Pair {
	owner := m.wallet.Address()
	c := m.contracts

	pairs := []Pair{
		{Name: pairOperatorExchange, Owner: owner, Spender: c.Exchange, Token: c.ConditionalTokens, Kind: KindOperator},
	}
	if negRisk {
		pairs = append(pairs,
			Pair{Name: pairOperatorNegRiskExchange, Owner: owner, Spender: c.NegRiskExchange, Token: c.ConditionalTokens, Kind: KindOperator},
			Pair{Name: pairOperatorNegRiskAdapter, Owner: owner, Spender: c.NegRiskAdapter, Token: c.ConditionalTokens, Kind: KindOperator},
		)
	}
	return deployed(pairs)
}

// deployed drops pairs whose spender is the zero address.
func deployed(pairs []Pair) []Pair {
	out := pairs[:0]
	for _, p := range pairs {
		if p.Spender != (common.Address{}) {
			out = append(out, p)
		}
	}
	return out
}

// Required returns the pairs that must be SUFFICIENT before flow may be signed.
//
// A neg-risk order names the neg-risk exchange as its verifying contract, and that
// exchange settles fills through the neg-risk adapter. A neg-risk BUY therefore blocks
// on the collateral allowance of all three spenders, not only the standard exchange:
// with any of them missing the order would be accepted by the backend and then fail
// at settlement. SELL is the same for operator approvals. REDEEM only needs the adapter
// to move outcome shares, and only on neg-risk markets.
func (m *Manager) Required(flow types.Flow) []Pair {
	switch flow.Action {
	case types.ActionBuy:
		return m.collateralPairs(flow.NegRisk)
	case types.ActionSell:
		return m.operatorPairs(flow.NegRisk)
	case types.ActionRedeem:
		if !flow.NegRisk {
			return nil
		}
		return deployed([]Pair{{
			Name:    pairOperatorNegRiskAdapter,
			Owner:   m.wallet.Address(),
			Spender: m.contracts.NegRiskAdapter,
			Token:   m.contracts.ConditionalTokens,
			Kind:    KindOperator,
		}})
	default:
		return nil
	}
}

// State returns the last known state of p.
func (m *Manager) State(p Pair) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[p]
}

func (m *Manager) setState(p Pair, s State) {
	m.mu.Lock()
	m.states[p] = s
	m.mu.Unlock()

	m.logger.Debug("allowance-state-changed",
		zap.String("pair", p.Name),
		zap.String("state", s.String()))
}

// Permit returns nil only if every pair flow requires is SUFFICIENT. Pairs not already
// known to be sufficient are read from chain.
func (m *Manager) Permit(ctx context.Context, flow types.Flow) error {
	var missing []string

	for _, pair := range m.Required(flow) {
		if m.State(pair) == StateSufficient && (pair.Kind == KindOperator || m.policy == PolicyUnlimited) {
			continue
		}

		m.setState(pair, StateChecking)

		ok, err := m.sufficient(ctx, pair, flow.Amount)
		if err != nil {
			m.logger.Warn("allowance-read-failed", zap.String("pair", pair.Name), zap.Error(err))
			m.setState(pair, StateUnknown)
			missing = append(missing, pair.Name)
			continue
		}

		if !ok {
			m.setState(pair, StateInsufficient)
			missing = append(missing, pair.Name)
			continue
		}

		m.setState(pair, StateSufficient)
	}

	if len(missing) > 0 {
		PermitDeniedTotal.WithLabelValues(flow.Action.String()).Inc()
		return fmt.Errorf("%w: %s", types.ErrApprovalRequired, strings.Join(missing, ", "))
	}

	return nil
}

// EnsureApprovals puts the pairs flow requires in place. See ensure.
func (m *Manager) EnsureApprovals(ctx context.Context, flow types.Flow) (*Report, error) {
	return m.ensure(ctx, m.Required(flow), flow.NegRisk, flow.Amount)
}

// EnsureMarketApprovals puts every pair a market of the given type uses in place, for
// all flows at once. See ensure.
func (m *Manager) EnsureMarketApprovals(ctx context.Context, negRisk bool, amount *big.Int) (*Report, error) {
	return m.ensure(ctx, m.Pairs(negRisk), negRisk, amount)
}

// ensure switches the wallet to the configured network first, then handles pairs one
// at a time; a failed pair is recorded in the report and the run moves on to the next
// one. The returned error covers the run as a whole, check Report.Err for the pairs.
func (m *Manager) ensure(ctx context.Context, pairs []Pair, negRisk bool, amount *big.Int) (*Report, error) {
	m.approveMu.Lock()
	defer m.approveMu.Unlock()

	if m.policy == PolicyExact && hasKind(pairs, KindERC20) && (amount == nil || amount.Sign() <= 0) {
		return nil, errors.New("exact approval policy needs a positive amount")
	}

	report := &Report{}
	if len(pairs) == 0 {
		return report, nil
	}

	err := wallet.EnsureNetwork(ctx, m.wallet, m.network, m.logger)
	if err != nil {
		return nil, fmt.Errorf("ensure network: %w", err)
	}

	for _, pair := range pairs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Results = append(report.Results, m.ensurePair(ctx, pair, amount))
	}

	m.logger.Info("approvals-ensured",
		zap.Bool("neg-risk", negRisk),
		zap.Int("pairs", len(report.Results)),
		zap.Int("failed", len(report.Failed())))

	return report, nil
}

func hasKind(pairs []Pair, kind Kind) bool {
	for _, p := range pairs {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

func (m *Manager) ensurePair(ctx context.Context, pair Pair, amount *big.Int) PairResult {
	m.setState(pair, StateChecking)

	ok, err := m.sufficient(ctx, pair, amount)
	switch {
	case err != nil:
		m.logger.Warn("allowance-read-failed-approving-anyway",
			zap.String("pair", pair.Name),
			zap.Error(err))
	case ok:
		m.setState(pair, StateSufficient)
		return PairResult{Pair: pair, State: StateSufficient}
	default:
		m.setState(pair, StateInsufficient)
	}

	m.setState(pair, StateApproving)

	txHash, err := m.approve(ctx, pair, amount)
	if err != nil {
		m.setState(pair, StateApprovalFailed)
		ApprovalsTotal.WithLabelValues(pair.Name, "failed").Inc()

		approvalErr := &types.ApprovalError{
			Spender: pair.Spender.Hex(),
			Token:   pair.Token.Hex(),
			Err:     err,
		}
		if txHash != (common.Hash{}) {
			approvalErr.TxHash = txHash.Hex()
		}

		m.logger.Error("approval-failed",
			zap.String("pair", pair.Name),
			zap.String("tx-hash", approvalErr.TxHash),
			zap.Error(err))

		return PairResult{Pair: pair, State: StateApprovalFailed, TxHash: txHash, Err: approvalErr}
	}

	m.setState(pair, StateSufficient)
	ApprovalsTotal.WithLabelValues(pair.Name, "confirmed").Inc()

	m.logger.Info("approval-confirmed",
		zap.String("pair", pair.Name),
		zap.String("spender", pair.Spender.Hex()),
		zap.String("tx-hash", txHash.Hex()))

	return PairResult{Pair: pair, State: StateSufficient, TxHash: txHash}
}

func (m *Manager) approve(ctx context.Context, pair Pair, amount *big.Int) (common.Hash, error) {
	var (
		data []byte
		err  error
	)

	switch pair.Kind {
	case KindERC20:
		value := math.MaxBig256
		if m.policy == PolicyExact {
			value = amount
		}
		data, err = wallet.PackApprove(pair.Spender, value)
	case KindOperator:
		data, err = wallet.PackSetApprovalForAll(pair.Spender, true)
	default:
		err = fmt.Errorf("unknown pair kind %s", pair.Kind)
	}
	if err != nil {
		return common.Hash{}, err
	}

	txHash, err := m.wallet.SendTransaction(ctx, pair.Token, data)
	if err != nil {
		if types.IsUserRejection(err) {
			return common.Hash{}, fmt.Errorf("%w: %w", types.ErrSigningRejected, err)
		}
		return common.Hash{}, fmt.Errorf("send approval: %w", err)
	}

	m.logger.Info("approval-sent",
		zap.String("pair", pair.Name),
		zap.String("tx-hash", txHash.Hex()))

	waitCtx, cancel := context.WithTimeout(ctx, m.confirmTimeout)
	defer cancel()

	receipt, err := m.wallet.WaitMined(waitCtx, txHash)
	if err != nil {
		return txHash, fmt.Errorf("wait for approval: %w", err)
	}

	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return txHash, errors.New("approval transaction reverted")
	}

	return txHash, nil
}

func (m *Manager) sufficient(ctx context.Context, pair Pair, amount *big.Int) (bool, error) {
	switch pair.Kind {
	case KindERC20:
		granted, err := wallet.ERC20Allowance(ctx, m.wallet, pair.Token, pair.Owner, pair.Spender)
		if err != nil {
			ChecksTotal.WithLabelValues(pair.Name, "error").Inc()
			return false, err
		}
		ok := granted.Cmp(m.threshold(amount)) >= 0
		ChecksTotal.WithLabelValues(pair.Name, resultLabel(ok)).Inc()
		return ok, nil
	case KindOperator:
		ok, err := wallet.ERC1155ApprovedForAll(ctx, m.wallet, pair.Token, pair.Owner, pair.Spender)
		if err != nil {
			ChecksTotal.WithLabelValues(pair.Name, "error").Inc()
			return false, err
		}
		ChecksTotal.WithLabelValues(pair.Name, resultLabel(ok)).Inc()
		return ok, nil
	default:
		return false, fmt.Errorf("unknown pair kind %s", pair.Kind)
	}
}

func (m *Manager) threshold(amount *big.Int) *big.Int {
	if m.policy == PolicyExact {
		if amount == nil || amount.Sign() <= 0 {
			return big.NewInt(1)
		}
		return amount
	}
	return unlimitedThreshold
}

func resultLabel(sufficient bool) string {
	if sufficient {
		return "sufficient"
	}
	return "insufficient"
}
