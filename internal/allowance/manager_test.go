package allowance

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/mselser95/predict-trader/internal/testutil"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/mselser95/predict-trader/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // test fixtures
var testContracts = Contracts{
	Collateral:        common.HexToAddress("0xc0"),
	ConditionalTokens: common.HexToAddress("0xc7"),
	Exchange:          common.HexToAddress("0xe0"),
	NegRiskExchange:   common.HexToAddress("0xe1"),
	NegRiskAdapter:    common.HexToAddress("0xad"),
}

func newTestManager(t *testing.T, w *testutil.FakeWallet, policy Policy) *Manager {
	t.Helper()
	m, err := New(&Config{
		Wallet:    w,
		Contracts: testContracts,
		Network:   wallet.ChainParams{ChainID: big.NewInt(56), ChainName: "BSC", RPCURL: "http://bsc"},
		Policy:    policy,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	return m
}

func pairNames(pairs []Pair) []string {
	names := make([]string, 0, len(pairs))
	for _, p := range pairs {
		names = append(names, p.Name)
	}
	return names
}

func TestNew_Validation(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	network := wallet.ChainParams{ChainID: big.NewInt(56)}

	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil_config", cfg: nil},
		{name: "nil_logger", cfg: &Config{Wallet: w, Contracts: testContracts, Network: network}},
		{name: "nil_wallet", cfg: &Config{Contracts: testContracts, Network: network, Logger: zap.NewNop()}},
		{name: "missing_chain", cfg: &Config{Wallet: w, Contracts: testContracts, Logger: zap.NewNop()}},
		{name: "missing_exchange", cfg: &Config{Wallet: w, Network: network, Logger: zap.NewNop()}},
		{name: "bad_policy", cfg: &Config{Wallet: w, Contracts: testContracts, Network: network, Policy: "some", Logger: zap.NewNop()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestPairs(t *testing.T) {
	m := newTestManager(t, testutil.NewFakeWallet(56), PolicyUnlimited)

	assert.Equal(t, []string{pairCollateralExchange, pairOperatorExchange}, pairNames(m.Pairs(false)))
	assert.Equal(t, []string{
		pairCollateralExchange,
		pairCollateralNegRiskExchange,
		pairCollateralNegRiskAdapter,
		pairOperatorExchange,
		pairOperatorNegRiskExchange,
		pairOperatorNegRiskAdapter,
	}, pairNames(m.Pairs(true)))
}

func TestRequired(t *testing.T) {
	m := newTestManager(t, testutil.NewFakeWallet(56), PolicyUnlimited)

	tests := []struct {
		name string
		flow types.Flow
		want []string
	}{
		{name: "buy", flow: types.Flow{Action: types.ActionBuy}, want: []string{pairCollateralExchange}},
		{
			name: "buy_neg_risk",
			flow: types.Flow{Action: types.ActionBuy, NegRisk: true},
			want: []string{pairCollateralExchange, pairCollateralNegRiskExchange, pairCollateralNegRiskAdapter},
		},
		{name: "sell", flow: types.Flow{Action: types.ActionSell}, want: []string{pairOperatorExchange}},
		{
			name: "sell_neg_risk",
			flow: types.Flow{Action: types.ActionSell, NegRisk: true},
			want: []string{pairOperatorExchange, pairOperatorNegRiskExchange, pairOperatorNegRiskAdapter},
		},
		{name: "redeem", flow: types.Flow{Action: types.ActionRedeem}, want: []string{}},
		{name: "redeem_neg_risk", flow: types.Flow{Action: types.ActionRedeem, NegRisk: true}, want: []string{pairOperatorNegRiskAdapter}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pairNames(m.Required(tt.flow)))
		})
	}
}

func TestPermit_DeniesUntilApproved(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	m := newTestManager(t, w, PolicyUnlimited)
	ctx := context.Background()
	buy := types.Flow{Action: types.ActionBuy}

	err := m.Permit(ctx, buy)
	require.ErrorIs(t, err, types.ErrApprovalRequired)
	require.ErrorIs(t, err, types.ErrApproval)
	assert.Contains(t, err.Error(), pairCollateralExchange)

	pair := m.Required(buy)[0]
	assert.Equal(t, StateInsufficient, m.State(pair))

	w.SetAllowance(testContracts.Collateral, testContracts.Exchange, math.MaxBig256)
	require.NoError(t, m.Permit(ctx, buy))
	assert.Equal(t, StateSufficient, m.State(pair))
}

func TestPermit_ThresholdIsHalfOfMax(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	m := newTestManager(t, w, PolicyUnlimited)
	buy := types.Flow{Action: types.ActionBuy}

	half := new(big.Int).Rsh(math.MaxBig256, 1)
	w.SetAllowance(testContracts.Collateral, testContracts.Exchange, new(big.Int).Sub(half, big.NewInt(1)))
	require.ErrorIs(t, m.Permit(context.Background(), buy), types.ErrApprovalRequired)

	w.SetAllowance(testContracts.Collateral, testContracts.Exchange, half)
	require.NoError(t, m.Permit(context.Background(), buy))
}

func TestPermit_ReadFailureDenies(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	w.ReadErr = errors.New("rpc unavailable")
	m := newTestManager(t, w, PolicyUnlimited)

	err := m.Permit(context.Background(), types.Flow{Action: types.ActionSell})
	require.ErrorIs(t, err, types.ErrApprovalRequired)
	assert.Equal(t, StateUnknown, m.State(m.Required(types.Flow{Action: types.ActionSell})[0]))
}

func TestPermit_NegRiskBuyNeedsEveryCollateralPair(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	m := newTestManager(t, w, PolicyUnlimited)
	flow := types.Flow{Action: types.ActionBuy, NegRisk: true}

	w.SetAllowance(testContracts.Collateral, testContracts.Exchange, math.MaxBig256)
	w.SetAllowance(testContracts.Collateral, testContracts.NegRiskExchange, math.MaxBig256)

	err := m.Permit(context.Background(), flow)
	require.ErrorIs(t, err, types.ErrApprovalRequired)
	assert.Contains(t, err.Error(), pairCollateralNegRiskAdapter)
	assert.NotContains(t, err.Error(), pairCollateralNegRiskExchange)
}

func TestEnsureApprovals_ApprovesMissingPairs(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	w.SetOperator(testContracts.ConditionalTokens, testContracts.Exchange, true)
	m := newTestManager(t, w, PolicyUnlimited)

	report, err := m.EnsureMarketApprovals(context.Background(), false, nil)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Len(t, report.Results, 2)
	assert.Empty(t, report.Failed())

	approved := report.Approved()
	require.Len(t, approved, 1)
	assert.Equal(t, pairCollateralExchange, approved[0].Pair.Name)

	sent := w.SentTransactions()
	require.Len(t, sent, 1)
	assert.Equal(t, testContracts.Collateral, sent[0].To)
	assert.Equal(t, 0, w.Allowance(testContracts.Collateral, testContracts.Exchange).Cmp(math.MaxBig256))

	require.NoError(t, m.Permit(context.Background(), types.Flow{Action: types.ActionBuy}))
	require.NoError(t, m.Permit(context.Background(), types.Flow{Action: types.ActionSell}))
}

func TestEnsureApprovals_PairsAreIndependent(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	w.SendErrFor = map[common.Address]error{testContracts.Collateral: errors.New("out of gas")}
	m := newTestManager(t, w, PolicyUnlimited)

	report, err := m.EnsureMarketApprovals(context.Background(), true, nil)
	require.NoError(t, err)
	require.Len(t, report.Results, 6)

	failed := report.Failed()
	assert.Equal(t, []string{pairCollateralExchange, pairCollateralNegRiskExchange, pairCollateralNegRiskAdapter},
		pairNames(resultPairs(failed)))

	var approvalErr *types.ApprovalError
	require.ErrorAs(t, report.Err(), &approvalErr)
	assert.ErrorIs(t, report.Err(), types.ErrApproval)

	for _, spender := range []common.Address{testContracts.Exchange, testContracts.NegRiskExchange, testContracts.NegRiskAdapter} {
		assert.True(t, w.Operator(testContracts.ConditionalTokens, spender), spender.Hex())
	}

	require.NoError(t, m.Permit(context.Background(), types.Flow{Action: types.ActionSell, NegRisk: true}))
	require.ErrorIs(t, m.Permit(context.Background(), types.Flow{Action: types.ActionBuy, NegRisk: true}), types.ErrApprovalRequired)
}

func TestEnsureApprovals_ReadFailureApprovesAnyway(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	w.ReadErr = errors.New("rpc flake")
	m := newTestManager(t, w, PolicyUnlimited)

	report, err := m.EnsureMarketApprovals(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Failed())
	assert.Len(t, w.SentTransactions(), 2)
}

func TestEnsureApprovals_RevertedReceipt(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	w.Revert = true
	m := newTestManager(t, w, PolicyUnlimited)

	report, err := m.EnsureMarketApprovals(context.Background(), false, nil)
	require.NoError(t, err)
	require.Len(t, report.Failed(), 2)
	assert.Equal(t, StateApprovalFailed, report.Failed()[0].State)
	assert.NotEqual(t, common.Hash{}, report.Failed()[0].TxHash)
	assert.ErrorIs(t, report.Err(), types.ErrApproval)
}

func TestEnsureApprovals_ScopedToFlow(t *testing.T) {
	tests := []struct {
		name      string
		flow      types.Flow
		wantPairs []string
		wantTo    []common.Address
	}{
		{
			name:      "buy",
			flow:      types.Flow{Action: types.ActionBuy},
			wantPairs: []string{pairCollateralExchange},
			wantTo:    []common.Address{testContracts.Collateral},
		},
		{
			name:      "sell_neg_risk",
			flow:      types.Flow{Action: types.ActionSell, NegRisk: true},
			wantPairs: []string{pairOperatorExchange, pairOperatorNegRiskExchange, pairOperatorNegRiskAdapter},
			wantTo:    []common.Address{testContracts.ConditionalTokens, testContracts.ConditionalTokens, testContracts.ConditionalTokens},
		},
		{
			name:      "redeem_neg_risk",
			flow:      types.Flow{Action: types.ActionRedeem, NegRisk: true},
			wantPairs: []string{pairOperatorNegRiskAdapter},
			wantTo:    []common.Address{testContracts.ConditionalTokens},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.NewFakeWallet(56)
			m := newTestManager(t, w, PolicyUnlimited)

			report, err := m.EnsureApprovals(context.Background(), tt.flow)
			require.NoError(t, err)
			require.NoError(t, report.Err())
			assert.Equal(t, tt.wantPairs, pairNames(resultPairs(report.Results)))

			var to []common.Address
			for _, tx := range w.SentTransactions() {
				to = append(to, tx.To)
			}
			assert.Equal(t, tt.wantTo, to)
		})
	}
}

func TestEnsureApprovals_NothingRequired(t *testing.T) {
	w := testutil.NewFakeWallet(1)
	m := newTestManager(t, w, PolicyExact)

	report, err := m.EnsureApprovals(context.Background(), types.Flow{Action: types.ActionRedeem})
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Empty(t, w.SentTransactions())

	chainID, err := w.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), chainID.Int64(), "no network switch without pairs")
}

func TestManager_SkipsUndeployedNegRiskContracts(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	contracts := testContracts
	contracts.NegRiskAdapter = common.Address{}

	m, err := New(&Config{
		Wallet:    w,
		Contracts: contracts,
		Network:   wallet.ChainParams{ChainID: big.NewInt(56), ChainName: "BSC", RPCURL: "http://bsc"},
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		pairCollateralExchange,
		pairCollateralNegRiskExchange,
		pairOperatorExchange,
		pairOperatorNegRiskExchange,
	}, pairNames(m.Pairs(true)))
	assert.Empty(t, m.Required(types.Flow{Action: types.ActionRedeem, NegRisk: true}))

	report, err := m.EnsureMarketApprovals(context.Background(), true, nil)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Len(t, w.SentTransactions(), 4)
	assert.Zero(t, w.Allowance(contracts.Collateral, common.Address{}).Sign())
	assert.False(t, w.Operator(contracts.ConditionalTokens, common.Address{}))

	require.NoError(t, m.Permit(context.Background(), types.Flow{Action: types.ActionBuy, NegRisk: true}))
	require.NoError(t, m.Permit(context.Background(), types.Flow{Action: types.ActionSell, NegRisk: true}))
}

func TestEnsureApprovals_UserRejection(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	w.SendErr = errors.New("User denied transaction signature")
	m := newTestManager(t, w, PolicyUnlimited)

	report, err := m.EnsureApprovals(context.Background(), types.Flow{Action: types.ActionBuy})
	require.NoError(t, err)
	assert.ErrorIs(t, report.Err(), types.ErrSigningRejected)
}

func TestEnsureApprovals_SwitchesNetworkFirst(t *testing.T) {
	w := testutil.NewFakeWallet(1)
	m := newTestManager(t, w, PolicyUnlimited)

	_, err := m.EnsureApprovals(context.Background(), types.Flow{Action: types.ActionBuy})
	require.NoError(t, err)

	chainID, err := w.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(56), chainID.Int64())
}

func TestEnsureApprovals_ExactPolicy(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	m := newTestManager(t, w, PolicyExact)
	amount := new(big.Int).Mul(big.NewInt(50), big.NewInt(1e18))

	_, err := m.EnsureApprovals(context.Background(), types.Flow{Action: types.ActionBuy})
	require.Error(t, err)

	flow := types.Flow{Action: types.ActionBuy, Amount: amount}
	report, err := m.EnsureApprovals(context.Background(), flow)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 0, w.Allowance(testContracts.Collateral, testContracts.Exchange).Cmp(amount))

	require.NoError(t, m.Permit(context.Background(), flow))

	bigger := types.Flow{Action: types.ActionBuy, Amount: new(big.Int).Add(amount, big.NewInt(1))}
	require.ErrorIs(t, m.Permit(context.Background(), bigger), types.ErrApprovalRequired)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyUnlimited, p)

	p, err = ParsePolicy("EXACT")
	require.NoError(t, err)
	assert.Equal(t, PolicyExact, p)

	_, err = ParsePolicy("forever")
	assert.Error(t, err)
}

func resultPairs(results []PairResult) []Pair {
	pairs := make([]Pair, 0, len(results))
	for _, r := range results {
		pairs = append(pairs, r.Pair)
	}
	return pairs
}
