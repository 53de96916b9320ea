package redemption

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/predict-trader/internal/allowance"
	"github.com/mselser95/predict-trader/internal/testutil"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/mselser95/predict-trader/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // test fixtures
var testContracts = Contracts{
	Collateral:                    common.HexToAddress("0xc0"),
	ConditionalTokens:             common.HexToAddress("0xc7"),
	YieldBearingConditionalTokens: common.HexToAddress("0xc8"),
	NegRiskAdapter:                common.HexToAddress("0xad"),
	YieldBearingNegRiskAdapter:    common.HexToAddress("0xae"),
}

const testConditionID = "0x00000000000000000000000000000000000000000000000000000000000000c1"

type countingRefresher struct {
	calls int
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls++
	return r.err
}

func resolvedPosition(outcomeIndex int, negRisk, yieldBearing bool) *types.Position {
	return &types.Position{
		ID:           "pos-1",
		MarketID:     "1",
		OutcomeIndex: outcomeIndex,
		TokenID:      big.NewInt(11),
		Shares:       testutil.Units(5),
		ConditionID:  testConditionID,
		NegRisk:      types.Bool(negRisk),
		YieldBearing: types.Bool(yieldBearing),
		Resolution:   types.ResolutionResolved,
	}
}

func newTestService(t *testing.T, w *testutil.FakeWallet, refresher Refresher) *Service {
	t.Helper()
	s, err := New(&Config{
		Chain:     w,
		Contracts: testContracts,
		Network:   &wallet.ChainParams{ChainID: big.NewInt(56), ChainName: "BSC", RPCURL: "http://bsc"},
		Refresher: refresher,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Chain: testutil.NewFakeWallet(56)})
	assert.Error(t, err)

	_, err = New(&Config{Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestPrepare_Targets(t *testing.T) {
	tests := []struct {
		name         string
		negRisk      bool
		yieldBearing bool
		wantTarget   common.Address
	}{
		{"standard", false, false, testContracts.ConditionalTokens},
		{"yield bearing", false, true, testContracts.YieldBearingConditionalTokens},
		{"neg risk", true, false, testContracts.NegRiskAdapter},
		{"yield bearing neg risk", true, true, testContracts.YieldBearingNegRiskAdapter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Prepare(resolvedPosition(1, tt.negRisk, tt.yieldBearing), nil, testContracts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTarget, p.Target)
			assert.Equal(t, int64(2), p.IndexSet.Int64())
			assert.Equal(t, common.HexToHash(testConditionID), p.ConditionID)
		})
	}
}

func TestPrepare_ConditionalTokensCallData(t *testing.T) {
	p, err := Prepare(resolvedPosition(0, false, false), nil, testContracts)
	require.NoError(t, err)

	method := ConditionalTokensABI.Methods["redeemPositions"]
	assert.Equal(t, method.ID, p.Data[:4])

	args, err := method.Inputs.Unpack(p.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, testContracts.Collateral, args[0])
	assert.Equal(t, [32]byte{}, args[1])
	assert.Equal(t, [32]byte(common.HexToHash(testConditionID)), args[2])

	indexSets, ok := args[3].([]*big.Int)
	require.True(t, ok)
	require.Len(t, indexSets, 1)
	assert.Equal(t, int64(1), indexSets[0].Int64())
}

func TestPrepare_NegRiskCallData(t *testing.T) {
	p, err := Prepare(resolvedPosition(1, true, false), nil, testContracts)
	require.NoError(t, err)

	method := NegRiskAdapterABI.Methods["redeemPositions"]
	args, err := method.Inputs.Unpack(p.Data[4:])
	require.NoError(t, err)

	amounts, ok := args[1].([]*big.Int)
	require.True(t, ok)
	require.Len(t, amounts, 2)
	assert.Zero(t, amounts[0].Sign())
	assert.Zero(t, amounts[1].Cmp(testutil.Units(5)))
}

func TestPrepare_MarketOverridesPosition(t *testing.T) {
	position := resolvedPosition(0, false, false)
	position.NegRisk = nil
	position.YieldBearing = nil
	position.Resolution = types.ResolutionUnresolved

	market := &types.Market{
		ID:           "1",
		ConditionID:  testConditionID,
		NegRisk:      types.Bool(true),
		YieldBearing: types.Bool(false),
		Resolution:   types.ResolutionResolved,
	}

	p, err := Prepare(position, market, testContracts)
	require.NoError(t, err)
	assert.True(t, p.NegRisk)
	assert.Equal(t, testContracts.NegRiskAdapter, p.Target)
}

func TestPrepare_Refusals(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *types.Position)
		wantErr error
	}{
		{"unresolved", func(p *types.Position) { p.Resolution = types.ResolutionUnresolved }, types.ErrSettlementNotReady},
		{"missing condition", func(p *types.Position) { p.ConditionID = "" }, types.ErrIncompleteMarketData},
		{"malformed condition", func(p *types.Position) { p.ConditionID = "0x1234" }, types.ErrIncompleteMarketData},
		{"zero shares", func(p *types.Position) { p.Shares = new(big.Int) }, types.ErrIncompleteMarketData},
		{"nil shares", func(p *types.Position) { p.Shares = nil }, types.ErrIncompleteMarketData},
		{"unknown outcome", func(p *types.Position) { p.OutcomeIndex = -1 }, types.ErrIncompleteMarketData},
		{"missing neg risk", func(p *types.Position) { p.NegRisk = nil }, types.ErrIncompleteMarketData},
		{"missing yield bearing", func(p *types.Position) { p.YieldBearing = nil }, types.ErrIncompleteMarketData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := resolvedPosition(0, false, false)
			tt.mutate(p)

			_, err := Prepare(p, nil, testContracts)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPrepare_UnresolvedIsAlsoIncompleteData(t *testing.T) {
	p := resolvedPosition(0, false, false)
	p.Resolution = types.ResolutionUnresolved

	_, err := Prepare(p, nil, testContracts)
	assert.ErrorIs(t, err, types.ErrIncompleteMarketData)
	assert.ErrorIs(t, err, types.ErrMarketNotResolved)
}

func TestPrepare_MissingContract(t *testing.T) {
	contracts := testContracts
	contracts.YieldBearingNegRiskAdapter = common.Address{}

	_, err := Prepare(resolvedPosition(0, true, true), nil, contracts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yield-bearing neg-risk adapter")
}

func TestService_Redeem_Success(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	refresher := &countingRefresher{}
	s := newTestService(t, w, refresher)

	result, err := s.Redeem(context.Background(), resolvedPosition(0, false, false), nil)
	require.NoError(t, err)

	sent := w.SentTransactions()
	require.Len(t, sent, 1)
	assert.Equal(t, testContracts.ConditionalTokens, sent[0].To)
	assert.Equal(t, sent[0].Hash, result.TxHash)
	assert.Equal(t, 1, refresher.calls)
}

func TestService_Redeem_RefreshFailureIgnored(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	refresher := &countingRefresher{err: errors.New("api down")}
	s := newTestService(t, w, refresher)

	_, err := s.Redeem(context.Background(), resolvedPosition(0, false, false), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, refresher.calls)
}

func TestService_Redeem_UnresolvedNeverReachesChain(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	refresher := &countingRefresher{}
	s := newTestService(t, w, refresher)

	p := resolvedPosition(0, false, false)
	p.Resolution = types.ResolutionUnresolved

	_, err := s.Redeem(context.Background(), p, nil)
	require.ErrorIs(t, err, types.ErrIncompleteMarketData)
	assert.Empty(t, w.SentTransactions())
	assert.Zero(t, refresher.calls)
}

func TestService_Redeem_NegRiskNeedsAdapterApproval(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	network := &wallet.ChainParams{ChainID: big.NewInt(56), ChainName: "BSC", RPCURL: "http://bsc"}

	gate, err := allowance.New(&allowance.Config{
		Wallet: w,
		Contracts: allowance.Contracts{
			Collateral:        testContracts.Collateral,
			ConditionalTokens: testContracts.ConditionalTokens,
			Exchange:          common.HexToAddress("0xe0"),
			NegRiskExchange:   common.HexToAddress("0xe1"),
			NegRiskAdapter:    testContracts.NegRiskAdapter,
		},
		Network: *network,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	refresher := &countingRefresher{}
	s, err := New(&Config{
		Chain:     w,
		Contracts: testContracts,
		Network:   network,
		Gate:      gate,
		Refresher: refresher,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)

	_, err = s.Redeem(context.Background(), resolvedPosition(1, true, false), nil)
	require.ErrorIs(t, err, types.ErrApprovalRequired)
	assert.NotErrorIs(t, err, ErrRedemptionFailed)
	assert.ErrorIs(t, Classify(err), types.ErrApprovalRequired)
	assert.Empty(t, w.SentTransactions())
	assert.Zero(t, refresher.calls)

	// Standard markets redeem on the conditional tokens contract itself.
	_, err = s.Redeem(context.Background(), resolvedPosition(0, false, false), nil)
	require.NoError(t, err)

	w.SetOperator(testContracts.ConditionalTokens, testContracts.NegRiskAdapter, true)
	result, err := s.Redeem(context.Background(), resolvedPosition(1, true, false), nil)
	require.NoError(t, err)
	assert.Equal(t, testContracts.NegRiskAdapter, result.Params.Target)
}

func TestService_Redeem_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(w *testutil.FakeWallet)
		wantErr error
	}{
		{
			name: "user rejection",
			setup: func(w *testutil.FakeWallet) {
				w.SendErr = errors.New("User denied transaction signature")
			},
			wantErr: types.ErrSigningRejected,
		},
		{
			name: "not settled revert",
			setup: func(w *testutil.FakeWallet) {
				w.SendErrFor = map[common.Address]error{
					testContracts.ConditionalTokens: errors.New("estimate gas: execution reverted: result for condition not received yet"),
				}
			},
			wantErr: types.ErrSettlementNotReady,
		},
		{
			name: "unknown send error",
			setup: func(w *testutil.FakeWallet) {
				w.SendErr = errors.New("insufficient funds for gas")
			},
			wantErr: ErrRedemptionFailed,
		},
		{
			name: "reverted receipt",
			setup: func(w *testutil.FakeWallet) {
				w.Revert = true
			},
			wantErr: ErrRedemptionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.NewFakeWallet(56)
			tt.setup(w)
			refresher := &countingRefresher{}
			s := newTestService(t, w, refresher)

			_, err := s.Redeem(context.Background(), resolvedPosition(0, false, false), nil)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, refresher.calls)
		})
	}
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))
	assert.ErrorIs(t, Classify(errors.New("execution reverted: payout denominator still zero")), types.ErrSettlementNotReady)
	assert.ErrorIs(t, Classify(errors.New("Condition not resolved")), types.ErrSettlementNotReady)
	assert.ErrorIs(t, Classify(errors.New("ACTION_REJECTED")), types.ErrSigningRejected)
	assert.ErrorIs(t, Classify(types.ErrSigningRejected), types.ErrSigningRejected)

	other := Classify(errors.New("nonce too low"))
	assert.ErrorIs(t, other, ErrRedemptionFailed)
	assert.NotErrorIs(t, other, types.ErrSettlementNotReady)
}
