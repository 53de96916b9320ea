package signing

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/predict-trader/internal/order"
	"github.com/mselser95/predict-trader/internal/testutil"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type gateFunc func(ctx context.Context, flow types.Flow) error

func (f gateFunc) Permit(ctx context.Context, flow types.Flow) error { return f(ctx, flow) }

func allowAll() Gate {
	return gateFunc(func(context.Context, types.Flow) error { return nil })
}

func testEncoder(t *testing.T) *order.Encoder {
	t.Helper()
	enc, err := order.NewEncoder(order.Domain{
		Name:            "predict.fun CTF Exchange",
		Version:         "1",
		ChainID:         big.NewInt(56),
		Exchange:        common.HexToAddress("0xe0"),
		NegRiskExchange: common.HexToAddress("0xe1"),
	})
	require.NoError(t, err)
	return enc
}

func testOrder(signer common.Address) *types.UnsignedOrder {
	return &types.UnsignedOrder{
		Salt:        big.NewInt(42),
		Maker:       signer,
		Signer:      signer,
		TokenID:     big.NewInt(7),
		MakerAmount: new(big.Int).Mul(big.NewInt(50), big.NewInt(1e18)),
		TakerAmount: new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18)),
		Expiration:  big.NewInt(0),
		Nonce:       big.NewInt(0),
		FeeRateBps:  big.NewInt(100),
		Side:        types.Buy,
	}
}

func newTestSession(t *testing.T, signer Signer, gate Gate) *Session {
	t.Helper()
	s, err := NewSession(&Config{
		Encoder: testEncoder(t),
		Signer:  signer,
		Gate:    gate,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	return s
}

func TestNewSession_Validation(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	enc := testEncoder(t)

	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil_config"},
		{name: "nil_logger", cfg: &Config{Encoder: enc, Signer: w, Gate: allowAll()}},
		{name: "nil_encoder", cfg: &Config{Signer: w, Gate: allowAll(), Logger: zap.NewNop()}},
		{name: "nil_signer", cfg: &Config{Encoder: enc, Gate: allowAll(), Logger: zap.NewNop()}},
		{name: "nil_gate", cfg: &Config{Encoder: enc, Signer: w, Logger: zap.NewNop()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestSession_Sign(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	o := testOrder(w.Address())

	for _, negRisk := range []bool{false, true} {
		s := newTestSession(t, w, allowAll())

		signed, err := s.Sign(context.Background(), Request{Order: o, NegRisk: negRisk, Flow: types.Flow{Action: types.ActionBuy}})
		require.NoError(t, err)
		assert.Equal(t, StateSigned, s.State())

		want, err := testEncoder(t).Hash(o, negRisk)
		require.NoError(t, err)
		assert.Equal(t, want, signed.Hash)

		recovered, err := order.RecoverSigner(signed.Hash, signed.Signature)
		require.NoError(t, err)
		assert.Equal(t, w.Address(), recovered)
	}
}

func TestSession_SignedOrderIsDetached(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	s := newTestSession(t, w, allowAll())
	o := testOrder(w.Address())

	signed, err := s.Sign(context.Background(), Request{Order: o})
	require.NoError(t, err)

	o.Nonce.SetInt64(99)
	o.MakerAmount.SetInt64(1)

	rehash, err := testEncoder(t).Hash(&signed.Order, false)
	require.NoError(t, err)
	assert.Equal(t, signed.Hash, rehash)
}

func TestSession_SingleUse(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	s := newTestSession(t, w, allowAll())

	_, err := s.Sign(context.Background(), Request{Order: testOrder(w.Address())})
	require.NoError(t, err)

	_, err = s.Sign(context.Background(), Request{Order: testOrder(w.Address())})
	assert.ErrorIs(t, err, ErrSessionUsed)
}

func TestSession_GateRefusalKeepsIdle(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	denied := true
	gate := gateFunc(func(context.Context, types.Flow) error {
		if denied {
			return types.ErrApprovalRequired
		}
		return nil
	})
	s := newTestSession(t, w, gate)

	_, err := s.Sign(context.Background(), Request{Order: testOrder(w.Address())})
	require.ErrorIs(t, err, types.ErrApprovalRequired)
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, w.SignCalls)

	denied = false
	_, err = s.Sign(context.Background(), Request{Order: testOrder(w.Address())})
	require.NoError(t, err)
	assert.Equal(t, StateSigned, s.State())
}

func TestSession_UserRejection(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	w.SignErr = errors.New("MetaMask Tx Signature: User denied transaction signature.")
	s := newTestSession(t, w, allowAll())

	_, err := s.Sign(context.Background(), Request{Order: testOrder(w.Address())})
	require.ErrorIs(t, err, types.ErrSigningRejected)
	assert.Equal(t, StateRejected, s.State())
}

func TestSession_ProviderFailure(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	w.SignErr = errors.New("device disconnected")
	s := newTestSession(t, w, allowAll())

	_, err := s.Sign(context.Background(), Request{Order: testOrder(w.Address())})
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrSigningRejected)
	assert.Equal(t, StateFailed, s.State())
}

func TestSession_SignatureMismatch(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	other := testutil.NewFakeWallet(56)
	s := newTestSession(t, w, allowAll())

	_, err := s.Sign(context.Background(), Request{Order: testOrder(other.Address())})
	require.ErrorIs(t, err, ErrSignatureMismatch)
	assert.Equal(t, StateFailed, s.State())
}

func TestSession_MalformedSignature(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	w.SignatureOverride = []byte{0x01, 0x02}
	s := newTestSession(t, w, allowAll())

	_, err := s.Sign(context.Background(), Request{Order: testOrder(w.Address())})
	require.ErrorIs(t, err, ErrSignatureMismatch)
	assert.Equal(t, StateFailed, s.State())
}

func TestSession_ConcurrentSignOnlyOnce(t *testing.T) {
	w := testutil.NewFakeWallet(56)
	s := newTestSession(t, w, allowAll())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Sign(context.Background(), Request{Order: testOrder(w.Address())})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
