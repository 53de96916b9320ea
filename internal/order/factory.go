package order

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/predict-trader/internal/amounts"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/polymarket/go-order-utils/pkg/model"
)

// DefaultFeeRateBps is used when a market does not report its fee.
const DefaultFeeRateBps = 100

// SaltGenerator returns a fresh salt for each order.
type SaltGenerator func() (*big.Int, error)

//nolint:gochecknoglobals // salts stay below 2^53
var maxSalt = new(big.Int).Lsh(big.NewInt(1), 53)

// RandomSalt draws a uniformly random salt below 2^53.
func RandomSalt() (*big.Int, error) {
	salt, err := rand.Int(rand.Reader, maxSalt)
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// FactoryConfig holds order factory configuration.
type FactoryConfig struct {
	// Maker is the connected wallet; it is both maker and signer.
	Maker common.Address
	// Nonce is placed on every order. Uniqueness comes from the salt.
	Nonce int64
	// LimitTTL is how long limit orders live. Zero means no expiry.
	LimitTTL time.Duration
	// MarketTTL is how long market orders live. Must be positive.
	MarketTTL time.Duration
	Salt      SaltGenerator
	Now       func() time.Time
}

// Factory builds unsigned orders.
type Factory struct {
	maker     common.Address
	nonce     *big.Int
	limitTTL  time.Duration
	marketTTL time.Duration
	salt      SaltGenerator
	now       func() time.Time
}

// NewFactory creates an order factory.
func NewFactory(cfg *FactoryConfig) (*Factory, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Maker == (common.Address{}) {
		return nil, errors.New("maker address cannot be empty")
	}

	if cfg.Nonce < 0 {
		return nil, errors.New("nonce must be non-negative")
	}

	if cfg.LimitTTL < 0 || cfg.MarketTTL <= 0 {
		return nil, errors.New("limit ttl must be non-negative and market ttl positive")
	}

	f := &Factory{
		maker:     cfg.Maker,
		nonce:     big.NewInt(cfg.Nonce),
		limitTTL:  cfg.LimitTTL,
		marketTTL: cfg.MarketTTL,
		salt:      cfg.Salt,
		now:       cfg.Now,
	}
	if f.salt == nil {
		f.salt = RandomSalt
	}
	if f.now == nil {
		f.now = time.Now
	}

	return f, nil
}

// Maker returns the address orders are built for.
func (f *Factory) Maker() common.Address {
	return f.maker
}

// Build assembles the unsigned order for intent on market from computed amounts.
func (f *Factory) Build(market *types.Market, intent types.OrderIntent, a *amounts.Amounts) (*types.UnsignedOrder, error) {
	if market == nil || a == nil {
		return nil, errors.New("market and amounts are required")
	}

	if a.Side != intent.Side {
		return nil, fmt.Errorf("amounts computed for %s, intent is %s", a.Side, intent.Side)
	}

	outcome, err := market.Outcome(intent.OutcomeIndex)
	if err != nil {
		return nil, err
	}
	if outcome.TokenID == nil || outcome.TokenID.Sign() <= 0 {
		return nil, fmt.Errorf("%w: outcome %d of market %s has no token id",
			types.ErrIncompleteMarketData, intent.OutcomeIndex, market.ID)
	}

	salt, err := f.salt()
	if err != nil {
		return nil, err
	}

	feeRateBps := int64(DefaultFeeRateBps)
	if market.FeeRateBps != nil {
		feeRateBps = *market.FeeRateBps
	}

	expiration, err := f.expiration(intent.Kind)
	if err != nil {
		return nil, err
	}

	return &types.UnsignedOrder{
		Salt:          salt,
		Maker:         f.maker,
		Signer:        f.maker,
		Taker:         common.Address{},
		TokenID:       new(big.Int).Set(outcome.TokenID),
		MakerAmount:   new(big.Int).Set(a.MakerAmount),
		TakerAmount:   new(big.Int).Set(a.TakerAmount),
		Expiration:    expiration,
		Nonce:         new(big.Int).Set(f.nonce),
		FeeRateBps:    big.NewInt(feeRateBps),
		Side:          intent.Side,
		SignatureType: uint8(model.EOA),
	}, nil
}

func (f *Factory) expiration(kind types.Kind) (*big.Int, error) {
	switch kind {
	case types.KindLimit:
		if f.limitTTL == 0 {
			return new(big.Int), nil
		}
		return big.NewInt(f.now().Add(f.limitTTL).Unix()), nil
	case types.KindMarket:
		return big.NewInt(f.now().Add(f.marketTTL).Unix()), nil
	default:
		return nil, fmt.Errorf("%w: invalid order kind %q", types.ErrValidation, kind)
	}
}
