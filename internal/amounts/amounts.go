// Package amounts turns prices and quantities into the exact maker/taker amounts of an
// order. All arithmetic is done on 18-decimal fixed-point integers.
package amounts

import (
	"fmt"
	"math/big"

	"github.com/mselser95/predict-trader/internal/orderbook"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point scale of prices, shares and collateral.
const Decimals = 18

//nolint:gochecknoglobals // fixed-point constants
var (
	// One is 1.0 in base units.
	One = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	// Cent is 0.01 in base units.
	Cent = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals-2), nil)
	// MinNotional is the smallest collateral value the exchange accepts (0.9).
	MinNotional = new(big.Int).Mul(big.NewInt(90), Cent)

	fallbackBuyPrice  = new(big.Int).Mul(big.NewInt(99), Cent)
	fallbackSellPrice = new(big.Int).Set(Cent)
)

// Amounts is the result of a calculation. PricePerShare is 18-decimal scaled; for a
// market order it is the realized average price of the walk.
type Amounts struct {
	Side          types.Side
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Quantity      *big.Int
	PricePerShare *big.Int
	Notional      *big.Int
	// Clamped is set when a market order was priced with the worst-case limit proxy.
	Clamped bool
}

// Calculator computes order amounts.
type Calculator struct {
	fallbackClamp bool
	minNotional   *big.Int
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithFallbackClamp prices market orders that cannot be walked against the book as a
// limit at 0.99 (buy) or 0.01 (sell) instead of failing.
func WithFallbackClamp(enabled bool) Option {
	return func(c *Calculator) {
		c.fallbackClamp = enabled
	}
}

// WithMinNotional overrides the minimum order value, in base units.
func WithMinNotional(v *big.Int) Option {
	return func(c *Calculator) {
		c.minNotional = new(big.Int).Set(v)
	}
}

// NewCalculator creates a calculator.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{minNotional: MinNotional}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParsePrice parses a probability with at most two decimals into base units.
func ParsePrice(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidPrice, s)
	}
	if !d.IsPositive() || !d.LessThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidPrice, s)
	}
	if !d.Equal(d.Truncate(2)) {
		return nil, fmt.Errorf("%w: price %s has more than 2 decimals", types.ErrInvalidPrecision, s)
	}
	return d.Truncate(2).Shift(Decimals).BigInt(), nil
}

// ParseQuantity parses a positive share quantity with at most 18 decimals into base units.
func ParseQuantity(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidQuantity, s)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidQuantity, s)
	}
	if !d.Equal(d.Truncate(Decimals)) {
		return nil, fmt.Errorf("%w: quantity %s has more than %d decimals", types.ErrInvalidPrecision, s, Decimals)
	}
	return d.Shift(Decimals).BigInt(), nil
}

// Limit computes amounts for a limit order from user input.
func (c *Calculator) Limit(side types.Side, price, quantity string) (*Amounts, error) {
	priceWei, err := ParsePrice(price)
	if err != nil {
		return nil, err
	}

	qtyWei, err := ParseQuantity(quantity)
	if err != nil {
		return nil, err
	}

	return c.LimitWei(side, priceWei, qtyWei)
}

// LimitWei computes limit amounts from base-unit inputs. The price is truncated to
// whole cents before use.
func (c *Calculator) LimitWei(side types.Side, priceWei, qtyWei *big.Int) (*Amounts, error) {
	if qtyWei == nil || qtyWei.Sign() <= 0 {
		return nil, types.ErrInvalidQuantity
	}
	if priceWei == nil || priceWei.Sign() <= 0 || priceWei.Cmp(One) >= 0 {
		return nil, types.ErrInvalidPrice
	}

	cents := new(big.Int).Quo(priceWei, Cent)
	if cents.Sign() == 0 {
		return nil, fmt.Errorf("%w: price below one cent", types.ErrInvalidPrecision)
	}
	price := new(big.Int).Mul(cents, Cent)

	collateral := mulDiv(price, qtyWei, One)

	return c.finish(side, qtyWei, collateral, price, false)
}

// Market computes amounts for a market order by walking the opposing side of book:
// asks from the lowest price for a buy, bids from the highest for a sell.
func (c *Calculator) Market(side types.Side, quantity string, book *orderbook.Book) (*Amounts, error) {
	qtyWei, err := ParseQuantity(quantity)
	if err != nil {
		return nil, err
	}

	levels := book.Opposing(side)
	if len(levels) == 0 {
		if c.fallbackClamp {
			return c.clamped(side, qtyWei)
		}
		return nil, fmt.Errorf("%w: no opposing orders", types.ErrInsufficientLiquidity)
	}

	remaining := new(big.Int).Set(qtyWei)
	collateral := new(big.Int)

	for _, l := range levels {
		if remaining.Sign() == 0 {
			break
		}

		levelPrice := l.Price.Shift(Decimals).BigInt()
		levelSize := l.Size.Shift(Decimals).BigInt()

		take := levelSize
		if take.Cmp(remaining) > 0 {
			take = remaining
		}

		collateral.Add(collateral, mulDiv(levelPrice, take, One))
		remaining = new(big.Int).Sub(remaining, take)
	}

	if remaining.Sign() > 0 {
		if c.fallbackClamp {
			return c.clamped(side, qtyWei)
		}
		filled := new(big.Int).Sub(qtyWei, remaining)
		return nil, fmt.Errorf("%w: book depth %s of %s shares",
			types.ErrInsufficientLiquidity, FormatUnits(filled), FormatUnits(qtyWei))
	}

	avgPrice := mulDiv(collateral, One, qtyWei)

	return c.finish(side, qtyWei, collateral, avgPrice, false)
}

func (c *Calculator) clamped(side types.Side, qtyWei *big.Int) (*Amounts, error) {
	price := fallbackBuyPrice
	if side == types.Sell {
		price = fallbackSellPrice
	}

	collateral := mulDiv(price, qtyWei, One)

	return c.finish(side, qtyWei, collateral, price, true)
}

func (c *Calculator) finish(side types.Side, qtyWei, collateral, price *big.Int, clamped bool) (*Amounts, error) {
	if collateral.Cmp(c.minNotional) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", types.ErrBelowMinimumNotional,
			FormatUnits(collateral), FormatUnits(c.minNotional))
	}

	a := &Amounts{
		Side:          side,
		Quantity:      new(big.Int).Set(qtyWei),
		PricePerShare: new(big.Int).Set(price),
		Notional:      new(big.Int).Set(collateral),
		Clamped:       clamped,
	}

	if side == types.Sell {
		a.MakerAmount = new(big.Int).Set(qtyWei)
		a.TakerAmount = new(big.Int).Set(collateral)
	} else {
		a.MakerAmount = new(big.Int).Set(collateral)
		a.TakerAmount = new(big.Int).Set(qtyWei)
	}

	return a, nil
}

// ImpliedPrice re-derives the per-share price of an order from its amounts, rounded to
// cents.
func ImpliedPrice(side types.Side, makerAmount, takerAmount *big.Int) decimal.Decimal {
	collateral, shares := makerAmount, takerAmount
	if side == types.Sell {
		collateral, shares = takerAmount, makerAmount
	}
	if shares == nil || shares.Sign() == 0 {
		return decimal.Zero
	}

	return decimal.NewFromBigInt(collateral, 0).
		DivRound(decimal.NewFromBigInt(shares, 0), Decimals).
		Round(2)
}

// FormatUnits renders base units as a decimal string.
func FormatUnits(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -Decimals).String()
}

func mulDiv(a, b, d *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, d)
}
