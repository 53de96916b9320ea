package orderbook

import (
	"sort"
	"time"

	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/shopspring/decimal"
)

//nolint:gochecknoglobals // decimal constant
var one = decimal.NewFromInt(1)

// Book is an immutable snapshot of one outcome's order book. Bids are sorted by price
// descending and asks ascending. Books are replaced wholesale on refresh, never patched.
type Book struct {
	MarketID  string
	Outcome   int
	Bids      []types.PriceLevel
	Asks      []types.PriceLevel
	UpdatedAt time.Time
}

// NewBook copies and sorts the given levels. Levels with a non-positive size or a price
// outside (0,1) are dropped.
func NewBook(marketID string, outcome int, bids, asks []types.PriceLevel, updatedAt time.Time) *Book {
	b := &Book{
		MarketID:  marketID,
		Outcome:   outcome,
		Bids:      cleanLevels(bids),
		Asks:      cleanLevels(asks),
		UpdatedAt: updatedAt,
	}

	sort.SliceStable(b.Bids, func(i, j int) bool { return b.Bids[i].Price.GreaterThan(b.Bids[j].Price) })
	sort.SliceStable(b.Asks, func(i, j int) bool { return b.Asks[i].Price.LessThan(b.Asks[j].Price) })

	return b
}

func cleanLevels(levels []types.PriceLevel) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(levels))
	for _, l := range levels {
		if !l.Size.IsPositive() || !l.Price.IsPositive() || !l.Price.LessThan(one) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// BestBid returns the highest bid, false when there are no bids.
func (b *Book) BestBid() (types.PriceLevel, bool) {
	if b == nil || len(b.Bids) == 0 {
		return types.PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, false when there are no asks.
func (b *Book) BestAsk() (types.PriceLevel, bool) {
	if b == nil || len(b.Asks) == 0 {
		return types.PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Mid is the average of best bid and best ask, the one side that exists, or zero.
func (b *Book) Mid() decimal.Decimal {
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()

	switch {
	case hasBid && hasAsk:
		return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
	case hasBid:
		return bid.Price
	case hasAsk:
		return ask.Price
	default:
		return decimal.Zero
	}
}

// Empty reports whether the book has no levels on either side.
func (b *Book) Empty() bool {
	return b == nil || (len(b.Bids) == 0 && len(b.Asks) == 0)
}

// Opposing returns the levels a taker on side would trade against: asks for a buy,
// bids for a sell.
func (b *Book) Opposing(side types.Side) []types.PriceLevel {
	if b == nil {
		return nil
	}
	if side == types.Sell {
		return b.Bids
	}
	return b.Asks
}

// Reflect derives the complement outcome's book of a binary market. Buying one outcome
// at p is selling the other at 1-p, so each ask becomes a bid at 1-p and each bid an ask
// at 1-p, with sizes unchanged.
func Reflect(b *Book) *Book {
	if b == nil {
		return nil
	}

	reflected := &Book{
		MarketID:  b.MarketID,
		Outcome:   1 - b.Outcome,
		Bids:      make([]types.PriceLevel, len(b.Asks)),
		Asks:      make([]types.PriceLevel, len(b.Bids)),
		UpdatedAt: b.UpdatedAt,
	}

	// Asks ascending reflect to bids descending, and vice versa, so order is preserved.
	for i, l := range b.Asks {
		reflected.Bids[i] = types.PriceLevel{Price: one.Sub(l.Price), Size: l.Size}
	}
	for i, l := range b.Bids {
		reflected.Asks[i] = types.PriceLevel{Price: one.Sub(l.Price), Size: l.Size}
	}

	return reflected
}
