package positions

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/predict-trader/internal/orderbook"
	"github.com/mselser95/predict-trader/internal/testutil"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	mu        sync.Mutex
	positions []*types.Position
	err       error
	calls     int
}

func (f *fakeSource) GetPositions(_ context.Context, _ string) ([]*types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.positions, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBooks struct {
	mu    sync.Mutex
	books map[string]*orderbook.Book
	calls map[string]int
}

func (f *fakeBooks) GetOrderbook(_ context.Context, marketID string) (*orderbook.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[marketID]++
	book, ok := f.books[marketID]
	if !ok {
		return nil, errors.New("no book")
	}
	return book, nil
}

func level(price, size string) types.PriceLevel {
	return types.PriceLevel{Price: decimal.RequireFromString(price), Size: decimal.RequireFromString(size)}
}

func position(marketID string, outcome int, shares int64, resolution types.ResolutionStatus) *types.Position {
	return &types.Position{
		ID:           marketID + "-" + string(rune('0'+outcome)),
		MarketID:     marketID,
		OutcomeIndex: outcome,
		Shares:       testutil.Units(shares),
		Resolution:   resolution,
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Source: &fakeSource{}})
	assert.Error(t, err)

	_, err = New(&Config{Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestMarkPrice(t *testing.T) {
	both := orderbook.NewBook("m", 0, []types.PriceLevel{level("0.40", "1")}, []types.PriceLevel{level("0.50", "1")}, time.Now())
	bidOnly := orderbook.NewBook("m", 0, []types.PriceLevel{level("0.40", "1")}, nil, time.Now())
	askOnly := orderbook.NewBook("m", 0, nil, []types.PriceLevel{level("0.50", "1")}, time.Now())
	empty := orderbook.NewBook("m", 0, nil, nil, time.Now())

	tests := []struct {
		name    string
		book    *orderbook.Book
		outcome int
		want    string
	}{
		{"both sides outcome 0", both, 0, "0.45"},
		{"both sides outcome 1", both, 1, "0.55"},
		{"bid only", bidOnly, 0, "0.4"},
		{"ask only", askOnly, 0, "0.5"},
		{"ask only reflected", askOnly, 1, "0.5"},
		{"empty", empty, 0, "0"},
		{"unknown outcome", both, -1, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MarkPrice(tt.book, tt.outcome)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("MarkPrice() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValue(t *testing.T) {
	got := Value(decimal.RequireFromString("0.25"), testutil.Units(10))
	assert.True(t, got.Equal(decimal.RequireFromString("2.5")), got.String())
	assert.True(t, Value(decimal.NewFromInt(1), nil).IsZero())
}

func TestTracker_Refresh_MarksPositions(t *testing.T) {
	source := &fakeSource{positions: []*types.Position{
		position("1", 0, 10, types.ResolutionUnresolved),
		position("1", 1, 4, types.ResolutionUnresolved),
		position("2", 0, 3, types.ResolutionResolved),
		position("3", 0, 7, types.ResolutionUnresolved),
	}}
	books := &fakeBooks{books: map[string]*orderbook.Book{
		"1": orderbook.NewBook("1", 0, []types.PriceLevel{level("0.60", "5")}, []types.PriceLevel{level("0.70", "5")}, time.Now()),
		"2": orderbook.NewBook("2", 0, []types.PriceLevel{level("0.99", "5")}, nil, time.Now()),
	}}

	tracker, err := New(&Config{Source: source, Books: books, Owner: "0xabc", Logger: zap.NewNop()})
	require.NoError(t, err)

	require.NoError(t, tracker.Refresh(context.Background()))

	got := tracker.Positions()
	require.Len(t, got, 4)

	assert.Equal(t, "0.65", got[0].MarkPrice.String())
	assert.Equal(t, "6.5", got[0].Value.String())
	assert.Equal(t, "0.35", got[1].MarkPrice.String())
	assert.Equal(t, "1.4", got[1].Value.String())
	assert.Equal(t, "0.99", got[2].MarkPrice.String())
	assert.True(t, got[3].MarkPrice.IsZero(), "market without a book stays unmarked")

	// one fetch per market
	assert.Equal(t, 1, books.calls["1"])

	// source positions are not modified
	assert.True(t, source.positions[0].MarkPrice.IsZero())

	redeemable := tracker.Redeemable()
	require.Len(t, redeemable, 1)
	assert.Equal(t, "2", redeemable[0].MarketID)
	assert.False(t, tracker.UpdatedAt().IsZero())
}

func TestTracker_Refresh_KeepsSnapshotOnError(t *testing.T) {
	source := &fakeSource{positions: []*types.Position{position("1", 0, 1, types.ResolutionResolved)}}

	tracker, err := New(&Config{Source: source, Logger: zap.NewNop()})
	require.NoError(t, err)
	require.NoError(t, tracker.Refresh(context.Background()))

	source.mu.Lock()
	source.err = errors.New("api down")
	source.mu.Unlock()

	require.Error(t, tracker.Refresh(context.Background()))
	assert.Len(t, tracker.Positions(), 1)
}

func TestFilterRedeemable(t *testing.T) {
	zero := position("4", 0, 0, types.ResolutionResolved)
	zero.Shares = new(big.Int)

	got := FilterRedeemable([]*types.Position{
		position("1", 0, 1, types.ResolutionResolved),
		position("2", 0, 1, types.ResolutionUnresolved),
		zero,
	})
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].MarketID)
}

func TestTracker_StartStopAndTrigger(t *testing.T) {
	source := &fakeSource{}

	tracker, err := New(&Config{Source: source, Interval: time.Hour, Logger: zap.NewNop()})
	require.NoError(t, err)

	require.NoError(t, tracker.Start(context.Background()))
	assert.Eventually(t, func() bool { return source.Calls() >= 1 }, time.Second, 5*time.Millisecond)

	tracker.Trigger()
	assert.Eventually(t, func() bool { return source.Calls() >= 2 }, time.Second, 5*time.Millisecond)

	tracker.Stop()
	calls := source.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, source.Calls())
}
