package orderbook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func level(price, size string) types.PriceLevel {
	return types.PriceLevel{Price: decimal.RequireFromString(price), Size: decimal.RequireFromString(size)}
}

func TestNewBook_SortsAndCleans(t *testing.T) {
	book := NewBook("m1", 0,
		[]types.PriceLevel{level("0.40", "10"), level("0.45", "5"), level("0.30", "0")},
		[]types.PriceLevel{level("0.60", "3"), level("0.55", "8"), level("1.2", "1")},
		time.Now())

	if len(book.Bids) != 2 || len(book.Asks) != 2 {
		t.Fatalf("expected 2 bids and 2 asks, got %d and %d", len(book.Bids), len(book.Asks))
	}

	bid, _ := book.BestBid()
	ask, _ := book.BestAsk()
	if bid.Price.String() != "0.45" {
		t.Errorf("best bid = %s, want 0.45", bid.Price)
	}
	if ask.Price.String() != "0.55" {
		t.Errorf("best ask = %s, want 0.55", ask.Price)
	}
}

func TestBook_Mid(t *testing.T) {
	tests := []struct {
		name string
		bids []types.PriceLevel
		asks []types.PriceLevel
		want string
	}{
		{name: "both-sides", bids: []types.PriceLevel{level("0.40", "1")}, asks: []types.PriceLevel{level("0.50", "1")}, want: "0.45"},
		{name: "bids-only", bids: []types.PriceLevel{level("0.40", "1")}, want: "0.4"},
		{name: "asks-only", asks: []types.PriceLevel{level("0.52", "1")}, want: "0.52"},
		{name: "empty", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := NewBook("m", 0, tt.bids, tt.asks, time.Now())
			if got := book.Mid(); !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Mid() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReflect(t *testing.T) {
	book := NewBook("m1", 0,
		[]types.PriceLevel{level("0.40", "10"), level("0.35", "20")},
		[]types.PriceLevel{level("0.45", "7"), level("0.50", "9")},
		time.Now())

	complement := Reflect(book)

	if complement.Outcome != 1 {
		t.Errorf("Outcome = %d, want 1", complement.Outcome)
	}

	bid, ok := complement.BestBid()
	if !ok || !bid.Price.Equal(decimal.RequireFromString("0.55")) || !bid.Size.Equal(decimal.NewFromInt(7)) {
		t.Errorf("complement best bid = %+v, want 0.55 x 7", bid)
	}
	ask, ok := complement.BestAsk()
	if !ok || !ask.Price.Equal(decimal.RequireFromString("0.60")) || !ask.Size.Equal(decimal.NewFromInt(10)) {
		t.Errorf("complement best ask = %+v, want 0.60 x 10", ask)
	}

	if !complement.Bids[1].Price.Equal(decimal.RequireFromString("0.50")) {
		t.Errorf("second complement bid = %s, want 0.50", complement.Bids[1].Price)
	}
	if !complement.Asks[1].Price.Equal(decimal.RequireFromString("0.65")) {
		t.Errorf("second complement ask = %s, want 0.65", complement.Asks[1].Price)
	}

	back := Reflect(complement)
	if !back.Bids[0].Price.Equal(book.Bids[0].Price) || !back.Asks[0].Price.Equal(book.Asks[0].Price) {
		t.Error("reflecting twice should return the original prices")
	}

	if Reflect(nil) != nil {
		t.Error("Reflect(nil) should be nil")
	}
}

func TestStore_ReplaceAndGet(t *testing.T) {
	store := NewStore(zap.NewNop())

	if _, ok := store.Get("m1", 0); ok {
		t.Fatal("expected no snapshot before Replace")
	}

	first := NewBook("m1", 0, []types.PriceLevel{level("0.40", "1")}, nil, time.Now())
	store.Replace(first)

	got, ok := store.Get("m1", 0)
	if !ok || got != first {
		t.Fatal("expected the replaced snapshot")
	}

	complement, ok := store.Get("m1", 1)
	if !ok {
		t.Fatal("expected complement snapshot")
	}
	ask, _ := complement.BestAsk()
	if !ask.Price.Equal(decimal.RequireFromString("0.60")) {
		t.Errorf("complement best ask = %s, want 0.60", ask.Price)
	}

	second := NewBook("m1", 0, nil, []types.PriceLevel{level("0.70", "2")}, time.Now())
	store.Replace(second)

	got, _ = store.Get("m1", 0)
	if len(got.Bids) != 0 {
		t.Error("replacement must not merge levels from the previous snapshot")
	}

	store.Delete("m1")
	if _, ok := store.Get("m1", 0); ok {
		t.Error("expected snapshot removed")
	}
}

func TestStore_ConcurrentReaders(t *testing.T) {
	store := NewStore(zap.NewNop())
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				store.Replace(NewBook("m", 0, []types.PriceLevel{level("0.40", "1")}, []types.PriceLevel{level("0.60", "1")}, time.Now()))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if book, ok := store.Get("m", 0); ok {
					if len(book.Bids) != 1 || len(book.Asks) != 1 {
						t.Error("observed a partial snapshot")
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSource) GetOrderbook(_ context.Context, marketID string) (*Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return NewBook(marketID, 0, []types.PriceLevel{level("0.40", "1")}, nil, time.Now()), nil
}

func TestPoller(t *testing.T) {
	source := &fakeSource{}
	store := NewStore(zap.NewNop())

	poller, err := NewPoller(&PollerConfig{
		MarketID: "m1",
		Source:   source,
		Store:    store,
		Interval: 10 * time.Millisecond,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewPoller() error = %v", err)
	}

	err = poller.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Get("m1", 0); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	poller.Stop()

	if _, ok := store.Get("m1", 0); !ok {
		t.Fatal("expected poller to populate the store")
	}
}

func TestPoller_FailureKeepsLastSnapshot(t *testing.T) {
	source := &fakeSource{}
	store := NewStore(zap.NewNop())
	poller, _ := NewPoller(&PollerConfig{MarketID: "m1", Source: source, Store: store, Interval: time.Hour, Logger: zap.NewNop()})

	if err := poller.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	source.err = errors.New("boom")
	if err := poller.Refresh(context.Background()); err == nil {
		t.Fatal("expected error from failing source")
	}

	if _, ok := store.Get("m1", 0); !ok {
		t.Error("expected previous snapshot to survive a failed refresh")
	}
}

func TestNewPoller_Validation(t *testing.T) {
	if _, err := NewPoller(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewPoller(&PollerConfig{Source: &fakeSource{}, Store: NewStore(zap.NewNop()), Interval: time.Second, Logger: zap.NewNop()}); err == nil {
		t.Error("expected error for empty market id")
	}
	if _, err := NewPoller(&PollerConfig{MarketID: "m", Source: &fakeSource{}, Store: NewStore(zap.NewNop()), Logger: zap.NewNop()}); err == nil {
		t.Error("expected error for zero interval")
	}
}
