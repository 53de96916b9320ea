package orderbook

import (
	"sync"

	"go.uber.org/zap"
)

// Store holds the latest book snapshot per market. The backend publishes the book of
// outcome 0; outcome 1 is derived by reflection from the same snapshot, so both views
// always come from the same refresh.
type Store struct {
	books  map[string]*Book // key: market id
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewStore creates an empty book store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		books:  make(map[string]*Book),
		logger: logger,
	}
}

// Replace swaps in a new snapshot for book.MarketID. Readers holding the old snapshot
// keep a consistent view; new readers see the new one.
func (s *Store) Replace(book *Book) {
	if book == nil {
		return
	}
	if book.Outcome != 0 {
		book = Reflect(book)
	}

	s.mu.Lock()
	s.books[book.MarketID] = book
	count := len(s.books)
	s.mu.Unlock()

	SnapshotsTracked.Set(float64(count))
	SnapshotReplacementsTotal.Inc()

	bid, _ := book.BestBid()
	ask, _ := book.BestAsk()
	s.logger.Debug("orderbook-snapshot-replaced",
		zap.String("market-id", book.MarketID),
		zap.String("best-bid", bid.Price.String()),
		zap.String("best-ask", ask.Price.String()),
		zap.Int("bid-levels", len(book.Bids)),
		zap.Int("ask-levels", len(book.Asks)))
}

// Get returns the snapshot for a market outcome.
func (s *Store) Get(marketID string, outcome int) (*Book, bool) {
	s.mu.RLock()
	book, ok := s.books[marketID]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if outcome == 1 {
		return Reflect(book), true
	}
	return book, true
}

// Delete drops a market's snapshot.
func (s *Store) Delete(marketID string) {
	s.mu.Lock()
	delete(s.books, marketID)
	count := len(s.books)
	s.mu.Unlock()

	SnapshotsTracked.Set(float64(count))
}
