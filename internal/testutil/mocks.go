package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

// MockPredictAPI is a mock HTTP server that speaks the backend's {success, data}
// envelope for markets, books, positions, auth and order submission.
type MockPredictAPI struct {
	*httptest.Server

	mu sync.RWMutex

	Markets   []map[string]any
	Books     map[string]map[string]any
	Positions []map[string]any

	AuthMessage string
	Token       string

	// OrderHandler decides the response to POST /orders. The default accepts every order.
	OrderHandler func(body []byte) (status int, response any)
	Orders       [][]byte

	// Failures makes the next n requests to a path answer 500.
	Failures map[string]int
	Hits     map[string]int
}

// NewMockPredictAPI creates and starts a mock backend.
func NewMockPredictAPI() *MockPredictAPI {
	mock := &MockPredictAPI{
		Books:       make(map[string]map[string]any),
		AuthMessage: "Sign in to Predict.fun",
		Token:       "test-jwt",
		Failures:    make(map[string]int),
		Hits:        make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(mock.countAndFail)
	r.Get("/markets", mock.handleMarkets)
	r.Get("/markets/{id}", mock.handleMarket)
	r.Get("/orderbook/{id}", mock.handleOrderbook)
	r.Get("/positions", mock.requireAuth(mock.handlePositions))
	r.Get("/account", mock.requireAuth(mock.handleAccount))
	r.Get("/auth/message", mock.handleAuthMessage)
	r.Post("/auth", mock.handleAuth)
	r.Post("/orders", mock.requireAuth(mock.handleOrders))

	mock.Server = httptest.NewServer(r)
	return mock
}

// AddMarket adds a raw market record.
func (m *MockPredictAPI) AddMarket(market map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Markets = append(m.Markets, market)
}

// SetBook sets the raw book returned for a market.
func (m *MockPredictAPI) SetBook(marketID string, bids, asks [][2]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Books[marketID] = map[string]any{"marketId": marketID, "bids": bids, "asks": asks}
}

// SetPositions replaces the raw positions.
func (m *MockPredictAPI) SetPositions(positions []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Positions = positions
}

// SetOrderHandler replaces the POST /orders responder.
func (m *MockPredictAPI) SetOrderHandler(handler func(body []byte) (int, any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OrderHandler = handler
}

// SetAuthMessage replaces the auth challenge.
func (m *MockPredictAPI) SetAuthMessage(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthMessage = msg
}

// FailNext makes the next n requests to path fail with 500.
func (m *MockPredictAPI) FailNext(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures[path] = n
}

// HitCount returns how many requests reached path.
func (m *MockPredictAPI) HitCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Hits[path]
}

// SubmittedOrders returns the raw bodies posted to /orders.
func (m *MockPredictAPI) SubmittedOrders() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]byte(nil), m.Orders...)
}

func (m *MockPredictAPI) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.Hits[r.URL.Path]++
		fail := m.Failures[r.URL.Path] > 0
		if fail {
			m.Failures[r.URL.Path]--
		}
		m.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("internal error"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *MockPredictAPI) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		token := m.Token
		m.mu.RUnlock()

		if r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   map[string]any{"code": "UNAUTHORIZED", "description": "Invalid token"},
			})
			return
		}
		next(w, r)
	}
}

func (m *MockPredictAPI) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeData(w, m.Markets)
}

func (m *MockPredictAPI) handleMarket(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id := chi.URLParam(r, "id")
	for _, market := range m.Markets {
		if idString(market["id"]) == id {
			writeData(w, market)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]any{
		"success": false,
		"error":   map[string]any{"code": "NOT_FOUND", "description": "Market not found"},
	})
}

func (m *MockPredictAPI) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	book, ok := m.Books[chi.URLParam(r, "id")]
	if !ok {
		book = map[string]any{"bids": [][2]any{}, "asks": [][2]any{}}
	}
	writeData(w, book)
}

func (m *MockPredictAPI) handlePositions(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeData(w, m.Positions)
}

func (m *MockPredictAPI) handleAccount(w http.ResponseWriter, _ *http.Request) {
	writeData(w, map[string]any{"name": "tester", "address": "0x0000000000000000000000000000000000000001"})
}

func (m *MockPredictAPI) handleAuthMessage(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeData(w, map[string]any{"message": m.AuthMessage})
}

func (m *MockPredictAPI) handleAuth(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Signer    string `json:"signer"`
		Signature string `json:"signature"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Signature == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   map[string]any{"description": "Invalid signature"},
		})
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	writeData(w, map[string]any{"token": m.Token})
}

func (m *MockPredictAPI) handleOrders(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.Orders = append(m.Orders, body)
	handler := m.OrderHandler
	m.mu.Unlock()

	if handler == nil {
		writeData(w, map[string]any{"code": "OK", "orderId": "1", "orderHash": "0x"})
		return
	}

	status, response := handler(body)
	writeJSON(w, status, response)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case nil:
		return ""
	default:
		raw, _ := json.Marshal(id)
		return strings.Trim(string(raw), `"`)
	}
}
