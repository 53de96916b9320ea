package httpserver

import (
	"context"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/predict-trader/internal/orderbook"
	"github.com/mselser95/predict-trader/pkg/healthprobe"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticPositions struct {
	positions []*types.Position
	updatedAt time.Time
}

func (s *staticPositions) Positions() []*types.Position { return s.positions }
func (s *staticPositions) UpdatedAt() time.Time         { return s.updatedAt }

func level(price, size string) types.PriceLevel {
	return types.PriceLevel{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func newTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HealthChecker == nil {
		cfg.HealthChecker = healthprobe.New()
	}

	srv, err := New(cfg)
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.EqualError(t, err, "config cannot be nil")

	_, err = New(&Config{HealthChecker: healthprobe.New()})
	assert.EqualError(t, err, "logger cannot be nil")

	_, err = New(&Config{Logger: zap.NewNop()})
	assert.EqualError(t, err, "health checker cannot be nil")
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	hc := healthprobe.New()
	srv := newTestServer(t, &Config{Port: "0", HealthChecker: hc})

	assert.Equal(t, http.StatusOK, get(t, srv, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/ready").Code)

	hc.SetReady(true)
	assert.Equal(t, http.StatusOK, get(t, srv, "/ready").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &Config{Port: "0"})

	w := get(t, srv, "/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestBookEndpoint(t *testing.T) {
	store := orderbook.NewStore(zap.NewNop())
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Replace(orderbook.NewBook("42", 0,
		[]types.PriceLevel{level("0.45", "100"), level("0.40", "50")},
		[]types.PriceLevel{level("0.55", "80")},
		updated))

	srv := newTestServer(t, &Config{Port: "0", Books: store})

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantBid  string
		wantAsk  string
		wantMid  string
	}{
		{
			name:     "outcome_zero_default",
			target:   "/api/book/42",
			wantCode: http.StatusOK,
			wantBid:  "0.45",
			wantAsk:  "0.55",
			wantMid:  "0.5",
		},
		{
			name:     "outcome_one_reflected",
			target:   "/api/book/42?outcome=1",
			wantCode: http.StatusOK,
			wantBid:  "0.45",
			wantAsk:  "0.55",
			wantMid:  "0.5",
		},
		{
			name:     "unknown_market",
			target:   "/api/book/7",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "invalid_outcome",
			target:   "/api/book/42?outcome=2",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "non_numeric_outcome",
			target:   "/api/book/42?outcome=yes",
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, srv, tt.target)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			if tt.wantCode != http.StatusOK {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Error)
				return
			}

			var resp BookResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "42", resp.MarketID)
			require.NotNil(t, resp.BestBid)
			require.NotNil(t, resp.BestAsk)
			assert.Equal(t, tt.wantBid, resp.BestBid.Price.String())
			assert.Equal(t, tt.wantAsk, resp.BestAsk.Price.String())
			assert.Equal(t, tt.wantMid, resp.Mid)
			assert.True(t, resp.UpdatedAt.Equal(updated))
		})
	}
}

func TestBookEndpoint_ReflectedLevels(t *testing.T) {
	store := orderbook.NewStore(zap.NewNop())
	store.Replace(orderbook.NewBook("42", 0,
		[]types.PriceLevel{level("0.30", "10")},
		[]types.PriceLevel{level("0.35", "20")},
		time.Now()))

	srv := newTestServer(t, &Config{Port: "0", Books: store})

	var resp BookResponse
	require.NoError(t, json.Unmarshal(get(t, srv, "/api/book/42?outcome=1").Body.Bytes(), &resp))

	assert.Equal(t, 1, resp.Outcome)
	require.Len(t, resp.Bids, 1)
	require.Len(t, resp.Asks, 1)
	assert.Equal(t, "0.65", resp.Bids[0].Price.String())
	assert.Equal(t, "20", resp.Bids[0].Size.String())
	assert.Equal(t, "0.7", resp.Asks[0].Price.String())
}

func TestPositionsEndpoint(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reader := &staticPositions{
		positions: []*types.Position{
			{
				MarketID:     "42",
				Question:     "Will it rain?",
				OutcomeIndex: 0,
				OutcomeName:  "Yes",
				Shares:       big.NewInt(5),
				MarkPrice:    decimal.RequireFromString("0.4"),
				Value:        decimal.RequireFromString("2"),
				Resolution:   types.ResolutionResolved,
			},
			{
				MarketID:    "43",
				OutcomeName: "No",
				Resolution:  types.ResolutionUnresolved,
			},
		},
		updatedAt: updated,
	}

	srv := newTestServer(t, &Config{Port: "0", Positions: reader})

	w := get(t, srv, "/api/positions")
	require.Equal(t, http.StatusOK, w.Code)

	var resp PositionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 2)
	assert.True(t, resp.UpdatedAt.Equal(updated))

	first := resp.Positions[0]
	assert.Equal(t, "42", first.MarketID)
	assert.Equal(t, "5", first.Shares)
	assert.Equal(t, "0.4", first.MarkPrice)
	assert.Equal(t, "RESOLVED", first.Resolution)
	assert.True(t, first.Redeemable)

	second := resp.Positions[1]
	assert.Equal(t, "0", second.Shares)
	assert.False(t, second.Redeemable)
}

func TestAPIRoutes_OnlyWithReaders(t *testing.T) {
	srv := newTestServer(t, &Config{Port: "0"})

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/book/42").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/positions").Code)
}

func TestServer_RouteNotFound(t *testing.T) {
	srv := newTestServer(t, &Config{Port: "0"})

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/nonexistent").Code)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv := newTestServer(t, &Config{Port: "0"})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, getErr := http.Get(url) //nolint:noctx // test helper
		if getErr != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-errCh)
}
