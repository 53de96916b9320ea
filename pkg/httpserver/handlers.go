package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/mselser95/predict-trader/internal/orderbook"
	"github.com/mselser95/predict-trader/pkg/types"
	"go.uber.org/zap"
)

// BookReader looks up the latest book snapshot of a market outcome.
type BookReader interface {
	Get(marketID string, outcome int) (*orderbook.Book, bool)
}

// PositionReader exposes the latest positions snapshot.
type PositionReader interface {
	Positions() []*types.Position
	UpdatedAt() time.Time
}

// BookResponse is the JSON view of one outcome's book.
type BookResponse struct {
	MarketID  string             `json:"market_id"`
	Outcome   int                `json:"outcome"`
	BestBid   *types.PriceLevel  `json:"best_bid,omitempty"`
	BestAsk   *types.PriceLevel  `json:"best_ask,omitempty"`
	Mid       string             `json:"mid"`
	Bids      []types.PriceLevel `json:"bids"`
	Asks      []types.PriceLevel `json:"asks"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// PositionView is the JSON view of one position.
type PositionView struct {
	MarketID     string `json:"market_id"`
	Question     string `json:"question"`
	OutcomeIndex int    `json:"outcome_index"`
	OutcomeName  string `json:"outcome_name"`
	Shares       string `json:"shares"`
	MarkPrice    string `json:"mark_price"`
	Value        string `json:"value"`
	Resolution   string `json:"resolution"`
	Redeemable   bool   `json:"redeemable"`
}

// PositionsResponse is the JSON view of the positions snapshot.
type PositionsResponse struct {
	Positions []PositionView `json:"positions"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	books     BookReader
	positions PositionReader
	logger    *zap.Logger
}

// handleBook serves GET /api/book/{marketID}?outcome=<0|1>.
func (h *handlers) handleBook(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	if marketID == "" {
		h.writeError(w, "missing market id", http.StatusBadRequest)
		return
	}

	outcome := 0
	if raw := r.URL.Query().Get("outcome"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || (parsed != 0 && parsed != 1) {
			h.writeError(w, "outcome must be 0 or 1", http.StatusBadRequest)
			return
		}
		outcome = parsed
	}

	book, ok := h.books.Get(marketID, outcome)
	if !ok {
		h.writeError(w, "book not tracked", http.StatusNotFound)
		return
	}

	resp := BookResponse{
		MarketID:  book.MarketID,
		Outcome:   book.Outcome,
		Mid:       book.Mid().String(),
		Bids:      book.Bids,
		Asks:      book.Asks,
		UpdatedAt: book.UpdatedAt,
	}
	if bid, ok := book.BestBid(); ok {
		resp.BestBid = &bid
	}
	if ask, ok := book.BestAsk(); ok {
		resp.BestAsk = &ask
	}
	if resp.Bids == nil {
		resp.Bids = []types.PriceLevel{}
	}
	if resp.Asks == nil {
		resp.Asks = []types.PriceLevel{}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// handlePositions serves GET /api/positions.
func (h *handlers) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := h.positions.Positions()

	resp := PositionsResponse{
		Positions: make([]PositionView, 0, len(positions)),
		UpdatedAt: h.positions.UpdatedAt(),
	}
	for _, p := range positions {
		view := PositionView{
			MarketID:     p.MarketID,
			Question:     p.Question,
			OutcomeIndex: p.OutcomeIndex,
			OutcomeName:  p.OutcomeName,
			Shares:       "0",
			MarkPrice:    p.MarkPrice.String(),
			Value:        p.Value.String(),
			Resolution:   string(p.Resolution),
			Redeemable:   p.Redeemable(),
		}
		if p.Shares != nil {
			view.Shares = p.Shares.String()
		}
		resp.Positions = append(resp.Positions, view)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func (h *handlers) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
