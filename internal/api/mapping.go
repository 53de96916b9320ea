package api

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/predict-trader/internal/orderbook"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/shopspring/decimal"
)

// Backend records use several names for the same field. This file is the only place
// that knows about them; everything past it works on pkg/types.

// flexString decodes a JSON string or number as its text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

type outcomeDTO struct {
	Name      string     `json:"name"`
	IndexSet  *int       `json:"indexSet"`
	OnChainID flexString `json:"onChainId"`
	TokenID   flexString `json:"tokenId"`
}

type marketDTO struct {
	ID             flexString      `json:"id"`
	Title          string          `json:"title"`
	Question       string          `json:"question"`
	ConditionID    string          `json:"conditionId"`
	Outcomes       json.RawMessage `json:"outcomes"`
	OutcomesDetail []outcomeDTO    `json:"outcomesDetail"`
	FeeRateBps     flexString      `json:"feeRateBps"`
	IsNegRisk      *bool           `json:"isNegRisk"`
	NegRisk        *bool           `json:"negRisk"`
	IsYieldBearing *bool           `json:"isYieldBearing"`
	YieldBearing   *bool           `json:"yieldBearing"`
	Status         string          `json:"status"`
	Resolution     json.RawMessage `json:"resolution"`
	Resolved       *bool           `json:"resolved"`
}

type positionDTO struct {
	ID             flexString      `json:"id"`
	MarketID       flexString      `json:"marketId"`
	Market         *marketDTO      `json:"market"`
	Outcome        *outcomeDTO     `json:"outcome"`
	OutcomeIndex   *int            `json:"outcomeIndex"`
	OutcomeName    string          `json:"outcomeName"`
	TokenID        flexString      `json:"tokenId"`
	Amount         flexString      `json:"amount"`
	Shares         flexString      `json:"shares"`
	Size           flexString      `json:"size"`
	AvgPrice       flexString      `json:"avgPrice"`
	MarketTitle    string          `json:"marketTitle"`
	ConditionID    string          `json:"conditionId"`
	IsNegRisk      *bool           `json:"isNegRisk"`
	NegRisk        *bool           `json:"negRisk"`
	IsYieldBearing *bool           `json:"isYieldBearing"`
	YieldBearing   *bool           `json:"yieldBearing"`
	Status         string          `json:"status"`
	Resolution     json.RawMessage `json:"resolution"`
	Resolved       *bool           `json:"resolved"`
}

type orderbookDTO struct {
	MarketID          flexString         `json:"marketId"`
	Bids              []types.PriceLevel `json:"bids"`
	Asks              []types.PriceLevel `json:"asks"`
	UpdateTimestampMs int64              `json:"updateTimestampMs"`
}

//nolint:gochecknoglobals // unit scale
var one = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func toMarket(d *marketDTO) (*types.Market, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("%w: market without id", types.ErrIncompleteMarketData)
	}

	m := &types.Market{
		ID:           string(d.ID),
		Question:     firstNonEmpty(d.Question, d.Title),
		ConditionID:  d.ConditionID,
		NegRisk:      firstFlag(d.IsNegRisk, d.NegRisk),
		YieldBearing: firstFlag(d.IsYieldBearing, d.YieldBearing),
		Resolution:   resolution(d.Status, d.Resolution, d.Resolved),
	}

	if d.FeeRateBps != "" {
		fee, ok := new(big.Int).SetString(string(d.FeeRateBps), 10)
		if !ok || !fee.IsInt64() || fee.Sign() < 0 {
			return nil, fmt.Errorf("market %s: invalid feeRateBps %q", d.ID, d.FeeRateBps)
		}
		v := fee.Int64()
		m.FeeRateBps = &v
	}

	outcomes, err := toOutcomes(d)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", d.ID, err)
	}
	m.Outcomes = outcomes

	return m, nil
}

func toOutcomes(d *marketDTO) ([]types.Outcome, error) {
	if len(d.OutcomesDetail) == 0 && len(d.Outcomes) > 0 && !isNull(d.Outcomes) {
		// outcomes is either a list of names or a list of outcome objects
		var detail []outcomeDTO
		if json.Unmarshal(d.Outcomes, &detail) == nil {
			d.OutcomesDetail = detail
		} else {
			var names []string
			if err := json.Unmarshal(d.Outcomes, &names); err != nil {
				return nil, fmt.Errorf("decode outcomes: %w", err)
			}
			for _, name := range names {
				d.OutcomesDetail = append(d.OutcomesDetail, outcomeDTO{Name: name})
			}
		}
	}

	outcomes := make([]types.Outcome, 0, len(d.OutcomesDetail))
	for i, o := range d.OutcomesDetail {
		index := i
		if o.IndexSet != nil {
			idx, err := indexFromIndexSet(*o.IndexSet)
			if err != nil {
				return nil, err
			}
			index = idx
		}

		outcome := types.Outcome{Index: index, Name: o.Name}

		id := firstNonEmpty(string(o.OnChainID), string(o.TokenID))
		if id != "" {
			tokenID, ok := new(big.Int).SetString(id, 10)
			if !ok {
				return nil, fmt.Errorf("invalid outcome token id %q", id)
			}
			outcome.TokenID = tokenID
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func toPosition(d *positionDTO, owner string) (*types.Position, error) {
	p := &types.Position{
		ID:           string(d.ID),
		Owner:        owner,
		MarketID:     string(d.MarketID),
		Question:     d.MarketTitle,
		OutcomeName:  d.OutcomeName,
		ConditionID:  d.ConditionID,
		NegRisk:      firstFlag(d.IsNegRisk, d.NegRisk),
		YieldBearing: firstFlag(d.IsYieldBearing, d.YieldBearing),
		Resolution:   resolution(d.Status, d.Resolution, d.Resolved),
	}

	if d.Market != nil {
		if p.MarketID == "" {
			p.MarketID = string(d.Market.ID)
		}
		p.Question = firstNonEmpty(d.Market.Question, d.Market.Title, p.Question)
		p.ConditionID = firstNonEmpty(p.ConditionID, d.Market.ConditionID)
		if p.NegRisk == nil {
			p.NegRisk = firstFlag(d.Market.IsNegRisk, d.Market.NegRisk)
		}
		if p.YieldBearing == nil {
			p.YieldBearing = firstFlag(d.Market.IsYieldBearing, d.Market.YieldBearing)
		}
		if p.Resolution != types.ResolutionResolved {
			p.Resolution = resolution(d.Market.Status, d.Market.Resolution, d.Market.Resolved)
		}
	}

	if p.MarketID == "" {
		return nil, fmt.Errorf("%w: position %s has no market id", types.ErrIncompleteMarketData, d.ID)
	}

	switch {
	case d.Outcome != nil && d.Outcome.IndexSet != nil:
		idx, err := indexFromIndexSet(*d.Outcome.IndexSet)
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", d.ID, err)
		}
		p.OutcomeIndex = idx
	case d.OutcomeIndex != nil:
		p.OutcomeIndex = *d.OutcomeIndex
	default:
		p.OutcomeIndex = -1
	}

	if d.Outcome != nil {
		p.OutcomeName = firstNonEmpty(d.Outcome.Name, p.OutcomeName)
	}

	tokenID := string(d.TokenID)
	if d.Outcome != nil {
		tokenID = firstNonEmpty(tokenID, string(d.Outcome.OnChainID), string(d.Outcome.TokenID))
	}
	if tokenID != "" {
		id, ok := new(big.Int).SetString(tokenID, 10)
		if !ok {
			return nil, fmt.Errorf("position %s: invalid token id %q", d.ID, tokenID)
		}
		p.TokenID = id
	}

	shares, err := parseAmount(firstNonEmpty(string(d.Amount), string(d.Shares), string(d.Size)))
	if err != nil {
		return nil, fmt.Errorf("position %s: shares: %w", d.ID, err)
	}
	p.Shares = shares

	if d.AvgPrice != "" && shares != nil {
		price, err := parseAmount(string(d.AvgPrice))
		if err != nil {
			return nil, fmt.Errorf("position %s: avgPrice: %w", d.ID, err)
		}
		p.CostBasis = new(big.Int).Div(new(big.Int).Mul(price, shares), one)
	}

	return p, nil
}

func toBook(d *orderbookDTO, marketID string) *orderbook.Book {
	updatedAt := time.Now()
	if d.UpdateTimestampMs > 0 {
		updatedAt = time.UnixMilli(d.UpdateTimestampMs)
	}
	return orderbook.NewBook(marketID, 0, d.Bids, d.Asks, updatedAt)
}

// parseAmount reads a share or collateral amount. Long integer strings are already in
// 18-decimal base units; short integers and decimals are whole units.
func parseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil //nolint:nilnil // absent amount
	}

	if !strings.ContainsAny(s, ".eE") && len(strings.TrimPrefix(s, "-")) > 10 {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q", s)
		}
		return v, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d.Shift(18).Truncate(0).BigInt(), nil
}

func indexFromIndexSet(indexSet int) (int, error) {
	switch indexSet {
	case 1:
		return 0, nil
	case 2:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: unsupported index set %d", types.ErrIncompleteMarketData, indexSet)
	}
}

func resolution(status string, raw json.RawMessage, resolved *bool) types.ResolutionStatus {
	if strings.EqualFold(status, "RESOLVED") {
		return types.ResolutionResolved
	}
	if resolved != nil && *resolved {
		return types.ResolutionResolved
	}
	if len(raw) > 0 && !isNull(raw) {
		var text string
		if json.Unmarshal(raw, &text) == nil {
			if strings.EqualFold(text, "RESOLVED") {
				return types.ResolutionResolved
			}
			return types.ResolutionUnresolved
		}
		// a resolution object is only present once the market has resolved
		return types.ResolutionResolved
	}
	return types.ResolutionUnresolved
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstFlag(flags ...*bool) *bool {
	for _, f := range flags {
		if f != nil {
			return types.Bool(*f)
		}
	}
	return nil
}
