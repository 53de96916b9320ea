package types

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ResolutionStatus tells whether a market's outcome has been finalized on-chain.
type ResolutionStatus string

const (
	ResolutionUnresolved ResolutionStatus = "UNRESOLVED"
	ResolutionResolved   ResolutionStatus = "RESOLVED"
)

// Outcome is one side of a binary market.
type Outcome struct {
	Index   int
	Name    string
	TokenID *big.Int // ERC1155 position id
}

// Market is the canonical market record. NegRisk and YieldBearing stay nil when the
// backend did not report them; consumers that need them must fail rather than guess.
type Market struct {
	ID           string
	Question     string
	ConditionID  string
	Outcomes     []Outcome
	FeeRateBps   *int64
	NegRisk      *bool
	YieldBearing *bool
	Resolution   ResolutionStatus
}

// Outcome returns the outcome at index.
func (m *Market) Outcome(index int) (Outcome, error) {
	for _, o := range m.Outcomes {
		if o.Index == index {
			return o, nil
		}
	}
	return Outcome{}, fmt.Errorf("%w: market %s has no outcome %d", ErrUnknownOutcome, m.ID, index)
}

// IsResolved reports whether the market has resolved.
func (m *Market) IsResolved() bool {
	return m.Resolution == ResolutionResolved
}

// RequireNegRisk returns the neg-risk flag or ErrIncompleteMarketData when it is unknown.
func (m *Market) RequireNegRisk() (bool, error) {
	if m.NegRisk == nil {
		return false, fmt.Errorf("%w: market %s does not report isNegRisk", ErrIncompleteMarketData, m.ID)
	}
	return *m.NegRisk, nil
}

// Position is a holding of one outcome's shares. Shares and CostBasis are in 18-decimal
// base units. MarkPrice and Value are filled in client-side from the live book and are
// the only fields ever changed after decoding.
type Position struct {
	ID           string
	Owner        string
	MarketID     string
	Question     string
	OutcomeIndex int
	OutcomeName  string
	TokenID      *big.Int
	Shares       *big.Int
	CostBasis    *big.Int
	ConditionID  string
	NegRisk      *bool
	YieldBearing *bool
	Resolution   ResolutionStatus

	MarkPrice decimal.Decimal
	Value     decimal.Decimal
}

// Redeemable reports whether the position can be submitted for redemption.
func (p *Position) Redeemable() bool {
	return p.Resolution == ResolutionResolved && p.Shares != nil && p.Shares.Sign() > 0
}

// Bool returns a pointer to b, for populating tri-state flags.
func Bool(b bool) *bool {
	return &b
}
