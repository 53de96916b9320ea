package redemption

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/predict-trader/pkg/types"
)

const conditionalTokensABI = `[{
	"inputs": [
		{"name": "collateralToken", "type": "address"},
		{"name": "parentCollectionId", "type": "bytes32"},
		{"name": "conditionId", "type": "bytes32"},
		{"name": "indexSets", "type": "uint256[]"}
	],
	"name": "redeemPositions",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

const negRiskAdapterABI = `[{
	"inputs": [
		{"name": "_conditionId", "type": "bytes32"},
		{"name": "_amounts", "type": "uint256[]"}
	],
	"name": "redeemPositions",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

//nolint:gochecknoglobals // parsed once
var (
	ConditionalTokensABI = mustParse(conditionalTokensABI)
	NegRiskAdapterABI    = mustParse(negRiskAdapterABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse ABI: %v", err))
	}
	return parsed
}

// Contracts are the redemption targets. The yield-bearing variants may be left zero on
// networks that have none; redeeming a yield-bearing position there fails.
type Contracts struct {
	Collateral                    common.Address
	ConditionalTokens             common.Address
	YieldBearingConditionalTokens common.Address
	NegRiskAdapter                common.Address
	YieldBearingNegRiskAdapter    common.Address
}

// Params is everything needed to redeem one position.
type Params struct {
	MarketID     string
	ConditionID  common.Hash
	OutcomeIndex int
	IndexSet     *big.Int
	Amount       *big.Int
	NegRisk      bool
	YieldBearing bool
	Target       common.Address
	Data         []byte
}

// Prepare derives redemption parameters from position and market metadata. Every input
// must be present: nothing is defaulted. market may be nil, in which case the position's
// own copy of the market fields is used.
func Prepare(position *types.Position, market *types.Market, contracts Contracts) (*Params, error) {
	if position == nil {
		return nil, fmt.Errorf("%w: position cannot be nil", types.ErrIncompleteMarketData)
	}

	resolution := position.Resolution
	conditionID := position.ConditionID
	negRisk := position.NegRisk
	yieldBearing := position.YieldBearing
	if market != nil {
		resolution = market.Resolution
		if market.ConditionID != "" {
			conditionID = market.ConditionID
		}
		if market.NegRisk != nil {
			negRisk = market.NegRisk
		}
		if market.YieldBearing != nil {
			yieldBearing = market.YieldBearing
		}
	}

	if resolution != types.ResolutionResolved {
		return nil, fmt.Errorf("market %s: %w", position.MarketID, types.ErrMarketNotResolved)
	}

	if conditionID == "" {
		return nil, fmt.Errorf("%w: market %s has no conditionId", types.ErrIncompleteMarketData, position.MarketID)
	}
	raw := strings.TrimPrefix(conditionID, "0x")
	if len(raw) != 64 || !isHex(raw) {
		return nil, fmt.Errorf("%w: market %s has malformed conditionId %q",
			types.ErrIncompleteMarketData, position.MarketID, conditionID)
	}

	if position.Shares == nil || position.Shares.Sign() <= 0 {
		return nil, fmt.Errorf("%w: position %s has no redeemable amount", types.ErrIncompleteMarketData, position.ID)
	}

	if position.OutcomeIndex != 0 && position.OutcomeIndex != 1 {
		return nil, fmt.Errorf("%w: position %s has unknown outcome index %d",
			types.ErrIncompleteMarketData, position.ID, position.OutcomeIndex)
	}

	if negRisk == nil {
		return nil, fmt.Errorf("%w: market %s does not report isNegRisk", types.ErrIncompleteMarketData, position.MarketID)
	}
	if yieldBearing == nil {
		return nil, fmt.Errorf("%w: market %s does not report isYieldBearing",
			types.ErrIncompleteMarketData, position.MarketID)
	}

	p := &Params{
		MarketID:     position.MarketID,
		ConditionID:  common.HexToHash(conditionID),
		OutcomeIndex: position.OutcomeIndex,
		IndexSet:     new(big.Int).Lsh(big.NewInt(1), uint(position.OutcomeIndex)),
		Amount:       new(big.Int).Set(position.Shares),
		NegRisk:      *negRisk,
		YieldBearing: *yieldBearing,
	}

	err := p.encode(contracts)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Params) encode(contracts Contracts) error {
	var err error

	if p.NegRisk {
		p.Target = contracts.NegRiskAdapter
		if p.YieldBearing {
			p.Target = contracts.YieldBearingNegRiskAdapter
		}

		amounts := []*big.Int{new(big.Int), new(big.Int)}
		amounts[p.OutcomeIndex] = new(big.Int).Set(p.Amount)

		p.Data, err = NegRiskAdapterABI.Pack("redeemPositions", p.ConditionID, amounts)
	} else {
		p.Target = contracts.ConditionalTokens
		if p.YieldBearing {
			p.Target = contracts.YieldBearingConditionalTokens
		}

		if contracts.Collateral == (common.Address{}) {
			return fmt.Errorf("redeem market %s: collateral address not configured", p.MarketID)
		}

		p.Data, err = ConditionalTokensABI.Pack("redeemPositions",
			contracts.Collateral,
			common.Hash{},
			p.ConditionID,
			[]*big.Int{new(big.Int).Set(p.IndexSet)})
	}
	if err != nil {
		return fmt.Errorf("pack redeemPositions: %w", err)
	}

	if p.Target == (common.Address{}) {
		return fmt.Errorf("redeem market %s: %s contract not configured", p.MarketID, p.contractName())
	}

	return nil
}

func (p *Params) contractName() string {
	switch {
	case p.NegRisk && p.YieldBearing:
		return "yield-bearing neg-risk adapter"
	case p.NegRisk:
		return "neg-risk adapter"
	case p.YieldBearing:
		return "yield-bearing conditional tokens"
	default:
		return "conditional tokens"
	}
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
