package testutil

import (
	"math/big"
	"strconv"

	"github.com/mselser95/predict-trader/pkg/types"
)

// TestMarket returns a raw binary market record as the backend serves it.
func TestMarket(id int, negRisk bool) map[string]any {
	return map[string]any{
		"id":             id,
		"title":          "Test market " + strconv.Itoa(id),
		"conditionId":    "0x" + leftPad(strconv.Itoa(id), 64),
		"feeRateBps":     200,
		"isNegRisk":      negRisk,
		"isYieldBearing": false,
		"status":         "REGISTERED",
		"outcomes": []map[string]any{
			{"name": "Yes", "indexSet": 1, "onChainId": strconv.Itoa(id*10 + 1)},
			{"name": "No", "indexSet": 2, "onChainId": strconv.Itoa(id*10 + 2)},
		},
	}
}

// CanonicalMarket returns the canonical form of TestMarket(id, negRisk).
func CanonicalMarket(id int, negRisk bool) *types.Market {
	fee := int64(200)
	return &types.Market{
		ID:           strconv.Itoa(id),
		Question:     "Test market " + strconv.Itoa(id),
		ConditionID:  "0x" + leftPad(strconv.Itoa(id), 64),
		FeeRateBps:   &fee,
		NegRisk:      types.Bool(negRisk),
		YieldBearing: types.Bool(false),
		Resolution:   types.ResolutionUnresolved,
		Outcomes: []types.Outcome{
			{Index: 0, Name: "Yes", TokenID: big.NewInt(int64(id*10 + 1))},
			{Index: 1, Name: "No", TokenID: big.NewInt(int64(id*10 + 2))},
		},
	}
}

// TestPosition returns a raw position record holding shares (whole units) of outcome
// indexSet in market id.
func TestPosition(id int, indexSet int, shares string, resolved bool) map[string]any {
	status := "REGISTERED"
	if resolved {
		status = "RESOLVED"
	}
	return map[string]any{
		"id":       "pos-" + strconv.Itoa(id) + "-" + strconv.Itoa(indexSet),
		"amount":   shares,
		"avgPrice": "0.40",
		"market": map[string]any{
			"id":             id,
			"question":       "Test market " + strconv.Itoa(id),
			"conditionId":    "0x" + leftPad(strconv.Itoa(id), 64),
			"isNegRisk":      false,
			"isYieldBearing": false,
			"status":         status,
		},
		"outcome": map[string]any{
			"name":      map[int]string{1: "Yes", 2: "No"}[indexSet],
			"indexSet":  indexSet,
			"onChainId": strconv.Itoa(id*10 + indexSet),
		},
	}
}

// Units returns n whole units in 18-decimal base units.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}
