package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceLevel represents a single price level in the orderbook. Price is a probability in
// (0,1); Size is in whole shares.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// UnmarshalJSON accepts the backend's [price, size] pairs, where each element is either
// a JSON number or a numeric string, and also the {"price","size"} object form.
func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		type alias PriceLevel
		var obj alias
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("decode price level: %w", err)
		}
		*l = PriceLevel(obj)
		return nil
	}

	var pair []decimal.Decimal
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode price level: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode price level: expected [price, size], got %d elements", len(pair))
	}
	l.Price = pair[0]
	l.Size = pair[1]
	return nil
}

// MarshalJSON writes the [price, size] pair form.
func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{l.Price.String(), l.Size.String()})
}
