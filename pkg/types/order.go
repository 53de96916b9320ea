package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Side is the order direction as encoded in the signed order (uint8).
type Side uint8

const (
	Buy  Side = 0
	Sell Side = 1
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: invalid side %q", ErrValidation, s)
	}
}

// Kind is the pricing strategy of an order.
type Kind string

const (
	KindLimit  Kind = "LIMIT"
	KindMarket Kind = "MARKET"
)

// ParseKind accepts "limit"/"market" in any case.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(s)); k {
	case KindLimit, KindMarket:
		return k, nil
	default:
		return "", fmt.Errorf("%w: invalid order kind %q", ErrValidation, s)
	}
}

// OrderIntent is the user's request before any amounts are computed. Price is only
// meaningful for LIMIT orders.
type OrderIntent struct {
	Side         Side
	Kind         Kind
	OutcomeIndex int
	Price        string
	Quantity     string
}

// UnsignedOrder mirrors the exchange's Order struct field for field.
type UnsignedOrder struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          Side
	SignatureType uint8
}

// Clone returns a deep copy so callers can't mutate a hashed order through shared pointers.
func (o *UnsignedOrder) Clone() UnsignedOrder {
	c := *o
	c.Salt = cloneInt(o.Salt)
	c.TokenID = cloneInt(o.TokenID)
	c.MakerAmount = cloneInt(o.MakerAmount)
	c.TakerAmount = cloneInt(o.TakerAmount)
	c.Expiration = cloneInt(o.Expiration)
	c.Nonce = cloneInt(o.Nonce)
	c.FeeRateBps = cloneInt(o.FeeRateBps)
	return c
}

// SignedOrder is an order with its EIP-712 hash and signature. Build it once through a
// signing session; never modify it afterwards.
type SignedOrder struct {
	Order     UnsignedOrder
	Hash      common.Hash
	Signature []byte
}

// Action is what a flow does with the user's tokens.
type Action int

const (
	ActionBuy Action = iota
	ActionSell
	ActionRedeem
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	case ActionRedeem:
		return "redeem"
	default:
		return "unknown"
	}
}

// Flow describes an operation that needs token permissions. Amount is the collateral
// the flow spends, nil when unknown.
type Flow struct {
	Action  Action
	NegRisk bool
	Amount  *big.Int
}

// FlowForSide maps an order side to its flow.
func FlowForSide(side Side, negRisk bool, amount *big.Int) Flow {
	action := ActionBuy
	if side == Sell {
		action = ActionSell
	}
	return Flow{Action: action, NegRisk: negRisk, Amount: amount}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
