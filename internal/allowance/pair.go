package allowance

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Kind is the kind of permission a pair needs.
type Kind int

const (
	// KindERC20 is a fungible allowance on the collateral token.
	KindERC20 Kind = iota
	// KindOperator is an ERC1155 operator approval on the outcome-share token.
	KindOperator
)

func (k Kind) String() string {
	switch k {
	case KindERC20:
		return "erc20"
	case KindOperator:
		return "operator"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// State is the lifecycle position of one pair.
type State int

const (
	StateUnknown State = iota
	StateChecking
	StateSufficient
	StateInsufficient
	StateApproving
	StateApprovalFailed
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateChecking:
		return "CHECKING"
	case StateSufficient:
		return "SUFFICIENT"
	case StateInsufficient:
		return "INSUFFICIENT"
	case StateApproving:
		return "APPROVING"
	case StateApprovalFailed:
		return "APPROVAL_FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Pair is one (owner, spender, token) permission.
type Pair struct {
	Name    string
	Owner   common.Address
	Spender common.Address
	Token   common.Address
	Kind    Kind
}

func (p Pair) String() string {
	return p.Name
}

// Contracts are the addresses approvals are granted on and to.
type Contracts struct {
	Collateral        common.Address
	ConditionalTokens common.Address
	Exchange          common.Address
	NegRiskExchange   common.Address
	NegRiskAdapter    common.Address
}

const (
	pairCollateralExchange        = "collateral->exchange"
	pairCollateralNegRiskExchange = "collateral->neg-risk-exchange"
	pairCollateralNegRiskAdapter  = "collateral->neg-risk-adapter"
	pairOperatorExchange          = "operator->exchange"
	pairOperatorNegRiskExchange   = "operator->neg-risk-exchange"
	pairOperatorNegRiskAdapter    = "operator->neg-risk-adapter"
)
