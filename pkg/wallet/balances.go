package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// BalanceReader reads native and token balances.
type BalanceReader interface {
	ContractCaller
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// Balances is a snapshot of the account's funds.
type Balances struct {
	Native              *big.Int
	Collateral          *big.Int
	CollateralAllowance *big.Int
}

// GetBalances reads the native balance, the collateral balance and the collateral
// allowance granted to spender.
func GetBalances(
	ctx context.Context,
	reader BalanceReader,
	owner common.Address,
	collateral common.Address,
	spender common.Address,
) (*Balances, error) {
	native, err := reader.BalanceAt(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("get native balance: %w", err)
	}

	collateralBalance, err := ERC20Balance(ctx, reader, collateral, owner)
	if err != nil {
		return nil, fmt.Errorf("get collateral balance: %w", err)
	}

	allowance, err := ERC20Allowance(ctx, reader, collateral, owner, spender)
	if err != nil {
		return nil, fmt.Errorf("get collateral allowance: %w", err)
	}

	return &Balances{
		Native:              native,
		Collateral:          collateralBalance,
		CollateralAllowance: allowance,
	}, nil
}

// ToUnits converts an 18-decimal base amount to whole units.
func ToUnits(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -18)
}
