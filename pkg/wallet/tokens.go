package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const erc1155ABI = `[
	{"inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"name":"setApprovalForAll","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"name":"isApprovedForAll","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

//nolint:gochecknoglobals // parsed ABIs
var (
	ERC20ABI   = mustParseABI(erc20ABI)
	ERC1155ABI = mustParseABI(erc1155ABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse ABI: %v", err))
	}
	return parsed
}

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// PackApprove encodes ERC20 approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return data, nil
}

// PackSetApprovalForAll encodes ERC1155 setApprovalForAll(operator, approved).
func PackSetApprovalForAll(operator common.Address, approved bool) ([]byte, error) {
	data, err := ERC1155ABI.Pack("setApprovalForAll", operator, approved)
	if err != nil {
		return nil, fmt.Errorf("pack setApprovalForAll: %w", err)
	}
	return data, nil
}

// ERC20Allowance reads allowance(owner, spender) on token.
func ERC20Allowance(ctx context.Context, caller ContractCaller, token, owner, spender common.Address) (*big.Int, error) {
	data, err := ERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}

	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call allowance: %w", err)
	}

	return unpackUint(ERC20ABI, "allowance", result)
}

// ERC20Balance reads balanceOf(owner) on token.
func ERC20Balance(ctx context.Context, caller ContractCaller, token, owner common.Address) (*big.Int, error) {
	data, err := ERC20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	return unpackUint(ERC20ABI, "balanceOf", result)
}

// ERC1155ApprovedForAll reads isApprovedForAll(owner, operator) on token.
func ERC1155ApprovedForAll(ctx context.Context, caller ContractCaller, token, owner, operator common.Address) (bool, error) {
	data, err := ERC1155ABI.Pack("isApprovedForAll", owner, operator)
	if err != nil {
		return false, fmt.Errorf("pack isApprovedForAll: %w", err)
	}

	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return false, fmt.Errorf("call isApprovedForAll: %w", err)
	}

	values, err := ERC1155ABI.Unpack("isApprovedForAll", result)
	if err != nil {
		return false, fmt.Errorf("unpack isApprovedForAll: %w", err)
	}

	approved, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isApprovedForAll result %T", values[0])
	}
	return approved, nil
}

// ERC1155Balance reads balanceOf(owner, id) on token.
func ERC1155Balance(ctx context.Context, caller ContractCaller, token, owner common.Address, id *big.Int) (*big.Int, error) {
	data, err := ERC1155ABI.Pack("balanceOf", owner, id)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	return unpackUint(ERC1155ABI, "balanceOf", result)
}

func unpackUint(contract abi.ABI, method string, result []byte) (*big.Int, error) {
	values, err := contract.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}

	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result %T", method, values[0])
	}
	return value, nil
}
