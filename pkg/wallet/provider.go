package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

// ErrUnrecognizedChain is returned by SwitchChain when the wallet does not know the
// requested chain and it has to be added first.
var ErrUnrecognizedChain = errors.New("unrecognized chain")

// ErrNoRPC is returned by chain operations on a provider created without an RPC endpoint.
var ErrNoRPC = errors.New("no RPC endpoint configured")

// ChainParams is what a wallet needs to add a chain it does not know.
type ChainParams struct {
	ChainID      *big.Int
	ChainName    string
	RPCURL       string
	ExplorerURL  string
	NativeSymbol string
}

// Signer produces signatures for the connected account.
type Signer interface {
	Address() common.Address
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// Chain reads chain state and sends transactions from the connected account.
type Chain interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	AddChain(ctx context.Context, params ChainParams) error
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Provider is a connected wallet.
type Provider interface {
	Signer
	Chain
}

// EnsureNetwork makes sure the wallet is on params.ChainID, switching and, if the wallet
// does not know the chain, adding it first.
func EnsureNetwork(ctx context.Context, chain Chain, params ChainParams, logger *zap.Logger) error {
	current, err := chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	if current.Cmp(params.ChainID) == 0 {
		return nil
	}

	logger.Info("switching-network",
		zap.String("from-chain-id", current.String()),
		zap.String("to-chain-id", params.ChainID.String()))

	err = chain.SwitchChain(ctx, params.ChainID)
	if errors.Is(err, ErrUnrecognizedChain) {
		logger.Info("adding-network", zap.String("chain-name", params.ChainName))

		err = chain.AddChain(ctx, params)
		if err != nil {
			return fmt.Errorf("add chain %s: %w", params.ChainID, err)
		}
		err = chain.SwitchChain(ctx, params.ChainID)
	}
	if err != nil {
		return fmt.Errorf("switch chain %s: %w", params.ChainID, err)
	}

	current, err = chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if current.Cmp(params.ChainID) != 0 {
		return fmt.Errorf("still on chain %s after switching to %s", current, params.ChainID)
	}

	return nil
}
