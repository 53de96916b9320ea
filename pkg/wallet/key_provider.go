package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

// KeyProvider is a Provider backed by a local private key and a JSON-RPC endpoint.
type KeyProvider struct {
	key          *ecdsa.PrivateKey
	address      common.Address
	pollInterval time.Duration
	logger       *zap.Logger

	mu      sync.RWMutex
	client  *ethclient.Client
	chainID *big.Int

	sendMu sync.Mutex
}

// KeyProviderConfig holds key provider configuration.
type KeyProviderConfig struct {
	PrivateKey string
	// RPCURL may be empty for a signing-only provider.
	RPCURL string
	// ReceiptPollInterval defaults to 2s.
	ReceiptPollInterval time.Duration
	Logger              *zap.Logger
}

// NewKeyProvider parses the key and, when an RPC URL is given, dials it.
func NewKeyProvider(ctx context.Context, cfg *KeyProviderConfig) (*KeyProvider, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	p := &KeyProvider{
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		pollInterval: cfg.ReceiptPollInterval,
		logger:       cfg.Logger,
	}
	if p.pollInterval <= 0 {
		p.pollInterval = 2 * time.Second
	}

	if cfg.RPCURL != "" {
		err = p.dial(ctx, cfg.RPCURL)
		if err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *KeyProvider) dial(ctx context.Context, rpcURL string) error {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("dial RPC: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("get chain id: %w", err)
	}

	p.mu.Lock()
	old := p.client
	p.client = client
	p.chainID = chainID
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}

	p.logger.Info("rpc-connected", zap.String("chain-id", chainID.String()))
	return nil
}

func (p *KeyProvider) rpc() (*ethclient.Client, *big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.client == nil {
		return nil, nil, ErrNoRPC
	}
	return p.client, p.chainID, nil
}

// Address returns the account address.
func (p *KeyProvider) Address() common.Address {
	return p.address
}

// ChainID returns the chain of the connected RPC endpoint.
func (p *KeyProvider) ChainID(_ context.Context) (*big.Int, error) {
	_, chainID, err := p.rpc()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(chainID), nil
}

// SwitchChain succeeds only if the connected endpoint already serves chainID; a key
// provider reaches other chains through AddChain.
func (p *KeyProvider) SwitchChain(_ context.Context, chainID *big.Int) error {
	_, current, err := p.rpc()
	if err != nil && !errors.Is(err, ErrNoRPC) {
		return err
	}
	if current != nil && current.Cmp(chainID) == 0 {
		return nil
	}
	return ErrUnrecognizedChain
}

// AddChain connects to params.RPCURL and checks that it serves params.ChainID.
func (p *KeyProvider) AddChain(ctx context.Context, params ChainParams) error {
	if params.RPCURL == "" {
		return errors.New("chain params have no RPC URL")
	}

	client, err := ethclient.DialContext(ctx, params.RPCURL)
	if err != nil {
		return fmt.Errorf("dial RPC: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("get chain id: %w", err)
	}
	if chainID.Cmp(params.ChainID) != 0 {
		client.Close()
		return fmt.Errorf("RPC %s serves chain %s, want %s", params.RPCURL, chainID, params.ChainID)
	}

	p.mu.Lock()
	old := p.client
	p.client = client
	p.chainID = chainID
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}

	return nil
}

// SignTypedData signs the EIP-712 digest of td.
func (p *KeyProvider) SignTypedData(_ context.Context, td apitypes.TypedData) ([]byte, error) {
	hash, err := TypedDataHash(td)
	if err != nil {
		return nil, err
	}

	signature, err := p.sign(hash.Bytes())
	if err != nil {
		return nil, err
	}

	SignaturesTotal.WithLabelValues("typed_data").Inc()
	return signature, nil
}

// SignMessage produces a personal_sign signature over msg.
func (p *KeyProvider) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	signature, err := p.sign(accounts.TextHash(msg))
	if err != nil {
		return nil, err
	}

	SignaturesTotal.WithLabelValues("message").Inc()
	return signature, nil
}

func (p *KeyProvider) sign(digest []byte) ([]byte, error) {
	signature, err := crypto.Sign(digest, p.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	// Adjust V value for Ethereum (27 or 28)
	if signature[64] < 27 {
		signature[64] += 27
	}

	return signature, nil
}

// CallContract executes a read-only call at the latest block.
func (p *KeyProvider) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	client, _, err := p.rpc()
	if err != nil {
		return nil, err
	}

	result, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}
	return result, nil
}

// BalanceAt returns the native balance of account.
func (p *KeyProvider) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	client, _, err := p.rpc()
	if err != nil {
		return nil, err
	}

	balance, err := client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// SendTransaction signs and broadcasts a call to `to`. Gas is estimated first, so a
// call that would revert fails here with the node's revert reason.
func (p *KeyProvider) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	client, chainID, err := p.rpc()
	if err != nil {
		return common.Hash{}, err
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{From: p.address, To: &to, Data: data})
	if err != nil {
		TransactionsTotal.WithLabelValues("estimate_failed").Inc()
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit = gasLimit * 12 / 10

	nonce, err := client.PendingNonceAt(ctx, p.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get gas price: %w", err)
	}

	tx := gethtypes.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := gethtypes.SignTx(tx, gethtypes.NewEIP155Signer(chainID), p.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	err = client.SendTransaction(ctx, signedTx)
	if err != nil {
		TransactionsTotal.WithLabelValues("send_failed").Inc()
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}

	TransactionsTotal.WithLabelValues("sent").Inc()
	p.logger.Info("transaction-sent",
		zap.String("tx-hash", signedTx.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas-limit", gasLimit))

	return signedTx.Hash(), nil
}

// WaitMined polls for the receipt of txHash until it is mined or ctx ends.
func (p *KeyProvider) WaitMined(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	client, _, err := p.rpc()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			p.logger.Debug("receipt-poll-failed", zap.String("tx-hash", txHash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases the RPC connection.
func (p *KeyProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
}

// TypedDataHash computes keccak256(0x19 0x01 || domainSeparator || structHash).
func TypedDataHash(td apitypes.TypedData) (common.Hash, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash domain: %w", err)
	}

	typedDataHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash message: %w", err)
	}

	rawData := make([]byte, 0, 2+len(domainSeparator)+len(typedDataHash))
	rawData = append(rawData, 0x19, 0x01)
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, typedDataHash...)

	return crypto.Keccak256Hash(rawData), nil
}
