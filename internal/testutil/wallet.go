package testutil

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/mselser95/predict-trader/pkg/wallet"
)

// SentTx is a transaction recorded by FakeWallet.
type SentTx struct {
	To   common.Address
	Data []byte
	Hash common.Hash
}

type tokenSpender struct {
	token   common.Address
	spender common.Address
}

// FakeWallet is an in-memory wallet.Provider. Approvals sent through it update the
// allowances it reports, so approve-then-check flows behave like a real chain.
type FakeWallet struct {
	mu sync.Mutex

	key     *ecdsa.PrivateKey
	address common.Address

	chainID     *big.Int
	knownChains map[int64]bool

	allowances map[tokenSpender]*big.Int
	operators  map[tokenSpender]bool

	// ReadErr fails every CallContract.
	ReadErr error
	// SendErr fails every SendTransaction.
	SendErr error
	// SendErrFor fails SendTransaction only for the given target.
	SendErrFor map[common.Address]error
	// SignErr fails every signing request.
	SignErr error
	// Revert makes mined receipts report failure.
	Revert bool
	// SignatureOverride replaces produced typed-data signatures.
	SignatureOverride []byte

	Sent       []SentTx
	SignCalls  int
	CallsCount int
}

// NewFakeWallet creates a fake wallet with a fresh key, on chainID.
func NewFakeWallet(chainID int64) *FakeWallet {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}

	return &FakeWallet{
		key:         key,
		address:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:     big.NewInt(chainID),
		knownChains: map[int64]bool{chainID: true},
		allowances:  make(map[tokenSpender]*big.Int),
		operators:   make(map[tokenSpender]bool),
	}
}

// Address returns the account address.
func (w *FakeWallet) Address() common.Address {
	return w.address
}

// SetAllowance sets the ERC20 allowance token grants spender.
func (w *FakeWallet) SetAllowance(token, spender common.Address, amount *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.allowances[tokenSpender{token, spender}] = amount
}

// SetOperator sets the ERC1155 operator approval of spender on token.
func (w *FakeWallet) SetOperator(token, spender common.Address, approved bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.operators[tokenSpender{token, spender}] = approved
}

// Allowance returns the recorded ERC20 allowance.
func (w *FakeWallet) Allowance(token, spender common.Address) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v, ok := w.allowances[tokenSpender{token, spender}]; ok {
		return v
	}
	return new(big.Int)
}

// Operator returns the recorded operator approval.
func (w *FakeWallet) Operator(token, spender common.Address) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.operators[tokenSpender{token, spender}]
}

// SentTransactions returns a copy of the recorded transactions.
func (w *FakeWallet) SentTransactions() []SentTx {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]SentTx(nil), w.Sent...)
}

// ChainID returns the current chain.
func (w *FakeWallet) ChainID(_ context.Context) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.chainID), nil
}

// SwitchChain switches to a chain the wallet knows.
func (w *FakeWallet) SwitchChain(_ context.Context, chainID *big.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.knownChains[chainID.Int64()] {
		return wallet.ErrUnrecognizedChain
	}
	w.chainID = new(big.Int).Set(chainID)
	return nil
}

// AddChain makes a chain known.
func (w *FakeWallet) AddChain(_ context.Context, params wallet.ChainParams) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.knownChains[params.ChainID.Int64()] = true
	return nil
}

// SignTypedData signs the EIP-712 digest of td.
func (w *FakeWallet) SignTypedData(_ context.Context, td apitypes.TypedData) ([]byte, error) {
	w.mu.Lock()
	w.SignCalls++
	signErr := w.SignErr
	override := w.SignatureOverride
	w.mu.Unlock()

	if signErr != nil {
		return nil, signErr
	}
	if override != nil {
		return append([]byte(nil), override...), nil
	}

	hash, err := wallet.TypedDataHash(td)
	if err != nil {
		return nil, err
	}
	return w.sign(hash.Bytes())
}

// SignMessage produces a personal_sign signature.
func (w *FakeWallet) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	w.mu.Lock()
	w.SignCalls++
	signErr := w.SignErr
	w.mu.Unlock()

	if signErr != nil {
		return nil, signErr
	}
	return w.sign(accounts.TextHash(msg))
}

func (w *FakeWallet) sign(digest []byte) ([]byte, error) {
	signature, err := crypto.Sign(digest, w.key)
	if err != nil {
		return nil, err
	}
	signature[64] += 27
	return signature, nil
}

// CallContract answers allowance and isApprovedForAll reads from recorded state.
func (w *FakeWallet) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.CallsCount++

	if w.ReadErr != nil {
		return nil, w.ReadErr
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("invalid call")
	}

	allowance := wallet.ERC20ABI.Methods["allowance"]
	approvedForAll := wallet.ERC1155ABI.Methods["isApprovedForAll"]

	switch {
	case bytes.Equal(msg.Data[:4], allowance.ID):
		args, err := allowance.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		value, ok := w.allowances[tokenSpender{*msg.To, args[1].(common.Address)}]
		if !ok {
			value = new(big.Int)
		}
		return allowance.Outputs.Pack(value)
	case bytes.Equal(msg.Data[:4], approvedForAll.ID):
		args, err := approvedForAll.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		return approvedForAll.Outputs.Pack(w.operators[tokenSpender{*msg.To, args[1].(common.Address)}])
	}

	return nil, errors.New("unsupported call")
}

// SendTransaction records the call and applies approvals to the recorded state.
func (w *FakeWallet) SendTransaction(_ context.Context, to common.Address, data []byte) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.SendErr != nil {
		return common.Hash{}, w.SendErr
	}
	if err, ok := w.SendErrFor[to]; ok {
		return common.Hash{}, err
	}

	hash := crypto.Keccak256Hash(to.Bytes(), data, big.NewInt(int64(len(w.Sent))).Bytes())
	w.Sent = append(w.Sent, SentTx{To: to, Data: append([]byte(nil), data...), Hash: hash})

	if w.Revert || len(data) < 4 {
		return hash, nil
	}

	approve := wallet.ERC20ABI.Methods["approve"]
	setApproval := wallet.ERC1155ABI.Methods["setApprovalForAll"]

	switch {
	case bytes.Equal(data[:4], approve.ID):
		args, err := approve.Inputs.Unpack(data[4:])
		if err == nil {
			w.allowances[tokenSpender{to, args[0].(common.Address)}] = args[1].(*big.Int)
		}
	case bytes.Equal(data[:4], setApproval.ID):
		args, err := setApproval.Inputs.Unpack(data[4:])
		if err == nil {
			w.operators[tokenSpender{to, args[0].(common.Address)}] = args[1].(bool)
		}
	}

	return hash, nil
}

// WaitMined returns a receipt for a recorded transaction.
func (w *FakeWallet) WaitMined(_ context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, tx := range w.Sent {
		if tx.Hash == txHash {
			status := gethtypes.ReceiptStatusSuccessful
			if w.Revert {
				status = gethtypes.ReceiptStatusFailed
			}
			return &gethtypes.Receipt{Status: status, TxHash: txHash}, nil
		}
	}

	return nil, ethereum.NotFound
}

var _ wallet.Provider = (*FakeWallet)(nil)
