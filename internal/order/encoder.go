package order

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/mselser95/predict-trader/pkg/types"
	"github.com/mselser95/predict-trader/pkg/wallet"
)

const primaryType = "Order"

// orderTypes is the exchange's Order struct. Field order is part of the type hash and
// must match the verifying contract exactly.
//
//nolint:gochecknoglobals // EIP-712 schema
var orderTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryType: []apitypes.Type{
		{Name: "salt", Type: "uint256"},
		{Name: "maker", Type: "address"},
		{Name: "signer", Type: "address"},
		{Name: "taker", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "makerAmount", Type: "uint256"},
		{Name: "takerAmount", Type: "uint256"},
		{Name: "expiration", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "feeRateBps", Type: "uint256"},
		{Name: "side", Type: "uint8"},
		{Name: "signatureType", Type: "uint8"},
	},
}

// Domain identifies the two exchange deployments orders can be signed for.
type Domain struct {
	Name            string
	Version         string
	ChainID         *big.Int
	Exchange        common.Address
	NegRiskExchange common.Address
}

// Encoder produces EIP-712 payloads and hashes for orders. It holds no mutable state.
type Encoder struct {
	domain Domain
}

// NewEncoder creates an encoder for domain.
func NewEncoder(domain Domain) (*Encoder, error) {
	if domain.Name == "" || domain.Version == "" {
		return nil, errors.New("domain name and version are required")
	}

	if domain.ChainID == nil || domain.ChainID.Sign() <= 0 {
		return nil, errors.New("chain id must be positive")
	}

	if domain.Exchange == (common.Address{}) || domain.NegRiskExchange == (common.Address{}) {
		return nil, errors.New("both exchange addresses are required")
	}

	return &Encoder{domain: domain}, nil
}

// VerifyingContract returns the exchange that will verify an order.
func (e *Encoder) VerifyingContract(negRisk bool) common.Address {
	if negRisk {
		return e.domain.NegRiskExchange
	}
	return e.domain.Exchange
}

// ChainID returns the domain chain id.
func (e *Encoder) ChainID() *big.Int {
	return new(big.Int).Set(e.domain.ChainID)
}

// TypedData returns the payload a wallet signs for o.
func (e *Encoder) TypedData(o *types.UnsignedOrder, negRisk bool) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       orderTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(e.domain.ChainID)),
			VerifyingContract: e.VerifyingContract(negRisk).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"salt":          bigOrZero(o.Salt),
			"maker":         o.Maker.Hex(),
			"signer":        o.Signer.Hex(),
			"taker":         o.Taker.Hex(),
			"tokenId":       bigOrZero(o.TokenID),
			"makerAmount":   bigOrZero(o.MakerAmount),
			"takerAmount":   bigOrZero(o.TakerAmount),
			"expiration":    bigOrZero(o.Expiration),
			"nonce":         bigOrZero(o.Nonce),
			"feeRateBps":    bigOrZero(o.FeeRateBps),
			"side":          big.NewInt(int64(o.Side)),
			"signatureType": big.NewInt(int64(o.SignatureType)),
		},
	}
}

// DomainSeparator returns the domain hash for the selected exchange.
func (e *Encoder) DomainSeparator(negRisk bool) (common.Hash, error) {
	td := e.TypedData(&types.UnsignedOrder{}, negRisk)

	separator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash domain: %w", err)
	}

	return common.BytesToHash(separator), nil
}

// Hash returns the EIP-712 digest of o, the value the exchange recovers the signer from.
func (e *Encoder) Hash(o *types.UnsignedOrder, negRisk bool) (common.Hash, error) {
	return wallet.TypedDataHash(e.TypedData(o, negRisk))
}

// RecoverSigner returns the address that produced signature over hash. Both the 0/1
// and 27/28 recovery id conventions are accepted.
func RecoverSigner(hash common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}

	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
