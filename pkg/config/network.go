package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	orderconfig "github.com/polymarket/go-order-utils/pkg/config"
	"gopkg.in/yaml.v3"
)

// Contracts is the address book for one deployment. Empty strings mean "not deployed".
type Contracts struct {
	Collateral                    string `yaml:"collateral"`
	ConditionalTokens             string `yaml:"conditional_tokens"`
	Exchange                      string `yaml:"exchange"`
	NegRiskExchange               string `yaml:"neg_risk_exchange"`
	NegRiskAdapter                string `yaml:"neg_risk_adapter"`
	YieldBearingConditionalTokens string `yaml:"yield_bearing_conditional_tokens"`
	YieldBearingNegRiskAdapter    string `yaml:"yield_bearing_neg_risk_adapter"`
}

// Network describes a chain the exchange is deployed on, the EIP-712 domain its
// exchange contracts verify against, and the values a wallet needs to add the chain.
type Network struct {
	Name          string    `yaml:"name"`
	ChainID       int64     `yaml:"chain_id"`
	ChainName     string    `yaml:"chain_name"`
	RPCURL        string    `yaml:"rpc_url"`
	ExplorerURL   string    `yaml:"explorer_url"`
	NativeSymbol  string    `yaml:"native_symbol"`
	DomainName    string    `yaml:"domain_name"`
	DomainVersion string    `yaml:"domain_version"`
	Contracts     Contracts `yaml:"contracts"`
}

// ChainIDBig returns the chain id as a big.Int.
func (n *Network) ChainIDBig() *big.Int {
	return big.NewInt(n.ChainID)
}

// Address parses a configured contract address, failing when it is missing.
func (n *Network) Address(name, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, fmt.Errorf("network %s: %s address not configured", n.Name, name)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("network %s: invalid %s address %q", n.Name, name, value)
	}
	return common.HexToAddress(value), nil
}

// Validate checks the fields every component relies on.
func (n *Network) Validate() error {
	if n.ChainID <= 0 {
		return fmt.Errorf("network %s: chain_id must be positive", n.Name)
	}
	if n.DomainName == "" || n.DomainVersion == "" {
		return fmt.Errorf("network %s: domain_name and domain_version are required", n.Name)
	}
	required := map[string]string{
		"collateral":         n.Contracts.Collateral,
		"conditional_tokens": n.Contracts.ConditionalTokens,
		"exchange":           n.Contracts.Exchange,
		"neg_risk_exchange":  n.Contracts.NegRiskExchange,
	}
	for name, value := range required {
		if _, err := n.Address(name, value); err != nil {
			return err
		}
	}
	return nil
}

// builtinNetworks returns the known deployments. Predict's BNB Chain exchange
// addresses are not built in and must come from NETWORK_FILE or the environment.
func builtinNetworks() map[string]Network {
	networks := map[string]Network{
		"bsc": {
			Name:          "bsc",
			ChainID:       56,
			ChainName:     "BNB Smart Chain",
			RPCURL:        "https://bsc-dataseed.binance.org",
			ExplorerURL:   "https://bscscan.com",
			NativeSymbol:  "BNB",
			DomainName:    "predict.fun CTF Exchange",
			DomainVersion: "1",
			Contracts: Contracts{
				Collateral: "0x55d398326f99059fF775485246999027B3197955",
			},
		},
		"bsc-testnet": {
			Name:          "bsc-testnet",
			ChainID:       97,
			ChainName:     "BNB Smart Chain Testnet",
			RPCURL:        "https://data-seed-prebsc-1-s1.binance.org:8545",
			ExplorerURL:   "https://testnet.bscscan.com",
			NativeSymbol:  "tBNB",
			DomainName:    "predict.fun CTF Exchange",
			DomainVersion: "1",
		},
	}

	polygon := Network{
		Name:          "polygon",
		ChainID:       137,
		ChainName:     "Polygon Mainnet",
		RPCURL:        "https://polygon-rpc.com",
		ExplorerURL:   "https://polygonscan.com",
		NativeSymbol:  "POL",
		DomainName:    "Polymarket CTF Exchange",
		DomainVersion: "1",
		Contracts: Contracts{
			Collateral:        "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
			ConditionalTokens: "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045",
			NegRiskAdapter:    "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296",
		},
	}
	if contracts, err := orderconfig.GetContracts(polygon.ChainID); err == nil {
		polygon.Contracts.Exchange = contracts.Exchange.Hex()
		polygon.Contracts.NegRiskExchange = contracts.NegRiskExchange.Hex()
	}
	networks["polygon"] = polygon

	return networks
}

// LoadNetwork resolves the named network profile. A YAML file, when given, overrides
// the built-in profile field by field; per-contract env vars override both.
func LoadNetwork(name, file string) (*Network, error) {
	network, ok := builtinNetworks()[name]
	if !ok && file == "" {
		return nil, fmt.Errorf("unknown network %q", name)
	}
	if !ok {
		network = Network{Name: name}
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read network file: %w", err)
		}
		err = yaml.Unmarshal(data, &network)
		if err != nil {
			return nil, fmt.Errorf("parse network file: %w", err)
		}
	}

	applyContractEnv(&network.Contracts)

	err := network.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate network: %w", err)
	}

	return &network, nil
}

func applyContractEnv(c *Contracts) {
	c.Collateral = getEnvOrDefault("COLLATERAL_ADDRESS", c.Collateral)
	c.ConditionalTokens = getEnvOrDefault("CONDITIONAL_TOKENS_ADDRESS", c.ConditionalTokens)
	c.Exchange = getEnvOrDefault("EXCHANGE_ADDRESS", c.Exchange)
	c.NegRiskExchange = getEnvOrDefault("NEG_RISK_EXCHANGE_ADDRESS", c.NegRiskExchange)
	c.NegRiskAdapter = getEnvOrDefault("NEG_RISK_ADAPTER_ADDRESS", c.NegRiskAdapter)
	c.YieldBearingConditionalTokens = getEnvOrDefault("YIELD_BEARING_CONDITIONAL_TOKENS_ADDRESS", c.YieldBearingConditionalTokens)
	c.YieldBearingNegRiskAdapter = getEnvOrDefault("YIELD_BEARING_NEG_RISK_ADAPTER_ADDRESS", c.YieldBearingNegRiskAdapter)
}
