package web3

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Network describes an EVM network addressable by its CDP network id.
type Network struct {
	ID           string   `yaml:"-"`
	ChainID      int64    `yaml:"chain_id"`
	RPCURL       string   `yaml:"rpc_url"`
	NativeSymbol string   `yaml:"native_symbol"`
	WETHAddress  string   `yaml:"weth_address"`
	FaucetTokens []string `yaml:"faucet_tokens"`
	Explorer     string   `yaml:"explorer"`
	Description  string   `yaml:"description"`
}

// HasWETH reports whether a canonical WETH contract is known for the network.
func (n Network) HasWETH() bool {
	return common.IsHexAddress(n.WETHAddress)
}

// IsTestnet reports whether the network hands out faucet funds.
func (n Network) IsTestnet() bool {
	return len(n.FaucetTokens) > 0
}

// Networks is a set of network definitions keyed by network id.
type Networks map[string]Network

// DefaultNetworks returns the built in definitions.
func DefaultNetworks() Networks {
	return Networks{
		"base-sepolia": {
			ID:           "base-sepolia",
			ChainID:      84532,
			RPCURL:       "https://sepolia.base.org",
			NativeSymbol: "ETH",
			WETHAddress:  "0x4200000000000000000000000000000000000006",
			FaucetTokens: []string{"eth", "usdc", "eurc", "cbbtc"},
			Explorer:     "https://sepolia.basescan.org",
			Description:  "Base Sepolia testnet",
		},
		"base-mainnet": {
			ID:           "base-mainnet",
			ChainID:      8453,
			RPCURL:       "https://mainnet.base.org",
			NativeSymbol: "ETH",
			WETHAddress:  "0x4200000000000000000000000000000000000006",
			Explorer:     "https://basescan.org",
			Description:  "Base mainnet",
		},
		"ethereum-sepolia": {
			ID:           "ethereum-sepolia",
			ChainID:      11155111,
			RPCURL:       "https://ethereum-sepolia-rpc.publicnode.com",
			NativeSymbol: "ETH",
			FaucetTokens: []string{"eth", "usdc", "eurc", "cbbtc"},
			Explorer:     "https://sepolia.etherscan.io",
			Description:  "Ethereum Sepolia testnet",
		},
		"ethereum-mainnet": {
			ID:           "ethereum-mainnet",
			ChainID:      1,
			RPCURL:       "https://ethereum-rpc.publicnode.com",
			NativeSymbol: "ETH",
			WETHAddress:  "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			Explorer:     "https://etherscan.io",
			Description:  "Ethereum mainnet",
		},
	}
}

// Lookup returns the definition for id.
func (n Networks) Lookup(id string) (Network, error) {
	network, ok := n[strings.TrimSpace(id)]
	if !ok {
		return Network{}, fmt.Errorf("不支持的网络 %q，可选: %s", id, strings.Join(n.IDs(), ", "))
	}
	return network, nil
}

// IDs returns the sorted network ids.
func (n Networks) IDs() []string {
	ids := make([]string, 0, len(n))
	for id := range n {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type networkFile struct {
	Networks map[string]Network `yaml:"networks"`
}

// LoadNetworks merges the YAML file at path over the built in definitions.
// Fields left empty in the file keep their built in values.
func LoadNetworks(path string) (Networks, error) {
	networks := DefaultNetworks()
	if strings.TrimSpace(path) == "" {
		return networks, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取网络配置失败: %w", err)
	}

	var file networkFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("解析网络配置失败: %w", err)
	}

	for id, override := range file.Networks {
		merged := networks[id]
		merged.ID = id
		if override.ChainID != 0 {
			merged.ChainID = override.ChainID
		}
		if override.RPCURL != "" {
			merged.RPCURL = override.RPCURL
		}
		if override.NativeSymbol != "" {
			merged.NativeSymbol = override.NativeSymbol
		}
		if override.WETHAddress != "" {
			merged.WETHAddress = override.WETHAddress
		}
		if override.FaucetTokens != nil {
			merged.FaucetTokens = override.FaucetTokens
		}
		if override.Explorer != "" {
			merged.Explorer = override.Explorer
		}
		if override.Description != "" {
			merged.Description = override.Description
		}
		if merged.ChainID == 0 || merged.RPCURL == "" {
			return nil, fmt.Errorf("网络 %s 缺少 chain_id 或 rpc_url", id)
		}
		if merged.NativeSymbol == "" {
			merged.NativeSymbol = "ETH"
		}
		networks[id] = merged
	}
	return networks, nil
}
