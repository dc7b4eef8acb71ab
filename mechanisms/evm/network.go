package evm

import (
	"errors"
	"math/big"
	"strconv"
	"strings"
)

var errMissingAuthorization = errors.New("payload carries no authorization")

// AssetInfo describes an ERC-20 token used as a default payment asset.
type AssetInfo struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// NetworkConfig carries per-chain defaults.
type NetworkConfig struct {
	ChainID      *big.Int
	DefaultAsset AssetInfo
}

var (
	ChainIDBSC    = big.NewInt(56)
	ChainIDBase   = big.NewInt(8453)
	ChainIDXLayer = big.NewInt(196)
	ChainIDKite   = big.NewInt(2366)
)

// networkAliases maps legacy network names to chain IDs. CAIP-2 identifiers
// and bare decimal strings resolve without a table entry.
var networkAliases = map[string]int64{
	"bsc":          56,
	"base":         8453,
	"base-sepolia": 84532,
	"xlayer":       196,
	"kite":         2366,
	"avalanche":    43114,
}

// NetworkConfigs holds the supported networks and their default assets.
// The kite entry has no officially published stablecoin; it follows the BSC
// defaulting pattern and is expected to be overridden by route config.
var NetworkConfigs = map[string]NetworkConfig{
	"eip155:56": {
		ChainID: ChainIDBSC,
		DefaultAsset: AssetInfo{
			Address:  "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", // USDC on BSC
			Name:     "USD Coin",
			Version:  "2",
			Decimals: 18,
		},
	},
	"eip155:8453": {
		ChainID: ChainIDBase,
		DefaultAsset: AssetInfo{
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", // USDC on Base
			Name:     "USD Coin",
			Version:  "2",
			Decimals: 6,
		},
	},
	"eip155:196": {
		ChainID: ChainIDXLayer,
		DefaultAsset: AssetInfo{
			Address:  "0x74b7F16337b8972027F6196A17a631aC6dE26d22", // USDC on X Layer
			Name:     "USD Coin",
			Version:  "2",
			Decimals: 6,
		},
	},
	"eip155:2366": {
		ChainID: ChainIDKite,
		DefaultAsset: AssetInfo{
			Address:  "0x0000000000000000000000000000000000000000",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: 18,
		},
	},
}

// ChainID resolves a network identifier to an EVM chain ID. Accepts CAIP-2
// ("eip155:56"), bare decimal ("56") and legacy names ("bsc"). Unknown names
// fall back to chain ID 1.
func ChainID(network string) *big.Int {
	network = strings.TrimSpace(network)

	if idx := strings.Index(network, ":"); idx >= 0 {
		if id, err := strconv.ParseInt(network[idx+1:], 10, 64); err == nil {
			return big.NewInt(id)
		}
		return big.NewInt(1)
	}

	if id, err := strconv.ParseInt(network, 10, 64); err == nil {
		return big.NewInt(id)
	}

	if id, ok := networkAliases[strings.ToLower(network)]; ok {
		return big.NewInt(id)
	}

	return big.NewInt(1)
}

// GetNetworkConfig returns the configuration for a network identifier,
// resolving aliases and bare chain IDs to the canonical CAIP-2 entry.
func GetNetworkConfig(network string) (NetworkConfig, bool) {
	if config, ok := NetworkConfigs[network]; ok {
		return config, true
	}
	id := ChainID(network)
	config, ok := NetworkConfigs["eip155:"+id.String()]
	return config, ok
}

// IsValidNetwork reports whether the network resolves to a supported chain.
func IsValidNetwork(network string) bool {
	_, ok := GetNetworkConfig(network)
	return ok
}

// GetAssetInfo returns token metadata for an asset on a network, defaulting
// to the network's default asset when the address matches or is empty.
func GetAssetInfo(network string, asset string) AssetInfo {
	config, ok := GetNetworkConfig(network)
	if !ok {
		return AssetInfo{Address: asset, Decimals: 18}
	}
	if asset == "" || strings.EqualFold(asset, config.DefaultAsset.Address) {
		return config.DefaultAsset
	}
	info := AssetInfo{Address: asset, Decimals: config.DefaultAsset.Decimals}
	return info
}
