// Package chain provides chain metadata and the shared plumbing for
// idempotent wallet reads: retry, rate limiting and circuit breaking.
package chain

import (
	"math/big"
	"sort"
	"strings"
)

// Network describes an EVM chain by its numeric id.
type Network struct {
	ChainID  uint64 `json:"chainId"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
	Explorer string `json:"explorer,omitempty"`
	Testnet  bool   `json:"testnet"`
}

// NativeDecimals is the decimal precision of every EVM native coin.
const NativeDecimals int32 = 18

//nolint:gochecknoglobals // Static chain registry
var knownNetworks = map[uint64]Network{
	1:        {ChainID: 1, Name: "Ethereum Mainnet", Slug: "mainnet", Symbol: "ETH", Decimals: 18, Explorer: "https://etherscan.io"},
	10:       {ChainID: 10, Name: "OP Mainnet", Slug: "optimism", Symbol: "ETH", Decimals: 18, Explorer: "https://optimistic.etherscan.io"},
	56:       {ChainID: 56, Name: "BNB Smart Chain", Slug: "bsc", Symbol: "BNB", Decimals: 18, Explorer: "https://bscscan.com"},
	100:      {ChainID: 100, Name: "Gnosis", Slug: "gnosis", Symbol: "xDAI", Decimals: 18, Explorer: "https://gnosisscan.io"},
	137:      {ChainID: 137, Name: "Polygon", Slug: "polygon", Symbol: "POL", Decimals: 18, Explorer: "https://polygonscan.com"},
	8453:     {ChainID: 8453, Name: "Base", Slug: "base", Symbol: "ETH", Decimals: 18, Explorer: "https://basescan.org"},
	42161:    {ChainID: 42161, Name: "Arbitrum One", Slug: "arbitrum", Symbol: "ETH", Decimals: 18, Explorer: "https://arbiscan.io"},
	43114:    {ChainID: 43114, Name: "Avalanche C-Chain", Slug: "avalanche", Symbol: "AVAX", Decimals: 18, Explorer: "https://snowtrace.io"},
	80002:    {ChainID: 80002, Name: "Polygon Amoy", Slug: "amoy", Symbol: "POL", Decimals: 18, Explorer: "https://amoy.polygonscan.com", Testnet: true},
	11155111: {ChainID: 11155111, Name: "Sepolia", Slug: "sepolia", Symbol: "ETH", Decimals: 18, Explorer: "https://sepolia.etherscan.io", Testnet: true},
	1337:     {ChainID: 1337, Name: "Local Devnet", Slug: "devnet", Symbol: "ETH", Decimals: 18, Testnet: true},
	31337:    {ChainID: 31337, Name: "Anvil", Slug: "anvil", Symbol: "ETH", Decimals: 18, Testnet: true},
}

// LookupNetwork returns metadata for a chain id. Unknown chains get a
// generic entry that still carries the id.
func LookupNetwork(chainID *big.Int) Network {
	if chainID == nil || !chainID.IsUint64() {
		return Network{Name: "unknown", Slug: "unknown", Symbol: "ETH", Decimals: NativeDecimals}
	}
	id := chainID.Uint64()
	if n, ok := knownNetworks[id]; ok {
		return n
	}
	return Network{ChainID: id, Name: "unknown", Slug: "unknown", Symbol: "ETH", Decimals: NativeDecimals}
}

// NetworkBySlug finds a known network by its slug, case-insensitively.
func NetworkBySlug(slug string) (Network, bool) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	for _, n := range knownNetworks {
		if n.Slug == slug {
			return n, true
		}
	}
	return Network{}, false
}

// KnownNetworks returns all registered networks ordered by chain id.
func KnownNetworks() []Network {
	out := make([]Network, 0, len(knownNetworks))
	for _, n := range knownNetworks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}
