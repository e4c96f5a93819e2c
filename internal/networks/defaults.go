package networks

import "strings"

type chainDefault struct {
	Name     string
	Explorer string
	Symbol   string
	RPC      string
	Testnet  bool
}

var chainDefaults = map[int64]chainDefault{
	// Ethereum
	1:        {"Ethereum Mainnet", "https://etherscan.io", "ETH", "https://ethereum-rpc.publicnode.com", false},
	11155111: {"Sepolia", "https://sepolia.etherscan.io", "ETH", "https://ethereum-sepolia-rpc.publicnode.com", true},

	// Polygon
	137:   {"Polygon", "https://polygonscan.com", "POL", "https://polygon-rpc.com", false},
	80001: {"Polygon Mumbai", "https://mumbai.polygonscan.com", "MATIC", "https://rpc-mumbai.maticvigil.com", true},
	80002: {"Polygon Amoy", "https://amoy.polygonscan.com", "POL", "https://rpc-amoy.polygon.technology", true},

	// BNB Smart Chain
	56: {"BNB Smart Chain", "https://bscscan.com", "BNB", "https://bsc-dataseed.binance.org", false},
	97: {"BNB Smart Chain Testnet", "https://testnet.bscscan.com", "tBNB", "https://data-seed-prebsc-1-s1.binance.org:8545", true},

	// Layer 2s
	8453:  {"Base", "https://basescan.org", "ETH", "https://mainnet.base.org", false},
	42161: {"Arbitrum One", "https://arbiscan.io", "ETH", "https://arb1.arbitrum.io/rpc", false},
	10:    {"Optimism", "https://optimistic.etherscan.io", "ETH", "https://mainnet.optimism.io", false},
}

// enrich fills blank fields from the built-in table without overwriting configured values.
func enrich(n Network) Network {
	d, ok := chainDefaults[n.ChainID]
	if ok {
		if strings.TrimSpace(n.Name) == "" {
			n.Name = d.Name
		}
		if strings.TrimSpace(n.Explorer) == "" {
			n.Explorer = d.Explorer
		}
		if strings.TrimSpace(n.NativeSymbol) == "" {
			n.NativeSymbol = d.Symbol
		}
		if strings.TrimSpace(n.RPCURL) == "" {
			n.RPCURL = d.RPC
		}
		if !n.Testnet {
			n.Testnet = d.Testnet
		}
	}
	if n.NativeDecimals == 0 {
		n.NativeDecimals = 18
	}
	if n.NativeSymbol == "" {
		n.NativeSymbol = "ETH"
	}
	return n
}

func builtinNetworks() []Network {
	out := make([]Network, 0, len(chainDefaults))
	for id := range chainDefaults {
		out = append(out, Network{ChainID: id})
	}
	return out
}
