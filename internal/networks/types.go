package networks

import "github.com/quantumauth-io/quantum-dex-client/internal/constants"

type Network struct {
	ChainID        int64  `json:"chainId" mapstructure:"chainId"`
	ChainIDHex     string `json:"chainIdHex" mapstructure:"-"`
	Name           string `json:"name" mapstructure:"name"`
	RPCURL         string `json:"rpcUrl" mapstructure:"rpcUrl"`
	NativeSymbol   string `json:"nativeSymbol" mapstructure:"nativeSymbol"`
	NativeDecimals uint8  `json:"nativeDecimals" mapstructure:"nativeDecimals"`
	Explorer       string `json:"explorer,omitempty" mapstructure:"explorer"`
	Testnet        bool   `json:"testnet" mapstructure:"testnet"`
}

// Override is a user patch from networks.json. Empty fields keep the configured value.
type Override struct {
	RPCURL   string `json:"rpcUrl,omitempty"`
	Explorer string `json:"explorer,omitempty"`
}

type OverrideFile struct {
	Schema   int                 `json:"schema"`
	Networks map[string]Override `json:"networks"` // key = chainIdHex
}

func NewEmptyOverrideFile() OverrideFile {
	return OverrideFile{
		Schema:   constants.SchemaV1,
		Networks: map[string]Override{},
	}
}

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// AddChainParams is the wallet_addEthereumChain payload.
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}
