package assets

import "github.com/ethereum/go-ethereum/common"

type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name,omitempty"`
	Decimals uint8          `json:"decimals"`
}

// TokenConfig is one configured token. Decimals is a hint until the contract
// has been read once.
type TokenConfig struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Name     string `mapstructure:"name"`
	Decimals uint8  `mapstructure:"decimals"`
}

// RouterConfig names a chain's Uniswap-V2 style router. DirectPairs entries are
// two symbols or addresses that the router can swap without an intermediate hop.
type RouterConfig struct {
	Router        string     `mapstructure:"router"`
	WrappedNative string     `mapstructure:"wrappedNative"`
	DirectPairs   [][]string `mapstructure:"directPairs"`
}

type RouterInfo struct {
	Router        common.Address
	WrappedNative common.Address

	direct map[pairKey]struct{}
}

type pairKey struct{ a, b common.Address }

func newPairKey(x, y common.Address) pairKey {
	if x.Cmp(y) > 0 {
		x, y = y, x
	}
	return pairKey{x, y}
}

// HasDirectPair reports whether the pair is listed as directly swappable.
func (ri RouterInfo) HasDirectPair(x, y common.Address) bool {
	_, ok := ri.direct[newPairKey(x, y)]
	return ok
}
