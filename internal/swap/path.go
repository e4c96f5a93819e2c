package swap

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/assets"
)

// Paths is the resolved route policy for one pair. Fallback is tried when
// the router cannot quote Primary.
type Paths struct {
	Primary  []common.Address
	Fallback []common.Address
}

// ResolvePaths picks the router path for from -> to. The native sentinel is
// replaced by the wrapped-native token. A configured direct pair is tried
// first and falls back to a hop through wrapped native; any other token pair
// goes through wrapped native.
func ResolvePaths(ri assets.RouterInfo, from, to common.Address) (Paths, error) {
	w := ri.WrappedNative
	switch {
	case from == to:
		return Paths{}, apperr.Newf(apperr.ErrInvalidArgument, "swap: source and destination are the same asset")
	case assets.IsNative(from) && to == w, from == w && assets.IsNative(to):
		return Paths{}, apperr.Newf(apperr.ErrInvalidArgument, "swap: wrapping native currency is not a router swap")
	case assets.IsNative(from):
		return Paths{Primary: []common.Address{w, to}}, nil
	case assets.IsNative(to):
		return Paths{Primary: []common.Address{from, w}}, nil
	case from == w || to == w:
		return Paths{Primary: []common.Address{from, to}}, nil
	case ri.HasDirectPair(from, to):
		return Paths{
			Primary:  []common.Address{from, to},
			Fallback: []common.Address{from, w, to},
		}, nil
	default:
		return Paths{Primary: []common.Address{from, w, to}}, nil
	}
}
