package assets

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
)

// Native is the asset id used for a chain's native currency.
var Native = common.HexToAddress(constants.NativeAddr)

func IsNative(a common.Address) bool { return a == Native }

// Registry holds the chain-id keyed token and router tables. Token order per
// chain is the configured order. Only decimals change after construction.
type Registry struct {
	mu      sync.RWMutex
	tokens  map[int64][]Token
	routers map[int64]RouterInfo
}

// NewRegistry parses configured tables keyed by chain id strings ("1", "0xaa36a7").
func NewRegistry(tokens map[string][]TokenConfig, routers map[string]RouterConfig) (*Registry, error) {
	r := &Registry{
		tokens:  map[int64][]Token{},
		routers: map[int64]RouterInfo{},
	}

	for key, list := range tokens {
		chainID, err := parseChainKey(key)
		if err != nil {
			return nil, fmt.Errorf("assets[%s]: %w", key, err)
		}

		seen := map[common.Address]bool{}
		out := make([]Token, 0, len(list))
		for i, tc := range list {
			addr, err := normalizeAddress(tc.Address)
			if err != nil {
				return nil, fmt.Errorf("assets[%s][%d]: %w", key, i, err)
			}
			if IsNative(addr) {
				return nil, fmt.Errorf("assets[%s][%d]: native sentinel is not a token", key, i)
			}
			if seen[addr] {
				continue
			}
			seen[addr] = true

			sym := strings.TrimSpace(tc.Symbol)
			if sym == "" {
				return nil, fmt.Errorf("assets[%s][%d]: symbol is required", key, i)
			}
			out = append(out, Token{
				Address:  addr,
				Symbol:   sym,
				Name:     strings.TrimSpace(tc.Name),
				Decimals: tc.Decimals,
			})
		}
		r.tokens[chainID] = out
	}

	for key, rc := range routers {
		chainID, err := parseChainKey(key)
		if err != nil {
			return nil, fmt.Errorf("routers[%s]: %w", key, err)
		}
		router, err := normalizeAddress(rc.Router)
		if err != nil {
			return nil, fmt.Errorf("routers[%s].router: %w", key, err)
		}
		weth, err := normalizeAddress(rc.WrappedNative)
		if err != nil {
			return nil, fmt.Errorf("routers[%s].wrappedNative: %w", key, err)
		}

		info := RouterInfo{Router: router, WrappedNative: weth, direct: map[pairKey]struct{}{}}
		for i, pair := range rc.DirectPairs {
			if len(pair) != 2 {
				return nil, fmt.Errorf("routers[%s].directPairs[%d]: want 2 entries, got %d", key, i, len(pair))
			}
			a, err := r.lookupToken(chainID, pair[0])
			if err != nil {
				return nil, fmt.Errorf("routers[%s].directPairs[%d]: %w", key, i, err)
			}
			b, err := r.lookupToken(chainID, pair[1])
			if err != nil {
				return nil, fmt.Errorf("routers[%s].directPairs[%d]: %w", key, i, err)
			}
			info.direct[newPairKey(a, b)] = struct{}{}
		}
		r.routers[chainID] = info
	}

	return r, nil
}

// Tokens returns a copy of the chain's token table in configured order.
func (r *Registry) Tokens(chainID int64) ([]Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list, ok := r.tokens[chainID]
	if !ok {
		return nil, apperr.Newf(apperr.ErrUnsupportedChain, "assets: no token table for chain %d", chainID)
	}
	out := make([]Token, len(list))
	copy(out, list)
	return out, nil
}

func (r *Registry) Token(chainID int64, addr common.Address) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tokens[chainID] {
		if t.Address == addr {
			return t, true
		}
	}
	return Token{}, false
}

// UpdateDecimals records decimals read from the contract. The newest read
// always wins. Reports whether the cached value changed.
func (r *Registry) UpdateDecimals(chainID int64, addr common.Address, decimals uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.tokens[chainID]
	for i := range list {
		if list[i].Address != addr {
			continue
		}
		if list[i].Decimals == decimals {
			return false
		}
		list[i].Decimals = decimals
		return true
	}
	return false
}

func (r *Registry) Router(chainID int64) (RouterInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ri, ok := r.routers[chainID]
	if !ok {
		return RouterInfo{}, apperr.Newf(apperr.ErrUnsupportedChain, "assets: no router for chain %d", chainID)
	}
	return ri, nil
}

func (r *Registry) RouterAddress(chainID int64) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ri, ok := r.routers[chainID]
	return ri.Router, ok
}

// Resolve maps a symbol or address to an asset id. The native symbol (and the
// "native" keyword) map to Native.
func (r *Registry) Resolve(chainID int64, nativeSymbol, symbolOrAddress string) (common.Address, error) {
	s := strings.TrimSpace(symbolOrAddress)
	if s == "" {
		return common.Address{}, apperr.Newf(apperr.ErrInvalidArgument, "assets: empty asset")
	}
	if strings.EqualFold(s, "native") || (nativeSymbol != "" && strings.EqualFold(s, nativeSymbol)) {
		return Native, nil
	}
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.tokens[chainID]; !ok {
		return common.Address{}, apperr.Newf(apperr.ErrUnsupportedChain, "assets: no token table for chain %d", chainID)
	}
	addr, err := r.lookupToken(chainID, s)
	if err != nil {
		return common.Address{}, apperr.Mark(err, apperr.ErrInvalidArgument)
	}
	return addr, nil
}

// lookupToken resolves an address or a symbol of the chain's table. Callers hold
// the lock or run during construction.
func (r *Registry) lookupToken(chainID int64, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	for _, t := range r.tokens[chainID] {
		if strings.EqualFold(t.Symbol, s) {
			return t.Address, nil
		}
	}
	return common.Address{}, fmt.Errorf("unknown token %q on chain %d", s, chainID)
}

func normalizeAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseChainKey(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	base := 10
	if strings.HasPrefix(s, "0x") {
		s, base = s[2:], 16
	}
	id, err := strconv.ParseInt(s, base, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chain id %q", s)
	}
	return id, nil
}
