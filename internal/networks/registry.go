package networks

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
	"github.com/quantumauth-io/quantum-dex-client/internal/securefile"
)

// Registry is the immutable chain-id keyed network table. It is built once at
// start and safe for concurrent reads.
type Registry struct {
	byID    map[int64]Network
	ordered []Network
}

// NewRegistry builds the registry from configured networks, filling blanks from
// the built-in table. An empty configuration yields every built-in network.
// overridesPath may be empty; a missing file is not an error.
func NewRegistry(configured []Network, overridesPath string) (*Registry, error) {
	if len(configured) == 0 {
		configured = builtinNetworks()
	}

	overrides, err := loadOverrides(overridesPath)
	if err != nil {
		return nil, err
	}

	r := &Registry{byID: make(map[int64]Network, len(configured))}
	for i, n := range configured {
		if n.ChainID <= 0 {
			return nil, fmt.Errorf("networks[%d]: chainId must be positive", i)
		}
		if _, dup := r.byID[n.ChainID]; dup {
			return nil, fmt.Errorf("networks[%d]: duplicate chainId %d", i, n.ChainID)
		}

		n.Name = strings.TrimSpace(n.Name)
		n.RPCURL = strings.TrimSpace(n.RPCURL)
		n.Explorer = strings.TrimRight(strings.TrimSpace(n.Explorer), "/")
		n = enrich(n)
		n.ChainIDHex = ChainIDHex(n.ChainID)

		if o, ok := overrides.Networks[n.ChainIDHex]; ok {
			if v := strings.TrimSpace(o.RPCURL); v != "" {
				n.RPCURL = v
			}
			if v := strings.TrimSpace(o.Explorer); v != "" {
				n.Explorer = strings.TrimRight(v, "/")
			}
		}

		if n.RPCURL == "" {
			return nil, fmt.Errorf("network %d (%s): rpcUrl is required", n.ChainID, n.Name)
		}
		if n.Name == "" {
			n.Name = "chain-" + strconv.FormatInt(n.ChainID, 10)
		}

		r.byID[n.ChainID] = n
		r.ordered = append(r.ordered, n)
	}

	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].ChainID < r.ordered[j].ChainID
	})
	return r, nil
}

func (r *Registry) Lookup(chainID int64) (Network, bool) {
	n, ok := r.byID[chainID]
	return n, ok
}

// List returns every network sorted by chain id. The slice is a copy.
func (r *Registry) List() []Network {
	out := make([]Network, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) ExplorerTxURL(chainID int64, hash string) (string, bool) {
	n, ok := r.byID[chainID]
	if !ok || n.Explorer == "" || strings.TrimSpace(hash) == "" {
		return "", false
	}
	return n.Explorer + "/tx/" + strings.TrimSpace(hash), true
}

func (r *Registry) AddChainParams(chainID int64) (AddChainParams, error) {
	n, ok := r.byID[chainID]
	if !ok {
		return AddChainParams{}, apperr.Newf(apperr.ErrUnsupportedChain, "networks: chain %d not in registry", chainID)
	}

	p := AddChainParams{
		ChainID:   n.ChainIDHex,
		ChainName: n.Name,
		RPCURLs:   []string{n.RPCURL},
		NativeCurrency: NativeCurrency{
			Name:     n.NativeSymbol,
			Symbol:   n.NativeSymbol,
			Decimals: n.NativeDecimals,
		},
	}
	if n.Explorer != "" {
		p.BlockExplorerURLs = []string{n.Explorer}
	}
	return p, nil
}

func ChainIDHex(chainID int64) string {
	return hexutil.EncodeUint64(uint64(chainID))
}

// ParseChainID parses hex ("0x1", "0X1") or decimal chain ids.
func ParseChainID(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("networks: empty chain id")
	}
	if strings.HasPrefix(s, "0x") {
		v, err := hexutil.DecodeUint64(s)
		if err != nil {
			return 0, fmt.Errorf("networks: chain id %q: %w", s, err)
		}
		return int64(v), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("networks: chain id %q: %w", s, err)
	}
	return v, nil
}

// OverridesPath picks the first existing networks.json candidate, else the first candidate.
func OverridesPath() (string, error) {
	return securefile.ResolvePath(constants.AppName, constants.NetworksFile)
}

func loadOverrides(path string) (OverrideFile, error) {
	out := NewEmptyOverrideFile()
	if strings.TrimSpace(path) == "" || !securefile.Exists(path) {
		return out, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read networks file: %w", err)
	}

	var f OverrideFile
	if err := json.Unmarshal(b, &f); err != nil {
		return out, fmt.Errorf("unmarshal networks file: %w", err)
	}

	for k, o := range f.Networks {
		id, err := ParseChainID(k)
		if err != nil {
			continue
		}
		out.Networks[ChainIDHex(id)] = o
	}
	return out, nil
}
