package ledger

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
)

type DialFunc func(ctx context.Context, rpcURL string) (Backend, error)

func DialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Pool lazily dials one backend per chain and caches it.
type Pool struct {
	reg  *networks.Registry
	dial DialFunc

	mu      sync.Mutex
	byChain map[int64]Backend
}

func NewPool(reg *networks.Registry, dial DialFunc) *Pool {
	if dial == nil {
		dial = DialEthclient
	}
	return &Pool{
		reg:     reg,
		dial:    dial,
		byChain: make(map[int64]Backend),
	}
}

// Backend returns (and caches) the backend for chainID. The node's reported
// chain id must match.
func (p *Pool) Backend(ctx context.Context, chainID int64) (Backend, error) {
	p.mu.Lock()
	if existing := p.byChain[chainID]; existing != nil {
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	n, ok := p.reg.Lookup(chainID)
	if !ok {
		return nil, apperr.Newf(apperr.ErrUnsupportedChain, "ledger: chain %d not in registry", chainID)
	}
	if strings.TrimSpace(n.RPCURL) == "" {
		return nil, apperr.Newf(apperr.ErrUnsupportedChain, "ledger: chain %d has no rpc url", chainID)
	}

	// Dial outside the lock.
	dialed, err := p.dial(ctx, n.RPCURL)
	if err != nil {
		return nil, apperr.Wrap(errors.Wrapf(err, "dial %s", n.Name), apperr.ErrQueryFailed, "ledger")
	}

	got, err := dialed.ChainID(ctx)
	if err != nil {
		dialed.Close()
		return nil, apperr.Wrap(errors.Wrapf(err, "chain id of %s", n.Name), apperr.ErrQueryFailed, "ledger")
	}
	if got.Int64() != chainID {
		dialed.Close()
		return nil, apperr.Newf(apperr.ErrQueryFailed, "ledger: rpc for %s reports chain %s, want %d", n.Name, got, chainID)
	}

	p.mu.Lock()
	if existing := p.byChain[chainID]; existing != nil {
		p.mu.Unlock()
		dialed.Close()
		return existing, nil
	}
	p.byChain[chainID] = dialed
	p.mu.Unlock()

	log.Info("ledger backend dialed", "chainId", chainID, "network", n.Name)
	return dialed, nil
}

// Reader is Backend narrowed to the read surface.
func (p *Pool) Reader(ctx context.Context, chainID int64) (Reader, error) {
	return p.Backend(ctx, chainID)
}

// Close closes all cached backends.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, b := range p.byChain {
		b.Close()
		delete(p.byChain, id)
	}
}
