// Package balances loads the native and token balances of an address.
package balances

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"golang.org/x/sync/errgroup"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/assets"
	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
	"github.com/quantumauth-io/quantum-dex-client/internal/contracts"
	"github.com/quantumauth-io/quantum-dex-client/internal/ledger"
	"github.com/quantumauth-io/quantum-dex-client/internal/metrics"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
	"github.com/quantumauth-io/quantum-dex-client/internal/units"
)

// NativeSource reads the native balance. gateway.Gateway implements it.
type NativeSource interface {
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
}

type NativeBalance struct {
	Symbol   string   `json:"symbol"`
	Decimals uint8    `json:"decimals"`
	Raw      *big.Int `json:"raw"`
	Display  string   `json:"display"`
}

type TokenBalance struct {
	Token   assets.Token `json:"token"`
	Raw     *big.Int     `json:"raw"`
	Display string       `json:"display"`
}

// Failure is one query that was skipped.
type Failure struct {
	Asset  common.Address `json:"asset"`
	Symbol string         `json:"symbol"`
	Err    error          `json:"-"`
}

// Result replaces any previous balance set for the same address and chain.
// Native is nil when the native query failed.
type Result struct {
	Address  common.Address
	ChainID  int64
	Native   *NativeBalance
	Tokens   []TokenBalance
	Failures []Failure
}

type Synchronizer struct {
	native   NativeSource
	readers  ledger.ReaderSource
	assets   *assets.Registry
	networks *networks.Registry

	// Concurrency caps in-flight token queries.
	Concurrency int
}

func NewSynchronizer(native NativeSource, readers ledger.ReaderSource, a *assets.Registry, n *networks.Registry) *Synchronizer {
	return &Synchronizer{
		native:      native,
		readers:     readers,
		assets:      a,
		networks:    n,
		Concurrency: constants.DefaultScanConcurrency,
	}
}

// Sync loads the native balance and every configured token with a strictly
// positive balance. Per-asset failures are recorded, never returned; only a
// cancelled ctx fails the whole call.
func (s *Synchronizer) Sync(ctx context.Context, addr common.Address, chainID int64) (Result, error) {
	start := time.Now()
	defer func() { metrics.BalanceSyncDuration.Observe(time.Since(start).Seconds()) }()

	res := Result{Address: addr, ChainID: chainID}

	symbol, decimals := "ETH", uint8(constants.NativeDecimals)
	if n, ok := s.networks.Lookup(chainID); ok {
		symbol, decimals = n.NativeSymbol, n.NativeDecimals
	}

	raw, err := s.native.NativeBalance(ctx, addr)
	if err != nil {
		log.Warn("native balance query failed", "chainId", chainID, "address", addr.Hex(), "error", err)
		res.Failures = append(res.Failures, Failure{Asset: assets.Native, Symbol: symbol, Err: apperr.Mark(err, apperr.ErrQueryFailed)})
	} else {
		res.Native = &NativeBalance{Symbol: symbol, Decimals: decimals, Raw: raw, Display: units.ToDisplay(raw, decimals)}
	}

	tokens, err := s.assets.Tokens(chainID)
	if err != nil {
		log.Warn("no token table for chain, native balance only", "chainId", chainID)
		return res, ctx.Err()
	}

	reader, err := s.readers.Reader(ctx, chainID)
	if err != nil {
		log.Warn("ledger reader unavailable, skipping tokens", "chainId", chainID, "error", err)
		for _, t := range tokens {
			res.Failures = append(res.Failures, Failure{Asset: t.Address, Symbol: t.Symbol, Err: err})
		}
		metrics.TokenQueryFailures.WithLabelValues(metrics.Chain(chainID)).Add(float64(len(tokens)))
		return res, ctx.Err()
	}

	type slot struct {
		bal *TokenBalance
		err error
	}
	slots := make([]slot, len(tokens))

	var g errgroup.Group
	g.SetLimit(max(1, s.Concurrency))
	for i, t := range tokens {
		g.Go(func() error {
			bal, err := s.queryToken(ctx, reader, chainID, t, addr)
			slots[i] = slot{bal: bal, err: err}
			return nil
		})
	}
	_ = g.Wait()

	// merge in configured order; arrival order is irrelevant
	for i, sl := range slots {
		t := tokens[i]
		if sl.err != nil {
			log.Warn("token query failed", "chainId", chainID, "token", t.Address.Hex(), "symbol", t.Symbol, "error", sl.err)
			metrics.TokenQueryFailures.WithLabelValues(metrics.Chain(chainID)).Inc()
			res.Failures = append(res.Failures, Failure{Asset: t.Address, Symbol: t.Symbol, Err: sl.err})
			continue
		}
		if sl.bal != nil {
			res.Tokens = append(res.Tokens, *sl.bal)
		}
	}

	return res, ctx.Err()
}

// queryToken returns nil without error when the balance is zero.
func (s *Synchronizer) queryToken(ctx context.Context, reader ledger.Reader, chainID int64, t assets.Token, owner common.Address) (*TokenBalance, error) {
	erc := contracts.NewERC20(t.Address, reader)

	dec, err := erc.Decimals(ctx)
	if err != nil {
		return nil, apperr.Mark(err, apperr.ErrQueryFailed)
	}
	if s.assets.UpdateDecimals(chainID, t.Address, dec) {
		log.Info("token decimals updated from contract", "chainId", chainID, "token", t.Address.Hex(), "was", t.Decimals, "now", dec)
	}
	t.Decimals = dec

	bal, err := erc.BalanceOf(ctx, owner)
	if err != nil {
		return nil, apperr.Mark(err, apperr.ErrQueryFailed)
	}
	if bal.Sign() <= 0 {
		return nil, nil
	}

	name, err := erc.Name(ctx)
	if err != nil {
		return nil, apperr.Mark(err, apperr.ErrQueryFailed)
	}
	t.Name = name

	return &TokenBalance{Token: t, Raw: bal, Display: units.ToDisplay(bal, dec)}, nil
}
