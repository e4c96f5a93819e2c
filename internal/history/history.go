// Package history rebuilds an address's recent transactions by scanning a
// bounded window of blocks backwards from the chain head.
package history

import (
	"bytes"
	"context"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"golang.org/x/sync/errgroup"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
	"github.com/quantumauth-io/quantum-dex-client/internal/contracts"
	"github.com/quantumauth-io/quantum-dex-client/internal/ledger"
	"github.com/quantumauth-io/quantum-dex-client/internal/metrics"
	"github.com/quantumauth-io/quantum-dex-client/internal/units"
)

type Options struct {
	MaxBlocks   uint64
	MaxRecords  int
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.MaxBlocks == 0 {
		o.MaxBlocks = constants.DefaultHistoryMaxBlocks
	}
	if o.MaxRecords <= 0 {
		o.MaxRecords = constants.DefaultHistoryMaxRecords
	}
	if o.Concurrency <= 0 {
		o.Concurrency = constants.DefaultScanConcurrency
	}
	return o
}

// RouterLookup names the swap router of a chain, if one is configured.
type RouterLookup interface {
	RouterAddress(chainID int64) (common.Address, bool)
}

type Reconstructor struct {
	readers ledger.ReaderSource
	routers RouterLookup
	opts    Options
}

// NewReconstructor builds a Reconstructor. routers may be nil, in which case
// nothing is ever classified as a swap.
func NewReconstructor(readers ledger.ReaderSource, routers RouterLookup, opts Options) *Reconstructor {
	return &Reconstructor{readers: readers, routers: routers, opts: opts.withDefaults()}
}

func (r *Reconstructor) Options() Options { return r.opts }

// Reconstruct returns at most MaxRecords transactions sent from or to addr in
// the last MaxBlocks blocks, most recent first. A block that cannot be
// fetched is treated as empty.
func (r *Reconstructor) Reconstruct(ctx context.Context, addr common.Address, chainID int64) ([]Record, error) {
	reader, err := r.readers.Reader(ctx, chainID)
	if err != nil {
		return nil, err
	}
	latest, err := reader.BlockNumber(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrQueryFailed, "history: latest block")
	}

	var router common.Address
	hasRouter := false
	if r.routers != nil {
		router, hasRouter = r.routers.RouterAddress(chainID)
	}
	m := matcher{
		addr:      addr,
		signer:    types.LatestSignerForChainID(big.NewInt(chainID)),
		router:    router,
		hasRouter: hasRouter,
	}

	window := r.opts.MaxBlocks
	if window > latest+1 {
		window = latest + 1
	}
	chain := metrics.Chain(chainID)

	var records []Record
	for offset := uint64(0); offset < window && len(records) < r.opts.MaxRecords; {
		n := uint64(r.opts.Concurrency)
		if offset+n > window {
			n = window - offset
		}

		blocks := make([]*types.Block, n)
		var g errgroup.Group
		g.SetLimit(r.opts.Concurrency)
		for i := uint64(0); i < n; i++ {
			num := latest - offset - i
			g.Go(func() error {
				b, err := reader.BlockByNumber(ctx, new(big.Int).SetUint64(num))
				if err != nil {
					if ctx.Err() == nil {
						log.Warn("history: block fetch failed, skipping", "chainId", chainID, "block", num, "error", err)
						metrics.HistoryBlockFailures.WithLabelValues(chain).Inc()
					}
					return nil
				}
				blocks[i] = b
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		metrics.HistoryBlocksScanned.WithLabelValues(chain).Add(float64(n))
		offset += n

		// blocks[0] is the newest in the batch
		for _, b := range blocks {
			if b == nil {
				continue
			}
			records = append(records, m.scan(b)...)
			if len(records) >= r.opts.MaxRecords {
				records = records[:r.opts.MaxRecords]
				break
			}
		}
	}

	if err := r.resolveStatus(ctx, reader, chainID, records); err != nil {
		return nil, err
	}
	return records, nil
}

// resolveStatus fills in Status from receipts. A missing receipt leaves the
// record Pending.
func (r *Reconstructor) resolveStatus(ctx context.Context, reader ledger.Reader, chainID int64, records []Record) error {
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i := range records {
		g.Go(func() error {
			rcpt, err := reader.TransactionReceipt(ctx, records[i].Hash)
			switch {
			case errors.Is(err, ethereum.NotFound):
			case err != nil:
				log.Warn("history: receipt fetch failed", "chainId", chainID, "tx", records[i].Hash.Hex(), "error", err)
			case rcpt.Status == types.ReceiptStatusSuccessful:
				records[i].Status = Confirmed
			default:
				records[i].Status = Failed
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

type matcher struct {
	addr      common.Address
	signer    types.Signer
	router    common.Address
	hasRouter bool
}

// scan returns the block's matching transactions, highest index first.
func (m matcher) scan(b *types.Block) []Record {
	txs := b.Transactions()
	var out []Record
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		from, err := types.Sender(m.signer, tx)
		if err != nil {
			log.Warn("history: cannot recover sender", "tx", tx.Hash().Hex(), "error", err)
			continue
		}

		// common.Address comparison is byte-wise, so hex case never matters.
		sent := from == m.addr
		received := tx.To() != nil && *tx.To() == m.addr
		if !sent && !received {
			continue
		}

		rec := Record{
			Hash:           tx.Hash(),
			From:           from,
			To:             tx.To(),
			Value:          new(big.Int).Set(tx.Value()),
			ValueNative:    units.NativeToDisplay(tx.Value()),
			BlockNumber:    b.NumberU64(),
			TxIndex:        uint(i),
			BlockTimestamp: b.Time(),
			Status:         Pending,
			Direction:      Received,
		}
		if sent {
			rec.Direction = Sent
			if m.isSwap(tx) {
				rec.Direction = Swap
			}
		}
		out = append(out, rec)
	}
	return out
}

// isSwap is best effort: a call from the owner to the configured router
// using one of the router's swap selectors.
func (m matcher) isSwap(tx *types.Transaction) bool {
	if !m.hasRouter || tx.To() == nil || *tx.To() != m.router || len(tx.Data()) < 4 {
		return false
	}
	for _, name := range swapMethods {
		if bytes.Equal(tx.Data()[:4], contracts.RouterABI.Methods[name].ID) {
			return true
		}
	}
	return false
}

var swapMethods = []string{"swapExactETHForTokens", "swapExactTokensForETH", "swapExactTokensForTokens"}
