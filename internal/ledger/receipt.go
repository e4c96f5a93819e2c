package ledger

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/quantumauth-io/quantum-go-utils/retry"
)

type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WaitMined polls for the receipt of hash until it exists or ctx ends.
// Lookup errors, including ethereum.NotFound, are retried at interval.
func WaitMined(ctx context.Context, r ReceiptReader, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = time.Second
	}
	cfg := retry.DefaultConfig()
	cfg.InitialDelayBeforeRetrying = interval
	cfg.MaxDelayBeforeRetrying = interval
	cfg.ShouldLogFirstFailure = false
	cfg.LogEveryNthFailure = 30

	res, err := retry.Retry(ctx, cfg,
		func(ctx context.Context) ([]interface{}, error) {
			rcpt, err := r.TransactionReceipt(ctx, hash)
			if err != nil {
				return nil, err
			}
			if rcpt == nil {
				return nil, ethereum.NotFound
			}
			return []interface{}{rcpt}, nil
		},
		nil, // always retry
		"wait for receipt "+hash.Hex())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrapf(ctxErr, "waiting for %s", hash.Hex())
		}
		return nil, err
	}
	return res[0].(*types.Receipt), nil
}
