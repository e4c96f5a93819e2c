package localwallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/quantumauth-io/quantum-dex-client/internal/gateway"
	"github.com/quantumauth-io/quantum-dex-client/internal/ledger"
)

func buildTx(ctx context.Context, b ledger.Backend, chainID *big.Int, req gateway.TxRequest) (*types.Transaction, error) {
	nonce, err := b.PendingNonceAt(ctx, req.From)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To
	gas := estimateGasLimit(ctx, b, req.From, &to, value, req.Data)

	if maxFee, tip, ok := suggest1559Fees(ctx, b); ok {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: maxFee,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      req.Data,
		}), nil
	}

	gasPrice, err := b.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	}), nil
}

func estimateGasLimit(ctx context.Context, b ledger.Backend, from common.Address, to *common.Address, value *big.Int, data []byte) uint64 {
	msg := ethereum.CallMsg{From: from, To: to, Value: value}
	if len(data) > 0 {
		msg.Data = data
	}

	est, err := b.EstimateGas(ctx, msg)
	if err != nil {
		return 250_000
	}

	u := est + est/10 // +10%
	if u < 21_000 {
		u = 21_000
	}
	return u
}

// suggest1559Fees returns maxFee = 2*baseFee + tip when the chain has a base fee.
func suggest1559Fees(ctx context.Context, b ledger.Backend) (maxFee, tip *big.Int, ok bool) {
	header, err := b.HeaderByNumber(ctx, nil)
	if err != nil || header == nil || header.BaseFee == nil {
		return nil, nil, false
	}
	tip, err = b.SuggestGasTipCap(ctx)
	if err != nil || tip == nil || tip.Sign() < 0 {
		return nil, nil, false
	}

	maxFee = new(big.Int).Mul(header.BaseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)
	return maxFee, tip, true
}
