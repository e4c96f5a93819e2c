package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type Router struct {
	Address common.Address
	caller  ethereum.ContractCaller
}

func NewRouter(addr common.Address, caller ethereum.ContractCaller) *Router {
	return &Router{Address: addr, caller: caller}
}

// GetAmountsOut returns the router's per-hop amounts for amountIn along path.
// The result has one entry per path element.
func (r *Router) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	var out []*big.Int
	if err := call(ctx, r.caller, r.Address, RouterABI, "getAmountsOut", &out, amountIn, path); err != nil {
		return nil, err
	}
	if len(out) != len(path) {
		return nil, fmt.Errorf("contracts: getAmountsOut returned %d amounts for a %d-hop path", len(out), len(path))
	}
	return out, nil
}

func PackSwapExactETHForTokens(minOut *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return RouterABI.Pack("swapExactETHForTokens", minOut, path, to, deadline)
}

func PackSwapExactTokensForETH(amountIn, minOut *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return RouterABI.Pack("swapExactTokensForETH", amountIn, minOut, path, to, deadline)
}

func PackSwapExactTokensForTokens(amountIn, minOut *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return RouterABI.Pack("swapExactTokensForTokens", amountIn, minOut, path, to, deadline)
}
