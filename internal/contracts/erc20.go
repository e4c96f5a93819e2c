package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type ERC20 struct {
	Address common.Address
	caller  ethereum.ContractCaller
}

func NewERC20(addr common.Address, caller ethereum.ContractCaller) *ERC20 {
	return &ERC20{Address: addr, caller: caller}
}

func (t *ERC20) Name(ctx context.Context) (string, error) {
	var out string
	err := call(ctx, t.caller, t.Address, ERC20ABI, "name", &out)
	return out, err
}

func (t *ERC20) Symbol(ctx context.Context) (string, error) {
	var out string
	err := call(ctx, t.caller, t.Address, ERC20ABI, "symbol", &out)
	return out, err
}

func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	var out uint8
	err := call(ctx, t.caller, t.Address, ERC20ABI, "decimals", &out)
	return out, err
}

func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out := new(big.Int)
	err := call(ctx, t.caller, t.Address, ERC20ABI, "balanceOf", &out, owner)
	return out, err
}

func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out := new(big.Int)
	err := call(ctx, t.caller, t.Address, ERC20ABI, "allowance", &out, owner, spender)
	return out, err
}

func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}

func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("transfer", to, amount)
}

// call packs method(args...), runs eth_call at the latest block and unpacks the
// single return value into out.
func call(ctx context.Context, caller ethereum.ContractCaller, to common.Address, parsed abi.ABI, method string, out any, args ...any) error {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("contracts: pack %s: %w", method, err)
	}

	res, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("contracts: call %s on %s: %w", method, to.Hex(), err)
	}
	if len(res) == 0 {
		return fmt.Errorf("contracts: %s on %s returned no data", method, to.Hex())
	}

	if err := parsed.UnpackIntoInterface(out, method, res); err != nil {
		return fmt.Errorf("contracts: unpack %s: %w", method, err)
	}
	return nil
}
