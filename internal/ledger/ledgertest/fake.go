// Package ledgertest provides an in-memory ledger.Backend for tests.
package ledgertest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallHandler receives decoded method inputs and returns the outputs to encode.
type CallHandler func(args []any) ([]any, error)

type callKey struct {
	to       common.Address
	selector [4]byte
}

type registered struct {
	method abi.Method
	fn     CallHandler
}

// Chain is a fake node. All fields are guarded by the embedded mutex; use the
// setters when tests mutate state concurrently with the code under test.
type Chain struct {
	mu sync.Mutex

	ID       int64
	Latest   uint64
	Blocks   map[uint64]*types.Block
	BlockErr map[uint64]error
	Receipts map[common.Hash]*types.Receipt
	Balances map[common.Address]*big.Int
	Gas      *big.Int
	Tip      *big.Int
	BaseFee  *big.Int
	Nonces   map[common.Address]uint64

	BalanceErr error
	LatestErr  error
	SendErr    error

	Sent      []*types.Transaction
	CallCount map[string]int

	// OnSend runs after a transaction is accepted; tests use it to mine receipts.
	OnSend func(tx *types.Transaction)

	calls  map[callKey]registered
	closed bool
}

func NewChain(chainID int64) *Chain {
	return &Chain{
		ID:        chainID,
		Blocks:    map[uint64]*types.Block{},
		BlockErr:  map[uint64]error{},
		Receipts:  map[common.Hash]*types.Receipt{},
		Balances:  map[common.Address]*big.Int{},
		Nonces:    map[common.Address]uint64{},
		Gas:       big.NewInt(1_000_000_000),
		CallCount: map[string]int{},
		calls:     map[callKey]registered{},
	}
}

// Handle registers fn for method of parsed at contract to.
func (c *Chain) Handle(to common.Address, parsed abi.ABI, method string, fn CallHandler) {
	m, ok := parsed.Methods[method]
	if !ok {
		panic("ledgertest: unknown method " + method)
	}
	var sel [4]byte
	copy(sel[:], m.ID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[callKey{to, sel}] = registered{method: m, fn: fn}
}

// Returns registers a constant response.
func (c *Chain) Returns(to common.Address, parsed abi.ABI, method string, out ...any) {
	c.Handle(to, parsed, method, func([]any) ([]any, error) { return out, nil })
}

// Reverts makes method fail like a reverted eth_call.
func (c *Chain) Reverts(to common.Address, parsed abi.ABI, method string) {
	c.Handle(to, parsed, method, func([]any) ([]any, error) { return nil, fmt.Errorf("execution reverted") })
}

func (c *Chain) AddBlock(b *types.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Blocks[b.NumberU64()] = b
	if b.NumberU64() > c.Latest {
		c.Latest = b.NumberU64()
	}
}

func (c *Chain) SetReceipt(r *types.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Receipts[r.TxHash] = r
}

func (c *Chain) SentTxs() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Transaction, len(c.Sent))
	copy(out, c.Sent)
	return out
}

func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCount[method]
}

func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("ledgertest: malformed call")
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])

	c.mu.Lock()
	reg, ok := c.calls[callKey{*msg.To, sel}]
	if ok {
		c.CallCount[reg.method.Name]++
	}
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted: no handler at %s", msg.To.Hex())
	}

	args, err := reg.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("ledgertest: decode %s: %w", reg.method.Name, err)
	}
	out, err := reg.fn(args)
	if err != nil {
		return nil, err
	}
	return reg.method.Outputs.Pack(out...)
}

func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LatestErr != nil {
		return 0, c.LatestErr
	}
	return c.Latest, nil
}

func (c *Chain) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.Latest
	if number != nil {
		n = number.Uint64()
	}
	if err := c.BlockErr[n]; err != nil {
		return nil, err
	}
	b, ok := c.Blocks[n]
	if !ok {
		return nil, ethereum.NotFound
	}
	return b, nil
}

func (c *Chain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.Latest
	if number != nil {
		n = number.Uint64()
	}
	if b, ok := c.Blocks[n]; ok {
		return b.Header(), nil
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), BaseFee: c.BaseFee}, nil
}

func (c *Chain) TransactionReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.Receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *Chain) BalanceAt(ctx context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	if v, ok := c.Balances[a]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (c *Chain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.Gas), nil
}

func (c *Chain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Tip == nil {
		return nil, fmt.Errorf("method eth_maxPriorityFeePerGas not supported")
	}
	return new(big.Int).Set(c.Tip), nil
}

func (c *Chain) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(c.ID), nil
}

func (c *Chain) PendingNonceAt(ctx context.Context, a common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Nonces[a], nil
}

func (c *Chain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if len(msg.Data) == 0 {
		return 21_000, nil
	}
	return 150_000, nil
}

func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	if c.SendErr != nil {
		err := c.SendErr
		c.mu.Unlock()
		return err
	}
	for _, prev := range c.Sent {
		if prev.Hash() == tx.Hash() {
			c.mu.Unlock()
			return fmt.Errorf("already known")
		}
	}
	c.Sent = append(c.Sent, tx)
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		c.Nonces[from] = tx.Nonce() + 1
	}
	hook := c.OnSend
	c.mu.Unlock()

	if hook != nil {
		hook(tx)
	}
	return nil
}

func (c *Chain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Chain) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
