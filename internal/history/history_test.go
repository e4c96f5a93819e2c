package history

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/contracts"
	"github.com/quantumauth-io/quantum-dex-client/internal/ledger"
	"github.com/quantumauth-io/quantum-dex-client/internal/ledger/ledgertest"
)

const chainID = 11155111

var (
	routerAddr = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	stranger   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

type readers map[int64]*ledgertest.Chain

func (r readers) Reader(ctx context.Context, id int64) (ledger.Reader, error) {
	c, ok := r[id]
	if !ok {
		return nil, apperr.Newf(apperr.ErrUnsupportedChain, "chain %d", id)
	}
	return c, nil
}

type routers map[int64]common.Address

func (r routers) RouterAddress(id int64) (common.Address, bool) {
	a, ok := r[id]
	return a, ok
}

type keyed struct {
	key   *ecdsa.PrivateKey
	addr  common.Address
	nonce uint64
}

func newKeyed(t *testing.T) *keyed {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &keyed{key: k, addr: crypto.PubkeyToAddress(k.PublicKey)}
}

func (k *keyed) tx(t *testing.T, to common.Address, value int64, data []byte) *types.Transaction {
	t.Helper()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    k.nonce,
		To:       &to,
		Value:    big.NewInt(value),
		Gas:      21000,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
	k.nonce++
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(chainID)), k.key)
	require.NoError(t, err)
	return signed
}

func block(num uint64, txs ...*types.Transaction) *types.Block {
	h := &types.Header{Number: new(big.Int).SetUint64(num), Time: 1_700_000_000 + num*12}
	return types.NewBlockWithHeader(h).WithBody(types.Body{Transactions: txs})
}

func mined(chain *ledgertest.Chain, tx *types.Transaction, status uint64) {
	chain.SetReceipt(&types.Receipt{TxHash: tx.Hash(), Status: status})
}

// emptyChain has blocks 0..latest with no transactions.
func emptyChain(latest uint64) *ledgertest.Chain {
	c := ledgertest.NewChain(chainID)
	for n := uint64(0); n <= latest; n++ {
		c.AddBlock(block(n))
	}
	return c
}

func TestReconstructClassifies(t *testing.T) {
	owner, other := newKeyed(t), newKeyed(t)
	chain := emptyChain(120)

	sent := owner.tx(t, stranger, 1_000, nil)
	received := other.tx(t, owner.addr, 2_000_000_000_000_000_000, nil)
	unrelated := other.tx(t, stranger, 5, nil)
	swapData, err := contracts.PackSwapExactETHForTokens(big.NewInt(1), []common.Address{stranger, stranger}, owner.addr, big.NewInt(1))
	require.NoError(t, err)
	swap := owner.tx(t, routerAddr, 10, swapData)
	pending := owner.tx(t, stranger, 3, nil)

	chain.AddBlock(block(120, sent))
	chain.AddBlock(block(119, received, unrelated))
	chain.AddBlock(block(117, swap))
	chain.AddBlock(block(116, pending))
	mined(chain, sent, types.ReceiptStatusSuccessful)
	mined(chain, received, types.ReceiptStatusFailed)
	mined(chain, swap, types.ReceiptStatusSuccessful)

	r := NewReconstructor(readers{chainID: chain}, routers{chainID: routerAddr}, Options{})
	recs, err := r.Reconstruct(context.Background(), owner.addr, chainID)
	require.NoError(t, err)
	require.Len(t, recs, 4)

	tests := []struct {
		hash common.Hash
		dir  Direction
		st   Status
		blk  uint64
	}{
		{sent.Hash(), Sent, Confirmed, 120},
		{received.Hash(), Received, Failed, 119},
		{swap.Hash(), Swap, Confirmed, 117},
		{pending.Hash(), Sent, Pending, 116},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.hash, recs[i].Hash, "record %d", i)
		assert.Equal(t, tt.dir, recs[i].Direction, "record %d", i)
		assert.Equal(t, tt.st, recs[i].Status, "record %d", i)
		assert.Equal(t, tt.blk, recs[i].BlockNumber, "record %d", i)
	}
	assert.Equal(t, "2.000000000000000000", recs[1].ValueNative)
	assert.Equal(t, owner.addr, recs[0].From)
}

func TestReconstructCapsRecords(t *testing.T) {
	owner := newKeyed(t)
	chain := emptyChain(50)
	for n := uint64(30); n <= 50; n++ {
		chain.AddBlock(block(n, owner.tx(t, stranger, 1, nil)))
	}

	r := NewReconstructor(readers{chainID: chain}, nil, Options{MaxRecords: 10, Concurrency: 3})
	recs, err := r.Reconstruct(context.Background(), owner.addr, chainID)
	require.NoError(t, err)
	require.Len(t, recs, 10)

	assert.Equal(t, uint64(50), recs[0].BlockNumber)
	assert.Equal(t, uint64(41), recs[9].BlockNumber)
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i-1].BlockTimestamp, recs[i].BlockTimestamp)
	}
}

func TestReconstructStaysInWindow(t *testing.T) {
	owner := newKeyed(t)
	chain := emptyChain(200)
	old := owner.tx(t, stranger, 1, nil)
	chain.AddBlock(block(100, old))
	recent := owner.tx(t, stranger, 1, nil)
	chain.AddBlock(block(101, recent))

	r := NewReconstructor(readers{chainID: chain}, nil, Options{MaxBlocks: 100})
	recs, err := r.Reconstruct(context.Background(), owner.addr, chainID)
	require.NoError(t, err)
	require.Len(t, recs, 1, "block 100 is the 101st block back from 200")
	assert.Equal(t, recent.Hash(), recs[0].Hash)
}

func TestReconstructSkipsFailedBlocks(t *testing.T) {
	owner := newKeyed(t)
	chain := emptyChain(20)
	a := owner.tx(t, stranger, 1, nil)
	b := owner.tx(t, stranger, 1, nil)
	c := owner.tx(t, stranger, 1, nil)
	chain.AddBlock(block(20, a))
	chain.AddBlock(block(19, b))
	chain.AddBlock(block(18, c))
	chain.BlockErr[19] = errors.New("header not found")

	r := NewReconstructor(readers{chainID: chain}, nil, Options{})
	recs, err := r.Reconstruct(context.Background(), owner.addr, chainID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, a.Hash(), recs[0].Hash)
	assert.Equal(t, c.Hash(), recs[1].Hash)
}

func TestReconstructShortChain(t *testing.T) {
	owner := newKeyed(t)
	chain := emptyChain(3)
	tx := owner.tx(t, stranger, 1, nil)
	chain.AddBlock(block(0, tx))

	r := NewReconstructor(readers{chainID: chain}, nil, Options{})
	recs, err := r.Reconstruct(context.Background(), owner.addr, chainID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(0), recs[0].BlockNumber)
}

func TestReconstructSameBlockOrder(t *testing.T) {
	owner := newKeyed(t)
	chain := emptyChain(5)
	first := owner.tx(t, stranger, 1, nil)
	second := owner.tx(t, stranger, 2, nil)
	chain.AddBlock(block(5, first, second))

	r := NewReconstructor(readers{chainID: chain}, nil, Options{})
	recs, err := r.Reconstruct(context.Background(), owner.addr, chainID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, second.Hash(), recs[0].Hash)
	assert.Equal(t, uint(1), recs[0].TxIndex)
}

func TestReconstructLatestBlockFails(t *testing.T) {
	chain := emptyChain(1)
	chain.LatestErr = errors.New("connection reset")

	r := NewReconstructor(readers{chainID: chain}, nil, Options{})
	_, err := r.Reconstruct(context.Background(), stranger, chainID)
	assert.ErrorIs(t, err, apperr.ErrQueryFailed)

	_, err = r.Reconstruct(context.Background(), stranger, 1)
	assert.ErrorIs(t, err, apperr.ErrUnsupportedChain)
}
