// Package rpcwallet drives an external wallet over its EIP-1193 style JSON-RPC
// endpoint. Account and chain changes are detected by polling.
package rpcwallet

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
	"github.com/quantumauth-io/quantum-dex-client/internal/gateway"
	"github.com/quantumauth-io/quantum-dex-client/internal/ledger"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
)

type Options struct {
	PollInterval    time.Duration
	ReceiptInterval time.Duration
	RequestTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = constants.DefaultGatewayPollInterval
	}
	if o.ReceiptInterval <= 0 {
		o.ReceiptInterval = constants.DefaultReceiptPollInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = constants.DefaultRequestTimeout
	}
	return o
}

type observed struct {
	key      string
	accounts []common.Address
	chainID  int64
}

type Wallet struct {
	client *rpc.Client
	opts   Options
	feed   event.Feed

	mu        sync.Mutex
	primed    bool
	published observed
	candidate *observed
}

var _ gateway.Gateway = (*Wallet)(nil)

func Dial(ctx context.Context, url string, opts Options) (*Wallet, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrProviderUnavailable, "rpcwallet: dial")
	}
	return New(c, opts), nil
}

func New(client *rpc.Client, opts Options) *Wallet {
	return &Wallet{client: client, opts: opts.withDefaults()}
}

func (w *Wallet) Close() { w.client.Close() }

func (w *Wallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	if err := w.client.CallContext(ctx, &out, "eth_requestAccounts"); err != nil {
		return nil, gateway.Classify(err, apperr.ErrProviderUnavailable)
	}
	return out, nil
}

func (w *Wallet) Accounts(ctx context.Context) ([]common.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
	defer cancel()

	var out []common.Address
	if err := w.client.CallContext(ctx, &out, "eth_accounts"); err != nil {
		return nil, gateway.Classify(err, apperr.ErrProviderUnavailable)
	}
	return out, nil
}

func (w *Wallet) ChainID(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
	defer cancel()

	var out hexutil.Uint64
	if err := w.client.CallContext(ctx, &out, "eth_chainId"); err != nil {
		return 0, gateway.Classify(err, apperr.ErrProviderUnavailable)
	}
	return int64(out), nil
}

func (w *Wallet) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
	defer cancel()

	var out hexutil.Big
	if err := w.client.CallContext(ctx, &out, "eth_getBalance", addr, "latest"); err != nil {
		return nil, gateway.Classify(err, apperr.ErrQueryFailed)
	}
	return out.ToInt(), nil
}

type switchParams struct {
	ChainID string `json:"chainId"`
}

func (w *Wallet) SwitchChain(ctx context.Context, chainID int64) error {
	err := w.client.CallContext(ctx, nil, "wallet_switchEthereumChain", switchParams{ChainID: networks.ChainIDHex(chainID)})
	return gateway.Classify(err, apperr.ErrNetworkSwitchFailed)
}

func (w *Wallet) AddChain(ctx context.Context, params networks.AddChainParams) error {
	err := w.client.CallContext(ctx, nil, "wallet_addEthereumChain", params)
	return gateway.Classify(err, apperr.ErrNetworkSwitchFailed)
}

type sendArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// Send hands the transaction to the wallet, which signs and broadcasts it.
func (w *Wallet) Send(ctx context.Context, req gateway.TxRequest) (gateway.PendingTx, error) {
	args := sendArgs{From: req.From, To: &req.To, Data: req.Data}
	if req.Value != nil && req.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(req.Value)
	}

	var hash common.Hash
	if err := w.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return gateway.PendingTx{}, gateway.Classify(err, apperr.ErrSendFailed)
	}

	log.Info("transaction submitted via wallet", "tx", hash.Hex(), "label", req.Label)
	return gateway.NewPendingTx(hash, func(ctx context.Context) (*types.Receipt, error) {
		return ledger.WaitMined(ctx, receipts{w.client}, hash, w.opts.ReceiptInterval)
	}), nil
}

func (w *Wallet) SubscribeEvents(ch chan<- gateway.Event) event.Subscription {
	return w.feed.Subscribe(ch)
}

// Run polls the wallet until ctx ends and emits change events.
func (w *Wallet) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		w.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll records the wallet's accounts and chain. A change is only published
// after it has been seen on two consecutive polls.
func (w *Wallet) poll(ctx context.Context) {
	accts, err := w.Accounts(ctx)
	if err != nil {
		log.Warn("wallet poll: accounts failed", "error", err)
		return
	}
	chainID, err := w.ChainID(ctx)
	if err != nil {
		log.Warn("wallet poll: chain id failed", "error", err)
		return
	}
	cur := observed{key: accountsKey(accts), accounts: accts, chainID: chainID}

	w.mu.Lock()
	if !w.primed {
		w.primed = true
		w.published = cur
		w.mu.Unlock()
		return
	}
	if cur.key == w.published.key && cur.chainID == w.published.chainID {
		w.candidate = nil
		w.mu.Unlock()
		return
	}
	if w.candidate == nil || w.candidate.key != cur.key || w.candidate.chainID != cur.chainID {
		w.candidate = &cur
		w.mu.Unlock()
		return
	}

	prev := w.published
	w.published = cur
	w.candidate = nil
	w.mu.Unlock()

	if cur.chainID != prev.chainID {
		w.feed.Send(gateway.Event{Kind: gateway.ChainChanged, ChainID: cur.chainID})
	}
	if cur.key != prev.key {
		w.feed.Send(gateway.Event{Kind: gateway.AccountsChanged, Accounts: cur.accounts})
	}
}

func accountsKey(accts []common.Address) string {
	parts := make([]string, len(accts))
	for i, a := range accts {
		parts[i] = strings.ToLower(a.Hex())
	}
	return strings.Join(parts, ",")
}

type receipts struct{ c *rpc.Client }

func (r receipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var rcpt *types.Receipt
	if err := r.c.CallContext(ctx, &rcpt, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if rcpt == nil {
		return nil, ethereum.NotFound
	}
	return rcpt, nil
}
