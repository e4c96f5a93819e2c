// Package localwallet is an in-process wallet backed by an encrypted key file.
// Unlocking and every transaction go through a Prompter, so the local user
// plays the part a browser wallet's popup would.
package localwallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
	"github.com/quantumauth-io/quantum-dex-client/internal/gateway"
	"github.com/quantumauth-io/quantum-dex-client/internal/ledger"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
	"github.com/quantumauth-io/quantum-dex-client/internal/securefile"
	"github.com/quantumauth-io/quantum-dex-client/internal/units"
)

// BackendSource hands out a ledger backend per chain. *ledger.Pool implements it.
type BackendSource interface {
	Backend(ctx context.Context, chainID int64) (ledger.Backend, error)
}

type Config struct {
	KeyPath  string
	Registry *networks.Registry
	Backends BackendSource
	Prompter Prompter

	// Chains the wallet knows at start. Empty means every registry chain.
	Chains       []int64
	DefaultChain int64

	ReceiptInterval time.Duration
}

type Wallet struct {
	cfg  Config
	feed event.Feed

	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64
	known   map[int64]bool
}

var _ gateway.Gateway = (*Wallet)(nil)

func New(cfg Config) (*Wallet, error) {
	if cfg.Registry == nil || cfg.Backends == nil || cfg.Prompter == nil {
		return nil, fmt.Errorf("localwallet: registry, backends and prompter are required")
	}
	if cfg.ReceiptInterval <= 0 {
		cfg.ReceiptInterval = constants.DefaultReceiptPollInterval
	}

	known := map[int64]bool{}
	if len(cfg.Chains) == 0 {
		for _, n := range cfg.Registry.List() {
			known[n.ChainID] = true
		}
	}
	for _, id := range cfg.Chains {
		if _, ok := cfg.Registry.Lookup(id); !ok {
			return nil, fmt.Errorf("localwallet: chain %d not in registry", id)
		}
		known[id] = true
	}

	def := cfg.DefaultChain
	if def == 0 {
		list := cfg.Registry.List()
		if len(list) == 0 {
			return nil, fmt.Errorf("localwallet: registry is empty")
		}
		def = list[0].ChainID
	}
	if !known[def] {
		return nil, fmt.Errorf("localwallet: default chain %d is not enabled", def)
	}

	return &Wallet{cfg: cfg, chainID: def, known: known}, nil
}

func (w *Wallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	if w.key != nil {
		addr := w.address
		w.mu.Unlock()
		return []common.Address{addr}, nil
	}
	w.mu.Unlock()

	if !securefile.Exists(w.cfg.KeyPath) {
		return nil, apperr.Newf(apperr.ErrProviderUnavailable, "localwallet: no key file at %s", w.cfg.KeyPath)
	}

	pw, err := w.cfg.Prompter.Password("Unlock wallet: ")
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrUserRejected, "localwallet: unlock")
	}
	defer zeroBytes(pw)

	key, addr, err := load(w.cfg.KeyPath, pw)
	if err != nil {
		if errors.Is(err, securefile.ErrInvalidPasswordOrCorrupt) {
			return nil, apperr.Wrap(err, apperr.ErrUserRejected, "localwallet: unlock")
		}
		return nil, apperr.Wrap(err, apperr.ErrProviderUnavailable, "localwallet: unlock")
	}

	w.mu.Lock()
	w.key, w.address = key, addr
	w.mu.Unlock()

	log.Info("local wallet unlocked", "address", addr.Hex())
	return []common.Address{addr}, nil
}

func (w *Wallet) Accounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key == nil {
		return nil, nil
	}
	return []common.Address{w.address}, nil
}

// Lock forgets the key and announces an empty account set.
func (w *Wallet) Lock() {
	w.mu.Lock()
	wasUnlocked := w.key != nil
	w.key, w.address = nil, common.Address{}
	w.mu.Unlock()

	if wasUnlocked {
		w.feed.Send(gateway.Event{Kind: gateway.AccountsChanged})
	}
}

func (w *Wallet) ChainID(ctx context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, nil
}

func (w *Wallet) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	chainID, _ := w.ChainID(ctx)
	b, err := w.cfg.Backends.Backend(ctx, chainID)
	if err != nil {
		return nil, err
	}
	bal, err := b.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrQueryFailed, "localwallet: balance")
	}
	return bal, nil
}

func (w *Wallet) SwitchChain(ctx context.Context, chainID int64) error {
	w.mu.Lock()
	if !w.known[chainID] {
		w.mu.Unlock()
		return errors.Wrapf(gateway.ErrUnknownChain, "localwallet: chain %d", chainID)
	}
	changed := w.chainID != chainID
	w.chainID = chainID
	w.mu.Unlock()

	if changed {
		w.feed.Send(gateway.Event{Kind: gateway.ChainChanged, ChainID: chainID})
	}
	return nil
}

func (w *Wallet) AddChain(ctx context.Context, params networks.AddChainParams) error {
	id, err := networks.ParseChainID(params.ChainID)
	if err != nil {
		return apperr.Mark(err, apperr.ErrInvalidArgument)
	}
	if _, ok := w.cfg.Registry.Lookup(id); !ok {
		return apperr.Newf(apperr.ErrUnsupportedChain, "localwallet: chain %d has no configured rpc", id)
	}

	ok, err := w.cfg.Prompter.Confirm(fmt.Sprintf("Allow this client to add network %q (chain %d)?", params.ChainName, id))
	if err != nil || !ok {
		return apperr.Newf(apperr.ErrUserRejected, "localwallet: add chain %d declined", id)
	}

	w.mu.Lock()
	w.known[id] = true
	w.mu.Unlock()
	return nil
}

func (w *Wallet) Send(ctx context.Context, req gateway.TxRequest) (gateway.PendingTx, error) {
	w.mu.Lock()
	key, addr, chainID := w.key, w.address, w.chainID
	w.mu.Unlock()

	if key == nil {
		return gateway.PendingTx{}, apperr.Newf(apperr.ErrNotConnected, "localwallet: locked")
	}
	if req.From != addr {
		return gateway.PendingTx{}, apperr.Newf(apperr.ErrStaleSession, "localwallet: from %s is not the unlocked account", req.From.Hex())
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	prompt := fmt.Sprintf("%s: to %s, value %s, chain %d. Sign?", req.Label, req.To.Hex(), units.NativeToDisplay(value), chainID)
	ok, err := w.cfg.Prompter.Confirm(prompt)
	if err != nil || !ok {
		return gateway.PendingTx{}, apperr.Newf(apperr.ErrUserRejected, "localwallet: %s declined", req.Label)
	}

	b, err := w.cfg.Backends.Backend(ctx, chainID)
	if err != nil {
		return gateway.PendingTx{}, err
	}

	chainBig := big.NewInt(chainID)
	tx, err := buildTx(ctx, b, chainBig, req)
	if err != nil {
		return gateway.PendingTx{}, apperr.Wrap(err, apperr.ErrSendFailed, "localwallet: build tx")
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainBig), key)
	if err != nil {
		return gateway.PendingTx{}, apperr.Wrap(err, apperr.ErrSendFailed, "localwallet: sign")
	}
	if err := b.SendTransaction(ctx, signed); err != nil {
		return gateway.PendingTx{}, apperr.Wrap(err, apperr.ErrSendFailed, "localwallet: broadcast")
	}

	hash := signed.Hash()
	log.Info("transaction broadcast", "tx", hash.Hex(), "label", req.Label, "chainId", chainID, "nonce", signed.Nonce())

	return gateway.NewPendingTx(hash, func(ctx context.Context) (*types.Receipt, error) {
		return ledger.WaitMined(ctx, b, hash, w.cfg.ReceiptInterval)
	}), nil
}

func (w *Wallet) SubscribeEvents(ch chan<- gateway.Event) event.Subscription {
	return w.feed.Subscribe(ch)
}
