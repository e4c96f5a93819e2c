// Package gateway is the boundary to the user's wallet: account access, chain
// selection, balance lookup, transaction submission and change events.
package gateway

import (
	"context"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
)

// ErrUnknownChain is returned by SwitchChain when the wallet does not know the
// chain and it must be added first.
var ErrUnknownChain = errors.New("gateway: unknown chain")

type EventKind int

const (
	AccountsChanged EventKind = iota + 1
	ChainChanged
)

func (k EventKind) String() string {
	switch k {
	case AccountsChanged:
		return "accountsChanged"
	case ChainChanged:
		return "chainChanged"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind     EventKind
	Accounts []common.Address
	ChainID  int64
}

type TxRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte

	// Label is shown when the wallet asks the user to confirm.
	Label string
}

// PendingTx is a submitted transaction.
type PendingTx struct {
	Hash common.Hash
	wait func(ctx context.Context) (*types.Receipt, error)
}

func NewPendingTx(hash common.Hash, wait func(ctx context.Context) (*types.Receipt, error)) PendingTx {
	return PendingTx{Hash: hash, wait: wait}
}

// Wait blocks until the transaction is mined and returns its receipt.
func (p PendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	if p.wait == nil {
		return nil, errors.New("gateway: pending tx has no waiter")
	}
	return p.wait(ctx)
}

type Gateway interface {
	// RequestAccounts asks the user for account access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (int64, error)
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID int64) error
	AddChain(ctx context.Context, params networks.AddChainParams) error
	Send(ctx context.Context, req TxRequest) (PendingTx, error)
	SubscribeEvents(ch chan<- Event) event.Subscription
}
