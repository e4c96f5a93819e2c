// Package session owns the wallet session: whether a wallet is connected,
// which account is active and on which chain. All mutations happen on the
// goroutine running Manager.Run, one command or provider event at a time.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
	"github.com/quantumauth-io/quantum-dex-client/internal/gateway"
	"github.com/quantumauth-io/quantum-dex-client/internal/metrics"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
)

var errStopped = errors.New("session: manager stopped")

type command struct {
	ctx   context.Context
	run   func(ctx context.Context) error
	reply chan error
}

type Manager struct {
	gw  gateway.Gateway
	reg *networks.Registry

	// EventTimeout bounds the gateway calls made while handling a provider event.
	EventTimeout time.Duration

	inbox chan command
	done  chan struct{}
	feed  event.Feed

	mu   sync.RWMutex
	snap Snapshot
}

func New(gw gateway.Gateway, reg *networks.Registry) *Manager {
	return &Manager{
		gw:           gw,
		reg:          reg,
		EventTimeout: constants.DefaultRequestTimeout,
		inbox:        make(chan command),
		done:         make(chan struct{}),
		snap:         disconnected(),
	}
}

// Run processes commands and provider events until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	events := make(chan gateway.Event, 16)
	sub := m.gw.SubscribeEvents(events)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Warn("session: gateway subscription ended", "error", err)
			}
			return
		case cmd := <-m.inbox:
			cmd.reply <- cmd.run(cmd.ctx)
		case ev := <-events:
			metrics.WalletEvents.WithLabelValues(ev.Kind.String()).Inc()
			evCtx, cancel := context.WithTimeout(ctx, m.EventTimeout)
			m.handleEvent(evCtx, ev)
			cancel()
		}
	}
}

// Snapshot returns the current session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// IsCurrent reports whether a result computed against st may still be applied.
func (m *Manager) IsCurrent(st Stamp) bool {
	cur := m.Snapshot()
	return cur.State == Connected &&
		cur.Version == st.Version &&
		cur.Address == st.Address &&
		cur.ChainID == st.ChainID
}

// Subscribe delivers every published snapshot to ch. Publishing blocks until
// each subscriber has received, so ch must be buffered or drained promptly.
func (m *Manager) Subscribe(ch chan<- Snapshot) event.Subscription {
	return m.feed.Subscribe(ch)
}

// Connect asks the wallet for account access.
func (m *Manager) Connect(ctx context.Context) error {
	return m.do(ctx, func(ctx context.Context) error {
		return m.connect(ctx, true)
	})
}

// Disconnect clears the session. It is a no-op when already disconnected.
func (m *Manager) Disconnect(ctx context.Context) error {
	return m.do(ctx, func(ctx context.Context) error {
		if m.Snapshot().State != Disconnected {
			m.publish(disconnected())
		}
		return nil
	})
}

// SwitchNetwork moves the wallet to chainID. A chain the wallet does not know
// is added from the registry and the switch retried once.
func (m *Manager) SwitchNetwork(ctx context.Context, chainID int64) error {
	return m.do(ctx, func(ctx context.Context) error {
		return m.switchNetwork(ctx, chainID)
	})
}

func (m *Manager) do(ctx context.Context, run func(ctx context.Context) error) error {
	cmd := command{ctx: ctx, run: run, reply: make(chan error, 1)}
	select {
	case m.inbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return errStopped
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) connect(ctx context.Context, interactive bool) error {
	m.publish(Snapshot{State: Connecting})

	var (
		accts []common.Address
		err   error
	)
	if interactive {
		accts, err = m.gw.RequestAccounts(ctx)
	} else {
		accts, err = m.gw.Accounts(ctx)
	}
	if err != nil {
		m.publish(disconnected())
		return classifyConnect(err)
	}
	if len(accts) == 0 {
		m.publish(disconnected())
		if interactive {
			return apperr.Newf(apperr.ErrUserRejected, "session: wallet returned no accounts")
		}
		return nil
	}

	chainID, err := m.gw.ChainID(ctx)
	if err != nil {
		m.publish(disconnected())
		return classifyConnect(err)
	}

	m.publish(connected(accts[0], chainID))
	return nil
}

func classifyConnect(err error) error {
	if apperr.ClassOf(err) == apperr.ClassInternal {
		return apperr.Wrap(err, apperr.ErrProviderUnavailable, "session: connect")
	}
	return errors.Wrap(err, "session: connect")
}

func (m *Manager) switchNetwork(ctx context.Context, target int64) error {
	cur := m.Snapshot()
	if cur.State != Connected {
		return apperr.Newf(apperr.ErrNotConnected, "session: switch to %d", target)
	}
	if _, ok := m.reg.Lookup(target); !ok {
		return apperr.Newf(apperr.ErrUnsupportedChain, "session: chain %d is not configured", target)
	}
	if cur.ChainID == target {
		return nil
	}

	err := m.gw.SwitchChain(ctx, target)
	if errors.Is(err, gateway.ErrUnknownChain) {
		log.Info("wallet does not know chain, adding it", "chainId", target)
		params, perr := m.reg.AddChainParams(target)
		if perr != nil {
			return apperr.Wrap(perr, apperr.ErrNetworkSwitchFailed, "session: add chain")
		}
		if aerr := m.gw.AddChain(ctx, params); aerr != nil {
			return apperr.Wrap(aerr, apperr.ErrNetworkSwitchFailed, "session: add chain")
		}
		err = m.gw.SwitchChain(ctx, target)
	}
	if err != nil {
		log.Warn("network switch failed", "from", cur.ChainID, "to", target, "error", err)
		return apperr.Wrap(err, apperr.ErrNetworkSwitchFailed, "session: switch chain")
	}

	return m.reset(ctx)
}

// reset drops everything tied to the old environment, then reconnects
// without prompting using the account the wallet already authorized.
func (m *Manager) reset(ctx context.Context) error {
	m.publish(disconnected())
	return m.connect(ctx, false)
}

func (m *Manager) handleEvent(ctx context.Context, ev gateway.Event) {
	cur := m.Snapshot()
	if cur.State == Disconnected {
		return
	}

	switch ev.Kind {
	case gateway.AccountsChanged:
		if len(ev.Accounts) == 0 {
			log.Info("wallet revoked all accounts")
			m.publish(disconnected())
			return
		}
		if ev.Accounts[0] == cur.Address {
			return
		}
		chainID, err := m.gw.ChainID(ctx)
		if err != nil {
			log.Warn("session: chain lookup after account change failed", "error", err)
			m.publish(disconnected())
			return
		}
		m.publish(connected(ev.Accounts[0], chainID))

	case gateway.ChainChanged:
		if ev.ChainID == cur.ChainID {
			return
		}
		if err := m.reset(ctx); err != nil {
			log.Warn("session: reconnect after chain change failed", "chainId", ev.ChainID, "error", err)
		}
	}
}

func (m *Manager) publish(next Snapshot) {
	m.mu.Lock()
	prev := m.snap
	next.Version = prev.Version + 1
	m.snap = next
	m.mu.Unlock()

	log.Info("session transition",
		"from", prev.State.String(),
		"to", next.State.String(),
		"address", next.Address.Hex(),
		"chainId", next.ChainID,
		"version", next.Version,
	)
	metrics.SessionTransitions.WithLabelValues(next.State.String()).Inc()
	m.feed.Send(next)
}
