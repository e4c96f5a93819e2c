// Package portfolio keeps the balances and history derived from the current
// wallet session and drops results that belong to a superseded session.
package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"golang.org/x/sync/errgroup"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/balances"
	"github.com/quantumauth-io/quantum-dex-client/internal/history"
	"github.com/quantumauth-io/quantum-dex-client/internal/metrics"
	"github.com/quantumauth-io/quantum-dex-client/internal/session"
)

type Sessions interface {
	Snapshot() session.Snapshot
	IsCurrent(st session.Stamp) bool
	Subscribe(ch chan<- session.Snapshot) event.Subscription
}

type BalanceSyncer interface {
	Sync(ctx context.Context, addr common.Address, chainID int64) (balances.Result, error)
}

type HistoryReader interface {
	Reconstruct(ctx context.Context, addr common.Address, chainID int64) ([]history.Record, error)
}

type State struct {
	Session         session.Snapshot        `json:"session"`
	Native          *balances.NativeBalance `json:"native"`
	Tokens          []balances.TokenBalance `json:"tokens"`
	History         []history.Record        `json:"history"`
	BalanceFailures []string                `json:"balanceFailures,omitempty"`
	HistoryError    string                  `json:"historyError,omitempty"`
	Loading         bool                    `json:"loading"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

type Store struct {
	sessions Sessions
	balances BalanceSyncer
	history  HistoryReader

	// SyncTimeout bounds one balance plus history refresh.
	SyncTimeout time.Duration

	feed event.Feed
	wg   sync.WaitGroup

	mu    sync.RWMutex
	state State
}

func NewStore(s Sessions, b BalanceSyncer, h HistoryReader) *Store {
	return &Store{
		sessions:    s,
		balances:    b,
		history:     h,
		SyncTimeout: 2 * time.Minute,
	}
}

// Run follows session snapshots until ctx ends.
func (s *Store) Run(ctx context.Context) {
	snaps := make(chan session.Snapshot, 16)
	sub := s.sessions.Subscribe(snaps)
	defer sub.Unsubscribe()
	defer s.wg.Wait()

	s.onSession(ctx, s.sessions.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snaps:
			s.onSession(ctx, snap)
		}
	}
}

func (s *Store) onSession(ctx context.Context, snap session.Snapshot) {
	// the initial read can race ahead of queued snapshots
	if cur := s.State().Session; snap.Version != 0 && snap.Version <= cur.Version {
		return
	}
	s.reset(snap)
	if snap.State != session.Connected {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		syncCtx, cancel := context.WithTimeout(ctx, s.SyncTimeout)
		defer cancel()
		if err := s.load(syncCtx, snap.Stamp()); err != nil {
			log.Warn("portfolio refresh failed", "address", snap.Address.Hex(), "chainId", snap.ChainID, "error", err)
		}
	}()
}

// State returns the current derived state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe delivers every published State to ch.
func (s *Store) Subscribe(ch chan<- State) event.Subscription {
	return s.feed.Subscribe(ch)
}

// Refresh reloads balances and history for the current session. It returns
// ErrStaleSession if the session moved on while loading.
func (s *Store) Refresh(ctx context.Context) error {
	snap := s.sessions.Snapshot()
	if snap.State != session.Connected {
		return apperr.Newf(apperr.ErrNotConnected, "portfolio: refresh")
	}
	s.mu.Lock()
	if s.state.Session.Version == snap.Version {
		s.state.Loading = true
	}
	s.mu.Unlock()
	return s.load(ctx, snap.Stamp())
}

func (s *Store) load(ctx context.Context, st session.Stamp) error {
	var (
		histErr error
		staleMu sync.Mutex
		stale   bool
	)
	markStale := func() {
		staleMu.Lock()
		stale = true
		staleMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bal, err := s.balances.Sync(gctx, st.Address, st.ChainID)
		if err != nil {
			return err
		}
		if !s.applyBalances(st, bal) {
			markStale()
		}
		return nil
	})
	g.Go(func() error {
		var recs []history.Record
		recs, histErr = s.history.Reconstruct(gctx, st.Address, st.ChainID)
		if histErr != nil && gctx.Err() != nil {
			return histErr
		}
		if !s.applyHistory(st, recs, histErr) {
			markStale()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state.Session.Version == st.Version {
		s.state.Loading = false
	}
	s.mu.Unlock()
	s.publish()

	if stale {
		return apperr.Newf(apperr.ErrStaleSession, "portfolio: session changed while loading")
	}
	return histErr
}

// current must be called with mu held.
func (s *Store) current(st session.Stamp) bool {
	return s.state.Session.Version == st.Version && s.sessions.IsCurrent(st)
}

func (s *Store) applyBalances(st session.Stamp, res balances.Result) bool {
	s.mu.Lock()
	if !s.current(st) {
		s.mu.Unlock()
		metrics.StaleResultsDropped.WithLabelValues("balances").Inc()
		log.Info("dropping stale balance result", "chainId", st.ChainID, "version", st.Version)
		return false
	}
	s.state.Native = res.Native
	s.state.Tokens = res.Tokens
	s.state.BalanceFailures = nil
	for _, f := range res.Failures {
		s.state.BalanceFailures = append(s.state.BalanceFailures, f.Symbol)
	}
	s.state.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.publish()
	return true
}

func (s *Store) applyHistory(st session.Stamp, recs []history.Record, err error) bool {
	s.mu.Lock()
	if !s.current(st) {
		s.mu.Unlock()
		metrics.StaleResultsDropped.WithLabelValues("history").Inc()
		log.Info("dropping stale history result", "chainId", st.ChainID, "version", st.Version)
		return false
	}
	if err != nil {
		s.state.HistoryError = apperr.Message(err)
	} else {
		s.state.History = recs
		s.state.HistoryError = ""
	}
	s.state.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.publish()
	return true
}

// reset replaces all derived state; nothing survives a session change.
func (s *Store) reset(snap session.Snapshot) {
	s.mu.Lock()
	s.state = State{
		Session:   snap,
		Loading:   snap.State == session.Connected,
		UpdatedAt: time.Now(),
	}
	s.mu.Unlock()
	s.publish()
}

func (s *Store) publish() {
	s.feed.Send(s.State())
}
