// Package netstatus polls the active chain's head block and gas price.
package netstatus

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/retry"
	"github.com/shopspring/decimal"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
	"github.com/quantumauth-io/quantum-dex-client/internal/ledger"
	"github.com/quantumauth-io/quantum-dex-client/internal/metrics"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
	"github.com/quantumauth-io/quantum-dex-client/internal/session"
)

type Status struct {
	ChainID      int64     `json:"chainId"`
	Name         string    `json:"name,omitempty"`
	Healthy      bool      `json:"healthy"`
	BlockNumber  uint64    `json:"blockNumber"`
	GasPriceGwei string    `json:"gasPriceGwei"`
	Testnet      bool      `json:"testnet"`
	Error        string    `json:"error,omitempty"`
	CheckedAt    time.Time `json:"checkedAt"`
}

type SessionView interface {
	Snapshot() session.Snapshot
}

type Monitor struct {
	sess     SessionView
	readers  ledger.ReaderSource
	networks *networks.Registry
	interval time.Duration
	retryCfg *retry.Config

	mu     sync.RWMutex
	status Status
}

func NewMonitor(sess SessionView, readers ledger.ReaderSource, reg *networks.Registry, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = constants.DefaultStatusPollInterval
	}
	cfg := retry.DefaultConfig()
	cfg.MaxNumRetries = constants.StatusPollRetries
	cfg.InitialDelayBeforeRetrying = interval / 30
	cfg.MaxDelayBeforeRetrying = interval / 10
	cfg.ShouldLogFirstFailure = false
	cfg.LogEveryNthFailure = 0

	return &Monitor{sess: sess, readers: readers, networks: reg, interval: interval, retryCfg: cfg}
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run checks immediately and then every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check polls once, retrying transient failures a few times. A failed poll
// marks the chain unhealthy but keeps the last block number seen on it.
func (m *Monitor) Check(ctx context.Context) Status {
	snap := m.sess.Snapshot()
	if snap.State != session.Connected {
		m.set(Status{CheckedAt: time.Now()})
		return m.Status()
	}

	st := Status{ChainID: snap.ChainID, CheckedAt: time.Now()}
	if n, ok := m.networks.Lookup(snap.ChainID); ok {
		st.Name, st.Testnet = n.Name, n.Testnet
	}
	if prev := m.Status(); prev.ChainID == snap.ChainID {
		st.BlockNumber = prev.BlockNumber
		st.GasPriceGwei = prev.GasPriceGwei
	}

	chain := metrics.Chain(snap.ChainID)
	_, err := retry.Retry(ctx, m.retryCfg,
		func(ctx context.Context) ([]interface{}, error) {
			return nil, m.poll(ctx, snap.ChainID, &st)
		},
		func(err error) bool { return !errors.Is(err, apperr.ErrUnsupportedChain) },
		"network status poll")
	if err != nil {
		log.Warn("network status check failed", "chainId", snap.ChainID, "error", err)
		st.Error = err.Error()
		metrics.NetworkHealthy.WithLabelValues(chain).Set(0)
	} else {
		st.Healthy = true
		metrics.NetworkHealthy.WithLabelValues(chain).Set(1)
		metrics.LatestBlock.WithLabelValues(chain).Set(float64(st.BlockNumber))
	}

	m.set(st)
	return st
}

func (m *Monitor) poll(ctx context.Context, chainID int64, st *Status) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultRequestTimeout)
	defer cancel()

	r, err := m.readers.Reader(ctx, chainID)
	if err != nil {
		return err
	}
	num, err := r.BlockNumber(ctx)
	if err != nil {
		return err
	}
	st.BlockNumber = num

	gp, err := r.SuggestGasPrice(ctx)
	if err != nil {
		return err
	}
	gwei := decimal.NewFromBigInt(gp, -9)
	st.GasPriceGwei = gwei.StringFixed(2)
	metrics.GasPriceGwei.WithLabelValues(metrics.Chain(chainID)).Set(gwei.InexactFloat64())
	return nil
}

func (m *Monitor) set(st Status) {
	m.mu.Lock()
	m.status = st
	m.mu.Unlock()
}
