// Package metrics holds the client's Prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Session
	// ============================================
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdc_session_transitions_total",
			Help: "Wallet session state transitions by target state",
		},
		[]string{"to"},
	)

	WalletEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdc_wallet_events_total",
			Help: "Provider events received by kind",
		},
		[]string{"kind"},
	)

	// ============================================
	// Derived state
	// ============================================
	BalanceSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qdc_balance_sync_duration_seconds",
		Help:    "Duration of a full balance synchronization",
		Buckets: prometheus.DefBuckets,
	})

	TokenQueryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdc_token_query_failures_total",
			Help: "Isolated per-token query failures",
		},
		[]string{"chain"},
	)

	HistoryBlocksScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdc_history_blocks_scanned_total",
			Help: "Blocks inspected while reconstructing history",
		},
		[]string{"chain"},
	)

	HistoryBlockFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdc_history_block_failures_total",
			Help: "Block fetches skipped during history reconstruction",
		},
		[]string{"chain"},
	)

	StaleResultsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdc_stale_results_dropped_total",
			Help: "Results discarded because the session changed while they were computed",
		},
		[]string{"kind"},
	)

	// ============================================
	// Transactions
	// ============================================
	SwapQuotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdc_swap_quotes_total",
			Help: "Swap quote requests by outcome",
		},
		[]string{"outcome"},
	)

	SwapExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdc_swap_executions_total",
			Help: "Swap executions by outcome",
		},
		[]string{"outcome"},
	)

	Sends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdc_sends_total",
			Help: "Asset transfers by outcome",
		},
		[]string{"outcome"},
	)

	// ============================================
	// Network status
	// ============================================
	LatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qdc_latest_block",
			Help: "Latest block number seen on the active chain",
		},
		[]string{"chain"},
	)

	GasPriceGwei = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qdc_gas_price_gwei",
			Help: "Suggested gas price in gwei",
		},
		[]string{"chain"},
	)

	NetworkHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qdc_network_healthy",
			Help: "Active chain node health (1=healthy, 0=unhealthy)",
		},
		[]string{"chain"},
	)

	// ============================================
	// HTTP
	// ============================================
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qdc_http_request_duration_seconds",
			Help:    "UI API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

// Chain formats a chain id as a label value.
func Chain(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}

// Outcome is "ok" for a nil error, else the error's class.
func Outcome(err error, class func(error) string) string {
	if err == nil {
		return "ok"
	}
	return class(err)
}
