package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ScanCyclesTotal       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "scan_cycles_total", Help: "Scan cycles completed by worker"}, []string{"worker"})
	ScanCycleLatencyMs    = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "scan_cycle_latency_ms", Help: "Scan cycle latency", Buckets: prometheus.ExponentialBuckets(10, 2, 12)})
	OpportunitiesFound    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "arbitrage_opportunities_found", Help: "Candidate opportunities by chain and strategy"}, []string{"chain", "strategy"})
	OpportunitiesExecuted = prometheus.NewCounter(prometheus.CounterOpts{Name: "arbitrage_opportunities_executed", Help: "Opportunities dispatched to the relay"})
	OpportunitiesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "arbitrage_opportunities_rejected_total", Help: "Rejections by reason"}, []string{"reason"})
	OpportunitiesStale    = prometheus.NewCounter(prometheus.CounterOpts{Name: "arbitrage_opportunities_stale_total", Help: "Opportunities abandoned at the staleness re-check"})
	PathLengthHops        = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "path_length_hops", Help: "Hop count of accepted paths", Buckets: prometheus.LinearBuckets(2, 1, 7)})
	PathProfitBps         = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "path_profit_bps", Help: "Fee-adjusted profit margin per discovered path", Buckets: prometheus.LinearBuckets(-50, 10, 31)})
	GraphEdgesBuilt       = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "graph_edges_built", Help: "Edges in the last graph snapshot by chain"}, []string{"chain"})
	GraphBuildErrors      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "graph_build_errors_total", Help: "Edge construction failures by chain"}, []string{"chain"})
	RPCErrorsTotal        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rpc_errors_total", Help: "RPC errors by chain and method"}, []string{"chain", "method"})
	RPCLatencyMs          = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "rpc_latency_ms", Help: "RPC latency by chain", Buckets: prometheus.ExponentialBuckets(1, 2, 14)}, []string{"chain"})
	GasPriceGwei          = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "gas_price_gwei", Help: "Last observed gas price by chain"}, []string{"chain"})
	ValidationLatencyMs   = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "validation_latency_ms", Help: "Full pipeline latency", Buckets: prometheus.LinearBuckets(1, 5, 20)})
	ValidationCautions    = prometheus.NewCounter(prometheus.CounterOpts{Name: "validation_cautions_total", Help: "Opportunities passed with warnings"})
	ManipulationScore     = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "oracle_manipulation_score", Help: "Manipulation score per validated pair", Buckets: prometheus.LinearBuckets(0, 10, 11)})
	FlashLoanSelections   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "flash_loan_selections_total", Help: "Provider selections by provider"}, []string{"provider"})
	BundlesSubmitted      = prometheus.NewCounter(prometheus.CounterOpts{Name: "bundles_submitted_total", Help: "Bundles handed to the relay"})
	BundlesReverted       = prometheus.NewCounter(prometheus.CounterOpts{Name: "bundles_reverted_total", Help: "Bundles reported reverted by the relay"})
	NetProfitEther        = prometheus.NewGauge(prometheus.GaugeOpts{Name: "net_profit_ether", Help: "Cumulative session profit"})
	CooldownDeferrals     = prometheus.NewCounter(prometheus.CounterOpts{Name: "dispatch_cooldown_deferrals_total", Help: "Dispatches deferred to the next cycle by the global cooldown"})
	BreakerTripped        = prometheus.NewGauge(prometheus.GaugeOpts{Name: "circuit_breaker_tripped", Help: "1 while the circuit breaker is tripped"})
	BreakerLossEther      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "circuit_breaker_loss_ether", Help: "Cumulative loss counted toward the breaker"})
	CrossChainSpreads     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cross_chain_spreads_total", Help: "Cross-chain spreads above the configured minimum"}, []string{"symbol"})
)

func Init(logger zerolog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		ScanCyclesTotal, ScanCycleLatencyMs, OpportunitiesFound, OpportunitiesExecuted,
		OpportunitiesRejected, OpportunitiesStale, PathLengthHops, PathProfitBps,
		GraphEdgesBuilt, GraphBuildErrors, RPCErrorsTotal, RPCLatencyMs, GasPriceGwei,
		ValidationLatencyMs, ValidationCautions, ManipulationScore, FlashLoanSelections,
		BundlesSubmitted, BundlesReverted, NetProfitEther, CooldownDeferrals,
		BreakerTripped, BreakerLossEther, CrossChainSpreads,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		_ = reg.Register(c)
	}
	logger.Info().Msg("Prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
