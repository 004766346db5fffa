// Package metrics defines the Prometheus collectors the engine reports
// through /metrics. One Registry value is built at startup and threaded to
// the packages that record into it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Registry *prometheus.Registry

	// Matching.
	MatchOutcomes  *prometheus.CounterVec // outcome, reason
	MatchDuration  prometheus.Histogram
	FingerprintOps *prometheus.CounterVec // op: hit, miss, stale, set, evict

	// Lifecycle and channels.
	ChannelsCreated prometheus.Counter
	ChannelsDeleted *prometheus.CounterVec // reason
	ActiveChannels  prometheus.Gauge

	// Scheduler.
	TickDuration prometheus.Histogram
	TaskFailures *prometheus.CounterVec // task

	// Outbound calls.
	ProviderCalls   *prometheus.CounterVec // provider, status: ok, error
	DownstreamCalls *prometheus.CounterVec // op, status
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		MatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventarr_match_outcomes_total",
			Help: "Stream match outcomes by kind and reason.",
		}, []string{"outcome", "reason"}),
		MatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventarr_match_duration_seconds",
			Help:    "Wall time of one stream match attempt.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		FingerprintOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventarr_fingerprint_cache_ops_total",
			Help: "Fingerprint cache operations.",
		}, []string{"op"}),
		ChannelsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventarr_channels_created_total",
			Help: "Managed channels created.",
		}),
		ChannelsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventarr_channels_deleted_total",
			Help: "Managed channels soft-deleted by reason.",
		}, []string{"reason"}),
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventarr_active_channels",
			Help: "Managed channels not soft-deleted.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventarr_scheduler_tick_seconds",
			Help:    "Duration of one scheduler tick.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		TaskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventarr_scheduler_task_failures_total",
			Help: "Scheduler task failures by task name.",
		}, []string{"task"}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventarr_provider_calls_total",
			Help: "Sports provider API calls.",
		}, []string{"provider", "status"}),
		DownstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventarr_downstream_calls_total",
			Help: "Downstream channel-manager API calls.",
		}, []string{"op", "status"}),
	}
	reg.MustRegister(
		m.MatchOutcomes, m.MatchDuration, m.FingerprintOps,
		m.ChannelsCreated, m.ChannelsDeleted, m.ActiveChannels,
		m.TickDuration, m.TaskFailures,
		m.ProviderCalls, m.DownstreamCalls,
	)
	return m
}
