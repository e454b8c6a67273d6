package store

import "github.com/VictoriaMetrics/metrics"

// --------------------------------------------------------------------------
// Store Metrics (exposed by the hub at /metrics, see rpc/server)
// --------------------------------------------------------------------------

var (
	syncMutationsTotal  = metrics.GetOrCreateCounter(`rkv_store_mutations_total{branch="sync"}`)
	asyncMutationsTotal = metrics.GetOrCreateCounter(`rkv_store_mutations_total{branch="async"}`)
	asyncFailuresTotal  = metrics.GetOrCreateCounter(`rkv_store_async_failures_total`)
	defaultsTotal       = metrics.GetOrCreateCounter(`rkv_store_defaults_applied_total`)
	mergesTotal         = metrics.GetOrCreateCounter(`rkv_store_merges_total`)
	notificationsTotal  = metrics.GetOrCreateCounter(`rkv_store_notifications_total`)
)
