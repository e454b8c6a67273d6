package server

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
)

var (
	// connectedPeers counts the peers that sent at least one request
	connectedPeers atomic.Int64
	// openChannels counts the channels that were used at least once
	openChannels atomic.Int64
)

var (
	_               = metrics.GetOrCreateGauge(`rkv_hub_peers`, func() float64 { return float64(connectedPeers.Load()) })
	_               = metrics.GetOrCreateGauge(`rkv_hub_channels`, func() float64 { return float64(openChannels.Load()) })
	publishedTotal  = metrics.GetOrCreateCounter(`rkv_hub_published_total`)
	pushesTotal     = metrics.GetOrCreateCounter(`rkv_hub_pushes_total`)
	pushErrorsTotal = metrics.GetOrCreateCounter(`rkv_hub_push_errors_total`)
	replaysTotal    = metrics.GetOrCreateCounter(`rkv_hub_replays_total`)
	invalidTotal    = metrics.GetOrCreateCounter(`rkv_hub_invalid_requests_total`)
)

// requestsTotal returns the request counter of a message type
func requestsTotal(t common.MessageType) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`rkv_hub_requests_total{type=%q}`, t.String()))
}

// mountRoutes registers the metrics and health check routes on r
func mountRoutes(r chi.Router) {
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
