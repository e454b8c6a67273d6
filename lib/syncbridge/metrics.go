package syncbridge

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("syncbridge")

// enabledBridges counts the currently enabled bridges
var enabledBridges atomic.Int64

var (
	_                   = metrics.GetOrCreateGauge(`rkv_syncbridge_enabled`, func() float64 { return float64(enabledBridges.Load()) })
	publishedTotal      = metrics.GetOrCreateCounter(`rkv_syncbridge_published_total`)
	coalescedTotal      = metrics.GetOrCreateCounter(`rkv_syncbridge_coalesced_total`)
	publishErrorsTotal  = metrics.GetOrCreateCounter(`rkv_syncbridge_publish_errors_total`)
	encodeFailuresTotal = metrics.GetOrCreateCounter(`rkv_syncbridge_encode_failures_total`)
	receivedTotal       = metrics.GetOrCreateCounter(`rkv_syncbridge_received_total`)
	malformedTotal      = metrics.GetOrCreateCounter(`rkv_syncbridge_malformed_total`)
)
