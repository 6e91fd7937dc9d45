// Package metrics exposes the indexer's operational counters to
// Prometheus. Consensus-relevant counters live in the store's
// statistics table; these are purely observational.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the indexer's Prometheus collectors.
type Metrics struct {
	BlocksIndexed  prometheus.Counter
	TxIndexed      prometheus.Counter
	WriteDuration  prometheus.Histogram
	ReorgDepth     prometheus.Histogram
	FetchQueueSize prometheus.Gauge
}

// New registers the collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		BlocksIndexed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dogeindexer_blocks_indexed_total",
			Help: "Blocks committed to the index.",
		}),
		TxIndexed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dogeindexer_transactions_indexed_total",
			Help: "Transactions processed across all committed blocks.",
		}),
		WriteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dogeindexer_block_write_seconds",
			Help:    "Wall time of each block's write transaction.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		ReorgDepth: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dogeindexer_reorg_depth",
			Help:    "Depth of each handled chain reorganization.",
			Buckets: prometheus.LinearBuckets(1, 1, 6),
		}),
		FetchQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dogeindexer_fetch_queue_size",
			Help: "Blocks buffered between fetcher and updater.",
		}),
	}
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
