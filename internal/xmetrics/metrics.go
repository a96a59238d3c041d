// Package xmetrics provides internal-only Prometheus counters for the
// acquisition pipeline. Nothing here is exposed over HTTP; the registry
// exists purely for in-process observability and future scrape wiring,
// not a server.
package xmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds every counter/gauge the job controller and its components
// update during a run.
type Metrics struct {
	Registry *prometheus.Registry

	BooksDiscovered *prometheus.CounterVec // labels: topic
	BooksDownloaded *prometheus.CounterVec // labels: topic
	BooksSkipped    *prometheus.CounterVec // labels: topic
	BooksFailed     *prometheus.CounterVec // labels: topic, kind
	AssetRetries    *prometheus.CounterVec // labels: class
	DiscoveryPages  *prometheus.CounterVec // labels: topic
	ActiveBooks     prometheus.Gauge
}

// New creates a registry with default collectors plus the pipeline's
// counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "shelfpress"}),
	)

	m := &Metrics{
		Registry: reg,
		BooksDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelfpress", Name: "books_discovered_total",
		}, []string{"topic"}),
		BooksDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelfpress", Name: "books_downloaded_total",
		}, []string{"topic"}),
		BooksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelfpress", Name: "books_skipped_total",
		}, []string{"topic"}),
		BooksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelfpress", Name: "books_failed_total",
		}, []string{"topic", "kind"}),
		AssetRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelfpress", Name: "asset_retries_total",
		}, []string{"class"}),
		DiscoveryPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelfpress", Name: "discovery_pages_total",
		}, []string{"topic"}),
		ActiveBooks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shelfpress", Name: "active_books",
		}),
	}

	reg.MustRegister(m.BooksDiscovered, m.BooksDownloaded, m.BooksSkipped,
		m.BooksFailed, m.AssetRetries, m.DiscoveryPages, m.ActiveBooks)

	return m
}
