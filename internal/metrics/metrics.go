// Package metrics exposes Prometheus counters for a crawl run.
//
// A nil *Metrics is valid and records nothing, so components take an
// optional *Metrics without checking for it.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace prefixes every metric name.
const namespace = "onionharvest"

// shutdownTimeout bounds the graceful shutdown of the metrics server.
const shutdownTimeout = 5 * time.Second

// Metrics holds the collectors of one run.
type Metrics struct {
	registry *prometheus.Registry

	pagesFetched  *prometheus.CounterVec
	fetchAttempts prometheus.Counter
	downloads     *prometheus.CounterVec
	dedupHits     prometheus.Counter
	keysFound     *prometheus.CounterVec
	downloadBytes prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg gets a
// fresh registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		pagesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_fetched_total",
				Help:      "Page fetches by terminal status.",
			},
			[]string{"status"},
		),
		fetchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "HTTP attempts made, including retries.",
		}),
		downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "File downloads by outcome.",
			},
			[]string{"status"},
		),
		dedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_hits_total",
			Help:      "File links skipped because they were already recorded.",
		}),
		keysFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "keys_found_total",
				Help:      "Secret findings by kind.",
			},
			[]string{"kind"},
		),
		downloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_bytes",
			Help:      "Size of completed downloads.",
			// 1KiB to 1GiB
			Buckets: prometheus.ExponentialBuckets(1024, 4, 11),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.pagesFetched, m.fetchAttempts, m.downloads, m.dedupHits, m.keysFound, m.downloadBytes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// PageFetched counts a page fetch that ended with status.
func (m *Metrics) PageFetched(status string) {
	if m == nil {
		return
	}
	m.pagesFetched.WithLabelValues(status).Inc()
}

// FetchAttempt counts one HTTP attempt.
func (m *Metrics) FetchAttempt() {
	if m == nil {
		return
	}
	m.fetchAttempts.Inc()
}

// Download counts a finished download. size is observed for completed ones.
func (m *Metrics) Download(status string, size int64, completed bool) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(status).Inc()
	if completed {
		m.downloadBytes.Observe(float64(size))
	}
}

// DedupHit counts a file link skipped because it was already recorded.
func (m *Metrics) DedupHit() {
	if m == nil {
		return
	}
	m.dedupHits.Inc()
}

// KeysFound counts n findings of kind.
func (m *Metrics) KeysFound(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.keysFound.WithLabelValues(kind).Add(float64(n))
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop metrics server: %w", err)
		}
		return nil
	}
}
