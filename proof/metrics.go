package proof

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "proof"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of proof builds started.
	BuildsStarted metrics.Counter
	// Number of failed proof builds, labeled by failure kind.
	BuildsFailed metrics.Counter
	// Number of requests served from the cache.
	CacheHits metrics.Counter
	// Number of requests that triggered or joined a build.
	CacheMisses metrics.Counter
	// Number of requests that joined an in-flight build.
	CoalescedWaiters metrics.Counter
	// Number of upstream read retries.
	FetchRetries metrics.Counter
	// Time spent building one proof chain.
	BuildDuration metrics.Histogram
	// Size of the serialized proof chain in bytes.
	ProofSize metrics.Histogram
	// Number of live cache entries.
	CacheEntries metrics.Gauge
}

// PrometheusMetrics returns Metrics built using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		BuildsStarted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "builds_started",
			Help:      "Number of proof builds started.",
		}, labels).With(labelsAndValues...),
		BuildsFailed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "builds_failed",
			Help:      "Number of failed proof builds.",
		}, append(labels, "kind")).With(labelsAndValues...),
		CacheHits: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cache_hits",
			Help:      "Number of requests served from the cache.",
		}, labels).With(labelsAndValues...),
		CacheMisses: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cache_misses",
			Help:      "Number of requests that triggered or joined a build.",
		}, labels).With(labelsAndValues...),
		CoalescedWaiters: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "coalesced_waiters",
			Help:      "Number of requests that joined an in-flight build.",
		}, labels).With(labelsAndValues...),
		FetchRetries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fetch_retries",
			Help:      "Number of upstream read retries.",
		}, labels).With(labelsAndValues...),
		BuildDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "build_duration",
			Help:      "Time spent building one proof chain, in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, labels).With(labelsAndValues...),
		ProofSize: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "proof_size",
			Help:      "Size of the serialized proof chain, in bytes.",
			Buckets:   stdprometheus.ExponentialBuckets(256, 4, 8),
		}, labels).With(labelsAndValues...),
		CacheEntries: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cache_entries",
			Help:      "Number of live cache entries.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		BuildsStarted:    discard.NewCounter(),
		BuildsFailed:     discard.NewCounter(),
		CacheHits:        discard.NewCounter(),
		CacheMisses:      discard.NewCounter(),
		CoalescedWaiters: discard.NewCounter(),
		FetchRetries:     discard.NewCounter(),
		BuildDuration:    discard.NewHistogram(),
		ProofSize:        discard.NewHistogram(),
		CacheEntries:     discard.NewGauge(),
	}
}
