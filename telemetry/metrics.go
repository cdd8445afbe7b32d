// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CacheHitsMemory   prometheus.Counter
	CacheHitsDurable  prometheus.Counter
	CacheMisses       prometheus.Counter
	UpstreamCalls     prometheus.Counter
	UpstreamFailovers prometheus.Counter
	UpstreamFailures  prometheus.Counter
	QuotaCharges      prometheus.Counter
	QuotaDenials      prometheus.Counter
	DiscoveryRuns     prometheus.Counter
	DiscoveryEmpty    prometheus.Counter

	// Histograms (seconds)
	AnalyzeDuration   prometheus.Observer
	DiscoveryDuration prometheus.Observer
	UpstreamDuration  prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CacheHitsMemory = promauto.NewCounter(prometheus.CounterOpts{Name: "ytscout_cache_hits_memory_total", Help: "Cache hits served from the volatile tier"})
		CacheHitsDurable = promauto.NewCounter(prometheus.CounterOpts{Name: "ytscout_cache_hits_durable_total", Help: "Cache hits served from the durable tier"})
		CacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "ytscout_cache_misses_total", Help: "Cache misses across both tiers"})
		UpstreamCalls = promauto.NewCounter(prometheus.CounterOpts{Name: "ytscout_upstream_calls_total", Help: "Upstream API call attempts"})
		UpstreamFailovers = promauto.NewCounter(prometheus.CounterOpts{Name: "ytscout_upstream_failovers_total", Help: "Credential failovers during upstream calls"})
		UpstreamFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "ytscout_upstream_failures_total", Help: "Upstream calls that exhausted every credential"})
		QuotaCharges = promauto.NewCounter(prometheus.CounterOpts{Name: "ytscout_quota_charges_total", Help: "Credits actually decremented"})
		QuotaDenials = promauto.NewCounter(prometheus.CounterOpts{Name: "ytscout_quota_denials_total", Help: "Requests refused for exhausted quota"})
		DiscoveryRuns = promauto.NewCounter(prometheus.CounterOpts{Name: "ytscout_discovery_runs_total", Help: "Discovery pipeline executions"})
		DiscoveryEmpty = promauto.NewCounter(prometheus.CounterOpts{Name: "ytscout_discovery_empty_total", Help: "Discovery runs that found no usable candidates"})
		AnalyzeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ytscout_analyze_duration_seconds", Help: "Analyze request duration seconds", Buckets: prometheus.DefBuckets})
		DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ytscout_discovery_duration_seconds", Help: "Discovery run duration seconds", Buckets: prometheus.DefBuckets})
		UpstreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ytscout_upstream_duration_seconds", Help: "Upstream call duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// Inc increments a counter if metrics are initialized. Packages below the
// orchestrator call this so they stay usable in tests without Init.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
