package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the tracker.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	remoteErrors    *prometheus.CounterVec
	syncCycles      *prometheus.CounterVec
	replays         *prometheus.CounterVec
	pendingDepth    prometheus.Gauge
	probes          *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. A private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fintrack_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		remoteErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_remote_errors_total",
				Help: "Failed remote store calls by operation and failure kind.",
			},
			[]string{"op", "kind"},
		),
		syncCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_sync_cycles_total",
				Help: "Synchronization cycles by result.",
			},
			[]string{"result"},
		),
		replays: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_replayed_mutations_total",
				Help: "Pending mutation replays by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		pendingDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fintrack_pending_queue_depth",
				Help: "Current number of unconfirmed mutations in the queue.",
			},
		),
		probes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_connectivity_probes_total",
				Help: "Connectivity probe outcomes.",
			},
			[]string{"state"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrRemoteError increments the remote error counter.
func (m *Metrics) IncrRemoteError(op, kind string) {
	m.remoteErrors.WithLabelValues(op, kind).Inc()
}

// IncrSyncCycle increments the sync cycle counter with a result label
// (success, fetch_failed, noop).
func (m *Metrics) IncrSyncCycle(result string) {
	m.syncCycles.WithLabelValues(result).Inc()
}

// IncrReplay increments the replay counter (outcome: confirmed, failed).
func (m *Metrics) IncrReplay(action, outcome string) {
	m.replays.WithLabelValues(action, outcome).Inc()
}

// SetPendingDepth records the current pending queue length.
func (m *Metrics) SetPendingDepth(n int) {
	m.pendingDepth.Set(float64(n))
}

// IncrProbe increments the connectivity probe counter (state: online, offline).
func (m *Metrics) IncrProbe(state string) {
	m.probes.WithLabelValues(state).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// SyncStats is a snapshot of sync-related counters for the agent's
// status endpoint.
type SyncStats struct {
	CyclesSucceeded    int64 `json:"cyclesSucceeded"`
	CyclesFetchFailed  int64 `json:"cyclesFetchFailed"`
	CyclesNoop         int64 `json:"cyclesNoop"`
	MutationsConfirmed int64 `json:"mutationsConfirmed"`
	MutationsFailed    int64 `json:"mutationsFailed"`
	ProbesOnline       int64 `json:"probesOnline"`
	ProbesOffline      int64 `json:"probesOffline"`
	ProbeCacheHits     int64 `json:"probeCacheHits"`
	ProbeCacheMisses   int64 `json:"probeCacheMisses"`
}

// GetSyncStats gathers current counter values. Prometheus counters are
// cumulative, so these are totals since process start.
func (m *Metrics) GetSyncStats() SyncStats {
	confirmed := getCounterValue(m.replays, "create", "confirmed") +
		getCounterValue(m.replays, "update", "confirmed") +
		getCounterValue(m.replays, "delete", "confirmed")
	failed := getCounterValue(m.replays, "create", "failed") +
		getCounterValue(m.replays, "update", "failed") +
		getCounterValue(m.replays, "delete", "failed")

	return SyncStats{
		CyclesSucceeded:    int64(getCounterValue(m.syncCycles, "success")),
		CyclesFetchFailed:  int64(getCounterValue(m.syncCycles, "fetch_failed")),
		CyclesNoop:         int64(getCounterValue(m.syncCycles, "noop")),
		MutationsConfirmed: int64(confirmed),
		MutationsFailed:    int64(failed),
		ProbesOnline:       int64(getCounterValue(m.probes, "online")),
		ProbesOffline:      int64(getCounterValue(m.probes, "offline")),
		ProbeCacheHits:     int64(getCounterValue(m.cacheHits, "probe")),
		ProbeCacheMisses:   int64(getCounterValue(m.cacheMisses, "probe")),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for
// the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
