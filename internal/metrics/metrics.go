// Package metrics exposes a Prometheus Collector for a single mysqlgo
// pool: connection-state gauges, acquire latency, handshake/auth outcomes,
// row throughput, and statement-cache hit/miss counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every Prometheus metric mysqlgo reports for one pool
// instance, labeled by the pool's target address so a process running more
// than one DB can still tell them apart on one registry.
type Collector struct {
	Registry *prometheus.Registry

	connectionsIdle          *prometheus.GaugeVec
	connectionsLeased        *prometheus.GaugeVec
	connectionsConnecting    *prometheus.GaugeVec
	connectionsDisconnecting *prometheus.GaugeVec
	connectionsDropping      *prometheus.GaugeVec
	connectionsRollingBack   *prometheus.GaugeVec
	connectionsWaiting       *prometheus.GaugeVec
	connectionsTotal         *prometheus.GaugeVec

	acquireDuration *prometheus.HistogramVec
	handshakesTotal *prometheus.CounterVec

	rowsRead *prometheus.CounterVec

	stmtCacheHits   *prometheus.CounterVec
	stmtCacheMisses *prometheus.CounterVec
}

// New creates and registers every metric on a fresh registry. Safe to call
// more than once (e.g. in tests, or one registry per pool) since each call
// produces an independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsIdle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlgo_connections_idle",
				Help: "Connections currently idle in the pool",
			},
			[]string{"pool"},
		),
		connectionsLeased: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlgo_connections_leased",
				Help: "Connections currently leased to a caller",
			},
			[]string{"pool"},
		),
		connectionsConnecting: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlgo_connections_connecting",
				Help: "Connections currently performing the handshake",
			},
			[]string{"pool"},
		),
		connectionsDisconnecting: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlgo_connections_disconnecting",
				Help: "Connections currently sending COM_QUIT and closing",
			},
			[]string{"pool"},
		),
		connectionsDropping: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlgo_connections_dropping",
				Help: "Connections currently draining an unconsumed result set",
			},
			[]string{"pool"},
		),
		connectionsRollingBack: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlgo_connections_rolling_back",
				Help: "Connections currently rolling back an abandoned transaction",
			},
			[]string{"pool"},
		),
		connectionsWaiting: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlgo_connections_waiting",
				Help: "Goroutines currently parked waiting for a connection",
			},
			[]string{"pool"},
		),
		connectionsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlgo_connections_total",
				Help: "Total connections alive or being brought to life",
			},
			[]string{"pool"},
		),
		acquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mysqlgo_acquire_duration_seconds",
				Help:    "Time spent waiting inside Pool.Acquire",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"pool"},
		),
		handshakesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlgo_handshakes_total",
				Help: "Completed connection handshakes by outcome",
			},
			[]string{"pool", "outcome"},
		),
		rowsRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlgo_rows_read_total",
				Help: "Rows decoded from result sets",
			},
			[]string{"pool"},
		),
		stmtCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlgo_stmt_cache_hits_total",
				Help: "Prepare calls served from the per-connection statement cache",
			},
			[]string{"pool"},
		),
		stmtCacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlgo_stmt_cache_misses_total",
				Help: "Prepare calls that issued a COM_STMT_PREPARE",
			},
			[]string{"pool"},
		),
	}

	reg.MustRegister(
		c.connectionsIdle,
		c.connectionsLeased,
		c.connectionsConnecting,
		c.connectionsDisconnecting,
		c.connectionsDropping,
		c.connectionsRollingBack,
		c.connectionsWaiting,
		c.connectionsTotal,
		c.acquireDuration,
		c.handshakesTotal,
		c.rowsRead,
		c.stmtCacheHits,
		c.stmtCacheMisses,
	)

	return c
}

// PoolStats is the subset of pool.Stats the collector needs; defined here
// instead of importing internal/pool to avoid a metrics->pool->metrics
// import cycle risk as the two packages evolve.
type PoolStats struct {
	Idle, Leased, Connecting, Disconnecting, Dropping, RollingBack, Waiting, Total int
}

// UpdatePoolStats sets every connection-state gauge from a snapshot.
func (c *Collector) UpdatePoolStats(pool string, s PoolStats) {
	c.connectionsIdle.WithLabelValues(pool).Set(float64(s.Idle))
	c.connectionsLeased.WithLabelValues(pool).Set(float64(s.Leased))
	c.connectionsConnecting.WithLabelValues(pool).Set(float64(s.Connecting))
	c.connectionsDisconnecting.WithLabelValues(pool).Set(float64(s.Disconnecting))
	c.connectionsDropping.WithLabelValues(pool).Set(float64(s.Dropping))
	c.connectionsRollingBack.WithLabelValues(pool).Set(float64(s.RollingBack))
	c.connectionsWaiting.WithLabelValues(pool).Set(float64(s.Waiting))
	c.connectionsTotal.WithLabelValues(pool).Set(float64(s.Total))
}

// AcquireDuration observes the time spent waiting for Pool.Acquire.
func (c *Collector) AcquireDuration(pool string, d time.Duration) {
	c.acquireDuration.WithLabelValues(pool).Observe(d.Seconds())
}

// HandshakeCompleted increments the handshake counter for the given
// outcome ("ok" or "error").
func (c *Collector) HandshakeCompleted(pool string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.handshakesTotal.WithLabelValues(pool, outcome).Inc()
}

// RowsRead adds n to the pool's row-throughput counter.
func (c *Collector) RowsRead(pool string, n int) {
	c.rowsRead.WithLabelValues(pool).Add(float64(n))
}

// StmtCacheHit increments the statement-cache hit counter.
func (c *Collector) StmtCacheHit(pool string) {
	c.stmtCacheHits.WithLabelValues(pool).Inc()
}

// StmtCacheMiss increments the statement-cache miss counter.
func (c *Collector) StmtCacheMiss(pool string) {
	c.stmtCacheMisses.WithLabelValues(pool).Inc()
}

// Remove deletes every metric series for the given pool label, for use
// when a pool is closed and its process keeps running (e.g. in tests that
// open many short-lived pools against one shared registry).
func (c *Collector) Remove(pool string) {
	c.connectionsIdle.DeleteLabelValues(pool)
	c.connectionsLeased.DeleteLabelValues(pool)
	c.connectionsConnecting.DeleteLabelValues(pool)
	c.connectionsDisconnecting.DeleteLabelValues(pool)
	c.connectionsDropping.DeleteLabelValues(pool)
	c.connectionsRollingBack.DeleteLabelValues(pool)
	c.connectionsWaiting.DeleteLabelValues(pool)
	c.connectionsTotal.DeleteLabelValues(pool)
	c.rowsRead.DeleteLabelValues(pool)
	c.stmtCacheHits.DeleteLabelValues(pool)
	c.stmtCacheMisses.DeleteLabelValues(pool)
	c.handshakesTotal.DeletePartialMatch(prometheus.Labels{"pool": pool})
	c.acquireDuration.DeletePartialMatch(prometheus.Labels{"pool": pool})
}
