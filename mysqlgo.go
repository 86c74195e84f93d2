// Package mysqlgo is an asynchronous-style client for the MySQL wire
// protocol: handshake and authentication, text and binary result-set
// streaming, prepared statements with a per-connection cache, transactions,
// and a connection pool with TTL eviction and dirty-connection cleanup.
//
// "Asynchronous" here means the idiomatic Go shape: every blocking call
// takes a context.Context, and concurrency comes from running calls on
// separate goroutines rather than from an event loop.
package mysqlgo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/mysqlgo/mysqlgo/internal/api"
	"github.com/mysqlgo/mysqlgo/internal/conn"
	"github.com/mysqlgo/mysqlgo/internal/dsn"
	"github.com/mysqlgo/mysqlgo/internal/localinfile"
	"github.com/mysqlgo/mysqlgo/internal/metrics"
	"github.com/mysqlgo/mysqlgo/internal/pool"
)

// DebugServer is the optional HTTP surface a DB can expose for its own pool
// stats, a Prometheus /metrics handler, and a small dashboard page.
type DebugServer = api.Server

// Metrics is a Prometheus collector for one or more DBs. Pass the same
// Collector to every DB in a process that should share one registry.
type Metrics = metrics.Collector

// NewMetrics creates a Collector registered on a fresh prometheus.Registry.
func NewMetrics() *Metrics { return metrics.New() }

// Re-exported error values so callers never need to import the internal
// packages directly to match with errors.Is/errors.As.
var (
	ErrPoolDisconnected    = pool.ErrPoolDisconnected
	ErrConnectionClosed    = conn.ErrConnectionClosed
	ErrPacketOutOfOrder    = conn.ErrPacketOutOfOrder
	ErrUnexpectedPacket    = conn.ErrUnexpectedPacket
	ErrNoActiveTransaction = conn.ErrNoActiveTransaction
	ErrTransactionActive   = conn.ErrTransactionActive
)

// ServerError is returned for every ERR_Packet the server sends back.
type ServerError = conn.ErrServer

// TransactionMode selects the form of START TRANSACTION a Conn issues.
type TransactionMode = conn.TransactionMode

// Transaction modes accepted by Conn.StartTransaction.
const (
	TxDefault            = conn.TxDefault
	TxConsistentSnapshot = conn.TxConsistentSnapshot
	TxReadOnly           = conn.TxReadOnly
	TxReadWrite          = conn.TxReadWrite
)

// Conn is a single leased connection, handed out by DB.Acquire. It must be
// returned with Close so the pool can recycle
// or clean it up; a Conn obtained from a DB is not safe for concurrent use
// by more than one goroutine at a time.
type Conn = conn.Conn

// ResultSet is a lazily-read, forward-only cursor over one or more result
// sets produced by a query or a prepared-statement execution.
type ResultSet = conn.ResultSet

// Row is one row of a ResultSet: ordered values sharing that ResultSet's
// column metadata.
type Row = conn.Row

// Stmt is a server-side prepared statement cached on its owning Conn.
type Stmt = conn.InnerStmt

// Stats is a point-in-time snapshot of a DB's pool bookkeeping.
type Stats = pool.Stats

// Options configures a DB beyond what the DSN URL carries: init
// statements, a connection idle-TTL override, and a LOCAL INFILE handler.
// These have no URL query parameter of their own.
type Options struct {
	// InitStatements run, in order, on every new connection right after
	// authentication and bootstrap, before it is handed to any caller.
	InitStatements []string

	// ConnTTL bounds how long a connection may sit idle before the pool
	// disconnects it instead of recycling it. Zero means "use the
	// server's @@wait_timeout," collected per connection at handshake.
	ConnTTL time.Duration

	// DialTimeout bounds the TCP dial for each new connection. Zero means
	// no explicit timeout beyond the context passed to Acquire/dial calls.
	DialTimeout time.Duration

	// LocalInfileHandler serves LOCAL INFILE requests from the server.
	// Nil refuses every request with an empty payload.
	LocalInfileHandler localinfile.Handler

	// Metrics, if set, receives this DB's pool gauges, acquire-latency
	// histogram, and handshake/cache/row counters. Name labels its series on
	// the shared registry; it defaults to the DSN's host:port.
	Metrics *Metrics
	Name    string
}

// DB is a connection pool bound to one mysql:// DSN. The zero value is not
// usable; construct one with Open.
type DB struct {
	pool    *pool.Pool
	dsn     dsn.Options
	name    string
	metrics *Metrics
}

// Open parses rawURL (mysql://[user[:pass]@]host[:port]/[db][?pool_min=..&pool_max=..])
// and returns a DB backed by a connection pool. No connection is dialed
// until the first Acquire.
func Open(rawURL string, opts Options) (*DB, error) {
	parsed, err := dsn.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("mysqlgo: %w", err)
	}

	p := pool.New(pool.Config{
		Host: parsed.Host,
		Port: parsed.Port,
		DialOptions: conn.DialOptions{
			Username:           parsed.User,
			Password:           parsed.Password,
			Database:           parsed.Database,
			InitStatements:     opts.InitStatements,
			LocalInfileHandler: opts.LocalInfileHandler,
			ConnectTimeout:     opts.DialTimeout,
		},
		DialTimeout: opts.DialTimeout,
		Min:         parsed.PoolMin,
		Max:         parsed.PoolMax,
		TTL:         opts.ConnTTL,
		Metrics:     opts.Metrics,
		Name:        opts.Name,
	})

	name := opts.Name
	if name == "" {
		name = net.JoinHostPort(parsed.Host, strconv.Itoa(int(parsed.Port)))
	}

	return &DB{pool: p, dsn: parsed, name: name, metrics: opts.Metrics}, nil
}

// ListenDebug starts a DebugServer bound to addr, exposing this DB's pool
// stats at /stats, a dashboard at /, and Prometheus series at /metrics if
// Options.Metrics was set when the DB was opened. The caller is responsible
// for calling Stop on the returned server during shutdown.
func (db *DB) ListenDebug(addr string) (*DebugServer, error) {
	srv := api.NewServer(db.name, db.pool, db.metrics)
	if err := srv.Start(addr); err != nil {
		return nil, err
	}
	return srv, nil
}

// Acquire leases a connection from the pool, dialing a new one if needed
// and the pool is under its max, or parking until one is returned.
func (db *DB) Acquire(ctx context.Context) (*Conn, error) {
	return db.pool.Acquire(ctx)
}

// Query leases a connection, runs sql, and returns the result set together
// with the connection that produced it. Callers must fully consume or Drop
// the result set, then Close the connection to return it to the pool — or
// use Exec/QueryRows for the common case where that bookkeeping is
// unwanted.
func (db *DB) Query(ctx context.Context, sql string) (*Conn, *ResultSet, error) {
	c, err := db.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	rs, err := c.Query(ctx, sql)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return c, rs, nil
}

// Exec leases a connection, runs sql, drains any result set it produces,
// returns the connection to the pool, and reports the affected-row count.
func (db *DB) Exec(ctx context.Context, sql string) (affectedRows uint64, err error) {
	c, err := db.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	rs, err := c.Query(ctx, sql)
	if err != nil {
		return 0, err
	}
	if err := rs.Drop(ctx); err != nil {
		return 0, err
	}
	return rs.AffectedRows(), nil
}

// QueryRows leases a connection, runs sql, collects every row of its
// (single) result set, returns the connection to the pool, and hands back
// the rows.
func (db *DB) QueryRows(ctx context.Context, sql string) ([]*Row, error) {
	c, err := db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	rs, err := c.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return rs.Collect(ctx)
}

// Prepare leases a connection and prepares sql on it, returning both the
// statement and its owning connection. The caller is responsible for
// closing the connection once done with the statement.
func (db *DB) Prepare(ctx context.Context, sql string) (*Conn, *Stmt, error) {
	c, err := db.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	stmt, err := c.Prepare(ctx, sql)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return c, stmt, nil
}

// Stats returns a snapshot of the pool's current bookkeeping.
func (db *DB) Stats() Stats {
	return db.pool.Stats()
}

// Close drains idle connections and fails every pending and future Acquire
// with ErrPoolDisconnected. It blocks until every in-flight background
// cleanup (dialing, disconnecting, draining, rolling back) has finished.
func (db *DB) Close() {
	db.pool.Close()
}
