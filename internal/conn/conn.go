// Package conn implements the MySQL connection state machine: handshake and
// authentication, command dispatch, the streaming result-set pipeline,
// prepared statements and their per-connection cache, and transaction
// tracking. It is the core of mysqlgo; internal/pool builds a connection
// pool on top of it and internal/dsn/internal/value/internal/localinfile are
// its external collaborators.
package conn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mysqlgo/mysqlgo/internal/localinfile"
	"github.com/mysqlgo/mysqlgo/internal/wire"
)

// Returner is implemented by a connection pool so a Conn can hand itself
// back on Close instead of tearing down the socket. A Conn not owned by any
// pool has a nil Returner and Close tears down the socket directly.
type Returner interface {
	Return(c *Conn)
}

// MetricsHooks lets a caller observe statement-cache and row-throughput
// events without this package importing any particular metrics backend.
// Nil fields are simply never called.
type MetricsHooks struct {
	OnStmtCacheHit  func()
	OnStmtCacheMiss func()
	OnRowsRead      func(n int)
}

// Conn is one authenticated MySQL connection. The zero value is not usable;
// construct one with Dial.
//
// A Conn is not safe for concurrent use. The "streamless shell" pattern
// below enforces this at runtime rather than leaving it as an unchecked
// caller contract: every command moves the stream out of the Conn for the
// duration of the I/O and refuses a second caller that arrives while busy,
// rather than letting two goroutines interleave writes on the same socket.
type Conn struct {
	mu     sync.Mutex
	busy   bool
	stream *wire.Stream // nil while checked out for active I/O

	capabilities  uint32
	statusFlags   uint16
	serverVersion string
	connectionID  uint32

	maxAllowedPacket uint32
	waitTimeout      time.Duration
	lastIO           time.Time

	lastInsertID uint64
	affectedRows uint64
	warnings     uint16
	lastCommand  byte

	inTransaction  bool
	dirty          bool // executed a statement since the last clean point
	pendingResult  *ResultSet
	stmtCache      map[string]*InnerStmt

	pool Returner

	localInfile localinfile.Handler
	metrics     MetricsHooks

	closed bool
}

// Capabilities returns the capability flags negotiated during the
// handshake.
func (c *Conn) Capabilities() uint32 { return c.capabilities }

// ServerVersion returns the version string the server announced.
func (c *Conn) ServerVersion() string { return c.serverVersion }

// ConnectionID returns the server-assigned connection (thread) id.
func (c *Conn) ConnectionID() uint32 { return c.connectionID }

// InTransaction reports whether a transaction is currently open.
func (c *Conn) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTransaction
}

// LastInsertID returns the auto-generated id from the most recent OK
// packet, if any.
func (c *Conn) LastInsertID() uint64 { return c.lastInsertID }

// AffectedRows returns the affected-row count from the most recent OK
// packet.
func (c *Conn) AffectedRows() uint64 { return c.affectedRows }

// Dirty reports whether the connection has executed a statement since it
// was last returned to a clean state (start of transaction, commit,
// rollback, session reset, or MarkClean). The pool does not consult it; it
// decides on a rollback from InTransaction.
func (c *Conn) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// MarkClean clears the dirty flag.
func (c *Conn) MarkClean() {
	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
}

// SetPool installs the pool this connection is leased from, so Close can
// return it instead of tearing the socket down. Exported for internal/pool;
// it is the one place outside this package allowed to reach into a Conn's
// lifecycle.
func (c *Conn) SetPool(p Returner) { c.pool = p }

// acquireStream checks the stream out for exclusive use by the calling
// command, returning ErrConnBusy if another command is already in flight.
func (c *Conn) acquireStream() (*wire.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("conn: %w", ErrConnectionClosed)
	}
	if c.busy {
		return nil, ErrConnBusy
	}
	s := c.stream
	c.stream = nil
	c.busy = true
	return s, nil
}

// releaseStream returns the stream to the Conn after a command completes,
// successfully or not.
func (c *Conn) releaseStream(s *wire.Stream) {
	c.mu.Lock()
	c.stream = s
	c.busy = false
	c.lastIO = time.Now()
	c.mu.Unlock()
}

// IdleFor reports how long it has been since the last I/O on this
// connection, for pool TTL bookkeeping.
func (c *Conn) IdleFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastIO)
}

// WaitTimeout returns the server's @@wait_timeout, collected during
// bootstrap. The pool uses it as the idle eviction ceiling when no
// explicit conn_ttl is configured.
func (c *Conn) WaitTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitTimeout
}

// HasPendingResult reports whether the connection sits between result-set
// rows (a ResultSet was obtained but not fully drained or dropped).
func (c *Conn) HasPendingResult() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingResult != nil
}

// DrainPending fully drains any pending result set, returning the
// connection to a clean, reusable state. It is a no-op if there is no
// pending result. The pool calls this on a connection returned mid-stream
// before deciding whether to idle or recycle it.
func (c *Conn) DrainPending(ctx context.Context) error {
	c.mu.Lock()
	rs := c.pendingResult
	c.mu.Unlock()
	if rs == nil {
		return nil
	}
	return rs.Drop(ctx)
}

// Close ends the connection. If the connection belongs to a pool, Close
// hands it back to the pool instead of tearing down the socket; a pool that
// wants to actually disconnect a connection calls Disconnect.
func (c *Conn) Close() error {
	if c.pool != nil {
		c.pool.Return(c)
		return nil
	}
	return c.Disconnect()
}

// Disconnect sends COM_QUIT and closes the socket. If a command currently
// holds the stream, it sends nothing and leaves the socket open; it only
// marks the Conn closed, so later commands fail. This is the only place
// COM_QUIT is ever sent; there is no finalizer-driven
// disconnect path, so a forgotten Conn simply leaks until the process exits
// rather than racing a background send against reuse.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.stream
	c.stream = nil
	c.mu.Unlock()

	if s == nil {
		return nil // in-flight command owns the stream; it will observe closed on next use
	}
	slog.Debug("mysqlgo: closing connection", "connection_id", c.connectionID)
	return s.Close()
}
