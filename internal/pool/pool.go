// Package pool implements the connection pool: min/max bounds, idle
// tracking, a staged connection lifecycle (connecting / leased / idle /
// dropping / rolling back / disconnecting), TTL eviction, and cooperative
// wake-ups for borrowers waiting on a free connection.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/mysqlgo/mysqlgo/internal/conn"
	"github.com/mysqlgo/mysqlgo/internal/metrics"
)

// Config configures a Pool. Host and Port name the server; DialOptions carries
// credentials, the target schema, and init statements used for every
// connection the pool dials.
type Config struct {
	Host string
	Port uint16

	DialOptions conn.DialOptions
	DialTimeout time.Duration

	// Min is the number of idle connections the pool tries to keep ready;
	// a Return that would push idle above Min disconnects instead.
	Min int
	// Max bounds the total number of connections alive at once (leased +
	// idle + connecting + disconnecting + dropping + rolling back).
	Max int

	// TTL is the idle-duration ceiling past which a returned connection is
	// disconnected instead of recycled. Zero means "use the server's
	// @@wait_timeout", collected per-connection during its handshake.
	TTL time.Duration

	// Metrics, if set, receives gauge updates, acquire-latency
	// observations, and handshake/cache/row counters for this pool. Name
	// labels the series; it defaults to the dialed address if empty.
	Metrics *metrics.Collector
	Name    string
}

// Stats is a point-in-time snapshot of a Pool's internal bookkeeping,
// exposed for the debug API and metrics collector.
type Stats struct {
	Idle          int  `json:"idle"`
	Leased        int  `json:"leased"`
	Connecting    int  `json:"connecting"`
	Disconnecting int  `json:"disconnecting"`
	Dropping      int  `json:"dropping"`
	RollingBack   int  `json:"rolling_back"`
	Waiting       int  `json:"waiting"`
	Total         int  `json:"total"`
	Max           int  `json:"max"`
	Min           int  `json:"min"`
	Closed        bool `json:"closed"`
}

// Pool hands out authenticated *conn.Conn values, dialing new ones up to
// Max, recycling idle ones, and running returned-but-dirty connections
// through a drain or rollback step before they become eligible for reuse
// again. A Pool is safe for concurrent use by many goroutines.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg  Config
	addr string

	idle          []*conn.Conn
	leased        int
	connecting    int
	disconnecting int
	dropping      int
	rollback      int
	waiting       int
	closed        bool
}

// New constructs a Pool. It does not dial any connections up front; the
// first Acquire calls grow the pool toward Min lazily.
func New(cfg Config) *Pool {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port)))
	if cfg.Name == "" {
		cfg.Name = addr
	}
	p := &Pool{
		cfg:  cfg,
		addr: addr,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// total is the count of connections alive or being brought to life, used
// against cfg.Max. Caller must hold mu.
func (p *Pool) total() int {
	return len(p.idle) + p.leased + p.connecting + p.disconnecting + p.dropping + p.rollback
}

// publishStats pushes the current gauge snapshot to cfg.Metrics, if set.
func (p *Pool) publishStats() {
	if p.cfg.Metrics == nil {
		return
	}
	s := p.Stats()
	p.cfg.Metrics.UpdatePoolStats(p.cfg.Name, metrics.PoolStats{
		Idle:          s.Idle,
		Leased:        s.Leased,
		Connecting:    s.Connecting,
		Disconnecting: s.Disconnecting,
		Dropping:      s.Dropping,
		RollingBack:   s.RollingBack,
		Waiting:       s.Waiting,
		Total:         s.Total,
	})
}

// Acquire returns a leased connection, dialing a new one if the pool is
// under Max and no idle connection is available, or parking until one of
// those becomes true. ctx governs cancellation of the wait and also bounds
// any dial Acquire starts; it does not abort the background drain,
// rollback, or disconnect steps of other connections.
func (p *Pool) Acquire(ctx context.Context) (*conn.Conn, error) {
	start := time.Now()
	defer func() {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.AcquireDuration(p.cfg.Name, time.Since(start))
		}
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-stop:
		}
	}()

	p.mu.Lock()
	for {
		select {
		case <-ctx.Done():
			p.mu.Unlock()
			return nil, ctx.Err()
		default:
		}

		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolDisconnected
		}

		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.leased++
			p.mu.Unlock()
			p.publishStats()
			return c, nil
		}

		if p.total() < p.cfg.Max {
			p.connecting++
			p.mu.Unlock()
			p.publishStats()

			c, err := p.dial(ctx)

			p.mu.Lock()
			p.connecting--
			if err != nil {
				p.cond.Broadcast()
				p.mu.Unlock()
				p.publishStats()
				return nil, err
			}
			c.SetPool(p)
			p.leased++
			p.mu.Unlock()
			p.publishStats()
			return c, nil
		}

		p.waiting++
		p.cond.Wait()
		p.waiting--
	}
}

func (p *Pool) dial(ctx context.Context) (*conn.Conn, error) {
	dialCtx := ctx
	if p.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, p.cfg.DialTimeout)
		defer cancel()
	}

	opts := p.cfg.DialOptions
	if p.cfg.Metrics != nil {
		opts.Metrics = conn.MetricsHooks{
			OnStmtCacheHit:  func() { p.cfg.Metrics.StmtCacheHit(p.cfg.Name) },
			OnStmtCacheMiss: func() { p.cfg.Metrics.StmtCacheMiss(p.cfg.Name) },
			OnRowsRead:      func(n int) { p.cfg.Metrics.RowsRead(p.cfg.Name, n) },
		}
	}

	c, err := conn.Dial(dialCtx, p.addr, opts)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.HandshakeCompleted(p.cfg.Name, err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("pool: dialing %s: %w", p.addr, err)
	}
	return c, nil
}

// Return hands a leased connection back to the pool. It implements
// conn.Returner, so a leased Conn's Close calls straight into here instead
// of tearing down its socket. Return routes the connection through
// dropping/rollback/disconnecting depending on its state and age, then
// wakes one waiter.
func (p *Pool) Return(c *conn.Conn) {
	p.mu.Lock()
	p.leased--

	if p.closed {
		p.disconnecting++
		p.mu.Unlock()
		p.publishStats()
		go p.finishDisconnect(c)
		return
	}

	ceiling := p.cfg.TTL
	if ceiling <= 0 {
		ceiling = c.WaitTimeout()
	}

	switch {
	case ceiling > 0 && c.IdleFor() > ceiling:
		p.disconnecting++
		p.mu.Unlock()
		p.publishStats()
		go p.finishDisconnect(c)

	case c.HasPendingResult():
		p.dropping++
		p.mu.Unlock()
		p.publishStats()
		go p.finishDrop(c)

	case c.InTransaction():
		p.rollback++
		p.mu.Unlock()
		p.publishStats()
		go p.finishRollback(c)

	case len(p.idle) >= p.cfg.Min:
		p.disconnecting++
		p.mu.Unlock()
		p.publishStats()
		go p.finishDisconnect(c)

	default:
		p.idle = append(p.idle, c)
		p.cond.Signal()
		p.mu.Unlock()
		p.publishStats()
	}
}

// finishDisconnect closes c's socket and releases its pool slot. Always
// called on its own goroutine so a COM_QUIT round trip never blocks the
// caller of Return or Close.
func (p *Pool) finishDisconnect(c *conn.Conn) {
	if err := c.Disconnect(); err != nil {
		slog.Warn("pool: error disconnecting connection", "error", err)
	}
	p.mu.Lock()
	p.disconnecting--
	p.cond.Signal()
	p.mu.Unlock()
	p.publishStats()
}

// finishDrop drains a connection's unconsumed result set, then re-enters
// Return's decision tree with a now-clean connection.
func (p *Pool) finishDrop(c *conn.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.DrainPending(ctx); err != nil {
		slog.Warn("pool: error draining returned connection, disconnecting", "error", err)
		p.mu.Lock()
		p.dropping--
		p.disconnecting++
		p.mu.Unlock()
		p.finishDisconnect(c)
		return
	}
	p.mu.Lock()
	p.dropping--
	p.leased++ // Return counts c out of leased again
	p.mu.Unlock()
	p.Return(c)
}

// finishRollback issues ROLLBACK on an abandoned transaction, then
// re-enters Return's decision tree.
func (p *Pool) finishRollback(c *conn.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Rollback(ctx); err != nil {
		slog.Warn("pool: error rolling back returned connection, disconnecting", "error", err)
		p.mu.Lock()
		p.rollback--
		p.disconnecting++
		p.mu.Unlock()
		p.finishDisconnect(c)
		return
	}
	p.mu.Lock()
	p.rollback--
	p.leased++ // Return counts c out of leased again
	p.mu.Unlock()
	p.Return(c)
}

// Stats returns a snapshot of the pool's current bookkeeping.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Idle:          len(p.idle),
		Leased:        p.leased,
		Connecting:    p.connecting,
		Disconnecting: p.disconnecting,
		Dropping:      p.dropping,
		RollingBack:   p.rollback,
		Waiting:       p.waiting,
		Total:         p.total(),
		Max:           p.cfg.Max,
		Min:           p.cfg.Min,
		Closed:        p.closed,
	}
}

// Close marks the pool closed, moves every idle connection to
// disconnecting, and fails all current and future waiters with
// ErrPoolDisconnected. It returns once every background collection
// (connecting/disconnecting/dropping/rollback) has drained.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.disconnecting += len(idle)
	p.cond.Broadcast()
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range idle {
		wg.Add(1)
		go func(c *conn.Conn) {
			defer wg.Done()
			p.finishDisconnect(c)
		}(c)
	}
	wg.Wait()

	for {
		p.mu.Lock()
		pending := p.connecting + p.disconnecting + p.dropping + p.rollback
		p.mu.Unlock()
		if pending == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
