package pool

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/mysqlgo/mysqlgo/internal/conn"
)

func newTestPool(t *testing.T, min, max int, ttl time.Duration) (*Pool, *fakeMySQLServer) {
	t.Helper()
	srv := newFakeMySQLServer(t)
	host, port, err := splitHostPort(srv.addr())
	if err != nil {
		t.Fatalf("splitting fake server addr: %v", err)
	}
	p := New(Config{
		Host: host,
		Port: port,
		DialOptions: conn.DialOptions{
			Username:       "root",
			Password:       "secret",
			ConnectTimeout: 2 * time.Second,
		},
		DialTimeout: 2 * time.Second,
		Min:         min,
		Max:         max,
		TTL:         ttl,
	})
	t.Cleanup(p.Close)
	return p, srv
}

// splitHostPort exists only so tests can feed the *fakeMySQLServer's
// "127.0.0.1:PORT" address into the Host/Port fields Config expects.
func splitHostPort(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, err
	}
	return host, uint16(port), nil
}

// Basic acquire/return round trip: an idle connection is reused rather
// than re-dialed.
func TestPool_AcquireReturnReusesIdleConnection(t *testing.T) {
	p, _ := newTestPool(t, 1, 2, time.Hour)
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitForStats(t, p, func(s Stats) bool { return s.Idle == 1 })

	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if c2 != c {
		t.Fatal("expected the idle connection to be reused, got a different one")
	}
	c2.Close()
}

// Scenario 4: pool bounds. pool_max=2: two concurrent acquires both
// succeed; a third parks until one is released.
func TestPool_MaxBoundsAndWaiters(t *testing.T) {
	p, _ := newTestPool(t, 1, 2, time.Hour)
	ctx := context.Background()

	c1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if stats := p.Stats(); stats.Idle != 0 || stats.Leased != 2 {
		t.Fatalf("expected idle=0 leased=2 while both held, got %+v", stats)
	}

	third := make(chan *conn.Conn, 1)
	thirdErr := make(chan error, 1)
	go func() {
		c, err := p.Acquire(ctx)
		if err != nil {
			thirdErr <- err
			return
		}
		third <- c
	}()

	waitForStats(t, p, func(s Stats) bool { return s.Waiting == 1 })

	if err := c1.Close(); err != nil {
		t.Fatalf("releasing c1: %v", err)
	}

	select {
	case c := <-third:
		if c != c1 {
			t.Fatal("expected the third acquire to receive the just-released connection")
		}
		c.Close()
	case err := <-thirdErr:
		t.Fatalf("third acquire failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("third acquire never unparked")
	}
	c2.Close()
}

// Scenario 5: a connection returned with an unconsumed result set is
// drained, then becomes idle.
func TestPool_DirtyReturnDrainsPendingResult(t *testing.T) {
	p, _ := newTestPool(t, 1, 2, time.Hour)
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := c.Query(ctx, "SELECT 1"); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !c.HasPendingResult() {
		t.Fatal("expected a pending result before Close")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	waitForStats(t, p, func(s Stats) bool { return s.Idle == 1 && s.Dropping == 0 })
}

// Scenario 6: a connection returned with an open transaction is rolled
// back, then becomes idle with in_transaction cleared.
func TestPool_AbandonedTransactionRollsBack(t *testing.T) {
	p, _ := newTestPool(t, 1, 2, time.Hour)
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := c.StartTransaction(ctx, conn.TxDefault); err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	waitForStats(t, p, func(s Stats) bool { return s.Idle == 1 && s.RollingBack == 0 })

	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if c2.InTransaction() {
		t.Fatal("expected in_transaction cleared after pool-driven rollback")
	}
	c2.Close()
}

// Scenario 7: TTL eviction. With a 1ns TTL even a freshly returned
// connection exceeds the ceiling and is disconnected, not idled. (A zero
// TTL cannot express this: Config treats zero as "use @@wait_timeout".)
func TestPool_TTLEviction(t *testing.T) {
	p, _ := newTestPool(t, 0, 2, time.Nanosecond)
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	waitForStats(t, p, func(s Stats) bool { return s.Total == 0 })
	if stats := p.Stats(); stats.Idle != 0 {
		t.Fatalf("expected no idle connections after TTL eviction, got %+v", stats)
	}
}

func TestPool_AcquireAfterCloseFails(t *testing.T) {
	p, _ := newTestPool(t, 0, 2, time.Hour)
	p.Close()

	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrPoolDisconnected) {
		t.Fatalf("expected ErrPoolDisconnected, got %v", err)
	}
}

func TestPool_IdleNeverExceedsMin(t *testing.T) {
	p, _ := newTestPool(t, 1, 3, time.Hour)
	ctx := context.Background()

	conns := make([]*conn.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		c, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		conns = append(conns, c)
	}
	for _, c := range conns {
		c.Close()
	}

	waitForStats(t, p, func(s Stats) bool { return s.Total == s.Idle && s.Disconnecting == 0 })
	if stats := p.Stats(); stats.Idle > stats.Min {
		t.Fatalf("expected idle <= min(%d), got %+v", stats.Min, stats)
	}
}

func TestPool_AcquireContextCancelUnparksWaiter(t *testing.T) {
	p, _ := newTestPool(t, 0, 1, time.Hour)
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer c.Close()

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(cancelCtx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func waitForStats(t *testing.T, p *Pool, ok func(Stats) bool) Stats {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		s := p.Stats()
		if ok(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for pool stats condition, last stats: %+v", s)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
