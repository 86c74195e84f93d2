package conn

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/mysqlgo/mysqlgo/internal/localinfile"
	"github.com/mysqlgo/mysqlgo/internal/wire"
)

// DialOptions carries everything Dial needs beyond the bare address:
// credentials, the target schema, and the statements to run once the
// handshake completes.
type DialOptions struct {
	Username string
	Password string
	Database string

	// InitStatements run in order immediately after authentication, before
	// the connection is handed to the caller. A failure aborts the dial.
	InitStatements []string

	// LocalInfileHandler serves LOCAL INFILE requests; nil means every
	// request is refused (internal/localinfile.Refuse's behavior).
	LocalInfileHandler localinfile.Handler

	// ConnectTimeout bounds the TCP dial itself; a deadline on the ctx
	// passed to Dial bounds the handshake and authentication exchange, and
	// is cleared before the bootstrap queries and init statements run.
	ConnectTimeout time.Duration

	// Metrics, if set, is notified of statement-cache and row-throughput
	// events on the resulting Conn.
	Metrics MetricsHooks
}

// Dial opens a TCP connection to addr (host:port), performs the MySQL
// handshake and mysql_native_password authentication, runs any configured
// init statements, and returns a ready-to-use Conn.
func Dial(ctx context.Context, addr string, opts DialOptions) (*Conn, error) {
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("conn: dial %s: %w", addr, err)
	}
	return newConnFromNetConn(ctx, netConn, opts)
}

// newConnFromNetConn runs the handshake and init statements over an
// already-established net.Conn. Dial uses it after a TCP dial; tests use it
// directly over a net.Pipe() to drive a fake server without touching the
// network.
func newConnFromNetConn(ctx context.Context, netConn net.Conn, opts DialOptions) (*Conn, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(dl)
	}

	stream := wire.NewStream(netConn)

	handler := opts.LocalInfileHandler
	if handler == nil {
		handler = localinfile.Refuse{}
	}

	c := &Conn{
		stream:      stream,
		localInfile: handler,
		metrics:     opts.Metrics,
		lastIO:      time.Now(),
		stmtCache:   make(map[string]*InnerStmt),
	}

	if err := c.performHandshake(opts); err != nil {
		_ = netConn.Close()
		return nil, err
	}

	_ = netConn.SetDeadline(time.Time{})

	if err := c.bootstrap(ctx); err != nil {
		_ = c.Disconnect()
		return nil, err
	}

	// Iterate the configured init statements by plain index. The order in
	// which they run is the order the caller supplied, nothing cleverer.
	for i := range opts.InitStatements {
		if _, err := c.Query(ctx, opts.InitStatements[i]); err != nil {
			_ = c.Disconnect()
			return nil, fmt.Errorf("conn: init statement %d: %w", i, err)
		}
	}

	return c, nil
}

// defaultMaxAllowedPacket is used when @@max_allowed_packet reports NULL,
// which happens on some sandboxed/embedded servers.
const defaultMaxAllowedPacket = 65536

// bootstrap runs the two query round-trips a freshly authenticated
// connection needs: session variables the pool and framing layers need
// before any user statement runs.
func (c *Conn) bootstrap(ctx context.Context) error {
	maxPacket, err := c.queryScalarUint64(ctx, "SELECT @@max_allowed_packet")
	if err != nil {
		return fmt.Errorf("conn: bootstrap max_allowed_packet: %w", err)
	}
	if maxPacket == 0 {
		maxPacket = defaultMaxAllowedPacket
	}
	c.maxAllowedPacket = uint32(maxPacket)

	waitTimeout, err := c.queryScalarUint64(ctx, "SELECT @@wait_timeout")
	if err != nil {
		return fmt.Errorf("conn: bootstrap wait_timeout: %w", err)
	}
	c.waitTimeout = time.Duration(waitTimeout) * time.Second

	return nil
}

// queryScalarUint64 runs sql, which must produce exactly one row with one
// column, and returns that column as a uint64. Used only for the session
// variable probes above.
func (c *Conn) queryScalarUint64(ctx context.Context, sql string) (uint64, error) {
	rs, err := c.Query(ctx, sql)
	if err != nil {
		return 0, err
	}
	row, err := rs.NextRow(ctx)
	if err != nil {
		return 0, err
	}
	defer rs.Drop(ctx)
	if row == nil || len(row.Values) == 0 || row.Values[0] == nil {
		return 0, nil
	}
	switch v := row.Values[0].(type) {
	case uint64:
		return v, nil
	case int64:
		return uint64(v), nil
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("conn: parsing scalar %q: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("conn: %w: unexpected scalar type %T", ErrUnexpectedPacket, v)
	}
}

func (c *Conn) performHandshake(opts DialOptions) error {
	pkt, err := c.stream.ReadPacket()
	if err != nil {
		return fmt.Errorf("conn: reading handshake: %w", err)
	}
	hs, err := wire.ParseHandshake(pkt)
	if err != nil {
		return fmt.Errorf("conn: parsing handshake: %w", err)
	}

	capabilities := wire.BaseClientCapabilities
	if opts.Database != "" {
		capabilities |= wire.ClientConnectWithDB
	}
	capabilities &= hs.Capabilities | wire.ClientProtocol41 | wire.ClientSecureConnection |
		wire.ClientLongPassword | wire.ClientTransactions | wire.ClientLocalFiles |
		wire.ClientMultiStatements | wire.ClientMultiResults | wire.ClientPSMultiResults |
		wire.ClientPluginAuth | wire.ClientConnectWithDB | wire.ClientDeprecateEOF

	authResponse := wire.ScrambleNativePassword(opts.Password, hs.AuthData)

	resp := wire.BuildHandshakeResponse41(wire.HandshakeResponseOptions{
		Capabilities:   capabilities,
		MaxPacketSize:  wire.MaxPacketSize,
		CharacterSet:   0x21, // utf8_general_ci
		Username:       opts.Username,
		AuthResponse:   authResponse,
		Database:       opts.Database,
		AuthPluginName: "mysql_native_password",
	})

	if err := c.stream.WritePacket(resp); err != nil {
		return fmt.Errorf("conn: writing handshake response: %w", err)
	}

	reply, err := c.stream.ReadPacket()
	if err != nil {
		return fmt.Errorf("conn: reading auth reply: %w", err)
	}

	switch {
	case wire.IsErr(reply):
		ep, perr := wire.ParseErr(reply, capabilities)
		if perr != nil {
			return fmt.Errorf("conn: parsing auth error: %w", perr)
		}
		return newErrServer(ep)
	case wire.IsOK(reply, capabilities):
		ok, perr := wire.ParseOK(reply, capabilities)
		if perr != nil {
			return fmt.Errorf("conn: parsing auth OK: %w", perr)
		}
		c.capabilities = capabilities
		c.statusFlags = ok.StatusFlags
		c.serverVersion = hs.ServerVersion
		c.connectionID = hs.ConnectionID
		c.maxAllowedPacket = wire.MaxPacketSize
		c.stream.ResetSeq()
		return nil
	default:
		return fmt.Errorf("conn: %w: unexpected auth reply", ErrUnexpectedPacket)
	}
}
