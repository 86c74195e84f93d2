package conn

import (
	"context"
	"fmt"

	"github.com/mysqlgo/mysqlgo/internal/value"
	"github.com/mysqlgo/mysqlgo/internal/wire"
)

// InnerStmt is a server-side prepared statement bound to one Conn. It is
// never constructed directly by callers; obtain one through Conn.Prepare,
// which transparently serves a cached statement when the (post-rewrite)
// SQL text has already been prepared on this connection.
type InnerStmt struct {
	conn        *Conn
	id          uint32
	paramCount  uint16
	columnCount uint16
	paramNames  []string
	sql         string
	closed      bool
}

// ParamCount returns the number of "?" placeholders the server reported.
func (s *InnerStmt) ParamCount() int { return int(s.paramCount) }

// Prepare returns a cached InnerStmt for sql if this connection has already
// prepared its rewritten form, or issues COM_STMT_PREPARE and caches the
// result. Named placeholders (":name") are rewritten to positional "?"
// markers before either the cache lookup or the wire request, so the cache
// key is always the post-rewrite text — re-preparing the same named-param
// statement twice is a guaranteed cache hit.
func (c *Conn) Prepare(ctx context.Context, sql string) (*InnerStmt, error) {
	rewritten, names, err := rewriteNamedParams(sql)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if cached, ok := c.stmtCache[rewritten]; ok && !cached.closed {
		// The post-rewrite SQL text matches, but the placeholders may have
		// been renamed since this text was last prepared (e.g. ":id" in one
		// call, ":user_id" in another, both rewriting to the same "?"
		// sequence) — refresh the cached param names so resolveArgs maps
		// this call's named args correctly.
		cached.paramNames = names
		c.mu.Unlock()
		if c.metrics.OnStmtCacheHit != nil {
			c.metrics.OnStmtCacheHit()
		}
		return cached, nil
	}
	c.mu.Unlock()
	if c.metrics.OnStmtCacheMiss != nil {
		c.metrics.OnStmtCacheMiss()
	}

	stream, err := c.acquireStream()
	if err != nil {
		return nil, err
	}
	defer c.releaseStream(stream)

	stream.ResetSeq()
	payload := append([]byte{wire.ComStmtPrepare}, []byte(rewritten)...)
	if err := stream.WritePacket(payload); err != nil {
		return nil, fmt.Errorf("conn: writing prepare: %w", err)
	}
	c.lastCommand = wire.ComStmtPrepare

	pkt, err := stream.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("conn: reading prepare response: %w", err)
	}
	if wire.IsErr(pkt) {
		ep, perr := wire.ParseErr(pkt, c.capabilities)
		if perr != nil {
			return nil, fmt.Errorf("conn: parsing prepare error: %w", perr)
		}
		return nil, newErrServer(ep)
	}
	if len(pkt) < 12 {
		return nil, fmt.Errorf("conn: %w: short COM_STMT_PREPARE_OK", ErrUnexpectedPacket)
	}

	stmt := &InnerStmt{conn: c, sql: rewritten, paramNames: names}
	stmt.id = uint32(pkt[1]) | uint32(pkt[2])<<8 | uint32(pkt[3])<<16 | uint32(pkt[4])<<24
	stmt.columnCount = uint16(pkt[5]) | uint16(pkt[6])<<8
	stmt.paramCount = uint16(pkt[7]) | uint16(pkt[8])<<8

	if stmt.paramCount > 0 {
		for i := uint16(0); i < stmt.paramCount; i++ {
			if _, err := stream.ReadPacket(); err != nil {
				return nil, fmt.Errorf("conn: reading param definition %d: %w", i, err)
			}
		}
		if c.capabilities&wire.ClientDeprecateEOF == 0 {
			if _, err := stream.ReadPacket(); err != nil {
				return nil, fmt.Errorf("conn: reading param EOF: %w", err)
			}
		}
	}
	if stmt.columnCount > 0 {
		for i := uint16(0); i < stmt.columnCount; i++ {
			if _, err := stream.ReadPacket(); err != nil {
				return nil, fmt.Errorf("conn: reading column definition %d: %w", i, err)
			}
		}
		if c.capabilities&wire.ClientDeprecateEOF == 0 {
			if _, err := stream.ReadPacket(); err != nil {
				return nil, fmt.Errorf("conn: reading column EOF: %w", err)
			}
		}
	}

	c.mu.Lock()
	c.stmtCache[rewritten] = stmt
	c.mu.Unlock()

	return stmt, nil
}

// Execute runs a prepared statement with the given arguments, which are
// either positional (matching "?" placeholders, in order) or a single
// map[string]any when the statement was prepared from named placeholders.
func (s *InnerStmt) Execute(ctx context.Context, args ...any) (*ResultSet, error) {
	if s.closed {
		return nil, ErrStmtClosed
	}
	c := s.conn

	resolved, err := resolveArgs(s.paramNames, args...)
	if err != nil {
		return nil, err
	}
	if len(resolved) != int(s.paramCount) {
		return nil, fmt.Errorf("conn: statement expects %d parameters, got %d", s.paramCount, len(resolved))
	}

	stream, err := c.acquireStream()
	if err != nil {
		return nil, err
	}
	c.markDirty()

	payload, err := buildStmtExecute(s, resolved)
	if err != nil {
		c.releaseStream(stream)
		return nil, err
	}

	stream.ResetSeq()
	if err := stream.WritePacket(payload); err != nil {
		c.releaseStream(stream)
		return nil, fmt.Errorf("conn: writing execute: %w", err)
	}
	c.lastCommand = wire.ComStmtExecute

	rs, err := c.beginQueryResult(ctx, stream)
	if err != nil {
		return nil, err
	}
	if rs.phase != phaseEnded {
		rs.binary = true
	}
	return rs, nil
}

func buildStmtExecute(s *InnerStmt, args []any) ([]byte, error) {
	buf := make([]byte, 0, 16+len(args)*8)
	buf = append(buf, wire.ComStmtExecute)
	buf = append(buf, byte(s.id), byte(s.id>>8), byte(s.id>>16), byte(s.id>>24))
	buf = append(buf, 0x00)             // cursor flag: CURSOR_TYPE_NO_CURSOR
	buf = append(buf, 1, 0, 0, 0)       // iteration count, always 1

	if len(args) > 0 {
		nullBitmap := make([]byte, (len(args)+7)/8)
		for i, a := range args {
			if a == nil {
				nullBitmap[i/8] |= 1 << uint(i%8)
			}
		}
		buf = append(buf, nullBitmap...)
		buf = append(buf, 1) // new-params-bound-flag

		typeTags := make([]byte, 0, len(args)*2)
		var valueBytes []byte
		for _, a := range args {
			var (
				colType  byte
				unsigned bool
				err      error
			)
			valueBytes, colType, unsigned, err = value.EncodeBinary(valueBytes, a)
			if err != nil {
				return nil, err
			}
			flag := byte(0)
			if unsigned {
				flag = 0x80
			}
			typeTags = append(typeTags, colType, flag)
		}
		buf = append(buf, typeTags...)
		buf = append(buf, valueBytes...)
	}

	return buf, nil
}

// Close issues COM_STMT_CLOSE and evicts the statement from its
// connection's cache. The server sends no reply to COM_STMT_CLOSE.
func (s *InnerStmt) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	c := s.conn

	stream, err := c.acquireStream()
	if err != nil {
		return err
	}
	defer c.releaseStream(stream)

	stream.ResetSeq()
	payload := []byte{wire.ComStmtClose, byte(s.id), byte(s.id >> 8), byte(s.id >> 16), byte(s.id >> 24)}
	if err := stream.WritePacket(payload); err != nil {
		return fmt.Errorf("conn: writing stmt close: %w", err)
	}
	c.lastCommand = wire.ComStmtClose

	s.closed = true
	c.mu.Lock()
	if cached, ok := c.stmtCache[s.sql]; ok && cached == s {
		delete(c.stmtCache, s.sql)
	}
	c.mu.Unlock()
	return nil
}
