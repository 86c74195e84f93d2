package conn

import (
	"context"
	"fmt"
	"io"

	"github.com/mysqlgo/mysqlgo/internal/wire"
)

// Query issues a COM_QUERY and returns a streaming ResultSet. For
// statements that produce no rows (INSERT/UPDATE/DELETE/DDL), the returned
// ResultSet has no columns and is already in its ended state; callers can
// still read AffectedRows/LastInsertID off it.
func (c *Conn) Query(ctx context.Context, sql string) (*ResultSet, error) {
	stream, err := c.acquireStream()
	if err != nil {
		return nil, err
	}
	c.markDirty()

	stream.ResetSeq()
	payload := append([]byte{wire.ComQuery}, []byte(sql)...)
	if err := stream.WritePacket(payload); err != nil {
		c.releaseStream(stream)
		return nil, fmt.Errorf("conn: writing query: %w", err)
	}
	c.lastCommand = wire.ComQuery

	return c.beginQueryResult(ctx, stream)
}

// beginQueryResult reads the first packet of a command reply and builds the
// matching ResultSet, including the LOCAL INFILE handshake sub-protocol.
func (c *Conn) beginQueryResult(ctx context.Context, stream *wire.Stream) (*ResultSet, error) {
	pkt, err := stream.ReadPacket()
	if err != nil {
		c.releaseStream(stream)
		return nil, fmt.Errorf("conn: reading query response: %w", err)
	}

	if len(pkt) > 0 && pkt[0] == 0xfb && c.capabilities&wire.ClientLocalFiles != 0 {
		pkt, err = c.handleLocalInfile(ctx, stream, pkt)
		if err != nil {
			c.releaseStream(stream)
			return nil, err
		}
	}

	if wire.IsErr(pkt) {
		ep, perr := wire.ParseErr(pkt, c.capabilities)
		c.releaseStream(stream)
		if perr != nil {
			return nil, fmt.Errorf("conn: parsing error packet: %w", perr)
		}
		return nil, newErrServer(ep)
	}

	if wire.IsOK(pkt, c.capabilities) {
		ok, perr := wire.ParseOK(pkt, c.capabilities)
		c.releaseStream(stream)
		if perr != nil {
			return nil, fmt.Errorf("conn: parsing OK packet: %w", perr)
		}
		c.absorbOK(ok)
		return newResultlessResultSet(c, ok), nil
	}

	rs := &ResultSet{conn: c, stream: stream, capabilities: c.capabilities}
	c.mu.Lock()
	c.pendingResult = rs
	c.mu.Unlock()

	columnCount, _, _ := wire.ReadLenEncInt(pkt, 0)
	if err := rs.readColumns(columnCount); err != nil {
		rs.fail(err)
		return nil, err
	}
	return rs, nil
}

// handleLocalInfile serves a LOCAL INFILE request: it opens the path via
// the configured handler, streams its contents as a sequence of packets,
// terminates with an empty packet, and returns the server's final reply
// packet (OK or ERR). A nil/refusing handler sends an empty payload
// immediately, which the server reports back as an ERR.
func (c *Conn) handleLocalInfile(ctx context.Context, stream *wire.Stream, requestPkt []byte) ([]byte, error) {
	path := string(requestPkt[1:])

	rc, err := c.localInfile.Open(ctx, path)
	if err != nil {
		if werr := stream.WritePacket(nil); werr != nil {
			return nil, fmt.Errorf("conn: sending empty local-infile payload: %w", werr)
		}
	} else {
		defer rc.Close()
		buf := make([]byte, 16*1024)
		for {
			n, rerr := rc.Read(buf)
			if n > 0 {
				if werr := stream.WritePacket(buf[:n]); werr != nil {
					return nil, fmt.Errorf("conn: streaming local-infile chunk: %w", werr)
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return nil, fmt.Errorf("conn: reading local-infile source: %w", rerr)
			}
		}
		if err := stream.WritePacket(nil); err != nil {
			return nil, fmt.Errorf("conn: terminating local-infile stream: %w", err)
		}
	}

	pkt, err := stream.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("conn: reading local-infile final reply: %w", err)
	}
	return pkt, nil
}

// Ping issues COM_PING, which always returns OK if the connection is
// alive.
func (c *Conn) Ping(ctx context.Context) error {
	stream, err := c.acquireStream()
	if err != nil {
		return err
	}
	defer c.releaseStream(stream)

	stream.ResetSeq()
	if err := stream.WritePacket([]byte{wire.ComPing}); err != nil {
		return fmt.Errorf("conn: writing ping: %w", err)
	}
	c.lastCommand = wire.ComPing

	pkt, err := stream.ReadPacket()
	if err != nil {
		return fmt.Errorf("conn: reading ping reply: %w", err)
	}
	if wire.IsErr(pkt) {
		ep, perr := wire.ParseErr(pkt, c.capabilities)
		if perr != nil {
			return fmt.Errorf("conn: parsing ping error: %w", perr)
		}
		return newErrServer(ep)
	}
	ok, err := wire.ParseOK(pkt, c.capabilities)
	if err != nil {
		return fmt.Errorf("conn: parsing ping OK: %w", err)
	}
	c.absorbOK(ok)
	return nil
}

// ResetSession issues COM_RESET_CONNECTION, clearing session state (user
// variables, temp tables, the current transaction) while keeping the
// authenticated socket open.
func (c *Conn) ResetSession(ctx context.Context) error {
	stream, err := c.acquireStream()
	if err != nil {
		return err
	}
	defer c.releaseStream(stream)

	stream.ResetSeq()
	if err := stream.WritePacket([]byte{wire.ComResetConn}); err != nil {
		return fmt.Errorf("conn: writing reset connection: %w", err)
	}
	c.lastCommand = wire.ComResetConn

	pkt, err := stream.ReadPacket()
	if err != nil {
		return fmt.Errorf("conn: reading reset connection reply: %w", err)
	}
	if wire.IsErr(pkt) {
		ep, perr := wire.ParseErr(pkt, c.capabilities)
		if perr != nil {
			return fmt.Errorf("conn: parsing reset error: %w", perr)
		}
		return newErrServer(ep)
	}
	ok, err := wire.ParseOK(pkt, c.capabilities)
	if err != nil {
		return fmt.Errorf("conn: parsing reset OK: %w", err)
	}
	c.absorbOK(ok)
	c.mu.Lock()
	c.inTransaction = false
	c.dirty = false
	c.mu.Unlock()
	return nil
}

func (c *Conn) absorbOK(ok *wire.OKPacket) {
	c.mu.Lock()
	c.statusFlags = ok.StatusFlags
	c.lastInsertID = ok.LastInsertID
	c.affectedRows = ok.AffectedRows
	c.warnings = ok.Warnings
	c.inTransaction = ok.StatusFlags&wire.StatusInTrans != 0
	c.mu.Unlock()
}

func (c *Conn) markDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}
