package conn

import (
	"context"
	"fmt"

	"github.com/mysqlgo/mysqlgo/internal/wire"
)

type resultSetPhase int

const (
	phaseColumns resultSetPhase = iota
	phaseRows
	phaseEnded
)

// ResultSet is a lazily-read, streaming view over a result set. Rows are
// pulled off the wire one at a time by NextRow; nothing is buffered beyond
// the current row. A ResultSet owns the connection's stream for as long as
// it is open — the connection is unusable for any other command until the
// result set reaches phaseEnded (drained, Drop'd, or errored) and hands the
// stream back.
type ResultSet struct {
	conn         *Conn
	stream       *wire.Stream
	capabilities uint32
	binary       bool // true for COM_STMT_EXECUTE result sets

	columns []*wire.Column
	phase   resultSetPhase

	lastOK *wire.OKPacket
	err    error
}

// newResultlessResultSet represents a command that produced an OK_Packet
// with no rows (INSERT/UPDATE/DELETE/DDL). Columns is empty and NextRow
// always reports exhaustion as (nil, nil).
func newResultlessResultSet(c *Conn, ok *wire.OKPacket) *ResultSet {
	return &ResultSet{conn: c, phase: phaseEnded, lastOK: ok}
}

// Columns returns the result set's column metadata. It is empty until the
// first call successfully reads the column-definition block (i.e. always
// populated by the time the ResultSet is returned from Query/Execute).
func (rs *ResultSet) Columns() []*wire.Column { return rs.columns }

// LastInsertID returns the id from the terminating OK_Packet, valid once
// the result set has ended.
func (rs *ResultSet) LastInsertID() uint64 {
	if rs.lastOK == nil {
		return 0
	}
	return rs.lastOK.LastInsertID
}

// AffectedRows returns the affected-row count from the terminating
// OK_Packet, valid once the result set has ended.
func (rs *ResultSet) AffectedRows() uint64 {
	if rs.lastOK == nil {
		return 0
	}
	return rs.lastOK.AffectedRows
}

// readColumns reads the column-definition block given the already-consumed
// column-count packet.
func (rs *ResultSet) readColumns(columnCount uint64) error {
	rs.columns = make([]*wire.Column, 0, columnCount)
	for i := uint64(0); i < columnCount; i++ {
		pkt, err := rs.stream.ReadPacket()
		if err != nil {
			return fmt.Errorf("conn: reading column %d: %w", i, err)
		}
		col, err := wire.ParseColumn(pkt)
		if err != nil {
			return fmt.Errorf("conn: parsing column %d: %w", i, err)
		}
		rs.columns = append(rs.columns, col)
	}
	if rs.capabilities&wire.ClientDeprecateEOF == 0 {
		if _, err := rs.stream.ReadPacket(); err != nil { // column-definitions-terminating EOF
			return fmt.Errorf("conn: reading column EOF: %w", err)
		}
	}
	rs.phase = phaseRows
	return nil
}

// NextRow reads and returns the next row, or (nil, nil) once the result set
// is exhausted. After exhaustion the connection is released back for the
// next command unless more result sets are pending (see HasMoreResults /
// NextResultSet).
func (rs *ResultSet) NextRow(ctx context.Context) (*Row, error) {
	if rs.err != nil {
		return nil, rs.err
	}
	if rs.phase != phaseRows {
		return nil, nil
	}

	pkt, err := rs.stream.ReadPacket()
	if err != nil {
		rs.fail(err)
		return nil, err
	}

	if wire.IsErr(pkt) {
		ep, perr := wire.ParseErr(pkt, rs.capabilities)
		if perr != nil {
			rs.fail(perr)
			return nil, perr
		}
		serr := newErrServer(ep)
		rs.fail(serr)
		return nil, serr
	}

	if wire.IsEOF(pkt, rs.capabilities) || wire.IsOK(pkt, rs.capabilities) {
		var ok *wire.OKPacket
		var perr error
		if wire.IsEOF(pkt, rs.capabilities) && len(pkt) >= 5 {
			// Legacy EOF_Packet: 0xfe, warnings (2 bytes), status flags (2 bytes).
			ok = &wire.OKPacket{
				Warnings:    uint16(pkt[1]) | uint16(pkt[2])<<8,
				StatusFlags: uint16(pkt[3]) | uint16(pkt[4])<<8,
			}
		} else {
			ok, perr = wire.ParseOK(pkt, rs.capabilities)
		}
		if perr != nil {
			rs.fail(perr)
			return nil, perr
		}
		rs.lastOK = ok
		rs.conn.statusFlags = ok.StatusFlags
		rs.conn.warnings = ok.Warnings
		if ok.StatusFlags&wire.StatusMoreResultsExists != 0 {
			rs.phase = phaseColumns // more result sets follow; caller drives via NextResultSet
			return nil, nil
		}
		rs.end()
		return nil, nil
	}

	var row *Row
	var derr error
	if rs.binary {
		row, derr = decodeBinaryRow(pkt, rs.columns)
	} else {
		row, derr = decodeTextRow(pkt, rs.columns)
	}
	if derr != nil {
		rs.fail(derr)
		return nil, derr
	}
	if rs.conn.metrics.OnRowsRead != nil {
		rs.conn.metrics.OnRowsRead(1)
	}
	return row, nil
}

// HasMoreResults reports whether another result set follows the one just
// drained (SERVER_MORE_RESULTS_EXISTS was set), e.g. from a multi-statement
// query or a stored procedure with multiple SELECTs.
func (rs *ResultSet) HasMoreResults() bool {
	return rs.phase == phaseColumns && rs.lastOK != nil
}

// NextResultSet advances to the next result set after HasMoreResults
// reports true. It returns false once there are no more.
func (rs *ResultSet) NextResultSet(ctx context.Context) (bool, error) {
	if !rs.HasMoreResults() {
		return false, nil
	}
	pkt, err := rs.stream.ReadPacket()
	if err != nil {
		rs.fail(err)
		return false, err
	}
	return rs.beginFromHeader(pkt)
}

// beginFromHeader interprets the first packet of a (possibly subsequent)
// result set: OK (no rows), ERR, or a column-count lenenc integer.
func (rs *ResultSet) beginFromHeader(pkt []byte) (bool, error) {
	if wire.IsErr(pkt) {
		ep, perr := wire.ParseErr(pkt, rs.capabilities)
		if perr != nil {
			rs.fail(perr)
			return false, perr
		}
		serr := newErrServer(ep)
		rs.fail(serr)
		return false, serr
	}
	if wire.IsOK(pkt, rs.capabilities) {
		ok, perr := wire.ParseOK(pkt, rs.capabilities)
		if perr != nil {
			rs.fail(perr)
			return false, perr
		}
		rs.lastOK = ok
		rs.conn.statusFlags = ok.StatusFlags
		if ok.StatusFlags&wire.StatusMoreResultsExists != 0 {
			rs.phase = phaseColumns
			return true, nil
		}
		rs.end()
		return false, nil
	}
	columnCount, _, _ := wire.ReadLenEncInt(pkt, 0)
	if err := rs.readColumns(columnCount); err != nil {
		rs.fail(err)
		return false, err
	}
	return true, nil
}

// Drop reads and discards every remaining row (and result set), then
// releases the connection, for callers that only want side effects. Rows
// are read through NextRow, so each one is still decoded before it is
// discarded.
func (rs *ResultSet) Drop(ctx context.Context) error {
	for rs.phase != phaseEnded {
		if rs.phase == phaseColumns {
			if more, err := rs.NextResultSet(ctx); err != nil {
				return err
			} else if !more {
				break
			}
			continue
		}
		row, err := rs.NextRow(ctx)
		if err != nil {
			return err
		}
		if row == nil && rs.phase != phaseColumns {
			break
		}
	}
	rs.end()
	return nil
}

// Collect reads every row of the *current* result set into a slice and
// stops at the set boundary — it never follows SERVER_MORE_RESULTS_EXISTS
// into a subsequent set. Call it again after NextResultSet to drain a
// multi-statement or multi-result-set response one set at a time. Prefer
// NextRow in a loop for large result sets; Collect buffers everything in
// memory.
func (rs *ResultSet) Collect(ctx context.Context) ([]*Row, error) {
	var rows []*Row
	for {
		row, err := rs.NextRow(ctx)
		if err != nil {
			return rows, err
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// ForEach calls fn for every row of the *current* result set until
// exhaustion, fn returns an error, or ctx is done. Like Collect, it stops at
// the set boundary rather than following SERVER_MORE_RESULTS_EXISTS.
func (rs *ResultSet) ForEach(ctx context.Context, fn func(*Row) error) error {
	for {
		select {
		case <-ctx.Done():
			rs.fail(ctx.Err())
			return ctx.Err()
		default:
		}
		row, err := rs.NextRow(ctx)
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		if err := fn(row); err != nil {
			rs.fail(err)
			return err
		}
	}
}

// Map calls fn for every row of the current result set and collects the
// results, stopping at the set boundary like ForEach and Collect.
func Map[T any](ctx context.Context, rs *ResultSet, fn func(*Row) (T, error)) ([]T, error) {
	var out []T
	err := rs.ForEach(ctx, func(row *Row) error {
		v, err := fn(row)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// Reduce folds every row of the current result set into an accumulator
// starting from init, stopping at the set boundary like ForEach and
// Collect.
func Reduce[T any](ctx context.Context, rs *ResultSet, init T, fn func(T, *Row) (T, error)) (T, error) {
	acc := init
	err := rs.ForEach(ctx, func(row *Row) error {
		next, err := fn(acc, row)
		if err != nil {
			return err
		}
		acc = next
		return nil
	})
	return acc, err
}

func (rs *ResultSet) fail(err error) {
	if rs.err == nil {
		rs.err = err
	}
	rs.end()
}

func (rs *ResultSet) end() {
	if rs.phase == phaseEnded {
		return
	}
	rs.phase = phaseEnded
	if rs.stream != nil {
		rs.conn.releaseStream(rs.stream)
		rs.conn.mu.Lock()
		rs.conn.pendingResult = nil
		rs.conn.mu.Unlock()
		rs.stream = nil
	}
}

