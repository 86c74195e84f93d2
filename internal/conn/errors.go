package conn

import (
	"errors"
	"fmt"

	"github.com/mysqlgo/mysqlgo/internal/wire"
)

// ErrServer wraps a server ERR_Packet as a Go error.
type ErrServer struct {
	Code     uint16
	SQLState string
	Message  string
}

func (e *ErrServer) Error() string {
	return fmt.Sprintf("mysqlgo: server error %d (%s): %s", e.Code, e.SQLState, e.Message)
}

func newErrServer(p *wire.ErrPacket) *ErrServer {
	return &ErrServer{Code: p.Code, SQLState: p.SQLState, Message: p.Message}
}

// Sentinel errors surfaced by the connection layer. They're wrapped with
// fmt.Errorf("...: %w", ...) at the point of use so callers can match with
// errors.Is while still getting a descriptive message.
var (
	ErrPacketOutOfOrder  = wire.ErrPacketOutOfOrder
	ErrConnectionClosed  = wire.ErrConnectionClosed
	ErrUnexpectedPacket  = errors.New("mysqlgo: unexpected packet")
	ErrResultSetDropped  = errors.New("mysqlgo: result set already consumed or dropped")
	ErrConnBusy          = errors.New("mysqlgo: connection busy with another command")
	ErrStmtClosed        = errors.New("mysqlgo: prepared statement closed")
	ErrNoActiveTransaction = errors.New("mysqlgo: no active transaction")
	ErrTransactionActive = errors.New("mysqlgo: transaction already active")
)

// ErrPacketTooLarge re-exports wire's typed error so callers never need to
// import internal/wire directly.
type ErrPacketTooLarge = wire.ErrPacketTooLarge

var (
	errUnexpectedBinaryRowHeader = fmt.Errorf("conn: %w: expected binary row packet header", ErrUnexpectedPacket)
	errTruncatedNullBitmap       = fmt.Errorf("conn: truncated binary row null bitmap")
)
