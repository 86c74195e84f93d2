package pool

import (
	"net"
	"testing"

	"github.com/mysqlgo/mysqlgo/internal/wire"
)

// fakeMySQLServer is a minimal stand-in for a real mysqld that serves each
// accepted session on its own goroutine: enough handshake, bootstrap, and COM_QUERY handling for the
// pool's lifecycle tests, which only care about connection plumbing, not
// query semantics.
type fakeMySQLServer struct {
	t        *testing.T
	listener net.Listener
	authData []byte

	// onConn, if set, is called once per accepted session after handshake
	// and bootstrap complete, on its own goroutine.
	onConn func(stream *wire.Stream)
}

func newFakeMySQLServer(t *testing.T) *fakeMySQLServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeMySQLServer{t: t, listener: l, authData: []byte("01234567890123456789")}
	go f.acceptLoop()
	t.Cleanup(func() { l.Close() })
	return f
}

func (f *fakeMySQLServer) addr() string { return f.listener.Addr().String() }

func (f *fakeMySQLServer) acceptLoop() {
	for {
		netConn, err := f.listener.Accept()
		if err != nil {
			return
		}
		go f.serve(netConn)
	}
}

func (f *fakeMySQLServer) serve(netConn net.Conn) {
	stream := wire.NewStream(netConn)
	defer netConn.Close()

	if err := f.handshake(stream); err != nil {
		return
	}
	if f.onConn != nil {
		f.onConn(stream)
	} else {
		f.serveQueriesForever(stream)
	}
}

func (f *fakeMySQLServer) handshake(stream *wire.Stream) error {
	payload := []byte{10}
	payload = append(payload, []byte("8.0.31-fake")...)
	payload = append(payload, 0)
	payload = append(payload, 7, 0, 0, 0)
	payload = append(payload, f.authData[:8]...)
	payload = append(payload, 0)
	caps := wire.BaseClientCapabilities | wire.ClientPluginAuthLenencClientData
	payload = append(payload, byte(caps), byte(caps>>8))
	payload = append(payload, 0x21)
	payload = append(payload, 0x02, 0x00)
	payload = append(payload, byte(caps>>16), byte(caps>>24))
	payload = append(payload, byte(len(f.authData)+1))
	payload = append(payload, make([]byte, 10)...)
	payload = append(payload, f.authData[8:]...)
	payload = append(payload, 0)
	payload = append(payload, []byte("mysql_native_password")...)
	payload = append(payload, 0)
	if err := stream.WritePacket(payload); err != nil {
		return err
	}

	if _, err := stream.ReadPacket(); err != nil { // handshake response
		return err
	}
	if err := stream.WritePacket([]byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}); err != nil {
		return err
	}

	stream.ResetSeq()
	if _, err := stream.ReadPacket(); err != nil { // SELECT @@max_allowed_packet
		return err
	}
	if err := sendScalarResultSet(stream, "4194304"); err != nil {
		return err
	}
	stream.ResetSeq()
	if _, err := stream.ReadPacket(); err != nil { // SELECT @@wait_timeout
		return err
	}
	return sendScalarResultSet(stream, "28800")
}

func sendScalarResultSet(stream *wire.Stream, value string) error {
	if err := stream.WritePacket(wire.AppendLenEncInt(nil, 1)); err != nil {
		return err
	}
	var col []byte
	col = wire.AppendLenEncString(col, []byte("def"))
	col = wire.AppendLenEncString(col, []byte(""))
	col = wire.AppendLenEncString(col, []byte(""))
	col = wire.AppendLenEncString(col, []byte(""))
	col = wire.AppendLenEncString(col, []byte("v"))
	col = wire.AppendLenEncString(col, []byte("v"))
	col = wire.AppendLenEncInt(col, 0x0c)
	col = append(col, 0x21, 0x00)
	col = append(col, 0xff, 0xff, 0x00, 0x00)
	col = append(col, wire.TypeLongLong)
	col = append(col, 0x00, 0x00)
	col = append(col, 0x00)
	col = append(col, 0x00, 0x00)
	if err := stream.WritePacket(col); err != nil {
		return err
	}
	if err := stream.WritePacket([]byte{0xfe, 0x00, 0x00, 0x02, 0x00}); err != nil {
		return err
	}
	if err := stream.WritePacket(wire.AppendLenEncString(nil, []byte(value))); err != nil {
		return err
	}
	return stream.WritePacket([]byte{0xfe, 0x00, 0x00, 0x02, 0x00})
}

// serveQueriesForever answers "SELECT 1" with a one-row result set,
// "START TRANSACTION" with an OK carrying SERVER_STATUS_IN_TRANS, any other
// COM_QUERY and COM_PING with a plain OK, and COM_QUIT by returning
// (closing the session).
func (f *fakeMySQLServer) serveQueriesForever(stream *wire.Stream) {
	for {
		stream.ResetSeq()
		pkt, err := stream.ReadPacket()
		if err != nil {
			return
		}
		if len(pkt) == 0 {
			continue
		}
		switch pkt[0] {
		case wire.ComQuit:
			return
		case wire.ComQuery:
			sql := string(pkt[1:])
			switch sql {
			case "SELECT 1":
				sendScalarResultSet(stream, "1")
			case "START TRANSACTION":
				stream.WritePacket([]byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00})
			default:
				stream.WritePacket([]byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00})
			}
		case wire.ComPing:
			stream.WritePacket([]byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00})
		default:
			return
		}
	}
}
