package conn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mysqlgo/mysqlgo/internal/wire"
)

// fakeServer drives the server side of a net.Pipe() for tests: it owns a
// wire.Stream and exposes small helpers for the packets this package's
// handshake/command code expects, modeled on the shape of a real mysqld
// session without implementing the whole protocol surface.
type fakeServer struct {
	t      *testing.T
	stream *wire.Stream
}

func newFakeServer(t *testing.T, netConn net.Conn) *fakeServer {
	return &fakeServer{t: t, stream: wire.NewStream(netConn)}
}

func (f *fakeServer) sendHandshake(authData []byte) {
	f.t.Helper()
	payload := []byte{10}
	payload = append(payload, []byte("8.0.31-fake")...)
	payload = append(payload, 0)
	payload = append(payload, 7, 0, 0, 0) // connection id
	payload = append(payload, authData[:8]...)
	payload = append(payload, 0) // filler

	caps := wire.BaseClientCapabilities | wire.ClientPluginAuthLenencClientData
	payload = append(payload, byte(caps), byte(caps>>8))
	payload = append(payload, 0x21)       // charset
	payload = append(payload, 0x02, 0x00) // status
	payload = append(payload, byte(caps>>16), byte(caps>>24))
	payload = append(payload, byte(len(authData)+1))
	payload = append(payload, make([]byte, 10)...)
	payload = append(payload, authData[8:]...)
	payload = append(payload, 0)
	payload = append(payload, []byte("mysql_native_password")...)
	payload = append(payload, 0)

	if err := f.stream.WritePacket(payload); err != nil {
		f.t.Fatalf("sendHandshake: %v", err)
	}
}

// readPacket reads the next client command. Every command starts a new
// sequence at 0, so the expected sequence id is reset first, as a real
// server does.
func (f *fakeServer) readPacket() []byte {
	f.t.Helper()
	f.stream.ResetSeq()
	pkt, err := f.stream.ReadPacket()
	if err != nil {
		f.t.Fatalf("readPacket: %v", err)
	}
	return pkt
}

func (f *fakeServer) sendOK() {
	f.t.Helper()
	if err := f.stream.WritePacket([]byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}); err != nil {
		f.t.Fatalf("sendOK: %v", err)
	}
}

func (f *fakeServer) sendOKWithCounts(affected, lastID uint64) {
	f.t.Helper()
	f.sendOKWithStatus(affected, lastID, 0x0002)
}

func (f *fakeServer) sendOKWithStatus(affected, lastID uint64, status uint16) {
	f.t.Helper()
	var payload []byte
	payload = append(payload, 0x00)
	payload = wire.AppendLenEncInt(payload, affected)
	payload = wire.AppendLenEncInt(payload, lastID)
	payload = append(payload, byte(status), byte(status>>8), 0x00, 0x00)
	if err := f.stream.WritePacket(payload); err != nil {
		f.t.Fatalf("sendOKWithStatus: %v", err)
	}
}

func (f *fakeServer) sendErr(code uint16, sqlState, message string) {
	f.t.Helper()
	payload := []byte{0xff, byte(code), byte(code >> 8)}
	payload = append(payload, '#')
	payload = append(payload, []byte(sqlState)...)
	payload = append(payload, []byte(message)...)
	if err := f.stream.WritePacket(payload); err != nil {
		f.t.Fatalf("sendErr: %v", err)
	}
}

// sendTextResultSet sends a complete text-protocol result set: column
// count, column definitions, (EOF unless deprecated), rows, terminating
// OK/EOF.
func (f *fakeServer) sendTextResultSet(names []string, types []byte, rows [][]string, deprecateEOF bool) {
	f.t.Helper()
	if err := f.stream.WritePacket(wire.AppendLenEncInt(nil, uint64(len(names)))); err != nil {
		f.t.Fatalf("sendTextResultSet: column count: %v", err)
	}
	for i, name := range names {
		var col []byte
		col = wire.AppendLenEncString(col, []byte("def"))
		col = wire.AppendLenEncString(col, []byte("db"))
		col = wire.AppendLenEncString(col, []byte("t"))
		col = wire.AppendLenEncString(col, []byte("t"))
		col = wire.AppendLenEncString(col, []byte(name))
		col = wire.AppendLenEncString(col, []byte(name))
		col = wire.AppendLenEncInt(col, 0x0c)
		col = append(col, 0x21, 0x00)
		col = append(col, 0xff, 0xff, 0x00, 0x00)
		col = append(col, types[i])
		col = append(col, 0x00, 0x00)
		col = append(col, 0x00)
		col = append(col, 0x00, 0x00)
		if err := f.stream.WritePacket(col); err != nil {
			f.t.Fatalf("sendTextResultSet: column %d: %v", i, err)
		}
	}
	if !deprecateEOF {
		if err := f.stream.WritePacket([]byte{0xfe, 0x00, 0x00, 0x02, 0x00}); err != nil {
			f.t.Fatalf("sendTextResultSet: column eof: %v", err)
		}
	}
	for _, row := range rows {
		var pkt []byte
		for _, v := range row {
			pkt = wire.AppendLenEncString(pkt, []byte(v))
		}
		if err := f.stream.WritePacket(pkt); err != nil {
			f.t.Fatalf("sendTextResultSet: row: %v", err)
		}
	}
	marker := byte(0xfe)
	if deprecateEOF {
		marker = 0x00
	}
	if err := f.stream.WritePacket([]byte{marker, 0x00, 0x00, 0x02, 0x00}); err != nil {
		f.t.Fatalf("sendTextResultSet: terminator: %v", err)
	}
}

// dialFakeConn sets up a net.Pipe(), hands the server side to serverFn on
// its own goroutine, and returns a Conn for the client side already past
// the handshake.
func dialFakeConn(t *testing.T, authData []byte, serverFn func(f *fakeServer)) *Conn {
	t.Helper()
	clientNetConn, serverNetConn := net.Pipe()

	go func() {
		f := newFakeServer(t, serverNetConn)
		f.sendHandshake(authData)
		if _, err := f.stream.ReadPacket(); err != nil { // handshake response
			t.Errorf("reading handshake response: %v", err)
			return
		}
		f.sendOK()
		f.readPacket() // SELECT @@max_allowed_packet
		f.sendTextResultSet([]string{"@@max_allowed_packet"}, []byte{wire.TypeLongLong}, [][]string{{"4194304"}}, false)
		f.readPacket() // SELECT @@wait_timeout
		f.sendTextResultSet([]string{"@@wait_timeout"}, []byte{wire.TypeLongLong}, [][]string{{"28800"}}, false)
		if serverFn != nil {
			serverFn(f)
		}
		// Like a real server, take the client's COM_QUIT and end the session;
		// on the synchronous pipe an unread COM_QUIT would block Disconnect.
		f.stream.ResetSeq()
		_, _ = f.stream.ReadPacket()
		serverNetConn.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := newConnFromNetConn(ctx, clientNetConn, DialOptions{Username: "root", Password: "secret"})
	if err != nil {
		t.Fatalf("newConnFromNetConn: %v", err)
	}
	return c
}

// dialFakeConnErr is dialFakeConn for tests that expect Dial itself to
// fail (e.g. a rejected auth).
func dialFakeConnErr(t *testing.T, authData []byte, serverFn func(f *fakeServer)) error {
	t.Helper()
	clientNetConn, serverNetConn := net.Pipe()

	go func() {
		f := newFakeServer(t, serverNetConn)
		f.sendHandshake(authData)
		if _, err := f.stream.ReadPacket(); err != nil { // handshake response
			t.Errorf("reading handshake response: %v", err)
			return
		}
		if serverFn != nil {
			serverFn(f)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := newConnFromNetConn(ctx, clientNetConn, DialOptions{Username: "root", Password: "secret"})
	return err
}
