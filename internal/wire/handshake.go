package wire

import (
	"crypto/sha1"
	"fmt"
)

// Handshake is the decoded Handshake v10 packet the server sends first.
type Handshake struct {
	ProtocolVersion byte
	ServerVersion   string
	ConnectionID    uint32
	AuthData        []byte // full concatenated auth-plugin-data (salt)
	Capabilities    uint32
	CharacterSet    byte
	StatusFlags     uint16
	AuthPluginName  string
}

// ParseHandshake decodes a Handshake v10 packet.
func ParseHandshake(payload []byte) (*Handshake, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("wire: empty handshake packet")
	}
	h := &Handshake{ProtocolVersion: payload[0]}
	if h.ProtocolVersion != 10 {
		return nil, fmt.Errorf("wire: unsupported protocol version %d", h.ProtocolVersion)
	}
	pos := 1

	var serverVersion []byte
	serverVersion, pos = ReadNullTerminatedString(payload, pos)
	h.ServerVersion = string(serverVersion)

	if pos+4 > len(payload) {
		return nil, fmt.Errorf("wire: truncated handshake (connection id)")
	}
	h.ConnectionID = uint32(payload[pos]) | uint32(payload[pos+1])<<8 |
		uint32(payload[pos+2])<<16 | uint32(payload[pos+3])<<24
	pos += 4

	if pos+8 > len(payload) {
		return nil, fmt.Errorf("wire: truncated handshake (auth-data-1)")
	}
	authData := append([]byte{}, payload[pos:pos+8]...)
	pos += 8
	pos++ // filler (0x00)

	if pos+2 > len(payload) {
		return nil, fmt.Errorf("wire: truncated handshake (capability flags lower)")
	}
	capLower := uint32(payload[pos]) | uint32(payload[pos+1])<<8
	pos += 2

	var charset byte
	var status uint16
	var capUpper uint32
	var authDataLen int
	if pos < len(payload) {
		charset = payload[pos]
		pos++
		if pos+2 > len(payload) {
			return nil, fmt.Errorf("wire: truncated handshake (status flags)")
		}
		status = uint16(payload[pos]) | uint16(payload[pos+1])<<8
		pos += 2
		if pos+2 > len(payload) {
			return nil, fmt.Errorf("wire: truncated handshake (capability flags upper)")
		}
		capUpper = uint32(payload[pos]) | uint32(payload[pos+1])<<8
		pos += 2

		capabilities := capLower | capUpper<<16
		if capabilities&ClientPluginAuth != 0 {
			if pos >= len(payload) {
				return nil, fmt.Errorf("wire: truncated handshake (auth-data-len)")
			}
			authDataLen = int(payload[pos])
			pos++
		} else {
			pos++ // reserved 0x00
		}
		pos += 10 // reserved, all zero

		h.Capabilities = capabilities
		h.CharacterSet = charset
		h.StatusFlags = status

		if capabilities&ClientSecureConnection != 0 {
			n := authDataLen - 8
			if n < 13 {
				n = 13
			}
			if pos+n > len(payload) {
				n = len(payload) - pos
			}
			if n > 0 {
				extra := payload[pos : pos+n]
				// auth plugin name is NUL-terminated; strip it.
				if len(extra) > 0 && extra[len(extra)-1] == 0 {
					extra = extra[:len(extra)-1]
				}
				authData = append(authData, extra...)
				pos += n
			}
		}

		if capabilities&ClientPluginAuth != 0 {
			name, _ := ReadNullTerminatedString(payload, pos)
			h.AuthPluginName = string(name)
		}
	} else {
		h.Capabilities = capLower
	}

	h.AuthData = authData
	return h, nil
}

// ScrambleNativePassword computes the mysql_native_password response:
// SHA1(password) XOR SHA1(authData + SHA1(SHA1(password))).
// Returns nil for an empty password, per protocol.
func ScrambleNativePassword(password string, authData []byte) []byte {
	if password == "" {
		return nil
	}
	sha1pw := sha1.Sum([]byte(password))
	sha1sha1pw := sha1.Sum(sha1pw[:])

	h := sha1.New()
	h.Write(authData)
	h.Write(sha1sha1pw[:])
	step2 := h.Sum(nil)

	out := make([]byte, len(sha1pw))
	for i := range out {
		out[i] = sha1pw[i] ^ step2[i]
	}
	return out
}

// HandshakeResponseOptions carries the fields needed to build a
// HandshakeResponse41 packet.
type HandshakeResponseOptions struct {
	Capabilities   uint32
	MaxPacketSize  uint32
	CharacterSet   byte
	Username       string
	AuthResponse   []byte
	Database       string
	AuthPluginName string
}

// BuildHandshakeResponse41 serializes a HandshakeResponse41 packet body.
func BuildHandshakeResponse41(opts HandshakeResponseOptions) []byte {
	buf := make([]byte, 0, 64+len(opts.Username)+len(opts.AuthResponse)+len(opts.Database))

	var capBytes [4]byte
	capBytes[0] = byte(opts.Capabilities)
	capBytes[1] = byte(opts.Capabilities >> 8)
	capBytes[2] = byte(opts.Capabilities >> 16)
	capBytes[3] = byte(opts.Capabilities >> 24)
	buf = append(buf, capBytes[:]...)

	var maxPktBytes [4]byte
	maxPktBytes[0] = byte(opts.MaxPacketSize)
	maxPktBytes[1] = byte(opts.MaxPacketSize >> 8)
	maxPktBytes[2] = byte(opts.MaxPacketSize >> 16)
	maxPktBytes[3] = byte(opts.MaxPacketSize >> 24)
	buf = append(buf, maxPktBytes[:]...)

	buf = append(buf, opts.CharacterSet)
	buf = append(buf, make([]byte, 23)...) // reserved

	buf = append(buf, []byte(opts.Username)...)
	buf = append(buf, 0)

	if opts.Capabilities&ClientPluginAuthLenencClientData != 0 {
		buf = AppendLenEncString(buf, opts.AuthResponse)
	} else {
		buf = append(buf, byte(len(opts.AuthResponse)))
		buf = append(buf, opts.AuthResponse...)
	}

	if opts.Capabilities&ClientConnectWithDB != 0 {
		buf = append(buf, []byte(opts.Database)...)
		buf = append(buf, 0)
	}

	if opts.Capabilities&ClientPluginAuth != 0 {
		buf = append(buf, []byte(opts.AuthPluginName)...)
		buf = append(buf, 0)
	}

	return buf
}
