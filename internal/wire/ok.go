package wire

import "fmt"

// OKPacket is the decoded form of an OK_Packet.
type OKPacket struct {
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  uint16
	Warnings     uint16
	Info         string
}

// ErrPacket is the decoded form of an ERR_Packet.
type ErrPacket struct {
	Code     uint16
	SQLState string
	Message  string
}

func (e *ErrPacket) Error() string {
	return fmt.Sprintf("mysql error %d (%s): %s", e.Code, e.SQLState, e.Message)
}

// IsOK reports whether payload begins an OK_Packet. An EOF-marker packet
// (0xfe) shorter than 9 bytes is treated as OK only when CLIENT_DEPRECATE_EOF
// is negotiated, matching the server's own disambiguation rule.
func IsOK(payload []byte, capabilities uint32) bool {
	if len(payload) == 0 {
		return false
	}
	switch payload[0] {
	case markerOK:
		return true
	case markerEOF:
		return capabilities&ClientDeprecateEOF != 0 && len(payload) < 9
	}
	return false
}

// IsEOF reports whether payload is a legacy EOF_Packet: leading 0xfe, total
// length under 9 bytes, and CLIENT_DEPRECATE_EOF not negotiated.
func IsEOF(payload []byte, capabilities uint32) bool {
	if len(payload) == 0 || payload[0] != markerEOF {
		return false
	}
	if capabilities&ClientDeprecateEOF != 0 {
		return false
	}
	return len(payload) < 9
}

// IsErr reports whether payload begins an ERR_Packet.
func IsErr(payload []byte) bool {
	return len(payload) > 0 && payload[0] == markerErr
}

// ParseOK decodes an OK_Packet (and the OK-shaped EOF_Packet variant used
// under CLIENT_DEPRECATE_EOF).
func ParseOK(payload []byte, capabilities uint32) (*OKPacket, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("wire: empty OK packet")
	}
	pos := 1 // skip header byte (0x00 or 0xfe)

	affected, _, pos := ReadLenEncInt(payload, pos)
	lastID, _, pos := ReadLenEncInt(payload, pos)

	var status, warnings uint16
	if capabilities&ClientProtocol41 != 0 {
		if pos+4 > len(payload) {
			return nil, fmt.Errorf("wire: truncated OK packet")
		}
		status = uint16(payload[pos]) | uint16(payload[pos+1])<<8
		warnings = uint16(payload[pos+2]) | uint16(payload[pos+3])<<8
		pos += 4
	} else if capabilities&ClientTransactions != 0 {
		if pos+2 > len(payload) {
			return nil, fmt.Errorf("wire: truncated OK packet")
		}
		status = uint16(payload[pos]) | uint16(payload[pos+1])<<8
		pos += 2
	}

	info := ""
	if pos < len(payload) {
		info = string(payload[pos:])
	}

	return &OKPacket{
		AffectedRows: affected,
		LastInsertID: lastID,
		StatusFlags:  status,
		Warnings:     warnings,
		Info:         info,
	}, nil
}

// ParseErr decodes an ERR_Packet.
func ParseErr(payload []byte, capabilities uint32) (*ErrPacket, error) {
	if len(payload) == 0 || payload[0] != markerErr {
		return nil, fmt.Errorf("wire: not an ERR packet")
	}
	pos := 1
	if pos+2 > len(payload) {
		return nil, fmt.Errorf("wire: truncated ERR packet")
	}
	code := uint16(payload[pos]) | uint16(payload[pos+1])<<8
	pos += 2

	sqlState := ""
	if capabilities&ClientProtocol41 != 0 {
		if pos < len(payload) && payload[pos] == '#' {
			if pos+6 > len(payload) {
				return nil, fmt.Errorf("wire: truncated ERR packet sqlstate")
			}
			sqlState = string(payload[pos+1 : pos+6])
			pos += 6
		}
	}
	message := string(payload[pos:])

	return &ErrPacket{Code: code, SQLState: sqlState, Message: message}, nil
}
