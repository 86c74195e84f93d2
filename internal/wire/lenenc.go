package wire

import "encoding/binary"

// ReadLenEncInt reads a length-encoded integer at pos. It returns the value,
// whether the value was SQL NULL (0xfb marker), and the new position.
func ReadLenEncInt(buf []byte, pos int) (value uint64, isNull bool, next int) {
	if pos >= len(buf) {
		return 0, false, pos
	}
	first := buf[pos]
	switch {
	case first < 0xfb:
		return uint64(first), false, pos + 1
	case first == nullLenEncMarker:
		return 0, true, pos + 1
	case first == 0xfc:
		if pos+3 > len(buf) {
			return 0, false, len(buf)
		}
		return uint64(binary.LittleEndian.Uint16(buf[pos+1 : pos+3])), false, pos + 3
	case first == 0xfd:
		if pos+4 > len(buf) {
			return 0, false, len(buf)
		}
		v := uint64(buf[pos+1]) | uint64(buf[pos+2])<<8 | uint64(buf[pos+3])<<16
		return v, false, pos + 4
	default: // 0xfe
		if pos+9 > len(buf) {
			return 0, false, len(buf)
		}
		return binary.LittleEndian.Uint64(buf[pos+1 : pos+9]), false, pos + 9
	}
}

// AppendLenEncInt appends v to buf in length-encoded integer form.
func AppendLenEncInt(buf []byte, v uint64) []byte {
	switch {
	case v < 251:
		return append(buf, byte(v))
	case v < 1<<16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		return append(append(buf, 0xfc), b...)
	case v < 1<<24:
		return append(buf, 0xfd, byte(v), byte(v>>8), byte(v>>16))
	default:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		return append(append(buf, 0xfe), b...)
	}
}

// ReadLenEncString reads a length-encoded string at pos: a length-encoded
// int followed by that many bytes. isNull reports the 0xfb NULL marker.
func ReadLenEncString(buf []byte, pos int) (value []byte, isNull bool, next int) {
	n, isNull, pos := ReadLenEncInt(buf, pos)
	if isNull {
		return nil, true, pos
	}
	end := pos + int(n)
	if end > len(buf) {
		end = len(buf)
	}
	return buf[pos:end], false, end
}

// AppendLenEncString appends s to buf as a length-encoded string.
func AppendLenEncString(buf []byte, s []byte) []byte {
	buf = AppendLenEncInt(buf, uint64(len(s)))
	return append(buf, s...)
}

// ReadNullTerminatedString reads bytes up to (not including) the next NUL
// byte, returning the string and the position just past the NUL.
func ReadNullTerminatedString(buf []byte, pos int) (value []byte, next int) {
	end := pos
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	next = end
	if next < len(buf) {
		next++ // skip the NUL
	}
	return buf[pos:end], next
}
