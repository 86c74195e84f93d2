// Package value provides a minimal MySQL value codec: converting text- and
// binary-protocol row bytes into Go values, and encoding Go values for
// COM_STMT_EXECUTE parameter binding. It is intentionally narrow — not a
// database/sql driver, not a marshalling/ORM layer — those are outside the
// scope of the connection library and are left to callers.
package value

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/mysqlgo/mysqlgo/internal/wire"
)

// dateLayout and friends mirror the text forms MySQL emits for temporal
// columns; these are not configurable.
const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
	timeLayout     = "15:04:05"
)

// FromText decodes one column's text-protocol representation (as found in
// a COM_QUERY text result-set row) into a Go value. A nil raw slice
// represents SQL NULL.
func FromText(col *wire.Column, raw []byte) (any, error) {
	if raw == nil {
		return nil, nil
	}
	s := string(raw)
	switch col.Type {
	case wire.TypeTiny, wire.TypeShort, wire.TypeLong, wire.TypeInt24, wire.TypeYear:
		if col.IsUnsigned() {
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("value: parse unsigned int %q: %w", s, err)
			}
			return v, nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value: parse int %q: %w", s, err)
		}
		return v, nil
	case wire.TypeLongLong:
		if col.IsUnsigned() {
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("value: parse unsigned bigint %q: %w", s, err)
			}
			return v, nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value: parse bigint %q: %w", s, err)
		}
		return v, nil
	case wire.TypeFloat, wire.TypeDouble, wire.TypeDecimal, wire.TypeNewDecimal:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("value: parse float %q: %w", s, err)
		}
		return v, nil
	case wire.TypeDate:
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("value: parse date %q: %w", s, err)
		}
		return t, nil
	case wire.TypeDateTime, wire.TypeTimestamp:
		t, err := time.Parse(dateTimeLayout, s)
		if err != nil {
			return nil, fmt.Errorf("value: parse datetime %q: %w", s, err)
		}
		return t, nil
	case wire.TypeTime:
		return s, nil // duration-like, can exceed 24h; leave as text
	case wire.TypeBlob:
		if col.IsBinary() {
			return raw, nil
		}
		return s, nil
	case wire.TypeNull:
		return nil, nil
	default:
		return s, nil
	}
}

// FromBinary decodes one column's binary-protocol representation (as found
// in a COM_STMT_EXECUTE result-set row) starting at pos. It returns the
// decoded value and the position just past it.
func FromBinary(col *wire.Column, buf []byte, pos int) (any, int, error) {
	switch col.Type {
	case wire.TypeTiny:
		if pos+1 > len(buf) {
			return nil, pos, fmt.Errorf("value: truncated tinyint")
		}
		if col.IsUnsigned() {
			return uint64(buf[pos]), pos + 1, nil
		}
		return int64(int8(buf[pos])), pos + 1, nil
	case wire.TypeShort, wire.TypeYear:
		if pos+2 > len(buf) {
			return nil, pos, fmt.Errorf("value: truncated smallint")
		}
		v := uint16(buf[pos]) | uint16(buf[pos+1])<<8
		if col.IsUnsigned() {
			return uint64(v), pos + 2, nil
		}
		return int64(int16(v)), pos + 2, nil
	case wire.TypeLong, wire.TypeInt24:
		if pos+4 > len(buf) {
			return nil, pos, fmt.Errorf("value: truncated int")
		}
		v := uint32(buf[pos]) | uint32(buf[pos+1])<<8 | uint32(buf[pos+2])<<16 | uint32(buf[pos+3])<<24
		if col.IsUnsigned() {
			return uint64(v), pos + 4, nil
		}
		return int64(int32(v)), pos + 4, nil
	case wire.TypeLongLong:
		if pos+8 > len(buf) {
			return nil, pos, fmt.Errorf("value: truncated bigint")
		}
		var v uint64
		for i := 0; i < 8; i++ {
			v |= uint64(buf[pos+i]) << (8 * i)
		}
		if col.IsUnsigned() {
			return v, pos + 8, nil
		}
		return int64(v), pos + 8, nil
	case wire.TypeFloat:
		if pos+4 > len(buf) {
			return nil, pos, fmt.Errorf("value: truncated float")
		}
		bits := uint32(buf[pos]) | uint32(buf[pos+1])<<8 | uint32(buf[pos+2])<<16 | uint32(buf[pos+3])<<24
		return float64(math.Float32frombits(bits)), pos + 4, nil
	case wire.TypeDouble:
		if pos+8 > len(buf) {
			return nil, pos, fmt.Errorf("value: truncated double")
		}
		var bits uint64
		for i := 0; i < 8; i++ {
			bits |= uint64(buf[pos+i]) << (8 * i)
		}
		return math.Float64frombits(bits), pos + 8, nil
	case wire.TypeDate, wire.TypeDateTime, wire.TypeTimestamp:
		return readBinaryTemporal(buf, pos)
	case wire.TypeTime:
		return readBinaryDuration(buf, pos)
	case wire.TypeDecimal, wire.TypeNewDecimal, wire.TypeVarchar, wire.TypeVarString,
		wire.TypeString, wire.TypeBlob, wire.TypeBit:
		s, isNull, next := wire.ReadLenEncString(buf, pos)
		if isNull {
			return nil, next, nil
		}
		if col.Type == wire.TypeBlob || col.IsBinary() {
			out := append([]byte(nil), s...)
			return out, next, nil
		}
		return string(s), next, nil
	case wire.TypeNull:
		return nil, pos, nil
	default:
		s, isNull, next := wire.ReadLenEncString(buf, pos)
		if isNull {
			return nil, next, nil
		}
		return string(s), next, nil
	}
}

func readBinaryTemporal(buf []byte, pos int) (any, int, error) {
	n, isNull, next := wire.ReadLenEncInt(buf, pos)
	if isNull || n == 0 {
		return time.Time{}, next, nil
	}
	if next+int(n) > len(buf) {
		return nil, next, fmt.Errorf("value: truncated temporal value")
	}
	b := buf[next : next+int(n)]
	year := int(uint16(b[0]) | uint16(b[1])<<8)
	month := time.Month(b[2])
	day := int(b[3])
	var hour, minute, second, microsecond int
	if n >= 7 {
		hour, minute, second = int(b[4]), int(b[5]), int(b[6])
	}
	if n >= 11 {
		microsecond = int(uint32(b[7]) | uint32(b[8])<<8 | uint32(b[9])<<16 | uint32(b[10])<<24)
	}
	t := time.Date(year, month, day, hour, minute, second, microsecond*1000, time.UTC)
	return t, next + int(n), nil
}

func readBinaryDuration(buf []byte, pos int) (any, int, error) {
	n, isNull, next := wire.ReadLenEncInt(buf, pos)
	if isNull || n == 0 {
		return time.Duration(0), next, nil
	}
	if next+int(n) > len(buf) {
		return nil, next, fmt.Errorf("value: truncated time value")
	}
	b := buf[next : next+int(n)]
	negative := b[0] != 0
	days := uint32(b[1]) | uint32(b[2])<<8 | uint32(b[3])<<16 | uint32(b[4])<<24
	hours, minutes, seconds := int(b[5]), int(b[6]), int(b[7])
	var micros int
	if n >= 12 {
		micros = int(uint32(b[8]) | uint32(b[9])<<8 | uint32(b[10])<<16 | uint32(b[11])<<24)
	}
	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(micros)*time.Microsecond
	if negative {
		d = -d
	}
	return d, next + int(n), nil
}

// EncodeBinary appends v's binary-protocol representation (for
// COM_STMT_EXECUTE parameter binding) to buf, returning the MySQL column
// type and unsigned flag to place in the parameter's type tag, and the
// extended buffer.
func EncodeBinary(buf []byte, v any) (buf2 []byte, colType byte, unsigned bool, err error) {
	switch x := v.(type) {
	case nil:
		return buf, wire.TypeNull, false, nil
	case int64:
		return appendUint64(buf, uint64(x)), wire.TypeLongLong, false, nil
	case int:
		return appendUint64(buf, uint64(int64(x))), wire.TypeLongLong, false, nil
	case uint64:
		return appendUint64(buf, x), wire.TypeLongLong, true, nil
	case float64:
		bits := math.Float64bits(x)
		return appendUint64(buf, bits), wire.TypeDouble, false, nil
	case bool:
		if x {
			return append(buf, 1), wire.TypeTiny, false, nil
		}
		return append(buf, 0), wire.TypeTiny, false, nil
	case string:
		return wire.AppendLenEncString(buf, []byte(x)), wire.TypeVarString, false, nil
	case []byte:
		return wire.AppendLenEncString(buf, x), wire.TypeBlob, false, nil
	case time.Time:
		return appendBinaryTime(buf, x), wire.TypeDateTime, false, nil
	default:
		return nil, 0, false, fmt.Errorf("value: unsupported parameter type %T", v)
	}
}

func appendUint64(buf []byte, v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return append(buf, b...)
}

// RowValues decodes a full text-protocol row (one raw byte slice per
// column, nil meaning NULL) into a []any using FromText column by column.
func RowValues(cols []*wire.Column, raw [][]byte) ([]any, error) {
	if len(cols) != len(raw) {
		return nil, fmt.Errorf("value: column/value count mismatch: %d columns, %d values", len(cols), len(raw))
	}
	out := make([]any, len(cols))
	for i, col := range cols {
		v, err := FromText(col, raw[i])
		if err != nil {
			return nil, fmt.Errorf("value: column %q: %w", col.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func appendBinaryTime(buf []byte, t time.Time) []byte {
	if t.IsZero() {
		return append(buf, 0)
	}
	micro := t.Nanosecond() / 1000
	length := byte(7)
	if micro != 0 {
		length = 11
	}
	buf = append(buf, length)
	y := t.Year()
	buf = append(buf, byte(y), byte(y>>8), byte(t.Month()), byte(t.Day()),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()))
	if micro != 0 {
		buf = append(buf, byte(micro), byte(micro>>8), byte(micro>>16), byte(micro>>24))
	}
	return buf
}
