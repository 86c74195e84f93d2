package value

import (
	"testing"
	"time"

	"github.com/mysqlgo/mysqlgo/internal/wire"
)

func TestFromTextInt(t *testing.T) {
	col := &wire.Column{Type: wire.TypeLong}
	v, err := FromText(col, []byte("42"))
	if err != nil {
		t.Fatalf("FromText: %v", err)
	}
	if v.(int64) != 42 {
		t.Fatalf("got %v, want 42", v)
	}
}

func TestFromTextUnsignedBigint(t *testing.T) {
	col := &wire.Column{Type: wire.TypeLongLong, Flags: 0x0020}
	v, err := FromText(col, []byte("18446744073709551615"))
	if err != nil {
		t.Fatalf("FromText: %v", err)
	}
	if v.(uint64) != 18446744073709551615 {
		t.Fatalf("got %v", v)
	}
}

func TestFromTextNull(t *testing.T) {
	col := &wire.Column{Type: wire.TypeLong}
	v, err := FromText(col, nil)
	if err != nil || v != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", v, err)
	}
}

func TestFromTextDate(t *testing.T) {
	col := &wire.Column{Type: wire.TypeDate}
	v, err := FromText(col, []byte("2024-01-15"))
	if err != nil {
		t.Fatalf("FromText: %v", err)
	}
	tm := v.(time.Time)
	if tm.Year() != 2024 || tm.Month() != time.January || tm.Day() != 15 {
		t.Fatalf("got %v", tm)
	}
}

func TestFromBinaryLong(t *testing.T) {
	col := &wire.Column{Type: wire.TypeLong}
	buf := []byte{0x2a, 0x00, 0x00, 0x00}
	v, next, err := FromBinary(col, buf, 0)
	if err != nil {
		t.Fatalf("FromBinary: %v", err)
	}
	if v.(int64) != 42 || next != 4 {
		t.Fatalf("got (%v, %d)", v, next)
	}
}

func TestFromBinaryVarString(t *testing.T) {
	col := &wire.Column{Type: wire.TypeVarString}
	buf := wire.AppendLenEncString(nil, []byte("hi"))
	v, next, err := FromBinary(col, buf, 0)
	if err != nil {
		t.Fatalf("FromBinary: %v", err)
	}
	if v.(string) != "hi" || next != len(buf) {
		t.Fatalf("got (%v, %d)", v, next)
	}
}

func TestEncodeBinaryRoundTripInt(t *testing.T) {
	buf, colType, unsigned, err := EncodeBinary(nil, int64(7))
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	if colType != wire.TypeLongLong || unsigned {
		t.Fatalf("got type=%v unsigned=%v", colType, unsigned)
	}
	col := &wire.Column{Type: wire.TypeLongLong}
	v, next, err := FromBinary(col, buf, 0)
	if err != nil {
		t.Fatalf("FromBinary: %v", err)
	}
	if v.(int64) != 7 || next != len(buf) {
		t.Fatalf("got (%v, %d)", v, next)
	}
}

func TestEncodeBinaryNil(t *testing.T) {
	buf, colType, _, err := EncodeBinary(nil, nil)
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	if colType != wire.TypeNull || len(buf) != 0 {
		t.Fatalf("got type=%v buf=%v", colType, buf)
	}
}

func TestRowValues(t *testing.T) {
	cols := []*wire.Column{{Type: wire.TypeLong}, {Type: wire.TypeVarchar}}
	raw := [][]byte{[]byte("1"), []byte("hello")}
	vals, err := RowValues(cols, raw)
	if err != nil {
		t.Fatalf("RowValues: %v", err)
	}
	if vals[0].(int64) != 1 || vals[1].(string) != "hello" {
		t.Fatalf("got %v", vals)
	}
}

func TestRowValuesMismatch(t *testing.T) {
	cols := []*wire.Column{{Type: wire.TypeLong}}
	if _, err := RowValues(cols, nil); err == nil {
		t.Fatalf("expected error for column/value count mismatch")
	}
}
