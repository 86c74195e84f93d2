package conn

import (
	"github.com/mysqlgo/mysqlgo/internal/value"
	"github.com/mysqlgo/mysqlgo/internal/wire"
)

// Row is one decoded result-set row: one Go value per column (nil meaning
// SQL NULL), decoded via internal/value at read time from either the text
// or binary protocol encoding.
type Row struct {
	Columns []*wire.Column
	Values  []any
}

// Get returns the decoded value for the named column, or (nil, false) if no
// column with that name exists.
func (r *Row) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if c.Name == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

func decodeTextRow(pkt []byte, columns []*wire.Column) (*Row, error) {
	values := make([]any, len(columns))
	pos := 0
	for i, col := range columns {
		raw, isNull, next := wire.ReadLenEncString(pkt, pos)
		pos = next
		if isNull {
			values[i] = nil
			continue
		}
		v, err := value.FromText(col, raw)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return &Row{Columns: columns, Values: values}, nil
}

func decodeBinaryRow(pkt []byte, columns []*wire.Column) (*Row, error) {
	if len(pkt) == 0 || pkt[0] != 0x00 {
		return nil, errUnexpectedBinaryRowHeader
	}
	nullBitmapLen := (len(columns) + 7 + 2) / 8
	pos := 1 + nullBitmapLen
	if pos > len(pkt) {
		return nil, errTruncatedNullBitmap
	}
	nullBitmap := pkt[1:pos]

	values := make([]any, len(columns))
	for i, col := range columns {
		bytePos := (i + 2) / 8
		bitPos := uint((i + 2) % 8)
		if bytePos < len(nullBitmap) && nullBitmap[bytePos]&(1<<bitPos) != 0 {
			values[i] = nil
			continue
		}
		v, next, err := value.FromBinary(col, pkt, pos)
		if err != nil {
			return nil, err
		}
		values[i] = v
		pos = next
	}
	return &Row{Columns: columns, Values: values}, nil
}
