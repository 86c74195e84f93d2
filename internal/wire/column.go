package wire

import "fmt"

// Column describes one field in a result-set's column-definition block
// (Protocol::ColumnDefinition41).
type Column struct {
	Catalog      string
	Schema       string
	Table        string
	OrgTable     string
	Name         string
	OrgName      string
	CharacterSet uint16
	ColumnLength uint32
	Type         byte
	Flags        uint16
	Decimals     byte
}

// IsUnsigned reports whether the column's UNSIGNED_FLAG is set.
func (c *Column) IsUnsigned() bool { return c.Flags&0x0020 != 0 }

// IsBinary reports whether the column's BINARY_FLAG is set.
func (c *Column) IsBinary() bool { return c.Flags&0x0080 != 0 }

// ParseColumn decodes a ColumnDefinition41 packet.
func ParseColumn(payload []byte) (*Column, error) {
	var col Column
	var s []byte
	var isNull bool
	pos := 0

	s, isNull, pos = ReadLenEncString(payload, pos)
	col.Catalog = string(s)
	s, isNull, pos = ReadLenEncString(payload, pos)
	col.Schema = string(s)
	s, isNull, pos = ReadLenEncString(payload, pos)
	col.Table = string(s)
	s, isNull, pos = ReadLenEncString(payload, pos)
	col.OrgTable = string(s)
	s, isNull, pos = ReadLenEncString(payload, pos)
	col.Name = string(s)
	s, isNull, pos = ReadLenEncString(payload, pos)
	col.OrgName = string(s)
	_ = isNull

	// length-encoded "0x0c" fixed-length fields block follows.
	_, _, pos = ReadLenEncInt(payload, pos)

	if pos+12 > len(payload) {
		return nil, fmt.Errorf("wire: truncated column definition")
	}
	col.CharacterSet = uint16(payload[pos]) | uint16(payload[pos+1])<<8
	pos += 2
	col.ColumnLength = uint32(payload[pos]) | uint32(payload[pos+1])<<8 |
		uint32(payload[pos+2])<<16 | uint32(payload[pos+3])<<24
	pos += 4
	col.Type = payload[pos]
	pos++
	col.Flags = uint16(payload[pos]) | uint16(payload[pos+1])<<8
	pos += 2
	col.Decimals = payload[pos]
	pos++
	// 2 filler bytes follow, then (for COM_FIELD_LIST only) a default value.

	return &col, nil
}
