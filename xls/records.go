package xls

import "math"

// Typed projections over raw records. Each view reads its fields lazily
// from the payload and never copies it.

// BOFRecord is a begin-of-file marker.
type BOFRecord struct{ *Record }

// IsBOF reports whether the record is any generation of BOF.
func (r *Record) IsBOF() bool {
	return bofcodes[r.Type]
}

// Version is the BIFF version word (0x0600 for BIFF8).
func (b BOFRecord) Version() uint16 { return b.U16(0) }

// StreamType is 0x0005 for workbook globals and 0x0010 for a worksheet.
func (b BOFRecord) StreamType() uint16 { return b.U16(2) }

// Visibility of a sheet as stored in BOUNDSHEET.
type Visibility uint8

const (
	Visible    Visibility = 0
	Hidden     Visibility = 1
	VeryHidden Visibility = 2
)

func (v Visibility) String() string {
	switch v {
	case Hidden:
		return "hidden"
	case VeryHidden:
		return "veryhidden"
	default:
		return "visible"
	}
}

// BoundSheetRecord describes a sheet in the globals stream.
type BoundSheetRecord struct{ *Record }

// Position is the absolute stream offset of the sheet's BOF.
func (b BoundSheetRecord) Position() int64 { return int64(b.U32(0)) }

// Visibility returns the sheet visibility.
func (b BoundSheetRecord) Visibility() Visibility { return Visibility(b.U8(4)) }

// SheetType is 0 for worksheets.
func (b BoundSheetRecord) SheetType() uint8 { return b.U8(5) }

// name decodes the sheet name.
func (b BoundSheetRecord) name(modern bool, enc *textDecoder) string {
	if modern {
		s, _ := decodeShortUnicodeString(b.Bytes(6))
		return s
	}
	s, _ := enc.byteString(b.Bytes(6), 1)
	return s
}

// IndexRecord carries the DBCELL offsets and the populated row bounds.
type IndexRecord struct {
	*Record

	// Modern selects the BIFF8 layout.
	Modern bool
}

// FirstExistingRow is the first populated row.
func (x *IndexRecord) FirstExistingRow() uint32 {
	if x.Modern {
		return x.U32(4)
	}
	return uint32(x.U16(4))
}

// LastExistingRow is one past the last populated row.
func (x *IndexRecord) LastExistingRow() uint32 {
	if x.Modern {
		return x.U32(8)
	}
	return uint32(x.U16(6))
}

// DbCellAddresses returns the absolute offsets of the DBCELL records.
func (x *IndexRecord) DbCellAddresses() []int64 {
	start := 12
	if x.Modern {
		start = 16
	}
	if len(x.Data) <= start {
		return nil
	}
	n := (len(x.Data) - start) / 4
	addrs := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		addrs = append(addrs, int64(x.U32(start+i*4)))
	}
	return addrs
}

// DbCellRecord points back to the first ROW record of its block.
type DbCellRecord struct{ *Record }

// RowAddress is the absolute offset of the first ROW of the block.
func (d DbCellRecord) RowAddress() int64 {
	return d.Offset - int64(d.I32(0))
}

// RowRecord describes one row of a worksheet.
type RowRecord struct{ *Record }

// RowIndex is the zero-based row number.
func (r RowRecord) RowIndex() uint16 { return r.U16(0) }

// FirstDefinedColumn is the first column holding a cell.
func (r RowRecord) FirstDefinedColumn() uint16 { return r.U16(2) }

// LastDefinedColumn is one past the last column holding a cell.
func (r RowRecord) LastDefinedColumn() uint16 { return r.U16(4) }

// DimensionsRecord holds the used range of a worksheet.
type DimensionsRecord struct {
	*Record
	Modern bool
}

// LastRow is one past the last used row.
func (d DimensionsRecord) LastRow() uint32 {
	if d.Modern {
		return d.U32(4)
	}
	return uint32(d.U16(2))
}

// LastColumn is the last used column plus one in the record's own counting.
func (d DimensionsRecord) LastColumn() uint16 {
	if d.Modern {
		return uint16(d.U8(10)) + 1
	}
	return d.U16(6)
}

// CellRecord is any record that carries cell data.
type CellRecord struct{ *Record }

// Legacy reports the BIFF2 layout, which packs the XF index into one byte
// followed by two attribute bytes.
func (c CellRecord) Legacy() bool {
	switch c.Type {
	case XL_BLANK_OLD, XL_INTEGER_OLD, XL_NUMBER_OLD, XL_LABEL_OLD, XL_BOOLERR_OLD:
		return true
	}
	return false
}

// RowIndex is the zero-based row.
func (c CellRecord) RowIndex() uint16 { return c.U16(0) }

// ColumnIndex is the zero-based column; for MULRK and MULBLANK the first column.
func (c CellRecord) ColumnIndex() uint16 { return c.U16(2) }

// XFIndex is the extended-format index of the cell.
func (c CellRecord) XFIndex() uint16 {
	if c.Legacy() {
		return uint16(c.U8(4) & 0x3F)
	}
	return c.U16(4)
}

// valuePos is where the value field starts.
func (c CellRecord) valuePos() int {
	if c.Legacy() {
		return 7
	}
	return 6
}

// LastColumnIndex is the last column of a MULRK or MULBLANK record.
func (c CellRecord) LastColumnIndex() uint16 {
	return c.U16(len(c.Data) - 2)
}

// MulRKCount is the number of (xf, rk) pairs of a MULRK record.
func (c CellRecord) MulRKCount() int {
	if len(c.Data) < 6 {
		return 0
	}
	return (len(c.Data) - 6) / 6
}

// MulRKEntry returns the style and packed value of the i-th MULRK entry.
func (c CellRecord) MulRKEntry(i int) (uint16, RKNumber) {
	pos := 4 + i*6
	return c.U16(pos), RKNumber(c.U32(pos + 2))
}

// RKNumber is a packed 30-bit number: bit 0 flags a value multiplied by
// 100, bit 1 flags an integer rather than the top bits of a double.
type RKNumber uint32

// Float64 decodes the number.
func (r RKNumber) Float64() float64 {
	var v float64
	if r&0x02 != 0 {
		v = float64(int32(r) >> 2)
	} else {
		v = math.Float64frombits(uint64(r&0xFFFFFFFC) << 32)
	}
	if r&0x01 != 0 {
		v /= 100
	}
	return v
}
