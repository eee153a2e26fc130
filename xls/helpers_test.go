package xls

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Helpers that write BIFF8 streams for tests.

type testRecord struct {
	code uint16
	data []byte
}

// le packs values little-endian. Only explicitly sized types are accepted.
func le(values ...interface{}) []byte {
	var out []byte
	for _, v := range values {
		switch v := v.(type) {
		case uint8:
			out = append(out, v)
		case uint16:
			out = binary.LittleEndian.AppendUint16(out, v)
		case uint32:
			out = binary.LittleEndian.AppendUint32(out, v)
		case int32:
			out = binary.LittleEndian.AppendUint32(out, uint32(v))
		case float64:
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
		case []byte:
			out = append(out, v...)
		case string:
			out = append(out, v...)
		default:
			panic(fmt.Sprintf("le: unsupported %T", v))
		}
	}
	return out
}

type biffWriter struct {
	buf []byte
}

func (w *biffWriter) offset() int64 {
	return int64(len(w.buf))
}

func (w *biffWriter) write(r testRecord) int64 {
	off := w.offset()
	w.buf = binary.LittleEndian.AppendUint16(w.buf, r.code)
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(len(r.data)))
	w.buf = append(w.buf, r.data...)
	return off
}

func (w *biffWriter) patchU32(at int64, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[at:], v)
}

func bofRec(streamType uint16) testRecord {
	return testRecord{XL_BOF, le(uint16(BIFF8), streamType, uint16(0x0DBB), uint16(0x07CC), uint32(0x41), uint32(0x06))}
}

func eofRec() testRecord {
	return testRecord{XL_EOF, nil}
}

func codepageRec(cp uint16) testRecord {
	return testRecord{XL_CODEPAGE, le(cp)}
}

// xfRec writes a BIFF8 XF whose number format applies when applies is set.
func xfRec(formatID uint16, applies bool) testRecord {
	var used uint8
	if applies {
		used = 0x04
	}
	return testRecord{XL_XF, le(uint16(0), formatID, uint16(0), uint8(0), uint8(0), uint8(0), used, make([]byte, 10))}
}

func formatRec(id uint16, format string) testRecord {
	return testRecord{XL_FORMAT, le(id, uint16(len(format)), uint8(0), format)}
}

func boundSheetRec(name string, visibility uint8) testRecord {
	return testRecord{XL_BOUNDSHEET, le(uint32(0), visibility, uint8(XL_BOUNDSHEET_WORKSHEET), uint8(len(name)), uint8(0), name)}
}

func sstRec(strs ...string) testRecord {
	data := le(uint32(len(strs)), uint32(len(strs)))
	for _, s := range strs {
		data = append(data, le(uint16(len(s)), uint8(0), s)...)
	}
	return testRecord{XL_SST, data}
}

func numberRec(row, col, xf uint16, v float64) testRecord {
	return testRecord{XL_NUMBER, le(row, col, xf, v)}
}

func labelRec(row, col uint16, s string) testRecord {
	return testRecord{XL_LABEL, le(row, col, uint16(0), uint16(len(s)), uint8(0), s)}
}

func labelSSTRec(row, col uint16, isst uint32) testRecord {
	return testRecord{XL_LABELSST, le(row, col, uint16(0), isst)}
}

func rkRec(row, col, xf uint16, rk uint32) testRecord {
	return testRecord{XL_RK, le(row, col, xf, rk)}
}

func mulrkRec(row, col uint16, xfs []uint16, rks []uint32) testRecord {
	data := le(row, col)
	for i := range rks {
		data = append(data, le(xfs[i], rks[i])...)
	}
	data = append(data, le(col+uint16(len(rks))-1)...)
	return testRecord{XL_MULRK, data}
}

func boolerrRec(row, col uint16, value, isError uint8) testRecord {
	return testRecord{XL_BOOLERR, le(row, col, uint16(0), value, isError)}
}

func blankRec(row, col uint16) testRecord {
	return testRecord{XL_BLANK, le(row, col, uint16(0))}
}

func formulaNumberRec(row, col, xf uint16, v float64) testRecord {
	return testRecord{XL_FORMULA, le(row, col, xf, v, uint16(0), uint32(0), uint16(0))}
}

// formulaSpecialRec writes a formula whose cached result is not a number:
// kind 0 string, 1 bool, 2 error, 3 empty.
func formulaSpecialRec(row, col uint16, kind, value uint8) testRecord {
	return testRecord{XL_FORMULA, le(row, col, uint16(0), kind, uint8(0), value, uint8(0), uint16(0), uint16(0xFFFF), uint16(0), uint32(0), uint16(0))}
}

func stringRec(s string) testRecord {
	return testRecord{XL_STRING, le(uint16(len(s)), uint8(0), s)}
}

// rkInt packs an integer RK value.
func rkInt(v int32) uint32 {
	return uint32(v<<2) | 0x02
}

type testSheet struct {
	name       string
	visibility uint8

	// bounds are the INDEX first and last existing rows; nil means 0..100.
	bounds *[2]uint32

	noDimensions bool
	// dimRows and dimCols are DIMENSIONS rwMac and colMac; 0 means 100 and 10.
	dimRows uint32
	dimCols uint16

	uncalced bool
	noRows   bool
	cells    []testRecord
}

type testWorkbook struct {
	codepage uint16
	formats  []testRecord
	xfs      []testRecord
	sst      []string
	extra    []testRecord
	sheets   []testSheet
}

func (wb testWorkbook) build() []byte {
	w := &biffWriter{}
	w.write(bofRec(XL_WORKBOOK_GLOBALS))
	cp := wb.codepage
	if cp == 0 {
		cp = codepageUTF16LE
	}
	w.write(codepageRec(cp))
	for _, r := range wb.formats {
		w.write(r)
	}
	for _, r := range wb.xfs {
		w.write(r)
	}
	bsOffsets := make([]int64, 0, len(wb.sheets))
	for _, s := range wb.sheets {
		bsOffsets = append(bsOffsets, w.write(boundSheetRec(s.name, s.visibility)))
	}
	if wb.sst != nil {
		w.write(sstRec(wb.sst...))
	}
	for _, r := range wb.extra {
		w.write(r)
	}
	w.write(eofRec())

	for i, s := range wb.sheets {
		pos := w.writeSheet(s)
		w.patchU32(bsOffsets[i]+4, uint32(pos))
	}
	return w.buf
}

func (w *biffWriter) writeSheet(s testSheet) int64 {
	start := w.write(bofRec(XL_WORKSHEET))
	if s.uncalced {
		w.write(testRecord{XL_UNCALCED, le(uint16(0))})
	}
	bounds := [2]uint32{0, 100}
	if s.bounds != nil {
		bounds = *s.bounds
	}
	indexOff := w.write(testRecord{XL_INDEX, le(uint32(0), bounds[0], bounds[1], uint32(0), uint32(0))})
	if !s.noDimensions {
		rows, cols := s.dimRows, s.dimCols
		if rows == 0 {
			rows = 100
		}
		if cols == 0 {
			cols = 10
		}
		w.write(testRecord{XL_DIMENSIONS, le(uint32(0), rows, uint16(0), cols, uint16(0))})
	}

	rowStart := w.offset()
	if !s.noRows {
		for _, row := range cellRows(s.cells) {
			w.write(testRecord{XL_ROW, le(row, uint16(0), uint16(10), uint16(0x00FF), uint16(0), uint16(0), uint32(0x100))})
		}
	}
	for _, c := range s.cells {
		w.write(c)
	}
	dbOff := w.offset()
	w.write(testRecord{XL_DBCELL, le(uint32(dbOff - rowStart))})
	w.write(eofRec())
	// INDEX payload: 16 header bytes, then the DBCELL offset.
	w.patchU32(indexOff+4+16, uint32(dbOff))
	return start
}

// cellRows returns the distinct row numbers of cell records in ascending order.
func cellRows(cells []testRecord) []uint16 {
	seen := make(map[uint16]bool)
	var rows []uint16
	for _, c := range cells {
		if !IsCellOpcode(c.code) || len(c.data) < 2 {
			continue
		}
		row := binary.LittleEndian.Uint16(c.data)
		if !seen[row] {
			seen[row] = true
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })
	return rows
}

func bounds(first, last uint32) *[2]uint32 {
	return &[2]uint32{first, last}
}
