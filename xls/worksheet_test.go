package xls

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveTestSheet(t *testing.T, s testSheet) (*SheetGlobals, error) {
	t.Helper()
	mem := testWorkbook{sheets: []testSheet{s}}.build()
	stream := NewByteStream(mem)
	g, err := readGlobals(stream, discardLogger(), 0)
	require.NoError(t, err)
	require.Len(t, g.Sheets, 1)
	return readSheetGlobals(stream, g, g.Sheets[0], discardLogger())
}

func TestReadSheetGlobals(t *testing.T) {
	sg, err := resolveTestSheet(t, testSheet{
		name:    "S",
		bounds:  bounds(2, 4),
		dimRows: 4,
		dimCols: 3,
		cells:   []testRecord{numberRec(2, 0, 0, 1), numberRec(3, 2, 0, 2)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sg.Columns)
	assert.Equal(t, 4, sg.Rows)
	require.NotNil(t, sg.FirstRow)
	assert.Equal(t, uint16(2), sg.FirstRow.RowIndex())
	require.NotNil(t, sg.Dimensions)
	assert.Len(t, sg.Index.DbCellAddresses(), 1)
}

func TestReadSheetGlobalsUncalced(t *testing.T) {
	sg, err := resolveTestSheet(t, testSheet{
		name:     "S",
		uncalced: true,
		cells:    []testRecord{numberRec(0, 0, 0, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, sg.Columns)
}

func TestReadSheetGlobalsWithoutDimensions(t *testing.T) {
	sg, err := resolveTestSheet(t, testSheet{
		name:         "S",
		bounds:       bounds(0, 7),
		noDimensions: true,
		cells:        []testRecord{numberRec(0, 0, 0, 1)},
	})
	require.NoError(t, err)
	assert.Nil(t, sg.Dimensions)
	assert.Equal(t, legacyColumnCeiling, sg.Columns)
	assert.Equal(t, 7, sg.Rows)
	assert.NotNil(t, sg.FirstRow)
}

func TestReadSheetGlobalsColumnsFromRow(t *testing.T) {
	// colMac 0x0100 leaves a zero low byte, so the DIMENSIONS column
	// count is unusable and the first ROW's last column is taken.
	sg, err := resolveTestSheet(t, testSheet{
		name:    "S",
		dimCols: 0x0100,
		cells:   []testRecord{numberRec(0, 0, 0, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, sg.Columns)
}

func TestReadSheetGlobalsErrors(t *testing.T) {
	tests := []struct {
		name  string
		sheet testSheet
		want  error
	}{
		{"inverted bounds", testSheet{name: "S", bounds: bounds(5, 5), cells: []testRecord{numberRec(5, 0, 0, 1)}}, ErrInvertedRowBounds},
		{"descending bounds", testSheet{name: "S", bounds: bounds(9, 3), cells: []testRecord{numberRec(5, 0, 0, 1)}}, ErrInvertedRowBounds},
		{"no rows", testSheet{name: "S", noRows: true, cells: []testRecord{numberRec(0, 0, 0, 1)}}, ErrNoDataRecord},
		{"empty sheet", testSheet{name: "S"}, ErrNoDataRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveTestSheet(t, tt.sheet)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestReadSheetGlobalsStructureErrors(t *testing.T) {
	w := &biffWriter{}
	w.write(bofRec(XL_WORKBOOK_GLOBALS))
	w.write(eofRec())
	noIndex := w.write(bofRec(XL_WORKSHEET))
	w.write(testRecord{XL_DIMENSIONS, le(uint32(0), uint32(1), uint16(0), uint16(1), uint16(0))})
	w.write(eofRec())
	rowFirst := w.write(bofRec(XL_WORKSHEET))
	w.write(testRecord{XL_INDEX, le(uint32(0), uint32(0), uint32(1), uint32(0))})
	w.write(testRecord{XL_ROW, le(uint16(0), uint16(0), uint16(4), uint16(0xFF), uint16(0), uint16(0), uint32(0))})
	w.write(testRecord{XL_DIMENSIONS, le(uint32(0), uint32(1), uint16(0), uint16(4), uint16(0))})
	w.write(eofRec())

	stream := NewByteStream(w.buf)
	g, err := readGlobals(stream, discardLogger(), 0)
	require.NoError(t, err)

	_, err = readSheetGlobals(stream, g, SheetDescriptor{Name: "globals", Offset: 0}, discardLogger())
	assert.True(t, errors.Is(err, ErrExpectedWorksheetBOF), "got %v", err)

	_, err = readSheetGlobals(stream, g, SheetDescriptor{Name: "far", Offset: int64(len(w.buf)) + 10}, discardLogger())
	assert.True(t, errors.Is(err, ErrExpectedWorksheetBOF), "got %v", err)

	_, err = readSheetGlobals(stream, g, SheetDescriptor{Name: "noindex", Offset: noIndex}, discardLogger())
	assert.True(t, errors.Is(err, ErrExpectedIndex), "got %v", err)

	sg, err := readSheetGlobals(stream, g, SheetDescriptor{Name: "rowfirst", Offset: rowFirst}, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, sg.Dimensions)
	assert.Equal(t, legacyColumnCeiling, sg.Columns)
	assert.Equal(t, uint16(4), sg.FirstRow.LastDefinedColumn())
}
