package xls

import (
	"github.com/sirupsen/logrus"
)

// legacyColumnCeiling is the column count assumed when a sheet has no
// DIMENSIONS record.
const legacyColumnCeiling = 256

// SheetGlobals is the structural envelope of one worksheet.
type SheetGlobals struct {
	// Index is the sheet's INDEX record.
	Index *IndexRecord

	// FirstRow is the first ROW record of the sheet.
	FirstRow *RowRecord

	// Dimensions is the DIMENSIONS record, if the sheet has one.
	Dimensions *DimensionsRecord

	// Columns bounds the column index of retained cells.
	Columns int

	// Rows bounds the row index of retained cells.
	Rows int
}

// readSheetGlobals seeks to the sheet's BOF and resolves its envelope.
func readSheetGlobals(stream RecordStream, g *Globals, sheet SheetDescriptor, log logrus.FieldLogger) (*SheetGlobals, error) {
	if err := stream.Seek(sheet.Offset); err != nil {
		return nil, NewXLSError(ErrExpectedWorksheetBOF, "sheet %q offset %d: %v", sheet.Name, sheet.Offset, err)
	}
	rec, err := stream.Read()
	if err != nil || !rec.IsBOF() || (BOFRecord{rec}).StreamType() != XL_WORKSHEET {
		return nil, NewXLSError(ErrExpectedWorksheetBOF, "sheet %q at offset %d", sheet.Name, sheet.Offset)
	}

	rec, err = stream.Read()
	if err == nil && rec.Type == XL_UNCALCED {
		rec, err = stream.Read()
	}
	if err != nil || rec.Type != XL_INDEX {
		return nil, NewXLSError(ErrExpectedIndex, "sheet %q at offset %d", sheet.Name, stream.Position())
	}
	sg := &SheetGlobals{Index: &IndexRecord{Record: rec, Modern: g.Modern}}

	// DIMENSIONS normally precedes the first ROW; a ROW met first ends the
	// search and is kept.
	for sg.FirstRow == nil && sg.Dimensions == nil {
		rec, err = stream.Read()
		if err != nil || rec.Type == XL_EOF {
			break
		}
		switch rec.Type {
		case XL_DIMENSIONS:
			sg.Dimensions = &DimensionsRecord{Record: rec, Modern: g.Modern}
		case XL_ROW:
			sg.FirstRow = &RowRecord{rec}
		}
	}
	for sg.FirstRow == nil {
		rec, err = stream.Read()
		if err != nil || rec.Type == XL_EOF {
			break
		}
		if rec.Type == XL_ROW {
			sg.FirstRow = &RowRecord{rec}
		}
	}

	if sg.Dimensions != nil {
		sg.Columns = int(sg.Dimensions.LastColumn()) - 1
		if sg.Columns <= 0 && sg.FirstRow != nil {
			sg.Columns = int(sg.FirstRow.LastDefinedColumn())
		}
		sg.Rows = int(sg.Dimensions.LastRow())
	} else {
		sg.Columns = legacyColumnCeiling
		sg.Rows = int(sg.Index.LastExistingRow())
	}

	first, last := sg.Index.FirstExistingRow(), sg.Index.LastExistingRow()
	if last <= first {
		return nil, NewXLSError(ErrInvertedRowBounds, "sheet %q first row %d, last row %d", sheet.Name, first, last)
	}
	if sg.FirstRow == nil {
		return nil, NewXLSError(ErrNoDataRecord, "sheet %q has no ROW record", sheet.Name)
	}

	log.WithFields(logrus.Fields{
		"sheet":   sheet.Name,
		"rows":    sg.Rows,
		"columns": sg.Columns,
		"blocks":  len(sg.Index.DbCellAddresses()),
	}).Debug("resolved worksheet")
	return sg, nil
}
