package xls

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// CellSet is a sparse set of decoded cells keyed by coordinate. Each
// coordinate holds at most one value.
type CellSet struct {
	cells map[Coord]Value
}

// NewCellSet creates an empty CellSet.
func NewCellSet() *CellSet {
	return &CellSet{cells: make(map[Coord]Value)}
}

// Set stores v at c and reports whether it replaced an existing value.
func (s *CellSet) Set(c Coord, v Value) bool {
	_, exists := s.cells[c]
	s.cells[c] = v
	return exists
}

// Get returns the value at c.
func (s *CellSet) Get(c Coord) (Value, bool) {
	v, ok := s.cells[c]
	return v, ok
}

// Delete removes the value at c.
func (s *CellSet) Delete(c Coord) {
	delete(s.cells, c)
}

// Len returns the number of stored cells.
func (s *CellSet) Len() int {
	return len(s.cells)
}

// Coords returns all coordinates in row-major order.
func (s *CellSet) Coords() []Coord {
	coords := make([]Coord, 0, len(s.cells))
	for c := range s.cells {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].Row != coords[j].Row {
			return coords[i].Row < coords[j].Row
		}
		return coords[i].Col < coords[j].Col
	})
	return coords
}

// cellExtractor walks the INDEX blocks of one worksheet.
type cellExtractor struct {
	stream  RecordStream
	sheet   *SheetGlobals
	decoder *cellDecoder
	cells   *CellSet
	log     logrus.FieldLogger
}

func extractCells(stream RecordStream, g *Globals, sg *SheetGlobals, convertDates bool, log logrus.FieldLogger) *CellSet {
	x := &cellExtractor{
		stream:  stream,
		sheet:   sg,
		decoder: &cellDecoder{globals: g, convertDates: convertDates, log: log},
		cells:   NewCellSet(),
		log:     log,
	}
	for _, addr := range sg.Index.DbCellAddresses() {
		offset, ok := x.firstCellOffset(addr)
		if !ok {
			continue
		}
		x.scanBlock(offset)
	}
	return x.cells
}

// insert stores one decoded value, enforcing the sheet bounds.
func (x *cellExtractor) insert(row, col uint16, v Value) {
	fields := logrus.Fields{"row": row, "col": col}
	if int(row) >= x.sheet.Rows || int(col) >= x.sheet.Columns {
		x.log.WithFields(fields).Warnf("discarding cell outside %dx%d sheet bounds", x.sheet.Rows, x.sheet.Columns)
		return
	}
	if x.cells.Set(Coord{Row: int(row), Col: int(col)}, v) {
		x.log.WithFields(fields).Debug("overwriting cell")
	}
}

// firstCellOffset finds the DBCELL of the block starting at addr and steps
// over the ROW records it points to.
func (x *cellExtractor) firstCellOffset(addr int64) (int64, bool) {
	rec, err := x.stream.ReadAt(addr)
	for {
		if err != nil || rec.Type == XL_EOF {
			x.log.WithField("offset", addr).Warn("no block found")
			return 0, false
		}
		if rec.Type == XL_DBCELL {
			break
		}
		rec, err = x.stream.Read()
	}

	offset := DbCellRecord{rec}.RowAddress()
	for {
		row, err := x.stream.ReadAt(offset)
		if err != nil || row.Type != XL_ROW {
			return offset, true
		}
		offset += row.Size()
	}
}

// scanBlock decodes cell records from offset until EOF or stream end.
func (x *cellExtractor) scanBlock(offset int64) {
	rec, err := x.stream.ReadAt(offset)
	for err == nil {
		switch {
		case rec.Type == XL_DBCELL, rec.Type == XL_MSODRAWING:
		case rec.Type == XL_EOF:
			return
		case IsCellOpcode(rec.Type):
			c := CellRecord{rec}
			if int(c.ColumnIndex()) >= x.sheet.Columns {
				x.log.WithFields(logrus.Fields{"row": c.RowIndex(), "col": c.ColumnIndex()}).Debug("skipping cell outside column bound")
				break
			}
			if x.decoder.decode(c, x.insert) {
				next, nerr := x.nextAfterFormula()
				if nerr != nil {
					return
				}
				if next.Type != XL_STRING && next.Type != XL_STRING_OLD {
					rec = next
					continue
				}
				x.insert(c.RowIndex(), c.ColumnIndex(), TextValue(x.decoder.stringResult(next)))
			}
		}
		rec, err = x.stream.Read()
	}
}

// nextAfterFormula reads the record after a FORMULA, stepping over the
// SHRFMLA, ARRAY and TABLEOP records that may sit before its STRING.
func (x *cellExtractor) nextAfterFormula() (*Record, error) {
	for {
		rec, err := x.stream.Read()
		if err != nil {
			return nil, err
		}
		switch rec.Type {
		case XL_SHRFMLA, XL_ARRAY, XL_TABLEOP:
			continue
		}
		return rec, nil
	}
}
