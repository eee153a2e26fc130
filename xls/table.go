package xls

import "strconv"

// Table is a dense rendering of a worksheet's cells.
type Table struct {
	// Columns holds one name per column; "" means unnamed.
	Columns []string

	// Rows holds the populated rows in ascending order. Each row is as
	// wide as its last populated column; missing cells are Null.
	Rows [][]Value
}

// AssembleTable builds a Table from cells. With firstRowAsHeader, row 0
// supplies the column names and is not emitted as data; blank or missing
// names become "Column" followed by the column index. The cell set is
// consumed.
func AssembleTable(cells *CellSet, columns int, firstRowAsHeader bool) *Table {
	t := &Table{Columns: make([]string, columns)}
	if firstRowAsHeader {
		for col := 0; col < columns; col++ {
			name := "Column" + strconv.Itoa(col)
			c := Coord{Row: 0, Col: col}
			if v, ok := cells.Get(c); ok && !v.IsBlank() {
				name = v.String()
			}
			t.Columns[col] = name
		}
		for _, c := range cells.Coords() {
			if c.Row != 0 {
				break
			}
			cells.Delete(c)
		}
	}

	coords := cells.Coords()
	for start := 0; start < len(coords); {
		row := coords[start].Row
		end := start
		for end < len(coords) && coords[end].Row == row {
			end++
		}
		values := make([]Value, coords[end-1].Col+1)
		for _, c := range coords[start:end] {
			values[c.Col], _ = cells.Get(c)
		}
		t.Rows = append(t.Rows, values)
		start = end
	}
	return t
}
