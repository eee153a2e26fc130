package main

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/mattn/go-runewidth"
	"github.com/metakeule/fmtdate"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/jansaris/ExcelDataReader/xls"
)

func (c *converter) writeTables(w io.Writer, tables []*xls.DataTable) error {
	switch c.opts.format {
	case "json":
		return writeJSON(w, tables, c.opts)
	case "xlsx":
		return writeXLSX(w, tables, c.opts)
	case "table":
		return writeTextTables(w, tables, c.opts)
	default:
		return writeCSV(w, tables, c.opts)
	}
}

type field struct {
	text      string
	isNumeric bool
}

// formatValue renders one cell for the text formats.
func formatValue(v xls.Value, opts options) field {
	switch v.Kind() {
	case xls.Null:
		return field{}
	case xls.Bool:
		if v.Bool() {
			return field{text: "TRUE"}
		}
		return field{text: "FALSE"}
	case xls.Int:
		return field{text: strconv.FormatInt(v.Int(), 10), isNumeric: true}
	case xls.Float:
		return field{text: formatFloat(v.Float(), opts.floatFormat), isNumeric: true}
	case xls.Date:
		return field{text: maybeEscape(formatDate(v.Time(), opts.dateFormat), opts.escape)}
	default:
		return field{text: maybeEscape(v.String(), opts.escape)}
	}
}

func formatFloat(val float64, floatFormat string) string {
	if floatFormat != "" {
		return fmt.Sprintf(floatFormat, val)
	}
	return strconv.FormatFloat(val, 'g', -1, 64)
}

// formatDate renders t with a fmtdate layout, or picks a time, date or
// date-time rendering by default. Serial numbers below 1 land on the last
// day of 1899 and are times of day.
func formatDate(t time.Time, layout string) string {
	if layout != "" {
		return fmtdate.Format(layout, t)
	}
	if t.Year() < 1900 {
		return t.Format("15:04:05")
	}
	if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
		return t.Format("2006-01-02 15:04:05")
	}
	return t.Format("2006-01-02")
}

func maybeEscape(value string, enabled bool) string {
	if !enabled || value == "" {
		return value
	}
	replacer := strings.NewReplacer("\r", "\\r", "\n", "\\n", "\t", "\\t")
	return replacer.Replace(value)
}

// tableWidth is the number of columns to write: the widest row, or the
// named header columns when they reach further.
func tableWidth(t *xls.DataTable) int {
	width := 0
	for _, row := range t.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	for i := len(t.Columns) - 1; i >= width; i-- {
		if name := t.Columns[i]; name != "" && name != "Column"+strconv.Itoa(i) {
			return i + 1
		}
	}
	return width
}

// hasHeader reports whether the table carries column names.
func hasHeader(t *xls.DataTable) bool {
	for _, name := range t.Columns {
		if name != "" {
			return true
		}
	}
	return false
}

func isEmptyRow(row []xls.Value) bool {
	for _, v := range row {
		if !v.IsBlank() {
			return false
		}
	}
	return true
}

// rowFields renders row padded to width.
func rowFields(row []xls.Value, width int, opts options) []field {
	fields := make([]field, width)
	for i := 0; i < width && i < len(row); i++ {
		fields[i] = formatValue(row[i], opts)
	}
	return fields
}

func headerFields(t *xls.DataTable, width int) []field {
	fields := make([]field, width)
	for i := 0; i < width && i < len(t.Columns); i++ {
		fields[i] = field{text: t.Columns[i]}
	}
	return fields
}

type csvWriter struct {
	w              io.Writer
	delimiter      rune
	lineTerminator string
	quoting        quotingMode
}

func writeCSV(w io.Writer, tables []*xls.DataTable, opts options) error {
	cw := &csvWriter{
		w:              w,
		delimiter:      opts.delimiter,
		lineTerminator: opts.lineTerminator,
		quoting:        opts.quoting,
	}
	for i, t := range tables {
		if i > 0 && opts.sheetDelimiter != "" {
			if _, err := fmt.Fprint(w, opts.sheetDelimiter, opts.lineTerminator); err != nil {
				return err
			}
		}
		width := tableWidth(t)
		if hasHeader(t) {
			if err := cw.writeRow(headerFields(t, width)); err != nil {
				return err
			}
		}
		for _, row := range t.Rows {
			if opts.ignoreEmpty && isEmptyRow(row) {
				continue
			}
			if err := cw.writeRow(rowFields(row, width, opts)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cw *csvWriter) writeRow(fields []field) error {
	var buf bytes.Buffer
	for i, field := range fields {
		if i > 0 {
			buf.WriteRune(cw.delimiter)
		}
		buf.WriteString(cw.formatField(field))
	}
	buf.WriteString(cw.lineTerminator)
	_, err := cw.w.Write(buf.Bytes())
	return err
}

func (cw *csvWriter) formatField(f field) string {
	if !cw.needsQuote(f) {
		return f.text
	}
	return `"` + strings.ReplaceAll(f.text, `"`, `""`) + `"`
}

func (cw *csvWriter) needsQuote(f field) bool {
	switch cw.quoting {
	case quotingAll:
		return true
	case quotingNonNumeric:
		return !f.isNumeric
	case quotingMinimal:
		return strings.ContainsRune(f.text, cw.delimiter) || strings.ContainsAny(f.text, "\"\r\n")
	default:
		return false
	}
}

type jsonSheet struct {
	Name       string          `json:"name"`
	Visibility string          `json:"visibility"`
	Columns    []string        `json:"columns,omitempty"`
	Rows       [][]interface{} `json:"rows"`
}

// jsonValue maps a cell to a JSON value; dates use the text rendering.
func jsonValue(v xls.Value, opts options) interface{} {
	switch v.Kind() {
	case xls.Date:
		return formatDate(v.Time(), opts.dateFormat)
	case xls.Float:
		if math.IsNaN(v.Float()) || math.IsInf(v.Float(), 0) {
			return nil
		}
	}
	return v.Interface()
}

func writeJSON(w io.Writer, tables []*xls.DataTable, opts options) error {
	sheets := make([]jsonSheet, 0, len(tables))
	for _, t := range tables {
		width := tableWidth(t)
		s := jsonSheet{
			Name:       t.Name,
			Visibility: t.ExtendedProperties[xls.PropertyVisibleState],
			Rows:       make([][]interface{}, 0, len(t.Rows)),
		}
		if hasHeader(t) {
			s.Columns = t.Columns[:width]
		}
		for _, row := range t.Rows {
			if opts.ignoreEmpty && isEmptyRow(row) {
				continue
			}
			values := make([]interface{}, width)
			for i := 0; i < width && i < len(row); i++ {
				values[i] = jsonValue(row[i], opts)
			}
			s.Rows = append(s.Rows, values)
		}
		sheets = append(sheets, s)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sheets)
}

// maxSheetName is the longest sheet name an xlsx workbook accepts.
const maxSheetName = 31

func xlsxSheetName(name string, index int) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = "Sheet" + strconv.Itoa(index+1)
	}
	for utf8.RuneCountInString(clean) > maxSheetName {
		_, size := utf8.DecodeLastRuneInString(clean)
		clean = clean[:len(clean)-size]
	}
	return clean
}

func writeXLSX(w io.Writer, tables []*xls.DataTable, opts options) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		name := xlsxSheetName(t.Name, i)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return errors.Wrapf(err, "naming sheet %q", t.Name)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return errors.Wrapf(err, "adding sheet %q", t.Name)
		}
		// The first sheet stays visible; a workbook needs one.
		if t.ExtendedProperties[xls.PropertyVisibleState] != "visible" && i > 0 {
			if err := f.SetSheetVisible(name, false); err != nil {
				return err
			}
		}

		width := tableWidth(t)
		line := 1
		if hasHeader(t) {
			header := make([]interface{}, width)
			for col := 0; col < width; col++ {
				header[col] = t.Columns[col]
			}
			if err := setRow(f, name, line, header); err != nil {
				return err
			}
			line++
		}
		for _, row := range t.Rows {
			if opts.ignoreEmpty && isEmptyRow(row) {
				continue
			}
			values := make([]interface{}, len(row))
			for col, v := range row {
				values[col] = v.Interface()
			}
			if err := setRow(f, name, line, values); err != nil {
				return err
			}
			line++
		}
	}
	return f.Write(w)
}

func setRow(f *excelize.File, sheet string, line int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return err
	}
	return errors.Wrapf(f.SetSheetRow(sheet, cell, &values), "writing row %d of %q", line, sheet)
}

// writeTextTables renders each table as aligned columns. Widths are
// measured in terminal cells so that wide characters line up.
func writeTextTables(w io.Writer, tables []*xls.DataTable, opts options) error {
	for i, t := range tables {
		if i > 0 {
			if _, err := io.WriteString(w, opts.lineTerminator); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s%s", t.Name, opts.lineTerminator); err != nil {
			return err
		}

		width := tableWidth(t)
		var lines [][]string
		if hasHeader(t) {
			lines = append(lines, texts(headerFields(t, width)))
		}
		for _, row := range t.Rows {
			if opts.ignoreEmpty && isEmptyRow(row) {
				continue
			}
			lines = append(lines, texts(rowFields(row, width, opts)))
		}

		widths := make([]int, width)
		for _, line := range lines {
			for col, text := range line {
				if n := runewidth.StringWidth(text); n > widths[col] {
					widths[col] = n
				}
			}
		}
		for n, line := range lines {
			if err := writeTextLine(w, line, widths, opts.lineTerminator); err != nil {
				return err
			}
			if n == 0 && hasHeader(t) {
				rule := make([]string, width)
				for col := range rule {
					rule[col] = strings.Repeat("-", widths[col])
				}
				if err := writeTextLine(w, rule, widths, opts.lineTerminator); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeTextLine(w io.Writer, line []string, widths []int, terminator string) error {
	cells := make([]string, len(line))
	for col, text := range line {
		cells[col] = runewidth.FillRight(text, widths[col])
	}
	_, err := io.WriteString(w, strings.TrimRight(strings.Join(cells, " | "), " ")+terminator)
	return err
}

func texts(fields []field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.NewReplacer("\r", " ", "\n", " ").Replace(f.text)
	}
	return out
}
