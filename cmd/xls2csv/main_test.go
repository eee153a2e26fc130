package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jansaris/ExcelDataReader/xls"
)

type record struct {
	code uint16
	data []byte
}

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
		case float64:
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
		case string:
			out = append(out, v...)
		default:
			panic(fmt.Sprintf("le: unsupported %T", v))
		}
	}
	return out
}

func label(row, col uint16, s string) record {
	return record{xls.XL_LABEL, le(row, col, uint16(0), uint16(len(s)), uint8(0), s)}
}

func number(row, col, xf uint16, v float64) record {
	return record{xls.XL_NUMBER, le(row, col, xf, v)}
}

type sheetSpec struct {
	name   string
	hidden bool
	broken bool
	cells  []record
}

type biffBuffer struct {
	buf []byte
}

func (b *biffBuffer) write(r record) int {
	off := len(b.buf)
	b.buf = binary.LittleEndian.AppendUint16(b.buf, r.code)
	b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(len(r.data)))
	b.buf = append(b.buf, r.data...)
	return off
}

// buildXLS writes a BIFF8 workbook stream. XF 0 is General, XF 1 is the
// built-in date format 14.
func buildXLS(sheets ...sheetSpec) []byte {
	bof := func(kind uint16) record {
		return record{xls.XL_BOF, le(uint16(xls.BIFF8), kind, uint16(0), uint16(0), uint32(0), uint32(0))}
	}
	xf := func(format uint16) record {
		return record{xls.XL_XF, le(uint16(0), format, uint16(0), uint8(0), uint8(0), uint8(0), uint8(0x04), uint32(0), uint32(0), uint16(0))}
	}

	b := &biffBuffer{}
	b.write(bof(xls.XL_WORKBOOK_GLOBALS))
	b.write(record{xls.XL_CODEPAGE, le(uint16(1200))})
	b.write(xf(0))
	b.write(xf(14))
	var positions []int
	for _, s := range sheets {
		var vis uint8
		if s.hidden {
			vis = 1
		}
		off := b.write(record{xls.XL_BOUNDSHEET, le(uint32(0), vis, uint8(0), uint8(len(s.name)), uint8(0), s.name)})
		positions = append(positions, off+4)
	}
	b.write(record{xls.XL_EOF, nil})

	for i, s := range sheets {
		start := b.write(bof(xls.XL_WORKSHEET))
		binary.LittleEndian.PutUint32(b.buf[positions[i]:], uint32(start))

		first, last := uint32(0), uint32(100)
		if s.broken {
			first, last = 5, 5
		}
		index := b.write(record{xls.XL_INDEX, le(uint32(0), first, last, uint32(0), uint32(0))})
		b.write(record{xls.XL_DIMENSIONS, le(uint32(0), uint32(100), uint16(0), uint16(10), uint16(0))})

		rowStart := len(b.buf)
		seen := map[uint16]bool{}
		for _, c := range s.cells {
			row := binary.LittleEndian.Uint16(c.data)
			if !seen[row] {
				seen[row] = true
				b.write(record{xls.XL_ROW, le(row, uint16(0), uint16(10), uint16(0xFF), uint16(0), uint16(0), uint32(0x100))})
			}
		}
		for _, c := range s.cells {
			b.write(c)
		}
		dbcell := b.write(record{xls.XL_DBCELL, le(uint32(len(b.buf) - rowStart))})
		b.write(record{xls.XL_EOF, nil})
		binary.LittleEndian.PutUint32(b.buf[index+4+16:], uint32(dbcell))
	}
	return b.buf
}

func sampleBook() []byte {
	return buildXLS(
		sheetSpec{name: "People", cells: []record{
			label(0, 0, "Name"), label(0, 1, "Born"),
			label(1, 0, "Ann"), number(1, 1, 1, 42370),
			label(2, 0, "Bob, Jr."), number(2, 1, 0, 3.5),
		}},
		sheetSpec{name: "Hidden", hidden: true, cells: []record{label(0, 0, "secret")}},
		sheetSpec{name: "Broken", broken: true, cells: []record{number(5, 0, 0, 1)}},
	)
}

func writeSample(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, sampleBook(), 0o644))
	return path
}

func runCLI(args []string) (string, string, int) {
	return runCLIWithInput(args, nil)
}

func runCLIWithInput(args []string, stdin []byte) (string, string, int) {
	var stdout, stderr bytes.Buffer
	code := run(args, bytes.NewReader(stdin), &stdout, &stderr)
	return strings.ReplaceAll(stdout.String(), "\r\n", "\n"), stderr.String(), code
}

func TestRunDefault(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	out, errOut, code := runCLI([]string{sample})
	require.Equal(t, 0, code, "stderr: %s", errOut)
	assert.Equal(t, "Name,Born\nAnn,2016-01-01\n\"Bob, Jr.\",3.5\n", out)
}

func TestRunDateFormat(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	out, errOut, code := runCLI([]string{"-f", "DD.MM.YYYY", sample})
	require.Equal(t, 0, code, "stderr: %s", errOut)
	assert.Contains(t, out, "Ann,01.01.2016\n")

	out, _, code = runCLI([]string{"--raw", sample})
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Ann,42370\n")
}

func TestRunFloatFormatAndQuoting(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	out, errOut, code := runCLI([]string{"--floatformat", "%.2f", "-q", "nonnumeric", sample})
	require.Equal(t, 0, code, "stderr: %s", errOut)
	assert.Contains(t, out, "\"Bob, Jr.\",3.50\n")
	assert.Contains(t, out, "\"Name\",\"Born\"\n")
}

func TestRunAllSheets(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	out, errOut, code := runCLI([]string{"-a", sample})
	require.Equal(t, 0, code, "stderr: %s", errOut)
	assert.True(t, strings.HasSuffix(out, "--------\nsecret\n"), out)

	out, _, code = runCLI([]string{"-a", "--visible-only", sample})
	require.Equal(t, 0, code)
	assert.NotContains(t, out, "secret")

	out, _, code = runCLI([]string{"-a", "-E", "^Peo", "-p", "", sample})
	require.Equal(t, 0, code)
	assert.Equal(t, "secret\n", out)
}

func TestRunSheetSelection(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")

	out, _, code := runCLI([]string{"-n", "Hidden", sample})
	require.Equal(t, 0, code)
	assert.Equal(t, "secret\n", out)

	out, _, code = runCLI([]string{"-s", "2", sample})
	require.Equal(t, 0, code)
	assert.Equal(t, "secret\n", out)

	_, errOut, code := runCLI([]string{"-s", "3", sample})
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "inverted row bounds")

	_, errOut, code = runCLI([]string{"-n", "Nope", sample})
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "sheet Nope not found")

	_, _, code = runCLI([]string{"-s", "9", sample})
	assert.Equal(t, 1, code)
}

func TestRunSummary(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	_, errOut, code := runCLI([]string{"-a", "--summary", sample})
	require.Equal(t, 0, code, "stderr: %s", errOut)
	assert.Contains(t, errOut, "book.xls: ")
	assert.Contains(t, errOut, "2 of 3 sheets")
	assert.Contains(t, errOut, "skipped: ")
	assert.Contains(t, errOut, "inverted row bounds")
}

func TestRunUsageErrors(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	tests := [][]string{
		{},
		{"-n", "People", "-a", sample},
		{"-o", "pdf", sample},
		{"-q", "sometimes", sample},
		{"-j", "0", sample},
		{"--bogus", sample},
		{sample, "out.csv", "extra"},
	}
	for _, args := range tests {
		_, _, code := runCLI(args)
		assert.Equal(t, 2, code, "args %v", args)
	}

	_, _, code := runCLI([]string{filepath.Join(t.TempDir(), "missing.xls")})
	assert.Equal(t, 1, code)
}

func TestRunVersion(t *testing.T) {
	out, _, code := runCLI([]string{"--version"})
	assert.Equal(t, 0, code)
	assert.Equal(t, version+"\n", out)
}

func TestRunTSVWithHeader(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	out, errOut, code := runCLI([]string{"-o", "tsv", "-H", sample})
	require.Equal(t, 0, code, "stderr: %s", errOut)
	assert.Equal(t, "Name\tBorn\nAnn\t2016-01-01\nBob, Jr.\t3.5\n", out)
}

func TestRunJSON(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	out, errOut, code := runCLI([]string{"-o", "json", "-H", "-a", sample})
	require.Equal(t, 0, code, "stderr: %s", errOut)

	var sheets []struct {
		Name       string          `json:"name"`
		Visibility string          `json:"visibility"`
		Columns    []string        `json:"columns"`
		Rows       [][]interface{} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sheets))
	require.Len(t, sheets, 2)
	assert.Equal(t, "People", sheets[0].Name)
	assert.Equal(t, "visible", sheets[0].Visibility)
	assert.Equal(t, []string{"Name", "Born"}, sheets[0].Columns)
	assert.Equal(t, []interface{}{"Ann", "2016-01-01"}, sheets[0].Rows[0])
	assert.Equal(t, []interface{}{"Bob, Jr.", 3.5}, sheets[0].Rows[1])
	assert.Equal(t, "hidden", sheets[1].Visibility)
}

func TestRunXLSX(t *testing.T) {
	dir := t.TempDir()
	sample := writeSample(t, dir, "book.xls")
	target := filepath.Join(dir, "book.xlsx")
	_, errOut, code := runCLI([]string{"-o", "xlsx", "-a", sample, target})
	require.Equal(t, 0, code, "stderr: %s", errOut)

	f, err := excelize.OpenFile(target)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"People", "Hidden"}, f.GetSheetList())

	rows, err := f.GetRows("People")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Name", "Born"}, rows[0])
	assert.Equal(t, "Ann", rows[1][0])
	assert.Equal(t, []string{"Bob, Jr.", "3.5"}, rows[2])

	visible, err := f.GetSheetVisible("Hidden")
	require.NoError(t, err)
	assert.False(t, visible)
}

func TestRunTextTable(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	out, errOut, code := runCLI([]string{"-o", "table", "-H", sample})
	require.Equal(t, 0, code, "stderr: %s", errOut)
	assert.Equal(t, strings.Join([]string{
		"People",
		"Name     | Born",
		"-------- | ----------",
		"Ann      | 2016-01-01",
		"Bob, Jr. | 3.5",
		"",
	}, "\n"), out)
}

func TestRunStdin(t *testing.T) {
	out, errOut, code := runCLIWithInput([]string{"-"}, sampleBook())
	require.Equal(t, 0, code, "stderr: %s", errOut)
	assert.Contains(t, out, "Ann,2016-01-01\n")

	_, _, code = runCLIWithInput([]string{"-"}, []byte("not a workbook"))
	assert.Equal(t, 1, code)
}

func TestRunDirectory(t *testing.T) {
	in := t.TempDir()
	writeSample(t, in, "a.xls")
	writeSample(t, in, "b.xls")
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("skip me"), 0o644))
	out := filepath.Join(t.TempDir(), "converted")

	_, errOut, code := runCLI([]string{"-j", "2", in, out})
	require.Equal(t, 0, code, "stderr: %s", errOut)
	for _, name := range []string{"a.csv", "b.csv"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		assert.Contains(t, strings.ReplaceAll(string(data), "\r\n", "\n"), "Ann,2016-01-01\n")
	}
	_, err := os.Stat(filepath.Join(out, "notes.csv"))
	assert.True(t, os.IsNotExist(err))

	_, _, code = runCLI([]string{t.TempDir()})
	assert.Equal(t, 1, code)
}

func TestRunSheetPerFile(t *testing.T) {
	dir := t.TempDir()
	sample := writeSample(t, dir, "book.xls")
	out := filepath.Join(dir, "sheets")

	_, errOut, code := runCLI([]string{"-s", "0", sample, out})
	require.Equal(t, 0, code, "stderr: %s", errOut)
	data, err := os.ReadFile(filepath.Join(out, "book-Hidden.csv"))
	require.NoError(t, err)
	assert.Equal(t, "secret", strings.TrimSpace(string(data)))
	_, err = os.Stat(filepath.Join(out, "book-People.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "book-Broken.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunConfigFile(t *testing.T) {
	dir := t.TempDir()
	sample := writeSample(t, dir, "book.xls")
	config := filepath.Join(dir, "xls2csv.yaml")
	require.NoError(t, os.WriteFile(config, []byte("format: tsv\nsheetdelimiter: \"\"\ninclude_sheet_pattern: [\"^Hid\"]\n"), 0o644))

	out, errOut, code := runCLI([]string{"--config", config, sample})
	require.Equal(t, 0, code, "stderr: %s", errOut)
	assert.Contains(t, out, "Name\tBorn\n")

	// Flags given on the command line beat the file.
	out, _, code = runCLI([]string{"--config", config, "-o", "csv", "-a", sample})
	require.Equal(t, 0, code)
	assert.Equal(t, "secret\n", out)

	_, _, code = runCLI([]string{"--config", filepath.Join(dir, "missing.yaml"), sample})
	assert.Equal(t, 2, code)
}

func TestRunCountRecords(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	out, errOut, code := runCLI([]string{"--count-records", sample})
	require.Equal(t, 0, code, "stderr: %s", errOut)
	assert.Contains(t, out, "       4 BOF\n")
	assert.Contains(t, out, "       3 BOUNDSHEET\n")

	out, _, code = runCLI([]string{"--dump", sample})
	require.Equal(t, 0, code)
	assert.Contains(t, strings.SplitN(out, "\n", 2)[0], "BOF")
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in   string
		want rune
	}{
		{",", ','},
		{"tab", '\t'},
		{"x3b", ';'},
		{"|", '|'},
		{"§", '§'},
	}
	for _, tt := range tests {
		got, err := parseDelimiter(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "parseDelimiter(%q)", tt.in)
	}
	_, err := parseDelimiter("")
	assert.Error(t, err)
}

func TestXLSXSheetName(t *testing.T) {
	assert.Equal(t, "a_b_c", xlsxSheetName("a/b:c", 0))
	assert.Equal(t, "Sheet3", xlsxSheetName("  ", 2))
	assert.Equal(t, 31, len([]rune(xlsxSheetName(strings.Repeat("é", 40), 0))))
}
