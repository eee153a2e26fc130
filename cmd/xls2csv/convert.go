package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jansaris/ExcelDataReader/xls"
)

type converter struct {
	opts   options
	log    *logrus.Logger
	stdout io.Writer

	// stderrMu serializes summary lines of concurrent conversions.
	stderrMu sync.Mutex
	stderr   io.Writer
}

func newConverter(opts options, log *logrus.Logger, stdout, stderr io.Writer) *converter {
	return &converter{opts: opts, log: log, stdout: stdout, stderr: stderr}
}

// workbook is one loaded .xls file.
type workbook struct {
	path   string
	size   int64
	sheets []xls.SheetDescriptor
	data   *xls.DataSet
}

func (c *converter) convertPath(ctx context.Context, input, output string, stdin io.Reader) error {
	if input == "-" {
		content, err := io.ReadAll(stdin)
		if err != nil {
			return errors.Wrap(err, "failed to read stdin")
		}
		return c.convertFile("-", content, output)
	}

	info, err := os.Stat(input)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return c.convertDir(ctx, input, output)
	}
	return c.convertFile(input, nil, output)
}

// convertDir converts every .xls file of inputDir into outputDir, up to
// opts.jobs files at a time. The first failure cancels the files not yet
// started.
func (c *converter) convertDir(ctx context.Context, inputDir, outputDir string) error {
	if outputDir == "" {
		outputDir = inputDir
	}
	if err := ensureDir(outputDir); err != nil {
		return err
	}
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return err
	}

	var inputs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(inputDir, entry.Name())
		format, err := xls.InspectFormat(path, nil)
		if err != nil {
			return err
		}
		if format != "xls" && format != "biff" {
			continue
		}
		inputs = append(inputs, path)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no xls files found in %s", inputDir)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.jobs)
	for _, path := range inputs {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out := filepath.Join(outputDir, changeExt(filepath.Base(path), formatExtensions[c.opts.format]))
			return errors.Wrap(c.convertFile(path, nil, out), filepath.Base(path))
		})
	}
	return g.Wait()
}

func (c *converter) convertFile(inputPath string, content []byte, outputPath string) error {
	if c.opts.dump || c.opts.countRecords {
		return c.dumpFile(inputPath, content)
	}

	wb, err := c.load(inputPath, content)
	if err != nil {
		return err
	}
	tables, err := selectTables(wb, c.opts)
	if err != nil {
		return err
	}
	defer c.printSummary(wb, tables)

	if c.opts.sheetID == 0 && outputPath != "" {
		if err := ensureDir(outputPath); err != nil {
			return errors.New("outfile must be a directory when -s 0 is specified")
		}
	}

	if outputPath == "" {
		w := bufio.NewWriter(c.stdout)
		if err := c.writeTables(w, tables); err != nil {
			return err
		}
		return w.Flush()
	}

	info, err := os.Stat(outputPath)
	if err == nil && info.IsDir() {
		base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		for _, table := range tables {
			name := fmt.Sprintf("%s-%s%s", base, sanitizeFilename(table.Name), formatExtensions[c.opts.format])
			if err := c.writeTablesToFile(filepath.Join(outputPath, name), []*xls.DataTable{table}); err != nil {
				return err
			}
		}
		return nil
	}
	return c.writeTablesToFile(outputPath, tables)
}

func (c *converter) load(path string, content []byte) (*workbook, error) {
	opts := xls.Options{
		Logger:           c.log.WithField("file", filepath.Base(path)),
		CodepageOverride: c.opts.codepage,
	}
	wb := &workbook{path: path}

	var r *xls.Reader
	var err error
	if content != nil {
		wb.size = int64(len(content))
		r, err = xls.OpenReader(bytes.NewReader(content), wb.size, opts)
	} else {
		if info, serr := os.Stat(path); serr == nil {
			wb.size = info.Size()
		}
		r, err = xls.Open(path, opts)
	}
	if err != nil {
		return nil, err
	}

	wb.sheets = r.Sheets()
	wb.data = xls.NewDataSet()
	err = r.Load(wb.data, xls.LoadOptions{
		ConvertDates:     !c.opts.raw,
		FirstRowAsHeader: c.opts.header,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return wb, nil
}

func (c *converter) dumpFile(path string, content []byte) error {
	if content == nil {
		var err error
		if content, err = os.ReadFile(path); err != nil {
			return err
		}
	}
	mem, err := xls.WorkbookStream(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(c.stdout)
	stream := xls.NewByteStream(mem)
	if c.opts.countRecords {
		err = xls.CountRecords(stream, w)
	} else {
		err = xls.Dump(stream, w, false)
	}
	if err != nil {
		return err
	}
	return w.Flush()
}

// selectTables picks the tables to export, in sheet order.
func selectTables(wb *workbook, opts options) ([]*xls.DataTable, error) {
	if opts.sheetName != "" {
		for _, sheet := range wb.sheets {
			if sheet.Name == opts.sheetName {
				t, err := tableFor(wb, sheet)
				if err != nil {
					return nil, err
				}
				return []*xls.DataTable{t}, nil
			}
		}
		return nil, fmt.Errorf("sheet %s not found", opts.sheetName)
	}

	if opts.allSheets {
		var tables []*xls.DataTable
		for _, sheet := range wb.sheets {
			if !matchPatterns(sheet.Name, opts.includeSheetPattern, opts.excludeSheetPattern) {
				continue
			}
			if opts.visibleOnly && sheet.Visibility != xls.Visible {
				continue
			}
			if t, ok := wb.data.Table(sheet.Name); ok {
				tables = append(tables, t)
			}
		}
		if len(tables) == 0 {
			return nil, fmt.Errorf("no sheets matched selection")
		}
		return tables, nil
	}

	if opts.sheetID > 0 {
		index := opts.sheetID - 1
		if index >= len(wb.sheets) {
			return nil, fmt.Errorf("sheet index %d out of range", opts.sheetID)
		}
		t, err := tableFor(wb, wb.sheets[index])
		if err != nil {
			return nil, err
		}
		return []*xls.DataTable{t}, nil
	}

	if len(wb.sheets) == 0 {
		return nil, fmt.Errorf("no sheets found")
	}
	t, err := tableFor(wb, wb.sheets[0])
	if err != nil {
		return nil, err
	}
	return []*xls.DataTable{t}, nil
}

// tableFor returns the table loaded for sheet, or the reason it is missing.
func tableFor(wb *workbook, sheet xls.SheetDescriptor) (*xls.DataTable, error) {
	if t, ok := wb.data.Table(sheet.Name); ok {
		return t, nil
	}
	quoted := fmt.Sprintf("%q", sheet.Name)
	for _, err := range wb.data.Errors {
		if strings.Contains(err.Error(), quoted) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("sheet %s could not be read", sheet.Name)
}

func matchPatterns(name string, include, exclude []*regexp.Regexp) bool {
	if len(include) > 0 {
		matched := false
		for _, re := range include {
			if re.MatchString(name) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, re := range exclude {
		if re.MatchString(name) {
			return false
		}
	}
	return true
}

func (c *converter) writeTablesToFile(path string, tables []*xls.DataTable) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := c.writeTables(w, tables); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}

func (c *converter) printSummary(wb *workbook, tables []*xls.DataTable) {
	if !c.opts.summary {
		return
	}
	var rows int64
	for _, t := range tables {
		rows += int64(len(t.Rows))
	}
	c.stderrMu.Lock()
	defer c.stderrMu.Unlock()
	fmt.Fprintf(c.stderr, "%s: %s, %d of %d sheets, %s rows\n",
		filepath.Base(wb.path), humanize.Bytes(uint64(wb.size)), len(tables), len(wb.sheets), humanize.Comma(rows))
	for _, err := range wb.data.Errors {
		fmt.Fprintf(c.stderr, "  skipped: %v\n", err)
	}
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return os.MkdirAll(path, 0o755)
	}
	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", path)
	}
	return nil
}

func changeExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

func sanitizeFilename(name string) string {
	invalid := strings.NewReplacer(string(os.PathSeparator), "_", "/", "_", "\\", "_")
	clean := strings.TrimSpace(invalid.Replace(name))
	if clean == "" {
		return "sheet"
	}
	return clean
}
