package xls

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options contains options for opening a workbook.
type Options struct {
	// Logger receives diagnostics. Nil discards them.
	Logger logrus.FieldLogger

	// CodepageOverride replaces the workbook's CODEPAGE record when
	// non-zero, to overcome missing or bad code page information.
	CodepageOverride uint16
}

// LoadOptions controls how sheets are turned into tables.
type LoadOptions struct {
	// ConvertDates turns numbers with a date or time format into dates.
	ConvertDates bool

	// FirstRowAsHeader takes column names from row 0.
	FirstRowAsHeader bool
}

type readerState int

const (
	stateNew readerState = iota
	stateOpen
	statePopulated
	stateClosed
)

// Reader decodes one workbook. Its lifecycle is open (Initialize attached
// a stream), populated (globals read) and closed; a closed reader never
// touches its stream again.
type Reader struct {
	log              logrus.FieldLogger
	codepageOverride uint16

	state   readerState
	stream  RecordStream
	closer  io.Closer
	globals *Globals

	valid   bool
	message string
}

// NewReader creates a Reader with the given options.
func NewReader(opts Options) *Reader {
	log := opts.Logger
	if log == nil {
		log = discardLogger()
	}
	return &Reader{log: log, codepageOverride: opts.CodepageOverride}
}

// Open opens the .xls file at path. The file stays open until Close.
func Open(path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := openReader(f, info.Size(), f, opts)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return r, nil
}

// OpenReader locates the workbook stream in ra and initializes a Reader.
func OpenReader(ra io.ReaderAt, size int64, opts Options) (*Reader, error) {
	return openReader(ra, size, nil, opts)
}

func openReader(ra io.ReaderAt, size int64, closer io.Closer, opts Options) (*Reader, error) {
	mem, err := WorkbookStream(ra, size)
	if err != nil {
		return nil, err
	}
	r := NewReader(opts)
	if err := r.Initialize(NewByteStream(mem)); err != nil {
		return nil, err
	}
	r.closer = closer
	return r, nil
}

// Initialize attaches stream and reads the workbook globals. Any failure
// invalidates the document and closes the reader.
func (r *Reader) Initialize(stream RecordStream) error {
	switch r.state {
	case stateClosed:
		return ErrClosed
	case stateNew:
		r.stream = stream
		r.state = stateOpen
	}
	return r.ensureGlobals()
}

func (r *Reader) ensureGlobals() (err error) {
	if r.state == statePopulated {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic while reading workbook globals: %v", p)
		}
		if err != nil {
			r.fail(err)
		}
	}()
	g, err := readGlobals(r.stream, r.log, r.codepageOverride)
	if err != nil {
		return err
	}
	r.globals = g
	r.state = statePopulated
	r.valid = true
	r.log.WithFields(logrus.Fields{
		"version":  g.Version,
		"codepage": g.Codepage,
		"sheets":   len(g.Sheets),
		"strings":  g.SST.Len(),
	}).Debug("read workbook globals")
	return nil
}

// fail records a document-fatal error and closes the reader.
func (r *Reader) fail(err error) {
	r.valid = false
	r.message = err.Error()
	r.log.WithError(err).Error("workbook is invalid")
	r.Close()
}

// Load reads every worksheet into sink and closes the reader. A sheet that
// fails is reported through sink.MarkInvalid and skipped; only failures of
// the workbook as a whole are returned.
func (r *Reader) Load(sink Sink, opts LoadOptions) error {
	switch r.state {
	case stateClosed:
		return ErrClosed
	case stateNew:
		return ErrNotInitialized
	}
	if err := r.ensureGlobals(); err != nil {
		return err
	}
	defer r.Close()

	for _, sheet := range r.globals.Sheets {
		log := r.log.WithField("sheet", sheet.Name)
		table, err := r.readSheet(sheet, opts, log)
		if err != nil {
			log.WithError(err).Error("skipping worksheet")
			sink.MarkInvalid(errors.Wrapf(err, "sheet %q", sheet.Name))
			continue
		}
		emitTable(sink, sheet, table)
	}
	return nil
}

// LoadAsync runs Load on its own goroutine. The channel yields Load's
// result once and is then closed.
func (r *Reader) LoadAsync(sink Sink, opts LoadOptions) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- r.Load(sink, opts)
	}()
	return done
}

func (r *Reader) readSheet(sheet SheetDescriptor, opts LoadOptions, log logrus.FieldLogger) (table *Table, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic while reading worksheet: %v", p)
		}
	}()
	sg, err := readSheetGlobals(r.stream, r.globals, sheet, log)
	if err != nil {
		return nil, err
	}
	cells := extractCells(r.stream, r.globals, sg, opts.ConvertDates, log)
	return AssembleTable(cells, sg.Columns, opts.FirstRowAsHeader), nil
}

func emitTable(sink Sink, sheet SheetDescriptor, table *Table) {
	ts := sink.CreateTable(sheet.Name)
	ts.AddExtendedProperty(PropertyVisibleState, sheet.Visibility.String())
	ts.BeginLoad()
	for _, name := range table.Columns {
		ts.AddColumn(name)
	}
	for _, row := range table.Rows {
		ts.AddRow(row)
	}
	ts.EndLoad()
}

// IsValid reports whether the workbook globals were read successfully.
func (r *Reader) IsValid() bool {
	return r.valid
}

// ExceptionMessage returns the reason the workbook is invalid.
func (r *Reader) ExceptionMessage() string {
	return r.message
}

// Globals returns the workbook globals, or nil before they are read.
func (r *Reader) Globals() *Globals {
	return r.globals
}

// Sheets returns the worksheet descriptors in document order.
func (r *Reader) Sheets() []SheetDescriptor {
	if r.globals == nil {
		return nil
	}
	return r.globals.Sheets
}

// Close releases the stream. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.state == stateClosed {
		return nil
	}
	r.state = stateClosed
	r.stream = nil
	if r.closer != nil {
		err := r.closer.Close()
		r.closer = nil
		return err
	}
	return nil
}

// IsClosed reports whether the reader has been closed.
func (r *Reader) IsClosed() bool {
	return r.state == stateClosed
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
