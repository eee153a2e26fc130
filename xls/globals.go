package xls

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SheetDescriptor describes one worksheet listed in the workbook globals.
type SheetDescriptor struct {
	// Index is the position of the sheet among the workbook's worksheets.
	Index int

	// Name is the sheet name shown on its tab.
	Name string

	// Visibility is visible, hidden or veryhidden.
	Visibility Visibility

	// Offset is the stream offset of the sheet's BOF record.
	Offset int64

	// Type is the BOUNDSHEET sheet type; always 0 (worksheet) here.
	Type uint8
}

// Globals holds the workbook-wide state read from the globals stream.
// It is built once and read-only afterwards.
type Globals struct {
	// Version is the BIFF version word of the globals BOF.
	Version uint16

	// Modern is true for BIFF8 (Excel 97 and later).
	Modern bool

	// Legacy is true for BIFF2, whose FORMULA records keep the XF index in
	// a byte of cell attributes.
	Legacy bool

	// Codepage is the value of the CODEPAGE record, or the override.
	Codepage uint16

	// Datemode is 0 for the 1900 date system and 1 for 1904.
	Datemode int

	// Sheets lists the worksheets in document order.
	Sheets []SheetDescriptor

	// Formats maps number format ids to custom format strings.
	Formats map[uint16]string

	// ExtendedFormats holds the XF records; the index is the style id.
	ExtendedFormats []ExtendedFormat

	// Fonts holds the FONT records verbatim.
	Fonts []*Record

	// SST is the shared string table; nil if the workbook has none.
	SST *SharedStrings

	// InterfaceHeader, MMS and Country are kept verbatim.
	InterfaceHeader *Record
	MMS             *Record
	Country         *Record

	decoder *textDecoder
	log     logrus.FieldLogger
}

func (g *Globals) logger() logrus.FieldLogger {
	if g.log == nil {
		return discardLogger()
	}
	return g.log
}

// globalsScanner accumulates Globals during the forward pass.
type globalsScanner struct {
	g                *Globals
	codepageOverride uint16
	sstInProgress    bool
	boundSheets      []*Record
	formats          []*Record
}

// readGlobals scans the workbook globals from the start of the stream up to
// and including the EOF record.
func readGlobals(stream RecordStream, log logrus.FieldLogger, codepageOverride uint16) (*Globals, error) {
	if err := stream.Seek(0); err != nil {
		return nil, err
	}
	rec, err := stream.Read()
	if err != nil {
		return nil, NewXLSError(ErrInvalidGlobalsHeader, "no BOF record: %v", err)
	}
	bof := BOFRecord{rec}
	if !rec.IsBOF() || bof.StreamType() != XL_WORKBOOK_GLOBALS {
		return nil, NewXLSError(ErrInvalidGlobalsHeader, "first record 0x%04X type 0x%04X", rec.Type, bof.StreamType())
	}

	s := &globalsScanner{
		g: &Globals{
			Version: bof.Version(),
			Formats: make(map[uint16]string),
			decoder: defaultTextDecoder(),
			log:     log,
		},
		codepageOverride: codepageOverride,
	}
	s.g.Modern = s.g.Version == BIFF8
	s.g.Legacy = rec.Type == XL_BOF_V2
	s.g.Codepage = s.g.decoder.Codepage()
	if codepageOverride != 0 {
		s.setCodepage(codepageOverride)
	}

	for {
		rec, err := stream.Read()
		if err == io.EOF {
			return nil, NewXLSError(ErrUnexpectedEnd, "globals end at %d without EOF record", stream.Position())
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading workbook globals")
		}
		done, err := s.handle(rec)
		if err != nil {
			return nil, err
		}
		if done {
			s.finish()
			return s.g, nil
		}
	}
}

// handle dispatches one record. It returns true on the EOF record.
func (s *globalsScanner) handle(rec *Record) (bool, error) {
	g := s.g
	switch rec.Type {
	case XL_BOF, XL_BOF_V4, XL_BOF_V3, XL_BOF_V2:
		g.logger().WithField("offset", rec.Offset).Debug("ignoring BOF inside workbook globals")
	case XL_INTERFACEHDR:
		g.InterfaceHeader = rec
	case XL_MMS:
		g.MMS = rec
	case XL_COUNTRY:
		g.Country = rec
	case XL_BOUNDSHEET:
		s.boundSheets = append(s.boundSheets, rec)
	case XL_CODEPAGE:
		if s.codepageOverride == 0 {
			s.setCodepage(rec.U16(0))
		}
	case XL_DATEMODE:
		if rec.U16(0) == 1 {
			g.Datemode = Datemode1904
		}
	case XL_FONT, XL_FONT_V34:
		g.Fonts = append(g.Fonts, rec)
	case XL_FORMAT, XL_FORMAT_V23:
		s.formats = append(s.formats, rec)
	case XL_XF, XL_XF_V2, XL_XF_V3, XL_XF_V4:
		g.ExtendedFormats = append(g.ExtendedFormats, newExtendedFormat(rec))
	case XL_SST:
		g.SST = newSharedStrings(rec)
		s.sstInProgress = true
	case XL_CONTINUE:
		if s.sstInProgress {
			g.SST.appendContinue(rec)
		}
	case XL_EXTSST:
		s.sstInProgress = false
	case XL_PROTECT, XL_PASSWORD, XL_PROT4REVPASSWORD:
	case XL_FILEPASS:
		return false, NewXLSError(ErrEncrypted, "FILEPASS record at %d", rec.Offset)
	case XL_EOF:
		return true, nil
	}
	return false, nil
}

func (s *globalsScanner) setCodepage(codepage uint16) {
	dec, ok := newTextDecoder(codepage)
	if !ok {
		s.g.logger().WithField("codepage", codepage).Warn("unknown code page, decoding byte strings as UTF-8")
	}
	s.g.Codepage = codepage
	s.g.decoder = dec
}

// finish decodes what depends on the final code page and builds the SST.
func (s *globalsScanner) finish() {
	g := s.g
	for _, rec := range s.boundSheets {
		bs := BoundSheetRecord{rec}
		if bs.SheetType() != XL_BOUNDSHEET_WORKSHEET {
			continue
		}
		g.Sheets = append(g.Sheets, SheetDescriptor{
			Index:      len(g.Sheets),
			Name:       bs.name(g.Modern, g.decoder),
			Visibility: bs.Visibility(),
			Offset:     bs.Position(),
			Type:       bs.SheetType(),
		})
	}

	var nextLegacyID uint16
	for _, rec := range s.formats {
		if rec.Type == XL_FORMAT_V23 {
			str, _ := g.decoder.byteString(rec.Data, 1)
			g.Formats[nextLegacyID] = str
			nextLegacyID++
			continue
		}
		var str string
		if g.Modern {
			str, _ = decodeUnicodeString(rec.Bytes(2))
		} else {
			str, _ = g.decoder.byteString(rec.Bytes(2), 1)
		}
		g.Formats[rec.U16(0)] = str
	}

	if g.SST != nil {
		g.SST.finalize()
	}
}
