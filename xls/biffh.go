package xls

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors. Every error returned by the package wraps one of these,
// so callers can match with errors.Is.
var (
	ErrInvalidGlobalsHeader = errors.New("invalid globals header")
	ErrExpectedWorksheetBOF = errors.New("expected worksheet BOF")
	ErrExpectedIndex        = errors.New("expected index record")
	ErrInvertedRowBounds    = errors.New("inverted row bounds")
	ErrNoDataRecord         = errors.New("no data record")
	ErrWorkbookNotFound     = errors.New("no Workbook or Book stream found")
	ErrEncrypted            = errors.New("workbook is encrypted")
	ErrUnexpectedEnd        = errors.New("unexpected end of workbook stream")
	ErrTruncatedRecord      = errors.New("truncated record")
	ErrClosed               = errors.New("reader is closed")
	ErrNotInitialized       = errors.New("reader is not initialized")
)

// XLSError represents a structural error met while decoding a workbook.
type XLSError struct {
	// Err is the sentinel describing the kind of failure.
	Err error

	// Message carries the detail, such as the offending offset or tag.
	Message string
}

func (e *XLSError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Message
}

// Unwrap returns the sentinel so errors.Is works through XLSError.
func (e *XLSError) Unwrap() error {
	return e.Err
}

// Cause implements the github.com/pkg/errors causer interface.
func (e *XLSError) Cause() error {
	return e.Err
}

// NewXLSError creates a new XLSError of the given kind.
func NewXLSError(kind error, format string, args ...interface{}) *XLSError {
	return &XLSError{Err: kind, Message: fmt.Sprintf(format, args...)}
}

// BOF stream types
const (
	XL_WORKBOOK_GLOBALS = 0x0005
	XL_WORKSHEET        = 0x0010
)

// BOUNDSHEET sheet types
const (
	XL_BOUNDSHEET_WORKSHEET = 0x00
	XL_BOUNDSHEET_CHART     = 0x02
	XL_BOUNDSHEET_VB_MODULE = 0x06
)

// BIFF8 is the BOF version word of Excel 97 and later files.
const BIFF8 = 0x0600

// BIFF record type constants
const (
	XL_BOF              = 0x0809
	XL_BOF_V4           = 0x0409
	XL_BOF_V3           = 0x0209
	XL_BOF_V2           = 0x0009
	XL_EOF              = 0x000A
	XL_BOUNDSHEET       = 0x0085
	XL_CODEPAGE         = 0x0042
	XL_DATEMODE         = 0x0022
	XL_COUNTRY          = 0x008C
	XL_INTERFACEHDR     = 0x00E1
	XL_MMS              = 0x00C1
	XL_FILEPASS         = 0x002F
	XL_PROTECT          = 0x0012
	XL_PASSWORD         = 0x0013
	XL_PROT4REVPASSWORD = 0x01BC
	XL_FONT             = 0x0031
	XL_FONT_V34         = 0x0231
	XL_FORMAT           = 0x041E
	XL_FORMAT_V23       = 0x001E
	XL_XF               = 0x00E0
	XL_XF_V4            = 0x0443
	XL_XF_V3            = 0x0243
	XL_XF_V2            = 0x0043
	XL_SST              = 0x00FC
	XL_CONTINUE         = 0x003C
	XL_EXTSST           = 0x00FF
	XL_INDEX            = 0x020B
	XL_DBCELL           = 0x00D7
	XL_ROW              = 0x0208
	XL_DIMENSIONS       = 0x0200
	XL_UNCALCED         = 0x005E
	XL_MSODRAWING       = 0x00EC
	XL_BLANK            = 0x0201
	XL_BLANK_OLD        = 0x0001
	XL_MULBLANK         = 0x00BE
	XL_INTEGER          = 0x0202
	XL_INTEGER_OLD      = 0x0002
	XL_NUMBER           = 0x0203
	XL_NUMBER_OLD       = 0x0003
	XL_LABEL            = 0x0204
	XL_LABEL_OLD        = 0x0004
	XL_BOOLERR          = 0x0205
	XL_BOOLERR_OLD      = 0x0005
	XL_STRING           = 0x0207
	XL_STRING_OLD       = 0x0007
	XL_RK               = 0x027E
	XL_RK_OLD           = 0x007E
	XL_MULRK            = 0x00BD
	XL_RSTRING          = 0x00D6
	XL_LABELSST         = 0x00FD
	XL_FORMULA          = 0x0006
	XL_FORMULA_V3       = 0x0206
	XL_FORMULA_V4       = 0x0406
	XL_SHRFMLA          = 0x04BC
	XL_ARRAY            = 0x0221
	XL_TABLEOP          = 0x0236
)

var bofcodes = map[uint16]bool{
	XL_BOF:    true,
	XL_BOF_V4: true,
	XL_BOF_V3: true,
	XL_BOF_V2: true,
}

var cellOpcodeSet = map[uint16]bool{
	XL_BLANK:       true,
	XL_BLANK_OLD:   true,
	XL_MULBLANK:    true,
	XL_INTEGER:     true,
	XL_INTEGER_OLD: true,
	XL_NUMBER:      true,
	XL_NUMBER_OLD:  true,
	XL_LABEL:       true,
	XL_LABEL_OLD:   true,
	XL_BOOLERR:     true,
	XL_BOOLERR_OLD: true,
	XL_RK:          true,
	XL_RK_OLD:      true,
	XL_MULRK:       true,
	XL_RSTRING:     true,
	XL_LABELSST:    true,
	XL_FORMULA:     true,
	XL_FORMULA_V3:  true,
	XL_FORMULA_V4:  true,
}

// IsCellOpcode reports whether the given record type carries cell data.
func IsCellOpcode(c uint16) bool {
	return cellOpcodeSet[c]
}

// ErrorTextFromCode maps BOOLERR and FORMULA error codes to their display text.
var ErrorTextFromCode = map[byte]string{
	0x00: "#NULL!",
	0x07: "#DIV/0!",
	0x0F: "#VALUE!",
	0x17: "#REF!",
	0x1D: "#NAME?",
	0x24: "#NUM!",
	0x2A: "#N/A",
}

var recordNames = map[uint16]string{
	XL_BOF:        "BOF",
	XL_EOF:        "EOF",
	XL_BOUNDSHEET: "BOUNDSHEET",
	XL_INDEX:      "INDEX",
	XL_DBCELL:     "DBCELL",
	XL_ROW:        "ROW",
	XL_DIMENSIONS: "DIMENSIONS",
	XL_UNCALCED:   "UNCALCED",
	XL_SST:        "SST",
	XL_CONTINUE:   "CONTINUE",
	XL_LABELSST:   "LABELSST",
	XL_MULRK:      "MULRK",
	XL_RK:         "RK",
	XL_NUMBER:     "NUMBER",
	XL_FORMULA:    "FORMULA",
	XL_STRING:     "STRING",
	XL_SHRFMLA:    "SHRFMLA",
	XL_ARRAY:      "ARRAY",
	XL_TABLEOP:    "TABLEOP",
	XL_XF:         "XF",
	XL_FORMAT:     "FORMAT",
}

// RecordName returns a printable name for a record type.
func RecordName(code uint16) string {
	if name, ok := recordNames[code]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", code)
}
