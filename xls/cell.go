package xls

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind is the type of a decoded cell value.
type Kind uint8

// Value kinds.
const (
	Null Kind = iota
	Bool
	Int
	Float
	Text
	Date
)

var kindNames = [...]string{"null", "bool", "int", "float", "text", "date"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a decoded cell value. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
}

// NullValue returns the empty value.
func NullValue() Value { return Value{} }

// BoolValue wraps a boolean cell.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// IntValue wraps an INTEGER cell.
func IntValue(i int64) Value { return Value{kind: Int, i: i} }

// FloatValue wraps a number that is not a date.
func FloatValue(f float64) Value { return Value{kind: Float, f: f} }

// TextValue wraps a string cell.
func TextValue(s string) Value { return Value{kind: Text, s: s} }

// DateValue wraps a number converted to a date or time.
func DateValue(t time.Time) Value { return Value{kind: Date, t: t} }

// Kind returns the type of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is Null.
func (v Value) IsNull() bool { return v.kind == Null }

// Bool returns the boolean of a Bool value, otherwise false.
func (v Value) Bool() bool { return v.b }

// Int returns the integer of an Int value, otherwise 0.
func (v Value) Int() int64 { return v.i }

// Float returns the number of a Float value, otherwise 0.
func (v Value) Float() float64 { return v.f }

// Text returns the string of a Text value, otherwise "".
func (v Value) Text() string { return v.s }

// Time returns the time of a Date value, otherwise the zero time.
func (v Value) Time() time.Time { return v.t }

// IsBlank reports whether the value is null or whitespace-only text.
func (v Value) IsBlank() bool {
	switch v.kind {
	case Null:
		return true
	case Text:
		return strings.TrimSpace(v.s) == ""
	}
	return false
}

// Interface returns the value as nil, bool, int64, float64, string or
// time.Time.
func (v Value) Interface() interface{} {
	switch v.kind {
	case Bool:
		return v.b
	case Int:
		return v.i
	case Float:
		return v.f
	case Text:
		return v.s
	case Date:
		return v.t
	}
	return nil
}

// String renders the value; Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case Bool:
		if v.b {
			return "True"
		}
		return "False"
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case Text:
		return v.s
	case Date:
		if v.t.Hour() == 0 && v.t.Minute() == 0 && v.t.Second() == 0 && v.t.Nanosecond() == 0 {
			return v.t.Format("2006-01-02")
		}
		return v.t.Format("2006-01-02 15:04:05")
	}
	return ""
}

// Coord addresses a cell by zero-based row and column.
type Coord struct {
	Row int
	Col int
}

// cellDecoder maps cell records to values.
type cellDecoder struct {
	globals      *Globals
	convertDates bool
	log          logrus.FieldLogger
}

// numeric passes a number through the date heuristic when enabled.
func (d *cellDecoder) numeric(value float64, xf uint16) Value {
	if !d.convertDates {
		return FloatValue(value)
	}
	return d.globals.applyNumberFormat(value, xf)
}

func (d *cellDecoder) label(c CellRecord) string {
	if c.Type == XL_LABEL_OLD {
		s, _ := d.globals.decoder.byteString(c.Bytes(7), 1)
		return s
	}
	if d.globals.Modern {
		s, _ := decodeUnicodeString(c.Bytes(6))
		return s
	}
	s, _ := d.globals.decoder.byteString(c.Bytes(6), 2)
	return s
}

// stringResult decodes the STRING record that follows a formula with a
// string result.
func (d *cellDecoder) stringResult(rec *Record) string {
	if rec.Type == XL_STRING_OLD {
		s, _ := d.globals.decoder.byteString(rec.Data, 1)
		return s
	}
	if d.globals.Modern {
		s, _ := decodeUnicodeString(rec.Data)
		return s
	}
	s, _ := d.globals.decoder.byteString(rec.Data, 2)
	return s
}

// decode emits every value carried by c. Absent values are not emitted.
// It returns true when c is a formula whose string result is stored in the
// STRING record that follows it.
func (d *cellDecoder) decode(c CellRecord, emit func(row, col uint16, v Value)) bool {
	row, col := c.RowIndex(), c.ColumnIndex()
	pos := c.valuePos()
	switch c.Type {
	case XL_BOOLERR, XL_BOOLERR_OLD:
		if c.U8(pos+1) != 0 {
			d.dropError(row, col, c.U8(pos))
			return false
		}
		emit(row, col, BoolValue(c.U8(pos) != 0))
	case XL_INTEGER, XL_INTEGER_OLD:
		emit(row, col, IntValue(int64(c.I16(pos))))
	case XL_NUMBER, XL_NUMBER_OLD:
		emit(row, col, d.numeric(c.F64(pos), c.XFIndex()))
	case XL_LABEL, XL_LABEL_OLD, XL_RSTRING:
		emit(row, col, TextValue(d.label(c)))
	case XL_LABELSST:
		index := c.U32(6)
		s, ok := d.globals.SST.Get(index)
		if !ok {
			d.log.WithFields(logrus.Fields{"row": row, "col": col, "isst": index}).
				Errorf("shared string index out of range (table holds %d)", d.globals.SST.Len())
			return false
		}
		emit(row, col, TextValue(s))
	case XL_RK, XL_RK_OLD:
		emit(row, col, d.numeric(RKNumber(c.U32(6)).Float64(), c.XFIndex()))
	case XL_MULRK:
		n := c.MulRKCount()
		last := c.LastColumnIndex()
		for i := 0; i < n && int(col)+i <= int(last); i++ {
			xf, rk := c.MulRKEntry(i)
			emit(row, col+uint16(i), d.numeric(rk.Float64(), xf))
		}
	case XL_BLANK, XL_BLANK_OLD, XL_MULBLANK:
	case XL_FORMULA, XL_FORMULA_V3, XL_FORMULA_V4:
		return d.formula(c, row, col, emit)
	}
	return false
}

// formula decodes the cached result of a FORMULA record. BIFF2 stores it
// at 7, after three attribute bytes; later versions at 6. It returns true
// for a string result.
func (d *cellDecoder) formula(c CellRecord, row, col uint16, emit func(row, col uint16, v Value)) bool {
	pos, xf := 6, c.XFIndex()
	if c.Type == XL_FORMULA && d.globals.Legacy {
		pos, xf = 7, uint16(c.U8(4)&0x3F)
	}
	if c.U16(pos+6) != 0xFFFF {
		emit(row, col, d.numeric(c.F64(pos), xf))
		return false
	}
	switch c.U8(pos) {
	case 0:
		return true
	case 1:
		emit(row, col, BoolValue(c.U8(pos+2) != 0))
	case 2:
		d.dropError(row, col, c.U8(pos+2))
	}
	return false
}

// dropError logs an error cell, which has no value.
func (d *cellDecoder) dropError(row, col uint16, code byte) {
	text, ok := ErrorTextFromCode[code]
	if !ok {
		text = fmt.Sprintf("#ERR%d", code)
	}
	d.log.WithFields(logrus.Fields{"row": row, "col": col, "error": text}).Debug("dropping error cell")
}
