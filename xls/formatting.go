package xls

import (
	"strconv"
	"strings"
)

type xfEncoding uint8

const (
	xfV2 xfEncoding = iota
	xfV3
	xfV4
	xfCurrent
)

// ExtendedFormat is an XF record in any of its four generations. Only the
// number-format part is interpreted.
type ExtendedFormat struct {
	rec      *Record
	encoding xfEncoding
}

func newExtendedFormat(rec *Record) ExtendedFormat {
	xf := ExtendedFormat{rec: rec, encoding: xfCurrent}
	switch rec.Type {
	case XL_XF_V2:
		xf.encoding = xfV2
	case XL_XF_V3:
		xf.encoding = xfV3
	case XL_XF_V4:
		xf.encoding = xfV4
	}
	return xf
}

// FormatID returns the number format id of the XF. The second result is
// false when the XF's "number format applies" bit is clear, in which case
// the cell value is used as is.
func (x ExtendedFormat) FormatID(modern bool) (uint16, bool) {
	r := x.rec
	switch x.encoding {
	case xfV2:
		return uint16(r.U8(2) & 0x3F), true
	case xfV3:
		if r.U8(3)&0x04 == 0 {
			return 0, false
		}
		return uint16(r.U8(1)), true
	case xfV4:
		if r.U8(5)&0x04 == 0 {
			return 0, false
		}
		return uint16(r.U8(1)), true
	default:
		flagPos := 7
		if modern {
			flagPos = 9
		}
		if r.U8(flagPos)&0x04 == 0 {
			return 0, false
		}
		return r.U16(2), true
	}
}

// fmtText is the built-in "@" format.
const fmtText = 49

type formatClass int

const (
	formatCustom formatClass = iota
	formatNumber
	formatDate
	formatText
)

func builtinFormatClass(id uint16) formatClass {
	switch {
	case id <= 13, id >= 37 && id <= 44, id == 48:
		return formatNumber
	case id >= 14 && id <= 22, id >= 45 && id <= 47:
		return formatDate
	case id == fmtText:
		return formatText
	}
	return formatCustom
}

var nonDateFormats = map[string]bool{
	"0.00E+00": true,
	"##0.0E+0": true,
	"General":  true,
	"GENERAL":  true,
	"general":  true,
	"Standard": true,
	"@":        true,
}

// IsDateFormatString reports whether a custom number format lays out a
// date or time.
//
// Quoted literals, characters escaped by \ _ or *, and bracketed sections
// such as [Red], [$-409] or [h] are ignored. What remains is a date format
// when it holds at least one of y m d h s (caseless) and no digit
// placeholder (0 # ?), so "0.0 h" and "mm:ss.000" are numbers.
func IsDateFormatString(format string) bool {
	if !strings.ContainsAny(format, "yYmMdDhHsS") {
		return false
	}
	if nonDateFormats[format] {
		return false
	}

	const (
		plain = iota
		quoted
		escaped
		bracketed
	)
	state := plain
	dateCount, numCount := 0, 0
	for _, c := range format {
		switch state {
		case quoted:
			if c == '"' {
				state = plain
			}
			continue
		case escaped:
			state = plain
			continue
		case bracketed:
			if c == ']' {
				state = plain
			}
			continue
		}
		switch c {
		case '"':
			state = quoted
		case '\\', '_', '*':
			state = escaped
		case '[':
			state = bracketed
		case 'y', 'Y', 'm', 'M', 'd', 'D', 'h', 'H', 's', 'S':
			dateCount++
		case '0', '#', '?':
			numCount++
		}
	}
	return dateCount > 0 && numCount == 0
}

// applyNumberFormat runs the date heuristic for a numeric cell value and
// its XF index.
func (g *Globals) applyNumberFormat(value float64, xfIndex uint16) Value {
	var formatID uint16
	if int(xfIndex) < len(g.ExtendedFormats) {
		id, applies := g.ExtendedFormats[xfIndex].FormatID(g.Modern)
		if !applies {
			return FloatValue(value)
		}
		formatID = id
	} else {
		formatID = xfIndex
	}

	switch builtinFormatClass(formatID) {
	case formatNumber:
		return FloatValue(value)
	case formatDate:
		return g.dateValue(value)
	case formatText:
		return TextValue(strconv.FormatFloat(value, 'f', -1, 64))
	}

	format, ok := g.Formats[formatID]
	if !ok || !IsDateFormatString(format) {
		return FloatValue(value)
	}
	return g.dateValue(value)
}

func (g *Globals) dateValue(value float64) Value {
	t, err := XldateAsDatetime(value, g.Datemode)
	if err != nil {
		g.logger().WithError(err).Warn("keeping raw number for date cell")
		return FloatValue(value)
	}
	return DateValue(t)
}
