package xls

import (
	"encoding/binary"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// Code pages written as "ANSI Latin 1" by the report generators we read.
// Their byte strings are really UTF-8.
const (
	codepageANSILatin1 = 1252
	codepageLegacyANSI = 32769
	codepageUTF16LE    = 1200
)

// EncodingFromCodepage maps CODEPAGE values to decoders.
var EncodingFromCodepage = map[uint16]encoding.Encoding{
	437:   charmap.CodePage437,
	850:   charmap.CodePage850,
	852:   charmap.CodePage852,
	855:   charmap.CodePage855,
	858:   charmap.CodePage858,
	860:   charmap.CodePage860,
	862:   charmap.CodePage862,
	863:   charmap.CodePage863,
	865:   charmap.CodePage865,
	866:   charmap.CodePage866,
	874:   charmap.Windows874,
	932:   japanese.ShiftJIS,
	936:   simplifiedchinese.GBK,
	949:   korean.EUCKR,
	950:   traditionalchinese.Big5,
	1200:  unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	1255:  charmap.Windows1255,
	1256:  charmap.Windows1256,
	1257:  charmap.Windows1257,
	1258:  charmap.Windows1258,
	10000: charmap.Macintosh,
	10007: charmap.MacintoshCyrillic,
	20866: charmap.KOI8R,
	21866: charmap.KOI8U,
	28591: charmap.ISO8859_1,
	28592: charmap.ISO8859_2,
	28595: charmap.ISO8859_5,
	28597: charmap.ISO8859_7,
	32768: charmap.Macintosh,
}

// textDecoder turns byte strings of pre-BIFF8 records into UTF-8.
type textDecoder struct {
	codepage uint16
	enc      encoding.Encoding

	// utf8 decodes as UTF-8 and falls back to Windows-1252 on invalid input.
	utf8 bool
}

// newTextDecoder resolves a CODEPAGE value. The second result is false
// when the code page is unknown and the default was used.
func newTextDecoder(codepage uint16) (*textDecoder, bool) {
	if codepage == codepageANSILatin1 || codepage == codepageLegacyANSI {
		return &textDecoder{codepage: codepage, utf8: true}, true
	}
	if enc, ok := EncodingFromCodepage[codepage]; ok {
		return &textDecoder{codepage: codepage, enc: enc}, true
	}
	return defaultTextDecoder(), false
}

func defaultTextDecoder() *textDecoder {
	return &textDecoder{codepage: codepageANSILatin1, utf8: true}
}

// Codepage returns the code page the decoder was built for.
func (d *textDecoder) Codepage() uint16 {
	return d.codepage
}

func (d *textDecoder) decode(raw []byte) string {
	if d == nil {
		d = defaultTextDecoder()
	}
	if d.utf8 {
		if utf8.Valid(raw) {
			return string(raw)
		}
		out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		if err != nil {
			return string(raw)
		}
		return string(out)
	}
	out, err := d.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// byteString decodes a string prefixed by a lenlen-byte character count.
// It returns the string and the number of bytes consumed.
func (d *textDecoder) byteString(data []byte, lenlen int) (string, int) {
	if len(data) < lenlen {
		return "", len(data)
	}
	var nchars int
	if lenlen == 1 {
		nchars = int(data[0])
	} else {
		nchars = int(binary.LittleEndian.Uint16(data))
	}
	end := lenlen + nchars
	if end > len(data) {
		end = len(data)
	}
	return d.decode(data[lenlen:end]), end
}

// decodeCompressed decodes BIFF8 "compressed" characters, which are the
// low bytes of UTF-16 code units, i.e. Latin-1.
func decodeCompressed(raw []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func decodeUTF16(raw []byte) string {
	words := make([]uint16, len(raw)/2)
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return string(utf16.Decode(words))
}

// decodeChars decodes nchars characters starting at data[0] with the given
// BIFF8 option flags. It returns the string and the bytes consumed.
func decodeChars(data []byte, nchars int, flags byte) (string, int) {
	if flags&0x01 == 0 {
		if nchars > len(data) {
			nchars = len(data)
		}
		return decodeCompressed(data[:nchars]), nchars
	}
	n := nchars * 2
	if n > len(data) {
		n = len(data) &^ 1
	}
	return decodeUTF16(data[:n]), n
}

// decodeShortUnicodeString decodes a BIFF8 ShortXLUnicodeString: an 8-bit
// character count, an option byte, then the characters.
func decodeShortUnicodeString(data []byte) (string, int) {
	if len(data) < 2 {
		return "", len(data)
	}
	s, n := decodeChars(data[2:], int(data[0]), data[1])
	return s, 2 + n
}

// decodeUnicodeString decodes a BIFF8 XLUnicodeString with a 16-bit count,
// skipping rich-text runs and phonetic data when present.
func decodeUnicodeString(data []byte) (string, int) {
	if len(data) < 3 {
		return "", len(data)
	}
	nchars := int(binary.LittleEndian.Uint16(data))
	flags := data[2]
	pos := 3
	var runs, ext int
	if flags&0x08 != 0 && pos+2 <= len(data) {
		runs = int(binary.LittleEndian.Uint16(data[pos:])) * 4
		pos += 2
	}
	if flags&0x04 != 0 && pos+4 <= len(data) {
		ext = int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
	}
	if pos > len(data) {
		return "", len(data)
	}
	s, n := decodeChars(data[pos:], nchars, flags)
	pos += n + runs + ext
	if pos > len(data) {
		pos = len(data)
	}
	return s, pos
}
