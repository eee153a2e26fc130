package xls

import (
	"unicode/utf16"
)

// SharedStrings is the workbook's shared string table. It collects the SST
// record and its CONTINUE fragments during the globals scan and decodes
// them once the scan reaches EOF.
type SharedStrings struct {
	// TotalCount is the number of string references in the workbook.
	TotalCount uint32

	// UniqueCount is the number of strings the table declares.
	UniqueCount uint32

	fragments [][]byte
	strings   []string
	finalized bool
}

func newSharedStrings(rec *Record) *SharedStrings {
	sst := &SharedStrings{
		TotalCount:  rec.U32(0),
		UniqueCount: rec.U32(4),
	}
	sst.fragments = append(sst.fragments, rec.Bytes(8))
	return sst
}

// appendContinue adds the payload of a CONTINUE record.
func (s *SharedStrings) appendContinue(rec *Record) {
	s.fragments = append(s.fragments, rec.Data)
}

// Len returns the number of decoded strings.
func (s *SharedStrings) Len() int {
	if s == nil {
		return 0
	}
	return len(s.strings)
}

// Get returns the string at index i.
func (s *SharedStrings) Get(i uint32) (string, bool) {
	if s == nil || uint64(i) >= uint64(len(s.strings)) {
		return "", false
	}
	return s.strings[i], true
}

// finalize decodes all fragments. Strings may cross fragment boundaries;
// each continuation of character data starts with a fresh option byte that
// selects the character width for the rest of the string.
func (s *SharedStrings) finalize() {
	if s.finalized {
		return
	}
	s.finalized = true
	c := &sstCursor{frags: s.fragments}
	s.strings = make([]string, 0, s.capacity())
	for i := uint32(0); i < s.UniqueCount; i++ {
		str, ok := c.readString()
		if !ok {
			break
		}
		s.strings = append(s.strings, str)
	}
	s.fragments = nil
}

// minStringSize is the smallest encoded string: a character count and an
// option byte.
const minStringSize = 3

// capacity bounds the declared unique count by what the fragments can hold.
func (s *SharedStrings) capacity() int {
	total := 0
	for _, f := range s.fragments {
		total += len(f)
	}
	if fit := total / minStringSize; uint64(fit) < uint64(s.UniqueCount) {
		return fit
	}
	return int(s.UniqueCount)
}

type sstCursor struct {
	frags [][]byte
	i     int
	pos   int
}

// next moves to the start of the following fragment.
func (c *sstCursor) next() bool {
	if c.i+1 >= len(c.frags) {
		return false
	}
	c.i++
	c.pos = 0
	return true
}

func (c *sstCursor) byteAt() (byte, bool) {
	for c.i < len(c.frags) && c.pos >= len(c.frags[c.i]) {
		if !c.next() {
			return 0, false
		}
	}
	if c.i >= len(c.frags) {
		return 0, false
	}
	b := c.frags[c.i][c.pos]
	c.pos++
	return b, true
}

func (c *sstCursor) u16() (uint16, bool) {
	lo, ok1 := c.byteAt()
	hi, ok2 := c.byteAt()
	return uint16(lo) | uint16(hi)<<8, ok1 && ok2
}

func (c *sstCursor) u32() (uint32, bool) {
	lo, ok1 := c.u16()
	hi, ok2 := c.u16()
	return uint32(lo) | uint32(hi)<<16, ok1 && ok2
}

// skip discards n bytes, crossing fragments without option bytes.
func (c *sstCursor) skip(n int) bool {
	for n > 0 {
		left := len(c.frags[c.i]) - c.pos
		if left >= n {
			c.pos += n
			return true
		}
		n -= left
		if !c.next() {
			return false
		}
	}
	return true
}

func (c *sstCursor) readString() (string, bool) {
	nchars, ok := c.u16()
	if !ok {
		return "", false
	}
	flags, ok := c.byteAt()
	if !ok {
		return "", false
	}
	var runs uint16
	var ext uint32
	if flags&0x08 != 0 {
		if runs, ok = c.u16(); !ok {
			return "", false
		}
	}
	if flags&0x04 != 0 {
		if ext, ok = c.u32(); !ok {
			return "", false
		}
	}

	units := make([]uint16, 0, nchars)
	wide := flags&0x01 != 0
	for len(units) < int(nchars) {
		if c.pos >= len(c.frags[c.i]) {
			if !c.next() {
				return string(utf16.Decode(units)), true
			}
			opt := c.frags[c.i]
			if len(opt) == 0 {
				continue
			}
			wide = opt[0]&0x01 != 0
			c.pos = 1
			continue
		}
		frag := c.frags[c.i]
		if wide {
			if c.pos+2 > len(frag) {
				c.pos = len(frag)
				continue
			}
			units = append(units, uint16(frag[c.pos])|uint16(frag[c.pos+1])<<8)
			c.pos += 2
		} else {
			units = append(units, uint16(frag[c.pos]))
			c.pos++
		}
	}
	c.skip(int(runs)*4 + int(ext))
	return string(utf16.Decode(units)), true
}
