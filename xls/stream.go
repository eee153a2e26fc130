package xls

import (
	"encoding/binary"
	"io"
	"math"
)

// Record is one length-delimited BIFF record.
type Record struct {
	// Type is the record type tag.
	Type uint16

	// Offset is the absolute offset of the record header in the stream.
	Offset int64

	// Length is the payload length from the record header.
	Length uint16

	// Data is the raw payload.
	Data []byte
}

// Size is the number of bytes the record occupies in the stream.
func (r *Record) Size() int64 {
	return 4 + int64(r.Length)
}

// Next is the offset of the record that follows r.
func (r *Record) Next() int64 {
	return r.Offset + r.Size()
}

// U8 returns the byte at pos, or 0 when pos is out of range.
func (r *Record) U8(pos int) uint8 {
	if pos < 0 || pos >= len(r.Data) {
		return 0
	}
	return r.Data[pos]
}

// U16 returns the little-endian uint16 at pos, or 0 when out of range.
func (r *Record) U16(pos int) uint16 {
	if pos < 0 || pos+2 > len(r.Data) {
		return 0
	}
	return binary.LittleEndian.Uint16(r.Data[pos:])
}

// I16 returns the little-endian int16 at pos.
func (r *Record) I16(pos int) int16 {
	return int16(r.U16(pos))
}

// U32 returns the little-endian uint32 at pos, or 0 when out of range.
func (r *Record) U32(pos int) uint32 {
	if pos < 0 || pos+4 > len(r.Data) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.Data[pos:])
}

// I32 returns the little-endian int32 at pos.
func (r *Record) I32(pos int) int32 {
	return int32(r.U32(pos))
}

// F64 returns the IEEE 754 double at pos, or 0 when out of range.
func (r *Record) F64(pos int) float64 {
	if pos < 0 || pos+8 > len(r.Data) {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(r.Data[pos:]))
}

// Bytes returns the payload from pos on, or nil when pos is out of range.
func (r *Record) Bytes(pos int) []byte {
	if pos < 0 || pos > len(r.Data) {
		return nil
	}
	return r.Data[pos:]
}

// RecordStream is a seekable cursor over a workbook stream.
//
// Read returns io.EOF once the cursor reaches the end of the stream.
// ReadAt reads the record at an absolute offset and leaves the cursor
// just past it, so a following Read continues from there.
type RecordStream interface {
	Seek(offset int64) error
	Read() (*Record, error)
	ReadAt(offset int64) (*Record, error)
	Size() int64
	Position() int64
}

// ByteStream is a RecordStream over an in-memory workbook stream.
type ByteStream struct {
	mem      []byte
	position int64
}

// NewByteStream creates a ByteStream positioned at offset 0.
func NewByteStream(mem []byte) *ByteStream {
	return &ByteStream{mem: mem}
}

// Seek moves the cursor to an absolute offset.
func (s *ByteStream) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.mem)) {
		return NewXLSError(ErrUnexpectedEnd, "seek to %d outside stream of %d bytes", offset, len(s.mem))
	}
	s.position = offset
	return nil
}

// Read returns the record at the cursor and advances past it.
func (s *ByteStream) Read() (*Record, error) {
	if s.position+4 > int64(len(s.mem)) {
		return nil, io.EOF
	}
	pos := s.position
	code := binary.LittleEndian.Uint16(s.mem[pos:])
	length := binary.LittleEndian.Uint16(s.mem[pos+2:])
	end := pos + 4 + int64(length)
	if end > int64(len(s.mem)) {
		s.position = int64(len(s.mem))
		return nil, NewXLSError(ErrTruncatedRecord, "record 0x%04X at %d wants %d bytes, %d left", code, pos, length, int64(len(s.mem))-pos-4)
	}
	s.position = end
	return &Record{
		Type:   code,
		Offset: pos,
		Length: length,
		Data:   s.mem[pos+4 : end],
	}, nil
}

// ReadAt seeks to offset and reads one record.
func (s *ByteStream) ReadAt(offset int64) (*Record, error) {
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	return s.Read()
}

// Size returns the stream length in bytes.
func (s *ByteStream) Size() int64 {
	return int64(len(s.mem))
}

// Position returns the cursor offset.
func (s *ByteStream) Position() int64 {
	return s.position
}
