package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var errIndexOutOfRange = errors.New("index out of range")

// byteReader reads big endian class file data. It holds a cursor for the
// current position and moves it on every read.
type byteReader struct {
	data   []byte
	offset int
}

func newByteReader(data []byte) *byteReader {
	return &byteReader{data: data}
}

func (r *byteReader) remaining() int {
	return len(r.data) - r.offset
}

func (r *byteReader) need(n int) error {
	if n < 0 || r.remaining() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", errIndexOutOfRange, n, r.offset, r.remaining())
	}

	return nil
}

func (r *byteReader) readU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}

	res := r.data[r.offset]
	r.offset++

	return res, nil
}

func (r *byteReader) readS8() (int8, error) {
	v, err := r.readU8()
	return int8(v), err
}

func (r *byteReader) readU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}

	res := binary.BigEndian.Uint16(r.data[r.offset:])
	r.offset += 2

	return res, nil
}

func (r *byteReader) readS16() (int16, error) {
	v, err := r.readU16()
	return int16(v), err
}

func (r *byteReader) readU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}

	res := binary.BigEndian.Uint32(r.data[r.offset:])
	r.offset += 4

	return res, nil
}

func (r *byteReader) readS32() (int32, error) {
	v, err := r.readU32()
	return int32(v), err
}

func (r *byteReader) readU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}

	res := binary.BigEndian.Uint64(r.data[r.offset:])
	r.offset += 8

	return res, nil
}

// readBytes returns the next n bytes without copying them.
func (r *byteReader) readBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}

	res := r.data[r.offset : r.offset+n]
	r.offset += n

	return res, nil
}

func (r *byteReader) skip(n int) error {
	_, err := r.readBytes(n)
	return err
}

// byteWriter is the big endian counterpart of byteReader.
type byteWriter struct {
	buf []byte
}

func (w *byteWriter) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *byteWriter) u16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *byteWriter) u32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *byteWriter) u64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *byteWriter) bytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *byteWriter) len() int {
	return len(w.buf)
}

// putU32 overwrites four bytes at pos, used to backpatch attribute lengths.
func (w *byteWriter) putU32(pos int, v uint32) {
	binary.BigEndian.PutUint32(w.buf[pos:], v)
}
