package wire

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrTruncated is returned when a varint or fixed-size field runs past
// the end of the supplied buffer.
var ErrTruncated = errors.New("wire: buffer truncated")

// AppendVarint appends v to buf using the same unsigned LEB128-style
// encoding protobuf uses for its varint fields (protowire.AppendVarint),
// which is the encoding spec.md mandates for every id and small integer
// on the wire.
func AppendVarint(buf []byte, v uint64) []byte {
	return protowire.AppendVarint(buf, v)
}

// ReadVarint reads a varint from the front of buf, returning the value
// and the number of bytes consumed.
func ReadVarint(buf []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, 0, ErrTruncated
	}
	return v, n, nil
}

// Writer is a small append-only byte-buffer cursor used while encoding
// frames and commands.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer that appends into buf's existing capacity.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// WriteVarint appends v as an unsigned varint.
func (w *Writer) WriteVarint(v uint64) {
	w.buf = AppendVarint(w.buf, v)
}

// WriteByte appends a single byte.
func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// WriteBytes appends a length-prefixed byte slice.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteVarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// Reader is a read cursor over an immutable byte slice, mirroring
// Writer on the decode side.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the unread tail of the buffer.
func (r *Reader) Remaining() []byte { return r.buf[r.pos:] }

// ReadVarint reads and advances past an unsigned varint.
func (r *Reader) ReadVarint() (uint64, error) {
	v, n, err := ReadVarint(r.buf[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads a length-prefixed byte slice.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// Empty reports whether the reader has consumed the entire buffer.
func (r *Reader) Empty() bool { return r.pos >= len(r.buf) }
