// Package wire contains the binary primitives the snapshot codec is built on.
// Integers are varint-encoded, strings and slices are length-prefixed.  The
// reader keeps the first error it encounters, so callers check it once after
// a sequence of reads.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrTruncated is returned when the input ends in the middle of a value.
const ErrTruncated errors.Error = "unexpected end of data"

// Writer appends encoded values to a byte slice.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with the given initial capacity.
func NewWriter(capacity int) (w *Writer) {
	return &Writer{
		buf: make([]byte, 0, capacity),
	}
}

// Bytes returns the encoded data.
func (w *Writer) Bytes() (b []byte) {
	return w.buf
}

// Uvarint writes an unsigned integer.
func (w *Writer) Uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// Varint writes a signed integer.
func (w *Writer) Varint(v int64) {
	w.buf = binary.AppendVarint(w.buf, v)
}

// Bool writes a boolean as a single byte.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// String writes a length-prefixed string.
func (w *Writer) String(s string) {
	w.Uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// Strings writes a length-prefixed slice of strings.
func (w *Writer) Strings(ss []string) {
	w.Uvarint(uint64(len(ss)))
	for _, s := range ss {
		w.String(s)
	}
}

// Int64s writes a length-prefixed slice of signed integers.
func (w *Writer) Int64s(vs []int64) {
	w.Uvarint(uint64(len(vs)))
	for _, v := range vs {
		w.Varint(v)
	}
}

// Reader decodes values written by [Writer].
type Reader struct {
	err error
	buf []byte
	off int
}

// NewReader returns a reader over b.
func NewReader(b []byte) (r *Reader) {
	return &Reader{
		buf: b,
	}
}

// Err returns the first error encountered while reading.
func (r *Reader) Err() (err error) {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() (n int) {
	return len(r.buf) - r.off
}

// fail records err unless an error is already recorded.
func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Uvarint reads an unsigned integer.
func (r *Reader) Uvarint() (v uint64) {
	if r.err != nil {
		return 0
	}

	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.fail(fmt.Errorf("reading uvarint at offset %d: %w", r.off, ErrTruncated))

		return 0
	}

	r.off += n

	return v
}

// Varint reads a signed integer.
func (r *Reader) Varint() (v int64) {
	if r.err != nil {
		return 0
	}

	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		r.fail(fmt.Errorf("reading varint at offset %d: %w", r.off, ErrTruncated))

		return 0
	}

	r.off += n

	return v
}

// Bool reads a boolean.
func (r *Reader) Bool() (v bool) {
	if r.err != nil {
		return false
	}

	if r.off >= len(r.buf) {
		r.fail(fmt.Errorf("reading bool at offset %d: %w", r.off, ErrTruncated))

		return false
	}

	b := r.buf[r.off]
	r.off++
	if b > 1 {
		r.fail(fmt.Errorf("bad bool value %d at offset %d", b, r.off-1))

		return false
	}

	return b == 1
}

// Len reads a length prefix and validates it against the remaining data,
// assuming that each element takes at least one byte.
func (r *Reader) Len() (n int) {
	l := r.Uvarint()
	if r.err != nil {
		return 0
	}

	if l > uint64(r.Remaining()) {
		r.fail(fmt.Errorf("length %d at offset %d: %w", l, r.off, ErrTruncated))

		return 0
	}

	return int(l)
}

// String reads a length-prefixed string.
func (r *Reader) String() (s string) {
	n := r.Len()
	if r.err != nil || n == 0 {
		return ""
	}

	s = string(r.buf[r.off : r.off+n])
	r.off += n

	return s
}

// Strings reads a length-prefixed slice of strings.  An empty slice is read
// as nil.
func (r *Reader) Strings() (ss []string) {
	n := r.Len()
	if r.err != nil || n == 0 {
		return nil
	}

	ss = make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		ss = append(ss, r.String())
	}

	return ss
}

// Int64s reads a length-prefixed slice of signed integers.  An empty slice is
// read as nil.
func (r *Reader) Int64s() (vs []int64) {
	n := r.Len()
	if r.err != nil || n == 0 {
		return nil
	}

	vs = make([]int64, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		vs = append(vs, r.Varint())
	}

	return vs
}
