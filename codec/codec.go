// Package codec defines the wire contract between user key/value types and
// the tree engine: write self to a byte sink, read a fresh instance from a
// byte source, report the exact serialized size. The engine never inspects
// the bytes a Codec produces; it only appends them to the data file and
// reads them back from the offsets recorded in the tree file's
// payload-offset table.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// Codec is the per-type contract a key or value must satisfy.
type Codec[T any] interface {
	Write(w io.Writer, v T) error
	Read(r io.Reader) (T, error)
	Size(v T) int
}

// Less is a stateless ordering predicate bound once per tree instance.
type Less[T any] func(a, b T) bool

// Uint64 encodes a uint64 as its raw little-endian 8-byte representation.
type Uint64 struct{}

func (Uint64) Write(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func (Uint64) Read(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (Uint64) Size(uint64) int { return 8 }

// Int64 encodes an int64 as its raw little-endian 8-byte representation.
type Int64 struct{}

func (Int64) Write(w io.Writer, v int64) error {
	return Uint64{}.Write(w, uint64(v))
}

func (Int64) Read(r io.Reader) (int64, error) {
	u, err := Uint64{}.Read(r)
	return int64(u), err
}

func (Int64) Size(int64) int { return 8 }

// String encodes a string length-prefixed: an 8-byte unsigned word giving
// the byte length, followed by the raw bytes.
type String struct{}

func (String) Write(w io.Writer, v string) error {
	if err := (Uint64{}).Write(w, uint64(len(v))); err != nil {
		return err
	}
	_, err := io.WriteString(w, v)
	return err
}

func (String) Read(r io.Reader) (string, error) {
	n, err := (Uint64{}).Read(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("codec: read string body: %w", err)
	}
	return string(buf), nil
}

func (String) Size(v string) int { return 8 + len(v) }

// Bytes encodes a []byte length-prefixed, identically to String.
type Bytes struct{}

func (Bytes) Write(w io.Writer, v []byte) error {
	if err := (Uint64{}).Write(w, uint64(len(v))); err != nil {
		return err
	}
	_, err := w.Write(v)
	return err
}

func (Bytes) Read(r io.Reader) ([]byte, error) {
	n, err := (Uint64{}).Read(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("codec: read bytes body: %w", err)
	}
	return buf, nil
}

func (Bytes) Size(v []byte) int { return 8 + len(v) }

// SnappyBytes is an additive encoding for large opaque byte blobs: the value
// is snappy-compressed before the length prefix is computed, so the prefix
// reflects the compressed size actually written to the data file. It is not
// one of the three required concrete encodings (§4.1); it is an opt-in
// Codec[[]byte] for callers whose values benefit from compression.
type SnappyBytes struct{}

func (SnappyBytes) Write(w io.Writer, v []byte) error {
	compressed := snappy.Encode(nil, v)
	return (Bytes{}).Write(w, compressed)
}

func (SnappyBytes) Read(r io.Reader) ([]byte, error) {
	compressed, err := (Bytes{}).Read(r)
	if err != nil {
		return nil, err
	}
	v, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("codec: snappy decode: %w", err)
	}
	return v, nil
}

func (SnappyBytes) Size(v []byte) int {
	return (Bytes{}).Size(snappy.Encode(nil, v))
}

// Slice encodes a homogeneous sequence as a count followed by elements,
// using Elem for each element.
type Slice[T any] struct {
	Elem Codec[T]
}

func (s Slice[T]) Write(w io.Writer, v []T) error {
	if err := (Uint64{}).Write(w, uint64(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := s.Elem.Write(w, e); err != nil {
			return err
		}
	}
	return nil
}

func (s Slice[T]) Read(r io.Reader) ([]T, error) {
	n, err := (Uint64{}).Read(r)
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		e, err := s.Elem.Read(r)
		if err != nil {
			return nil, fmt.Errorf("codec: read slice element %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}

func (s Slice[T]) Size(v []T) int {
	total := 8
	for _, e := range v {
		total += s.Elem.Size(e)
	}
	return total
}
