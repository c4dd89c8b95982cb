// Package format implements the primitive and "mc"-format-specific byte
// codec described in spec.md §4.1 (C1): fixed-width big-endian integers,
// Cassandra-style variable-length integers (vint, both unsigned and
// zig-zag signed), and the disk_string<N>/disk_array<N,T> length-prefixed
// encodings.
//
// Every decode function reports a short read as errs.Truncated and an
// over-long vint as errs.Malformed, per spec.md §4.1's failure contract.
package format

import (
	"encoding/binary"
	"io"

	"github.com/nogodb/mcsstable/internal/errs"
)

// MaxVIntLen is the maximum number of bytes a vint (signed or unsigned)
// can occupy: one header byte plus up to eight value bytes.
const MaxVIntLen = 9

// -- Fixed-width big-endian integers --------------------------------------

func PutUint8(dst []byte, v uint8) { dst[0] = v }
func PutBool(dst []byte, v bool) {
	if v {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
}
func PutUint16(dst []byte, v uint16) { binary.BigEndian.PutUint16(dst, v) }
func PutUint32(dst []byte, v uint32) { binary.BigEndian.PutUint32(dst, v) }
func PutUint64(dst []byte, v uint64) { binary.BigEndian.PutUint64(dst, v) }
func PutInt32(dst []byte, v int32)   { binary.BigEndian.PutUint32(dst, uint32(v)) }
func PutInt64(dst []byte, v int64)   { binary.BigEndian.PutUint64(dst, uint64(v)) }

// GetUint16/32/64 decode a big-endian integer from the front of buf,
// without consuming an io.Reader — used by components like Statistics that
// are always read fully into memory before parsing.
func GetUint16(buf []byte) uint16 { return binary.BigEndian.Uint16(buf) }
func GetUint32(buf []byte) uint32 { return binary.BigEndian.Uint32(buf) }
func GetUint64(buf []byte) uint64 { return binary.BigEndian.Uint64(buf) }

// ReadFull reads exactly len(dst) bytes, converting io.EOF/io.ErrUnexpectedEOF
// into errs.Truncated so callers never have to special-case short reads.
func ReadFull(r io.Reader, dst []byte) error {
	if _, err := io.ReadFull(r, dst); err != nil {
		return errs.Wrap(errs.Truncated, err)
	}
	return nil
}

func ReadUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func ReadBool(r io.Reader) (bool, error) {
	b, err := ReadUint8(r)
	return b != 0, err
}

func ReadUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func ReadInt32(r io.Reader) (int32, error) {
	v, err := ReadUint32(r)
	return int32(v), err
}

func ReadUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func ReadInt64(r io.Reader) (int64, error) {
	v, err := ReadUint64(r)
	return int64(v), err
}

// -- Unsigned vint ---------------------------------------------------------
//
// The first byte's leading one-bits (0..8) count the number of additional
// big-endian value bytes that follow. A first byte < 0x80 is a complete
// one-byte value in [0, 128). The all-ones first byte (0xFF) signals eight
// extra bytes: the full 64-bit value, with no payload bits borrowed from
// the header byte itself.

// extraBytesFor returns the number of bytes (0..8) needed to hold v's
// payload once the header byte's leading-one-count is accounted for.
func extraBytesFor(v uint64) int {
	for e := 0; e < 8; e++ {
		if v < payloadLimit(e) {
			return e
		}
	}
	return 8
}

// payloadLimit returns 2^(payload bits available) for extraBytes bytes:
// 7 bits when e==0, 7+7e bits for e in 1..7.
func payloadLimit(e int) uint64 {
	if e == 0 {
		return 1 << 7
	}
	bits := 7 + 7*e
	if bits >= 64 {
		return 0 // unreachable in practice (e<=7 here), guards shift overflow
	}
	return 1 << uint(bits)
}

// PutUvarint encodes v into dst (which must have length >= MaxVIntLen) and
// returns the number of bytes written.
func PutUvarint(dst []byte, v uint64) int {
	e := extraBytesFor(v)
	if e == 0 {
		dst[0] = byte(v)
		return 1
	}
	if e == 8 {
		dst[0] = 0xFF
		for i := 0; i < 8; i++ {
			dst[1+i] = byte(v >> uint(8*(7-i)))
		}
		return 9
	}
	header := byte(0xFF << uint(8-e))
	dst[0] = header | byte(v>>uint(8*e))
	for i := 0; i < e; i++ {
		dst[1+i] = byte(v >> uint(8*(e-1-i)))
	}
	return 1 + e
}

// WriteUvarint writes the vint encoding of v to w.
func WriteUvarint(w io.Writer, v uint64) error {
	var buf [MaxVIntLen]byte
	n := PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

// UvarintLen returns the number of bytes PutUvarint would write for v.
func UvarintLen(v uint64) int {
	e := extraBytesFor(v)
	if e == 8 {
		return 9
	}
	return 1 + e
}

func leadingOnes(b byte) int {
	n := 0
	for mask := byte(0x80); mask != 0 && b&mask != 0; mask >>= 1 {
		n++
	}
	return n
}

// Uvarint decodes a vint from the front of buf, returning the value and the
// number of bytes consumed, or (0, 0) if buf doesn't hold a complete vint.
func Uvarint(buf []byte) (uint64, int) {
	if len(buf) == 0 {
		return 0, 0
	}
	b0 := buf[0]
	e := leadingOnes(b0)
	if 1+e > len(buf) {
		return 0, 0
	}
	if e == 0 {
		return uint64(b0), 1
	}
	var v uint64
	if e < 8 {
		v = uint64(b0 & (0xFF >> uint(e+1)))
	}
	for i := 0; i < e; i++ {
		v = v<<8 | uint64(buf[1+i])
	}
	return v, 1 + e
}

// ReadUvarint decodes a vint from r.
func ReadUvarint(r io.Reader) (uint64, error) {
	var b0 [1]byte
	if err := ReadFull(r, b0[:]); err != nil {
		return 0, err
	}
	e := leadingOnes(b0[0])
	if e == 0 {
		return uint64(b0[0]), nil
	}
	var rest [8]byte
	if err := ReadFull(r, rest[:e]); err != nil {
		return 0, err
	}
	var v uint64
	if e < 8 {
		v = uint64(b0[0] & (0xFF >> uint(e+1)))
	}
	for i := 0; i < e; i++ {
		v = v<<8 | uint64(rest[i])
	}
	return v, nil
}

// -- Signed vint (zig-zag) --------------------------------------------------

func zigZagEncode(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

func zigZagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

func PutVarint(dst []byte, n int64) int {
	return PutUvarint(dst, zigZagEncode(n))
}

func WriteVarint(w io.Writer, n int64) error {
	return WriteUvarint(w, zigZagEncode(n))
}

func VarintLen(n int64) int {
	return UvarintLen(zigZagEncode(n))
}

func Varint(buf []byte) (int64, int) {
	u, n := Uvarint(buf)
	if n == 0 {
		return 0, 0
	}
	return zigZagDecode(u), n
}

func ReadVarint(r io.Reader) (int64, error) {
	u, err := ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	return zigZagDecode(u), nil
}

// -- disk_string<N> / disk_array<N,T> --------------------------------------
//
// disk_string<N> is an N-byte (N in {1,2,4} representing 8/16/32-bit widths)
// length prefix followed by that many raw bytes. It is used for legacy
// header fields; the "mc" row/cell format instead length-prefixes strings
// with a vint (see WriteVIntBytes/ReadVIntBytes below).

// WriteDiskString16 writes a disk_string<u16>: a big-endian uint16 length
// followed by b. Used for the partition-key prefix of the data-file header
// (spec.md §4.3.1).
func WriteDiskString16(w io.Writer, b []byte) error {
	if len(b) > 0xFFFF {
		return errs.Newf(errs.Overflow, "disk_string<u16>: %d bytes exceeds uint16 range", len(b))
	}
	var hdr [2]byte
	PutUint16(hdr[:], uint16(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func ReadDiskString16(r io.Reader) ([]byte, error) {
	n, err := ReadUint16(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteVIntBytes writes a vint length prefix followed by b, the "mc" format
// encoding for variable-length byte strings inside rows and cells.
func WriteVIntBytes(w io.Writer, b []byte) error {
	if err := WriteUvarint(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func ReadVIntBytes(r io.Reader) ([]byte, error) {
	n, err := ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteDiskArrayCount writes the N-byte element count prefix of a
// disk_array<N,T>; N is fixed at 4 bytes (uint32) for every disk_array this
// engine emits (Summary positions, Filter bitset words).
func WriteDiskArrayCount(w io.Writer, n uint32) error {
	var b [4]byte
	PutUint32(b[:], n)
	_, err := w.Write(b[:])
	return err
}

func ReadDiskArrayCount(r io.Reader) (uint32, error) {
	return ReadUint32(r)
}
