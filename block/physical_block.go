// Package block implements the physical-block envelope shared by every "mc"
// component file: a payload followed by a trailer recording the
// compression used and a CRC32 checksum, adapted from the teacher's
// block/physical_block.go.
package block

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/nogodb/mcsstable/compression"
	"github.com/nogodb/mcsstable/internal/errs"
)

// TrailerLen is the size of the trailer appended after a block's payload:
// one byte recording the compression type, four bytes of CRC32 checksum.
const TrailerLen = 5

// Physical is a block as it sits on disk: possibly-compressed payload plus
// trailer. Data is never aliased past a call to Validate/Decompress; callers
// own the backing array.
type Physical struct {
	Data    []byte
	Trailer [TrailerLen]byte
}

// SetTrailer stamps the compression type and the checksum of Data (the
// on-disk, possibly-compressed bytes) into the trailer.
func (p *Physical) SetTrailer(compressionType compression.Type) {
	p.Trailer[0] = byte(compressionType)
	checksum := crc32.ChecksumIEEE(p.Data)
	binary.LittleEndian.PutUint32(p.Trailer[1:], checksum)
}

// CompressionType reports the trailer's recorded compression algorithm.
func (p *Physical) CompressionType() compression.Type {
	return compression.Type(p.Trailer[0])
}

// Checksum reports the trailer's recorded CRC32.
func (p *Physical) Checksum() uint32 {
	return binary.LittleEndian.Uint32(p.Trailer[1:])
}

// NewPhysical builds a Physical from an already-known compression type and
// checksum, for callers (such as a chunked Data-file reader) that persist
// only the checksum on the wire and recover the compression type from
// file-level metadata rather than from a per-block trailer byte.
func NewPhysical(data []byte, compressionType compression.Type, checksum uint32) Physical {
	p := Physical{Data: data}
	p.Trailer[0] = byte(compressionType)
	binary.LittleEndian.PutUint32(p.Trailer[1:], checksum)
	return p
}

// Size is the on-disk footprint of the block, payload plus trailer.
func (p *Physical) Size() uint64 {
	return uint64(len(p.Data)) + TrailerLen
}

// Validate recomputes the checksum over Data and compares it to the
// trailer, returning errs.Checksum on mismatch.
func (p *Physical) Validate() error {
	want := binary.LittleEndian.Uint32(p.Trailer[1:])
	got := crc32.ChecksumIEEE(p.Data)
	if want != got {
		return errs.Newf(errs.Checksum, "block checksum mismatch: want %08x got %08x", want, got)
	}
	return nil
}

// Decompressed returns the logical (uncompressed) payload, decompressing
// through the codec matching the trailer's recorded type if needed. buf, if
// non-nil and correctly sized, is reused as scratch space.
func (p *Physical) Decompressed(buf []byte) ([]byte, error) {
	ct := p.CompressionType()
	if ct == compression.None {
		return p.Data, nil
	}
	codec := compression.New(ct)
	n, err := codec.DecompressedLen(p.Data)
	if err != nil {
		return nil, errs.Wrap(errs.Malformed, err)
	}
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if err := codec.Decompress(buf, p.Data); err != nil {
		return nil, err
	}
	return buf, nil
}

// Handle is the file offset and length of a block, encoded as a pair of
// vints inside an index entry.
type Handle struct {
	Offset uint64
	Length uint64 // includes the trailer
}

func (h Handle) EncodeInto(buf []byte) int {
	n := binary.PutUvarint(buf, h.Offset)
	m := binary.PutUvarint(buf[n:], h.Length)
	return n + m
}

func DecodeHandle(buf []byte) (Handle, int) {
	offset, n := binary.Uvarint(buf)
	if n <= 0 {
		return Handle{}, 0
	}
	length, m := binary.Uvarint(buf[n:])
	if m <= 0 {
		return Handle{}, 0
	}
	return Handle{Offset: offset, Length: length}, n + m
}
