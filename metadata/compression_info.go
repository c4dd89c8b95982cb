package metadata

import (
	"io"

	"github.com/nogodb/mcsstable/compression"
	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/format"
)

// CompressionInfo records how the Data component's chunks were compressed:
// the algorithm, the uncompressed chunk length every chunk but the last
// was cut to, and the on-disk offset of every chunk, per spec.md §4.2.
type CompressionInfo struct {
	Type               compression.Type
	ChunkLengthBytes   int
	UncompressedLength int64
	// ChunkOffsets[i] is the file offset of the i-th compressed chunk;
	// ChunkOffsets[len-1] doubles as the end-of-data sentinel the way
	// Cassandra's own CompressionMetadata.Writer records it.
	ChunkOffsets []uint64
}

func (c *CompressionInfo) WriteTo(w io.Writer) error {
	var hdr [1 + 4 + 8]byte
	hdr[0] = byte(c.Type)
	format.PutUint32(hdr[1:5], uint32(c.ChunkLengthBytes))
	format.PutUint64(hdr[5:], uint64(c.UncompressedLength))
	if _, err := w.Write(hdr[:]); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	if err := format.WriteDiskArrayCount(w, uint32(len(c.ChunkOffsets))); err != nil {
		return err
	}
	for _, off := range c.ChunkOffsets {
		var b [8]byte
		format.PutUint64(b[:], off)
		if _, err := w.Write(b[:]); err != nil {
			return errs.Wrap(errs.Io, err)
		}
	}
	return nil
}

func ReadCompressionInfo(buf []byte) (*CompressionInfo, error) {
	const hdrLen = 1 + 4 + 8
	if len(buf) < hdrLen+4 {
		return nil, errs.New(errs.Truncated)
	}
	c := &CompressionInfo{
		Type:               compression.Type(buf[0]),
		ChunkLengthBytes:   int(format.GetUint32(buf[1:5])),
		UncompressedLength: int64(format.GetUint64(buf[5:hdrLen])),
	}
	n := format.GetUint32(buf[hdrLen : hdrLen+4])
	pos := hdrLen + 4
	offsets := make([]uint64, n)
	for i := uint32(0); i < n; i++ {
		if pos+8 > len(buf) {
			return nil, errs.New(errs.Truncated)
		}
		offsets[i] = format.GetUint64(buf[pos : pos+8])
		pos += 8
	}
	c.ChunkOffsets = offsets
	return c, nil
}

// ChunkIndexForUncompressedOffset returns which chunk holds the given
// uncompressed byte offset, used by the reader to translate a logical
// position into a (chunk, compressed-offset) pair.
func (c *CompressionInfo) ChunkIndexForUncompressedOffset(uncompressedOffset int64) int {
	return int(uncompressedOffset / int64(c.ChunkLengthBytes))
}
