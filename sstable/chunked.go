// Chunked compression for the Data component (spec.md §4.2 CompressionInfo:
// "the associated data file is segmented into fixed-size uncompressed
// chunks each independently compressed; each compressed chunk is followed
// by a 4-byte CRC"). Grounded on block.Physical (trailer shape) and the
// teacher's compression codecs, generalized from a single block to a
// whole-file chunk sequence so the reader can seek to an arbitrary
// uncompressed byte offset without decompressing the whole file.
package sstable

import (
	"io"

	"github.com/nogodb/mcsstable/block"
	"github.com/nogodb/mcsstable/compression"
	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/format"
	"github.com/nogodb/mcsstable/internal/pagecache"
	"github.com/nogodb/mcsstable/metadata"
)

// chunkWriter buffers writes into fixed-size uncompressed chunks, flushing
// each to the underlying writer (compressed and followed by a 4-byte CRC32
// of the compressed bytes, if a codec is set; bare otherwise), and records
// every chunk's file offset for CompressionInfo.
type chunkWriter struct {
	w               io.Writer
	codec           compression.Codec // nil means uncompressed
	compressionType compression.Type
	chunkSize       int
	buf             []byte
	fileOffset      uint64
	offsets         []uint64
	crcs            []uint32
	uncompressedLen int64
}

func newChunkWriter(w io.Writer, codec compression.Codec, chunkSize int) *chunkWriter {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	typ := compression.None
	if codec != nil {
		typ = codec.Type()
	}
	return &chunkWriter{w: w, codec: codec, compressionType: typ, chunkSize: chunkSize, buf: make([]byte, 0, chunkSize)}
}

func (c *chunkWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		n := c.chunkSize - len(c.buf)
		if n > len(p) {
			n = len(p)
		}
		c.buf = append(c.buf, p[:n]...)
		p = p[n:]
		c.uncompressedLen += int64(n)
		if len(c.buf) == c.chunkSize {
			if err := c.flushChunk(); err != nil {
				return 0, err
			}
		}
	}
	return total, nil
}

func (c *chunkWriter) flushChunk() error {
	if len(c.buf) == 0 {
		return nil
	}
	c.offsets = append(c.offsets, c.fileOffset)
	payload := c.buf
	if c.codec != nil {
		payload = c.codec.Compress(nil, c.buf)
	}
	if _, err := c.w.Write(payload); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	// block.Physical computes the checksum the same way every other
	// component's block envelope does; only the 4-byte CRC is persisted
	// here, since compression type is recorded once for the whole file in
	// CompressionInfo rather than per chunk. Uncompressed chunks are
	// written bare (no CompressionInfo describes them); their CRCs are only
	// kept for the CRC component.
	var phys block.Physical
	phys.Data = payload
	phys.SetTrailer(c.compressionType)
	crc := phys.Checksum()
	c.crcs = append(c.crcs, crc)
	c.fileOffset += uint64(len(payload))
	if c.codec != nil {
		var crcBuf [4]byte
		format.PutUint32(crcBuf[:], crc)
		if _, err := c.w.Write(crcBuf[:]); err != nil {
			return errs.Wrap(errs.Io, err)
		}
		c.fileOffset += 4
	}
	c.buf = c.buf[:0]
	return nil
}

// Finish flushes any partial trailing chunk and returns the CompressionInfo
// describing the whole file.
func (c *chunkWriter) Finish(typ compression.Type, options map[string]string) (*metadata.CompressionInfo, error) {
	if err := c.flushChunk(); err != nil {
		return nil, err
	}
	c.offsets = append(c.offsets, c.fileOffset) // end-of-data sentinel
	return &metadata.CompressionInfo{
		Type:               typ,
		ChunkLengthBytes:   c.chunkSize,
		UncompressedLength: c.uncompressedLen,
		ChunkOffsets:       c.offsets,
	}, nil
}

// ChunkCRCs returns the per-chunk CRC32 computed so far, for the CRC.db
// component written when CompressionInfo is absent (spec.md §4.2).
func (c *chunkWriter) ChunkCRCs() []uint32 { return c.crcs }

// CurrentUncompressedOffset reports the logical (uncompressed) offset the
// next Write call will start at — used by the promoted-index builder to
// track block boundaries in uncompressed data-file space.
func (c *chunkWriter) CurrentUncompressedOffset() int64 {
	return c.uncompressedLen
}

// chunkReader provides random access into a chunk-compressed Data file by
// uncompressed byte offset.
type chunkReader struct {
	r     io.ReaderAt
	info  *metadata.CompressionInfo
	codec compression.Codec // nil means uncompressed

	cache  *pagecache.Cache // optional shared cache; nil disables it
	fileID uint64

	cachedChunk int
	cachedData  []byte
}

func newChunkReader(r io.ReaderAt, info *metadata.CompressionInfo, codec compression.Codec) *chunkReader {
	return &chunkReader{r: r, info: info, codec: codec, cachedChunk: -1}
}

// newCachedChunkReader is newChunkReader plus a shared page cache keyed by
// fileID, used when the Reader was opened with a pagecache.Cache (spec.md
// §5): a chunk decoded once is reusable by every later Scanner over the
// same generation, and by other generations sharing the same cache.
func newCachedChunkReader(r io.ReaderAt, info *metadata.CompressionInfo, codec compression.Codec, cache *pagecache.Cache, fileID uint64) *chunkReader {
	cr := newChunkReader(r, info, codec)
	cr.cache = cache
	cr.fileID = fileID
	return cr
}

// ReadAt reads len(p) bytes starting at uncompressed offset off, spanning
// chunk boundaries transparently.
func (c *chunkReader) ReadAt(p []byte, off int64) (int, error) {
	n := 0
	for n < len(p) {
		chunkIdx := c.info.ChunkIndexForUncompressedOffset(off + int64(n))
		data, err := c.chunk(chunkIdx)
		if err != nil {
			return n, err
		}
		withinChunk := int((off + int64(n)) % int64(c.info.ChunkLengthBytes))
		if withinChunk >= len(data) {
			return n, errs.Wrap(errs.Truncated, io.EOF)
		}
		copied := copy(p[n:], data[withinChunk:])
		n += copied
	}
	return n, nil
}

func (c *chunkReader) chunk(idx int) ([]byte, error) {
	if idx == c.cachedChunk {
		return c.cachedData, nil
	}
	var pageKey pagecache.Key
	if c.cache != nil {
		pageKey = pagecache.Key{FileID: c.fileID, PageOffset: int64(idx) * int64(c.info.ChunkLengthBytes)}
		if data, ok := c.cache.Get(pageKey); ok {
			c.cachedChunk, c.cachedData = idx, data
			return data, nil
		}
	}
	if idx < 0 || idx+1 >= len(c.info.ChunkOffsets) {
		return nil, errs.Newf(errs.Malformed, "chunk index %d out of range", idx)
	}
	start := c.info.ChunkOffsets[idx]
	end := c.info.ChunkOffsets[idx+1]
	if end < start+4 {
		return nil, errs.New(errs.Truncated)
	}
	compressedLen := end - start - 4
	buf := make([]byte, end-start)
	if _, err := c.r.ReadAt(buf, int64(start)); err != nil {
		return nil, errs.Wrap(errs.Truncated, err)
	}
	payload := buf[:compressedLen]
	wantCRC := format.GetUint32(buf[compressedLen:])
	typ := compression.None
	if c.codec != nil {
		typ = c.codec.Type()
	}
	phys := block.NewPhysical(payload, typ, wantCRC)
	if err := phys.Validate(); err != nil {
		return nil, errs.Newf(errs.Checksum, "data chunk %d: %v", idx, err)
	}
	data, err := phys.Decompressed(nil)
	if err != nil {
		return nil, err
	}
	c.cachedChunk = idx
	c.cachedData = data
	if c.cache != nil {
		c.cache.Set(pageKey, data)
	}
	return data, nil
}
