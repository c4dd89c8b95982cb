package metadata

import (
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"strings"

	"github.com/nogodb/mcsstable/internal/errs"
)

// WriteDigest writes the Digest.crc32 component: the ASCII decimal
// representation of checksum, matching spec.md §4.2's "full-file checksum"
// contract for the "mc" format (legacy formats use Adler32 instead; this
// engine only emits "mc").
func WriteDigest(w io.Writer, checksum uint32) error {
	_, err := io.WriteString(w, strconv.FormatUint(uint64(checksum), 10))
	if err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

// ReadDigest parses a Digest.crc32 component's contents.
func ReadDigest(b []byte) (uint32, error) {
	s := strings.TrimSpace(string(b))
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errs.Wrap(errs.Malformed, fmt.Errorf("digest: %w", err))
	}
	return uint32(v), nil
}

// ChecksumWriter wraps an io.Writer, accumulating a running CRC32 (IEEE)
// over everything written through it — used to compute the Data component's
// full-file digest while it is being written, without a second read pass.
type ChecksumWriter struct {
	w   io.Writer
	crc uint32
}

func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{w: w}
}

func (c *ChecksumWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.crc = crc32.Update(c.crc, crc32.IEEETable, p[:n])
	if err != nil {
		return n, errs.Wrap(errs.Io, err)
	}
	return n, nil
}

func (c *ChecksumWriter) Sum32() uint32 { return c.crc }

// CRCComponent is the CRC.db component: per-chunk CRC32s, written when
// CompressionInfo is absent (spec.md §4.2's "CRC file stores per-chunk
// CRCs when CompressionInfo is absent").
type CRCComponent struct {
	ChunkSize  uint32
	ChunkCRCs  []uint32
}

func (c *CRCComponent) WriteTo(w io.Writer) error {
	var hdr [4]byte
	b4 := func(v uint32) []byte { hdr[0], hdr[1], hdr[2], hdr[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v); return hdr[:] }
	if _, err := w.Write(b4(c.ChunkSize)); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	for _, crc := range c.ChunkCRCs {
		if _, err := w.Write(b4(crc)); err != nil {
			return errs.Wrap(errs.Io, err)
		}
	}
	return nil
}

func ReadCRCComponent(buf []byte) (*CRCComponent, error) {
	if len(buf) < 4 {
		return nil, errs.New(errs.Truncated)
	}
	be32 := func(b []byte) uint32 { return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]) }
	c := &CRCComponent{ChunkSize: be32(buf[:4])}
	rest := buf[4:]
	if len(rest)%4 != 0 {
		return nil, errs.New(errs.Truncated)
	}
	c.ChunkCRCs = make([]uint32, len(rest)/4)
	for i := range c.ChunkCRCs {
		c.ChunkCRCs[i] = be32(rest[i*4 : i*4+4])
	}
	return c, nil
}
