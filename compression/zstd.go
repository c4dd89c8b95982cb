package compression

import (
	"encoding/binary"

	"github.com/DataDog/zstd"

	"github.com/nogodb/mcsstable/internal/errs"
)

const defaultZstdLevel = 3

type zstdCodec struct{}

func (z *zstdCodec) Type() Type { return Zstd }

// Compress prefixes the payload with a uvarint encoding of len(src), so
// DecompressedLen can size the caller's destination buffer without a
// separate side channel.
func (z *zstdCodec) Compress(dst, src []byte) []byte {
	if len(dst) < binary.MaxVarintLen64 {
		dst = append(dst, make([]byte, binary.MaxVarintLen64-len(dst))...)
	}

	bound := zstd.CompressBound(len(src))
	if cap(dst) < binary.MaxVarintLen64+bound {
		dst = make([]byte, binary.MaxVarintLen64, binary.MaxVarintLen64+bound)
	}

	zCtx := zstd.NewCtx()
	prefixLen := binary.PutUvarint(dst, uint64(len(src)))
	result, err := zCtx.CompressLevel(dst[prefixLen:prefixLen+bound], src, defaultZstdLevel)
	if err != nil {
		panic("compression: zstd compress failed: " + err.Error())
	}
	if &result[0] != &dst[prefixLen] {
		panic("compression: zstd allocated a new buffer despite CompressBound")
	}
	return dst[:prefixLen+len(result)]
}

func (z *zstdCodec) Decompress(buf, compressed []byte) error {
	_, prefixLen := binary.Uvarint(compressed)
	if prefixLen <= 0 {
		return errs.New(errs.Malformed)
	}
	compressed = compressed[prefixLen:]
	if len(compressed) == 0 {
		return errs.Newf(errs.Malformed, "zstd: empty payload")
	}
	if len(buf) == 0 {
		return errs.Newf(errs.Malformed, "zstd: empty destination")
	}
	zCtx := zstd.NewCtx()
	if _, err := zCtx.DecompressInto(buf, compressed); err != nil {
		return errs.Wrap(errs.Checksum, err)
	}
	return nil
}

func (z *zstdCodec) DecompressedLen(b []byte) (int, error) {
	n, prefixLen := binary.Uvarint(b)
	if prefixLen <= 0 {
		return 0, errs.Newf(errs.Malformed, "zstd: invalid length prefix")
	}
	return int(n), nil
}

var _ Codec = (*zstdCodec)(nil)
