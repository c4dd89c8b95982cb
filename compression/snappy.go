package compression

import (
	"github.com/golang/snappy"

	"github.com/nogodb/mcsstable/internal/errs"
)

type snappyCodec struct{}

func (s *snappyCodec) Type() Type { return Snappy }

func (s *snappyCodec) Compress(dst, src []byte) []byte {
	dst = dst[:cap(dst):cap(dst)]
	return snappy.Encode(dst, src)
}

func (s *snappyCodec) Decompress(buf, compressed []byte) error {
	res, err := snappy.Decode(buf, compressed)
	if err != nil {
		return errs.Wrap(errs.Checksum, err)
	}
	if len(res) != len(buf) || (len(res) > 0 && &res[0] != &buf[0]) {
		return errs.Newf(errs.Checksum, "snappy: decompressed into unexpected buffer")
	}
	return nil
}

func (s *snappyCodec) DecompressedLen(b []byte) (int, error) {
	return snappy.DecodedLen(b)
}

var _ Codec = (*snappyCodec)(nil)
