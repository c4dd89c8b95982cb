// Package compression wraps the block compressors used by the Data, Index
// and Filter components (spec.md §4.2 CompressionInfo), adapted from the
// teacher's go-sstable/compression package.
package compression

// Type identifies the compression algorithm recorded in a CompressionInfo
// metadata component.
type Type int

const (
	None Type = iota
	Snappy
	Zstd
)

func (t Type) String() string {
	switch t {
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

// Codec compresses and decompresses a single block's payload.
type Codec interface {
	Type() Type
	// Compress appends the compressed form of src to dst[:0] and returns it.
	Compress(dst, src []byte) []byte
	// Decompress decompresses compressed into buf, which must be exactly
	// DecompressedLen(compressed) bytes.
	Decompress(buf, compressed []byte) error
	// DecompressedLen reports the size the caller must allocate for buf.
	DecompressedLen(compressed []byte) (int, error)
}

// New returns the codec for t. None must be handled by callers directly
// (a block written with no compression is passed through verbatim).
func New(t Type) Codec {
	switch t {
	case Snappy:
		return &snappyCodec{}
	case Zstd:
		return &zstdCodec{}
	default:
		panic("compression: unsupported type")
	}
}
