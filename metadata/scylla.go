package metadata

import (
	"io"

	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/format"
)

// Feature is a single Scylla-format extension flag recorded in
// Scylla.Features (spec.md §4.2's "Scylla" component pair).
type Feature uint32

const (
	FeatureNonCompoundPIEntries Feature = 1 << iota
	FeatureShadowableTombstones
	FeatureCorrectStaticCompactInRowTombstone
	FeatureCorrectEmptyCounters
	FeatureLargePartitions
)

// Sharding records how the partition space was divided across Scylla
// shards at write time: the shard count and the murmur3-token-ring hash
// scheme version. A single-shard (non-Scylla, plain Cassandra-compatible)
// sstable has ShardCount == 1.
type Sharding struct {
	ShardCount  uint32
	HashVersion uint32
}

func (s Sharding) WriteTo(w io.Writer) error {
	var buf [8]byte
	format.PutUint32(buf[:4], s.ShardCount)
	format.PutUint32(buf[4:], s.HashVersion)
	_, err := w.Write(buf[:])
	if err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func ReadSharding(buf []byte) (Sharding, error) {
	if len(buf) < 8 {
		return Sharding{}, errs.New(errs.Truncated)
	}
	return Sharding{
		ShardCount:  format.GetUint32(buf[:4]),
		HashVersion: format.GetUint32(buf[4:8]),
	}, nil
}

// Features is the set of format extensions this sstable relies on; a
// reader that doesn't recognize a set bit must refuse to open the file
// (spec.md §7 Unsupported) rather than silently misinterpret it.
type Features struct {
	Flags Feature
}

func (f Features) Has(feat Feature) bool { return f.Flags&feat != 0 }

func (f Features) WriteTo(w io.Writer) error {
	var buf [4]byte
	format.PutUint32(buf[:], uint32(f.Flags))
	_, err := w.Write(buf[:])
	if err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func ReadFeatures(buf []byte) (Features, error) {
	if len(buf) < 4 {
		return Features{}, errs.New(errs.Truncated)
	}
	return Features{Flags: Feature(format.GetUint32(buf[:4]))}, nil
}

// KnownFeatures is the full set of extension flags this engine understands.
const KnownFeatures = FeatureNonCompoundPIEntries | FeatureShadowableTombstones |
	FeatureCorrectStaticCompactInRowTombstone | FeatureCorrectEmptyCounters | FeatureLargePartitions

// Validate returns errs.Unsupported if f sets any flag outside KnownFeatures.
func (f Features) Validate() error {
	if f.Flags&^Feature(KnownFeatures) != 0 {
		return errs.Newf(errs.Unsupported, "Scylla.Features: unrecognized flags %#x", f.Flags&^Feature(KnownFeatures))
	}
	return nil
}

// ReadScyllaComponent parses the Scylla.db component: a Sharding record
// immediately followed by a Features record, the same order Writer.Write
// emits them in.
func ReadScyllaComponent(buf []byte) (Sharding, Features, error) {
	sharding, err := ReadSharding(buf)
	if err != nil {
		return Sharding{}, Features{}, err
	}
	features, err := ReadFeatures(buf[8:])
	if err != nil {
		return Sharding{}, Features{}, err
	}
	return sharding, features, nil
}
