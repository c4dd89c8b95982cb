// Package row is the wide-column data model spec.md §2/§4 describes:
// decorated partition keys, clustering prefixes, rows with liveness and
// tombstones, cells, and range tombstones. It has no teacher analogue —
// go-sstable's InternalKey is a flat (userKey, sequence, kind) tuple — so
// this package is built from spec.md directly, using the teacher's plain
// value-struct style (see go-sstable/common/internal_key.go).
package row

import "bytes"

// BoundKind classifies a clustering-prefix bound the way spec.md §2/§4.1
// enumerates it: whether the bound is a full clustering key, a static-row
// marker, or one of the six range-tombstone/slice bound flavors.
type BoundKind byte

const (
	BoundClustering BoundKind = iota
	BoundStaticClustering
	BoundInclStart
	BoundExclStart
	BoundInclEnd
	BoundExclEnd
	BoundExclEndInclStart // boundary marker: closes one range, opens the next
	BoundInclEndExclStart
)

// IsStart reports whether kind opens a range (used when merging adjacent
// range tombstones into boundary markers, spec.md §4.4).
func (k BoundKind) IsStart() bool {
	switch k {
	case BoundInclStart, BoundExclStart, BoundExclEndInclStart, BoundInclEndExclStart:
		return true
	default:
		return false
	}
}

// IsEnd reports whether kind closes a range.
func (k BoundKind) IsEnd() bool {
	switch k {
	case BoundInclEnd, BoundExclEnd, BoundExclEndInclStart, BoundInclEndExclStart:
		return true
	default:
		return false
	}
}

// InclusiveStart and InclusiveEnd report whether the bound includes rows
// exactly equal to its clustering values, for the side named (start or end).
func (k BoundKind) InclusiveStart() bool {
	return k == BoundInclStart || k == BoundExclEndInclStart
}

func (k BoundKind) InclusiveEnd() bool {
	return k == BoundInclEnd || k == BoundInclEndExclStart
}

// ClusteringPrefix is a (possibly partial) tuple of clustering-column
// values, order-preserving under byte-wise comparison of Values' encoded
// concatenation (spec.md §4.1's clustering-prefix serialization contract).
type ClusteringPrefix struct {
	Kind BoundKind
	// Values holds one encoded byte string per clustering column present.
	// A full clustering key has len(Values) == number of clustering
	// columns; a non-full prefix (range tombstone bound, static row) may
	// have fewer.
	Values [][]byte
}

// Full reports whether this is a complete clustering key (as opposed to a
// range-tombstone bound or a static-row marker with zero components).
func (c ClusteringPrefix) Full(numClusteringColumns int) bool {
	return c.Kind == BoundClustering && len(c.Values) == numClusteringColumns
}

// Static reports whether this prefix addresses the static row.
func (c ClusteringPrefix) Static() bool {
	return c.Kind == BoundStaticClustering
}

// Compare orders two prefixes the way the "mc" format requires: compare
// component-by-component, and when one is a strict prefix of the other,
// the bound kind (start vs. end) breaks the tie so that e.g. an exclusive
// start of (1) sorts after the clustering row (1) but an inclusive start
// sorts before it.
func (c ClusteringPrefix) Compare(other ClusteringPrefix) int {
	n := min(len(c.Values), len(other.Values))
	for i := 0; i < n; i++ {
		if d := bytes.Compare(c.Values[i], other.Values[i]); d != 0 {
			return d
		}
	}
	if len(c.Values) < len(other.Values) {
		return boundWeight(c.Kind)
	}
	if len(c.Values) > len(other.Values) {
		return -boundWeight(other.Kind)
	}
	return boundWeight(c.Kind) - boundWeight(other.Kind)
}

// boundWeight places a single-sided bound relative to the clustering rows
// that share its prefix: an inclusive start (or end) sorts before (after)
// rows strictly extending it; an exclusive start (or end) sorts after
// (before) them. Boundary markers and plain clustering/static kinds carry
// no weight — they only ever compare at matching lengths.
func boundWeight(k BoundKind) int {
	switch k {
	case BoundInclStart:
		return -1
	case BoundExclStart:
		return 1
	case BoundInclEnd:
		return 1
	case BoundExclEnd:
		return -1
	default:
		return 0
	}
}
