package sstable

import "github.com/nogodb/mcsstable/row"

// ClusteringRange is one contiguous clustering-key range, expressed as a
// pair of bounds carrying their own inclusivity via BoundKind (spec.md §4.5
// "A slice is a union of clustering ranges").
type ClusteringRange struct {
	Start row.ClusteringPrefix // Kind should be BoundInclStart or BoundExclStart
	End   row.ClusteringPrefix // Kind should be BoundInclEnd or BoundExclEnd
}

// Contains reports whether c falls within r.
func (r ClusteringRange) Contains(c row.ClusteringPrefix) bool {
	if r.Start.Compare(c) > 0 {
		return false
	}
	if r.End.Compare(c) < 0 {
		return false
	}
	return true
}

// Slice is a union of clustering ranges, sorted ascending by Start and
// assumed non-overlapping (the caller's responsibility, mirroring
// Cassandra's own ClusteringIndexSliceFilter contract).
type Slice []ClusteringRange

// FullSlice matches every clustering key; a nil/empty Slice passed to
// NewScanner means the same thing, but this constant documents intent at
// call sites.
var FullSlice = Slice{{
	Start: row.ClusteringPrefix{Kind: row.BoundInclStart},
	End:   row.ClusteringPrefix{Kind: row.BoundInclEnd},
}}

// rangeFor returns the range c falls in, if any, and its index within s.
func (s Slice) rangeFor(c row.ClusteringPrefix) (ClusteringRange, int, bool) {
	for i, r := range s {
		if r.Contains(c) {
			return r, i, true
		}
	}
	return ClusteringRange{}, -1, false
}

// PastEnd reports whether c lies strictly after every range in s. s is
// sorted ascending by Start and non-overlapping, so the last range's End is
// the maximum bound the slice will ever match; once a decoded clustering
// position exceeds it, no later position in the same partition (rows are
// monotonic within a partition) can ever satisfy s again.
func (s Slice) PastEnd(c row.ClusteringPrefix) bool {
	if len(s) == 0 {
		return false
	}
	return s[len(s)-1].End.Compare(c) < 0
}

// intersect trims an open-ended or over-wide range-tombstone span
// [start,end] to its overlap with r, returning ok=false if they don't
// overlap at all. Per spec.md §4.5 "the emitted tombstone carries the
// intersected bounds (never the original)".
func intersect(start, end row.ClusteringPrefix, r ClusteringRange) (row.ClusteringPrefix, row.ClusteringPrefix, bool) {
	if r.End.Compare(start) < 0 || r.Start.Compare(end) > 0 {
		return row.ClusteringPrefix{}, row.ClusteringPrefix{}, false
	}
	newStart := start
	if r.Start.Compare(start) > 0 {
		newStart = r.Start
	}
	newEnd := end
	if r.End.Compare(end) < 0 {
		newEnd = r.End
	}
	return newStart, newEnd, true
}
