package sstable

import "github.com/nogodb/mcsstable/row"

// rtMerge decides how a newly-opened range tombstone relates to the one
// still pending a close, implementing spec.md §4.3's adjacency rule: an
// exact-prefix-match at the boundary collapses into a single boundary
// marker; anything else closes the old one at its own end first.
type rtMerge struct {
	boundary *boundaryMarker
	closeOld bool
	// closedEnd overrides pending.End as the position the old tombstone is
	// closed at; nil means close it at its own recorded end. Set when next
	// supersedes pending before pending's natural end (spec.md line 112).
	closedEnd *row.ClusteringPrefix
}

func mergeRangeTombstones(pending row.RangeTombstone, next row.RangeTombstone) rtMerge {
	endAt := row.ClusteringPrefix{Kind: row.BoundClustering, Values: pending.End.Values}
	if endAt.Compare(row.ClusteringPrefix{Kind: row.BoundClustering, Values: next.Start.Values}) == 0 {
		if kind, ok := boundaryKindFor(pending.End.Kind, next.Start.Kind); ok {
			bound := row.ClusteringPrefix{Kind: kind, Values: next.Start.Values}
			return rtMerge{boundary: &boundaryMarker{Bound: bound, Closing: pending.Deletion, Opening: next.Deletion}}
		}
	}
	if pending.End.Compare(next.Start) > 0 {
		// next opens before pending's natural end: close pending at
		// next's start position instead of letting it run past it,
		// per spec.md line 112.
		closedEnd := row.ClusteringPrefix{Kind: row.BoundExclEnd, Values: next.Start.Values}
		return rtMerge{closeOld: true, closedEnd: &closedEnd}
	}
	// disjoint: close the old one at its own recorded end.
	return rtMerge{closeOld: true}
}

func boundaryKindFor(endKind, startKind row.BoundKind) (row.BoundKind, bool) {
	switch {
	case endKind == row.BoundInclEnd && startKind == row.BoundExclStart:
		return row.BoundInclEndExclStart, true
	case endKind == row.BoundExclEnd && startKind == row.BoundInclStart:
		return row.BoundExclEndInclStart, true
	default:
		return 0, false
	}
}
