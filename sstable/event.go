package sstable

import "github.com/nogodb/mcsstable/row"

// EventKind names one of the reader state machine's stream events (spec.md
// §4.5's "partition_start / static_row / row / range_tombstone /
// partition_end / eos" grammar).
type EventKind byte

const (
	EventPartitionStart EventKind = iota
	EventStaticRow
	EventRow
	EventRangeTombstone
	EventPartitionEnd
	EventEOS
)

func (k EventKind) String() string {
	switch k {
	case EventPartitionStart:
		return "partition_start"
	case EventStaticRow:
		return "static_row"
	case EventRow:
		return "row"
	case EventRangeTombstone:
		return "range_tombstone"
	case EventPartitionEnd:
		return "partition_end"
	case EventEOS:
		return "eos"
	default:
		return "unknown"
	}
}

// Event is one item of the scan stream a Scanner produces. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind EventKind

	PartitionKey      row.DecoratedKey
	PartitionDeletion row.DeletionTime

	Row row.Row // EventStaticRow, EventRow

	// RangeTombstone fields (EventRangeTombstone). Bounds are already
	// intersected with the active slice range (spec.md §4.5).
	RTStart    row.ClusteringPrefix
	RTEnd      row.ClusteringPrefix
	RTDeletion row.DeletionTime
}
