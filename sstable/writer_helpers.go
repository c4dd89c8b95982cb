package sstable

import (
	"bytes"
	"sort"

	"github.com/nogodb/mcsstable/metadata"
	"github.com/nogodb/mcsstable/row"
)

// writeEvent is one item of a partition's merged row/marker stream,
// ordered by pos before encoding. Exactly one of row/boundary/single is
// set.
type writeEvent struct {
	pos row.ClusteringPrefix

	row      *row.Row
	boundary *boundaryMarker
	single   *singleBoundEvent
}

// singleBoundEvent is one end of a range tombstone that didn't merge into
// a boundary marker with its neighbour: isOpen distinguishes the opening
// bound (deletion applies going forward) from the closing one.
type singleBoundEvent struct {
	boundMarker
	isOpen bool
}

// buildEventSequence merges a partition's rows and range tombstones into
// one clustering-ordered stream of encodable events, folding adjacent
// tombstones into boundary markers via mergeRangeTombstones (spec.md
// §4.4's adjacency rule).
func buildEventSequence(p row.Partition) ([]writeEvent, error) {
	events := make([]writeEvent, 0, len(p.Rows)+2*len(p.Tombstones))
	for i := range p.Rows {
		r := p.Rows[i]
		events = append(events, writeEvent{pos: r.Clustering, row: &r})
	}
	events = append(events, buildTombstoneEvents(p.Tombstones)...)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].pos.Compare(events[j].pos) < 0
	})
	return events, nil
}

func openBoundEvent(bound row.ClusteringPrefix, deletion row.DeletionTime) writeEvent {
	return writeEvent{pos: bound, single: &singleBoundEvent{
		boundMarker: boundMarker{Bound: bound, Deletion: deletion},
		isOpen:      true,
	}}
}

func closeBoundEvent(bound row.ClusteringPrefix, deletion row.DeletionTime) writeEvent {
	return writeEvent{pos: bound, single: &singleBoundEvent{
		boundMarker: boundMarker{Bound: bound, Deletion: deletion},
		isOpen:      false,
	}}
}

// buildTombstoneEvents walks range tombstones in clustering order,
// emitting a single open marker, a run of boundary markers for adjacent
// tombstones, and a final close marker — never a separate close+open pair
// when two tombstones abut at the same clustering prefix.
func buildTombstoneEvents(tombstones []row.RangeTombstone) []writeEvent {
	if len(tombstones) == 0 {
		return nil
	}
	var out []writeEvent
	pending := tombstones[0]
	out = append(out, openBoundEvent(pending.Start, pending.Deletion))
	for i := 1; i < len(tombstones); i++ {
		next := tombstones[i]
		merge := mergeRangeTombstones(pending, next)
		if merge.boundary != nil {
			out = append(out, writeEvent{pos: merge.boundary.Bound, boundary: merge.boundary})
		} else {
			closeAt := pending.End
			if merge.closedEnd != nil {
				closeAt = *merge.closedEnd
			}
			out = append(out, closeBoundEvent(closeAt, pending.Deletion))
			out = append(out, openBoundEvent(next.Start, next.Deletion))
		}
		pending = next
	}
	out = append(out, closeBoundEvent(pending.End, pending.Deletion))
	return out
}

// computeStatsAndHeader scans every partition once to find the
// serialization header's delta-encoding minima and the Statistics
// component's summary counters — spec.md §3's "min_* fields are the
// minima actually present in the file", which must be known before a
// single cell can be delta-encoded.
func computeStatsAndHeader(partitions []row.Partition) (metadata.SerializationHeader, metadata.Stats) {
	header := metadata.SerializationHeader{
		MinTimestamp:         0,
		MinLocalDeletionTime: 0,
		MinTTL:               0,
	}
	var stats metadata.Stats

	haveTimestamp, haveLocalDeletion, haveTTL := false, false, false
	observeTimestamp := func(ts int64) {
		if !haveTimestamp || ts < header.MinTimestamp {
			header.MinTimestamp = ts
			haveTimestamp = true
		}
	}
	observeLocalDeletion := func(ld int32) {
		if !haveLocalDeletion || ld < header.MinLocalDeletionTime {
			header.MinLocalDeletionTime = ld
			haveLocalDeletion = true
		}
	}
	observeTTL := func(ttl int32) {
		if ttl == 0 {
			return
		}
		if !haveTTL || ttl < header.MinTTL {
			header.MinTTL = ttl
			haveTTL = true
		}
	}

	haveTsRange, haveLdRange := false, false
	noteTsRange := func(ts int64) {
		if !haveTsRange {
			stats.MinTimestamp, stats.MaxTimestamp = ts, ts
			haveTsRange = true
			return
		}
		if ts < stats.MinTimestamp {
			stats.MinTimestamp = ts
		}
		if ts > stats.MaxTimestamp {
			stats.MaxTimestamp = ts
		}
	}
	noteLdRange := func(ld int32) {
		if !haveLdRange {
			stats.MinLocalDeletionTime, stats.MaxLocalDeletionTime = ld, ld
			haveLdRange = true
			return
		}
		if ld < stats.MinLocalDeletionTime {
			stats.MinLocalDeletionTime = ld
		}
		if ld > stats.MaxLocalDeletionTime {
			stats.MaxLocalDeletionTime = ld
		}
	}

	visitRow := func(r row.Row) {
		stats.RowCount++
		if r.Marker.Present {
			observeTimestamp(r.Marker.Timestamp)
			noteTsRange(r.Marker.Timestamp)
			if r.Marker.HasTTL() {
				observeTTL(r.Marker.TTLSeconds)
				observeLocalDeletion(r.Marker.LocalDeletionTime)
				noteLdRange(r.Marker.LocalDeletionTime)
			}
		}
		if r.HasDeletion() {
			observeTimestamp(r.Deletion.MarkedForDeleteAt)
			observeLocalDeletion(r.Deletion.LocalDeletionTime)
			noteTsRange(r.Deletion.MarkedForDeleteAt)
			noteLdRange(r.Deletion.LocalDeletionTime)
		}
		for _, cell := range r.Cells {
			stats.CellCount++
			observeTimestamp(cell.Timestamp)
			noteTsRange(cell.Timestamp)
			if cell.HasTTL() {
				observeTTL(cell.TTLSeconds)
				observeLocalDeletion(cell.LocalDeletionTime)
				noteLdRange(cell.LocalDeletionTime)
			}
			if cell.IsTombstone {
				observeLocalDeletion(cell.LocalDeletionTime)
				noteLdRange(cell.LocalDeletionTime)
			}
		}
	}

	// dropHistogram accumulates the exact per-local-deletion-time count of
	// tombstoned cells, the input original_source/sstables.cc's
	// estimate_droppable_tombstone_ratio instead samples into a streaming
	// histogram (see metadata.Stats.EstimateDroppableTombstoneRatio).
	dropHistogram := make(map[int32]int64)
	noteClusteringBounds := func(c row.ClusteringPrefix) {
		for i, v := range c.Values {
			for len(stats.MinColumnNames) <= i {
				stats.MinColumnNames = append(stats.MinColumnNames, nil)
				stats.MaxColumnNames = append(stats.MaxColumnNames, nil)
			}
			if stats.MinColumnNames[i] == nil || bytes.Compare(v, stats.MinColumnNames[i]) < 0 {
				stats.MinColumnNames[i] = append([]byte(nil), v...)
			}
			if stats.MaxColumnNames[i] == nil || bytes.Compare(v, stats.MaxColumnNames[i]) > 0 {
				stats.MaxColumnNames[i] = append([]byte(nil), v...)
			}
		}
	}

	var maxPartitionBytes int64
	for _, p := range partitions {
		stats.PartitionCount++
		partitionBytes := int64(len(p.Key.PartitionKey))
		if p.Static != nil {
			visitRow(*p.Static)
		}
		for _, r := range p.Rows {
			visitRow(r)
			noteClusteringBounds(r.Clustering)
			for _, c := range r.Cells {
				partitionBytes += int64(len(c.Value))
				if c.IsTombstone {
					dropHistogram[c.LocalDeletionTime]++
				}
			}
		}
		for _, rt := range p.Tombstones {
			observeTimestamp(rt.Deletion.MarkedForDeleteAt)
			observeLocalDeletion(rt.Deletion.LocalDeletionTime)
			noteTsRange(rt.Deletion.MarkedForDeleteAt)
			noteLdRange(rt.Deletion.LocalDeletionTime)
		}
		if !p.Deletion.Live() {
			observeTimestamp(p.Deletion.MarkedForDeleteAt)
			observeLocalDeletion(p.Deletion.LocalDeletionTime)
			noteTsRange(p.Deletion.MarkedForDeleteAt)
			noteLdRange(p.Deletion.LocalDeletionTime)
		}
		stats.TotalUncompressedSize += partitionBytes
		if partitionBytes > maxPartitionBytes {
			maxPartitionBytes = partitionBytes
		}
	}
	stats.MaxPartitionSize = maxPartitionBytes
	if !haveLocalDeletion {
		header.MinLocalDeletionTime = 0
	}

	if stats.PartitionCount > 0 {
		stats.EstimatedCellsCountMean = float64(stats.CellCount) / float64(stats.PartitionCount)
	}
	stats.EstimatedCellsCountCount = stats.PartitionCount
	if len(dropHistogram) > 0 {
		times := make([]int32, 0, len(dropHistogram))
		for t := range dropHistogram {
			times = append(times, t)
		}
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		buckets := make([]metadata.TombstoneDropBucket, 0, len(times))
		for _, t := range times {
			buckets = append(buckets, metadata.TombstoneDropBucket{Time: int64(t), Count: dropHistogram[t]})
		}
		stats.TombstoneDropHistogram = buckets
	}

	return header, stats
}
