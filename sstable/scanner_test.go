package sstable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nogodb/mcsstable/row"
	"github.com/nogodb/mcsstable/schema"
	"github.com/nogodb/mcsstable/storage"
)

func zeroToken([]byte) uint64 { return 0 }

func ckValue(t *testing.T, n int32) []byte {
	t.Helper()
	v, err := schema.EncodeValue(schema.TypeInt32, n)
	require.NoError(t, err)
	return v
}

func ckFull(t *testing.T, n int32) row.ClusteringPrefix {
	return row.ClusteringPrefix{Kind: row.BoundClustering, Values: [][]byte{ckValue(t, n)}}
}

func ckBound(t *testing.T, kind row.BoundKind, n int32) row.ClusteringPrefix {
	return row.ClusteringPrefix{Kind: kind, Values: [][]byte{ckValue(t, n)}}
}

func intCell(column string, n int32, ts int64) row.Cell {
	v, _ := schema.EncodeValue(schema.TypeInt32, n)
	return row.Cell{Column: column, Timestamp: ts, Value: v}
}

// buildAndOpen writes partitions through Writer and reopens the result
// through Open, mirroring how a real caller round-trips an sstable rather
// than poking at the codec functions directly.
func buildAndOpen(t *testing.T, def *schema.Definition, partitions []row.Partition, opts ...WriterOption) *Reader {
	t.Helper()
	s := storage.NewMem()
	w := NewWriter(s, "1", def, zeroToken, opts...)
	_, err := w.Write(partitions)
	require.NoError(t, err)
	r, err := Open(s, "1", def, zeroToken)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func drain(t *testing.T, sc *Scanner) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := sc.Next()
		require.NoError(t, err)
		if ev.Kind == EventEOS {
			return out
		}
		out = append(out, ev)
	}
}

func decodeInt32(t *testing.T, v []byte) int32 {
	t.Helper()
	require.Len(t, v, 4)
	return int32(v[0])<<24 | int32(v[1])<<16 | int32(v[2])<<8 | int32(v[3])
}

func rowClusterings(events []Event) []int32 {
	var out []int32
	for _, ev := range events {
		if ev.Kind == EventRow {
			out = append(out, int32(ev.Row.Clustering.Values[0][0])<<24|
				int32(ev.Row.Clustering.Values[0][1])<<16|
				int32(ev.Row.Clustering.Values[0][2])<<8|
				int32(ev.Row.Clustering.Values[0][3]))
		}
	}
	return out
}

// TestScannerStaticRowAndSliceFiltering covers a schema with a static
// column and a slice made of disjoint clustering ranges: the static row
// must always surface regardless of the slice, and only rows whose
// clustering key falls in one of the ranges may be emitted.
func TestScannerStaticRowAndSliceFiltering(t *testing.T) {
	def := schema.NewDefinition("ks", "t",
		[]schema.Column{{Name: "pk", Type: schema.TypeUTF8, Kind: schema.PartitionKey}},
		[]schema.Column{{Name: "ck", Type: schema.TypeInt32, Kind: schema.ClusteringColumn}},
		[]schema.Column{{Name: "s", Type: schema.TypeInt32, Kind: schema.Static}},
		[]schema.Column{{Name: "v", Type: schema.TypeInt32, Kind: schema.Regular}},
	)

	staticRow := row.Row{
		Clustering: row.ClusteringPrefix{Kind: row.BoundStaticClustering},
		Deletion:   row.LiveDeletionTime,
		Cells:      []row.Cell{intCell("s", 42, 1)},
	}
	var rows []row.Row
	for i := int32(0); i < 10; i++ {
		rows = append(rows, row.Row{
			Clustering: ckFull(t, i),
			Deletion:   row.LiveDeletionTime,
			Marker:     row.Liveness{Present: true, Timestamp: 1},
			Cells:      []row.Cell{intCell("v", i, 1)},
		})
	}
	partition := row.Partition{
		Key:      row.DecoratedKey{Token: 0, PartitionKey: []byte("p1")},
		Deletion: row.LiveDeletionTime,
		Static:   &staticRow,
		Rows:     rows,
	}

	r := buildAndOpen(t, def, []row.Partition{partition})

	slice := Slice{
		{Start: ckBound(t, row.BoundInclStart, 1), End: ckBound(t, row.BoundInclEnd, 2)},
		{Start: ckBound(t, row.BoundInclStart, 7), End: ckBound(t, row.BoundInclEnd, 8)},
	}
	sc, err := r.NewScanner(ScannerOptions{Slice: slice})
	require.NoError(t, err)
	events := drain(t, sc)

	require.NotEmpty(t, events)
	assert.Equal(t, EventPartitionStart, events[0].Kind)
	require.Equal(t, EventStaticRow, events[1].Kind)
	assert.Equal(t, []byte(nil), events[1].Row.Cells[0].Path)
	assert.Equal(t, int32(42), int32(events[1].Row.Cells[0].Value[0])<<24|int32(events[1].Row.Cells[0].Value[1])<<16|int32(events[1].Row.Cells[0].Value[2])<<8|int32(events[1].Row.Cells[0].Value[3]))

	assert.Equal(t, []int32{1, 2, 7, 8}, rowClusterings(events))
	assert.Equal(t, EventPartitionEnd, events[len(events)-1].Kind)
}

// TestScannerFastForwardReducesDataReads builds a single wide partition
// spanning many promoted-index blocks, then fast-forwards into a narrow
// slice in the middle. The forwarded scan must issue far fewer Data
// component reads than a full sequential scan of the same partition, since
// it should skip straight to the block covering the target range and stop
// once it runs past the range's upper bound instead of decoding every
// remaining row to the end of the partition.
func TestScannerFastForwardReducesDataReads(t *testing.T) {
	def := schema.NewDefinition("ks", "t",
		[]schema.Column{{Name: "pk", Type: schema.TypeUTF8, Kind: schema.PartitionKey}},
		[]schema.Column{{Name: "ck", Type: schema.TypeInt32, Kind: schema.ClusteringColumn}},
		nil,
		[]schema.Column{{Name: "v", Type: schema.TypeInt32, Kind: schema.Regular}},
	)

	const numRows = 300
	var rows []row.Row
	for i := int32(0); i < numRows; i++ {
		rows = append(rows, row.Row{
			Clustering: ckFull(t, i),
			Deletion:   row.LiveDeletionTime,
			Marker:     row.Liveness{Present: true, Timestamp: 1},
			Cells:      []row.Cell{intCell("v", i, 1)},
		})
	}
	partition := row.Partition{
		Key:      row.DecoratedKey{Token: 0, PartitionKey: []byte("wide")},
		Deletion: row.LiveDeletionTime,
		Rows:     rows,
	}

	// A small block size guarantees many promoted-index blocks across 300
	// rows, so fast-forwarding into the middle actually has blocks to skip.
	r := buildAndOpen(t, def, []row.Partition{partition}, WithPromotedIndexBlockSize(96))

	full, err := r.NewScanner(ScannerOptions{})
	require.NoError(t, err)
	fullEvents := drain(t, full)
	require.Equal(t, numRows, len(rowClusterings(fullEvents)))
	fullReads := full.ReadCount()

	ff, err := r.NewScanner(ScannerOptions{})
	require.NoError(t, err)
	first, err := ff.Next()
	require.NoError(t, err)
	require.Equal(t, EventPartitionStart, first.Kind)

	require.NoError(t, ff.FastForwardTo(ClusteringRange{
		Start: ckBound(t, row.BoundInclStart, 150),
		End:   ckBound(t, row.BoundInclEnd, 160),
	}))
	ffEvents := drain(t, ff)
	ffReads := ff.ReadCount()

	got := rowClusterings(ffEvents)
	require.Len(t, got, 11)
	assert.Equal(t, int32(150), got[0])
	assert.Equal(t, int32(160), got[len(got)-1])

	assert.Less(t, ffReads, fullReads/2,
		"fast-forwarded scan should read far fewer times than a full scan (full=%d, ff=%d)", fullReads, ffReads)
}

// TestScannerInterleavedRangeTombstones covers rows and range tombstones
// alternating within one partition.
func TestScannerInterleavedRangeTombstones(t *testing.T) {
	def := schema.NewDefinition("ks", "t",
		[]schema.Column{{Name: "pk", Type: schema.TypeUTF8, Kind: schema.PartitionKey}},
		[]schema.Column{{Name: "ck", Type: schema.TypeInt32, Kind: schema.ClusteringColumn}},
		nil,
		[]schema.Column{{Name: "v", Type: schema.TypeInt32, Kind: schema.Regular}},
	)

	mkRow := func(n int32) row.Row {
		return row.Row{
			Clustering: ckFull(t, n),
			Deletion:   row.LiveDeletionTime,
			Marker:     row.Liveness{Present: true, Timestamp: 1},
			Cells:      []row.Cell{intCell("v", n, 1)},
		}
	}
	partition := row.Partition{
		Key:      row.DecoratedKey{Token: 0, PartitionKey: []byte("p1")},
		Deletion: row.LiveDeletionTime,
		Rows:     []row.Row{mkRow(0), mkRow(5)},
		Tombstones: []row.RangeTombstone{
			{
				Start:    ckBound(t, row.BoundExclStart, 1),
				End:      ckBound(t, row.BoundExclEnd, 4),
				Deletion: row.DeletionTime{MarkedForDeleteAt: 10, LocalDeletionTime: 100},
			},
			{
				Start:    ckBound(t, row.BoundExclStart, 6),
				End:      ckBound(t, row.BoundExclEnd, 9),
				Deletion: row.DeletionTime{MarkedForDeleteAt: 20, LocalDeletionTime: 200},
			},
		},
	}

	r := buildAndOpen(t, def, []row.Partition{partition})
	sc, err := r.NewScanner(ScannerOptions{})
	require.NoError(t, err)
	events := drain(t, sc)

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{
		EventPartitionStart, EventRow, EventRangeTombstone, EventRow, EventRangeTombstone, EventPartitionEnd,
	}, kinds)

	rt1 := events[2]
	assert.Equal(t, int64(10), rt1.RTDeletion.MarkedForDeleteAt)
	rt2 := events[4]
	assert.Equal(t, int64(20), rt2.RTDeletion.MarkedForDeleteAt)
}

// TestScannerBoundaryMergesAdjacentRangeTombstones covers two adjacent
// range tombstones (the first's end matches the second's start at the same
// clustering prefix, with complementary inclusivity) that the writer
// serializes as a single boundary marker instead of a close+open pair. The
// scanner must reconstruct both original tombstones, each with its own
// deletion time, rather than merging or dropping one.
func TestScannerBoundaryMergesAdjacentRangeTombstones(t *testing.T) {
	def := schema.NewDefinition("ks", "t",
		[]schema.Column{{Name: "pk", Type: schema.TypeUTF8, Kind: schema.PartitionKey}},
		[]schema.Column{{Name: "ck", Type: schema.TypeInt32, Kind: schema.ClusteringColumn}},
		nil,
		[]schema.Column{{Name: "v", Type: schema.TypeInt32, Kind: schema.Regular}},
	)

	partition := row.Partition{
		Key:      row.DecoratedKey{Token: 0, PartitionKey: []byte("p1")},
		Deletion: row.LiveDeletionTime,
		Tombstones: []row.RangeTombstone{
			{
				Start:    ckBound(t, row.BoundInclStart, 1),
				End:      ckBound(t, row.BoundInclEnd, 5),
				Deletion: row.DeletionTime{MarkedForDeleteAt: 10, LocalDeletionTime: 100},
			},
			{
				Start:    ckBound(t, row.BoundExclStart, 5),
				End:      ckBound(t, row.BoundInclEnd, 9),
				Deletion: row.DeletionTime{MarkedForDeleteAt: 20, LocalDeletionTime: 200},
			},
		},
	}

	r := buildAndOpen(t, def, []row.Partition{partition})
	sc, err := r.NewScanner(ScannerOptions{})
	require.NoError(t, err)
	events := drain(t, sc)

	var rts []Event
	for _, ev := range events {
		if ev.Kind == EventRangeTombstone {
			rts = append(rts, ev)
		}
	}
	require.Len(t, rts, 2)
	assert.Equal(t, int64(10), rts[0].RTDeletion.MarkedForDeleteAt)
	assert.Equal(t, row.BoundInclEnd, rts[0].RTEnd.Kind)
	assert.Equal(t, int64(20), rts[1].RTDeletion.MarkedForDeleteAt)
	assert.Equal(t, row.BoundExclStart, rts[1].RTStart.Kind)
}

// TestScannerSupersedingRangeTombstoneTruncatesOld covers a second range
// tombstone that opens before the first one's recorded end (a non-adjacent
// overlap, not an exact-boundary match). The writer must close the first
// tombstone at the second one's start position instead of its own,
// too-late end, or the closing event would sort after the following open
// event and desync the marker stream (spec.md line 112).
func TestScannerSupersedingRangeTombstoneTruncatesOld(t *testing.T) {
	def := schema.NewDefinition("ks", "t",
		[]schema.Column{{Name: "pk", Type: schema.TypeUTF8, Kind: schema.PartitionKey}},
		[]schema.Column{{Name: "ck", Type: schema.TypeInt32, Kind: schema.ClusteringColumn}},
		nil,
		[]schema.Column{{Name: "v", Type: schema.TypeInt32, Kind: schema.Regular}},
	)

	partition := row.Partition{
		Key:      row.DecoratedKey{Token: 0, PartitionKey: []byte("p1")},
		Deletion: row.LiveDeletionTime,
		Tombstones: []row.RangeTombstone{
			{
				Start:    ckBound(t, row.BoundInclStart, 1),
				End:      ckBound(t, row.BoundInclEnd, 10),
				Deletion: row.DeletionTime{MarkedForDeleteAt: 10, LocalDeletionTime: 100},
			},
			{
				Start:    ckBound(t, row.BoundInclStart, 5),
				End:      ckBound(t, row.BoundInclEnd, 9),
				Deletion: row.DeletionTime{MarkedForDeleteAt: 20, LocalDeletionTime: 200},
			},
		},
	}

	r := buildAndOpen(t, def, []row.Partition{partition})
	sc, err := r.NewScanner(ScannerOptions{})
	require.NoError(t, err)
	events := drain(t, sc)

	var rts []Event
	for _, ev := range events {
		if ev.Kind == EventRangeTombstone {
			rts = append(rts, ev)
		}
	}
	require.Len(t, rts, 2)

	// The first tombstone must close at the second one's start (5),
	// exclusive, not at its own recorded end (10).
	assert.Equal(t, int64(10), rts[0].RTDeletion.MarkedForDeleteAt)
	assert.Equal(t, row.BoundExclEnd, rts[0].RTEnd.Kind)
	assert.Equal(t, int32(5), decodeInt32(t, rts[0].RTEnd.Values[0]))

	assert.Equal(t, int64(20), rts[1].RTDeletion.MarkedForDeleteAt)
	assert.Equal(t, row.BoundInclStart, rts[1].RTStart.Kind)
	assert.Equal(t, int32(5), decodeInt32(t, rts[1].RTStart.Values[0]))
	assert.Equal(t, row.BoundInclEnd, rts[1].RTEnd.Kind)
	assert.Equal(t, int32(9), decodeInt32(t, rts[1].RTEnd.Values[0]))

	// The events must appear in clustering order: the truncated close
	// cannot sort after the following open.
	require.Len(t, events, 4)
	assert.Equal(t, EventPartitionStart, events[0].Kind)
	assert.Equal(t, EventRangeTombstone, events[1].Kind)
	assert.Equal(t, EventRangeTombstone, events[2].Kind)
	assert.Equal(t, EventPartitionEnd, events[3].Kind)
}

// TestScannerRoundTripsCollections covers list/set/map columns surviving a
// full Writer->Reader->Scanner round trip.
func TestScannerRoundTripsCollections(t *testing.T) {
	def := schema.NewDefinition("ks", "t",
		[]schema.Column{{Name: "pk", Type: schema.TypeUTF8, Kind: schema.PartitionKey}},
		[]schema.Column{{Name: "ck", Type: schema.TypeInt32, Kind: schema.ClusteringColumn}},
		nil,
		[]schema.Column{
			{Name: "tags", Type: schema.TypeSet, Kind: schema.Regular, Position: 0},
			{Name: "items", Type: schema.TypeList, Kind: schema.Regular, Position: 1},
			{Name: "attrs", Type: schema.TypeMap, Kind: schema.Regular, Position: 2},
		},
	)

	r0 := row.Row{
		Clustering: ckFull(t, 0),
		Deletion:   row.LiveDeletionTime,
		Marker:     row.Liveness{Present: true, Timestamp: 1},
		Cells: []row.Cell{
			{Column: "tags", Kind: row.CellCollectionElement, Timestamp: 1, Path: []byte("a"), Value: []byte("a")},
			{Column: "tags", Kind: row.CellCollectionElement, Timestamp: 1, Path: []byte("b"), Value: []byte("b")},
			{Column: "items", Kind: row.CellCollectionElement, Timestamp: 1, Path: []byte{0, 0, 0, 0}, Value: []byte("first")},
			{Column: "items", Kind: row.CellCollectionElement, Timestamp: 1, Path: []byte{0, 0, 0, 1}, Value: []byte("second")},
			{Column: "attrs", Kind: row.CellCollectionElement, Timestamp: 1, Path: []byte("k1"), Value: []byte("v1")},
		},
	}
	partition := row.Partition{
		Key:      row.DecoratedKey{Token: 0, PartitionKey: []byte("p1")},
		Deletion: row.LiveDeletionTime,
		Rows:     []row.Row{r0},
	}

	r := buildAndOpen(t, def, []row.Partition{partition})
	sc, err := r.NewScanner(ScannerOptions{})
	require.NoError(t, err)
	events := drain(t, sc)

	require.Len(t, events, 3)
	require.Equal(t, EventRow, events[1].Kind)
	out := events[1].Row
	require.Len(t, out.Cells, 5)

	byColumnAndPath := make(map[string]string)
	for _, c := range out.Cells {
		byColumnAndPath[c.Column+"/"+string(c.Path)] = string(c.Value)
	}
	assert.Equal(t, "a", byColumnAndPath["tags/a"])
	assert.Equal(t, "b", byColumnAndPath["tags/b"])
	assert.Equal(t, "first", byColumnAndPath["items/\x00\x00\x00\x00"])
	assert.Equal(t, "second", byColumnAndPath["items/\x00\x00\x00\x01"])
	assert.Equal(t, "v1", byColumnAndPath["attrs/k1"])
}
