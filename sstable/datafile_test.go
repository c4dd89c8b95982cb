package sstable

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nogodb/mcsstable/metadata"
	"github.com/nogodb/mcsstable/row"
	"github.com/nogodb/mcsstable/schema"
)

func testCodecContext() *codecContext {
	def := schema.NewDefinition("ks", "t",
		[]schema.Column{{Name: "pk", Type: schema.TypeUTF8, Kind: schema.PartitionKey}},
		[]schema.Column{{Name: "ck", Type: schema.TypeInt32, Kind: schema.ClusteringColumn}},
		nil,
		[]schema.Column{
			{Name: "v", Type: schema.TypeUTF8, Kind: schema.Regular, Position: 0},
			{Name: "tags", Type: schema.TypeSet, Kind: schema.Regular, Position: 1},
		},
	)
	return &codecContext{schema: def, header: metadata.SerializationHeader{}}
}

func roundTripRow(t *testing.T, cc *codecContext, r row.Row, static bool) row.Row {
	t.Helper()
	var buf bytes.Buffer
	_, err := cc.encodeRow(&buf, r, static, 0)
	require.NoError(t, err)

	fb, err := buf.ReadByte()
	require.NoError(t, err)
	flags := rowFlags(fb)
	var ext extendedFlags
	if flags&flagExtension != 0 {
		eb, err := buf.ReadByte()
		require.NoError(t, err)
		ext = extendedFlags(eb)
	}
	clustering := r.Clustering
	if !static {
		var err error
		clustering, err = row.DecodeClusteringPrefix(&buf, cc.clusteringTypes(), 1, row.BoundClustering)
		require.NoError(t, err)
	}
	out, err := cc.decodeRow(&buf, flags, ext, clustering, static)
	require.NoError(t, err)
	return out
}

func TestEncodeDecodeRowWithCollectionTombstone(t *testing.T) {
	cc := testCodecContext()
	clustering := row.ClusteringPrefix{Kind: row.BoundClustering, Values: [][]byte{{0, 0, 0, 1}}}

	r := row.Row{
		Clustering: clustering,
		Deletion:   row.LiveDeletionTime,
		Cells: []row.Cell{
			{Column: "tags", Kind: row.CellCollectionElement, Timestamp: 5, Path: []byte("a"), Value: []byte("x")},
		},
		ComplexDeletions: map[string]row.ComplexDeletion{
			"tags": {Present: true, Time: row.DeletionTime{MarkedForDeleteAt: 1, LocalDeletionTime: 100}},
		},
	}

	out := roundTripRow(t, cc, r, false)
	require.Contains(t, out.ComplexDeletions, "tags")
	assert.True(t, out.ComplexDeletions["tags"].Present)
	assert.Equal(t, int64(1), out.ComplexDeletions["tags"].Time.MarkedForDeleteAt)
	assert.Equal(t, int32(100), out.ComplexDeletions["tags"].Time.LocalDeletionTime)
	require.Len(t, out.Cells, 1)
	assert.Equal(t, []byte("a"), out.Cells[0].Path)
}

// TestEncodeDecodeRowCollectionTombstoneOnly covers a collection tombstoned
// with no live elements at all — the column has no cells but still carries
// a complex deletion, and must not be dropped as "missing".
func TestEncodeDecodeRowCollectionTombstoneOnly(t *testing.T) {
	cc := testCodecContext()
	clustering := row.ClusteringPrefix{Kind: row.BoundClustering, Values: [][]byte{{0, 0, 0, 2}}}

	r := row.Row{
		Clustering: clustering,
		Deletion:   row.LiveDeletionTime,
		ComplexDeletions: map[string]row.ComplexDeletion{
			"tags": {Present: true, Time: row.DeletionTime{MarkedForDeleteAt: 7, LocalDeletionTime: 200}},
		},
	}

	out := roundTripRow(t, cc, r, false)
	require.Contains(t, out.ComplexDeletions, "tags")
	assert.Equal(t, int64(7), out.ComplexDeletions["tags"].Time.MarkedForDeleteAt)
	assert.Empty(t, out.Cells)
}

// TestEncodeDecodeRowMixedCollectionDeletion covers a row where one
// collection column has a tombstone and a sibling collection column has
// live elements but no tombstone of its own: the sibling must decode as
// live, not as deleted at timestamp zero.
func TestEncodeDecodeRowMixedCollectionDeletion(t *testing.T) {
	def := schema.NewDefinition("ks", "t",
		[]schema.Column{{Name: "pk", Type: schema.TypeUTF8, Kind: schema.PartitionKey}},
		[]schema.Column{{Name: "ck", Type: schema.TypeInt32, Kind: schema.ClusteringColumn}},
		nil,
		[]schema.Column{
			{Name: "tags", Type: schema.TypeSet, Kind: schema.Regular, Position: 0},
			{Name: "notes", Type: schema.TypeSet, Kind: schema.Regular, Position: 1},
		},
	)
	cc := &codecContext{schema: def, header: metadata.SerializationHeader{}}
	clustering := row.ClusteringPrefix{Kind: row.BoundClustering, Values: [][]byte{{0, 0, 0, 3}}}

	r := row.Row{
		Clustering: clustering,
		Deletion:   row.LiveDeletionTime,
		Cells: []row.Cell{
			{Column: "notes", Kind: row.CellCollectionElement, Timestamp: 9, Path: []byte("k"), Value: []byte("v")},
		},
		ComplexDeletions: map[string]row.ComplexDeletion{
			"tags": {Present: true, Time: row.DeletionTime{MarkedForDeleteAt: 3, LocalDeletionTime: 50}},
		},
	}

	out := roundTripRow(t, cc, r, false)
	assert.True(t, out.ComplexDeletions["tags"].Present)
	_, notesHasDeletion := out.ComplexDeletions["notes"]
	assert.False(t, notesHasDeletion, "a collection column without its own tombstone must not decode as deleted")
}
