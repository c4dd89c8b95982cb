package sstable

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nogodb/mcsstable/internal/filenames"
	"github.com/nogodb/mcsstable/metadata"
	"github.com/nogodb/mcsstable/row"
	"github.com/nogodb/mcsstable/schema"
	"github.com/nogodb/mcsstable/storage"
)

func sealingTestSchema() *schema.Definition {
	return schema.NewDefinition("ks", "t",
		[]schema.Column{{Name: "pk", Type: schema.TypeUTF8, Kind: schema.PartitionKey}},
		[]schema.Column{{Name: "ck", Type: schema.TypeInt32, Kind: schema.ClusteringColumn}},
		nil,
		[]schema.Column{{Name: "v", Type: schema.TypeInt32, Kind: schema.Regular}},
	)
}

func onePartition(t *testing.T) []row.Partition {
	return []row.Partition{{
		Key:      row.DecoratedKey{Token: 0, PartitionKey: []byte("p1")},
		Deletion: row.LiveDeletionTime,
		Rows: []row.Row{{
			Clustering: ckFull(t, 0),
			Deletion:   row.LiveDeletionTime,
			Marker:     row.Liveness{Present: true, Timestamp: 1},
			Cells:      []row.Cell{intCell("v", 0, 1)},
		}},
	}}
}

// TestRecoverIncompleteRemovesOrphanedGeneration simulates the crash window
// spec.md §4.6 calls out: a generation whose TemporaryTOC was written but
// never renamed to a final TOC. RecoverIncomplete must remove every
// component belonging to it, plus the TemporaryTOC, while leaving an
// unrelated, fully-sealed generation untouched.
func TestRecoverIncompleteRemovesOrphanedGeneration(t *testing.T) {
	s := storage.NewMem()

	// Generation "1" is fully sealed via the normal write path.
	w := NewWriter(s, "1", sealingTestSchema(), zeroToken)
	_, err := w.Write(onePartition(t))
	require.NoError(t, err)

	// Generation "2" is left half-sealed: components exist and a
	// TemporaryTOC was written, but sealTOC's final rename never happened.
	for _, c := range []metadata.ComponentName{metadata.ComponentData, metadata.ComponentIndex, metadata.ComponentStatistics} {
		wf, err := s.Create(filenames.Format("2", c))
		require.NoError(t, err)
		_, err = wf.Write([]byte("partial"))
		require.NoError(t, err)
		require.NoError(t, wf.Finish())
	}
	tmpW, err := s.Create(filenames.TemporaryTOCName("2"))
	require.NoError(t, err)
	require.NoError(t, tmpW.Finish())

	recovered, err := RecoverIncomplete(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, recovered)

	names, err := s.List()
	require.NoError(t, err)
	sort.Strings(names)
	for _, n := range names {
		d, ok := filenames.Parse(n)
		require.True(t, ok, "unexpected leftover file %q", n)
		assert.Equal(t, "1", d.Generation, "generation 2's files should all be removed, found %q", n)
	}

	// Generation 1's files must all still be present and openable.
	r, err := Open(s, "1", sealingTestSchema(), zeroToken)
	require.NoError(t, err)
	defer r.Close()
}

// TestRecoverIncompleteLeavesCompletedSealAlone covers the case where both
// the TemporaryTOC and the final TOC exist for a generation (the directory
// fsync acknowledgement was lost, not the seal itself): that generation
// must be left alone.
func TestRecoverIncompleteLeavesCompletedSealAlone(t *testing.T) {
	s := storage.NewMem()
	w := NewWriter(s, "1", sealingTestSchema(), zeroToken)
	_, err := w.Write(onePartition(t))
	require.NoError(t, err)

	// Recreate a leftover TemporaryTOC alongside the final TOC, as if the
	// rename's directory fsync was slow to land.
	tmpW, err := s.Create(filenames.TemporaryTOCName("1"))
	require.NoError(t, err)
	require.NoError(t, tmpW.Finish())

	recovered, err := RecoverIncomplete(s)
	require.NoError(t, err)
	assert.Empty(t, recovered)

	r, err := Open(s, "1", sealingTestSchema(), zeroToken)
	require.NoError(t, err)
	defer r.Close()
}

// TestDeleteGenerationRemovesEveryComponent exercises removeGeneration's
// errgroup fan-out over a fully-sealed generation's component files.
func TestDeleteGenerationRemovesEveryComponent(t *testing.T) {
	s := storage.NewMem()
	w := NewWriter(s, "1", sealingTestSchema(), zeroToken)
	result, err := w.Write(onePartition(t))
	require.NoError(t, err)
	require.NotEmpty(t, result.Components)

	before, err := s.List()
	require.NoError(t, err)
	require.NotEmpty(t, before)

	require.NoError(t, DeleteGeneration(s, "1"))

	after, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, after)
}
