package row

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowIsEmpty(t *testing.T) {
	assert.True(t, Row{Deletion: LiveDeletionTime}.IsEmpty())

	assert.False(t, Row{
		Marker:   Liveness{Present: true, Timestamp: 1},
		Deletion: LiveDeletionTime,
	}.IsEmpty())

	assert.False(t, Row{
		Deletion: DeletionTime{MarkedForDeleteAt: 1, LocalDeletionTime: 5},
	}.IsEmpty())

	assert.False(t, Row{
		Deletion: LiveDeletionTime,
		Cells:    []Cell{{Column: "v", Value: []byte("x")}},
	}.IsEmpty())
}

// TestRowIsEmptyWithComplexDeletionOnly covers a row with no marker,
// deletion or cells, but a present collection tombstone: it must not be
// treated as empty, since dropping it would lose the tombstone.
func TestRowIsEmptyWithComplexDeletionOnly(t *testing.T) {
	r := Row{
		Deletion: LiveDeletionTime,
		ComplexDeletions: map[string]ComplexDeletion{
			"tags": {Present: true, Time: DeletionTime{MarkedForDeleteAt: 1, LocalDeletionTime: 5}},
		},
	}
	assert.False(t, r.IsEmpty())

	live := Row{
		Deletion: LiveDeletionTime,
		ComplexDeletions: map[string]ComplexDeletion{
			"tags": {Present: false},
		},
	}
	assert.True(t, live.IsEmpty())
}
