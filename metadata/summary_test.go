package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleStrideFloorsAtMinIndexInterval(t *testing.T) {
	// with no size information (or partitions already big enough that the
	// ratio-derived stride would be denser than minIndexInterval), the
	// floor wins: never sample more densely than min_index_interval asks.
	assert.Equal(t, 128, SampleStride(0, 0.0005, 128))
	assert.Equal(t, 128, SampleStride(1024*1024, 0.0005, 128))
}

func TestSampleStrideWidensForManySmallPartitions(t *testing.T) {
	// tiny average partition size means a huge partition count for a given
	// data volume, so the stride must widen well past minIndexInterval to
	// keep the summary's byte budget near data-bytes * ratio.
	stride := SampleStride(8, 0.0005, 128)
	assert.Greater(t, stride, 128)

	wider := SampleStride(2, 0.0005, 128)
	assert.Greater(t, wider, stride, "smaller average partitions should widen the stride further")
}
