package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nogodb/mcsstable/compression"
	"github.com/nogodb/mcsstable/metadata"
)

func TestPhysicalValidateRoundTrip(t *testing.T) {
	var p Physical
	p.Data = []byte("partition key bytes")
	p.SetTrailer(compression.None)

	require.NoError(t, p.Validate())
	assert.Equal(t, compression.None, p.CompressionType())

	decompressed, err := p.Decompressed(nil)
	require.NoError(t, err)
	assert.Equal(t, p.Data, decompressed)
}

func TestPhysicalValidateDetectsCorruption(t *testing.T) {
	var p Physical
	p.Data = []byte("hello sstable")
	p.SetTrailer(compression.None)

	p.Data[0] ^= 0xFF
	assert.Error(t, p.Validate())
}

func TestNewPhysicalReconstructsTrailer(t *testing.T) {
	data := []byte("chunk payload")
	checksum := func() uint32 {
		var p Physical
		p.Data = data
		p.SetTrailer(compression.Snappy)
		return p.Checksum()
	}()

	p := NewPhysical(data, compression.Snappy, checksum)
	assert.NoError(t, p.Validate())
	assert.Equal(t, compression.Snappy, p.CompressionType())
}

func TestKindForComponent(t *testing.T) {
	assert.Equal(t, KindData, KindForComponent(metadata.ComponentData))
	assert.Equal(t, KindSummary, KindForComponent(metadata.ComponentSummary))
	assert.Equal(t, KindUnknown, KindForComponent(metadata.ComponentName("Nonexistent.db")))
}
