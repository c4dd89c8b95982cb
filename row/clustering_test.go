package row

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nogodb/mcsstable/schema"
)

func TestClusteringPrefixCompare(t *testing.T) {
	a := ClusteringPrefix{Kind: BoundClustering, Values: [][]byte{[]byte("a")}}
	b := ClusteringPrefix{Kind: BoundClustering, Values: [][]byte{[]byte("b")}}
	assert.True(t, a.Compare(b) < 0)
	assert.True(t, b.Compare(a) > 0)
	assert.Equal(t, 0, a.Compare(a))
}

func TestClusteringPrefixBoundOrdering(t *testing.T) {
	row1 := ClusteringPrefix{Kind: BoundClustering, Values: [][]byte{[]byte("a"), []byte("x")}}

	inclStart := ClusteringPrefix{Kind: BoundInclStart, Values: [][]byte{[]byte("a")}}
	assert.True(t, inclStart.Compare(row1) <= 0, "inclusive start must sort at or before its extensions")

	exclStart := ClusteringPrefix{Kind: BoundExclStart, Values: [][]byte{[]byte("a")}}
	assert.True(t, exclStart.Compare(row1) > 0, "exclusive start must sort after its extensions")

	inclEnd := ClusteringPrefix{Kind: BoundInclEnd, Values: [][]byte{[]byte("a")}}
	assert.True(t, inclEnd.Compare(row1) >= 0, "inclusive end must sort at or after its extensions")

	exclEnd := ClusteringPrefix{Kind: BoundExclEnd, Values: [][]byte{[]byte("a")}}
	assert.True(t, exclEnd.Compare(row1) < 0, "exclusive end must sort before its extensions")
}

func TestDecoratedKeyOrdering(t *testing.T) {
	a := DecoratedKey{Token: 10, PartitionKey: []byte("a")}
	b := DecoratedKey{Token: 20, PartitionKey: []byte("a")}
	assert.True(t, a.Compare(b) < 0)

	c := DecoratedKey{Token: 10, PartitionKey: []byte("b")}
	assert.True(t, a.Compare(c) < 0)
}

func TestClusteringPrefixCodecRoundTrip(t *testing.T) {
	types := []schema.Type{schema.TypeInt32, schema.TypeUTF8, schema.TypeInt32}

	encode := func(t *testing.T, c ClusteringPrefix) []byte {
		t.Helper()
		var buf bytes.Buffer
		require.NoError(t, EncodeClusteringPrefix(&buf, c, types))
		return buf.Bytes()
	}
	decode := func(t *testing.T, buf []byte, n int) ClusteringPrefix {
		t.Helper()
		got, err := DecodeClusteringPrefix(bytes.NewReader(buf), types, n, BoundClustering)
		require.NoError(t, err)
		return got
	}

	t.Run("all non-null, fixed and variable mixed", func(t *testing.T) {
		c := ClusteringPrefix{Kind: BoundClustering, Values: [][]byte{{0, 0, 0, 1}, []byte("hello"), {0, 0, 0, 2}}}
		got := decode(t, encode(t, c), len(c.Values))
		assert.Equal(t, c.Values, got.Values)
	})

	t.Run("null component in the middle desyncs a decoder that reads before checking the mask", func(t *testing.T) {
		// The middle (variable-width) component is null; a decoder that
		// consumed bytes for it before learning it was null would then
		// misread the third component's bytes as the second's.
		c := ClusteringPrefix{Kind: BoundClustering, Values: [][]byte{{0, 0, 0, 1}, nil, {0, 0, 0, 2}}}
		got := decode(t, encode(t, c), len(c.Values))
		require.Len(t, got.Values, 3)
		assert.Equal(t, []byte{0, 0, 0, 1}, got.Values[0])
		assert.Nil(t, got.Values[1])
		assert.Equal(t, []byte{0, 0, 0, 2}, got.Values[2])
	})

	t.Run("leading null component", func(t *testing.T) {
		c := ClusteringPrefix{Kind: BoundClustering, Values: [][]byte{nil, []byte("x"), {0, 0, 0, 9}}}
		got := decode(t, encode(t, c), len(c.Values))
		assert.Nil(t, got.Values[0])
		assert.Equal(t, []byte("x"), got.Values[1])
		assert.Equal(t, []byte{0, 0, 0, 9}, got.Values[2])
	})

	t.Run("all null", func(t *testing.T) {
		c := ClusteringPrefix{Kind: BoundClustering, Values: [][]byte{nil, nil, nil}}
		got := decode(t, encode(t, c), len(c.Values))
		for _, v := range got.Values {
			assert.Nil(t, v)
		}
	})

	t.Run("EncodedLen matches the actual wire size regardless of nulls", func(t *testing.T) {
		c := ClusteringPrefix{Kind: BoundClustering, Values: [][]byte{{0, 0, 0, 1}, nil, {0, 0, 0, 2}}}
		assert.Equal(t, len(encode(t, c)), EncodedLen(c, types))
	})
}
