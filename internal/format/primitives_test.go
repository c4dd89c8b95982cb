package format

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nogodb/mcsstable/internal/errs"
)

func TestUvarintRoundTrip(t *testing.T) {
	cases := []uint64{
		0, 1, 63, 127, 128, 200, 1 << 13, 1<<14 - 1, 1 << 20,
		1 << 27, 1 << 34, 1 << 41, 1 << 48, 1 << 55,
		1<<64 - 1, 0xFFFFFFFFFFFFFFFF,
	}
	for _, v := range cases {
		var buf [MaxVIntLen]byte
		n := PutUvarint(buf[:], v)
		assert.Equal(t, UvarintLen(v), n)

		got, consumed := Uvarint(buf[:n])
		require.Equal(t, n, consumed)
		assert.Equal(t, v, got, "value %d", v)

		var w bytes.Buffer
		require.NoError(t, WriteUvarint(&w, v))
		assert.Equal(t, buf[:n], w.Bytes())

		rv, err := ReadUvarint(bytes.NewReader(w.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, v, rv)
	}
}

func TestUvarintSizeBoundaries(t *testing.T) {
	// one byte holds [0,128)
	assert.Equal(t, 1, UvarintLen(0))
	assert.Equal(t, 1, UvarintLen(127))
	assert.Equal(t, 2, UvarintLen(128))
	// the all-ones header (e=8) only kicks in once 7+7*7=56 bits overflow
	assert.Equal(t, 8, UvarintLen(1<<56-1))
	assert.Equal(t, 9, UvarintLen(1<<56))
	assert.Equal(t, 9, UvarintLen(1<<64-1))
}

func TestVarintZigZagRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 2, -2, 1000, -1000, 1<<40 - 1, -(1 << 40), 1<<63 - 1, -(1 << 63)}
	for _, v := range cases {
		var buf [MaxVIntLen]byte
		n := PutVarint(buf[:], v)
		assert.Equal(t, VarintLen(v), n)

		got, consumed := Varint(buf[:n])
		require.Equal(t, n, consumed)
		assert.Equal(t, v, got)

		var w bytes.Buffer
		require.NoError(t, WriteVarint(&w, v))
		rv, err := ReadVarint(bytes.NewReader(w.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, v, rv)
	}
}

func TestUvarintTruncated(t *testing.T) {
	// header byte claims 2 extra bytes but only one is present.
	buf := []byte{0xC0, 0x01}
	v, n := Uvarint(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, uint64(0), v)

	_, err := ReadUvarint(bytes.NewReader(buf))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Truncated), "expected truncated classification")
}

func TestFixedWidthRoundTrip(t *testing.T) {
	var b16 [2]byte
	PutUint16(b16[:], 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), mustUint16(t, b16[:]))

	var b32 [4]byte
	PutUint32(b32[:], 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), mustUint32(t, b32[:]))

	var b64 [8]byte
	PutUint64(b64[:], 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), mustUint64(t, b64[:]))
}

func mustUint16(t *testing.T, b []byte) uint16 {
	t.Helper()
	v, err := ReadUint16(bytes.NewReader(b))
	require.NoError(t, err)
	return v
}

func mustUint32(t *testing.T, b []byte) uint32 {
	t.Helper()
	v, err := ReadUint32(bytes.NewReader(b))
	require.NoError(t, err)
	return v
}

func mustUint64(t *testing.T, b []byte) uint64 {
	t.Helper()
	v, err := ReadUint64(bytes.NewReader(b))
	require.NoError(t, err)
	return v
}

func TestDiskString16RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDiskString16(&buf, []byte("hello partition key")))
	got, err := ReadDiskString16(&buf)
	require.NoError(t, err)
	assert.Equal(t, "hello partition key", string(got))
}

func TestVIntBytesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteVIntBytes(&buf, []byte("cell value")))
	got, err := ReadVIntBytes(&buf)
	require.NoError(t, err)
	assert.Equal(t, "cell value", string(got))
}
