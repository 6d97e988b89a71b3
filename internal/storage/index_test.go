package storage

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, vectors ...[]float32) *FlatIndex {
	t.Helper()
	idx, err := NewFlatIndex(len(vectors[0]))
	require.NoError(t, err)
	for _, v := range vectors {
		require.NoError(t, idx.Add(v))
	}
	return idx
}

func TestFlatIndex_SearchOrdersByDistance(t *testing.T) {
	idx := newTestIndex(t,
		[]float32{10, 0},
		[]float32{1, 0},
		[]float32{3, 4},
	)

	neighbors, err := idx.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, neighbors, 3)

	assert.Equal(t, 1, neighbors[0].Position)
	assert.Equal(t, 1.0, neighbors[0].Distance)
	assert.Equal(t, 2, neighbors[1].Position)
	assert.Equal(t, 25.0, neighbors[1].Distance) // squared, not 5
	assert.Equal(t, 0, neighbors[2].Position)
	assert.Equal(t, 100.0, neighbors[2].Distance)
}

func TestFlatIndex_SearchLimits(t *testing.T) {
	idx := newTestIndex(t, []float32{1}, []float32{2}, []float32{3})

	tests := []struct {
		name string
		k    int
		want int
	}{
		{"fewer than corpus", 2, 2},
		{"exactly corpus", 3, 3},
		{"larger than corpus", 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			neighbors, err := idx.Search([]float32{0}, tt.k)
			require.NoError(t, err)
			assert.Len(t, neighbors, tt.want)
		})
	}

	_, err := idx.Search([]float32{0}, 0)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestFlatIndex_TiesKeepInsertionOrder(t *testing.T) {
	idx := newTestIndex(t, []float32{1, 0}, []float32{0, 1}, []float32{-1, 0})

	neighbors, err := idx.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, []int{neighbors[0].Position, neighbors[1].Position, neighbors[2].Position})
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	idx := newTestIndex(t, []float32{1, 2, 3})

	assert.ErrorIs(t, idx.Add([]float32{1, 2}), ErrDimensionMismatch)

	_, err := idx.Search([]float32{1}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewFlatIndex(0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlatIndex_RoundTrip(t *testing.T) {
	idx := newTestIndex(t,
		[]float32{0.25, -1.5, 3},
		[]float32{7, 8, 9},
	)

	var buf bytes.Buffer
	n, err := idx.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	decoded, err := ReadFlatIndex(&buf)
	require.NoError(t, err)
	assert.Equal(t, idx.Dimension(), decoded.Dimension())
	assert.Equal(t, idx.vectors, decoded.vectors)
}

func TestReadFlatIndex_RejectsGarbage(t *testing.T) {
	_, err := ReadFlatIndex(bytes.NewReader([]byte("definitely not an index file")))
	assert.Error(t, err)

	_, err = ReadFlatIndex(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestReadFlatIndex_Truncated(t *testing.T) {
	idx := newTestIndex(t, []float32{1, 2}, []float32{3, 4})
	var buf bytes.Buffer
	_, err := idx.WriteTo(&buf)
	require.NoError(t, err)

	truncated := buf.Bytes()[:buf.Len()-3]
	_, err = ReadFlatIndex(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func encodedHeader(dim uint32, count uint64) []byte {
	header := make([]byte, indexHeaderLen)
	copy(header, indexMagic[:])
	binary.LittleEndian.PutUint32(header[8:], dim)
	binary.LittleEndian.PutUint64(header[12:], count)
	return header
}

func TestReadFlatIndex_HugeCount(t *testing.T) {
	overflowing := append(encodedHeader(4, 1<<62), make([]byte, 32)...)
	assert.NotPanics(t, func() {
		_, err := ReadFlatIndex(bytes.NewReader(overflowing))
		assert.ErrorContains(t, err, "overflows")
	})

	// In range but far larger than the payload: unsized reads fail at EOF,
	// sized reads fail before allocating.
	oversized := append(encodedHeader(4, 1<<40), make([]byte, 32)...)
	assert.NotPanics(t, func() {
		_, err := ReadFlatIndex(bytes.NewReader(oversized))
		assert.Error(t, err)
	})
	_, err := readFlatIndex(bytes.NewReader(oversized), int64(len(oversized)))
	assert.ErrorContains(t, err, "file is 52 bytes")
}

func TestReadFlatIndex_BadDimension(t *testing.T) {
	for _, dim := range []uint32{0, MaxDimension + 1} {
		_, err := ReadFlatIndex(bytes.NewReader(encodedHeader(dim, 1)))
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	}
}

func TestReadFlatIndex_SizeMustMatchHeader(t *testing.T) {
	idx := newTestIndex(t, []float32{1, 2}, []float32{3, 4})
	var buf bytes.Buffer
	_, err := idx.WriteTo(&buf)
	require.NoError(t, err)

	decoded, err := readFlatIndex(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Len())

	_, err = readFlatIndex(bytes.NewReader(buf.Bytes()), int64(buf.Len()+4))
	assert.Error(t, err)
}
