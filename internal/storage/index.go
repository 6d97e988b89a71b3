package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

// indexMagic prefixes every serialized FlatIndex.
var indexMagic = [8]byte{'P', 'R', 'A', 'G', 'I', 'D', 'X', '1'}

// FlatIndex is an exact nearest-neighbor index using squared Euclidean distance.
// Vectors are kept in insertion order so position i matches metadata record i.
type FlatIndex struct {
	dim     int
	vectors [][]float32
}

// Neighbor is a search result position with its distance to the query.
type Neighbor struct {
	Position int
	Distance float64
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dim)
	}
	return &FlatIndex{dim: dim}, nil
}

// Dimension returns the vector dimension D.
func (f *FlatIndex) Dimension() int { return f.dim }

// Len returns the number of stored vectors.
func (f *FlatIndex) Len() int { return len(f.vectors) }

// Add appends a vector. The slice is copied.
func (f *FlatIndex) Add(vec []float32) error {
	if len(vec) != f.dim {
		return fmt.Errorf("%w: got %d dimensions, expected %d", ErrDimensionMismatch, len(vec), f.dim)
	}
	v := make([]float32, len(vec))
	copy(v, vec)
	f.vectors = append(f.vectors, v)
	return nil
}

// Search returns the k nearest positions ordered by ascending distance.
// Ties keep insertion order. k larger than Len returns every position.
func (f *FlatIndex) Search(query []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(query), f.dim)
	}

	neighbors := make([]Neighbor, len(f.vectors))
	for i, v := range f.vectors {
		neighbors[i] = Neighbor{Position: i, Distance: squaredL2(query, v)}
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})

	if k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// WriteTo serializes the index: magic, uint32 dim, uint64 count, float32 payload (little-endian).
func (f *FlatIndex) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64

	header := make([]byte, indexHeaderLen)
	copy(header, indexMagic[:])
	binary.LittleEndian.PutUint32(header[8:], uint32(f.dim))
	binary.LittleEndian.PutUint64(header[12:], uint64(len(f.vectors)))
	written, err := bw.Write(header)
	n += int64(written)
	if err != nil {
		return n, err
	}

	buf := make([]byte, 4)
	for _, vec := range f.vectors {
		for _, x := range vec {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			written, err := bw.Write(buf)
			n += int64(written)
			if err != nil {
				return n, err
			}
		}
	}
	return n, bw.Flush()
}

// MaxDimension bounds the vector dimension accepted when decoding an index.
const MaxDimension = 1 << 16

const indexHeaderLen = len(indexMagic) + 4 + 8

// preallocVectors caps how many vector slots are reserved before any payload is read.
const preallocVectors = 4096

// ReadFlatIndex decodes an index written by WriteTo.
func ReadFlatIndex(r io.Reader) (*FlatIndex, error) {
	return readFlatIndex(r, -1)
}

// readFlatIndex decodes an index. When size is non-negative it is the total encoded length,
// and a header that disagrees with it is rejected before anything is allocated.
func readFlatIndex(r io.Reader, size int64) (*FlatIndex, error) {
	br := bufio.NewReader(r)

	header := make([]byte, indexHeaderLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if [8]byte(header[:8]) != indexMagic {
		return nil, errors.New("not an index file")
	}
	dim := binary.LittleEndian.Uint32(header[8:])
	count := binary.LittleEndian.Uint64(header[12:])

	if dim == 0 || dim > MaxDimension {
		return nil, fmt.Errorf("%w: header dimension %d outside [1, %d]", ErrDimensionMismatch, dim, MaxDimension)
	}
	vecBytes := 4 * uint64(dim)
	if count > uint64(math.MaxInt64-indexHeaderLen)/vecBytes {
		return nil, fmt.Errorf("header vector count %d overflows", count)
	}
	if size >= 0 && uint64(size) != uint64(indexHeaderLen)+count*vecBytes {
		return nil, fmt.Errorf("header declares %d vectors of dimension %d but file is %d bytes", count, dim, size)
	}

	idx, err := NewFlatIndex(int(dim))
	if err != nil {
		return nil, err
	}

	buf := make([]byte, vecBytes)
	idx.vectors = make([][]float32, 0, min(count, preallocVectors))
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		idx.vectors = append(idx.vectors, vec)
	}
	return idx, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
