package exrpack

import (
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomChannel(rnd *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = rnd.Float32()*100 - 50
	}

	return out
}

func TestInterleave(t *testing.T) {
	out, err := Interleave([]float32{1, 2}, []float32{3, 4}, []float32{5, 6}, 2, 1)
	require.NoError(t, err)

	if diff := cmp.Diff([]float32{1, 3, 5, 2, 4, 6}, out); diff != "" {
		t.Fatalf("unexpected buffer (-want +got):\n%s", diff)
	}
}

func TestInterleave_roundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	for _, size := range [][2]int{{1, 1}, {7, 3}, {64, 48}} {
		n := size[0] * size[1]
		r, g, b := randomChannel(rnd, n), randomChannel(rnd, n), randomChannel(rnd, n)

		out, err := Interleave(r, g, b, size[0], size[1])
		require.NoError(t, err)
		require.Len(t, out, 3*n)

		r2, g2, b2, err := Deinterleave(out)
		require.NoError(t, err)

		if diff := cmp.Diff([][]float32{r, g, b}, [][]float32{r2, g2, b2}); diff != "" {
			t.Fatalf("round trip mismatch for %v (-want +got):\n%s", size, diff)
		}
	}
}

func TestInterleave_shapeMismatch(t *testing.T) {
	out, err := Interleave([]float32{1, 2, 3, 4}, []float32{1, 2, 3}, []float32{1, 2, 3}, 3, 1)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Nil(t, out)

	// Equal lengths that disagree with declared dimensions.
	out, err = Interleave([]float32{1, 2}, []float32{1, 2}, []float32{1, 2}, 3, 1)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Nil(t, out)

	out, err = Interleave(nil, nil, nil, 1, 1)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Nil(t, out)

	// The pixel count of side x side wraps to zero.
	side := 1 << (strconv.IntSize / 2)
	out, err = Interleave(nil, nil, nil, side, side)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Nil(t, out)

	out, err = InterleaveParallel(nil, nil, nil, math.MaxInt/2, 2, 4)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Nil(t, out)
}

func TestInterleave_emptyInput(t *testing.T) {
	for _, size := range [][2]int{{0, 0}, {0, 5}, {5, 0}, {-1, 3}} {
		out, err := Interleave(nil, nil, nil, size[0], size[1])
		assert.ErrorIs(t, err, ErrEmptyInput, size)
		assert.NotErrorIs(t, err, ErrShapeMismatch, size)
		assert.Nil(t, out)
	}
}

func TestInterleaveParallel(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	width, height := 517, 263
	n := width * height
	r, g, b := randomChannel(rnd, n), randomChannel(rnd, n), randomChannel(rnd, n)

	want, err := Interleave(r, g, b, width, height)
	require.NoError(t, err)

	for _, workers := range []int{0, 1, 2, 3, 8, 33} {
		got, err := InterleaveParallel(r, g, b, width, height, workers)
		require.NoError(t, err)

		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("workers=%d (-want +got):\n%s", workers, diff)
		}
	}

	_, err = InterleaveParallel(r, g, b[1:], width, height, 4)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDeinterleave_invalid(t *testing.T) {
	_, _, _, err := Deinterleave([]float32{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func BenchmarkInterleave(b *testing.B) {
	rnd := rand.New(rand.NewSource(3))
	width, height := 1920, 1080
	n := width * height
	r, g, bl := randomChannel(rnd, n), randomChannel(rnd, n), randomChannel(rnd, n)

	for _, workers := range []int{1, 4} {
		b.Run("workers"+strconv.Itoa(workers), func(b *testing.B) {
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := InterleaveParallel(r, g, bl, width, height, workers); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
