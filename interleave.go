package exrpack

import (
	"fmt"
	"math"
	"sync"
)

// minParallelPixels is the smallest image that is split across workers.
const minParallelPixels = 1 << 16

// Interleave packs three planar channels into [R0,G0,B0,R1,G1,B1,...].
//
// All channels must hold exactly width*height samples. Non-positive dimensions fail
// with ErrEmptyInput, inconsistent lengths with ErrShapeMismatch, and no buffer is
// returned in either case.
func Interleave(red, green, blue []float32, width, height int) ([]float32, error) {
	n, err := checkShape(red, green, blue, width, height)
	if err != nil {
		return nil, err
	}

	out := make([]float32, 3*n)
	interleaveRange(out, red, green, blue, 0, n)

	return out, nil
}

// InterleaveParallel is Interleave with the pixel range split across workers goroutines.
// The result is identical to Interleave, it is returned only after every worker is done.
func InterleaveParallel(red, green, blue []float32, width, height, workers int) ([]float32, error) {
	n, err := checkShape(red, green, blue, width, height)
	if err != nil {
		return nil, err
	}

	out := make([]float32, 3*n)

	if workers <= 1 || n < minParallelPixels {
		interleaveRange(out, red, green, blue, 0, n)

		return out, nil
	}

	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup

	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)

		wg.Add(1)

		go func() {
			defer wg.Done()
			interleaveRange(out, red, green, blue, start, end)
		}()
	}

	wg.Wait()

	return out, nil
}

// Deinterleave splits an RGB buffer back into planar channels by stride-3 extraction.
func Deinterleave(pix []float32) (red, green, blue []float32, err error) {
	if len(pix)%3 != 0 {
		return nil, nil, nil, fmt.Errorf("%w: %d samples is not a multiple of 3", ErrShapeMismatch, len(pix))
	}

	n := len(pix) / 3
	red = make([]float32, n)
	green = make([]float32, n)
	blue = make([]float32, n)

	for i := 0; i < n; i++ {
		red[i] = pix[3*i]
		green[i] = pix[3*i+1]
		blue[i] = pix[3*i+2]
	}

	return red, green, blue, nil
}

func checkShape(red, green, blue []float32, width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: invalid dimensions %dx%d", ErrEmptyInput, width, height)
	}

	if width > math.MaxInt/3/height {
		return 0, fmt.Errorf("%w: dimensions %dx%d overflow the buffer size", ErrShapeMismatch, width, height)
	}

	n := width * height
	if len(red) != n || len(green) != n || len(blue) != n {
		return 0, fmt.Errorf("%w: channel lengths R=%d G=%d B=%d, want %d (%dx%d)",
			ErrShapeMismatch, len(red), len(green), len(blue), n, width, height)
	}

	return n, nil
}

func interleaveRange(out, red, green, blue []float32, start, end int) {
	for i := start; i < end; i++ {
		out[3*i] = red[i]
		out[3*i+1] = green[i]
		out[3*i+2] = blue[i]
	}
}
