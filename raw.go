package exrpack

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const rawChunkSamples = 16 << 10

// WriteRaw dumps samples as consecutive 32-bit IEEE-754 floats in the byte order of the
// executing platform, with no header. It returns the number of bytes written.
func WriteRaw(w io.Writer, pix []float32) (int64, error) {
	buf := make([]byte, 4*min(len(pix), rawChunkSamples))

	var written int64

	for len(pix) > 0 {
		n := min(len(pix), rawChunkSamples)
		for i, v := range pix[:n] {
			binary.NativeEndian.PutUint32(buf[4*i:], math.Float32bits(v))
		}

		k, err := w.Write(buf[:4*n])
		written += int64(k)

		if err != nil {
			return written, fmt.Errorf("%w: write raw buffer: %w", ErrIO, err)
		}

		pix = pix[n:]
	}

	return written, nil
}

// ReadRaw loads samples written by WriteRaw.
func ReadRaw(r io.Reader) ([]float32, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read raw buffer: %w", ErrIO, err)
	}

	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of 4", ErrShapeMismatch, len(data))
	}

	pix := make([]float32, len(data)/4)
	for i := range pix {
		pix[i] = math.Float32frombits(binary.NativeEndian.Uint32(data[4*i:]))
	}

	return pix, nil
}
