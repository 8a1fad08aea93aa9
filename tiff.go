package exrpack

import (
	"bytes"
	"fmt"
	"image"

	"golang.org/x/image/tiff"
)

// DecodeTIFF decodes an 8/16-bit integer TIFF into planar channels normalised to [0, 1].
func DecodeTIFF(data []byte) (*Channels, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: TIFF: %w", ErrDecode, err)
	}

	return fromImage(img)
}

func fromImage(img image.Image) (*Channels, error) {
	b := img.Bounds()

	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrDecode, w, h)
	}

	out := newChannels(w, h)
	out.Window = DataWindow{
		MinX: int32(b.Min.X),
		MinY: int32(b.Min.Y),
		MaxX: int32(b.Max.X - 1),
		MaxY: int32(b.Max.Y - 1),
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b2, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.set(x, y, float32(r)/65535.0, float32(g)/65535.0, float32(b2)/65535.0)
		}
	}

	return out, nil
}
