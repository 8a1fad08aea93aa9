package exrpack

import (
	"bytes"
	"fmt"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
)

// DecodeRGBE decodes a Radiance RGBE (.hdr) image into planar channels.
func DecodeRGBE(data []byte) (*Channels, error) {
	img, err := rgbe.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: RGBE: %w", ErrDecode, err)
	}

	m, ok := img.(hdr.Image)
	if !ok {
		return fromImage(img)
	}

	return fromHDRImage(m)
}

func fromHDRImage(m hdr.Image) (*Channels, error) {
	b := m.Bounds()

	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrDecode, w, h)
	}

	out := newChannels(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b2, _ := m.HDRAt(b.Min.X+x, b.Min.Y+y).HDRRGBA()
			out.set(x, y, float32(r), float32(g), float32(b2))
		}
	}

	return out, nil
}
