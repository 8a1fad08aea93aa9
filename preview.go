package exrpack

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mdouchement/hdr/tmo"
	"github.com/nfnt/resize"
)

// PreviewOptions controls preview rendering.
type PreviewOptions struct {
	// Width is the maximum preview width in pixels, larger images are downsized.
	Width uint
	// Operator names the tone mapping operator, see PreviewOperators.
	Operator string
}

var previewOperators = map[string]func(m hdr.Image) image.Image{
	"clamp": clampPreview,
	"linear": func(m hdr.Image) image.Image {
		return tmo.NewLinear(m).Perform()
	},
	"reinhard05": func(m hdr.Image) image.Image {
		return tmo.NewDefaultReinhard05(m).Perform()
	},
	"drago03": func(m hdr.Image) image.Image {
		return tmo.NewDefaultDrago03(m).Perform()
	},
	"durand": func(m hdr.Image) image.Image {
		return tmo.NewDefaultDurand(m).Perform()
	},
	"icam06": func(m hdr.Image) image.Image {
		return tmo.NewDefaultICam06(m).Perform()
	},
}

// PreviewOperators lists available tone mapping operator names.
func PreviewOperators() []string {
	names := make([]string, 0, len(previewOperators))
	for name := range previewOperators {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// WritePreview renders a tone mapped PNG thumbnail of decoded channels.
func WritePreview(w io.Writer, c *Channels, opt PreviewOptions) error {
	op, err := preparePreview(c, &opt)
	if err != nil {
		return err
	}

	return renderPreview(w, c, opt, op)
}

// WritePreviewFile renders a preview into a file, nothing is created for invalid input.
func WritePreviewFile(path string, c *Channels, opt PreviewOptions) (err error) {
	op, err := preparePreview(c, &opt)
	if err != nil {
		return err
	}

	fn := filepath.Clean(path)

	f, err := os.Create(fn)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	defer func() {
		if clErr := f.Close(); clErr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrIO, clErr)
		}

		if err != nil {
			_ = os.Remove(fn)
		}
	}()

	return renderPreview(f, c, opt, op)
}

// preparePreview applies defaults and validates options and channels.
func preparePreview(c *Channels, opt *PreviewOptions) (func(m hdr.Image) image.Image, error) {
	if opt.Operator == "" {
		opt.Operator = DefaultPreviewOperator
	}

	if opt.Width == 0 {
		opt.Width = DefaultPreviewWidth
	}

	op, ok := previewOperators[opt.Operator]
	if !ok {
		return nil, fmt.Errorf("%w: unknown preview operator %q, available: %v",
			ErrInvalidOptions, opt.Operator, PreviewOperators())
	}

	if _, err := checkShape(c.R, c.G, c.B, c.Width, c.Height); err != nil {
		return nil, err
	}

	return op, nil
}

func renderPreview(w io.Writer, c *Channels, opt PreviewOptions, op func(m hdr.Image) image.Image) error {
	img := op(toHDRImage(c))

	if uint(c.Width) > opt.Width {
		img = resize.Resize(opt.Width, 0, img, resize.Lanczos3)
	}

	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("%w: encode preview: %w", ErrIO, err)
	}

	return nil
}

func toHDRImage(c *Channels) *hdr.RGB {
	m := hdr.NewRGB(image.Rect(0, 0, c.Width, c.Height))

	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			i := y*c.Width + x
			m.SetRGB(x, y, hdrcolor.RGB{R: float64(c.R[i]), G: float64(c.G[i]), B: float64(c.B[i])})
		}
	}

	return m
}

// clampPreview clips linear values to [0, 1] and applies the sRGB transfer function.
func clampPreview(m hdr.Image) image.Image {
	b := m.Bounds()
	out := image.NewNRGBA(b)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := m.HDRAt(x, y).HDRRGBA()
			out.SetNRGBA(x, y, color.NRGBA{
				R: to8(float32(r)),
				G: to8(float32(g)),
				B: to8(float32(bl)),
				A: 0xff,
			})
		}
	}

	return out
}

func to8(v float32) uint8 {
	return uint8(srgbOetf(clamp01(v))*255 + 0.5)
}
