package exrpack

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
	"github.com/mitchellh/go-homedir"
)

// Format identifies a supported input container.
type Format string

// Supported input formats.
const (
	FormatUnknown Format = ""
	FormatEXR     Format = "exr"
	FormatTIFF    Format = "tiff"
	FormatRGBE    Format = "rgbe"
)

var (
	exrSignature = []byte{0x76, 0x2f, 0x31, 0x01}
	rgbeHeaders  = [][]byte{[]byte("#?RADIANCE"), []byte("#?RGBE")}
)

// DetectFormat sniffs the image container from its leading bytes.
func DetectFormat(data []byte) Format {
	if kind, err := filetype.Match(data); err == nil {
		switch kind.Extension {
		case "exr":
			return FormatEXR
		case "tif":
			return FormatTIFF
		}
	}

	if bytes.HasPrefix(data, exrSignature) {
		return FormatEXR
	}

	for _, h := range rgbeHeaders {
		if bytes.HasPrefix(data, h) {
			return FormatRGBE
		}
	}

	if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
		return FormatTIFF
	}

	return FormatUnknown
}

// Decode detects the container format and decodes planar RGB channels.
func Decode(data []byte) (*Channels, error) {
	switch f := DetectFormat(data); f {
	case FormatEXR:
		return DecodeEXR(data)
	case FormatTIFF:
		return DecodeTIFF(data)
	case FormatRGBE:
		return DecodeRGBE(data)
	default:
		return nil, fmt.Errorf("%w: unrecognized image format", ErrDecode)
	}
}

// DecodeFile reads and decodes an image file, a leading ~ in path is expanded.
func DecodeFile(path string) (*Channels, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	data, err := os.ReadFile(filepath.Clean(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	c, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return c, nil
}
