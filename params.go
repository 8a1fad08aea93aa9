package exrpack

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"
)

// Params are the image formation parameters passed through to the processor.
type Params struct {
	Saturation float64 `yaml:"saturation"`
	Slope      float64 `yaml:"slope"`
	Smoothness float64 `yaml:"smoothness"`
	Exposure   float64 `yaml:"exposure"`
}

// DefaultParams returns saturation 1.0, slope 1.7, smoothness 0.4 and exposure 0.0.
func DefaultParams() Params {
	return Params{
		Saturation: defaultSaturation,
		Slope:      defaultSlope,
		Smoothness: defaultSmoothness,
		Exposure:   defaultExposure,
	}
}

// Validate checks that all values are finite.
func (p Params) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"saturation", p.Saturation},
		{"slope", p.Slope},
		{"smoothness", p.Smoothness},
		{"exposure", p.Exposure},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s %v", ErrInvalidOptions, f.name, f.v)
		}
	}

	return nil
}

// LoadParams reads YAML parameters, keys missing from the file keep their defaults.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()

	fn, err := homedir.Expand(path)
	if err != nil {
		return p, err
	}

	data, err := os.ReadFile(filepath.Clean(fn))
	if err != nil {
		return p, err
	}

	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}

	return p, p.Validate()
}
