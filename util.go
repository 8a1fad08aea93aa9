package exrpack

import "math"

func srgbOetf(v float32) float32 {
	if v <= 0.0031308 {
		return 12.92 * v
	}

	return 1.055*float32(math.Pow(float64(v), 1.0/2.4)) - 0.055
}

func clamp01(v float32) float32 {
	switch {
	case v != v || v < 0: // NaN compares false.
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
