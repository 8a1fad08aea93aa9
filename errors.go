package exrpack

import "errors"

// Error kinds, match with errors.Is.
var (
	// ErrDecode is returned when an image file is missing, unreadable or malformed.
	ErrDecode = errors.New("decode")
	// ErrShapeMismatch is returned when channel lengths disagree with each other or with image dimensions.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrEmptyInput is returned for non-positive image dimensions.
	ErrEmptyInput = errors.New("empty input")
	// ErrIO is returned when the raw buffer can not be written or the processor fails.
	ErrIO = errors.New("io")
	// ErrInvalidOptions is returned for non-finite parameters and unknown preview settings.
	ErrInvalidOptions = errors.New("invalid options")
)
