package exrpack

const (
	defaultSaturation = 1.0
	defaultSlope      = 1.7
	defaultSmoothness = 0.4
	defaultExposure   = 0.0
)

const (
	// DefaultProcessor is the processor command used when none is configured.
	DefaultProcessor = "./process_data"

	// DefaultPreviewWidth is the maximum preview width used when none is configured.
	DefaultPreviewWidth = 512
	// DefaultPreviewOperator is the preview tone mapping operator used when none is configured.
	DefaultPreviewOperator = "clamp"
)
