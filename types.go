package exrpack

// DataWindow is the pixel-coordinate bounds of an image as declared in its header, inclusive.
type DataWindow struct {
	MinX, MinY int32
	MaxX, MaxY int32
}

// Width returns the number of columns covered by the window.
func (dw DataWindow) Width() int {
	return int(dw.MaxX) - int(dw.MinX) + 1
}

// Height returns the number of rows covered by the window.
func (dw DataWindow) Height() int {
	return int(dw.MaxY) - int(dw.MinY) + 1
}

// Channels stores a decoded image as three planar float32 channels.
// Each channel is row-major with Width*Height samples.
type Channels struct {
	Width  int
	Height int
	Window DataWindow
	R      []float32
	G      []float32
	B      []float32
}

func newChannels(width, height int) *Channels {
	n := width * height
	return &Channels{
		Width:  width,
		Height: height,
		Window: DataWindow{MaxX: int32(width - 1), MaxY: int32(height - 1)},
		R:      make([]float32, n),
		G:      make([]float32, n),
		B:      make([]float32, n),
	}
}

// Interleave packs the channels into an RGB buffer, see InterleaveParallel.
func (c *Channels) Interleave(workers int) ([]float32, error) {
	return InterleaveParallel(c.R, c.G, c.B, c.Width, c.Height, workers)
}

func (c *Channels) set(x, y int, r, g, b float32) {
	i := y*c.Width + x
	c.R[i] = r
	c.G[i] = g
	c.B[i] = b
}
