package splat

// Image is a row-major float buffer with interleaved channels.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []float64
}

// NewImage allocates a zeroed image.
func NewImage(width, height, channels int) Image {
	return Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float64, width*height*channels),
	}
}

// Index returns the offset of channel k of pixel (x, y).
func (im *Image) Index(x, y, k int) int {
	return (y*im.Width+x)*im.Channels + k
}

// At returns channel k of pixel (x, y).
func (im *Image) At(x, y, k int) float64 {
	return im.Pix[im.Index(x, y, k)]
}

// Pixel returns the channel slice of pixel (x, y).
func (im *Image) Pixel(x, y int) []float64 {
	i := (y*im.Width + x) * im.Channels
	return im.Pix[i : i+im.Channels]
}

// SameShape reports whether other has the same dimensions.
func (im *Image) SameShape(other *Image) bool {
	return im.Width == other.Width && im.Height == other.Height &&
		im.Channels == other.Channels && len(im.Pix) == len(other.Pix)
}
