// Package snapshot converts rendered images to 8-bit pictures and saves them.
package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	gomath "math"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Faultbox/gsplat/pkg/splat"
)

// ErrUnknownFormat is returned for an output format other than png or bmp.
var ErrUnknownFormat = errors.New("unknown image format")

// Writer saves frames as numbered image files.
type Writer struct {
	outputDir string
	prefix    string
	format    string
	scale     float64
}

// NewWriter creates a writer for the given directory, filename prefix and
// format (png or bmp).
func NewWriter(outputDir, prefix, format string) (*Writer, error) {
	if format != "png" && format != "bmp" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return &Writer{
		outputDir: outputDir,
		prefix:    prefix,
		format:    format,
		scale:     1,
	}, nil
}

// SetScale sets the resample factor applied before encoding.
func (w *Writer) SetScale(scale float64) {
	w.scale = scale
}

// Filename returns the path frame index will be written to. suffix is
// appended to the frame number, e.g. "_depth".
func (w *Writer) Filename(index int, suffix string) string {
	filename := fmt.Sprintf("%s_%04d%s.%s", w.prefix, index, suffix, w.format)
	if w.outputDir != "" {
		filename = filepath.Join(w.outputDir, filename)
	}
	return filename
}

// Write encodes img to the file for frame index and returns its path.
func (w *Writer) Write(img image.Image, index int, suffix string) (string, error) {
	// Create output directory if needed
	if w.outputDir != "" {
		if err := os.MkdirAll(w.outputDir, 0755); err != nil {
			return "", fmt.Errorf("creating output dir: %w", err)
		}
	}

	if w.scale > 0 && w.scale != 1 {
		img = Resize(img, w.scale)
	}

	filename := w.Filename(index, suffix)
	if err := writeFile(filename, img, w.format); err != nil {
		return "", err
	}
	return filename, nil
}

func writeFile(filename string, img image.Image, format string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}

	buf := bufio.NewWriter(file)
	if err := Encode(buf, img, format); err != nil {
		file.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filename, err)
	}
	return nil
}

// Encode writes img as png or bmp.
func Encode(out io.Writer, img image.Image, format string) error {
	switch format {
	case "png":
		if err := png.Encode(out, img); err != nil {
			return fmt.Errorf("encoding PNG: %w", err)
		}
	case "bmp":
		if err := bmp.Encode(out, img); err != nil {
			return fmt.Errorf("encoding BMP: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return nil
}

func toByte(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(gomath.Round(v * 255))
}

// ColorImage converts a rendered color image to 8-bit RGBA. One channel
// renders as grey; extra channels beyond three are dropped. alpha may be
// nil, in which case the picture is opaque.
func ColorImage(im, alpha *splat.Image) (*image.NRGBA, error) {
	if im.Channels < 1 {
		return nil, fmt.Errorf("%w: image has no channels", splat.ErrInvalidInput)
	}
	if alpha != nil && (alpha.Width != im.Width || alpha.Height != im.Height || alpha.Channels != 1) {
		return nil, fmt.Errorf("%w: alpha is %dx%dx%d, image is %dx%d",
			splat.ErrInvalidInput, alpha.Width, alpha.Height, alpha.Channels, im.Width, im.Height)
	}

	out := image.NewNRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			px := im.Pixel(x, y)
			c := color.NRGBA{A: 255}
			if len(px) >= 3 {
				c.R, c.G, c.B = toByte(px[0]), toByte(px[1]), toByte(px[2])
			} else {
				c.R = toByte(px[0])
				c.G, c.B = c.R, c.R
			}
			if alpha != nil {
				c.A = toByte(alpha.At(x, y, 0))
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out, nil
}

// DepthImage maps a single-channel depth image to grey, near bright and far
// dark. Pixels whose alpha is below minAlpha, or whose depth is not
// positive, are black. alpha may be nil.
func DepthImage(depth, alpha *splat.Image, minAlpha float64) (*image.Gray, error) {
	if depth.Channels != 1 {
		return nil, fmt.Errorf("%w: depth image has %d channels", splat.ErrInvalidInput, depth.Channels)
	}
	covered := func(x, y int) bool {
		d := depth.At(x, y, 0)
		if !(d > 0) || gomath.IsInf(d, 0) {
			return false
		}
		return alpha == nil || alpha.At(x, y, 0) >= minAlpha
	}

	lo, hi := gomath.Inf(1), gomath.Inf(-1)
	for y := 0; y < depth.Height; y++ {
		for x := 0; x < depth.Width; x++ {
			if covered(x, y) {
				d := depth.At(x, y, 0)
				lo = min(lo, d)
				hi = max(hi, d)
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, depth.Width, depth.Height))
	span := hi - lo
	for y := 0; y < depth.Height; y++ {
		for x := 0; x < depth.Width; x++ {
			if !covered(x, y) {
				continue
			}
			v := 1.0
			if span > 0 {
				v = 1 - 0.8*(depth.At(x, y, 0)-lo)/span
			}
			out.SetGray(x, y, color.Gray{Y: toByte(v)})
		}
	}
	return out, nil
}

// Resize resamples img by scale with a Catmull-Rom filter.
func Resize(img image.Image, scale float64) *image.NRGBA {
	b := img.Bounds()
	w := max(1, int(gomath.Round(float64(b.Dx())*scale)))
	h := max(1, int(gomath.Round(float64(b.Dy())*scale)))
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// Label draws text in the top-left corner of img.
func Label(img *image.NRGBA, text string, col color.Color) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(4, 4+face.Ascent),
	}
	drawer.DrawString(text)
}
