package splat

import "fmt"

// RenderMode selects the channels a render call produces.
type RenderMode int

// Render modes.
const (
	ModeRGB     RenderMode = iota // color only
	ModeD                         // accumulated depth
	ModeED                        // expected depth (accumulated depth / alpha)
	ModeRGBD                      // color + accumulated depth
	ModeRGBED                     // color + expected depth
	ModeIndices                   // per-pixel contributing primitive indices
)

// String returns the mode name used in configuration files.
func (m RenderMode) String() string {
	switch m {
	case ModeRGB:
		return "RGB"
	case ModeD:
		return "D"
	case ModeED:
		return "ED"
	case ModeRGBD:
		return "RGB+D"
	case ModeRGBED:
		return "RGB+ED"
	case ModeIndices:
		return "indices"
	default:
		return fmt.Sprintf("RenderMode(%d)", int(m))
	}
}

// ParseRenderMode converts a configuration string to a RenderMode.
func ParseRenderMode(s string) (RenderMode, error) {
	switch s {
	case "", "RGB":
		return ModeRGB, nil
	case "D":
		return ModeD, nil
	case "ED":
		return ModeED, nil
	case "RGB+D":
		return ModeRGBD, nil
	case "RGB+ED":
		return ModeRGBED, nil
	case "indices":
		return ModeIndices, nil
	default:
		return ModeRGB, fmt.Errorf("%w: unknown render mode %q", ErrInvalidInput, s)
	}
}

// HasColor reports whether the mode renders color channels.
func (m RenderMode) HasColor() bool {
	return m == ModeRGB || m == ModeRGBD || m == ModeRGBED
}

// HasDepth reports whether the mode renders a depth channel.
func (m RenderMode) HasDepth() bool {
	return m == ModeD || m == ModeED || m == ModeRGBD || m == ModeRGBED
}

// ExpectedDepth reports whether depth is normalized by alpha.
func (m RenderMode) ExpectedDepth() bool {
	return m == ModeED || m == ModeRGBED
}
