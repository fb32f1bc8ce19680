// Package splat defines the data contracts of the Gaussian splat rasterizer:
// primitives, cameras, projected footprints, render modes and image buffers.
//
// The pipeline stages live in the sub-packages sh, project, tiles, raster and
// render. Everything here is plain data plus validation.
package splat

import "errors"

// Pipeline errors.
var (
	// ErrInvalidInput is returned before any stage runs when primitives or
	// cameras contain non-finite values, mismatched lengths, non-positive
	// scales or a zero-size image.
	ErrInvalidInput = errors.New("invalid render input")

	// ErrShapeMismatch is returned by backward passes when the supplied
	// gradient buffers do not match the forward pass that produced them.
	ErrShapeMismatch = errors.New("gradient shape mismatch")

	// ErrTooManyIntersections is returned when the tile intersection count
	// exceeds the configured or addressable bound. Records are never truncated.
	ErrTooManyIntersections = errors.New("too many tile intersections")
)
