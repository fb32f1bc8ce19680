// Package raster composites binned footprints front to back, one worker per
// tile, and replays the composite in reverse for gradients.
package raster

import (
	gomath "math"
	"sync/atomic"

	"github.com/Faultbox/gsplat/pkg/splat"
	"github.com/Faultbox/gsplat/pkg/splat/project"
	"github.com/Faultbox/gsplat/pkg/splat/tiles"
)

// Compositing defaults.
const (
	DefaultMinAlpha               = 1.0 / 255
	DefaultMaxAlpha               = 0.999
	DefaultTransmittanceThreshold = 1e-4
)

// Options holds the numerical settings of the composite.
type Options struct {
	// Contributions with alpha below MinAlpha are skipped.
	MinAlpha float64
	// Alpha is clamped to MaxAlpha so 1-alpha stays invertible. Backward
	// needs MaxAlpha < 1; Forward accepts 1.
	MaxAlpha float64
	// A pixel stops after the record that brings its transmittance down to
	// this value.
	TransmittanceThreshold float64

	// Background is composited behind every pixel, one value per channel.
	Background []float64

	// AbsGrad also accumulates the absolute per-pixel mean2d gradients.
	AbsGrad bool
}

// Defaults returns Options with the default thresholds.
func Defaults() Options {
	return Options{
		MinAlpha:               DefaultMinAlpha,
		MaxAlpha:               DefaultMaxAlpha,
		TransmittanceThreshold: DefaultTransmittanceThreshold,
	}
}

func (o *Options) fill() {
	if o.MinAlpha <= 0 {
		o.MinAlpha = DefaultMinAlpha
	}
	if o.MaxAlpha <= 0 {
		o.MaxAlpha = DefaultMaxAlpha
	}
	if o.TransmittanceThreshold <= 0 {
		o.TransmittanceThreshold = DefaultTransmittanceThreshold
	}
}

// Input is everything the composite reads. All of it is read-only.
type Input struct {
	Shape splat.Shape
	Set   *project.Set
	Bins  *tiles.Bins

	// Opacities is indexed by primitive (Set.GaussianIDs).
	Opacities []float64

	// Colors holds Channels values per slot.
	Colors   []float64
	Channels int
}

func (in *Input) color(slot int) []float64 {
	return in.Colors[slot*in.Channels : (slot+1)*in.Channels]
}

func (in *Input) opacity(slot int) float64 {
	return in.Opacities[in.Set.GaussianIDs[slot]]
}

// alphaAt evaluates the blend factor of a record at a pixel centre. ok is
// false when the record does not contribute there.
func (in *Input) alphaAt(opts *Options, slot int, px, py float64) (alpha, vis float64, ok bool) {
	sigma, ok := in.Shape.Sigma(&in.Set.Footprints[slot], px, py)
	if !ok {
		return 0, 0, false
	}
	vis = gomath.Exp(-sigma)
	alpha = min(opts.MaxAlpha, in.opacity(slot)*vis)
	if alpha < opts.MinAlpha {
		return 0, 0, false
	}
	return alpha, vis, true
}

// pixelIndex returns the flattened index of pixel (x, y) of view v.
func pixelIndex(g tiles.Grid, v, x, y int) int {
	return (v*g.Height+y)*g.Width + x
}

// atomicMax raises *p to v. Blend weights are non-negative.
func atomicMax(p *atomic.Uint64, v float64) {
	for {
		old := p.Load()
		if gomath.Float64frombits(old) >= v {
			return
		}
		if p.CompareAndSwap(old, gomath.Float64bits(v)) {
			return
		}
	}
}
