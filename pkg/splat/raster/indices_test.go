package raster

import (
	"context"
	"errors"
	"testing"

	"github.com/Faultbox/gsplat/internal/parallel"
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

// opaqueScene adds a stack of near-opaque footprints over the ellipsoid
// scene so some pixels saturate.
func opaqueScene() *scene {
	s := ellipsoidScene()
	for i, depth := range []float64{0.5, 0.7, 0.9} {
		s.fps = append(s.fps, splat.Footprint{
			Mean2D: math.Vec2{X: 8 + float64(i), Y: 6}, Depth: depth, Radius: 6,
			Conic: math.Vec3{X: 0.02, Z: 0.02},
		})
		s.colors = append(s.colors, 0.1*float64(i), 0.5, 1)
		s.opacities = append(s.opacities, 0.995)
	}
	return s
}

func compareComposite(t *testing.T, frame *Frame, color, alpha []splat.Image) {
	t.Helper()
	for v := range frame.Color {
		for i, want := range frame.Color[v].Pix {
			if got := color[v].Pix[i]; got != want {
				t.Fatalf("view %d color %d: got %v, want %v", v, i, got, want)
			}
		}
		for i, want := range frame.Alpha[v].Pix {
			if got := alpha[v].Pix[i]; got != want {
				t.Fatalf("view %d alpha %d: got %v, want %v", v, i, got, want)
			}
		}
	}
}

func TestAccumulateMatchesForward(t *testing.T) {
	for name, s := range map[string]*scene{"translucent": ellipsoidScene(), "saturated": opaqueScene()} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			pool := parallel.New(3)
			defer pool.Close()

			in := s.input(t, pool)
			frame, err := Forward(ctx, pool, in, Defaults())
			if err != nil {
				t.Fatal(err)
			}
			hits, trans, err := IndicesInRange(ctx, pool, in, Defaults(), 0, len(in.Bins.Records), nil, 0, 1e10)
			if err != nil {
				t.Fatal(err)
			}
			if len(hits) == 0 {
				t.Fatal("no hits")
			}
			color, alpha, err := Accumulate(ctx, pool, in, Defaults(), hits)
			if err != nil {
				t.Fatal(err)
			}
			compareComposite(t, frame, color, alpha)

			for i, tr := range trans {
				if tr < 0 || tr > 1 {
					t.Fatalf("pixel %d transmittance %v", i, tr)
				}
			}
		})
	}
}

func TestIndicesSaturatedPixelsStop(t *testing.T) {
	ctx := context.Background()
	pool := parallel.New(2)
	defer pool.Close()

	in := opaqueScene().input(t, pool)
	_, trans, err := IndicesInRange(ctx, pool, in, Defaults(), 0, len(in.Bins.Records), nil, 0, 1e10)
	if err != nil {
		t.Fatal(err)
	}
	// Pixel (9, 6) sits under all three opaque layers.
	if got := trans[6*testW+9]; got != 0 {
		t.Fatalf("saturated transmittance = %v, want 0", got)
	}

	// A saturated pixel contributes nothing to later steps.
	hits, _, err := IndicesInRange(ctx, pool, in, Defaults(), 0, len(in.Bins.Records), trans, 0, 1e10)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.Pixel == 6*testW+9 {
			t.Fatalf("saturated pixel reported again: %+v", h)
		}
	}
}

func TestIndicesStepsCarryTransmittance(t *testing.T) {
	ctx := context.Background()
	pool := parallel.New(4)
	defer pool.Close()

	in := opaqueScene().input(t, pool)
	frame, err := Forward(ctx, pool, in, Defaults())
	if err != nil {
		t.Fatal(err)
	}

	var hits []Hit
	var trans []float64
	for _, step := range [][2]int{{0, 2}, {2, 3}, {3, len(in.Bins.Records)}} {
		h, tr, err := IndicesInRange(ctx, pool, in, Defaults(), step[0], step[1], trans, 0, 1e10)
		if err != nil {
			t.Fatal(err)
		}
		hits = append(hits, h...)
		trans = tr
	}
	color, alpha, err := Accumulate(ctx, pool, in, Defaults(), hits)
	if err != nil {
		t.Fatal(err)
	}
	compareComposite(t, frame, color, alpha)
}

func TestIndicesDepthRange(t *testing.T) {
	ctx := context.Background()
	pool := parallel.New(2)
	defer pool.Close()

	in := ellipsoidScene().input(t, pool)
	hits, _, err := IndicesInRange(ctx, pool, in, Defaults(), 0, len(in.Bins.Records), nil, 1.8, 2.8)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		d := in.Set.Footprints[h.Slot].Depth
		if d <= 1.8 || d >= 2.8 {
			t.Fatalf("hit %+v has depth %v outside range", h, d)
		}
	}

	// Only slots 0 and 3 lie in the range; composite them alone.
	s := ellipsoidScene()
	s.fps = []splat.Footprint{s.fps[0], s.fps[3]}
	s.colors = append(append([]float64(nil), s.colors[0:3]...), s.colors[9:12]...)
	s.opacities = []float64{s.opacities[0], s.opacities[3]}
	frame, err := Forward(ctx, pool, s.input(t, pool), Defaults())
	if err != nil {
		t.Fatal(err)
	}
	color, alpha, err := Accumulate(ctx, pool, in, Defaults(), hits)
	if err != nil {
		t.Fatal(err)
	}
	compareComposite(t, frame, color, alpha)
}

func TestAccumulateRejectsBadHits(t *testing.T) {
	pool := parallel.New(1)
	defer pool.Close()

	in := ellipsoidScene().input(t, pool)
	for _, h := range []Hit{{Slot: -1}, {Slot: 99}, {Slot: 0, Pixel: testW * testH}} {
		if _, _, err := Accumulate(context.Background(), pool, in, Defaults(), []Hit{h}); !errors.Is(err, splat.ErrInvalidInput) {
			t.Errorf("hit %+v: err = %v, want ErrInvalidInput", h, err)
		}
	}
}

func TestIndicesTransmittanceShape(t *testing.T) {
	pool := parallel.New(1)
	defer pool.Close()

	in := ellipsoidScene().input(t, pool)
	_, _, err := IndicesInRange(context.Background(), pool, in, Defaults(), 0, 1, make([]float64, 3), 0, 1e10)
	if !errors.Is(err, splat.ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch", err)
	}
}
