package project

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/Faultbox/gsplat/internal/parallel"
	"github.com/Faultbox/gsplat/pkg/math"
	"github.com/Faultbox/gsplat/pkg/splat"
)

func randomGaussians(n int, seed int64) *splat.Gaussians {
	rng := rand.New(rand.NewSource(seed))
	g := &splat.Gaussians{
		Means:     make([]math.Vec3, n),
		Quats:     make([]math.Quat, n),
		Scales:    make([]math.Vec3, n),
		Opacities: make([]float64, n),
		Channels:  3,
		Colors:    make([]float64, 3*n),
		SHDegree:  splat.FlatColors,
	}
	for i := 0; i < n; i++ {
		g.Means[i] = math.Vec3{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1, Z: rng.Float64()*2 - 1}
		g.Quats[i] = math.Quat{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5, Z: rng.Float64() - 0.5, W: rng.Float64() + 0.5}
		g.Scales[i] = math.Vec3{X: 0.02 + 0.1*rng.Float64(), Y: 0.02 + 0.1*rng.Float64(), Z: 0.02 + 0.1*rng.Float64()}
		g.Opacities[i] = rng.Float64()
	}
	for i := range g.Colors {
		g.Colors[i] = rng.Float64()
	}
	return g
}

func TestProjectDenseAndPacked(t *testing.T) {
	pool := parallel.New(4)
	defer pool.Close()

	g := randomGaussians(200, 1)
	far := testCamera()
	far.Viewmat = math.LookAt(math.Vec3{X: 2, Y: 1, Z: -6}, math.Vec3{}, math.Vec3{Y: 1})
	views := []View{
		{Camera: testCamera(), First: 0, Count: 120},
		{Camera: far, First: 80, Count: 120},
	}
	opts := Options{ProjectOptions: testOptions()}

	dense, err := Project(context.Background(), pool, Ellipsoid{}, g, views, opts)
	if err != nil {
		t.Fatal(err)
	}
	if dense.Len() != 240 || dense.ViewStarts[1] != 120 || dense.ViewStarts[2] != 240 {
		t.Fatalf("dense layout: len %d, starts %v", dense.Len(), dense.ViewStarts)
	}
	if dense.GaussianIDs[120] != 80 || dense.ViewIDs[120] != 1 {
		t.Errorf("slot 120 maps to gaussian %d view %d", dense.GaussianIDs[120], dense.ViewIDs[120])
	}

	opts.Packed = true
	packed, err := Project(context.Background(), pool, Ellipsoid{}, g, views, opts)
	if err != nil {
		t.Fatal(err)
	}
	if packed.Len() != dense.Visible() || packed.Len() == 0 {
		t.Fatalf("packed has %d slots, dense has %d visible", packed.Len(), dense.Visible())
	}

	j := 0
	for slot, fp := range dense.Footprints {
		if !fp.Visible() {
			continue
		}
		if packed.Footprints[j] != fp || packed.GaussianIDs[j] != dense.GaussianIDs[slot] || packed.ViewIDs[j] != dense.ViewIDs[slot] {
			t.Fatalf("packed slot %d differs from dense slot %d", j, slot)
		}
		j++
	}
	for v := range views {
		for slot := packed.ViewStarts[v]; slot < packed.ViewStarts[v+1]; slot++ {
			if packed.ViewIDs[slot] != v {
				t.Fatalf("packed slot %d in view %d range belongs to view %d", slot, v, packed.ViewIDs[slot])
			}
		}
	}
}

func TestProjectRejectsBadViews(t *testing.T) {
	pool := parallel.New(1)
	defer pool.Close()

	g := randomGaussians(10, 1)
	_, err := Project(context.Background(), pool, Ellipsoid{}, g, []View{{Camera: testCamera(), First: 5, Count: 10}}, Options{})
	if !errors.Is(err, splat.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestProjectCancelled(t *testing.T) {
	pool := parallel.New(1)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := randomGaussians(10, 1)
	if _, err := Project(ctx, pool, Ellipsoid{}, g, []View{{Camera: testCamera(), Count: 10}}, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func slotGrads(set *Set, seed int64) []SlotGrad {
	rng := rand.New(rand.NewSource(seed))
	out := make([]SlotGrad, set.Len())
	for i := range out {
		out[i].Footprint = splat.FootprintGrad{
			Mean2D: math.Vec2{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5},
			Depth:  rng.Float64() - 0.5,
			Conic:  math.Vec3{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()},
		}
		out[i].Mean = math.Vec3{X: 0.01 * float64(i%3)}
	}
	return out
}

func TestSetBackwardReducesPerSlot(t *testing.T) {
	pool := parallel.New(4)
	defer pool.Close()

	g := randomGaussians(60, 2)
	views := []View{{Camera: testCamera(), Count: 60}, {Camera: testCamera(), First: 0, Count: 60}}
	opts := Options{ProjectOptions: testOptions()}
	set, err := Project(context.Background(), pool, Ellipsoid{}, g, views, opts)
	if err != nil {
		t.Fatal(err)
	}
	vSlots := slotGrads(set, 3)
	grads, err := set.Backward(context.Background(), pool, g, opts, vSlots)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < g.Len(); i++ {
		var want math.Vec3
		for _, slot := range []int{i, 60 + i} {
			if set.Footprints[slot].Visible() {
				pg := Ellipsoid{}.ProjectBackward(set.input(g, slot), opts.ProjectOptions, vSlots[slot].Footprint)
				want = want.Add(pg.Mean)
			}
			want = want.Add(vSlots[slot].Mean)
		}
		if grads.Means[i].Distance(want) > 1e-9 {
			t.Fatalf("gaussian %d: mean grad %v, want %v", i, grads.Means[i], want)
		}
	}
	if grads.Viewmats[0] == (math.Mat4{}) {
		t.Error("viewmat gradient of view 0 is zero")
	}
}

func TestSetBackwardPackedMatchesDense(t *testing.T) {
	pool := parallel.New(3)
	defer pool.Close()

	g := randomGaussians(80, 4)
	views := []View{{Camera: testCamera(), Count: 80}}
	opts := Options{ProjectOptions: testOptions()}
	dense, err := Project(context.Background(), pool, Surfel{}, g, views, opts)
	if err != nil {
		t.Fatal(err)
	}
	opts.Packed = true
	packed, err := Project(context.Background(), pool, Surfel{}, g, views, opts)
	if err != nil {
		t.Fatal(err)
	}

	vDense := slotGrads(dense, 9)
	for i := range vDense {
		vDense[i].Mean = math.Vec3{}
		if !dense.Footprints[i].Visible() {
			vDense[i] = SlotGrad{}
		}
	}
	vPacked := make([]SlotGrad, 0, packed.Len())
	for i := range vDense {
		if dense.Footprints[i].Visible() {
			vPacked = append(vPacked, vDense[i])
		}
	}

	a, err := dense.Backward(context.Background(), pool, g, opts, vDense)
	if err != nil {
		t.Fatal(err)
	}
	b, err := packed.Backward(context.Background(), pool, g, opts, vPacked)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Means {
		if a.Means[i] != b.Means[i] || a.Quats[i] != b.Quats[i] || a.Scales[i] != b.Scales[i] {
			t.Fatalf("gaussian %d: dense and packed gradients differ", i)
		}
	}
}

func TestSetBackwardShapeMismatch(t *testing.T) {
	pool := parallel.New(1)
	defer pool.Close()

	g := randomGaussians(5, 1)
	set, err := Project(context.Background(), pool, Ellipsoid{}, g, []View{{Camera: testCamera(), Count: 5}}, Options{ProjectOptions: testOptions()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := set.Backward(context.Background(), pool, g, Options{}, make([]SlotGrad, 3)); !errors.Is(err, splat.ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch", err)
	}
}

func TestSetBackwardRollingShutter(t *testing.T) {
	pool := parallel.New(2)
	defer pool.Close()

	start := cameraPose(math.Vec3{X: 0.3, Y: -0.2, Z: -4})
	end := cameraPose(math.Vec3{X: 0.4, Y: -0.1, Z: -4})
	cam := rollingCamera(start, end, splat.RollingTopToBottom)

	g := randomGaussians(30, 6)
	opts := Options{ProjectOptions: testOptions()}
	set, err := Project(context.Background(), pool, Ellipsoid{}, g, []View{{Camera: cam, Count: 30}}, opts)
	if err != nil {
		t.Fatal(err)
	}
	grads, err := set.Backward(context.Background(), pool, g, opts, slotGrads(set, 2))
	if err != nil {
		t.Fatal(err)
	}
	if grads.Viewmats[0] != (math.Mat4{}) {
		t.Error("rolling view reported a global viewmat gradient")
	}
	if grads.ShutterStart[0] == (PoseGrad{}) || grads.ShutterEnd[0] == (PoseGrad{}) {
		t.Error("rolling view has no pose gradients")
	}
}
