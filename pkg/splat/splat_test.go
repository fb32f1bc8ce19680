package splat

import (
	"errors"
	gomath "math"
	"testing"

	"github.com/Faultbox/gsplat/pkg/math"
)

func validGaussians() *Gaussians {
	return &Gaussians{
		Means:     []math.Vec3{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 2, Z: 3}},
		Quats:     []math.Quat{math.QuatIdentity(), {X: 0.1, Y: 0.2, Z: 0.3, W: 0.9}},
		Scales:    []math.Vec3{{X: 0.1, Y: 0.2, Z: 0.3}, {X: 1, Y: 1, Z: 1}},
		Opacities: []float64{0.5, 1},
		SH:        make([]math.Vec3, 2*4),
		SHDegree:  1,
		Bases:     4,
	}
}

func TestGaussiansValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(g *Gaussians)
		planar  bool
		wantErr bool
	}{
		{name: "valid", mutate: func(*Gaussians) {}},
		{name: "short quats", mutate: func(g *Gaussians) { g.Quats = g.Quats[:1] }, wantErr: true},
		{name: "nan mean", mutate: func(g *Gaussians) { g.Means[1].X = gomath.NaN() }, wantErr: true},
		{name: "zero quat", mutate: func(g *Gaussians) { g.Quats[0] = math.Quat{} }, wantErr: true},
		{name: "negative scale", mutate: func(g *Gaussians) { g.Scales[0].Y = -1 }, wantErr: true},
		{name: "zero third scale", mutate: func(g *Gaussians) { g.Scales[0].Z = 0 }, wantErr: true},
		{name: "zero third scale planar", mutate: func(g *Gaussians) { g.Scales[0].Z = 0 }, planar: true},
		{name: "opacity above one", mutate: func(g *Gaussians) { g.Opacities[1] = 1.5 }, wantErr: true},
		{name: "degree too high", mutate: func(g *Gaussians) { g.SHDegree = 5 }, wantErr: true},
		{name: "too few bases", mutate: func(g *Gaussians) { g.SHDegree = 2 }, wantErr: true},
		{name: "sh length", mutate: func(g *Gaussians) { g.SH = g.SH[:7] }, wantErr: true},
		{name: "infinite sh", mutate: func(g *Gaussians) { g.SH[3].Z = gomath.Inf(1) }, wantErr: true},
		{name: "flat colors", mutate: func(g *Gaussians) {
			g.SHDegree = FlatColors
			g.Channels = 5
			g.Colors = make([]float64, 10)
		}},
		{name: "flat colors wrong length", mutate: func(g *Gaussians) {
			g.SHDegree = FlatColors
			g.Channels = 5
			g.Colors = make([]float64, 9)
		}, wantErr: true},
		{name: "flat colors without channels", mutate: func(g *Gaussians) {
			g.SHDegree = FlatColors
		}, wantErr: true},
		{name: "per view sh", mutate: func(g *Gaussians) {
			g.PerView = true
			g.SH = make([]math.Vec3, 3*2*4)
		}},
		{name: "per view sh short", mutate: func(g *Gaussians) { g.PerView = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := validGaussians()
			tt.mutate(g)
			err := g.Validate(3, tt.planar)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("err = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestGaussiansColorAccess(t *testing.T) {
	g := &Gaussians{
		Means:    make([]math.Vec3, 2),
		Colors:   []float64{1, 2, 3, 4, 5, 6, 7, 8},
		Channels: 2,
		SHDegree: FlatColors,
		PerView:  true,
	}
	if got := g.FlatColor(1, 0); got[0] != 5 || got[1] != 6 {
		t.Errorf("FlatColor(1, 0) = %v, want [5 6]", got)
	}
	if g.UsesSH() || g.ColorChannels() != 2 {
		t.Errorf("flat colors misreported: sh %v, channels %d", g.UsesSH(), g.ColorChannels())
	}
}

func TestGaussiansSubset(t *testing.T) {
	g := validGaussians()
	g.PerView = true
	g.SH = make([]math.Vec3, 2*2*4)
	for i := range g.SH {
		g.SH[i].X = float64(i)
	}

	sub := g.Subset([]int{1})
	if sub.Len() != 1 || sub.Means[0] != g.Means[1] || sub.Opacities[0] != 1 {
		t.Fatalf("subset kept wrong primitive: %+v", sub.Means)
	}
	if err := sub.Validate(2, false); err != nil {
		t.Fatalf("subset invalid: %v", err)
	}
	// camera 1, primitive 1 starts at coefficient (1*2+1)*4
	if got := sub.Coeffs(1, 0)[0].X; got != 12 {
		t.Errorf("camera 1 coefficient = %v, want 12", got)
	}

	flat := &Gaussians{
		Means:     make([]math.Vec3, 3),
		Quats:     make([]math.Quat, 3),
		Scales:    make([]math.Vec3, 3),
		Opacities: make([]float64, 3),
		Colors:    []float64{0, 1, 2, 3, 4, 5},
		Channels:  2,
		SHDegree:  FlatColors,
	}
	sub = flat.Subset([]int{2, 0})
	want := []float64{4, 5, 0, 1}
	for i := range want {
		if sub.Colors[i] != want[i] {
			t.Fatalf("colors = %v, want %v", sub.Colors, want)
		}
	}
}

func TestGaussiansBounds(t *testing.T) {
	g := validGaussians()
	lo, hi := g.Bounds()
	if lo != (math.Vec3{X: 0, Y: 0, Z: 1}) || hi != (math.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("bounds = %v, %v", lo, hi)
	}
	lo, hi = (&Gaussians{}).Bounds()
	if lo != (math.Vec3{}) || hi != (math.Vec3{}) {
		t.Errorf("empty bounds = %v, %v", lo, hi)
	}
}

func testCamera() Camera {
	return Camera{
		Viewmat: math.Identity(),
		K:       Intrinsics{Fx: 100, Fy: 100, Cx: 32, Cy: 24},
		Width:   64,
		Height:  48,
	}
}

func TestCameraValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Camera)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Camera) {}},
		{name: "zero width", mutate: func(c *Camera) { c.Width = 0 }, wantErr: true},
		{name: "negative focal", mutate: func(c *Camera) { c.K.Fx = -1 }, wantErr: true},
		{name: "nan principal point", mutate: func(c *Camera) { c.K.Cy = gomath.NaN() }, wantErr: true},
		{name: "infinite viewmat", mutate: func(c *Camera) { c.Viewmat[12] = gomath.Inf(-1) }, wantErr: true},
		{name: "rolling shutter", mutate: func(c *Camera) {
			c.Shutter = &RollingShutter{
				Type:  RollingTopToBottom,
				Start: Pose{Rotation: math.QuatIdentity()},
				End:   Pose{Rotation: math.QuatIdentity(), Translation: math.Vec3{X: 0.1}},
			}
		}},
		{name: "degenerate shutter rotation", mutate: func(c *Camera) {
			c.Shutter = &RollingShutter{Type: RollingLeftToRight, Start: Pose{Rotation: math.QuatIdentity()}}
		}, wantErr: true},
		{name: "row hints", mutate: func(c *Camera) {
			c.Shutter = &RollingShutter{
				Type:    RollingTopToBottom,
				Start:   Pose{Rotation: math.QuatIdentity()},
				End:     Pose{Rotation: math.QuatIdentity()},
				RowHint: []float64{0, 0.5, 1},
			}
		}},
		{name: "nan row hint", mutate: func(c *Camera) {
			c.Shutter = &RollingShutter{
				Type:    RollingTopToBottom,
				Start:   Pose{Rotation: math.QuatIdentity()},
				End:     Pose{Rotation: math.QuatIdentity()},
				RowHint: []float64{gomath.NaN(), 0.5, 0.5},
			}
		}, wantErr: true},
		{name: "infinite row hint", mutate: func(c *Camera) {
			c.Shutter = &RollingShutter{
				Type:    RollingTopToBottom,
				Start:   Pose{Rotation: math.QuatIdentity()},
				End:     Pose{Rotation: math.QuatIdentity()},
				RowHint: []float64{0.5, gomath.Inf(1)},
			}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCamera()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestValidateCameras(t *testing.T) {
	if err := ValidateCameras(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("no cameras: err = %v", err)
	}
	a, b := testCamera(), testCamera()
	if err := ValidateCameras([]Camera{a, b}); err != nil {
		t.Errorf("matching cameras: %v", err)
	}
	b.Width = 32
	if err := ValidateCameras([]Camera{a, b}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("size mismatch: err = %v", err)
	}
}

func TestRollingShutterPoseAt(t *testing.T) {
	rs := &RollingShutter{
		Type:  RollingTopToBottom,
		Start: Pose{Rotation: math.QuatIdentity(), Translation: math.Vec3{X: 0}},
		End:   Pose{Rotation: math.QuatIdentity(), Translation: math.Vec3{X: 2}},
	}
	p := rs.PoseAt(0.25)
	if gomath.Abs(p.Translation.X-0.5) > 1e-12 {
		t.Errorf("translation = %v, want 0.5", p.Translation.X)
	}
	cam := testCamera()
	if cam.IsRolling() {
		t.Error("global camera reports rolling")
	}
	cam.Shutter = rs
	if !cam.IsRolling() {
		t.Error("rolling camera reports global")
	}
}

func TestParseRenderMode(t *testing.T) {
	for _, m := range []RenderMode{ModeRGB, ModeD, ModeED, ModeRGBD, ModeRGBED, ModeIndices} {
		got, err := ParseRenderMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseRenderMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseRenderMode("RGBA"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown mode: err = %v", err)
	}

	tests := []struct {
		mode                  RenderMode
		color, depth, expects bool
	}{
		{ModeRGB, true, false, false},
		{ModeD, false, true, false},
		{ModeED, false, true, true},
		{ModeRGBD, true, true, false},
		{ModeRGBED, true, true, true},
		{ModeIndices, false, false, false},
	}
	for _, tt := range tests {
		if tt.mode.HasColor() != tt.color || tt.mode.HasDepth() != tt.depth || tt.mode.ExpectedDepth() != tt.expects {
			t.Errorf("%v: color %v depth %v expected %v", tt.mode, tt.mode.HasColor(), tt.mode.HasDepth(), tt.mode.ExpectedDepth())
		}
	}
}

func TestParseCameraModel(t *testing.T) {
	for in, want := range map[string]CameraModel{"": Pinhole, "pinhole": Pinhole, "ortho": Orthographic, "orthographic": Orthographic} {
		got, err := ParseCameraModel(in)
		if err != nil || got != want {
			t.Errorf("ParseCameraModel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseCameraModel("fisheye"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("fisheye: err = %v", err)
	}
}

func TestImage(t *testing.T) {
	im := NewImage(4, 3, 2)
	if len(im.Pix) != 24 {
		t.Fatalf("len(Pix) = %d, want 24", len(im.Pix))
	}
	im.Pixel(2, 1)[1] = 7
	if im.At(2, 1, 1) != 7 || im.Pix[im.Index(2, 1, 1)] != 7 {
		t.Error("Pixel and At disagree")
	}
	other := NewImage(4, 3, 1)
	if im.SameShape(&other) {
		t.Error("different channel counts reported as same shape")
	}
}

func TestFootprintGradAdd(t *testing.T) {
	g := FootprintGrad{Mean2D: math.Vec2{X: 1}, Depth: 2}
	g.Add(&FootprintGrad{Mean2D: math.Vec2{X: 1, Y: 3}, Depth: 1, Conic: math.Vec3{Z: 4}})
	if g.Mean2D != (math.Vec2{X: 2, Y: 3}) || g.Depth != 3 || g.Conic.Z != 4 {
		t.Errorf("Add = %+v", g)
	}
}
