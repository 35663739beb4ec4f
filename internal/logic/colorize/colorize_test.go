package colorize

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/cjeanneret/DoorSnap/internal/hw/camera"
)

// grid is a row-major test grid.
type grid struct {
	w, h int
	v    []uint16
}

func (g grid) Bounds() image.Rectangle { return image.Rect(0, 0, g.w, g.h) }
func (g grid) Depth(x, y int) uint16   { return g.v[y*g.w+x] }

func TestNormalizeMinMax_Range(t *testing.T) {
	g := grid{w: 3, h: 1, v: []uint16{500, 1000, 1500}}
	out := NormalizeMinMax(g)

	want := []uint8{0, 128, 255}
	for i, w := range want {
		if got := out.GrayAt(i, 0).Y; got != w {
			t.Errorf("pixel %d = %d, want %d", i, got, w)
		}
	}
}

func TestNormalizeMinMax_Constant(t *testing.T) {
	g := grid{w: 2, h: 2, v: []uint16{42, 42, 42, 42}}
	out := NormalizeMinMax(g)
	for i, p := range out.Pix {
		if p != 0 {
			t.Errorf("pixel %d = %d, want 0 for constant input", i, p)
		}
	}
}

func TestNormalizeMinMax_FullRange(t *testing.T) {
	g := grid{w: 2, h: 1, v: []uint16{0, 65535}}
	out := NormalizeMinMax(g)
	if out.Pix[0] != 0 || out.Pix[1] != 255 {
		t.Errorf("got %v, want [0 255]", out.Pix)
	}
}

func TestNormalizeMinMax_Idempotent(t *testing.T) {
	f := camera.ConstantDepthFrame(64, 48, 0)
	for i := 0; i < len(f.Data); i += 2 {
		// pseudo-random but fixed pattern
		v := uint16((i*7919 + 13) % 9000)
		f.Data[i] = byte(v)
		f.Data[i+1] = byte(v >> 8)
	}
	view := f.Image()

	a := NormalizeMinMax(view)
	b := NormalizeMinMax(view)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("normalizing the same grid twice should give identical bytes")
	}

	ca := Depth(view)
	cb := Depth(view)
	if !bytes.Equal(ca.Pix, cb.Pix) {
		t.Error("colorizing the same grid twice should give identical bytes")
	}
}

func TestNormalizeMinMax_Bounds(t *testing.T) {
	g := grid{w: 5, h: 3, v: make([]uint16, 15)}
	out := NormalizeMinMax(g)
	if out.Bounds() != image.Rect(0, 0, 5, 3) {
		t.Errorf("bounds = %v, want 5x3", out.Bounds())
	}
}

func TestMinMax(t *testing.T) {
	lo, hi := MinMax(grid{w: 4, h: 1, v: []uint16{9, 3, 7, 11}})
	if lo != 3 || hi != 11 {
		t.Errorf("MinMax = (%d, %d), want (3, 11)", lo, hi)
	}
	lo, hi = MinMax(grid{})
	if lo != 0 || hi != 0 {
		t.Errorf("empty MinMax = (%d, %d), want (0, 0)", lo, hi)
	}
}

func TestJet_Endpoints(t *testing.T) {
	cases := []struct {
		v    uint8
		want color.RGBA
	}{
		{0, color.RGBA{R: 0, G: 0, B: 128, A: 255}},
		{255, color.RGBA{R: 128, G: 0, B: 0, A: 255}},
	}
	for _, tc := range cases {
		if got := Jet(tc.v); got != tc.want {
			t.Errorf("Jet(%d) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestJet_Midpoint(t *testing.T) {
	// The middle of the palette is green-dominant.
	c := Jet(128)
	if c.G != 255 {
		t.Errorf("Jet(128).G = %d, want 255", c.G)
	}
	if c.R > 200 || c.B > 200 {
		t.Errorf("Jet(128) = %v, expected red and blue below green", c)
	}
}

func TestApplyJet(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.Pix = []uint8{0, 255}
	out := ApplyJet(src)
	if got := out.RGBAAt(0, 0); got != Jet(0) {
		t.Errorf("pixel 0 = %v, want %v", got, Jet(0))
	}
	if got := out.RGBAAt(1, 0); got != Jet(255) {
		t.Errorf("pixel 1 = %v, want %v", got, Jet(255))
	}
}
