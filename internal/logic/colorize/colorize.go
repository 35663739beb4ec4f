// Package colorize turns a 16-bit depth grid into a false-color image:
// min-max normalization to 8 bits followed by a fixed jet palette.
package colorize

import (
	"image"
	"image/color"
	"math"
)

// Grid16 is a single-channel 16-bit grid such as camera.DepthView.
type Grid16 interface {
	Bounds() image.Rectangle
	Depth(x, y int) uint16
}

// MinMax returns the smallest and largest sample of g.
// An empty grid returns (0, 0).
func MinMax(g Grid16) (lo, hi uint16) {
	b := g.Bounds()
	if b.Empty() {
		return 0, 0
	}
	lo, hi = math.MaxUint16, 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := g.Depth(x, y)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

// NormalizeMinMax linearly maps the grid's range onto 0..255 (min -> 0, max -> 255),
// rounding to nearest. A constant grid maps to all zeros.
func NormalizeMinMax(g Grid16) *image.Gray {
	b := g.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	lo, hi := MinMax(g)
	span := uint32(hi) - uint32(lo)
	if span == 0 {
		return dst
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := dst.Pix[(y-b.Min.Y)*dst.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			d := uint32(g.Depth(x, y)) - uint32(lo)
			row[x-b.Min.X] = uint8((d*510 + span) / (2 * span))
		}
	}
	return dst
}

var jet = buildJet()

func buildJet() [256]color.RGBA {
	var lut [256]color.RGBA
	for i := range lut {
		x := float64(i) / 255
		lut[i] = color.RGBA{
			R: channel(1.5 - math.Abs(4*x-3)),
			G: channel(1.5 - math.Abs(4*x-2)),
			B: channel(1.5 - math.Abs(4*x-1)),
			A: 0xff,
		}
	}
	return lut
}

func channel(v float64) uint8 {
	v = math.Max(0, math.Min(1, v))
	return uint8(math.Round(v * 255))
}

// Jet returns the palette color for v: dark blue (near) through cyan,
// yellow to dark red (far).
func Jet(v uint8) color.RGBA {
	return jet[v]
}

// ApplyJet maps every gray level of src through the jet palette.
func ApplyJet(src *image.Gray) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetRGBA(x, y, jet[src.GrayAt(x, y).Y])
		}
	}
	return dst
}

// Depth renders g as a false-color image.
func Depth(g Grid16) *image.RGBA {
	return ApplyJet(NormalizeMinMax(g))
}
