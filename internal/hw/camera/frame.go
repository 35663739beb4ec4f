package camera

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

// ColorFrame is a raw 3-channel, 8-bit-per-channel frame as delivered by the driver.
// Data is owned by the driver; Stride 0 means tightly packed rows.
type ColorFrame struct {
	Width  int
	Height int
	Stride int
	Format PixelFormat
	Data   []byte
}

// DepthFrame is a raw single-channel 16-bit depth frame (Z16, little-endian).
type DepthFrame struct {
	Width  int
	Height int
	Stride int
	Data   []byte
}

// FrameSet is one synchronized color+depth capture.
type FrameSet struct {
	Number uint64
	Color  *ColorFrame
	Depth  *DepthFrame
}

// Validate checks that both frames are present and usable.
func (fs *FrameSet) Validate() error {
	if fs == nil {
		return fmt.Errorf("%w: no frame set", ErrMissingFrame)
	}
	if err := fs.Color.validate(); err != nil {
		return fmt.Errorf("color: %w", err)
	}
	if err := fs.Depth.validate(); err != nil {
		return fmt.Errorf("depth: %w", err)
	}
	return nil
}

func (f *ColorFrame) stride() int {
	if f.Stride > 0 {
		return f.Stride
	}
	return f.Width * 3
}

func (f *ColorFrame) validate() error {
	if f == nil {
		return fmt.Errorf("%w: absent", ErrMissingFrame)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrMissingFrame, f.Width, f.Height)
	}
	if f.Format != FormatBGR8 && f.Format != FormatRGB8 {
		return fmt.Errorf("%w: unsupported color format %q", ErrMissingFrame, f.Format)
	}
	if f.Stride > 0 && f.Stride < f.Width*3 {
		return fmt.Errorf("%w: stride %d shorter than a %d pixel row", ErrMissingFrame, f.Stride, f.Width)
	}
	if need := f.stride()*(f.Height-1) + f.Width*3; len(f.Data) < need {
		return fmt.Errorf("%w: buffer has %d bytes, need %d", ErrMissingFrame, len(f.Data), need)
	}
	return nil
}

// Image returns a view over the frame buffer. No pixels are copied, so the
// view is only valid while the driver keeps the buffer alive.
func (f *ColorFrame) Image() *ColorView {
	return &ColorView{
		Pix:    f.Data,
		Stride: f.stride(),
		Rect:   image.Rect(0, 0, f.Width, f.Height),
		BGR:    f.Format == FormatBGR8,
	}
}

// Clone returns a frame backed by its own copy of the buffer.
func (f *ColorFrame) Clone() *ColorFrame {
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return &c
}

func (f *DepthFrame) stride() int {
	if f.Stride > 0 {
		return f.Stride
	}
	return f.Width * 2
}

func (f *DepthFrame) validate() error {
	if f == nil {
		return fmt.Errorf("%w: absent", ErrMissingFrame)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrMissingFrame, f.Width, f.Height)
	}
	if f.Stride > 0 && f.Stride < f.Width*2 {
		return fmt.Errorf("%w: stride %d shorter than a %d pixel row", ErrMissingFrame, f.Stride, f.Width)
	}
	if need := f.stride()*(f.Height-1) + f.Width*2; len(f.Data) < need {
		return fmt.Errorf("%w: buffer has %d bytes, need %d", ErrMissingFrame, len(f.Data), need)
	}
	return nil
}

// Image returns a 16-bit view over the frame buffer. Same lifetime rule as ColorFrame.Image.
func (f *DepthFrame) Image() *DepthView {
	return &DepthView{
		Pix:    f.Data,
		Stride: f.stride(),
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Clone returns a frame backed by its own copy of the buffer.
func (f *DepthFrame) Clone() *DepthFrame {
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return &c
}

// ColorView is an image.Image over a packed BGR8 or RGB8 buffer.
type ColorView struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
	BGR    bool
}

func (v *ColorView) ColorModel() color.Model { return color.RGBAModel }

func (v *ColorView) Bounds() image.Rectangle { return v.Rect }

func (v *ColorView) At(x, y int) color.Color {
	return v.RGBAAt(x, y)
}

// RGBAAt returns the pixel at (x, y) in RGB order.
func (v *ColorView) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(v.Rect)) {
		return color.RGBA{}
	}
	i := (y-v.Rect.Min.Y)*v.Stride + (x-v.Rect.Min.X)*3
	p := v.Pix[i : i+3 : i+3]
	if v.BGR {
		return color.RGBA{R: p[2], G: p[1], B: p[0], A: 0xff}
	}
	return color.RGBA{R: p[0], G: p[1], B: p[2], A: 0xff}
}

// DepthView is an image.Image over a Z16 buffer.
type DepthView struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
}

func (v *DepthView) ColorModel() color.Model { return color.Gray16Model }

func (v *DepthView) Bounds() image.Rectangle { return v.Rect }

func (v *DepthView) At(x, y int) color.Color {
	return color.Gray16{Y: v.Depth(x, y)}
}

// Depth returns the raw distance sample at (x, y).
func (v *DepthView) Depth(x, y int) uint16 {
	if !(image.Point{x, y}.In(v.Rect)) {
		return 0
	}
	i := (y-v.Rect.Min.Y)*v.Stride + (x-v.Rect.Min.X)*2
	return binary.LittleEndian.Uint16(v.Pix[i : i+2])
}
