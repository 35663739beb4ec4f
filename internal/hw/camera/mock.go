package camera

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/cjeanneret/DoorSnap/internal/debug"
)

var errNotStarted = errors.New("camera: session not started")

// MockCamera is a synthetic camera that returns constant frames.
// Used for development on PC or testing.
type MockCamera struct {
	// BGR is the color written to every pixel of the color frame (blue, green, red).
	BGR [3]byte
	// Depth is the value written to every depth sample.
	Depth uint16

	profile Profile
	started bool
	frames  uint64
}

// NewMockCamera creates a synthetic camera with a mid-gray image and a flat 1 m depth plane.
func NewMockCamera() *MockCamera {
	return &MockCamera{BGR: [3]byte{128, 128, 128}, Depth: 1000}
}

func (m *MockCamera) Start(ctx context.Context, p Profile) error {
	debug.Verbose("Mock camera: start color=%s depth=%s", p.Color, p.Depth)
	m.profile = p
	m.started = true
	m.frames = 0
	return nil
}

func (m *MockCamera) WaitForFrames(ctx context.Context) (*FrameSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !m.started {
		return nil, errNotStarted
	}
	m.frames++
	debug.Trace("Mock camera: frame %d", m.frames)

	c := m.profile.Color
	d := m.profile.Depth
	return &FrameSet{
		Number: m.frames,
		Color:  SolidColorFrame(c.Width, c.Height, c.Format, m.BGR),
		Depth:  ConstantDepthFrame(d.Width, d.Height, m.Depth),
	}, nil
}

func (m *MockCamera) Stop() error {
	debug.Trace("Mock camera: stop")
	m.started = false
	return nil
}

// SolidColorFrame builds a tightly packed color frame filled with bgr
// (bytes are reordered when format is FormatRGB8).
func SolidColorFrame(width, height int, format PixelFormat, bgr [3]byte) *ColorFrame {
	px := bgr
	if format == FormatRGB8 {
		px = [3]byte{bgr[2], bgr[1], bgr[0]}
	}
	data := make([]byte, width*height*3)
	for i := 0; i < len(data); i += 3 {
		copy(data[i:i+3], px[:])
	}
	return &ColorFrame{Width: width, Height: height, Format: format, Data: data}
}

// ConstantDepthFrame builds a tightly packed Z16 frame filled with value.
func ConstantDepthFrame(width, height int, value uint16) *DepthFrame {
	data := make([]byte, width*height*2)
	for i := 0; i < len(data); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], value)
	}
	return &DepthFrame{Width: width, Height: height, Data: data}
}
