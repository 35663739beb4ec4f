package camera

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingFrame is returned when a frame set lacks a usable color or depth frame.
var ErrMissingFrame = errors.New("missing or invalid frame")

// PixelFormat names the layout of a stream's raw buffer.
type PixelFormat string

const (
	FormatBGR8 PixelFormat = "bgr8" // 3 bytes per pixel, blue first
	FormatRGB8 PixelFormat = "rgb8" // 3 bytes per pixel, red first
	FormatZ16  PixelFormat = "z16"  // 2 bytes per pixel, little-endian distance
)

// BytesPerPixel returns the size of one sample, or 0 for an unknown format.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatBGR8, FormatRGB8:
		return 3
	case FormatZ16:
		return 2
	default:
		return 0
	}
}

// StreamConfig describes one stream (resolution, pixel format and frame rate).
type StreamConfig struct {
	Width  int
	Height int
	FPS    int
	Format PixelFormat
}

func (s StreamConfig) String() string {
	return fmt.Sprintf("%dx%d %s@%d", s.Width, s.Height, s.Format, s.FPS)
}

// Profile is the stream negotiation request for a capture session.
// The color and depth resolutions need not match.
type Profile struct {
	Color StreamConfig
	Depth StreamConfig
}

// DefaultProfile matches the settings used by the door camera (RealSense D4xx).
func DefaultProfile() Profile {
	return Profile{
		Color: StreamConfig{Width: 1280, Height: 800, FPS: 30, Format: FormatBGR8},
		Depth: StreamConfig{Width: 1280, Height: 720, FPS: 30, Format: FormatZ16},
	}
}

// DepthCamera is the high-level interface used by the rest of the application.
// It represents an abstract color+depth camera, regardless of how it's
// reached (librealsense, V4L2, a synthetic source for tests, etc.).
type DepthCamera interface {
	// Start opens a capture session with the requested streams.
	Start(ctx context.Context, p Profile) error
	// WaitForFrames blocks until the next synchronized frame set is available.
	WaitForFrames(ctx context.Context) (*FrameSet, error)
	// Stop ends the capture session.
	Stop() error
}
