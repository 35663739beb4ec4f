// Package uvc reads a RealSense-style depth camera through its V4L2 video
// nodes using OpenCV. The color node delivers BGR frames; the depth node is
// opened with RGB conversion disabled so the raw Z16 samples come through.
package uvc

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"github.com/cjeanneret/DoorSnap/internal/debug"
	"github.com/cjeanneret/DoorSnap/internal/hw/camera"
)

// Camera implements camera.DepthCamera over two V4L2 devices.
type Camera struct {
	colorDevice string
	depthDevice string

	color    *gocv.VideoCapture
	depth    *gocv.VideoCapture
	colorMat gocv.Mat
	depthMat gocv.Mat
	frames   uint64
}

// New creates a camera for the given color and depth device paths (e.g. /dev/video4, /dev/video0).
func New(colorDevice, depthDevice string) *Camera {
	return &Camera{colorDevice: colorDevice, depthDevice: depthDevice}
}

func (c *Camera) Start(ctx context.Context, p camera.Profile) error {
	if p.Color.Format != camera.FormatBGR8 {
		return fmt.Errorf("uvc: color format %q not supported, OpenCV delivers bgr8", p.Color.Format)
	}
	if p.Depth.Format != camera.FormatZ16 {
		return fmt.Errorf("uvc: depth format %q not supported", p.Depth.Format)
	}

	debug.Verbose("UVC: opening color %s (%s)", c.colorDevice, p.Color)
	color, err := gocv.OpenVideoCaptureWithAPI(c.colorDevice, gocv.VideoCaptureV4L2)
	if err != nil {
		return fmt.Errorf("open color device %s: %w", c.colorDevice, err)
	}
	configure(color, p.Color)

	debug.Verbose("UVC: opening depth %s (%s)", c.depthDevice, p.Depth)
	depth, err := gocv.OpenVideoCaptureWithAPI(c.depthDevice, gocv.VideoCaptureV4L2)
	if err != nil {
		color.Close()
		return fmt.Errorf("open depth device %s: %w", c.depthDevice, err)
	}
	depth.Set(gocv.VideoCaptureFOURCC, depth.ToCodec("Z16 "))
	depth.Set(gocv.VideoCaptureConvertRGB, 0)
	configure(depth, p.Depth)

	c.color = color
	c.depth = depth
	c.colorMat = gocv.NewMat()
	c.depthMat = gocv.NewMat()
	c.frames = 0
	return nil
}

func configure(vc *gocv.VideoCapture, s camera.StreamConfig) {
	vc.Set(gocv.VideoCaptureFrameWidth, float64(s.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(s.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(s.FPS))
}

// WaitForFrames reads one frame from each node. A node that returns no
// frame leaves its side of the FrameSet nil. The returned buffers point into
// the camera's Mats and are overwritten by the next call.
func (c *Camera) WaitForFrames(ctx context.Context) (*camera.FrameSet, error) {
	if c.color == nil || c.depth == nil {
		return nil, errors.New("uvc: session not started")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.frames++
	fs := &camera.FrameSet{Number: c.frames}

	if c.color.Read(&c.colorMat) && !c.colorMat.Empty() && c.colorMat.Type() == gocv.MatTypeCV8UC3 {
		data, err := c.colorMat.DataPtrUint8()
		if err != nil {
			return nil, fmt.Errorf("color buffer: %w", err)
		}
		fs.Color = &camera.ColorFrame{
			Width:  c.colorMat.Cols(),
			Height: c.colorMat.Rows(),
			Stride: c.colorMat.Step(),
			Format: camera.FormatBGR8,
			Data:   data,
		}
	}

	if c.depth.Read(&c.depthMat) && !c.depthMat.Empty() {
		switch c.depthMat.Type() {
		case gocv.MatTypeCV16UC1, gocv.MatTypeCV8UC2:
			data, err := c.depthMat.DataPtrUint8()
			if err != nil {
				return nil, fmt.Errorf("depth buffer: %w", err)
			}
			fs.Depth = &camera.DepthFrame{
				Width:  c.depthMat.Cols(),
				Height: c.depthMat.Rows(),
				Stride: c.depthMat.Step(),
				Data:   data,
			}
		default:
			debug.Verbose("UVC: unexpected depth mat type %v", c.depthMat.Type())
		}
	}

	debug.Trace("UVC: frame %d color=%t depth=%t", c.frames, fs.Color != nil, fs.Depth != nil)
	return fs, nil
}

func (c *Camera) Stop() error {
	if c.color == nil {
		return nil
	}
	err := multierr.Combine(
		c.color.Close(),
		c.depth.Close(),
		c.colorMat.Close(),
		c.depthMat.Close(),
	)
	c.color, c.depth = nil, nil
	return err
}
