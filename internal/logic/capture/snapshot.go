package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/cjeanneret/DoorSnap/internal/debug"
	"github.com/cjeanneret/DoorSnap/internal/hw/camera"
	"github.com/cjeanneret/DoorSnap/internal/logic/colorize"
	"github.com/cjeanneret/DoorSnap/internal/storage"
)

// WarmupFrames is the number of frames discarded while auto-exposure settles.
const WarmupFrames = 30

// File naming. The depth image is stored locally as <profile>_colordepth.png but
// uploaded as <profile>_depth_colored.png.
const (
	ColorSuffix    = "_rgb.jpg"
	DepthSuffix    = "_colordepth.png"
	ColorKeyPrefix = "RGB Pictures/"
	DepthKeyPrefix = "Color Depth Pictures/"
	DepthKeySuffix = "_depth_colored.png"
)

var (
	// ErrCaptureFailed means no valid frame pair was acquired; nothing was written or uploaded.
	ErrCaptureFailed = errors.New("failed to capture valid frames")
	// ErrInvalidProfile rejects profile names that are empty or not a single path element.
	ErrInvalidProfile = errors.New("invalid profile name")
	// ErrNotSaved marks an upload skipped because the local file was not written.
	ErrNotSaved = errors.New("skipped upload: file was not saved")
)

// Uploader sends one local file to the object store.
// *storage.Store implements it.
type Uploader interface {
	Upload(ctx context.Context, bucket, path, key string) storage.UploadResult
}

// Policy controls what happens around partial failures.
type Policy struct {
	// UploadOnSaveFailure still attempts the upload of a file whose local
	// write failed. Off by default: the upload is skipped and reported.
	UploadOnSaveFailure bool
	// JPEGQuality for the color image (1-100).
	JPEGQuality int
}

// Params configures a Snapshotter.
type Params struct {
	Bucket  string
	Streams camera.Profile
	Policy  Policy
}

// Snapshotter captures one color+depth pair, writes it to disk and uploads it.
type Snapshotter struct {
	camera   camera.DepthCamera
	uploader Uploader
	params   Params
	warmup   int
}

func NewSnapshotter(cam camera.DepthCamera, up Uploader, p Params) *Snapshotter {
	if p.Policy.JPEGQuality <= 0 || p.Policy.JPEGQuality > 100 {
		p.Policy.JPEGQuality = 95
	}
	return &Snapshotter{
		camera:   cam,
		uploader: up,
		params:   p,
		warmup:   WarmupFrames,
	}
}

// FileOutcome is the per-image part of a Result.
type FileOutcome struct {
	Path            string `json:"path"`
	Key             string `json:"key"`
	Saved           bool   `json:"saved"`
	UploadAttempted bool   `json:"upload_attempted"`
	Uploaded        bool   `json:"uploaded"`
	SaveErr         error  `json:"-"`
	UploadErr       error  `json:"-"`
}

// Err combines the save and upload errors of the file.
func (o FileOutcome) Err() error {
	return multierr.Combine(o.SaveErr, o.UploadErr)
}

// Result describes one Snapshot call.
type Result struct {
	ID       string      `json:"id"`
	Profile  string      `json:"profile"`
	Bucket   string      `json:"bucket"`
	Started  time.Time   `json:"started"`
	Duration string      `json:"duration"`
	Color    FileOutcome `json:"color"`
	Depth    FileOutcome `json:"depth"`
}

// Err returns every save/upload failure of the run, or nil.
func (r *Result) Err() error {
	return multierr.Combine(r.Color.Err(), r.Depth.Err())
}

// OK reports whether both files were saved and uploaded.
func (r *Result) OK() bool {
	return r.Color.Saved && r.Color.Uploaded && r.Depth.Saved && r.Depth.Uploaded
}

// ValidateProfile checks that profile can be used as a file name prefix.
func ValidateProfile(profile string) error {
	switch {
	case strings.TrimSpace(profile) == "":
		return fmt.Errorf("%w: empty", ErrInvalidProfile)
	case profile == "." || profile == "..":
		return fmt.Errorf("%w: %q", ErrInvalidProfile, profile)
	case strings.ContainsAny(profile, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidProfile, profile)
	}
	return nil
}

// Paths returns the local file names for profile inside folder.
func Paths(folder, profile string) (colorPath, depthPath string) {
	base := filepath.Join(folder, profile)
	return base + ColorSuffix, base + DepthSuffix
}

// Keys returns the object keys for profile.
func Keys(profile string) (colorKey, depthKey string) {
	return ColorKeyPrefix + profile + ColorSuffix, DepthKeyPrefix + profile + DepthKeySuffix
}

// Snapshot captures a frame pair for profile, writes
// <folder>/<profile>_rgb.jpg and <folder>/<profile>_colordepth.png, then
// uploads both. folder must already exist.
//
// The returned error is non-nil only when nothing could be captured
// (ErrCaptureFailed, ErrInvalidProfile); in that case no file is written and
// no upload attempted. Save and upload failures are reported per file in
// the Result.
func (s *Snapshotter) Snapshot(ctx context.Context, profile, folder string) (*Result, error) {
	if err := ValidateProfile(profile); err != nil {
		return nil, err
	}

	res := &Result{
		ID:      uuid.NewString(),
		Profile: profile,
		Bucket:  s.params.Bucket,
		Started: time.Now(),
	}
	defer func() { res.Duration = time.Since(res.Started).Round(time.Millisecond).String() }()

	debug.Section("Snapshot " + profile)
	debug.Value("Capture ID", res.ID)

	debug.Step(1, "Acquiring frames")
	frames, release, err := s.acquire(ctx)
	if err != nil {
		debug.Errorf("Error: %v", err)
		return nil, err
	}
	defer release()

	debug.Step(2, "Converting depth")
	colorImg := frames.Color.Image()
	depthImg := colorize.Depth(frames.Depth.Image())

	debug.Step(3, "Saving images")
	res.Color.Path, res.Depth.Path = Paths(folder, profile)
	res.Color.Key, res.Depth.Key = Keys(profile)

	res.Color.SaveErr = save(colorImg, res.Color.Path, imaging.JPEGQuality(s.params.Policy.JPEGQuality))
	res.Color.Saved = res.Color.SaveErr == nil
	report("RGB", res.Color)

	res.Depth.SaveErr = save(depthImg, res.Depth.Path)
	res.Depth.Saved = res.Depth.SaveErr == nil
	report("Depth", res.Depth)

	debug.Step(4, "Uploading images")
	s.upload(ctx, &res.Color)
	s.upload(ctx, &res.Depth)

	return res, nil
}

// acquire starts the camera, drops the warm-up frames and returns one
// validated frame set. release stops the camera, which invalidates the
// frame buffers.
func (s *Snapshotter) acquire(ctx context.Context) (*camera.FrameSet, func(), error) {
	debug.Verbose("Streams: color=%s depth=%s", s.params.Streams.Color, s.params.Streams.Depth)
	if err := s.camera.Start(ctx, s.params.Streams); err != nil {
		return nil, nil, fmt.Errorf("%w: start camera: %w", ErrCaptureFailed, err)
	}
	release := func() {
		if err := s.camera.Stop(); err != nil {
			debug.Errorf("stopping camera failed: %v", err)
		}
	}

	for i := 0; i < s.warmup; i++ {
		if _, err := s.camera.WaitForFrames(ctx); err != nil {
			release()
			return nil, nil, fmt.Errorf("%w: warm-up frame %d: %w", ErrCaptureFailed, i+1, err)
		}
		debug.Warmup(i+1, s.warmup)
	}

	frames, err := s.camera.WaitForFrames(ctx)
	if err == nil {
		err = frames.Validate()
	}
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	debug.Live("Frame %d: color %dx%d, depth %dx%d", frames.Number,
		frames.Color.Width, frames.Color.Height, frames.Depth.Width, frames.Depth.Height)
	return frames, release, nil
}

func (s *Snapshotter) upload(ctx context.Context, o *FileOutcome) {
	if !o.Saved && !s.params.Policy.UploadOnSaveFailure {
		o.UploadErr = ErrNotSaved
		debug.Info("Skipping upload of %s: file was not saved", filepath.Base(o.Path))
		return
	}
	r := s.uploader.Upload(ctx, s.params.Bucket, o.Path, o.Key)
	o.UploadAttempted = true
	o.Uploaded = r.OK()
	o.UploadErr = r.Err
}

func save(img image.Image, path string, opts ...imaging.EncodeOption) error {
	if err := imaging.Save(img, path, opts...); err != nil {
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	return nil
}

func report(kind string, o FileOutcome) {
	if o.SaveErr != nil {
		debug.Errorf("Error: Failed to save %s image: %v", kind, o.SaveErr)
		return
	}
	debug.Saved(kind, o.Path)
}
