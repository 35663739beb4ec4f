package capture

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"

	"github.com/cjeanneret/DoorSnap/internal/hw/camera"
	"github.com/cjeanneret/DoorSnap/internal/logic/colorize"
	"github.com/cjeanneret/DoorSnap/internal/storage"
)

// fakeCamera returns the same frame set on every wait.
type fakeCamera struct {
	frames   *camera.FrameSet
	startErr error
	waitErr  error
	// onWait, when set, runs before each wait with the 1-based wait count.
	onWait func(n int)

	starts, waits, stops int
	started              camera.Profile
}

func (c *fakeCamera) Start(ctx context.Context, p camera.Profile) error {
	c.starts++
	c.started = p
	return c.startErr
}

func (c *fakeCamera) WaitForFrames(ctx context.Context) (*camera.FrameSet, error) {
	c.waits++
	if c.onWait != nil {
		c.onWait(c.waits)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.waitErr != nil {
		return nil, c.waitErr
	}
	return c.frames, nil
}

func (c *fakeCamera) Stop() error {
	c.stops++
	return nil
}

// recordingUploader records Upload calls.
type recordingUploader struct {
	mu    sync.Mutex
	calls []uploadCall
	fail  map[string]error // by key
}

type uploadCall struct {
	bucket, path, key string
}

func (u *recordingUploader) Upload(ctx context.Context, bucket, path, key string) storage.UploadResult {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, uploadCall{bucket, path, key})
	return storage.UploadResult{Bucket: bucket, Key: key, Path: path, Err: u.fail[key]}
}

func validFrames(cw, ch, dw, dh int) *camera.FrameSet {
	return &camera.FrameSet{
		Number: 1,
		Color:  camera.SolidColorFrame(cw, ch, camera.FormatBGR8, [3]byte{40, 80, 160}),
		Depth:  camera.ConstantDepthFrame(dw, dh, 1200),
	}
}

func newTestSnapshotter(cam camera.DepthCamera, up Uploader, policy Policy) *Snapshotter {
	return NewSnapshotter(cam, up, Params{
		Bucket:  "smartdoorpictures",
		Streams: camera.DefaultProfile(),
		Policy:  policy,
	})
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSnapshot_EndToEnd(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "cap1")
	if err := os.Mkdir(folder, 0o755); err != nil {
		t.Fatal(err)
	}
	cam := &fakeCamera{frames: validFrames(1280, 800, 1280, 720)}
	up := &recordingUploader{}
	s := newTestSnapshotter(cam, up, Policy{})

	res, err := s.Snapshot(context.Background(), "front_door", folder)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	colorPath := filepath.Join(folder, "front_door_rgb.jpg")
	depthPath := filepath.Join(folder, "front_door_colordepth.png")
	if res.Color.Path != colorPath || res.Depth.Path != depthPath {
		t.Errorf("paths = %q, %q", res.Color.Path, res.Depth.Path)
	}
	if names := listDir(t, folder); len(names) != 2 {
		t.Errorf("expected exactly two files, got %v", names)
	}

	colorImg, err := imaging.Open(colorPath)
	if err != nil {
		t.Fatalf("open color: %v", err)
	}
	if b := colorImg.Bounds(); b.Dx() != 1280 || b.Dy() != 800 {
		t.Errorf("color size = %v, want 1280x800", b)
	}

	depthImg, err := imaging.Open(depthPath)
	if err != nil {
		t.Fatalf("open depth: %v", err)
	}
	if b := depthImg.Bounds(); b.Dx() != 1280 || b.Dy() != 720 {
		t.Errorf("depth size = %v, want 1280x720", b)
	}
	// Constant depth normalizes to 0, the near end of the palette.
	got := color.RGBAModel.Convert(depthImg.At(640, 360)).(color.RGBA)
	if got != colorize.Jet(0) {
		t.Errorf("depth pixel = %v, want %v", got, colorize.Jet(0))
	}

	want := []uploadCall{
		{"smartdoorpictures", colorPath, "RGB Pictures/front_door_rgb.jpg"},
		{"smartdoorpictures", depthPath, "Color Depth Pictures/front_door_depth_colored.png"},
	}
	if len(up.calls) != len(want) {
		t.Fatalf("expected %d uploads, got %d: %v", len(want), len(up.calls), up.calls)
	}
	for i, w := range want {
		if up.calls[i] != w {
			t.Errorf("upload %d = %+v, want %+v", i, up.calls[i], w)
		}
	}

	if !res.OK() || res.Err() != nil {
		t.Errorf("expected full success, got err=%v", res.Err())
	}
	if res.ID == "" {
		t.Error("expected a capture ID")
	}
	if cam.waits != WarmupFrames+1 {
		t.Errorf("expected %d frame waits, got %d", WarmupFrames+1, cam.waits)
	}
	if cam.starts != 1 || cam.stops != 1 {
		t.Errorf("starts=%d stops=%d, want 1/1", cam.starts, cam.stops)
	}
	if cam.started != camera.DefaultProfile() {
		t.Errorf("camera started with %+v", cam.started)
	}
}

func TestSnapshot_MissingFrameAborts(t *testing.T) {
	cases := []struct {
		name   string
		frames *camera.FrameSet
	}{
		{"no_color", &camera.FrameSet{Depth: camera.ConstantDepthFrame(4, 4, 1)}},
		{"no_depth", &camera.FrameSet{Color: camera.SolidColorFrame(4, 4, camera.FormatBGR8, [3]byte{})}},
		{"zero_size_color", func() *camera.FrameSet {
			fs := validFrames(4, 4, 4, 4)
			fs.Color.Width = 0
			return fs
		}()},
		{"nil_set", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			folder := t.TempDir()
			cam := &fakeCamera{frames: tc.frames}
			up := &recordingUploader{}

			res, err := newTestSnapshotter(cam, up, Policy{UploadOnSaveFailure: true}).Snapshot(context.Background(), "p", folder)
			if !errors.Is(err, ErrCaptureFailed) {
				t.Fatalf("expected ErrCaptureFailed, got %v", err)
			}
			if !errors.Is(err, camera.ErrMissingFrame) {
				t.Errorf("expected ErrMissingFrame in chain, got %v", err)
			}
			if res != nil {
				t.Errorf("expected nil result, got %+v", res)
			}
			if names := listDir(t, folder); len(names) != 0 {
				t.Errorf("expected no files, got %v", names)
			}
			if len(up.calls) != 0 {
				t.Errorf("expected no uploads, got %v", up.calls)
			}
			if cam.stops != 1 {
				t.Errorf("camera should be stopped, stops=%d", cam.stops)
			}
		})
	}
}

func TestSnapshot_CameraErrors(t *testing.T) {
	cases := []struct {
		name string
		cam  *fakeCamera
	}{
		{"start", &fakeCamera{startErr: errors.New("no device")}},
		{"wait", &fakeCamera{waitErr: errors.New("frame timeout")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			folder := t.TempDir()
			up := &recordingUploader{}
			_, err := newTestSnapshotter(tc.cam, up, Policy{}).Snapshot(context.Background(), "p", folder)
			if !errors.Is(err, ErrCaptureFailed) {
				t.Fatalf("expected ErrCaptureFailed, got %v", err)
			}
			if len(listDir(t, folder)) != 0 || len(up.calls) != 0 {
				t.Error("expected no files and no uploads")
			}
		})
	}
}

func TestSnapshot_WarmupErrorStopsEarly(t *testing.T) {
	cam := &fakeCamera{waitErr: errors.New("frame timeout")}
	_, _ = newTestSnapshotter(cam, &recordingUploader{}, Policy{}).Snapshot(context.Background(), "p", t.TempDir())
	if cam.waits != 1 {
		t.Errorf("expected to stop after the first failed wait, got %d waits", cam.waits)
	}
	if cam.stops != 1 {
		t.Errorf("expected camera stopped once, got %d", cam.stops)
	}
}

func TestSnapshot_CancelledDuringWarmup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	folder := t.TempDir()
	up := &recordingUploader{}
	cam := &fakeCamera{
		frames: validFrames(4, 4, 4, 4),
		onWait: func(n int) {
			if n == 5 {
				cancel()
			}
		},
	}

	res, err := newTestSnapshotter(cam, up, Policy{}).Snapshot(ctx, "p", folder)
	if !errors.Is(err, ErrCaptureFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrCaptureFailed wrapping context.Canceled, got %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if cam.waits != 5 {
		t.Errorf("warm-up should stop at the cancelled wait, got %d waits", cam.waits)
	}
	if cam.stops != 1 {
		t.Errorf("camera should be stopped once, got %d", cam.stops)
	}
	if names := listDir(t, folder); len(names) != 0 {
		t.Errorf("expected no files, got %v", names)
	}
	if len(up.calls) != 0 {
		t.Errorf("expected no uploads, got %v", up.calls)
	}
}

// blockColorPath makes the color file unwritable by putting a directory in its place.
func blockColorPath(t *testing.T, folder, profile string) {
	t.Helper()
	colorPath, _ := Paths(folder, profile)
	if err := os.Mkdir(colorPath, 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshot_ColorWriteFailureIsolated(t *testing.T) {
	folder := t.TempDir()
	blockColorPath(t, folder, "front_door")
	up := &recordingUploader{}
	s := newTestSnapshotter(&fakeCamera{frames: validFrames(8, 6, 8, 6)}, up, Policy{})

	res, err := s.Snapshot(context.Background(), "front_door", folder)
	if err != nil {
		t.Fatalf("save failures must not fail the capture: %v", err)
	}
	if res.Color.Saved || res.Color.SaveErr == nil {
		t.Error("color save should have failed")
	}
	if !res.Depth.Saved {
		t.Errorf("depth save should still succeed, got: %v", res.Depth.SaveErr)
	}
	if _, err := os.Stat(res.Depth.Path); err != nil {
		t.Errorf("depth file missing: %v", err)
	}

	// Default policy skips the upload of the unsaved file.
	if len(up.calls) != 1 || up.calls[0].key != "Color Depth Pictures/front_door_depth_colored.png" {
		t.Errorf("expected only the depth upload, got %v", up.calls)
	}
	if res.Color.UploadAttempted || !errors.Is(res.Color.UploadErr, ErrNotSaved) {
		t.Errorf("color upload should be skipped with ErrNotSaved, got attempted=%t err=%v",
			res.Color.UploadAttempted, res.Color.UploadErr)
	}
	if res.OK() || res.Err() == nil {
		t.Error("result should report the failure")
	}
}

func TestSnapshot_UploadOnSaveFailure(t *testing.T) {
	folder := t.TempDir()
	blockColorPath(t, folder, "front_door")
	up := &recordingUploader{}
	s := newTestSnapshotter(&fakeCamera{frames: validFrames(8, 6, 8, 6)}, up, Policy{UploadOnSaveFailure: true})

	res, err := s.Snapshot(context.Background(), "front_door", folder)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(up.calls) != 2 {
		t.Fatalf("expected both uploads attempted, got %v", up.calls)
	}
	if !res.Color.UploadAttempted {
		t.Error("color upload should be attempted")
	}
}

// putCounter is a storage.API that only counts PutObject calls.
type putCounter struct{ puts int }

func (p *putCounter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	p.puts++
	return &s3.PutObjectOutput{}, nil
}

func (p *putCounter) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, errors.New("not used")
}

func TestSnapshot_UploadOnSaveFailure_LocalError(t *testing.T) {
	folder := t.TempDir()
	blockColorPath(t, folder, "front_door")
	api := &putCounter{}
	s := newTestSnapshotter(&fakeCamera{frames: validFrames(8, 6, 8, 6)}, storage.New(api), Policy{UploadOnSaveFailure: true})

	res, err := s.Snapshot(context.Background(), "front_door", folder)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !res.Color.UploadAttempted || res.Color.Uploaded {
		t.Errorf("color upload: attempted=%t uploaded=%t", res.Color.UploadAttempted, res.Color.Uploaded)
	}
	if !errors.Is(res.Color.UploadErr, storage.ErrLocalOpen) {
		t.Errorf("expected ErrLocalOpen, got %v", res.Color.UploadErr)
	}
	if errors.Is(res.Color.UploadErr, storage.ErrRemote) {
		t.Error("unsaved color file must not be reported as a remote failure")
	}
	if !res.Depth.Uploaded {
		t.Errorf("depth upload should succeed: %v", res.Depth.UploadErr)
	}
	if api.puts != 1 {
		t.Errorf("only the depth image should reach the store, got %d requests", api.puts)
	}
}

func TestSnapshot_MissingFolder(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "does-not-exist")
	up := &recordingUploader{}
	res, err := newTestSnapshotter(&fakeCamera{frames: validFrames(4, 4, 4, 4)}, up, Policy{}).
		Snapshot(context.Background(), "p", folder)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if res.Color.Saved || res.Depth.Saved {
		t.Error("both saves should fail")
	}
	if len(up.calls) != 0 {
		t.Errorf("no uploads expected, got %v", up.calls)
	}
}

func TestSnapshot_UploadFailureRecorded(t *testing.T) {
	folder := t.TempDir()
	remote := errors.New("access denied")
	up := &recordingUploader{fail: map[string]error{
		"Color Depth Pictures/door_depth_colored.png": remote,
	}}
	res, err := newTestSnapshotter(&fakeCamera{frames: validFrames(4, 4, 4, 4)}, up, Policy{}).
		Snapshot(context.Background(), "door", folder)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !res.Color.Uploaded {
		t.Errorf("color upload should succeed: %v", res.Color.UploadErr)
	}
	if res.Depth.Uploaded || !errors.Is(res.Depth.UploadErr, remote) {
		t.Errorf("depth upload should fail with %v, got %v", remote, res.Depth.UploadErr)
	}
	if !errors.Is(res.Err(), remote) {
		t.Errorf("Result.Err should include the upload failure, got %v", res.Err())
	}
	if len(up.calls) != 2 {
		t.Errorf("expected 2 upload calls, got %d", len(up.calls))
	}
}

func TestSnapshot_InvalidProfile(t *testing.T) {
	for _, p := range []string{"", "   ", "a/b", `a\b`, "..", "."} {
		t.Run(p, func(t *testing.T) {
			cam := &fakeCamera{frames: validFrames(4, 4, 4, 4)}
			_, err := newTestSnapshotter(cam, &recordingUploader{}, Policy{}).Snapshot(context.Background(), p, t.TempDir())
			if !errors.Is(err, ErrInvalidProfile) {
				t.Errorf("expected ErrInvalidProfile for %q, got %v", p, err)
			}
			if cam.starts != 0 {
				t.Error("camera should not be started for an invalid profile")
			}
		})
	}
}

func TestPathsAndKeys(t *testing.T) {
	c, d := Paths("/tmp/cap1", "front_door")
	if c != "/tmp/cap1/front_door_rgb.jpg" || d != "/tmp/cap1/front_door_colordepth.png" {
		t.Errorf("Paths = %q, %q", c, d)
	}
	ck, dk := Keys("front_door")
	if ck != "RGB Pictures/front_door_rgb.jpg" || dk != "Color Depth Pictures/front_door_depth_colored.png" {
		t.Errorf("Keys = %q, %q", ck, dk)
	}
}

func TestNewSnapshotter_DefaultQuality(t *testing.T) {
	s := NewSnapshotter(&fakeCamera{}, &recordingUploader{}, Params{})
	if s.params.Policy.JPEGQuality != 95 {
		t.Errorf("JPEGQuality = %d, want 95", s.params.Policy.JPEGQuality)
	}
	if s.warmup != WarmupFrames {
		t.Errorf("warmup = %d, want %d", s.warmup, WarmupFrames)
	}
}
