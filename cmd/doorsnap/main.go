package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/DoorSnap/internal/config"
	"github.com/cjeanneret/DoorSnap/internal/debug"
	"github.com/cjeanneret/DoorSnap/internal/hw/camera"
	"github.com/cjeanneret/DoorSnap/internal/hw/camera/uvc"
	"github.com/cjeanneret/DoorSnap/internal/logic/capture"
	"github.com/cjeanneret/DoorSnap/internal/storage"
)

// errIncomplete is returned by commands whose snapshot did not save and
// upload both files. The details have already been logged.
var errIncomplete = errors.New("snapshot incomplete")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd(newApp()).ExecuteContext(ctx)
	debug.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// app carries what the subcommands share: the loaded configuration and the
// process-wide object store handle.
type app struct {
	cfgPath string
	cfg     *config.Config

	openStore func(ctx context.Context, cfg storage.Config) (*storage.Store, error)
	newCamera func(cfg *config.Config) (camera.DepthCamera, error)
	store     *storage.Store
}

func newApp() *app {
	return &app{
		openStore: storage.Open,
		newCamera: newCameraFromConfig,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "doorsnap",
		Short: "Smart-door snapshot tool",
		Long: "DoorSnap captures a color image and a false-color depth image from the door\n" +
			"camera, saves both locally and uploads them to the object store.",
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", filepath.Join("configs", "default.yaml"), "path to config file")

	root.AddCommand(newCaptureCmd(a))
	root.AddCommand(newUploadCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newServeCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", a.cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Camera type", cfg.Camera.Type)
	debug.Value("Bucket", cfg.Storage.Bucket)
	return nil
}

// storeHandle opens the object store on first use; later calls share it.
func (a *app) storeHandle(ctx context.Context) (*storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := a.openStore(ctx, storage.Config{
		Region:       a.cfg.Storage.Region,
		Endpoint:     a.cfg.Storage.Endpoint,
		UsePathStyle: a.cfg.Storage.UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	a.store = s
	return s, nil
}

// snapshotter wires the configured camera to the object store.
func (a *app) snapshotter(ctx context.Context) (*capture.Snapshotter, error) {
	store, err := a.storeHandle(ctx)
	if err != nil {
		return nil, err
	}
	cam, err := a.newCamera(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("init camera: %w", err)
	}
	return capture.NewSnapshotter(cam, store, capture.Params{
		Bucket:  a.cfg.Storage.Bucket,
		Streams: streamProfile(a.cfg),
		Policy: capture.Policy{
			UploadOnSaveFailure: a.cfg.Policy.UploadOnSaveFailure,
			JPEGQuality:         a.cfg.Policy.JPEGQuality,
		},
	}), nil
}

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(cfg *config.Config) (camera.DepthCamera, error) {
	switch cfg.Camera.Type {
	case "realsense_uvc":
		return uvc.New(cfg.Camera.ColorDevice, cfg.Camera.DepthDevice), nil
	case "mock":
		return camera.NewMockCamera(), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

func streamProfile(cfg *config.Config) camera.Profile {
	conv := func(s config.StreamConfig) camera.StreamConfig {
		return camera.StreamConfig{
			Width:  s.Width,
			Height: s.Height,
			FPS:    s.FPS,
			Format: camera.PixelFormat(s.Format),
		}
	}
	return camera.Profile{Color: conv(cfg.Camera.Color), Depth: conv(cfg.Camera.Depth)}
}

// summarize logs the outcome of a snapshot and turns it into the command's error.
func summarize(res *capture.Result) error {
	debug.Summary("Snapshot " + res.Profile)
	debug.Value("ID", res.ID)
	debug.Value("Duration", res.Duration)
	for _, f := range []struct {
		name string
		o    capture.FileOutcome
	}{{"color", res.Color}, {"depth", res.Depth}} {
		debug.Info("%s: saved=%t uploaded=%t key=%q", f.name, f.o.Saved, f.o.Uploaded, f.o.Key)
		if err := f.o.Err(); err != nil {
			debug.Errorf("%s: %v", f.name, err)
		}
	}
	if !res.OK() {
		return errIncomplete
	}
	return nil
}
