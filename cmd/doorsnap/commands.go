package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/DoorSnap/internal/debug"
	"github.com/cjeanneret/DoorSnap/internal/hw/gpio"
	"github.com/cjeanneret/DoorSnap/internal/hw/trigger"
	"github.com/cjeanneret/DoorSnap/internal/logic/capture"
	"github.com/cjeanneret/DoorSnap/internal/web"
)

func newCaptureCmd(a *app) *cobra.Command {
	var (
		profile   string
		folder    string
		fromStore bool
	)
	cmd := &cobra.Command{
		Use:   "capture [profile] [folder]",
		Short: "Take one snapshot, save it and upload it",
		Long: "Capture writes <folder>/<profile>_rgb.jpg and <folder>/<profile>_colordepth.png\n" +
			"and uploads them to the configured bucket. The folder must already exist.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if fromStore && len(args) > 0 && args[0] != "" {
				return fmt.Errorf("profile %q given together with --profile-from-store", args[0])
			}
			if len(args) > 0 {
				profile = args[0]
			}
			if len(args) > 1 {
				folder = args[1]
			}
			if profile == "" {
				profile = a.cfg.Output.Profile
			}
			if folder == "" {
				folder = a.cfg.Output.Folder
			}

			if fromStore {
				store, err := a.storeHandle(ctx)
				if err != nil {
					return err
				}
				profile, err = store.CurrentProfile(ctx, a.cfg.Accounts.Bucket, a.cfg.Accounts.CurrentUserKey)
				if err != nil {
					return fmt.Errorf("resolve profile: %w", err)
				}
			}

			s, err := a.snapshotter(ctx)
			if err != nil {
				return err
			}
			debug.Section("Snapshot")
			debug.Value("Profile", profile)
			debug.Value("Folder", folder)
			res, err := s.Snapshot(ctx, profile, folder)
			if err != nil {
				debug.Errorf("Failed to capture frames: %v", err)
				return err
			}
			return summarize(res)
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile name used as the file name prefix (default from config)")
	cmd.Flags().StringVar(&folder, "folder", "", "existing folder for the local copies (default from config)")
	cmd.Flags().BoolVar(&fromStore, "profile-from-store", false, "read the profile name from the accounts bucket")
	cmd.MarkFlagsMutuallyExclusive("profile", "profile-from-store")
	return cmd
}

func newUploadCmd(a *app) *cobra.Command {
	var file, key, bucket string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload one local file to the object store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if key == "" {
				key = filepath.Base(file)
			}
			if bucket == "" {
				bucket = a.cfg.Storage.Bucket
			}
			store, err := a.storeHandle(ctx)
			if err != nil {
				return err
			}
			res := store.Upload(ctx, bucket, file, key)
			if !res.OK() {
				return res.Err
			}
			debug.Info("%s -> %s/%s (%d bytes)", file, res.Bucket, res.Key, res.Size)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "local file to upload")
	cmd.Flags().StringVar(&key, "key", "", "object key (default: file base name)")
	cmd.Flags().StringVar(&bucket, "bucket", "", "target bucket (default from config)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Take a snapshot each time the doorbell button is pressed or motion is detected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			debug.Step(1, "Initializing GPIO driver")
			debug.Value("Mock GPIO", a.cfg.Defaults.MockGPIO)
			g, err := gpio.NewDriver(a.cfg.Defaults.MockGPIO)
			if err != nil {
				return fmt.Errorf("init GPIO: %w", err)
			}
			defer func() {
				if err := g.Close(); err != nil {
					debug.Errorf("closing GPIO driver failed: %v", err)
				}
			}()

			debug.Step(2, "Initializing triggers and LED")
			btn, err := trigger.NewButton(g, a.cfg.Trigger.ButtonPin, a.cfg.PollInterval(), a.cfg.Debounce())
			if err != nil {
				return err
			}
			triggers := []*trigger.Button{btn}
			if pin := a.cfg.Trigger.MotionPin; pin > 0 {
				motion, err := trigger.NewMotionSensor(g, pin, a.cfg.PollInterval(), a.cfg.Debounce())
				if err != nil {
					return err
				}
				triggers = append(triggers, motion)
			}
			led, err := trigger.NewStatusLED(g, a.cfg.Trigger.LEDPin)
			if err != nil {
				return err
			}

			debug.Step(3, "Initializing camera and object store")
			s, err := a.snapshotter(ctx)
			if err != nil {
				return err
			}

			return watchTriggers(ctx, triggers, onPress(s, led, a.cfg.Trigger.ProfilePrefix, a.cfg.Output.Folder, time.Now))
		},
	}
}

// watchTriggers runs every trigger until ctx ends or one of them fails.
func watchTriggers(ctx context.Context, triggers []*trigger.Button, fire func(context.Context)) error {
	fire = serialize(fire)
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range triggers {
		g.Go(func() error { return t.Watch(gctx, fire) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		debug.Info("Stopped watching")
		return nil
	}
	return err
}

// serialize lets one snapshot run at a time. A trigger that fires while
// one is running is dropped.
func serialize(fire func(context.Context)) func(context.Context) {
	var busy sync.Mutex
	return func(ctx context.Context) {
		if !busy.TryLock() {
			debug.Verbose("Snapshot already running, trigger ignored")
			return
		}
		defer busy.Unlock()
		fire(ctx)
	}
}

// triggerProfile names a triggered snapshot <prefix>_<YYYYMMDD_HHMMSS>.
func triggerProfile(prefix string, t time.Time) string {
	return prefix + "_" + t.Format("20060102_150405")
}

// onPress returns the trigger callback: one snapshot per event, LED lit meanwhile.
func onPress(s *capture.Snapshotter, led *trigger.StatusLED, prefix, folder string, now func() time.Time) func(context.Context) {
	return func(ctx context.Context) {
		profile := triggerProfile(prefix, now())
		led.Set(true)
		defer led.Set(false)

		res, err := s.Snapshot(ctx, profile, folder)
		if err != nil {
			debug.Errorf("Snapshot %s: %v", profile, err)
			return
		}
		if err := summarize(res); err != nil {
			debug.Errorf("Snapshot %s: %v", profile, err)
		}
	}
}

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web page that triggers snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if port <= 0 || port > 65535 {
				return fmt.Errorf("port must be 1-65535, got %d", port)
			}

			broadcaster := web.NewStatusBroadcaster()
			debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

			s, err := a.snapshotter(ctx)
			if err != nil {
				return err
			}
			folder := a.cfg.Output.Folder
			runCapture := func(ctx context.Context, profile string) (*capture.Result, error) {
				res, err := s.Snapshot(ctx, profile, folder)
				if err == nil {
					summarize(res)
				}
				return res, err
			}

			srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, runCapture, web.FormConfig{
				Profile: a.cfg.Output.Profile,
				Folder:  folder,
				Bucket:  a.cfg.Storage.Bucket,
			})
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port")
	return cmd
}
