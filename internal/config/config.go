package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StreamConfig describes one camera stream.
type StreamConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
	Format string `yaml:"format"` // bgr8 / rgb8 for color, z16 for depth
}

// CameraConfig describes how to reach the depth camera.
// Type selects a concrete implementation ("realsense_uvc" or "mock").
type CameraConfig struct {
	Type        string       `yaml:"type"`
	ColorDevice string       `yaml:"color_device"` // e.g. /dev/video4
	DepthDevice string       `yaml:"depth_device"` // e.g. /dev/video0
	Color       StreamConfig `yaml:"color"`
	Depth       StreamConfig `yaml:"depth"`
}

// OutputConfig holds where snapshots go by default.
type OutputConfig struct {
	Folder  string `yaml:"folder"`  // must already exist
	Profile string `yaml:"profile"` // default profile name for the capture command
}

// StorageConfig selects the object store and bucket.
type StorageConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`         // empty = SDK default
	Endpoint     string `yaml:"endpoint"`       // S3-compatible endpoint override
	UsePathStyle bool   `yaml:"use_path_style"` // needed by most S3-compatible stores
}

// AccountsConfig locates the current-user document used to resolve a profile.
type AccountsConfig struct {
	Bucket         string `yaml:"bucket"`
	CurrentUserKey string `yaml:"current_user_key"`
}

// PolicyConfig controls behavior on partial failure.
type PolicyConfig struct {
	UploadOnSaveFailure bool `yaml:"upload_on_save_failure"`
	JPEGQuality         int  `yaml:"jpeg_quality"`
}

// TriggerConfig describes the doorbell button and motion sensor used by the watch command.
type TriggerConfig struct {
	ButtonPin     int    `yaml:"button_pin"`  // BCM pin, active HIGH with pull-down
	LEDPin        int    `yaml:"led_pin"`     // BCM pin lit while capturing. 0 = not used.
	MotionPin     int    `yaml:"motion_pin"`  // BCM pin of a PIR sensor (plain input). 0 = not used.
	PollMs        int    `yaml:"poll_ms"`     // button sampling period
	DebounceMs    int    `yaml:"debounce_ms"` // minimum time between two presses
	ProfilePrefix string `yaml:"profile_prefix"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Output   OutputConfig   `yaml:"output"`
	Storage  StorageConfig  `yaml:"storage"`
	Accounts AccountsConfig `yaml:"accounts"`
	Policy   PolicyConfig   `yaml:"policy"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	// Camera
	if c.Camera.Type == "" {
		return fmt.Errorf("camera.type is required")
	}
	if c.Camera.Type == "realsense_uvc" && (c.Camera.ColorDevice == "" || c.Camera.DepthDevice == "") {
		return fmt.Errorf("camera.color_device and camera.depth_device are required for %s", c.Camera.Type)
	}
	defaultStream(&c.Camera.Color, 1280, 800, "bgr8")
	defaultStream(&c.Camera.Depth, 1280, 720, "z16")
	if c.Camera.Color.Format != "bgr8" && c.Camera.Color.Format != "rgb8" {
		return fmt.Errorf("camera.color.format must be bgr8 or rgb8, got %q", c.Camera.Color.Format)
	}
	if c.Camera.Depth.Format != "z16" {
		return fmt.Errorf("camera.depth.format must be z16, got %q", c.Camera.Depth.Format)
	}

	// Output and storage
	if c.Output.Folder == "" {
		c.Output.Folder = "." // current directory
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "smartdoorpictures"
	}
	if c.Accounts.Bucket == "" {
		c.Accounts.Bucket = "smartdooraccounts"
	}
	if c.Accounts.CurrentUserKey == "" {
		c.Accounts.CurrentUserKey = "currentUser/currentUser.json"
	}

	// Policy
	if c.Policy.JPEGQuality == 0 {
		c.Policy.JPEGQuality = 95
	}
	if c.Policy.JPEGQuality < 1 || c.Policy.JPEGQuality > 100 {
		return fmt.Errorf("policy.jpeg_quality must be between 1 and 100, got %d", c.Policy.JPEGQuality)
	}

	// Trigger
	if c.Trigger.ButtonPin < 0 || c.Trigger.LEDPin < 0 || c.Trigger.MotionPin < 0 {
		return fmt.Errorf("trigger pins must be >= 0")
	}
	if c.Trigger.ButtonPin == 0 {
		c.Trigger.ButtonPin = 18
	}
	if c.Trigger.PollMs <= 0 {
		c.Trigger.PollMs = 100
	}
	if c.Trigger.DebounceMs <= 0 {
		c.Trigger.DebounceMs = 500
	}
	if c.Trigger.ProfilePrefix == "" {
		c.Trigger.ProfilePrefix = "visitor"
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

func defaultStream(s *StreamConfig, width, height int, format string) {
	if s.Width <= 0 {
		s.Width = width
	}
	if s.Height <= 0 {
		s.Height = height
	}
	if s.FPS <= 0 {
		s.FPS = 30
	}
	if s.Format == "" {
		s.Format = format
	}
}

// PollInterval returns the button sampling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Trigger.PollMs) * time.Millisecond
}

// Debounce returns the minimum delay between two accepted button presses.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Trigger.DebounceMs) * time.Millisecond
}
