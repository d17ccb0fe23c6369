package config

import (
	"fmt"
	"time"

	"jordanella.com/autogui/internal/cv"
	"jordanella.com/autogui/internal/logging"
)

// Backend names
const (
	BackendDesktop = "desktop"
	BackendADB     = "adb"
)

// Config holds every setting of the toolkit
type Config struct {
	Locate    LocateConfig
	Motion    MotionConfig
	Capture   CaptureConfig
	ADB       ADBConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Templates TemplatesConfig
}

// LocateConfig holds matcher defaults
type LocateConfig struct {
	Confidence float64
	Stride     int
	Workers    int
	DebugDir   string // Annotated match images are written here when set
}

// MotionConfig holds pointer movement defaults
type MotionConfig struct {
	Duration      time.Duration
	SpinThreshold time.Duration
}

// CaptureConfig selects and tunes the capture backend
type CaptureConfig struct {
	Backend       string
	UseCache      bool
	CacheDuration time.Duration
	PollInterval  time.Duration
	SkipUnchanged bool
	SaveDir       string
}

// ADBConfig locates the adb binary and target device
type ADBConfig struct {
	Path    string
	Device  string
	Timeout time.Duration
}

// LoggingConfig configures the shared log sink
type LoggingConfig struct {
	Level   string
	File    string
	NoColor bool
}

// DatabaseConfig configures the history database
type DatabaseConfig struct {
	Enabled bool
	Path    string
}

// TemplatesConfig points at the needle registry
type TemplatesConfig struct {
	Dir     string
	Preload bool
	Cache   bool // Keep decoded needles in memory between locates
}

// NewDefaultConfig creates a config with default values
func NewDefaultConfig() *Config {
	capture := cv.DefaultCaptureConfig()
	return &Config{
		Locate: LocateConfig{
			Confidence: cv.DefaultConfidence,
			Stride:     cv.DefaultStride,
			Workers:    1,
		},
		Motion: MotionConfig{
			Duration:      0,
			SpinThreshold: 2 * time.Millisecond,
		},
		Capture: CaptureConfig{
			Backend:       BackendDesktop,
			UseCache:      capture.UseCache,
			CacheDuration: capture.CacheDuration,
			PollInterval:  capture.PollInterval,
			SkipUnchanged: capture.SkipUnchanged,
			SaveDir:       "screenshots",
		},
		ADB: ADBConfig{
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: string(logging.LogLevelInfo),
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    "data/autogui.db",
		},
		Templates: TemplatesConfig{
			Dir:   "templates",
			Cache: true,
		},
	}
}

// Validate checks settings that would otherwise fail deep inside a command
func (c *Config) Validate() error {
	if c.Locate.Confidence < 0 || c.Locate.Confidence > 1 {
		return fmt.Errorf("Locate.confidence must be within [0, 1], got %v", c.Locate.Confidence)
	}
	if c.Locate.Stride < 0 {
		return fmt.Errorf("Locate.stride must not be negative, got %d", c.Locate.Stride)
	}
	if c.Locate.Workers < 1 {
		return fmt.Errorf("Locate.workers must be at least 1, got %d", c.Locate.Workers)
	}
	if c.Motion.Duration < 0 {
		return fmt.Errorf("Motion.durationMs must not be negative, got %v", c.Motion.Duration)
	}
	if c.Motion.SpinThreshold < 0 {
		return fmt.Errorf("Motion.spinThresholdUs must not be negative, got %v", c.Motion.SpinThreshold)
	}
	switch c.Capture.Backend {
	case BackendDesktop, BackendADB:
	default:
		return fmt.Errorf("Capture.backend must be %q or %q, got %q", BackendDesktop, BackendADB, c.Capture.Backend)
	}
	if c.Capture.PollInterval <= 0 {
		return fmt.Errorf("Capture.pollIntervalMs must be positive, got %v", c.Capture.PollInterval)
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("Database.path is required when the database is enabled")
	}
	return nil
}

// CaptureSettings converts the capture section for cv.NewService
func (c *Config) CaptureSettings() *cv.CaptureConfig {
	return &cv.CaptureConfig{
		UseCache:      c.Capture.UseCache,
		CacheDuration: c.Capture.CacheDuration,
		PollInterval:  c.Capture.PollInterval,
		SkipUnchanged: c.Capture.SkipUnchanged,
	}
}

// LocateOptions converts the locate section into matcher options
func (c *Config) LocateOptions() []cv.Option {
	return []cv.Option{
		cv.WithConfidence(c.Locate.Confidence),
		cv.WithStride(c.Locate.Stride),
		cv.WithWorkers(c.Locate.Workers),
	}
}

// LoggingOptions converts the logging section for logging.Configure
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:   c.Logging.Level,
		File:    c.Logging.File,
		NoColor: c.Logging.NoColor,
	}
}
