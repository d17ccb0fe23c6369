package cli

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"jordanella.com/autogui/internal/adb"
	"jordanella.com/autogui/internal/config"
	"jordanella.com/autogui/internal/cv"
	"jordanella.com/autogui/internal/database"
	"jordanella.com/autogui/internal/desktop"
	"jordanella.com/autogui/internal/logging"
	"jordanella.com/autogui/internal/motion"
	"jordanella.com/autogui/pkg/templates"
)

// Device captures the screen and moves the pointer
type Device interface {
	cv.Capturer
	motion.Pointer
}

// pointerLocator is implemented by devices that can report the pointer position
type pointerLocator interface {
	Location() (int, int)
}

// newDevice opens the configured backend. Tests replace it.
var newDevice = func(cfg *config.Config) (Device, error) {
	switch cfg.Capture.Backend {
	case config.BackendADB:
		ctrl, err := adb.ConnectADB(cfg.ADB.Path, cfg.ADB.Device)
		if err != nil {
			return nil, err
		}
		return ctrl.WithTimeout(cfg.ADB.Timeout), nil
	default:
		return desktop.NewBackend(), nil
	}
}

// app wires the configured services for a single command
type app struct {
	cfg      *config.Config
	reporter *logging.ErrorReporter
	db       *database.DB // nil when history is disabled
	registry *templates.TemplateRegistry
	device   Device
	service  *cv.Service
	mover    *motion.Mover
	logger   *logging.Logger
}

func newApp(cfg *config.Config) (*app, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}

	a := &app{
		cfg:      cfg,
		reporter: logging.NewErrorReporter(),
		registry: templates.NewTemplateRegistry(cfg.Templates.Dir),
		logger:   logging.NewLogger("CLI"),
	}
	if !cfg.Templates.Cache {
		a.registry.WithoutImageCache()
	}

	if cfg.Database.Enabled {
		db, err := database.OpenAndMigrate(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.reporter.OnError(db.ErrorLogger())
	}

	if err := a.loadTemplates(); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) loadTemplates() error {
	dir := a.cfg.Templates.Dir
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		a.logger.DebugWithContext("Template directory not found", map[string]interface{}{"dir": dir})
		return nil
	}

	if err := a.registry.LoadFromDirectory(dir); err != nil {
		return err
	}
	if a.cfg.Templates.Preload {
		if err := a.registry.PreloadAll(); err != nil {
			a.reporter.ReportError(logging.ErrorCategoryConfig, logging.ErrorSeverityMedium, "CLI", "Template preload incomplete", err)
		}
	}
	return nil
}

// connect opens the configured device and builds the matcher and mover on it
func (a *app) connect() error {
	device, err := newDevice(a.cfg)
	if err != nil {
		return err
	}
	a.device = device
	a.useCapturer(device)

	a.mover = motion.NewMover(device)
	a.mover.Player().WithSpinThreshold(a.cfg.Motion.SpinThreshold)
	if a.db != nil {
		a.mover.WithRecorder(a.db)
	}
	return nil
}

// useCapturer builds the matcher on capturer without opening a device
func (a *app) useCapturer(capturer cv.Capturer) {
	a.service = cv.NewService(capturer, a.cfg.CaptureSettings()).
		WithTemplateRegistry(a.registry).
		WithErrorReporter(a.reporter).
		WithDefaultOptions(a.cfg.LocateOptions()...)
	if a.db != nil {
		a.service.WithRecorder(a.db)
	}
}

// pointerPosition returns the current pointer position if the device can report it
func (a *app) pointerPosition() (motion.Waypoint, bool) {
	locator, ok := a.device.(pointerLocator)
	if !ok {
		return motion.Waypoint{}, false
	}
	x, y := locator.Location()
	return motion.Waypoint{X: x, Y: y}, true
}

func (a *app) close() {
	stats := a.registry.CacheStats()
	a.registry.UnloadAll()
	a.logger.DebugWithContext("Needle cache", map[string]interface{}{
		"hits":    stats.Hits,
		"misses":  stats.Misses,
		"loads":   stats.Loads,
		"unloads": stats.Unloads,
	})

	if errs := a.reporter.GetErrorStats(); errs["total"] > 0 {
		context := map[string]interface{}{"total": errs["total"]}
		if last := a.reporter.GetRecentErrors(1); len(last) == 1 {
			context["last"] = last[0].Message
		}
		a.logger.WarnWithContext("Errors reported during command", context)
	}

	if ctrl, ok := a.device.(interface{ Disconnect() error }); ok {
		if err := ctrl.Disconnect(); err != nil {
			a.logger.Warn("Failed to disconnect device: " + err.Error())
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close database: " + err.Error())
		}
	}
}

// imageCapturer serves a still image as the screen
type imageCapturer struct {
	img *image.RGBA
}

func (c *imageCapturer) CaptureFrame() (*image.RGBA, error) {
	return c.img, nil
}

func (c *imageCapturer) CaptureArea(region cv.Region) (*image.RGBA, error) {
	rect := region.Rect().Intersect(c.img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("%w: region %+v outside image", cv.ErrCapture, region)
	}
	return cv.CropRegion(c.img, rect), nil
}

func (c *imageCapturer) GetDimensions() (int, int) {
	return c.img.Bounds().Dx(), c.img.Bounds().Dy()
}

// parseRegion parses "x,y,width,height"
func parseRegion(s string) (*cv.Region, error) {
	values, err := parseInts(s, 4)
	if err != nil {
		return nil, fmt.Errorf("invalid region %q: %w", s, err)
	}
	region := cv.NewRegion(values[0], values[1], values[2], values[3])
	if region.Empty() {
		return nil, fmt.Errorf("invalid region %q: width and height must be positive", s)
	}
	return &region, nil
}

// parsePoint parses "x,y"
func parsePoint(s string) (motion.Waypoint, error) {
	values, err := parseInts(s, 2)
	if err != nil {
		return motion.Waypoint{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return motion.Waypoint{X: values[0], Y: values[1]}, nil
}

func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma-separated integers", n)
	}
	values := make([]int, n)
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
