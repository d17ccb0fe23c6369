// Package desktop drives the local display: screen capture through
// vova616/screenshot and pointer movement through robotgo.
package desktop

import (
	"fmt"
	"image"
	"math"

	"github.com/go-vgo/robotgo"
	"github.com/vova616/screenshot"

	"jordanella.com/autogui/internal/cv"
	"jordanella.com/autogui/internal/logging"
)

// Backend captures the primary screen and moves the system pointer
type Backend struct {
	captureScreen func() (*image.RGBA, error)
	captureRect   func(image.Rectangle) (*image.RGBA, error)
	screenRect    func() (image.Rectangle, error)
	move          func(x, y int)
	logger        *logging.Logger
}

// NewBackend creates a backend for the local display
func NewBackend() *Backend {
	return &Backend{
		captureScreen: screenshot.CaptureScreen,
		captureRect:   screenshot.CaptureRect,
		screenRect:    screenshot.ScreenRect,
		move: func(x, y int) {
			robotgo.Move(x, y)
		},
		logger: logging.NewLogger("Desktop"),
	}
}

// CaptureFrame captures the whole primary screen
func (b *Backend) CaptureFrame() (*image.RGBA, error) {
	img, err := b.captureScreen()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cv.ErrCapture, err)
	}
	return img, nil
}

// CaptureArea captures region of the primary screen
func (b *Backend) CaptureArea(region cv.Region) (*image.RGBA, error) {
	screen, err := b.screenRect()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cv.ErrCapture, err)
	}

	rect := region.Rect().Intersect(screen)
	if rect.Empty() {
		return nil, fmt.Errorf("%w: region %+v outside screen %v", cv.ErrCapture, region, screen)
	}

	img, err := b.captureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cv.ErrCapture, err)
	}
	return img, nil
}

// GetDimensions returns the primary screen size. The capturer interface
// has no error return, so a failed lookup is logged at warn level and
// reported as 0x0.
func (b *Backend) GetDimensions() (int, int) {
	screen, err := b.screenRect()
	if err != nil {
		b.logger.Warn("Failed to read screen size: " + err.Error())
		return 0, 0
	}
	return screen.Dx(), screen.Dy()
}

// MoveTo places the pointer at (x, y)
func (b *Backend) MoveTo(x, y int32) error {
	b.move(int(x), int(y))
	return nil
}

// MainDisplaySize reports the primary screen size
func (b *Backend) MainDisplaySize() (int32, int32, error) {
	screen, err := b.screenRect()
	if err != nil {
		return 0, 0, err
	}
	if screen.Dx() > math.MaxInt32 || screen.Dy() > math.MaxInt32 {
		return 0, 0, fmt.Errorf("screen %v exceeds pointer range", screen)
	}
	return int32(screen.Dx()), int32(screen.Dy()), nil
}

// Location returns the current pointer position
func (b *Backend) Location() (int, int) {
	return robotgo.Location()
}
