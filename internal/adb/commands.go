package adb

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"jordanella.com/autogui/internal/cv"
)

// CaptureFrame grabs the device screen as PNG and decodes it
func (c *Controller) CaptureFrame() (*image.RGBA, error) {
	data, err := c.ExecOut("screencap -p")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cv.ErrCapture, err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode screencap: %w", cv.ErrCapture, err)
	}

	frame := cv.ToRGBA(img)

	c.mu.Lock()
	c.width, c.height = frame.Bounds().Dx(), frame.Bounds().Dy()
	c.mu.Unlock()

	return frame, nil
}

// CaptureArea captures the full screen and crops it; screencap has no region mode
func (c *Controller) CaptureArea(region cv.Region) (*image.RGBA, error) {
	frame, err := c.CaptureFrame()
	if err != nil {
		return nil, err
	}

	rect := region.Rect().Intersect(frame.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("%w: region %+v outside %v", cv.ErrCapture, region, frame.Bounds())
	}
	return cv.CropRegion(frame, rect), nil
}

// GetDimensions returns the last known screen size, querying wm size on first use
func (c *Controller) GetDimensions() (int, int) {
	w, h, err := c.GetWindowSize()
	if err != nil {
		c.logger.Warn("Failed to read screen size: " + err.Error())
		return 0, 0
	}
	return w, h
}

// MoveTo hovers a mouse pointer to (x, y)
func (c *Controller) MoveTo(x, y int32) error {
	_, err := c.Shell(fmt.Sprintf("input mouse motionevent MOVE %d %d", x, y))
	return err
}

// MainDisplaySize reports the device screen size
func (c *Controller) MainDisplaySize() (int32, int32, error) {
	w, h, err := c.GetWindowSize()
	if err != nil {
		return 0, 0, err
	}
	return int32(w), int32(h), nil
}

// GetWindowSize returns the current screen size, preferring the override size
func (c *Controller) GetWindowSize() (width, height int, err error) {
	c.mu.Lock()
	if c.width > 0 && c.height > 0 {
		defer c.mu.Unlock()
		return c.width, c.height, nil
	}
	c.mu.Unlock()

	output, err := c.Shell("wm size")
	if err != nil {
		return 0, 0, err
	}

	w, h, err := parseWindowSize(output)
	if err != nil {
		return 0, 0, err
	}

	c.mu.Lock()
	c.width, c.height = w, h
	c.mu.Unlock()

	return w, h, nil
}

// parseWindowSize reads "Physical size: 1080x1920" with an optional
// "Override size:" line, which wins when present
func parseWindowSize(output string) (int, int, error) {
	var w, h int
	found := false

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		var lw, lh int
		switch {
		case strings.HasPrefix(line, "Override size:"):
			if _, err := fmt.Sscanf(line, "Override size: %dx%d", &lw, &lh); err == nil {
				return lw, lh, nil
			}
		case strings.HasPrefix(line, "Physical size:"):
			if _, err := fmt.Sscanf(line, "Physical size: %dx%d", &lw, &lh); err == nil {
				w, h, found = lw, lh, true
			}
		}
	}

	if !found {
		return 0, 0, fmt.Errorf("failed to parse window size: %s", output)
	}
	return w, h, nil
}
