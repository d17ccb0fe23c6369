package cv

import (
	"image"
	"time"
)

// Capturer is implemented by screen capture providers
type Capturer interface {
	CaptureFrame() (*image.RGBA, error)
	CaptureArea(region Region) (*image.RGBA, error)
	GetDimensions() (width, height int)
}

// CaptureConfig holds configuration for frame capture
type CaptureConfig struct {
	UseCache      bool          // Reuse the last frame for rapid consecutive lookups
	CacheDuration time.Duration // Max age of a cached frame
	PollInterval  time.Duration // Delay between captures while waiting for a needle
	SkipUnchanged bool          // Skip rescanning frames with an identical perceptual hash
}

// DefaultCaptureConfig returns recommended capture configuration
func DefaultCaptureConfig() *CaptureConfig {
	return &CaptureConfig{
		UseCache:      true,
		CacheDuration: 100 * time.Millisecond,
		PollInterval:  50 * time.Millisecond,
		SkipUnchanged: true,
	}
}

// ToRGBA converts any decoded image into an *image.RGBA anchored at (0,0)
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rgba.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return rgba
}
