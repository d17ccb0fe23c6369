package cv

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
)

// SaveImage writes img to path as PNG, creating parent directories
func SaveImage(img image.Image, path string) error {
	if img == nil {
		return fmt.Errorf("%w: %s: %w", ErrSave, path, ErrInvalidImage)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: failed to create directory %s: %w", ErrSave, dir, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("%w: failed to encode %s: %w", ErrSave, path, err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	return nil
}

// LoadImage decodes a PNG or BMP file into an *image.RGBA
func LoadImage(path string) (*image.RGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	return ToRGBA(img), nil
}
