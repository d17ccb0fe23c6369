package templates

import (
	"fmt"
	"image"
	"sync"

	"jordanella.com/autogui/internal/cv"
)

// CachedTemplate pairs a needle with its decoded image
type CachedTemplate struct {
	cv.Template
	image       *image.RGBA
	mu          sync.RWMutex
	preload     bool
	unloadAfter bool
	loads       int
}

// ImageCache loads needle images lazily and keeps them in memory
type ImageCache struct {
	templates map[string]*CachedTemplate
	mu        sync.RWMutex
	stats     CacheStats
}

// CacheStats tracks cache performance
type CacheStats struct {
	Hits        int64
	Misses      int64
	Loads       int64
	Unloads     int64
	PreloadFail int64
}

// NewImageCache creates a new image cache
func NewImageCache() *ImageCache {
	return &ImageCache{
		templates: make(map[string]*CachedTemplate),
	}
}

// Register adds a needle, decoding its image now when preload is set
func (ic *ImageCache) Register(template cv.Template, preload, unloadAfter bool) error {
	cached := &CachedTemplate{
		Template:    template,
		preload:     preload,
		unloadAfter: unloadAfter,
	}

	ic.mu.Lock()
	ic.templates[template.Name] = cached
	ic.mu.Unlock()

	if preload {
		if _, _, err := cached.getOrLoad(); err != nil {
			ic.count(func(s *CacheStats) { s.PreloadFail++ })
			return fmt.Errorf("failed to preload template %s: %w", template.Name, err)
		}
		ic.count(func(s *CacheStats) { s.Loads++ })
	}
	return nil
}

// Get returns the needle image, loading it on first use
func (ic *ImageCache) Get(name string) (*image.RGBA, cv.Template, error) {
	ic.mu.RLock()
	cached, ok := ic.templates[name]
	ic.mu.RUnlock()

	if !ok {
		return nil, cv.Template{}, fmt.Errorf("template '%s' not found in cache", name)
	}

	img, loaded, err := cached.getOrLoad()
	if err != nil {
		return nil, cv.Template{}, err
	}

	ic.count(func(s *CacheStats) {
		if loaded {
			s.Misses++
			s.Loads++
		} else {
			s.Hits++
		}
	})

	return img, cached.Template, nil
}

// Release drops the image of a needle marked unload_after
func (ic *ImageCache) Release(name string) error {
	ic.mu.RLock()
	cached, ok := ic.templates[name]
	ic.mu.RUnlock()

	if !ok {
		return fmt.Errorf("template '%s' not found in cache", name)
	}

	if cached.unloadAfter && cached.unload() {
		ic.count(func(s *CacheStats) { s.Unloads++ })
	}
	return nil
}

// PreloadAll loads all needles marked for preloading
func (ic *ImageCache) PreloadAll() error {
	var errs []error
	for _, cached := range ic.snapshot() {
		if !cached.preload {
			continue
		}
		_, loaded, err := cached.getOrLoad()
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("template %s: %w", cached.Name, err))
			ic.count(func(s *CacheStats) { s.PreloadFail++ })
		case loaded:
			ic.count(func(s *CacheStats) { s.Loads++ })
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to preload %d templates: %w", len(errs), errs[0])
	}
	return nil
}

// UnloadAll drops every cached image
func (ic *ImageCache) UnloadAll() {
	for _, cached := range ic.snapshot() {
		if cached.unload() {
			ic.count(func(s *CacheStats) { s.Unloads++ })
		}
	}
}

// Stats returns cache statistics
func (ic *ImageCache) Stats() CacheStats {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return ic.stats
}

func (ic *ImageCache) snapshot() []*CachedTemplate {
	ic.mu.RLock()
	defer ic.mu.RUnlock()

	out := make([]*CachedTemplate, 0, len(ic.templates))
	for _, t := range ic.templates {
		out = append(out, t)
	}
	return out
}

func (ic *ImageCache) count(update func(*CacheStats)) {
	ic.mu.Lock()
	update(&ic.stats)
	ic.mu.Unlock()
}

// getOrLoad returns the image and whether this call had to decode it
func (ct *CachedTemplate) getOrLoad() (*image.RGBA, bool, error) {
	ct.mu.RLock()
	img := ct.image
	ct.mu.RUnlock()
	if img != nil {
		return img, false, nil
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	// Double-check after acquiring write lock
	if ct.image != nil {
		return ct.image, false, nil
	}

	img, err := cv.LoadImage(ct.Path)
	if err != nil {
		return nil, false, fmt.Errorf("template %s: %w", ct.Name, err)
	}
	ct.image = img
	ct.loads++
	return img, true, nil
}

// unload reports whether an image was dropped
func (ct *CachedTemplate) unload() bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.image == nil {
		return false
	}
	ct.image = nil
	return true
}
