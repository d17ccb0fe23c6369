package cv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/corona10/goimagehash"
	"jordanella.com/autogui/internal/logging"
)

// TemplateRegistryInterface defines interface for template registry access
type TemplateRegistryInterface interface {
	Get(name string) (Template, bool)
	ImageCache() ImageCacheInterface
}

// ImageCacheInterface defines interface for image cache access
type ImageCacheInterface interface {
	Get(name string) (*image.RGBA, Template, error)
	Release(name string) error
}

// MatchRecorder persists the outcome of every locate call
type MatchRecorder interface {
	RecordLocate(needle string, result *MatchResult, elapsed time.Duration, locateErr error) error
}

// ServiceStats counts work done by a Service
type ServiceStats struct {
	Captures      int
	Scans         int
	SkippedFrames int
}

// Service ties a capture provider to the matcher
type Service struct {
	capturer Capturer
	config   CaptureConfig
	registry TemplateRegistryInterface
	recorder MatchRecorder
	reporter *logging.ErrorReporter
	logger   *logging.Logger

	// Applied before template and caller options
	defaults []Option

	// Needles decoded by the service when the registry has no image cache
	needleCache map[string]*image.RGBA

	// Frame caching for rapid consecutive lookups
	cachedFrame     *image.RGBA
	cachedFrameTime time.Time

	stats ServiceStats

	mu sync.RWMutex
}

// NewService creates a new CV service. A nil config uses DefaultCaptureConfig.
func NewService(capturer Capturer, config *CaptureConfig) *Service {
	if config == nil {
		config = DefaultCaptureConfig()
	}
	return &Service{
		capturer:    capturer,
		config:      *config,
		reporter:    logging.NewErrorReporter(),
		logger:      logging.NewLogger("CV"),
		needleCache: make(map[string]*image.RGBA),
	}
}

// WithTemplateRegistry sets the registry used to resolve needle names
func (s *Service) WithTemplateRegistry(registry TemplateRegistryInterface) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = registry
	return s
}

// WithRecorder sets the sink for locate history
func (s *Service) WithRecorder(recorder MatchRecorder) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = recorder
	return s
}

// WithErrorReporter replaces the default error reporter
func (s *Service) WithErrorReporter(reporter *logging.ErrorReporter) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reporter = reporter
	return s
}

// WithDefaultOptions sets options applied to every search. Template
// settings and per-call options override them.
func (s *Service) WithDefaultOptions(opts ...Option) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = opts
	return s
}

func (s *Service) withDefaults(opts []Option) []Option {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(append([]Option(nil), s.defaults...), opts...)
}

// Stats returns a snapshot of the service counters
func (s *Service) Stats() ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// CaptureFrame captures the full screen with optional caching
func (s *Service) CaptureFrame(useCache bool) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if useCache && s.config.UseCache && s.cachedFrame != nil {
		if time.Since(s.cachedFrameTime) < s.config.CacheDuration {
			return s.cachedFrame, nil
		}
	}

	frame, err := s.capturer.CaptureFrame()
	if err != nil {
		return nil, captureError(err)
	}
	s.stats.Captures++

	if s.config.UseCache {
		s.cachedFrame = frame
		s.cachedFrameTime = time.Now()
	}

	return frame, nil
}

// CaptureArea captures a region of the screen, bypassing the frame cache
func (s *Service) CaptureArea(region Region) (*image.RGBA, error) {
	if region.Empty() {
		return nil, fmt.Errorf("%w: empty region %dx%d", ErrCapture, region.Width, region.Height)
	}

	frame, err := s.capturer.CaptureArea(region)
	if err != nil {
		return nil, captureError(err)
	}

	s.mu.Lock()
	s.stats.Captures++
	s.mu.Unlock()

	return frame, nil
}

func captureError(err error) error {
	if errors.Is(err, ErrCapture) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCapture, err)
}

// InvalidateCache forces next capture to get fresh frame
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cachedFrame = nil
}

// GetDimensions returns the capture dimensions
func (s *Service) GetDimensions() (width, height int) {
	return s.capturer.GetDimensions()
}

// Screenshot captures the screen, or a region of it, and optionally saves
// the result. A failed save is logged and reported; the capture is still returned.
func (s *Service) Screenshot(region *Region, saveTo string) (*image.RGBA, error) {
	var (
		frame *image.RGBA
		err   error
	)
	if region != nil {
		frame, err = s.CaptureArea(*region)
	} else {
		frame, err = s.CaptureFrame(false)
	}
	if err != nil {
		return nil, err
	}

	if saveTo != "" {
		s.SaveFrame(frame, saveTo)
	}
	return frame, nil
}

// SaveFrame writes img to path. Failures are never fatal; it reports
// whether the file was written.
func (s *Service) SaveFrame(img image.Image, path string) bool {
	if err := SaveImage(img, path); err != nil {
		s.reporter.ReportErrorWithContext(
			logging.ErrorCategoryPersistence, logging.ErrorSeverityMedium,
			"CV", "Failed to save image", err,
			map[string]interface{}{"path": path},
		)
		return false
	}
	s.logger.DebugWithContext("Saved image", map[string]interface{}{"path": path})
	return true
}

// LocateNeedle searches the current frame for needle
func (s *Service) LocateNeedle(name string, needle *image.RGBA, opts ...Option) (*MatchResult, error) {
	frame, err := s.CaptureFrame(true)
	if err != nil {
		s.reporter.ReportError(logging.ErrorCategoryCapture, logging.ErrorSeverityHigh, "CV", "Failed to capture frame", err)
		return nil, err
	}
	return s.locateInFrame(name, frame, needle, s.withDefaults(opts))
}

// LocateOnScreen finds a registered needle in the current frame. Options
// given by the caller take precedence over the template's own settings.
func (s *Service) LocateOnScreen(name string, opts ...Option) (*MatchResult, Template, error) {
	needle, template, err := s.loadNeedle(name)
	if err != nil {
		return nil, Template{}, err
	}
	defer s.releaseNeedle(name)

	result, err := s.LocateNeedle(name, needle, append(template.Options(), opts...)...)
	return result, template, err
}

// LocateCenter returns the centre of the named needle on screen
func (s *Service) LocateCenter(name string, opts ...Option) (image.Point, error) {
	result, _, err := s.LocateOnScreen(name, opts...)
	if err != nil {
		return image.Point{}, err
	}
	return result.Center(), nil
}

// WaitFor polls the screen until the named needle is found, the timeout
// elapses or ctx is cancelled. Frames whose perceptual hash matches the last
// scanned frame are not rescanned.
func (s *Service) WaitFor(ctx context.Context, name string, timeout time.Duration, opts ...Option) (*MatchResult, error) {
	needle, template, err := s.loadNeedle(name)
	if err != nil {
		return nil, err
	}
	defer s.releaseNeedle(name)
	opts = s.withDefaults(append(template.Options(), opts...))

	deadline := time.Now().Add(timeout)
	var lastHash *goimagehash.ImageHash
	var lastResult *MatchResult

	for {
		if err := ctx.Err(); err != nil {
			return lastResult, err
		}

		s.InvalidateCache()
		frame, err := s.CaptureFrame(true)
		if err != nil {
			return nil, err
		}

		hash := s.frameHash(frame, template.Region)
		if s.unchanged(lastHash, hash) {
			s.mu.Lock()
			s.stats.SkippedFrames++
			s.mu.Unlock()
		} else {
			lastHash = hash
			result, err := s.locateInFrame(name, frame, needle, opts)
			if err == nil {
				return result, nil
			}
			if !errors.Is(err, ErrNoMatchFound) {
				return result, err
			}
			lastResult = result
		}

		if time.Now().After(deadline) {
			return lastResult, fmt.Errorf("%w: %s not found within %v", ErrNoMatchFound, name, timeout)
		}

		select {
		case <-ctx.Done():
			return lastResult, ctx.Err()
		case <-time.After(s.config.PollInterval):
		}
	}
}

func (s *Service) unchanged(previous, current *goimagehash.ImageHash) bool {
	if !s.config.SkipUnchanged || previous == nil || current == nil {
		return false
	}
	dist, err := previous.Distance(current)
	return err == nil && dist == 0
}

func (s *Service) frameHash(frame *image.RGBA, region *Region) *goimagehash.ImageHash {
	var img image.Image = frame
	if region != nil {
		img = frame.SubImage(region.Rect().Intersect(frame.Bounds()))
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		s.logger.DebugWithContext("Frame hash failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return hash
}

func (s *Service) locateInFrame(name string, frame, needle *image.RGBA, opts []Option) (*MatchResult, error) {
	start := time.Now()
	result, err := Locate(frame, needle, opts...)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.stats.Scans++
	recorder := s.recorder
	s.mu.Unlock()

	fields := map[string]interface{}{
		"needle":     name,
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if result != nil {
		fields["x"] = result.Location.X
		fields["y"] = result.Location.Y
		fields["score"] = result.Score
		fields["similarity"] = result.Similarity
	}

	switch {
	case err == nil:
		s.logger.InfoWithContext("Needle located", fields)
	case errors.Is(err, ErrNoMatchFound):
		s.logger.DebugWithContext("Needle not found", fields)
	default:
		s.reporter.ReportErrorWithContext(logging.ErrorCategoryMatching, logging.ErrorSeverityHigh, "CV", "Locate failed", err, fields)
	}

	if recorder != nil {
		if recErr := recorder.RecordLocate(name, result, elapsed, err); recErr != nil {
			s.reporter.ReportError(logging.ErrorCategoryDatabase, logging.ErrorSeverityLow, "CV", "Failed to record locate", recErr)
		}
	}

	return result, err
}

// Needle management

// loadNeedle resolves name through the registry. Images come from the
// registry's image cache when it has one; otherwise the service decodes
// them once and keeps them.
func (s *Service) loadNeedle(name string) (*image.RGBA, Template, error) {
	s.mu.RLock()
	registry := s.registry
	s.mu.RUnlock()

	if registry == nil {
		return nil, Template{}, fmt.Errorf("needle '%s': no template registry configured", name)
	}

	template, ok := registry.Get(name)
	if !ok {
		return nil, Template{}, fmt.Errorf("needle '%s' not found in registry", name)
	}

	if imageCache := registry.ImageCache(); imageCache != nil {
		img, _, err := imageCache.Get(name)
		if err != nil {
			return nil, Template{}, fmt.Errorf("failed to load needle '%s': %w", name, err)
		}
		return img, template, nil
	}

	s.mu.RLock()
	cached, ok := s.needleCache[name]
	s.mu.RUnlock()
	if ok {
		return cached, template, nil
	}

	img, err := LoadImage(template.Path)
	if err != nil {
		return nil, Template{}, fmt.Errorf("failed to load needle '%s': %w", name, err)
	}

	s.mu.Lock()
	s.needleCache[name] = img
	s.mu.Unlock()

	return img, template, nil
}

// releaseNeedle hands a needle back to the registry's image cache, which
// drops the images of templates marked unload_after
func (s *Service) releaseNeedle(name string) {
	s.mu.RLock()
	registry := s.registry
	s.mu.RUnlock()

	if registry == nil {
		return
	}
	imageCache := registry.ImageCache()
	if imageCache == nil {
		return
	}
	if err := imageCache.Release(name); err != nil {
		s.logger.DebugWithContext("Failed to release needle", map[string]interface{}{
			"needle": name,
			"error":  err.Error(),
		})
	}
}
