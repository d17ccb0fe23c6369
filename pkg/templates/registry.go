package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"jordanella.com/autogui/internal/cv"
	"jordanella.com/autogui/internal/logging"
)

// TemplateRegistry holds named needles loaded from YAML files
type TemplateRegistry struct {
	mu         sync.RWMutex
	templates  map[string]cv.Template
	basePath   string      // Needle image paths are relative to this
	imageCache *ImageCache // nil when caching is disabled
	logger     *logging.Logger
}

// TemplateDefinition represents a needle in the YAML file
type TemplateDefinition struct {
	Name        string     `yaml:"name"`
	Path        string     `yaml:"path"`
	Confidence  float64    `yaml:"confidence,omitempty"`
	Stride      int        `yaml:"stride,omitempty"`
	Region      *RegionDef `yaml:"region,omitempty"`
	Preload     bool       `yaml:"preload,omitempty"`
	UnloadAfter bool       `yaml:"unload_after,omitempty"`
}

// RegionDef is a search region in the YAML file
type RegionDef struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// TemplateFile represents the structure of a template YAML file
type TemplateFile struct {
	Templates []TemplateDefinition `yaml:"templates"`
}

// NewTemplateRegistry creates a registry resolving image paths against basePath
func NewTemplateRegistry(basePath string) *TemplateRegistry {
	return &TemplateRegistry{
		templates:  make(map[string]cv.Template),
		basePath:   basePath,
		imageCache: NewImageCache(),
		logger:     logging.NewLogger("Templates"),
	}
}

// WithoutImageCache disables image caching for this registry
func (tr *TemplateRegistry) WithoutImageCache() *TemplateRegistry {
	tr.imageCache = nil
	return tr
}

// LoadFromFile loads needles from a YAML file
func (tr *TemplateRegistry) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read template file %s: %w", filePath, err)
	}

	var file TemplateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal template YAML: %w", err)
	}

	// Validate the whole file before touching the registry
	parsed := make([]cv.Template, 0, len(file.Templates))
	for i, def := range file.Templates {
		template, err := tr.fromDefinition(def)
		if err != nil {
			return fmt.Errorf("template %d: %w", i+1, err)
		}
		parsed = append(parsed, template)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	for i, template := range parsed {
		tr.templates[template.Name] = template

		if tr.imageCache != nil {
			def := file.Templates[i]
			if err := tr.imageCache.Register(template, def.Preload, def.UnloadAfter); err != nil {
				// Still loadable on demand
				tr.logger.Warn(err.Error())
			}
		}
	}

	tr.logger.InfoWithContext("Loaded templates", map[string]interface{}{
		"file":  filePath,
		"count": len(parsed),
	})
	return nil
}

func (tr *TemplateRegistry) fromDefinition(def TemplateDefinition) (cv.Template, error) {
	if def.Name == "" {
		return cv.Template{}, fmt.Errorf("name cannot be empty")
	}
	if def.Path == "" {
		return cv.Template{}, fmt.Errorf("%s: path cannot be empty", def.Name)
	}
	if def.Confidence < 0 || def.Confidence > 1 {
		return cv.Template{}, fmt.Errorf("%s: %w: %v", def.Name, cv.ErrInvalidConfidence, def.Confidence)
	}
	if def.Stride < 0 {
		return cv.Template{}, fmt.Errorf("%s: stride cannot be negative", def.Name)
	}

	path := def.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(tr.basePath, path)
	}

	template := cv.Template{
		Name:       def.Name,
		Path:       path,
		Confidence: def.Confidence,
		Stride:     def.Stride,
	}
	if r := def.Region; r != nil {
		template = template.InRegion(r.X, r.Y, r.Width, r.Height)
		if template.Region.Empty() {
			return cv.Template{}, fmt.Errorf("%s: region must have a positive size", def.Name)
		}
	}
	return template, nil
}

// LoadFromDirectory loads every .yaml and .yml file in a directory
func (tr *TemplateRegistry) LoadFromDirectory(dirPath string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read template directory %s: %w", dirPath, err)
	}

	var loadErrors []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		if err := tr.LoadFromFile(filepath.Join(dirPath, entry.Name())); err != nil {
			loadErrors = append(loadErrors, fmt.Errorf("file %s: %w", entry.Name(), err))
		}
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("failed to load %d template files (first error): %w", len(loadErrors), loadErrors[0])
	}

	return nil
}

// Get retrieves a needle by name
func (tr *TemplateRegistry) Get(name string) (cv.Template, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	template, ok := tr.templates[name]
	return template, ok
}

// Register adds a needle programmatically
func (tr *TemplateRegistry) Register(template cv.Template) error {
	if template.Name == "" {
		return fmt.Errorf("template name cannot be empty")
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.templates[template.Name] = template
	if tr.imageCache != nil {
		return tr.imageCache.Register(template, false, false)
	}
	return nil
}

// Has checks if a needle exists in the registry
func (tr *TemplateRegistry) Has(name string) bool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	_, ok := tr.templates[name]
	return ok
}

// List returns all needle names, sorted
func (tr *TemplateRegistry) List() []string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	names := make([]string, 0, len(tr.templates))
	for name := range tr.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of needles in the registry
func (tr *TemplateRegistry) Count() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	return len(tr.templates)
}

// ImageCache returns the image cache, or nil when disabled
func (tr *TemplateRegistry) ImageCache() cv.ImageCacheInterface {
	if tr.imageCache == nil {
		return nil
	}
	return tr.imageCache
}

// PreloadAll loads every needle marked for preloading
func (tr *TemplateRegistry) PreloadAll() error {
	if tr.imageCache == nil {
		return fmt.Errorf("image cache not enabled")
	}
	return tr.imageCache.PreloadAll()
}

// UnloadAll drops every decoded needle image
func (tr *TemplateRegistry) UnloadAll() {
	if tr.imageCache != nil {
		tr.imageCache.UnloadAll()
	}
}

// CacheStats returns image cache statistics
func (tr *TemplateRegistry) CacheStats() CacheStats {
	if tr.imageCache == nil {
		return CacheStats{}
	}
	return tr.imageCache.Stats()
}
