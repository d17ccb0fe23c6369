package cv

// Locate options
type Option func(*locateOptions)

type locateOptions struct {
	confidence float64
	stride     int
	region     *Region
	workers    int
}

const (
	// DefaultConfidence only accepts pixel-identical matches
	DefaultConfidence = 0.999
	DefaultStride     = 1
)

func defaultLocateOptions() locateOptions {
	return locateOptions{
		confidence: DefaultConfidence,
		stride:     DefaultStride,
		workers:    1,
	}
}

func applyOptions(opts []Option) locateOptions {
	o := defaultLocateOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithConfidence sets the similarity threshold, 0.0-1.0
func WithConfidence(c float64) Option {
	return func(opts *locateOptions) {
		opts.confidence = c
	}
}

// WithStride sets the column sampling step. Zero is treated as 1.
func WithStride(s int) Option {
	return func(opts *locateOptions) {
		opts.stride = s
	}
}

// WithRegion limits the search to a region of the haystack
func WithRegion(r *Region) Option {
	return func(opts *locateOptions) {
		opts.region = r
	}
}

// WithWorkers spreads the row scan over n goroutines
func WithWorkers(n int) Option {
	return func(opts *locateOptions) {
		opts.workers = n
	}
}
