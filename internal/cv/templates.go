package cv

// Template describes a named needle image and how to search for it
type Template struct {
	Name       string
	Path       string
	Confidence float64
	Stride     int
	Region     *Region
}

// InRegion sets the search region for the template
func (t Template) InRegion(x, y, width, height int) Template {
	region := NewRegion(x, y, width, height)
	t.Region = &region
	return t
}

// Options converts the template's search settings into Locate options
func (t Template) Options() []Option {
	var opts []Option
	if t.Confidence > 0 {
		opts = append(opts, WithConfidence(t.Confidence))
	}
	if t.Stride > 0 {
		opts = append(opts, WithStride(t.Stride))
	}
	if t.Region != nil {
		opts = append(opts, WithRegion(t.Region))
	}
	return opts
}
