package cv

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
)

// MatchResult contains template matching results
type MatchResult struct {
	Found       bool
	Location    image.Point // Top-left corner of the best candidate
	Size        image.Point // Needle size
	Score       int         // Mean per-pixel channel difference, 0 = identical
	Similarity  float64     // Score normalized to 0-1, 1 = identical
	Confidence  float64     // Threshold the caller asked for
	Comparisons int         // Candidate positions evaluated
}

// Center returns the centre of the matched area
func (r *MatchResult) Center() image.Point {
	return image.Point{
		X: r.Location.X + r.Size.X/2,
		Y: r.Location.Y + r.Size.Y/2,
	}
}

// Rect returns the matched area in haystack coordinates
func (r *MatchResult) Rect() image.Rectangle {
	return image.Rectangle{Min: r.Location, Max: r.Location.Add(r.Size)}
}

// candidate is the accumulator of the best-so-far fold
type candidate struct {
	score int
	loc   image.Point
	seen  int
}

func (c candidate) valid() bool {
	return c.seen > 0
}

// merge folds other into c. Only a strictly smaller score replaces the
// current best, so the earliest candidate in scan order wins ties.
func (c candidate) merge(other candidate) candidate {
	if !other.valid() {
		return c
	}
	seen := c.seen + other.seen
	if !c.valid() || other.score < c.score {
		other.seen = seen
		return other
	}
	c.seen = seen
	return c
}

// Locate finds needle inside haystack by brute-force pixel difference scanning.
//
// Every row of the search area is visited; columns are sampled every stride
// pixels across the full width. Each candidate is scored as the rounded mean
// over needle pixels of (|dR|+|dG|+|dB|)/3. The lowest score wins.
//
// When the best candidate's similarity is below the requested confidence the
// result is still returned, with Found unset, alongside ErrNoMatchFound.
// Neither image is modified.
func Locate(haystack, needle *image.RGBA, opts ...Option) (*MatchResult, error) {
	if haystack == nil || needle == nil {
		return nil, ErrInvalidImage
	}
	o := applyOptions(opts)

	if math.IsNaN(o.confidence) || o.confidence < 0 || o.confidence > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidConfidence, o.confidence)
	}

	haystackBounds := haystack.Bounds()
	needleBounds := needle.Bounds()
	if needleBounds.Empty() {
		return nil, ErrInvalidImage
	}

	searchBounds := haystackBounds
	if o.region != nil {
		searchBounds = o.region.Rect().Intersect(haystackBounds)
	}

	needleWidth := needleBounds.Dx()
	needleHeight := needleBounds.Dy()
	if needleWidth > searchBounds.Dx() || needleHeight > searchBounds.Dy() {
		return nil, fmt.Errorf("%w: needle %dx%d, search area %dx%d",
			ErrNeedleTooLarge, needleWidth, needleHeight, searchBounds.Dx(), searchBounds.Dy())
	}

	stride := o.stride
	if stride == 0 {
		stride = DefaultStride
	}
	pixelCount := haystackBounds.Dx() * haystackBounds.Dy()
	if stride < 0 || stride > pixelCount {
		return nil, fmt.Errorf("%w: stride %d, haystack has %d pixels", ErrStrideTooLarge, stride, pixelCount)
	}

	s := scan{
		haystack: haystack,
		needle:   needle,
		minX:     searchBounds.Min.X,
		maxX:     searchBounds.Max.X - needleWidth,
		stride:   stride,
	}
	// Inclusive bounds so a needle touching the bottom or right edge is reachable
	minY := searchBounds.Min.Y
	maxY := searchBounds.Max.Y - needleHeight

	var best candidate
	if o.workers > 1 {
		best = s.parallel(minY, maxY, o.workers)
	} else {
		best = s.rows(minY, maxY)
	}

	if !best.valid() {
		return nil, ErrNoMatchFound
	}

	result := &MatchResult{
		Location:    best.loc,
		Size:        needleBounds.Size(),
		Score:       best.score,
		Similarity:  1.0 - float64(best.score)/255.0,
		Confidence:  o.confidence,
		Comparisons: best.seen,
	}
	if result.Similarity < o.confidence {
		return result, fmt.Errorf("%w: best score %d at (%d,%d), similarity %.4f below confidence %.4f",
			ErrNoMatchFound, best.score, best.loc.X, best.loc.Y, result.Similarity, o.confidence)
	}
	result.Found = true
	return result, nil
}

// scan holds the fixed inputs of one Locate call
type scan struct {
	haystack   *image.RGBA
	needle     *image.RGBA
	minX, maxX int
	stride     int
}

// rows folds every candidate of rows minY..maxY (inclusive)
func (s scan) rows(minY, maxY int) candidate {
	var best candidate
	for y := minY; y <= maxY; y++ {
		for x := s.minX; x <= s.maxX; x += s.stride {
			best = best.merge(candidate{
				score: scoreAt(s.haystack, s.needle, x, y),
				loc:   image.Point{X: x, Y: y},
				seen:  1,
			})
		}
	}
	return best
}

// parallel maps contiguous row bands onto workers and reduces the partial
// results in band order, which gives the same answer as rows.
func (s scan) parallel(minY, maxY, workers int) candidate {
	total := maxY - minY + 1
	if workers > total {
		workers = total
	}
	band := (total + workers - 1) / workers

	partials := make([]candidate, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := minY + i*band
		end := min(start+band-1, maxY)
		if start > end {
			continue
		}
		wg.Add(1)
		go func(i, start, end int) {
			defer wg.Done()
			partials[i] = s.rows(start, end)
		}(i, start, end)
	}
	wg.Wait()

	var best candidate
	for _, p := range partials {
		best = best.merge(p)
	}
	return best
}

// scoreAt computes the overall score of needle placed at (x, y) in haystack
func scoreAt(haystack, needle *image.RGBA, x, y int) int {
	needleBounds := needle.Bounds()
	width := needleBounds.Dx()
	height := needleBounds.Dy()

	total := 0
	for ny := 0; ny < height; ny++ {
		hIdx := haystack.PixOffset(x, y+ny)
		nIdx := needle.PixOffset(needleBounds.Min.X, needleBounds.Min.Y+ny)
		for nx := 0; nx < width; nx++ {
			diff := abs(int(haystack.Pix[hIdx])-int(needle.Pix[nIdx])) +
				abs(int(haystack.Pix[hIdx+1])-int(needle.Pix[nIdx+1])) +
				abs(int(haystack.Pix[hIdx+2])-int(needle.Pix[nIdx+2]))
			total += diff / 3
			hIdx += 4
			nIdx += 4
		}
	}

	pixels := width * height
	return (total + pixels/2) / pixels
}

// Helper functions

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// CropRegion copies a rectangular region out of an image. The copy starts at (0,0).
func CropRegion(img *image.RGBA, rect image.Rectangle) *image.RGBA {
	rect = rect.Intersect(img.Bounds())
	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		src := img.PixOffset(rect.Min.X, y)
		dst := cropped.PixOffset(0, y-rect.Min.Y)
		copy(cropped.Pix[dst:dst+rect.Dx()*4], img.Pix[src:src+rect.Dx()*4])
	}

	return cropped
}

// DebugMatch returns a copy of haystack with the match outlined in red,
// or in yellow when the best candidate fell below the confidence
func DebugMatch(haystack *image.RGBA, result *MatchResult) *image.RGBA {
	debug := image.NewRGBA(haystack.Bounds())
	draw.Draw(debug, debug.Bounds(), haystack, haystack.Bounds().Min, draw.Src)

	if result == nil {
		return debug
	}

	rect := result.Rect()
	col := color.RGBA{255, 0, 0, 255}
	if !result.Found {
		col = color.RGBA{255, 255, 0, 255}
	}
	drawRect(debug, rect, col)

	return debug
}

func drawRect(img *image.RGBA, rect image.Rectangle, col color.RGBA) {
	// Top and bottom
	for x := rect.Min.X; x < rect.Max.X; x++ {
		img.SetRGBA(x, rect.Min.Y, col)
		img.SetRGBA(x, rect.Max.Y-1, col)
	}
	// Left and right
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		img.SetRGBA(rect.Min.X, y, col)
		img.SetRGBA(rect.Max.X-1, y, col)
	}
}
