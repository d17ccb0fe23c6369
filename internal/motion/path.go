package motion

import "fmt"

// Waypoint is an integer screen coordinate
type Waypoint struct {
	X, Y int
}

func (w Waypoint) String() string {
	return fmt.Sprintf("(%d,%d)", w.X, w.Y)
}

// Bounds is the size of the display a path must fit in
type Bounds struct {
	Width, Height int
}

// Path is an ordered list of waypoints without consecutive duplicates.
// The last waypoint is always the destination.
type Path []Waypoint

// Destination returns the final waypoint
func (p Path) Destination() (Waypoint, bool) {
	if len(p) == 0 {
		return Waypoint{}, false
	}
	return p[len(p)-1], true
}

// Plan computes a stair-stepped path from origin to destination.
//
// The path starts at origin. For a sloped move the x axis advances one pixel
// per iteration while an accumulator seeded with the slope releases unit
// steps on the y axis whenever it reaches one. Horizontal and vertical moves
// step a single axis. The final waypoint is always destination.
//
// bounds caps the number of iterations at Width*Height.
func Plan(origin, destination Waypoint, bounds Bounds) (Path, error) {
	if origin == destination {
		return Path{destination}, nil
	}
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyBounds, bounds.Width, bounds.Height)
	}

	p := &planner{
		path:  Path{origin},
		cur:   origin,
		to:    destination,
		limit: bounds.Width * bounds.Height,
	}

	dx := destination.X - origin.X
	dy := destination.Y - origin.Y

	var err error
	switch {
	case dx == 0:
		err = p.vertical()
	case dy == 0:
		err = p.horizontal()
	default:
		err = p.sloped(abs(dx), abs(dy))
	}
	if err != nil {
		return nil, err
	}

	p.emit(destination)
	return p.path, nil
}

type planner struct {
	path  Path
	cur   Waypoint
	to    Waypoint
	limit int
}

// emit appends w unless it repeats the previous waypoint
func (p *planner) emit(w Waypoint) {
	if len(p.path) > 0 && p.path[len(p.path)-1] == w {
		return
	}
	p.path = append(p.path, w)
}

func (p *planner) stepX() {
	p.cur.X += sign(p.to.X - p.cur.X)
	p.emit(p.cur)
}

func (p *planner) stepY() {
	p.cur.Y += sign(p.to.Y - p.cur.Y)
	p.emit(p.cur)
}

func (p *planner) horizontal() error {
	for i := 0; p.cur.X != p.to.X; i++ {
		if i >= p.limit {
			return p.diverged()
		}
		p.stepX()
	}
	return nil
}

func (p *planner) vertical() error {
	for i := 0; p.cur.Y != p.to.Y; i++ {
		if i >= p.limit {
			return p.diverged()
		}
		p.stepY()
	}
	return nil
}

// sloped walks the x axis and drains the slope accumulator into y steps.
// The accumulator is kept in units of 1/|dx| so it never drifts.
func (p *planner) sloped(adx, ady int) error {
	acc := ady
	for i := 0; ; i++ {
		if i >= p.limit {
			return p.diverged()
		}
		for acc >= adx && p.cur.Y != p.to.Y {
			p.stepY()
			acc -= adx
		}
		if p.cur.X == p.to.X {
			return nil
		}
		p.stepX()
		acc += ady
	}
}

func (p *planner) diverged() error {
	return fmt.Errorf("%w: %v to %v after %d iterations", ErrPathDiverged, p.path[0], p.to, p.limit)
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
