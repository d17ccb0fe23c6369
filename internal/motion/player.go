package motion

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"jordanella.com/autogui/internal/logging"
)

// Pointer is implemented by pointer movement providers
type Pointer interface {
	MoveTo(x, y int32) error
	MainDisplaySize() (width, height int32, err error)
}

// DefaultSpinThreshold is how much of each wait is busy-waited instead of slept
const DefaultSpinThreshold = 2 * time.Millisecond

// Player replays paths through a Pointer
type Player struct {
	pointer       Pointer
	spinThreshold time.Duration
	logger        *logging.Logger
}

// NewPlayer creates a player driving pointer
func NewPlayer(pointer Pointer) *Player {
	return &Player{
		pointer:       pointer,
		spinThreshold: DefaultSpinThreshold,
		logger:        logging.NewLogger("Player"),
	}
}

// WithSpinThreshold sets the busy-wait tail of every pause. Zero disables spinning.
func (pl *Player) WithSpinThreshold(d time.Duration) *Player {
	pl.spinThreshold = d
	return pl
}

// Play moves the pointer through path, spreading total evenly across the
// waypoints. A zero total jumps straight to the destination with a single move.
// Every coordinate is range-checked before the first move. Provider errors are
// returned unchanged; cancellation is checked before each move and each pause.
func (pl *Player) Play(ctx context.Context, path Path, total time.Duration) error {
	destination, ok := path.Destination()
	if !ok {
		return ErrEmptyPath
	}
	if total < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, total)
	}

	if total == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		x, y, err := ToProvider(destination)
		if err != nil {
			return err
		}
		return pl.pointer.MoveTo(x, y)
	}

	points := make([][2]int32, len(path))
	for i, wp := range path {
		x, y, err := ToProvider(wp)
		if err != nil {
			return err
		}
		points[i] = [2]int32{x, y}
	}

	step := total / time.Duration(len(path))
	pl.logger.DebugWithContext("Playing path", map[string]interface{}{
		"waypoints": len(path),
		"total_ms":  total.Milliseconds(),
		"step_us":   step.Microseconds(),
	})

	start := time.Now()
	for i, pt := range points {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := pl.pointer.MoveTo(pt[0], pt[1]); err != nil {
			return err
		}
		// Deadlines are absolute so per-step overshoot does not accumulate
		if err := pl.sleepUntil(ctx, start.Add(step*time.Duration(i+1))); err != nil {
			return err
		}
	}

	return nil
}

// sleepUntil blocks until deadline: a timer for the bulk of the wait, then a
// short spin for sub-millisecond accuracy.
func (pl *Player) sleepUntil(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if coarse := time.Until(deadline) - pl.spinThreshold; coarse > 0 {
		timer := time.NewTimer(coarse)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}

// ToProvider converts a waypoint into the provider's int32 coordinate range
func ToProvider(w Waypoint) (int32, int32, error) {
	if w.X < math.MinInt32 || w.X > math.MaxInt32 || w.Y < math.MinInt32 || w.Y > math.MaxInt32 {
		return 0, 0, fmt.Errorf("%w: %v", ErrConversion, w)
	}
	return int32(w.X), int32(w.Y), nil
}
