package motion

import (
	"context"
	"time"

	"jordanella.com/autogui/internal/logging"
)

// MoveRequest asks for a pointer move from From to To over Duration
type MoveRequest struct {
	From     Waypoint
	To       Waypoint
	Duration time.Duration
}

// MoveRecorder persists the outcome of every move
type MoveRecorder interface {
	RecordMove(req MoveRequest, waypoints int, elapsed time.Duration, moveErr error) error
}

// Mover plans and plays pointer moves
type Mover struct {
	pointer  Pointer
	player   *Player
	recorder MoveRecorder
	logger   *logging.Logger
}

// NewMover creates a mover driving pointer
func NewMover(pointer Pointer) *Mover {
	return &Mover{
		pointer: pointer,
		player:  NewPlayer(pointer),
		logger:  logging.NewLogger("Mover"),
	}
}

// WithRecorder sets the sink for move history
func (m *Mover) WithRecorder(recorder MoveRecorder) *Mover {
	m.recorder = recorder
	return m
}

// Player returns the underlying player
func (m *Mover) Player() *Player {
	return m.player
}

// Move performs req. A zero duration skips planning and moves once;
// otherwise the path is planned within the main display and tweened.
func (m *Mover) Move(ctx context.Context, req MoveRequest) error {
	start := time.Now()
	waypoints, err := m.move(ctx, req)
	elapsed := time.Since(start)

	fields := map[string]interface{}{
		"from":       req.From.String(),
		"to":         req.To.String(),
		"waypoints":  waypoints,
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		m.logger.ErrorWithContext("Pointer move failed", err, fields)
	} else {
		m.logger.DebugWithContext("Pointer moved", fields)
	}

	if m.recorder != nil {
		if recErr := m.recorder.RecordMove(req, waypoints, elapsed, err); recErr != nil {
			m.logger.Warn("Failed to record move: " + recErr.Error())
		}
	}

	return err
}

func (m *Mover) move(ctx context.Context, req MoveRequest) (int, error) {
	if req.Duration == 0 {
		return 1, m.player.Play(ctx, Path{req.To}, 0)
	}

	width, height, err := m.pointer.MainDisplaySize()
	if err != nil {
		return 0, err
	}

	path, err := Plan(req.From, req.To, Bounds{Width: int(width), Height: int(height)})
	if err != nil {
		return 0, err
	}

	return len(path), m.player.Play(ctx, path, req.Duration)
}
