package database

import "time"

// LocateRecord is a row of locate_history
type LocateRecord struct {
	ID           int64     `db:"id"`
	Needle       string    `db:"needle"`
	Found        bool      `db:"found"`
	X            *int      `db:"x"`
	Y            *int      `db:"y"`
	Score        *int      `db:"score"`
	Similarity   *float64  `db:"similarity"`
	Confidence   *float64  `db:"confidence"`
	Comparisons  *int      `db:"comparisons"`
	ElapsedMs    int64     `db:"elapsed_ms"`
	ErrorMessage *string   `db:"error_message"`
	LocatedAt    time.Time `db:"located_at"`
}

// MoveRecord is a row of move_history
type MoveRecord struct {
	ID           int64     `db:"id"`
	FromX        int       `db:"from_x"`
	FromY        int       `db:"from_y"`
	ToX          int       `db:"to_x"`
	ToY          int       `db:"to_y"`
	DurationMs   int64     `db:"duration_ms"`
	Waypoints    int       `db:"waypoints"`
	ElapsedMs    int64     `db:"elapsed_ms"`
	ErrorMessage *string   `db:"error_message"`
	MovedAt      time.Time `db:"moved_at"`
}

// ErrorLog is a row of error_log
type ErrorLog struct {
	ID           int64     `db:"id"`
	Category     string    `db:"category"`
	Severity     string    `db:"severity"`
	Component    string    `db:"component"`
	Message      string    `db:"message"`
	ErrorMessage *string   `db:"error_message"`
	Context      *string   `db:"context"`
	OccurredAt   time.Time `db:"occurred_at"`
}

// NeedleStats summarises the locate history of one needle
type NeedleStats struct {
	Needle        string
	Attempts      int
	Found         int
	AvgElapsedMs  float64
	AvgSimilarity float64
}
