package database

import (
	"database/sql"
	"fmt"
	"time"

	"jordanella.com/autogui/internal/cv"
	"jordanella.com/autogui/internal/motion"
)

// RecordLocate stores the outcome of a locate call. result may be nil when
// validation failed before scanning.
func (db *DB) RecordLocate(needle string, result *cv.MatchResult, elapsed time.Duration, locateErr error) error {
	var (
		x, y, score, comparisons *int
		similarity, confidence   *float64
		found                    bool
	)
	if result != nil {
		found = result.Found
		x, y = &result.Location.X, &result.Location.Y
		score, comparisons = &result.Score, &result.Comparisons
		similarity, confidence = &result.Similarity, &result.Confidence
	}

	return db.ExecTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO locate_history (
				needle, found, x, y, score, similarity, confidence,
				comparisons, elapsed_ms, error_message, located_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, needle, found, x, y, score, similarity, confidence,
			comparisons, elapsed.Milliseconds(), errorText(locateErr), time.Now())
		if err != nil {
			return fmt.Errorf("failed to insert locate history: %w", err)
		}
		return nil
	})
}

// RecordMove stores the outcome of a pointer move
func (db *DB) RecordMove(req motion.MoveRequest, waypoints int, elapsed time.Duration, moveErr error) error {
	return db.ExecTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO move_history (
				from_x, from_y, to_x, to_y, duration_ms, waypoints,
				elapsed_ms, error_message, moved_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, req.From.X, req.From.Y, req.To.X, req.To.Y, req.Duration.Milliseconds(),
			waypoints, elapsed.Milliseconds(), errorText(moveErr), time.Now())
		if err != nil {
			return fmt.Errorf("failed to insert move history: %w", err)
		}
		return nil
	})
}

// RecentLocates returns the newest locate records, optionally for one needle
func (db *DB) RecentLocates(needle string, limit int) ([]*LocateRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			id, needle, found, x, y, score, similarity, confidence,
			comparisons, elapsed_ms, error_message, located_at
		FROM locate_history
	`
	args := []interface{}{}
	if needle != "" {
		query += " WHERE needle = ?"
		args = append(args, needle)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*LocateRecord{}
	for rows.Next() {
		r := &LocateRecord{}
		err := rows.Scan(
			&r.ID, &r.Needle, &r.Found, &r.X, &r.Y, &r.Score, &r.Similarity,
			&r.Confidence, &r.Comparisons, &r.ElapsedMs, &r.ErrorMessage, &r.LocatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// RecentMoves returns the newest move records
func (db *DB) RecentMoves(limit int) ([]*MoveRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.Query(`
		SELECT
			id, from_x, from_y, to_x, to_y, duration_ms, waypoints,
			elapsed_ms, error_message, moved_at
		FROM move_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*MoveRecord{}
	for rows.Next() {
		r := &MoveRecord{}
		err := rows.Scan(
			&r.ID, &r.FromX, &r.FromY, &r.ToX, &r.ToY, &r.DurationMs,
			&r.Waypoints, &r.ElapsedMs, &r.ErrorMessage, &r.MovedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// GetNeedleStats aggregates locate history per needle
func (db *DB) GetNeedleStats() ([]*NeedleStats, error) {
	rows, err := db.conn.Query(`
		SELECT
			needle,
			COUNT(*),
			SUM(CASE WHEN found = 1 THEN 1 ELSE 0 END),
			AVG(elapsed_ms),
			COALESCE(AVG(similarity), 0)
		FROM locate_history
		GROUP BY needle
		ORDER BY needle
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []*NeedleStats{}
	for rows.Next() {
		s := &NeedleStats{}
		if err := rows.Scan(&s.Needle, &s.Attempts, &s.Found, &s.AvgElapsedMs, &s.AvgSimilarity); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// DeleteHistoryBefore removes locate and move rows older than cutoff
func (db *DB) DeleteHistoryBefore(cutoff time.Time) (int64, error) {
	var deleted int64
	err := db.ExecTx(func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM locate_history WHERE located_at < ?`,
			`DELETE FROM move_history WHERE moved_at < ?`,
		} {
			result, err := tx.Exec(stmt, cutoff)
			if err != nil {
				return err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			deleted += n
		}
		return nil
	})
	return deleted, err
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
