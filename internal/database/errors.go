package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"jordanella.com/autogui/internal/logging"
)

// LogError persists an error report
func (db *DB) LogError(report *logging.ErrorReport) (int64, error) {
	var context *string
	if len(report.Context) > 0 {
		data, err := json.Marshal(report.Context)
		if err != nil {
			return 0, fmt.Errorf("failed to encode error context: %w", err)
		}
		s := string(data)
		context = &s
	}

	occurredAt := report.Timestamp
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	var errorID int64
	err := db.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO error_log (
				category, severity, component, message,
				error_message, context, occurred_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, string(report.Category), string(report.Severity), report.Component,
			report.Message, errorText(report.Error), context, occurredAt)
		if err != nil {
			return fmt.Errorf("failed to insert error log: %w", err)
		}

		errorID, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	return errorID, nil
}

// ErrorLogger returns a reporter callback that persists every report.
// Persistence failures are logged and dropped.
func (db *DB) ErrorLogger() logging.ErrorCallback {
	return func(report *logging.ErrorReport) {
		if _, err := db.LogError(report); err != nil {
			db.logger.Warn("Failed to persist error report: " + err.Error())
		}
	}
}

// GetRecentErrors returns the most recent errors
func (db *DB) GetRecentErrors(limit int) ([]*ErrorLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.Query(`
		SELECT
			id, category, severity, component, message,
			error_message, context, occurred_at
		FROM error_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	errors := []*ErrorLog{}
	for rows.Next() {
		e := &ErrorLog{}
		err := rows.Scan(
			&e.ID, &e.Category, &e.Severity, &e.Component, &e.Message,
			&e.ErrorMessage, &e.Context, &e.OccurredAt,
		)
		if err != nil {
			return nil, err
		}
		errors = append(errors, e)
	}

	return errors, rows.Err()
}

// GetErrorStatsByCategory returns error counts grouped by category
func (db *DB) GetErrorStatsByCategory(since time.Time) (map[string]int, error) {
	rows, err := db.conn.Query(`
		SELECT category, COUNT(*)
		FROM error_log
		WHERE occurred_at >= ?
		GROUP BY category
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats[category] = count
	}

	return stats, rows.Err()
}

// DeleteOldErrors deletes error logs older than the specified date
func (db *DB) DeleteOldErrors(olderThan time.Time) (int64, error) {
	var deleted int64
	err := db.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`DELETE FROM error_log WHERE occurred_at < ?`, olderThan)
		if err != nil {
			return err
		}

		deleted, err = result.RowsAffected()
		return err
	})

	return deleted, err
}
