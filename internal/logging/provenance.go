package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region log-training
// LogTraining writes a training entry to the training_log table.
func LogTraining(db *sql.DB, entry TrainingEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO training_log (model_id, name, trigger_type, tau, criterion, rates_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullIfEmpty(entry.ModelID),
		entry.Name,
		entry.TriggerType,
		entry.Tau,
		nullIfEmpty(entry.Criterion),
		nullIfEmpty(entry.RatesJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log training: %w", err)
	}
	return nil
}
// #endregion log-training

// #region recent
// RecentTraining returns the latest training entries for name, newest first.
func RecentTraining(db *sql.DB, name string, limit int) ([]TrainingEntry, error) {
	rows, err := db.Query(
		`SELECT model_id, name, trigger_type, tau, criterion, rates_json, decision, reason, created_at
		 FROM training_log WHERE name = ? ORDER BY id DESC LIMIT ?`, name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query training log: %w", err)
	}
	defer rows.Close()

	var entries []TrainingEntry
	for rows.Next() {
		var e TrainingEntry
		var modelID, criterion, ratesJSON, reason sql.NullString
		var createdStr string
		if err := rows.Scan(&modelID, &e.Name, &e.TriggerType, &e.Tau, &criterion, &ratesJSON,
			&e.Decision, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.ModelID = modelID.String
		e.Criterion = criterion.String
		e.RatesJSON = ratesJSON.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
// #endregion recent

// #region tune-json
// MarshalTune encodes a tau search record for TrainingEntry.RatesJSON.
func MarshalTune(rec TuneRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal tune record: %w", err)
	}
	return string(b), nil
}
// #endregion tune-json

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
