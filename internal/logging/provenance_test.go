package logging

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE training_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		model_id     TEXT,
		name         TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		tau          REAL NOT NULL,
		criterion    TEXT,
		rates_json   TEXT,
		decision     TEXT NOT NULL,
		reason       TEXT,
		created_at   TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-training-tests
func TestLogTraining_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := TrainingEntry{
		ModelID:     "m1",
		Name:        "iris",
		TriggerType: TriggerTune,
		Tau:         0.1,
		Criterion:   "kappa",
		RatesJSON:   `{"rates":[0.8,1]}`,
		Decision:    DecisionCommit,
		Reason:      "eval passed",
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogTraining(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM training_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	got, err := RecentTraining(db, "iris", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].ModelID != "m1" || got[0].Tau != 0.1 || got[0].Decision != DecisionCommit {
		t.Errorf("unexpected entry: %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", entry.CreatedAt, got[0].CreatedAt)
	}
}

func TestLogTraining_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC().Truncate(time.Microsecond)
	err := LogTraining(db, TrainingEntry{Name: "x", TriggerType: TriggerTrain, Decision: DecisionReject})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM training_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(timeLayout, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogTraining_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := TrainingEntry{
		Name:        "x",
		TriggerType: TriggerTrain,
		Decision:    DecisionReject,
		CreatedAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogTraining(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var modelID, criterion, ratesJSON, reason sql.NullString
	db.QueryRow("SELECT model_id, criterion, rates_json, reason FROM training_log").Scan(
		&modelID, &criterion, &ratesJSON, &reason,
	)
	if modelID.Valid || criterion.Valid || ratesJSON.Valid || reason.Valid {
		t.Error("expected NULL for empty optional fields")
	}
}

func TestRecentTraining_NewestFirst(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	for i, d := range []string{DecisionCommit, DecisionReject, DecisionRollback} {
		err := LogTraining(db, TrainingEntry{
			Name: "iris", TriggerType: TriggerTrain, Tau: float64(i), Decision: d,
		})
		if err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
	}
	LogTraining(db, TrainingEntry{Name: "other", TriggerType: TriggerTrain, Decision: DecisionCommit})

	got, err := RecentTraining(db, "iris", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Decision != DecisionRollback || got[1].Decision != DecisionReject {
		t.Fatalf("expected rollback then reject, got %+v", got)
	}
}

func TestLogTraining_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	err := LogTraining(db, TrainingEntry{Name: "x", TriggerType: TriggerTrain, Decision: DecisionCommit})
	if err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-training-tests

// #region tune-json-tests
func TestMarshalTune(t *testing.T) {
	s, err := MarshalTune(TuneRecord{
		Grid: []float64{0.1, 1}, Rates: []float64{0.9, 0.8}, Folds: 3, Criterion: "accuracy", Selected: 0.1,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back TuneRecord
	if err := json.Unmarshal([]byte(s), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Selected != 0.1 || back.Folds != 3 || len(back.Rates) != 2 {
		t.Errorf("unexpected record: %+v", back)
	}
}

// #endregion tune-json-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
