package logging

import "time"

// Training decisions recorded in training_log.
const (
	DecisionCommit   = "commit"
	DecisionReject   = "reject"
	DecisionRollback = "rollback"
)

// Trigger types recorded in training_log.
const (
	TriggerTrain    = "train"
	TriggerTune     = "tune"
	TriggerRollback = "rollback"
)

// #region training-entry
// TrainingEntry is a single row in the training_log table.
type TrainingEntry struct {
	ModelID     string // empty when the run was rejected before a version was written
	Name        string
	TriggerType string
	Tau         float64
	Criterion   string
	RatesJSON   string
	Decision    string // "commit" | "reject" | "rollback"
	Reason      string
	CreatedAt   time.Time
}
// #endregion training-entry

// #region tune-record
// TuneRecord captures a tau search for replay and inspection.
// Serialized as JSON into training_log.rates_json.
type TuneRecord struct {
	Grid      []float64 `json:"grid"`
	Rates     []float64 `json:"rates"`
	Folds     int       `json:"folds"`
	Criterion string    `json:"criterion"`
	Seed      uint64    `json:"seed"`
	Selected  float64   `json:"selected"`
}
// #endregion tune-record

// #region log-config
// Config configures the process logger.
type Config struct {
	Service    string
	Module     string
	Level      string // debug | info | warn | error
	Format     string // json | text
	File       string // empty writes to stderr
	MaxSize    int    // MB per file before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}
// #endregion log-config
