package modelstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/gmm-classifier/internal/gmm"
	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// timeLayout is fixed-width so created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS gmm_format (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	magic         TEXT NOT NULL,
	version       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS gmm_models (
	model_id      TEXT PRIMARY KEY,
	parent_id     TEXT,
	name          TEXT NOT NULL,
	class_count   INTEGER NOT NULL,
	feature_count INTEGER NOT NULL,
	tau           REAL NOT NULL,
	grid_rates    BLOB NOT NULL,
	metrics_json  TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES gmm_models(model_id)
);

CREATE TABLE IF NOT EXISTS gmm_classes (
	model_id      TEXT NOT NULL,
	class_index   INTEGER NOT NULL,
	label         INTEGER NOT NULL,
	sample_count  INTEGER NOT NULL,
	proportion    REAL NOT NULL,
	mean          BLOB NOT NULL,
	covariance    BLOB NOT NULL,
	eigenvalues   BLOB NOT NULL,
	eigenvectors  BLOB NOT NULL,
	PRIMARY KEY (model_id, class_index),
	FOREIGN KEY (model_id) REFERENCES gmm_models(model_id)
);

CREATE TABLE IF NOT EXISTS gmm_active (
	name          TEXT PRIMARY KEY,
	model_id      TEXT NOT NULL,
	FOREIGN KEY (model_id) REFERENCES gmm_models(model_id)
);

CREATE TABLE IF NOT EXISTS training_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	model_id      TEXT,
	name          TEXT NOT NULL,
	trigger_type  TEXT NOT NULL,
	tau           REAL NOT NULL,
	criterion     TEXT,
	rates_json    TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (model_id) REFERENCES gmm_models(model_id)
);
`
// #endregion schema

// #region store-struct
// Store manages versioned models in a SQLite file.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// Open opens or creates a model store. Existing files must carry the store's
// format row; other SQLite databases are rejected.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("pragma: %w", err)
	}
	if _, err := s.db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("pragma fk: %w", err)
	}

	var tables, formatTables int
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(name = 'gmm_format'), 0) FROM sqlite_master WHERE type = 'table'`,
	).Scan(&tables, &formatTables)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if tables > 0 && formatTables == 0 {
		return xerrors.New(xerrors.KindIncompatibleFile, "modelstore.Open", "database has no model store format marker")
	}

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO gmm_format (id, magic, version) VALUES (1, ?, ?)`,
		FormatMagic, FormatVersion,
	); err != nil {
		return fmt.Errorf("write format: %w", err)
	}
	return checkFormat(s.db)
}

func checkFormat(db *sql.DB) error {
	var magic string
	var version int
	if err := db.QueryRow(`SELECT magic, version FROM gmm_format WHERE id = 1`).Scan(&magic, &version); err != nil {
		return xerrors.Wrap(xerrors.KindIncompatibleFile, "modelstore.checkFormat", err, "read format marker")
	}
	if magic != FormatMagic || version != FormatVersion {
		return xerrors.New(xerrors.KindIncompatibleFile, "modelstore.checkFormat",
			"format %q version %d, want %q version %d", magic, version, FormatMagic, FormatVersion)
	}
	return nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region commit
// Commit inserts a new version of the named model and makes it active. The previous
// active version, if any, becomes its parent.
func (s *Store) Commit(name string, snap gmm.Snapshot, metricsJSON string) (ModelRecord, error) {
	if name == "" {
		name = DefaultName
	}
	rec := ModelRecord{
		ModelID:      uuid.New().String(),
		Name:         name,
		ClassCount:   snap.ClassCount,
		FeatureCount: snap.FeatureCount,
		Tau:          snap.Tau,
		GridRates:    append([]float64(nil), snap.GridSearchRates...),
		MetricsJSON:  metricsJSON,
		CreatedAt:    time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ModelRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parentID sql.NullString
	err = tx.QueryRow(`SELECT model_id FROM gmm_active WHERE name = ?`, name).Scan(&parentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ModelRecord{}, fmt.Errorf("get active: %w", err)
	}
	rec.ParentID = parentID.String

	_, err = tx.Exec(
		`INSERT INTO gmm_models (model_id, parent_id, name, class_count, feature_count, tau, grid_rates, metrics_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ModelID, nullIfEmpty(rec.ParentID), rec.Name, rec.ClassCount, rec.FeatureCount, rec.Tau,
		encodeVector(rec.GridRates), nullIfEmpty(rec.MetricsJSON), rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return ModelRecord{}, fmt.Errorf("insert model: %w", err)
	}

	d := snap.FeatureCount
	for i, c := range snap.Classes {
		_, err = tx.Exec(
			`INSERT INTO gmm_classes (model_id, class_index, label, sample_count, proportion, mean, covariance, eigenvalues, eigenvectors)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ModelID, i, c.Label, c.SampleCount, c.Proportion,
			encodeVector(c.Mean), encodeMatrix(d, d, c.Covariance),
			encodeVector(c.Eigenvalues), encodeMatrix(d, d, c.Eigenvectors),
		)
		if err != nil {
			return ModelRecord{}, fmt.Errorf("insert class %d: %w", i, err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO gmm_active (name, model_id) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET model_id = excluded.model_id`,
		name, rec.ModelID,
	)
	if err != nil {
		return ModelRecord{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ModelRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}
// #endregion commit

// #region get-current
// Current reads the active version of the named model.
func (s *Store) Current(name string) (ModelRecord, gmm.Snapshot, error) {
	if name == "" {
		name = DefaultName
	}
	var modelID string
	err := s.db.QueryRow(`SELECT model_id FROM gmm_active WHERE name = ?`, name).Scan(&modelID)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelRecord{}, gmm.Snapshot{}, xerrors.New(xerrors.KindIncompatibleFile, "modelstore.Current", "no model named %q", name)
	}
	if err != nil {
		return ModelRecord{}, gmm.Snapshot{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(modelID)
}
// #endregion get-current

// #region get-version
// GetVersion retrieves a specific model version by ID.
func (s *Store) GetVersion(id string) (ModelRecord, gmm.Snapshot, error) {
	const op = "modelstore.GetVersion"
	rec, err := scanRecord(s.db.QueryRow(
		`SELECT model_id, parent_id, name, class_count, feature_count, tau, grid_rates, metrics_json, created_at
		 FROM gmm_models WHERE model_id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return ModelRecord{}, gmm.Snapshot{}, xerrors.New(xerrors.KindIncompatibleFile, op, "version %s not found", id)
	}
	if err != nil {
		return ModelRecord{}, gmm.Snapshot{}, xerrors.Wrap(xerrors.KindIncompatibleFile, op, err, "read model row")
	}

	snap := gmm.Snapshot{
		ClassCount:      rec.ClassCount,
		FeatureCount:    rec.FeatureCount,
		Tau:             rec.Tau,
		GridSearchRates: rec.GridRates,
	}
	classes, err := s.readClasses(id, rec.FeatureCount)
	if err != nil {
		return ModelRecord{}, gmm.Snapshot{}, xerrors.Wrap(xerrors.KindIncompatibleFile, op, err, "read classes")
	}
	snap.Classes = classes
	return rec, snap, nil
}

func (s *Store) readClasses(id string, d int) ([]gmm.ClassSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT class_index, label, sample_count, proportion, mean, covariance, eigenvalues, eigenvectors
		 FROM gmm_classes WHERE model_id = ? ORDER BY class_index`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query classes: %w", err)
	}
	defer rows.Close()

	var classes []gmm.ClassSnapshot
	for rows.Next() {
		var idx int
		var c gmm.ClassSnapshot
		var meanBlob, covBlob, valsBlob, vecsBlob []byte
		if err := rows.Scan(&idx, &c.Label, &c.SampleCount, &c.Proportion, &meanBlob, &covBlob, &valsBlob, &vecsBlob); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		if idx != len(classes) {
			return nil, fmt.Errorf("class index %d out of sequence", idx)
		}
		if c.Mean, err = decodeVector(meanBlob); err != nil {
			return nil, fmt.Errorf("class %d mean: %w", idx, err)
		}
		if c.Covariance, err = decodeSquare(covBlob, d); err != nil {
			return nil, fmt.Errorf("class %d covariance: %w", idx, err)
		}
		if c.Eigenvalues, err = decodeVector(valsBlob); err != nil {
			return nil, fmt.Errorf("class %d eigenvalues: %w", idx, err)
		}
		if c.Eigenvectors, err = decodeSquare(vecsBlob, d); err != nil {
			return nil, fmt.Errorf("class %d eigenvectors: %w", idx, err)
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func decodeSquare(b []byte, d int) ([]float64, error) {
	rows, cols, values, err := decodeMatrix(b)
	if err != nil {
		return nil, err
	}
	if rows != d || cols != d {
		return nil, fmt.Errorf("matrix is %dx%d, want %dx%d", rows, cols, d, d)
	}
	return values, nil
}
// #endregion get-version

// #region rollback
// Rollback points the named model at a previous version of the same name.
func (s *Store) Rollback(name, targetID string) error {
	if name == "" {
		name = DefaultName
	}
	var owner string
	err := s.db.QueryRow(`SELECT name FROM gmm_models WHERE model_id = ?`, targetID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return xerrors.New(xerrors.KindInvalidArgument, "modelstore.Rollback", "version %s not found", targetID)
	}
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if owner != name {
		return xerrors.New(xerrors.KindInvalidArgument, "modelstore.Rollback",
			"version %s belongs to %q, not %q", targetID, owner, name)
	}

	_, err = s.db.Exec(
		`INSERT INTO gmm_active (name, model_id) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET model_id = excluded.model_id`,
		name, targetID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
// #endregion rollback

// #region list-versions
// ListVersions returns the most recent versions of the named model, newest first.
func (s *Store) ListVersions(name string, limit int) ([]ModelRecord, error) {
	if name == "" {
		name = DefaultName
	}
	rows, err := s.db.Query(
		`SELECT model_id, parent_id, name, class_count, feature_count, tau, grid_rates, metrics_json, created_at
		 FROM gmm_models WHERE name = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []ModelRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
// #endregion list-versions

// #region helpers
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ModelRecord, error) {
	var rec ModelRecord
	var parentID, metricsJSON sql.NullString
	var ratesBlob []byte
	var createdStr string

	err := row.Scan(&rec.ModelID, &parentID, &rec.Name, &rec.ClassCount, &rec.FeatureCount,
		&rec.Tau, &ratesBlob, &metricsJSON, &createdStr)
	if err != nil {
		return ModelRecord{}, err
	}
	rec.ParentID = parentID.String
	rec.MetricsJSON = metricsJSON.String
	if rec.GridRates, err = decodeVector(ratesBlob); err != nil {
		return ModelRecord{}, fmt.Errorf("decode grid rates: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
