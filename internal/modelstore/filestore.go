package modelstore

import (
	"bytes"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/gmm-classifier/internal/gmm"
	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

var sqliteHeader = []byte("SQLite format 3\x00")

// #region file-store
// FileStore adapts Store to gmm.Store: every call opens the file at path,
// performs one operation and closes it.
type FileStore struct {
	logger   *slog.Logger
	opts     []gmm.Option
	lastSave ModelRecord
}

var _ gmm.Store = (*FileStore)(nil)

// NewFileStore creates a FileStore. opts are applied to every loaded model.
func NewFileStore(logger *slog.Logger, opts ...gmm.Option) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{logger: logger, opts: opts}
}

// LastSaved returns the record written by the most recent successful SaveModel.
func (f *FileStore) LastSaved() ModelRecord {
	return f.lastSave
}
// #endregion file-store

// #region save-load
// SaveModel commits m as a new active version of name.
func (f *FileStore) SaveModel(path, name string, m *gmm.Model) error {
	snap, err := m.Snapshot()
	if err != nil {
		return err
	}
	s, err := Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.Commit(name, snap, "")
	if err != nil {
		return err
	}
	f.lastSave = rec
	f.logger.Info("model saved", "path", path, "name", rec.Name, "model_id", rec.ModelID, "parent_id", rec.ParentID)
	return nil
}

// LoadModel reads the active version of name and rebuilds the model from it.
func (f *FileStore) LoadModel(path, name string) (*gmm.Model, error) {
	const op = "modelstore.LoadModel"
	if !f.CanReadFile(path) {
		return nil, xerrors.New(xerrors.KindIncompatibleFile, op, "%s is not a readable model store", path)
	}
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	rec, snap, err := s.Current(name)
	if err != nil {
		return nil, err
	}
	m, err := gmm.FromSnapshot(snap, f.opts...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIncompatibleFile, op, err, "rebuild model "+rec.ModelID)
	}
	f.logger.Debug("model read", "path", path, "name", rec.Name, "model_id", rec.ModelID)
	return m, nil
}
// #endregion save-load

// #region probe
// CanReadFile checks the SQLite header and then the format marker through a
// query-only connection. It never fails; any problem yields false.
func (f *FileStore) CanReadFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	header := make([]byte, len(sqliteHeader))
	_, err = io.ReadFull(file, header)
	file.Close()
	if err != nil || !bytes.Equal(header, sqliteHeader) {
		return false
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return false
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA query_only=ON"); err != nil {
		return false
	}
	return checkFormat(db) == nil
}

// CanWriteFile reports whether a model can be saved to path: either a new file in a
// writable directory or an existing, compatible and writable store.
func (f *FileStore) CanWriteFile(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return dirWritable(filepath.Dir(path))
	}
	if err != nil || info.IsDir() {
		return false
	}
	if !f.CanReadFile(path) {
		return false
	}
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	file.Close()
	return true
}

func dirWritable(dir string) bool {
	file, err := os.CreateTemp(dir, ".gmm-probe-*")
	if err != nil {
		return false
	}
	name := file.Name()
	file.Close()
	os.Remove(name)
	return true
}
// #endregion probe
