package modelstore

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/gmm-classifier/internal/gmm"
	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// #region helpers
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func trainedModel(t *testing.T, tau float64, opts ...gmm.Option) *gmm.Model {
	t.Helper()
	samples := [][]float64{
		{0, 0, 1}, {0.5, 0.1, 1.2}, {-0.4, 0.3, 0.9}, {0.2, -0.5, 1.1}, {0.1, 0.2, 0.7},
		{5, 5, 0}, {5.3, 4.6, 0.4}, {4.8, 5.5, -0.2}, {5.1, 5.2, 0.1},
		{-5, 3, 2}, {-4.6, 3.3, 2.5}, {-5.2, 2.7, 1.6},
	}
	labels := []int{10, 10, 10, 10, 10, 20, 20, 20, 20, 30, 30, 30}
	opts = append([]gmm.Option{gmm.WithLogger(quietLogger()), gmm.WithTau(tau)}, opts...)
	m := gmm.New(opts...)
	if err := m.Train(samples, labels); err != nil {
		t.Fatalf("train: %v", err)
	}
	return m
}

func snapshot(t *testing.T, m *gmm.Model) gmm.Snapshot {
	t.Helper()
	snap, err := m.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}
// #endregion helpers

// #region store-tests
func TestCommitAndCurrent(t *testing.T) {
	s, _ := tempStore(t)
	m := trainedModel(t, 0.5)

	rec, err := s.Commit("", snapshot(t, m), `{"passed":true}`)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if rec.ModelID == "" || rec.Name != DefaultName || rec.ParentID != "" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, snap, err := s.Current(DefaultName)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got.ModelID != rec.ModelID || got.MetricsJSON != `{"passed":true}` {
		t.Fatalf("expected %s with metrics, got %+v", rec.ModelID, got)
	}
	if snap.ClassCount != 3 || snap.FeatureCount != 3 || snap.Tau != 0.5 {
		t.Fatalf("unexpected snapshot header: %d classes, %d features, tau %g", snap.ClassCount, snap.FeatureCount, snap.Tau)
	}

	want := snapshot(t, m)
	for i, c := range snap.Classes {
		w := want.Classes[i]
		if c.Label != w.Label || c.SampleCount != w.SampleCount || c.Proportion != w.Proportion {
			t.Fatalf("class %d header mismatch: %+v vs %+v", i, c, w)
		}
		for j := range w.Covariance {
			if c.Covariance[j] != w.Covariance[j] || c.Eigenvectors[j] != w.Eigenvectors[j] {
				t.Fatalf("class %d matrix entry %d differs", i, j)
			}
		}
	}
}

func TestVersionsAndRollback(t *testing.T) {
	s, _ := tempStore(t)

	v1, err := s.Commit("iris", snapshot(t, trainedModel(t, 0.1)), "")
	if err != nil {
		t.Fatalf("Commit v1: %v", err)
	}
	v2, err := s.Commit("iris", snapshot(t, trainedModel(t, 2)), "")
	if err != nil {
		t.Fatalf("Commit v2: %v", err)
	}
	if v2.ParentID != v1.ModelID {
		t.Fatalf("expected parent %s, got %s", v1.ModelID, v2.ParentID)
	}

	cur, _, err := s.Current("iris")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.ModelID != v2.ModelID || cur.Tau != 2 {
		t.Fatalf("expected v2 active, got %s (tau %g)", cur.ModelID, cur.Tau)
	}

	versions, err := s.ListVersions("iris", 10)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 || versions[0].ModelID != v2.ModelID {
		t.Fatalf("expected newest-first list of 2, got %+v", versions)
	}

	if err := s.Rollback("iris", v1.ModelID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	cur, _, _ = s.Current("iris")
	if cur.ModelID != v1.ModelID {
		t.Fatalf("expected v1 after rollback, got %s", cur.ModelID)
	}

	if err := s.Rollback("iris", "missing"); !errors.Is(err, xerrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for unknown version, got %v", err)
	}
	other, err := s.Commit("other", snapshot(t, trainedModel(t, 1)), "")
	if err != nil {
		t.Fatalf("Commit other: %v", err)
	}
	if err := s.Rollback("iris", other.ModelID); !errors.Is(err, xerrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for foreign version, got %v", err)
	}
}

func TestCurrentMissingName(t *testing.T) {
	s, _ := tempStore(t)
	if _, _, err := s.Current("nothing"); !errors.Is(err, xerrors.ErrIncompatibleFile) {
		t.Fatalf("expected incompatible file, got %v", err)
	}
}

func TestOpenRejectsForeignDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	db.Close()

	if _, err := Open(path); !errors.Is(err, xerrors.ErrIncompatibleFile) {
		t.Fatalf("expected incompatible file, got %v", err)
	}
	if NewFileStore(quietLogger()).CanReadFile(path) {
		t.Fatal("expected foreign database to be unreadable")
	}
}

func TestOpenRejectsWrongVersion(t *testing.T) {
	s, path := tempStore(t)
	if _, err := s.DB().Exec(`UPDATE gmm_format SET version = 99`); err != nil {
		t.Fatalf("update: %v", err)
	}
	s.Close()

	if _, err := Open(path); !errors.Is(err, xerrors.ErrIncompatibleFile) {
		t.Fatalf("expected incompatible file, got %v", err)
	}
}
// #endregion store-tests

// #region file-store-tests
func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.db")
	fs := NewFileStore(quietLogger(), gmm.WithLogger(quietLogger()))
	m := trainedModel(t, 0.3, gmm.WithStore(fs))

	if !m.CanWriteFile(path) {
		t.Fatal("expected new path to be writable")
	}
	if err := m.Save(path, "clf"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if fs.LastSaved().Name != "clf" {
		t.Fatalf("expected last saved name clf, got %q", fs.LastSaved().Name)
	}
	if !m.CanReadFile(path) || !m.CanWriteFile(path) {
		t.Fatal("expected saved file to be readable and writable")
	}

	loaded := gmm.New(gmm.WithLogger(quietLogger()), gmm.WithStore(fs))
	if err := loaded.Load(path, "clf"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Tau() != 0.3 || loaded.ClassCount() != 3 {
		t.Fatalf("unexpected loaded model: tau %g, %d classes", loaded.Tau(), loaded.ClassCount())
	}

	probes := [][]float64{{0, 0, 1}, {5, 5, 0}, {-5, 3, 2}, {2, 2, 0.5}, {-1, 1, 1}}
	for _, x := range probes {
		wantLabel, wantConf, err := m.PredictWithConfidence(x)
		if err != nil {
			t.Fatalf("predict original: %v", err)
		}
		gotLabel, gotConf, err := loaded.PredictWithConfidence(x)
		if err != nil {
			t.Fatalf("predict loaded: %v", err)
		}
		if gotLabel != wantLabel || gotConf != wantConf {
			t.Errorf("%v: loaded (%d, %g) vs original (%d, %g)", x, gotLabel, gotConf, wantLabel, wantConf)
		}
	}
}

func TestFileStoreRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(quietLogger())

	garbage := filepath.Join(dir, "garbage.db")
	if err := os.WriteFile(garbage, []byte("not a database at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	short := filepath.Join(dir, "short.db")
	if err := os.WriteFile(short, []byte("SQL"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, p := range []string{garbage, short, filepath.Join(dir, "missing.db"), dir} {
		if fs.CanReadFile(p) {
			t.Errorf("expected %s to be unreadable", p)
		}
	}
	if fs.CanWriteFile(garbage) {
		t.Error("expected garbage file to be unwritable")
	}
	if fs.CanWriteFile(filepath.Join(dir, "nope", "model.db")) {
		t.Error("expected path in missing directory to be unwritable")
	}

	if _, err := fs.LoadModel(garbage, ""); !errors.Is(err, xerrors.ErrIncompatibleFile) {
		t.Fatalf("expected incompatible file, got %v", err)
	}
}

func TestFileStoreLoadFailureKeepsModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.db")
	fs := NewFileStore(quietLogger())
	m := trainedModel(t, 0.3, gmm.WithStore(fs))
	if err := m.Save(path, "a"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := m.Load(path, "b"); !errors.Is(err, xerrors.ErrIncompatibleFile) {
		t.Fatalf("expected incompatible file, got %v", err)
	}
	if !m.Ready() || m.Tau() != 0.3 {
		t.Fatal("expected model untouched after failed load")
	}
}
// #endregion file-store-tests
