package gmm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// eigenTol bounds the relative difference between persisted and recomputed eigenvalues.
const eigenTol = 1e-8

// #region snapshot

// Snapshot is the persistable part of a model: raw statistics and eigenstructure.
// Whitening transforms and decision constants are recomputed on restore.
type Snapshot struct {
	ClassCount      int
	FeatureCount    int
	Tau             float64
	GridSearchRates []float64
	Classes         []ClassSnapshot
}

// ClassSnapshot holds one class. Matrices are row-major d*d slices.
type ClassSnapshot struct {
	Label        int
	SampleCount  int
	Proportion   float64
	Mean         []float64
	Covariance   []float64
	Eigenvalues  []float64
	Eigenvectors []float64
}

// Snapshot captures a ready model.
func (m *Model) Snapshot() (Snapshot, error) {
	if !m.ready {
		return Snapshot{}, xerrors.New(xerrors.KindInvalidState, "gmm.Snapshot", "model is not trained")
	}
	s := Snapshot{
		ClassCount:      m.ClassCount(),
		FeatureCount:    m.featureCount,
		Tau:             m.tau,
		GridSearchRates: m.GridSearchRates(),
		Classes:         make([]ClassSnapshot, m.ClassCount()),
	}
	for i := range s.Classes {
		cm := m.Class(i)
		s.Classes[i] = ClassSnapshot{
			Label:        cm.Label,
			SampleCount:  cm.SampleCount,
			Proportion:   cm.Proportion,
			Mean:         append([]float64(nil), cm.Mean...),
			Covariance:   rowMajor(cm.Covariance),
			Eigenvalues:  append([]float64(nil), cm.Eigenvalues...),
			Eigenvectors: rowMajor(cm.Eigenvectors),
		}
	}
	return s, nil
}

// FromSnapshot rebuilds a model from persisted statistics. Proportions and the
// eigen-decomposition are recomputed and checked against the persisted values.
func FromSnapshot(s Snapshot, opts ...Option) (*Model, error) {
	const op = "gmm.FromSnapshot"
	if s.ClassCount <= 0 || len(s.Classes) != s.ClassCount {
		return nil, xerrors.New(xerrors.KindIncompatibleFile, op, "class count %d with %d class records", s.ClassCount, len(s.Classes))
	}
	d := s.FeatureCount
	if d <= 0 {
		return nil, xerrors.New(xerrors.KindIncompatibleFile, op, "feature count %d", d)
	}
	if !validTau(s.Tau) {
		return nil, xerrors.New(xerrors.KindIncompatibleFile, op, "tau %g", s.Tau)
	}

	m := New(opts...)
	labels := make([]int, len(s.Classes))
	for i, c := range s.Classes {
		if len(c.Mean) != d || len(c.Covariance) != d*d {
			return nil, xerrors.New(xerrors.KindIncompatibleFile, op, "class %d has mean %d and covariance %d values for d=%d",
				i, len(c.Mean), len(c.Covariance), d)
		}
		labels[i] = c.Label
		if err := m.AddMean(c.Mean); err != nil {
			return nil, err
		}
		if err := m.AddCovMatrix(mat.NewDense(d, d, append([]float64(nil), c.Covariance...))); err != nil {
			return nil, err
		}
		if err := m.AddSampleCount(c.SampleCount); err != nil {
			return nil, err
		}
	}
	lm, err := NewLabelMap(labels)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIncompatibleFile, op, err, "label map")
	}
	m.labels = lm
	m.tau = s.Tau

	if err := m.UpdateProportions(); err != nil {
		return nil, err
	}
	for i, c := range s.Classes {
		if math.Abs(c.Proportion-m.proportions[i]) > eigenTol {
			return nil, xerrors.New(xerrors.KindIncompatibleFile, op,
				"class %d proportion %g does not match sample counts (%g)", i, c.Proportion, m.proportions[i])
		}
	}
	if err := m.UpdateDecomposition(); err != nil {
		return nil, err
	}
	for i, c := range s.Classes {
		if err := checkEigenvalues(c.Eigenvalues, m.eigVals[i]); err != nil {
			return nil, xerrors.Wrap(xerrors.KindNumerical, op, err, "persisted eigenstructure is stale")
		}
	}
	m.gridRates = append([]float64(nil), s.GridSearchRates...)
	return m, nil
}

func checkEigenvalues(persisted, recomputed []float64) error {
	if len(persisted) != len(recomputed) {
		return xerrors.New(xerrors.KindNumerical, "gmm.checkEigenvalues", "%d persisted eigenvalues, %d recomputed",
			len(persisted), len(recomputed))
	}
	for j := range persisted {
		scale := math.Max(1, math.Abs(recomputed[j]))
		if math.Abs(persisted[j]-recomputed[j]) > eigenTol*scale {
			return xerrors.New(xerrors.KindNumerical, "gmm.checkEigenvalues", "eigenvalue %d: persisted %g, recomputed %g",
				j, persisted[j], recomputed[j])
		}
	}
	return nil
}

func rowMajor(a *mat.Dense) []float64 {
	if a == nil {
		return nil
	}
	r, c := a.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, a.RawRowView(i)...)
	}
	return out
}

// #endregion snapshot

// #region persistence

// Save writes the model through the attached store under name.
func (m *Model) Save(path, name string) error {
	if m.store == nil {
		return xerrors.New(xerrors.KindInvalidState, "gmm.Save", "no store attached")
	}
	return m.store.SaveModel(path, name, m)
}

// Load replaces the model with the active version stored under name. Logger,
// observer and store are kept. On error the model is untouched.
func (m *Model) Load(path, name string) error {
	if m.store == nil {
		return xerrors.New(xerrors.KindInvalidState, "gmm.Load", "no store attached")
	}
	loaded, err := m.store.LoadModel(path, name)
	if err != nil {
		return err
	}
	logger, observer, store := m.logger, m.observer, m.store
	*m = *loaded
	m.logger, m.observer, m.store = logger, observer, store
	m.logger.Info("model loaded", "path", path, "name", name, "classes", m.ClassCount(), "tau", m.tau)
	return nil
}

// CanReadFile reports whether path holds a model the attached store can read.
func (m *Model) CanReadFile(path string) bool {
	return m.store != nil && m.store.CanReadFile(path)
}

// CanWriteFile reports whether the attached store can write a model to path.
func (m *Model) CanWriteFile(path string) bool {
	return m.store != nil && m.store.CanWriteFile(path)
}

// #endregion persistence
