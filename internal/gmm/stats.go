package gmm

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// #region accumulate

// AddMean appends the mean vector of the next class.
func (m *Model) AddMean(v []float64) error {
	const op = "gmm.AddMean"
	if len(v) == 0 {
		return xerrors.New(xerrors.KindInvalidArgument, op, "empty mean vector")
	}
	if err := m.fixDimension(op, len(v)); err != nil {
		return err
	}
	m.means = append(m.means, append([]float64(nil), v...))
	m.ready = false
	return nil
}

// AddCovMatrix appends the covariance matrix of the next class. The matrix is copied.
func (m *Model) AddCovMatrix(cov mat.Matrix) error {
	const op = "gmm.AddCovMatrix"
	r, c := cov.Dims()
	if r != c {
		return xerrors.New(xerrors.KindDimensionMismatch, op, "covariance is %dx%d, want square", r, c)
	}
	if err := m.fixDimension(op, r); err != nil {
		return err
	}
	m.covs = append(m.covs, mat.DenseCopyOf(cov))
	m.eigStale = true
	m.ready = false
	return nil
}

// AddSampleCount appends the sample count of the next class.
func (m *Model) AddSampleCount(n int) error {
	if n < 0 {
		return xerrors.New(xerrors.KindInvalidArgument, "gmm.AddSampleCount", "negative sample count %d", n)
	}
	m.counts = append(m.counts, n)
	m.propStale = true
	m.ready = false
	return nil
}

// UpdateProportions recomputes every class prior as count / total.
func (m *Model) UpdateProportions() error {
	var total int
	for _, n := range m.counts {
		total += n
	}
	if total == 0 {
		return xerrors.New(xerrors.KindInvalidState, "gmm.UpdateProportions", "no class has samples")
	}

	props := make([]float64, len(m.counts))
	for i, n := range m.counts {
		props[i] = float64(n) / float64(total)
	}
	if !floats.Equal(props, m.proportions) {
		m.ready = false
	}
	m.proportions = props
	m.propStale = false
	return nil
}

// Reset drops all statistics and derived fields. Tau, options and the label map are kept.
func (m *Model) Reset() {
	m.featureCount = 0
	m.means, m.covs, m.counts = nil, nil, nil
	m.proportions = nil
	m.eigVals, m.eigVecs = nil, nil
	m.regEigVals, m.lambdaQ, m.cstDecision = nil, nil, nil
	m.gridRates = nil
	m.propStale, m.eigStale, m.ready = false, false, false
	m.data = nil
}

func (m *Model) fixDimension(op string, d int) error {
	if m.featureCount == 0 {
		m.featureCount = d
		return nil
	}
	if d != m.featureCount {
		return xerrors.New(xerrors.KindDimensionMismatch, op, "got dimension %d, model has %d features", d, m.featureCount)
	}
	return nil
}

// checkConsistent verifies that every class has a mean, a covariance and a count.
func (m *Model) checkConsistent(op string) error {
	c := len(m.means)
	if c == 0 {
		return xerrors.New(xerrors.KindInvalidState, op, "model has no classes")
	}
	if len(m.covs) != c || len(m.counts) != c {
		return xerrors.New(xerrors.KindInvalidState, op,
			"incomplete statistics: %d means, %d covariances, %d counts", c, len(m.covs), len(m.counts))
	}
	for i, n := range m.counts {
		if n == 0 {
			return xerrors.New(xerrors.KindInsufficientData, op, "class %d has no samples", i)
		}
	}
	if m.labels != nil && m.labels.Len() != c {
		return xerrors.New(xerrors.KindInvalidState, op, "label map has %d classes, statistics have %d", m.labels.Len(), c)
	}
	return nil
}

// #endregion accumulate

// #region estimate

// EstimateClass computes the unbiased sample mean and covariance of the rows of
// samples selected by idx. A single sample yields a zero covariance.
func EstimateClass(samples [][]float64, idx []int, d int) ([]float64, *mat.Dense, error) {
	const op = "gmm.EstimateClass"
	n := len(idx)
	if n == 0 {
		return nil, nil, xerrors.New(xerrors.KindInsufficientData, op, "no samples")
	}

	x := mat.NewDense(n, d, nil)
	mean := make([]float64, d)
	for r, i := range idx {
		row := samples[i]
		if len(row) != d {
			return nil, nil, xerrors.New(xerrors.KindDimensionMismatch, op, "sample %d has %d features, want %d", i, len(row), d)
		}
		x.SetRow(r, row)
		floats.Add(mean, row)
	}
	floats.Scale(1/float64(n), mean)

	if n == 1 {
		return mean, mat.NewDense(d, d, nil), nil
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)
	return mean, mat.DenseCopyOf(&cov), nil
}

// #endregion estimate
