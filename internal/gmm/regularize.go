package gmm

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

const (
	// symmetryTol is relative to max(1, max|a_ij|).
	symmetryTol = 1e-9
	// eigenFloor is relative to max(1, trace/d); negative or zero eigenvalues from
	// rank-deficient covariances are lifted to it before tau is added.
	eigenFloor = 1e-12
)

// #region decompose

// Decompose returns the eigenvalues of a symmetric matrix in ascending order and
// the matching orthonormal eigenvectors as rows. Ties keep the solver's order and
// each eigenvector is signed so that its largest-magnitude component is positive.
func Decompose(a mat.Matrix) ([]float64, *mat.Dense, error) {
	const op = "gmm.Decompose"
	n, c := a.Dims()
	if n != c {
		return nil, nil, xerrors.New(xerrors.KindDimensionMismatch, op, "matrix is %dx%d, want square", n, c)
	}

	var maxAbs float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, xerrors.New(xerrors.KindNumerical, op, "non-finite entry at (%d,%d)", i, j)
			}
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
	}
	tol := symmetryTol * math.Max(1, maxAbs)

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			aij, aji := a.At(i, j), a.At(j, i)
			if math.Abs(aij-aji) > tol {
				return nil, nil, xerrors.New(xerrors.KindNumerical, op,
					"matrix not symmetric at (%d,%d): %g vs %g", i, j, aij, aji)
			}
			sym.SetSym(i, j, (aij+aji)/2)
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, nil, xerrors.New(xerrors.KindNumerical, op, "eigen-decomposition did not converge")
	}
	raw := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool { return raw[order[x]] < raw[order[y]] })

	vals := make([]float64, n)
	q := mat.NewDense(n, n, nil)
	row := make([]float64, n)
	for r, k := range order {
		vals[r] = raw[k]
		mat.Col(row, k, &vecs)
		sign := 1.0
		var peak float64
		for _, v := range row {
			if math.Abs(v) > math.Abs(peak) {
				peak = v
			}
		}
		if peak < 0 {
			sign = -1
		}
		for j, v := range row {
			q.Set(r, j, sign*v)
		}
	}
	return vals, q, nil
}

// #endregion decompose

// #region set-tau

// SetTau sets the regularization strength and recomputes the whitening transform
// and decision constant of every class. Regularized eigenvalues are
// max(lambda, floor) + tau, which is strictly positive and increasing in tau.
// On error the previous tau and derived fields are kept.
func (m *Model) SetTau(tau float64) error {
	const op = "gmm.SetTau"
	if !validTau(tau) {
		return xerrors.New(xerrors.KindInvalidArgument, op, "tau must be a finite value >= 0, got %g", tau)
	}
	if len(m.means) == 0 && len(m.covs) == 0 && len(m.counts) == 0 {
		m.tau = tau
		return nil
	}
	if err := m.refresh(op); err != nil {
		return err
	}

	c := len(m.means)
	regVals := make([][]float64, c)
	lambdaQ := make([]*mat.Dense, c)
	cst := make([]float64, c)
	for i := 0; i < c; i++ {
		rv, w, k, err := regularize(m.covs[i], m.eigVals[i], m.eigVecs[i], m.proportions[i], tau)
		if err != nil {
			return xerrors.Wrap(xerrors.KindNumerical, op, err, "regularize class")
		}
		regVals[i], lambdaQ[i], cst[i] = rv, w, k
	}

	m.tau = tau
	m.regEigVals, m.lambdaQ, m.cstDecision = regVals, lambdaQ, cst
	m.ready = true
	m.logger.Debug("regularization updated", "tau", tau, "classes", c)
	return nil
}

// UpdateDecomposition re-runs the eigen-decomposition of every class covariance and
// reapplies the current tau.
func (m *Model) UpdateDecomposition() error {
	m.eigStale = true
	return m.SetTau(m.tau)
}

// refresh brings proportions and eigenstructures up to date with the statistics.
func (m *Model) refresh(op string) error {
	if err := m.checkConsistent(op); err != nil {
		return err
	}
	if m.propStale || len(m.proportions) != len(m.counts) {
		if err := m.UpdateProportions(); err != nil {
			return err
		}
	}
	if !m.eigStale && len(m.eigVals) == len(m.covs) {
		return nil
	}

	vals := make([][]float64, len(m.covs))
	vecs := make([]*mat.Dense, len(m.covs))
	for i, cov := range m.covs {
		v, q, err := Decompose(cov)
		if err != nil {
			return xerrors.Wrap(xerrors.KindNumerical, op, err, "decompose class covariance")
		}
		vals[i], vecs[i] = v, q
	}
	m.eigVals, m.eigVecs = vals, vecs
	m.eigStale = false
	return nil
}

func regularize(cov *mat.Dense, vals []float64, q *mat.Dense, prop, tau float64) ([]float64, *mat.Dense, float64, error) {
	d := len(vals)
	floor := eigenFloor * math.Max(1, mat.Trace(cov)/float64(d))

	reg := make([]float64, d)
	w := mat.NewDense(d, d, nil)
	var logDet float64
	for j, lambda := range vals {
		lr := math.Max(lambda, floor) + tau
		reg[j] = lr
		logDet += math.Log(lr)
		scale := 1 / math.Sqrt(lr)
		for k := 0; k < d; k++ {
			w.Set(j, k, scale*q.At(j, k))
		}
	}

	k := logDet - 2*math.Log(prop)
	if math.IsNaN(k) || math.IsInf(k, 0) {
		return nil, nil, 0, xerrors.New(xerrors.KindNumerical, "gmm.regularize", "decision constant is %g", k)
	}
	return reg, w, k, nil
}

func validTau(tau float64) bool {
	return tau >= 0 && !math.IsInf(tau, 1)
}

// #endregion set-tau
