package gmm

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// #region scores

// Scores returns the quadratic discriminant score of every class for sample:
// ||W_c (x - mu_c)||^2 + K_c. Lower is more likely.
func (m *Model) Scores(sample []float64) ([]float64, error) {
	if err := m.checkSample("gmm.Scores", sample); err != nil {
		return nil, err
	}
	return m.scores(sample), nil
}

func (m *Model) scores(sample []float64) []float64 {
	d := m.featureCount
	diff := make([]float64, d)
	diffVec := mat.NewVecDense(d, diff)
	proj := mat.NewVecDense(d, nil)

	out := make([]float64, len(m.means))
	for c := range m.means {
		floats.SubTo(diff, sample, m.means[c])
		proj.MulVec(m.lambdaQ[c], diffVec)
		out[c] = mat.Dot(proj, proj) + m.cstDecision[c]
	}
	return out
}

func (m *Model) checkSample(op string, sample []float64) error {
	if !m.ready {
		return xerrors.New(xerrors.KindInvalidState, op, "model is not trained or its regularization is stale")
	}
	if len(sample) != m.featureCount {
		return xerrors.New(xerrors.KindDimensionMismatch, op, "sample has %d features, model has %d", len(sample), m.featureCount)
	}
	for i, v := range sample {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return xerrors.New(xerrors.KindInvalidArgument, op, "feature %d is not finite: %g", i, v)
		}
	}
	return nil
}

// #endregion scores

// #region predict

// Predict returns the label of the class with the lowest discriminant score.
func (m *Model) Predict(sample []float64) (int, error) {
	if err := m.checkSample("gmm.Predict", sample); err != nil {
		return 0, err
	}
	best := argMin(m.scores(sample))
	label := m.labelOf(best)
	if m.observer != nil {
		m.observer.ObservePrediction(label)
	}
	return label, nil
}

// PredictWithConfidence also returns the posterior probability of the chosen class,
// a softmax over -score/2. It lies in [0,1] and decreases with score rank.
func (m *Model) PredictWithConfidence(sample []float64) (int, float64, error) {
	if err := m.checkSample("gmm.PredictWithConfidence", sample); err != nil {
		return 0, 0, err
	}
	s := m.scores(sample)
	best := argMin(s)
	label := m.labelOf(best)
	if m.observer != nil {
		m.observer.ObservePrediction(label)
	}
	return label, posterior(s, best), nil
}

// PredictBatch predicts every sample, stopping at the first error.
func (m *Model) PredictBatch(samples [][]float64) ([]int, error) {
	out := make([]int, len(samples))
	for i, x := range samples {
		label, err := m.Predict(x)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}

// predictIndex is Predict without the label mapping or observer, for cross-validation.
func (m *Model) predictIndex(sample []float64) int {
	return argMin(m.scores(sample))
}

func (m *Model) labelOf(idx int) int {
	if m.labels != nil {
		if l, ok := m.labels.Label(idx); ok {
			return l
		}
	}
	return idx
}

// #endregion predict

// #region helpers

// argMin returns the index of the smallest score; ties go to the lowest index.
func argMin(s []float64) int {
	best := 0
	for i := 1; i < len(s); i++ {
		if s[i] < s[best] {
			best = i
		}
	}
	return best
}

func posterior(scores []float64, idx int) float64 {
	logits := make([]float64, len(scores))
	for i, s := range scores {
		logits[i] = -s / 2
	}
	p := math.Exp(logits[idx] - floats.LogSumExp(logits))
	return math.Min(1, math.Max(0, p))
}

// #endregion helpers
