package eval

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/gmm-classifier/internal/gmm"
)

// #region eval-harness
// EvalHarness runs post-training validation on a model before it is saved.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks the regularized discriminant terms of m. Blocking checks fail the
// result; the condition number is informational unless EnforceCondition is set.
func (h *EvalHarness) Run(m *gmm.Model) EvalResult {
	if !m.Ready() {
		return EvalResult{Passed: false, Reason: "eval failed: model is not trained"}
	}

	var metrics []EvalMetric
	var failReasons []string
	check := func(name string, value float64, pass, blocking bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass && blocking {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Every regularized eigenvalue strictly positive
	minEig := math.Inf(1)
	maxCond := 0.0
	nonFinite := 0
	for i := 0; i < m.ClassCount(); i++ {
		cm := m.Class(i)
		lo, hi := floats.Min(cm.RegularizedEigenvalues), floats.Max(cm.RegularizedEigenvalues)
		minEig = math.Min(minEig, lo)
		if lo > 0 {
			maxCond = math.Max(maxCond, hi/lo)
		} else {
			maxCond = math.Inf(1)
		}
		if math.IsNaN(cm.DecisionConstant) || math.IsInf(cm.DecisionConstant, 0) {
			nonFinite++
		}
	}
	check("min_regularized_eigenvalue", minEig, minEig > 0, true,
		fmt.Sprintf("regularized eigenvalue %.4g is not positive", minEig))

	// 2. Class priors form a distribution
	propErr := math.Abs(floats.Sum(m.Proportions()) - 1)
	check("proportion_sum_error", propErr, propErr <= h.config.MaxProportionError, true,
		fmt.Sprintf("proportions deviate from 1 by %.4g", propErr))

	// 3. Decision constants usable
	check("decision_constants_nonfinite", float64(nonFinite), nonFinite == 0, true,
		fmt.Sprintf("%d decision constants are not finite", nonFinite))

	// 4. Label map is a bijection over the classes
	bijective := labelMapBijective(m)
	check("label_map_bijective", boolValue(bijective), bijective, true,
		"label map does not cover every class exactly once")

	// 5. Conditioning, informational by default
	check("max_condition_number", maxCond, maxCond <= h.config.MaxConditionNumber, h.config.EnforceCondition,
		fmt.Sprintf("condition number %.4g exceeds %.4g", maxCond, h.config.MaxConditionNumber))

	reason := "all checks passed"
	if len(failReasons) > 0 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region json
// JSON encodes the result for ModelRecord.MetricsJSON. Infinite values are
// reported as the largest float.
func (r EvalResult) JSON() (string, error) {
	out := r
	out.Metrics = make([]EvalMetric, len(r.Metrics))
	for i, m := range r.Metrics {
		if math.IsInf(m.Value, 1) {
			m.Value = math.MaxFloat64
		} else if math.IsInf(m.Value, -1) || math.IsNaN(m.Value) {
			m.Value = -math.MaxFloat64
		}
		out.Metrics[i] = m
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal eval result: %w", err)
	}
	return string(b), nil
}

// #endregion json

// #region helpers
func labelMapBijective(m *gmm.Model) bool {
	lm := m.LabelMap()
	if lm == nil {
		return true // indices are the labels
	}
	if lm.Len() != m.ClassCount() {
		return false
	}
	for i := 0; i < lm.Len(); i++ {
		l, ok := lm.Label(i)
		if !ok {
			return false
		}
		if j, ok := lm.Index(l); !ok || j != i {
			return false
		}
	}
	return true
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
