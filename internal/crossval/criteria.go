package crossval

import (
	"fmt"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// #region criterion

// Criterion scores a set of predictions against reference labels. Higher is better.
type Criterion string

const (
	Accuracy Criterion = "accuracy"
	Kappa    Criterion = "kappa"
	F1Mean   Criterion = "f1mean"
)

// ParseCriterion validates a criterion name.
func ParseCriterion(name string) (Criterion, error) {
	switch c := Criterion(name); c {
	case Accuracy, Kappa, F1Mean:
		return c, nil
	case "":
		return Accuracy, nil
	default:
		return "", xerrors.New(xerrors.KindInvalidArgument, "crossval.ParseCriterion",
			"unknown criterion %q (want accuracy, kappa or f1mean)", name)
	}
}

// Score evaluates the criterion over a confusion matrix.
func (c Criterion) Score(cm *ConfusionMatrix) (float64, error) {
	switch c {
	case Accuracy, "":
		return cm.Accuracy(), nil
	case Kappa:
		return cm.Kappa(), nil
	case F1Mean:
		return cm.F1Mean(), nil
	default:
		return 0, fmt.Errorf("score: unknown criterion %q", string(c))
	}
}

// #endregion criterion

// #region confusion-matrix

// ConfusionMatrix counts (reference, predicted) class index pairs.
type ConfusionMatrix struct {
	n      int
	counts []int // row-major, counts[ref*n+pred]
	total  int
}

// NewConfusionMatrix creates an empty n×n matrix.
func NewConfusionMatrix(n int) *ConfusionMatrix {
	return &ConfusionMatrix{n: n, counts: make([]int, n*n)}
}

// Add records one prediction.
func (cm *ConfusionMatrix) Add(ref, pred int) {
	cm.counts[ref*cm.n+pred]++
	cm.total++
}

// At returns the count for (ref, pred).
func (cm *ConfusionMatrix) At(ref, pred int) int {
	return cm.counts[ref*cm.n+pred]
}

// Total returns the number of recorded predictions.
func (cm *ConfusionMatrix) Total() int {
	return cm.total
}

// Accuracy is the fraction of correct predictions.
func (cm *ConfusionMatrix) Accuracy() float64 {
	if cm.total == 0 {
		return 0
	}
	var correct int
	for i := 0; i < cm.n; i++ {
		correct += cm.At(i, i)
	}
	return float64(correct) / float64(cm.total)
}

// Kappa is Cohen's kappa. A perfect agreement with a single observed class yields 1.
func (cm *ConfusionMatrix) Kappa() float64 {
	if cm.total == 0 {
		return 0
	}
	total := float64(cm.total)
	po := cm.Accuracy()
	var pe float64
	for i := 0; i < cm.n; i++ {
		pe += float64(cm.rowSum(i)) * float64(cm.colSum(i))
	}
	pe /= total * total
	if pe == 1 {
		if po == 1 {
			return 1
		}
		return 0
	}
	return (po - pe) / (1 - pe)
}

// F1Mean is the unweighted mean of per-class F1 scores over classes present in
// either the references or the predictions.
func (cm *ConfusionMatrix) F1Mean() float64 {
	var sum float64
	var present int
	for i := 0; i < cm.n; i++ {
		tp := float64(cm.At(i, i))
		row := float64(cm.rowSum(i))
		col := float64(cm.colSum(i))
		if row == 0 && col == 0 {
			continue
		}
		present++
		if tp > 0 {
			sum += 2 * tp / (row + col)
		}
	}
	if present == 0 {
		return 0
	}
	return sum / float64(present)
}

func (cm *ConfusionMatrix) rowSum(i int) int {
	var s int
	for j := 0; j < cm.n; j++ {
		s += cm.At(i, j)
	}
	return s
}

func (cm *ConfusionMatrix) colSum(j int) int {
	var s int
	for i := 0; i < cm.n; i++ {
		s += cm.At(i, j)
	}
	return s
}

// #endregion confusion-matrix
