package crossval

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// #region fold-tests

func TestStratifyDeterministic(t *testing.T) {
	classIdx := []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1}

	a, err := Stratify(classIdx, 2, 3, 42)
	if err != nil {
		t.Fatalf("Stratify: %v", err)
	}
	b, _ := Stratify(classIdx, 2, 3, 42)
	if !slices.Equal(a.Assign, b.Assign) {
		t.Fatalf("expected identical assignment for same seed:\n%v\n%v", a.Assign, b.Assign)
	}
}

func TestStratifyBalancesClasses(t *testing.T) {
	var classIdx []int
	for i := 0; i < 9; i++ {
		classIdx = append(classIdx, 0)
	}
	for i := 0; i < 6; i++ {
		classIdx = append(classIdx, 1)
	}

	folds, err := Stratify(classIdx, 2, 3, 7)
	if err != nil {
		t.Fatalf("Stratify: %v", err)
	}

	for f := 0; f < 3; f++ {
		perClass := [2]int{}
		_, test := folds.Split(f)
		for _, i := range test {
			perClass[classIdx[i]]++
		}
		if perClass[0] != 3 || perClass[1] != 2 {
			t.Errorf("fold %d: expected 3/2 per class, got %v", f, perClass)
		}
	}

	sizes := folds.Sizes()
	if sizes[0]+sizes[1]+sizes[2] != len(classIdx) {
		t.Fatalf("fold sizes %v do not cover %d samples", sizes, len(classIdx))
	}
}

func TestSplitPartitionsIndices(t *testing.T) {
	classIdx := []int{0, 1, 0, 1, 0, 1, 0, 1}
	folds, _ := Stratify(classIdx, 2, 2, 1)

	train, test := folds.Split(0)
	if len(train)+len(test) != len(classIdx) {
		t.Fatalf("expected %d indices, got %d", len(classIdx), len(train)+len(test))
	}
	if !slices.IsSorted(train) || !slices.IsSorted(test) {
		t.Fatal("expected ascending indices")
	}
	for _, i := range test {
		if slices.Contains(train, i) {
			t.Fatalf("index %d in both train and test", i)
		}
	}
}

func TestStratifyErrors(t *testing.T) {
	cases := []struct {
		name     string
		classIdx []int
		k        int
	}{
		{"k too small", []int{0, 0, 1, 1}, 1},
		{"k exceeds smallest class", []int{0, 0, 0, 1, 1}, 3},
		{"class index out of range", []int{0, 2}, 2},
	}
	for _, tc := range cases {
		_, err := Stratify(tc.classIdx, 2, tc.k, 0)
		if !errors.Is(err, xerrors.ErrInvalidArgument) {
			t.Errorf("%s: expected InvalidArgument, got %v", tc.name, err)
		}
	}
}

func TestMinClassSize(t *testing.T) {
	if got := MinClassSize([]int{0, 0, 1, 2, 2, 2}, 3); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := MinClassSize([]int{0, 0}, 2); got != 0 {
		t.Fatalf("expected 0 for empty class, got %d", got)
	}
}

// #endregion fold-tests

// #region criteria-tests

func TestParseCriterion(t *testing.T) {
	for _, name := range []string{"accuracy", "kappa", "f1mean"} {
		if _, err := ParseCriterion(name); err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}
	if c, _ := ParseCriterion(""); c != Accuracy {
		t.Errorf("expected empty name to default to accuracy, got %q", c)
	}
	if _, err := ParseCriterion("auc"); !errors.Is(err, xerrors.ErrInvalidArgument) {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestConfusionMatrixScores(t *testing.T) {
	cm := NewConfusionMatrix(2)
	// 8 correct class 0, 2 misread as 1; 6 correct class 1, 4 misread as 0.
	for i := 0; i < 8; i++ {
		cm.Add(0, 0)
	}
	for i := 0; i < 2; i++ {
		cm.Add(0, 1)
	}
	for i := 0; i < 6; i++ {
		cm.Add(1, 1)
	}
	for i := 0; i < 4; i++ {
		cm.Add(1, 0)
	}

	if cm.Total() != 20 {
		t.Fatalf("expected 20, got %d", cm.Total())
	}
	if got := cm.Accuracy(); math.Abs(got-0.7) > 1e-12 {
		t.Errorf("accuracy: expected 0.7, got %f", got)
	}
	// pe = (10*12 + 10*8) / 400 = 0.5
	if got := cm.Kappa(); math.Abs(got-0.4) > 1e-12 {
		t.Errorf("kappa: expected 0.4, got %f", got)
	}
	// F1 class0 = 16/22, class1 = 12/18
	want := (16.0/22 + 12.0/18) / 2
	if got := cm.F1Mean(); math.Abs(got-want) > 1e-12 {
		t.Errorf("f1mean: expected %f, got %f", want, got)
	}
}

func TestConfusionMatrixPerfectSingleClass(t *testing.T) {
	cm := NewConfusionMatrix(3)
	cm.Add(1, 1)
	cm.Add(1, 1)

	for _, c := range []Criterion{Accuracy, Kappa, F1Mean} {
		got, err := c.Score(cm)
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}
		if got != 1 {
			t.Errorf("%s: expected 1, got %f", c, got)
		}
	}
}

func TestConfusionMatrixEmpty(t *testing.T) {
	cm := NewConfusionMatrix(2)
	if cm.Accuracy() != 0 || cm.Kappa() != 0 || cm.F1Mean() != 0 {
		t.Fatal("expected zero scores on empty matrix")
	}
}

// #endregion criteria-tests
