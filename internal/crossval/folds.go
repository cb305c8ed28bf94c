package crossval

import (
	"math/rand/v2"
	"slices"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// #region folds

// Folds assigns every sample index to one of K held-out partitions.
type Folds struct {
	K      int
	Assign []int // Assign[i] is the fold of sample i
}

// Stratify partitions samples into k folds class by class so that each fold keeps
// roughly the class proportions of the full set. classIdx[i] is the class index of
// sample i. The assignment depends only on (classIdx, k, seed).
func Stratify(classIdx []int, classCount, k int, seed uint64) (Folds, error) {
	const op = "crossval.Stratify"
	if k < 2 {
		return Folds{}, xerrors.New(xerrors.KindInvalidArgument, op, "fold count must be >= 2, got %d", k)
	}

	members := make([][]int, classCount)
	for i, c := range classIdx {
		if c < 0 || c >= classCount {
			return Folds{}, xerrors.New(xerrors.KindInvalidArgument, op, "sample %d has class index %d outside [0,%d)", i, c, classCount)
		}
		members[c] = append(members[c], i)
	}
	for c, m := range members {
		if len(m) < k {
			return Folds{}, xerrors.New(xerrors.KindInvalidArgument, op,
				"class %d has %d samples, fewer than %d folds", c, len(m), k)
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	assign := make([]int, len(classIdx))
	// Dealing continues across classes so small classes do not all land in fold 0.
	next := 0
	for _, m := range members {
		rng.Shuffle(len(m), func(i, j int) { m[i], m[j] = m[j], m[i] })
		for _, idx := range m {
			assign[idx] = next
			next = (next + 1) % k
		}
	}
	return Folds{K: k, Assign: assign}, nil
}

// Split returns the training and held-out sample indices for fold f, both ascending.
func (fs Folds) Split(f int) (train, test []int) {
	for i, a := range fs.Assign {
		if a == f {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test
}

// Sizes returns the number of samples held out by each fold.
func (fs Folds) Sizes() []int {
	sizes := make([]int, fs.K)
	for _, a := range fs.Assign {
		sizes[a]++
	}
	return sizes
}

// #endregion folds

// #region helpers

// MinClassSize returns the smallest per-class sample count.
func MinClassSize(classIdx []int, classCount int) int {
	counts := make([]int, classCount)
	for _, c := range classIdx {
		if c >= 0 && c < classCount {
			counts[c]++
		}
	}
	if len(counts) == 0 {
		return 0
	}
	return slices.Min(counts)
}

// #endregion helpers
