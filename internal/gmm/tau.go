package gmm

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/gmm-classifier/internal/crossval"
	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// #region options

// TauOptions controls the cross-validated tau search.
type TauOptions struct {
	Folds     int
	Criterion crossval.Criterion
	Seed      uint64
	Workers   int // <= 0 means GOMAXPROCS
}

// DefaultTauOptions returns 5-fold accuracy search with seed 0.
func DefaultTauOptions() TauOptions {
	return TauOptions{
		Folds:     5,
		Criterion: crossval.Accuracy,
		Seed:      0,
		Workers:   runtime.GOMAXPROCS(0),
	}
}

// #endregion options

// #region train-tau

// TrainTau selects tau from grid by stratified k-fold cross-validation on the samples
// of the last Train call. Each fold decomposes once and scores every candidate.
// The best mean score wins, ties going to the smallest tau. GridSearchRates holds the
// mean score per candidate in grid order, and the model is left at the chosen tau.
// On error, including cancellation of ctx, the model is unchanged.
func (m *Model) TrainTau(ctx context.Context, grid []float64, opts TauOptions) (float64, error) {
	const op = "gmm.TrainTau"
	start := time.Now()

	if m.data == nil || !m.ready {
		return 0, xerrors.New(xerrors.KindInvalidState, op, "model must be trained before tau selection")
	}
	if len(grid) == 0 {
		return 0, xerrors.New(xerrors.KindInvalidArgument, op, "empty tau grid")
	}
	for i, tau := range grid {
		if !validTau(tau) {
			return 0, xerrors.New(xerrors.KindInvalidArgument, op, "grid[%d] = %g is not a valid tau", i, tau)
		}
	}
	crit, err := crossval.ParseCriterion(string(opts.Criterion))
	if err != nil {
		return 0, err
	}

	classes := m.ClassCount()
	if minSize := crossval.MinClassSize(m.data.classIdx, classes); opts.Folds > minSize {
		return 0, xerrors.New(xerrors.KindInvalidArgument, op,
			"%d folds exceed the smallest class size %d", opts.Folds, minSize)
	}
	folds, err := crossval.Stratify(m.data.classIdx, classes, opts.Folds, opts.Seed)
	if err != nil {
		return 0, err
	}

	rates, err := m.crossValidate(ctx, grid, folds, crit, opts.Workers)
	if err != nil {
		return 0, err
	}

	means := make([]float64, len(grid))
	best := 0
	for i := range grid {
		means[i] = stat.Mean(rates[i], nil)
		if means[i] > means[best] || (means[i] == means[best] && grid[i] < grid[best]) {
			best = i
		}
	}

	if err := m.SetTau(grid[best]); err != nil {
		return 0, err
	}
	m.gridRates = means

	if m.observer != nil {
		for i, tau := range grid {
			m.observer.ObserveGridPoint(tau, means[i])
		}
		m.observer.ObserveTauSelected(grid[best])
	}
	m.logger.Info("tau selected",
		"tau", grid[best], "score", means[best], "criterion", string(crit),
		"candidates", len(grid), "folds", folds.K, "elapsed", time.Since(start))
	return grid[best], nil
}

// crossValidate returns rates[tauIdx][fold]. Folds run concurrently; every result has
// a fixed slot so the outcome does not depend on scheduling.
func (m *Model) crossValidate(ctx context.Context, grid []float64, folds crossval.Folds, crit crossval.Criterion, workers int) ([][]float64, error) {
	rates := make([][]float64, len(grid))
	for i := range rates {
		rates[i] = make([]float64, folds.K)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for f := 0; f < folds.K; f++ {
		g.Go(func() error {
			return m.evaluateFold(gctx, grid, folds, f, crit, rates)
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("train tau: %w", ctx.Err())
		}
		return nil, err
	}
	return rates, nil
}

func (m *Model) evaluateFold(ctx context.Context, grid []float64, folds crossval.Folds, f int, crit crossval.Criterion, rates [][]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	train, test := folds.Split(f)
	fm, err := m.fitSubset(train)
	if err != nil {
		return fmt.Errorf("fit fold %d: %w", f, err)
	}

	for ti, tau := range grid {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fm.SetTau(tau); err != nil {
			return fmt.Errorf("regularize fold %d: %w", f, err)
		}
		cm := crossval.NewConfusionMatrix(m.ClassCount())
		for _, i := range test {
			cm.Add(m.data.classIdx[i], fm.predictIndex(m.data.samples[i]))
		}
		score, err := crit.Score(cm)
		if err != nil {
			return err
		}
		rates[ti][f] = score
		m.logger.Debug("fold scored", "fold", f, "tau", tau, "score", score)
	}
	return nil
}

// #endregion train-tau
