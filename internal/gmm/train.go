package gmm

import (
	"time"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// #region train

// Train estimates one Gaussian per class from samples and labels, then applies the
// current tau. When a label map was set it defines the classes, and every class
// in it must have at least one sample. On error the model is left empty and not ready.
// The samples are retained by reference for TrainTau and must not be mutated.
func (m *Model) Train(samples [][]float64, labels []int) error {
	const op = "gmm.Train"
	start := time.Now()

	if err := m.train(op, samples, labels); err != nil {
		m.Reset()
		m.logger.Warn("training failed", "error", err)
		return err
	}

	elapsed := time.Since(start)
	m.logger.Info("model trained",
		"classes", m.ClassCount(), "features", m.featureCount,
		"samples", len(samples), "tau", m.tau, "elapsed", elapsed)
	if m.observer != nil {
		m.observer.ObserveTrain(m.ClassCount(), len(samples), elapsed)
	}
	return nil
}

func (m *Model) train(op string, samples [][]float64, labels []int) error {
	if len(samples) == 0 {
		return xerrors.New(xerrors.KindInsufficientData, op, "no training samples")
	}
	if len(samples) != len(labels) {
		return xerrors.New(xerrors.KindDimensionMismatch, op, "%d samples but %d labels", len(samples), len(labels))
	}
	d := len(samples[0])
	if d == 0 {
		return xerrors.New(xerrors.KindInvalidArgument, op, "samples have no features")
	}

	lm := m.labels
	if !m.presetLabels || lm == nil {
		lm = labelMapFromSamples(labels)
	}
	classIdx := make([]int, len(labels))
	members := make([][]int, lm.Len())
	for i, l := range labels {
		c, ok := lm.Index(l)
		if !ok {
			return xerrors.New(xerrors.KindInvalidArgument, op, "label %d of sample %d is not in the label map", l, i)
		}
		classIdx[i] = c
		members[c] = append(members[c], i)
	}
	for c, idx := range members {
		if len(idx) == 0 {
			l, _ := lm.Label(c)
			return xerrors.New(xerrors.KindInsufficientData, op, "class %d (label %d) has no samples", c, l)
		}
	}

	m.Reset()
	m.labels = lm
	if err := m.accumulate(samples, members, d); err != nil {
		return err
	}
	if err := m.UpdateProportions(); err != nil {
		return err
	}
	if err := m.UpdateDecomposition(); err != nil {
		return err
	}
	m.data = &trainingSet{samples: samples, classIdx: classIdx}
	return nil
}

// accumulate estimates and appends the statistics of each class in index order.
func (m *Model) accumulate(samples [][]float64, members [][]int, d int) error {
	for _, idx := range members {
		mean, cov, err := EstimateClass(samples, idx, d)
		if err != nil {
			return err
		}
		if err := m.AddMean(mean); err != nil {
			return err
		}
		if err := m.AddCovMatrix(cov); err != nil {
			return err
		}
		if err := m.AddSampleCount(len(idx)); err != nil {
			return err
		}
	}
	return nil
}

// #endregion train

// #region fit-subset

// fitSubset trains a detached model on the training samples listed in subset,
// sharing this model's label map. Used per cross-validation fold.
func (m *Model) fitSubset(subset []int) (*Model, error) {
	members := make([][]int, m.ClassCount())
	for _, i := range subset {
		c := m.data.classIdx[i]
		members[c] = append(members[c], i)
	}
	for c, idx := range members {
		if len(idx) == 0 {
			return nil, xerrors.New(xerrors.KindInsufficientData, "gmm.fitSubset", "class %d has no samples in fold", c)
		}
	}

	fm := &Model{logger: m.logger, labels: m.labels, tau: m.tau}
	if err := fm.accumulate(m.data.samples, members, m.featureCount); err != nil {
		return nil, err
	}
	if err := fm.refresh("gmm.fitSubset"); err != nil {
		return nil, err
	}
	return fm, nil
}

// #endregion fit-subset
