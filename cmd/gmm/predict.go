package main

import (
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/gmm-classifier/internal/crossval"
	"github.com/danielpatrickdp/gmm-classifier/internal/dataset"
	"github.com/danielpatrickdp/gmm-classifier/internal/gmm"
	"github.com/danielpatrickdp/gmm-classifier/internal/modelstore"
)

// #region predict-cmd

func predictCmd(a *app) *cobra.Command {
	var (
		dataPath    string
		labelColumn int
		confidence  bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Classify the rows of a CSV file with the active model",
		Long: `Predict writes one output row per input row: the predicted label and,
with --confidence, its posterior probability. When --label-column names a
reference label column, a summary with accuracy, kappa and mean F1 follows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := dataset.DefaultOptions()
			opts.LabelColumn = labelColumn
			return a.predict(cmd, dataPath, opts, confidence)
		},
	}

	f := cmd.Flags()
	f.StringVar(&dataPath, "data", "", "CSV file to classify")
	f.IntVar(&labelColumn, "label-column", dataset.NoLabel, "column index of a reference label, -1 for none")
	f.BoolVar(&confidence, "confidence", false, "also print the posterior probability of each prediction")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

// #endregion predict-cmd

// #region predict

func (a *app) predict(cmd *cobra.Command, dataPath string, opts dataset.Options, confidence bool) error {
	store := modelstore.NewFileStore(a.logger)
	m := gmm.New(append(a.modelOptions(), gmm.WithStore(store))...)
	if err := m.Load(a.cfg.Store.Path, a.cfg.Store.Name); err != nil {
		return err
	}

	ds, err := dataset.LoadFile(dataPath, opts)
	if err != nil {
		return err
	}

	w := csv.NewWriter(cmd.OutOrStdout())
	header := []string{"label"}
	if confidence {
		header = append(header, "confidence")
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	predicted := make([]int, len(ds.Samples))
	for i, sample := range ds.Samples {
		row := make([]string, 0, 2)
		if confidence {
			label, conf, err := m.PredictWithConfidence(sample)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			predicted[i] = label
			row = append(row, strconv.Itoa(label), strconv.FormatFloat(conf, 'f', 6, 64))
		} else {
			label, err := m.Predict(sample)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			predicted[i] = label
			row = append(row, strconv.Itoa(label))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if len(ds.Labels) > 0 {
		a.summarize(cmd, m, ds.Labels, predicted)
	}
	a.logger.Info("prediction complete", "rows", len(ds.Samples), "name", a.cfg.Store.Name)
	return nil
}

// summarize scores predictions against reference labels. Rows whose reference label
// is unknown to the model count as errors in the accuracy only.
func (a *app) summarize(cmd *cobra.Command, m *gmm.Model, ref, predicted []int) {
	if len(ref) == 0 {
		return
	}
	cm := crossval.NewConfusionMatrix(m.ClassCount())
	correct, unknown := 0, 0
	for i, label := range ref {
		if label == predicted[i] {
			correct++
		}
		r, ok := classIndex(m, label)
		if !ok {
			unknown++
			continue
		}
		p, _ := classIndex(m, predicted[i])
		cm.Add(r, p)
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "accuracy %.4f (%d/%d)\n", float64(correct)/float64(len(ref)), correct, len(ref))
	if cm.Total() > 0 {
		fmt.Fprintf(out, "kappa    %.4f\n", cm.Kappa())
		fmt.Fprintf(out, "f1mean   %.4f\n", cm.F1Mean())
	}
	if unknown > 0 {
		fmt.Fprintf(out, "%d rows carry labels the model was not trained on\n", unknown)
	}
}

func classIndex(m *gmm.Model, label int) (int, bool) {
	if lm := m.LabelMap(); lm != nil {
		return lm.Index(label)
	}
	return label, label >= 0 && label < m.ClassCount()
}

// #endregion predict
