package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/gmm-classifier/internal/config"
	"github.com/danielpatrickdp/gmm-classifier/internal/crossval"
	"github.com/danielpatrickdp/gmm-classifier/internal/dataset"
	"github.com/danielpatrickdp/gmm-classifier/internal/eval"
	"github.com/danielpatrickdp/gmm-classifier/internal/gmm"
	"github.com/danielpatrickdp/gmm-classifier/internal/logging"
	"github.com/danielpatrickdp/gmm-classifier/internal/modelstore"
	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// #region train-cmd

func trainCmd(a *app) *cobra.Command {
	var (
		dataPath    string
		labelColumn int
		tune        bool
	)
	d := config.Default()
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model from a labelled CSV file and commit it to the store",
		Long: `Train estimates one Gaussian per class and regularizes it with tau.
With --tune, tau is chosen from --grid by stratified k-fold cross-validation.
The model is validated before it is committed; a failed validation is logged
as a rejected run and nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := dataset.DefaultOptions()
			opts.LabelColumn = labelColumn
			return a.train(cmd, dataPath, opts, tune)
		},
	}

	f := cmd.Flags()
	f.StringVar(&dataPath, "data", "", "labelled CSV file")
	f.IntVar(&labelColumn, "label-column", 0, "column index of the integer label")
	f.BoolVar(&tune, "tune", false, "select tau by cross-validation")
	f.Float64("tau", d.Model.Tau, "regularization added to every eigenvalue")
	f.String("grid", formatGrid(d.Tune.Grid), "comma-separated tau candidates for --tune")
	f.Int("folds", d.Tune.Folds, "cross-validation folds")
	f.String("criterion", d.Tune.Criterion, "selection criterion: accuracy, kappa, f1mean")
	f.Uint64("seed", d.Tune.Seed, "fold assignment seed")
	f.Int("workers", d.Tune.Workers, "folds evaluated concurrently")
	f.Bool("enforce-eval", d.Eval.Enforce, "reject models whose condition number exceeds the configured cap")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

// #endregion train-cmd

// #region train

func (a *app) train(cmd *cobra.Command, dataPath string, opts dataset.Options, tune bool) error {
	cfg := a.cfg
	ds, err := dataset.LoadFile(dataPath, opts)
	if err != nil {
		return err
	}

	m := gmm.New(append(a.modelOptions(), gmm.WithTau(cfg.Model.Tau))...)
	if err := m.Train(ds.Samples, ds.Labels); err != nil {
		return err
	}

	entry := logging.TrainingEntry{
		Name:        cfg.Store.Name,
		TriggerType: logging.TriggerTrain,
	}
	if tune {
		crit, err := crossval.ParseCriterion(cfg.Tune.Criterion)
		if err != nil {
			return err
		}
		tau, err := m.TrainTau(cmd.Context(), cfg.Tune.Grid, gmm.TauOptions{
			Folds:     cfg.Tune.Folds,
			Criterion: crit,
			Seed:      cfg.Tune.Seed,
			Workers:   cfg.Tune.Workers,
		})
		if err != nil {
			return err
		}
		rates, err := logging.MarshalTune(logging.TuneRecord{
			Grid:      cfg.Tune.Grid,
			Rates:     m.GridSearchRates(),
			Folds:     cfg.Tune.Folds,
			Criterion: string(crit),
			Seed:      cfg.Tune.Seed,
			Selected:  tau,
		})
		if err != nil {
			return err
		}
		entry.TriggerType = logging.TriggerTune
		entry.Criterion = string(crit)
		entry.RatesJSON = rates
	}
	entry.Tau = m.Tau()

	evalCfg := eval.DefaultEvalConfig()
	evalCfg.MaxConditionNumber = cfg.Eval.MaxConditionNumber
	evalCfg.EnforceCondition = cfg.Eval.Enforce
	result := eval.NewEvalHarness(evalCfg).Run(m)
	metricsJSON, err := result.JSON()
	if err != nil {
		return err
	}

	store, err := modelstore.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if !result.Passed {
		entry.Decision = logging.DecisionReject
		entry.Reason = result.Reason
		if err := logging.LogTraining(store.DB(), entry); err != nil {
			return err
		}
		a.logger.Warn("model rejected", "name", entry.Name, "tau", entry.Tau, "reason", result.Reason)
		return xerrors.New(xerrors.KindNumerical, "gmm.train", "%s", result.Reason)
	}

	snap, err := m.Snapshot()
	if err != nil {
		return err
	}
	rec, err := store.Commit(cfg.Store.Name, snap, metricsJSON)
	if err != nil {
		return err
	}
	entry.ModelID = rec.ModelID
	entry.Decision = logging.DecisionCommit
	entry.Reason = result.Reason
	if err := logging.LogTraining(store.DB(), entry); err != nil {
		return err
	}
	a.logger.Info("model committed",
		"name", rec.Name, "model_id", rec.ModelID, "parent_id", rec.ParentID,
		"classes", rec.ClassCount, "features", rec.FeatureCount, "tau", rec.Tau)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "model %s committed as %q\n", rec.ModelID, rec.Name)
	fmt.Fprintf(out, "  classes %d  features %d  samples %d  tau %g\n",
		rec.ClassCount, rec.FeatureCount, len(ds.Samples), rec.Tau)
	if tune {
		for i, tau := range cfg.Tune.Grid {
			fmt.Fprintf(out, "  tau %-10g %s %.4f\n", tau, entry.Criterion, rec.GridRates[i])
		}
	}
	return nil
}

func formatGrid(grid []float64) string {
	parts := make([]string, len(grid))
	for i, v := range grid {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// #endregion train
