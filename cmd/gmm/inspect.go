package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/gmm-classifier/internal/logging"
	"github.com/danielpatrickdp/gmm-classifier/internal/modelstore"
	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

const timeFormat = "2006-01-02T15:04:05Z"

// #region inspect-cmd

func inspectCmd(a *app) *cobra.Command {
	var (
		last    int
		version string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List model versions and training runs, or show one version in detail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := modelstore.Open(a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if version != "" {
				return runDetailMode(cmd.OutOrStdout(), store, version, jsonOut)
			}
			return runListMode(cmd.OutOrStdout(), store, a.cfg.Store.Name, last, jsonOut)
		},
	}
	f := cmd.Flags()
	f.IntVar(&last, "last", 20, "show N most recent versions and training runs")
	f.StringVar(&version, "version", "", "show single version detail")
	f.BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	return cmd
}

// #endregion inspect-cmd

// #region list-mode

type listRow struct {
	ModelID   string  `json:"model_id"`
	ParentID  string  `json:"parent_id,omitempty"`
	Active    bool    `json:"active"`
	Classes   int     `json:"classes"`
	Features  int     `json:"features"`
	Tau       float64 `json:"tau"`
	BestScore float64 `json:"best_score,omitempty"`
	CreatedAt string  `json:"created_at"`
}

type runRow struct {
	ModelID   string  `json:"model_id,omitempty"`
	Trigger   string  `json:"trigger"`
	Tau       float64 `json:"tau"`
	Criterion string  `json:"criterion,omitempty"`
	Decision  string  `json:"decision"`
	Reason    string  `json:"reason,omitempty"`
	CreatedAt string  `json:"created_at"`
}

type listOutput struct {
	Name     string    `json:"name"`
	Versions []listRow `json:"versions"`
	Runs     []runRow  `json:"runs"`
}

func runListMode(w io.Writer, store *modelstore.Store, name string, last int, jsonOut bool) error {
	versions, err := store.ListVersions(name, last)
	if err != nil {
		return err
	}
	entries, err := logging.RecentTraining(store.DB(), name, last)
	if err != nil {
		return err
	}
	if len(versions) == 0 && len(entries) == 0 {
		return xerrors.New(xerrors.KindInvalidArgument, "gmm.inspect", "no versions found for %q", name)
	}

	activeID := ""
	if rec, _, err := store.Current(name); err == nil {
		activeID = rec.ModelID
	}

	out := listOutput{Name: name}
	for _, v := range versions {
		row := listRow{
			ModelID:   v.ModelID,
			ParentID:  v.ParentID,
			Active:    v.ModelID == activeID,
			Classes:   v.ClassCount,
			Features:  v.FeatureCount,
			Tau:       v.Tau,
			CreatedAt: v.CreatedAt.Format(timeFormat),
		}
		if len(v.GridRates) > 0 {
			row.BestScore = floats.Max(v.GridRates)
		}
		out.Versions = append(out.Versions, row)
	}
	for _, e := range entries {
		out.Runs = append(out.Runs, runRow{
			ModelID:   e.ModelID,
			Trigger:   e.TriggerType,
			Tau:       e.Tau,
			Criterion: e.Criterion,
			Decision:  e.Decision,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt.Format(timeFormat),
		})
	}

	if jsonOut {
		return printJSON(w, out)
	}
	printListTable(w, out)
	return nil
}

func printListTable(w io.Writer, out listOutput) {
	fmt.Fprintf(w, "Versions of %q (newest first):\n", out.Name)
	fmt.Fprintf(w, "  %-12s  %-12s  %7s  %8s  %10s  %7s  %s\n",
		"Version", "Parent", "Classes", "Features", "Tau", "CV best", "Time")
	for _, r := range out.Versions {
		marker := " "
		if r.Active {
			marker = "*"
		}
		best := "-"
		if r.BestScore != 0 {
			best = fmt.Sprintf("%.4f", r.BestScore)
		}
		fmt.Fprintf(w, "%s %-12s  %-12s  %7d  %8d  %10g  %7s  %s\n",
			marker, shortID(r.ModelID), shortID(r.ParentID), r.Classes, r.Features, r.Tau, best, r.CreatedAt)
	}

	fmt.Fprintf(w, "\nTraining runs (newest first):\n")
	fmt.Fprintf(w, "  %-10s  %-8s  %-12s  %10s  %-9s  %s\n",
		"Decision", "Trigger", "Version", "Tau", "Criterion", "Reason")
	for _, r := range out.Runs {
		fmt.Fprintf(w, "  %-10s  %-8s  %-12s  %10g  %-9s  %s\n",
			r.Decision, r.Trigger, shortID(r.ModelID), r.Tau, dash(r.Criterion), r.Reason)
	}
}

// #endregion list-mode

// #region detail-mode

type classDetail struct {
	Label         int       `json:"label"`
	SampleCount   int       `json:"sample_count"`
	Proportion    float64   `json:"proportion"`
	Mean          []float64 `json:"mean"`
	MinEigenvalue float64   `json:"min_eigenvalue"`
	MaxEigenvalue float64   `json:"max_eigenvalue"`
}

type detailOutput struct {
	ModelID   string          `json:"model_id"`
	ParentID  string          `json:"parent_id,omitempty"`
	Name      string          `json:"name"`
	CreatedAt string          `json:"created_at"`
	Tau       float64         `json:"tau"`
	GridRates []float64       `json:"grid_rates,omitempty"`
	Classes   []classDetail   `json:"classes"`
	Metrics   json.RawMessage `json:"metrics,omitempty"`
}

func runDetailMode(w io.Writer, store *modelstore.Store, versionID string, jsonOut bool) error {
	rec, snap, err := store.GetVersion(versionID)
	if err != nil {
		return err
	}

	out := detailOutput{
		ModelID:   rec.ModelID,
		ParentID:  rec.ParentID,
		Name:      rec.Name,
		CreatedAt: rec.CreatedAt.Format(timeFormat),
		Tau:       rec.Tau,
		GridRates: rec.GridRates,
	}
	if rec.MetricsJSON != "" {
		out.Metrics = json.RawMessage(rec.MetricsJSON)
	}
	for _, c := range snap.Classes {
		out.Classes = append(out.Classes, classDetail{
			Label:         c.Label,
			SampleCount:   c.SampleCount,
			Proportion:    c.Proportion,
			Mean:          c.Mean,
			MinEigenvalue: floats.Min(c.Eigenvalues),
			MaxEigenvalue: floats.Max(c.Eigenvalues),
		})
	}

	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Version:    %s\n", out.ModelID)
	fmt.Fprintf(w, "Parent:     %s\n", dash(out.ParentID))
	fmt.Fprintf(w, "Name:       %s\n", out.Name)
	fmt.Fprintf(w, "Created:    %s\n", out.CreatedAt)
	fmt.Fprintf(w, "Tau:        %g\n", out.Tau)
	if len(out.GridRates) > 0 {
		fmt.Fprintf(w, "Grid rates: %v\n", out.GridRates)
	}
	fmt.Fprintf(w, "\n  %6s  %8s  %10s  %12s  %12s\n", "Label", "Samples", "Prior", "Min eig", "Max eig")
	for _, c := range out.Classes {
		fmt.Fprintf(w, "  %6d  %8d  %10.4f  %12.4g  %12.4g\n",
			c.Label, c.SampleCount, c.Proportion, c.MinEigenvalue, c.MaxEigenvalue)
	}
	if out.Metrics != nil {
		fmt.Fprintf(w, "\nEval: %s\n", out.Metrics)
	}
	return nil
}

// #endregion detail-mode

// #region helpers

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// #endregion helpers
