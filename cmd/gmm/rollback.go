package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/gmm-classifier/internal/logging"
	"github.com/danielpatrickdp/gmm-classifier/internal/modelstore"
)

// #region rollback-cmd

func rollbackCmd(a *app) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Make an earlier version of the named model active again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.rollback(cmd, version)
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "model id to activate")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

// #endregion rollback-cmd

// #region rollback

func (a *app) rollback(cmd *cobra.Command, version string) error {
	name := a.cfg.Store.Name
	store, err := modelstore.Open(a.cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	previous := ""
	if rec, _, err := store.Current(name); err == nil {
		previous = rec.ModelID
	}
	if err := store.Rollback(name, version); err != nil {
		return err
	}
	rec, _, err := store.GetVersion(version)
	if err != nil {
		return err
	}

	err = logging.LogTraining(store.DB(), logging.TrainingEntry{
		ModelID:     rec.ModelID,
		Name:        name,
		TriggerType: logging.TriggerRollback,
		Tau:         rec.Tau,
		Decision:    logging.DecisionRollback,
		Reason:      fmt.Sprintf("active version was %s", shortID(previous)),
	})
	if err != nil {
		return err
	}
	a.logger.Info("model rolled back", "name", name, "model_id", rec.ModelID, "previous", previous)
	fmt.Fprintf(cmd.OutOrStdout(), "%q now points at %s (was %s)\n", name, rec.ModelID, dash(previous))
	return nil
}

// #endregion rollback
