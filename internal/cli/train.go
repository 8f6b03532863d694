package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/canopy/pkg/canopy"
)

func (a *app) trainCmd() *cobra.Command {
	var incremental bool
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the per-concept models",
		Long: `Fit the per-concept models from the stored examples.

From scratch (the default) every concept is refit. With --incremental only
concepts whose model is missing or outdated, or whose examples changed since
the last successful run, are refit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.mutate(cmd, func(c *canopy.Classifier) error {
				n, err := c.UpdateModel(cmd.Context(), incremental)
				fmt.Fprintf(cmd.ErrOrStderr(), "refit %d models\n", n)
				if err != nil {
					// Keep what was refit before the failure.
					if saveErr := c.Save(cmd.Context()); saveErr != nil {
						return fmt.Errorf("%w (saving partial progress: %v)", err, saveErr)
					}
					return err
				}
				if dirty := c.DirtyConcepts(); len(dirty) > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "%d concepts have no positive examples: %v\n", len(dirty), dirty)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&incremental, "incremental", false, "refit only changed concepts")
	return cmd
}

func (a *app) evaluateCmd() *cobra.Command {
	var (
		fold, folds int
		allFolds    bool
		incremental bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Cross-validate the models and store performance reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("fold") {
				a.cfg.CrossVal.FoldIndex = fold
			}
			if cmd.Flags().Changed("folds") {
				a.cfg.CrossVal.FoldCount = folds
			}
			if cmd.Flags().Changed("all-folds") {
				a.cfg.CrossVal.AllFolds = allFolds
			}
			return a.mutate(cmd, func(c *canopy.Classifier) error {
				n, err := c.UpdatePerformanceEstimates(cmd.Context(), incremental)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "updated %d reports\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&fold, "fold", 0, "held-out fold index")
	cmd.Flags().IntVar(&folds, "folds", 0, "number of folds (0 disables cross-validation)")
	cmd.Flags().BoolVar(&allFolds, "all-folds", false, "evaluate every fold and pool the counts")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "only concepts without a current report")
	return cmd
}
