package cli

import (
	"github.com/spf13/cobra"

	"github.com/hejijunhao/canopy/internal/output"
	"github.com/hejijunhao/canopy/pkg/canopy"
)

func (a *app) reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show cross-validation reports",
	}

	show := &cobra.Command{
		Use:   "show <concept>",
		Short: "Print the report of one concept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.view(func(c *canopy.Classifier) error {
				r, err := c.PerformanceEstimates(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), r)
			})
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Write every report to the configured output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.view(func(c *canopy.Classifier) error {
				out, err := a.newOutput(cmd.OutOrStdout(), c.SchemeID())
				if err != nil {
					return err
				}
				for _, r := range c.Reports() {
					if err := out.Write(cmd.Context(), output.ReportRecord(r)); err != nil {
						out.Close()
						return err
					}
				}
				return out.Close()
			})
		},
	}

	cmd.AddCommand(show, export)
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent training and evaluation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.view(func(c *canopy.Classifier) error {
				runs, err := c.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out, err := a.newOutput(cmd.OutOrStdout(), c.SchemeID())
				if err != nil {
					return err
				}
				for _, r := range runs {
					if err := out.Write(cmd.Context(), runRecord(r)); err != nil {
						out.Close()
						return err
					}
				}
				return out.Close()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs (0 = all)")
	return cmd
}

func runRecord(r canopy.Run) output.Record {
	return output.Record{
		Kind: output.KindRun,
		ID:   r.ID,
		Run: &output.RunSummary{
			ID:          r.ID,
			Kind:        r.Kind,
			Incremental: r.Incremental,
			Refit:       r.Refit,
			Skipped:     r.Skipped,
			DurationMS:  r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
			Error:       r.Error,
		},
	}
}
