package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/canopy/pkg/canopy"
)

func (a *app) conceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "concept",
		Short: "Edit and inspect the concept hierarchy",
	}

	var broader []string
	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a concept, or re-point an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, func(c *canopy.Classifier) error {
				return c.AddConcept(args[0], broader)
			})
		},
	}
	add.Flags().StringSliceVarP(&broader, "broader", "b", nil, "broader concept ids")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a concept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, func(c *canopy.Classifier) error {
				return c.RemoveConcept(args[0])
			})
		},
	}

	roots := &cobra.Command{
		Use:   "roots",
		Short: "List the root concepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.view(func(c *canopy.Classifier) error {
				for _, id := range c.RootConcepts() {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a concept with its neighbours, model and report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.view(func(c *canopy.Classifier) error {
				return showConcept(cmd, c, args[0])
			})
		},
	}

	cmd.AddCommand(add, remove, roots, show)
	return cmd
}

type conceptView struct {
	canopy.Concept
	Model  *canopy.ModelInfo            `json:"model,omitempty"`
	Report *canopy.ClassificationReport `json:"report,omitempty"`
}

func showConcept(cmd *cobra.Command, c *canopy.Classifier, id string) error {
	broader, err := c.BroaderConcepts(id)
	if err != nil {
		return err
	}
	narrower, err := c.NarrowerConcepts(id)
	if err != nil {
		return err
	}
	v := conceptView{Concept: canopy.Concept{ID: id, Broader: broader, Narrower: narrower}}
	if m, ok := c.Model(id); ok {
		v.Model = &m
	}
	if r, err := c.PerformanceEstimates(id); err == nil {
		v.Report = &r
	}
	return printJSON(cmd.OutOrStdout(), v)
}

// view opens the classifier for a read-only command.
func (a *app) view(fn func(*canopy.Classifier) error) error {
	c, err := a.open()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// mutate opens the classifier, applies fn and saves the result.
func (a *app) mutate(cmd *cobra.Command, fn func(*canopy.Classifier) error) error {
	c, err := a.open()
	if err != nil {
		return err
	}
	defer c.Close()
	if err := fn(c); err != nil {
		return err
	}
	return c.Save(cmd.Context())
}
