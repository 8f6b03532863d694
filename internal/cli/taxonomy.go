package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hejijunhao/canopy/pkg/canopy"
)

type taxonomyFile struct {
	Scheme   string                 `yaml:"scheme,omitempty"`
	Concepts []*canopy.TaxonomyNode `yaml:"concepts"`
}

func (a *app) taxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Import or export the concept hierarchy as YAML",
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Add every concept of a YAML taxonomy file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, func(c *canopy.Classifier) error {
				n, err := c.LoadTaxonomy(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "imported %d concepts\n", n)
				return nil
			})
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Write the hierarchy as a YAML taxonomy file to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.view(func(c *canopy.Classifier) error {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(taxonomyFile{Scheme: c.SchemeID(), Concepts: c.Taxonomy()})
			})
		},
	}

	cmd.AddCommand(importCmd, export)
	return cmd
}
