// Package cli implements the canopy command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/canopy/internal/config"
	"github.com/hejijunhao/canopy/internal/logging"
)

// app carries the persistent flags and the loaded configuration to every
// subcommand.
type app struct {
	configPath string
	dbPath     string
	verbose    bool

	cfg config.Config
}

// Execute runs the canopy command line with args.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "canopy",
		Short: "Hierarchical topic classifier",
		Long: `canopy - hierarchical topic classifier

Keeps a concept taxonomy and labelled examples in a local database, trains
one linear model per concept and suggests the concepts a text is about.

Configuration comes from --config (YAML or TOML) and CANOPY_* environment
variables, for example CANOPY_STORE_PATH or CANOPY_FEATURES_EXTRACTOR.`,
		Version:           config.Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (YAML or TOML)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (overrides store.path)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.conceptCmd(),
		a.taxonomyCmd(),
		a.exampleCmd(),
		a.trainCmd(),
		a.evaluateCmd(),
		a.reportCmd(),
		a.runsCmd(),
		a.suggestCmd(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Store.Path = a.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	level := logging.ParseLevel(cfg.Log.Level)
	if a.verbose {
		level = logging.ParseLevel("debug")
	}
	logging.Init(cfg.Log.Format, level)
	a.cfg = cfg
	return nil
}
