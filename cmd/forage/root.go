package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/forage/pkg/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	model      string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "forage",
		Short: "Forage - budgeted browser research agent",
		Long: `Forage answers a research task by planning browser actions with an LLM,
collecting page content as it goes and summarizing what it found when time or
turns run out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "path to configuration file (YAML)")
	root.PersistentFlags().StringVar(&flags.model, "model", "", "planner model (overrides the config file)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newRunCommand(flags))
	root.AddCommand(newVersionCommand())
	return root
}

// loadConfig reads the configuration document and applies flag overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	if f.model != "" {
		cfg.Planner.Model = f.model
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the forage version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Forage v%s\n", version)
		},
	}
}
