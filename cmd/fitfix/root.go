package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ligfx/garmin-fit-fixer/internal/common"
	"github.com/ligfx/garmin-fit-fixer/internal/config"
)

type cliContext struct {
	configPath string
	logDir     string
	verbose    bool

	cfg       config.Config
	logCloser io.Closer
}

func (c *cliContext) load() error {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if c.logDir != "" {
		cfg.Logs.Directory = c.logDir
	}
	closer, err := common.SetupFileLogging(cfg.LogConfig())
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	c.cfg = cfg
	c.logCloser = closer
	return nil
}

func (c *cliContext) close() {
	if c.logCloser != nil {
		_ = c.logCloser.Close()
		c.logCloser = nil
	}
}

func newRootCommand() *cobra.Command {
	ctx := &cliContext{}

	rootCmd := &cobra.Command{
		Use:           "fitfix",
		Short:         "Repair corrupted FIT activity files",
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&ctx.logDir, "log-dir", "", "Also write logs to a rotated file in this directory")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log every skip trial")

	rootCmd.AddCommand(newRepairCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newUndoCommand(ctx))

	return rootCmd
}
