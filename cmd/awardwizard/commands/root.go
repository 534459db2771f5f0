// Package commands implements the awardwizard command line.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/livetemplate/awardwizard/internal/config"
)

// Version is the released version, set at build time.
var Version = "0.1.0-dev"

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
}

// Root builds the awardwizard command tree.
func Root() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:           "awardwizard",
		Short:         "Alumni award registration site",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("awardwizard version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (default: awardwizard.yaml in the working directory)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging and relaxed origin checks")

	cmd.AddCommand(serveCmd(&g))
	cmd.AddCommand(checkConfigCmd(&g))
	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "awardwizard version %s\n", Version)
		},
	}
}

// loadConfig reads the config named by --config, or looks in the working
// directory, and applies the global flags.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		if _, statErr := os.Stat(g.configPath); statErr != nil {
			return nil, fmt.Errorf("config file: %w", statErr)
		}
		cfg, err = config.Load(g.configPath)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if g.debug {
		cfg.Server.Debug = true
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	return cfg, nil
}
