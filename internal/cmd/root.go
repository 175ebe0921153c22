// Package cmd implements the oceanctl CLI commands using Cobra.
// It provides commands for managing THREDDS servers, browsing their
// catalogs, and submitting and tracking diagnostic jobs.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmgilman/oceanctl/internal/config"
	"github.com/jmgilman/oceanctl/internal/slogger"
)

// verbosity is the number of -v flags given.
var verbosity int

var rootCmd = &cobra.Command{
	Use:   "oceanctl",
	Short: "Browse ocean data servers and run diagnostics",
	Long: `oceanctl is a command line client for the oceanographic analysis service.

It manages the THREDDS data servers known to the service, browses their
catalogs, and submits diagnostic computations such as thermocline or
mesoscale eddy detection, tracking each job until it completes.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupApp,
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		if app := AppFromContext(cmd.Context()); app != nil {
			app.Close()
		}
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// Main runs the CLI and returns the process exit code.
func Main() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Execute(ctx); err != nil {
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
}

// setupConfig loads configuration and the logger into the command context.
func setupConfig(cmd *cobra.Command, _ []string) error {
	loader, err := config.NewLoader()
	if err != nil {
		return fmt.Errorf("init config loader: %w", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slogger.New(slogger.Config{
		Verbosity: verbosity,
		Format:    cfg.Log.Format,
		Output:    cmd.ErrOrStderr(),
	})

	ctx := cmd.Context()
	ctx = slogger.WithLogger(ctx, logger)
	ctx = WithConfig(ctx, cfg)
	ctx = WithLoader(ctx, loader)
	cmd.SetContext(ctx)

	logger.Debug("loaded config", "path", loader.Path())
	return nil
}

// setupApp loads configuration and wires the service clients.
func setupApp(cmd *cobra.Command, args []string) error {
	if err := setupConfig(cmd, args); err != nil {
		return err
	}
	if err := checkOutputFormat(cmd); err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := NewApp(ctx, ConfigFromContext(ctx), slogger.L(ctx))
	if err != nil {
		return err
	}
	cmd.SetContext(WithApp(ctx, app))
	return nil
}
