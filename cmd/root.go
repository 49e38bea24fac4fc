// Package cmd defines and implements the CLI commands for the statuswatch executable.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/JakeFAU/statuswatch/internal/app"
	"github.com/JakeFAU/statuswatch/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is stamped at build time with
// -ldflags "-X github.com/JakeFAU/statuswatch/cmd.version=...".
var version = "dev"

// Watcher is what the watch command drives. *app.App satisfies it.
type Watcher interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

// newWatcher is the application factory. It's a variable so tests can
// substitute their own.
var newWatcher = func(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) (Watcher, error) {
	return app.New(ctx, cfg, logger, app.WithOutput(out))
}

type rootOptions struct {
	configFile string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "statuswatch",
		Short: "Follow long-running jobs on the measuring device.",
		Long: `statuswatch polls the device's status documents, renders progress with
elapsed time and remaining-time estimates, and reloads the device page once
the job reaches its target.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"config file (default is ./statuswatch.yaml or $HOME/.statuswatch/statuswatch.yaml)")

	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newFormatCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
