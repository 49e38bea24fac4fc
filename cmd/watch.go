package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/JakeFAU/statuswatch/internal/config"
	"github.com/JakeFAU/statuswatch/internal/logging"
	"github.com/JakeFAU/statuswatch/internal/metrics"
	"github.com/JakeFAU/statuswatch/internal/progress"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const closeTimeout = 10 * time.Second

type watchFlags struct {
	baseURL  string
	target   int64
	interval time.Duration
}

// newWatchCmd creates the 'watch' subcommand, which follows one job until it
// reaches its target.
func newWatchCmd(opts *rootOptions) *cobra.Command {
	flags := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch [calculating|recording]",
		Short: "Poll a job's progress until it completes",
		Long: `Polls the status document of the selected view, printing one progress line
per poll. The target count is read from the device page unless --target or
watch.target is set. Exits once the count reaches the target.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: viewNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configFile)
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, args, &cfg); err != nil {
				return err
			}
			return runWatch(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "device base URL, e.g. http://192.168.4.1")
	cmd.Flags().Int64Var(&flags.target, "target", 0, "item count at which the job is complete (0 reads it from the page)")
	cmd.Flags().DurationVar(&flags.interval, "interval", 0, "time between polls (default 500ms)")

	return cmd
}

// apply overlays positional view and explicitly set flags on cfg.
func (f *watchFlags) apply(cmd *cobra.Command, args []string, cfg *config.Config) error {
	if len(args) == 1 {
		cfg.Watch.View = args[0]
	}
	if cmd.Flags().Changed("base-url") {
		cfg.Device.BaseURL = f.baseURL
	}
	if cmd.Flags().Changed("target") {
		cfg.Watch.Target = f.target
	}
	if cmd.Flags().Changed("interval") {
		if f.interval < time.Millisecond {
			return fmt.Errorf("--interval must be at least 1ms, got %s", f.interval)
		}
		cfg.Watch.IntervalMs = int(f.interval.Milliseconds())
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func runWatch(cmd *cobra.Command, cfg config.Config) error {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	undo := zap.ReplaceGlobals(logger)
	defer undo()
	metrics.SetBuildInfo(version)
	logger.Info("statuswatch starting", zap.String("version", version))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := newWatcher(ctx, cfg, logger, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := watcher.Close(closeCtx); cerr != nil {
			logger.Warn("failed to close application services", zap.Error(cerr))
		}
	}()

	if err := watcher.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			logger.Info("watch interrupted")
			return nil
		}
		return fmt.Errorf("watch: %w", err)
	}
	logger.Info("job complete")
	return nil
}

func viewNames() []string {
	views := progress.Views()
	names := make([]string, 0, len(views))
	for _, v := range views {
		names = append(names, v.Name)
	}
	return names
}
