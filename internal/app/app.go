// Package app wires configuration, the device poller, the sample hub with its
// sinks and the optional monitor server into a single watch run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/JakeFAU/statuswatch/internal/api"
	"github.com/JakeFAU/statuswatch/internal/config"
	"github.com/JakeFAU/statuswatch/internal/page"
	"github.com/JakeFAU/statuswatch/internal/progress"
	"github.com/JakeFAU/statuswatch/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/statuswatch/internal/publisher/pubsub"
	"github.com/JakeFAU/statuswatch/internal/storage/postgres"
	"github.com/JakeFAU/statuswatch/internal/storage/sqlite"
	"github.com/JakeFAU/statuswatch/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Option customizes an App.
type Option func(*App)

// WithOutput sets where the progress line is rendered. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		if w != nil {
			a.out = w
		}
	}
}

// WithRegisterer sets the registry progress metrics are registered with.
// Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		if reg != nil {
			a.registerer = reg
		}
	}
}

// WithSampleRepository persists samples to repo instead of the store
// configured in the db section.
func WithSampleRepository(repo store.SampleRepository) Option {
	return func(a *App) {
		a.repo = repo
	}
}

// WithPublisher sends completion notices through p instead of a Pub/Sub
// topic built from the pubsub section.
func WithPublisher(p sinks.Publisher) Option {
	return func(a *App) {
		a.publisher = p
	}
}

// App holds the long-lived services of one watch run.
type App struct {
	cfg     config.Config
	view    progress.View
	pageURL string
	logger  *zap.Logger

	out        io.Writer
	registerer prometheus.Registerer

	page      *page.Client
	repo      store.SampleRepository
	publisher sinks.Publisher
	ready     api.ReadyFunc
	latest    *sinks.LatestSink
	hub       *progress.Hub

	closers []func() error
}

// New validates cfg and builds every service the run needs. Infrastructure
// that fails to initialize is released before the error is returned.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	view, err := cfg.View()
	if err != nil {
		return nil, err
	}
	pageURL, err := cfg.PageURL()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		view:       view,
		pageURL:    pageURL,
		logger:     logger,
		out:        os.Stdout,
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.page = page.New(page.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.RequestTimeout(),
	}, logger)

	if err := a.initInfrastructure(ctx); err != nil {
		a.closeInfrastructure()
		return nil, err
	}

	sinkList, err := a.buildSinks()
	if err != nil {
		a.closeInfrastructure()
		return nil, err
	}
	a.hub = progress.NewHub(progress.HubConfig{
		BufferSize:     cfg.Hub.BufferSize,
		MaxBatchEvents: cfg.Hub.MaxBatchEvents,
		MaxBatchWait:   cfg.MaxBatchWait(),
		Logger:         logger,
	}, sinkList...)

	logger.Info("application initialized",
		zap.String("view", view.Name),
		zap.String("page_url", pageURL),
		zap.Bool("store", a.repo != nil),
		zap.Bool("notify", a.publisher != nil),
		zap.Bool("server", cfg.Server.Enabled),
	)
	return a, nil
}

func (a *App) initInfrastructure(ctx context.Context) error {
	if a.repo == nil && a.cfg.DB.DSN != "" {
		if err := a.openSampleStore(ctx); err != nil {
			return err
		}
	}

	if a.publisher == nil && a.cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.publisher = pub
	}
	return nil
}

func (a *App) openSampleStore(ctx context.Context) error {
	switch a.cfg.DB.Driver {
	case config.DriverSQLite:
		sampleStore, err := sqlite.Open(ctx, a.cfg.DB.DSN, a.cfg.DB.Table)
		if err != nil {
			return fmt.Errorf("init sample store: %w", err)
		}
		a.closers = append(a.closers, sampleStore.Close)
		if err := sampleStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure sample schema: %w", err)
		}
		a.repo = sampleStore
		a.ready = sampleStore.Ping
	default:
		sampleStore, err := postgres.NewSampleStore(ctx, postgres.SampleStoreConfig{
			DSN:      a.cfg.DB.DSN,
			Table:    a.cfg.DB.Table,
			MaxConns: a.cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("init sample store: %w", err)
		}
		a.closers = append(a.closers, func() error {
			sampleStore.Close()
			return nil
		})
		if err := sampleStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure sample schema: %w", err)
		}
		a.repo = sampleStore
		a.ready = sampleStore.Ping
	}
	a.logger.Info("sample history enabled", zap.String("driver", a.cfg.DB.Driver))
	return nil
}

func (a *App) buildSinks() ([]progress.Sink, error) {
	promSink, err := sinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	a.latest = sinks.NewLatestSink()

	sinkList := []progress.Sink{
		sinks.NewLogSink(a.logger),
		promSink,
		a.latest,
	}
	if a.repo != nil {
		sinkList = append(sinkList, sinks.NewStoreSink(a.repo, a.logger))
	}
	if a.publisher != nil {
		sinkList = append(sinkList, sinks.NewNotifySink(a.publisher, a.logger))
	}
	return sinkList, nil
}

// Latest exposes the most recent samples seen by the run.
func (a *App) Latest() *sinks.LatestSink {
	return a.latest
}

// Target returns watch.target, or reads it from the device page when unset.
func (a *App) Target(ctx context.Context) (int64, error) {
	if a.cfg.Watch.Target > 0 {
		return a.cfg.Watch.Target, nil
	}
	target, err := a.page.ReadTarget(ctx, a.pageURL, a.view.TargetSelector)
	if err != nil {
		return 0, fmt.Errorf("read target from page: %w", err)
	}
	a.logger.Info("target read from page", zap.Int64("target", target))
	return target, nil
}

// Run polls the device until the job completes or ctx is canceled. The
// monitor server, when enabled, lives for the duration of the call.
func (a *App) Run(ctx context.Context) error {
	target, err := a.Target(ctx)
	if err != nil {
		return err
	}

	poller, err := progress.NewPoller(progress.Config{
		View:      a.view,
		PageURL:   a.pageURL,
		Target:    target,
		Interval:  a.cfg.Interval(),
		Timeout:   a.cfg.RequestTimeout(),
		UserAgent: a.cfg.HTTP.UserAgent,
	},
		progress.NewTerminalRenderer(a.out, a.view),
		a.page.Reloader(a.pageURL),
		progress.WithEmitter(a.hub),
		progress.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("init poller: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var srv *http.Server
	if a.cfg.Server.Enabled {
		srv = a.startServer(cancel)
	}

	a.logger.Info("watch started",
		zap.String("run_id", poller.RunID().String()),
		zap.String("status_url", poller.StatusURL()),
		zap.Int64("target", target),
	)
	runErr := poller.Run(ctx)

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
	}
	return runErr
}

func (a *App) startServer(stop context.CancelFunc) *http.Server {
	opts := []api.Option{api.WithCORS(a.cfg.Server.CORSOrigins)}
	if a.ready != nil {
		opts = append(opts, api.WithReadiness(a.ready))
	}
	apiServer := api.NewServer(a.latest, a.repo, a.logger, opts...)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()
	return srv
}

// Close flushes pending samples to the sinks and releases infrastructure.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close hub: %w", err))
		}
	}
	if err := a.closeInfrastructure(); err != nil {
		errs = append(errs, err)
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
