package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/statuswatch/internal/clock/system"
)

// DefaultInterval is the pause between two status polls.
const DefaultInterval = 500 * time.Millisecond

const maxStatusBytes = 64 << 10

// Reloader performs the completion action once the job reached its target.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloaderFunc adapts a function to the Reloader interface.
type ReloaderFunc func(ctx context.Context) error

// Reload calls f.
func (f ReloaderFunc) Reload(ctx context.Context) error {
	return f(ctx)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Config describes what a Poller watches.
type Config struct {
	// View selects endpoint, fields and start behavior.
	View View
	// PageURL is the device page; the status endpoint is resolved against it.
	PageURL string
	// Target is the count at which the job is complete. It never changes for
	// the lifetime of the Poller.
	Target int64
	// Interval between polls; DefaultInterval when zero.
	Interval time.Duration
	// Timeout bounds each status request when the HTTP client is built
	// internally. Zero leaves requests bounded only by the context.
	Timeout time.Duration
	// UserAgent is sent with every status request when set.
	UserAgent string
	// RunID tags emitted samples; a UUIDv7 is generated when nil.
	RunID uuid.UUID
}

// Option customizes a Poller.
type Option func(*Poller)

// WithHTTPClient replaces the HTTP client used for status requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Poller) {
		if client != nil {
			p.client = client
		}
	}
}

// WithEmitter forwards every sample to emitter after rendering.
func WithEmitter(emitter Emitter) Option {
	return func(p *Poller) {
		p.emitter = emitter
	}
}

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Result is the outcome of one poll. Err is nil exactly when the sample holds
// a decoded status; a non-nil Err is always a *PollError.
type Result struct {
	Sample   Sample
	Err      error
	Reloaded bool
}

// Poller periodically fetches a job status, renders it and detects completion.
type Poller struct {
	cfg       Config
	statusURL string
	client    *http.Client
	renderer  Renderer
	reloader  Reloader
	emitter   Emitter
	clock     Clock
	logger    *zap.Logger

	reloaded atomic.Bool
}

// NewPoller validates cfg and builds a Poller. renderer and reloader are
// required.
func NewPoller(cfg Config, renderer Renderer, reloader Reloader, opts ...Option) (*Poller, error) {
	if cfg.View.Endpoint == "" || cfg.View.CountField == "" || cfg.View.TimeField == "" {
		return nil, errors.New("view endpoint, count field and time field are required")
	}
	if cfg.Target < 0 {
		return nil, fmt.Errorf("target must be >= 0, got %d", cfg.Target)
	}
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if reloader == nil {
		return nil, errors.New("reloader is required")
	}
	statusURL, err := ResolveStatusURL(cfg.PageURL, cfg.View)
	if err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RunID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		cfg.RunID = id
	}

	p := &Poller{
		cfg:       cfg,
		statusURL: statusURL,
		client:    &http.Client{Timeout: cfg.Timeout},
		renderer:  renderer,
		reloader:  reloader,
		clock:     system.New(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(
		zap.String("run_id", cfg.RunID.String()),
		zap.String("view", cfg.View.Name),
	)
	return p, nil
}

// ResolveStatusURL resolves the view's status endpoint against the page URL
// the way a browser resolves a relative fetch.
func ResolveStatusURL(pageURL string, view View) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("page url must be http or https, got %q", pageURL)
	}
	if base.Host == "" {
		return "", fmt.Errorf("page url %q has no host", pageURL)
	}
	ref, err := url.Parse(view.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// RunID returns the identifier attached to every sample of this Poller.
func (p *Poller) RunID() uuid.UUID {
	return p.cfg.RunID
}

// StatusURL returns the resolved status endpoint.
func (p *Poller) StatusURL() string {
	return p.statusURL
}

// PollOnce fetches and decodes the status once. A decoded status is rendered
// and, when the count equals the target, the reload runs; it runs at most
// once per Poller. Every sample except those cut short by ctx cancellation is
// emitted.
func (p *Poller) PollOnce(ctx context.Context) Result {
	start := p.clock.Now()
	sample := Sample{
		RunID:  p.cfg.RunID,
		TS:     start.UTC(),
		View:   p.cfg.View.Name,
		Target: p.cfg.Target,
	}

	status, err := p.fetch(ctx)
	sample.Latency = nonNegative(p.clock.Now().Sub(start))
	if err != nil {
		sample.Outcome = Outcome(FailureKindOf(err))
		sample.Note = err.Error()
		if ctx.Err() != nil {
			return Result{Sample: sample, Err: err}
		}
		p.logger.Warn("status poll failed",
			zap.String("url", p.statusURL),
			zap.String("kind", string(sample.Outcome)),
			zap.Error(err),
		)
		p.emit(sample)
		return Result{Sample: sample, Err: err}
	}

	sample.Outcome = OutcomeOK
	sample.Count = status.Count
	sample.Elapsed = millisToDuration(status.ElapsedMillis)
	sample.File = status.File
	if p.cfg.View.ComputeETA {
		eta, ok := EstimateRemaining(status.ElapsedMillis, status.Count, p.cfg.Target)
		sample.ETA = millisToDuration(eta)
		sample.ETAKnown = ok
	}
	sample.Complete = status.Count == p.cfg.Target

	if err := p.renderer.Render(ctx, sample); err != nil {
		p.logger.Warn("render failed", zap.Error(err))
	}
	p.emit(sample)

	result := Result{Sample: sample}
	if sample.Complete {
		result.Reloaded = p.reload(ctx)
	}
	return result
}

func (p *Poller) fetch(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.statusURL, nil)
	if err != nil {
		return Status{}, &PollError{Kind: FailureTransport, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Status{}, &PollError{Kind: FailureTransport, Err: fmt.Errorf("get status: %w", err)}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Debug("close status body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxStatusBytes))
		return Status{}, &PollError{
			Kind: FailureHTTPStatus,
			Err:  fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	status, err := DecodeStatus(p.cfg.View, io.LimitReader(resp.Body, maxStatusBytes))
	if err != nil {
		return Status{}, err
	}
	return status, nil
}

func (p *Poller) reload(ctx context.Context) bool {
	if !p.reloaded.CompareAndSwap(false, true) {
		return false
	}
	p.logger.Info("target reached, reloading page", zap.Int64("target", p.cfg.Target))
	if err := p.reloader.Reload(ctx); err != nil {
		p.logger.Warn("page reload failed", zap.Error(err))
	}
	return true
}

func (p *Poller) emit(sample Sample) {
	if p.emitter != nil {
		p.emitter.Emit(sample)
	}
}

// Task is a running poll loop.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Stop cancels the loop. It is safe to call more than once and after the loop
// has finished.
func (t *Task) Stop() {
	t.cancel()
}

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the loop exits. It returns nil when the job completed and
// the context error when the loop was stopped or its context ended.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Start launches the poll loop on its own goroutine. Views with
// PollImmediately poll right away; others wait for the first tick. The loop
// ends after the completing poll, on Stop, or when ctx ends.
func (p *Poller) Start(ctx context.Context) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		t.err = p.loop(ctx)
	}()
	return t
}

// Run polls until completion or until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	return p.Start(ctx).Wait()
}

func (p *Poller) loop(ctx context.Context) error {
	p.logger.Info("polling started",
		zap.String("url", p.statusURL),
		zap.Int64("target", p.cfg.Target),
		zap.Duration("interval", p.cfg.Interval),
	)
	if p.cfg.View.PollImmediately {
		if p.PollOnce(ctx).Sample.Complete {
			return nil
		}
	}
	// A poll slower than the interval delays the next one; ticks that fire
	// meanwhile are dropped, so polls never overlap.
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("polling stopped", zap.Error(ctx.Err()))
			return fmt.Errorf("poll loop: %w", ctx.Err())
		case <-ticker.C:
			if p.PollOnce(ctx).Sample.Complete {
				return nil
			}
		}
	}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
