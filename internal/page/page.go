// Package page reads the device's job page with Colly: the target count
// rendered into the page and the plain reload issued once a job completes.
package page

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// ErrTargetNotFound is returned when the page has no element matching the
// target selector.
var ErrTargetNotFound = errors.New("target element not found")

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Transport replaces the default pooled HTTP transport when set.
	Transport http.RoundTripper
}

// Client loads the device page.
type Client struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	return &Client{cfg: cfg, transport: transport, logger: logger.Named("page")}
}

func (c *Client) collector(ctx context.Context) *colly.Collector {
	collector := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	)
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)
	collector.WithTransport(c.transport)
	return collector
}

// ReadTarget loads pageURL and parses the integer text of the first element
// matching selector.
func (c *Client) ReadTarget(ctx context.Context, pageURL, selector string) (int64, error) {
	var (
		text  string
		found bool
	)
	collector := c.collector(ctx)
	collector.OnHTML(selector, func(e *colly.HTMLElement) {
		if found {
			return
		}
		found = true
		text = strings.TrimSpace(e.Text)
	})

	if err := collector.Visit(pageURL); err != nil {
		return 0, fmt.Errorf("load page %s: %w", pageURL, err)
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrTargetNotFound, selector)
	}
	target, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse target %q: %w", text, err)
	}
	if target < 0 {
		return 0, fmt.Errorf("target must be >= 0, got %d", target)
	}
	c.logger.Debug("target read", zap.String("selector", selector), zap.Int64("target", target))
	return target, nil
}

// Reloader re-requests the device page with a plain GET. It never re-submits
// the form that started the job.
type Reloader struct {
	client  *Client
	pageURL string
}

// Reloader returns a Reloader bound to pageURL.
func (c *Client) Reloader(pageURL string) *Reloader {
	return &Reloader{client: c, pageURL: pageURL}
}

// Reload fetches the page and logs the response status.
func (r *Reloader) Reload(ctx context.Context) error {
	var status int
	collector := r.client.collector(ctx)
	collector.OnResponse(func(resp *colly.Response) {
		status = resp.StatusCode
	})
	collector.OnError(func(resp *colly.Response, _ error) {
		if resp != nil {
			status = resp.StatusCode
		}
	})

	err := collector.Visit(r.pageURL)
	r.client.logger.Info("page reloaded",
		zap.String("url", r.pageURL),
		zap.Int("status", status),
	)
	if err != nil {
		return fmt.Errorf("reload page %s: %w", r.pageURL, err)
	}
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
	}
}
