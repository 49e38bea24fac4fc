package progress

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/statuswatch/internal/duration"
)

// Renderer presents a successfully decoded sample. Render is called from the
// polling goroutine, in poll order.
type Renderer interface {
	Render(ctx context.Context, sample Sample) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, sample Sample) error

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, sample Sample) error {
	return f(ctx, sample)
}

// Display holds the text of every field a progress view shows.
type Display struct {
	Progress int64  `json:"progress"`
	Counter  string `json:"counter"`
	Total    string `json:"total"`
	Time     string `json:"time"`
	File     string `json:"file,omitempty"`
	ETA      string `json:"eta,omitempty"`
}

// Project maps a sample onto the display fields of view. An unknown ETA shows
// as empty text.
func Project(view View, sample Sample) Display {
	d := Display{
		Progress: sample.Count,
		Counter:  strconv.FormatInt(sample.Count, 10),
		Total:    strconv.FormatInt(sample.Target, 10),
		Time:     duration.Format(sample.Elapsed),
	}
	if view.FileField != "" {
		d.File = sample.File
	}
	if view.ComputeETA && sample.ETAKnown {
		d.ETA = duration.Format(sample.ETA)
	}
	return d
}

const defaultBarWidth = 24

// TerminalRenderer writes one status line per sample to an io.Writer.
type TerminalRenderer struct {
	mu    sync.Mutex
	out   io.Writer
	view  View
	width int
}

// NewTerminalRenderer builds a TerminalRenderer for view.
func NewTerminalRenderer(out io.Writer, view View) *TerminalRenderer {
	return &TerminalRenderer{out: out, view: view, width: defaultBarWidth}
}

// Render writes the sample as a single line.
func (r *TerminalRenderer) Render(_ context.Context, sample Sample) error {
	d := Project(r.view, sample)

	var b strings.Builder
	b.WriteString(progressBar(sample.Count, sample.Target, r.width))
	fmt.Fprintf(&b, " %s/%s  time %s", d.Counter, d.Total, placeholder(d.Time))
	if r.view.FileField != "" {
		fmt.Fprintf(&b, "  file %s", placeholder(d.File))
	}
	if r.view.ComputeETA {
		fmt.Fprintf(&b, "  eta %s", placeholder(d.ETA))
	}
	b.WriteByte('\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := io.WriteString(r.out, b.String()); err != nil {
		return fmt.Errorf("write progress line: %w", err)
	}
	return nil
}

func progressBar(count, target int64, width int) string {
	filled := 0
	if target > 0 && count > 0 {
		filled = int(count * int64(width) / target)
		if filled > width {
			filled = width
		}
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func placeholder(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
