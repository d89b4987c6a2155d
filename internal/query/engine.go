// Package query answers window queries over a fresh desktop capture.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryanchriswhite/deskctl/internal/accessibility"
	"github.com/bryanchriswhite/deskctl/internal/element"
	"github.com/bryanchriswhite/deskctl/internal/logger"
	"github.com/bryanchriswhite/deskctl/internal/metrics"
)

var (
	// ErrNotFound is returned when no window matches a search
	ErrNotFound = errors.New("window not found")

	// ErrCaptureTimeout is returned when the primary capture outlives its deadline
	ErrCaptureTimeout = errors.New("capture timed out")

	// ErrBackendUnavailable is the accessibility backend failure, re-exported
	// so callers need not import the accessibility package
	ErrBackendUnavailable = accessibility.ErrBackendUnavailable
)

// Capturer produces the primary window set
type Capturer interface {
	Capture(ctx context.Context) ([]*element.Element, error)
}

// Lister produces the fallback window set. It never fails.
type Lister interface {
	ListStubWindows(ctx context.Context) []*element.Element
}

// WindowsResult is the outcome of an operation yielding several windows
type WindowsResult struct {
	Success bool               `json:"success"`
	Windows []*element.Element `json:"windows"`
	Error   string             `json:"error,omitempty"`

	Source Source `json:"-"`
	Err    error  `json:"-"`
}

// WindowResult is the outcome of an operation yielding one window
type WindowResult struct {
	Success bool             `json:"success"`
	Window  *element.Element `json:"window,omitempty"`
	Error   string           `json:"error,omitempty"`

	Source Source `json:"-"`
	Err    error  `json:"-"`
}

// Engine runs captures and searches over them. It keeps no state
// between calls: every operation captures the desktop anew.
type Engine struct {
	primary  Capturer
	fallback Lister
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// Option configures an Engine
type Option func(*Engine)

// WithTimeout bounds each primary capture. Zero waits for the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithMetrics records captures and query outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine over a primary capturer and its fallback
func NewEngine(primary Capturer, fallback Lister, opts ...Option) *Engine {
	e := &Engine{primary: primary, fallback: fallback}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// capture runs the state machine once and records it
func (e *Engine) capture(ctx context.Context, operation string) captureOutcome {
	start := time.Now()
	out := e.runCapture(ctx)
	elapsed := time.Since(start)

	e.metrics.RecordCapture(string(out.source), out.state.String(), len(out.windows), elapsed)

	ev := logger.WithComponent("query").Debug().
		Str("operation", operation).
		Str("source", string(out.source)).
		Str("state", out.state.String()).
		Int("windows", len(out.windows)).
		Dur("elapsed", elapsed)
	if out.err != nil {
		ev = ev.Err(out.err)
	}
	ev.Msg("Capture finished")

	return out
}

// ListWindows returns every top-level window. An empty accessibility
// capture falls back to window-manager stubs, which may also be empty.
func (e *Engine) ListWindows(ctx context.Context) WindowsResult {
	out := e.capture(ctx, "list")
	if out.state == StateFailed {
		return e.failWindows("list", out, out.err)
	}
	e.metrics.RecordQuery("list", "ok")
	return WindowsResult{Success: true, Windows: out.windows, Source: out.source}
}

// FindByTitle returns the first window whose title contains title,
// ignoring case. An empty title matches the first window.
func (e *Engine) FindByTitle(ctx context.Context, title string) WindowResult {
	const op = "find_by_title"

	out := e.capture(ctx, op)
	if out.state == StateFailed {
		return e.failWindow(op, out.source, out.err)
	}

	needle := strings.ToLower(title)
	for _, w := range out.windows {
		if strings.Contains(strings.ToLower(w.Title), needle) {
			e.metrics.RecordQuery(op, "ok")
			return WindowResult{Success: true, Window: w, Source: out.source}
		}
	}
	return e.failWindow(op, out.source, fmt.Errorf("%w: no window with title containing %q", ErrNotFound, title))
}

// FindByRole returns every window whose role equals role, ignoring case
func (e *Engine) FindByRole(ctx context.Context, role string) WindowsResult {
	const op = "find_by_role"

	out := e.capture(ctx, op)
	if out.state == StateFailed {
		return e.failWindows(op, out, out.err)
	}

	matches := []*element.Element{}
	for _, w := range out.windows {
		if strings.EqualFold(w.Role, role) {
			matches = append(matches, w)
		}
	}
	if len(matches) == 0 {
		return e.failWindows(op, out, fmt.Errorf("%w: no windows with role %q", ErrNotFound, role))
	}

	e.metrics.RecordQuery(op, "ok")
	return WindowsResult{Success: true, Windows: matches, Source: out.source}
}

// FindByValue returns the first top-level window whose tree holds an
// element with value or title containing value, ignoring case. The
// whole top-level tree is returned, not the matching descendant. Empty
// values and titles never match, so an empty value finds the first tree
// holding any text.
func (e *Engine) FindByValue(ctx context.Context, value string) WindowResult {
	const op = "find_by_value"

	out := e.capture(ctx, op)
	if out.state == StateFailed {
		return e.failWindow(op, out.source, out.err)
	}

	for _, w := range out.windows {
		if w.ContainsValue(value) {
			e.metrics.RecordQuery(op, "ok")
			return WindowResult{Success: true, Window: w, Source: out.source}
		}
	}
	return e.failWindow(op, out.source, fmt.Errorf("%w: no window with value %q", ErrNotFound, value))
}

func (e *Engine) failWindows(op string, out captureOutcome, err error) WindowsResult {
	e.metrics.RecordQuery(op, outcomeOf(err))
	return WindowsResult{
		Success: false,
		Windows: []*element.Element{},
		Error:   err.Error(),
		Source:  out.source,
		Err:     err,
	}
}

func (e *Engine) failWindow(op string, source Source, err error) WindowResult {
	e.metrics.RecordQuery(op, outcomeOf(err))
	return WindowResult{
		Success: false,
		Error:   err.Error(),
		Source:  source,
		Err:     err,
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCaptureTimeout):
		return "timeout"
	default:
		return "failed"
	}
}
