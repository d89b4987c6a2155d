package accessibility

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/deskctl/internal/element"
	"github.com/bryanchriswhite/deskctl/internal/logger"
)

// topLevelRoles are the application children that count as windows
var topLevelRoles = map[string]bool{
	"frame":  true,
	"window": true,
	"dialog": true,
}

// IsTopLevelRole reports whether role names a window-like container
func IsTopLevelRole(role string) bool {
	return topLevelRoles[strings.ToLower(role)]
}

// Builder converts the backend object graph into element trees
type Builder struct {
	registry Registry
	maxDepth int
}

// Option configures a Builder
type Option func(*Builder)

// WithMaxDepth truncates subtrees below depth n. Zero means unlimited.
func WithMaxDepth(n int) Option {
	return func(b *Builder) {
		if n >= 0 {
			b.maxDepth = n
		}
	}
}

// NewBuilder creates a Builder over the given registry
func NewBuilder(registry Registry, opts ...Option) *Builder {
	b := &Builder{registry: registry}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// captureStats counts what a capture skipped, for debug logging
type captureStats struct {
	apps         int
	skippedApps  int
	nodes        int
	skippedNodes int
	truncated    int
}

// Capture walks every application's top-level windows and returns one
// tree per frame, window or dialog, in enumeration order.
//
// Failing to open the registry or to enumerate the desktop root is an
// error, as is a canceled ctx. Everything below the desktop root
// degrades: unreadable attributes take their defaults and unreadable
// children or applications are skipped.
func (b *Builder) Capture(ctx context.Context) ([]*element.Element, error) {
	log := logger.WithComponent("accessibility")

	session, err := b.registry.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("Failed to close accessibility session")
		}
	}()

	var stats captureStats
	windows := []*element.Element{}

	desktop := session.Desktop()
	appCount, err := desktop.ChildCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to enumerate applications: %w", ErrBackendUnavailable, err)
	}

	for i := 0; i < appCount; i++ {
		if ctx.Err() != nil {
			break
		}
		app, err := desktop.ChildAt(ctx, i)
		if err != nil || app == nil {
			stats.skippedApps++
			log.Debug().Err(err).Int("index", i).Msg("Skipping unreadable application")
			continue
		}
		stats.apps++

		topCount, err := app.ChildCount(ctx)
		if err != nil {
			stats.skippedApps++
			log.Debug().Err(err).Int("index", i).Msg("Skipping application without readable children")
			continue
		}

		for j := 0; j < topCount; j++ {
			if ctx.Err() != nil {
				break
			}
			top, err := app.ChildAt(ctx, j)
			if err != nil || top == nil {
				stats.skippedNodes++
				continue
			}
			if !IsTopLevelRole(roleOf(ctx, top)) {
				continue
			}
			windows = append(windows, b.build(ctx, top, 0, &stats))
		}
	}

	log.Debug().
		Int("windows", len(windows)).
		Int("apps", stats.apps).
		Int("skipped_apps", stats.skippedApps).
		Int("nodes", stats.nodes).
		Int("skipped_nodes", stats.skippedNodes).
		Int("truncated", stats.truncated).
		Msg("Accessibility capture complete")

	// a partial walk is never reported as a complete capture
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}

// build constructs the element for acc and its subtree. It never fails;
// a node always exists even when every attribute read fails.
func (b *Builder) build(ctx context.Context, acc Accessible, depth int, stats *captureStats) *element.Element {
	stats.nodes++

	name, err := acc.Name(ctx)
	title := read(name, err).orDefault("")
	geom := geometryOf(ctx, acc).orDefault(element.Geometry{})

	el := &element.Element{
		Role:     roleOf(ctx, acc),
		Title:    title,
		Value:    valueOf(ctx, acc, title),
		X:        geom.X,
		Y:        geom.Y,
		Width:    geom.Width,
		Height:   geom.Height,
		Children: []*element.Element{},
	}

	if b.maxDepth > 0 && depth+1 >= b.maxDepth {
		stats.truncated++
		return el
	}

	count, err := acc.ChildCount(ctx)
	n := read(count, err).orDefault(0)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		child, err := acc.ChildAt(ctx, i)
		if err != nil || child == nil {
			stats.skippedNodes++
			continue
		}
		el.Children = append(el.Children, b.build(ctx, child, depth+1, stats))
	}

	return el
}

func roleOf(ctx context.Context, acc Accessible) string {
	role, err := acc.RoleName(ctx)
	return mapAttr(read(role, err), strings.ToLower).orDefault("")
}

// valueOf resolves the value in capability order: text content, then
// current scalar value, then title. A present capability wins even when
// it yields an empty string.
func valueOf(ctx context.Context, acc Accessible, title string) string {
	return textOf(ctx, acc).
		or(func() attr[string] { return scalarOf(ctx, acc) }).
		or(func() attr[string] { return some(title) }).
		orDefault("")
}

func textOf(ctx context.Context, acc Accessible) attr[string] {
	t, ok := acc.QueryText(ctx)
	if !ok || t == nil {
		return none[string]()
	}
	text, err := t.Contents(ctx)
	return read(text, err)
}

func scalarOf(ctx context.Context, acc Accessible) attr[string] {
	v, ok := acc.QueryValue(ctx)
	if !ok || v == nil {
		return none[string]()
	}
	current, err := v.Current(ctx)
	return mapAttr(read(current, err), formatScalar)
}

func geometryOf(ctx context.Context, acc Accessible) attr[element.Geometry] {
	c, ok := acc.QueryComponent(ctx)
	if !ok || c == nil {
		return none[element.Geometry]()
	}
	extents, err := c.Extents(ctx)
	return read(extents, err)
}

// formatScalar renders v the way the desktop's own tooling prints
// floats: integral values keep ".0" and magnitudes outside [1e-4, 1e16)
// use exponent form.
func formatScalar(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if abs := math.Abs(v); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
