package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/deskctl/internal/element"
)

// State is a step of the per-query capture state machine
type State int

const (
	StateInit State = iota
	StateCapturePrimary
	StateCaptureFallback
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateCapturePrimary:
		return "capture_primary"
	case StateCaptureFallback:
		return "capture_fallback"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Source names where a window set came from
type Source string

const (
	SourceNone     Source = "none"
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// captureOutcome is the terminal result of one run of the state machine
type captureOutcome struct {
	state   State
	source  Source
	windows []*element.Element
	err     error
	trace   []State
}

// runCapture drives INIT -> CAPTURE_PRIMARY -> {DONE | CAPTURE_FALLBACK -> DONE}.
// CAPTURE_PRIMARY -> FAILED is the only path that carries an error.
func (e *Engine) runCapture(ctx context.Context) captureOutcome {
	out := captureOutcome{state: StateInit, source: SourceNone}

	for {
		out.trace = append(out.trace, out.state)
		if out.state.Terminal() {
			if out.windows == nil {
				out.windows = []*element.Element{}
			}
			return out
		}
		out.state = e.step(ctx, &out)
	}
}

// step performs the work of the current state and returns the next one
func (e *Engine) step(ctx context.Context, out *captureOutcome) State {
	switch out.state {
	case StateInit:
		return StateCapturePrimary

	case StateCapturePrimary:
		windows, err := e.capturePrimary(ctx)
		if err != nil {
			out.err = err
			return StateFailed
		}
		if len(windows) == 0 {
			return StateCaptureFallback
		}
		out.windows = windows
		out.source = SourcePrimary
		return StateDone

	case StateCaptureFallback:
		out.windows = e.fallback.ListStubWindows(ctx)
		out.source = SourceFallback
		return StateDone
	}

	out.err = fmt.Errorf("no transition from state %s", out.state)
	return StateFailed
}

type primaryResult struct {
	windows []*element.Element
	err     error
}

// capturePrimary runs the accessibility capture on its own goroutine so
// a stalled backend cannot hold the caller past the deadline. An
// abandoned capture finishes in the background and is discarded.
func (e *Engine) capturePrimary(ctx context.Context) ([]*element.Element, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan primaryResult, 1)
	go func() {
		windows, err := e.primary.Capture(ctx)
		done <- primaryResult{windows: windows, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil && errors.Is(r.err, ctx.Err()) {
			return nil, interrupted(ctx)
		}
		return r.windows, r.err
	case <-ctx.Done():
		return nil, interrupted(ctx)
	}
}

func interrupted(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCaptureTimeout, ctx.Err())
	}
	return fmt.Errorf("capture canceled: %w", ctx.Err())
}
