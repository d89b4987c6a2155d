package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/bryanchriswhite/deskctl/internal/automation"
	"github.com/bryanchriswhite/deskctl/internal/logger"
	"github.com/bryanchriswhite/deskctl/internal/metrics"
	"github.com/bryanchriswhite/deskctl/internal/query"
	"golang.org/x/sync/semaphore"
)

// Request is the command envelope shared by the WebSocket channel,
// POST /api/command and the remote client
type Request struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ActionResult is the reply to a non-query command. Optional fields are
// present only for the commands that produce them.
type ActionResult struct {
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	ImageData string            `json:"image_data,omitempty"`
	Size      *automation.Size  `json:"size,omitempty"`
	Position  *automation.Point `json:"position,omitempty"`
	Content   *string           `json:"content,omitempty"`

	*automation.CommandResult
}

// Reply is a dispatched command's HTTP status and JSON body
type Reply struct {
	Status int
	Body   interface{}
}

// Succeeded reports whether the body carries success=true
func (r Reply) Succeeded() bool {
	switch b := r.Body.(type) {
	case query.WindowsResult:
		return b.Success
	case query.WindowResult:
		return b.Success
	case ActionResult:
		return b.Success
	}
	return false
}

type handlerFunc func(ctx context.Context, params json.RawMessage) Reply

// Dispatcher routes command envelopes to the query engine and desktop
// collaborators
type Dispatcher struct {
	engine   *query.Engine
	desktop  automation.Desktop
	sem      *semaphore.Weighted
	metrics  *metrics.Metrics
	maxWidth int
	handlers map[string]handlerFunc
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithMaxConcurrent bounds the number of commands executing at once
func WithMaxConcurrent(n int64) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithDispatchMetrics records dispatched commands
func WithDispatchMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithScreenshotWidth sets the default screenshot downscale width
func WithScreenshotWidth(w int) DispatcherOption {
	return func(d *Dispatcher) { d.maxWidth = w }
}

// NewDispatcher creates a dispatcher. Collaborators missing from desktop
// make their commands fail with 501.
func NewDispatcher(engine *query.Engine, desktop automation.Desktop, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		engine:  engine,
		desktop: desktop,
		sem:     semaphore.NewWeighted(8),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.handlers = map[string]handlerFunc{
		"get_windows":          d.getWindows,
		"find_window_by_title": d.findByTitle,
		"find_window_by_role":  d.findByRole,
		"find_window_by_value": d.findByValue,

		"left_click":          d.click("left", false),
		"right_click":         d.click("right", false),
		"double_click":        d.click("left", true),
		"move_cursor":         d.moveCursor,
		"drag_to":             d.dragTo,
		"type_text":           d.typeText,
		"press_key":           d.pressKey,
		"hotkey":              d.hotkey,
		"scroll":              d.scroll,
		"scroll_up":           d.scrollBy(1),
		"scroll_down":         d.scrollBy(-1),
		"get_screen_size":     d.screenSize,
		"get_cursor_position": d.cursorPosition,
		"screenshot":          d.screenshot,
		"copy_to_clipboard":   d.copyToClipboard,
		"set_clipboard":       d.setClipboard,
		"run_command":         d.runCommand,
	}
	return d
}

// Commands returns the supported command names, sorted
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs one command. It always returns a structured reply; a
// panicking collaborator is reported as a failure.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (reply Reply) {
	log := logger.WithComponent("dispatcher")

	handler, ok := d.handlers[req.Command]
	if !ok {
		d.metrics.RecordCommand("unknown", false)
		return failure(http.StatusBadRequest, fmt.Errorf("unknown command %q", req.Command))
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.metrics.RecordCommand(req.Command, false)
		return failure(http.StatusServiceUnavailable, fmt.Errorf("server busy: %w", err))
	}
	defer d.sem.Release(1)
	defer d.metrics.TrackInflight()()

	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Str("command", req.Command).
				Interface("panic", p).
				Msg("Command panicked")
			reply = failure(http.StatusInternalServerError, fmt.Errorf("%s failed: %v", req.Command, p))
		}
		d.metrics.RecordCommand(req.Command, reply.Succeeded())
	}()

	log.Debug().Str("command", req.Command).Msg("Dispatching command")
	return handler(ctx, req.Params)
}

func failure(status int, err error) Reply {
	return Reply{Status: status, Body: ActionResult{Success: false, Error: err.Error()}}
}

func success(body ActionResult) Reply {
	body.Success = true
	return Reply{Status: http.StatusOK, Body: body}
}

// decodeParams fills dst from raw params; absent params leave dst zero
func decodeParams(raw json.RawMessage, dst interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// queryStatus maps a query error onto an HTTP status
func queryStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, query.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, query.ErrBackendUnavailable), errors.Is(err, query.ErrCaptureTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// query commands

func (d *Dispatcher) getWindows(ctx context.Context, _ json.RawMessage) Reply {
	res := d.engine.ListWindows(ctx)
	return Reply{Status: queryStatus(res.Err), Body: res}
}

func (d *Dispatcher) findByTitle(ctx context.Context, raw json.RawMessage) Reply {
	var p struct {
		Title *string `json:"title"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	if p.Title == nil {
		return failure(http.StatusBadRequest, fmt.Errorf("find_window_by_title requires title"))
	}
	res := d.engine.FindByTitle(ctx, *p.Title)
	return Reply{Status: queryStatus(res.Err), Body: res}
}

func (d *Dispatcher) findByRole(ctx context.Context, raw json.RawMessage) Reply {
	var p struct {
		Role *string `json:"role"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	if p.Role == nil {
		return failure(http.StatusBadRequest, fmt.Errorf("find_window_by_role requires role"))
	}
	res := d.engine.FindByRole(ctx, *p.Role)
	return Reply{Status: queryStatus(res.Err), Body: res}
}

func (d *Dispatcher) findByValue(ctx context.Context, raw json.RawMessage) Reply {
	var p struct {
		Value *string `json:"value"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	if p.Value == nil {
		return failure(http.StatusBadRequest, fmt.Errorf("find_window_by_value requires value"))
	}
	res := d.engine.FindByValue(ctx, *p.Value)
	return Reply{Status: queryStatus(res.Err), Body: res}
}

// collaborator commands

var errUnsupported = errors.New("not supported on this platform")

type pointParams struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

func (p pointParams) point() *automation.Point {
	if p.X == nil || p.Y == nil {
		return nil
	}
	return &automation.Point{X: *p.X, Y: *p.Y}
}

func (d *Dispatcher) input() (automation.Input, *Reply) {
	if d.desktop.Input == nil {
		r := failure(http.StatusNotImplemented, fmt.Errorf("input injection %w", errUnsupported))
		return nil, &r
	}
	return d.desktop.Input, nil
}

// act runs an input action that reports only success
func act(err error) Reply {
	if err != nil {
		return failure(http.StatusInternalServerError, err)
	}
	return success(ActionResult{})
}

func (d *Dispatcher) click(button string, double bool) handlerFunc {
	return func(_ context.Context, raw json.RawMessage) Reply {
		var p pointParams
		if err := decodeParams(raw, &p); err != nil {
			return failure(http.StatusBadRequest, err)
		}
		in, fail := d.input()
		if fail != nil {
			return *fail
		}
		return act(in.Click(button, double, p.point()))
	}
}

func (d *Dispatcher) moveCursor(_ context.Context, raw json.RawMessage) Reply {
	var p pointParams
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	at := p.point()
	if at == nil {
		return failure(http.StatusBadRequest, fmt.Errorf("move_cursor requires x and y"))
	}
	in, fail := d.input()
	if fail != nil {
		return *fail
	}
	return act(in.MoveCursor(at.X, at.Y))
}

func (d *Dispatcher) dragTo(_ context.Context, raw json.RawMessage) Reply {
	var p struct {
		pointParams
		Button string `json:"button"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	at := p.point()
	if at == nil {
		return failure(http.StatusBadRequest, fmt.Errorf("drag_to requires x and y"))
	}
	if _, err := automation.ValidButton(p.Button); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	in, fail := d.input()
	if fail != nil {
		return *fail
	}
	return act(in.DragTo(at.X, at.Y, p.Button))
}

func (d *Dispatcher) typeText(_ context.Context, raw json.RawMessage) Reply {
	var p struct {
		Text string `json:"text"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	in, fail := d.input()
	if fail != nil {
		return *fail
	}
	return act(in.TypeText(p.Text))
}

func (d *Dispatcher) pressKey(_ context.Context, raw json.RawMessage) Reply {
	var p struct {
		Key string `json:"key"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	if p.Key == "" {
		return failure(http.StatusBadRequest, fmt.Errorf("press_key requires key"))
	}
	in, fail := d.input()
	if fail != nil {
		return *fail
	}
	return act(in.PressKey(p.Key))
}

func (d *Dispatcher) hotkey(_ context.Context, raw json.RawMessage) Reply {
	var p struct {
		Keys []string `json:"keys"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	if len(p.Keys) == 0 {
		return failure(http.StatusBadRequest, fmt.Errorf("hotkey requires keys"))
	}
	in, fail := d.input()
	if fail != nil {
		return *fail
	}
	return act(in.Hotkey(p.Keys))
}

func (d *Dispatcher) scroll(_ context.Context, raw json.RawMessage) Reply {
	var p struct {
		pointParams
		Amount int `json:"amount"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	in, fail := d.input()
	if fail != nil {
		return *fail
	}
	return act(in.Scroll(p.Amount, p.point()))
}

// scrollBy scrolls `clicks` notches (default 1) in direction sign
func (d *Dispatcher) scrollBy(sign int) handlerFunc {
	return func(_ context.Context, raw json.RawMessage) Reply {
		p := struct {
			Clicks int `json:"clicks"`
		}{Clicks: 1}
		if err := decodeParams(raw, &p); err != nil {
			return failure(http.StatusBadRequest, err)
		}
		in, fail := d.input()
		if fail != nil {
			return *fail
		}
		return act(in.Scroll(sign*p.Clicks, nil))
	}
}

func (d *Dispatcher) screenSize(context.Context, json.RawMessage) Reply {
	in, fail := d.input()
	if fail != nil {
		return *fail
	}
	size, err := in.ScreenSize()
	if err != nil {
		return failure(http.StatusInternalServerError, err)
	}
	return success(ActionResult{Size: &size})
}

func (d *Dispatcher) cursorPosition(context.Context, json.RawMessage) Reply {
	in, fail := d.input()
	if fail != nil {
		return *fail
	}
	pos, err := in.CursorPosition()
	if err != nil {
		return failure(http.StatusInternalServerError, err)
	}
	return success(ActionResult{Position: &pos})
}

func (d *Dispatcher) screenshot(ctx context.Context, raw json.RawMessage) Reply {
	p := struct {
		MaxWidth int `json:"max_width"`
	}{MaxWidth: d.maxWidth}
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	if d.desktop.Screenshot == nil {
		return failure(http.StatusNotImplemented, fmt.Errorf("screenshot %w", errUnsupported))
	}
	data, err := d.desktop.Screenshot.Screenshot(ctx, p.MaxWidth)
	if err != nil {
		return failure(http.StatusInternalServerError, fmt.Errorf("screenshot error: %w", err))
	}
	return success(ActionResult{ImageData: base64.StdEncoding.EncodeToString(data)})
}

func (d *Dispatcher) copyToClipboard(context.Context, json.RawMessage) Reply {
	if d.desktop.Clipboard == nil {
		return failure(http.StatusNotImplemented, fmt.Errorf("clipboard %w", errUnsupported))
	}
	content, err := d.desktop.Clipboard.Read()
	if err != nil {
		return failure(http.StatusInternalServerError, err)
	}
	return success(ActionResult{Content: &content})
}

func (d *Dispatcher) setClipboard(_ context.Context, raw json.RawMessage) Reply {
	var p struct {
		Text string `json:"text"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	if d.desktop.Clipboard == nil {
		return failure(http.StatusNotImplemented, fmt.Errorf("clipboard %w", errUnsupported))
	}
	return act(d.desktop.Clipboard.Write(p.Text))
}

func (d *Dispatcher) runCommand(ctx context.Context, raw json.RawMessage) Reply {
	var p struct {
		Command string `json:"command"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return failure(http.StatusBadRequest, err)
	}
	if p.Command == "" {
		return failure(http.StatusBadRequest, fmt.Errorf("run_command requires command"))
	}
	if d.desktop.Commands == nil {
		return failure(http.StatusNotImplemented, fmt.Errorf("run_command %w", errUnsupported))
	}
	res, err := d.desktop.Commands.Run(ctx, p.Command)
	if err != nil {
		return failure(http.StatusInternalServerError, err)
	}
	return success(ActionResult{CommandResult: &res})
}
