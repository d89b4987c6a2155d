package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/deskctl/internal/api"
	"github.com/bryanchriswhite/deskctl/internal/automation"
	"github.com/bryanchriswhite/deskctl/internal/element"
	"github.com/bryanchriswhite/deskctl/internal/query"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type windowsCapturer []*element.Element

func (w windowsCapturer) Capture(context.Context) ([]*element.Element, error) { return w, nil }

type noStubs struct{}

func (noStubs) ListStubWindows(context.Context) []*element.Element { return []*element.Element{} }

func newRemote(t *testing.T) *httptest.Server {
	t.Helper()
	engine := query.NewEngine(windowsCapturer{
		{Role: "frame", Title: "Terminal", Value: "Terminal", Children: []*element.Element{
			{Role: "text", Value: "make test", Children: []*element.Element{}},
		}},
		{Role: "dialog", Title: "Save As", Value: "Save As", Children: []*element.Element{}},
	}, noStubs{}, query.WithTimeout(time.Second))
	d := api.NewDispatcher(engine, automation.Desktop{Commands: automation.NewCommandRunner(5 * time.Second)})
	ts := httptest.NewServer(api.NewServer(d, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestNewInterface(t *testing.T) {
	for _, osType := range []string{"linux", "macos"} {
		iface, err := NewInterface(osType, "10.0.0.5")
		require.NoError(t, err)
		assert.Equal(t, osType, iface.OS())
		assert.Equal(t, "ws://10.0.0.5:8080/ws", iface.(*Client).URL())
	}

	_, err := NewInterface("windows", "10.0.0.5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported OS type")
}

func TestWebSocketURL(t *testing.T) {
	cases := map[string]string{
		"localhost":              "ws://localhost:8080/ws",
		"localhost:9000":         "ws://localhost:9000/ws",
		"192.168.1.4:9000/":      "ws://192.168.1.4:9000/ws",
		"http://desk.lan:8080":   "ws://desk.lan:8080/ws",
		"https://desk.lan":       "wss://desk.lan/ws",
		"ws://desk.lan:1234/ws":  "ws://desk.lan:1234/ws",
		"ws://desk.lan:1234/api": "ws://desk.lan:1234/api",
	}
	for in, want := range cases {
		assert.Equal(t, want, wsURL(in), in)
	}
}

func TestClientQueries(t *testing.T) {
	ts := newRemote(t)
	c := NewClient("linux", ts.URL)
	defer c.Close()
	ctx := context.Background()

	windows, err := c.GetWindows(ctx)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, "make test", windows[0].Children[0].Value)

	w, err := c.FindWindowByTitle(ctx, "save")
	require.NoError(t, err)
	assert.Equal(t, "Save As", w.Title)

	windows, err = c.FindWindowByRole(ctx, "frame")
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, "Terminal", windows[0].Title)

	w, err = c.FindWindowByValue(ctx, "MAKE")
	require.NoError(t, err)
	assert.Equal(t, "Terminal", w.Title)
}

func TestClientFailedReply(t *testing.T) {
	ts := newRemote(t)
	c := NewClient("linux", ts.URL)
	defer c.Close()

	_, err := c.FindWindowByTitle(context.Background(), "Browser")
	require.ErrorIs(t, err, ErrCommandFailed)
	assert.Contains(t, err.Error(), "Browser")

	windows, err := c.FindWindowByRole(context.Background(), "menu")
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.Nil(t, windows)
}

func TestClientRun(t *testing.T) {
	ts := newRemote(t)
	c := NewClient("linux", ts.URL)
	defer c.Close()

	data, err := c.Run(context.Background(), "run_command", map[string]string{"command": "echo remote"})
	require.NoError(t, err)

	var res automation.CommandResult
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, "remote\n", res.Stdout)

	// input is not wired on this server
	_, err = c.Run(context.Background(), "left_click", nil)
	assert.ErrorIs(t, err, ErrCommandFailed)
}

func TestClientRedialsAfterFailure(t *testing.T) {
	ts := newRemote(t)
	c := NewClient("linux", ts.URL)
	defer c.Close()

	_, err := c.GetWindows(context.Background())
	require.NoError(t, err)

	// break the connection underneath the client
	c.mu.Lock()
	c.conn.Close()
	c.mu.Unlock()

	_, err = c.GetWindows(context.Background())
	require.Error(t, err)

	_, err = c.GetWindows(context.Background())
	assert.NoError(t, err)
}

func TestClientSkipsStaleReplies(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req map[string]interface{}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]interface{}{"id": 999, "success": false, "error": "stale"})
		_ = conn.WriteJSON(map[string]interface{}{"id": req["id"], "success": true, "windows": []interface{}{}})
	}))
	defer ts.Close()

	c := NewClient("macos", "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws")
	defer c.Close()
	windows, err := c.GetWindows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestClientConnectError(t *testing.T) {
	c := NewClient("linux", "127.0.0.1:1")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.GetWindows(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}
