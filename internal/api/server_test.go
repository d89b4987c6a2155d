package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/deskctl/internal/automation"
	"github.com/bryanchriswhite/deskctl/internal/element"
	"github.com/bryanchriswhite/deskctl/internal/metrics"
	"github.com/bryanchriswhite/deskctl/internal/query"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *fixture) {
	t.Helper()
	f := newFixture(staticCapturer{windows: sampleWindows()})
	ts := httptest.NewServer(NewServer(f.d, metrics.New()).Handler())
	t.Cleanup(ts.Close)
	return ts, f
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestRESTWindowRoutes(t *testing.T) {
	ts, _ := newTestServer(t)

	status, body := getJSON(t, ts.URL+"/api/windows")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["windows"], 2)

	status, body = getJSON(t, ts.URL+"/api/windows/title/conf")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Confirm", body["window"].(map[string]interface{})["title"])

	status, body = getJSON(t, ts.URL+"/api/windows/role/frame")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["windows"], 1)

	status, body = getJSON(t, ts.URL+"/api/windows/value/documents")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Files", body["window"].(map[string]interface{})["title"])

	status, body = getJSON(t, ts.URL+"/api/windows/title/Mail")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
}

func TestHealthAndCommands(t *testing.T) {
	ts, _ := newTestServer(t)

	status, body := getJSON(t, ts.URL+"/api/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])

	status, body = getJSON(t, ts.URL+"/api/commands")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["commands"], "get_windows")
}

func TestPostCommand(t *testing.T) {
	ts, f := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/command", "application/json",
		strings.NewReader(`{"command": "move_cursor", "params": {"x": 1, "y": 2}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, []string{"move 1,2"}, f.input.calls)

	bad, err := http.Post(ts.URL+"/api/command", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestPreflight(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/command", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	_, _ = getJSON(t, ts.URL+"/api/windows")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "go_goroutines")
}

func TestWebSocketCommands(t *testing.T) {
	ts, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"id":      7,
		"command": "find_window_by_title",
		"params":  map[string]string{"title": "files"},
	}))
	var reply map[string]interface{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, 7.0, reply["id"])
	assert.Equal(t, true, reply["success"])
	assert.Equal(t, "Files", reply["window"].(map[string]interface{})["title"])

	require.NoError(t, conn.WriteJSON(map[string]string{"command": "nope"}))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, false, reply["success"])
	assert.NotContains(t, reply, "id")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Contains(t, reply["error"], "invalid request")
}

func TestWebSocketConcurrentReplies(t *testing.T) {
	ts, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{"id": i, "command": "get_windows"}))
	}

	seen := map[float64]bool{}
	for i := 0; i < n; i++ {
		var reply map[string]interface{}
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, true, reply["success"])
		seen[reply["id"].(float64)] = true
	}
	assert.Len(t, seen, n)
}

type countingCapturer struct {
	active atomic.Int32
	peak   atomic.Int32
	block  chan struct{}
}

func (c *countingCapturer) Capture(context.Context) ([]*element.Element, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-c.block
	return []*element.Element{}, nil
}

func TestWebSocketBoundsInflightPerConnection(t *testing.T) {
	c := &countingCapturer{block: make(chan struct{})}
	d := NewDispatcher(query.NewEngine(c, noFallback{}), automation.Desktop{})
	ts := httptest.NewServer(NewServer(d, nil).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	const n = 3 * maxConnInflight
	for i := 0; i < n; i++ {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{"id": i, "command": "get_windows"}))
	}

	require.Eventually(t, func() bool {
		return c.active.Load() == maxConnInflight
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(maxConnInflight), c.active.Load())

	close(c.block)
	for i := 0; i < n; i++ {
		var reply map[string]interface{}
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, true, reply["success"])
	}
	assert.Equal(t, int32(maxConnInflight), c.peak.Load())
}

func TestWithID(t *testing.T) {
	data, err := withID(json.RawMessage(`"abc"`), ActionResult{Success: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "abc", "success": true}`, string(data))

	data, err = withID(nil, ActionResult{Success: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success": true}`, string(data))
}
