package mcpserver

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/bryanchriswhite/deskctl/internal/element"
	"github.com/bryanchriswhite/deskctl/internal/query"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCapturer []*element.Element

func (f fixedCapturer) Capture(context.Context) ([]*element.Element, error) { return f, nil }

type noStubs struct{}

func (noStubs) ListStubWindows(context.Context) []*element.Element { return []*element.Element{} }

func setupSession(t *testing.T) *mcp.ClientSession {
	t.Helper()

	engine := query.NewEngine(fixedCapturer{
		{Role: "frame", Title: "Calculator", Value: "Calculator", Children: []*element.Element{
			{Role: "push button", Title: "7", Value: "7", Children: []*element.Element{}},
		}},
		{Role: "window", Title: "Notes", Value: "Notes", Children: []*element.Element{}},
	}, noStubs{})

	st, ct := mcp.NewInMemoryTransports()
	ctx := context.Background()

	_, err := New(engine).Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, s *mcp.ClientSession, name string, args map[string]any) (*mcp.CallToolResult, map[string]interface{}) {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &body))
	return res, body
}

func TestListTools(t *testing.T) {
	session := setupSession(t)

	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"find_window_by_role", "find_window_by_title", "find_window_by_value", "get_windows"}, names)
}

func TestQueryTools(t *testing.T) {
	session := setupSession(t)

	res, body := callTool(t, session, "get_windows", map[string]any{})
	assert.False(t, res.IsError)
	assert.Len(t, body["windows"], 2)

	res, body = callTool(t, session, "find_window_by_title", map[string]any{"title": "calc"})
	assert.False(t, res.IsError)
	assert.Equal(t, "Calculator", body["window"].(map[string]interface{})["title"])

	res, body = callTool(t, session, "find_window_by_role", map[string]any{"role": "Window"})
	assert.False(t, res.IsError)
	assert.Len(t, body["windows"], 1)

	res, body = callTool(t, session, "find_window_by_value", map[string]any{"value": "7"})
	assert.False(t, res.IsError)
	assert.Equal(t, "Calculator", body["window"].(map[string]interface{})["title"])
}

func TestToolFailuresSetIsError(t *testing.T) {
	session := setupSession(t)

	res, body := callTool(t, session, "find_window_by_title", map[string]any{"title": "Browser"})
	assert.True(t, res.IsError)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "Browser")

	res, body = callTool(t, session, "find_window_by_role", map[string]any{"role": ""})
	assert.True(t, res.IsError)
	assert.Contains(t, body["error"], "not found")
}

func TestEmptyTermMatchesFirstWindow(t *testing.T) {
	session := setupSession(t)

	res, body := callTool(t, session, "find_window_by_value", map[string]any{"value": ""})
	assert.False(t, res.IsError)
	assert.Equal(t, "Calculator", body["window"].(map[string]interface{})["title"])
}
