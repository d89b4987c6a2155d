// Package mcpserver exposes the window queries as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/bryanchriswhite/deskctl/internal/logger"
	"github.com/bryanchriswhite/deskctl/internal/query"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported in the MCP implementation info
var Version = "0.1.0"

// TitleInput is the find_window_by_title argument
type TitleInput struct {
	Title string `json:"title" jsonschema:"case-insensitive substring of the window title"`
}

// RoleInput is the find_window_by_role argument
type RoleInput struct {
	Role string `json:"role" jsonschema:"window role, e.g. frame, window or dialog"`
}

// ValueInput is the find_window_by_value argument
type ValueInput struct {
	Value string `json:"value" jsonschema:"case-insensitive substring of any element value or title in the window"`
}

type tools struct {
	engine *query.Engine
}

// New creates an MCP server with the four window query tools
func New(engine *query.Engine) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "deskctl",
		Version: Version,
	}, nil)
	t := &tools{engine: engine}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_windows",
		Description: "List every top-level window on the desktop with its full accessibility tree.",
	}, t.getWindows)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_window_by_title",
		Description: "Return the first top-level window whose title contains the given text, ignoring case.",
	}, t.findByTitle)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_window_by_role",
		Description: "Return every top-level window whose role equals the given role, ignoring case.",
	}, t.findByRole)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_window_by_value",
		Description: "Return the first top-level window containing an element whose value or title contains the given text.",
	}, t.findByValue)

	return server
}

// Run serves the tools over stdin/stdout until ctx is canceled or the
// client disconnects
func Run(ctx context.Context, engine *query.Engine) error {
	logger.WithComponent("mcp").Info().Msg("Serving MCP over stdio")
	return New(engine).Run(ctx, &mcp.StdioTransport{})
}

// toolResult returns the query result JSON as text content
func toolResult(body interface{}, success bool) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: !success,
	}, nil, nil
}

func (t *tools) getWindows(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	res := t.engine.ListWindows(ctx)
	return toolResult(res, res.Success)
}

func (t *tools) findByTitle(ctx context.Context, _ *mcp.CallToolRequest, in TitleInput) (*mcp.CallToolResult, any, error) {
	res := t.engine.FindByTitle(ctx, in.Title)
	return toolResult(res, res.Success)
}

func (t *tools) findByRole(ctx context.Context, _ *mcp.CallToolRequest, in RoleInput) (*mcp.CallToolResult, any, error) {
	res := t.engine.FindByRole(ctx, in.Role)
	return toolResult(res, res.Success)
}

func (t *tools) findByValue(ctx context.Context, _ *mcp.CallToolRequest, in ValueInput) (*mcp.CallToolResult, any, error) {
	res := t.engine.FindByValue(ctx, in.Value)
	return toolResult(res, res.Success)
}
