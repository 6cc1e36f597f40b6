package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// callTimeout bounds a single tool call.
const callTimeout = 60 * time.Second

// serverTool wraps a single MCP tool as a domain.Tool. Names are kept as the
// server advertises them so planners and instructions can refer to them.
type serverTool struct {
	server string
	client Client
	tool   mcp.Tool
	logger *slog.Logger
}

func newServerTool(server string, client Client, t mcp.Tool, logger *slog.Logger) *serverTool {
	return &serverTool{server: server, client: client, tool: t, logger: logger}
}

func (a *serverTool) Name() string { return a.tool.Name }

func (a *serverTool) Description() string {
	if a.tool.Description == "" {
		return fmt.Sprintf("Tool %q from server %q", a.tool.Name, a.server)
	}
	return a.tool.Description
}

func (a *serverTool) Schema() domain.ToolSchema {
	params := json.RawMessage(`{"type": "object"}`)
	if a.tool.InputSchema.Properties != nil || a.tool.InputSchema.Required != nil {
		if data, err := json.Marshal(a.tool.InputSchema); err == nil {
			params = data
		}
	}
	return domain.ToolSchema{
		Name:        a.tool.Name,
		Description: a.Description(),
		Parameters:  params,
	}
}

// RequiresApproval is true when the server explicitly flags the tool as
// destructive or as not read-only.
func (a *serverTool) RequiresApproval() bool {
	ann := a.tool.Annotations
	if ann.DestructiveHint != nil && *ann.DestructiveHint {
		return true
	}
	return ann.ReadOnlyHint != nil && !*ann.ReadOnlyHint
}

func (a *serverTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args map[string]any
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			return &domain.ToolResult{
				Content: fmt.Sprintf("invalid arguments: %v", err),
				IsError: true,
			}, nil
		}
	}

	a.logger.Debug("tool call", "server", a.server, "tool", a.tool.Name)

	result, err := a.call(ctx, args)
	if err != nil {
		return &domain.ToolResult{
			Content:     fmt.Sprintf("tool error: %v", err),
			IsError:     true,
			IsRetryable: true,
		}, nil
	}
	return &domain.ToolResult{
		Content: extractContent(result),
		IsError: result.IsError,
	}, nil
}

// call invokes the tool and returns the raw result. Transport failures are
// returned as errors; tool-level failures arrive with IsError set.
func (a *serverTool) call(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = a.tool.Name
	req.Params.Arguments = args

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return a.client.CallTool(callCtx, req)
}

// extractContent converts MCP result content to a string.
func extractContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// findServerTool returns the named tool if it came from a tool server.
func findServerTool(tools []domain.Tool, name string) (*serverTool, bool) {
	for _, t := range tools {
		if st, ok := t.(*serverTool); ok && st.Name() == name {
			return st, true
		}
	}
	return nil, false
}

var (
	_ domain.Tool           = (*serverTool)(nil)
	_ domain.ApprovalMarker = (*serverTool)(nil)
)
