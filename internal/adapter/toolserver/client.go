package toolserver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/config"
)

// clientName and clientVersion identify this runtime in the MCP handshake.
const (
	clientName    = "graph-fleet"
	clientVersion = "1.0.0"
)

// Client abstracts an initialized MCP client for testability.
type Client interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// DialFunc opens and initializes a client for srv. env is the complete
// environment to inject into a stdio server; it may carry minted secrets and
// must not be logged.
type DialFunc func(ctx context.Context, srv config.MCPServer, env map[string]string) (Client, error)

// NewDialer returns the production DialFunc backed by mcp-go.
func NewDialer(logger *slog.Logger) DialFunc {
	return func(ctx context.Context, srv config.MCPServer, env map[string]string) (Client, error) {
		return dial(ctx, srv, env, logger)
	}
}

func dial(ctx context.Context, srv config.MCPServer, env map[string]string, logger *slog.Logger) (Client, error) {
	var c Client

	switch srv.Transport {
	case "stdio", "":
		stdio, err := mcpclient.NewStdioMCPClient(srv.Command, envSlice(env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
		c = stdio
	case "http":
		t, err := transport.NewStreamableHTTP(srv.URL)
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		httpClient := mcpclient.NewClient(t)
		if err := httpClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		c = httpClient
	default:
		return nil, fmt.Errorf("unsupported transport %q", srv.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	if ic, ok := c.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		if _, err := ic.Initialize(ctx, initReq); err != nil {
			c.Close()
			return nil, domain.WrapOp("initialize", err)
		}
	}

	logger.Info("tool server connected", "server", srv.Name, "transport", srv.Transport)
	return c, nil
}

// listTools wraps every tool a server advertises, preserving server order.
func listTools(ctx context.Context, server string, c Client, logger *slog.Logger) ([]domain.Tool, error) {
	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	tools := make([]domain.Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, newServerTool(server, c, t, logger))
	}
	logger.Debug("tools listed", "server", server, "count", len(tools))
	return tools, nil
}

// envSlice converts a map of env vars to KEY=VALUE slices in key order.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]string, 0, len(env))
	for _, k := range keys {
		result = append(result, k+"="+env[k])
	}
	return result
}
