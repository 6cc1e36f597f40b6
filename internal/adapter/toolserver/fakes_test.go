package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/config"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/logger"
)

// fakeClient implements Client for testing.
type fakeClient struct {
	mu       sync.Mutex
	tools    []mcp.Tool
	listErr  error
	callFunc func(req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	calls    []mcp.CallToolRequest
	closed   int
	closeErr error
}

func (f *fakeClient) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeClient) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.callFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent("called " + req.Params.Name)}}, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *fakeClient) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func (f *fakeClient) callsTo(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Params.Name == name {
			n++
		}
	}
	return n
}

func (f *fakeClient) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// dialRecord captures one dial so tests can check the injected environment.
type dialRecord struct {
	server string
	env    map[string]string
	client *fakeClient
}

// fakeDialer hands out a platform client and fresh provider clients.
type fakeDialer struct {
	mu       sync.Mutex
	platform *fakeClient
	provider func() *fakeClient
	failFor  map[string]error
	dials    []dialRecord
}

func (d *fakeDialer) dial(_ context.Context, srv config.MCPServer, env map[string]string) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failFor[srv.Name]; err != nil {
		return nil, err
	}
	var c *fakeClient
	if srv.Name == "planton_cloud" {
		c = d.platform
	} else {
		c = d.provider()
	}
	d.dials = append(d.dials, dialRecord{server: srv.Name, env: env, client: c})
	return c, nil
}

func (d *fakeDialer) dialsTo(server string) []dialRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dialRecord
	for _, r := range d.dials {
		if r.server == server {
			out = append(out, r)
		}
	}
	return out
}

// testClock is a settable clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	testAzureSub    = "6f1c1f0e-8a53-4d8e-9a55-3c1f1b2d4e5f"
	testAzureTenant = "0b7d9a3c-2e41-4f6a-8c1d-7e9f0a1b2c3d"
)

func platformToolList() []mcp.Tool {
	return []mcp.Tool{
		{Name: "list_awscredentials", Description: "List AWS credentials"},
		{Name: "fetch_awscredential_sts", Description: "Mint AWS STS credentials"},
		{Name: "list_gcpcredentials", Description: "List GCP credentials"},
		{Name: "fetch_gcpcredential", Description: "Mint GCP credentials"},
		{Name: "list_azurecredentials", Description: "List Azure credentials"},
		{Name: "fetch_azurecredential", Description: "Mint Azure credentials"},
		{Name: "get_organization", Description: "Describe the organization"},
	}
}

func awsMintPayload(id string) string {
	return fmt.Sprintf(`{"access_key_id":"AKIA%s","secret_access_key":"secret-%s","session_token":"token-%s"}`, id, id, id)
}

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(s)}}
}

type testEnv struct {
	mgr      *Manager
	dialer   *fakeDialer
	platform *fakeClient
	clock    *testClock
	// mints maps a minting tool to the payload it returns per credential id.
	mints map[string]func(id string) string
}

func defaultProviders() config.ProvidersConfig {
	return config.ProvidersConfig{
		AWS:   config.MCPServer{Name: "aws_api", Transport: "stdio", Command: "aws-mcp"},
		GCP:   config.MCPServer{Name: "gcp_api", Transport: "stdio"},
		Azure: config.MCPServer{Name: "azure_api", Transport: "stdio", Command: "azure-mcp"},
	}
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()

	env := &testEnv{
		clock: &testClock{t: testEpoch},
		mints: map[string]func(string) string{
			"fetch_awscredential_sts": awsMintPayload,
		},
	}
	env.platform = &fakeClient{tools: platformToolList()}
	env.platform.callFunc = func(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		if mint, ok := env.mints[req.Params.Name]; ok {
			id, _ := args["credential_id"].(string)
			return textResult(mint(id)), nil
		}
		if req.Params.Name == "list_awscredentials" {
			return textResult(`[{"id":"cred-a","name":"Prod","account_id":"111","default_region":"us-west-2"},{"id":"cred-b","name":"Staging","account_id":"222"}]`), nil
		}
		return textResult("[]"), nil
	}
	env.dialer = &fakeDialer{
		platform: env.platform,
		provider: func() *fakeClient {
			return &fakeClient{tools: []mcp.Tool{
				{Name: "call_aws", Description: "Run an AWS CLI command"},
				{Name: "suggest_aws_commands", Description: "Suggest commands"},
			}}
		},
		failFor: map[string]error{},
	}

	opts := Options{
		Provider:    domain.CloudAWS,
		Platform:    config.MCPServer{Name: "planton_cloud", Transport: "stdio", Command: "planton-mcp-server"},
		Providers:   defaultProviders(),
		Dial:        env.dialer.dial,
		Logger:      logger.Discard(),
		Now:         env.clock.Now,
		MintLimiter: rate.NewLimiter(rate.Inf, 0),
		LogLevel:    "ERROR",
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	mgr, err := NewManager(opts)
	require.NoError(t, err)
	env.mgr = mgr
	t.Cleanup(func() { mgr.Cleanup(context.Background()) })
	return env
}

func (e *testEnv) platformTools(t *testing.T) []domain.Tool {
	t.Helper()
	tools, err := e.mgr.PlatformTools(context.Background(), domain.CloudAWS)
	require.NoError(t, err)
	return tools
}

var errBoom = errors.New("boom")

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
