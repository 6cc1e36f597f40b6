package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/logger"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock { return &testClock{t: testEpoch} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var (
	credProd    = domain.CredentialSummary{ID: "cred-a", Name: "Prod", AccountID: "111", DefaultRegion: "us-west-2"}
	credStaging = domain.CredentialSummary{ID: "cred-b", Name: "Staging", AccountID: "222"}
)

type namedTool struct{ name string }

func (t namedTool) Name() string        { return t.name }
func (t namedTool) Description() string { return t.name }
func (t namedTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Parameters: json.RawMessage(`{"type":"object"}`)}
}
func (t namedTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	return &domain.ToolResult{Content: "ok"}, nil
}

// fakeTools is an in-memory domain.ToolProvider. It mints by stamping
// now+ttl and records every request.
type fakeTools struct {
	mu  sync.Mutex
	now func() time.Time
	ttl time.Duration

	creds       []domain.CredentialSummary
	listErr     error
	platformErr error
	combinedErr error

	boundID   string
	expiresAt int64
	connected bool

	listCalls int
	mints     int
	releases  int
	cleanups  int
	requests  []domain.ToolSurfaceRequest
	listArgs  [][2]string
}

func newFakeTools(clock *testClock, creds ...domain.CredentialSummary) *fakeTools {
	return &fakeTools{now: clock.Now, ttl: time.Hour, creds: creds}
}

func (f *fakeTools) ListCredentials(_ context.Context, _ domain.CloudProvider, orgID, envID string) ([]domain.CredentialSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.listArgs = append(f.listArgs, [2]string{orgID, envID})
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.CredentialSummary(nil), f.creds...), nil
}

func (f *fakeTools) PlatformTools(context.Context, domain.CloudProvider) ([]domain.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.platformErr != nil {
		return nil, f.platformErr
	}
	return []domain.Tool{namedTool{"list_awscredentials"}, namedTool{"fetch_awscredential_sts"}}, nil
}

func (f *fakeTools) CombinedTools(_ context.Context, req domain.ToolSurfaceRequest) (*domain.ToolSurface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.combinedErr != nil {
		return nil, f.combinedErr
	}
	minted := false
	if req.ForceMint || !f.validLocked(req.CredentialID, f.now()) {
		f.mints++
		f.boundID = req.CredentialID
		f.expiresAt = f.now().Add(f.ttl).Unix()
		f.connected = true
		minted = true
	}
	tools := append([]domain.Tool(nil), req.PlatformTools...)
	tools = append(tools, namedTool{"call_aws"}, namedTool{"suggest_aws_commands"})
	return &domain.ToolSurface{Tools: tools, ExpiresAt: f.expiresAt, Minted: minted}, nil
}

func (f *fakeTools) validLocked(id string, now time.Time) bool {
	return f.connected && f.boundID == id && now.Add(domain.RefreshBuffer).Before(time.Unix(f.expiresAt, 0))
}

func (f *fakeTools) HasValidCredentials(_ domain.CloudProvider, id string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validLocked(id, now)
}

func (f *fakeTools) CurrentCredentialID(domain.CloudProvider) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ""
	}
	return f.boundID
}

func (f *fakeTools) Status() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{"planton_cloud": domain.ServerConnected}
	if f.connected {
		out["aws_api"] = domain.ServerConnected
	}
	return out
}

func (f *fakeTools) ReleaseProvider(domain.CloudProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	f.connected = false
	f.boundID = ""
	f.expiresAt = 0
}

func (f *fakeTools) Cleanup(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
	f.connected = false
}

func (f *fakeTools) lastRequest() domain.ToolSurfaceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// scriptedLLM answers selection prompts from respond or a queue of replies.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []string
	respond  func(user string) string
	err      error
	requests []domain.ChatRequest
}

func (l *scriptedLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)
	if l.err != nil {
		return nil, l.err
	}
	if l.respond != nil {
		r := l.respond(req.Messages[len(req.Messages)-1].Content)
		return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: r}}, nil
	}
	if len(l.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := l.replies[0]
	l.replies = l.replies[1:]
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: r}}, nil
}

func (l *scriptedLLM) Name() string { return "scripted" }

func (l *scriptedLLM) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// fakePlanner compiles fakeAgents and records every spec.
type fakePlanner struct {
	mu         sync.Mutex
	specs      []domain.PlannerSpec
	compileErr error
	invokeErr  error
	reply      string
	block      bool
	panicMsg   string
	invokes    int
}

func (p *fakePlanner) Compile(_ context.Context, spec domain.PlannerSpec) (domain.CompiledAgent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.compileErr != nil {
		return nil, p.compileErr
	}
	p.specs = append(p.specs, spec)
	return &fakeAgent{planner: p, compiled: len(p.specs)}, nil
}

func (p *fakePlanner) compiles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.specs)
}

func (p *fakePlanner) lastSpec() domain.PlannerSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.specs[len(p.specs)-1]
}

type fakeAgent struct {
	planner  *fakePlanner
	compiled int
}

func (a *fakeAgent) Invoke(ctx context.Context, state domain.AgentState) (domain.AgentState, error) {
	p := a.planner
	p.mu.Lock()
	p.invokes++
	reply, err, block, panicMsg := p.reply, p.invokeErr, p.block, p.panicMsg
	p.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if block {
		<-ctx.Done()
		return state, ctx.Err()
	}
	if err != nil {
		return state, err
	}
	if reply == "" {
		reply = "done"
	}
	state.Messages = append(state.Messages, domain.Message{Role: domain.RoleAssistant, Content: reply})
	if state.Extra == nil {
		state.Extra = map[string]any{}
	}
	state.Extra["compiled"] = a.compiled
	return state, nil
}

type testEnv struct {
	clock   *testClock
	tools   *fakeTools
	llm     *scriptedLLM
	planner *fakePlanner
	runtime *Runtime
	session *Session
	built   []*fakeTools
}

func testAgentConfig() domain.AgentConfig {
	return domain.AgentConfig{
		Provider:       domain.CloudAWS,
		Specialization: domain.SpecGeneral,
		Model:          "gpt-4o-mini",
		Temperature:    0.7,
		MaxSteps:       20,
		MaxRetries:     3,
		RecursionLimit: 50,
		Timeout:        time.Minute,
	}
}

func newTestEnv(t *testing.T, creds ...domain.CredentialSummary) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testAgentConfig(), creds...)
}

func newTestEnvWithConfig(t *testing.T, cfg domain.AgentConfig, creds ...domain.CredentialSummary) *testEnv {
	t.Helper()
	env := &testEnv{clock: newTestClock(), llm: &scriptedLLM{}, planner: &fakePlanner{}}
	rt, err := NewRuntime(RuntimeDeps{
		Agent:   cfg,
		LLM:     env.llm,
		Planner: env.planner,
		NewTools: func(domain.CloudProvider) (domain.ToolProvider, error) {
			ft := newFakeTools(env.clock, creds...)
			env.built = append(env.built, ft)
			return ft, nil
		},
		DefaultOrgID:   "org-1",
		PlatformServer: "planton_cloud",
		ProviderServer: "aws_api",
		Logger:         logger.Discard(),
		Now:            env.clock.Now,
	})
	require.NoError(t, err)
	env.runtime = rt

	s, err := rt.NewSession(SessionInit{})
	require.NoError(t, err)
	env.session = s
	env.tools = env.built[0]
	return env
}

func lastMessage(state domain.AgentState) domain.Message {
	return state.Messages[len(state.Messages)-1]
}

func userTurn(prev domain.AgentState, text string) domain.AgentState {
	next := prev.Clone()
	next.AppendUser(text, testEpoch)
	return next
}
