package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/tracer"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/usecase/specialization"
)

// executorKey identifies a compiled agent. A new selection version or a
// different credential always compiles a new one.
type executorKey struct {
	credentialID string
	version      int64
}

type cachedExecutor struct {
	key   executorKey
	agent domain.CompiledAgent
}

// ExecutorDeps holds the collaborators of an Executor.
type ExecutorDeps struct {
	Agent   domain.AgentConfig
	Tools   domain.ToolProvider
	Planner domain.Planner
	// PlatformServer and ProviderServer are the names recorded in
	// AgentState.ToolServerStatus.
	PlatformServer string
	ProviderServer string
	Logger         *slog.Logger
	Now            func() time.Time
}

// Executor is the agent executor node. It refreshes provider credentials
// when needed and runs one planner turn, reusing the compiled agent while
// the (credential, selection version) pair is unchanged.
type Executor struct {
	deps  ExecutorDeps
	cache *cachedExecutor
}

// NewExecutor creates an Executor. A nil Tools is accepted and reported on
// every turn as an uninitialized session.
func NewExecutor(deps ExecutorDeps) (*Executor, error) {
	if deps.Planner == nil {
		return nil, fmt.Errorf("%w: executor needs a planner", domain.ErrConfiguration)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Executor{deps: deps}, nil
}

// Run executes one turn against the bound credential, updating state in
// place. Failures become assistant messages; the binding and the compiled
// agent are kept so the next turn can retry.
func (e *Executor) Run(ctx context.Context, state *domain.AgentState) {
	p := e.deps.Agent.Provider
	if !state.Bound() {
		state.AppendAssistant("Please select a cloud account first.", e.deps.Now())
		return
	}
	if e.deps.Tools == nil {
		e.fail(ctx, state, domain.ErrSessionNotInitialized, "Internal error: session not initialized properly.")
		return
	}

	sum := *state.Binding.Summary
	ctx, span := tracer.StartSpan(ctx, "executor.run",
		trace.WithAttributes(tracer.BindingAttrs(string(p), sum.ID, state.Binding.Version)...),
	)
	defer span.End()

	platform, err := e.deps.Tools.PlatformTools(ctx, p)
	if err != nil {
		tracer.RecordError(span, err)
		state.SetServerStatus(e.deps.PlatformServer, domain.ServerError)
		e.fail(ctx, state, err, e.accessMessage(err))
		return
	}

	now := e.deps.Now()
	refresh := state.NeedsRefresh(now) || e.deps.Tools.CurrentCredentialID(p) != sum.ID
	surface, err := e.deps.Tools.CombinedTools(ctx, domain.ToolSurfaceRequest{
		Provider:      p,
		CredentialID:  sum.ID,
		Region:        e.region(state),
		PlatformTools: platform,
		ForceMint:     refresh,
	})
	if err != nil {
		tracer.RecordError(span, err)
		e.syncStatus(state)
		if e.deps.ProviderServer != "" {
			state.SetServerStatus(e.deps.ProviderServer, domain.ServerError)
		}
		e.fail(ctx, state, err, e.accessMessage(err))
		return
	}
	state.ExpiresAt = surface.ExpiresAt
	state.AvailableTools = domain.ToolNames(surface.Tools)
	state.CurrentRegion = e.region(state)
	e.syncStatus(state)
	span.SetAttributes(tracer.IntAttr(tracer.AttrToolCount, len(surface.Tools)))
	if surface.Minted {
		e.deps.Logger.Info("provider credentials refreshed",
			"provider", p, "credential_id", sum.ID, "expires_at", surface.ExpiresAt)
	}

	agent, err := e.compiled(ctx, state, surface.Tools)
	if err != nil {
		tracer.RecordError(span, err)
		e.fail(ctx, state, err, fmt.Sprintf("Error preparing the %s agent: %v", p.Upper(), err))
		return
	}

	before := len(state.Messages)
	out, err := agent.Invoke(ctx, state.Clone())
	if err != nil {
		if !errors.Is(err, domain.ErrPlannerRuntime) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", domain.ErrPlannerRuntime, err)
		}
		tracer.RecordError(span, err)
		e.deps.Logger.Warn("planner turn failed", "provider", p, "credential_id", sum.ID, "error", err)
		e.fail(ctx, state, err, fmt.Sprintf("The %s agent could not complete the request: %v", p.Upper(), err))
		return
	}
	merge(state, out, before)
	state.RecordOperation(e.deps.Now())
	tracer.SetOK(span)
}

// compiled returns the cached agent for the current binding, compiling and
// replacing the cache entry on a key change.
func (e *Executor) compiled(ctx context.Context, state *domain.AgentState, tools []domain.Tool) (domain.CompiledAgent, error) {
	key := executorKey{credentialID: state.Binding.ID(), version: state.Binding.Version}
	if e.cache != nil && e.cache.key == key {
		return e.cache.agent, nil
	}

	assembly, err := specialization.Resolve(e.deps.Agent)
	if err != nil {
		return nil, err
	}
	instructions := assembly.Instructions + credentialContext(e.deps.Agent.Provider, *state.Binding.Summary, e.region(state))

	agent, err := e.deps.Planner.Compile(ctx, domain.PlannerSpec{
		Tools:          tools,
		SubAgents:      assembly.SubAgents,
		Instructions:   instructions,
		Model:          e.deps.Agent.Model,
		Temperature:    e.deps.Agent.Temperature,
		RecursionLimit: e.deps.Agent.RecursionLimit,
		MaxSteps:       e.deps.Agent.MaxSteps,
		MaxRetries:     e.deps.Agent.MaxRetries,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrPlannerCompileFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrPlannerCompileFailed, err)
		}
		return nil, err
	}

	if e.cache != nil {
		e.deps.Logger.Debug("compiled agent evicted",
			"credential_id", e.cache.key.credentialID, "selection_version", e.cache.key.version)
	}
	e.cache = &cachedExecutor{key: key, agent: agent}
	e.deps.Logger.Info("agent compiled",
		"credential_id", key.credentialID,
		"selection_version", key.version,
		"tools", len(tools),
		"subagents", len(assembly.SubAgents))
	return agent, nil
}

func (e *Executor) region(state *domain.AgentState) string {
	if r := state.Binding.Summary.DefaultRegion; r != "" {
		return r
	}
	return e.deps.Agent.Region()
}

func (e *Executor) syncStatus(state *domain.AgentState) {
	for server, status := range e.deps.Tools.Status() {
		state.SetServerStatus(server, status)
	}
}

func (e *Executor) accessMessage(err error) string {
	return fmt.Sprintf("Error accessing %s account: %v", e.deps.Agent.Provider.Upper(), err)
}

func (e *Executor) fail(ctx context.Context, state *domain.AgentState, err error, message string) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return
	}
	now := e.deps.Now()
	state.RecordError(err, now)
	state.AppendAssistant(message, now)
}

// cachedKey reports the key of the live compiled agent.
func (e *Executor) cachedKey() (executorKey, bool) {
	if e.cache == nil {
		return executorKey{}, false
	}
	return e.cache.key, true
}

func credentialContext(p domain.CloudProvider, sum domain.CredentialSummary, region string) string {
	return fmt.Sprintf("\n\nCurrent %s Context:\n- Account: %s\n- Region: %s", p.Upper(), sum.Label(), region)
}

// merge appends the messages the planner added and copies the fields it may
// set. Runtime-owned fields stay as they are.
func merge(state *domain.AgentState, out domain.AgentState, before int) {
	if len(out.Messages) > before {
		state.Messages = append(state.Messages, out.Messages[before:]...)
	}
	for k, v := range out.Extra {
		if state.Extra == nil {
			state.Extra = make(map[string]any, len(out.Extra))
		}
		state.Extra[k] = v
	}
}
