package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/usecase/specialization"
)

// RuntimeDeps are shared by every session of a process. None of them may
// hold tenant state; per-session tool clients come from NewTools.
type RuntimeDeps struct {
	Agent   domain.AgentConfig
	LLM     domain.LLMProvider
	Planner domain.Planner
	// NewTools builds the tool provider owned by one session.
	NewTools func(provider domain.CloudProvider) (domain.ToolProvider, error)

	DefaultOrgID   string
	DefaultEnvID   string
	PlatformServer string
	ProviderServer string

	Logger *slog.Logger
	Now    func() time.Time
}

// Runtime creates isolated sessions over shared, stateless collaborators.
type Runtime struct {
	deps RuntimeDeps
}

// NewRuntime validates the agent configuration and returns a Runtime.
func NewRuntime(deps RuntimeDeps) (*Runtime, error) {
	if err := specialization.Validate(deps.Agent); err != nil {
		return nil, err
	}
	if _, err := specialization.ResolveInstructions(deps.Agent); err != nil {
		return nil, err
	}
	if deps.LLM == nil || deps.Planner == nil || deps.NewTools == nil {
		return nil, fmt.Errorf("%w: runtime needs an llm, a planner and a tool factory", domain.ErrConfiguration)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Runtime{deps: deps}, nil
}

// SessionInit carries the caller identity a session starts with.
type SessionInit struct {
	OrgID      string
	EnvID      string
	ActorToken string
}

// Session is one conversation. Turns are serialized; the session owns its
// tool provider and compiled agent and shares neither.
type Session struct {
	ID string

	mu       sync.Mutex
	state    domain.AgentState
	init     SessionInit
	tools    domain.ToolProvider
	selector *Selector
	executor *Executor
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
	started  time.Time
}

// NewSession starts a session with its own tool provider.
func (r *Runtime) NewSession(init SessionInit) (*Session, error) {
	d := r.deps
	provider := d.Agent.Provider

	tools, err := d.NewTools(provider)
	if err != nil {
		return nil, err
	}

	now := d.Now()
	id := generateULID(now)
	logger := d.Logger.With("session_id", id, "provider", string(provider))

	orgID, envID := init.OrgID, init.EnvID
	if orgID == "" {
		orgID = d.DefaultOrgID
	}
	if envID == "" {
		envID = d.DefaultEnvID
	}

	selector, err := NewSelector(SelectorDeps{
		Provider:       provider,
		Tools:          tools,
		LLM:            d.LLM,
		Model:          d.Agent.Model,
		DefaultOrgID:   orgID,
		DefaultEnvID:   envID,
		ProviderServer: d.ProviderServer,
		Logger:         logger,
		Now:            d.Now,
	})
	if err != nil {
		tools.Cleanup(context.Background())
		return nil, err
	}
	executor, err := NewExecutor(ExecutorDeps{
		Agent:          d.Agent,
		Tools:          tools,
		Planner:        d.Planner,
		PlatformServer: d.PlatformServer,
		ProviderServer: d.ProviderServer,
		Logger:         logger,
		Now:            d.Now,
	})
	if err != nil {
		tools.Cleanup(context.Background())
		return nil, err
	}

	s := &Session{
		ID:       id,
		init:     SessionInit{OrgID: orgID, EnvID: envID, ActorToken: init.ActorToken},
		tools:    tools,
		selector: selector,
		executor: executor,
		timeout:  d.Agent.Timeout,
		logger:   logger,
		now:      d.Now,
		started:  now,
	}
	s.state = s.initialState()
	logger.Info("session started", "org_id", orgID, "env_id", envID)
	return s, nil
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func (s *Session) initialState() domain.AgentState {
	return domain.AgentState{
		Messages:     make([]domain.Message, 0),
		OrgID:        s.init.OrgID,
		EnvID:        s.init.EnvID,
		ActorToken:   s.init.ActorToken,
		SessionStart: s.started,
		LastActivity: s.started,
	}
}

// State returns a copy of the session's latest state.
func (s *Session) State() domain.AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Send appends text as a user message to the session's own state, runs one
// turn and returns the assistant replies the turn produced.
func (s *Session) Send(ctx context.Context, text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.state.Clone()
	in.AppendUser(text, s.now())
	before := len(in.Messages)
	s.state = s.step(ctx, in)
	return Replies(s.state.Messages[before:])
}

// Replies joins the non-empty assistant messages in msgs.
func Replies(msgs []domain.Message) string {
	var parts []string
	for _, m := range msgs {
		if m.Role == domain.RoleAssistant && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Close releases every tool-server client of the session. It is safe to
// call more than once.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools.Cleanup(ctx)
	s.logger.Info("session closed", "operations", s.state.OperationCount)
}
