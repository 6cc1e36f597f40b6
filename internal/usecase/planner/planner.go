// Package planner is the built-in tool-calling loop used to compile session
// executors. It runs receive-think-act rounds against an LLM provider,
// gates write-capable tools on approval and exposes sub-agents as
// delegate_<name> tools.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// Retry backoff bounds for transient LLM failures.
const (
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// DelegatePrefix is prepended to a sub-agent name to form its tool name.
const DelegatePrefix = "delegate_"

var delegateSchema = json.RawMessage(`{"type":"object","properties":{"task":{"type":"string","description":"Self-contained description of the work to hand off"}},"required":["task"]}`)

// Options configures a Planner.
type Options struct {
	LLM      domain.LLMProvider
	Approver domain.ToolApprover // optional; nil denies every marked tool
	Logger   *slog.Logger
	Now      func() time.Time
	// Backoff returns the delay before retry attempt n (0-based). Defaults
	// to exponential backoff with jitter.
	Backoff func(attempt int) time.Duration
}

// Planner compiles Agents over one LLM provider.
type Planner struct {
	opts Options
}

// New creates a Planner.
func New(opts Options) *Planner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Backoff == nil {
		opts.Backoff = retryBackoff
	}
	return &Planner{opts: opts}
}

// Compile builds an Agent for spec. Tool and delegate names must be unique.
func (p *Planner) Compile(_ context.Context, spec domain.PlannerSpec) (domain.CompiledAgent, error) {
	if p.opts.LLM == nil {
		return nil, fmt.Errorf("%w: no llm provider", domain.ErrPlannerCompileFailed)
	}

	tools := make(map[string]domain.Tool, len(spec.Tools))
	schemas := make([]domain.ToolSchema, 0, len(spec.Tools)+len(spec.SubAgents))
	for _, t := range spec.Tools {
		if _, dup := tools[t.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate tool %q", domain.ErrPlannerCompileFailed, t.Name())
		}
		tools[t.Name()] = t
		schemas = append(schemas, t.Schema())
	}

	delegates := make(map[string]*delegate, len(spec.SubAgents))
	for _, sa := range spec.SubAgents {
		name := DelegatePrefix + sa.Name
		if _, dup := tools[name]; dup {
			return nil, fmt.Errorf("%w: delegate %q collides with a tool", domain.ErrPlannerCompileFailed, name)
		}
		if _, dup := delegates[name]; dup {
			return nil, fmt.Errorf("%w: duplicate sub-agent %q", domain.ErrPlannerCompileFailed, sa.Name)
		}
		d, err := newDelegate(sa, spec.Tools, p.opts.Logger)
		if err != nil {
			return nil, err
		}
		delegates[name] = d
		schemas = append(schemas, d.schema(name))
	}

	return &Agent{
		opts:      p.opts,
		spec:      spec,
		tools:     tools,
		schemas:   schemas,
		delegates: delegates,
	}, nil
}

// retryBackoff computes exponential backoff with 0-25% jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}
