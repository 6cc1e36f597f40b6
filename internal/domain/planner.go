package domain

import "context"

// PlannerSpec is everything a planner needs to compile an executor for one
// (credential, selection-version) pair.
type PlannerSpec struct {
	Tools          []Tool
	SubAgents      []SubAgent
	Instructions   string
	Model          string
	Temperature    float64
	RecursionLimit int
	MaxSteps       int
	MaxRetries     int
}

// Planner compiles executors. Implementations own sub-agent delegation, tool
// invocation and intermediate reasoning.
type Planner interface {
	Compile(ctx context.Context, spec PlannerSpec) (CompiledAgent, error)
}

// CompiledAgent runs one agent turn. The returned state must extend the
// input messages rather than replace them.
type CompiledAgent interface {
	Invoke(ctx context.Context, state AgentState) (AgentState, error)
}
