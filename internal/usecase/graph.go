package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/tracer"
)

// Step runs one turn over in and returns the extended state. It never fails:
// every error is reported as an assistant message and recorded in LastError.
// The result also becomes the session's own state.
func (s *Session) Step(ctx context.Context, in domain.AgentState) domain.AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.step(ctx, in)
	s.state = out.Clone()
	return out
}

func (s *Session) step(ctx context.Context, in domain.AgentState) (out domain.AgentState) {
	state := in.Clone()
	if state.SessionStart.IsZero() {
		state.SessionStart = s.started
	}
	if state.OrgID == "" {
		state.OrgID = s.init.OrgID
	}
	if state.EnvID == "" {
		state.EnvID = s.init.EnvID
	}
	if state.ActorToken == "" {
		state.ActorToken = s.init.ActorToken
	}
	state.LastActivity = s.now()

	ctx, span := tracer.StartSpan(ctx, "graph.step",
		trace.WithAttributes(tracer.StringAttr(tracer.AttrSessionID, s.ID)),
	)
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: panic: %v", domain.ErrPlannerRuntime, r)
			s.logger.Error("turn panicked", "error", err)
			tracer.RecordError(span, err)
			now := s.now()
			state.RecordError(err, now)
			state.AppendAssistant("Internal error while handling the request. Please try again.", now)
			out = state
		}
	}()

	node := Route(&state)
	span.SetAttributes(tracer.StringAttr(tracer.AttrNode, string(node)))
	s.logger.Debug("turn routed", "node", node, "selection_version", state.Binding.Version)

	switch node {
	case NodeSelect:
		version := state.Binding.Version
		s.selector.Run(ctx, &state)
		if state.Bound() && state.Binding.Version != version {
			s.executor.Run(ctx, &state)
		}
	default:
		s.executor.Run(ctx, &state)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err := fmt.Errorf("%w after %s", domain.ErrTurnTimeout, s.timeout)
		tracer.RecordError(span, err)
		s.logger.Warn("turn timed out", "timeout", s.timeout)
		now := s.now()
		state.RecordError(err, now)
		state.AppendAssistant(fmt.Sprintf("The request timed out after %s. Please try again.", s.timeout), now)
		return state
	}

	span.SetAttributes(tracer.BindingAttrs(string(s.executor.deps.Agent.Provider), state.Binding.ID(), state.Binding.Version)...)
	tracer.SetOK(span)
	return state
}
