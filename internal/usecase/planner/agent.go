package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/tracer"
)

// Agent is a compiled executor bound to one tool set and instruction text.
// It is safe for sequential reuse across turns.
type Agent struct {
	opts      Options
	spec      domain.PlannerSpec
	tools     map[string]domain.Tool
	schemas   []domain.ToolSchema
	delegates map[string]*delegate
}

// budget counts LLM rounds plus tool calls across one Invoke, nested
// delegate loops included. A zero limit is unbounded.
type budget struct {
	limit int64
	used  atomic.Int64
}

func (b *budget) take(n int) error {
	if b.limit <= 0 {
		return nil
	}
	if used := b.used.Add(int64(n)); used > b.limit {
		return fmt.Errorf("%w: %d of %d", domain.ErrRecursionLimit, used, b.limit)
	}
	return nil
}

// scope is one loop's view: the top-level agent or a single delegate.
type scope struct {
	name         string
	instructions string
	tools        map[string]domain.Tool
	schemas      []domain.ToolSchema
	delegates    map[string]*delegate
}

// Invoke runs one turn over state.Messages and returns the state with the
// assistant and tool messages appended.
func (a *Agent) Invoke(ctx context.Context, state domain.AgentState) (domain.AgentState, error) {
	ctx, span := tracer.StartSpan(ctx, "planner.invoke",
		trace.WithAttributes(tracer.IntAttr(tracer.AttrToolCount, len(a.tools))),
	)
	defer span.End()

	out := state.Clone()
	b := &budget{limit: int64(a.spec.RecursionLimit)}
	top := scope{
		name:         "agent",
		instructions: a.spec.Instructions,
		tools:        a.tools,
		schemas:      a.schemas,
		delegates:    a.delegates,
	}

	msgs, err := a.run(ctx, b, top, out.Messages)
	out.Messages = msgs
	if err != nil {
		tracer.RecordError(span, err)
		return out, err
	}
	span.SetAttributes(tracer.Int64Attr("planner.budget_used", b.used.Load()))
	tracer.SetOK(span)
	return out, nil
}

func (a *Agent) run(ctx context.Context, b *budget, s scope, history []domain.Message) ([]domain.Message, error) {
	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}
		if a.spec.MaxSteps > 0 && round >= a.spec.MaxSteps {
			return history, fmt.Errorf("%w: %s used %d rounds", domain.ErrMaxSteps, s.name, round)
		}
		if err := b.take(1); err != nil {
			return history, err
		}

		req := domain.ChatRequest{
			Model:       a.spec.Model,
			Messages:    make([]domain.Message, 0, len(history)+1),
			Tools:       s.schemas,
			Temperature: a.spec.Temperature,
		}
		if s.instructions != "" {
			req.Messages = append(req.Messages, domain.Message{Role: domain.RoleSystem, Content: s.instructions})
		}
		req.Messages = append(req.Messages, history...)

		msg, err := a.chat(ctx, req)
		if err != nil {
			return history, fmt.Errorf("%w: %w", domain.ErrPlannerRuntime, err)
		}
		msg.Role = domain.RoleAssistant
		if msg.Timestamp.IsZero() {
			msg.Timestamp = a.opts.Now()
		}
		history = append(history, msg)

		a.opts.Logger.Debug("llm response",
			"scope", s.name,
			"round", round,
			"tool_calls", len(msg.ToolCalls),
		)

		if len(msg.ToolCalls) == 0 {
			return history, nil
		}
		if err := b.take(len(msg.ToolCalls)); err != nil {
			return history, err
		}

		// Results are indexed to preserve call order.
		results := make([]domain.Message, len(msg.ToolCalls))
		errs := make([]error, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for i, call := range msg.ToolCalls {
			wg.Add(1)
			go func(idx int, c domain.ToolCall) {
				defer wg.Done()
				results[idx], errs[idx] = a.executeCall(ctx, b, s, c)
			}(i, call)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return history, err
			}
		}
		history = append(history, results...)
	}
}

// executeCall runs one tool or delegate call. Only budget exhaustion and
// context cancellation are returned as errors; everything else becomes the
// tool message content so the model can react to it.
func (a *Agent) executeCall(ctx context.Context, b *budget, s scope, call domain.ToolCall) (domain.Message, error) {
	if d, ok := s.delegates[call.Name]; ok {
		return a.runDelegate(ctx, b, d, call)
	}

	ctx, span := tracer.StartSpan(ctx, "planner.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	tool, ok := s.tools[call.Name]
	if !ok {
		err := fmt.Errorf("%w: %s", domain.ErrToolNotFound, call.Name)
		tracer.RecordError(span, err)
		return domain.NewToolMessage(call, err.Error(), a.opts.Now()), nil
	}

	if err := a.gate(ctx, tool, call); err != nil {
		tracer.RecordError(span, err)
		a.opts.Logger.Info("tool call blocked", "tool", call.Name, "error", err)
		return domain.NewToolMessage(call, err.Error(), a.opts.Now()), nil
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Message{}, ctxErr
		}
		tracer.RecordError(span, err)
		return domain.NewToolMessage(call, err.Error(), a.opts.Now()), nil
	}
	content := ""
	if result != nil {
		content = result.Content
	}
	tracer.SetOK(span)
	return domain.NewToolMessage(call, content, a.opts.Now()), nil
}

// gate returns nil when call may run. Marked tools always go through the
// approver; unmarked tools only when the approver asks for it.
func (a *Agent) gate(ctx context.Context, tool domain.Tool, call domain.ToolCall) error {
	marked := domain.RequiresApproval(tool)
	if a.opts.Approver == nil {
		if marked {
			return fmt.Errorf("%w: %s", domain.ErrToolApprovalRequired, call.Name)
		}
		return nil
	}
	if !marked && !a.opts.Approver.NeedsApproval(call) {
		return nil
	}
	approved, err := a.opts.Approver.RequestApproval(ctx, call)
	if err != nil {
		return err
	}
	if !approved {
		return fmt.Errorf("%w: %s", domain.ErrToolApprovalDenied, call.Name)
	}
	return nil
}

func (a *Agent) runDelegate(ctx context.Context, b *budget, d *delegate, call domain.ToolCall) (domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "planner.delegate",
		trace.WithAttributes(tracer.StringAttr("subagent.name", d.agent.Name)),
	)
	defer span.End()

	var args struct {
		Task string `json:"task"`
	}
	task := string(call.Arguments)
	if err := json.Unmarshal(call.Arguments, &args); err == nil && args.Task != "" {
		task = args.Task
	}

	history := []domain.Message{{Role: domain.RoleUser, Content: task, Timestamp: a.opts.Now()}}
	sub := scope{
		name:         d.agent.Name,
		instructions: d.instructions,
		tools:        d.tools,
		schemas:      d.schemas,
	}
	msgs, err := a.run(ctx, b, sub, history)
	if err != nil {
		tracer.RecordError(span, err)
		if errors.Is(err, domain.ErrRecursionLimit) || ctx.Err() != nil {
			return domain.Message{}, err
		}
		return domain.NewToolMessage(call, fmt.Sprintf("sub-agent %s failed: %v", d.agent.Name, err), a.opts.Now()), nil
	}
	tracer.SetOK(span)
	return domain.NewToolMessage(call, msgs[len(msgs)-1].Content, a.opts.Now()), nil
}

// chat calls the provider, retrying transient failures up to MaxRetries times.
func (a *Agent) chat(ctx context.Context, req domain.ChatRequest) (domain.Message, error) {
	attempts := 1 + max(a.spec.MaxRetries, 0)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		llmCtx, span := tracer.StartSpan(ctx, "planner.llm_call")
		resp, err := a.opts.LLM.Chat(llmCtx, req)
		span.End()
		if err == nil {
			return resp.Message, nil
		}
		lastErr = err
		if !domain.IsRetryableError(err) || attempt == attempts-1 {
			break
		}

		delay := a.opts.Backoff(attempt)
		a.opts.Logger.Info("retrying llm call after error",
			"attempt", attempt+1, "delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return domain.Message{}, ctx.Err()
		}
	}
	return domain.Message{}, lastErr
}
