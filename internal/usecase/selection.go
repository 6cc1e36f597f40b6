package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kaptinlin/jsonschema"
	"go.opentelemetry.io/otel/trace"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/tracer"
)

// maxListedCandidates bounds the candidates named in a clarifying question.
const maxListedCandidates = 4

const decisionSchema = `{
  "type": "object",
  "required": ["selectedIds"],
  "properties": {
    "selectedIds": {"type": "array", "items": {"type": "string"}},
    "clarifyingQuestion": {"type": ["string", "null"]},
    "switchRequested": {"type": "boolean"},
    "clearSelection": {"type": "boolean"}
  }
}`

// clearVocabulary ends an unbound turn without listing and backs up an
// unusable model answer.
var clearVocabulary = []string{"clear selection", "reset credential"}

// selectionDecision is the record the selection model must return.
type selectionDecision struct {
	SelectedIDs        []string `json:"selectedIds"`
	ClarifyingQuestion *string  `json:"clarifyingQuestion"`
	SwitchRequested    bool     `json:"switchRequested"`
	ClearSelection     bool     `json:"clearSelection"`
}

// SelectorDeps holds the collaborators of a Selector.
type SelectorDeps struct {
	Provider domain.CloudProvider
	Tools    domain.ToolProvider
	LLM      domain.LLMProvider
	Model    string
	// DefaultOrgID and DefaultEnvID fill in for a state that carries none.
	DefaultOrgID string
	DefaultEnvID string
	// ProviderServer is the tool server name recorded on release.
	ProviderServer string
	Logger         *slog.Logger
	Now            func() time.Time
}

// Selector is the credential selection node. It turns the latest user
// message into a bind, a clear, or a clarifying question.
type Selector struct {
	deps   SelectorDeps
	schema *jsonschema.Schema
}

// NewSelector creates a Selector.
func NewSelector(deps SelectorDeps) (*Selector, error) {
	if deps.Tools == nil || deps.LLM == nil {
		return nil, fmt.Errorf("%w: selector needs a tool provider and an llm", domain.ErrConfiguration)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	schema, err := jsonschema.NewCompiler().Compile([]byte(decisionSchema))
	if err != nil {
		return nil, fmt.Errorf("%w: selection schema: %v", domain.ErrConfiguration, err)
	}
	return &Selector{deps: deps, schema: schema}, nil
}

// Run applies the selection algorithm to state in place.
func (s *Selector) Run(ctx context.Context, state *domain.AgentState) {
	text, ok := state.LastUserText()
	if !ok {
		return
	}
	switching := domain.HasSwitchIntent(text)
	if state.Bound() && !switching {
		return
	}
	clearing := hasClearIntent(text)

	ctx, span := tracer.StartSpan(ctx, "selection.run",
		trace.WithAttributes(tracer.BindingAttrs(string(s.deps.Provider), state.Binding.ID(), state.Binding.Version)...),
	)
	defer span.End()

	// Nothing is bound, so a clear needs no candidates.
	if clearing && !state.Bound() {
		s.clear(state)
		tracer.SetOK(span)
		return
	}

	if state.OrgID == "" {
		state.OrgID = s.deps.DefaultOrgID
	}
	if state.EnvID == "" {
		state.EnvID = s.deps.DefaultEnvID
	}
	p := s.deps.Provider.Upper()
	if state.OrgID == "" {
		err := fmt.Errorf("%w: organization id is missing", domain.ErrCredentialListingFailed)
		tracer.RecordError(span, err)
		s.fail(ctx, state, err, fmt.Sprintf("An organization ID is required to select %s credentials. Please provide one.", p))
		return
	}

	candidates, err := s.deps.Tools.ListCredentials(ctx, s.deps.Provider, state.OrgID, state.EnvID)
	if err != nil {
		tracer.RecordError(span, err)
		s.fail(ctx, state, err, fmt.Sprintf("Error listing %s credentials: %v", p, err))
		return
	}
	if len(candidates) == 0 {
		err := fmt.Errorf("%w: no %s credentials for org %s", domain.ErrCredentialListingFailed, p, state.OrgID)
		tracer.RecordError(span, err)
		s.fail(ctx, state, err, fmt.Sprintf("No %s credentials found for this organization.", p))
		return
	}
	span.SetAttributes(tracer.IntAttr("credentials.count", len(candidates)))

	// A lone candidate on an unbound session needs no model call.
	if len(candidates) == 1 && !state.Bound() && !switching {
		s.bind(state, candidates[0])
		tracer.SetOK(span)
		return
	}

	decision, err := s.decide(ctx, state, text, candidates)
	if err != nil {
		if ctx.Err() != nil {
			tracer.RecordError(span, ctx.Err())
			return
		}
		s.deps.Logger.Warn("selection model answer unusable", "error", err, "candidates", len(candidates))
		s.fallback(state, text, candidates)
		tracer.SetOK(span)
		return
	}
	s.apply(state, decision, candidates)
	tracer.SetOK(span)
}

func (s *Selector) decide(ctx context.Context, state *domain.AgentState, text string, candidates []domain.CredentialSummary) (*selectionDecision, error) {
	resp, err := s.deps.LLM.Chat(ctx, domain.ChatRequest{
		Model: s.deps.Model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: s.prompt(state, candidates)},
			{Role: domain.RoleUser, Content: text},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}
	return s.parseDecision(resp.Message.Content)
}

func (s *Selector) prompt(state *domain.AgentState, candidates []domain.CredentialSummary) string {
	p := s.deps.Provider.Upper()
	var b strings.Builder
	fmt.Fprintf(&b, "You select which %s credential the user wants to work with.\n\n", p)
	fmt.Fprintf(&b, "Organization: %s\n", state.OrgID)
	if state.EnvID != "" {
		fmt.Fprintf(&b, "Environment: %s\n", state.EnvID)
	}
	if sum := state.Binding.Summary; sum != nil {
		fmt.Fprintf(&b, "Currently selected: id=%s name=%q account=%s\n", sum.ID, sum.Name, sum.AccountID)
	} else {
		b.WriteString("Currently selected: none\n")
	}

	b.WriteString("\nAvailable credentials:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s name=%q account=%s region=%s\n", c.ID, c.Name, c.AccountID, c.DefaultRegion)
	}

	b.WriteString(`
Rules:
1. If the message names an account by name, id or account number, select that one.
2. If exactly one credential exists, select it.
3. If the choice is ambiguous, do not select; ask one short clarifying question.
4. If the user asks to switch or change accounts, set switchRequested to true.
5. If the user asks to clear or reset the selection, set clearSelection to true and select nothing.

Reply with only this JSON object:
{"selectedIds": ["<id>"], "clarifyingQuestion": null, "switchRequested": false, "clearSelection": false}`)
	return b.String()
}

// parseDecision decodes the model reply, tolerating a fenced code block.
func (s *Selector) parseDecision(raw string) (*selectionDecision, error) {
	body := stripFence(raw)
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("selection reply is not JSON: %w", err)
	}
	if result := s.schema.Validate(doc); !result.IsValid() {
		return nil, fmt.Errorf("selection reply does not match schema: %s", result.Error())
	}
	var d selectionDecision
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string ("json").
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func (s *Selector) apply(state *domain.AgentState, d *selectionDecision, candidates []domain.CredentialSummary) {
	if d.ClearSelection {
		s.clear(state)
		return
	}
	if d.ClarifyingQuestion != nil && strings.TrimSpace(*d.ClarifyingQuestion) != "" {
		state.AppendAssistant(strings.TrimSpace(*d.ClarifyingQuestion), s.deps.Now())
		return
	}
	if len(d.SelectedIDs) > 0 {
		if len(d.SelectedIDs) > 1 {
			s.deps.Logger.Info("selection returned several credentials, using the first", "ids", d.SelectedIDs)
		}
		if c, ok := domain.FindCredential(candidates, d.SelectedIDs[0]); ok {
			s.bind(state, c)
			return
		}
		s.deps.Logger.Warn("selection returned an unknown credential", "id", d.SelectedIDs[0])
		state.AppendAssistant(clarifyingQuestion(s.deps.Provider, candidates), s.deps.Now())
		return
	}
	state.AppendAssistant("Please specify which account to use.", s.deps.Now())
}

// fallback handles an unusable model answer: an explicit clear request is
// honored, a lone candidate is selected, anything else gets a question.
func (s *Selector) fallback(state *domain.AgentState, text string, candidates []domain.CredentialSummary) {
	if hasClearIntent(text) {
		s.clear(state)
		return
	}
	if len(candidates) == 1 {
		s.bind(state, candidates[0])
		return
	}
	state.AppendAssistant(clarifyingQuestion(s.deps.Provider, candidates), s.deps.Now())
}

func (s *Selector) bind(state *domain.AgentState, c domain.CredentialSummary) {
	// The old client must not outlive its binding if the next mint fails.
	if prev := state.Binding.ID(); prev != "" && prev != c.ID {
		s.deps.Tools.ReleaseProvider(s.deps.Provider)
		if s.deps.ProviderServer != "" {
			state.SetServerStatus(s.deps.ProviderServer, domain.ServerReleased)
		}
	}
	state.Bind(c)
	state.LastActivity = s.deps.Now()
	state.AppendAssistant(fmt.Sprintf("Using %s account: %s", s.deps.Provider.Upper(), c.Label()), s.deps.Now())
	s.deps.Logger.Info("credential bound",
		"provider", s.deps.Provider,
		"credential_id", c.ID,
		"selection_version", state.Binding.Version)
}

func (s *Selector) clear(state *domain.AgentState) {
	state.ClearBinding()
	s.deps.Tools.ReleaseProvider(s.deps.Provider)
	if s.deps.ProviderServer != "" {
		state.SetServerStatus(s.deps.ProviderServer, domain.ServerReleased)
	}
	state.AppendAssistant(fmt.Sprintf("%s credential selection cleared. Please specify which account to use.", s.deps.Provider.Upper()), s.deps.Now())
	s.deps.Logger.Info("credential selection cleared",
		"provider", s.deps.Provider,
		"selection_version", state.Binding.Version)
}

func hasClearIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range clearVocabulary {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// fail reports err to the user unless the turn deadline already passed; the
// graph reports timeouts itself.
func (s *Selector) fail(ctx context.Context, state *domain.AgentState, err error, message string) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return
	}
	now := s.deps.Now()
	state.RecordError(err, now)
	state.AppendAssistant(message, now)
}

func clarifyingQuestion(provider domain.CloudProvider, candidates []domain.CredentialSummary) string {
	n := min(len(candidates), maxListedCandidates)
	labels := make([]string, n)
	for i := range n {
		labels[i] = candidates[i].Label()
	}
	return fmt.Sprintf("Which %s account: %s?", provider.Upper(), strings.Join(labels, ", "))
}
