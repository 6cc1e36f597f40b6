package domain

import (
	"strings"
	"time"
)

// RefreshBuffer is the margin before absolute expiry at which minted
// credentials are treated as stale and re-minted.
const RefreshBuffer = 300 * time.Second

// DefaultCredentialTTL is stamped on minted credentials that carry no expiry.
const DefaultCredentialTTL = 3600 * time.Second

// Binding is the currently-selected credential plus the selection version.
// Version strictly increases on every bind and clear; it is the cache key for
// compiled executors.
type Binding struct {
	Summary *CredentialSummary `json:"summary,omitempty"`
	Version int64              `json:"selectionVersion"`
}

// ID returns the bound credential id, or "" when unbound.
func (b Binding) ID() string {
	if b.Summary == nil {
		return ""
	}
	return b.Summary.ID
}

// LastError records the most recent failure surfaced to the user.
type LastError struct {
	Type      Kind      `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerStatus values recorded in AgentState.ToolServerStatus.
const (
	ServerConnected = "connected"
	ServerError     = "error"
	ServerReleased  = "released"
)

// AgentState is the per-turn state threaded through the graph.
// Messages are append-only; OperationCount never decreases; ExpiresAt is
// zero whenever Binding is empty.
type AgentState struct {
	Messages   []Message `json:"messages"`
	OrgID      string    `json:"orgId,omitempty"`
	EnvID      string    `json:"envId,omitempty"`
	ActorToken string    `json:"actorToken,omitempty"`

	Binding Binding `json:"binding"`
	// ExpiresAt is the minted-credential expiry in Unix seconds; 0 means absent.
	ExpiresAt int64 `json:"expiresAt,omitempty"`

	OperationCount   int               `json:"operationCount"`
	LastError        *LastError        `json:"lastError,omitempty"`
	SessionStart     time.Time         `json:"sessionStartTime"`
	LastActivity     time.Time         `json:"lastActivityTime"`
	AvailableTools   []string          `json:"availableTools,omitempty"`
	ToolServerStatus map[string]string `json:"toolServerStatus,omitempty"`
	CurrentRegion    string            `json:"currentRegion,omitempty"`

	// Extra carries planner-set fields the runtime does not interpret.
	Extra map[string]any `json:"extra,omitempty"`
}

// Bound reports whether a credential is currently bound.
func (s *AgentState) Bound() bool { return s.Binding.Summary != nil }

// LastUserText returns the content of the final message if it is a user turn.
func (s *AgentState) LastUserText() (string, bool) {
	if len(s.Messages) == 0 {
		return "", false
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != RoleUser {
		return "", false
	}
	return last.Content, true
}

// Bind sets the binding to summary and bumps the selection version. The
// expiry is cleared so the executor mints on its next run.
func (s *AgentState) Bind(summary CredentialSummary) {
	sum := summary
	s.Binding.Summary = &sum
	s.Binding.Version++
	s.ExpiresAt = 0
	s.CurrentRegion = summary.DefaultRegion
}

// ClearBinding drops the binding and expiry and bumps the selection version.
func (s *AgentState) ClearBinding() {
	s.Binding.Summary = nil
	s.Binding.Version++
	s.ExpiresAt = 0
	s.CurrentRegion = ""
}

// NeedsRefresh reports whether the stored expiry is absent or inside the
// refresh buffer at now.
func (s *AgentState) NeedsRefresh(now time.Time) bool {
	if s.ExpiresAt == 0 {
		return true
	}
	return !now.Before(time.Unix(s.ExpiresAt, 0).Add(-RefreshBuffer))
}

// Expired reports whether a stored expiry exists and falls inside the refresh
// buffer at now. Unlike NeedsRefresh, an absent expiry is not expired.
func (s *AgentState) Expired(now time.Time) bool {
	return s.ExpiresAt != 0 && s.NeedsRefresh(now)
}

// AppendAssistant appends an assistant message.
func (s *AgentState) AppendAssistant(content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: RoleAssistant, Content: content, Timestamp: now})
}

// AppendUser appends a user message.
func (s *AgentState) AppendUser(content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: RoleUser, Content: content, Timestamp: now})
}

// RecordError stores err as the last error.
func (s *AgentState) RecordError(err error, now time.Time) {
	s.LastError = &LastError{Type: KindOf(err), Message: err.Error(), Timestamp: now}
}

// RecordOperation increments the operation counter and activity clock.
func (s *AgentState) RecordOperation(now time.Time) {
	s.OperationCount++
	s.LastActivity = now
}

// SetServerStatus records the connection status of a tool server.
func (s *AgentState) SetServerStatus(server, status string) {
	if s.ToolServerStatus == nil {
		s.ToolServerStatus = make(map[string]string)
	}
	s.ToolServerStatus[server] = status
}

// Clone returns a copy that shares no slices or maps with s.
func (s AgentState) Clone() AgentState {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	out.AvailableTools = append([]string(nil), s.AvailableTools...)
	if s.Binding.Summary != nil {
		sum := *s.Binding.Summary
		out.Binding.Summary = &sum
	}
	if s.LastError != nil {
		le := *s.LastError
		out.LastError = &le
	}
	if s.ToolServerStatus != nil {
		out.ToolServerStatus = make(map[string]string, len(s.ToolServerStatus))
		for k, v := range s.ToolServerStatus {
			out.ToolServerStatus[k] = v
		}
	}
	if s.Extra != nil {
		out.Extra = make(map[string]any, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// switchVocabulary is matched case-insensitively as substrings of the
// latest user utterance.
var switchVocabulary = []string{
	"switch to",
	"switch account",
	"change to",
	"change account",
	"use account",
	"use credential",
	"use project",
	"use subscription",
	"different account",
	"clear selection",
	"reset credential",
}

// HasSwitchIntent reports whether text asks to switch or clear the binding.
func HasSwitchIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range switchVocabulary {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
