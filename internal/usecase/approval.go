package usecase

import (
	"context"
	"fmt"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// ConfigApprover is a ToolApprover driven by allow/deny lists.
//
// Tools carrying the write-capable marker are always sent to the approver by
// the planner. Those in the allow list run; everything else is denied, since
// nobody is available to answer an interactive prompt mid-turn. Deny-listed
// tools are rejected whether or not they carry the marker.
type ConfigApprover struct {
	alwaysApprove map[string]bool
	alwaysDeny    map[string]bool
}

// NewConfigApprover creates a ConfigApprover from allow/deny lists. A name in
// both lists is denied.
func NewConfigApprover(approve, deny []string) *ConfigApprover {
	a := &ConfigApprover{
		alwaysApprove: make(map[string]bool, len(approve)),
		alwaysDeny:    make(map[string]bool, len(deny)),
	}
	for _, name := range approve {
		a.alwaysApprove[name] = true
	}
	for _, name := range deny {
		a.alwaysDeny[name] = true
	}
	return a
}

// NeedsApproval reports whether an unmarked call must still be gated. Only
// deny-listed tools are.
func (c *ConfigApprover) NeedsApproval(call domain.ToolCall) bool {
	return c.alwaysDeny[call.Name]
}

// RequestApproval approves allow-listed calls and denies the rest.
func (c *ConfigApprover) RequestApproval(_ context.Context, call domain.ToolCall) (bool, error) {
	if c.alwaysDeny[call.Name] {
		return false, domain.NewDomainError("ConfigApprover.RequestApproval", domain.ErrToolApprovalDenied, call.Name)
	}
	if c.alwaysApprove[call.Name] {
		return true, nil
	}
	return false, domain.NewDomainError(
		"ConfigApprover.RequestApproval",
		domain.ErrToolApprovalRequired,
		fmt.Sprintf("tool %q can modify cloud resources and is not in agent.approve_tools", call.Name),
	)
}

var _ domain.ToolApprover = (*ConfigApprover)(nil)
