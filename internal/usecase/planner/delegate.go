package planner

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// delegate is a sub-agent compiled into its own tool scope.
type delegate struct {
	agent        domain.SubAgent
	instructions string
	tools        map[string]domain.Tool
	schemas      []domain.ToolSchema
}

// newDelegate scopes all to sa.RequiredTools. An empty requirement list
// grants every tool. Required tools the session does not offer are skipped.
func newDelegate(sa domain.SubAgent, all []domain.Tool, logger *slog.Logger) (*delegate, error) {
	if sa.Name == "" {
		return nil, fmt.Errorf("%w: sub-agent without a name", domain.ErrPlannerCompileFailed)
	}

	d := &delegate{
		agent:        sa,
		instructions: sa.Instructions,
		tools:        make(map[string]domain.Tool),
	}
	if d.instructions == "" {
		d.instructions = fmt.Sprintf("You are the %s sub-agent. %s", sa.Name, sa.Description)
	}

	byName := make(map[string]domain.Tool, len(all))
	for _, t := range all {
		byName[t.Name()] = t
	}

	if len(sa.RequiredTools) == 0 {
		for _, t := range all {
			d.tools[t.Name()] = t
			d.schemas = append(d.schemas, t.Schema())
		}
		return d, nil
	}

	for _, name := range sa.RequiredTools {
		t, ok := byName[name]
		if !ok {
			logger.Warn("sub-agent tool unavailable", "subagent", sa.Name, "tool", name)
			continue
		}
		if _, dup := d.tools[name]; dup {
			continue
		}
		d.tools[name] = t
		d.schemas = append(d.schemas, t.Schema())
	}
	return d, nil
}

func (d *delegate) schema(toolName string) domain.ToolSchema {
	desc := d.agent.Description
	if len(d.agent.TriggerConditions) > 0 {
		desc += " Use for: " + strings.Join(d.agent.TriggerConditions, ", ") + "."
	}
	return domain.ToolSchema{
		Name:        toolName,
		Description: strings.TrimSpace(desc),
		Parameters:  delegateSchema,
	}
}
