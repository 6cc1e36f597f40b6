package specialization

import (
	"sort"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// DefaultPriority replaces a zero sub-agent priority.
const DefaultPriority = 1

// Assembly is the resolved instruction text and ordered delegates for one
// agent configuration.
type Assembly struct {
	Instructions string
	SubAgents    []domain.SubAgent
}

// Resolve expands cfg into instructions and sub-agents. Custom instructions
// win verbatim, then a rendered template, then the built-in default.
func Resolve(cfg domain.AgentConfig) (Assembly, error) {
	instructions, err := ResolveInstructions(cfg)
	if err != nil {
		return Assembly{}, err
	}
	return Assembly{Instructions: instructions, SubAgents: ResolveSubAgents(cfg)}, nil
}

// ResolveInstructions applies the custom > template > default precedence.
func ResolveInstructions(cfg domain.AgentConfig) (string, error) {
	switch {
	case cfg.CustomInstructions != "":
		return cfg.CustomInstructions, nil
	case cfg.InstructionTemplate != "":
		return Render(cfg.InstructionTemplate, templateVars(cfg))
	default:
		return DefaultInstructions(cfg), nil
	}
}

// ResolveSubAgents returns the enabled delegates that apply to cfg.Provider,
// ordered by ascending priority. Ties keep their configured order.
func ResolveSubAgents(cfg domain.AgentConfig) []domain.SubAgent {
	source := cfg.SubAgents
	if source == nil {
		if p, ok := Lookup(cfg.Specialization); ok {
			source = p.SubAgents
		}
	}

	out := make([]domain.SubAgent, 0, len(source))
	for _, sa := range source {
		if !sa.Enabled {
			continue
		}
		if sa.Provider != nil && *sa.Provider != cfg.Provider {
			continue
		}
		if sa.Priority == 0 {
			sa.Priority = DefaultPriority
		}
		out = append(out, sa)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
