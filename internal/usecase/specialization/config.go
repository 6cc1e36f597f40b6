package specialization

import (
	"fmt"
	"strings"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/config"
)

// MinRecursionLimit is the smallest recursion budget the planner accepts.
const MinRecursionLimit = 25

// NewAgentConfig converts the YAML agent section into a validated
// domain.AgentConfig. Every problem is reported, not just the first.
func NewAgentConfig(in config.AgentConfig) (domain.AgentConfig, error) {
	ve := &config.ValidationError{}

	provider, err := domain.ParseCloudProvider(in.CloudProvider)
	if err != nil {
		ve.Add("cloud_provider %q must be aws, gcp or azure", in.CloudProvider)
	}
	spec, err := domain.ParseSpecialization(in.Specialization)
	if err != nil {
		ve.Add("specialization %q is not a known specialization", in.Specialization)
	}

	out := domain.AgentConfig{
		Provider:            provider,
		Specialization:      spec,
		Model:               in.Model,
		Temperature:         in.Temperature,
		MaxSteps:            in.MaxSteps,
		MaxRetries:          in.MaxRetries,
		RecursionLimit:      in.RecursionLimit,
		Timeout:             in.Timeout,
		DefaultRegion:       in.DefaultRegion,
		CustomInstructions:  in.CustomInstructions,
		InstructionTemplate: in.InstructionTemplate,
		TemplateVars:        in.TemplateVars,
		ApproveTools:        in.ApproveTools,
		DenyTools:           in.DenyTools,
	}
	if in.SubAgents != nil {
		out.SubAgents = make([]domain.SubAgent, 0, len(in.SubAgents))
		for i, sc := range in.SubAgents {
			sa, err := toSubAgent(sc)
			if err != nil {
				ve.Add("sub_agents[%d]: %v", i, err)
				continue
			}
			out.SubAgents = append(out.SubAgents, sa)
		}
	}

	validate(out, ve)
	if ve.HasErrors() {
		return domain.AgentConfig{}, fmt.Errorf("%w: %w", domain.ErrConfiguration, ve)
	}
	return out, nil
}

// Validate checks the invariants of an already-built configuration.
func Validate(cfg domain.AgentConfig) error {
	ve := &config.ValidationError{}
	if !cfg.Provider.Valid() {
		ve.Add("cloud_provider %q must be aws, gcp or azure", cfg.Provider)
	}
	validate(cfg, ve)
	if ve.HasErrors() {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, ve)
	}
	return nil
}

func validate(cfg domain.AgentConfig, ve *config.ValidationError) {
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		ve.Add("temperature %v must be within [0, 1]", cfg.Temperature)
	}
	if cfg.Timeout <= 0 {
		ve.Add("timeout must be > 0")
	}
	if cfg.MaxSteps < 0 {
		ve.Add("max_steps must be >= 0")
	}
	if cfg.MaxRetries < 0 {
		ve.Add("max_retries must be >= 0")
	}
	if cfg.RecursionLimit < MinRecursionLimit {
		ve.Add("recursion_limit %d must be >= %d", cfg.RecursionLimit, MinRecursionLimit)
	}
	if p, ok := Lookup(cfg.Specialization); ok && cfg.Provider.Valid() && !p.Supports(cfg.Provider) {
		ve.Add("specialization %q does not support cloud_provider %q", cfg.Specialization, cfg.Provider)
	}

	seen := make(map[string]bool, len(cfg.SubAgents))
	for i, sa := range cfg.SubAgents {
		if sa.Name == "" {
			ve.Add("sub_agents[%d].name is required", i)
			continue
		}
		if seen[sa.Name] {
			ve.Add("duplicate sub-agent name %q", sa.Name)
		}
		seen[sa.Name] = true
		if sa.Priority < 0 {
			ve.Add("sub_agents[%d].priority must be >= 1", i)
		}
	}

	if err := Probe(cfg); err != nil {
		ve.Add("instruction_template: %s", strings.TrimPrefix(err.Error(), domain.ErrConfiguration.Error()+": "))
	}
}

func toSubAgent(sc config.SubAgentConfig) (domain.SubAgent, error) {
	sa := domain.SubAgent{
		Name:              sc.Name,
		Description:       sc.Description,
		Instructions:      sc.Instructions,
		TriggerConditions: sc.TriggerConditions,
		RequiredTools:     sc.RequiredTools,
		Enabled:           sc.Enabled == nil || *sc.Enabled,
		Priority:          sc.Priority,
	}
	if sc.CloudProvider != "" {
		p, err := domain.ParseCloudProvider(sc.CloudProvider)
		if err != nil {
			return domain.SubAgent{}, err
		}
		sa.Provider = &p
	}
	return sa, nil
}
