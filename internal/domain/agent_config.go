package domain

import (
	"fmt"
	"strings"
	"time"
)

// Specialization is the closed set of agent specializations.
type Specialization string

const (
	SpecGeneral              Specialization = "general"
	SpecCostOptimizer        Specialization = "cost_optimizer"
	SpecSecurityAuditor      Specialization = "security_auditor"
	SpecTroubleshooter       Specialization = "troubleshooter"
	SpecArchitect            Specialization = "architect"
	SpecComplianceAuditor    Specialization = "compliance_auditor"
	SpecPerformanceOptimizer Specialization = "performance_optimizer"
	SpecDisasterRecovery     Specialization = "disaster_recovery"
)

// Specializations lists every specialization tag.
var Specializations = []Specialization{
	SpecGeneral,
	SpecCostOptimizer,
	SpecSecurityAuditor,
	SpecTroubleshooter,
	SpecArchitect,
	SpecComplianceAuditor,
	SpecPerformanceOptimizer,
	SpecDisasterRecovery,
}

// ParseSpecialization accepts both "cost_optimizer" and "cost-optimizer".
func ParseSpecialization(s string) (Specialization, error) {
	norm := Specialization(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if norm == "" {
		return SpecGeneral, nil
	}
	for _, sp := range Specializations {
		if sp == norm {
			return sp, nil
		}
	}
	return "", fmt.Errorf("%w: unknown specialization %q", ErrConfiguration, s)
}

// Title renders "cost_optimizer" as "Cost Optimizer".
func (s Specialization) Title() string {
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// SubAgent describes one delegate the planner may hand work to.
type SubAgent struct {
	Name              string         `yaml:"name" json:"name"`
	Description       string         `yaml:"description" json:"description"`
	Instructions      string         `yaml:"instructions" json:"instructions"`
	TriggerConditions []string       `yaml:"trigger_conditions,omitempty" json:"triggerConditions,omitempty"`
	RequiredTools     []string       `yaml:"required_tools,omitempty" json:"requiredTools,omitempty"`
	Provider          *CloudProvider `yaml:"cloud_provider,omitempty" json:"cloudProvider,omitempty"`
	Enabled           bool           `yaml:"enabled" json:"enabled"`
	// Priority orders delegates; lower runs earlier. Zero means the default of 1.
	Priority int `yaml:"priority,omitempty" json:"priority"`
}

// AgentConfig is the validated per-session agent configuration.
type AgentConfig struct {
	Provider       CloudProvider
	Specialization Specialization
	Model          string
	Temperature    float64
	MaxSteps       int
	MaxRetries     int
	RecursionLimit int
	Timeout        time.Duration
	DefaultRegion  string

	CustomInstructions  string
	InstructionTemplate string
	TemplateVars        map[string]string

	// SubAgents overrides the specialization's recommended sub-agents when non-nil.
	SubAgents []SubAgent

	// ApproveTools lists write-capable tools that may run without a prompt.
	ApproveTools []string
	// DenyTools lists tools that are never invoked.
	DenyTools []string
}

// Region returns the configured default region or the provider default.
func (c AgentConfig) Region() string {
	if c.DefaultRegion != "" {
		return c.DefaultRegion
	}
	return c.Provider.DefaultRegion()
}
