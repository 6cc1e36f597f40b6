package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// Agent-level invariants (template probe, sub-agent uniqueness) are checked
// again when a session's agent configuration is constructed.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateLLM(cfg, ve)
	validateServer("platform", cfg.Platform, true, ve)
	validateServer("providers.aws", cfg.Providers.AWS, false, ve)
	validateServer("providers.gcp", cfg.Providers.GCP, false, ve)
	validateServer("providers.azure", cfg.Providers.Azure, false, ve)
	validateAgent(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if cfg.Logger.Level != "" && !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q must be one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q must be noop or stdout", cfg.Tracer.Exporter)
	}
	if r := cfg.Tracer.SampleRatio; r < 0 || r > 1 {
		ve.Add("tracer.sample_ratio %v must be within [0, 1]", r)
	}
}

var validLLMTypes = map[string]bool{
	"openai":  true,
	"bedrock": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if !validLLMTypes[cfg.LLM.Type] {
		ve.Add("llm.type %q must be openai or bedrock", cfg.LLM.Type)
	}
	if cfg.LLM.ConnTimeout < 0 || cfg.LLM.RespTimeout < 0 {
		ve.Add("llm timeouts must be >= 0")
	}
}

func validateServer(field string, srv MCPServer, required bool, ve *ValidationError) {
	if !srv.Configured() {
		if required {
			ve.Add("%s: command or url is required", field)
		}
		return
	}
	switch srv.Transport {
	case "", "stdio":
		if srv.Command == "" {
			ve.Add("%s: stdio transport requires command", field)
		}
	case "http":
		if srv.URL == "" {
			ve.Add("%s: http transport requires url", field)
		}
	default:
		ve.Add("%s: unsupported transport %q", field, srv.Transport)
	}
}

func validateAgent(cfg *Config, ve *ValidationError) {
	a := cfg.Agent
	switch strings.ToLower(a.CloudProvider) {
	case "aws", "gcp", "azure":
	default:
		ve.Add("agent.cloud_provider %q must be aws, gcp or azure", a.CloudProvider)
	}
	if a.Temperature < 0 || a.Temperature > 1 {
		ve.Add("agent.temperature must be within [0, 1]")
	}
	if a.Timeout <= 0 {
		ve.Add("agent.timeout must be > 0")
	}
	if a.MaxSteps < 0 {
		ve.Add("agent.max_steps must be >= 0")
	}
	if a.MaxRetries < 0 {
		ve.Add("agent.max_retries must be >= 0")
	}
	if a.RecursionLimit < 25 {
		ve.Add("agent.recursion_limit must be >= 25")
	}
	seen := make(map[string]bool, len(a.SubAgents))
	for i, sa := range a.SubAgents {
		if sa.Name == "" {
			ve.Add("agent.sub_agents[%d].name is required", i)
			continue
		}
		if seen[sa.Name] {
			ve.Add("agent.sub_agents: duplicate name %q", sa.Name)
		}
		seen[sa.Name] = true
		if sa.Priority < 0 {
			ve.Add("agent.sub_agents[%d].priority must be >= 1", i)
		}
	}
}
