package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/config"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/usecase/specialization"
)

// CheckStatus is the outcome class of a check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string
}

// Check is a named configuration check. cfg is nil when loading failed.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without starting a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			return runChecks(cmd.OutOrStdout(), defaultChecks(root.configPath, err), cfg)
		},
	}
}

func defaultChecks(path string, loadErr error) []Check {
	return []Check{
		{Name: "Config file", Fn: checkConfigFile(path, loadErr)},
		{Name: "Agent", Fn: checkAgent},
		{Name: "LLM credentials", Fn: checkLLM},
		{Name: "Platform server", Fn: checkPlatformServer},
		{Name: "Provider server", Fn: checkProviderServer},
	}
}

// runChecks prints every result and fails when any check failed.
func runChecks(w io.Writer, checks []Check, cfg *config.Config) error {
	fmt.Fprintln(w, "graph-fleet validate")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}
		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)
	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

func checkConfigFile(path string, loadErr error) func(*config.Config) CheckResult {
	return func(*config.Config) CheckResult {
		if loadErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: loadErr.Error(),
				Fix:     "Fix the listed fields in " + path + " or the GRAPH_FLEET_* environment",
			}
		}
		if _, err := os.Stat(path); err != nil {
			return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("%s not found, using defaults and environment", path)}
		}
		return CheckResult{Status: StatusPass, Message: "loaded from " + path}
	}
}

func checkAgent(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	agent, err := specialization.NewAgentConfig(cfg.Agent)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	if _, err := specialization.ResolveInstructions(agent); err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Check agent.instruction_template and agent.template_vars"}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s %s on %s", agent.Provider.Upper(), agent.Specialization, agent.Model),
	}
}

func checkLLM(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	switch cfg.LLM.Type {
	case "openai":
		if cfg.LLM.APIKey == "" {
			return CheckResult{
				Status:  StatusFail,
				Message: "no API key for openai",
				Fix:     "Set OPENAI_API_KEY or GRAPH_FLEET_LLM_API_KEY",
			}
		}
		return CheckResult{Status: StatusPass, Message: "openai API key configured"}
	case "bedrock":
		region := cfg.LLM.Region
		if region == "" {
			region = "from the AWS environment"
		}
		return CheckResult{Status: StatusPass, Message: "bedrock, region " + region}
	}
	return CheckResult{Status: StatusFail, Message: fmt.Sprintf("unknown llm type %q", cfg.LLM.Type)}
}

func checkPlatformServer(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	return checkServer(cfg.Platform, "platform")
}

func checkProviderServer(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	p := domain.CloudProvider(cfg.Agent.CloudProvider)
	srv, ok := cfg.Providers.Server(string(p))
	if !ok || !srv.Configured() {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no tool server configured for %s", p.Upper()),
			Fix:     fmt.Sprintf("Set providers.%s in the config or GRAPH_FLEET_%s_MCP_COMMAND", p, p.Upper()),
		}
	}
	return checkServer(srv, "providers."+string(p))
}

// checkServer verifies that a stdio server's command resolves on PATH. HTTP
// servers are not contacted.
func checkServer(srv config.MCPServer, field string) CheckResult {
	if srv.Transport == "http" {
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s at %s", srv.Name, srv.URL)}
	}
	path, err := lookPath(srv.Command)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s: %q not found on PATH", srv.Name, srv.Command),
			Fix:     fmt.Sprintf("Install %s or set %s.command", srv.Command, field),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s via %s", srv.Name, path)}
}
