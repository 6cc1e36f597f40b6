package specialization

import (
	"strings"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

const baseTemplate = `You are an expert {cloud_provider_title} cloud engineer specializing in {specialization_title}.

## Core Capabilities
- {cloud_provider_title} Service Expertise: deep knowledge of {cloud_provider_title} services, limits and best practices
- Autonomous Problem Solving: break requests into steps, gather evidence with the available tools and act on it
- Specialization Focus: {specialization_title}
{focus}

## Working Method
1. Understand the request and confirm the target account and region.
2. Inspect the current state with read-only tools before proposing changes.
3. Explain what you found, then recommend or perform the next action.
4. Verify the outcome and summarize what changed.

## Communication Style
Be concise and specific. Quote resource identifiers exactly. When an action is destructive or
costly, say so and ask for confirmation before running it.

## Credential Context
You operate with short-lived credentials for one selected account. Default region: {default_region}.
Never print secrets. If a tool reports an authorization failure, say which permission is missing.`

// DefaultInstructions returns the built-in instruction text for the
// provider/specialization pair in cfg.
func DefaultInstructions(cfg domain.AgentConfig) string {
	p, ok := Lookup(cfg.Specialization)
	if !ok {
		p, _ = Lookup(domain.SpecGeneral)
	}
	vars := templateVars(cfg)
	vars["focus"] = p.Focus
	out, err := Render(baseTemplate, vars)
	if err != nil {
		// baseTemplate only references vars set above.
		panic(err)
	}
	if p.Expertise != "" {
		out += "\n\n" + p.Expertise
	}
	if len(p.RequiredPermissions) > 0 {
		out += "\n\n## Expected Permissions\n" + strings.Join(p.RequiredPermissions, ", ") +
			"\nIf a call is denied, compare it with this list before retrying."
	}
	return strings.TrimSpace(out)
}
