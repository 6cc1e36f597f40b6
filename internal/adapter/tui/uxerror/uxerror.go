// Package uxerror turns the last error recorded on a session into a short
// heading with recovery hints for the terminal UI.
package uxerror

import (
	"fmt"
	"strings"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/adapter/tui/theme"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title string
	Hints []string
	Raw   string
}

// Render formats the FriendlyError for the message list.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
		}
	}
	return sb.String()
}

// messagePatterns refine an error kind using its text. They are checked
// before the per-kind defaults.
var messagePatterns = []struct {
	substrs []string
	fe      FriendlyError
}{
	{
		substrs: []string{"rate limit", "429", "too many requests"},
		fe: FriendlyError{
			Title: "Rate Limited",
			Hints: []string{"Wait a moment before retrying"},
		},
	},
	{
		substrs: []string{"401", "unauthorized", "authentication failed"},
		fe: FriendlyError{
			Title: "Model Authentication Failed",
			Hints: []string{"Check llm.api_key or OPENAI_API_KEY", "For bedrock, check the process AWS identity"},
		},
	},
	{
		substrs: []string{"tool requires approval"},
		fe: FriendlyError{
			Title: "Write Tool Blocked",
			Hints: []string{"Add the tool to agent.approve_tools to let it run"},
		},
	},
}

var kindErrors = map[domain.Kind]FriendlyError{
	domain.KindConfiguration: {
		Title: "Configuration Problem",
		Hints: []string{"Run 'graph-fleet validate' to see every problem at once"},
	},
	domain.KindCredentialListingFailed: {
		Title: "Could Not List Credentials",
		Hints: []string{"Pass --org with an organization that has cloud credentials", "Check the platform tool server in the platform section of the config"},
	},
	domain.KindCredentialInvalid: {
		Title: "Credential Rejected",
		Hints: []string{"Check the credential in the platform console", "Switch to another account with 'switch to <name>'"},
	},
	domain.KindToolProviderUnavailable: {
		Title: "Tool Server Unavailable",
		Hints: []string{"Check the providers section of the config", "Make sure the server command is installed"},
	},
	domain.KindPlannerCompileFailed: {
		Title: "Agent Could Not Be Prepared",
		Hints: []string{"Check agent.sub_agents for unknown tools or duplicate names"},
	},
	domain.KindPlannerRuntime: {
		Title: "Agent Turn Failed",
		Hints: []string{"Try again", "Raise agent.max_steps or agent.recursion_limit for long tasks"},
	},
	domain.KindTurnTimeout: {
		Title: "Turn Timed Out",
		Hints: []string{"Break the request into smaller steps", "Raise agent.timeout"},
	},
}

// Humanize maps le to a FriendlyError.
func Humanize(le domain.LastError) FriendlyError {
	lower := strings.ToLower(le.Message)
	for _, p := range messagePatterns {
		for _, s := range p.substrs {
			if strings.Contains(lower, s) {
				fe := p.fe
				fe.Raw = le.Message
				return fe
			}
		}
	}
	if fe, ok := kindErrors[le.Type]; ok {
		fe.Raw = le.Message
		return fe
	}
	return FriendlyError{
		Title: "Unexpected Error",
		Hints: []string{"Try again", "Run with GRAPH_FLEET_LOG_LEVEL=debug for more details"},
		Raw:   le.Message,
	}
}
