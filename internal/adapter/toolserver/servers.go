package toolserver

import (
	"maps"
	"strings"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/config"
)

// Environment keys set on every tool server.
const (
	envLogLevel      = "FASTMCP_LOG_LEVEL"
	envCloudProvider = "CLOUD_PROVIDER"
	envProjectRoot   = "GRAPH_FLEET_ROOT"
)

// platformEnv composes the platform server environment. Static entries from
// config are overridden by the runtime ones.
func platformEnv(srv config.MCPServer, provider domain.CloudProvider, logLevel, root string) map[string]string {
	env := maps.Clone(srv.Env)
	if env == nil {
		env = make(map[string]string)
	}
	env[envLogLevel] = logLevel
	if provider.Valid() {
		env[envCloudProvider] = string(provider)
	}
	if root != "" {
		env[envProjectRoot] = root
	}
	return env
}

// providerEnv composes a provider server environment from static config,
// ambient identifiers and the minted credential, in increasing precedence.
func providerEnv(srv config.MCPServer, minted *MintedCredential, region, logLevel string) map[string]string {
	env := maps.Clone(srv.Env)
	if env == nil {
		env = make(map[string]string)
	}
	maps.Copy(env, config.AmbientEnv(string(minted.Provider)))
	maps.Copy(env, minted.Env(region))
	env[envLogLevel] = logLevel
	return env
}

// resolveRegion picks the region for a provider server: the minted payload,
// then the bound credential, then the process environment, then the
// provider default.
func resolveRegion(provider domain.CloudProvider, minted *MintedCredential, requested string) string {
	if r := minted.Region(); r != "" {
		return r
	}
	if requested != "" {
		return requested
	}
	if r := config.RegionFromEnv(string(provider)); r != "" {
		return r
	}
	return provider.DefaultRegion()
}

// filterPlatformTools keeps tools whose names mention the provider tag. AWS
// also keeps STS tools.
func filterPlatformTools(tools []domain.Tool, hint domain.CloudProvider) []domain.Tool {
	if hint == "" {
		return tools
	}
	out := make([]domain.Tool, 0, len(tools))
	for _, t := range tools {
		if matchesProvider(t.Name(), hint) {
			out = append(out, t)
		}
	}
	return out
}

func matchesProvider(name string, provider domain.CloudProvider) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, string(provider)) {
		return true
	}
	return provider == domain.CloudAWS && strings.Contains(lower, "sts")
}
