package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix namespaces config overrides.
const envPrefix = "GRAPH_FLEET_"

// Config is the top-level application configuration.
type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	LLM       LLMConfig       `yaml:"llm"`
	Platform  MCPServer       `yaml:"platform"`
	Providers ProvidersConfig `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
	Session   SessionConfig   `yaml:"session"`
}

// LLMConfig selects the chat model backend used by the selector and planner.
type LLMConfig struct {
	Type           string               `yaml:"type"` // "openai" or "bedrock"
	BaseURL        string               `yaml:"base_url,omitempty"`
	APIKey         string               `yaml:"api_key,omitempty"`
	Region         string               `yaml:"region,omitempty"`
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds breaker settings shared by LLM providers and the
// platform tool server.
type CircuitBreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// MCPServer configures an MCP server connection.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// Configured reports whether the server has something to launch or dial.
func (s MCPServer) Configured() bool {
	return s.Command != "" || s.URL != ""
}

// ProvidersConfig holds the per-cloud tool servers. A zero server means the
// provider is unavailable.
type ProvidersConfig struct {
	AWS   MCPServer `yaml:"aws"`
	GCP   MCPServer `yaml:"gcp"`
	Azure MCPServer `yaml:"azure"`
}

// Server returns the server config for the named provider.
func (p ProvidersConfig) Server(provider string) (MCPServer, bool) {
	switch provider {
	case "aws":
		return p.AWS, true
	case "gcp":
		return p.GCP, true
	case "azure":
		return p.Azure, true
	}
	return MCPServer{}, false
}

// AgentConfig holds the agent defaults applied to new sessions.
type AgentConfig struct {
	CloudProvider       string            `yaml:"cloud_provider"`
	Specialization      string            `yaml:"specialization"`
	Model               string            `yaml:"model"`
	Temperature         float64           `yaml:"temperature"`
	MaxSteps            int               `yaml:"max_steps"`
	MaxRetries          int               `yaml:"max_retries"`
	RecursionLimit      int               `yaml:"recursion_limit"`
	Timeout             time.Duration     `yaml:"timeout"`
	DefaultRegion       string            `yaml:"default_region,omitempty"`
	CustomInstructions  string            `yaml:"custom_instructions,omitempty"`
	InstructionTemplate string            `yaml:"instruction_template,omitempty"`
	TemplateVars        map[string]string `yaml:"template_vars,omitempty"`
	SubAgents           []SubAgentConfig  `yaml:"sub_agents,omitempty"`
	ApproveTools        []string          `yaml:"approve_tools,omitempty"`
	DenyTools           []string          `yaml:"deny_tools,omitempty"`
}

// SubAgentConfig is the YAML shape of a sub-agent override.
type SubAgentConfig struct {
	Name              string   `yaml:"name"`
	Description       string   `yaml:"description"`
	Instructions      string   `yaml:"instructions"`
	TriggerConditions []string `yaml:"trigger_conditions,omitempty"`
	RequiredTools     []string `yaml:"required_tools,omitempty"`
	CloudProvider     string   `yaml:"cloud_provider,omitempty"`
	Enabled           *bool    `yaml:"enabled,omitempty"`
	Priority          int      `yaml:"priority,omitempty"`
}

// SessionConfig holds defaults used when the turn state carries no org/env.
type SessionConfig struct {
	OrgID string `yaml:"org_id,omitempty"`
	EnvID string `yaml:"env_id,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // "noop" or "stdout"
	ServiceName string  `yaml:"service_name,omitempty"`
	SampleRatio float64 `yaml:"sample_ratio,omitempty"` // 0 samples every root span
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Enabled: false, Exporter: "noop"},
		LLM: LLMConfig{
			Type:        "openai",
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
		},
		Platform: MCPServer{
			Name:      "planton_cloud",
			Transport: "stdio",
			Command:   "planton-mcp-server",
		},
		Providers: ProvidersConfig{
			AWS: MCPServer{
				Name:      "aws_api",
				Transport: "stdio",
				Command:   "uvx",
				Args:      []string{"awslabs.aws-api-mcp-server@latest"},
			},
			// GCP and Azure have no production server; they stay unconfigured.
			GCP:   MCPServer{Name: "gcp_api", Transport: "stdio"},
			Azure: MCPServer{Name: "azure_api", Transport: "stdio"},
		},
		Agent: AgentConfig{
			CloudProvider:  "aws",
			Specialization: "general",
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			MaxSteps:       20,
			MaxRetries:     3,
			RecursionLimit: 50,
			Timeout:        600 * time.Second,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and validates.
// A missing file is not an error: defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps GRAPH_FLEET_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv(envPrefix + "LOG_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv(envPrefix + "TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv(envPrefix + "TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	if v := os.Getenv(envPrefix + "LLM_TYPE"); v != "" {
		cfg.LLM.Type = v
	}
	if v := os.Getenv(envPrefix + "LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv(envPrefix + "LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv(envPrefix + "LLM_REGION"); v != "" {
		cfg.LLM.Region = v
	}

	if v := os.Getenv(envPrefix + "PLATFORM_COMMAND"); v != "" {
		cfg.Platform.Command = v
	}
	if v := os.Getenv(envPrefix + "PLATFORM_ARGS"); v != "" {
		cfg.Platform.Args = strings.Fields(v)
	}
	if v := os.Getenv(envPrefix + "PLATFORM_URL"); v != "" {
		cfg.Platform.URL = v
		cfg.Platform.Transport = "http"
	}
	applyServerEnv(&cfg.Providers.AWS, "AWS")
	applyServerEnv(&cfg.Providers.GCP, "GCP")
	applyServerEnv(&cfg.Providers.Azure, "AZURE")

	if v := os.Getenv(envPrefix + "CLOUD_PROVIDER"); v != "" {
		cfg.Agent.CloudProvider = v
	}
	if v := os.Getenv(envPrefix + "SPECIALIZATION"); v != "" {
		cfg.Agent.Specialization = v
	}
	if v := os.Getenv(envPrefix + "MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := os.Getenv(envPrefix + "TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Agent.Temperature = f
		}
	}
	if v := os.Getenv(envPrefix + "MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxSteps = n
		}
	}
	if v := os.Getenv(envPrefix + "RECURSION_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.RecursionLimit = n
		}
	}
	if v := os.Getenv(envPrefix + "TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agent.Timeout = d
		}
	}
	if v := os.Getenv(envPrefix + "DEFAULT_REGION"); v != "" {
		cfg.Agent.DefaultRegion = v
	}

	if v := os.Getenv(envPrefix + "ORG_ID"); v != "" {
		cfg.Session.OrgID = v
	}
	if v := os.Getenv(envPrefix + "ENV_ID"); v != "" {
		cfg.Session.EnvID = v
	}
}

// applyServerEnv lets GRAPH_FLEET_<P>_MCP_COMMAND / _ARGS / _URL point a
// provider at a real tool server.
func applyServerEnv(srv *MCPServer, tag string) {
	if v := os.Getenv(envPrefix + tag + "_MCP_COMMAND"); v != "" {
		srv.Command = v
	}
	if v := os.Getenv(envPrefix + tag + "_MCP_ARGS"); v != "" {
		srv.Args = strings.Fields(v)
	}
	if v := os.Getenv(envPrefix + tag + "_MCP_URL"); v != "" {
		srv.URL = v
		srv.Transport = "http"
	}
}

// FastMCPLogLevel returns the log level passed to tool servers.
func FastMCPLogLevel() string {
	if v := os.Getenv("FASTMCP_LOG_LEVEL"); v != "" {
		return v
	}
	return "ERROR"
}
