package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/adapter/llm"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/adapter/toolserver"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/config"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/usecase"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/usecase/planner"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/usecase/specialization"
)

// loadConfig reads the config file and applies the command-line overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyFlags(cfg, opts)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, opts *rootOptions) {
	if opts.provider != "" {
		cfg.Agent.CloudProvider = opts.provider
	}
	if opts.specialization != "" {
		cfg.Agent.Specialization = opts.specialization
	}
	if opts.model != "" {
		cfg.Agent.Model = opts.model
	}
	if opts.orgID != "" {
		cfg.Session.OrgID = opts.orgID
	}
	if opts.envID != "" {
		cfg.Session.EnvID = opts.envID
	}
}

// serverName returns the configured name of the provider's tool server.
func serverName(cfg *config.Config, p domain.CloudProvider) string {
	if srv, ok := cfg.Providers.Server(string(p)); ok && srv.Name != "" {
		return srv.Name
	}
	return string(p) + "_api"
}

// buildRuntime wires the shared collaborators. Tool-server clients are not
// shared; each session gets its own Manager from the returned factory.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*usecase.Runtime, domain.AgentConfig, error) {
	agentCfg, err := specialization.NewAgentConfig(cfg.Agent)
	if err != nil {
		return nil, domain.AgentConfig{}, err
	}

	model, err := llm.New(ctx, cfg.LLM, agentCfg.Model, logger)
	if err != nil {
		return nil, domain.AgentConfig{}, fmt.Errorf("llm: %w", err)
	}

	plan := planner.New(planner.Options{
		LLM:      model,
		Approver: usecase.NewConfigApprover(agentCfg.ApproveTools, agentCfg.DenyTools),
		Logger:   logger,
	})

	dial := toolserver.NewDialer(logger)
	root := config.ProjectRoot()
	newTools := func(p domain.CloudProvider) (domain.ToolProvider, error) {
		m, err := toolserver.NewManager(toolserver.Options{
			Provider:    p,
			Platform:    cfg.Platform,
			Providers:   cfg.Providers,
			Breaker:     cfg.LLM.CircuitBreaker,
			Dial:        dial,
			Logger:      logger,
			LogLevel:    config.FastMCPLogLevel(),
			ProjectRoot: root,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	rt, err := usecase.NewRuntime(usecase.RuntimeDeps{
		Agent:          agentCfg,
		LLM:            model,
		Planner:        plan,
		NewTools:       newTools,
		DefaultOrgID:   cfg.Session.OrgID,
		DefaultEnvID:   cfg.Session.EnvID,
		PlatformServer: cfg.Platform.Name,
		ProviderServer: serverName(cfg, agentCfg.Provider),
		Logger:         logger,
	})
	if err != nil {
		return nil, domain.AgentConfig{}, err
	}
	return rt, agentCfg, nil
}
