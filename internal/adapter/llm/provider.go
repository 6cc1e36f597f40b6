// Package llm holds the chat model backends used by credential selection and
// the reference planner.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/config"
)

// New builds the provider named by cfg.Type behind a circuit breaker. model
// is the fallback for requests that leave ChatRequest.Model empty.
func New(ctx context.Context, cfg config.LLMConfig, model string, logger *slog.Logger) (domain.LLMProvider, error) {
	var inner domain.LLMProvider
	switch cfg.Type {
	case "", "openai":
		inner = NewOpenAIProvider(cfg, model, logger)
	case "bedrock":
		p, err := NewBedrockProvider(ctx, cfg, model, logger)
		if err != nil {
			return nil, err
		}
		inner = p
	default:
		return nil, fmt.Errorf("%w: unknown llm type %q", domain.ErrConfiguration, cfg.Type)
	}
	return NewCircuitBreakerProvider(inner, cfg.CircuitBreaker, logger), nil
}
