package toolserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sony/gobreaker/v2"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/config"
)

// Default platform breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// breakerClient routes every call to the platform server through a circuit
// breaker so a failing platform fails fast instead of stalling each turn.
type breakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker[any]
}

func newBreaker(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[any] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "toolserver:" + name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

func (c *breakerClient) ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		return c.inner.ListTools(ctx, request)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	res, _ := out.(*mcp.ListToolsResult)
	return res, nil
}

func (c *breakerClient) CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		return c.inner.CallTool(ctx, request)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	res, _ := out.(*mcp.CallToolResult)
	return res, nil
}

func (c *breakerClient) Close() error { return c.inner.Close() }

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", domain.ErrCircuitOpen, err)
	}
	return err
}
