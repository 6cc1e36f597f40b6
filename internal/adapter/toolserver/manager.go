// Package toolserver manages the MCP tool servers of one agent session: the
// shared platform server that lists and mints credentials, and one provider
// server per cloud launched with freshly minted credentials.
package toolserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/config"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/tracer"
)

// Default mint throttle: four mints back to back, then one every ten seconds.
// Four covers a switch away and back plus a refresh.
const (
	defaultMintBurst    = 4
	defaultMintInterval = 10 * time.Second
)

// cleanupParallelism caps concurrent client shutdowns.
const cleanupParallelism = 4

// Options configures a Manager.
type Options struct {
	// Provider is the session's cloud; it tags the platform server env.
	Provider  domain.CloudProvider
	Platform  config.MCPServer
	Providers config.ProvidersConfig
	Breaker   config.CircuitBreakerConfig

	Dial   DialFunc
	Logger *slog.Logger
	Now    func() time.Time

	// MintLimiter throttles credential mints. Nil uses the default throttle.
	MintLimiter *rate.Limiter
	// LogLevel is passed to every server as FASTMCP_LOG_LEVEL.
	LogLevel    string
	ProjectRoot string
}

type providerConn struct {
	server       string
	client       Client
	credentialID string
	expiresAt    int64
}

// Manager owns the tool-server clients of a single session. It is safe for
// concurrent use; operations are serialized.
type Manager struct {
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
	breaker   *gobreaker.CircuitBreaker[any]
	limiter   *rate.Limiter
	validator *payloadValidator

	mu            sync.Mutex
	platform      Client
	platformTools []domain.Tool
	conns         map[domain.CloudProvider]*providerConn
}

// NewManager creates a Manager. No server is started until first use.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dial == nil {
		return nil, fmt.Errorf("%w: tool server dialer is required", domain.ErrConfiguration)
	}
	if !opts.Platform.Configured() {
		return nil, fmt.Errorf("%w: platform tool server is not configured", domain.ErrConfiguration)
	}
	validator, err := newPayloadValidator()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limiter := opts.MintLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(defaultMintInterval), defaultMintBurst)
	}
	if opts.LogLevel == "" {
		opts.LogLevel = config.FastMCPLogLevel()
	}
	if opts.Platform.Name == "" {
		opts.Platform.Name = "platform"
	}

	return &Manager{
		opts:      opts,
		logger:    logger,
		now:       now,
		breaker:   newBreaker(opts.Platform.Name, opts.Breaker, logger),
		limiter:   limiter,
		validator: validator,
		conns:     make(map[domain.CloudProvider]*providerConn),
	}, nil
}

// PlatformTools returns the platform server's tools, connecting on first use.
// A non-empty hint keeps only tools whose names mention that provider.
func (m *Manager) PlatformTools(ctx context.Context, hint domain.CloudProvider) ([]domain.Tool, error) {
	ctx, span := tracer.StartSpan(ctx, "toolserver.platform_tools")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	tools, err := m.platformToolsLocked(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	filtered := filterPlatformTools(tools, hint)
	span.SetAttributes(attribute.Int(tracer.AttrToolCount, len(filtered)))
	tracer.SetOK(span)
	return filtered, nil
}

func (m *Manager) platformToolsLocked(ctx context.Context) ([]domain.Tool, error) {
	if m.platformTools != nil {
		return m.platformTools, nil
	}
	name := m.opts.Platform.Name

	if m.platform == nil {
		env := platformEnv(m.opts.Platform, m.opts.Provider, m.opts.LogLevel, m.opts.ProjectRoot)
		c, err := m.opts.Dial(ctx, m.opts.Platform, env)
		if err != nil {
			return nil, unavailable(fmt.Sprintf("connect platform server %q", name), err)
		}
		m.platform = &breakerClient{inner: c, breaker: m.breaker}
	}

	tools, err := listTools(ctx, name, m.platform, m.logger)
	if err != nil {
		m.closeClient(name, m.platform)
		m.platform = nil
		return nil, unavailable(fmt.Sprintf("list platform server %q tools", name), err)
	}
	if tools == nil {
		tools = []domain.Tool{}
	}
	m.platformTools = tools
	m.logger.Info("platform tools discovered", "server", name, "count", len(tools))
	return tools, nil
}

// ListCredentials implements domain.CredentialStore using the platform
// server's listing tool.
func (m *Manager) ListCredentials(ctx context.Context, provider domain.CloudProvider, orgID, envID string) ([]domain.CredentialSummary, error) {
	ctx, span := tracer.StartSpan(ctx, "toolserver.list_credentials")
	defer span.End()
	span.SetAttributes(attribute.String(tracer.AttrProvider, string(provider)))

	m.mu.Lock()
	tools, err := m.platformToolsLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrCredentialListingFailed, err)
		tracer.RecordError(span, err)
		return nil, err
	}

	name := provider.ListCredentialsTool()
	tool, ok := findServerTool(tools, name)
	if !ok {
		err := fmt.Errorf("%w: platform tool %s is not available", domain.ErrCredentialListingFailed, name)
		tracer.RecordError(span, err)
		return nil, err
	}

	args := map[string]any{"org_id": orgID}
	if envID != "" {
		args["env_id"] = envID
	}
	res, err := tool.call(ctx, args)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", domain.ErrCredentialListingFailed, name, err)
		tracer.RecordError(span, err)
		return nil, err
	}
	if res != nil && res.IsError {
		err := fmt.Errorf("%w: %s: %s", domain.ErrCredentialListingFailed, name, extractContent(res))
		tracer.RecordError(span, err)
		return nil, err
	}

	summaries, err := parseListing(provider, extractContent(res))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("credentials.count", len(summaries)))
	tracer.SetOK(span)
	return summaries, nil
}

// CombinedTools guarantees the provider client is bound to the requested
// credential with at least RefreshBuffer of validity left, minting and
// relaunching the provider server when that does not hold. A failed listing
// on a reused client is retried once after a forced mint. A client bound to
// another credential is released before minting; a refresh of the same
// credential replaces the client only after the mint validates and its
// server starts.
func (m *Manager) CombinedTools(ctx context.Context, req domain.ToolSurfaceRequest) (*domain.ToolSurface, error) {
	const op = "Manager.CombinedTools"

	ctx, span := tracer.StartSpan(ctx, "toolserver.combined_tools")
	defer span.End()
	span.SetAttributes(tracer.BindingAttrs(string(req.Provider), req.CredentialID, 0)...)

	if !req.Provider.Valid() {
		err := domain.NewDomainError(op, domain.ErrUnknownProvider, string(req.Provider))
		tracer.RecordError(span, err)
		return nil, err
	}
	if req.CredentialID == "" {
		err := domain.NewDomainError(op, fmt.Errorf("%w: %w", domain.ErrConfiguration, domain.ErrNoBinding), "")
		tracer.RecordError(span, err)
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !req.ForceMint && m.validLocked(req.Provider, req.CredentialID, now) {
		conn := m.conns[req.Provider]
		tools, err := listTools(ctx, conn.server, conn.client, m.logger)
		if err == nil {
			span.SetAttributes(attribute.Bool("credential.minted", false))
			tracer.SetOK(span)
			return combine(req.PlatformTools, tools, conn.expiresAt, false), nil
		}
		m.logger.Warn("provider tool listing failed, re-minting",
			"provider", req.Provider, "credential_id", req.CredentialID, "error", err)
	}

	conn, err := m.mintLocked(ctx, op, req, now)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tools, err := listTools(ctx, conn.server, conn.client, m.logger)
	if err != nil {
		err = unavailable(fmt.Sprintf("list %s server %q tools", req.Provider.Upper(), conn.server), err)
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("credential.minted", true), attribute.Int(tracer.AttrToolCount, len(tools)))
	tracer.SetOK(span)
	return combine(req.PlatformTools, tools, conn.expiresAt, true), nil
}

// mintLocked mints credentials for req, starts a provider server with them
// and swaps it in for the previous one.
func (m *Manager) mintLocked(ctx context.Context, op string, req domain.ToolSurfaceRequest, now time.Time) (*providerConn, error) {
	p := req.Provider

	srv, _ := m.opts.Providers.Server(string(p))
	if !srv.Configured() {
		return nil, domain.NewDomainError(op, domain.ErrProviderNotConfigured, p.Upper())
	}
	if srv.Name == "" {
		srv.Name = string(p) + "_api"
	}
	// Credentials reach the server through its environment.
	if srv.Transport == "http" {
		return nil, domain.NewDomainError(op, domain.ErrConfiguration,
			fmt.Sprintf("%s server %q must use stdio to receive credentials", p.Upper(), srv.Name))
	}

	if old := m.conns[p]; old != nil && old.credentialID != req.CredentialID {
		delete(m.conns, p)
		m.closeClient(old.server, old.client)
		m.logger.Info("provider client released for credential switch",
			"provider", p, "from", old.credentialID, "to", req.CredentialID)
	}

	mintName := p.MintTool()
	mintTool, ok := findServerTool(req.PlatformTools, mintName)
	if !ok {
		// The caller may have passed a provider-filtered list.
		mintTool, ok = findServerTool(m.platformTools, mintName)
	}
	if !ok {
		return nil, domain.NewDomainError(op, domain.ErrMintToolMissing, mintName)
	}

	if err := m.reserveMint(op, p, now); err != nil {
		return nil, err
	}

	res, err := mintTool.call(ctx, map[string]any{"credential_id": req.CredentialID})
	if err != nil {
		return nil, unavailable(fmt.Sprintf("call %s", mintName), err)
	}
	if res != nil && res.IsError {
		return nil, domain.NewDomainError(op, domain.ErrCredentialInvalid, mintName+" reported an error")
	}

	minted, err := m.validator.parseMinted(p, extractContent(res), now)
	if err != nil {
		m.logger.Warn("minted credential rejected",
			"provider", p, "credential_id", req.CredentialID, "error", err)
		return nil, err
	}

	region := resolveRegion(p, minted, req.Region)
	client, err := m.opts.Dial(ctx, srv, providerEnv(srv, minted, region, m.opts.LogLevel))
	if err != nil {
		return nil, unavailable(fmt.Sprintf("start %s server %q", p.Upper(), srv.Name), err)
	}

	if old := m.conns[p]; old != nil {
		m.closeClient(old.server, old.client)
	}
	conn := &providerConn{
		server:       srv.Name,
		client:       client,
		credentialID: req.CredentialID,
		expiresAt:    minted.ExpiresAt,
	}
	m.conns[p] = conn

	m.logger.Info("provider credentials minted",
		"provider", p,
		"credential_id", req.CredentialID,
		"region", region,
		"expires_at", minted.ExpiresAt)
	return conn, nil
}

// reserveMint takes a mint token or reports how long until one frees up.
func (m *Manager) reserveMint(op string, p domain.CloudProvider, now time.Time) error {
	r := m.limiter.ReserveN(now, 1)
	if !r.OK() {
		return domain.NewDomainError(op, domain.ErrMintThrottle, p.Upper())
	}
	wait := r.DelayFrom(now)
	if wait == 0 {
		return nil
	}
	r.CancelAt(now)
	return domain.NewDomainError(op, domain.ErrMintThrottle,
		fmt.Sprintf("%s credentials were minted too often, retry in %s", p.Upper(), wait.Round(time.Second)))
}

// HasValidCredentials reports whether the provider client is bound to
// credentialID and stays valid for at least RefreshBuffer past now.
func (m *Manager) HasValidCredentials(provider domain.CloudProvider, credentialID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validLocked(provider, credentialID, now)
}

func (m *Manager) validLocked(provider domain.CloudProvider, credentialID string, now time.Time) bool {
	conn := m.conns[provider]
	if conn == nil || conn.client == nil || conn.credentialID != credentialID {
		return false
	}
	return now.Add(domain.RefreshBuffer).Before(time.Unix(conn.expiresAt, 0))
}

// CurrentCredentialID returns the credential the provider client is bound to.
func (m *Manager) CurrentCredentialID(provider domain.CloudProvider) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn := m.conns[provider]; conn != nil {
		return conn.credentialID
	}
	return ""
}

// ExpiresAt returns the held credential expiry in Unix seconds, or 0.
func (m *Manager) ExpiresAt(provider domain.CloudProvider) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn := m.conns[provider]; conn != nil {
		return conn.expiresAt
	}
	return 0
}

// Status reports the connection state of every server the manager knows.
func (m *Manager) Status() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	if m.platform != nil {
		out[m.opts.Platform.Name] = domain.ServerConnected
	}
	for _, conn := range m.conns {
		out[conn.server] = domain.ServerConnected
	}
	return out
}

// ReleaseProvider shuts down the provider client and forgets its credential.
func (m *Manager) ReleaseProvider(provider domain.CloudProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn := m.conns[provider]
	if conn == nil {
		return
	}
	delete(m.conns, provider)
	m.closeClient(conn.server, conn.client)
	m.logger.Info("provider client released", "provider", provider, "credential_id", conn.credentialID)
}

// Cleanup closes every client and resets all state. Close errors are logged
// and swallowed; calling Cleanup again is a no-op.
func (m *Manager) Cleanup(ctx context.Context) {
	m.mu.Lock()
	type closer struct {
		name   string
		client Client
	}
	var closers []closer
	if m.platform != nil {
		closers = append(closers, closer{m.opts.Platform.Name, m.platform})
	}
	for _, conn := range m.conns {
		closers = append(closers, closer{conn.server, conn.client})
	}
	m.platform = nil
	m.platformTools = nil
	m.conns = make(map[domain.CloudProvider]*providerConn)
	m.mu.Unlock()

	if len(closers) == 0 {
		return
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(cleanupParallelism)
	for _, c := range closers {
		g.Go(func() error {
			if err := c.client.Close(); err != nil {
				m.logger.Warn("tool server close error", "server", c.name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	m.logger.Debug("tool servers closed", "count", len(closers))
}

func (m *Manager) closeClient(name string, c Client) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		m.logger.Warn("tool server close error", "server", name, "error", err)
	}
}

func combine(platform, provider []domain.Tool, expiresAt int64, minted bool) *domain.ToolSurface {
	tools := make([]domain.Tool, 0, len(platform)+len(provider))
	tools = append(tools, platform...)
	tools = append(tools, provider...)
	return &domain.ToolSurface{Tools: tools, ExpiresAt: expiresAt, Minted: minted}
}

// unavailable classifies err as ToolProviderUnavailable unless it already
// carries that kind.
func unavailable(what string, err error) error {
	if errors.Is(err, domain.ErrToolProviderUnavailable) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrToolProviderUnavailable, what, err)
}

var (
	_ domain.CredentialStore = (*Manager)(nil)
	_ domain.ToolProvider    = (*Manager)(nil)
)
