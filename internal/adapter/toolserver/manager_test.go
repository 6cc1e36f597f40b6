package toolserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/infra/config"
)

func TestNewManagerRequiresPlatform(t *testing.T) {
	_, err := NewManager(Options{Dial: (&fakeDialer{}).dial})
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestPlatformToolsFilterAndCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	aws, err := env.mgr.PlatformTools(ctx, domain.CloudAWS)
	require.NoError(t, err)
	assert.Equal(t, []string{"list_awscredentials", "fetch_awscredential_sts"}, domain.ToolNames(aws))

	gcp, err := env.mgr.PlatformTools(ctx, domain.CloudGCP)
	require.NoError(t, err)
	assert.Equal(t, []string{"list_gcpcredentials", "fetch_gcpcredential"}, domain.ToolNames(gcp))

	all, err := env.mgr.PlatformTools(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 7)

	// One connection serves every call.
	assert.Len(t, env.dialer.dialsTo("planton_cloud"), 1)
}

func TestPlatformEnvCarriesProviderAndLogLevel(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Provider = domain.CloudAzure
		o.ProjectRoot = "/srv/graph-fleet"
		o.Platform.Env = map[string]string{"EXTRA": "1", "FASTMCP_LOG_LEVEL": "DEBUG"}
	})
	env.platformTools(t)

	dials := env.dialer.dialsTo("planton_cloud")
	require.Len(t, dials, 1)
	assert.Equal(t, map[string]string{
		"EXTRA":             "1",
		"FASTMCP_LOG_LEVEL": "ERROR",
		"CLOUD_PROVIDER":    "azure",
		"GRAPH_FLEET_ROOT":  "/srv/graph-fleet",
	}, dials[0].env)
}

func TestPlatformToolsUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.dialer.failFor["planton_cloud"] = errBoom

	_, err := env.mgr.PlatformTools(context.Background(), domain.CloudAWS)
	require.Error(t, err)
	assert.Equal(t, domain.KindToolProviderUnavailable, domain.KindOf(err))
	assert.ErrorIs(t, err, errBoom)

	// The manager stays uninitialized and a later call reconnects.
	delete(env.dialer.failFor, "planton_cloud")
	tools, err := env.mgr.PlatformTools(context.Background(), domain.CloudAWS)
	require.NoError(t, err)
	assert.Len(t, tools, 2)
}

func TestPlatformListFailureDropsClient(t *testing.T) {
	env := newTestEnv(t)
	env.platform.setListErr(errBoom)

	_, err := env.mgr.PlatformTools(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, 1, env.platform.closeCount())
	assert.Empty(t, env.mgr.Status())
}

func TestListCredentials(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.mgr.ListCredentials(context.Background(), domain.CloudAWS, "org-1", "env-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CredentialSummary{
		{ID: "cred-a", Name: "Prod", AccountID: "111", DefaultRegion: "us-west-2"},
		{ID: "cred-b", Name: "Staging", AccountID: "222", DefaultRegion: "us-east-1"},
	}, got)

	require.Len(t, env.platform.calls, 1)
	call := env.platform.calls[0]
	assert.Equal(t, "list_awscredentials", call.Params.Name)
	assert.Equal(t, map[string]any{"org_id": "org-1", "env_id": "env-1"}, call.Params.Arguments)
}

func TestListCredentialsOmitsEmptyEnv(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.mgr.ListCredentials(context.Background(), domain.CloudAWS, "org-1", "")
	require.NoError(t, err)
	require.Len(t, env.platform.calls, 1)
	assert.Equal(t, map[string]any{"org_id": "org-1"}, env.platform.calls[0].Params.Arguments)
}

func TestListCredentialsFailures(t *testing.T) {
	t.Run("tool error", func(t *testing.T) {
		env := newTestEnv(t)
		env.platform.callFunc = func(_ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errBoom
		}
		_, err := env.mgr.ListCredentials(context.Background(), domain.CloudAWS, "org-1", "")
		require.Error(t, err)
		assert.Equal(t, domain.KindCredentialListingFailed, domain.KindOf(err))
	})

	t.Run("tool reports error", func(t *testing.T) {
		env := newTestEnv(t)
		env.platform.callFunc = func(_ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			res := textResult("organization not found")
			res.IsError = true
			return res, nil
		}
		_, err := env.mgr.ListCredentials(context.Background(), domain.CloudAWS, "org-1", "")
		require.Error(t, err)
		assert.Equal(t, domain.KindCredentialListingFailed, domain.KindOf(err))
		assert.Contains(t, err.Error(), "organization not found")
	})

	t.Run("platform down", func(t *testing.T) {
		env := newTestEnv(t)
		env.dialer.failFor["planton_cloud"] = errBoom
		_, err := env.mgr.ListCredentials(context.Background(), domain.CloudAWS, "org-1", "")
		require.Error(t, err)
		assert.Equal(t, domain.KindCredentialListingFailed, domain.KindOf(err))
	})

	t.Run("listing tool missing", func(t *testing.T) {
		env := newTestEnv(t)
		env.platform.tools = env.platform.tools[1:]
		_, err := env.mgr.ListCredentials(context.Background(), domain.CloudAWS, "org-1", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list_awscredentials")
	})
}

func TestCombinedToolsMintsAndInjectsEnv(t *testing.T) {
	env := newTestEnv(t)
	platform := env.platformTools(t)

	res, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider:      domain.CloudAWS,
		CredentialID:  "cred-a",
		Region:        "us-west-2",
		PlatformTools: platform,
	})
	require.NoError(t, err)
	assert.True(t, res.Minted)
	assert.Equal(t, testEpoch.Add(domain.DefaultCredentialTTL).Unix(), res.ExpiresAt)
	assert.Equal(t, []string{
		"list_awscredentials", "fetch_awscredential_sts", "call_aws", "suggest_aws_commands",
	}, domain.ToolNames(res.Tools))

	dials := env.dialer.dialsTo("aws_api")
	require.Len(t, dials, 1)
	assert.Equal(t, map[string]string{
		"AWS_ACCESS_KEY_ID":     "AKIAcred-a",
		"AWS_SECRET_ACCESS_KEY": "secret-cred-a",
		"AWS_SESSION_TOKEN":     "token-cred-a",
		"AWS_REGION":            "us-west-2",
		"FASTMCP_LOG_LEVEL":     "ERROR",
	}, dials[0].env)

	assert.Equal(t, "cred-a", env.mgr.CurrentCredentialID(domain.CloudAWS))
	assert.Equal(t, res.ExpiresAt, env.mgr.ExpiresAt(domain.CloudAWS))
	assert.True(t, env.mgr.HasValidCredentials(domain.CloudAWS, "cred-a", testEpoch))
	assert.False(t, env.mgr.HasValidCredentials(domain.CloudAWS, "cred-b", testEpoch))
}

func TestCombinedToolsReusesValidClient(t *testing.T) {
	env := newTestEnv(t)
	platform := env.platformTools(t)
	req := domain.ToolSurfaceRequest{Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform}

	_, err := env.mgr.CombinedTools(context.Background(), req)
	require.NoError(t, err)

	env.clock.Set(testEpoch.Add(30 * time.Minute))
	res, err := env.mgr.CombinedTools(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Minted)
	assert.Equal(t, 1, env.platform.callsTo("fetch_awscredential_sts"))
	assert.Len(t, env.dialer.dialsTo("aws_api"), 1)
}

func TestCombinedToolsForceMint(t *testing.T) {
	env := newTestEnv(t)
	platform := env.platformTools(t)
	req := domain.ToolSurfaceRequest{Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform}

	_, err := env.mgr.CombinedTools(context.Background(), req)
	require.NoError(t, err)

	req.ForceMint = true
	res, err := env.mgr.CombinedTools(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Minted)
	assert.Equal(t, 2, env.platform.callsTo("fetch_awscredential_sts"))

	dials := env.dialer.dialsTo("aws_api")
	require.Len(t, dials, 2)
	assert.Equal(t, 1, dials[0].client.closeCount(), "replaced client must be closed")
}

func TestCombinedToolsSwitchReplacesClient(t *testing.T) {
	env := newTestEnv(t)
	platform := env.platformTools(t)

	_, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform,
	})
	require.NoError(t, err)

	_, err = env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider: domain.CloudAWS, CredentialID: "cred-b", PlatformTools: platform,
	})
	require.NoError(t, err)

	dials := env.dialer.dialsTo("aws_api")
	require.Len(t, dials, 2)
	assert.Equal(t, 1, dials[0].client.closeCount())
	assert.Equal(t, "AKIAcred-b", dials[1].env["AWS_ACCESS_KEY_ID"])
	assert.Equal(t, "cred-b", env.mgr.CurrentCredentialID(domain.CloudAWS))
}

func TestCombinedToolsRefreshBuffer(t *testing.T) {
	tests := []struct {
		name     string
		offset   time.Duration
		wantMint bool
	}{
		{"well inside validity", 10 * time.Minute, false},
		{"one second outside buffer", domain.DefaultCredentialTTL - domain.RefreshBuffer - time.Second, false},
		{"exactly at buffer", domain.DefaultCredentialTTL - domain.RefreshBuffer, true},
		{"299s before expiry", domain.DefaultCredentialTTL - 299*time.Second, true},
		{"after expiry", domain.DefaultCredentialTTL + time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			platform := env.platformTools(t)
			req := domain.ToolSurfaceRequest{Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform}

			_, err := env.mgr.CombinedTools(context.Background(), req)
			require.NoError(t, err)

			env.clock.Set(testEpoch.Add(tt.offset))
			res, err := env.mgr.CombinedTools(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMint, res.Minted)
		})
	}
}

func TestCombinedToolsRetriesOnceAfterListFailure(t *testing.T) {
	env := newTestEnv(t)
	platform := env.platformTools(t)
	req := domain.ToolSurfaceRequest{Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform}

	_, err := env.mgr.CombinedTools(context.Background(), req)
	require.NoError(t, err)

	first := env.dialer.dialsTo("aws_api")[0].client
	first.setListErr(errBoom)

	res, err := env.mgr.CombinedTools(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Minted)
	assert.Equal(t, 2, env.platform.callsTo("fetch_awscredential_sts"))
	assert.Equal(t, 1, first.closeCount())
}

func TestCombinedToolsFreshListFailureIsNotRetried(t *testing.T) {
	env := newTestEnv(t)
	env.dialer.provider = func() *fakeClient { return &fakeClient{listErr: errBoom} }
	platform := env.platformTools(t)

	_, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindToolProviderUnavailable, domain.KindOf(err))
	assert.Equal(t, 1, env.platform.callsTo("fetch_awscredential_sts"))
}

func TestCombinedToolsInvalidMintLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Provider = domain.CloudAzure })
	env.mints["fetch_azurecredential"] = func(string) string {
		return `{"subscription_id":"not-a-guid","tenant_id":"` + testAzureTenant + `"}`
	}
	platform, err := env.mgr.PlatformTools(context.Background(), domain.CloudAzure)
	require.NoError(t, err)

	_, err = env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider: domain.CloudAzure, CredentialID: "az-1", PlatformTools: platform,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindCredentialInvalid, domain.KindOf(err))
	assert.NotContains(t, err.Error(), testAzureTenant)

	assert.Empty(t, env.dialer.dialsTo("azure_api"), "no provider client may be constructed")
	assert.Empty(t, env.mgr.CurrentCredentialID(domain.CloudAzure))
	assert.Zero(t, env.mgr.ExpiresAt(domain.CloudAzure))
}

func TestCombinedToolsAzureEnv(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Provider = domain.CloudAzure })
	env.mints["fetch_azurecredential"] = func(string) string {
		return `{"subscription_id":"` + testAzureSub + `","tenant_id":"` + testAzureTenant + `","location":"westeurope","expiration":"2026-03-01T14:00:00Z"}`
	}
	platform, err := env.mgr.PlatformTools(context.Background(), domain.CloudAzure)
	require.NoError(t, err)

	res, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider: domain.CloudAzure, CredentialID: "az-1", Region: "eastus", PlatformTools: platform,
	})
	require.NoError(t, err)
	assert.Equal(t, testEpoch.Add(2*time.Hour).Unix(), res.ExpiresAt)

	dials := env.dialer.dialsTo("azure_api")
	require.Len(t, dials, 1)
	assert.Equal(t, testAzureSub, dials[0].env["AZURE_SUBSCRIPTION_ID"])
	assert.Equal(t, testAzureTenant, dials[0].env["AZURE_TENANT_ID"])
	assert.Equal(t, "westeurope", dials[0].env["AZURE_LOCATION"])
	assert.NotContains(t, dials[0].env, "AZURE_CLIENT_ID")
}

func TestCombinedToolsProviderNotConfigured(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Provider = domain.CloudGCP })
	platform, err := env.mgr.PlatformTools(context.Background(), domain.CloudGCP)
	require.NoError(t, err)

	_, err = env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider: domain.CloudGCP, CredentialID: "gcp-1", PlatformTools: platform,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderNotConfigured)
	assert.Equal(t, domain.KindToolProviderUnavailable, domain.KindOf(err))
	assert.Zero(t, env.platform.callsTo("fetch_gcpcredential"), "must fail before minting")
}

func TestCombinedToolsMintToolMissing(t *testing.T) {
	env := newTestEnv(t)
	env.platform.tools = []mcp.Tool{{Name: "list_awscredentials"}}
	platform := env.platformTools(t)

	_, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMintToolMissing)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	assert.Contains(t, err.Error(), "fetch_awscredential_sts")
}

func TestCombinedToolsFindsMintToolInCachedPlatformList(t *testing.T) {
	env := newTestEnv(t)
	env.platformTools(t)

	res, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider: domain.CloudAWS, CredentialID: "cred-a",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"call_aws", "suggest_aws_commands"}, domain.ToolNames(res.Tools))
}

func TestCombinedToolsRefreshDialFailureKeepsClient(t *testing.T) {
	env := newTestEnv(t)
	platform := env.platformTools(t)
	req := domain.ToolSurfaceRequest{Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform}

	_, err := env.mgr.CombinedTools(context.Background(), req)
	require.NoError(t, err)

	env.dialer.failFor["aws_api"] = errBoom
	req.ForceMint = true
	_, err = env.mgr.CombinedTools(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.KindToolProviderUnavailable, domain.KindOf(err))
	assert.Equal(t, "cred-a", env.mgr.CurrentCredentialID(domain.CloudAWS))
	assert.Zero(t, env.dialer.dialsTo("aws_api")[0].client.closeCount())
}

func TestCombinedToolsFailedSwitchReleasesPreviousClient(t *testing.T) {
	tests := []struct {
		name string
		fail func(env *testEnv)
		kind domain.Kind
	}{
		{"dial failure", func(env *testEnv) { env.dialer.failFor["aws_api"] = errBoom }, domain.KindToolProviderUnavailable},
		{"invalid payload", func(env *testEnv) {
			env.mints["fetch_awscredential_sts"] = func(string) string { return `{"access_key_id":"AKIA"}` }
		}, domain.KindCredentialInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			platform := env.platformTools(t)

			_, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
				Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform,
			})
			require.NoError(t, err)

			tt.fail(env)
			_, err = env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
				Provider: domain.CloudAWS, CredentialID: "cred-b", PlatformTools: platform,
			})
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))
			assert.Empty(t, env.mgr.CurrentCredentialID(domain.CloudAWS))
			assert.False(t, env.mgr.HasValidCredentials(domain.CloudAWS, "cred-a", testEpoch))
			assert.Equal(t, 1, env.dialer.dialsTo("aws_api")[0].client.closeCount())
			assert.NotContains(t, env.mgr.Status(), "aws_api")
		})
	}
}

func TestCombinedToolsMintThrottle(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.MintLimiter = rate.NewLimiter(rate.Every(10*time.Second), 1)
	})
	platform := env.platformTools(t)
	req := domain.ToolSurfaceRequest{Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform, ForceMint: true}

	_, err := env.mgr.CombinedTools(context.Background(), req)
	require.NoError(t, err)

	env.clock.Set(testEpoch.Add(3 * time.Second))
	_, err = env.mgr.CombinedTools(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMintThrottle)
	assert.Contains(t, err.Error(), "retry in 7s")
	assert.Equal(t, 1, env.platform.callsTo("fetch_awscredential_sts"))

	// The refused attempt does not hold a token.
	env.clock.Set(testEpoch.Add(11 * time.Second))
	_, err = env.mgr.CombinedTools(context.Background(), req)
	require.NoError(t, err)
}

func TestDefaultMintThrottleAllowsSwitchAndBack(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.MintLimiter = nil })
	platform := env.platformTools(t)

	for _, id := range []string{"cred-a", "cred-b", "cred-a"} {
		_, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
			Provider: domain.CloudAWS, CredentialID: id, PlatformTools: platform,
		})
		require.NoError(t, err, id)
	}
	assert.Equal(t, "cred-a", env.mgr.CurrentCredentialID(domain.CloudAWS))
	assert.Equal(t, 3, env.platform.callsTo("fetch_awscredential_sts"))
}

func TestCombinedToolsRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{Provider: "oracle", CredentialID: "x"})
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)

	_, err = env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{Provider: domain.CloudAWS})
	assert.ErrorIs(t, err, domain.ErrNoBinding)
}

func TestProviderServerMustBeStdio(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Providers.AWS = config.MCPServer{Name: "aws_api", Transport: "http", URL: "http://aws.internal/mcp"}
	})
	platform := env.platformTools(t)

	_, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	assert.Empty(t, env.dialer.dialsTo("aws_api"))
	assert.Zero(t, env.platform.callsTo("fetch_awscredential_sts"), "no credentials may be minted")
}

func TestReleaseProvider(t *testing.T) {
	env := newTestEnv(t)
	platform := env.platformTools(t)

	_, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform,
	})
	require.NoError(t, err)

	env.mgr.ReleaseProvider(domain.CloudAWS)
	env.mgr.ReleaseProvider(domain.CloudAWS)

	assert.Equal(t, 1, env.dialer.dialsTo("aws_api")[0].client.closeCount())
	assert.False(t, env.mgr.HasValidCredentials(domain.CloudAWS, "cred-a", testEpoch))
	assert.Empty(t, env.mgr.CurrentCredentialID(domain.CloudAWS))
	assert.Equal(t, map[string]string{"planton_cloud": domain.ServerConnected}, env.mgr.Status())
}

func TestCleanupIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	platform := env.platformTools(t)

	_, err := env.mgr.CombinedTools(context.Background(), domain.ToolSurfaceRequest{
		Provider: domain.CloudAWS, CredentialID: "cred-a", PlatformTools: platform,
	})
	require.NoError(t, err)
	providerClient := env.dialer.dialsTo("aws_api")[0].client
	providerClient.closeErr = errors.New("already gone")

	env.mgr.Cleanup(context.Background())
	env.mgr.Cleanup(context.Background())

	assert.Equal(t, 1, env.platform.closeCount())
	assert.Equal(t, 1, providerClient.closeCount())
	assert.Empty(t, env.mgr.Status())
	assert.Empty(t, env.mgr.CurrentCredentialID(domain.CloudAWS))

	// The manager reconnects lazily after cleanup.
	tools, err := env.mgr.PlatformTools(context.Background(), domain.CloudAWS)
	require.NoError(t, err)
	assert.Len(t, tools, 2)
}

func TestCircuitBreakerOpensOnPlatformFailures(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Breaker = config.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute}
	})
	env.platformTools(t)
	env.platform.callFunc = func(_ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, errBoom
	}

	for range 2 {
		_, err := env.mgr.ListCredentials(context.Background(), domain.CloudAWS, "org-1", "")
		require.Error(t, err)
	}
	_, err := env.mgr.ListCredentials(context.Background(), domain.CloudAWS, "org-1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Len(t, env.platform.calls, 2, "open breaker must not reach the server")
}
