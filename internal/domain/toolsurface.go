package domain

import (
	"context"
	"time"
)

// ToolSurfaceRequest asks for the tool surface of one bound credential.
type ToolSurfaceRequest struct {
	Provider     CloudProvider
	CredentialID string
	// Region is the bound credential's default region.
	Region string
	// PlatformTools are prepended to the result and searched for the
	// minting tool.
	PlatformTools []Tool
	// ForceMint re-mints even when the held credentials look valid.
	ForceMint bool
}

// ToolSurface is the ordered tool list for a bound credential.
type ToolSurface struct {
	// Tools holds the platform tools followed by the provider tools.
	Tools []Tool
	// ExpiresAt is the minted credential expiry in Unix seconds.
	ExpiresAt int64
	Minted    bool
}

// ToolProvider owns the tool-server clients of one session.
type ToolProvider interface {
	CredentialStore
	PlatformTools(ctx context.Context, hint CloudProvider) ([]Tool, error)
	CombinedTools(ctx context.Context, req ToolSurfaceRequest) (*ToolSurface, error)
	HasValidCredentials(provider CloudProvider, credentialID string, now time.Time) bool
	CurrentCredentialID(provider CloudProvider) string
	Status() map[string]string
	ReleaseProvider(provider CloudProvider)
	Cleanup(ctx context.Context)
}
