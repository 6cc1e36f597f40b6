package domain

import (
	"fmt"
	"strings"
)

// CloudProvider is the closed set of clouds the runtime can bind credentials for.
type CloudProvider string

const (
	CloudAWS   CloudProvider = "aws"
	CloudGCP   CloudProvider = "gcp"
	CloudAzure CloudProvider = "azure"
)

// CloudProviders lists every supported provider in display order.
var CloudProviders = []CloudProvider{CloudAWS, CloudGCP, CloudAzure}

// ParseCloudProvider normalizes s and rejects anything outside the closed set.
func ParseCloudProvider(s string) (CloudProvider, error) {
	p := CloudProvider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return p, nil
}

// Valid reports whether p is one of the supported providers.
func (p CloudProvider) Valid() bool {
	switch p {
	case CloudAWS, CloudGCP, CloudAzure:
		return true
	}
	return false
}

// Upper is the tag used in user-facing messages ("AWS", "GCP", "AZURE").
func (p CloudProvider) Upper() string { return strings.ToUpper(string(p)) }

// Title is the display name used in instructions.
func (p CloudProvider) Title() string {
	switch p {
	case CloudAWS:
		return "AWS"
	case CloudGCP:
		return "GCP"
	case CloudAzure:
		return "Azure"
	}
	return string(p)
}

// DefaultRegion is the region used when neither the credential nor the
// configuration names one.
func (p CloudProvider) DefaultRegion() string {
	switch p {
	case CloudGCP:
		return "us-central1"
	case CloudAzure:
		return "eastus"
	}
	return "us-east-1"
}

// ListCredentialsTool is the platform tool that lists credential summaries.
func (p CloudProvider) ListCredentialsTool() string {
	return "list_" + string(p) + "credentials"
}

// MintTool is the platform tool that mints short-lived provider credentials.
func (p CloudProvider) MintTool() string {
	if p == CloudAWS {
		return "fetch_awscredential_sts"
	}
	return "fetch_" + string(p) + "credential"
}
