package toolserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// mintSource tags AWS credentials minted through the platform.
const mintSource = "PlatformSTS"

// MintedCredential is a validated short-lived credential. Exactly one of the
// provider fields is set. It never leaves the manager except as the env of a
// provider tool server.
type MintedCredential struct {
	Provider  domain.CloudProvider
	ExpiresAt int64 // Unix seconds

	AWS   *aws.Credentials
	GCP   *GCPCredential
	Azure *AzureCredential
}

// GCPCredential is a service-account key bound to a project.
type GCPCredential struct {
	ServiceAccountKey string
	ProjectID         string
	Region            string
}

// AzureCredential identifies a subscription and optionally a service principal.
type AzureCredential struct {
	SubscriptionID string
	TenantID       string
	ClientID       string
	ClientSecret   string
	Location       string
}

type awsPayload struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
}

type gcpPayload struct {
	ServiceAccountKey string `json:"service_account_key"`
	ProjectID         string `json:"project_id"`
	Region            string `json:"region"`
}

type azurePayload struct {
	SubscriptionID string `json:"subscription_id"`
	TenantID       string `json:"tenant_id"`
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	Location       string `json:"location"`
}

// parseMinted decodes and validates a minting-tool result. Any shape
// violation is reported as ErrCredentialInvalid without echoing secrets.
func (v *payloadValidator) parseMinted(provider domain.CloudProvider, raw string, now time.Time) (*MintedCredential, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s payload is not a JSON object", domain.ErrCredentialInvalid, provider.Upper())
	}
	if err := v.validate(provider, doc); err != nil {
		return nil, err
	}

	exp, err := parseExpiration(doc["expiration"], now)
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", domain.ErrCredentialInvalid, provider.Upper(), err)
	}

	out := &MintedCredential{Provider: provider, ExpiresAt: exp}
	switch provider {
	case domain.CloudAWS:
		var p awsPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("%w: AWS payload: %v", domain.ErrCredentialInvalid, err)
		}
		out.AWS = &aws.Credentials{
			AccessKeyID:     p.AccessKeyID,
			SecretAccessKey: p.SecretAccessKey,
			SessionToken:    p.SessionToken,
			Source:          mintSource,
			CanExpire:       true,
			Expires:         time.Unix(exp, 0),
		}
	case domain.CloudGCP:
		var p gcpPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("%w: GCP payload: %v", domain.ErrCredentialInvalid, err)
		}
		var key any
		if err := json.Unmarshal([]byte(p.ServiceAccountKey), &key); err != nil {
			return nil, fmt.Errorf("%w: GCP service account key is not valid JSON", domain.ErrCredentialInvalid)
		}
		if err := v.validateServiceAccount(key); err != nil {
			return nil, err
		}
		out.GCP = &GCPCredential{ServiceAccountKey: p.ServiceAccountKey, ProjectID: p.ProjectID, Region: p.Region}
	case domain.CloudAzure:
		var p azurePayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("%w: AZURE payload: %v", domain.ErrCredentialInvalid, err)
		}
		if err := validateAzure(p); err != nil {
			return nil, err
		}
		out.Azure = &AzureCredential{
			SubscriptionID: p.SubscriptionID,
			TenantID:       p.TenantID,
			ClientID:       p.ClientID,
			ClientSecret:   p.ClientSecret,
			Location:       p.Location,
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider)
	}
	return out, nil
}

// canonicalGUID reports whether s is a hyphenated 8-4-4-4-12 GUID. uuid.Parse
// alone also takes braces, a urn:uuid: prefix and bare hex.
func canonicalGUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func validateAzure(p azurePayload) error {
	if !canonicalGUID(p.SubscriptionID) {
		return fmt.Errorf("%w: AZURE subscription_id is not a GUID", domain.ErrCredentialInvalid)
	}
	if !canonicalGUID(p.TenantID) {
		return fmt.Errorf("%w: AZURE tenant_id is not a GUID", domain.ErrCredentialInvalid)
	}
	if p.ClientID == "" {
		return nil
	}
	if !canonicalGUID(p.ClientID) {
		return fmt.Errorf("%w: AZURE client_id is not a GUID", domain.ErrCredentialInvalid)
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("%w: AZURE client_secret is required when client_id is set", domain.ErrCredentialInvalid)
	}
	return nil
}

// parseExpiration accepts an absent value (now plus the default TTL), Unix
// seconds as a number or numeric string, or an RFC 3339 timestamp.
func parseExpiration(v any, now time.Time) (int64, error) {
	switch e := v.(type) {
	case nil:
		return now.Add(domain.DefaultCredentialTTL).Unix(), nil
	case json.Number:
		if n, err := e.Int64(); err == nil {
			return n, nil
		}
		f, err := e.Float64()
		if err != nil {
			return 0, fmt.Errorf("expiration %q is not a number", e.String())
		}
		return int64(f), nil
	case float64:
		return int64(e), nil
	case string:
		if n, err := strconv.ParseInt(e, 10, 64); err == nil {
			return n, nil
		}
		t, err := time.Parse(time.RFC3339, e)
		if err != nil {
			return 0, fmt.Errorf("expiration is neither Unix seconds nor RFC 3339")
		}
		return t.Unix(), nil
	}
	return 0, fmt.Errorf("expiration has unsupported type %T", v)
}

// Region is the region carried by the minted payload itself, if any.
func (m *MintedCredential) Region() string {
	switch {
	case m.GCP != nil:
		return m.GCP.Region
	case m.Azure != nil:
		return m.Azure.Location
	}
	return ""
}

// Env renders the credential as the environment of a provider tool server.
func (m *MintedCredential) Env(region string) map[string]string {
	env := make(map[string]string)
	switch {
	case m.AWS != nil:
		env["AWS_ACCESS_KEY_ID"] = m.AWS.AccessKeyID
		env["AWS_SECRET_ACCESS_KEY"] = m.AWS.SecretAccessKey
		env["AWS_SESSION_TOKEN"] = m.AWS.SessionToken
		env["AWS_REGION"] = region
	case m.GCP != nil:
		env["GOOGLE_APPLICATION_CREDENTIALS_JSON"] = m.GCP.ServiceAccountKey
		env["GOOGLE_CLOUD_PROJECT"] = m.GCP.ProjectID
		env["GOOGLE_CLOUD_REGION"] = region
	case m.Azure != nil:
		env["AZURE_SUBSCRIPTION_ID"] = m.Azure.SubscriptionID
		env["AZURE_TENANT_ID"] = m.Azure.TenantID
		if m.Azure.ClientID != "" {
			env["AZURE_CLIENT_ID"] = m.Azure.ClientID
			env["AZURE_CLIENT_SECRET"] = m.Azure.ClientSecret
		}
		env["AZURE_LOCATION"] = region
	}
	return env
}

// Payload renders the credential back into the minting-tool wire shape.
// Parsing the result yields an equal credential.
func (m *MintedCredential) Payload() ([]byte, error) {
	doc := map[string]any{"expiration": m.ExpiresAt}
	switch {
	case m.AWS != nil:
		doc["access_key_id"] = m.AWS.AccessKeyID
		doc["secret_access_key"] = m.AWS.SecretAccessKey
		doc["session_token"] = m.AWS.SessionToken
	case m.GCP != nil:
		doc["service_account_key"] = m.GCP.ServiceAccountKey
		doc["project_id"] = m.GCP.ProjectID
		if m.GCP.Region != "" {
			doc["region"] = m.GCP.Region
		}
	case m.Azure != nil:
		doc["subscription_id"] = m.Azure.SubscriptionID
		doc["tenant_id"] = m.Azure.TenantID
		if m.Azure.ClientID != "" {
			doc["client_id"] = m.Azure.ClientID
		}
		if m.Azure.ClientSecret != "" {
			doc["client_secret"] = m.Azure.ClientSecret
		}
		if m.Azure.Location != "" {
			doc["location"] = m.Azure.Location
		}
	default:
		return nil, fmt.Errorf("%w: empty minted credential", domain.ErrCredentialInvalid)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}
