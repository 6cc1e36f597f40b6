package toolserver

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// Minted payload schemas. They check presence and basic shape only; GUID and
// embedded-key checks run after decoding.
const (
	awsPayloadSchema = `{
  "type": "object",
  "required": ["access_key_id", "secret_access_key", "session_token"],
  "properties": {
    "access_key_id": {"type": "string", "minLength": 1},
    "secret_access_key": {"type": "string", "minLength": 1},
    "session_token": {"type": "string", "minLength": 1},
    "expiration": {"type": ["number", "string"]}
  }
}`

	gcpPayloadSchema = `{
  "type": "object",
  "required": ["service_account_key", "project_id"],
  "properties": {
    "service_account_key": {"type": "string", "minLength": 1},
    "project_id": {"type": "string", "minLength": 1},
    "region": {"type": "string"},
    "expiration": {"type": ["number", "string"]}
  }
}`

	gcpServiceAccountSchema = `{
  "type": "object",
  "required": ["type", "project_id", "private_key", "client_email"],
  "properties": {
    "type": {"type": "string", "minLength": 1},
    "project_id": {"type": "string", "minLength": 1},
    "private_key": {"type": "string", "minLength": 1},
    "client_email": {"type": "string", "minLength": 1}
  }
}`

	azurePayloadSchema = `{
  "type": "object",
  "required": ["subscription_id", "tenant_id"],
  "properties": {
    "subscription_id": {"type": "string", "minLength": 1},
    "tenant_id": {"type": "string", "minLength": 1},
    "client_id": {"type": "string"},
    "client_secret": {"type": "string"},
    "location": {"type": "string"},
    "expiration": {"type": ["number", "string"]}
  }
}`
)

// payloadValidator holds the compiled minted-payload schemas.
type payloadValidator struct {
	byProvider     map[domain.CloudProvider]*jsonschema.Schema
	serviceAccount *jsonschema.Schema
}

func newPayloadValidator() (*payloadValidator, error) {
	v := &payloadValidator{byProvider: make(map[domain.CloudProvider]*jsonschema.Schema)}

	sources := map[string]string{
		"aws.json":    awsPayloadSchema,
		"gcp.json":    gcpPayloadSchema,
		"gcp_sa.json": gcpServiceAccountSchema,
		"azure.json":  azurePayloadSchema,
	}
	compiled := make(map[string]*jsonschema.Schema, len(sources))
	for name, src := range sources {
		s, err := compileSchema(name, src)
		if err != nil {
			return nil, err
		}
		compiled[name] = s
	}

	v.byProvider[domain.CloudAWS] = compiled["aws.json"]
	v.byProvider[domain.CloudGCP] = compiled["gcp.json"]
	v.byProvider[domain.CloudAzure] = compiled["azure.json"]
	v.serviceAccount = compiled["gcp_sa.json"]
	return v, nil
}

func compileSchema(name, src string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	s, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return s, nil
}

// validate checks a decoded payload against the provider's schema.
func (v *payloadValidator) validate(provider domain.CloudProvider, payload any) error {
	s, ok := v.byProvider[provider]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider)
	}
	if err := s.Validate(payload); err != nil {
		return fmt.Errorf("%w: %s payload: %s", domain.ErrCredentialInvalid, provider.Upper(), schemaMessage(err))
	}
	return nil
}

func (v *payloadValidator) validateServiceAccount(key any) error {
	if err := v.serviceAccount.Validate(key); err != nil {
		return fmt.Errorf("%w: GCP service account key: %s", domain.ErrCredentialInvalid, schemaMessage(err))
	}
	return nil
}

// schemaMessage flattens a validation error to its leaf causes so secrets in
// the instance never reach the message.
func schemaMessage(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}
