package toolserver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// Field aliases accepted in credential listing records, snake and camel case.
var (
	accountKeys = []string{"account_id", "accountId", "project_id", "projectId", "subscription_id", "subscriptionId"}
	regionKeys  = []string{"default_region", "defaultRegion", "region", "location"}
)

// listEnvelopeKeys are the object keys under which a listing may nest its records.
var listEnvelopeKeys = []string{"credentials", "items", "results"}

// parseListing reduces a listing-tool result to non-secret summaries. Records
// without an id are skipped.
func parseListing(provider domain.CloudProvider, raw string) ([]domain.CredentialSummary, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		var envelope map[string]json.RawMessage
		if envErr := json.Unmarshal([]byte(raw), &envelope); envErr != nil {
			return nil, fmt.Errorf("%w: %s listing is not JSON", domain.ErrCredentialListingFailed, provider.Upper())
		}
		found := false
		for _, k := range listEnvelopeKeys {
			if body, ok := envelope[k]; ok {
				if err := json.Unmarshal(body, &records); err != nil {
					return nil, fmt.Errorf("%w: %s listing field %q is not a list", domain.ErrCredentialListingFailed, provider.Upper(), k)
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s listing has no credential list", domain.ErrCredentialListingFailed, provider.Upper())
		}
	}

	out := make([]domain.CredentialSummary, 0, len(records))
	for _, rec := range records {
		id := stringField(rec, "id")
		if id == "" {
			continue
		}
		region := firstField(rec, regionKeys)
		if region == "" {
			region = provider.DefaultRegion()
		}
		out = append(out, domain.CredentialSummary{
			ID:            id,
			Name:          stringField(rec, "name"),
			AccountID:     firstField(rec, accountKeys),
			DefaultRegion: region,
		})
	}
	return out, nil
}

func firstField(rec map[string]any, keys []string) string {
	for _, k := range keys {
		if v := stringField(rec, k); v != "" {
			return v
		}
	}
	return ""
}

// stringField renders scalar fields as strings; account ids are often numeric.
func stringField(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case json.Number:
		return v.String()
	}
	return ""
}
