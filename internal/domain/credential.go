package domain

import (
	"context"
	"fmt"
)

// CredentialSummary is the non-secret descriptor of one platform credential.
// The ID is stable: the same ID always describes the same underlying credential.
type CredentialSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AccountID     string `json:"accountId"`
	DefaultRegion string `json:"defaultRegion"`
}

// Label renders the summary as "Name (account)" for prompts and questions.
func (s CredentialSummary) Label() string {
	if s.AccountID == "" {
		return s.Name
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.AccountID)
}

// CredentialStore lists credential summaries for an organization.
type CredentialStore interface {
	ListCredentials(ctx context.Context, provider CloudProvider, orgID, envID string) ([]CredentialSummary, error)
}

// FindCredential returns the candidate with the given id.
func FindCredential(candidates []CredentialSummary, id string) (CredentialSummary, bool) {
	for _, c := range candidates {
		if c.ID == id {
			return c, true
		}
	}
	return CredentialSummary{}, false
}
