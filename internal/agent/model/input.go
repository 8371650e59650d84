package model

// QueryInput is the public input for one conversation turn.
type QueryInput struct {
	ThreadID       string `json:"thread_id"`
	Query          string `json:"query"`
	UserID         string `json:"user_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`

	// ContextMode selects entity validation behaviour: strict blocks on
	// unknown entity ids, soft only logs. Empty falls back to server config.
	ContextMode string `json:"context_mode,omitempty"`

	// EnabledAccounts narrows grounding to a subset of connected accounts.
	// Empty means every enabled account is in scope.
	EnabledAccounts []string `json:"enabled_accounts,omitempty"`
}

// UserContext builds the per-turn identity and scoping record.
func (in QueryInput) UserContext() UserContext {
	return UserContext{
		UserID:          in.UserID,
		OrganizationID:  in.OrganizationID,
		ContextMode:     in.ContextMode,
		EnabledAccounts: in.EnabledAccounts,
	}
}
