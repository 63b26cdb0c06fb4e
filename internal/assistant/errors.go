package assistant

import "errors"

var (
	// ErrNotConfigured means the user has not picked a provider.
	ErrNotConfigured = errors.New("assistant provider is not configured")
	// ErrNoCredential means a provider is picked but no API key is stored for it.
	ErrNoCredential = errors.New("assistant provider has no API key")
	// ErrNotMember means the actor belongs to no organization.
	ErrNotMember = errors.New("actor is not a member of any organization")
)
