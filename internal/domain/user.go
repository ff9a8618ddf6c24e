// Package domain contains core domain types for the Easely assistant.
package domain

import (
	"time"
)

// User is a chat participant identified by their page-scoped ID.
type User struct {
	UserID            string     `json:"user_id"`
	Onboarded         bool       `json:"onboarded"`
	Credential        string     `json:"-"`
	CredentialBaseURL string     `json:"credential_base_url,omitempty"`
	CanvasUserID      string     `json:"canvas_user_id,omitempty"`
	Premium           bool       `json:"premium"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	LastSeenAt        time.Time  `json:"last_seen_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasCredential returns true if the user has stored a Canvas access token.
func (u *User) HasCredential() bool {
	return u.Credential != ""
}

// NeedsOnboarding reports whether free text should start the consent flow.
func (u *User) NeedsOnboarding() bool {
	return !u.Onboarded && !u.HasCredential()
}

// UserUpdate is a partial update. Nil fields are left untouched.
type UserUpdate struct {
	Onboarded         *bool
	Credential        *string
	CredentialBaseURL *string
	CanvasUserID      *string
	Premium           *bool
	LastSyncAt        *time.Time
}

// IsEmpty returns true if no field is set.
func (u UserUpdate) IsEmpty() bool {
	return u.Onboarded == nil && u.Credential == nil && u.CredentialBaseURL == nil &&
		u.CanvasUserID == nil && u.Premium == nil && u.LastSyncAt == nil
}

// Ptr returns a pointer to v. Handy for building a UserUpdate.
func Ptr[T any](v T) *T {
	return &v
}
