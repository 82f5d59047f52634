// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data: similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// User represents a registered account.
//
// Accounts are created through the registration form (username + password)
// or, when GitHub login is configured, on first GitHub sign-in. A GitHub-linked
// account has no password hash, which is why the `required_without` rule
// below looks at GitHubID.
//
// WHY THE validate TAGS?
// These tags describe the storage schema's own rules. The service layer checks
// the submitted form first, then re-checks the candidate User against these
// rules before it is written. Two checks, two kinds of error message.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username" validate:"required,max=64"`
	PasswordHash string    `json:"-"        validate:"required_without=GitHubID"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Session is a server-side login record. The session cookie carries a signed
// token that names one of these; deleting the row logs the browser out even
// if the token itself has not expired yet.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
