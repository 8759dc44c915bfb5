// Package models defines types shared across internal packages.
package models

import "time"

// UserProfile is the Yandex account identity fetched once per login.
// Immutable for the lifetime of the session.
type UserProfile struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// PublicResourceRef identifies a published Disk resource. PublicKey is
// the opaque identifier the Cloud API requires in place of a path-based
// principal; Path is the location inside the resource and is supplied
// by the caller for the specific endpoint being hit.
type PublicResourceRef struct {
	PublicKey string
	Path      string
}

// FileEntry is one row of a folder listing, normalized for display.
// Path is URL-encoded so it can be embedded in a download link as-is.
type FileEntry struct {
	Name      string
	Path      string
	Size      int64
	Modified  string
	MediaType string
	PublicKey string
	Preview   string
	MD5       string
}

// Session is a browser session record. Token and Profile are set
// together or not at all: a profile without a credential (or the
// reverse) is never persisted.
type Session struct {
	ID         string       `json:"id"`
	OAuthState string       `json:"oauth_state,omitempty"`
	Token      string       `json:"token,omitempty"`
	Profile    *UserProfile `json:"profile,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Authenticated reports whether the session holds a login identity.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != "" && s.Profile != nil
}
