// Package session manages browser sessions over the state store. A
// session is identified by an opaque cookie; the record behind it holds
// the OAuth token and user profile.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/alexjbarnes/diskview/internal/models"
	"github.com/alexjbarnes/diskview/internal/state"
)

const (
	// CookieName is the browser session cookie.
	CookieName = "diskview_session"

	// sessionIDBytes is the number of random bytes in a session ID
	// (hex-encoded to twice this length).
	sessionIDBytes = 32

	// oauthStateBytes is the number of random bytes in the OAuth CSRF
	// state parameter.
	oauthStateBytes = 16

	// MaxAge bounds a session's life on both ends: the browser drops
	// the cookie after it, and the store sweeps records older than it.
	// The provider-side token expiry is opaque to us, so this is the
	// only lifetime we control.
	MaxAge = 7 * 24 * time.Hour
)

// Manager issues session cookies and loads the records behind them.
type Manager struct {
	store  *state.Store
	secure bool
}

// NewManager creates a session manager. secure controls the cookie's
// Secure flag and should be true in production.
func NewManager(store *state.Store, secure bool) *Manager {
	return &Manager{store: store, secure: secure}
}

// randomHex generates a cryptographically random hex string of the given byte length.
func randomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Begin creates a fresh session record with a random OAuth state and
// sets its cookie on the response. The record is the PendingCallback
// half of the login flow; the callback handler verifies the state and
// attaches the identity.
func (m *Manager) Begin(w http.ResponseWriter) (*models.Session, error) {
	sess := models.Session{
		ID:         randomHex(sessionIDBytes),
		OAuthState: randomHex(oauthStateBytes),
		CreatedAt:  time.Now(),
	}

	if err := m.store.SaveSession(sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	m.setCookie(w, sess.ID, int(MaxAge.Seconds()))

	return &sess, nil
}

// Load returns the session record for the request's cookie, or nil when
// the cookie is absent or names no stored record.
func (m *Manager) Load(r *http.Request) (*models.Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, nil
	}

	sess, err := m.store.GetSession(c.Value)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	return sess, nil
}

// SetIdentity atomically attaches a login identity to a session.
func (m *Manager) SetIdentity(id, token string, profile models.UserProfile) error {
	return m.store.SetIdentity(id, token, profile)
}

// Flush destroys the request's session record and expires its cookie.
// Idempotent: flushing an absent session is a no-op.
func (m *Manager) Flush(w http.ResponseWriter, r *http.Request) error {
	c, err := r.Cookie(CookieName)
	if err == nil && c.Value != "" {
		if err := m.store.DeleteSession(c.Value); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
	}

	m.setCookie(w, "", -1)

	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
