// Package oauth drives the Yandex OAuth2 authorization-code flow:
// redirect to the provider, exchange the callback code for a token,
// fetch the user profile. Login is all-or-nothing: no identity is
// produced unless both the exchange and the profile fetch succeed.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/alexjbarnes/diskview/internal/errors"
	"github.com/alexjbarnes/diskview/internal/models"
)

const (
	// userinfoTimeout bounds the profile fetch.
	userinfoTimeout = 10 * time.Second

	// maxUserinfoBytes caps the profile response read.
	maxUserinfoBytes = 64 * 1024
)

// Identity is a completed login: the bearer token and the profile
// fetched with it. Callers persist both atomically.
type Identity struct {
	Token   string
	Profile models.UserProfile
}

// Manager implements the three-step authorization-code flow.
type Manager struct {
	cfg         *oauth2.Config
	userinfoURL string
	httpClient  *http.Client
}

// Options configures a Manager.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// OAuthURL is the provider base, e.g. https://oauth.yandex.ru.
	OAuthURL string

	// UserinfoURL is the profile endpoint base, e.g. https://login.yandex.ru.
	UserinfoURL string

	// HTTPClient overrides the client used for both network calls.
	// Nil means a default client with a 10-second timeout.
	HTTPClient *http.Client
}

// NewManager creates an OAuth manager. The token endpoint expects
// client_id and client_secret in the POST body, so the endpoint is
// configured with AuthStyleInParams.
func NewManager(opts Options) *Manager {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: userinfoTimeout}
	}

	return &Manager{
		cfg: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.OAuthURL + "/authorize",
				TokenURL:  opts.OAuthURL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userinfoURL: opts.UserinfoURL,
		httpClient:  hc,
	}
}

// AuthCodeURL returns the provider authorization URL carrying
// response_type=code, the client ID, the redirect URI and the given
// CSRF state. Pure URL construction, no network call.
func (m *Manager) AuthCodeURL(state string) string {
	return m.cfg.AuthCodeURL(state)
}

// CompleteAuth exchanges the callback code for a token and fetches the
// user profile with it. A failure at either step yields no identity.
func (m *Manager) CompleteAuth(ctx context.Context, code string) (Identity, error) {
	if code == "" {
		return Identity{}, errors.ErrMissingCode
	}

	// Route the exchange through our HTTP client (tests point it at a
	// stub server).
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	tok, err := m.cfg.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", errors.ErrTokenExchange, err)
	}

	profile, err := m.fetchProfile(ctx, tok.AccessToken)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", errors.ErrProfileFetch, err)
	}

	return Identity{Token: tok.AccessToken, Profile: profile}, nil
}

// userinfoResponse mirrors the login.yandex.ru/info payload.
type userinfoResponse struct {
	Login        string `json:"login"`
	RealName     string `json:"real_name"`
	DefaultEmail string `json:"default_email"`
}

func (m *Manager) fetchProfile(ctx context.Context, token string) (models.UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.userinfoURL+"/info", nil)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "OAuth "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("requesting userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserinfoBytes))
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("reading userinfo response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return models.UserProfile{}, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var ui userinfoResponse
	if err := json.Unmarshal(body, &ui); err != nil {
		return models.UserProfile{}, fmt.Errorf("decoding userinfo response: %w", err)
	}

	return models.UserProfile{
		Login:       ui.Login,
		DisplayName: ui.RealName,
		Email:       ui.DefaultEmail,
	}, nil
}
