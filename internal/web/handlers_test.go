package web

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/diskview/internal/models"
	"github.com/alexjbarnes/diskview/internal/oauth"
	"github.com/alexjbarnes/diskview/internal/session"
	"github.com/alexjbarnes/diskview/internal/state"
	"github.com/alexjbarnes/diskview/internal/yadisk"
)

const listingBody = `{"_embedded": {"items": [
	{"type": "file", "name": "a.txt", "path": "disk:/pub/a.txt", "size": 10, "modified": "2024-01-01T00:00:00+00:00", "mime_type": "text/plain"},
	{"type": "dir", "name": "sub", "path": "disk:/pub/sub"},
	{"type": "file", "name": "b.png", "path": "disk:/pub/b.png", "size": 2048, "mime_type": "image/png"}
]}}`

// testApp wires the full handler stack against stub upstream servers.
type testApp struct {
	mux      *http.ServeMux
	sessions *session.Manager

	// diskCalls counts every request hitting the Disk API stub; the
	// gating tests assert it stays at zero.
	diskCalls atomic.Int64

	diskStatus int
	diskBody   string

	userinfoStatus int
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	app := &testApp{
		diskStatus:     http.StatusOK,
		diskBody:       listingBody,
		userinfoStatus: http.StatusOK,
	}

	diskSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.diskCalls.Add(1)

		if r.URL.Path != "/v1/disk/public/resources" {
			http.NotFound(w, r)
			return
		}

		w.WriteHeader(app.diskStatus)
		w.Write([]byte(app.diskBody))
	}))
	t.Cleanup(diskSrv.Close)

	providerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"tok-e2e","token_type":"bearer"}`))
		case "/info":
			w.WriteHeader(app.userinfoStatus)
			w.Write([]byte(`{"login":"alice","real_name":"Alice A","default_email":"alice@example.com"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(providerSrv.Close)

	store, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	app.sessions = session.NewManager(store, false)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	app.mux = NewMux(MuxConfig{
		Sessions: app.sessions,
		OAuth: oauth.NewManager(oauth.Options{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURI:  "http://app.test/auth/callback",
			OAuthURL:     providerSrv.URL,
			UserinfoURL:  providerSrv.URL,
			HTTPClient:   providerSrv.Client(),
		}),
		Disk:   yadisk.NewClient(diskSrv.URL, 100, diskSrv.Client()),
		Logger: logger,
	})

	return app
}

// login creates an authenticated session out of band and returns its cookie.
func (app *testApp) login(t *testing.T) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	sess, err := app.sessions.Begin(rec)
	require.NoError(t, err)
	require.NoError(t, app.sessions.SetIdentity(sess.ID, "tok-test", models.UserProfile{
		Login: "alice",
		Email: "alice@example.com",
	}))

	return sessionCookie(t, rec)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}

	t.Fatal("no session cookie in response")
	return nil
}

func (app *testApp) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.mux.ServeHTTP(rec, r)
	return rec
}

func listRequest(publicURL string, cookie *http.Cookie) *http.Request {
	form := url.Values{"public_url": {publicURL}}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		r.AddCookie(cookie)
	}
	return r
}

// --- gating ---

func TestIndex_UnauthenticatedGetShowsLogin(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in with Yandex")
	assert.Zero(t, app.diskCalls.Load())
}

func TestIndex_UnauthenticatedPostRedirectsHome(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(listRequest("https://disk.yandex.ru/d/AbCdEf", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Zero(t, app.diskCalls.Load(), "gated action must make no network calls")
}

func TestDownload_UnauthenticatedShowsLogin(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/download?path=p&public_key=k", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in with Yandex")
	assert.Zero(t, app.diskCalls.Load())
}

func TestLogout_ThenGatedActionShortCircuits(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)

	rec := app.do(func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/logout", nil)
		r.AddCookie(cookie)
		return r
	}())
	assert.Equal(t, http.StatusFound, rec.Code)

	// The old cookie still names a record that no longer exists.
	rec = app.do(listRequest("https://disk.yandex.ru/d/AbCdEf", cookie))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Zero(t, app.diskCalls.Load(), "no network calls after logout")
}

func TestLogout_Idempotent(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "/logout", nil)
		r.AddCookie(cookie)
		rec := app.do(r)
		assert.Equal(t, http.StatusFound, rec.Code)
	}
}

// --- listing ---

func TestIndex_AuthenticatedGetShowsForm(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	rec := app.do(r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
	assert.Contains(t, rec.Body.String(), "public_url")
}

func TestList_EndToEnd(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)

	rec := app.do(listRequest("https://disk.yandex.ru/d/AbCdEf", cookie))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "a.txt")
	assert.Contains(t, body, "b.png")
	assert.NotContains(t, body, ">sub<", "directories must not be listed")
	assert.Contains(t, body, "https://disk.yandex.ru/d/AbCdEf", "input URL echoed back")
	assert.NotContains(t, body, `class="error"`)
	assert.Equal(t, int64(1), app.diskCalls.Load())
}

func TestList_EmptyURLRendersPlainForm(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)

	rec := app.do(listRequest("", cookie))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `class="error"`)
	assert.Zero(t, app.diskCalls.Load())
}

func TestList_InvalidShareURL(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)

	rec := app.do(listRequest("https://example.com/d/AbCdEf", cookie))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Yandex Disk share link")
	assert.Contains(t, body, "https://example.com/d/AbCdEf", "input URL echoed back on failure")
	assert.Zero(t, app.diskCalls.Load(), "no API call for an unresolvable URL")
}

func TestList_ResourceNotFoundShowsPublicationHint(t *testing.T) {
	app := newTestApp(t)
	app.diskStatus = http.StatusNotFound
	app.diskBody = `{"message": "not found"}`
	cookie := app.login(t)

	rec := app.do(listRequest("https://disk.yandex.ru/d/AbCdEf", cookie))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "explicitly published")
}

func TestList_RemoteAPIErrorShowsStatusAndMessage(t *testing.T) {
	app := newTestApp(t)
	app.diskStatus = http.StatusServiceUnavailable
	app.diskBody = `{"message": "maintenance"}`
	cookie := app.login(t)

	rec := app.do(listRequest("https://disk.yandex.ru/d/AbCdEf", cookie))
	body := rec.Body.String()
	assert.Contains(t, body, "503")
	assert.Contains(t, body, "maintenance")
}

func TestList_MissingEmbeddedShowsFolderHint(t *testing.T) {
	app := newTestApp(t)
	app.diskBody = `{"name": "lonely-file", "type": "file"}`
	cookie := app.login(t)

	rec := app.do(listRequest("https://disk.yandex.ru/d/AbCdEf", cookie))
	assert.Contains(t, rec.Body.String(), "published folder")
}

// --- download ---

func TestDownload_StreamsFile(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)

	// Serve the blob from its own stub so the href in the link
	// response can point somewhere real.
	blobSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Disposition", `attachment; filename="a.txt"`)
		w.Write([]byte("hello-bytes"))
	}))
	t.Cleanup(blobSrv.Close)

	linkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/disk/public/resources/download", r.URL.Path)
		assert.Equal(t, "KEY", r.URL.Query().Get("public_key"))
		assert.Equal(t, "disk:/pub/a.txt", r.URL.Query().Get("path"))
		w.Write([]byte(`{"href": "` + blobSrv.URL + `/f/1"}`))
	}))
	t.Cleanup(linkSrv.Close)

	app.mux = NewMux(MuxConfig{
		Sessions: app.sessions,
		OAuth:    oauth.NewManager(oauth.Options{}),
		Disk:     yadisk.NewClient(linkSrv.URL, 100, linkSrv.Client()),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	r := httptest.NewRequest(http.MethodGet, "/download?public_key=KEY&path="+url.QueryEscape("disk:/pub/a.txt"), nil)
	r.AddCookie(cookie)
	rec := app.do(r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello-bytes", rec.Body.String())
	assert.Equal(t, `attachment; filename="a.txt"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestDownload_MissingParamsShowsError(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)

	r := httptest.NewRequest(http.MethodGet, "/download?public_key=KEY", nil)
	r.AddCookie(cookie)
	rec := app.do(r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "required")
	assert.Zero(t, app.diskCalls.Load())
}

// --- OAuth flow ---

func TestBeginAuth_RedirectsToProvider(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/auth", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/authorize", loc.Path)
	assert.Equal(t, "code", loc.Query().Get("response_type"))
	assert.Equal(t, "client-id", loc.Query().Get("client_id"))
	assert.NotEmpty(t, loc.Query().Get("state"))

	// A pending session cookie is issued alongside the redirect.
	_ = sessionCookie(t, rec)
}

// beginAuth starts the flow and returns the pending cookie and state.
func beginAuth(t *testing.T, app *testApp) (*http.Cookie, string) {
	t.Helper()

	rec := app.do(httptest.NewRequest(http.MethodGet, "/auth", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	return sessionCookie(t, rec), loc.Query().Get("state")
}

func TestAuthCallback_CompletesLogin(t *testing.T) {
	app := newTestApp(t)
	cookie, authState := beginAuth(t, app)

	r := httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-abc&state="+authState, nil)
	r.AddCookie(cookie)
	rec := app.do(r)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	// The session is now authenticated.
	home := httptest.NewRequest(http.MethodGet, "/", nil)
	home.AddCookie(cookie)
	rec = app.do(home)
	assert.Contains(t, rec.Body.String(), "alice")
}

func TestAuthCallback_MissingCode(t *testing.T) {
	app := newTestApp(t)
	cookie, authState := beginAuth(t, app)

	r := httptest.NewRequest(http.MethodGet, "/auth/callback?state="+authState, nil)
	r.AddCookie(cookie)
	rec := app.do(r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no code")
}

func TestAuthCallback_StateMismatch(t *testing.T) {
	app := newTestApp(t)
	cookie, _ := beginAuth(t, app)

	r := httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-abc&state=wrong", nil)
	r.AddCookie(cookie)
	rec := app.do(r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not be verified")
}

func TestAuthCallback_NoPendingSession(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=s", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestAuthCallback_ProfileFetchFailureLeavesSessionUnauthenticated(t *testing.T) {
	app := newTestApp(t)
	app.userinfoStatus = http.StatusInternalServerError
	cookie, authState := beginAuth(t, app)

	r := httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-abc&state="+authState, nil)
	r.AddCookie(cookie)
	rec := app.do(r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "profile")

	// Atomicity: the successful token exchange must not have left a
	// half-written identity behind.
	home := httptest.NewRequest(http.MethodGet, "/", nil)
	home.AddCookie(cookie)
	rec = app.do(home)
	assert.Contains(t, rec.Body.String(), "Sign in with Yandex")
}

// --- misc ---

func TestUnknownPathIs404(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndex_MethodNotAllowed(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
