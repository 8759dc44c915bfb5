// Package web provides the HTTP surface of diskview: session-gated
// handlers for listing and downloading, the OAuth entry points, and the
// HTML pages they render. Every domain error is converted to a
// user-visible message here; none propagate to the renderer.
package web

import (
	stderrors "errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/alexjbarnes/diskview/internal/errors"
	"github.com/alexjbarnes/diskview/internal/models"
	"github.com/alexjbarnes/diskview/internal/oauth"
	"github.com/alexjbarnes/diskview/internal/publicurl"
	"github.com/alexjbarnes/diskview/internal/session"
	"github.com/alexjbarnes/diskview/internal/yadisk"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Sessions *session.Manager
	OAuth    *oauth.Manager
	Disk     *yadisk.Client
	Logger   *slog.Logger
}

// NewMux builds the HTTP mux: the index (login or listing), download,
// and the OAuth begin/callback/logout endpoints.
func NewMux(cfg MuxConfig) *http.ServeMux {
	h := &handlers{
		sessions: cfg.Sessions,
		oauth:    cfg.OAuth,
		disk:     cfg.Disk,
		logger:   cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleIndex)
	mux.HandleFunc("/download", h.handleDownload)
	mux.HandleFunc("/auth", h.handleBeginAuth)
	mux.HandleFunc("/auth/callback", h.handleAuthCallback)
	mux.HandleFunc("/logout", h.handleLogout)

	return mux
}

type handlers struct {
	sessions *session.Manager
	oauth    *oauth.Manager
	disk     *yadisk.Client
	logger   *slog.Logger
}

// gate loads the session and reports whether it is authenticated. An
// unauthenticated request is short-circuited with no side effects and
// no outbound calls: GET gets the login page, anything else a redirect
// home.
func (h *handlers) gate(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	sess, err := h.sessions.Load(r)
	if err != nil {
		h.logger.Error("loading session", slog.String("error", err.Error()))
		h.renderError(w, "Internal error, please try again.")

		return nil, false
	}

	if sess.Authenticated() {
		return sess, true
	}

	if r.Method == http.MethodGet {
		h.render(w, loginPage, nil)
	} else {
		http.Redirect(w, r, "/", http.StatusFound)
	}

	return nil, false
}

func (h *handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, ok := h.gate(w, r)
		if !ok {
			return
		}

		h.render(w, indexPage, indexData{User: viewUser(sess)})
	case http.MethodPost:
		h.handleList(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleList resolves the submitted share link, lists the folder and
// renders the file table. Whatever fails, the input URL is echoed back
// alongside the message.
func (h *handlers) handleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.gate(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.render(w, indexPage, indexData{User: viewUser(sess), Error: "Invalid form submission."})
		return
	}

	publicURL := strings.TrimSpace(r.PostFormValue("public_url"))

	data := indexData{User: viewUser(sess), PublicURL: publicURL}
	if publicURL == "" {
		h.render(w, indexPage, data)
		return
	}

	files, err := h.listFolder(r, sess, publicURL)
	if err != nil {
		h.logger.Debug("listing failed",
			slog.String("public_url", publicURL),
			slog.String("error", err.Error()),
		)

		data.Error = userMessage(err)
		h.render(w, indexPage, data)

		return
	}

	data.Files = files
	h.render(w, indexPage, data)
}

func (h *handlers) listFolder(r *http.Request, sess *models.Session, publicURL string) ([]fileRow, error) {
	ref, err := publicurl.Resolve(publicURL)
	if err != nil {
		return nil, err
	}

	// Empty path means the root of the public folder.
	list, err := h.disk.ListPublicFolder(r.Context(), ref, sess.Token)
	if err != nil {
		return nil, err
	}

	entries, err := yadisk.MapItems(list, ref.PublicKey)
	if err != nil {
		return nil, err
	}

	rows := make([]fileRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, fileRow{
			Name:      e.Name,
			MediaType: e.MediaType,
			Size:      e.Size,
			Modified:  e.Modified,
			// e.Path is already URL-encoded by the mapper.
			Href: template.URL("/download?public_key=" + url.QueryEscape(e.PublicKey) + "&path=" + e.Path),
		})
	}

	return rows, nil
}

// handleDownload performs the two-step download and streams the file to
// the browser. A client disconnect mid-stream simply abandons the copy.
func (h *handlers) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.gate(w, r)
	if !ok {
		return
	}

	path := r.URL.Query().Get("path")
	publicKey := r.URL.Query().Get("public_key")

	if path == "" || publicKey == "" {
		h.render(w, indexPage, indexData{
			User:  viewUser(sess),
			Error: "Both path and public_key are required.",
		})

		return
	}

	ref := models.PublicResourceRef{PublicKey: publicKey, Path: path}

	href, err := h.disk.GetDownloadLink(r.Context(), ref, sess.Token)
	if err != nil {
		h.renderListingError(w, sess, err)
		return
	}

	stream, err := h.disk.Download(r.Context(), href, path, sess.Token)
	if err != nil {
		h.renderListingError(w, sess, err)
		return
	}
	defer stream.Body.Close()

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stream.Filename))

	if stream.Size >= 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", stream.Size))
	}

	if _, err := io.Copy(w, stream.Body); err != nil {
		// Headers are already out; nothing to render. Most often this
		// is the client going away.
		h.logger.Debug("download transfer aborted", slog.String("error", err.Error()))
	}
}

func (h *handlers) renderListingError(w http.ResponseWriter, sess *models.Session, err error) {
	h.logger.Debug("download failed", slog.String("error", err.Error()))
	h.render(w, indexPage, indexData{User: viewUser(sess), Error: userMessage(err)})
}

// handleBeginAuth creates a pending session and redirects to the
// provider's authorization page.
func (h *handlers) handleBeginAuth(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Begin(w)
	if err != nil {
		h.logger.Error("beginning auth session", slog.String("error", err.Error()))
		h.renderError(w, "Internal error, please try again.")

		return
	}

	http.Redirect(w, r, h.oauth.AuthCodeURL(sess.OAuthState), http.StatusFound)
}

// handleAuthCallback completes the login: verify state, exchange the
// code, fetch the profile, and attach both to the session in one write.
func (h *handlers) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Load(r)
	if err != nil {
		h.logger.Error("loading session", slog.String("error", err.Error()))
		h.renderError(w, "Internal error, please try again.")

		return
	}

	if sess == nil || sess.OAuthState == "" {
		h.renderError(w, "Your sign-in attempt expired. Please start again.")
		return
	}

	if r.URL.Query().Get("state") != sess.OAuthState {
		h.renderError(w, userMessage(errors.ErrStateMismatch))
		return
	}

	identity, err := h.oauth.CompleteAuth(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.logger.Warn("completing auth", slog.String("error", err.Error()))
		h.renderError(w, userMessage(err))

		return
	}

	if err := h.sessions.SetIdentity(sess.ID, identity.Token, identity.Profile); err != nil {
		h.logger.Error("storing identity", slog.String("error", err.Error()))
		h.renderError(w, "Internal error, please try again.")

		return
	}

	h.logger.Info("user signed in", slog.String("login", identity.Profile.Login))
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleLogout flushes the session. Safe to call repeatedly.
func (h *handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Flush(w, r); err != nil {
		h.logger.Error("flushing session", slog.String("error", err.Error()))
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *handlers) render(w http.ResponseWriter, tpl *template.Template, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := tpl.Execute(w, data); err != nil {
		h.logger.Error("rendering page", slog.String("error", err.Error()))
	}
}

func (h *handlers) renderError(w http.ResponseWriter, msg string) {
	h.render(w, errorPage, errorData{Error: msg})
}

func viewUser(sess *models.Session) userData {
	return userData{
		Login: sess.Profile.Login,
		Name:  sess.Profile.DisplayName,
		Email: sess.Profile.Email,
	}
}

// userMessage converts a domain error into the text shown to the user.
func userMessage(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrInvalidShareURL):
		return "That doesn't look like a Yandex Disk share link. Example: https://disk.yandex.ru/d/AbCdEfGhIjKlMn"
	case stderrors.Is(err, errors.ErrResourceNotFound):
		return capitalize(err.Error())
	case stderrors.Is(err, errors.ErrMalformedResponse):
		return "The folder is empty or the link does not point to a published folder."
	case stderrors.Is(err, errors.ErrMissingCode):
		return "Authorization failed: the provider returned no code."
	case stderrors.Is(err, errors.ErrStateMismatch):
		return "Authorization failed: the sign-in attempt could not be verified. Please start again."
	case stderrors.Is(err, errors.ErrTokenExchange):
		return "Authorization failed: could not obtain an access token."
	case stderrors.Is(err, errors.ErrProfileFetch):
		return "Authorization failed: could not fetch your Yandex profile."
	case errors.IsTransport(err):
		return "Network error while contacting Yandex Disk."
	}

	if ae := errors.AsRemoteAPI(err); ae != nil {
		return fmt.Sprintf("Yandex Disk API error (%d): %s", ae.Status, ae.Message)
	}

	return "Internal error, please try again."
}

// capitalize upper-cases the first byte of an ASCII message for display.
func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
