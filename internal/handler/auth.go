package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/auth"
	"github.com/sakif/snippetbox/internal/flash"
	"github.com/sakif/snippetbox/internal/service"
)

// AuthHandler serves registration, password login, logout and the optional
// GitHub login flow.
//
// ROUTES:
//   - GET/POST /register/          → ShowRegister / Register
//   - GET/POST /login/             → ShowLogin / Login
//   - GET      /logout/            → Logout
//   - GET      /auth/github/login  → GitHubLogin
//   - GET      /auth/github/callback → GitHubCallback
type AuthHandler struct {
	auth    *service.AuthService
	github  *auth.GitHubProvider
	cookies auth.Cookies
	render  *Renderer
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil when GitHub login
// is not configured.
func NewAuthHandler(authService *service.AuthService, github *auth.GitHubProvider, cookies auth.Cookies, render *Renderer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    authService,
		github:  github,
		cookies: cookies,
		render:  render,
		logger:  logger,
	}
}

// ShowRegister renders the empty registration form.
func (h *AuthHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, http.StatusOK, pageRegister, &TemplateData{
		Title: "Register",
		Form:  service.RegisterInput{},
	})
}

// Register creates the account and sends the visitor home. It does not log
// them in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		h.render.Form(w, r, pageRegister, "Register", service.RegisterInput{}, err)
		return
	}

	in := service.RegisterInput{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}

	user, err := h.auth.Register(r.Context(), in)
	if err != nil {
		// Never echo the password back into the form.
		in.Password = ""
		h.render.Form(w, r, pageRegister, "Register", in, err)
		return
	}

	h.render.Flash(w, r, flash.Success, "Your account "+user.Username+" has been created. Please log in.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ShowLogin renders the empty login form.
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, http.StatusOK, pageLogin, &TemplateData{
		Title: "Log in",
		Form:  service.LoginInput{},
	})
}

// Login checks the credentials, opens a session and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		h.render.Form(w, r, pageLogin, "Log in", service.LoginInput{}, err)
		return
	}

	in := service.LoginInput{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}

	res, err := h.auth.Login(r.Context(), in)
	if err != nil {
		in.Password = ""
		h.render.Form(w, r, pageLogin, "Log in", in, err)
		return
	}

	h.cookies.SetSession(w, res.Token, res.ExpiresAt)
	h.render.Flash(w, r, flash.Success, "Welcome back, "+res.User.Username+".")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout revokes the session and drops the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := auth.SessionToken(r); ok {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			h.logger.Error("logout failed", slog.String("error", err.Error()))
		}
	}
	h.cookies.ClearSession(w)
	h.render.Flash(w, r, flash.Info, "You have been logged out.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// GitHubLogin redirects the browser to GitHub's authorization page.
//
// CSRF PROTECTION VIA STATE:
// A random state goes both into a short-lived cookie and into the GitHub URL.
// The callback only proceeds when the two match.
func (h *AuthHandler) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		h.render.NotFound(w, r)
		return
	}
	state := auth.NewState()
	h.cookies.SetState(w, state)
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusFound)
}

// GitHubCallback completes the OAuth flow and logs the GitHub user in.
func (h *AuthHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		h.render.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	if !h.cookies.CheckState(w, r, q.Get("state")) {
		h.logger.Warn("github callback: state mismatch")
		h.render.Error(w, r, apperror.ValidationFailed("state", "Your GitHub login expired. Please try again."))
		return
	}

	if denied := q.Get("error"); denied != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", denied))
		h.render.Flash(w, r, flash.Error, "GitHub login was cancelled.")
		http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.render.Error(w, r, apperror.ValidationFailed("code", "GitHub did not send an authorization code."))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		h.render.Error(w, r, apperror.Unavailable("GitHub login is not available right now."))
		return
	}

	res, err := h.auth.LoginGitHub(r.Context(), ghUser)
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrValidation) {
			h.render.Flash(w, r, flash.Error, "Your GitHub username is already used by another account.")
			http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
			return
		}
		h.render.Error(w, r, err)
		return
	}

	h.cookies.SetSession(w, res.Token, res.ExpiresAt)
	h.render.Flash(w, r, flash.Success, "Welcome, "+res.User.Username+".")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
