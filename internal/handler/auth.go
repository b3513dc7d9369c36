package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/glycoguard/glycoguard/internal/auth"
	"github.com/glycoguard/glycoguard/internal/service"
	"github.com/glycoguard/glycoguard/internal/session"
	"github.com/glycoguard/glycoguard/internal/web"
)

// Auth flash messages.
const (
	MsgRegistered = "Registration successful! Please log in."
	MsgLoggedOut  = "You have been logged out."
)

// AuthHandler serves registration, login and logout.
type AuthHandler struct {
	*Handler
	creds *service.CredentialService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(base *Handler, creds *service.CredentialService) *AuthHandler {
	return &AuthHandler{Handler: base, creds: creds}
}

// RegisterForm renders the registration page.
// GET /register
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, web.PageRegister, h.page(w, r, "Register"))
}

// Register creates an account and sends the user to the login page.
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}

	in := service.RegisterInput{
		Username:        r.PostForm.Get("username"),
		Email:           r.PostForm.Get("email"),
		Password:        r.PostForm.Get("password"),
		ConfirmPassword: r.PostForm.Get("confirm_password"),
	}

	_, err := h.creds.Register(r.Context(), in)
	var vErr *service.ValidationError
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/login", session.CategorySuccess, MsgRegistered)
	case errors.As(err, &vErr):
		p := h.page(w, r, "Register")
		p.Flashes = append(p.Flashes, session.Flash{Category: session.CategoryError, Message: vErr.Message})
		p.Form = map[string]string{
			"username": strings.TrimSpace(in.Username),
			"email":    strings.TrimSpace(in.Email),
		}
		h.render(w, r, http.StatusUnprocessableEntity, web.PageRegister, p)
	default:
		h.serverError(w, r, "registration failed", err)
	}
}

// LoginForm renders the login page. Logged-in users go straight to the dashboard.
// GET /login
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if auth.PrincipalFromContext(r.Context()) != nil {
		http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
		return
	}

	p := h.page(w, r, "Log in")
	p.Next = localPath(r.URL.Query().Get("next"))
	h.render(w, r, http.StatusOK, web.PageLogin, p)
}

// Login verifies credentials, starts a session and follows ?next= when it is a local path.
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}

	login := r.PostForm.Get("username")
	user, err := h.creds.Authenticate(r.Context(), login, r.PostForm.Get("password"))
	if errors.Is(err, service.ErrInvalidCredentials) {
		p := h.page(w, r, "Log in")
		p.Flashes = append(p.Flashes, session.Flash{Category: session.CategoryError, Message: service.MsgInvalidCredentials})
		p.Form = map[string]string{"username": strings.TrimSpace(login)}
		p.Next = localPath(r.URL.Query().Get("next"))
		h.render(w, r, http.StatusUnauthorized, web.PageLogin, p)
		return
	}
	if err != nil {
		h.serverError(w, r, "login failed", err)
		return
	}

	if _, err := h.sessions.Issue(w, user.ID); err != nil {
		h.serverError(w, r, "session issue failed", err)
		return
	}

	http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
}

// Logout ends the session and returns to the landing page.
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(w, r); err != nil {
		// The cookie is cleared regardless; only the server-side revocation failed.
		h.logger.Warn("session revocation failed",
			"error", err.Error(),
			"user_id", auth.UserIDFromContext(r.Context()),
		)
	}
	h.redirectWithFlash(w, r, "/", session.CategoryInfo, MsgLoggedOut)
}

// safeNext returns next when it is a local path, otherwise the dashboard.
func safeNext(next string) string {
	if p := localPath(next); p != "" {
		return p
	}
	return "/dashboard"
}

// localPath accepts only same-site absolute paths, rejecting //host and /\host forms browsers treat as external.
func localPath(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return next
}
