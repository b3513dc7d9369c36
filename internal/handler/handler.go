// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/glycoguard/glycoguard/internal/auth"
	"github.com/glycoguard/glycoguard/internal/middleware"
	"github.com/glycoguard/glycoguard/internal/session"
	"github.com/glycoguard/glycoguard/internal/web"
)

// Handler wraps the dependencies shared by page handlers.
type Handler struct {
	renderer *web.Renderer
	sessions *session.Manager
	logger   *slog.Logger
}

// New creates a new Handler instance.
func New(renderer *web.Renderer, sessions *session.Manager, logger *slog.Logger) *Handler {
	return &Handler{
		renderer: renderer,
		sessions: sessions,
		logger:   logger,
	}
}

// page builds template data with the current principal and any pending flashes.
func (h *Handler) page(w http.ResponseWriter, r *http.Request, title string) *web.Page {
	return &web.Page{
		Title:     title,
		Principal: auth.PrincipalFromContext(r.Context()),
		Flashes:   h.sessions.PopFlashes(w, r),
	}
}

// render writes a page, falling back to a plain 500 if the template fails.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data *web.Page) {
	if err := h.renderer.Render(w, status, name, data); err != nil {
		h.logger.Error("render failed",
			slog.String("page", name),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// redirectWithFlash queues a message and redirects with 303 See Other.
func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, target, category, message string) {
	h.sessions.AddFlash(w, r, category, message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// serverError logs err and renders the error page.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
		slog.Int64("user_id", auth.UserIDFromContext(r.Context())),
	)
	p := h.page(w, r, "Error")
	p.Status = http.StatusInternalServerError
	p.Message = "Something went wrong. Please try again."
	h.render(w, r, http.StatusInternalServerError, web.PageError, p)
}

// parseForm reads a urlencoded body, answering 413 or 400 itself on failure.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		if middleware.IsBodyTooLarge(err) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "Malformed form submission", http.StatusBadRequest)
		return false
	}
	return true
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	p := h.page(w, r, "Not found")
	p.Status = http.StatusNotFound
	p.Message = "The page you were looking for does not exist."
	h.render(w, r, http.StatusNotFound, web.PageError, p)
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	p := h.page(w, r, "Method not allowed")
	p.Status = http.StatusMethodNotAllowed
	p.Message = "That action is not supported here."
	h.render(w, r, http.StatusMethodNotAllowed, web.PageError, p)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
