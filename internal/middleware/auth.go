package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/glycoguard/glycoguard/internal/auth"
	"github.com/glycoguard/glycoguard/internal/model"
	"github.com/glycoguard/glycoguard/internal/repository"
	"github.com/glycoguard/glycoguard/internal/session"
)

// MsgLoginRequired is flashed when an anonymous user opens a protected page.
const MsgLoginRequired = "Please log in to access this page."

// LoginPath is where anonymous users are sent.
const LoginPath = "/login"

// UserLoader rehydrates the user behind a session.
type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// AuthConfig holds configuration for the session middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Sessions *session.Manager
	Users    UserLoader
}

// LoadPrincipal attaches the logged-in user, if any, to the request context.
// It never rejects a request for being anonymous; RequireLogin does that.
func LoadPrincipal(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := cfg.Sessions.Read(r)
			switch {
			case err == nil:
			case errors.Is(err, session.ErrRevocationCheck) && s != nil:
				// Signature and expiry are verified; only the revocation list is unknown.
				cfg.Logger.Warn("session revocation check unavailable",
					slog.String("error", err.Error()),
					slog.Int64("user_id", s.UserID),
					slog.String("request_id", GetRequestID(r.Context())),
				)
			case errors.Is(err, session.ErrNoSession):
				next.ServeHTTP(w, r)
				return
			case errors.Is(err, session.ErrInvalidSession), errors.Is(err, session.ErrRevoked):
				cfg.Logger.Info("session rejected",
					slog.String("reason", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				cfg.Sessions.Clear(w)
				next.ServeHTTP(w, r)
				return
			default:
				cfg.Logger.Error("session check failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			user, err := cfg.Users.GetByID(r.Context(), s.UserID)
			if errors.Is(err, repository.ErrUserNotFound) {
				cfg.Logger.Warn("session for unknown user",
					slog.Int64("user_id", s.UserID),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				cfg.Sessions.Clear(w)
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				cfg.Logger.Error("database error during session load",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			annotateUser(r.Context(), user.ID)
			ctx := auth.ContextWithPrincipal(r.Context(), &model.Principal{
				UserID:    user.ID,
				Username:  user.Username,
				Email:     user.Email,
				SessionID: s.ID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireLogin redirects anonymous requests to the login page, remembering the target in ?next=.
// Must be applied after LoadPrincipal.
func RequireLogin(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.PrincipalFromContext(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}

			sessions.AddFlash(w, r, session.CategoryInfo, MsgLoginRequired)
			target := LoginPath + "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}
