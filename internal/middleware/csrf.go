package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// CSRFConfig holds configuration for CSRF protection middleware.
type CSRFConfig struct {
	// AllowedOrigins lists the origins (scheme://host[:port]) pages are served from.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// CSRF returns middleware that validates Origin/Referer headers on state-changing requests.
// The session is a cookie, so browsers attach it to cross-site form posts.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[normalizeOrigin(origin)] = true
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			reason := ""
			if origin := r.Header.Get("Origin"); origin != "" {
				if !allowed[normalizeOrigin(origin)] {
					reason = "invalid_origin"
				}
			} else if referer := r.Header.Get("Referer"); referer != "" {
				if !allowed[normalizeOrigin(extractOrigin(referer))] {
					reason = "invalid_referer"
				}
			} else {
				reason = "missing_origin"
			}

			if reason != "" {
				logger.Warn("csrf check failed",
					slog.String("reason", reason),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				http.Error(w, "Forbidden: cross-site request rejected", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(origin), "/")
}

// extractOrigin extracts the origin (scheme://host:port) from a URL.
func extractOrigin(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// OriginOf returns the origin of a base URL such as BASE_URL.
func OriginOf(baseURL string) string {
	return extractOrigin(baseURL)
}
