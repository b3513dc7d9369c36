// Package session issues and verifies the signed login cookie and carries flash messages
// across redirects.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// CookieName is the name of the login session cookie.
const CookieName = "glycoguard_session"

var (
	// ErrNoSession is returned when the request carries no session cookie.
	ErrNoSession = errors.New("no session")
	// ErrInvalidSession is returned for a malformed, forged or expired cookie.
	ErrInvalidSession = errors.New("invalid session")
	// ErrRevoked is returned for a session that was logged out.
	ErrRevoked = errors.New("session revoked")
	// ErrRevocationCheck is returned alongside a verified session when the revocation list could not be read.
	ErrRevocationCheck = errors.New("session revocation check failed")
)

// Revoker records logged-out session IDs until they would have expired anyway.
type Revoker interface {
	RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
}

// NoopRevoker never revokes. The cleared cookie is then the only logout mechanism.
type NoopRevoker struct{}

// RevokeSession is a no-op.
func (NoopRevoker) RevokeSession(context.Context, string, time.Duration) error { return nil }

// IsSessionRevoked always reports false.
func (NoopRevoker) IsSessionRevoked(context.Context, string) (bool, error) { return false, nil }

// Claims is the JWT payload. Subject holds the user ID, ID the session ID.
type Claims struct {
	jwt.RegisteredClaims
}

// Session is a verified login session.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
}

// Options configures a Manager.
type Options struct {
	Secret  []byte
	TTL     time.Duration
	Secure  bool
	Revoker Revoker
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager signs and verifies session cookies.
type Manager struct {
	secret  []byte
	ttl     time.Duration
	secure  bool
	revoker Revoker
	now     func() time.Time
	parser  *jwt.Parser
}

// NewManager creates a Manager. A nil Revoker disables server-side revocation.
func NewManager(opts Options) (*Manager, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("session secret is empty")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}

	m := &Manager{
		secret:  opts.Secret,
		ttl:     opts.TTL,
		secure:  opts.Secure,
		revoker: opts.Revoker,
		now:     opts.Now,
	}
	if m.revoker == nil {
		m.revoker = NoopRevoker{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)

	return m, nil
}

// Issue starts a session for userID and sets the cookie.
func (m *Manager) Issue(w http.ResponseWriter, userID int64) (*Session, error) {
	now := m.now()
	s := &Session{
		ID:        ulid.Make().String(),
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
	}

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        s.ID,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
	}}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	http.SetCookie(w, m.cookie(token, s.ExpiresAt, int(m.ttl.Seconds())))
	return s, nil
}

// Read verifies the session cookie on r.
// If the signature is valid but the revocation list is unreachable, Read returns the session
// together with an error wrapping ErrRevocationCheck and the caller decides whether to trust it.
func (m *Manager) Read(r *http.Request) (*Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}

	s, err := m.parse(c.Value)
	if err != nil {
		return nil, err
	}

	revoked, err := m.revoker.IsSessionRevoked(r.Context(), s.ID)
	if err != nil {
		return s, fmt.Errorf("%w: %w", ErrRevocationCheck, err)
	}
	if revoked {
		return nil, ErrRevoked
	}

	return s, nil
}

// End revokes the current session, if any, and clears the cookie.
func (m *Manager) End(w http.ResponseWriter, r *http.Request) error {
	defer http.SetCookie(w, m.cookie("", time.Unix(0, 0), -1))

	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	s, err := m.parse(c.Value)
	if err != nil {
		return nil
	}

	if err := m.revoker.RevokeSession(r.Context(), s.ID, s.ExpiresAt.Sub(m.now())); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Clear removes the session cookie without revoking it.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie("", time.Unix(0, 0), -1))
}

func (m *Manager) parse(raw string) (*Session, error) {
	var claims Claims
	if _, err := m.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 || claims.ID == "" {
		return nil, fmt.Errorf("%w: bad subject or id", ErrInvalidSession)
	}

	return &Session{
		ID:        claims.ID,
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (m *Manager) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
