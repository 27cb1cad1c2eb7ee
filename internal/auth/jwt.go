// Package auth issues and verifies the JWT access/refresh token pair used
// by the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no token provided")
	ErrTokenExpired = errors.New("token has expired")
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongTokenType is returned when an access token is presented where
	// a refresh token is expected, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	Email string
	Name  string
}

type claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 tokens.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

// NewManager creates a Manager with the given signing secret. Zero TTLs fall
// back to 60 minutes for access tokens and 7 days for refresh tokens.
func NewManager(secret string, accessTTL, refreshTTL time.Duration) *Manager {
	if accessTTL <= 0 {
		accessTTL = 60 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessToken issues a short-lived token carrying the user's email and name.
func (m *Manager) AccessToken(email, name string) (string, error) {
	return m.sign(claims{
		Email: email,
		Name:  name,
		Type:  TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(m.now().UTC()),
			ExpiresAt: jwt.NewNumericDate(m.now().UTC().Add(m.accessTTL)),
		},
	})
}

// RefreshToken issues a long-lived token carrying only the user's email.
func (m *Manager) RefreshToken(email string) (string, error) {
	return m.sign(claims{
		Email: email,
		Type:  TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(m.now().UTC()),
			ExpiresAt: jwt.NewNumericDate(m.now().UTC().Add(m.refreshTTL)),
		},
	})
}

func (m *Manager) sign(c claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses the token, checks the signature and expiry, and confirms
// the embedded type matches wantType.
func (m *Manager) Verify(token, wantType string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoToken
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if c.Type != wantType {
		return Identity{}, fmt.Errorf("%w: expected %s, got %s", ErrWrongTokenType, wantType, c.Type)
	}
	return Identity{Email: c.Email, Name: c.Name}, nil
}

// FromHeader extracts the bearer token from an Authorization header value.
func FromHeader(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

type contextKey struct{}

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFrom returns the authenticated caller stored in ctx, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Middleware rejects requests without a valid access token, attaching the
// caller's identity to the request context on success.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.Verify(FromHeader(r.Header.Get("Authorization")), TypeAccess)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintf(w, `{"success":false,"error":"Authentication required","message":%q}`, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
