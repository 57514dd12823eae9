package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type contextKey string

// ClientContextKey carries the authenticated client name.
const ClientContextKey contextKey = "client"

// AuthCookieName is the cookie checked before the Authorization header.
const AuthCookieName = "auth_token"

// ErrInvalidToken is returned for a missing or wrong API token.
var ErrInvalidToken = errors.New("invalid token")

// TokenValidator checks an API token and names the client it belongs to.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// TokenAuth validates a single API token stored as a bcrypt hash.
type TokenAuth struct {
	client string
	hash   []byte
}

// NewTokenAuth hashes a plain token.
func NewTokenAuth(client, token string) (*TokenAuth, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token for client %q", client)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash token: %w", err)
	}
	return &TokenAuth{client: client, hash: hash}, nil
}

// NewTokenAuthFromHash uses a precomputed bcrypt hash.
func NewTokenAuthFromHash(client, hash string) (*TokenAuth, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid token hash for client %q: %w", client, err)
	}
	return &TokenAuth{client: client, hash: []byte(hash)}, nil
}

// ValidateToken implements TokenValidator.
func (a *TokenAuth) ValidateToken(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		return "", ErrInvalidToken
	}
	return a.client, nil
}

// tokenFromRequest reads the cookie, then the bearer header, then the
// "token" query parameter used by browser websocket clients.
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware rejects requests without a valid API token.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			client, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				http.SetCookie(w, &http.Cookie{
					Name:   AuthCookieName,
					Value:  "",
					Path:   "/",
					MaxAge: -1,
				})
				http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClientContextKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientFromContext returns the authenticated client name, if any.
func ClientFromContext(ctx context.Context) (string, bool) {
	client, ok := ctx.Value(ClientContextKey).(string)
	return client, ok && client != ""
}
