package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/pigeonchat/pigeon/internal/model"
	"github.com/pigeonchat/pigeon/internal/store"
)

// Authenticator resolves a bearer credential to a user identity. Identity
// ownership lives outside this core; the token store is just the default
// implementation of the capability.
type Authenticator interface {
	Authenticate(token string) (*model.User, error)
}

// TokenAuthenticator authenticates against the users table.
type TokenAuthenticator struct {
	db *store.DB
}

// NewTokenAuthenticator creates the store-backed authenticator.
func NewTokenAuthenticator(db *store.DB) *TokenAuthenticator {
	return &TokenAuthenticator{db: db}
}

// Authenticate returns the user for token, or nil if unknown.
func (a *TokenAuthenticator) Authenticate(token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	return a.db.UserByToken(token)
}

type ctxKey int

const userKey ctxKey = 0

// userFrom returns the authenticated user stored by the middleware.
func userFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}

// requireAuth wraps a handler with bearer-token authentication. The
// websocket handshake passes the token as a query parameter instead,
// since browser websocket clients cannot set headers.
func (h *Handlers) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		user, err := h.auth.Authenticate(token)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "authentication failed")
			return
		}
		if user == nil {
			h.writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return ""
}
