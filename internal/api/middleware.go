// Package api implements the vault REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"
)

// Identity modes.
const (
	AuthDisabled = "disabled"
	AuthHeader   = "header"
	AuthToken    = "token"
)

// DefaultIdentityHeader is read in header mode when none is configured.
const DefaultIdentityHeader = "X-User-ID"

// AuthOptions tells IdentityMiddleware how to resolve the caller.
//
//   - disabled: every request acts as DefaultOwner.
//   - header: an upstream proxy sets Header to the caller id.
//   - token: "Authorization: Bearer <token>" is looked up in Tokens.
type AuthOptions struct {
	Mode         string
	DefaultOwner string
	Header       string
	Tokens       map[string]string // token -> owner id
}

type ownerKey struct{}

// WithOwner returns a context carrying the caller id.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFrom returns the caller id stored in ctx, or "".
func OwnerFrom(ctx context.Context) string {
	id, _ := ctx.Value(ownerKey{}).(string)
	return id
}

// OwnerFromRequest returns the caller id of r, or "".
func OwnerFromRequest(r *http.Request) string {
	return OwnerFrom(r.Context())
}

// IdentityMiddleware resolves the caller and stores it in the request
// context. Requests whose caller cannot be resolved get 401.
func IdentityMiddleware(opts AuthOptions) func(http.Handler) http.Handler {
	header := opts.Header
	if header == "" {
		header = DefaultIdentityHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var owner string
			switch opts.Mode {
			case AuthHeader:
				owner = strings.TrimSpace(r.Header.Get(header))
			case AuthToken:
				auth := r.Header.Get("Authorization")
				if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
					owner = opts.Tokens[token]
				}
			default:
				owner = opts.DefaultOwner
			}
			if owner == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}
