package middleware

import (
	"net/http"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
	"github.com/wolfman30/telehealth-bff/internal/auth"
)

// CredentialResolver resolves the caller of an inbound request.
type CredentialResolver interface {
	Resolve(r *http.Request) auth.Result
}

// ResolveCredentials resolves the caller once per request and stores the result in the
// request context. Unauthenticated requests pass through.
func ResolveCredentials(resolver CredentialResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := resolver.Resolve(r)
			next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), res)))
		})
	}
}

// RequireAuth rejects requests without a resolved credential with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.FromContext(r.Context()).Authenticated() {
			apierr.Write(w, apierr.Unauthorized())
			return
		}
		next.ServeHTTP(w, r)
	})
}
