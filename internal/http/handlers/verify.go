package handlers

import (
	"context"
	"net/http"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
	"github.com/wolfman30/telehealth-bff/internal/auth"
	"github.com/wolfman30/telehealth-bff/internal/gateway"
)

// CallerVerifier confirms that the request's credential is accepted by the backend
// and returns the identity the backend attaches to it.
type CallerVerifier interface {
	VerifyCaller(r *http.Request) (*auth.CallerIdentity, *apierr.Error)
}

// BackendVerifier confirms callers through the API backend's /auth/me. Identity
// decoded locally from the token is never trusted here.
type BackendVerifier struct {
	proxy *Proxy
}

// NewBackendVerifier creates a verifier that calls through proxy.
func NewBackendVerifier(proxy *Proxy) *BackendVerifier {
	return &BackendVerifier{proxy: proxy}
}

// VerifyCaller asks the backend who owns the credential. A rejected or unknown token
// is reported as 401; other backend failures pass through unchanged.
func (v *BackendVerifier) VerifyCaller(r *http.Request) (*auth.CallerIdentity, *apierr.Error) {
	if !auth.FromContext(r.Context()).Authenticated() {
		return nil, apierr.Unauthorized()
	}
	payload, apiErr := v.proxy.call(r, meEndpoint, gateway.Request{})
	if apiErr != nil {
		switch apiErr.HTTPStatus {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return nil, apierr.Unauthorized()
		}
		return nil, apiErr
	}
	identity := auth.IdentityFromClaims(userObject(payload.Body))
	if identity == nil {
		return nil, apierr.Unauthorized()
	}
	return identity, nil
}

// userObject finds the user record in an /auth/me body, which may be wrapped in
// "user" or "data".
func userObject(body any) map[string]any {
	m, ok := body.(map[string]any)
	if !ok {
		return nil
	}
	if user, ok := m["user"].(map[string]any); ok {
		return user
	}
	if data, ok := m["data"].(map[string]any); ok {
		return userObject(data)
	}
	return m
}

type verifiedCallerKey struct{}

// RequireVerifiedCaller rejects requests whose credential the backend does not accept
// and stores the confirmed identity for the handler. A nil verifier rejects everything.
func RequireVerifiedCaller(verifier CallerVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				apierr.Write(w, apierr.Unauthorized())
				return
			}
			identity, apiErr := verifier.VerifyCaller(r)
			if apiErr != nil {
				apierr.Write(w, apiErr)
				return
			}
			ctx := context.WithValue(r.Context(), verifiedCallerKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// verifiedCaller returns the identity stored by RequireVerifiedCaller, or nil.
func verifiedCaller(ctx context.Context) *auth.CallerIdentity {
	identity, _ := ctx.Value(verifiedCallerKey{}).(*auth.CallerIdentity)
	return identity
}
