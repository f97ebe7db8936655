package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/telehealth-bff/internal/auth"
)

func TestResolveCredentialsThenRequireAuth(t *testing.T) {
	resolver := auth.NewResolver(nil, auth.DefaultStrategies("auth_token", nil, nil))

	var seen auth.Result
	protected := ResolveCredentials(resolver)(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("no credential is 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/appointments", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Unauthorized","code":"unauthenticated"}`, rec.Body.String())
	})

	t.Run("cookie credential passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: "opaque"})
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "opaque", seen.Token())
		assert.Equal(t, auth.SourceCookie, seen.Credential.Source)
	})
}
