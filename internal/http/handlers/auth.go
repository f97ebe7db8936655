package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
	"github.com/wolfman30/telehealth-bff/internal/auth"
	"github.com/wolfman30/telehealth-bff/internal/gateway"
	httpmiddleware "github.com/wolfman30/telehealth-bff/internal/http/middleware"
	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

var (
	loginEndpoint           = apiEndpoint("auth.login", http.MethodPost, "/auth/login")
	magicLinkVerifyEndpoint = apiEndpoint("auth.magic_link_verify", http.MethodPost, "/auth/magic-link/verify")
	meEndpoint              = apiEndpoint("auth.me", http.MethodGet, "/auth/me")
)

// SessionEnder ends the identity-provider session attached to a request.
type SessionEnder interface {
	EndSession(ctx context.Context, r *http.Request) error
}

// AuthHandler issues and clears the BFF session cookie.
type AuthHandler struct {
	proxy  *Proxy
	cookie auth.CookieOptions
	idp    SessionEnder
	logger *logging.Logger
}

// NewAuthHandler creates an auth handler. idp may be nil.
func NewAuthHandler(proxy *Proxy, cookie auth.CookieOptions, idp SessionEnder, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{proxy: proxy, cookie: cookie, idp: idp, logger: logger}
}

// Routes returns the auth routes, mounted under /api/auth.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.exchange(loginEndpoint))
	r.Post("/magic-link/verify", h.exchange(magicLinkVerifyEndpoint))
	r.Post("/logout", h.Logout)
	r.With(httpmiddleware.RequireAuth).Get("/me", h.Me)
	return r
}

// exchange forwards credentials to the backend and stores the returned token in the
// session cookie. The caller's own credentials are never sent.
func (h *AuthHandler) exchange(ep gateway.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, apiErr := readJSONBody(r)
		if apiErr != nil {
			apierr.Write(w, apiErr)
			return
		}
		if body == nil {
			apierr.Write(w, apierr.BadRequest("Request body required"))
			return
		}

		payload, apiErr := h.proxy.gw.Do(r.Context(), ep, auth.Result{}, gateway.Request{Body: body}, http.Header{})
		if apiErr != nil {
			apierr.Write(w, apiErr)
			return
		}
		if token := tokenFromBody(payload.Body); token != "" {
			auth.SetSessionCookie(w, h.cookie, token)
		} else {
			h.logger.Warn("login response carried no token", "endpoint", ep.Name)
		}
		writePayload(w, payload)
	}
}

// Logout clears the session cookie and ends any identity-provider session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.idp != nil {
		if err := h.idp.EndSession(r.Context(), r); err != nil {
			h.logger.Warn("identity provider session not ended", "error", err)
		}
	}
	auth.ClearSessionCookie(w, h.cookie)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Me returns the caller's identity, asking the backend when the credential carried none.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	res := auth.FromContext(r.Context())
	if res.Identity != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"user":   res.Identity,
			"source": res.Credential.Source,
		})
		return
	}
	h.proxy.relay(w, r, meEndpoint, gateway.Request{})
}

func tokenFromBody(body any) string {
	m, ok := body.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"token", "access_token", "accessToken"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	if data, ok := m["data"].(map[string]any); ok {
		return tokenFromBody(data)
	}
	return ""
}
