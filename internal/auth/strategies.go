package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

const bearerPrefix = "Bearer "

// BearerHeader reads "Authorization: Bearer <token>". Native clients without a cookie
// jar authenticate this way.
func BearerHeader() Strategy {
	return StrategyFunc(func(r *http.Request) *Result {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			return nil
		}
		token := strings.TrimPrefix(header, bearerPrefix)
		if token == "" {
			return nil
		}
		return &Result{
			Credential: &Credential{Token: token, Source: SourceHeader},
			Identity:   DecodeIdentity(token),
		}
	})
}

// SessionCookie reads the token issued by the password and magic-link login flows.
func SessionCookie(name string) Strategy {
	return StrategyFunc(func(r *http.Request) *Result {
		cookie, err := r.Cookie(name)
		if err != nil || cookie.Value == "" {
			return nil
		}
		return &Result{
			Credential: &Credential{Token: cookie.Value, Source: SourceCookie},
			Identity:   DecodeIdentity(cookie.Value),
		}
	})
}

// IDPUser is the user object an identity-provider session carries.
type IDPUser struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// SessionReader reads a third-party identity-provider session. A nil session with a
// nil error means there is no session.
type SessionReader interface {
	ReadSession(ctx context.Context, r *http.Request) (*IDPSession, error)
}

// IdentityProvider delegates to reader. Errors are swallowed and treated as no session.
func IdentityProvider(reader SessionReader, logger *logging.Logger) Strategy {
	if logger == nil {
		logger = logging.Default()
	}
	return StrategyFunc(func(r *http.Request) *Result {
		if reader == nil {
			return nil
		}
		sess, err := reader.ReadSession(r.Context(), r)
		if err != nil {
			logger.Debug("identity provider session unavailable", "error", err)
			return nil
		}
		if sess == nil || sess.AccessToken == "" {
			return nil
		}
		return &Result{
			Credential: &Credential{Token: sess.AccessToken, Source: SourceIDP},
			Identity:   sess.identity(),
		}
	})
}

// DefaultStrategies returns the fixed precedence: header, own cookie, identity provider.
func DefaultStrategies(cookieName string, idp SessionReader, logger *logging.Logger) []Strategy {
	return []Strategy{
		BearerHeader(),
		SessionCookie(cookieName),
		IdentityProvider(idp, logger),
	}
}
