package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// rawToken builds a token from an arbitrary payload with a junk signature.
func rawToken(t *testing.T, payload any) string {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".forged"
}

type stubReader struct {
	session *IDPSession
	err     error
	panics  bool
	calls   int
}

func (s *stubReader) ReadSession(_ context.Context, _ *http.Request) (*IDPSession, error) {
	s.calls++
	if s.panics {
		panic("session decrypt blew up")
	}
	return s.session, s.err
}

var errSessionBroken = errors.New("session cookie could not be decrypted")

type countingObserver struct {
	sources []string
}

func (o *countingObserver) ObserveCredentialSource(source string) {
	o.sources = append(o.sources, source)
}
