package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// IDPSession is an identity-provider session as stored by the login callback.
type IDPSession struct {
	User        IDPUser   `json:"user"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expires"`
}

func (s *IDPSession) identity() *CallerIdentity {
	if s.User.ID == "" {
		return DecodeIdentity(s.AccessToken)
	}
	first, last := s.User.FirstName, s.User.LastName
	if first == "" && last == "" && s.User.Name != "" {
		first, last, _ = strings.Cut(strings.TrimSpace(s.User.Name), " ")
		last = strings.TrimSpace(last)
	}
	return &CallerIdentity{
		ID:        s.User.ID,
		Email:     s.User.Email,
		FirstName: first,
		LastName:  last,
	}
}

// RedisSessionStore keeps identity-provider sessions in Redis keyed by the provider's
// session cookie.
type RedisSessionStore struct {
	client     *redis.Client
	cookieName string
	prefix     string
}

// NewRedisSessionStore creates a store reading the cookieName cookie.
func NewRedisSessionStore(client *redis.Client, cookieName string) *RedisSessionStore {
	return &RedisSessionStore{
		client:     client,
		cookieName: cookieName,
		prefix:     "idp:session:",
	}
}

func (s *RedisSessionStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// ReadSession implements SessionReader.
func (s *RedisSessionStore) ReadSession(ctx context.Context, r *http.Request) (*IDPSession, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	return s.Get(ctx, cookie.Value)
}

// Get loads a session. Missing and expired sessions return nil without error.
func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*IDPSession, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: idp session lookup: %w", err)
	}

	var sess IDPSession
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("auth: idp session decode: %w", err)
	}
	if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		_ = s.client.Del(ctx, s.key(sessionID)).Err()
		return nil, nil
	}
	return &sess, nil
}

// Save stores a session until its expiry.
func (s *RedisSessionStore) Save(ctx context.Context, sessionID string, sess IDPSession) error {
	if sessionID == "" || sess.AccessToken == "" {
		return fmt.Errorf("auth: missing session id or access token")
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("auth: session expiry must be in the future")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("auth: idp session encode: %w", err)
	}
	return s.client.Set(ctx, s.key(sessionID), data, ttl).Err()
}

// EndSession deletes the session named by the request's identity-provider cookie.
func (s *RedisSessionStore) EndSession(ctx context.Context, r *http.Request) error {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return s.Delete(ctx, cookie.Value)
}

// Delete removes a session.
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

// CookieOptions controls how the own session cookie is issued.
type CookieOptions struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

// SetSessionCookie issues the session cookie holding token.
func SetSessionCookie(w http.ResponseWriter, opts CookieOptions, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
