package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "API_BASE_URL", "NEXT_PUBLIC_API_BASE_URL",
		"VIDEO_SERVICE_URL", "BACKEND_URL", "UPSTREAM_TIMEOUT", "SESSION_COOKIE_NAME",
		"PHONEPE_ENV", "PHONEPE_SALT_INDEX", "CORS_ALLOWED_ORIGINS", "DEFAULT_CONSULTATION_FEE",
	} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.UpstreamTimeout != 30*time.Second {
		t.Fatalf("expected 30s upstream timeout, got %s", cfg.UpstreamTimeout)
	}
	if cfg.SessionCookieName != "auth_token" {
		t.Fatalf("expected default session cookie, got %s", cfg.SessionCookieName)
	}
	if cfg.PhonePeEnv != "" {
		t.Fatalf("expected unset phonepe env, got %q", cfg.PhonePeEnv)
	}
	if cfg.PhonePeSaltIndex != "1" {
		t.Fatalf("expected default salt index, got %s", cfg.PhonePeSaltIndex)
	}
	if cfg.DefaultConsultationFee != 500 {
		t.Fatalf("expected default fee 500, got %v", cfg.DefaultConsultationFee)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("API_BASE_URL", "")
	t.Setenv("NEXT_PUBLIC_API_BASE_URL", "https://api.example.com")
	t.Setenv("VIDEO_SERVICE_URL", "")
	t.Setenv("BACKEND_URL", "https://video.example.com")
	t.Setenv("PHONEPE_ENV", " uat ")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,capacitor://localhost")
	t.Setenv("SESSION_COOKIE_SECURE", "false")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.APIBaseURL != "https://api.example.com" {
		t.Fatalf("expected NEXT_PUBLIC_API_BASE_URL fallback, got %s", cfg.APIBaseURL)
	}
	if cfg.VideoServiceURL != "https://video.example.com" {
		t.Fatalf("expected BACKEND_URL fallback, got %s", cfg.VideoServiceURL)
	}
	if cfg.PhonePeEnv != "UAT" {
		t.Fatalf("expected normalized phonepe env, got %s", cfg.PhonePeEnv)
	}
	if cfg.UpstreamTimeout != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %s", cfg.UpstreamTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "capacitor://localhost" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.SessionCookieSecure {
		t.Fatalf("expected insecure cookie override")
	}
}

func TestAPIBaseURLPrefersExplicitVariable(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://primary.example.com")
	t.Setenv("NEXT_PUBLIC_API_BASE_URL", "https://public.example.com")
	if got := Load().APIBaseURL; got != "https://primary.example.com" {
		t.Fatalf("expected API_BASE_URL to win, got %s", got)
	}
}
