package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CAMPUS_HTTP_ADDR", "CAMPUS_ENV", "CAMPUS_PG_DSN",
		"CAMPUS_JWT_SECRET", "CAMPUS_JWT_ISSUER",
		"CAMPUS_ACCESS_TTL", "CAMPUS_REFRESH_TTL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Env != "development" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AccessTTL != 15*time.Minute || cfg.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("unexpected TTL defaults: %+v", cfg)
	}
	if cfg.SigningSecret == "" {
		t.Fatalf("development secret not defaulted")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CAMPUS_HTTP_ADDR", ":9090")
	t.Setenv("CAMPUS_ACCESS_TTL", "5m")
	t.Setenv("CAMPUS_REFRESH_TTL", "720h")
	t.Setenv("CAMPUS_JWT_ISSUER", "campus-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.AccessTTL != 5*time.Minute || cfg.Issuer != "campus-test" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("CAMPUS_ACCESS_TTL", "fifteen minutes")
	if _, err := Load(); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestLoadRejectsInvertedTTLs(t *testing.T) {
	clearEnv(t)
	t.Setenv("CAMPUS_ACCESS_TTL", "48h")
	t.Setenv("CAMPUS_REFRESH_TTL", "24h")
	if _, err := Load(); err == nil {
		t.Fatalf("expected refresh/access TTL ordering error")
	}
}

func TestProductionRefusesPlaceholderSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("CAMPUS_ENV", "production")
	t.Setenv("CAMPUS_PG_DSN", "postgres://localhost/campus")

	for _, secret := range []string{"", "CHANGE_ME", "changeme", "secret"} {
		t.Setenv("CAMPUS_JWT_SECRET", secret)
		_, err := Load()
		if err == nil {
			t.Fatalf("secret %q accepted in production", secret)
		}
		if !strings.Contains(err.Error(), "CAMPUS_JWT_SECRET") {
			t.Fatalf("unhelpful error: %v", err)
		}
	}

	t.Setenv("CAMPUS_JWT_SECRET", "a-real-secret-with-enough-entropy-here")
	if _, err := Load(); err != nil {
		t.Fatalf("strong secret rejected: %v", err)
	}
}

func TestProductionRequiresDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("CAMPUS_ENV", "production")
	t.Setenv("CAMPUS_JWT_SECRET", "a-real-secret-with-enough-entropy-here")
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing DSN error")
	}
}
