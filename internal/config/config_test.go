package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		old, had := os.LookupEnv(key)
		os.Unsetenv(key)
		k := key
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	clearEnv(t, "DATABASE_URL")
	if _, err := Load(""); err == nil {
		t.Fatal("missing DATABASE_URL must fail")
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, "DATABASE_URL", "postgres://localhost/auth")
	clearEnv(t, "JWT_SECRET", "SERVER_URL", "SERVER_PORT", "USER_TOKEN_TTL_SECONDS",
		"SERVICE_TOKEN_TTL_SECONDS", "TOKEN_RENEW_THRESHOLD_SECONDS", "MAX_CONNECTIONS",
		"CORS", "CORS_HEADERS", "REAP_INTERVAL_SECONDS", "REDIS_ADDR", "NATS_URL")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UserTokenTTLSeconds != 300 {
		t.Errorf("user ttl = %d", cfg.UserTokenTTLSeconds)
	}
	if cfg.ServiceTokenTTLSeconds != 604800 {
		t.Errorf("service ttl = %d", cfg.ServiceTokenTTLSeconds)
	}
	if cfg.RenewThresholdSeconds != 30 {
		t.Errorf("renew threshold = %d", cfg.RenewThresholdSeconds)
	}
	if cfg.ListenAddr != "127.0.0.1:7878" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.Secret != DefaultSecret {
		t.Errorf("secret = %q", cfg.Secret)
	}
	if !cfg.RenewalEnabled() {
		t.Error("default config should renew")
	}
}

func TestListenAddrResolution(t *testing.T) {
	setEnv(t, "DATABASE_URL", "postgres://localhost/auth")

	setEnv(t, "SERVER_PORT", "9000")
	clearEnv(t, "SERVER_URL")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("addr = %q, want loopback with port", cfg.ListenAddr)
	}

	setEnv(t, "SERVER_URL", "http://0.0.0.0:8080")
	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != "0.0.0.0:8080" {
		t.Errorf("addr = %q, SERVER_URL must win", cfg.ListenAddr)
	}
}

func TestRenewalDisabledAtZero(t *testing.T) {
	setEnv(t, "DATABASE_URL", "postgres://localhost/auth")
	setEnv(t, "TOKEN_RENEW_THRESHOLD_SECONDS", "0")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RenewalEnabled() {
		t.Error("threshold 0 disables renewal")
	}
}

func TestCORSHeadersFromEnv(t *testing.T) {
	setEnv(t, "DATABASE_URL", "postgres://localhost/auth")
	setEnv(t, "CORS_HEADERS", "X-One, X-Two, ,")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CORSHeaders) != 2 || cfg.CORSHeaders[0] != "X-One" || cfg.CORSHeaders[1] != "X-Two" {
		t.Errorf("headers = %v", cfg.CORSHeaders)
	}
}

func TestOverlayFile(t *testing.T) {
	setEnv(t, "DATABASE_URL", "postgres://localhost/auth")
	clearEnv(t, "CORS")

	path := filepath.Join(t.TempDir(), "default.yaml")
	overlay := `
cors:
  origin: https://app.example.com
reaper:
  interval_seconds: 120
lockout:
  threshold: 10
  window_seconds: 600
nats:
  subject: auth.events
`
	if err := os.WriteFile(path, []byte(overlay), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CORSOrigin != "https://app.example.com" {
		t.Errorf("origin = %q", cfg.CORSOrigin)
	}
	if cfg.ReapInterval != 120*time.Second {
		t.Errorf("reap interval = %v", cfg.ReapInterval)
	}
	if cfg.LockoutThreshold != 10 || cfg.LockoutWindow != 10*time.Minute {
		t.Errorf("lockout = (%d, %v)", cfg.LockoutThreshold, cfg.LockoutWindow)
	}
	if cfg.NATSSubject != "auth.events" {
		t.Errorf("subject = %q", cfg.NATSSubject)
	}
}

func TestOverlayMissingFileIsIgnored(t *testing.T) {
	setEnv(t, "DATABASE_URL", "postgres://localhost/auth")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Errorf("a missing overlay is not an error: %v", err)
	}
}

func TestOverlayMalformedFails(t *testing.T) {
	setEnv(t, "DATABASE_URL", "postgres://localhost/auth")
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := os.WriteFile(path, []byte("cors: ["), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed overlay must fail loudly")
	}
}
