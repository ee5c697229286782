package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxConnections   = 5
	DefaultUserTokenTTL     = 300
	DefaultServiceTokenTTL  = 7 * 24 * 60 * 60
	DefaultRenewThreshold   = 30
	DefaultReapInterval     = 60 * time.Second
	DefaultSecret           = "local_secret"
	DefaultListenAddr       = "127.0.0.1:7878"
	DefaultLockoutThreshold = 5
	DefaultLockoutWindow    = 15 * time.Minute
)

// Config holds everything the server needs at startup. Built from env vars
// with an optional YAML overlay (config/default.yaml).
type Config struct {
	DatabaseURL    string
	MaxConnections int

	UserTokenTTLSeconds    int64
	ServiceTokenTTLSeconds int64
	RenewThresholdSeconds  int64

	Secret     string
	SecretFile string

	ListenAddr string

	CORSOrigin   string
	CORSHeaders  []string
	ReapInterval time.Duration

	// Optional integrations; empty means disabled.
	RedisAddr   string
	NATSURL     string
	NATSSubject string

	LockoutThreshold int
	LockoutWindow    time.Duration
}

// fileOverlay mirrors the optional config/default.yaml shape.
type fileOverlay struct {
	CORS struct {
		Origin  string   `yaml:"origin"`
		Headers []string `yaml:"headers"`
	} `yaml:"cors"`
	Reaper struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"reaper"`
	Lockout struct {
		Threshold     int `yaml:"threshold"`
		WindowSeconds int `yaml:"window_seconds"`
	} `yaml:"lockout"`
	NATS struct {
		Subject string `yaml:"subject"`
	} `yaml:"nats"`
}

func envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	return int(envInt64(key, int64(fallback)))
}

// listenAddr resolves SERVER_URL / SERVER_PORT the same way the original
// deployment did: a full URL wins, a bare port binds loopback.
func listenAddr() string {
	if raw := os.Getenv("SERVER_URL"); raw != "" {
		addr := strings.TrimPrefix(raw, "http://")
		addr = strings.TrimPrefix(addr, "https://")
		return addr
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return "127.0.0.1:" + port
	}
	return DefaultListenAddr
}

// Load builds the Config from the environment plus the optional overlay file.
// A missing DATABASE_URL is the only fatal condition.
func Load(overlayPath string) (*Config, error) {
	cfg := &Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		MaxConnections:         envInt("MAX_CONNECTIONS", DefaultMaxConnections),
		UserTokenTTLSeconds:    envInt64("USER_TOKEN_TTL_SECONDS", DefaultUserTokenTTL),
		ServiceTokenTTLSeconds: envInt64("SERVICE_TOKEN_TTL_SECONDS", DefaultServiceTokenTTL),
		RenewThresholdSeconds:  envInt64("TOKEN_RENEW_THRESHOLD_SECONDS", DefaultRenewThreshold),
		Secret:                 os.Getenv("JWT_SECRET"),
		SecretFile:             os.Getenv("JWT_SECRET_FILE"),
		ListenAddr:             listenAddr(),
		CORSOrigin:             os.Getenv("CORS"),
		ReapInterval:           time.Duration(envInt64("REAP_INTERVAL_SECONDS", int64(DefaultReapInterval/time.Second))) * time.Second,
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		NATSURL:                os.Getenv("NATS_URL"),
		NATSSubject:            "auth.audit",
		LockoutThreshold:       DefaultLockoutThreshold,
		LockoutWindow:          DefaultLockoutWindow,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.Secret == "" {
		cfg.Secret = DefaultSecret
	}
	if extra := os.Getenv("CORS_HEADERS"); extra != "" {
		for _, h := range strings.Split(extra, ",") {
			if h = strings.TrimSpace(h); h != "" {
				cfg.CORSHeaders = append(cfg.CORSHeaders, h)
			}
		}
	}

	if overlayPath != "" {
		if raw, err := os.ReadFile(overlayPath); err == nil {
			var overlay fileOverlay
			if err := yaml.Unmarshal(raw, &overlay); err != nil {
				return nil, fmt.Errorf("parse %s: %w", overlayPath, err)
			}
			cfg.applyOverlay(&overlay)
		}
	}

	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}
	return cfg, nil
}

func (c *Config) applyOverlay(o *fileOverlay) {
	if c.CORSOrigin == "" && o.CORS.Origin != "" {
		c.CORSOrigin = o.CORS.Origin
	}
	for _, h := range o.CORS.Headers {
		if h = strings.TrimSpace(h); h != "" {
			c.CORSHeaders = append(c.CORSHeaders, h)
		}
	}
	if o.Reaper.IntervalSeconds > 0 {
		c.ReapInterval = time.Duration(o.Reaper.IntervalSeconds) * time.Second
	}
	if o.Lockout.Threshold > 0 {
		c.LockoutThreshold = o.Lockout.Threshold
	}
	if o.Lockout.WindowSeconds > 0 {
		c.LockoutWindow = time.Duration(o.Lockout.WindowSeconds) * time.Second
	}
	if o.NATS.Subject != "" {
		c.NATSSubject = o.NATS.Subject
	}
}

// RenewalEnabled reports whether sliding renewal is active.
func (c *Config) RenewalEnabled() bool {
	return c.RenewThresholdSeconds > 0
}
