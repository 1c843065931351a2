package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the process configuration, loaded from CAMPUS_* environment
// variables.
type Config struct {
	Addr          string
	Env           string
	DSN           string
	SigningSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

const (
	defaultAddr       = ":8080"
	defaultEnv        = "development"
	defaultIssuer     = "campusconnect"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// placeholderSecrets are the values shipped in sample env files. A production
// process refuses to start with any of them.
var placeholderSecrets = map[string]struct{}{
	"":              {},
	"CHANGE_ME":     {},
	"changeme":      {},
	"secret":        {},
	"dev-secret":    {},
	"please-change": {},
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		Addr:          getenv("CAMPUS_HTTP_ADDR", defaultAddr),
		Env:           strings.ToLower(getenv("CAMPUS_ENV", defaultEnv)),
		DSN:           os.Getenv("CAMPUS_PG_DSN"),
		SigningSecret: os.Getenv("CAMPUS_JWT_SECRET"),
		Issuer:        getenv("CAMPUS_JWT_ISSUER", defaultIssuer),
		AccessTTL:     defaultAccessTTL,
		RefreshTTL:    defaultRefreshTTL,
	}

	var err error
	if cfg.AccessTTL, err = getduration("CAMPUS_ACCESS_TTL", defaultAccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = getduration("CAMPUS_REFRESH_TTL", defaultRefreshTTL); err != nil {
		return Config{}, err
	}

	if cfg.SigningSecret == "" && !cfg.Production() {
		// Development convenience only; production requires a real secret.
		cfg.SigningSecret = "dev-secret"
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Production() bool { return c.Env == "production" }

func (c Config) validate() error {
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return errors.New("config: refresh TTL must exceed access TTL")
	}
	if c.Production() {
		if _, placeholder := placeholderSecrets[c.SigningSecret]; placeholder {
			return errors.New("config: CAMPUS_JWT_SECRET is unset or a placeholder; refusing to start in production")
		}
		if len(c.SigningSecret) < 32 {
			return errors.New("config: CAMPUS_JWT_SECRET must be at least 32 bytes in production")
		}
		if c.DSN == "" {
			return errors.New("config: CAMPUS_PG_DSN is required in production")
		}
	}
	return nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
