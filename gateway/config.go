package gateway

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "mem"
	BackendRedis    = "redis"
	BackendPostgres = "pg"

	ACSModeSimulator = "simulator"
	ACSModeISO8583   = "iso8583"
)

// Config is a configuration for the payment gateway application
type Config struct {
	HTTPAddr string

	// Backend selects the token and session store: mem, redis or pg.
	Backend  string
	RedisURL string
	DBDSN    string

	TokenTTL      time.Duration
	SessionTTL    time.Duration
	ACSTimeout    time.Duration
	SweepInterval time.Duration

	// ACSMode is simulator (in-process) or iso8583 (remote ACS at ACSAddr).
	ACSMode string
	ACSAddr string
	// ACSEmbed starts an ISO 8583 simulator at ACSAddr inside the app.
	ACSEmbed      bool
	ACSURL        string
	ACSSigningKey string

	// BINTablePath overrides the embedded BIN table.
	BINTablePath string
	PANHashKey   string

	// PKCS11Lib enables HSM randomness for identifiers when built with softhsm.
	PKCS11Lib  string
	PKCS11Slot uint
	PKCS11PIN  string
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:      "localhost:8080",
		Backend:       BackendMemory,
		TokenTTL:      15 * time.Minute,
		SessionTTL:    10 * time.Minute,
		ACSTimeout:    10 * time.Second,
		SweepInterval: time.Minute,
		ACSMode:       ACSModeSimulator,
		ACSAddr:       "localhost:8583",
		ACSURL:        "http://localhost:8080/payment/acs/authenticate",
		ACSSigningKey: "acs-simulator-dev-key",
		PANHashKey:    "dev-secret-pepper",
	}
}

// LoadConfig reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := DefaultConfig()
	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.Backend = strings.ToLower(getenv("REPO_BACKEND", cfg.Backend))
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.DBDSN = getenv("DB_DSN", cfg.DBDSN)
	cfg.ACSMode = strings.ToLower(getenv("ACS_MODE", cfg.ACSMode))
	cfg.ACSAddr = getenv("ACS_ADDR", cfg.ACSAddr)
	cfg.ACSURL = getenv("ACS_URL", cfg.ACSURL)
	cfg.ACSSigningKey = getenv("ACS_SIGNING_KEY", cfg.ACSSigningKey)
	cfg.BINTablePath = getenv("BIN_TABLE_PATH", cfg.BINTablePath)
	cfg.PANHashKey = getenv("PAN_HASH_KEY", cfg.PANHashKey)
	cfg.PKCS11Lib = getenv("PKCS11_LIB", cfg.PKCS11Lib)
	cfg.PKCS11PIN = getenv("PKCS11_PIN", cfg.PKCS11PIN)

	var err error
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", cfg.SessionTTL); err != nil {
		return nil, err
	}
	if cfg.ACSTimeout, err = getDuration("ACS_TIMEOUT", cfg.ACSTimeout); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if v := os.Getenv("ACS_EMBED"); v != "" {
		if cfg.ACSEmbed, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("parsing ACS_EMBED: %w", err)
		}
	}
	if v := os.Getenv("PKCS11_SLOT"); v != "" {
		slot, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing PKCS11_SLOT: %w", err)
		}
		cfg.PKCS11Slot = uint(slot)
	}

	return cfg, cfg.Validate()
}

// Validate checks the combinations LoadConfig cannot express with defaults.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for redis backend")
		}
	case BackendPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required for pg backend")
		}
	default:
		return fmt.Errorf("unsupported REPO_BACKEND=%s", c.Backend)
	}

	switch c.ACSMode {
	case ACSModeSimulator, ACSModeISO8583:
	default:
		return fmt.Errorf("unsupported ACS_MODE=%s", c.ACSMode)
	}

	if c.TokenTTL <= 0 || c.SessionTTL <= 0 || c.ACSTimeout <= 0 {
		return fmt.Errorf("TOKEN_TTL, SESSION_TTL and ACS_TIMEOUT must be positive")
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("SWEEP_INTERVAL must not be negative")
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", k, err)
	}
	return d, nil
}
