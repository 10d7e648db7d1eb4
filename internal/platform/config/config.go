// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultSessionSecret is the development signing key. Production refuses it.
const DefaultSessionSecret = "dev-secret-change-in-production"

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Addr     string `env:"ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Session  Session  `envPrefix:"SESSION_"`
	Security Security
	Database Database `envPrefix:"DATABASE_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	Kafka    Kafka    `envPrefix:"KAFKA_"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Session configures the signed session cookie.
type Session struct {
	Secret   string        `env:"SECRET" envDefault:"dev-secret-change-in-production"`
	Cookie   string        `env:"COOKIE" envDefault:"session_token"`
	Issuer   string        `env:"ISSUER" envDefault:"gatekeeper"`
	Audience string        `env:"AUDIENCE"`
	TTL      time.Duration `env:"TTL" envDefault:"8h"`
}

// Security holds the edge settings: proxies, CORS and the header switches.
type Security struct {
	CORSAllowedOrigins    []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies        []string `env:"TRUSTED_PROXIES" envSeparator:","`
	TrustForwardedHeaders bool     `env:"TRUST_FORWARDED_HEADERS"`
	EnforceHTTPS          bool     `env:"ENFORCE_HTTPS" envDefault:"true"`
	CSPEnabled            bool     `env:"CSP_ENABLED" envDefault:"true"`
	HSTSEnabled           bool     `env:"HSTS_ENABLED" envDefault:"true"`
	GlobalRPS             int      `env:"GLOBAL_RPS" envDefault:"1000"`
	GlobalBurst           int      `env:"GLOBAL_BURST" envDefault:"2000"`
}

type Database struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

type Redis struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"20"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"2s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"500ms"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"500ms"`
}

type Kafka struct {
	Brokers string `env:"BROKERS"`
	Topic   string `env:"TOPIC" envDefault:"gatekeeper.security-events"`
	Acks    string `env:"ACKS" envDefault:"all"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return finish(&cfg)
}

// Parse builds a Config from an explicit environment map.
func Parse(environ map[string]string) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environ})
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.IsProduction() && (c.Session.Secret == "" || c.Session.Secret == DefaultSessionSecret) {
		errs = append(errs, errors.New("SESSION_SECRET must be set in production"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.Security.GlobalRPS <= 0 || c.Security.GlobalBurst <= 0 {
		errs = append(errs, errors.New("GLOBAL_RPS and GLOBAL_BURST must be positive"))
	}
	if _, err := c.ProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// ProxyPrefixes parses TRUSTED_PROXIES. Bare addresses become single-host
// prefixes.
func (c *Config) ProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.Security.TrustedProxies))
	for _, raw := range c.Security.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
