package config

import (
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Config holds all application configuration. Values come from MAYA_*
// environment variables.
type Config struct {
	Host     string        `env:"HOST" envDefault:"localhost"`
	Port     int           `env:"PORT" envDefault:"3000"`
	Env      string        `env:"ENV" envDefault:"development"`
	LogLevel zapcore.Level `env:"LOG_LEVEL" envDefault:"info"`

	// BodyParse selects body-aware framing; false parses the request line only.
	BodyParse       bool          `env:"BODY_PARSE" envDefault:"true"`
	StaticDir       string        `env:"STATIC_DIR" envDefault:"public"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxConnections  int           `env:"MAX_CONNECTIONS" envDefault:"10000"`
	MaxRequestBytes int           `env:"MAX_REQUEST_BYTES" envDefault:"1048576"`
	ReusePort       bool          `env:"REUSE_PORT" envDefault:"false"`

	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"1m"`
	// CacheSize 0 disables the response cache.
	CacheSize int           `env:"CACHE_SIZE" envDefault:"100"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `env:"METRICS_ADDR"`

	CORSEnabled bool     `env:"CORS_ENABLED" envDefault:"false"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

// Prefix is prepended to every variable name.
const Prefix = "MAYA_"

// New loads configuration from the process environment.
func New() (*Config, error) {
	return Parse(env.Options{})
}

// Parse loads configuration with explicit options. Tests pass
// Options.Environment to avoid touching the process environment.
func Parse(opts env.Options) (*Config, error) {
	opts.Prefix = Prefix

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, errors.Wrap(err, "failed to parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return errors.Newf("invalid %sPORT %d", Prefix, c.Port)
	case c.MaxConnections < 0:
		return errors.Newf("invalid %sMAX_CONNECTIONS %d", Prefix, c.MaxConnections)
	case c.MaxRequestBytes < 0:
		return errors.Newf("invalid %sMAX_REQUEST_BYTES %d", Prefix, c.MaxRequestBytes)
	case c.CacheSize < 0:
		return errors.Newf("invalid %sCACHE_SIZE %d", Prefix, c.CacheSize)
	case c.CacheSize > 0 && c.CacheTTL <= 0:
		return errors.Newf("invalid %sCACHE_TTL %s", Prefix, c.CacheTTL)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
