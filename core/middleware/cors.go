package middleware

import (
	"strconv"

	"github.com/samber/lo"

	"github.com/searchktools/maya/core/http"
)

// CORS response headers
const (
	HeaderAllowOrigin  = "Access-Control-Allow-Origin"
	HeaderAllowMethods = "Access-Control-Allow-Methods"
	HeaderAllowHeaders = "Access-Control-Allow-Headers"
	HeaderMaxAge       = "Access-Control-Max-Age"
)

// CORSConfig holds the cross-origin policy.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods string
	AllowedHeaders string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// DefaultCORSConfig allows every origin.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowedHeaders: "Content-Type, Authorization",
		MaxAge:         86400,
	}
}

// CORSOption configures the CORS policy.
type CORSOption func(*CORSConfig)

// WithAllowedOrigins replaces the allowed origins. "*" allows any origin.
func WithAllowedOrigins(origins ...string) CORSOption {
	return func(cfg *CORSConfig) { cfg.AllowedOrigins = origins }
}

func WithAllowedMethods(methods string) CORSOption {
	return func(cfg *CORSConfig) { cfg.AllowedMethods = methods }
}

func WithAllowedHeaders(headers string) CORSOption {
	return func(cfg *CORSConfig) { cfg.AllowedHeaders = headers }
}

func WithMaxAge(seconds int) CORSOption {
	return func(cfg *CORSConfig) { cfg.MaxAge = seconds }
}

// CORS applies a CORSConfig ahead of the middleware pipeline.
type CORS struct {
	cfg      CORSConfig
	wildcard bool
}

// NewCORS builds a policy from the defaults with opts applied.
func NewCORS(opts ...CORSOption) *CORS {
	cfg := DefaultCORSConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewCORSFromConfig(cfg)
}

// NewCORSFromConfig builds a policy from cfg as given.
func NewCORSFromConfig(cfg CORSConfig) *CORS {
	return &CORS{cfg: cfg, wildcard: lo.Contains(cfg.AllowedOrigins, "*")}
}

// Config returns the policy in effect.
func (p *CORS) Config() CORSConfig { return p.cfg }

// Apply sets the CORS headers on c. It reports whether it answered the
// request itself: a disallowed origin gets "CORS not allowed" with status
// 200, and a preflight OPTIONS request gets an empty 204.
func (p *CORS) Apply(c *http.Context) (handled bool) {
	c.SetHeader(HeaderAllowMethods, p.cfg.AllowedMethods)
	c.SetHeader(HeaderAllowHeaders, p.cfg.AllowedHeaders)

	origin := c.Header("Origin")
	if !p.wildcard && !lo.Contains(p.cfg.AllowedOrigins, origin) {
		c.SkipCache()
		_ = c.String(200, "CORS not allowed")
		return true
	}

	if p.wildcard {
		c.SetHeader(HeaderAllowOrigin, "*")
	} else {
		c.SetHeader(HeaderAllowOrigin, origin)
	}

	if c.Method() == "OPTIONS" {
		c.SetHeader(HeaderMaxAge, strconv.Itoa(p.cfg.MaxAge))
		c.SkipCache()
		_ = c.String(204, "")
		return true
	}
	return false
}

// Middleware exposes the policy as an ordinary middleware, for use on a
// path prefix instead of engine-wide.
func (p *CORS) Middleware() HandlerFunc {
	return func(c *http.Context) (http.Result, error) {
		p.Apply(c)
		return nil, nil
	}
}
