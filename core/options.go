package core

import (
	"time"

	"go.uber.org/zap"

	"github.com/searchktools/maya/core/http"
	"github.com/searchktools/maya/core/middleware"
	"github.com/searchktools/maya/core/observability"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger.Named("engine") }
}

// WithCache replaces the response cache. nil disables caching.
func WithCache(cache *http.ResponseCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithBodyParse selects body-aware framing (true) or first-line-only framing.
func WithBodyParse(enabled bool) Option {
	return func(e *Engine) { e.bodyParse = enabled }
}

// WithStaticDir sets the directory File responses are served from.
func WithStaticDir(dir string) Option {
	return func(e *Engine) { e.staticDir = dir }
}

// WithMaxRequestBytes caps the bytes buffered for one request; 0 disables
// the cap.
func WithMaxRequestBytes(n int) Option {
	return func(e *Engine) { e.maxRequestBytes = n }
}

// WithReadTimeout bounds each read while a request is being framed.
func WithReadTimeout(d time.Duration) Option {
	return func(e *Engine) { e.readTimeout = d }
}

// WithMaxConnections limits concurrently served connections; 0 means no limit.
func WithMaxConnections(n int) Option {
	return func(e *Engine) { e.maxConnections = n }
}

// WithMonitor enables metrics.
func WithMonitor(m *observability.Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

// WithCORS enables the CORS policy from engine construction.
func WithCORS(opts ...middleware.CORSOption) Option {
	return func(e *Engine) { e.cors = middleware.NewCORS(opts...) }
}

// WithReusePort sets SO_REUSEPORT on listeners opened by Listen and Run.
func WithReusePort(enabled bool) Option {
	return func(e *Engine) { e.reusePort = enabled }
}
