package core

import (
	"context"
	"io"
	"maps"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/searchktools/maya/core/http"
	"github.com/searchktools/maya/core/middleware"
	"github.com/searchktools/maya/core/observability"
	"github.com/searchktools/maya/core/pools"
	"github.com/searchktools/maya/core/router"
)

// HandlerFunc handles a routed request.
type HandlerFunc = http.HandlerFunc

// MiddlewareFunc runs before routing.
type MiddlewareFunc = middleware.HandlerFunc

// ErrServerClosed is returned by Serve and Run after Shutdown.
var ErrServerClosed = errors.New("server closed")

const (
	readChunkSize = 8192
	faviconPath   = "/favicon.ico"
)

// Engine accepts raw TCP connections and serves exactly one HTTP/1.x request
// on each. Every connection gets its own goroutine: the request is framed and
// parsed, CORS and the middleware pipeline run, the route handler is
// invoked, one response is written and the connection is closed.
//
// Routes and middleware are registered before serving. The first call to
// Serve (or Compile) freezes both tables.
type Engine struct {
	router   *router.CompiledRouter[HandlerFunc]
	pipeline *middleware.Pipeline
	cors     *middleware.CORS
	cache    *http.ResponseCache
	bytePool *pools.BytePool
	monitor  *observability.Monitor
	logger   *zap.Logger

	bodyParse       bool
	staticDir       string
	maxRequestBytes int
	readTimeout     time.Duration
	maxConnections  int
	reusePort       bool

	compileOnce sync.Once
	mu          sync.Mutex
	listeners   map[net.Listener]struct{}
	conns       sync.WaitGroup
	inShutdown  atomic.Bool
}

// NewEngine creates an engine. Without options it parses bodies, caches
// responses with the default TTL and capacity, and logs nothing.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		router:          router.NewCompiledRouter[HandlerFunc](),
		bytePool:        pools.NewBytePool(),
		logger:          zap.NewNop(),
		bodyParse:       true,
		staticDir:       "public",
		maxRequestBytes: 1 << 20,
		readTimeout:     10 * time.Second,
		listeners:       make(map[net.Listener]struct{}),
	}
	e.cache = http.NewResponseCache()

	for _, opt := range opts {
		opt(e)
	}

	e.pipeline = middleware.NewPipeline(
		middleware.WithLogger(e.logger),
		middleware.WithFailureHook(func(error) { e.monitor.MiddlewareFailed() }),
	)
	e.monitor.TrackCache(e.cache)
	e.monitor.TrackBytePool(e.bytePool)
	return e
}

// Route registration

func (e *Engine) GET(pattern string, h HandlerFunc)     { e.Handle("GET", pattern, h) }
func (e *Engine) POST(pattern string, h HandlerFunc)    { e.Handle("POST", pattern, h) }
func (e *Engine) PUT(pattern string, h HandlerFunc)     { e.Handle("PUT", pattern, h) }
func (e *Engine) PATCH(pattern string, h HandlerFunc)   { e.Handle("PATCH", pattern, h) }
func (e *Engine) DELETE(pattern string, h HandlerFunc)  { e.Handle("DELETE", pattern, h) }
func (e *Engine) HEAD(pattern string, h HandlerFunc)    { e.Handle("HEAD", pattern, h) }
func (e *Engine) OPTIONS(pattern string, h HandlerFunc) { e.Handle("OPTIONS", pattern, h) }

// Handle registers h for method and pattern. Patterns start with "/" and may
// contain :name segments. It panics after the engine has been compiled.
func (e *Engine) Handle(method, pattern string, h HandlerFunc) {
	if h == nil {
		panic("core: nil handler for " + method + " " + pattern)
	}
	e.router.Add(strings.ToUpper(method), pattern, h)
}

// Use adds global middleware.
func (e *Engine) Use(mw ...MiddlewareFunc) {
	e.pipeline.Use(mw...)
}

// UsePath adds middleware for request paths under prefix.
func (e *Engine) UsePath(prefix string, mw ...MiddlewareFunc) {
	e.pipeline.UsePath(prefix, mw...)
}

// EnableCORS applies a CORS policy to every request ahead of the pipeline.
// It panics after the engine has been compiled.
func (e *Engine) EnableCORS(opts ...middleware.CORSOption) {
	if e.router.Compiled() {
		panic("core: EnableCORS after Compile")
	}
	e.cors = middleware.NewCORS(opts...)
}

// Compile freezes routes and middleware. Serve calls it; calling it again is
// a no-op.
func (e *Engine) Compile() {
	e.compileOnce.Do(func() {
		e.router.Compile()
		e.pipeline.Compile()
		e.logger.Debug("engine compiled",
			zap.Int("routes", len(e.router.Routes())),
			zap.Int("middleware", e.pipeline.Len()),
			zap.Bool("cors", e.cors != nil),
		)
	})
}

// Routes returns the registered routes in registration order.
func (e *Engine) Routes() []*router.Route[HandlerFunc] { return e.router.Routes() }

// Cache returns the response cache, nil when caching is disabled.
func (e *Engine) Cache() *http.ResponseCache { return e.cache }

// Monitor returns the metrics monitor, nil when none was configured.
func (e *Engine) Monitor() *observability.Monitor { return e.monitor }

// Listen opens a TCP listener on addr with the engine's socket options.
func (e *Engine) Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: socketControl(e.reusePort)}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	return ln, nil
}

// Run listens on addr and serves until ctx is cancelled or Shutdown is called.
func (e *Engine) Run(ctx context.Context, addr string) error {
	ln, err := e.Listen(ctx, addr)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or Shutdown is
// called, then returns ErrServerClosed. ln is closed on return.
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	e.Compile()

	if e.maxConnections > 0 {
		ln = netutil.LimitListener(ln, e.maxConnections)
	}
	if !e.trackListener(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer e.untrackListener(ln)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	e.logger.Info("serving", zap.String("addr", ln.Addr().String()))

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if e.inShutdown.Load() || ctx.Err() != nil {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				e.logger.Warn("accept failed, retrying", zap.Duration("backoff", backoff), zap.Error(err))
				time.Sleep(backoff)
				continue
			}
			return errors.Wrap(err, "accepting connection")
		}
		backoff = 0

		if !e.startConn() {
			_ = conn.Close()
			return ErrServerClosed
		}
		go e.serveConn(conn)
	}
}

// Shutdown stops accepting connections and waits for in-flight requests to
// finish or ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.inShutdown.Store(true)
	for ln := range e.listeners {
		_ = ln.Close()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for connections to finish")
	}
}

func (e *Engine) trackListener(ln net.Listener) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inShutdown.Load() {
		return false
	}
	e.listeners[ln] = struct{}{}
	return true
}

// startConn counts a new connection unless Shutdown has begun. Add and the
// shutdown flag share e.mu so no Add can follow Shutdown's Wait.
func (e *Engine) startConn() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inShutdown.Load() {
		return false
	}
	e.conns.Add(1)
	return true
}

func (e *Engine) untrackListener(ln net.Listener) {
	e.mu.Lock()
	delete(e.listeners, ln)
	e.mu.Unlock()
	_ = ln.Close()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

// serveConn reads one request from conn, answers it and closes conn.
func (e *Engine) serveConn(conn net.Conn) {
	defer e.conns.Done()
	defer conn.Close()

	e.monitor.ConnOpened()
	defer e.monitor.ConnClosed()

	req, err := e.readRequest(conn)
	if err != nil {
		if errors.Is(err, http.ErrInvalidRequest) {
			e.monitor.ParseFailed()
			e.logger.Debug("rejecting unparseable request", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			if werr := http.WriteError(conn, http.ErrBadRequest); werr != nil {
				e.logger.Debug("writing parse error", zap.Error(werr))
			}
			return
		}
		e.logger.Debug("reading request", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
		return
	}
	if req == nil {
		return
	}

	_ = conn.SetReadDeadline(time.Time{})
	e.handle(conn, req)
}

// readRequest feeds conn into a framer until a request is complete. A nil
// request with a nil error means the peer closed without sending anything.
func (e *Engine) readRequest(conn net.Conn) (*http.Request, error) {
	framer := http.NewFramer(e.bodyParse, e.maxRequestBytes)
	buf := e.bytePool.Get(readChunkSize)
	defer e.bytePool.Put(buf)

	for {
		if e.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(e.readTimeout))
		}
		n, err := conn.Read(*buf)
		if n > 0 {
			req, ferr := framer.Feed((*buf)[:n])
			if ferr != nil || req != nil {
				return req, ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return framer.Flush()
			}
			return nil, errors.Wrap(err, "reading request")
		}
	}
}

// handle dispatches req and records the outcome.
func (e *Engine) handle(w io.Writer, req *http.Request) {
	start := time.Now()
	c := http.NewContext(w, req, http.ContextConfig{
		Cache:     e.cache,
		StaticDir: e.staticDir,
		Logger:    e.logger,
	})

	route := e.dispatch(c)
	if c.Written() {
		e.monitor.ObserveRequest(req.Method, route, c.Status(), time.Since(start))
	}
}

// dispatch runs CORS, middleware, routing and the handler in that order. It
// returns the matched route pattern, "" when the request never reached a
// handler.
func (e *Engine) dispatch(c *http.Context) string {
	if c.RouterPath() == faviconPath {
		if _, _, err := e.router.Lookup(c.Method(), faviconPath); errors.Is(err, router.ErrNotFound) {
			return ""
		}
	}

	if e.cors != nil && e.cors.Apply(c) {
		return ""
	}
	if e.pipeline.Execute(c) {
		return ""
	}

	route, params, err := e.router.Lookup(c.Method(), c.RouterPath())
	if err != nil {
		var notAllowed *router.MethodNotAllowedError
		if errors.As(err, &notAllowed) {
			c.SetHeader(http.HeaderAllow, strings.Join(notAllowed.Allowed, ", "))
			e.sendError(c, http.ErrMethodNotAllowed)
		} else {
			e.sendError(c, http.ErrRouteNotFound)
		}
		return ""
	}

	maps.Copy(c.Request().Params, params)
	e.invoke(c, route)
	return route.Pattern
}

// invoke runs the handler and makes sure exactly one response is written.
// A returned *http.Error keeps its status; any other error, a panic or a
// handler that produced nothing becomes 500.
func (e *Engine) invoke(c *http.Context, route *router.Route[HandlerFunc]) {
	result, err := callHandler(route.Handler, c)
	if err != nil {
		e.monitor.HandlerFailed()
		e.logger.Error("handler failed",
			zap.String("method", c.Method()),
			zap.String("route", route.Pattern),
			zap.Error(err),
		)
		if !c.Written() {
			e.sendError(c, http.AsError(err))
		}
		return
	}

	switch {
	case result != nil && c.Written():
		e.logger.Warn("handler wrote a response and returned a result, result dropped",
			zap.String("route", route.Pattern))
	case result != nil:
		if err := result.Render(c); err != nil {
			e.logger.Debug("rendering result", zap.String("route", route.Pattern), zap.Error(err))
		}
	case !c.Written():
		e.monitor.HandlerFailed()
		e.logger.Error("handler produced no response", zap.String("route", route.Pattern))
		e.sendError(c, http.ErrInternal)
	}
}

func callHandler(h HandlerFunc, c *http.Context) (result http.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("handler panic: %v", r)
		}
	}()
	return h(c)
}

func (e *Engine) sendError(c *http.Context, herr *http.Error) {
	if err := c.Error(herr); err != nil {
		e.logger.Debug("writing error response", zap.Int("status", herr.Code), zap.Error(err))
	}
}
