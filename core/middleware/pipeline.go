package middleware

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/searchktools/maya/core/http"
)

// HandlerFunc is a middleware. Returning a Result halts the pipeline and the
// Result is rendered; writing through the Context also halts it; an error or
// a panic halts it with a 500 failure payload; (nil, nil) continues.
type HandlerFunc func(c *http.Context) (http.Result, error)

// FailurePayload is written when a middleware fails.
var FailurePayload = http.ErrorPayload{Message: "Middleware error", Status: 500}

type scoped struct {
	prefix string
	fn     HandlerFunc
}

// Pipeline runs global middleware, then middleware registered for a path
// prefix of the request.
type Pipeline struct {
	global   []HandlerFunc
	scoped   []scoped
	compiled bool

	logger    *zap.Logger
	onFailure func(err error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger failures are reported to.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger.Named("pipeline") }
}

// WithFailureHook registers fn to be called with every middleware failure.
func WithFailureHook(fn func(err error)) Option {
	return func(p *Pipeline) { p.onFailure = fn }
}

// NewPipeline creates an empty pipeline.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		global: make([]HandlerFunc, 0, 8),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Use adds global middleware.
func (p *Pipeline) Use(fns ...HandlerFunc) *Pipeline {
	p.mustBeOpen()
	p.global = append(p.global, fns...)
	return p
}

// UsePath adds middleware that runs for request paths starting with prefix.
// The match is a plain string prefix, so "/api" also covers "/apix".
func (p *Pipeline) UsePath(prefix string, fns ...HandlerFunc) *Pipeline {
	p.mustBeOpen()
	if prefix == "" || prefix[0] != '/' {
		panic("middleware: prefix must begin with '/': " + prefix)
	}
	for _, fn := range fns {
		p.scoped = append(p.scoped, scoped{prefix: prefix, fn: fn})
	}
	return p
}

// Compile freezes the pipeline. It is read without locks afterwards.
func (p *Pipeline) Compile() *Pipeline {
	p.global = p.global[:len(p.global):len(p.global)]
	p.compiled = true
	return p
}

// Len returns the number of registered middleware.
func (p *Pipeline) Len() int { return len(p.global) + len(p.scoped) }

// Chain returns the middleware that apply to routerPath, in execution order.
func (p *Pipeline) Chain(routerPath string) []HandlerFunc {
	if len(p.scoped) == 0 {
		return p.global
	}
	chain := make([]HandlerFunc, 0, len(p.global)+len(p.scoped))
	chain = append(chain, p.global...)
	for _, s := range p.scoped {
		if matchPrefix(s.prefix, routerPath) {
			chain = append(chain, s.fn)
		}
	}
	return chain
}

// Execute runs the chain for c. It reports whether the pipeline halted, in
// which case a response has been written and routing must not happen.
func (p *Pipeline) Execute(c *http.Context) (halted bool) {
	for _, fn := range p.Chain(c.RouterPath()) {
		result, err := p.run(fn, c)
		if err != nil {
			p.fail(c, err)
			return true
		}
		if result != nil {
			if err := result.Render(c); err != nil {
				p.logger.Error("rendering middleware result", zap.String("path", c.RouterPath()), zap.Error(err))
			}
			return true
		}
		if c.Written() {
			return true
		}
	}
	return false
}

// run calls fn, turning a panic into an error.
func (p *Pipeline) run(fn HandlerFunc, c *http.Context) (result http.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("middleware panic: %v", r)
		}
	}()
	return fn(c)
}

func (p *Pipeline) fail(c *http.Context, err error) {
	p.logger.Error("middleware failed",
		zap.String("method", c.Method()),
		zap.String("path", c.RouterPath()),
		zap.Error(err),
	)
	if p.onFailure != nil {
		p.onFailure(err)
	}
	if c.Written() {
		return
	}
	if werr := c.JSON(FailurePayload.Status, FailurePayload); werr != nil {
		p.logger.Debug("writing middleware failure", zap.Error(werr))
	}
}

func (p *Pipeline) mustBeOpen() {
	if p.compiled {
		panic("middleware: pipeline modified after Compile")
	}
}

func matchPrefix(prefix, path string) bool {
	return prefix == "/" || strings.HasPrefix(path, prefix)
}
