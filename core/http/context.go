package http

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/searchktools/maya/core/codec"
)

// StaticExt is the only file extension File will serve.
const StaticExt = ".html"

// Context is the per-request view handed to middleware and handlers. It reads
// from the parsed Request and writes exactly one response to the connection.
//
// A Context is used by a single goroutine and is discarded after the
// response is written.
type Context struct {
	conn    io.Writer
	request *Request

	headers       headerList
	values        map[string]any
	authenticated bool

	written   bool
	status    int
	skipCache bool

	cache     *ResponseCache
	staticDir string
	logger    *zap.Logger
}

// ContextConfig carries the engine-owned collaborators of a Context.
type ContextConfig struct {
	// Cache may be nil to disable response caching.
	Cache     *ResponseCache
	StaticDir string
	Logger    *zap.Logger
}

// NewContext creates a context writing to w.
func NewContext(w io.Writer, req *Request, cfg ContextConfig) *Context {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if req.Params == nil {
		req.Params = make(map[string]string)
	}
	return &Context{
		conn:      w,
		request:   req,
		values:    make(map[string]any),
		cache:     cfg.Cache,
		staticDir: cfg.StaticDir,
		logger:    logger,
	}
}

// Request information methods

func (c *Context) Request() *Request { return c.request }

func (c *Context) Method() string { return c.request.Method }

func (c *Context) Path() string { return c.request.Path }

func (c *Context) RouterPath() string { return c.request.RouterPath }

func (c *Context) Header(name string) string { return c.request.Header(name) }

func (c *Context) Body() []byte { return c.request.Body }

// Query returns a single query parameter, "" if absent.
func (c *Context) Query(key string) string { return c.request.Query[key] }

// QueryAll returns every query parameter.
func (c *Context) QueryAll() map[string]string { return c.request.Query }

// Param returns a path parameter captured by the router.
func (c *Context) Param(key string) string { return c.request.Params[key] }

func (c *Context) Params() map[string]string { return c.request.Params }

// Cookie returns a request cookie, "" if absent.
func (c *Context) Cookie(name string) string { return c.request.Cookies[name] }

func (c *Context) Cookies() map[string]string { return c.request.Cookies }

// Bind decodes the request body into v using the codec selected by the
// request Content-Type.
func (c *Context) Bind(v any) error {
	cd, err := codec.ForContentType(c.request.Header(HeaderContentType))
	if err != nil {
		return err
	}
	return cd.Decode(c.request.Body, v)
}

// Scratch store and authentication flag

func (c *Context) Set(key string, value any) { c.values[key] = value }

func (c *Context) Get(key string) any { return c.values[key] }

func (c *Context) SetAuthentication(ok bool) { c.authenticated = ok }

func (c *Context) IsAuthenticated() bool { return c.authenticated }

// Response headers

// SetHeader sets a response header. Set-Cookie values accumulate; any other
// name replaces the previous value.
func (c *Context) SetHeader(name, value string) {
	if isSetCookie(name) {
		c.headers.add(HeaderSetCookie, value)
		return
	}
	c.headers.set(name, value)
}

// AddHeader appends a value; each value is written on its own header line.
func (c *Context) AddHeader(name, value string) {
	c.headers.add(name, value)
}

// ResponseHeader returns the values accumulated for a response header.
func (c *Context) ResponseHeader(name string) []string {
	return c.headers.get(name)
}

// SetCookie adds a Set-Cookie header. opts are applied over
// DefaultCookieOptions.
func (c *Context) SetCookie(name, value string, opts ...CookieOption) {
	c.headers.add(HeaderSetCookie, FormatCookie(name, value, opts...))
}

// Written reports whether a terminal operation already ran. A written
// context no longer accepts output.
func (c *Context) Written() bool { return c.written }

// Status returns the status code written, 0 before a terminal operation.
func (c *Context) Status() int { return c.status }

// SkipCache makes the next terminal operation neither read nor fill the
// response cache. Used for responses whose headers depend on the request.
func (c *Context) SkipCache() { c.skipCache = true }

// Terminal operations. Each one writes the complete response once; calling a
// second one returns ErrAlreadyWritten without writing.

// String sends a text/plain response.
func (c *Context) String(code int, s string) error {
	return c.send(code, MIMETextPlain, []byte(s))
}

// JSON sends v as application/json. If v cannot be serialized a fixed 500
// payload is sent instead and no error is returned for the failure itself.
func (c *Context) JSON(code int, v any) error {
	data, err := codec.JSON.Encode(v)
	if err != nil {
		c.logger.Error("serializing JSON response", zap.Error(err))
		return c.send(500, MIMEJSON, []byte(`{"error":"Error serializing JSON"}`))
	}
	return c.send(code, MIMEJSON, data)
}

// ProtoBuf sends m as application/x-protobuf.
func (c *Context) ProtoBuf(code int, m proto.Message) error {
	data, err := codec.Protobuf.Encode(m)
	if err != nil {
		c.logger.Error("serializing protobuf response", zap.Error(err))
		return c.Error(ErrInternal)
	}
	return c.send(code, MIMEProtobuf, data)
}

// File sends the verbatim contents of name, resolved inside the static
// directory. Only StaticExt files are served; others get 415.
func (c *Context) File(code int, name string) error {
	if filepath.Ext(name) != StaticExt {
		return c.send(ErrUnsupportedMediaType.Code, MIMETextPlain, []byte("Unsupported file type, give HTML"))
	}

	data, err := os.ReadFile(c.staticPath(name))
	if err != nil {
		c.logger.Error("reading static file", zap.String("file", name), zap.Error(err))
		return c.send(ErrInternal.Code, MIMETextPlain, []byte(ErrInternal.Message))
	}
	return c.send(code, MIMETextHTML, data)
}

// Redirect sets Location and sends an empty response with code. Redirects
// are not cached: the target lives in a header, not in the cache key.
func (c *Context) Redirect(code int, url string) error {
	if c.written {
		return ErrAlreadyWritten
	}
	c.headers.set(HeaderLocation, url)
	c.written = true
	c.status = code
	return c.write(buildResponse(code, StatusText(code), MIMETextPlain, c.headers, nil))
}

// Error sends e as a JSON error payload with the accumulated headers. Error
// responses bypass the cache.
func (c *Context) Error(e *Error) error {
	if c.written {
		return ErrAlreadyWritten
	}
	c.written = true
	c.status = e.Code
	return c.write(errorResponse(e, c.headers))
}

func (c *Context) send(code int, contentType string, body []byte) error {
	if c.written {
		return ErrAlreadyWritten
	}
	c.written = true
	c.status = code

	cache := c.cache
	if c.skipCache {
		cache = nil
	}

	var key CacheKey
	if cache != nil {
		key = CacheKey{Status: code, ContentType: contentType, Body: string(body)}
		if resp, ok := cache.Get(key); ok {
			return c.write(resp)
		}
	}

	resp := buildResponse(code, StatusText(code), contentType, c.headers, body)
	if cache != nil {
		cache.Put(key, resp)
	}
	return c.write(resp)
}

func (c *Context) write(resp []byte) error {
	_, err := c.conn.Write(resp)
	return errors.Wrap(err, "writing response")
}

// staticPath joins name onto the static directory without letting it
// escape through "..".
func (c *Context) staticPath(name string) string {
	return filepath.Join(c.staticDir, filepath.Clean("/"+name))
}

func isSetCookie(name string) bool {
	return strings.EqualFold(name, HeaderSetCookie)
}
