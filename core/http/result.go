package http

import "google.golang.org/protobuf/proto"

// HandlerFunc handles a request. A handler either returns a Result for the
// engine to render or writes the response itself through the Context and
// returns nil. A returned error becomes a 500 response.
type HandlerFunc func(c *Context) (Result, error)

// Result is a response a handler asks the engine to write.
type Result interface {
	Render(c *Context) error
}

// TextResult renders as text/plain.
type TextResult struct {
	Status int
	Body   string
}

// Text returns a 200 text result.
func Text(body string) TextResult {
	return TextResult{Status: 200, Body: body}
}

func (r TextResult) WithStatus(code int) TextResult {
	r.Status = code
	return r
}

func (r TextResult) Render(c *Context) error {
	return c.String(r.Status, r.Body)
}

// JSONResult renders Value as application/json.
type JSONResult struct {
	Status int
	Value  any
}

// JSON returns a 200 JSON result.
func JSON(v any) JSONResult {
	return JSONResult{Status: 200, Value: v}
}

func (r JSONResult) WithStatus(code int) JSONResult {
	r.Status = code
	return r
}

func (r JSONResult) Render(c *Context) error {
	return c.JSON(r.Status, r.Value)
}

// ProtoResult renders Message as application/x-protobuf.
type ProtoResult struct {
	Status  int
	Message proto.Message
}

// Proto returns a 200 protobuf result.
func Proto(m proto.Message) ProtoResult {
	return ProtoResult{Status: 200, Message: m}
}

func (r ProtoResult) WithStatus(code int) ProtoResult {
	r.Status = code
	return r
}

func (r ProtoResult) Render(c *Context) error {
	return c.ProtoBuf(r.Status, r.Message)
}

// FileResult renders a static HTML file verbatim.
type FileResult struct {
	Status int
	Name   string
}

// File returns a 200 file result for name, relative to the static directory.
func File(name string) FileResult {
	return FileResult{Status: 200, Name: name}
}

func (r FileResult) WithStatus(code int) FileResult {
	r.Status = code
	return r
}

func (r FileResult) Render(c *Context) error {
	return c.File(r.Status, r.Name)
}

// RedirectResult renders a redirect to URL.
type RedirectResult struct {
	Status int
	URL    string
}

// Redirect returns a 302 redirect result.
func Redirect(url string) RedirectResult {
	return RedirectResult{Status: 302, URL: url}
}

func (r RedirectResult) WithStatus(code int) RedirectResult {
	r.Status = code
	return r
}

func (r RedirectResult) Render(c *Context) error {
	return c.Redirect(r.Status, r.URL)
}
