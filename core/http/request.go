package http

import "strings"

// Request is one parsed inbound HTTP request.
//
// A Request is created by the parser and is read-only afterwards, except for
// Params which the engine fills once the route has been resolved.
type Request struct {
	Method string
	// Path is the raw request target, query string included.
	Path string
	// RouterPath is Path without the query string.
	RouterPath string
	Proto      string

	Query   map[string]string
	Headers map[string]string // keys are lower-cased
	Cookies map[string]string
	Params  map[string]string

	Body []byte
}

func newRequest() *Request {
	return &Request{
		Query:   make(map[string]string),
		Headers: make(map[string]string),
		Cookies: make(map[string]string),
		Params:  make(map[string]string),
	}
}

// Header returns the value of the named header. Names are matched
// case-insensitively; a missing header yields "".
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// SetHeader stores a header value. A repeated name replaces the earlier value.
func (r *Request) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[strings.ToLower(name)] = value
}
