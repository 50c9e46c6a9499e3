package http

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidRequest is the root of every parse failure.
var ErrInvalidRequest = errors.New("invalid HTTP request")

// ParseError reports which part of a request could not be parsed.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// Unwrap lets errors.Is(err, ErrInvalidRequest) match every ParseError.
func (e *ParseError) Unwrap() error { return ErrInvalidRequest }

var crlfcrlf = []byte("\r\n\r\n")

// ParseRequest parses a complete request: request line, header block and body.
// The returned Request does not alias data.
func ParseRequest(data []byte) (*Request, error) {
	lineEnd := bytes.IndexByte(data, '\n')
	if lineEnd == -1 {
		return nil, &ParseError{Field: "headers", Reason: "unterminated header block"}
	}

	req := newRequest()
	if err := parseRequestLine(req, trimCR(data[:lineEnd])); err != nil {
		return nil, err
	}

	rest := data[lineEnd+1:]
	for {
		i := bytes.IndexByte(rest, '\n')
		if i == -1 {
			return nil, &ParseError{Field: "headers", Reason: "unterminated header block"}
		}
		line := trimCR(rest[:i])
		rest = rest[i+1:]
		if len(line) == 0 {
			break
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		req.SetHeader(
			string(bytes.TrimSpace(line[:colon])),
			string(bytes.TrimSpace(line[colon+1:])),
		)
	}

	if cookie := req.Header("Cookie"); cookie != "" {
		parseCookies(req.Cookies, cookie)
	}

	if cl := req.Header("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, &ParseError{Field: "Content-Length", Reason: strconv.Quote(cl) + " is not a valid length"}
		}
		if n < len(rest) {
			rest = rest[:n]
		}
	}

	if len(rest) > 0 {
		req.Body = append([]byte(nil), rest...)
	}

	return req, nil
}

// ParseRequestLine parses only the first line of data. Headers, cookies and
// body stay empty. Used by the headers-only fast path.
func ParseRequestLine(data []byte) (*Request, error) {
	line := data
	if i := bytes.IndexByte(data, '\n'); i != -1 {
		line = data[:i]
	}

	req := newRequest()
	if err := parseRequestLine(req, trimCR(line)); err != nil {
		return nil, err
	}
	return req, nil
}

// parseRequestLine fills method, path and protocol. The protocol token is
// optional.
func parseRequestLine(req *Request, line []byte) error {
	fields := strings.Fields(string(line))
	if len(fields) < 2 {
		return &ParseError{Field: "request line", Reason: "expected at least method and path"}
	}

	req.Method = fields[0]
	req.Path = fields[1]
	if len(fields) > 2 {
		req.Proto = fields[2]
	}

	req.RouterPath = req.Path
	if idx := strings.IndexByte(req.Path, '?'); idx != -1 {
		req.RouterPath = req.Path[:idx]
		parseQuery(req.Query, req.Path[idx+1:])
	}
	return nil
}

// parseQuery decodes a query string. Later duplicates overwrite earlier ones.
func parseQuery(dst map[string]string, query string) {
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		dst[unescape(key)] = unescape(value)
	}
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// parseCookies splits a Cookie header on ';' into name/value pairs.
func parseCookies(dst map[string]string, header string) {
	for _, part := range strings.Split(header, ";") {
		name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		dst[name] = strings.TrimSpace(value)
	}
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
