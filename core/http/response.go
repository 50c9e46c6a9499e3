package http

import (
	"strconv"
	"strings"
)

// Common response header names
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderConnection    = "Connection"
	HeaderLocation      = "Location"
	HeaderSetCookie     = "Set-Cookie"
	HeaderAllow         = "Allow"
)

// Content types written by the terminal operations
const (
	MIMETextPlain = "text/plain"
	MIMETextHTML  = "text/html"
	MIMEJSON      = "application/json"
	MIMEProtobuf  = "application/x-protobuf"
)

// headerField is one response header with every value set for it.
type headerField struct {
	name   string
	values []string
}

// headerList keeps response headers in the order they were first set.
type headerList []headerField

func (h headerList) index(name string) int {
	for i := range h {
		if strings.EqualFold(h[i].name, name) {
			return i
		}
	}
	return -1
}

func (h *headerList) set(name, value string) {
	if i := h.index(name); i != -1 {
		(*h)[i].values = []string{value}
		return
	}
	*h = append(*h, headerField{name: name, values: []string{value}})
}

func (h *headerList) add(name, value string) {
	if i := h.index(name); i != -1 {
		(*h)[i].values = append((*h)[i].values, value)
		return
	}
	*h = append(*h, headerField{name: name, values: []string{value}})
}

func (h headerList) get(name string) []string {
	if i := h.index(name); i != -1 {
		return h[i].values
	}
	return nil
}

// buildResponse assembles status line, headers and body. contentType is
// written first unless the accumulated headers already carry one; each value
// of a multi-valued header gets its own line.
func buildResponse(code int, reason, contentType string, headers headerList, body []byte) []byte {
	buf := make([]byte, 0, 128+len(body))

	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(code), 10)
	buf = append(buf, ' ')
	buf = append(buf, reason...)
	buf = append(buf, "\r\n"...)

	if contentType != "" && headers.index(HeaderContentType) == -1 {
		buf = appendHeader(buf, HeaderContentType, contentType)
	}

	for _, f := range headers {
		if strings.EqualFold(f.name, HeaderContentLength) || strings.EqualFold(f.name, HeaderConnection) {
			continue
		}
		for _, v := range f.values {
			buf = appendHeader(buf, f.name, v)
		}
	}

	if bodyAllowed(code) {
		buf = appendHeader(buf, HeaderContentLength, strconv.Itoa(len(body)))
	}
	buf = appendHeader(buf, HeaderConnection, "close")
	buf = append(buf, "\r\n"...)

	if bodyAllowed(code) {
		buf = append(buf, body...)
	}
	return buf
}

func appendHeader(buf []byte, name, value string) []byte {
	buf = append(buf, name...)
	buf = append(buf, ": "...)
	buf = append(buf, value...)
	return append(buf, "\r\n"...)
}

func bodyAllowed(code int) bool {
	return code >= 200 && code != 204 && code != 304
}

// StatusText returns the reason phrase for a status code.
func StatusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 303:
		return "See Other"
	case 307:
		return "Temporary Redirect"
	case 308:
		return "Permanent Redirect"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 415:
		return "Unsupported Media Type"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}
