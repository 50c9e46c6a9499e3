package http

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	raw := "POST /users/42?name=ann&x=1&x=2 HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Content-Type: application/json\r\n" +
		"X-Dup: 1\r\n" +
		"X-Dup: 2\r\n" +
		"Cookie: sid=abc; theme = dark\r\n" +
		"Content-Length: 5\r\n" +
		"\r\n" +
		"helloEXTRA"

	req, err := ParseRequest([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/users/42?name=ann&x=1&x=2", req.Path)
	assert.Equal(t, "/users/42", req.RouterPath)
	assert.Equal(t, "HTTP/1.1", req.Proto)
	assert.Equal(t, map[string]string{"name": "ann", "x": "2"}, req.Query)
	assert.Equal(t, "example.com", req.Header("Host"))
	assert.Equal(t, "2", req.Header("x-dup"), "last duplicate wins")
	assert.Equal(t, map[string]string{"sid": "abc", "theme": "dark"}, req.Cookies)
	assert.Equal(t, "hello", string(req.Body))
	assert.Empty(t, req.Params)
}

func TestParseRequestBodyWithoutContentLength(t *testing.T) {
	req, err := ParseRequest([]byte("PUT /x HTTP/1.1\r\nHost: a\r\n\r\nraw body"))
	require.NoError(t, err)
	assert.Equal(t, "raw body", string(req.Body))
}

func TestParseRequestQueryDecoding(t *testing.T) {
	req, err := ParseRequest([]byte("GET /s?q=hello%20world&plus=a+b&flag HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "/s", req.RouterPath)
	assert.Equal(t, "hello world", req.Query["q"])
	assert.Equal(t, "a b", req.Query["plus"])
	assert.Contains(t, req.Query, "flag")
	assert.Empty(t, req.Body)
}

func TestParseRequestVersionOptional(t *testing.T) {
	req, err := ParseRequest([]byte("GET /x\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "/x", req.Path)
	assert.Equal(t, "", req.Proto)
}

func TestParseRequestBareLF(t *testing.T) {
	req, err := ParseRequest([]byte("GET /lf HTTP/1.1\nHost: a\n\nbody"))
	require.NoError(t, err)
	assert.Equal(t, "a", req.Header("host"))
	assert.Equal(t, "body", string(req.Body))
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing path", "GET\r\n\r\n", "request line"},
		{"empty request line", "\r\n\r\n", "request line"},
		{"no line terminator", "GET / HTTP/1.1", "headers"},
		{"unterminated headers", "GET / HTTP/1.1\r\nHost: a\r\n", "headers"},
		{"bad content length", "POST / HTTP/1.1\r\nContent-Length: nope\r\n\r\n", "Content-Length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.raw))
			require.Error(t, err)
			assert.Nil(t, req)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.field, pe.Field)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
			assert.Equal(t, ErrBadRequest, AsError(err))
		})
	}
}

func TestParseRequestLine(t *testing.T) {
	req, err := ParseRequestLine([]byte("GET /a?b=1 HTTP/1.1\r\nHost: x\r\nCookie: k=v\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/a", req.RouterPath)
	assert.Equal(t, "1", req.Query["b"])
	assert.Empty(t, req.Headers)
	assert.Empty(t, req.Cookies)
	assert.Empty(t, req.Body)

	_, err = ParseRequestLine([]byte("GET"))
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func BenchmarkParseRequest(b *testing.B) {
	raw := []byte("GET /api/users/123?page=2 HTTP/1.1\r\nHost: localhost\r\nUser-Agent: bench\r\nAccept: */*\r\n\r\n")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ParseRequest(raw)
	}
}
