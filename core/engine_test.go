package core

import (
	"context"
	"io"
	"net"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/maya/core/http"
	"github.com/searchktools/maya/core/middleware"
	"github.com/searchktools/maya/core/observability"
)

// startEngine serves e on a loopback port until the test ends.
func startEngine(t *testing.T, e *Engine) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	ln, err := e.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrServerClosed)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { conn.Close() })
	return conn
}

// roundTrip writes raw in one write and reads until the server closes.
func roundTrip(t *testing.T, addr, raw string) string {
	t.Helper()
	conn := dial(t, addr)
	_, err := conn.Write([]byte(raw))
	require.NoError(t, err)
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(resp)
}

type response struct {
	status  string
	headers []string
	body    string
}

func parseResponse(t *testing.T, raw string) response {
	t.Helper()
	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	require.True(t, ok, "malformed response %q", raw)
	lines := strings.Split(head, "\r\n")
	return response{status: lines[0], headers: lines[1:], body: body}
}

func (r response) header(name string) string {
	for _, h := range r.headers {
		if k, v, ok := strings.Cut(h, ": "); ok && strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func get(path string) string {
	return "GET " + path + " HTTP/1.1\r\nHost: localhost\r\n\r\n"
}

func TestEngineJSONRoute(t *testing.T) {
	e := NewEngine()
	e.GET("/", func(c *http.Context) (http.Result, error) {
		return http.JSON(map[string]string{"msg": "hii"}), nil
	})
	addr := startEngine(t, e)

	resp := parseResponse(t, roundTrip(t, addr, get("/")))
	assert.Equal(t, "HTTP/1.1 200 OK", resp.status)
	assert.Equal(t, "application/json", resp.header("Content-Type"))
	assert.Equal(t, "13", resp.header("Content-Length"))
	assert.Equal(t, "close", resp.header("Connection"))
	assert.Equal(t, `{"msg":"hii"}`, resp.body)
}

func TestEngineDynamicRoute(t *testing.T) {
	e := NewEngine()
	e.GET("/users/:id", func(c *http.Context) (http.Result, error) {
		return http.JSON(c.Params()), nil
	})
	addr := startEngine(t, e)

	resp := parseResponse(t, roundTrip(t, addr, get("/users/42?expand=1")))
	assert.Equal(t, "HTTP/1.1 200 OK", resp.status)
	assert.JSONEq(t, `{"id":"42"}`, resp.body)
}

func TestEngineNotFoundAndMethodNotAllowed(t *testing.T) {
	e := NewEngine()
	e.GET("/items/:id", func(c *http.Context) (http.Result, error) { return http.Text("item"), nil })
	e.DELETE("/items/:id", func(c *http.Context) (http.Result, error) { return http.Text("gone"), nil })
	addr := startEngine(t, e)

	resp := parseResponse(t, roundTrip(t, addr, get("/nothing")))
	assert.Equal(t, "HTTP/1.1 404 Route Not Found", resp.status)
	assert.JSONEq(t, `{"message":"Route Not Found","status":404}`, resp.body)

	resp = parseResponse(t, roundTrip(t, addr, "PUT /items/7 HTTP/1.1\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 405 Method Not Allowed", resp.status)
	assert.Equal(t, "GET, DELETE", resp.header("Allow"))
	assert.JSONEq(t, `{"message":"Method Not Allowed","status":405}`, resp.body)
}

func TestEngineMalformedRequest(t *testing.T) {
	var called atomic.Bool
	e := NewEngine()
	e.Use(func(c *http.Context) (http.Result, error) {
		called.Store(true)
		return nil, nil
	})
	addr := startEngine(t, e)

	resp := parseResponse(t, roundTrip(t, addr, "BROKEN\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 400 Bad Request", resp.status)
	assert.JSONEq(t, `{"message":"Bad Request","status":400}`, resp.body)
	assert.False(t, called.Load(), "nothing is dispatched for an unparseable request")
}

func TestEngineTruncatedRequest(t *testing.T) {
	e := NewEngine()
	addr := startEngine(t, e)

	conn := dial(t, addr)
	_, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: a\r\n"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	raw, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 400 Bad Request", parseResponse(t, string(raw)).status)
}

func TestEngineRequestTooLarge(t *testing.T) {
	e := NewEngine(WithMaxRequestBytes(64))
	addr := startEngine(t, e)

	raw := "GET /" + strings.Repeat("a", 100) + " HTTP/1.1\r\n"
	resp := parseResponse(t, roundTrip(t, addr, raw))
	assert.Equal(t, "HTTP/1.1 400 Bad Request", resp.status)
}

func TestEngineBodySplitAcrossWrites(t *testing.T) {
	e := NewEngine()
	e.POST("/echo", func(c *http.Context) (http.Result, error) {
		var payload map[string]any
		if err := c.Bind(&payload); err != nil {
			return http.Text(err.Error()).WithStatus(400), nil
		}
		return http.JSON(payload).WithStatus(201), nil
	})
	addr := startEngine(t, e)

	conn := dial(t, addr)
	_, err := conn.Write([]byte("POST /echo HTTP/1.1\r\nContent-Type: application/json\r\nContent-Length: 9\r\n\r\n{\"a\":"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = conn.Write([]byte("\"b\"}"))
	require.NoError(t, err)

	raw, err := io.ReadAll(conn)
	require.NoError(t, err)
	resp := parseResponse(t, string(raw))
	assert.Equal(t, "HTTP/1.1 201 Created", resp.status)
	assert.JSONEq(t, `{"a":"b"}`, resp.body)
}

func TestEngineHeadersOnly(t *testing.T) {
	e := NewEngine(WithBodyParse(false))
	e.GET("/fast", func(c *http.Context) (http.Result, error) {
		return http.Text("q=" + c.Query("q") + " host=" + c.Header("Host")), nil
	})
	addr := startEngine(t, e)

	resp := parseResponse(t, roundTrip(t, addr, get("/fast?q=1")))
	assert.Equal(t, "q=1 host=", resp.body)
}

func TestEngineFavicon(t *testing.T) {
	e := NewEngine()
	addr := startEngine(t, e)

	assert.Empty(t, roundTrip(t, addr, get("/favicon.ico")))

	e2 := NewEngine()
	e2.GET("/favicon.ico", func(c *http.Context) (http.Result, error) { return http.Text("icon"), nil })
	addr2 := startEngine(t, e2)

	assert.Equal(t, "icon", parseResponse(t, roundTrip(t, addr2, get("/favicon.ico"))).body)
}

func TestEngineHandlerFailures(t *testing.T) {
	e := NewEngine()
	e.GET("/error", func(c *http.Context) (http.Result, error) {
		return nil, errors.New("database down")
	})
	e.GET("/panic", func(c *http.Context) (http.Result, error) {
		panic("boom")
	})
	e.GET("/silent", func(c *http.Context) (http.Result, error) {
		return nil, nil
	})
	e.GET("/typed", func(c *http.Context) (http.Result, error) {
		return nil, http.ErrUnsupportedMediaType
	})
	e.GET("/wrote", func(c *http.Context) (http.Result, error) {
		_ = c.String(200, "partial")
		return nil, errors.New("after write")
	})
	addr := startEngine(t, e)

	for _, path := range []string{"/error", "/panic", "/silent"} {
		resp := parseResponse(t, roundTrip(t, addr, get(path)))
		assert.Equal(t, "HTTP/1.1 500 Internal Server Error", resp.status, path)
		assert.JSONEq(t, `{"message":"Internal Server Error","status":500}`, resp.body, path)
		assert.NotContains(t, resp.body, "database down")
	}

	resp := parseResponse(t, roundTrip(t, addr, get("/typed")))
	assert.Equal(t, "HTTP/1.1 415 Unsupported Media Type", resp.status)

	raw := roundTrip(t, addr, get("/wrote"))
	assert.Equal(t, 1, strings.Count(raw, "HTTP/1.1 "))
	assert.True(t, strings.HasSuffix(raw, "partial"))
}

func TestEngineMiddleware(t *testing.T) {
	var handled atomic.Int32
	e := NewEngine()
	e.Use(middleware.RequestID())
	e.UsePath("/admin", func(c *http.Context) (http.Result, error) {
		if c.Header("Authorization") == "" {
			return http.Text("denied").WithStatus(401), nil
		}
		return nil, nil
	})
	e.UsePath("/boom", func(c *http.Context) (http.Result, error) {
		return nil, errors.New("broken middleware")
	})
	handler := func(c *http.Context) (http.Result, error) {
		handled.Add(1)
		return http.Text("ok"), nil
	}
	e.GET("/admin/panel", handler)
	e.GET("/boom", handler)
	e.GET("/open", handler)
	addr := startEngine(t, e)

	resp := parseResponse(t, roundTrip(t, addr, get("/admin/panel")))
	assert.Equal(t, "HTTP/1.1 401 Unauthorized", resp.status)
	assert.NotEmpty(t, resp.header("X-Request-ID"))

	resp = parseResponse(t, roundTrip(t, addr, get("/boom")))
	assert.Equal(t, "HTTP/1.1 500 Internal Server Error", resp.status)
	assert.JSONEq(t, `{"message":"Middleware error","status":500}`, resp.body)

	resp = parseResponse(t, roundTrip(t, addr, get("/open")))
	assert.Equal(t, "ok", resp.body)

	assert.Equal(t, int32(1), handled.Load())
}

func TestEngineCORS(t *testing.T) {
	e := NewEngine(WithCORS(middleware.WithAllowedOrigins("https://app.example")))
	e.GET("/data", func(c *http.Context) (http.Result, error) { return http.Text("data"), nil })
	addr := startEngine(t, e)

	resp := parseResponse(t, roundTrip(t, addr, "GET /data HTTP/1.1\r\nOrigin: https://evil.example\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 200 OK", resp.status)
	assert.Equal(t, "CORS not allowed", resp.body)
	assert.Empty(t, resp.header(middleware.HeaderAllowOrigin))

	resp = parseResponse(t, roundTrip(t, addr, "OPTIONS /data HTTP/1.1\r\nOrigin: https://app.example\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 204 No Content", resp.status)
	assert.Equal(t, "86400", resp.header(middleware.HeaderMaxAge))
	assert.Equal(t, "https://app.example", resp.header(middleware.HeaderAllowOrigin))

	resp = parseResponse(t, roundTrip(t, addr, "GET /data HTTP/1.1\r\nOrigin: https://app.example\r\n\r\n"))
	assert.Equal(t, "data", resp.body)
	assert.Equal(t, "https://app.example", resp.header(middleware.HeaderAllowOrigin))
}

func TestEngineResponseCache(t *testing.T) {
	e := NewEngine()
	e.GET("/login", func(c *http.Context) (http.Result, error) {
		c.SetCookie("session", c.Query("user"))
		return http.Text("welcome"), nil
	})
	addr := startEngine(t, e)

	first := roundTrip(t, addr, get("/login?user=ann"))
	second := roundTrip(t, addr, get("/login?user=bob"))

	assert.Contains(t, first, "session=ann")
	assert.Equal(t, first, second, "a cache hit replays the stored bytes")
	assert.Equal(t, uint64(1), e.Cache().Stats().Hits)

	e2 := NewEngine(WithCache(nil))
	e2.GET("/login", func(c *http.Context) (http.Result, error) {
		c.SetCookie("session", c.Query("user"))
		return http.Text("welcome"), nil
	})
	addr2 := startEngine(t, e2)
	_ = roundTrip(t, addr2, get("/login?user=ann"))
	assert.Contains(t, roundTrip(t, addr2, get("/login?user=bob")), "session=bob")
}

func TestEngineStaticFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir, "index.html", "<p>home</p>"))

	e := NewEngine(WithStaticDir(dir))
	e.GET("/", func(c *http.Context) (http.Result, error) { return http.File("index.html"), nil })
	e.GET("/go", func(c *http.Context) (http.Result, error) { return http.Redirect("/"), nil })
	addr := startEngine(t, e)

	resp := parseResponse(t, roundTrip(t, addr, get("/")))
	assert.Equal(t, "text/html", resp.header("Content-Type"))
	assert.Equal(t, "<p>home</p>", resp.body)

	resp = parseResponse(t, roundTrip(t, addr, get("/go")))
	assert.Equal(t, "HTTP/1.1 302 Found", resp.status)
	assert.Equal(t, "/", resp.header("Location"))
}

func TestEngineMonitor(t *testing.T) {
	m := observability.NewMonitor()
	e := NewEngine(WithMonitor(m), WithMaxConnections(1))
	e.GET("/users/:id", func(c *http.Context) (http.Result, error) { return http.Text(c.Param("id")), nil })
	addr := startEngine(t, e)

	roundTrip(t, addr, get("/users/1"))
	roundTrip(t, addr, get("/users/2"))
	roundTrip(t, addr, get("/missing"))
	roundTrip(t, addr, "BROKEN\r\n\r\n")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `maya_requests_total{method="GET",route="/users/:id",status="200"} 2`)
	assert.Contains(t, body, `maya_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, body, "maya_parse_errors_total 1")
	assert.Contains(t, body, "maya_read_buffers_total 4")
}

func TestEngineShutdown(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	e := NewEngine()
	e.GET("/slow", func(c *http.Context) (http.Result, error) {
		close(started)
		<-release
		return http.Text("done"), nil
	})

	ln, err := e.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- e.Serve(context.Background(), ln) }()

	conn := dial(t, ln.Addr().String())
	_, err = conn.Write([]byte(get("/slow")))
	require.NoError(t, err)
	<-started

	shutdown := make(chan error, 1)
	go func() { shutdown <- e.Shutdown(context.Background()) }()

	require.ErrorIs(t, <-served, ErrServerClosed)
	select {
	case <-shutdown:
		t.Fatal("Shutdown returned while a request was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-shutdown)

	raw, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(raw), "done"))

	assert.ErrorIs(t, e.Serve(context.Background(), ln), ErrServerClosed)
}

func TestEngineShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})

	e := NewEngine()
	e.GET("/stuck", func(c *http.Context) (http.Result, error) {
		close(started)
		<-release
		return http.Text("late"), nil
	})
	addr := startEngine(t, e)

	conn := dial(t, addr)
	_, err := conn.Write([]byte(get("/stuck")))
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)
}

func TestEngineRegistrationAfterCompile(t *testing.T) {
	e := NewEngine()
	e.GET("/", func(c *http.Context) (http.Result, error) { return http.Text("ok"), nil })
	e.Compile()

	assert.Panics(t, func() {
		e.GET("/late", func(c *http.Context) (http.Result, error) { return nil, nil })
	})
	assert.Panics(t, func() { e.Use(middleware.RequestID()) })
	assert.Panics(t, func() { e.GET("/nil", nil) })
	assert.Panics(t, func() { e.EnableCORS() })
	assert.Len(t, e.Routes(), 1)
}

func TestEngineNoConnectionsAfterShutdown(t *testing.T) {
	e := NewEngine()
	require.True(t, e.startConn())
	e.conns.Done()

	require.NoError(t, e.Shutdown(context.Background()))
	assert.False(t, e.startConn(), "no connection is counted once Shutdown has begun")
}

func TestEngineShutdownWhileAccepting(t *testing.T) {
	e := NewEngine()
	e.GET("/", func(c *http.Context) (http.Result, error) { return http.Text("ok"), nil })

	ln, err := e.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- e.Serve(context.Background(), ln) }()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
			if err != nil {
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
			_, _ = conn.Write([]byte(get("/")))
			_, _ = io.ReadAll(conn)
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
	assert.ErrorIs(t, <-served, ErrServerClosed)
	wg.Wait()
}
