package middleware

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/searchktools/maya/core/http"
)

// HeaderRequestID carries the id assigned by RequestID.
const HeaderRequestID = "X-Request-ID"

// RequestID tags each request with an id, both in the context (key
// "request_id") and as a response header. A client supplied X-Request-ID is
// kept; otherwise a UUIDv7 is generated.
func RequestID() HandlerFunc {
	return requestID(func() string { return uuid.Must(uuid.NewV7()).String() })
}

func requestID(generate func() string) HandlerFunc {
	return func(c *http.Context) (http.Result, error) {
		id := c.Header(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = generate()
		}
		c.Set("request_id", id)
		c.SetHeader(HeaderRequestID, id)
		return nil, nil
	}
}

// Logger logs every request that reaches it.
func Logger(logger *zap.Logger) HandlerFunc {
	return func(c *http.Context) (http.Result, error) {
		logger.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
		)
		return nil, nil
	}
}

// RateLimiter allows requestsPerSecond requests per one-second window and
// answers the rest with 429.
func RateLimiter(requestsPerSecond int) HandlerFunc {
	return rateLimiter(requestsPerSecond, time.Now)
}

func rateLimiter(requestsPerSecond int, now func() time.Time) HandlerFunc {
	var (
		mu         sync.Mutex
		tokens     = requestsPerSecond
		lastRefill = now()
	)

	return func(c *http.Context) (http.Result, error) {
		mu.Lock()
		t := now()
		if t.Sub(lastRefill) >= time.Second {
			tokens = requestsPerSecond
			lastRefill = t
		}
		if tokens > 0 {
			tokens--
			mu.Unlock()
			return nil, nil
		}
		mu.Unlock()

		return http.JSON(http.ErrorPayload{Message: "Too Many Requests", Status: 429}).WithStatus(429), nil
	}
}

// RequireAuth halts with 401 unless an earlier middleware called
// SetAuthentication(true).
func RequireAuth() HandlerFunc {
	return func(c *http.Context) (http.Result, error) {
		if c.IsAuthenticated() {
			return nil, nil
		}
		return http.JSON(http.ErrorPayload{Message: "Unauthorized", Status: 401}).WithStatus(401), nil
	}
}
