/*
Package maya provides a small HTTP/1.x request engine that works directly on
TCP connections.

Every connection carries exactly one request. The engine frames the bytes it
reads, parses the request, runs an optional CORS policy and the middleware
pipeline, routes to a handler and writes one complete response before closing
the connection. Keep-alive and pipelining are not supported.

Features

  - Body-aware framing (waits for the full Content-Length body) or a
    first-line-only mode
  - Static and :name dynamic routes with distinct 404 and 405 answers
  - Global and path-prefix middleware with panic recovery
  - CORS policy applied ahead of the middleware pipeline
  - Text, JSON, protobuf, static HTML and redirect responses
  - Response cache keyed by status, content type and body
  - Prometheus metrics, zap logging and environment configuration

Quick Start

Basic usage example:

package main

import (
    "github.com/searchktools/maya/app"
    "github.com/searchktools/maya/core"
    "github.com/searchktools/maya/core/http"
)

func main() {
    app.New(func(e *core.Engine) {
        e.GET("/", func(c *http.Context) (http.Result, error) {
            return http.JSON(map[string]string{"msg": "hii"}), nil
        })

        e.GET("/users/:id", func(c *http.Context) (http.Result, error) {
            return http.Text("user " + c.Param("id")), nil
        })
    }).Run()
}

Configuration is read from MAYA_* environment variables, see package config.

Modules

  - app: Application lifecycle (fx), logging and the metrics endpoint
  - config: Environment configuration
  - core: Connection handling and dispatch
  - core/http: Framing, parsing, context, results and the response cache
  - core/router: Static and dynamic route lookup
  - core/middleware: Middleware pipeline, CORS and built-in middleware
  - core/codec: JSON and protobuf codecs
  - core/pools: Read buffer pooling
  - core/observability: Prometheus metrics
*/
package maya
