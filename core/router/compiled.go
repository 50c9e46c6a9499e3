package router

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

var (
	// ErrNotFound means no pattern matches the path under any method.
	ErrNotFound = errors.New("route not found")
	// ErrMethodNotAllowed means a pattern matches the path, but only under
	// other methods.
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// MethodNotAllowedError lists the methods that are registered for a path.
type MethodNotAllowedError struct {
	Allowed []string
}

func (e *MethodNotAllowedError) Error() string {
	return "method not allowed (allowed: " + strings.Join(e.Allowed, ", ") + ")"
}

func (e *MethodNotAllowedError) Unwrap() error { return ErrMethodNotAllowed }

// Route is one registration.
type Route[H any] struct {
	Method  string
	Pattern string
	Handler H

	// Dynamic is set when the pattern contains :name segments.
	Dynamic  bool
	segments []string
}

// CompiledRouter resolves (method, path) to a Route.
//
// Static patterns are looked up in a map first. Dynamic patterns are grouped
// by segment count and tried in registration order, so when two dynamic
// patterns match the same path the one registered first wins.
//
// Routes are added during setup only. After Compile the tables are read
// without locks from any number of goroutines.
type CompiledRouter[H any] struct {
	static   map[string]map[string]*Route[H] // path -> method -> route
	dynamic  map[int][]*Route[H]             // segment count -> routes
	routes   []*Route[H]
	compiled bool
}

// NewCompiledRouter creates an empty router.
func NewCompiledRouter[H any]() *CompiledRouter[H] {
	return &CompiledRouter[H]{
		static:  make(map[string]map[string]*Route[H]),
		dynamic: make(map[int][]*Route[H]),
	}
}

// Add registers handler for method and pattern. It panics on a malformed
// pattern, a duplicate registration, or when called after Compile.
func (r *CompiledRouter[H]) Add(method, pattern string, handler H) {
	if r.compiled {
		panic("router: route " + method + " " + pattern + " added after Compile")
	}
	if pattern == "" || pattern[0] != '/' {
		panic("router: path must begin with '/': " + pattern)
	}

	segments := strings.Split(pattern, "/")
	dynamic := false
	for _, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			if len(seg) == 1 {
				panic("router: unnamed dynamic segment in " + pattern)
			}
			dynamic = true
		}
	}

	route := &Route[H]{
		Method:   method,
		Pattern:  pattern,
		Handler:  handler,
		Dynamic:  dynamic,
		segments: segments,
	}

	if !dynamic {
		methods := r.static[pattern]
		if methods == nil {
			methods = make(map[string]*Route[H])
			r.static[pattern] = methods
		}
		if _, dup := methods[method]; dup {
			panic("router: duplicate route " + method + " " + pattern)
		}
		methods[method] = route
	} else {
		n := len(segments)
		if slices.ContainsFunc(r.dynamic[n], func(other *Route[H]) bool {
			return other.Method == method && other.Pattern == pattern
		}) {
			panic("router: duplicate route " + method + " " + pattern)
		}
		r.dynamic[n] = append(r.dynamic[n], route)
	}
	r.routes = append(r.routes, route)
}

// Compile freezes the route table.
func (r *CompiledRouter[H]) Compile() {
	r.compiled = true
}

// Compiled reports whether Compile was called.
func (r *CompiledRouter[H]) Compiled() bool { return r.compiled }

// Routes returns every registration in registration order.
func (r *CompiledRouter[H]) Routes() []*Route[H] {
	return slices.Clone(r.routes)
}

// Lookup finds the route for method and path (no query string). Captured
// dynamic segments are returned as params; a static match returns an empty
// map. The error is ErrNotFound or a *MethodNotAllowedError.
func (r *CompiledRouter[H]) Lookup(method, path string) (*Route[H], map[string]string, error) {
	var allowed []string

	if methods, ok := r.static[path]; ok {
		if route, ok := methods[method]; ok {
			return route, map[string]string{}, nil
		}
		allowed = append(allowed, lo.Keys(methods)...)
		slices.Sort(allowed)
	}

	segments := strings.Split(path, "/")
	for _, route := range r.dynamic[len(segments)] {
		if !matchSegments(route.segments, segments) {
			continue
		}
		if route.Method != method {
			allowed = append(allowed, route.Method)
			continue
		}
		return route, captureParams(route.segments, segments), nil
	}

	if len(allowed) > 0 {
		return nil, nil, &MethodNotAllowedError{Allowed: lo.Uniq(allowed)}
	}
	return nil, nil, ErrNotFound
}

// matchSegments compares literal segments; :name segments match anything.
func matchSegments(pattern, path []string) bool {
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}

func captureParams(pattern, path []string) map[string]string {
	params := make(map[string]string, 2)
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			params[seg[1:]] = path[i]
		}
	}
	return params
}
