package http

import (
	"strconv"
	"strings"
	"time"
)

// TimeFormat is the HTTP-date layout used for the Expires attribute.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// CookieOptions are the attributes of a Set-Cookie value. Zero values are
// omitted when serializing.
type CookieOptions struct {
	Expires  time.Time
	MaxAge   int
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// CookieOption overrides one attribute of the defaults.
type CookieOption func(*CookieOptions)

// DefaultCookieOptions returns the attributes every cookie starts from.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Secure:   true,
		HTTPOnly: true,
		SameSite: "Lax",
	}
}

func WithExpires(t time.Time) CookieOption {
	return func(o *CookieOptions) { o.Expires = t }
}

func WithMaxAge(seconds int) CookieOption {
	return func(o *CookieOptions) { o.MaxAge = seconds }
}

func WithDomain(domain string) CookieOption {
	return func(o *CookieOptions) { o.Domain = domain }
}

func WithPath(path string) CookieOption {
	return func(o *CookieOptions) { o.Path = path }
}

func WithSecure(secure bool) CookieOption {
	return func(o *CookieOptions) { o.Secure = secure }
}

func WithHTTPOnly(httpOnly bool) CookieOption {
	return func(o *CookieOptions) { o.HTTPOnly = httpOnly }
}

// WithSameSite sets the SameSite attribute; "" drops it.
func WithSameSite(mode string) CookieOption {
	return func(o *CookieOptions) { o.SameSite = mode }
}

// FormatCookie serializes a cookie with opts applied over the defaults.
// Attributes are written in the order Expires, Max-Age, Domain, Path, Secure,
// HttpOnly, SameSite.
func FormatCookie(name, value string, opts ...CookieOption) string {
	o := DefaultCookieOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(value)

	if !o.Expires.IsZero() {
		b.WriteString("; Expires=")
		b.WriteString(o.Expires.UTC().Format(TimeFormat))
	}
	if o.MaxAge != 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(o.MaxAge))
	}
	if o.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(o.Domain)
	}
	if o.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(o.Path)
	}
	if o.Secure {
		b.WriteString("; Secure")
	}
	if o.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if o.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(o.SameSite)
	}
	return b.String()
}
