// Package csrf reads the store's anti-forgery token from the ambient
// cookie state.
//
// The token may rotate at any time, so every Source re-reads its backing
// storage on each call and never caches a value.
package csrf

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultCookieName is the cookie the store sets its token in.
const DefaultCookieName = "csrftoken"

// DefaultHeaderName is the request header the store checks.
const DefaultHeaderName = "X-CSRFToken"

// DefaultFormField is the form field used by the newsletter form.
const DefaultFormField = "csrfmiddlewaretoken"

// Source returns the current token, or false when none is available.
// Callers must omit the header rather than send an empty token.
type Source interface {
	CurrentToken() (string, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (string, bool)

// CurrentToken calls f.
func (f SourceFunc) CurrentToken() (string, bool) {
	return f()
}

// None is a Source that never has a token.
var None Source = SourceFunc(func() (string, bool) { return "", false })

// HeaderSource reads the token out of a raw cookie string, in the
// "a=1; b=2" form a browser exposes.
type HeaderSource struct {
	name string
	read func() string
}

// FromHeader returns a source that calls read on every lookup.
func FromHeader(name string, read func() string) *HeaderSource {
	return &HeaderSource{name: name, read: read}
}

// CurrentToken implements Source.
func (s *HeaderSource) CurrentToken() (string, bool) {
	return Lookup(s.read(), s.name)
}

// Lookup finds cookie name in a raw cookie string.
//
// The first entry whose text starts with exactly "name=" wins. The value is
// percent-decoded; "+" is left as is. A value that fails to decode, or is
// empty after decoding, counts as absent.
func Lookup(raw, name string) (string, bool) {
	if raw == "" || name == "" {
		return "", false
	}

	prefix := name + "="
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		value, ok := strings.CutPrefix(part, prefix)
		if !ok {
			continue
		}
		decoded, err := url.PathUnescape(value)
		if err != nil || decoded == "" {
			return "", false
		}
		return decoded, true
	}
	return "", false
}

// JarSource reads the token from a cookie jar for a fixed store URL.
type JarSource struct {
	jar  http.CookieJar
	url  *url.URL
	name string
}

// FromJar returns a source backed by jar. The jar is usually the same one
// the dispatcher's http.Client uses, so Set-Cookie rotations are picked up
// on the next read.
func FromJar(jar http.CookieJar, storeURL *url.URL, name string) *JarSource {
	return &JarSource{jar: jar, url: storeURL, name: name}
}

// CurrentToken implements Source.
func (s *JarSource) CurrentToken() (string, bool) {
	if s.jar == nil || s.url == nil {
		return "", false
	}
	for _, c := range s.jar.Cookies(s.url) {
		if c.Name != s.name {
			continue
		}
		decoded, err := url.PathUnescape(c.Value)
		if err != nil || decoded == "" {
			return "", false
		}
		return decoded, true
	}
	return "", false
}
