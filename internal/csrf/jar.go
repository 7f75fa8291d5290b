package csrf

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// NewJar creates a cookie jar that scopes cookies by public suffix, the
// same way a browser does.
func NewJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return jar, nil
}

// Seed stores the cookies of a raw "a=1; b=2" string in jar for storeURL.
// Used to hand an existing browser session to the CLI.
func Seed(jar http.CookieJar, storeURL *url.URL, raw string) {
	var cookies []*http.Cookie
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	if len(cookies) > 0 {
		jar.SetCookies(storeURL, cookies)
	}
}
