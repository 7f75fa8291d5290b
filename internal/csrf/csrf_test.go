package csrf

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"single", "csrftoken=abc", "abc", true},
		{"among others", "theme=dark; csrftoken=abc; sessionid=z", "abc", true},
		{"url decoded", "csrftoken=a%2Fb%3D", "a/b=", true},
		{"plus kept", "csrftoken=a+b", "a+b", true},
		{"first match wins", "csrftoken=one; csrftoken=two", "one", true},
		{"exact prefix only", "xcsrftoken=nope; csrftokenx=nope", "", false},
		{"absent", "sessionid=z", "", false},
		{"empty string", "", "", false},
		{"empty value", "csrftoken=", "", false},
		{"bad escape", "csrftoken=%zz", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(tt.raw, DefaultCookieName)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeaderSource_ReadsFreshEachCall(t *testing.T) {
	raw := "csrftoken=first"
	src := FromHeader(DefaultCookieName, func() string { return raw })

	got, ok := src.CurrentToken()
	require.True(t, ok)
	assert.Equal(t, "first", got)

	raw = "csrftoken=rotated"
	got, ok = src.CurrentToken()
	require.True(t, ok)
	assert.Equal(t, "rotated", got)

	raw = ""
	_, ok = src.CurrentToken()
	assert.False(t, ok)
}

func TestJarSource(t *testing.T) {
	jar, err := NewJar()
	require.NoError(t, err)
	u, err := url.Parse("http://shop.example.com/")
	require.NoError(t, err)

	src := FromJar(jar, u, DefaultCookieName)
	_, ok := src.CurrentToken()
	assert.False(t, ok)

	jar.SetCookies(u, []*http.Cookie{{Name: "csrftoken", Value: "t%2B1", Path: "/"}})
	got, ok := src.CurrentToken()
	require.True(t, ok)
	assert.Equal(t, "t+1", got)

	jar.SetCookies(u, []*http.Cookie{{Name: "csrftoken", Value: "t2", Path: "/"}})
	got, ok = src.CurrentToken()
	require.True(t, ok)
	assert.Equal(t, "t2", got)
}

func TestSeed(t *testing.T) {
	jar, err := NewJar()
	require.NoError(t, err)
	u, err := url.Parse("http://shop.example.com/")
	require.NoError(t, err)

	Seed(jar, u, "sessionid=s1; csrftoken=abc; junk")

	got, ok := FromJar(jar, u, DefaultCookieName).CurrentToken()
	require.True(t, ok)
	assert.Equal(t, "abc", got)
	assert.Len(t, jar.Cookies(u), 2)
}

func TestNone(t *testing.T) {
	_, ok := None.CurrentToken()
	assert.False(t, ok)
}
