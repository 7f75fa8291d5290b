// Package config loads cartctl settings from a YAML file, defaults and
// CARTSYNC_* environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cartsync/internal/csrf"
	"github.com/roach88/cartsync/internal/dispatch"
	"github.com/roach88/cartsync/internal/mutation"
	"github.com/roach88/cartsync/internal/notify"
)

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid config")

// SearchPaths are tried in order when no explicit path is given.
var SearchPaths = []string{"cartsync.yaml", filepath.Join("configs", "cartsync.yaml")}

// Endpoints are the store's endpoint paths.
type Endpoints struct {
	Add         string `yaml:"add"`
	Update      string `yaml:"update"`
	Remove      string `yaml:"remove"`
	ApplyCoupon string `yaml:"applyCoupon"`
	Newsletter  string `yaml:"newsletter"`
}

// Routes converts the endpoints to dispatcher routes.
func (e Endpoints) Routes() map[mutation.Kind]string {
	return map[mutation.Kind]string{
		mutation.Add:         e.Add,
		mutation.UpdateQty:   e.Update,
		mutation.Remove:      e.Remove,
		mutation.ApplyCoupon: e.ApplyCoupon,
		mutation.Subscribe:   e.Newsletter,
	}
}

// CSRF names the anti-forgery cookie, header and form field.
type CSRF struct {
	CookieName string `yaml:"cookieName"`
	HeaderName string `yaml:"headerName"`
	FormField  string `yaml:"formField"`
}

// Notifications configures the toast scheduler.
type Notifications struct {
	Timeout time.Duration `yaml:"timeout"`
	// History bounds how many notifications are kept once retired.
	History int `yaml:"history"`
}

// Config is the full cartctl configuration.
type Config struct {
	BaseURL       string        `yaml:"baseURL"`
	Endpoints     Endpoints     `yaml:"endpoints"`
	CSRF          CSRF          `yaml:"csrf"`
	Notifications Notifications `yaml:"notifications"`
	// Database is the SQLite journal path. Empty disables the journal.
	Database string `yaml:"database"`
	// Cookies is a raw "a=1; b=2" cookie header seeded into the jar.
	Cookies string `yaml:"cookies"`
	// Session pins the journal session id. Empty generates one per run.
	Session string `yaml:"session"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		Endpoints: Endpoints{
			Add:         dispatch.DefaultRoutes[mutation.Add],
			Update:      dispatch.DefaultRoutes[mutation.UpdateQty],
			Remove:      dispatch.DefaultRoutes[mutation.Remove],
			ApplyCoupon: dispatch.DefaultRoutes[mutation.ApplyCoupon],
			Newsletter:  dispatch.DefaultRoutes[mutation.Subscribe],
		},
		CSRF: CSRF{
			CookieName: csrf.DefaultCookieName,
			HeaderName: csrf.DefaultHeaderName,
			FormField:  csrf.DefaultFormField,
		},
		Notifications: Notifications{Timeout: notify.DefaultTimeout, History: notify.DefaultHistory},
		Database:      "cartsync.db",
	}
}

// Load reads path over the defaults. An empty path searches SearchPaths
// and falls back to the defaults when none exists. Environment overrides
// are applied last, then the result is validated.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, env func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range SearchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, env func(string) (string, bool)) error {
	strs := map[string]*string{
		"CARTSYNC_BASE_URL":            &cfg.BaseURL,
		"CARTSYNC_DATABASE":            &cfg.Database,
		"CARTSYNC_COOKIES":             &cfg.Cookies,
		"CARTSYNC_SESSION":             &cfg.Session,
		"CARTSYNC_CSRF_COOKIE_NAME":    &cfg.CSRF.CookieName,
		"CARTSYNC_CSRF_HEADER_NAME":    &cfg.CSRF.HeaderName,
		"CARTSYNC_CSRF_FORM_FIELD":     &cfg.CSRF.FormField,
		"CARTSYNC_ENDPOINT_NEWSLETTER": &cfg.Endpoints.Newsletter,
	}
	for key, dst := range strs {
		if v, ok := env(key); ok {
			*dst = v
		}
	}

	if v, ok := env("CARTSYNC_NOTIFICATION_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: CARTSYNC_NOTIFICATION_TIMEOUT: %v", ErrInvalid, err)
		}
		cfg.Notifications.Timeout = d
	}
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: baseURL must be an absolute http(s) URL, got %q", ErrInvalid, c.BaseURL)
	}
	if c.Notifications.Timeout <= 0 {
		return fmt.Errorf("%w: notifications.timeout must be positive", ErrInvalid)
	}
	if c.Notifications.History <= 0 {
		return fmt.Errorf("%w: notifications.history must be positive", ErrInvalid)
	}
	for kind, path := range c.Endpoints.Routes() {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("%w: endpoint for %s is empty", ErrInvalid, kind)
		}
	}
	if c.CSRF.CookieName == "" || c.CSRF.HeaderName == "" || c.CSRF.FormField == "" {
		return fmt.Errorf("%w: csrf names must not be empty", ErrInvalid)
	}
	return nil
}

// Origin returns the parsed base URL. Only valid after Validate.
func (c Config) Origin() *url.URL {
	u, _ := url.Parse(c.BaseURL)
	return u
}
