package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/cartsync/internal/actions"
	"github.com/roach88/cartsync/internal/config"
	"github.com/roach88/cartsync/internal/csrf"
	"github.com/roach88/cartsync/internal/dispatch"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/metrics"
	"github.com/roach88/cartsync/internal/mutation"
	"github.com/roach88/cartsync/internal/notify"
	"github.com/roach88/cartsync/internal/prefs"
	"github.com/roach88/cartsync/internal/reconcile"
	"github.com/roach88/cartsync/internal/store"
	"github.com/roach88/cartsync/internal/view"
)

// Session is one page's worth of wiring: a loop, the bindings on it, and
// the journal and counters behind them.
type Session struct {
	ID       string
	Config   config.Config
	Bindings *actions.Bindings
	Notifier *notify.Scheduler
	Registry *prometheus.Registry

	store *store.Store
	prefs *prefs.Prefs

	stopLoop context.CancelFunc
	loopDone chan struct{}
}

// OpenSession loads the configuration and starts a session whose page is
// seeded from seed. Close must be called when done.
func OpenSession(ctx context.Context, opts *RootOptions, seed mutation.CartSnapshot) (*Session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	origin := cfg.Origin()
	logger := slog.Default()

	jar, err := csrf.NewJar()
	if err != nil {
		return nil, err
	}
	csrf.Seed(jar, origin, cfg.Cookies)
	tokens := csrf.FromJar(jar, origin, cfg.CSRF.CookieName)

	s := &Session{Config: cfg, Registry: prometheus.NewRegistry()}

	recorder, err := metrics.New(s.Registry)
	if err != nil {
		return nil, err
	}

	clk := engine.NewClock()
	if cfg.Database != "" {
		s.store, err = store.Open(cfg.Database)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		// issuedAt is the journal key, so a new run continues past the
		// last recorded value.
		last, err := s.store.MaxIssuedAt(ctx)
		if err != nil {
			s.store.Close()
			return nil, err
		}
		clk = engine.NewClockAt(last)
		s.prefs = prefs.New(s.store)
	}

	s.ID = cfg.Session
	if s.ID == "" {
		s.ID = engine.UUIDv7Generator{}.Generate()
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithClient(&http.Client{Jar: jar}),
		dispatch.WithRoutes(cfg.Endpoints.Routes()),
		dispatch.WithHeaderName(cfg.CSRF.HeaderName),
		dispatch.WithClock(clk),
		dispatch.WithMetrics(recorder),
		dispatch.WithLogger(logger),
	}
	reconcileOpts := []reconcile.Option{reconcile.WithMetrics(recorder)}
	if s.store != nil {
		journal := s.store.Session(s.ID)
		dispatchOpts = append(dispatchOpts, dispatch.WithJournal(journal))
		reconcileOpts = append(reconcileOpts, reconcile.WithJournal(journal))
	}

	s.Notifier = notify.New(
		notify.WithTimeout(cfg.Notifications.Timeout),
		notify.WithHistory(cfg.Notifications.History),
		notify.WithMetrics(recorder),
		notify.WithLogger(logger),
	)

	page := view.NewPage(seed)
	if s.prefs != nil {
		if page.DarkMode, err = s.prefs.DarkMode(ctx); err != nil {
			s.store.Close()
			return nil, err
		}
	}

	loop := engine.NewLoop(engine.WithLogger(logger))
	s.Bindings = actions.New(actions.Config{
		Loop:       loop,
		Dispatcher: dispatch.New(origin, tokens, dispatchOpts...),
		Notifier:   s.Notifier,
		Page:       page,
		FormField:  cfg.CSRF.FormField,
		Reconcile:  reconcileOpts,
		Logger:     logger,
	})

	loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.stopLoop = stop
	s.loopDone = make(chan struct{})
	go func() {
		defer close(s.loopDone)
		_ = loop.Run(loopCtx)
	}()
	return s, nil
}

// Prefs returns the preference store, or nil without a database.
func (s *Session) Prefs() *prefs.Prefs {
	return s.prefs
}

// Store returns the journal database, or nil without one.
func (s *Session) Store() *store.Store {
	return s.store
}

// Close stops the loop and closes the database.
func (s *Session) Close() error {
	s.stopLoop()
	<-s.loopDone
	s.Bindings.Reconciler().Flush()
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// WriteMetrics prints every registered counter in the Prometheus text
// format.
func (s *Session) WriteMetrics(w io.Writer) error {
	families, err := s.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var errs []error
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
