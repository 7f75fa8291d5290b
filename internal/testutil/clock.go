package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/cartsync/internal/clock"
	"github.com/roach88/cartsync/internal/engine"
)

// Polling bounds for require.Eventually.
const (
	WaitFor = 2 * time.Second
	Tick    = 5 * time.Millisecond
)

// Epoch is the wall time every fake clock in tests starts at.
var Epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// NewFakeClock returns a fake wall clock frozen at Epoch.
func NewFakeClock() *clock.Fake {
	return clock.NewFake(Epoch)
}

// StartLoop runs an engine loop until the test ends.
func StartLoop(t testing.TB) *engine.Loop {
	t.Helper()

	l := engine.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

// Context returns a context that times out well before the test binary
// would, so a hung continuation fails one test instead of the package.
func Context(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
