package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Loop is the single UI-owning execution context.
//
// Tasks posted to the loop run one at a time, in FIFO order, on the
// goroutine that called Run. Presentation state is only ever touched from
// inside loop tasks.
//
// Thread-safety model:
//   - Post(), Do(), Spawn(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Loop struct {
	queue   *taskQueue
	logger  *slog.Logger
	running atomic.Bool
	panics  atomic.Int64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the logger used for lifecycle and panic reports.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop creates a loop. Call Run to start processing tasks.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		queue:  newTaskQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post schedules task on the loop.
// Returns false if the loop has been stopped.
func (l *Loop) Post(task func()) bool {
	return l.queue.Enqueue(task)
}

// Do runs task on the loop and waits for it to finish.
// Returns ErrLoopStopped if the loop no longer accepts tasks, or the
// context error if ctx ends first.
func (l *Loop) Do(ctx context.Context, task func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		task()
	}) {
		return ErrLoopStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes tasks until ctx is cancelled or Stop is called.
//
// After Stop, tasks already queued are drained before Run returns. On
// context cancellation Run returns immediately.
//
// A panicking task is logged at Error and processing continues.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	defer l.running.Store(false)

	l.logger.Info("event loop starting")

	for {
		if task, ok := l.queue.TryDequeue(); ok {
			l.runTask(task)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Info("event loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel closes when the queue is closed.
			if l.queue.IsClosed() && l.queue.Len() == 0 {
				l.logger.Info("event loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the loop to new tasks. Run returns once the queue drains.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Running reports whether Run is currently executing.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Panics returns the number of tasks that panicked so far.
func (l *Loop) Panics() int64 {
	return l.panics.Load()
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.logger.Error("loop task failed", "error", &PanicError{Value: r})
		}
	}()
	task()
}

// Pending tracks a continuation scheduled by Spawn.
type Pending struct {
	done chan struct{}
	err  *error
}

// Resolved returns a Pending that is already complete. Used by bindings
// that finish without dispatching anything.
func Resolved() Pending {
	done := make(chan struct{})
	close(done)
	return Pending{done: done, err: new(error)}
}

// Done is closed once the continuation has run (or could not be scheduled).
func (p Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the continuation has run.
// Returns ErrLoopStopped if the continuation was never scheduled.
func (p Pending) Wait(ctx context.Context) error {
	if p.done == nil {
		return nil
	}
	select {
	case <-p.done:
		return *p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn runs work on its own goroutine and posts then(result) onto the loop.
//
// work must not touch presentation state; then always runs on the loop.
// The returned Pending resolves after then returns or panics.
func Spawn[T any](ctx context.Context, l *Loop, work func(context.Context) T, then func(T)) Pending {
	p := Pending{done: make(chan struct{}), err: new(error)}

	go func() {
		result := work(ctx)
		if !l.Post(func() {
			defer close(p.done)
			then(result)
		}) {
			*p.err = ErrLoopStopped
			close(p.done)
		}
	}()

	return p
}
