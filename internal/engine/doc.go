// Package engine provides the single UI-owning execution context that the
// rest of cartsync runs on.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every read or write of presentation state (cart widget, newsletter form,
// reconciler bookkeeping) happens inside a task executed by Loop.Run. Tasks
// run one at a time in FIFO order, so no presentation state needs a lock.
//
// Suspension at the network boundary:
// Spawn runs blocking work (an HTTP round trip) on its own goroutine and
// posts the continuation back onto the loop when the work finishes. Many
// requests may be in flight at once; their continuations still execute one
// at a time, in completion order.
//
// Logical clock:
// Clock hands out strictly increasing sequence numbers. The dispatcher uses
// it to stamp each mutation request's issuedAt, which is the only ordering
// signal the reconciler trusts.
//
// A panicking task is logged and dropped. The loop keeps serving later
// tasks so that one broken handler never freezes the page.
package engine
