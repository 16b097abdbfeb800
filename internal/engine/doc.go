// Package engine implements the blocker synchronization engine.
//
// The engine owns the Activity axis (paused or active) and the active tab
// domain, persists mode and category changes through the configuration store,
// and rematerializes the merged rule artifact after every state change.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Events are enqueued from any goroutine (the notification adapter, the CLI,
// signal handlers) and processed by exactly one Run goroutine.  This ensures:
// - At most one artifact assembly and reload in flight
// - No two writers racing on the artifact path within a process
// - Events applied in arrival order
//
// Event Processing Flow:
// 1. Events enqueued to an unbounded FIFO queue
// 2. Run drains everything queued so far
// 3. Each event's state change is applied in order (store writes, flags)
// 4. The last resync plan of the batch wins
// 5. One resync runs: compute categories, assemble, reload, wait for result
//
// Events that arrive while a resync is in flight wait in the queue and are
// coalesced into the next batch.
//
// Trust overrides and pause are transient overlays: they never touch the
// persisted mode or categories.  Every non-overlay resync recomputes the
// desired categories from scratch:
//
//	paused           -> empty ruleset
//	mode = custom    -> enabled categories (empty ruleset when none)
//	mode = default   -> the default category set
//
// ERROR HANDLING: Nothing here is fatal.  A failed store write aborts its event
// and keeps the prior state; a failed assembly keeps the previous artifact; a
// failed reload keeps the previous ruleset loaded.  Every failure is logged and
// passed to the error collector, and the loop continues.
package engine
