// Package engine keeps a session's requisition snapshot in step with the
// remote API and detects new records.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All state (snapshot, change baseline, lifecycle state, session tag) is
// owned by the goroutine running Engine.Run. Public methods enqueue an event
// and wait for the loop's reply, so a mutation's cache write and baseline
// update are complete before its caller resumes. Remote calls run in their
// own goroutines and post their results back onto the queue.
//
// Lifecycle:
//
//	Idle -> InitialLoad -> Polling -> Stopped
//
// StartSession paints from the cache, then issues one fetch. A ticker
// (15 seconds) issues background polls; a tick is skipped while a fetch for
// the session is still outstanding. StopSession stops the ticker and bumps
// the session tag, so a result that arrives afterwards is dropped.
//
// Change Detection:
// Only net growth in the record count is reported, and only for background
// polls against a non-zero baseline. Local mutations move the baseline
// immediately, so a poll that sees the user's own change reports nothing.
//
// Readers use the lock-free accessors (Snapshot, Visible, Baseline, State),
// which return the most recently published View.
package engine
