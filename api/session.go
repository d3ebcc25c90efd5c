// File: api/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session is the contract between one unit of archive work and the
// SessionWorker that drives it. Implementations are single-threaded:
// only the owning worker invokes DoWork, IsDone and Close.

package api

// Session is a long-lived unit of archive work (a recording in progress,
// a replay in progress, a descriptor listing) advanced cooperatively by
// a worker duty cycle.
type Session interface {
	// ID returns the stable identity of the session within its worker.
	ID() int64

	// DoWork performs one bounded increment of progress and returns a
	// count of useful operations performed. It must not block; a cycle
	// with nothing to do returns 0. A non-nil error marks the session
	// faulted: the worker reports the error, then aborts and closes the
	// session without letting the fault escape the duty cycle.
	DoWork() (int, error)

	// IsDone reports whether the session has reached a terminal state
	// and should be closed by its worker.
	IsDone() bool

	// Abort requests early termination. It must be callable from any
	// phase and must leave the session closable without further DoWork.
	Abort()

	// Close releases the resources held by the session. The worker
	// calls it exactly once per session lifetime.
	Close() error
}
