// File: worker/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package worker implements the duty cycle that drives archive
// sessions. A SessionWorker owns a dynamic set of sessions, advances
// each one once per cycle and retires the ones that finished or
// faulted. Session errors and panics are routed to the error handler
// and never escape the cycle.
package worker

import (
	"fmt"

	"github.com/momentics/hioload-archive/api"
)

// SessionWorker drives a set of sessions of one kind. All methods are
// for the single goroutine running the duty cycle; cross-thread
// handoff happens in PreWork implementations.
//
// The optional hooks extend the cycle: PreWork runs first and returns
// extra work done (command draining, new session intake),
// PostSessionAdd observes every added session, PreSessionsClose and
// PostSessionsClose bracket the shutdown of the remaining sessions.
type SessionWorker[T api.Session] struct {
	roleName     string
	errorHandler func(error)
	sessions     []T
	closed       bool

	PreWork           func() int
	PostSessionAdd    func(T)
	PreSessionsClose  func()
	PostSessionsClose func()
}

// New creates a worker with the given role name and error handler.
func New[T api.Session](roleName string, errorHandler func(error)) *SessionWorker[T] {
	if errorHandler == nil {
		errorHandler = func(error) {}
	}
	return &SessionWorker[T]{roleName: roleName, errorHandler: errorHandler}
}

// RoleName identifies the worker in logs and errors.
func (w *SessionWorker[T]) RoleName() string { return w.roleName }

// SessionCount returns the number of live sessions.
func (w *SessionWorker[T]) SessionCount() int { return len(w.sessions) }

// IsClosed reports whether OnClose ran.
func (w *SessionWorker[T]) IsClosed() bool { return w.closed }

// AddSession takes ownership of session.
func (w *SessionWorker[T]) AddSession(session T) {
	w.sessions = append(w.sessions, session)
	if w.PostSessionAdd != nil {
		w.PostSessionAdd(session)
	}
}

// DoWork runs one duty cycle pass: PreWork, then one DoWork per
// session, retiring finished and faulted sessions in place with an
// unordered swap-with-last removal.
func (w *SessionWorker[T]) DoWork() int {
	workCount := 0
	if w.PreWork != nil {
		workCount += w.PreWork()
	}

	lastIndex := len(w.sessions) - 1
	for i := lastIndex; i >= 0; i-- {
		session := w.sessions[i]
		n, err := w.invoke(session)
		workCount += n
		if err != nil {
			w.errorHandler(fmt.Errorf("%s: session %d: %w", w.roleName, session.ID(), err))
		}
		if err != nil || session.IsDone() {
			w.closeSession(session)
			var zero T
			w.sessions[i] = w.sessions[lastIndex]
			w.sessions[lastIndex] = zero
			w.sessions = w.sessions[:lastIndex]
			lastIndex--
		}
	}
	return workCount
}

func (w *SessionWorker[T]) invoke(session T) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return session.DoWork()
}

// closeSession aborts then closes the session exactly once, reporting
// rather than propagating failures.
func (w *SessionWorker[T]) closeSession(session T) {
	defer func() {
		if r := recover(); r != nil {
			w.errorHandler(fmt.Errorf("%s: close session %d: panic: %v", w.roleName, session.ID(), r))
		}
	}()
	session.Abort()
	if err := session.Close(); err != nil {
		w.errorHandler(fmt.Errorf("%s: close session %d: %w", w.roleName, session.ID(), err))
	}
}

// OnClose closes every remaining session. Idempotent.
func (w *SessionWorker[T]) OnClose() {
	if w.closed {
		return
	}
	w.closed = true
	if w.PreSessionsClose != nil {
		w.PreSessionsClose()
	}
	for _, session := range w.sessions {
		w.closeSession(session)
	}
	w.sessions = nil
	if w.PostSessionsClose != nil {
		w.PostSessionsClose()
	}
}
