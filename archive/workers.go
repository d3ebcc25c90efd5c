// File: archive/workers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package archive

import (
	"github.com/momentics/hioload-archive/internal/concurrency"
	"github.com/momentics/hioload-archive/internal/metrics"
	"github.com/momentics/hioload-archive/worker"
)

// Recorder drives the recording sessions. The conductor hands sessions
// over through a single producer, single consumer ring drained at the
// top of each duty cycle.
type Recorder struct {
	*worker.SessionWorker[*RecordingSession]
	pending *concurrency.RingBuffer[*RecordingSession]
	mets    *metrics.Collectors
}

func newRecorder(ctx *Context) *Recorder {
	r := &Recorder{
		SessionWorker: worker.New[*RecordingSession]("archive-recorder", ctx.ErrorHandler),
		pending:       concurrency.NewRingBuffer[*RecordingSession](uint64(ctx.SessionRingCapacity)),
		mets:          ctx.Metrics,
	}
	r.PreWork = r.admitSessions
	return r
}

// addSession is called by the conductor only.
func (r *Recorder) addSession(s *RecordingSession) bool {
	return r.pending.Enqueue(s)
}

func (r *Recorder) admitSessions() int {
	return r.pending.Drain(r.pending.Cap(), func(s *RecordingSession) {
		r.AddSession(s)
	})
}

func (r *Recorder) DoWork() int {
	n := r.SessionWorker.DoWork()
	r.mets.ActiveRecordings.Set(float64(r.SessionCount()))
	return n
}

// Replayer drives the replay sessions, with the same handoff contract
// as the Recorder.
type Replayer struct {
	*worker.SessionWorker[*ReplaySession]
	pending *concurrency.RingBuffer[*ReplaySession]
	mets    *metrics.Collectors
}

func newReplayer(ctx *Context) *Replayer {
	r := &Replayer{
		SessionWorker: worker.New[*ReplaySession]("archive-replayer", ctx.ErrorHandler),
		pending:       concurrency.NewRingBuffer[*ReplaySession](uint64(ctx.SessionRingCapacity)),
		mets:          ctx.Metrics,
	}
	r.PreWork = r.admitSessions
	return r
}

// addSession is called by the conductor only.
func (r *Replayer) addSession(s *ReplaySession) bool {
	return r.pending.Enqueue(s)
}

func (r *Replayer) admitSessions() int {
	return r.pending.Drain(r.pending.Cap(), func(s *ReplaySession) {
		r.AddSession(s)
	})
}

func (r *Replayer) DoWork() int {
	n := r.SessionWorker.DoWork()
	r.mets.ActiveReplays.Set(float64(r.SessionCount()))
	return n
}
