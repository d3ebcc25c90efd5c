// File: archive/archive.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package archive implements the recording and replay engine: it
// captures message streams into segment files on disk, tracks them in
// a durable catalog and replays any recorded range back as a stream
// that reproduces the original frame boundaries and positions.
//
// An Archive is launched over a driver and an archive directory.
// Control flows through Clients obtained from Connect; recording
// progress is observable through SubscribeRecordingEvents.
package archive

import (
	"fmt"
	"sync/atomic"

	"github.com/momentics/hioload-archive/api"
	"github.com/momentics/hioload-archive/catalog"
	"github.com/momentics/hioload-archive/internal/affinity"
	"github.com/momentics/hioload-archive/internal/concurrency"
)

// Archive is a running recording and replay engine.
type Archive struct {
	ctx       *Context
	cat       *catalog.Catalog
	conductor *Conductor
	recorder  *Recorder
	replayer  *Replayer
	events    *eventsFeed
	runners   []*concurrency.AgentRunner
	closed    atomic.Bool
}

// Launch concludes the context, opens the catalog, recovers any
// recordings interrupted by a crash and starts the agents.
func Launch(ctx *Context) (*Archive, error) {
	if err := ctx.conclude(); err != nil {
		return nil, err
	}
	cat, err := catalog.Open(ctx.ArchiveDir, ctx.FileSyncLevel, ctx.EpochClock)
	if err != nil {
		return nil, err
	}

	events := &eventsFeed{}
	recorder := newRecorder(ctx)
	replayer := newReplayer(ctx)
	conductor := newConductor(ctx, cat, recorder, replayer, events)

	a := &Archive{
		ctx:       ctx,
		cat:       cat,
		conductor: conductor,
		recorder:  recorder,
		replayer:  replayer,
		events:    events,
	}
	if ctx.ThreadingMode == ThreadingModeDedicated {
		a.runners = []*concurrency.AgentRunner{
			concurrency.NewAgentRunner(conductor, ctx.IdleStrategy()),
			concurrency.NewAgentRunner(recorder, ctx.IdleStrategy()),
			concurrency.NewAgentRunner(replayer, ctx.IdleStrategy()),
		}
	} else {
		composite := concurrency.NewCompositeAgent("archive", conductor, recorder, replayer)
		a.runners = []*concurrency.AgentRunner{
			concurrency.NewAgentRunner(composite, ctx.IdleStrategy()),
		}
	}
	for i, r := range a.runners {
		r.OnStart = pinHook(ctx, i)
		r.Start()
	}

	ctx.Logger.Info("archive launched",
		"dir", ctx.ArchiveDir,
		"threadingMode", ctx.ThreadingMode.String(),
		"segmentFileLength", ctx.SegmentFileLength,
		"fileSyncLevel", ctx.FileSyncLevel,
		"recordings", cat.Count())
	return a, nil
}

// pinHook returns an OnStart hook binding runner index to its
// configured CPU, or nil when none is configured.
func pinHook(ctx *Context, index int) func() {
	if index >= len(ctx.AgentCPUs) {
		return nil
	}
	cpu := ctx.AgentCPUs[index]
	return func() {
		if err := affinity.Pin(cpu); err != nil {
			ctx.ErrorHandler(fmt.Errorf("archive: pin agent %d: %w", index, err))
			return
		}
		ctx.Logger.Info("agent pinned", "runner", index, "cpu", cpu)
	}
}

// Connect returns a new control client. Each client has its own
// response ring; its requests are serviced by the conductor.
func (a *Archive) Connect() (*Client, error) {
	if a.closed.Load() {
		return nil, api.ErrArchiveClosed
	}
	return a.conductor.newClient(), nil
}

// SubscribeRecordingEvents attaches a listener feed for recording
// start, progress and stop events.
func (a *Archive) SubscribeRecordingEvents() *EventsSubscription {
	return a.events.subscribe()
}

// DescribeRecordings reads up to count descriptors from the catalog
// starting at fromID. This is the synchronous operational surface;
// clients use ListRecordings for the control protocol form.
func (a *Archive) DescribeRecordings(fromID int64, count int) ([]api.RecordingDescriptor, error) {
	if a.closed.Load() {
		return nil, api.ErrArchiveClosed
	}
	return a.cat.List(fromID, count)
}

// RecordingExtent returns the recorded position of a recording and
// whether it has stopped.
func (a *Archive) RecordingExtent(recordingID int64) (int64, bool, error) {
	if a.closed.Load() {
		return 0, false, api.ErrArchiveClosed
	}
	return a.cat.RecordingExtent(recordingID)
}

// Close stops the agents, aborting the sessions still running, then
// closes the catalog. Recordings cut off mid flight keep null stop
// fields and settle through recovery on the next Launch. Idempotent.
func (a *Archive) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, r := range a.runners {
		r.Stop()
	}
	err := a.cat.Close()
	a.ctx.Logger.Info("archive closed", "dir", a.ctx.ArchiveDir)
	return err
}
