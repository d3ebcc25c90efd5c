// File: archive/commands.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package archive

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-archive/api"
)

type commandOp int

const (
	opStartRecording commandOp = iota
	opStopRecording
	opListRecordings
	opReplay
)

// command is one control request from a client to the conductor. Only
// the fields relevant to op are set.
type command struct {
	op            commandOp
	client        *Client
	correlationID int64

	channel        string
	streamID       int32
	sourceLocation api.SourceLocation

	fromID int64
	count  int

	recordingID    int64
	position       int64
	length         int64
	replayChannel  string
	replayStreamID int32
}

// commandQueue is the inbound control queue: many client goroutines
// enqueue, the conductor alone drains on its duty cycle.
type commandQueue struct {
	mu     sync.Mutex
	q      *queue.Queue
	closed bool
}

func newCommandQueue() *commandQueue {
	return &commandQueue{q: queue.New()}
}

func (cq *commandQueue) offer(cmd command) error {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	if cq.closed {
		return api.ErrArchiveClosed
	}
	cq.q.Add(cmd)
	return nil
}

// drain removes up to limit commands and hands them to fn outside the
// lock, so handlers may enqueue responses freely.
func (cq *commandQueue) drain(limit int, fn func(command)) int {
	cq.mu.Lock()
	n := cq.q.Length()
	if n > limit {
		n = limit
	}
	batch := make([]command, 0, n)
	for len(batch) < n {
		batch = append(batch, cq.q.Remove().(command))
	}
	cq.mu.Unlock()

	for _, cmd := range batch {
		fn(cmd)
	}
	return len(batch)
}

// close rejects future offers and drops commands not yet drained.
func (cq *commandQueue) close() {
	cq.mu.Lock()
	cq.closed = true
	cq.q = queue.New()
	cq.mu.Unlock()
}
