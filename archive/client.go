// File: archive/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package archive

import (
	"sync/atomic"

	"github.com/momentics/hioload-archive/api"
	"github.com/momentics/hioload-archive/internal/concurrency"
)

type responseKind int

const (
	kindControl responseKind = iota
	kindDescriptor
)

// controlResponse is one outbound control plane message. kindControl
// carries code, relevantID and message; kindDescriptor carries one
// recording descriptor.
type controlResponse struct {
	kind          responseKind
	correlationID int64
	code          api.ResponseCode
	relevantID    int64
	message       string
	descriptor    api.RecordingDescriptor
}

// Client is one control session with the archive. Requests are
// asynchronous: each carries a caller chosen correlation id, and the
// outcome arrives through PollControlResponses.
//
// The response ring is single producer, single consumer: the conductor
// is the sole producer, so PollControlResponses must be called from
// one goroutine at a time.
type Client struct {
	commands  *commandQueue
	responses *concurrency.RingBuffer[controlResponse]
	closed    atomic.Bool
}

// StartRecording asks the archive to record channel:streamID. Every
// stream image that arrives on the subscription becomes its own
// recording. The response carries ResponseOK, or ResponseError with
// ErrCodeInvalidChannel or ErrCodeRecordingActive.
func (c *Client) StartRecording(channel string, streamID int32, sourceLocation api.SourceLocation, correlationID int64) error {
	if c.closed.Load() {
		return api.ErrClientClosed
	}
	return c.commands.offer(command{
		op:             opStartRecording,
		client:         c,
		correlationID:  correlationID,
		channel:        channel,
		streamID:       streamID,
		sourceLocation: sourceLocation,
	})
}

// StopRecording ends recording of channel:streamID. Active sessions
// drain what the stream has published, flush and finalize before the
// response is observable through the recording events feed.
func (c *Client) StopRecording(channel string, streamID int32, correlationID int64) error {
	if c.closed.Load() {
		return api.ErrClientClosed
	}
	return c.commands.offer(command{
		op:            opStopRecording,
		client:        c,
		correlationID: correlationID,
		channel:       channel,
		streamID:      streamID,
	})
}

// ListRecordings streams up to count descriptor responses starting at
// fromID, then one terminal response: ResponseOK with the number of
// descriptors sent as relevantID, or ResponseRecordingUnknown when
// fromID itself does not exist.
func (c *Client) ListRecordings(fromID int64, count int, correlationID int64) error {
	if c.closed.Load() {
		return api.ErrClientClosed
	}
	return c.commands.offer(command{
		op:            opListRecordings,
		client:        c,
		correlationID: correlationID,
		fromID:        fromID,
		count:         count,
	})
}

// Replay asks the archive to publish length bytes of recordingID from
// position onto replayChannel:replayStreamID. position may be
// api.NullPosition for the recording's start position; a length that
// overruns a live recording follows it until it stops and drains. The
// OK response carries the replay session id as relevantID.
func (c *Client) Replay(recordingID, position, length int64, replayChannel string, replayStreamID int32, correlationID int64) error {
	if c.closed.Load() {
		return api.ErrClientClosed
	}
	return c.commands.offer(command{
		op:             opReplay,
		client:         c,
		correlationID:  correlationID,
		recordingID:    recordingID,
		position:       position,
		length:         length,
		replayChannel:  replayChannel,
		replayStreamID: replayStreamID,
	})
}

// PollControlResponses dispatches up to limit pending responses to
// handler and returns the number dispatched.
func (c *Client) PollControlResponses(handler api.ControlResponseHandler, limit int) int {
	if c.closed.Load() {
		return 0
	}
	return c.responses.Drain(limit, func(r controlResponse) {
		if r.kind == kindDescriptor {
			handler.OnRecordingDescriptor(r.correlationID, r.descriptor)
		} else {
			handler.OnResponse(r.correlationID, r.code, r.relevantID, r.message)
		}
	})
}

// offerResponse is called by the conductor only. A closed client
// swallows responses.
func (c *Client) offerResponse(r controlResponse) bool {
	if c.closed.Load() {
		return true
	}
	return c.responses.Enqueue(r)
}

// Close rejects further requests and drops undelivered responses.
func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}
