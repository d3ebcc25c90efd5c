// File: archive/recording_session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package archive

import (
	"sync/atomic"

	"github.com/momentics/hioload-archive/api"
	"github.com/momentics/hioload-archive/catalog"
	"github.com/momentics/hioload-archive/driver"
	"github.com/momentics/hioload-archive/internal/metrics"
	"github.com/momentics/hioload-archive/segment"
)

type recordingState int32

const (
	recordingInit recordingState = iota
	recordingActive
	recordingStopped
	recordingAborted
)

// RecordingSession drains one stream image into segment files, keeping
// the catalog's recorded position current as data reaches storage. It
// runs on the recorder duty cycle; stopRequest is the only cross
// thread input and state the only cross thread output.
type RecordingSession struct {
	recordingID int64
	descriptor  api.RecordingDescriptor
	image       *driver.Image
	writer      *segment.Writer
	cat         *catalog.Catalog
	events      *eventsFeed
	mets        *metrics.Collectors
	blockLength int
	position    int64
	stopBound   int64

	state       atomic.Int32
	stopRequest atomic.Bool
}

func newRecordingSession(
	recordingID int64,
	descriptor api.RecordingDescriptor,
	image *driver.Image,
	writer *segment.Writer,
	cat *catalog.Catalog,
	events *eventsFeed,
	mets *metrics.Collectors,
	blockLength int,
) *RecordingSession {
	return &RecordingSession{
		recordingID: recordingID,
		descriptor:  descriptor,
		image:       image,
		writer:      writer,
		cat:         cat,
		events:      events,
		mets:        mets,
		blockLength: blockLength,
		position:    descriptor.StartPosition,
		stopBound:   api.NullPosition,
	}
}

// ID returns the recording id.
func (s *RecordingSession) ID() int64 { return s.recordingID }

// RequestStop asks the session to drain the image and finalize. Safe
// from any goroutine.
func (s *RecordingSession) RequestStop() { s.stopRequest.Store(true) }

// DoWork advances the session one step.
func (s *RecordingSession) DoWork() (int, error) {
	switch recordingState(s.state.Load()) {
	case recordingInit:
		s.events.publish(recordingEvent{
			kind:           eventRecordingStart,
			recordingID:    s.recordingID,
			startPosition:  s.descriptor.StartPosition,
			sessionID:      s.descriptor.SessionID,
			streamID:       s.descriptor.StreamID,
			channel:        s.descriptor.StrippedChannel,
			sourceIdentity: s.descriptor.SourceIdentity,
		})
		s.state.Store(int32(recordingActive))
		return 1, nil
	case recordingActive:
		return s.record()
	default:
		return 0, nil
	}
}

func (s *RecordingSession) record() (int, error) {
	// A stop request bounds the recording at the extent the source had
	// published when the request was observed, so a busy publisher
	// cannot starve the stop.
	if s.stopRequest.Load() && s.stopBound == api.NullPosition {
		s.stopBound = s.image.PublishedPosition()
	}
	limit := s.blockLength
	if s.stopBound != api.NullPosition {
		if remaining := s.stopBound - s.position; remaining < int64(limit) {
			limit = int(remaining)
		}
	}
	bytes, pollErr := s.image.RawPoll(s.onFrame, limit)
	if bytes > 0 {
		if err := s.flush(); err != nil {
			return bytes, err
		}
	}
	if pollErr != nil {
		return bytes, pollErr
	}
	if s.image.IsEndOfStream() || (s.stopBound != api.NullPosition && s.position >= s.stopBound) {
		n, err := s.finalize()
		return bytes + n, err
	}
	return bytes, nil
}

func (s *RecordingSession) onFrame(frame []byte) error {
	return s.writer.Append(frame)
}

// flush makes appended frames durable before the recorded position
// moves, so readers never see a position ahead of storage.
func (s *RecordingSession) flush() error {
	if err := s.writer.Sync(); err != nil {
		return err
	}
	newPosition := s.writer.Position()
	if err := s.cat.UpdateRecordedPosition(s.recordingID, newPosition); err != nil {
		return err
	}
	s.mets.BytesRecorded.Add(float64(newPosition - s.position))
	s.position = newPosition
	s.events.publish(recordingEvent{
		kind:          eventRecordingProgress,
		recordingID:   s.recordingID,
		startPosition: s.descriptor.StartPosition,
		position:      newPosition,
	})
	return nil
}

func (s *RecordingSession) finalize() (int, error) {
	if err := s.cat.RecordingStopped(s.recordingID, s.position); err != nil {
		s.state.Store(int32(recordingAborted))
		return 0, err
	}
	s.events.publish(recordingEvent{
		kind:          eventRecordingStop,
		recordingID:   s.recordingID,
		startPosition: s.descriptor.StartPosition,
		position:      s.position,
	})
	s.mets.RecordingsStopped.Inc()
	s.state.Store(int32(recordingStopped))
	return 1, nil
}

// IsDone reports whether the session has finalized or aborted. Safe
// from any goroutine.
func (s *RecordingSession) IsDone() bool {
	st := recordingState(s.state.Load())
	return st == recordingStopped || st == recordingAborted
}

// Abort force-terminates without finalizing. The descriptor keeps its
// null stop fields, so catalog recovery settles the recording on the
// next open.
func (s *RecordingSession) Abort() {
	if recordingState(s.state.Load()) != recordingStopped {
		s.state.Store(int32(recordingAborted))
	}
}

// Close releases the image and the segment writer.
func (s *RecordingSession) Close() error {
	s.image.Close()
	return s.writer.Close()
}
