// File: archive/replay_session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package archive

import (
	"fmt"

	"github.com/momentics/hioload-archive/catalog"
	"github.com/momentics/hioload-archive/driver"
	"github.com/momentics/hioload-archive/internal/metrics"
	"github.com/momentics/hioload-archive/segment"
)

type replayState int

const (
	replayInit replayState = iota
	replayActive
	replayDone
	replayAborted
)

// ReplaySession republishes one recorded range onto a replay
// publication, reproducing the original frame boundaries, term ids and
// term offsets. It is owned by the replayer duty cycle alone; the
// session ring handoff publishes construction to that goroutine.
type ReplaySession struct {
	sessionID     int64
	recordingID   int64
	reader        *segment.Reader
	pub           *driver.Publication
	cat           *catalog.Catalog
	mets          *metrics.Collectors
	clock         func() int64
	fragmentLimit int

	replayPosition  int64
	replayLimit     int64
	connectDeadline int64

	state    replayState
	offerErr error
}

func newReplaySession(
	sessionID int64,
	recordingID int64,
	reader *segment.Reader,
	pub *driver.Publication,
	cat *catalog.Catalog,
	mets *metrics.Collectors,
	clock func() int64,
	connectDeadline int64,
	fragmentLimit int,
	fromPosition int64,
	replayLimit int64,
) *ReplaySession {
	return &ReplaySession{
		sessionID:       sessionID,
		recordingID:     recordingID,
		reader:          reader,
		pub:             pub,
		cat:             cat,
		mets:            mets,
		clock:           clock,
		fragmentLimit:   fragmentLimit,
		replayPosition:  fromPosition,
		replayLimit:     replayLimit,
		connectDeadline: connectDeadline,
	}
}

// ID returns the replay session id.
func (s *ReplaySession) ID() int64 { return s.sessionID }

// DoWork advances the session one step.
func (s *ReplaySession) DoWork() (int, error) {
	switch s.state {
	case replayInit:
		return s.awaitConnected()
	case replayActive:
		return s.replay()
	default:
		return 0, nil
	}
}

func (s *ReplaySession) awaitConnected() (int, error) {
	if s.pub.IsConnected() {
		s.state = replayActive
		return 1, nil
	}
	if s.clock() >= s.connectDeadline {
		return 0, fmt.Errorf("replay %d: publication not connected within timeout", s.sessionID)
	}
	return 0, nil
}

func (s *ReplaySession) replay() (int, error) {
	if !s.pub.IsConnected() {
		s.complete()
		return 1, nil
	}

	recorded, stopped, err := s.cat.RecordingExtent(s.recordingID)
	if err != nil {
		return 0, err
	}
	bound := recorded
	if s.replayLimit < bound {
		bound = s.replayLimit
	}

	work := 0
	if s.replayPosition < bound {
		n, pollErr := s.reader.Poll(s.onFrame, s.fragmentLimit, bound)
		if s.offerErr != nil {
			return work, s.offerErr
		}
		if pollErr != nil {
			return work, pollErr
		}
		if newPosition := s.reader.Position(); newPosition > s.replayPosition {
			s.mets.BytesReplayed.Add(float64(newPosition - s.replayPosition))
			s.replayPosition = newPosition
			work++
		}
		work += n
	}

	// A live recording keeps the replay waiting for more data; a
	// stopped one ends the replay at its drained extent.
	end := s.replayLimit
	if stopped && recorded < end {
		end = recorded
	}
	if s.replayPosition >= end {
		s.complete()
		work++
	}
	return work, nil
}

func (s *ReplaySession) onFrame(hdr segment.FrameHeader, frame []byte) bool {
	if _, err := s.pub.OfferFrame(hdr, frame); err != nil {
		s.offerErr = fmt.Errorf("replay %d: offer at position %d: %w", s.sessionID, s.replayPosition, err)
		return false
	}
	return true
}

func (s *ReplaySession) complete() {
	s.state = replayDone
	s.mets.ReplaysStopped.Inc()
}

// IsDone reports whether the replay has completed or aborted.
func (s *ReplaySession) IsDone() bool {
	return s.state == replayDone || s.state == replayAborted
}

// Abort terminates the replay without completing the range.
func (s *ReplaySession) Abort() {
	if s.state != replayDone {
		s.state = replayAborted
	}
}

// Close releases the reader and the replay publication; closing the
// publication signals end of stream to connected images.
func (s *ReplaySession) Close() error {
	err := s.reader.Close()
	s.pub.Close()
	return err
}
