// File: archive/events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package archive

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-archive/api"
)

type recordingEventKind int

const (
	eventRecordingStart recordingEventKind = iota
	eventRecordingProgress
	eventRecordingStop
)

// recordingEvent is one progress notification from a recording
// session. position carries the current position for progress events
// and the stop position for stop events.
type recordingEvent struct {
	kind           recordingEventKind
	recordingID    int64
	startPosition  int64
	position       int64
	sessionID      int32
	streamID       int32
	channel        string
	sourceIdentity string
}

// eventsFeed fans recording events out to every live subscription.
// Recording sessions publish from the recorder duty cycle; listeners
// poll their subscriptions from any goroutine.
type eventsFeed struct {
	mu   sync.Mutex
	subs []*EventsSubscription
}

func (f *eventsFeed) subscribe() *EventsSubscription {
	s := &EventsSubscription{feed: f, events: queue.New()}
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return s
}

// publish copies the subscriber set under the lock and offers outside
// it, so a subscription closing mid publish cannot be observed nil.
func (f *eventsFeed) publish(ev recordingEvent) {
	f.mu.Lock()
	subs := make([]*EventsSubscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()
	for _, s := range subs {
		s.offer(ev)
	}
}

func (f *eventsFeed) remove(sub *EventsSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s == sub {
			last := len(f.subs) - 1
			f.subs[i] = f.subs[last]
			f.subs[last] = nil
			f.subs = f.subs[:last]
			return
		}
	}
}

// EventsSubscription buffers recording events for one listener. Events
// for a single recording arrive in causal order: start, then progress
// in position order, then stop.
type EventsSubscription struct {
	feed   *eventsFeed
	mu     sync.Mutex
	events *queue.Queue
	closed bool
}

func (s *EventsSubscription) offer(ev recordingEvent) {
	s.mu.Lock()
	if !s.closed {
		s.events.Add(ev)
	}
	s.mu.Unlock()
}

// Poll dispatches up to limit buffered events to listener and returns
// the number dispatched.
func (s *EventsSubscription) Poll(listener api.RecordingEventsListener, limit int) int {
	s.mu.Lock()
	n := s.events.Length()
	if n > limit {
		n = limit
	}
	batch := make([]recordingEvent, 0, n)
	for len(batch) < n {
		batch = append(batch, s.events.Remove().(recordingEvent))
	}
	s.mu.Unlock()

	for _, ev := range batch {
		switch ev.kind {
		case eventRecordingStart:
			listener.OnRecordingStart(ev.recordingID, ev.startPosition,
				ev.sessionID, ev.streamID, ev.channel, ev.sourceIdentity)
		case eventRecordingProgress:
			listener.OnRecordingProgress(ev.recordingID, ev.startPosition, ev.position)
		case eventRecordingStop:
			listener.OnRecordingStop(ev.recordingID, ev.startPosition, ev.position)
		}
	}
	return len(batch)
}

// Close detaches the subscription from the feed and drops any events
// still buffered.
func (s *EventsSubscription) Close() error {
	s.feed.remove(s)
	s.mu.Lock()
	s.closed = true
	s.events = queue.New()
	s.mu.Unlock()
	return nil
}
