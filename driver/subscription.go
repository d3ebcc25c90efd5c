// File: driver/subscription.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import "sync"

// Subscription is the consumer registration for one stream. Images
// appear when publications are added and are handed out either through
// Images, keeping ownership with the subscription, or through
// PollNewImages, which transfers ownership of each delivered image to
// the caller so it survives Subscription.Close.
type Subscription struct {
	channel  string
	streamID int32

	mu      sync.Mutex
	images  []*Image
	pending []*Image
	closed  bool
}

func (s *Subscription) attach(img *Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		img.Close()
		return
	}
	s.images = append(s.images, img)
	s.pending = append(s.pending, img)
}

// PollNewImages delivers each image exactly once and transfers its
// ownership to the caller. Returns the number delivered.
func (s *Subscription) PollNewImages(fn func(*Image)) int {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	if len(pending) > 0 {
		kept := s.images[:0]
		for _, img := range s.images {
			transferred := false
			for _, p := range pending {
				if img == p {
					transferred = true
					break
				}
			}
			if !transferred {
				kept = append(kept, img)
			}
		}
		s.images = kept
	}
	s.mu.Unlock()

	for _, img := range pending {
		fn(img)
	}
	return len(pending)
}

// Images returns the images still owned by the subscription.
func (s *Subscription) Images() []*Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Image, len(s.images))
	copy(out, s.images)
	return out
}

// IsConnected reports whether the subscription owns an open image.
func (s *Subscription) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range s.images {
		if !img.IsClosed() {
			return true
		}
	}
	return false
}

// Channel returns the canonical channel string.
func (s *Subscription) Channel() string { return s.channel }

// StreamID returns the stream id.
func (s *Subscription) StreamID() int32 { return s.streamID }

// Close releases the subscription and every image it still owns.
// Images transferred through PollNewImages stay open. Idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, img := range s.images {
		img.Close()
	}
	s.images = nil
	s.pending = nil
}
