// File: driver/driver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/momentics/hioload-archive/segment"
)

// Scheme is the only channel scheme the in-process driver serves.
const Scheme = "mem"

// Defaults applied when a channel does not pin stream parameters.
const (
	DefaultTermLength = 64 * 1024
	DefaultMTULength  = 1408
	MinTermLength     = 1024
)

var (
	// ErrPublicationExists reports a second publication on a stream.
	ErrPublicationExists = errors.New("driver: publication already exists on stream")
)

type streamKey struct {
	name     string
	streamID int32
}

type stream struct {
	pub  *Publication
	subs []*Subscription
}

// Driver owns the stream registry. All topology changes go through its
// lock; the data path of each publication uses the publication's own
// lock.
type Driver struct {
	mu            sync.Mutex
	streams       map[streamKey]*stream
	nextSessionID int32
	closed        bool
}

// New creates an empty driver.
func New() *Driver {
	return &Driver{streams: map[streamKey]*stream{}}
}

func (d *Driver) streamFor(key streamKey) *stream {
	s, ok := d.streams[key]
	if !ok {
		s = &stream{}
		d.streams[key] = s
	}
	return s
}

func validateTermLength(termLength int32) error {
	if termLength < MinTermLength || termLength&(termLength-1) != 0 {
		return fmt.Errorf("%w: term length %d must be a power of two >= %d",
			ErrInvalidChannel, termLength, MinTermLength)
	}
	return nil
}

func validateMTU(mtu, termLength int32) error {
	if mtu < 2*segment.HeaderLength || mtu%segment.FrameAlignment != 0 || mtu > termLength {
		return fmt.Errorf("%w: mtu %d for term length %d", ErrInvalidChannel, mtu, termLength)
	}
	return nil
}

// AddPublication creates the publication for channel and streamID. The
// channel may pin term-length, mtu, init-term-id, term-id, term-offset
// and session-id; anything unpinned gets defaults. A stream supports
// one publication for its lifetime.
func (d *Driver) AddPublication(channel string, streamID int32) (*Publication, error) {
	u, err := ParseChannelURI(channel)
	if err != nil {
		return nil, err
	}
	if u.Scheme != Scheme {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidChannel, u.Scheme)
	}

	termLength, err := u.Int32Param(ParamTermLength, DefaultTermLength)
	if err != nil {
		return nil, err
	}
	if err := validateTermLength(termLength); err != nil {
		return nil, err
	}
	mtu, err := u.Int32Param(ParamMTU, DefaultMTULength)
	if err != nil {
		return nil, err
	}
	if err := validateMTU(mtu, termLength); err != nil {
		return nil, err
	}
	initTermID, err := u.Int32Param(ParamInitTermID, 0)
	if err != nil {
		return nil, err
	}
	termID, err := u.Int32Param(ParamTermID, initTermID)
	if err != nil {
		return nil, err
	}
	if termID < initTermID {
		return nil, fmt.Errorf("%w: term-id %d before init-term-id %d", ErrInvalidChannel, termID, initTermID)
	}
	termOffset, err := u.Int32Param(ParamTermOffset, 0)
	if err != nil {
		return nil, err
	}
	if termOffset < 0 || termOffset >= termLength || termOffset%segment.FrameAlignment != 0 {
		return nil, fmt.Errorf("%w: term-offset %d for term length %d", ErrInvalidChannel, termOffset, termLength)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("driver: closed")
	}
	sessionID, err := u.Int32Param(ParamSessionID, d.nextSessionID+1)
	if err != nil {
		return nil, err
	}
	if _, ok := u.Params[ParamSessionID]; !ok {
		d.nextSessionID++
	}

	startPosition := int64(termID-initTermID)*int64(termLength) + int64(termOffset)
	return d.addPublicationLocked(u, streamID, initTermID, termID, termOffset, termLength, mtu, sessionID, startPosition)
}

// AddPublicationAt creates a publication whose cursor starts at
// startPosition within the term rotation defined by initialTermID and
// termLength. Replay uses it to reproduce the exact termID and
// termOffset sequence of a recording.
func (d *Driver) AddPublicationAt(channel string, streamID, initialTermID, termLength, mtu int32, startPosition int64) (*Publication, error) {
	u, err := ParseChannelURI(channel)
	if err != nil {
		return nil, err
	}
	if u.Scheme != Scheme {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidChannel, u.Scheme)
	}
	if err := validateTermLength(termLength); err != nil {
		return nil, err
	}
	if err := validateMTU(mtu, termLength); err != nil {
		return nil, err
	}
	if startPosition < 0 || startPosition%segment.FrameAlignment != 0 {
		return nil, fmt.Errorf("%w: start position %d", ErrInvalidChannel, startPosition)
	}

	termID := initialTermID + int32(startPosition/int64(termLength))
	termOffset := int32(startPosition % int64(termLength))

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("driver: closed")
	}
	d.nextSessionID++
	return d.addPublicationLocked(u, streamID, initialTermID, termID, termOffset, termLength, mtu, d.nextSessionID, startPosition)
}

func (d *Driver) addPublicationLocked(u *ChannelURI, streamID, initTermID, termID, termOffset, termLength, mtu, sessionID int32, startPosition int64) (*Publication, error) {
	key := streamKey{name: u.Name, streamID: streamID}
	s := d.streamFor(key)
	if s.pub != nil {
		return nil, fmt.Errorf("%w: %s stream %d", ErrPublicationExists, u.Name, streamID)
	}

	p := &Publication{
		channel:       u.String(),
		streamName:    u.Name,
		streamID:      streamID,
		sessionID:     sessionID,
		initialTermID: initTermID,
		termLength:    termLength,
		mtu:           mtu,
		maxPayload:    mtu - segment.HeaderLength,
		termID:        termID,
		termOffset:    termOffset,
		startPosition: startPosition,
		position:      startPosition,
	}
	s.pub = p
	for _, sub := range s.subs {
		sub.attach(newImage(p))
	}
	return p, nil
}

// AddSubscription subscribes to channel and streamID. When the stream
// already has a publication an image is attached immediately; images
// for later publications arrive through Subscription.PollNewImages.
func (d *Driver) AddSubscription(channel string, streamID int32) (*Subscription, error) {
	u, err := ParseChannelURI(channel)
	if err != nil {
		return nil, err
	}
	if u.Scheme != Scheme {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidChannel, u.Scheme)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("driver: closed")
	}
	key := streamKey{name: u.Name, streamID: streamID}
	s := d.streamFor(key)
	sub := &Subscription{channel: u.String(), streamID: streamID}
	s.subs = append(s.subs, sub)
	if s.pub != nil && !s.pub.IsClosed() {
		sub.attach(newImage(s.pub))
	}
	return sub, nil
}

// Close closes every publication and subscription. The driver serves
// no further topology changes.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, s := range d.streams {
		if s.pub != nil {
			s.pub.Close()
		}
		for _, sub := range s.subs {
			sub.Close()
		}
	}
}
