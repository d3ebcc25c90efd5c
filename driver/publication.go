// File: driver/publication.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-archive/segment"
)

var (
	// ErrPublicationClosed reports an offer to a closed publication.
	ErrPublicationClosed = errors.New("driver: publication is closed")

	// ErrMaxPayloadExceeded reports a message larger than mtu allows.
	ErrMaxPayloadExceeded = errors.New("driver: message exceeds max payload")

	// ErrPositionRegression reports a frame behind the cursor.
	ErrPositionRegression = errors.New("driver: frame position behind publication cursor")
)

type logFrame struct {
	position int64
	hdr      segment.FrameHeader
	buf      []byte
}

// Publication is the producer end of one stream. Offers append aligned
// frames to the in-memory log; a message that does not fit the current
// term causes a padding frame and a term roll, so stream positions are
// always reproducible from initialTermID and termLength.
//
// Offer, OfferFrame and Close may be called from one producer at a
// time; position reads are safe from any goroutine.
type Publication struct {
	channel       string
	streamName    string
	streamID      int32
	sessionID     int32
	initialTermID int32
	termLength    int32
	mtu           int32
	maxPayload    int32
	startPosition int64

	mu         sync.RWMutex
	termID     int32
	termOffset int32
	position   int64
	frames     []logFrame
	images     []*Image
	closed     atomic.Bool
}

// Offer appends one unfragmented message and returns the new position.
func (p *Publication) Offer(message []byte) (int64, error) {
	if p.closed.Load() {
		return 0, ErrPublicationClosed
	}
	if int32(len(message)) > p.maxPayload {
		return 0, fmt.Errorf("%w: %d > %d", ErrMaxPayloadExceeded, len(message), p.maxPayload)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	frameLength := segment.ComputeFrameLength(len(message))
	aligned := segment.AlignFrameLength(frameLength)
	if aligned > p.termLength-p.termOffset {
		p.padLocked(p.termLength - p.termOffset)
	}

	hdr := segment.FrameHeader{
		FrameLength: frameLength,
		Version:     segment.CurrentVersion,
		Flags:       segment.UnfragmentedFlags,
		Type:        segment.FrameTypeData,
		TermOffset:  p.termOffset,
		SessionID:   p.sessionID,
		StreamID:    p.streamID,
		TermID:      p.termID,
	}
	buf := make([]byte, aligned)
	if err := segment.EncodeFrameHeader(buf, &hdr); err != nil {
		return 0, err
	}
	copy(buf[segment.HeaderLength:], message)
	p.appendLocked(hdr, buf)
	return p.position, nil
}

// OfferFrame re-publishes a stored data frame. The cursor is first
// aligned to the frame's termID and termOffset by appending padding
// for any gap, which reproduces the term rotation of the original
// stream. The frame keeps its payload, flags and reserved value but is
// stamped with this publication's session and stream identity.
func (p *Publication) OfferFrame(hdr segment.FrameHeader, frame []byte) (int64, error) {
	if p.closed.Load() {
		return 0, ErrPublicationClosed
	}
	if int32(len(frame)) != hdr.FrameLength {
		return 0, fmt.Errorf("driver: frame bytes %d do not match header length %d", len(frame), hdr.FrameLength)
	}
	if hdr.FrameLength-segment.HeaderLength > p.maxPayload {
		return 0, fmt.Errorf("%w: %d > %d", ErrMaxPayloadExceeded, hdr.FrameLength-segment.HeaderLength, p.maxPayload)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for p.termID != hdr.TermID || p.termOffset != hdr.TermOffset {
		if p.termID > hdr.TermID || (p.termID == hdr.TermID && p.termOffset > hdr.TermOffset) {
			return 0, fmt.Errorf("%w: frame term %d offset %d, cursor term %d offset %d",
				ErrPositionRegression, hdr.TermID, hdr.TermOffset, p.termID, p.termOffset)
		}
		gap := p.termLength - p.termOffset
		if p.termID == hdr.TermID {
			gap = hdr.TermOffset - p.termOffset
		}
		p.padLocked(gap)
	}

	out := segment.FrameHeader{
		FrameLength:   hdr.FrameLength,
		Version:       segment.CurrentVersion,
		Flags:         hdr.Flags,
		Type:          segment.FrameTypeData,
		TermOffset:    p.termOffset,
		SessionID:     p.sessionID,
		StreamID:      p.streamID,
		TermID:        p.termID,
		ReservedValue: hdr.ReservedValue,
	}
	buf := make([]byte, segment.AlignFrameLength(hdr.FrameLength))
	if err := segment.EncodeFrameHeader(buf, &out); err != nil {
		return 0, err
	}
	copy(buf[segment.HeaderLength:], frame[segment.HeaderLength:])
	p.appendLocked(out, buf)
	return p.position, nil
}

// padLocked appends one padding frame of gap bytes and rolls the term
// when the cursor reaches its end.
func (p *Publication) padLocked(gap int32) {
	hdr := segment.FrameHeader{
		FrameLength: gap,
		Version:     segment.CurrentVersion,
		Type:        segment.FrameTypePad,
		TermOffset:  p.termOffset,
		SessionID:   p.sessionID,
		StreamID:    p.streamID,
		TermID:      p.termID,
	}
	buf := make([]byte, gap)
	segment.EncodeFrameHeader(buf, &hdr)
	p.appendLocked(hdr, buf)
}

func (p *Publication) appendLocked(hdr segment.FrameHeader, buf []byte) {
	p.frames = append(p.frames, logFrame{position: p.position, hdr: hdr, buf: buf})
	p.termOffset += int32(len(buf))
	p.position += int64(len(buf))
	if p.termOffset == p.termLength {
		p.termID++
		p.termOffset = 0
	}
}

func (p *Publication) frameAt(index int) (logFrame, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index >= len(p.frames) {
		return logFrame{}, false
	}
	return p.frames[index], true
}

func (p *Publication) frameCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.frames)
}

func (p *Publication) attachImage(img *Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images = append(p.images, img)
}

// Position returns the position after the last appended frame.
func (p *Publication) Position() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position
}

// IsConnected reports whether at least one open image consumes this
// publication.
func (p *Publication) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, img := range p.images {
		if !img.IsClosed() {
			return true
		}
	}
	return false
}

// Channel returns the canonical channel string.
func (p *Publication) Channel() string { return p.channel }

// StreamID returns the stream id.
func (p *Publication) StreamID() int32 { return p.streamID }

// SessionID returns the session id.
func (p *Publication) SessionID() int32 { return p.sessionID }

// InitialTermID returns the initial term id of the rotation.
func (p *Publication) InitialTermID() int32 { return p.initialTermID }

// TermBufferLength returns the term length in bytes.
func (p *Publication) TermBufferLength() int32 { return p.termLength }

// MTULength returns the maximum transmission unit in bytes.
func (p *Publication) MTULength() int32 { return p.mtu }

// MaxPayloadLength returns the largest message Offer accepts.
func (p *Publication) MaxPayloadLength() int32 { return p.maxPayload }

// IsClosed reports whether the publication stopped accepting offers.
func (p *Publication) IsClosed() bool { return p.closed.Load() }

// Close stops the publication. Images drain the remaining log and then
// observe end of stream.
func (p *Publication) Close() {
	p.closed.Store(true)
}
