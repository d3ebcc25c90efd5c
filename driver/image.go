// File: driver/image.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import (
	"fmt"
	"sync/atomic"

	"github.com/momentics/hioload-archive/segment"
)

// FragmentHandler consumes one data frame payload. The bytes are a
// view into the stream log and must not be retained or modified.
type FragmentHandler func(hdr segment.FrameHeader, payload []byte)

// RawFrameHandler consumes one whole aligned frame, header included
// and padding frames too. A non-nil error leaves the frame unconsumed
// and stops the poll.
type RawFrameHandler func(frame []byte) error

// Image is the consumer end of one publication. An image joins at the
// publication position current when it attached and sees every frame
// appended from there on. Poll and RawPoll belong to one consumer
// goroutine; the other accessors are safe from any goroutine.
type Image struct {
	pub          *Publication
	joinPosition int64
	nextIndex    int
	position     int64
	closed       atomic.Bool
}

func newImage(p *Publication) *Image {
	img := &Image{
		pub:          p,
		joinPosition: p.Position(),
		position:     p.Position(),
	}
	p.mu.RLock()
	img.nextIndex = len(p.frames)
	p.mu.RUnlock()
	p.attachImage(img)
	return img
}

// Poll delivers up to fragmentLimit data frame payloads to handler and
// returns the number delivered. Padding frames advance the position
// without being delivered.
func (img *Image) Poll(handler FragmentHandler, fragmentLimit int) int {
	if img.IsClosed() {
		return 0
	}
	count := 0
	for count < fragmentLimit {
		f, ok := img.pub.frameAt(img.nextIndex)
		if !ok {
			break
		}
		img.nextIndex++
		img.position += int64(len(f.buf))
		if f.hdr.Type == segment.FrameTypePad {
			continue
		}
		handler(f.hdr, f.buf[segment.HeaderLength:f.hdr.FrameLength])
		count++
	}
	return count
}

// RawPoll delivers whole aligned frames, padding included, until
// roughly byteLimit bytes were consumed. The first available frame is
// always delivered so a frame larger than byteLimit cannot stall the
// stream. Returns the bytes consumed.
func (img *Image) RawPoll(handler RawFrameHandler, byteLimit int) (int, error) {
	if img.IsClosed() {
		return 0, nil
	}
	consumed := 0
	for consumed < byteLimit {
		f, ok := img.pub.frameAt(img.nextIndex)
		if !ok {
			break
		}
		if consumed > 0 && consumed+len(f.buf) > byteLimit {
			break
		}
		if err := handler(f.buf); err != nil {
			return consumed, err
		}
		img.nextIndex++
		img.position += int64(len(f.buf))
		consumed += len(f.buf)
	}
	return consumed, nil
}

// Position returns the stream position of the next frame to consume.
func (img *Image) Position() int64 { return img.position }

// PublishedPosition returns the source publication's current position,
// which may run ahead of Position while frames await consumption. Safe
// from any goroutine.
func (img *Image) PublishedPosition() int64 { return img.pub.Position() }

// JoinPosition returns the position at which this image attached.
func (img *Image) JoinPosition() int64 { return img.joinPosition }

// SessionID returns the session id of the source publication.
func (img *Image) SessionID() int32 { return img.pub.sessionID }

// StreamID returns the stream id of the source publication.
func (img *Image) StreamID() int32 { return img.pub.streamID }

// InitialTermID returns the initial term id of the source publication.
func (img *Image) InitialTermID() int32 { return img.pub.initialTermID }

// TermBufferLength returns the term length of the source publication.
func (img *Image) TermBufferLength() int32 { return img.pub.termLength }

// MTULength returns the mtu of the source publication.
func (img *Image) MTULength() int32 { return img.pub.mtu }

// SourceIdentity names the source publication.
func (img *Image) SourceIdentity() string {
	return fmt.Sprintf("%s:%s/%d", Scheme, img.pub.streamName, img.pub.sessionID)
}

// IsEndOfStream reports whether the publication closed and every
// appended frame was consumed.
func (img *Image) IsEndOfStream() bool {
	return img.pub.IsClosed() && img.nextIndex == img.pub.frameCount()
}

// IsClosed reports whether the image was released.
func (img *Image) IsClosed() bool {
	return img.closed.Load()
}

// Close releases the image. The source publication counts as
// disconnected once all its images are closed. Idempotent.
func (img *Image) Close() {
	img.closed.Store(true)
}
