// File: segment/reader.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package segment

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader errors.
var (
	ErrReaderClosed     = errors.New("segment: reader is closed")
	ErrTruncatedSegment = errors.New("segment: truncated or unwritten segment data")
	ErrInvalidFrame     = errors.New("segment: invalid frame")
)

// FrameConsumer receives one data frame: the decoded header and the
// raw frame bytes of exactly hdr.FrameLength, header included. The
// bytes are only valid for the duration of the call. Returning false
// leaves the frame unconsumed so the next poll delivers it again.
type FrameConsumer func(hdr FrameHeader, frame []byte) bool

// Reader traverses the stored frames of one recording in position
// order. Padding frames advance the cursor by their aligned length but
// are never surfaced. A Reader belongs to a single replay session and
// is not safe for concurrent use.
type Reader struct {
	dir           string
	recordingID   int64
	basePosition  int64
	segmentLength int32
	position      int64
	segmentIndex  int
	file          *os.File
	hdrBuf        [HeaderLength]byte
	frameBuf      []byte
	closed        bool
}

// NewReader positions a reader at fromPosition within the recording
// whose segments start at startPosition.
func NewReader(dir string, recordingID, startPosition int64, termLength, segmentLength int32, fromPosition int64) (*Reader, error) {
	if termLength <= 0 || segmentLength <= 0 {
		return nil, fmt.Errorf("segment: invalid lengths term=%d segment=%d", termLength, segmentLength)
	}
	if fromPosition < startPosition || fromPosition%FrameAlignment != 0 {
		return nil, fmt.Errorf("segment: invalid read position %d", fromPosition)
	}
	base := TermBasePosition(startPosition, termLength)
	r := &Reader{
		dir:           dir,
		recordingID:   recordingID,
		basePosition:  base,
		segmentLength: segmentLength,
		position:      fromPosition,
		segmentIndex:  IndexForPosition(fromPosition, base, segmentLength),
	}
	if err := r.openSegment(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) openSegment() error {
	path := FilePath(r.dir, r.recordingID, r.segmentIndex)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("segment: open %s: %w", path, err)
	}
	r.file = f
	return nil
}

// Poll delivers up to fragmentLimit data frames below limitPosition to
// consumer and returns the number delivered. A frame that starts below
// the limit is always delivered whole, so the cursor can finish past
// limitPosition. Frames promised by limitPosition that cannot be read
// back are reported as errors.
func (r *Reader) Poll(consumer FrameConsumer, fragmentLimit int, limitPosition int64) (int, error) {
	if r.closed || r.file == nil {
		return 0, ErrReaderClosed
	}
	count := 0
	for count < fragmentLimit && r.position < limitPosition {
		if idx := IndexForPosition(r.position, r.basePosition, r.segmentLength); idx != r.segmentIndex {
			if err := r.rollSegment(idx); err != nil {
				return count, err
			}
		}
		offset := OffsetInSegment(r.position, r.basePosition, r.segmentLength)

		if _, err := r.file.ReadAt(r.hdrBuf[:], int64(offset)); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return count, fmt.Errorf("%w: %s at offset %d", ErrTruncatedSegment, r.file.Name(), offset)
			}
			return count, fmt.Errorf("segment: read %s: %w", r.file.Name(), err)
		}
		hdr, err := DecodeFrameHeader(r.hdrBuf[:])
		if err != nil {
			return count, err
		}
		if hdr.FrameLength <= 0 {
			return count, fmt.Errorf("%w: %s at offset %d", ErrTruncatedSegment, r.file.Name(), offset)
		}
		aligned := hdr.AlignedLength()
		if offset+aligned > r.segmentLength {
			return count, fmt.Errorf("%w: frame at offset %d spans segment boundary", ErrInvalidFrame, offset)
		}

		if hdr.Type == FrameTypePad {
			r.position += int64(aligned)
			continue
		}

		frame, err := r.readFrame(offset, hdr.FrameLength)
		if err != nil {
			return count, err
		}
		if !consumer(hdr, frame) {
			return count, nil
		}
		r.position += int64(aligned)
		count++
	}
	return count, nil
}

func (r *Reader) readFrame(offset, frameLength int32) ([]byte, error) {
	if int(frameLength) > cap(r.frameBuf) {
		r.frameBuf = make([]byte, frameLength)
	}
	buf := r.frameBuf[:frameLength]
	if _, err := r.file.ReadAt(buf, int64(offset)); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s at offset %d", ErrTruncatedSegment, r.file.Name(), offset)
		}
		return nil, fmt.Errorf("segment: read %s: %w", r.file.Name(), err)
	}
	return buf, nil
}

func (r *Reader) rollSegment(idx int) error {
	name := r.file.Name()
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("segment: close %s: %w", name, err)
	}
	r.segmentIndex = idx
	return r.openSegment()
}

// Position returns the cursor after the last consumed frame.
func (r *Reader) Position() int64 {
	return r.position
}

// Close releases the open segment file. Idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
