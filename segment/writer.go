// File: segment/writer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package segment

import (
	"errors"
	"fmt"
	"os"

	"github.com/momentics/hioload-archive/internal/fsx"
)

// Writer errors.
var (
	ErrWriterClosed  = errors.New("segment: writer is closed")
	ErrFrameTooLarge = errors.New("segment: frame exceeds segment length")
	ErrUnaligned     = errors.New("segment: frame length not aligned")
)

// Writer appends the frames of one recording to its segment files.
// Segments are preallocated at open so appends cannot fail mid-segment
// on a full volume. A frame that does not fit in the tail of the
// current segment causes a padding frame to fill the tail before the
// writer rolls to the next segment file. The position advances by the
// aligned length of everything appended, padding included.
//
// A Writer belongs to a single recording session and is not safe for
// concurrent use.
type Writer struct {
	dir           string
	recordingID   int64
	basePosition  int64
	segmentLength int32
	syncLevel     int
	position      int64
	segmentIndex  int
	segmentOffset int32
	file          *os.File
	closed        bool
	padBuf        [HeaderLength]byte
}

// NewWriter opens the segment file containing startPosition and
// prepares appends from there.
func NewWriter(dir string, recordingID, startPosition int64, termLength, segmentLength int32, syncLevel int) (*Writer, error) {
	if termLength <= 0 || segmentLength <= 0 || segmentLength%FrameAlignment != 0 {
		return nil, fmt.Errorf("segment: invalid lengths term=%d segment=%d", termLength, segmentLength)
	}
	if startPosition < 0 || startPosition%FrameAlignment != 0 {
		return nil, fmt.Errorf("segment: invalid start position %d", startPosition)
	}
	base := TermBasePosition(startPosition, termLength)
	w := &Writer{
		dir:           dir,
		recordingID:   recordingID,
		basePosition:  base,
		segmentLength: segmentLength,
		syncLevel:     syncLevel,
		position:      startPosition,
		segmentIndex:  IndexForPosition(startPosition, base, segmentLength),
		segmentOffset: OffsetInSegment(startPosition, base, segmentLength),
	}
	if err := w.openSegment(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) openSegment() error {
	path := FilePath(w.dir, w.recordingID, w.segmentIndex)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("segment: open %s: %w", path, err)
	}
	if err := fsx.Preallocate(f, int64(w.segmentLength)); err != nil {
		f.Close()
		return fmt.Errorf("segment: preallocate %s: %w", path, err)
	}
	w.file = f
	return nil
}

// Append writes one aligned frame, rolling to the next segment when it
// does not fit. frame must begin with an encoded header and its length
// must be a FrameAlignment multiple.
func (w *Writer) Append(frame []byte) error {
	if w.closed {
		return ErrWriterClosed
	}
	length := int32(len(frame))
	if length == 0 || length%FrameAlignment != 0 {
		return ErrUnaligned
	}
	if length > w.segmentLength {
		return ErrFrameTooLarge
	}

	if remaining := w.segmentLength - w.segmentOffset; remaining < length {
		if remaining > 0 {
			if err := w.padTail(remaining); err != nil {
				return err
			}
		}
		if err := w.nextSegment(); err != nil {
			return err
		}
	}

	if _, err := w.file.WriteAt(frame, int64(w.segmentOffset)); err != nil {
		return fmt.Errorf("segment: append to %s: %w", w.file.Name(), err)
	}
	w.segmentOffset += length
	w.position += int64(length)
	return nil
}

// padTail fills the rest of the current segment with one padding frame.
// Only the header is written; the preallocated file body is already
// zeroed.
func (w *Writer) padTail(length int32) error {
	hdr := FrameHeader{
		FrameLength: length,
		Version:     CurrentVersion,
		Type:        FrameTypePad,
	}
	if err := EncodeFrameHeader(w.padBuf[:], &hdr); err != nil {
		return err
	}
	if _, err := w.file.WriteAt(w.padBuf[:], int64(w.segmentOffset)); err != nil {
		return fmt.Errorf("segment: pad %s: %w", w.file.Name(), err)
	}
	w.segmentOffset += length
	w.position += int64(length)
	return nil
}

func (w *Writer) nextSegment() error {
	if err := w.closeFile(); err != nil {
		return err
	}
	w.segmentIndex++
	w.segmentOffset = 0
	return w.openSegment()
}

// Sync forces appended data to storage according to the sync level.
func (w *Writer) Sync() error {
	if w.closed {
		return ErrWriterClosed
	}
	return fsx.Sync(w.file, w.syncLevel)
}

// Position returns the position after the last appended frame.
func (w *Writer) Position() int64 {
	return w.position
}

func (w *Writer) closeFile() error {
	if err := fsx.Sync(w.file, w.syncLevel); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("segment: close %s: %w", w.file.Name(), err)
	}
	return nil
}

// Close syncs and closes the current segment file. Idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeFile()
}
