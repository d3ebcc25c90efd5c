// File: segment/segment.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package segment implements the archive's on-disk store: fixed length
// segment files holding aligned frames, a Writer appending them and a
// Reader replaying them in position order.
package segment

import (
	"fmt"
	"path/filepath"
)

// FileExtension is the suffix of every segment file.
const FileExtension = ".rec"

// Filename returns the canonical file name of a recording segment.
func Filename(recordingID int64, segmentIndex int) string {
	return fmt.Sprintf("%d-%d%s", recordingID, segmentIndex, FileExtension)
}

// FilePath joins dir with the canonical segment file name.
func FilePath(dir string, recordingID int64, segmentIndex int) string {
	return filepath.Join(dir, Filename(recordingID, segmentIndex))
}

// TermBasePosition returns the stream position of the start of the term
// containing startPosition. Segment files of a recording are laid out
// from this base, so a recording that starts mid-term begins at a non
// zero offset inside its first segment.
func TermBasePosition(startPosition int64, termLength int32) int64 {
	return startPosition - (startPosition % int64(termLength))
}

// IndexForPosition returns the segment file index holding position.
func IndexForPosition(position, basePosition int64, segmentLength int32) int {
	return int((position - basePosition) / int64(segmentLength))
}

// OffsetInSegment returns the byte offset of position within its
// segment file.
func OffsetInSegment(position, basePosition int64, segmentLength int32) int32 {
	return int32((position - basePosition) % int64(segmentLength))
}
