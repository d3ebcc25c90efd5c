// File: catalog/recovery.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package catalog

import (
	"os"

	"github.com/momentics/hioload-archive/api"
	"github.com/momentics/hioload-archive/segment"
)

// recoverExtent scans the segment files of an unstopped recording and
// returns the position after the last complete frame. A recording that
// never got data recovers at its start position.
func recoverExtent(dir string, d *api.RecordingDescriptor) int64 {
	base := segment.TermBasePosition(d.StartPosition, d.TermBufferLength)
	position := d.StartPosition
	segmentIndex := segment.IndexForPosition(position, base, d.SegmentFileLength)
	var hdrBuf [segment.HeaderLength]byte

	for {
		f, err := os.Open(segment.FilePath(dir, d.RecordingID, segmentIndex))
		if err != nil {
			return position
		}
		offset := segment.OffsetInSegment(position, base, d.SegmentFileLength)
		for offset < d.SegmentFileLength {
			if _, err := f.ReadAt(hdrBuf[:], int64(offset)); err != nil {
				f.Close()
				return position
			}
			hdr, err := segment.DecodeFrameHeader(hdrBuf[:])
			if err != nil || hdr.FrameLength <= 0 {
				f.Close()
				return position
			}
			aligned := hdr.AlignedLength()
			if offset+aligned > d.SegmentFileLength {
				f.Close()
				return position
			}
			offset += aligned
			position += int64(aligned)
		}
		f.Close()
		segmentIndex++
	}
}
