// File: api/descriptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Sentinel values for positions and timestamps that are not yet known.
const (
	NullPosition  int64 = -1
	NullTimestamp int64 = -1
)

// RecordingDescriptor is the catalog metadata for one recording. Start
// fields are fixed when the recording begins; stop fields hold the null
// sentinels until the recording ends.
type RecordingDescriptor struct {
	RecordingID       int64  `json:"recordingId"`
	StartTimestamp    int64  `json:"startTimestamp"`
	StopTimestamp     int64  `json:"stopTimestamp"`
	StartPosition     int64  `json:"startPosition"`
	StopPosition      int64  `json:"stopPosition"`
	InitialTermID     int32  `json:"initialTermId"`
	SegmentFileLength int32  `json:"segmentFileLength"`
	TermBufferLength  int32  `json:"termBufferLength"`
	MTULength         int32  `json:"mtuLength"`
	SessionID         int32  `json:"sessionId"`
	StreamID          int32  `json:"streamId"`
	StrippedChannel   string `json:"strippedChannel"`
	OriginalChannel   string `json:"originalChannel"`
	SourceIdentity    string `json:"sourceIdentity"`
}

// IsStopped reports whether the recording has a final stop position.
func (d *RecordingDescriptor) IsStopped() bool {
	return d.StopPosition != NullPosition
}

// Length returns the recorded byte length, or NullPosition while the
// recording is still in progress.
func (d *RecordingDescriptor) Length() int64 {
	if !d.IsStopped() {
		return NullPosition
	}
	return d.StopPosition - d.StartPosition
}
