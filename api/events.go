// File: api/events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// RecordingEventsListener receives the asynchronous lifecycle events of
// recordings. Events for one recording arrive in causal order: start,
// zero or more progress updates with monotonically non-decreasing
// positions, then stop.
type RecordingEventsListener interface {
	// OnRecordingStart signals that a recording session began for a
	// newly observed stream image.
	OnRecordingStart(recordingID, startPosition int64, sessionID, streamID int32, channel, sourceIdentity string)

	// OnRecordingProgress signals that the recorded position advanced.
	OnRecordingProgress(recordingID, startPosition, position int64)

	// OnRecordingStop signals that the recording reached its final
	// stop position and its descriptor was finalized.
	OnRecordingStop(recordingID, startPosition, stopPosition int64)
}
