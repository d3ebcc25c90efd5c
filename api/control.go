// File: api/control.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Control protocol surface: response codes, the client side response
// handler and request qualifiers shared by archive and clients.

package api

import "fmt"

// ResponseCode classifies a control response returned for a request.
type ResponseCode int32

const (
	// ResponseOK acknowledges a successfully applied request.
	ResponseOK ResponseCode = iota

	// ResponseError carries a failure with an ErrorCode and message.
	ResponseError

	// ResponseRecordingUnknown terminates a listing whose starting
	// recording id does not exist.
	ResponseRecordingUnknown
)

// String returns the symbolic name of the response code.
func (c ResponseCode) String() string {
	switch c {
	case ResponseOK:
		return "OK"
	case ResponseError:
		return "ERROR"
	case ResponseRecordingUnknown:
		return "RECORDING_UNKNOWN"
	default:
		return fmt.Sprintf("ResponseCode(%d)", int32(c))
	}
}

// ControlResponseHandler consumes demultiplexed control responses on the
// client side. Descriptors stream through OnRecordingDescriptor; every
// other outcome arrives through OnResponse with the correlation id of
// the request that caused it.
type ControlResponseHandler interface {
	// OnResponse delivers a terminal or error response. For ResponseOK
	// on a replay request relevantID carries the replay session id; for
	// ResponseError relevantID carries the ErrorCode.
	OnResponse(correlationID int64, code ResponseCode, relevantID int64, message string)

	// OnRecordingDescriptor delivers one descriptor of a listing.
	OnRecordingDescriptor(correlationID int64, descriptor RecordingDescriptor)
}

// SourceLocation indicates where a recorded stream is observed from.
type SourceLocation int32

const (
	// SourceLocationLocal records a stream published within this process.
	SourceLocationLocal SourceLocation = iota

	// SourceLocationRemote records a stream received from a remote peer.
	SourceLocationRemote
)

// String returns the symbolic name of the source location.
func (s SourceLocation) String() string {
	if s == SourceLocationRemote {
		return "REMOTE"
	}
	return "LOCAL"
}
