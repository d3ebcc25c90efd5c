// File: catalog/descriptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed slot binary codec for recording descriptors. Each slot holds
// one descriptor, little endian:
//
//	offset 0  encodedLength int32   bytes used after this field, 0 for an empty slot
//	offset 4  recordingID   int64
//	offset 12 startTimestamp int64
//	offset 20 stopTimestamp int64
//	offset 28 startPosition int64
//	offset 36 stopPosition  int64
//	offset 44 initialTermID     int32
//	offset 48 segmentFileLength int32
//	offset 52 termBufferLength  int32
//	offset 56 mtuLength         int32
//	offset 60 sessionID         int32
//	offset 64 streamID          int32
//	offset 68 strippedChannel, originalChannel, sourceIdentity as
//	          int32 length prefixed byte strings

package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/hioload-archive/api"
)

const (
	// SlotLength is the fixed byte size of one descriptor slot.
	SlotLength = 1024

	fixedFieldsEnd = 68
)

func encodeDescriptor(dst []byte, d *api.RecordingDescriptor) error {
	if len(dst) < SlotLength {
		return fmt.Errorf("catalog: slot buffer too short: %d", len(dst))
	}
	need := fixedFieldsEnd + 12 + len(d.StrippedChannel) + len(d.OriginalChannel) + len(d.SourceIdentity)
	if need > SlotLength {
		return fmt.Errorf("catalog: descriptor for recording %d exceeds slot: %d bytes", d.RecordingID, need)
	}

	binary.LittleEndian.PutUint64(dst[4:], uint64(d.RecordingID))
	binary.LittleEndian.PutUint64(dst[12:], uint64(d.StartTimestamp))
	binary.LittleEndian.PutUint64(dst[20:], uint64(d.StopTimestamp))
	binary.LittleEndian.PutUint64(dst[28:], uint64(d.StartPosition))
	binary.LittleEndian.PutUint64(dst[36:], uint64(d.StopPosition))
	binary.LittleEndian.PutUint32(dst[44:], uint32(d.InitialTermID))
	binary.LittleEndian.PutUint32(dst[48:], uint32(d.SegmentFileLength))
	binary.LittleEndian.PutUint32(dst[52:], uint32(d.TermBufferLength))
	binary.LittleEndian.PutUint32(dst[56:], uint32(d.MTULength))
	binary.LittleEndian.PutUint32(dst[60:], uint32(d.SessionID))
	binary.LittleEndian.PutUint32(dst[64:], uint32(d.StreamID))

	offset := fixedFieldsEnd
	for _, s := range []string{d.StrippedChannel, d.OriginalChannel, d.SourceIdentity} {
		binary.LittleEndian.PutUint32(dst[offset:], uint32(len(s)))
		offset += 4
		copy(dst[offset:], s)
		offset += len(s)
	}
	for i := offset; i < SlotLength; i++ {
		dst[i] = 0
	}
	binary.LittleEndian.PutUint32(dst[0:], uint32(offset-4))
	return nil
}

func decodeDescriptor(src []byte) (api.RecordingDescriptor, error) {
	var d api.RecordingDescriptor
	if len(src) < SlotLength {
		return d, fmt.Errorf("catalog: slot too short: %d", len(src))
	}
	encoded := int(int32(binary.LittleEndian.Uint32(src[0:])))
	if encoded < fixedFieldsEnd-4 || encoded > SlotLength-4 {
		return d, fmt.Errorf("catalog: corrupt slot length %d", encoded)
	}

	d.RecordingID = int64(binary.LittleEndian.Uint64(src[4:]))
	d.StartTimestamp = int64(binary.LittleEndian.Uint64(src[12:]))
	d.StopTimestamp = int64(binary.LittleEndian.Uint64(src[20:]))
	d.StartPosition = int64(binary.LittleEndian.Uint64(src[28:]))
	d.StopPosition = int64(binary.LittleEndian.Uint64(src[36:]))
	d.InitialTermID = int32(binary.LittleEndian.Uint32(src[44:]))
	d.SegmentFileLength = int32(binary.LittleEndian.Uint32(src[48:]))
	d.TermBufferLength = int32(binary.LittleEndian.Uint32(src[52:]))
	d.MTULength = int32(binary.LittleEndian.Uint32(src[56:]))
	d.SessionID = int32(binary.LittleEndian.Uint32(src[60:]))
	d.StreamID = int32(binary.LittleEndian.Uint32(src[64:]))

	offset := fixedFieldsEnd
	end := encoded + 4
	for _, target := range []*string{&d.StrippedChannel, &d.OriginalChannel, &d.SourceIdentity} {
		if offset+4 > end {
			return d, fmt.Errorf("catalog: corrupt slot for recording %d", d.RecordingID)
		}
		n := int(int32(binary.LittleEndian.Uint32(src[offset:])))
		offset += 4
		if n < 0 || offset+n > end {
			return d, fmt.Errorf("catalog: corrupt slot string for recording %d", d.RecordingID)
		}
		*target = string(src[offset : offset+n])
		offset += n
	}
	return d, nil
}
