// File: segment/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Binary frame header codec. Every frame in flight and on disk starts
// with a 32 byte little-endian header:
//
//	offset 0  frameLength   int32   header plus payload, unaligned
//	offset 4  version       uint8
//	offset 5  flags         uint8
//	offset 6  type          uint16
//	offset 8  termOffset    int32
//	offset 12 sessionID     int32
//	offset 16 streamID      int32
//	offset 20 termID        int32
//	offset 24 reservedValue int64
//
// Frames are stored at 32 byte aligned boundaries; the gap between
// frameLength and the aligned length is zero filled.

package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderLength is the fixed frame header size in bytes.
	HeaderLength = 32

	// FrameAlignment is the boundary every frame starts on.
	FrameAlignment = 32

	// CurrentVersion is the frame header version written by this codec.
	CurrentVersion uint8 = 0

	// UnfragmentedFlags marks a frame carrying a whole message.
	UnfragmentedFlags uint8 = 0xC0
)

// Frame types.
const (
	// FrameTypePad fills the unusable tail of a term or segment. Readers
	// account its aligned length but never deliver it.
	FrameTypePad uint16 = 0x00

	// FrameTypeData carries application payload.
	FrameTypeData uint16 = 0x01
)

// Codec errors.
var (
	ErrShortBuffer    = errors.New("segment: buffer too short for frame header")
	ErrInvalidVersion = errors.New("segment: unsupported frame header version")
)

// FrameHeader is the decoded form of a frame header.
type FrameHeader struct {
	FrameLength   int32
	Version       uint8
	Flags         uint8
	Type          uint16
	TermOffset    int32
	SessionID     int32
	StreamID      int32
	TermID        int32
	ReservedValue int64
}

// AlignedLength returns the frame length rounded up to FrameAlignment.
func (h *FrameHeader) AlignedLength() int32 {
	return AlignFrameLength(h.FrameLength)
}

// AlignFrameLength rounds length up to the next FrameAlignment boundary.
func AlignFrameLength(length int32) int32 {
	return (length + FrameAlignment - 1) &^ (FrameAlignment - 1)
}

// ComputeFrameLength returns the unaligned frame length for a payload.
func ComputeFrameLength(payloadLength int) int32 {
	return int32(HeaderLength + payloadLength)
}

// EncodeFrameHeader writes h into dst, which must hold HeaderLength
// bytes.
func EncodeFrameHeader(dst []byte, h *FrameHeader) error {
	if len(dst) < HeaderLength {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(h.FrameLength))
	dst[4] = h.Version
	dst[5] = h.Flags
	binary.LittleEndian.PutUint16(dst[6:8], h.Type)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(h.TermOffset))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(h.SessionID))
	binary.LittleEndian.PutUint32(dst[16:20], uint32(h.StreamID))
	binary.LittleEndian.PutUint32(dst[20:24], uint32(h.TermID))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(h.ReservedValue))
	return nil
}

// DecodeFrameHeader parses a frame header from src.
func DecodeFrameHeader(src []byte) (FrameHeader, error) {
	if len(src) < HeaderLength {
		return FrameHeader{}, ErrShortBuffer
	}
	h := FrameHeader{
		FrameLength:   int32(binary.LittleEndian.Uint32(src[0:4])),
		Version:       src[4],
		Flags:         src[5],
		Type:          binary.LittleEndian.Uint16(src[6:8]),
		TermOffset:    int32(binary.LittleEndian.Uint32(src[8:12])),
		SessionID:     int32(binary.LittleEndian.Uint32(src[12:16])),
		StreamID:      int32(binary.LittleEndian.Uint32(src[16:20])),
		TermID:        int32(binary.LittleEndian.Uint32(src[20:24])),
		ReservedValue: int64(binary.LittleEndian.Uint64(src[24:32])),
	}
	if h.Version != CurrentVersion {
		return FrameHeader{}, fmt.Errorf("%w: %d", ErrInvalidVersion, h.Version)
	}
	return h, nil
}
