// File: segment/frame_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package segment

import (
	"errors"
	"testing"
)

func TestFrameHeader_EncodeDecodeRoundTrip(t *testing.T) {
	in := FrameHeader{
		FrameLength:   100,
		Version:       CurrentVersion,
		Flags:         UnfragmentedFlags,
		Type:          FrameTypeData,
		TermOffset:    4096,
		SessionID:     -7,
		StreamID:      1001,
		TermID:        42,
		ReservedValue: -1,
	}
	var buf [HeaderLength]byte
	if err := EncodeFrameHeader(buf[:], &in); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeFrameHeader(buf[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestFrameHeader_ShortBuffer(t *testing.T) {
	var h FrameHeader
	if err := EncodeFrameHeader(make([]byte, HeaderLength-1), &h); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("encode short buffer: %v, want ErrShortBuffer", err)
	}
	if _, err := DecodeFrameHeader(make([]byte, 10)); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("decode short buffer: %v, want ErrShortBuffer", err)
	}
}

func TestFrameHeader_UnsupportedVersion(t *testing.T) {
	var buf [HeaderLength]byte
	h := FrameHeader{FrameLength: 64, Version: CurrentVersion + 1, Type: FrameTypeData}
	if err := EncodeFrameHeader(buf[:], &h); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeFrameHeader(buf[:]); !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("decode: %v, want ErrInvalidVersion", err)
	}
}

func TestAlignFrameLength(t *testing.T) {
	cases := map[int32]int32{
		0: 0, 1: 32, 31: 32, 32: 32, 33: 64, 100: 128, 128: 128,
	}
	for in, want := range cases {
		if got := AlignFrameLength(in); got != want {
			t.Errorf("AlignFrameLength(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestPositionMath(t *testing.T) {
	const termLength = 4096
	const segmentLength = 8192

	if got := TermBasePosition(0, termLength); got != 0 {
		t.Fatalf("TermBasePosition(0) = %d", got)
	}
	if got := TermBasePosition(5000, termLength); got != 4096 {
		t.Fatalf("TermBasePosition(5000) = %d, want 4096", got)
	}

	base := int64(0)
	if got := IndexForPosition(8192, base, segmentLength); got != 1 {
		t.Fatalf("IndexForPosition(8192) = %d, want 1", got)
	}
	if got := OffsetInSegment(8256, base, segmentLength); got != 64 {
		t.Fatalf("OffsetInSegment(8256) = %d, want 64", got)
	}
}
