// File: segment/writer_reader_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package segment

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/momentics/hioload-archive/internal/fsx"
)

const (
	testTermLength    = 4096
	testSegmentLength = 8192
)

// buildFrame returns one aligned data frame with a payload of repeated
// fill bytes.
func buildFrame(t *testing.T, payloadLength int, fill byte, termID, termOffset int32) []byte {
	t.Helper()
	frameLength := ComputeFrameLength(payloadLength)
	buf := make([]byte, AlignFrameLength(frameLength))
	hdr := FrameHeader{
		FrameLength: frameLength,
		Version:     CurrentVersion,
		Flags:       UnfragmentedFlags,
		Type:        FrameTypeData,
		TermOffset:  termOffset,
		SessionID:   7,
		StreamID:    10,
		TermID:      termID,
	}
	if err := EncodeFrameHeader(buf, &hdr); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	for i := 0; i < payloadLength; i++ {
		buf[HeaderLength+i] = fill
	}
	return buf
}

func newTestWriter(t *testing.T, dir string, startPosition int64) *Writer {
	t.Helper()
	w, err := NewWriter(dir, 0, startPosition, testTermLength, testSegmentLength, fsx.SyncNone)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	return w
}

func TestWriterReader_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, 0)

	const frameCount = 20
	var written int64
	for i := 0; i < frameCount; i++ {
		frame := buildFrame(t, 100, byte('a'+i%26), 0, int32(written))
		if err := w.Append(frame); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		written += int64(len(frame))
	}
	if w.Position() != written {
		t.Fatalf("writer position = %d, want %d", w.Position(), written)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	r, err := NewReader(dir, 0, 0, testTermLength, testSegmentLength, 0)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer r.Close()

	read := 0
	for read < frameCount {
		n, err := r.Poll(func(hdr FrameHeader, frame []byte) bool {
			if hdr.Type != FrameTypeData {
				t.Fatalf("unexpected frame type %#x", hdr.Type)
			}
			if int32(len(frame)) != hdr.FrameLength {
				t.Fatalf("frame bytes = %d, want %d", len(frame), hdr.FrameLength)
			}
			want := byte('a' + read%26)
			if !bytes.Equal(frame[HeaderLength:], bytes.Repeat([]byte{want}, 100)) {
				t.Fatalf("frame %d payload corrupted", read)
			}
			read++
			return true
		}, 4, written)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if n == 0 {
			t.Fatalf("poll stalled at %d of %d frames", read, frameCount)
		}
	}
	if r.Position() != written {
		t.Fatalf("reader position = %d, want %d", r.Position(), written)
	}
}

func TestWriter_RollsToNextSegment(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, 0)

	// 65 frames of 128 aligned bytes crosses the 8192 byte segment.
	frame := buildFrame(t, 100, 'x', 0, 0)
	for i := 0; i < 65; i++ {
		if err := w.Append(frame); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, idx := range []int{0, 1} {
		info, err := os.Stat(FilePath(dir, 0, idx))
		if err != nil {
			t.Fatalf("segment %d missing: %v", idx, err)
		}
		if info.Size() != testSegmentLength {
			t.Fatalf("segment %d size = %d, want %d", idx, info.Size(), testSegmentLength)
		}
	}

	r, err := NewReader(dir, 0, 0, testTermLength, testSegmentLength, 0)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer r.Close()

	total := 0
	for {
		n, err := r.Poll(func(FrameHeader, []byte) bool { return true }, 16, w.Position())
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total != 65 {
		t.Fatalf("read %d frames across segments, want 65", total)
	}
}

func TestWriter_PadsTailWhenFrameDoesNotFit(t *testing.T) {
	dir := t.TempDir()
	// Segment of two terms; leave 64 bytes in the tail, then append a
	// 128 byte frame.
	w := newTestWriter(t, dir, 0)

	big := buildFrame(t, testSegmentLength-64-HeaderLength, 'a', 0, 0)
	if err := w.Append(big); err != nil {
		t.Fatalf("append big: %v", err)
	}
	next := buildFrame(t, 100, 'b', 2, 0)
	if err := w.Append(next); err != nil {
		t.Fatalf("append next: %v", err)
	}
	wantPosition := int64(testSegmentLength + len(next))
	if w.Position() != wantPosition {
		t.Fatalf("position = %d, want %d (tail padding counted)", w.Position(), wantPosition)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The stored tail must decode as one padding frame.
	data, err := os.ReadFile(FilePath(dir, 0, 0))
	if err != nil {
		t.Fatalf("read segment 0: %v", err)
	}
	hdr, err := DecodeFrameHeader(data[testSegmentLength-64:])
	if err != nil {
		t.Fatalf("decode tail header: %v", err)
	}
	if hdr.Type != FrameTypePad || hdr.FrameLength != 64 {
		t.Fatalf("tail frame = type %#x length %d, want pad of 64", hdr.Type, hdr.FrameLength)
	}

	// Reading back skips the padding and surfaces both data frames.
	r, err := NewReader(dir, 0, 0, testTermLength, testSegmentLength, 0)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer r.Close()

	var fills []byte
	n, err := r.Poll(func(hdr FrameHeader, frame []byte) bool {
		fills = append(fills, frame[HeaderLength])
		return true
	}, 10, w.Position())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 2 || string(fills) != "ab" {
		t.Fatalf("poll = %d frames %q, want 2 frames \"ab\"", n, fills)
	}
	if r.Position() != wantPosition {
		t.Fatalf("reader position = %d, want %d", r.Position(), wantPosition)
	}
}

func TestWriter_StartsMidTerm(t *testing.T) {
	dir := t.TempDir()
	const startPosition = testTermLength + 256

	w, err := NewWriter(dir, 5, startPosition, testTermLength, testSegmentLength, fsx.SyncData)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	frame := buildFrame(t, 64, 'm', 1, 256)
	if err := w.Append(frame); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Base of the containing term is 4096, so the frame lands at file
	// offset 256 of segment 0.
	data, err := os.ReadFile(FilePath(dir, 5, 0))
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	hdr, err := DecodeFrameHeader(data[256:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hdr.Type != FrameTypeData || hdr.TermOffset != 256 {
		t.Fatalf("frame at 256 = %+v", hdr)
	}

	r, err := NewReader(dir, 5, startPosition, testTermLength, testSegmentLength, startPosition)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer r.Close()
	n, err := r.Poll(func(FrameHeader, []byte) bool { return true }, 1, w.Position())
	if err != nil || n != 1 {
		t.Fatalf("poll = (%d, %v), want (1, nil)", n, err)
	}
}

func TestReader_StartsMidRecording(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, 0)

	frame := buildFrame(t, 100, 'x', 0, 0)
	for i := 0; i < 10; i++ {
		if err := w.Append(frame); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	from := int64(4 * len(frame))
	r, err := NewReader(dir, 0, 0, testTermLength, testSegmentLength, from)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer r.Close()

	n, err := r.Poll(func(FrameHeader, []byte) bool { return true }, 100, w.Position())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 6 {
		t.Fatalf("polled %d frames from position %d, want 6", n, from)
	}
}

func TestReader_ConsumerBackpressure(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, 0)
	frame := buildFrame(t, 40, 'p', 0, 0)
	if err := w.Append(frame); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := NewReader(dir, 0, 0, testTermLength, testSegmentLength, 0)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer r.Close()

	n, err := r.Poll(func(FrameHeader, []byte) bool { return false }, 10, w.Position())
	if err != nil || n != 0 {
		t.Fatalf("rejected poll = (%d, %v), want (0, nil)", n, err)
	}
	if r.Position() != 0 {
		t.Fatalf("position advanced to %d for unconsumed frame", r.Position())
	}

	n, err = r.Poll(func(FrameHeader, []byte) bool { return true }, 10, w.Position())
	if err != nil || n != 1 {
		t.Fatalf("retry poll = (%d, %v), want (1, nil)", n, err)
	}
}

func TestReader_UnwrittenRegionIsTruncation(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, 0)
	frame := buildFrame(t, 100, 'x', 0, 0)
	if err := w.Append(frame); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := NewReader(dir, 0, 0, testTermLength, testSegmentLength, 0)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer r.Close()

	// Promise more data than was written: the zeroed region after the
	// only frame must surface as truncation, not as silence.
	limit := int64(2 * len(frame))
	n, err := r.Poll(func(FrameHeader, []byte) bool { return true }, 10, limit)
	if !errors.Is(err, ErrTruncatedSegment) {
		t.Fatalf("poll = (%d, %v), want ErrTruncatedSegment", n, err)
	}
	if n != 1 {
		t.Fatalf("delivered %d frames before truncation, want 1", n)
	}
}

func TestReader_PhysicallyTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, 0)
	frame := buildFrame(t, 200, 'x', 0, 0)
	if err := w.Append(frame); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Cut the file in the middle of the frame payload.
	if err := os.Truncate(FilePath(dir, 0, 0), HeaderLength+10); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	r, err := NewReader(dir, 0, 0, testTermLength, testSegmentLength, 0)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer r.Close()

	_, err = r.Poll(func(FrameHeader, []byte) bool { return true }, 1, int64(len(frame)))
	if !errors.Is(err, ErrTruncatedSegment) {
		t.Fatalf("poll error = %v, want ErrTruncatedSegment", err)
	}
}

func TestReader_FrameStartingBelowLimitDeliveredWhole(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, 0)
	frame := buildFrame(t, 100, 'x', 0, 0)
	for i := 0; i < 3; i++ {
		if err := w.Append(frame); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := NewReader(dir, 0, 0, testTermLength, testSegmentLength, 0)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer r.Close()

	// Limit cuts into the second frame: both first and second frames
	// are delivered, the third is not.
	limit := int64(len(frame) + 10)
	n, err := r.Poll(func(FrameHeader, []byte) bool { return true }, 10, limit)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 2 {
		t.Fatalf("delivered %d frames, want 2", n)
	}
	if r.Position() != int64(2*len(frame)) {
		t.Fatalf("position = %d, want %d", r.Position(), 2*len(frame))
	}
	if r.Position() < limit {
		t.Fatal("cursor did not pass the limit")
	}
}
