// File: benchmarks/performance_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Performance benchmarks for the archive hot paths: frame codec,
// session handoff ring, segment storage and the stream driver.

package benchmarks

import (
	"os"
	"testing"

	"github.com/momentics/hioload-archive/driver"
	"github.com/momentics/hioload-archive/internal/concurrency"
	"github.com/momentics/hioload-archive/segment"
)

// BenchmarkFrameHeaderEncode measures frame header encoding.
func BenchmarkFrameHeaderEncode(b *testing.B) {
	buf := make([]byte, segment.HeaderLength)
	hdr := segment.FrameHeader{
		FrameLength: 1024,
		Version:     segment.CurrentVersion,
		Flags:       segment.UnfragmentedFlags,
		Type:        segment.FrameTypeData,
		TermOffset:  65536,
		SessionID:   7,
		StreamID:    10,
		TermID:      3,
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		segment.EncodeFrameHeader(buf, &hdr)
	}
}

// BenchmarkFrameHeaderDecode measures frame header decoding.
func BenchmarkFrameHeaderDecode(b *testing.B) {
	buf := make([]byte, segment.HeaderLength)
	hdr := segment.FrameHeader{FrameLength: 1024, Type: segment.FrameTypeData}
	segment.EncodeFrameHeader(buf, &hdr)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := segment.DecodeFrameHeader(buf); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRingBufferTransfer measures one enqueue and dequeue pass of
// the session handoff ring.
func BenchmarkRingBufferTransfer(b *testing.B) {
	ring := concurrency.NewRingBuffer[int](1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ring.Enqueue(i)
		ring.Dequeue()
	}
}

// BenchmarkSegmentWriterAppend measures appending aligned frames to
// segment storage. The writer is rebuilt in windows so disk usage
// stays bounded regardless of b.N.
func BenchmarkSegmentWriterAppend(b *testing.B) {
	const frameLength = 256
	const window = 1 << 16

	frame := make([]byte, frameLength)
	hdr := segment.FrameHeader{FrameLength: frameLength, Type: segment.FrameTypeData}
	segment.EncodeFrameHeader(frame, &hdr)

	var w *segment.Writer
	var dir string
	open := func() {
		var err error
		dir, err = os.MkdirTemp("", "bench-writer")
		if err != nil {
			b.Fatal(err)
		}
		if w, err = segment.NewWriter(dir, 0, 0, 1024*1024, 4*1024*1024, 0); err != nil {
			b.Fatal(err)
		}
	}
	discard := func() {
		w.Close()
		os.RemoveAll(dir)
	}
	open()
	defer discard()

	b.SetBytes(frameLength)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i > 0 && i%window == 0 {
			b.StopTimer()
			discard()
			open()
			b.StartTimer()
		}
		if err := w.Append(frame); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPublicationOfferPoll measures the driver round trip of one
// message from offer to raw frame consumption. The stream is rebuilt
// in windows so the in-memory log stays bounded regardless of b.N.
func BenchmarkPublicationOfferPoll(b *testing.B) {
	const window = 1 << 16

	var drv *driver.Driver
	var pub *driver.Publication
	var img *driver.Image
	open := func() {
		drv = driver.New()
		sub, err := drv.AddSubscription("mem:bench", 1)
		if err != nil {
			b.Fatal(err)
		}
		if pub, err = drv.AddPublication("mem:bench?term-length=67108864", 1); err != nil {
			b.Fatal(err)
		}
		img = nil
		sub.PollNewImages(func(i *driver.Image) { img = i })
		if img == nil {
			b.Fatal("no image")
		}
	}
	open()
	defer func() { drv.Close() }()

	message := make([]byte, 224)
	consume := func([]byte) error { return nil }
	b.SetBytes(int64(len(message)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i > 0 && i%window == 0 {
			b.StopTimer()
			drv.Close()
			open()
			b.StartTimer()
		}
		if _, err := pub.Offer(message); err != nil {
			b.Fatal(err)
		}
		if _, err := img.RawPoll(consume, 512); err != nil {
			b.Fatal(err)
		}
	}
}
