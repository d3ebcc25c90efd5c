// File: driver/driver_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import (
	"bytes"
	"errors"
	"testing"

	"github.com/momentics/hioload-archive/segment"
)

func TestDriver_PublicationDefaults(t *testing.T) {
	d := New()
	p, err := d.AddPublication("mem:events", 10)
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}
	if p.TermBufferLength() != DefaultTermLength || p.MTULength() != DefaultMTULength {
		t.Fatalf("defaults = term %d mtu %d", p.TermBufferLength(), p.MTULength())
	}
	if p.Position() != 0 || p.InitialTermID() != 0 {
		t.Fatalf("start = position %d initTermID %d", p.Position(), p.InitialTermID())
	}
	if p.MaxPayloadLength() != DefaultMTULength-segment.HeaderLength {
		t.Fatalf("max payload = %d", p.MaxPayloadLength())
	}
}

func TestDriver_PublicationPinnedPosition(t *testing.T) {
	d := New()
	p, err := d.AddPublication("mem:rec?term-length=4096|init-term-id=10|term-id=12|term-offset=128|session-id=77", 1)
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}
	want := int64(12-10)*4096 + 128
	if p.Position() != want {
		t.Fatalf("position = %d, want %d", p.Position(), want)
	}
	if p.SessionID() != 77 {
		t.Fatalf("session id = %d, want 77", p.SessionID())
	}
}

func TestDriver_InvalidPublicationConfigs(t *testing.T) {
	d := New()
	for _, channel := range []string{
		"tcp:events",
		"mem:rec?term-length=3000",
		"mem:rec?term-length=4096|mtu=48",
		"mem:rec?term-length=4096|mtu=8192",
		"mem:rec?init-term-id=5|term-id=4",
		"mem:rec?term-length=4096|term-offset=4096",
		"mem:rec?term-offset=33",
	} {
		if _, err := d.AddPublication(channel, 1); !errors.Is(err, ErrInvalidChannel) {
			t.Errorf("AddPublication(%q) = %v, want ErrInvalidChannel", channel, err)
		}
	}
}

func TestDriver_SecondPublicationRejected(t *testing.T) {
	d := New()
	if _, err := d.AddPublication("mem:events", 10); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := d.AddPublication("mem:events", 10); !errors.Is(err, ErrPublicationExists) {
		t.Fatalf("second = %v, want ErrPublicationExists", err)
	}
	if _, err := d.AddPublication("mem:events", 11); err != nil {
		t.Fatalf("different stream id rejected: %v", err)
	}
}

func TestDriver_OfferAndPoll(t *testing.T) {
	d := New()
	sub, err := d.AddSubscription("mem:events", 10)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	p, err := d.AddPublication("mem:events?term-length=4096", 10)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	images := sub.Images()
	if len(images) != 1 {
		t.Fatalf("images = %d, want 1", len(images))
	}
	img := images[0]
	if img.JoinPosition() != 0 || img.SessionID() != p.SessionID() {
		t.Fatalf("image join %d session %d", img.JoinPosition(), img.SessionID())
	}

	messages := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma-longer")}
	var expectPosition int64
	for _, m := range messages {
		pos, err := p.Offer(m)
		if err != nil {
			t.Fatalf("offer: %v", err)
		}
		expectPosition += int64(segment.AlignFrameLength(segment.ComputeFrameLength(len(m))))
		if pos != expectPosition {
			t.Fatalf("offer position = %d, want %d", pos, expectPosition)
		}
	}

	if img.PublishedPosition() != expectPosition {
		t.Fatalf("published position = %d, want %d", img.PublishedPosition(), expectPosition)
	}

	var got [][]byte
	n := img.Poll(func(hdr segment.FrameHeader, payload []byte) {
		if hdr.Type != segment.FrameTypeData || hdr.StreamID != 10 {
			t.Fatalf("header = %+v", hdr)
		}
		got = append(got, append([]byte{}, payload...))
	}, 10)
	if n != len(messages) {
		t.Fatalf("polled %d fragments, want %d", n, len(messages))
	}
	for i := range messages {
		if !bytes.Equal(got[i], messages[i]) {
			t.Fatalf("fragment %d = %q, want %q", i, got[i], messages[i])
		}
	}
	if img.Position() != p.Position() {
		t.Fatalf("image position %d, publication %d", img.Position(), p.Position())
	}
}

func TestDriver_TermRotationInsertsPadding(t *testing.T) {
	d := New()
	sub, _ := d.AddSubscription("mem:roll", 1)
	p, err := d.AddPublication("mem:roll?term-length=1024|mtu=512", 1)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	img := sub.Images()[0]

	// 224 aligned bytes per message: four fill 896 of the 1024 byte
	// term, the fifth pads 128 and rolls.
	payload := make([]byte, 192)
	for i := 0; i < 5; i++ {
		if _, err := p.Offer(payload); err != nil {
			t.Fatalf("offer %d: %v", i, err)
		}
	}
	if want := int64(1024 + 224); p.Position() != want {
		t.Fatalf("position = %d, want %d", p.Position(), want)
	}

	var kinds []uint16
	var termIDs []int32
	consumed, err := img.RawPoll(func(frame []byte) error {
		hdr, err := segment.DecodeFrameHeader(frame)
		if err != nil {
			return err
		}
		kinds = append(kinds, hdr.Type)
		termIDs = append(termIDs, hdr.TermID)
		return nil
	}, 1<<20)
	if err != nil {
		t.Fatalf("raw poll: %v", err)
	}
	if int64(consumed) != p.Position() {
		t.Fatalf("raw consumed %d, want %d", consumed, p.Position())
	}
	wantKinds := []uint16{
		segment.FrameTypeData, segment.FrameTypeData, segment.FrameTypeData, segment.FrameTypeData,
		segment.FrameTypePad, segment.FrameTypeData,
	}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("frames = %v, want %v", kinds, wantKinds)
	}
	for i := range wantKinds {
		if kinds[i] != wantKinds[i] {
			t.Fatalf("frame %d type %#x, want %#x", i, kinds[i], wantKinds[i])
		}
	}
	if termIDs[4] != 0 || termIDs[5] != 1 {
		t.Fatalf("padding term %d, rolled term %d", termIDs[4], termIDs[5])
	}

	// A late image joins at the rolled position and sees nothing old.
	sub2, _ := d.AddSubscription("mem:roll", 1)
	fresh := sub2.Images()[0]
	if fresh.JoinPosition() != p.Position() {
		t.Fatalf("late image joined at %d, want %d", fresh.JoinPosition(), p.Position())
	}
	if n := fresh.Poll(func(segment.FrameHeader, []byte) {}, 10); n != 0 {
		t.Fatalf("late image polled %d fragments, want 0", n)
	}
}

func TestDriver_SubscriptionSeesOnlyNewFramesAfterJoin(t *testing.T) {
	d := New()
	p, err := d.AddPublication("mem:late?term-length=4096", 3)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := p.Offer([]byte("early")); err != nil {
			t.Fatalf("offer: %v", err)
		}
	}

	sub, err := d.AddSubscription("mem:late", 3)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	img := sub.Images()[0]
	if img.JoinPosition() != p.Position() {
		t.Fatalf("join position = %d, want %d", img.JoinPosition(), p.Position())
	}

	if _, err := p.Offer([]byte("fresh")); err != nil {
		t.Fatalf("offer: %v", err)
	}
	var got []byte
	if n := img.Poll(func(_ segment.FrameHeader, payload []byte) {
		got = append([]byte{}, payload...)
	}, 10); n != 1 {
		t.Fatalf("polled %d fragments, want 1", n)
	}
	if string(got) != "fresh" {
		t.Fatalf("payload = %q, want \"fresh\"", got)
	}
}

func TestDriver_PollNewImagesTransfersOwnership(t *testing.T) {
	d := New()
	sub, _ := d.AddSubscription("mem:owned", 1)
	p, _ := d.AddPublication("mem:owned", 1)

	var taken *Image
	if n := sub.PollNewImages(func(img *Image) { taken = img }); n != 1 || taken == nil {
		t.Fatalf("poll new images = %d", n)
	}
	if n := sub.PollNewImages(func(*Image) {}); n != 0 {
		t.Fatalf("image delivered twice")
	}

	sub.Close()
	if taken.IsClosed() {
		t.Fatal("transferred image closed by subscription close")
	}
	if !p.IsConnected() {
		t.Fatal("publication lost its transferred image")
	}
	taken.Close()
	if p.IsConnected() {
		t.Fatal("publication still connected after image close")
	}
}

func TestDriver_SubscriptionCloseDisconnectsOwnedImages(t *testing.T) {
	d := New()
	sub, _ := d.AddSubscription("mem:c", 1)
	p, _ := d.AddPublication("mem:c", 1)
	if !p.IsConnected() || !sub.IsConnected() {
		t.Fatal("not connected after attach")
	}
	sub.Close()
	if p.IsConnected() {
		t.Fatal("publication connected after subscription close")
	}
}

func TestDriver_EndOfStream(t *testing.T) {
	d := New()
	sub, _ := d.AddSubscription("mem:eos", 1)
	p, _ := d.AddPublication("mem:eos", 1)
	img := sub.Images()[0]

	if _, err := p.Offer([]byte("last")); err != nil {
		t.Fatalf("offer: %v", err)
	}
	p.Close()
	if _, err := p.Offer([]byte("after")); !errors.Is(err, ErrPublicationClosed) {
		t.Fatalf("offer after close = %v, want ErrPublicationClosed", err)
	}

	if img.IsEndOfStream() {
		t.Fatal("end of stream before draining")
	}
	if n := img.Poll(func(segment.FrameHeader, []byte) {}, 10); n != 1 {
		t.Fatalf("drained %d fragments, want 1", n)
	}
	if !img.IsEndOfStream() {
		t.Fatal("end of stream not reported after drain")
	}
}

func TestDriver_MaxPayloadEnforced(t *testing.T) {
	d := New()
	p, _ := d.AddPublication("mem:big?term-length=4096|mtu=1024", 1)
	if _, err := p.Offer(make([]byte, 1024-segment.HeaderLength+1)); !errors.Is(err, ErrMaxPayloadExceeded) {
		t.Fatalf("oversized offer = %v, want ErrMaxPayloadExceeded", err)
	}
	if _, err := p.Offer(make([]byte, 1024-segment.HeaderLength)); err != nil {
		t.Fatalf("max payload offer rejected: %v", err)
	}
}

func TestPublication_OfferFrameReproducesTermRotation(t *testing.T) {
	d := New()
	srcSub, _ := d.AddSubscription("mem:src", 1)
	src, err := d.AddPublication("mem:src?term-length=1024|mtu=512|init-term-id=5", 1)
	if err != nil {
		t.Fatalf("source publication: %v", err)
	}
	srcImg := srcSub.Images()[0]

	payload := make([]byte, 192)
	for i := 0; i < 9; i++ {
		if _, err := src.Offer(payload); err != nil {
			t.Fatalf("offer: %v", err)
		}
	}

	// Collect the source frames the way a recorder stores them.
	type stored struct {
		hdr   segment.FrameHeader
		frame []byte
	}
	var frames []stored
	if _, err := srcImg.RawPoll(func(frame []byte) error {
		hdr, err := segment.DecodeFrameHeader(frame)
		if err != nil {
			return err
		}
		frames = append(frames, stored{hdr: hdr, frame: append([]byte{}, frame[:hdr.FrameLength]...)})
		return nil
	}, 1<<20); err != nil {
		t.Fatalf("raw poll: %v", err)
	}

	dstSub, _ := d.AddSubscription("mem:dst", 2)
	dst, err := d.AddPublicationAt("mem:dst", 2, src.InitialTermID(), src.TermBufferLength(), src.MTULength(), 0)
	if err != nil {
		t.Fatalf("destination publication: %v", err)
	}
	if dst.InitialTermID() != 5 {
		t.Fatalf("destination init term = %d, want 5", dst.InitialTermID())
	}

	// Re-offer only the data frames; padding gaps must be reproduced
	// by the cursor alignment inside OfferFrame.
	for _, f := range frames {
		if f.hdr.Type == segment.FrameTypePad {
			continue
		}
		if _, err := dst.OfferFrame(f.hdr, f.frame); err != nil {
			t.Fatalf("offer frame at term %d offset %d: %v", f.hdr.TermID, f.hdr.TermOffset, err)
		}
	}
	if dst.Position() != src.Position() {
		t.Fatalf("destination position %d, source %d", dst.Position(), src.Position())
	}

	// The destination image observes identical term coordinates for
	// every data frame.
	dstImg := dstSub.Images()[0]
	var srcCoords, dstCoords [][2]int32
	for _, f := range frames {
		if f.hdr.Type == segment.FrameTypeData {
			srcCoords = append(srcCoords, [2]int32{f.hdr.TermID, f.hdr.TermOffset})
		}
	}
	dstImg.Poll(func(hdr segment.FrameHeader, _ []byte) {
		dstCoords = append(dstCoords, [2]int32{hdr.TermID, hdr.TermOffset})
	}, 100)
	if len(dstCoords) != len(srcCoords) {
		t.Fatalf("replayed %d fragments, want %d", len(dstCoords), len(srcCoords))
	}
	for i := range srcCoords {
		if srcCoords[i] != dstCoords[i] {
			t.Fatalf("fragment %d at %v, want %v", i, dstCoords[i], srcCoords[i])
		}
	}
}

func TestPublication_OfferFrameRejectsRegression(t *testing.T) {
	d := New()
	p, _ := d.AddPublicationAt("mem:r", 1, 0, 4096, 1024, 0)

	hdr := segment.FrameHeader{
		FrameLength: 64,
		Version:     segment.CurrentVersion,
		Type:        segment.FrameTypeData,
		TermOffset:  128,
		TermID:      0,
	}
	frame := make([]byte, 64)
	if err := segment.EncodeFrameHeader(frame, &hdr); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := p.OfferFrame(hdr, frame); err != nil {
		t.Fatalf("offer frame ahead of cursor: %v", err)
	}

	behind := hdr
	behind.TermOffset = 0
	if _, err := p.OfferFrame(behind, frame); !errors.Is(err, ErrPositionRegression) {
		t.Fatalf("regressed frame = %v, want ErrPositionRegression", err)
	}
}
