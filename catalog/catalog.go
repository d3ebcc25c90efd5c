// File: catalog/catalog.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package catalog persists recording descriptors in a single binary
// file of fixed slots indexed by recording id. It is the archive's
// source of truth for recording metadata and the durable high-water
// mark of each in-progress recording.
package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-archive/api"
	"github.com/momentics/hioload-archive/internal/fsx"
)

const (
	// FileName is the catalog file inside the archive directory.
	FileName = "archive.cat"

	headerLength  = 32
	magic         = uint64(0x74616372616f6968) // "hioarcat" little endian
	formatVersion = int32(1)
)

// ErrUnknownRecording reports a recording id with no descriptor. It is
// distinct from an exhausted listing, which is a normal termination.
var ErrUnknownRecording = errors.New("catalog: unknown recording")

type entry struct {
	descriptor       api.RecordingDescriptor
	recordedPosition atomic.Int64
	stopped          atomic.Bool
}

// Catalog is safe for concurrent use. Descriptor reads return copies,
// so a caller never observes a torn stop update; recorded positions are
// published through per-entry atomics so pollers stay off the lock.
type Catalog struct {
	mu        sync.RWMutex
	dir       string
	file      *os.File
	syncLevel int
	clock     func() int64
	entries   []*entry
	slotBuf   [SlotLength]byte
	closed    bool
}

// Open loads or creates the catalog in dir. Descriptors left without
// stop fields by a crash are finalized at the recovered extent of
// their segment files.
func Open(dir string, syncLevel int, clock func() int64) (*Catalog, error) {
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	c := &Catalog{dir: dir, file: f, syncLevel: syncLevel, clock: clock}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("catalog: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := c.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		return c, nil
	}
	if err := c.load(); err != nil {
		f.Close()
		return nil, err
	}
	if err := c.recover(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) writeHeader() error {
	var hdr [headerLength]byte
	binary.LittleEndian.PutUint64(hdr[0:], magic)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(formatVersion))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(SlotLength))
	if _, err := c.file.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("catalog: write header: %w", err)
	}
	return fsx.Sync(c.file, c.syncLevel)
}

func (c *Catalog) load() error {
	var hdr [headerLength]byte
	if _, err := c.file.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("catalog: read header: %w", err)
	}
	if binary.LittleEndian.Uint64(hdr[0:]) != magic {
		return errors.New("catalog: bad file magic")
	}
	if v := int32(binary.LittleEndian.Uint32(hdr[8:])); v != formatVersion {
		return fmt.Errorf("catalog: unsupported format version %d", v)
	}
	if sl := int32(binary.LittleEndian.Uint32(hdr[12:])); sl != SlotLength {
		return fmt.Errorf("catalog: unsupported slot length %d", sl)
	}

	for i := 0; ; i++ {
		offset := int64(headerLength) + int64(i)*SlotLength
		_, err := c.file.ReadAt(c.slotBuf[:], offset)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("catalog: read slot %d: %w", i, err)
		}
		if binary.LittleEndian.Uint32(c.slotBuf[0:]) == 0 {
			return nil
		}
		d, err := decodeDescriptor(c.slotBuf[:])
		if err != nil {
			return err
		}
		if d.RecordingID != int64(i) {
			return fmt.Errorf("catalog: slot %d holds recording %d", i, d.RecordingID)
		}
		e := &entry{descriptor: d}
		e.recordedPosition.Store(d.StopPosition)
		e.stopped.Store(d.IsStopped())
		c.entries = append(c.entries, e)
	}
}

// recover finalizes descriptors interrupted before their stop update.
func (c *Catalog) recover() error {
	for _, e := range c.entries {
		if e.stopped.Load() {
			continue
		}
		extent := recoverExtent(c.dir, &e.descriptor)
		if err := c.stopEntry(e, extent); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) persistSlot(e *entry) error {
	if err := encodeDescriptor(c.slotBuf[:], &e.descriptor); err != nil {
		return err
	}
	offset := int64(headerLength) + e.descriptor.RecordingID*SlotLength
	if _, err := c.file.WriteAt(c.slotBuf[:], offset); err != nil {
		return fmt.Errorf("catalog: write slot %d: %w", e.descriptor.RecordingID, err)
	}
	return fsx.Sync(c.file, c.syncLevel)
}

// Create assigns the next recording id, stamps the start timestamp,
// nulls the stop fields and persists the descriptor. The assigned id
// is stored into d and returned.
func (c *Catalog) Create(d *api.RecordingDescriptor) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, api.ErrArchiveClosed
	}

	d.RecordingID = int64(len(c.entries))
	d.StartTimestamp = c.clock()
	d.StopTimestamp = api.NullTimestamp
	d.StopPosition = api.NullPosition

	e := &entry{descriptor: *d}
	e.recordedPosition.Store(d.StartPosition)
	if err := c.persistSlot(e); err != nil {
		return 0, err
	}
	c.entries = append(c.entries, e)
	return d.RecordingID, nil
}

func (c *Catalog) entryFor(id int64) (*entry, error) {
	if id < 0 || id >= int64(len(c.entries)) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRecording, id)
	}
	return c.entries[id], nil
}

// Get returns a copy of the descriptor for id.
func (c *Catalog) Get(id int64) (api.RecordingDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.entryFor(id)
	if err != nil {
		return api.RecordingDescriptor{}, err
	}
	return e.descriptor, nil
}

// List returns up to count descriptor copies starting at fromID. A
// fromID with no descriptor returns ErrUnknownRecording; running out
// of descriptors below count is a normal short result.
func (c *Catalog) List(fromID int64, count int) ([]api.RecordingDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if fromID < 0 || fromID >= int64(len(c.entries)) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRecording, fromID)
	}
	out := make([]api.RecordingDescriptor, 0, count)
	for id := fromID; id < int64(len(c.entries)) && len(out) < count; id++ {
		out = append(out, c.entries[id].descriptor)
	}
	return out, nil
}

// Count returns the number of descriptors, which is also the next
// recording id.
func (c *Catalog) Count() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.entries))
}

// UpdateRecordedPosition publishes the durable high-water mark of an
// active recording for concurrent replay bounding.
func (c *Catalog) UpdateRecordedPosition(id, position int64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.entryFor(id)
	if err != nil {
		return err
	}
	e.recordedPosition.Store(position)
	return nil
}

// RecordingExtent returns the recorded position of id and whether the
// recording has stopped. The position is monotonically non-decreasing
// and only eventually consistent with the recorder.
func (c *Catalog) RecordingExtent(id int64) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.entryFor(id)
	if err != nil {
		return 0, false, err
	}
	stopped := e.stopped.Load()
	return e.recordedPosition.Load(), stopped, nil
}

func (c *Catalog) stopEntry(e *entry, stopPosition int64) error {
	e.descriptor.StopPosition = stopPosition
	e.descriptor.StopTimestamp = c.clock()
	if err := c.persistSlot(e); err != nil {
		return err
	}
	e.recordedPosition.Store(stopPosition)
	e.stopped.Store(true)
	return nil
}

// RecordingStopped finalizes the descriptor of id with its stop
// position and timestamp.
func (c *Catalog) RecordingStopped(id, stopPosition int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return api.ErrArchiveClosed
	}
	e, err := c.entryFor(id)
	if err != nil {
		return err
	}
	return c.stopEntry(e, stopPosition)
}

// Close syncs and releases the catalog file. Idempotent.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := fsx.Sync(c.file, c.syncLevel); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}
