// File: internal/fsx/fsx.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package fsx provides the filesystem primitives shared by the segment
// store and the catalog: durable sync with configurable strictness and
// segment file preallocation.
package fsx

import "os"

// Sync levels for recorded data.
const (
	// SyncNone leaves flushing to the operating system page cache.
	SyncNone = 0

	// SyncData forces file data to storage after each write batch.
	SyncData = 1

	// SyncAll forces file data and metadata to storage.
	SyncAll = 2
)

// Sync applies the given sync level to f.
func Sync(f *os.File, level int) error {
	switch level {
	case SyncNone:
		return nil
	case SyncData:
		return fdatasync(f)
	default:
		return f.Sync()
	}
}

// Preallocate reserves length bytes for f so appends cannot fail on a
// full volume mid-segment.
func Preallocate(f *os.File, length int64) error {
	return preallocate(f, length)
}
