// File: internal/fsx/fsx_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !linux
// +build !linux

package fsx

import "os"

func fdatasync(f *os.File) error {
	return f.Sync()
}

func preallocate(f *os.File, length int64) error {
	return f.Truncate(length)
}
