// File: internal/fsx/fsx_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux
// +build linux

package fsx

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func fdatasync(f *os.File) error {
	if err := unix.Fdatasync(int(f.Fd())); err != nil {
		return &os.PathError{Op: "fdatasync", Path: f.Name(), Err: err}
	}
	return nil
}

func preallocate(f *os.File, length int64) error {
	err := unix.Fallocate(int(f.Fd()), 0, 0, length)
	if err == nil {
		return nil
	}
	// Filesystems without fallocate support fall back to truncate.
	if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
		return f.Truncate(length)
	}
	return &os.PathError{Op: "fallocate", Path: f.Name(), Err: err}
}
