//go:build !linux
// +build !linux

// File: internal/affinity/affinity_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package affinity

import "errors"

// pinThread reports that CPU pinning is unsupported on this platform.
func pinThread(int) error {
	return errors.New("affinity: not supported on this platform")
}
