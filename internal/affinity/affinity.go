// File: internal/affinity/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package affinity pins duty cycle goroutines to logical CPUs so the
// hot agents keep their cache locality. Platform-specific parts live
// in build-tagged files; unsupported platforms report an error.
package affinity

import (
	"fmt"
	"runtime"
)

// Pin locks the calling goroutine to its OS thread and binds that
// thread to the given logical CPU. The goroutine stays locked, so Pin
// is for goroutines that run a duty cycle until process exit.
func Pin(cpuID int) error {
	if cpuID < 0 {
		return fmt.Errorf("affinity: invalid cpu id %d", cpuID)
	}
	runtime.LockOSThread()
	if err := pinThread(cpuID); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}
