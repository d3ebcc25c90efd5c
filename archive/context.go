// File: archive/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/momentics/hioload-archive/driver"
	"github.com/momentics/hioload-archive/internal/concurrency"
	"github.com/momentics/hioload-archive/internal/fsx"
	"github.com/momentics/hioload-archive/internal/metrics"
	"github.com/momentics/hioload-archive/segment"
)

// ThreadingMode selects how the archive agents are scheduled.
type ThreadingMode int

const (
	// ThreadingModeShared runs conductor, recorder and replayer as one
	// composite duty cycle on a single goroutine.
	ThreadingModeShared ThreadingMode = iota

	// ThreadingModeDedicated runs each agent on its own goroutine.
	ThreadingModeDedicated
)

// String returns the symbolic mode name.
func (m ThreadingMode) String() string {
	if m == ThreadingModeDedicated {
		return "dedicated"
	}
	return "shared"
}

// Default configuration values.
const (
	DefaultSegmentFileLength      = 128 * 1024 * 1024
	DefaultRecordBlockLength      = 64 * 1024
	DefaultReplayFragmentLimit    = 16
	DefaultControlResponseRingCap = 1024
	DefaultSessionRingCap         = 256
	DefaultConnectTimeout         = 5 * time.Second
)

// Context carries the configuration an Archive is launched with. Zero
// values get defaults when the archive concludes the context; the
// fields must not change after Launch.
type Context struct {
	// ArchiveDir holds the catalog and all segment files.
	ArchiveDir string

	// Driver is the stream fabric recordings are consumed from and
	// replays are published into.
	Driver *driver.Driver

	// SegmentFileLength is the target segment file size. Each recording
	// rounds it up to a whole multiple of its term length.
	SegmentFileLength int32

	// FileSyncLevel is one of fsx.SyncNone, fsx.SyncData, fsx.SyncAll.
	FileSyncLevel int

	// ThreadingMode selects shared or dedicated agent scheduling.
	ThreadingMode ThreadingMode

	// IdleStrategy supplies a fresh idle strategy per agent runner.
	IdleStrategy func() concurrency.IdleStrategy

	// AgentCPUs optionally pins agent goroutines to logical CPUs: the
	// conductor, recorder and replayer in order for dedicated mode,
	// the composite agent from the first entry for shared mode. Empty
	// leaves scheduling to the runtime.
	AgentCPUs []int

	// ErrorHandler receives every session and duty cycle error.
	ErrorHandler func(error)

	// Logger receives archive lifecycle and control plane logging.
	Logger *slog.Logger

	// EpochClock returns wall clock milliseconds.
	EpochClock func() int64

	// Metrics is the collector set; a fresh private set by default.
	Metrics *metrics.Collectors

	// ControlResponseRingCapacity bounds each client response ring.
	ControlResponseRingCapacity int

	// SessionRingCapacity bounds the conductor to recorder and
	// replayer session handoff rings.
	SessionRingCapacity int

	// RecordBlockLength bounds the bytes a recording session appends
	// per duty cycle pass.
	RecordBlockLength int

	// ReplayFragmentLimit bounds the frames a replay session delivers
	// per duty cycle pass.
	ReplayFragmentLimit int

	// ConnectTimeout bounds how long a replay publication may wait for
	// its first consumer.
	ConnectTimeout time.Duration
}

// NewContext returns an empty context ready for field assignment.
func NewContext() *Context {
	return &Context{}
}

// conclude validates the context and fills the defaults in place.
func (ctx *Context) conclude() error {
	if ctx.ArchiveDir == "" {
		return errors.New("archive: ArchiveDir is required")
	}
	if ctx.Driver == nil {
		return errors.New("archive: Driver is required")
	}
	if err := os.MkdirAll(ctx.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("archive: create dir: %w", err)
	}

	if ctx.SegmentFileLength == 0 {
		ctx.SegmentFileLength = DefaultSegmentFileLength
	}
	if ctx.SegmentFileLength < driver.MinTermLength || ctx.SegmentFileLength%segment.FrameAlignment != 0 {
		return fmt.Errorf("archive: invalid SegmentFileLength %d", ctx.SegmentFileLength)
	}
	switch ctx.FileSyncLevel {
	case fsx.SyncNone, fsx.SyncData, fsx.SyncAll:
	default:
		return fmt.Errorf("archive: invalid FileSyncLevel %d", ctx.FileSyncLevel)
	}

	if ctx.Logger == nil {
		ctx.Logger = slog.Default()
	}
	if ctx.EpochClock == nil {
		ctx.EpochClock = func() int64 { return time.Now().UnixMilli() }
	}
	if ctx.Metrics == nil {
		ctx.Metrics = metrics.New()
	}
	if ctx.ErrorHandler == nil {
		logger, mets := ctx.Logger, ctx.Metrics
		ctx.ErrorHandler = func(err error) {
			mets.SessionErrors.Inc()
			logger.Error("archive error", "error", err)
		}
	}
	if ctx.IdleStrategy == nil {
		ctx.IdleStrategy = func() concurrency.IdleStrategy {
			return concurrency.NewBackoffIdleStrategy()
		}
	}

	if ctx.ControlResponseRingCapacity <= 0 {
		ctx.ControlResponseRingCapacity = DefaultControlResponseRingCap
	}
	ctx.ControlResponseRingCapacity = int(concurrency.NextPowerOfTwo(uint64(ctx.ControlResponseRingCapacity)))
	if ctx.SessionRingCapacity <= 0 {
		ctx.SessionRingCapacity = DefaultSessionRingCap
	}
	ctx.SessionRingCapacity = int(concurrency.NextPowerOfTwo(uint64(ctx.SessionRingCapacity)))

	if ctx.RecordBlockLength <= 0 {
		ctx.RecordBlockLength = DefaultRecordBlockLength
	}
	if ctx.ReplayFragmentLimit <= 0 {
		ctx.ReplayFragmentLimit = DefaultReplayFragmentLimit
	}
	if ctx.ConnectTimeout <= 0 {
		ctx.ConnectTimeout = DefaultConnectTimeout
	}
	return nil
}

// segmentLengthFor rounds the configured segment file length up to a
// whole multiple of termLength, so stored padding frames are exactly
// the stream's own padding and positions map one to one.
func segmentLengthFor(configured, termLength int32) int32 {
	if configured <= termLength {
		return termLength
	}
	if rem := configured % termLength; rem != 0 {
		return configured + termLength - rem
	}
	return configured
}
