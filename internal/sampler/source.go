package sampler

import (
	"context"
	"time"
)

// CollectOptions gates the optional, more expensive per-process reads.
// Disabled collectors must not touch the OS at all.
type CollectOptions struct {
	IOCounters   bool
	UniqueMemory bool
	SharedMemory bool
}

// ProcessIdentity holds the fields of a process that never change during its
// lifetime. Read once when a pid is first seen.
type ProcessIdentity struct {
	PID          int32
	RealUID      int32
	EffectiveUID int32
	Comm         string
	Cmdline      []string
	StartTime    time.Time
}

// CoreStats is the mandatory per-tick reading: cumulative CPU seconds
// (user+system) and resident memory.
type CoreStats struct {
	CPUTime float64
	RSS     uint64
}

// IOStats holds cumulative read/write operation counts.
type IOStats struct {
	ReadCount  uint64
	WriteCount uint64
}

// ExtMemStats holds the optional memory readings.
type ExtMemStats struct {
	USS    uint64
	Shared uint64
}

// ProcessHandle is one process in a MetricSource enumeration. All reads must
// distinguish permission-denied and no-such-process from a successful zero
// reading (common.ErrPermissionDenied / common.ErrNoSuchProcess).
type ProcessHandle interface {
	PID() int32
	Identity(ctx context.Context) (ProcessIdentity, error)
	Core(ctx context.Context) (CoreStats, error)
	IO(ctx context.Context) (IOStats, error)
	ExtMemory(ctx context.Context, uss, shared bool) (ExtMemStats, error)
}

// MetricSource abstracts the OS process table so the sampler can be driven by
// a fake in tests.
type MetricSource interface {
	// Enumerate returns a handle for every currently visible process.
	Enumerate(ctx context.Context) ([]ProcessHandle, error)
	// TotalMemory returns total system RAM in bytes.
	TotalMemory(ctx context.Context) (uint64, error)
}
