package sampler

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/aleister1102/procwatch/internal/common"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// GopsutilSource reads the process table through gopsutil.
type GopsutilSource struct{}

// NewGopsutilSource creates a MetricSource backed by the live OS process table.
func NewGopsutilSource() *GopsutilSource {
	return &GopsutilSource{}
}

// Enumerate returns a handle for every currently visible process.
func (gs *GopsutilSource) Enumerate(ctx context.Context) ([]ProcessHandle, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, common.WrapError(err, "failed to enumerate processes")
	}
	handles := make([]ProcessHandle, 0, len(procs))
	for _, p := range procs {
		handles = append(handles, &gopsutilHandle{proc: p})
	}
	return handles, nil
}

// TotalMemory returns total system RAM in bytes.
func (gs *GopsutilSource) TotalMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, common.WrapError(err, "failed to read system memory")
	}
	return vm.Total, nil
}

type gopsutilHandle struct {
	proc *process.Process
}

func (h *gopsutilHandle) PID() int32 {
	return h.proc.Pid
}

func (h *gopsutilHandle) Identity(ctx context.Context) (ProcessIdentity, error) {
	ident := ProcessIdentity{PID: h.proc.Pid}

	uids, err := h.proc.UidsWithContext(ctx)
	if err != nil {
		return ident, translateError(err)
	}
	if len(uids) >= 2 {
		ident.RealUID = uids[0]
		ident.EffectiveUID = uids[1]
	}

	// Name and cmdline can be empty for kernel threads; that is not an error.
	ident.Comm, _ = h.proc.NameWithContext(ctx)
	ident.Cmdline, _ = h.proc.CmdlineSliceWithContext(ctx)

	createMillis, err := h.proc.CreateTimeWithContext(ctx)
	if err != nil {
		return ident, translateError(err)
	}
	ident.StartTime = time.UnixMilli(createMillis)

	return ident, nil
}

func (h *gopsutilHandle) Core(ctx context.Context) (CoreStats, error) {
	times, err := h.proc.TimesWithContext(ctx)
	if err != nil {
		return CoreStats{}, translateError(err)
	}
	memInfo, err := h.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return CoreStats{}, translateError(err)
	}
	return CoreStats{
		CPUTime: times.User + times.System,
		RSS:     memInfo.RSS,
	}, nil
}

func (h *gopsutilHandle) IO(ctx context.Context) (IOStats, error) {
	counters, err := h.proc.IOCountersWithContext(ctx)
	if err != nil {
		return IOStats{}, translateError(err)
	}
	return IOStats{
		ReadCount:  counters.ReadCount,
		WriteCount: counters.WriteCount,
	}, nil
}

// ExtMemory reads unique-set-size and shared memory. The USS reading walks
// the process memory maps, which is far more expensive than a stat read.
func (h *gopsutilHandle) ExtMemory(ctx context.Context, uss, shared bool) (ExtMemStats, error) {
	var stats ExtMemStats

	if shared {
		memEx, err := h.proc.MemoryInfoExWithContext(ctx)
		if err != nil {
			return stats, translateError(err)
		}
		stats.Shared = memEx.Shared
	}

	if uss {
		grouped := true
		maps, err := h.proc.MemoryMapsWithContext(ctx, grouped)
		if err != nil {
			return stats, translateError(err)
		}
		if maps != nil && len(*maps) > 0 {
			m := (*maps)[0]
			stats.USS = (m.PrivateClean + m.PrivateDirty) * 1024
		}
	}

	return stats, nil
}

// translateError maps OS and gopsutil errors onto the sentinels the sampler
// keys its recovery behavior on.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrorProcessNotRunning), errors.Is(err, syscall.ESRCH), errors.Is(err, os.ErrNotExist):
		return common.WrapError(common.ErrNoSuchProcess, err.Error())
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EPERM), errors.Is(err, syscall.EACCES):
		return common.WrapError(common.ErrPermissionDenied, err.Error())
	default:
		return err
	}
}
