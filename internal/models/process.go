package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ProcessSnapshot holds the last known raw counters for one live process.
// Cumulative counters (CPUTime, ReadCount, WriteCount) are monotonic while
// the process is alive; a decrease means the pid has been reused and the
// entry must be rebuilt as a new process.
type ProcessSnapshot struct {
	PID          int32     `json:"pid"`
	RealUID      int32     `json:"real_uid"`
	EffectiveUID int32     `json:"effective_uid"`
	Username     string    `json:"username,omitempty"`
	// EffectiveUsername is only set when the effective uid differs from the real uid.
	EffectiveUsername string    `json:"effective_username,omitempty"`
	Comm              string    `json:"comm"`
	Cmdline           []string  `json:"cmdline,omitempty"`
	StartTime         time.Time `json:"start_time"`

	// CPUTime is cumulative user+system CPU seconds.
	CPUTime float64 `json:"cpu_time"`
	RSS     uint64  `json:"rss"`
	USS     uint64  `json:"uss,omitempty"`
	Shared  uint64  `json:"shared,omitempty"`

	ReadCount  uint64 `json:"read_count,omitempty"`
	WriteCount uint64 `json:"write_count,omitempty"`

	LastSample time.Time `json:"last_sample"`
	Alive      bool      `json:"alive"`
	EndTime    time.Time `json:"end_time,omitempty"`

	// IOInaccessible / MemExtInaccessible latch a failed optional read so the
	// syscall is not retried every tick for the lifetime of the process.
	IOInaccessible     bool `json:"-"`
	MemExtInaccessible bool `json:"-"`
}

// ProcessMetrics holds the per-tick rates derived from two consecutive
// snapshots of the same process. Recomputed every tick, never stored.
type ProcessMetrics struct {
	// CPUPercent is ceil(100 * delta-CPU-seconds / delta-wall-seconds),
	// clamped to >= 0, and defined as 0 when no wall time has elapsed.
	CPUPercent float64 `json:"cpu_percent"`
	// RSSDelta is signed: resident size can shrink.
	RSSDelta   int64   `json:"rss_delta"`
	RSSPercent float64 `json:"rss_percent"`
	ReadDelta  uint64  `json:"read_delta,omitempty"`
	WriteDelta uint64  `json:"write_delta,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// ProcessUpdate pairs a snapshot with the metrics derived for the tick that
// produced it. IsNew marks processes first seen after the sampler was seeded.
type ProcessUpdate struct {
	Snapshot ProcessSnapshot
	Metrics  ProcessMetrics
	IsNew    bool
}

// TickResult is the immutable output of one sampling tick, published to
// subscribers by value. Died lists pids that vanished since the last tick.
type TickResult struct {
	Updates   []ProcessUpdate
	Died      []int32
	SampledAt time.Time
}

// DisplayNameLimit bounds the short process name embedded in notification
// summaries and compact snapshot text.
const DisplayNameLimit = 20

// DisplayName returns the command name, falling back to the joined argument
// vector when the command is empty, truncated to DisplayNameLimit runes with
// a ".." marker.
func (ps *ProcessSnapshot) DisplayName() string {
	name := ps.Comm
	if name == "" {
		name = strings.Join(ps.Cmdline, " ")
	}
	runes := []rune(name)
	if len(runes) > DisplayNameLimit {
		return string(runes[:DisplayNameLimit-2]) + ".."
	}
	return name
}

// Text renders a multi-line human-readable description of the process, used
// as notification body detail and by any UI detail view. Compact mode
// truncates the command line.
func (ps *ProcessSnapshot) Text(m ProcessMetrics, compact bool) string {
	cmdline := strings.Join(ps.Cmdline, " ")
	if compact && len(cmdline) > 30 {
		cmdline = cmdline[:30] + ".."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "PID: %d\ncomm: %s\ncmdline: %s\n", ps.PID, ps.Comm, cmdline)
	fmt.Fprintf(&b, "CPU: %2.0f%%\n", m.CPUPercent)
	fmt.Fprintf(&b, "RSS/MEM: %5.2f%% rss: %s\n", m.RSSPercent, humanize.Bytes(ps.RSS))
	if ps.ReadCount != 0 || ps.WriteCount != 0 {
		fmt.Fprintf(&b, "Reads: %d Writes: %d\n", ps.ReadCount, ps.WriteCount)
	}
	fmt.Fprintf(&b, "Started: %s\n", ps.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Real_UID: %d User=%s", ps.RealUID, ps.Username)
	if ps.EffectiveUID != ps.RealUID {
		fmt.Fprintf(&b, "\nEffective_UID: %d", ps.EffectiveUID)
		if ps.EffectiveUsername != "" {
			fmt.Fprintf(&b, " Effective_User=%s", ps.EffectiveUsername)
		}
	}
	return b.String()
}
