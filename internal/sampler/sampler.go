package sampler

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/aleister1102/procwatch/internal/common"
	"github.com/aleister1102/procwatch/internal/config"
	"github.com/aleister1102/procwatch/internal/models"

	"github.com/rs/zerolog"
)

// ProcessSampler owns the previous-snapshot map and converts raw OS counters
// into per-process rate metrics. It is driven from a single goroutine; the
// TickResult it returns contains only copies, never references into the map.
type ProcessSampler struct {
	logger      zerolog.Logger
	source      MetricSource
	prev        map[int32]*models.ProcessSnapshot
	users       *userCache
	totalMemory uint64
	initialised bool
	clock       func() time.Time
}

// NewProcessSampler creates a sampler over the given metric source.
func NewProcessSampler(source MetricSource, logger zerolog.Logger) *ProcessSampler {
	return &ProcessSampler{
		logger: logger.With().Str("component", "ProcessSampler").Logger(),
		source: source,
		prev:   make(map[int32]*models.ProcessSnapshot),
		users:  newUserCache(),
		clock:  time.Now,
	}
}

// Sample performs one snapshot/diff pass over the process table.
// Per-process read failures never abort the tick: the offending pid is
// skipped, and failed optional reads are latched off for that process so the
// failing syscall is not repeated every tick.
func (s *ProcessSampler) Sample(ctx context.Context, cfg config.MonitorConfig) (*models.TickResult, error) {
	handles, err := s.source.Enumerate(ctx)
	if err != nil {
		return nil, common.WrapError(err, "process enumeration failed")
	}

	if s.totalMemory == 0 {
		if total, err := s.source.TotalMemory(ctx); err == nil {
			s.totalMemory = total
		} else {
			s.logger.Warn().Err(err).Msg("Cannot determine total system memory, RSS percentages will read as zero")
		}
	}

	now := s.clock()
	opts := CollectOptions{
		IOCounters:   cfg.IOCountersEnabled,
		UniqueMemory: cfg.UniqueMemoryEnabled,
		SharedMemory: cfg.SharedMemoryEnabled,
	}

	result := &models.TickResult{SampledAt: now}
	seen := make(map[int32]struct{}, len(handles))

	for _, handle := range handles {
		pid := handle.PID()

		core, err := handle.Core(ctx)
		if err != nil {
			// Vanished mid-read: absence from the next enumeration retires
			// it. Denied: keep the stale record rather than dropping it.
			if prev, ok := s.prev[pid]; ok && errors.Is(err, common.ErrPermissionDenied) {
				seen[pid] = struct{}{}
				prev.LastSample = now
			}
			s.logger.Debug().Err(err).Int32("pid", pid).Msg("Skipping process for this tick")
			continue
		}

		prev, known := s.prev[pid]
		if known && core.CPUTime < prev.CPUTime {
			// A cumulative counter went backwards: the pid has been reused.
			// Retire the old entity and start a fresh one.
			prev.Alive = false
			prev.EndTime = now
			result.Died = append(result.Died, pid)
			delete(s.prev, pid)
			known = false
		}

		if !known {
			snapshot, err := s.newSnapshot(ctx, handle, core, opts, now)
			if err != nil {
				s.logger.Debug().Err(err).Int32("pid", pid).Msg("Cannot read new process, skipping")
				continue
			}
			s.prev[pid] = snapshot
			seen[pid] = struct{}{}
			result.Updates = append(result.Updates, models.ProcessUpdate{
				Snapshot: *snapshot,
				Metrics:  models.ProcessMetrics{RSSPercent: s.rssPercent(snapshot.RSS)},
				IsNew:    s.initialised,
			})
			continue
		}

		metrics := s.updateSnapshot(ctx, handle, prev, core, opts, now)
		seen[pid] = struct{}{}
		result.Updates = append(result.Updates, models.ProcessUpdate{
			Snapshot: *prev,
			Metrics:  metrics,
		})
	}

	// Pids absent from this enumeration flip to not-alive and are reported
	// once, then the record is retained one extra tick before purging so a
	// final close notification can still read it.
	for pid, snapshot := range s.prev {
		if _, ok := seen[pid]; ok {
			continue
		}
		if !snapshot.Alive {
			delete(s.prev, pid)
			continue
		}
		snapshot.Alive = false
		snapshot.EndTime = now
		result.Died = append(result.Died, pid)
	}
	sort.Slice(result.Died, func(i, j int) bool { return result.Died[i] < result.Died[j] })

	s.initialised = true
	return result, nil
}

// Snapshot returns a copy of the last stored record for a pid, if any.
func (s *ProcessSampler) Snapshot(pid int32) (models.ProcessSnapshot, bool) {
	snapshot, ok := s.prev[pid]
	if !ok {
		return models.ProcessSnapshot{}, false
	}
	return *snapshot, true
}

func (s *ProcessSampler) newSnapshot(ctx context.Context, handle ProcessHandle, core CoreStats, opts CollectOptions, now time.Time) (*models.ProcessSnapshot, error) {
	ident, err := handle.Identity(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &models.ProcessSnapshot{
		PID:          ident.PID,
		RealUID:      ident.RealUID,
		EffectiveUID: ident.EffectiveUID,
		Comm:         ident.Comm,
		Cmdline:      ident.Cmdline,
		StartTime:    ident.StartTime,
		CPUTime:      core.CPUTime,
		RSS:          core.RSS,
		LastSample:   now,
		Alive:        true,
	}
	snapshot.Username, snapshot.EffectiveUsername = s.users.resolve(ident.RealUID, ident.EffectiveUID)

	s.collectOptional(ctx, handle, snapshot, opts)
	return snapshot, nil
}

func (s *ProcessSampler) updateSnapshot(ctx context.Context, handle ProcessHandle, snapshot *models.ProcessSnapshot, core CoreStats, opts CollectOptions, now time.Time) models.ProcessMetrics {
	elapsed := now.Sub(snapshot.LastSample)
	cpuDiff := core.CPUTime - snapshot.CPUTime
	rssDelta := int64(core.RSS) - int64(snapshot.RSS)

	metrics := models.ProcessMetrics{
		RSSDelta:   rssDelta,
		RSSPercent: s.rssPercent(core.RSS),
		Elapsed:    elapsed,
	}
	if elapsed > 0 && cpuDiff > 0 {
		metrics.CPUPercent = math.Ceil(100 * cpuDiff / elapsed.Seconds())
	}

	snapshot.CPUTime = core.CPUTime
	snapshot.RSS = core.RSS
	snapshot.LastSample = now

	if opts.IOCounters && !snapshot.IOInaccessible {
		if io, err := handle.IO(ctx); err == nil {
			metrics.ReadDelta = io.ReadCount - snapshot.ReadCount
			metrics.WriteDelta = io.WriteCount - snapshot.WriteCount
			snapshot.ReadCount = io.ReadCount
			snapshot.WriteCount = io.WriteCount
		} else {
			snapshot.IOInaccessible = true
			s.logger.Debug().Err(err).Int32("pid", snapshot.PID).Msg("IO counters inaccessible, disabled for this process")
		}
	}
	s.collectExtMemory(ctx, handle, snapshot, opts)

	return metrics
}

func (s *ProcessSampler) collectOptional(ctx context.Context, handle ProcessHandle, snapshot *models.ProcessSnapshot, opts CollectOptions) {
	if opts.IOCounters && !snapshot.IOInaccessible {
		if io, err := handle.IO(ctx); err == nil {
			snapshot.ReadCount = io.ReadCount
			snapshot.WriteCount = io.WriteCount
		} else {
			snapshot.IOInaccessible = true
			s.logger.Debug().Err(err).Int32("pid", snapshot.PID).Msg("IO counters inaccessible, disabled for this process")
		}
	}
	s.collectExtMemory(ctx, handle, snapshot, opts)
}

func (s *ProcessSampler) collectExtMemory(ctx context.Context, handle ProcessHandle, snapshot *models.ProcessSnapshot, opts CollectOptions) {
	if (!opts.UniqueMemory && !opts.SharedMemory) || snapshot.MemExtInaccessible {
		return
	}
	stats, err := handle.ExtMemory(ctx, opts.UniqueMemory, opts.SharedMemory)
	if err != nil {
		snapshot.MemExtInaccessible = true
		s.logger.Debug().Err(err).Int32("pid", snapshot.PID).Msg("Extended memory stats inaccessible, disabled for this process")
		return
	}
	if opts.UniqueMemory {
		snapshot.USS = stats.USS
	}
	if opts.SharedMemory {
		snapshot.Shared = stats.Shared
	}
}

func (s *ProcessSampler) rssPercent(rss uint64) float64 {
	if s.totalMemory == 0 {
		return 0
	}
	return 100 * float64(rss) / float64(s.totalMemory)
}
