package config

import (
	"time"
)

// MonitorConfig defines configuration for the process sampling loop and the
// incident thresholds. The poll interval is re-read at the start of every
// tick, so a changed value takes effect without a restart.
type MonitorConfig struct {
	PollSeconds int `json:"poll_seconds,omitempty" yaml:"poll_seconds,omitempty" validate:"omitempty,min=1,max=30"`

	// NotifyCPUUsePercent is the instantaneous CPU threshold; a process may
	// legitimately exceed 100 on multi-core hosts.
	NotifyCPUUsePercent     int `json:"notify_cpu_use_percent,omitempty" yaml:"notify_cpu_use_percent,omitempty" validate:"omitempty,min=0,max=900"`
	NotifyCPUUseSeconds     int `json:"notify_cpu_use_seconds,omitempty" yaml:"notify_cpu_use_seconds,omitempty" validate:"omitempty,min=0,max=300"`
	NotifyRSSExceededMbytes int `json:"notify_rss_exceeded_mbytes,omitempty" yaml:"notify_rss_exceeded_mbytes,omitempty" validate:"omitempty,min=1,max=100000"`
	NotifyRSSGrowingSeconds int `json:"notify_rss_growing_seconds,omitempty" yaml:"notify_rss_growing_seconds,omitempty" validate:"omitempty,min=0,max=60"`

	// Optional counters are opt-in: unique-set-size reads in particular are
	// expensive and disabled collection must not touch the OS at all.
	IOCountersEnabled   bool `json:"io_counters_enabled" yaml:"io_counters_enabled"`
	UniqueMemoryEnabled bool `json:"unique_memory_enabled" yaml:"unique_memory_enabled"`
	SharedMemoryEnabled bool `json:"shared_memory_enabled" yaml:"shared_memory_enabled"`
}

// NewDefaultMonitorConfig creates default monitor configuration
func NewDefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollSeconds:             DefaultPollSeconds,
		NotifyCPUUsePercent:     DefaultNotifyCPUPercent,
		NotifyCPUUseSeconds:     DefaultNotifyCPUSeconds,
		NotifyRSSExceededMbytes: DefaultNotifyRSSExceededMbytes,
		NotifyRSSGrowingSeconds: DefaultNotifyRSSGrowingSeconds,
		IOCountersEnabled:       false,
		UniqueMemoryEnabled:     false,
		SharedMemoryEnabled:     false,
	}
}

// PollInterval returns the tick interval as a duration, falling back to the
// default when the configured value is out of range.
func (mc MonitorConfig) PollInterval() time.Duration {
	secs := mc.PollSeconds
	if secs <= 0 {
		secs = DefaultPollSeconds
	}
	return time.Duration(secs) * time.Second
}

// CPUSustain returns the configured CPU-burn sustain duration.
func (mc MonitorConfig) CPUSustain() time.Duration {
	return time.Duration(mc.NotifyCPUUseSeconds) * time.Second
}

// RSSSustain returns the configured RSS-growth sustain duration.
func (mc MonitorConfig) RSSSustain() time.Duration {
	return time.Duration(mc.NotifyRSSGrowingSeconds) * time.Second
}

// RSSThresholdBytes converts the configured Mbyte threshold to bytes.
func (mc MonitorConfig) RSSThresholdBytes() uint64 {
	return uint64(mc.NotifyRSSExceededMbytes) * 1_000_000
}
