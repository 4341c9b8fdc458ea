package incident

import (
	"time"

	"github.com/aleister1102/procwatch/internal/config"
	"github.com/aleister1102/procwatch/internal/models"
)

// conditionPolicy bundles everything condition-specific so the tracker state
// machine itself stays uniform: the instantaneous predicate, the configured
// sustain duration, and the metric value recorded on the incident.
type conditionPolicy struct {
	condition models.ConditionType
	predicate func(cfg config.MonitorConfig, u models.ProcessUpdate) bool
	sustain   func(cfg config.MonitorConfig) time.Duration
	value     func(u models.ProcessUpdate) float64
}

// policies is ordered: when a process dies with several incidents open they
// are closed in this order.
var policies = []conditionPolicy{
	{
		condition: models.ConditionCPUBurn,
		predicate: func(cfg config.MonitorConfig, u models.ProcessUpdate) bool {
			return u.Metrics.CPUPercent >= float64(cfg.NotifyCPUUsePercent)
		},
		sustain: config.MonitorConfig.CPUSustain,
		value: func(u models.ProcessUpdate) float64 {
			return u.Metrics.CPUPercent
		},
	},
	{
		condition: models.ConditionRSSGrowth,
		predicate: func(cfg config.MonitorConfig, u models.ProcessUpdate) bool {
			return u.Metrics.RSSDelta > 0 && u.Snapshot.RSS > cfg.RSSThresholdBytes()
		},
		sustain: config.MonitorConfig.RSSSustain,
		value: func(u models.ProcessUpdate) float64 {
			return float64(u.Snapshot.RSS)
		},
	},
}
