package notifier

import (
	"strings"
	"testing"
	"time"

	"github.com/aleister1102/procwatch/internal/config"
	"github.com/aleister1102/procwatch/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestBuildRequest_CPUBurn(t *testing.T) {
	inc := &models.Incident{
		Proc: models.ProcessSnapshot{
			PID:     4242,
			Comm:    "miner",
			Cmdline: []string{"/opt/miner", "--threads", "8"},
		},
		Condition: models.ConditionCPUBurn,
		OpenedAt:  time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		Duration:  30 * time.Second,
		Value:     142,
	}
	inc.Handle.MessageID = 7

	cfg := config.NewDefaultNotificationConfig()
	req := BuildRequest(models.IncidentEvent{Kind: models.IncidentUpdated, Incident: inc}, cfg)

	assert.Equal(t, "△ CPU consumption [miner]", req.AppName)
	assert.Equal(t, "▶PID=4242 [miner] High CPU consumption, still ongoing.", req.Summary)
	assert.Contains(t, req.Body, "CPU at 142% for at least 30 seconds.")
	assert.Contains(t, req.Body, "cmdline=/opt/miner --threads 8")
	assert.Contains(t, req.Body, "since=2025-03-01 09:30:00")
	assert.Equal(t, uint32(7), req.ReplaceID)
	assert.Equal(t, "dialog-warning", req.Icon)
	assert.Same(t, inc, req.Context)
}

func TestBuildRequest_RSSGrowthClosed(t *testing.T) {
	inc := &models.Incident{
		Proc: models.ProcessSnapshot{
			PID:  99,
			Comm: "leaky",
		},
		Condition: models.ConditionRSSGrowth,
		OpenedAt:  time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		Duration:  45 * time.Second,
		Value:     2_000_000_000,
	}

	cfg := config.NewDefaultNotificationConfig()
	ev := models.IncidentEvent{
		Kind:     models.IncidentClosedEvent,
		Incident: inc,
		Metrics:  models.ProcessMetrics{RSSPercent: 12.5},
	}
	req := BuildRequest(ev, cfg)

	assert.Equal(t, "▶PID=99 [leaky] High rss growth, ceased.", req.Summary)
	assert.Contains(t, req.Body, "rss growth has finished after 45 seconds.")
	assert.Contains(t, req.Body, "12.5% of memory")
}

func TestBuildRequest_DisplayNameTruncation(t *testing.T) {
	inc := &models.Incident{
		Proc: models.ProcessSnapshot{
			PID:  7,
			Comm: "a-process-with-a-really-long-name",
		},
		Condition: models.ConditionCPUBurn,
	}

	req := BuildRequest(models.IncidentEvent{Kind: models.IncidentOpened, Incident: inc}, config.NewDefaultNotificationConfig())

	name := inc.Proc.DisplayName()
	assert.LessOrEqual(t, len(name), models.DisplayNameLimit)
	assert.True(t, strings.HasSuffix(name, ".."))
	assert.Contains(t, req.AppName, name)
}

func TestBuildRequest_ActionButtonsGated(t *testing.T) {
	inc := &models.Incident{Condition: models.ConditionCPUBurn}
	cfg := config.NewDefaultNotificationConfig()

	cfg.ActionButtons = true
	req := BuildRequest(models.IncidentEvent{Kind: models.IncidentOpened, Incident: inc}, cfg)
	assert.Equal(t, []Action{{Key: "view", Label: "View process"}}, req.Actions)

	cfg.ActionButtons = false
	req = BuildRequest(models.IncidentEvent{Kind: models.IncidentOpened, Incident: inc}, cfg)
	assert.Empty(t, req.Actions)
}
