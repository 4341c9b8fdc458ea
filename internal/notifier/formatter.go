package notifier

import (
	"fmt"
	"strings"

	"github.com/aleister1102/procwatch/internal/config"
	"github.com/aleister1102/procwatch/internal/models"

	"github.com/dustin/go-humanize"
)

const (
	notificationIcon = "dialog-warning"
	actionViewKey    = "view"
	actionViewLabel  = "View process"
)

// BuildRequest turns an incident event into the notification request for it:
// app name, summary and body encode the process identity, the triggering
// metric value, how long the condition has persisted and when it opened.
func BuildRequest(ev models.IncidentEvent, cfg config.NotificationConfig) Request {
	inc := ev.Incident
	name := inc.Proc.DisplayName()

	req := Request{
		Icon:          notificationIcon,
		ReplaceID:     inc.Handle.MessageID,
		TimeoutMillis: cfg.TimeoutMillis(),
		Context:       inc,
	}
	if cfg.ActionButtons {
		req.Actions = []Action{{Key: actionViewKey, Label: actionViewLabel}}
	}

	switch inc.Condition {
	case models.ConditionCPUBurn:
		req.AppName = fmt.Sprintf("△ CPU consumption [%s]", name)
		req.Summary = fmt.Sprintf("▶PID=%d [%s] High CPU consumption%s", inc.Proc.PID, name, stateSuffix(ev.Kind))
		req.Body = cpuBody(ev)
	case models.ConditionRSSGrowth:
		req.AppName = fmt.Sprintf("△ rss growth [%s]", name)
		req.Summary = fmt.Sprintf("▶PID=%d [%s] High rss growth%s", inc.Proc.PID, name, stateSuffix(ev.Kind))
		req.Body = rssBody(ev)
	}
	return req
}

func stateSuffix(kind models.IncidentEventKind) string {
	switch kind {
	case models.IncidentUpdated:
		return ", still ongoing."
	case models.IncidentClosedEvent:
		return ", ceased."
	default:
		return "."
	}
}

func cpuBody(ev models.IncidentEvent) string {
	inc := ev.Incident
	var b strings.Builder
	if ev.Kind == models.IncidentClosedEvent {
		fmt.Fprintf(&b, "CPU consumption has finished after %.0f seconds.\n", inc.Duration.Seconds())
	} else {
		fmt.Fprintf(&b, "CPU at %.0f%% for at least %.0f seconds.\n", inc.Value, inc.Duration.Seconds())
	}
	writeProcessDetail(&b, inc)
	return b.String()
}

func rssBody(ev models.IncidentEvent) string {
	inc := ev.Incident
	var b strings.Builder
	if ev.Kind == models.IncidentClosedEvent {
		fmt.Fprintf(&b, "rss growth has finished after %.0f seconds.\n", inc.Duration.Seconds())
	} else {
		fmt.Fprintf(&b, "rss has been growing for at least %.0f seconds\n", inc.Duration.Seconds())
	}
	fmt.Fprintf(&b, "RSS=%s. %0.1f%% of memory\n", humanize.Bytes(uint64(inc.Value)), ev.Metrics.RSSPercent)
	writeProcessDetail(&b, inc)
	return b.String()
}

func writeProcessDetail(b *strings.Builder, inc *models.Incident) {
	fmt.Fprintf(b, "pid=%d\ncomm=%s\ncmdline=%s\n", inc.Proc.PID, inc.Proc.Comm, strings.Join(inc.Proc.Cmdline, " "))
	fmt.Fprintf(b, "since=%s", inc.OpenedAt.Format("2006-01-02 15:04:05"))
}
