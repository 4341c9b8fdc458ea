package notifier

import (
	"context"

	"github.com/aleister1102/procwatch/internal/config"
	"github.com/aleister1102/procwatch/internal/models"

	"github.com/rs/zerolog"
)

// AlertForwarder binds incident events to notification calls, applying the
// dedup/suppression/update policy. It is driven from the single tick loop;
// the client underneath handles its own locking.
type AlertForwarder struct {
	logger   zerolog.Logger
	client   Client
	disabled bool
}

// NewAlertForwarder creates a forwarder over the given notification client.
func NewAlertForwarder(client Client, logger zerolog.Logger) *AlertForwarder {
	return &AlertForwarder{
		logger: logger.With().Str("component", "AlertForwarder").Logger(),
		client: client,
	}
}

// Connect establishes the notification connection. On bus unavailability the
// forwarder disables delivery for its lifetime and reports the failure; the
// sampling pipeline is expected to keep running without it.
func (f *AlertForwarder) Connect(ctx context.Context) error {
	if _, err := f.client.Connect(ctx); err != nil {
		f.disabled = true
		f.logger.Error().Err(err).Msg("Notification service unavailable, alert delivery disabled")
		return err
	}
	return nil
}

// Disabled reports whether delivery has been shut off by a failed connect.
func (f *AlertForwarder) Disabled() bool {
	return f.disabled
}

// Dispatch forwards one incident event to the desktop notification service.
//
// Policy suppression (server cannot update, or the user dismissed the
// message) is sticky for the incident's remaining lifetime. A transport send
// failure is not: it is surfaced to the caller for that call only and the
// incident is retried on its next qualifying event.
func (f *AlertForwarder) Dispatch(ctx context.Context, ev models.IncidentEvent, cfg config.NotificationConfig) error {
	if f.disabled || !cfg.Enabled {
		return nil
	}

	inc := ev.Incident
	if inc.Handle.Suppressed {
		return nil
	}

	if inc.Handle.MessageID != 0 && !cfg.UpdateInPlace {
		// Updates are disabled by configuration; rather than duplicating the
		// original message, stop notifying for this incident.
		inc.Handle.Suppressed = true
		return nil
	}

	req := BuildRequest(ev, cfg)
	result, err := f.client.Notify(ctx, req)
	if err != nil {
		f.logger.Warn().Err(err).
			Int32("pid", inc.Proc.PID).
			Str("condition", inc.Condition.String()).
			Msg("Notification send failed, will retry on next qualifying tick")
		return err
	}

	if result.Suppressed {
		inc.Handle.Suppressed = true
		f.logger.Debug().
			Int32("pid", inc.Proc.PID).
			Str("condition", inc.Condition.String()).
			Msg("Notification suppressed for remaining incident lifetime")
		return nil
	}

	inc.Handle.MessageID = result.MessageID
	f.logger.Debug().
		Int32("pid", inc.Proc.PID).
		Str("condition", inc.Condition.String()).
		Str("event", ev.Kind.String()).
		Uint32("message_id", result.MessageID).
		Msg("Notification delivered")
	return nil
}
