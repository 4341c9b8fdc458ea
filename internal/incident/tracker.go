package incident

import (
	"time"

	"github.com/aleister1102/procwatch/internal/config"
	"github.com/aleister1102/procwatch/internal/models"

	"github.com/rs/zerolog"
)

// cell is the per (pid, condition) state: the hysteresis counter plus the
// open incident, if any.
type cell struct {
	accumulated time.Duration
	incident    *models.Incident
}

// Tracker turns sustained threshold breaches into incident open/update/close
// events. It owns every Incident it creates; consumers only hold one for the
// duration of a single dispatch. All methods must be called from one
// goroutine (the tick loop).
type Tracker struct {
	logger zerolog.Logger
	cells  map[int32][]cell
}

// NewTracker creates an incident tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		logger: logger.With().Str("component", "IncidentTracker").Logger(),
		cells:  make(map[int32][]cell),
	}
}

// Observe consumes one tick of sampler output and returns the incident
// events it caused, in deterministic order: deaths first (ascending pid,
// then condition order), then live updates in sampler order.
func (t *Tracker) Observe(tick *models.TickResult, cfg config.MonitorConfig) []models.IncidentEvent {
	var events []models.IncidentEvent

	for _, pid := range tick.Died {
		events = append(events, t.closeForDeath(pid, tick.SampledAt)...)
	}

	for _, update := range tick.Updates {
		events = append(events, t.observeUpdate(update, cfg, tick.SampledAt)...)
	}

	return events
}

// closeForDeath closes every open incident of a dead process, in fixed
// condition order, and drops all state for the pid.
func (t *Tracker) closeForDeath(pid int32, now time.Time) []models.IncidentEvent {
	cells, ok := t.cells[pid]
	if !ok {
		return nil
	}
	var events []models.IncidentEvent
	for i := range policies {
		inc := cells[i].incident
		if inc == nil {
			continue
		}
		inc.State = models.IncidentClosed
		inc.Proc.Alive = false
		inc.Proc.EndTime = now
		t.logger.Debug().Int32("pid", pid).Str("condition", inc.Condition.String()).Msg("Closing incident, process died")
		events = append(events, models.IncidentEvent{Kind: models.IncidentClosedEvent, Incident: inc})
	}
	delete(t.cells, pid)
	return events
}

func (t *Tracker) observeUpdate(u models.ProcessUpdate, cfg config.MonitorConfig, now time.Time) []models.IncidentEvent {
	cells, ok := t.cells[u.Snapshot.PID]
	if !ok {
		cells = make([]cell, len(policies))
		t.cells[u.Snapshot.PID] = cells
	}

	var events []models.IncidentEvent
	for i, policy := range policies {
		c := &cells[i]

		if !policy.predicate(cfg, u) {
			// The counter resets the instant the predicate is false:
			// sub-threshold blips are absorbed without any event.
			c.accumulated = 0
			if c.incident != nil {
				inc := c.incident
				inc.State = models.IncidentClosed
				inc.Duration = now.Sub(inc.OpenedAt)
				inc.Proc = u.Snapshot
				c.incident = nil
				events = append(events, models.IncidentEvent{Kind: models.IncidentClosedEvent, Incident: inc, Metrics: u.Metrics})
			}
			continue
		}

		c.accumulated += u.Metrics.Elapsed
		if c.accumulated < policy.sustain(cfg) {
			continue
		}

		if c.incident == nil {
			c.incident = &models.Incident{
				Proc:      u.Snapshot,
				Condition: policy.condition,
				OpenedAt:  now,
				Duration:  c.accumulated,
				Value:     policy.value(u),
				State:     models.IncidentOpen,
			}
			t.logger.Debug().Int32("pid", u.Snapshot.PID).Str("condition", policy.condition.String()).Dur("sustained", c.accumulated).Msg("Incident opened")
			events = append(events, models.IncidentEvent{Kind: models.IncidentOpened, Incident: c.incident, Metrics: u.Metrics})
		} else {
			inc := c.incident
			inc.Duration += c.accumulated
			inc.Value = policy.value(u)
			inc.Proc = u.Snapshot
			events = append(events, models.IncidentEvent{Kind: models.IncidentUpdated, Incident: inc, Metrics: u.Metrics})
		}
		// Duration accounting restarts fresh after every fire; the next
		// Updated only comes once another full sustain period has elapsed.
		c.accumulated = 0
	}

	return events
}

// OpenIncidents returns the number of currently open incidents, used by the
// service for periodic status logging.
func (t *Tracker) OpenIncidents() int {
	n := 0
	for _, cells := range t.cells {
		for i := range cells {
			if cells[i].incident != nil {
				n++
			}
		}
	}
	return n
}
