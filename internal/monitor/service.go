package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/aleister1102/procwatch/internal/config"
	"github.com/aleister1102/procwatch/internal/incident"
	"github.com/aleister1102/procwatch/internal/models"
	"github.com/aleister1102/procwatch/internal/notifier"
	"github.com/aleister1102/procwatch/internal/sampler"

	"github.com/rs/zerolog"
)

// Service drives the sample → track → forward pipeline from one background
// goroutine. That goroutine is the only writer of sampler and tracker state;
// everything published outward is a copy of completed-tick output.
type Service struct {
	logger    zerolog.Logger
	configMgr *config.ConfigManager
	sampler   *sampler.ProcessSampler
	tracker   *incident.Tracker
	forwarder *notifier.AlertForwarder
	client    notifier.Client

	mu            sync.Mutex
	tickSubs      []chan *models.TickResult
	incidentSubs  []chan models.IncidentEvent
	actionSubs    []chan ProcessAction
	errors        chan error
	active        bool
	cancelFunc    context.CancelFunc
	wg            sync.WaitGroup
}

// ProcessAction is published when the user invokes a notification action,
// so a UI can jump to the process the incident belongs to.
type ProcessAction struct {
	PID       int32
	Condition models.ConditionType
	ActionKey string
}

// NewService wires the pipeline components together.
func NewService(configMgr *config.ConfigManager, source sampler.MetricSource, client notifier.Client, baseLogger zerolog.Logger) *Service {
	serviceLogger := baseLogger.With().Str("component", "MonitorService").Logger()
	return &Service{
		logger:    serviceLogger,
		configMgr: configMgr,
		sampler:   sampler.NewProcessSampler(source, baseLogger),
		tracker:   incident.NewTracker(baseLogger),
		forwarder: notifier.NewAlertForwarder(client, baseLogger),
		client:    client,
		errors:    make(chan error, 16),
	}
}

// Start connects the notification service and launches the tick loop. A
// notification connect failure is reported on Errors and disables delivery,
// but sampling starts regardless.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		s.logger.Warn().Msg("Monitor service already active")
		return nil
	}
	s.active = true
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	s.mu.Unlock()

	if err := s.forwarder.Connect(loopCtx); err != nil {
		s.reportError(err)
	}

	s.wg.Add(2)
	go s.runLoop(loopCtx)
	go s.eventLoop(loopCtx)

	s.logger.Info().Msg("Monitor service started")
	return nil
}

// Stop cancels the loops and waits for the in-flight tick to complete; ticks
// are never aborted halfway so incidents are not left half-updated.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	cancel := s.cancelFunc
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Monitor service stopped")
}

// SubscribeTicks registers a consumer of completed-tick output. The
// delivered TickResult is shared and must be treated as immutable.
func (s *Service) SubscribeTicks(buffer int) <-chan *models.TickResult {
	ch := make(chan *models.TickResult, buffer)
	s.mu.Lock()
	s.tickSubs = append(s.tickSubs, ch)
	s.mu.Unlock()
	return ch
}

// SubscribeIncidents registers a consumer of incident open/update/close
// events.
func (s *Service) SubscribeIncidents(buffer int) <-chan models.IncidentEvent {
	ch := make(chan models.IncidentEvent, buffer)
	s.mu.Lock()
	s.incidentSubs = append(s.incidentSubs, ch)
	s.mu.Unlock()
	return ch
}

// SubscribeActions registers a consumer of user-invoked notification
// actions.
func (s *Service) SubscribeActions(buffer int) <-chan ProcessAction {
	ch := make(chan ProcessAction, buffer)
	s.mu.Lock()
	s.actionSubs = append(s.actionSubs, ch)
	s.mu.Unlock()
	return ch
}

// Errors delivers notification delivery failures as structured error values.
func (s *Service) Errors() <-chan error {
	return s.errors
}

// runLoop is the tick loop. The configuration is re-read at the top of every
// tick, so interval and threshold changes apply on the next tick without a
// restart. The stop signal is only observed between ticks.
func (s *Service) runLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			s.logger.Info().Msg("Tick loop stopping")
			return
		}

		cfg := s.configMgr.GetConfig()
		s.tick(ctx, cfg)

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Tick loop stopping")
			return
		case <-time.After(cfg.MonitorConfig.PollInterval()):
		}
	}
}

func (s *Service) tick(ctx context.Context, cfg config.GlobalConfig) {
	result, err := s.sampler.Sample(ctx, cfg.MonitorConfig)
	if err != nil {
		s.logger.Error().Err(err).Msg("Sampling tick failed")
		return
	}

	events := s.tracker.Observe(result, cfg.MonitorConfig)
	for _, ev := range events {
		if err := s.forwarder.Dispatch(ctx, ev, cfg.NotificationConfig); err != nil {
			s.reportError(err)
		}
	}
	if len(events) > 0 {
		s.logger.Info().
			Int("events", len(events)).
			Int("open_incidents", s.tracker.OpenIncidents()).
			Msg("Incident activity")
	}

	s.publish(result, events)
}

// eventLoop routes asynchronous notification events (dismissals, action
// clicks) back into the service. Dismissal bookkeeping already happened
// inside the client; only actions are surfaced further.
func (s *Service) eventLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.client.Events():
			if !ok {
				return
			}
			if ev.Kind != notifier.EventActionInvoked {
				continue
			}
			inc, ok := ev.Context.(*models.Incident)
			if !ok {
				continue
			}
			s.logger.Debug().Int32("pid", inc.Proc.PID).Str("action", ev.ActionKey).Msg("Notification action invoked")
			s.publishAction(ProcessAction{
				PID:       inc.Proc.PID,
				Condition: inc.Condition,
				ActionKey: ev.ActionKey,
			})
		}
	}
}

// publish fans completed-tick output to subscribers without ever blocking
// the tick loop; a lagging subscriber loses events rather than stalling
// sampling.
func (s *Service) publish(result *models.TickResult, events []models.IncidentEvent) {
	s.mu.Lock()
	tickSubs := s.tickSubs
	incidentSubs := s.incidentSubs
	s.mu.Unlock()

	for _, ch := range tickSubs {
		select {
		case ch <- result:
		default:
		}
	}
	for _, ev := range events {
		for _, ch := range incidentSubs {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (s *Service) publishAction(action ProcessAction) {
	s.mu.Lock()
	actionSubs := s.actionSubs
	s.mu.Unlock()

	for _, ch := range actionSubs {
		select {
		case ch <- action:
		default:
		}
	}
}

func (s *Service) reportError(err error) {
	select {
	case s.errors <- err:
	default:
		s.logger.Warn().Err(err).Msg("Error channel full, dropping delivery failure report")
	}
}
