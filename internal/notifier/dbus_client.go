package notifier

import (
	"context"
	"sync"

	"github.com/aleister1102/procwatch/internal/models"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	notificationsDest = "org.freedesktop.Notifications"
	notificationsPath = "/org/freedesktop/Notifications"

	methodGetCapabilities = notificationsDest + ".GetCapabilities"
	methodNotify          = notificationsDest + ".Notify"
	signalClosed          = notificationsDest + ".NotificationClosed"
	signalActionInvoked   = notificationsDest + ".ActionInvoked"

	eventBufferSize = 64
)

// DBusClient talks to the freedesktop notification service on the session
// bus. The live-message map is written both by Notify (adding ids) and by
// the signal pump (removing dismissed ids), so it is mutex-guarded.
type DBusClient struct {
	logger zerolog.Logger

	mu        sync.Mutex
	conn      *dbus.Conn
	obj       dbus.BusObject
	caps      Capabilities
	connected bool
	live      map[uint32]interface{}

	events  chan Event
	signals chan *dbus.Signal
	done    chan struct{}
}

// NewDBusClient creates a disconnected client; call Connect before Notify.
func NewDBusClient(logger zerolog.Logger) *DBusClient {
	return &DBusClient{
		logger: logger.With().Str("component", "DBusClient").Logger(),
		live:   make(map[uint32]interface{}),
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}
}

// Connect opens the session bus, queries the server capability list once,
// and starts the signal pump. Bus unavailability is reported as a
// DeliveryError wrapping models.ErrBusUnavailable, never a panic.
func (c *DBusClient) Connect(ctx context.Context) (Capabilities, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return c.caps, nil
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return Capabilities{}, models.NewDeliveryError(models.ErrBusUnavailable, err)
	}

	obj := conn.Object(notificationsDest, notificationsPath)

	var rawCaps []string
	if err := obj.CallWithContext(ctx, methodGetCapabilities, 0).Store(&rawCaps); err != nil {
		return Capabilities{}, models.NewDeliveryError(models.ErrBusUnavailable, err)
	}

	caps := Capabilities{}
	for _, capability := range rawCaps {
		switch capability {
		case "persistence":
			caps.Persistence = true
		case "actions":
			caps.Actions = true
		}
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(notificationsPath),
		dbus.WithMatchInterface(notificationsDest),
	); err != nil {
		return Capabilities{}, models.NewDeliveryError(models.ErrBusUnavailable, err)
	}

	c.conn = conn
	c.obj = obj
	c.caps = caps
	c.connected = true

	c.signals = make(chan *dbus.Signal, eventBufferSize)
	conn.Signal(c.signals)
	go c.pumpSignals()

	c.logger.Info().
		Bool("persistence", caps.Persistence).
		Bool("actions", caps.Actions).
		Msg("Connected to notification service")
	return caps, nil
}

// Notify creates or updates a desktop notification.
func (c *DBusClient) Notify(ctx context.Context, req Request) (Result, error) {
	c.mu.Lock()

	if !c.connected {
		c.mu.Unlock()
		return Result{}, models.NewDeliveryError(models.ErrBusUnavailable, nil)
	}

	if req.ReplaceID != 0 {
		_, stillLive := c.live[req.ReplaceID]
		if !c.caps.Persistence || !stillLive {
			// At most one live notification per caller context: updating a
			// dismissed or non-updatable message would duplicate it, so the
			// call is refused without touching the bus.
			c.mu.Unlock()
			c.logger.Debug().Uint32("replace_id", req.ReplaceID).Msg("Notify suppressed")
			return Result{Suppressed: true}, nil
		}
	}

	var actions []string
	if c.caps.Actions {
		for _, action := range req.Actions {
			actions = append(actions, action.Key, action.Label)
		}
	}
	obj := c.obj
	c.mu.Unlock()

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(1)),
	}

	var id uint32
	call := obj.CallWithContext(ctx, methodNotify, 0,
		req.AppName,
		req.ReplaceID,
		req.Icon,
		req.Summary,
		req.Body,
		actions,
		hints,
		req.TimeoutMillis,
	)
	if err := call.Store(&id); err != nil {
		return Result{}, models.NewDeliveryError(models.ErrSendFailed, err)
	}

	c.mu.Lock()
	if req.ReplaceID != 0 && req.ReplaceID != id {
		delete(c.live, req.ReplaceID)
	}
	c.live[id] = req.Context
	c.mu.Unlock()

	return Result{MessageID: id}, nil
}

// Events delivers dismissal and action-invoked signals.
func (c *DBusClient) Events() <-chan Event {
	return c.events
}

// Close tears down the signal pump and the bus connection.
func (c *DBusClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	close(c.done)
	c.conn.RemoveSignal(c.signals)
	return c.conn.Close()
}

// pumpSignals converts raw bus signals into Events carrying the original
// caller context. Dismissal removes the id from the live set, which is what
// makes later replace attempts come back Suppressed. The pump is the only
// sender on the events channel and closes it on exit.
func (c *DBusClient) pumpSignals() {
	defer close(c.events)
	for {
		select {
		case <-c.done:
			return
		case sig, ok := <-c.signals:
			if !ok {
				return
			}
			c.handleSignal(sig)
		}
	}
}

func (c *DBusClient) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case signalClosed:
		if len(sig.Body) < 1 {
			return
		}
		id, ok := sig.Body[0].(uint32)
		if !ok {
			return
		}
		c.mu.Lock()
		context, known := c.live[id]
		delete(c.live, id)
		c.mu.Unlock()
		if known {
			c.emit(Event{Kind: EventDismissed, MessageID: id, Context: context})
		}

	case signalActionInvoked:
		if len(sig.Body) < 2 {
			return
		}
		id, okID := sig.Body[0].(uint32)
		key, okKey := sig.Body[1].(string)
		if !okID || !okKey {
			return
		}
		c.mu.Lock()
		context, known := c.live[id]
		c.mu.Unlock()
		if known {
			c.emit(Event{Kind: EventActionInvoked, MessageID: id, ActionKey: key, Context: context})
		}
	}
}

// emit never blocks the signal pump; when the consumer lags the event is
// dropped and counted in the log.
func (c *DBusClient) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn().Uint32("message_id", ev.MessageID).Msg("Event buffer full, dropping notification event")
	}
}
