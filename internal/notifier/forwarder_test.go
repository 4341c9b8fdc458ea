package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/aleister1102/procwatch/internal/config"
	"github.com/aleister1102/procwatch/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient mimics the bus-side replace/suppress rules so the forwarder's
// policy can be tested without a session bus.
type fakeClient struct {
	caps       Capabilities
	connectErr error
	notifyErr  error
	nextID     uint32
	live       map[uint32]interface{}
	calls      []Request
	events     chan Event
}

func newFakeClient(caps Capabilities) *fakeClient {
	return &fakeClient{
		caps:   caps,
		nextID: 1,
		live:   make(map[uint32]interface{}),
		events: make(chan Event, 8),
	}
}

func (fc *fakeClient) Connect(ctx context.Context) (Capabilities, error) {
	if fc.connectErr != nil {
		return Capabilities{}, fc.connectErr
	}
	return fc.caps, nil
}

func (fc *fakeClient) Notify(ctx context.Context, req Request) (Result, error) {
	if req.ReplaceID != 0 {
		_, stillLive := fc.live[req.ReplaceID]
		if !fc.caps.Persistence || !stillLive {
			return Result{Suppressed: true}, nil
		}
	}
	if fc.notifyErr != nil {
		return Result{}, fc.notifyErr
	}
	fc.calls = append(fc.calls, req)
	id := req.ReplaceID
	if id == 0 {
		id = fc.nextID
		fc.nextID++
	}
	fc.live[id] = req.Context
	return Result{MessageID: id}, nil
}

func (fc *fakeClient) Events() <-chan Event { return fc.events }
func (fc *fakeClient) Close() error         { return nil }

func testIncident() *models.Incident {
	return &models.Incident{
		Proc: models.ProcessSnapshot{
			PID:     321,
			Comm:    "burner",
			Cmdline: []string{"/usr/bin/burner"},
			Alive:   true,
		},
		Condition: models.ConditionCPUBurn,
		OpenedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  12 * time.Second,
		Value:     80,
		State:     models.IncidentOpen,
	}
}

func notificationConfig() config.NotificationConfig {
	return config.NewDefaultNotificationConfig()
}

func TestForwarder_OpenedCreatesNotificationAndStoresID(t *testing.T) {
	client := newFakeClient(Capabilities{Persistence: true, Actions: true})
	forwarder := NewAlertForwarder(client, zerolog.Nop())
	require.NoError(t, forwarder.Connect(context.Background()))

	inc := testIncident()
	err := forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentOpened, Incident: inc}, notificationConfig())
	require.NoError(t, err)

	require.Len(t, client.calls, 1)
	assert.Equal(t, uint32(0), client.calls[0].ReplaceID, "first notification always creates")
	assert.Equal(t, uint32(1), inc.Handle.MessageID, "returned message id stored on the incident")
}

func TestForwarder_UpdateReplacesInPlace(t *testing.T) {
	client := newFakeClient(Capabilities{Persistence: true})
	forwarder := NewAlertForwarder(client, zerolog.Nop())
	require.NoError(t, forwarder.Connect(context.Background()))
	cfg := notificationConfig()
	inc := testIncident()

	require.NoError(t, forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentOpened, Incident: inc}, cfg))
	require.NoError(t, forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentUpdated, Incident: inc}, cfg))

	require.Len(t, client.calls, 2)
	assert.Equal(t, inc.Handle.MessageID, client.calls[1].ReplaceID)
	assert.False(t, inc.Handle.Suppressed)
}

// Scenario: the server has no persistence capability. The first event
// reaches the transport; every later update for the same incident is
// suppressed client-side without a call.
func TestForwarder_NoPersistenceSuppressesAfterFirstCall(t *testing.T) {
	client := newFakeClient(Capabilities{Persistence: false})
	forwarder := NewAlertForwarder(client, zerolog.Nop())
	require.NoError(t, forwarder.Connect(context.Background()))
	cfg := notificationConfig()
	inc := testIncident()

	require.NoError(t, forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentOpened, Incident: inc}, cfg))
	require.NoError(t, forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentUpdated, Incident: inc}, cfg))
	require.NoError(t, forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentUpdated, Incident: inc}, cfg))

	assert.Len(t, client.calls, 1, "only the first event may reach the transport")
	assert.True(t, inc.Handle.Suppressed, "suppression is sticky for the incident lifetime")

	// Even the final close skips the network round trip.
	require.NoError(t, forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentClosedEvent, Incident: inc}, cfg))
	assert.Len(t, client.calls, 1)
}

func TestForwarder_DismissedMessageIsNotDuplicated(t *testing.T) {
	client := newFakeClient(Capabilities{Persistence: true})
	forwarder := NewAlertForwarder(client, zerolog.Nop())
	require.NoError(t, forwarder.Connect(context.Background()))
	cfg := notificationConfig()
	inc := testIncident()

	require.NoError(t, forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentOpened, Incident: inc}, cfg))
	require.Len(t, client.calls, 1)

	// The user dismisses the notification: the id is no longer live.
	delete(client.live, inc.Handle.MessageID)

	require.NoError(t, forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentUpdated, Incident: inc}, cfg))
	assert.Len(t, client.calls, 1, "updating a dismissed id must never create a duplicate")
	assert.True(t, inc.Handle.Suppressed)
}

func TestForwarder_SendFailureIsRetriedNotSuppressed(t *testing.T) {
	client := newFakeClient(Capabilities{Persistence: true})
	forwarder := NewAlertForwarder(client, zerolog.Nop())
	require.NoError(t, forwarder.Connect(context.Background()))
	cfg := notificationConfig()
	inc := testIncident()

	client.notifyErr = models.NewDeliveryError(models.ErrSendFailed, assert.AnError)
	err := forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentOpened, Incident: inc}, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSendFailed)
	assert.False(t, inc.Handle.Suppressed, "transport failure is not policy suppression")

	// The fault clears; the next qualifying tick delivers normally.
	client.notifyErr = nil
	require.NoError(t, forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentUpdated, Incident: inc}, cfg))
	require.Len(t, client.calls, 1)
	assert.Equal(t, uint32(1), inc.Handle.MessageID)
}

func TestForwarder_GloballyDisabledIsNoOp(t *testing.T) {
	client := newFakeClient(Capabilities{Persistence: true})
	forwarder := NewAlertForwarder(client, zerolog.Nop())
	require.NoError(t, forwarder.Connect(context.Background()))

	cfg := notificationConfig()
	cfg.Enabled = false

	inc := testIncident()
	require.NoError(t, forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentOpened, Incident: inc}, cfg))
	assert.Empty(t, client.calls)
	assert.Equal(t, uint32(0), inc.Handle.MessageID)
}

func TestForwarder_BusUnavailableDisablesDelivery(t *testing.T) {
	client := newFakeClient(Capabilities{})
	client.connectErr = models.NewDeliveryError(models.ErrBusUnavailable, assert.AnError)
	forwarder := NewAlertForwarder(client, zerolog.Nop())

	err := forwarder.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrBusUnavailable)
	assert.True(t, forwarder.Disabled())

	// Dispatch becomes a silent no-op; sampling elsewhere keeps running.
	inc := testIncident()
	require.NoError(t, forwarder.Dispatch(context.Background(), models.IncidentEvent{Kind: models.IncidentOpened, Incident: inc}, notificationConfig()))
	assert.Empty(t, client.calls)
}
