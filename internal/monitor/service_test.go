package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aleister1102/procwatch/internal/config"
	"github.com/aleister1102/procwatch/internal/models"
	"github.com/aleister1102/procwatch/internal/notifier"
	"github.com/aleister1102/procwatch/internal/sampler"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticHandle struct {
	identity sampler.ProcessIdentity
	core     sampler.CoreStats
}

func (h *staticHandle) PID() int32 { return h.identity.PID }

func (h *staticHandle) Identity(ctx context.Context) (sampler.ProcessIdentity, error) {
	return h.identity, nil
}

func (h *staticHandle) Core(ctx context.Context) (sampler.CoreStats, error) {
	return h.core, nil
}

func (h *staticHandle) IO(ctx context.Context) (sampler.IOStats, error) {
	return sampler.IOStats{}, nil
}

func (h *staticHandle) ExtMemory(ctx context.Context, uss, shared bool) (sampler.ExtMemStats, error) {
	return sampler.ExtMemStats{}, nil
}

type staticSource struct {
	handles []sampler.ProcessHandle
}

func (s *staticSource) Enumerate(ctx context.Context) ([]sampler.ProcessHandle, error) {
	return s.handles, nil
}

func (s *staticSource) TotalMemory(ctx context.Context) (uint64, error) {
	return 16 << 30, nil
}

type stubClient struct {
	connectErr error
	events     chan notifier.Event
}

func newStubClient() *stubClient {
	return &stubClient{events: make(chan notifier.Event, 4)}
}

func (c *stubClient) Connect(ctx context.Context) (notifier.Capabilities, error) {
	if c.connectErr != nil {
		return notifier.Capabilities{}, c.connectErr
	}
	return notifier.Capabilities{Persistence: true, Actions: true}, nil
}

func (c *stubClient) Notify(ctx context.Context, req notifier.Request) (notifier.Result, error) {
	return notifier.Result{MessageID: 1}, nil
}

func (c *stubClient) Events() <-chan notifier.Event { return c.events }
func (c *stubClient) Close() error                  { return nil }

func testConfigManager(t *testing.T) *config.ConfigManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor_config:\n  poll_seconds: 1\n"), 0o644))

	mgr, err := config.NewConfigManager(path, config.ConfigManagerOptions{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func newTestService(t *testing.T, source sampler.MetricSource, client notifier.Client) *Service {
	t.Helper()
	return NewService(testConfigManager(t), source, client, zerolog.Nop())
}

func TestService_FirstTickIsPublishedImmediately(t *testing.T) {
	source := &staticSource{handles: []sampler.ProcessHandle{
		&staticHandle{
			identity: sampler.ProcessIdentity{PID: 10, Comm: "idle", StartTime: time.Now()},
			core:     sampler.CoreStats{CPUTime: 1.5, RSS: 4096},
		},
	}}
	service := newTestService(t, source, newStubClient())

	ticks := service.SubscribeTicks(1)
	require.NoError(t, service.Start(context.Background()))
	defer service.Stop()

	select {
	case result := <-ticks:
		require.Len(t, result.Updates, 1)
		assert.Equal(t, int32(10), result.Updates[0].Snapshot.PID)
		assert.False(t, result.Updates[0].IsNew, "pre-existing processes are not new on the first enumeration")
	case <-time.After(2 * time.Second):
		t.Fatal("no tick published after start")
	}
}

func TestService_ConnectFailureIsReportedAndSamplingContinues(t *testing.T) {
	client := newStubClient()
	client.connectErr = models.NewDeliveryError(models.ErrBusUnavailable, assert.AnError)

	service := newTestService(t, &staticSource{}, client)
	ticks := service.SubscribeTicks(1)
	require.NoError(t, service.Start(context.Background()))
	defer service.Stop()

	select {
	case err := <-service.Errors():
		assert.ErrorIs(t, err, models.ErrBusUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("connect failure not reported")
	}

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("sampling did not continue after connect failure")
	}
}

func TestService_ActionInvocationIsRouted(t *testing.T) {
	client := newStubClient()
	service := newTestService(t, &staticSource{}, client)

	actions := service.SubscribeActions(1)
	require.NoError(t, service.Start(context.Background()))
	defer service.Stop()

	inc := &models.Incident{
		Proc:      models.ProcessSnapshot{PID: 55, Comm: "leaky"},
		Condition: models.ConditionRSSGrowth,
	}
	client.events <- notifier.Event{
		Kind:      notifier.EventActionInvoked,
		ActionKey: "view",
		Context:   inc,
	}

	select {
	case action := <-actions:
		assert.Equal(t, int32(55), action.PID)
		assert.Equal(t, models.ConditionRSSGrowth, action.Condition)
		assert.Equal(t, "view", action.ActionKey)
	case <-time.After(2 * time.Second):
		t.Fatal("action not routed to subscriber")
	}
}

func TestService_StartIsIdempotentAndStopIsSafe(t *testing.T) {
	service := newTestService(t, &staticSource{}, newStubClient())

	require.NoError(t, service.Start(context.Background()))
	require.NoError(t, service.Start(context.Background()), "second start is a no-op")

	service.Stop()
	service.Stop()
}
