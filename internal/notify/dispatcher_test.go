package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafeteria/internal/core"
	"cafeteria/internal/logger"
	"cafeteria/internal/metrics"
	"cafeteria/internal/notify"
	"cafeteria/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakySender fails the first failures deliveries, then succeeds.
type flakySender struct {
	name      string
	failures  int
	permanent bool
	clock     *fakeClock

	mu       sync.Mutex
	attempts []time.Time
}

func (s *flakySender) Name() string                     { return s.name }
func (s *flakySender) CanDeliver(r core.Recipient) bool { return r.Email != "" }
func (s *flakySender) Deliver(context.Context, core.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, s.clock.Now())
	if len(s.attempts) <= s.failures {
		err := errors.New("connection refused")
		if s.permanent {
			return notify.Permanent(err)
		}
		return err
	}
	return nil
}

func (s *flakySender) Attempts() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.attempts...)
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []core.Alert
}

func (a *recordingAlerter) Alert(_ context.Context, al core.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
}

func (a *recordingAlerter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func message() core.Notification {
	return core.Notification{
		Kind:        core.NotifyOrderConfirmationRequest,
		Recipient:   core.Recipient{Name: "Distribuidora Sur", Email: "ventas@sur.example"},
		Subject:     "Pedido #1",
		Body:        "Confirme el pedido",
		ReferenceID: "order:1",
	}
}

func newDispatcher(st *memory.Store, clock *fakeClock, senders ...notify.Sender) (*notify.Dispatcher, *recordingAlerter) {
	cfg := notify.Config{RetryCount: 3, RetryInterval: 5 * time.Minute, BatchSize: 10}
	d := notify.NewDispatcher(st, st, clock, cfg, logger.Discard(), senders...)
	alerter := &recordingAlerter{}
	d.SetAlerter(alerter)
	return d, alerter
}

func TestDispatcher_RetriesUntilThirdAttemptSucceeds(t *testing.T) {
	st := memory.New()
	clock := &fakeClock{now: t0}
	sender := &flakySender{name: "email", failures: 2, clock: clock}
	d, alerter := newDispatcher(st, clock, sender)
	ctx := context.Background()

	del, err := d.Send(ctx, message())
	require.NoError(t, err)
	assert.Equal(t, core.DeliveryPending, del.Status)
	assert.Equal(t, 4, del.MaxAttempts)
	require.NotNil(t, del.NextAttemptAt)
	assert.Equal(t, t0.Add(5*time.Minute), *del.NextAttemptAt)

	// not yet due
	n, err := d.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(5 * time.Minute)
	n, err = d.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clock.Advance(5 * time.Minute)
	n, err = d.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetDelivery(ctx, del.ID)
	require.NoError(t, err)
	assert.Equal(t, core.DeliveryDelivered, got.Status)
	assert.Equal(t, 3, got.Attempts)
	assert.Empty(t, got.LastError)

	attempts := sender.Attempts()
	require.Len(t, attempts, 3)
	assert.Equal(t, 5*time.Minute, attempts[1].Sub(attempts[0]))
	assert.Equal(t, 5*time.Minute, attempts[2].Sub(attempts[1]))
	assert.Zero(t, alerter.Count())

	// nothing left to do
	clock.Advance(time.Hour)
	n, err = d.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_RetryPolicyFromParameters(t *testing.T) {
	st := memory.New()
	st.SetParameter(core.ParamNotifyRetryCount, "1")
	st.SetParameter(core.ParamNotifyRetryInterval, "15")
	clock := &fakeClock{now: t0}
	sender := &flakySender{name: "email", failures: 10, clock: clock}
	d, alerter := newDispatcher(st, clock, sender)
	ctx := context.Background()

	del, err := d.Send(ctx, message())
	require.NoError(t, err)
	assert.Equal(t, 2, del.MaxAttempts)
	assert.Equal(t, 15*time.Minute, del.Interval)

	clock.Advance(15 * time.Minute)
	_, err = d.ProcessDue(ctx)
	require.NoError(t, err)

	got, err := st.GetDelivery(ctx, del.ID)
	require.NoError(t, err)
	assert.Equal(t, core.DeliveryFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.False(t, got.Permanent)
	assert.Equal(t, 1, alerter.Count())

	failed, err := d.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, del.ID, failed[0].ID)
}

func TestDispatcher_PermanentFailureIsNotRetried(t *testing.T) {
	st := memory.New()
	clock := &fakeClock{now: t0}
	sender := &flakySender{name: "email", failures: 1, permanent: true, clock: clock}
	d, alerter := newDispatcher(st, clock, sender)
	reg := metrics.NewRegistry()
	d.SetMetrics(reg)

	del, err := d.Send(context.Background(), message())
	require.Error(t, err)
	assert.Equal(t, core.DeliveryFailed, del.Status)
	assert.True(t, del.Permanent)
	assert.Equal(t, 1, del.Attempts)
	assert.Equal(t, 1, alerter.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.NotificationResults.WithLabelValues("failed")))

	clock.Advance(time.Hour)
	n, err := d.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, sender.Attempts(), 1)
}

func TestDispatcher_NoChannelForRecipient(t *testing.T) {
	st := memory.New()
	clock := &fakeClock{now: t0}
	d, _ := newDispatcher(st, clock, &flakySender{name: "email", clock: clock})

	msg := message()
	msg.Recipient.Email = ""
	_, err := d.Send(context.Background(), msg)
	require.Error(t, err)
	assert.EqualError(t, err, notify.ErrNoChannel.Error())
}

func TestDispatcher_FallsBackToNextChannel(t *testing.T) {
	st := memory.New()
	clock := &fakeClock{now: t0}
	broken := &flakySender{name: "email", failures: 100, permanent: true, clock: clock}
	backup := &flakySender{name: "backup", clock: clock}
	d, _ := newDispatcher(st, clock, broken, backup)

	del, err := d.Send(context.Background(), message())
	require.NoError(t, err)
	assert.Equal(t, core.DeliveryDelivered, del.Status)
	assert.Len(t, broken.Attempts(), 1)
	assert.Len(t, backup.Attempts(), 1)
}

func TestDispatcher_MixedFailuresAreRetried(t *testing.T) {
	st := memory.New()
	clock := &fakeClock{now: t0}
	broken := &flakySender{name: "email", failures: 100, permanent: true, clock: clock}
	flaky := &flakySender{name: "backup", failures: 1, clock: clock}
	d, _ := newDispatcher(st, clock, broken, flaky)

	del, err := d.Send(context.Background(), message())
	require.NoError(t, err)
	assert.Equal(t, core.DeliveryPending, del.Status)
	assert.False(t, del.Permanent)
}

func TestDispatcher_Resend(t *testing.T) {
	st := memory.New()
	clock := &fakeClock{now: t0}
	sender := &flakySender{name: "email", failures: 1, permanent: true, clock: clock}
	d, _ := newDispatcher(st, clock, sender)
	ctx := context.Background()

	del, err := d.Send(ctx, message())
	require.Error(t, err)

	resent, err := d.Resend(ctx, del.ID)
	require.NoError(t, err)
	assert.Equal(t, core.DeliveryDelivered, resent.Status)
	assert.Equal(t, 1, resent.Attempts)

	_, err = d.Resend(ctx, del.ID)
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr), "want ValidationError, got %v", err)

	_, err = d.Resend(ctx, "missing")
	assert.True(t, core.IsNotFound(err))
}

// lossyStore drops the first outcome the dispatcher tries to persist.
type lossyStore struct {
	*memory.Store
	mu      sync.Mutex
	dropped bool
}

func (s *lossyStore) UpdateDelivery(ctx context.Context, d *core.Delivery) error {
	s.mu.Lock()
	drop := !s.dropped
	s.dropped = true
	s.mu.Unlock()
	if drop {
		return errors.New("connection reset by peer")
	}
	return s.Store.UpdateDelivery(ctx, d)
}

func TestDispatcher_UnrecordedFirstAttemptIsRetried(t *testing.T) {
	st := &lossyStore{Store: memory.New()}
	clock := &fakeClock{now: t0}
	sender := &flakySender{name: "email", failures: 1, clock: clock}
	cfg := notify.Config{RetryCount: 3, RetryInterval: 5 * time.Minute, BatchSize: 10}
	d := notify.NewDispatcher(st, st, clock, cfg, logger.Discard(), sender)
	ctx := context.Background()

	del, err := d.Send(ctx, message())
	require.Error(t, err)
	require.NotNil(t, del)

	stored, err := st.GetDelivery(ctx, del.ID)
	require.NoError(t, err)
	assert.Equal(t, core.DeliveryPending, stored.Status)
	require.NotNil(t, stored.NextAttemptAt)

	clock.Advance(time.Hour)
	n, err := d.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetDelivery(ctx, del.ID)
	require.NoError(t, err)
	assert.Equal(t, core.DeliveryDelivered, got.Status)
	assert.Len(t, sender.Attempts(), 2)
}

// ctxStore rejects updates on a cancelled context, as a pgx pool does.
type ctxStore struct{ *memory.Store }

func (s ctxStore) UpdateDelivery(ctx context.Context, d *core.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.UpdateDelivery(ctx, d)
}

func TestDispatcher_OutcomePersistsAfterCallerCancels(t *testing.T) {
	st := ctxStore{memory.New()}
	clock := &fakeClock{now: t0}
	sender := &flakySender{name: "email", clock: clock}
	cfg := notify.Config{RetryCount: 3, RetryInterval: 5 * time.Minute, BatchSize: 10}
	d := notify.NewDispatcher(st, st, clock, cfg, logger.Discard(), sender)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	del, err := d.Send(ctx, message())
	require.NoError(t, err)

	got, err := st.GetDelivery(context.Background(), del.ID)
	require.NoError(t, err)
	assert.Equal(t, core.DeliveryDelivered, got.Status)
	assert.Nil(t, got.NextAttemptAt)
}
