package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafeteria/internal/core"
	"cafeteria/internal/logger"
	"cafeteria/internal/scheduler"
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

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

type alerts struct {
	mu   sync.Mutex
	list []core.Alert
}

func (a *alerts) Alert(_ context.Context, al core.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.list = append(a.list, al)
}

func (a *alerts) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.list)
}

type notices struct {
	mu   sync.Mutex
	sent []core.Notification
}

func (n *notices) Send(_ context.Context, msg core.Notification) (*core.Delivery, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return &core.Delivery{Status: core.DeliveryDelivered}, nil
}

// monday0800 is a Monday at the configured run time.
var monday0800 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func enable(st *memory.Store, prefix, day, at string) {
	st.SetParameter(prefix+"_HABILITADO", "true")
	st.SetParameter(prefix+"_DIA", day)
	st.SetParameter(prefix+"_HORA", at)
}

type countingJob struct {
	calls atomic.Int32
	fail  atomic.Int32 // remaining failures
}

func (j *countingJob) run(context.Context) (string, error) {
	j.calls.Add(1)
	if j.fail.Load() > 0 {
		j.fail.Add(-1)
		return "", errors.New("database unavailable")
	}
	return "ok", nil
}

func newScheduler(st *memory.Store, ledger scheduler.Ledger, clock *fakeClock, opts scheduler.Options, jobs ...scheduler.Job) *scheduler.Scheduler {
	opts.Logger = logger.Discard()
	if opts.Tick == 0 {
		opts.Tick = time.Minute
	}
	return scheduler.New(st, ledger, clock, opts, jobs...)
}

func TestScheduler_RunsOncePerSlot(t *testing.T) {
	st := memory.New()
	enable(st, scheduler.PrefixAutoOrder, "lunes", "08:00")
	clock := &fakeClock{now: monday0800}
	ledger := scheduler.NewMemoryLedger()
	job := &countingJob{}
	jobs := []scheduler.Job{{Name: scheduler.JobAutoOrder, Prefix: scheduler.PrefixAutoOrder, Run: job.run}}

	s := newScheduler(st, ledger, clock, scheduler.Options{}, jobs...)
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(1), job.calls.Load())

	clock.Advance(30 * time.Second)
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(1), job.calls.Load())

	// a restart inside the same slot shares the ledger
	restarted := newScheduler(st, ledger, clock, scheduler.Options{}, jobs...)
	restarted.Tick(context.Background())
	restarted.Wait()
	assert.Equal(t, int32(1), job.calls.Load())

	// next week
	clock.Set(monday0800.AddDate(0, 0, 7))
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(2), job.calls.Load())
}

func TestScheduler_LateTickStillRunsThatDay(t *testing.T) {
	st := memory.New()
	enable(st, scheduler.PrefixAutoOrder, "lunes", "08:00")
	// the process was down across the slot and came back mid-morning
	clock := &fakeClock{now: monday0800.Add(2*time.Hour + 17*time.Minute)}
	ledger := scheduler.NewMemoryLedger()
	job := &countingJob{}
	jobs := []scheduler.Job{{Name: scheduler.JobAutoOrder, Prefix: scheduler.PrefixAutoOrder, Run: job.run}}

	s := newScheduler(st, ledger, clock, scheduler.Options{}, jobs...)
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(1), job.calls.Load())

	for range 5 {
		clock.Advance(time.Hour)
		s.Tick(context.Background())
		s.Wait()
	}
	assert.Equal(t, int32(1), job.calls.Load())

	restarted := newScheduler(st, ledger, clock, scheduler.Options{}, jobs...)
	restarted.Tick(context.Background())
	restarted.Wait()
	assert.Equal(t, int32(1), job.calls.Load())

	// tuesday is not a run day
	clock.Set(monday0800.AddDate(0, 0, 1).Add(time.Hour))
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestScheduler_SlotDeferredWhileBusyRunsLaterThatDay(t *testing.T) {
	st := memory.New()
	enable(st, scheduler.PrefixPlanFinalization, "todos", "08:00")
	st.SetParameter("CANTIDAD_REINTENTOS_"+scheduler.PrefixPlanFinalization, "0")
	clock := &fakeClock{now: monday0800}
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	run := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
		return "ok", nil
	}

	s := newScheduler(st, scheduler.NewMemoryLedger(), clock, scheduler.Options{},
		scheduler.Job{Name: scheduler.JobPlanFinalization, Prefix: scheduler.PrefixPlanFinalization, Run: run})
	s.Tick(context.Background())
	<-started

	// monday's run overruns into tuesday's slot
	clock.Set(monday0800.AddDate(0, 0, 1))
	s.Tick(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	s.Wait()
	clock.Advance(time.Minute)
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(2), calls.Load())

	clock.Advance(time.Minute)
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestScheduler_SkipsOtherDaysAndDisabledJobs(t *testing.T) {
	st := memory.New()
	enable(st, scheduler.PrefixAutoOrder, "martes", "08:00")
	st.SetParameter(scheduler.PrefixInsumoRefresh+"_HORA", "08:00")
	clock := &fakeClock{now: monday0800}
	auto, refresh := &countingJob{}, &countingJob{}

	s := newScheduler(st, scheduler.NewMemoryLedger(), clock, scheduler.Options{},
		scheduler.Job{Name: scheduler.JobAutoOrder, Prefix: scheduler.PrefixAutoOrder, Run: auto.run},
		scheduler.Job{Name: scheduler.JobInsumoRefresh, Prefix: scheduler.PrefixInsumoRefresh, Run: refresh.run},
	)
	s.Tick(context.Background())
	s.Wait()
	assert.Zero(t, auto.calls.Load())
	assert.Zero(t, refresh.calls.Load())

	clock.Set(monday0800.AddDate(0, 0, 1))
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(1), auto.calls.Load())
	assert.Zero(t, refresh.calls.Load())
}

func TestScheduler_RetriesAfterInterval(t *testing.T) {
	st := memory.New()
	enable(st, scheduler.PrefixPlanFinalization, "todos", "08:00")
	st.SetParameter("CANTIDAD_REINTENTOS_"+scheduler.PrefixPlanFinalization, "2")
	st.SetParameter("INTERVALO_REINTENTOS_"+scheduler.PrefixPlanFinalization, "10")
	clock := &fakeClock{now: monday0800}
	job := &countingJob{}
	job.fail.Store(2)
	al := &alerts{}

	s := newScheduler(st, scheduler.NewMemoryLedger(), clock, scheduler.Options{Alerter: al},
		scheduler.Job{Name: scheduler.JobPlanFinalization, Prefix: scheduler.PrefixPlanFinalization, Run: job.run})

	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(1), job.calls.Load())
	assert.True(t, s.Retrying(scheduler.JobPlanFinalization))

	clock.Advance(5 * time.Minute)
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(1), job.calls.Load())

	clock.Advance(5 * time.Minute)
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(2), job.calls.Load())

	clock.Advance(10 * time.Minute)
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(3), job.calls.Load())
	assert.False(t, s.Retrying(scheduler.JobPlanFinalization))
	assert.Zero(t, al.Len())
}

func TestScheduler_AbandonsAndAlertsWhenRetriesRunOut(t *testing.T) {
	st := memory.New()
	enable(st, scheduler.PrefixPlanFinalization, "", "08:00")
	st.SetParameter("CANTIDAD_REINTENTOS_"+scheduler.PrefixPlanFinalization, "1")
	st.SetParameter("INTERVALO_REINTENTOS_"+scheduler.PrefixPlanFinalization, "1")
	clock := &fakeClock{now: monday0800}
	job := &countingJob{}
	job.fail.Store(100)
	al := &alerts{}

	s := newScheduler(st, scheduler.NewMemoryLedger(), clock, scheduler.Options{Alerter: al},
		scheduler.Job{Name: scheduler.JobPlanFinalization, Prefix: scheduler.PrefixPlanFinalization, Run: job.run})

	s.Tick(context.Background())
	s.Wait()
	clock.Advance(time.Minute)
	s.Tick(context.Background())
	s.Wait()

	assert.Equal(t, int32(2), job.calls.Load())
	assert.False(t, s.Retrying(scheduler.JobPlanFinalization))
	assert.Equal(t, 1, al.Len())

	// nothing more runs until the next slot
	clock.Advance(time.Minute)
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(2), job.calls.Load())
}

func TestScheduler_PanicDoesNotStopOtherJobs(t *testing.T) {
	st := memory.New()
	enable(st, scheduler.PrefixAutoOrder, "lunes", "08:00")
	enable(st, scheduler.PrefixPlanFinalization, "todos", "08:00")
	st.SetParameter("CANTIDAD_REINTENTOS_"+scheduler.PrefixAutoOrder, "0")
	clock := &fakeClock{now: monday0800}
	other := &countingJob{}
	al := &alerts{}

	s := newScheduler(st, scheduler.NewMemoryLedger(), clock, scheduler.Options{Alerter: al},
		scheduler.Job{Name: scheduler.JobAutoOrder, Prefix: scheduler.PrefixAutoOrder, Run: func(context.Context) (string, error) {
			panic("nil menu")
		}},
		scheduler.Job{Name: scheduler.JobPlanFinalization, Prefix: scheduler.PrefixPlanFinalization, Run: other.run},
	)
	s.Tick(context.Background())
	s.Wait()

	assert.Equal(t, int32(1), other.calls.Load())
	assert.Equal(t, 1, al.Len())
}

func TestScheduler_NotifiesOperatorOnSuccess(t *testing.T) {
	st := memory.New()
	enable(st, scheduler.PrefixInsumoRefresh, "lunes", "08:00")
	st.SetParameter("NOTIFICAR_EXITO_"+scheduler.PrefixInsumoRefresh, "si")
	st.SetParameter(core.ParamOperatorEmail, "operador@escuela.example")
	clock := &fakeClock{now: monday0800}
	n := &notices{}
	job := &countingJob{}

	s := newScheduler(st, scheduler.NewMemoryLedger(), clock, scheduler.Options{Notifier: n},
		scheduler.Job{Name: scheduler.JobInsumoRefresh, Prefix: scheduler.PrefixInsumoRefresh, Run: job.run})
	s.Tick(context.Background())
	s.Wait()

	require.Len(t, n.sent, 1)
	assert.Equal(t, core.NotifyJobSucceeded, n.sent[0].Kind)
	assert.Equal(t, "operador@escuela.example", n.sent[0].Recipient.Email)
	assert.Equal(t, "ok", n.sent[0].Body)
}

func TestScheduler_RunNow(t *testing.T) {
	st := memory.New()
	enable(st, scheduler.PrefixAutoOrder, "lunes", "08:00")
	clock := &fakeClock{now: monday0800}
	release := make(chan struct{})
	started := make(chan struct{})
	blocking := func(context.Context) (string, error) {
		close(started)
		<-release
		return "done", nil
	}

	s := newScheduler(st, scheduler.NewMemoryLedger(), clock, scheduler.Options{},
		scheduler.Job{Name: scheduler.JobAutoOrder, Prefix: scheduler.PrefixAutoOrder, Run: blocking})

	_, err := s.RunNow(context.Background(), "unknown")
	assert.True(t, core.IsNotFound(err))

	s.Tick(context.Background())
	<-started
	_, err = s.RunNow(context.Background(), scheduler.JobAutoOrder)
	assert.ErrorIs(t, err, scheduler.ErrJobRunning)
	close(release)
	s.Wait()

	job := &countingJob{}
	s = newScheduler(st, scheduler.NewMemoryLedger(), clock, scheduler.Options{},
		scheduler.Job{Name: scheduler.JobAutoOrder, Prefix: scheduler.PrefixAutoOrder, Run: job.run})
	summary, err := s.RunNow(context.Background(), scheduler.JobAutoOrder)
	require.NoError(t, err)
	assert.Equal(t, "ok", summary)
	assert.Equal(t, []string{scheduler.JobAutoOrder}, s.Jobs())
}

func TestScheduler_InvalidScheduleIsSkipped(t *testing.T) {
	st := memory.New()
	enable(st, scheduler.PrefixAutoOrder, "lunes", "8h")
	clock := &fakeClock{now: monday0800}
	job := &countingJob{}

	s := newScheduler(st, scheduler.NewMemoryLedger(), clock, scheduler.Options{},
		scheduler.Job{Name: scheduler.JobAutoOrder, Prefix: scheduler.PrefixAutoOrder, Run: job.run})
	s.Tick(context.Background())
	s.Wait()
	assert.Zero(t, job.calls.Load())
}

func TestScheduler_RespectsLocation(t *testing.T) {
	st := memory.New()
	enable(st, scheduler.PrefixAutoOrder, "lunes", "08:00")
	loc := time.FixedZone("UTC-3", -3*60*60)
	// 08:00 UTC is 05:00 local
	clock := &fakeClock{now: monday0800}
	job := &countingJob{}

	s := newScheduler(st, scheduler.NewMemoryLedger(), clock, scheduler.Options{Location: loc},
		scheduler.Job{Name: scheduler.JobAutoOrder, Prefix: scheduler.PrefixAutoOrder, Run: job.run})
	s.Tick(context.Background())
	s.Wait()
	assert.Zero(t, job.calls.Load())

	clock.Advance(3 * time.Hour)
	s.Tick(context.Background())
	s.Wait()
	assert.Equal(t, int32(1), job.calls.Load())
}
