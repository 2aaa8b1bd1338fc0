package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cafeteria/internal/core"
	"cafeteria/internal/metrics"
)

// Job names and their parameter prefixes.
const (
	JobInsumoRefresh       = "weekly-insumo-refresh"
	JobAutoOrder           = "weekly-auto-order"
	JobPlanFinalization    = "daily-plan-finalization"
	PrefixInsumoRefresh    = "ACTUALIZACION_INSUMOS"
	PrefixAutoOrder        = "PEDIDO_AUTOMATICO"
	PrefixPlanFinalization = "FINALIZACION_PLAN"
)

// ErrJobRunning is returned by RunNow while the same job is executing.
var ErrJobRunning = errors.New("job is already running")

// JobFunc runs one job and returns a human-readable summary.
type JobFunc func(ctx context.Context) (string, error)

// Job binds a name and parameter prefix to its body.
type Job struct {
	Name   string
	Prefix string
	Run    JobFunc
}

type pendingRetry struct {
	attempt  int
	at       time.Time
	schedule Schedule
}

// Scheduler is the process-wide timer loop. Each tick reloads every job's
// schedule from the parameter store, claims due slots in the ledger and
// launches the job in its own goroutine; failures are retried on later ticks
// and never stop the loop.
type Scheduler struct {
	jobs     []Job
	params   core.ParameterStore
	ledger   Ledger
	clock    core.Clock
	loc      *time.Location
	tick     time.Duration
	notifier core.Notifier
	alerter  core.Alerter
	metrics  *metrics.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]bool
	pending map[string]pendingRetry
	claimed map[string]string // job -> last slot this process claimed
	wg      sync.WaitGroup
}

// Options carries the scheduler's optional collaborators.
type Options struct {
	Location *time.Location
	Tick     time.Duration
	// Notifier receives success summaries for jobs with NOTIFICAR_EXITO set.
	Notifier core.Notifier
	Alerter  core.Alerter
	Metrics  *metrics.Registry
	Logger   *slog.Logger
}

func New(params core.ParameterStore, ledger Ledger, clock core.Clock, opts Options, jobs ...Job) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		jobs:     jobs,
		params:   params,
		ledger:   ledger,
		clock:    clock,
		loc:      opts.Location,
		tick:     opts.Tick,
		notifier: opts.Notifier,
		alerter:  opts.Alerter,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "scheduler"),
		running:  make(map[string]bool),
		pending:  make(map[string]pendingRetry),
		claimed:  make(map[string]string),
	}
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

func (s *Scheduler) job(name string) (Job, bool) {
	for _, j := range s.jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

// Run ticks immediately and then every tick interval until ctx is cancelled,
// then waits for in-flight jobs.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "tick", s.tick, "timezone", s.loc.String(), "jobs", s.Jobs())
	s.Tick(ctx)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Wait()
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Wait blocks until every job launched by Tick has finished.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Tick evaluates every job once against the current time. It never blocks on
// job execution.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now().In(s.loc)
	for _, job := range s.jobs {
		s.tickJob(ctx, job, now)
	}
}

func (s *Scheduler) tickJob(ctx context.Context, job Job, now time.Time) {
	s.mu.Lock()
	if p, ok := s.pending[job.Name]; ok && !now.Before(p.at) && !s.running[job.Name] {
		delete(s.pending, job.Name)
		s.running[job.Name] = true
		s.mu.Unlock()
		s.metrics.JobRetry(job.Name)
		s.logger.Info("retrying job", "job", job.Name, "attempt", p.attempt)
		s.launch(ctx, job, p.schedule, p.attempt)
		return
	}
	busy := s.running[job.Name]
	key := SlotKey(job.Name, now)
	done := s.claimed[job.Name] == key
	s.mu.Unlock()
	if done {
		return
	}

	sched, err := LoadSchedule(ctx, s.params, job.Name, job.Prefix)
	if err != nil {
		s.logger.Error("invalid job schedule", "job", job.Name, "error", err)
		return
	}
	if !sched.Enabled || !sched.Due(now) {
		return
	}
	if busy {
		s.logger.Warn("job still running, slot deferred", "job", job.Name, "slot", key)
		return
	}

	claimed, err := s.ledger.Claim(ctx, key)
	if err != nil {
		s.logger.Error("claim job slot", "job", job.Name, "slot", key, "error", err)
		return
	}

	s.mu.Lock()
	s.claimed[job.Name] = key
	if !claimed || s.running[job.Name] {
		s.mu.Unlock()
		return
	}
	s.running[job.Name] = true
	s.mu.Unlock()
	s.logger.Info("job slot claimed", "job", job.Name, "slot", key)
	s.launch(ctx, job, sched, 1)
}

func (s *Scheduler) launch(ctx context.Context, job Job, sched Schedule, attempt int) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()
		summary, err := execute(ctx, job)
		s.finish(ctx, job, sched, attempt, summary, err, time.Since(start))
	}()
}

// execute runs the job body, turning a panic into an error.
func execute(ctx context.Context, job Job) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) finish(ctx context.Context, job Job, sched Schedule, attempt int, summary string, err error, elapsed time.Duration) {
	s.mu.Lock()
	delete(s.running, job.Name)
	retry := err != nil && attempt <= sched.RetryCount
	if retry {
		s.pending[job.Name] = pendingRetry{
			attempt:  attempt + 1,
			at:       s.clock.Now().Add(sched.RetryInterval),
			schedule: sched,
		}
	}
	s.mu.Unlock()

	switch {
	case err == nil:
		s.metrics.JobRun(job.Name, "success", elapsed)
		s.logger.Info("job succeeded", "job", job.Name, "attempt", attempt, "summary", summary, "elapsed", elapsed)
		if sched.NotifyOnSuccess {
			s.notifySuccess(ctx, job, summary)
		}
	case retry:
		s.metrics.JobRun(job.Name, "failure", elapsed)
		s.logger.Warn("job failed, retry scheduled", "job", job.Name, "attempt", attempt,
			"retries_left", sched.RetryCount-attempt+1, "retry_in", sched.RetryInterval, "error", err)
	default:
		s.metrics.JobRun(job.Name, "abandoned", elapsed)
		s.logger.Error("job abandoned", "job", job.Name, "attempts", attempt, "error", err)
		if s.alerter != nil {
			s.alerter.Alert(ctx, core.Alert{
				Source:  "scheduler",
				Subject: fmt.Sprintf("Tarea %s abandonada", job.Name),
				Message: fmt.Sprintf("La tarea %s falló %d veces y no se reintentará hasta el próximo horario.", job.Name, attempt),
				Err:     err,
			})
		}
	}
}

func (s *Scheduler) notifySuccess(ctx context.Context, job Job, summary string) {
	if s.notifier == nil {
		return
	}
	email, _ := core.ParamString(ctx, s.params, core.ParamOperatorEmail, "")
	chat, _ := core.ParamString(ctx, s.params, core.ParamOperatorTelegram, "")
	_, err := s.notifier.Send(ctx, core.Notification{
		Kind:        core.NotifyJobSucceeded,
		Recipient:   core.Recipient{Name: "Operador", Email: email, TelegramChatID: chat},
		Subject:     fmt.Sprintf("Tarea %s completada", job.Name),
		Body:        summary,
		ReferenceID: "job:" + job.Name,
	})
	if err != nil {
		s.logger.Warn("job success notification failed", "job", job.Name, "error", err)
	}
}

// Retrying reports whether a retry is queued for job, for inspection and tests.
func (s *Scheduler) Retrying(job string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[job]
	return ok
}

// RunNow executes job synchronously for a manual trigger. It bypasses the
// schedule and the ledger but never overlaps a scheduled run of the same job.
func (s *Scheduler) RunNow(ctx context.Context, name string) (string, error) {
	job, ok := s.job(name)
	if !ok {
		return "", &core.NotFoundError{Entity: "job", ID: name}
	}
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		return "", fmt.Errorf("%s: %w", name, ErrJobRunning)
	}
	s.running[name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	start := time.Now()
	summary, err := execute(ctx, job)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.JobRun(name, outcome, time.Since(start))
	s.logger.Info("manual job run", "job", name, "outcome", outcome, "summary", summary)
	return summary, err
}
