package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cafeteria/internal/core"
	"cafeteria/internal/metrics"
)

// Sender delivers a notification over one channel.
type Sender interface {
	Name() string
	// CanDeliver reports whether the recipient has an address for this channel.
	CanDeliver(r core.Recipient) bool
	Deliver(ctx context.Context, n core.Notification) error
}

// DeliveryStore persists deliveries between attempts so retries survive restarts.
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, d *core.Delivery) error
	UpdateDelivery(ctx context.Context, d *core.Delivery) error
	GetDelivery(ctx context.Context, id string) (*core.Delivery, error)
	// DueDeliveries returns PENDING deliveries whose NextAttemptAt is at or before now.
	DueDeliveries(ctx context.Context, now time.Time, limit int) ([]core.Delivery, error)
	ListDeliveries(ctx context.Context, status core.DeliveryStatus) ([]core.Delivery, error)
}

// Config holds the retry defaults used when the parameter store has no override.
type Config struct {
	RetryCount    int
	RetryInterval time.Duration
	PollInterval  time.Duration
	BatchSize     int
}

func DefaultConfig() Config {
	return Config{RetryCount: 3, RetryInterval: 5 * time.Minute, PollInterval: 30 * time.Second, BatchSize: 50}
}

// Dispatcher wraps the senders with at-least-once delivery. The first attempt
// runs inside Send; a transient failure re-queues the delivery for
// ProcessDue after the retry interval instead of sleeping.
type Dispatcher struct {
	store   DeliveryStore
	senders []Sender
	params  core.ParameterStore
	clock   core.Clock
	alerter core.Alerter
	metrics *metrics.Registry
	logger  *slog.Logger
	cfg     Config

	processing sync.Mutex
}

func NewDispatcher(store DeliveryStore, params core.ParameterStore, clock core.Clock, cfg Config, logger *slog.Logger, senders ...Sender) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Dispatcher{
		store:   store,
		senders: senders,
		params:  params,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With("component", "notify"),
	}
}

// SetAlerter registers where exhausted and permanent failures are reported.
func (d *Dispatcher) SetAlerter(a core.Alerter) { d.alerter = a }

func (d *Dispatcher) SetMetrics(m *metrics.Registry) { d.metrics = m }

// retryPolicy reads CANTIDAD_REINTENTOS_NOTIFICACION and
// INTERVALO_REINTENTOS_NOTIFICACION (minutes), falling back to Config.
func (d *Dispatcher) retryPolicy(ctx context.Context) (int, time.Duration) {
	count, interval := d.cfg.RetryCount, d.cfg.RetryInterval
	if d.params == nil {
		return count, interval
	}
	if n, err := core.ParamInt(ctx, d.params, core.ParamNotifyRetryCount, count); err == nil && n >= 0 {
		count = n
	} else if err != nil {
		d.logger.Warn("invalid notification retry count, using default", "error", err)
	}
	if m, err := core.ParamInt(ctx, d.params, core.ParamNotifyRetryInterval, -1); err == nil && m >= 0 {
		interval = time.Duration(m) * time.Minute
	} else if err != nil {
		d.logger.Warn("invalid notification retry interval, using default", "error", err)
	}
	return count, interval
}

// Send records a delivery and makes the first attempt. It returns an error only
// when the delivery has definitively failed; a re-queued delivery is returned
// with status PENDING and its last error.
func (d *Dispatcher) Send(ctx context.Context, n core.Notification) (*core.Delivery, error) {
	retries, interval := d.retryPolicy(ctx)
	now := d.clock.Now()
	// The row is due one interval out until the first attempt records its
	// outcome, so an attempt that never persists is picked up by ProcessDue.
	lease := now.Add(interval)
	del := &core.Delivery{
		ID:            uuid.NewString(),
		Notification:  n,
		Status:        core.DeliveryPending,
		MaxAttempts:   1 + retries,
		Interval:      interval,
		NextAttemptAt: &lease,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := d.store.CreateDelivery(ctx, del); err != nil {
		return nil, fmt.Errorf("record notification delivery: %w", err)
	}
	if err := d.attempt(ctx, del); err != nil {
		return del, err
	}
	if del.Status == core.DeliveryFailed {
		return del, errors.New(del.LastError)
	}
	return del, nil
}

// ProcessDue retries every delivery whose next attempt time has passed and
// returns how many it attempted.
func (d *Dispatcher) ProcessDue(ctx context.Context) (int, error) {
	d.processing.Lock()
	defer d.processing.Unlock()

	due, err := d.store.DueDeliveries(ctx, d.clock.Now(), d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due deliveries: %w", err)
	}
	for i := range due {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		del := due[i]
		if err := d.attempt(ctx, &del); err != nil {
			d.logger.Error("persist delivery attempt", "delivery_id", del.ID, "error", err)
		}
	}
	return len(due), nil
}

// Resend restarts a NOTIFICATION_FAILED delivery with a fresh attempt budget.
func (d *Dispatcher) Resend(ctx context.Context, id string) (*core.Delivery, error) {
	d.processing.Lock()
	defer d.processing.Unlock()

	del, err := d.store.GetDelivery(ctx, id)
	if err != nil {
		return nil, err
	}
	if del.Status != core.DeliveryFailed {
		return nil, &core.ValidationError{Field: "status", Message: fmt.Sprintf("delivery %s is %s, only %s deliveries can be resent", id, del.Status, core.DeliveryFailed)}
	}
	retries, interval := d.retryPolicy(ctx)
	del.Status = core.DeliveryPending
	del.Attempts = 0
	del.MaxAttempts = 1 + retries
	del.Interval = interval
	del.Permanent = false
	lease := d.clock.Now().Add(interval)
	del.NextAttemptAt = &lease
	if err := d.store.UpdateDelivery(ctx, del); err != nil {
		return nil, fmt.Errorf("requeue delivery %s: %w", id, err)
	}
	if err := d.attempt(ctx, del); err != nil {
		return del, err
	}
	return del, nil
}

// Failed lists deliveries awaiting operator action.
func (d *Dispatcher) Failed(ctx context.Context) ([]core.Delivery, error) {
	return d.store.ListDeliveries(ctx, core.DeliveryFailed)
}

// Run processes due deliveries every PollInterval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.ProcessDue(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("process due notifications", "error", err)
			}
		}
	}
}

// attempt makes one delivery attempt and persists the outcome. The returned
// error is a store failure; delivery failures are recorded on del.
func (d *Dispatcher) attempt(ctx context.Context, del *core.Delivery) error {
	del.Attempts++
	sendErr := d.deliver(ctx, del.Notification)
	now := d.clock.Now()
	del.UpdatedAt = now

	switch {
	case sendErr == nil:
		del.Status = core.DeliveryDelivered
		del.NextAttemptAt = nil
		del.LastError = ""
		d.metrics.NotificationAttempt("delivered")
		d.logger.Info("notification delivered", "delivery_id", del.ID, "kind", del.Notification.Kind, "attempts", del.Attempts)
	case IsPermanent(sendErr) || del.Attempts >= del.MaxAttempts:
		del.Status = core.DeliveryFailed
		del.NextAttemptAt = nil
		del.LastError = sendErr.Error()
		del.Permanent = IsPermanent(sendErr)
		d.metrics.NotificationAttempt("failed")
		d.logger.Error("notification failed", "delivery_id", del.ID, "kind", del.Notification.Kind,
			"attempts", del.Attempts, "permanent", del.Permanent, "error", sendErr)
	default:
		next := now.Add(del.Interval)
		del.NextAttemptAt = &next
		del.LastError = sendErr.Error()
		d.metrics.NotificationAttempt("retry")
		d.logger.Warn("notification attempt failed, re-queued", "delivery_id", del.ID, "kind", del.Notification.Kind,
			"attempt", del.Attempts, "max_attempts", del.MaxAttempts, "next_attempt_at", next, "error", sendErr)
	}

	// The send already happened; record it even if the caller has gone away.
	if err := d.store.UpdateDelivery(context.WithoutCancel(ctx), del); err != nil {
		return fmt.Errorf("update delivery %s: %w", del.ID, err)
	}
	if del.Status == core.DeliveryFailed && d.alerter != nil {
		d.alerter.Alert(ctx, core.Alert{
			Source:  "notify",
			Subject: fmt.Sprintf("Notificación %s no entregada", del.Notification.ReferenceID),
			Message: fmt.Sprintf("%s para %s tras %d intentos", del.Notification.Kind, del.Notification.Recipient.Name, del.Attempts),
			Err:     sendErr,
		})
	}
	return nil
}

// deliver tries each sender that can reach the recipient until one succeeds.
// The combined failure is permanent only when every channel failed permanently.
func (d *Dispatcher) deliver(ctx context.Context, n core.Notification) error {
	var errs []error
	allPermanent := true
	for _, s := range d.senders {
		if !s.CanDeliver(n.Recipient) {
			continue
		}
		err := s.Deliver(ctx, n)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		if !IsPermanent(err) {
			allPermanent = false
		}
	}
	if len(errs) == 0 {
		return Permanent(ErrNoChannel)
	}
	joined := errors.Join(errs...)
	if allPermanent {
		return Permanent(joined)
	}
	// Flatten so a permanent failure on one channel does not mark the whole attempt permanent.
	return errors.New(joined.Error())
}
