// Package engine wires the procurement engine from configuration: stores,
// notification channels, the inventory receipt sink, the scheduler and the
// application facade.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cafeteria/internal/app"
	"cafeteria/internal/config"
	"cafeteria/internal/core"
	"cafeteria/internal/events"
	"cafeteria/internal/metrics"
	"cafeteria/internal/notify"
	"cafeteria/internal/scheduler"
)

// Store is everything the engine persists. Both store/postgres and store/memory satisfy it.
type Store interface {
	core.MenuPlanStore
	core.RecipeReader
	core.StockStore
	core.SupplierStore
	core.OrderStore
	core.TokenStore
	core.AttendanceStore
	core.TeacherDirectory
	core.ForecastStore
	core.ParameterStore
	core.InsumoCatalog
	notify.DeliveryStore
}

// Options overrides the collaborators New would otherwise build from Config.
type Options struct {
	Clock   core.Clock
	Logger  *slog.Logger
	Metrics *metrics.Registry
	// Senders replaces the channels selected by NOTIFY_CHANNEL.
	Senders []notify.Sender
	// Receipts replaces the sink selected by INVENTORY_SINK.
	Receipts core.ReceiptPublisher
	// Ledger replaces the Pebble ledger at SCHEDULER_LEDGER_DIR.
	Ledger scheduler.Ledger
}

// Engine is a fully wired procurement engine.
type Engine struct {
	Service     app.ApplicationService
	Procurement *core.ProcurementService
	Lifecycle   *core.OrderLifecycle
	Attendance  *core.AttendanceService
	Dispatcher  *notify.Dispatcher
	Scheduler   *scheduler.Scheduler
	Metrics     *metrics.Registry

	cfg     *config.Config
	logger  *slog.Logger
	closers []func() error
}

// New builds the engine over st. Resources New opens (ledger, Kafka writer)
// are released by Close.
func New(cfg *config.Config, st Store, opts Options) (*Engine, error) {
	if cfg.TokenSecret == "" {
		return nil, errors.New("TOKEN_SECRET is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	e := &Engine{Metrics: reg, cfg: cfg, logger: logger}

	senders := opts.Senders
	if senders == nil {
		var err error
		if senders, err = buildSenders(cfg, logger); err != nil {
			return nil, err
		}
	}
	receipts := opts.Receipts
	if receipts == nil {
		var err error
		if receipts, err = e.buildReceipts(st); err != nil {
			return nil, err
		}
	}
	ledger := opts.Ledger
	if ledger == nil {
		pl, err := scheduler.OpenPebbleLedger(cfg.LedgerDir)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e.closers = append(e.closers, pl.Close)
		ledger = pl
	}

	notifyCfg := notify.DefaultConfig()
	if cfg.NotifyPoll > 0 {
		notifyCfg.PollInterval = cfg.NotifyPoll
	}
	alerter := notify.NewOperatorAlerter(st, logger.With("component", "alerts"), senders...)
	e.Dispatcher = notify.NewDispatcher(st, st, clock, notifyCfg, logger.With("component", "notify"), senders...)
	e.Dispatcher.SetAlerter(alerter)
	e.Dispatcher.SetMetrics(reg)

	tokens := core.NewTokenService(st, core.NewTokenSigner(cfg.TokenSecret), clock)
	e.Lifecycle = core.NewOrderLifecycle(core.LifecycleDeps{
		Orders:        st,
		Suppliers:     st,
		Catalog:       st,
		Tokens:        tokens,
		Notifier:      e.Dispatcher,
		Receipts:      receipts,
		Params:        st,
		Clock:         clock,
		Metrics:       reg,
		Logger:        logger.With("component", "orders"),
		PublicBaseURL: cfg.PublicBaseURL,
	})
	e.Procurement = core.NewProcurementService(core.ProcurementDeps{
		Menu:      st,
		Recipes:   st,
		Catalog:   st,
		Stock:     st,
		Suppliers: st,
		Orders:    st,
		Forecasts: st,
		Params:    st,
		Lifecycle: e.Lifecycle,
		Clock:     clock,
		Location:  cfg.Timezone,
		Metrics:   reg,
		Logger:    logger.With("component", "procurement"),
	})
	e.Attendance = core.NewAttendanceService(tokens, st, st, e.Dispatcher, clock,
		logger.With("component", "attendance"), cfg.PublicBaseURL)

	e.Scheduler = scheduler.New(st, ledger, clock, scheduler.Options{
		Location: cfg.Timezone,
		Tick:     cfg.Tick,
		Notifier: e.Dispatcher,
		Alerter:  alerter,
		Metrics:  reg,
		Logger:   logger,
	}, Jobs(e.Procurement)...)

	e.Service = app.NewAppService(e.Procurement, e.Lifecycle, e.Attendance, e.Scheduler, e.Dispatcher)
	return e, nil
}

// Jobs returns the scheduled jobs backed by p.
func Jobs(p *core.ProcurementService) []scheduler.Job {
	return []scheduler.Job{
		{Name: scheduler.JobInsumoRefresh, Prefix: scheduler.PrefixInsumoRefresh, Run: p.RunInsumoRefresh},
		{Name: scheduler.JobAutoOrder, Prefix: scheduler.PrefixAutoOrder, Run: p.RunAutoOrder},
		{Name: scheduler.JobPlanFinalization, Prefix: scheduler.PrefixPlanFinalization, Run: p.RunPlanFinalization},
	}
}

func buildSenders(cfg *config.Config, logger *slog.Logger) ([]notify.Sender, error) {
	var senders []notify.Sender
	for _, ch := range cfg.NotifyChannels() {
		switch ch {
		case "email":
			senders = append(senders, notify.NewSMTPSender(notify.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				From:     cfg.SMTPFrom,
			}))
		case "telegram":
			senders = append(senders, notify.NewTelegramSender(cfg.TelegramAPIURL, cfg.TelegramBotToken, nil))
		case "log":
			senders = append(senders, notify.NewLogSender(logger.With("component", "notify")))
		default:
			return nil, fmt.Errorf("unknown notification channel %q", ch)
		}
	}
	if len(senders) == 0 {
		senders = append(senders, notify.NewLogSender(logger.With("component", "notify")))
	}
	return senders, nil
}

// buildReceipts selects where confirmed lines go. Every sink also logs.
func (e *Engine) buildReceipts(st Store) (core.ReceiptPublisher, error) {
	logPub := events.NewLogPublisher(e.logger.With("component", "receipts"))
	switch e.cfg.InventorySink {
	case "kafka":
		k := events.NewKafkaPublisher(e.cfg.KafkaBrokers, e.cfg.KafkaReceiptsTopic)
		e.closers = append(e.closers, k.Close)
		return events.MultiPublisher{k, logPub}, nil
	case "db", "":
		return events.MultiPublisher{events.NewStockReceiver(st), logPub}, nil
	case "log":
		return logPub, nil
	default:
		return nil, fmt.Errorf("unknown inventory sink %q", e.cfg.InventorySink)
	}
}

// Run drives the notification retry loop and, when enabled, the scheduler
// until ctx is cancelled, then waits for in-flight jobs.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.Dispatcher.Run(ctx)
	}()
	if e.cfg.Scheduler {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Scheduler.Run(ctx)
		}()
	} else {
		e.logger.Info("scheduler disabled")
	}
	wg.Wait()
}

// Close releases the resources New opened.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
