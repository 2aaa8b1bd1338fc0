package notify

import (
	"context"
	"log/slog"

	"cafeteria/internal/core"
)

// LogAlerter records operator alerts in the log only.
type LogAlerter struct {
	logger *slog.Logger
}

func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(_ context.Context, al core.Alert) {
	args := []any{"source", al.Source, "subject", al.Subject, "message", al.Message}
	if al.Err != nil {
		args = append(args, "error", al.Err)
	}
	a.logger.Error("operator alert", args...)
}

// OperatorAlerter logs every alert and forwards it to the operator contact
// configured in OPERADOR_EMAIL / OPERADOR_TELEGRAM. Forwarding is a single
// attempt over the raw senders so an undeliverable alert cannot re-enter the
// dispatcher's retry queue.
type OperatorAlerter struct {
	log     *LogAlerter
	params  core.ParameterStore
	senders []Sender
	logger  *slog.Logger
}

func NewOperatorAlerter(params core.ParameterStore, logger *slog.Logger, senders ...Sender) *OperatorAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OperatorAlerter{log: NewLogAlerter(logger), params: params, senders: senders, logger: logger}
}

func (a *OperatorAlerter) operator(ctx context.Context) (core.Recipient, error) {
	email, err := core.ParamString(ctx, a.params, core.ParamOperatorEmail, "")
	if err != nil {
		return core.Recipient{}, err
	}
	chat, err := core.ParamString(ctx, a.params, core.ParamOperatorTelegram, "")
	if err != nil {
		return core.Recipient{}, err
	}
	return core.Recipient{Name: "Operador", Email: email, TelegramChatID: chat}, nil
}

func (a *OperatorAlerter) Alert(ctx context.Context, al core.Alert) {
	a.log.Alert(ctx, al)

	to, err := a.operator(ctx)
	if err != nil {
		a.logger.Error("read operator contact", "error", err)
		return
	}
	body := al.Message
	if al.Err != nil {
		body += "\n\nError: " + al.Err.Error()
	}
	n := core.Notification{
		Kind:        core.NotifyOperatorAlert,
		Recipient:   to,
		Subject:     "[Alerta] " + al.Subject,
		Body:        body,
		ReferenceID: al.Source,
	}
	for _, s := range a.senders {
		if !s.CanDeliver(to) {
			continue
		}
		if err := s.Deliver(ctx, n); err != nil {
			a.logger.Error("forward operator alert", "channel", s.Name(), "error", err)
			continue
		}
		return
	}
}
