package core

import (
	"context"
	"time"
)

// NotificationKind classifies outbound messages.
type NotificationKind string

const (
	NotifyOrderConfirmationRequest NotificationKind = "ORDER_CONFIRMATION_REQUEST"
	NotifyAttendanceRequest        NotificationKind = "ATTENDANCE_REQUEST"
	NotifyJobSucceeded             NotificationKind = "JOB_SUCCEEDED"
	NotifyOperatorAlert            NotificationKind = "OPERATOR_ALERT"
)

// Recipient is where a notification is delivered. Senders pick the address they understand.
type Recipient struct {
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}

// Notification is one message to deliver at least once.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Recipient   Recipient        `json:"recipient"`
	Subject     string           `json:"subject"`
	Body        string           `json:"body"`
	Link        string           `json:"link,omitempty"`
	ReferenceID string           `json:"reference_id,omitempty"`
}

// DeliveryStatus is the outcome of a notification so far.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "NOTIFICATION_FAILED"
)

// Delivery tracks the attempts made for one notification.
type Delivery struct {
	ID            string         `json:"id"`
	Notification  Notification   `json:"notification"`
	Status        DeliveryStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	MaxAttempts   int            `json:"max_attempts"`
	Interval      time.Duration  `json:"interval"`
	NextAttemptAt *time.Time     `json:"next_attempt_at,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	Permanent     bool           `json:"permanent"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Notifier delivers notifications with retry. Send performs the first attempt
// immediately and re-queues on transient failure; it never blocks for a retry.
type Notifier interface {
	Send(ctx context.Context, n Notification) (*Delivery, error)
}

// Alert is an operator-visible failure report.
type Alert struct {
	Source  string
	Subject string
	Message string
	Err     error
}

// Alerter surfaces failures that need an operator (abandoned jobs, undeliverable notifications).
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}
