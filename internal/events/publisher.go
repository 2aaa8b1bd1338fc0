// Package events delivers confirmed purchase-order lines to the inventory side.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"cafeteria/internal/core"
)

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits one message per confirmed order, keyed by order ID so
// every event for an order lands on the same partition.
type KafkaPublisher struct {
	writer kafkaMessageWriter
}

// NewKafkaPublisher creates a synchronous writer. brokers is a comma-separated
// list of host:port.
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}}
}

// NewKafkaPublisherWith injects a writer; used by tests.
func NewKafkaPublisherWith(w kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) PublishReceipt(ctx context.Context, ev core.ReceiptEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal receipt event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(ev.OrderID)),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("purchase_order.confirmed")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish receipt for order %d: %w", ev.OrderID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// StockReceiver applies receipts directly to the stock store.
type StockReceiver struct {
	stock core.StockStore
}

func NewStockReceiver(stock core.StockStore) *StockReceiver {
	return &StockReceiver{stock: stock}
}

func (r *StockReceiver) PublishReceipt(ctx context.Context, ev core.ReceiptEvent) error {
	var errs []error
	for _, line := range ev.Lines {
		if err := r.stock.IncreaseStock(ctx, line.InsumoID, line.Quantity, line.Unit); err != nil {
			errs = append(errs, fmt.Errorf("order %d line %d: %w", ev.OrderID, line.LineID, err))
		}
	}
	return errors.Join(errs...)
}

// LogPublisher only logs receipts.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishReceipt(_ context.Context, ev core.ReceiptEvent) error {
	p.logger.Info("receipt", "order_id", ev.OrderID, "supplier_id", ev.SupplierID, "lines", len(ev.Lines))
	return nil
}

// MultiPublisher fans a receipt out to every publisher and joins their errors.
type MultiPublisher []core.ReceiptPublisher

func (m MultiPublisher) PublishReceipt(ctx context.Context, ev core.ReceiptEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishReceipt(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
