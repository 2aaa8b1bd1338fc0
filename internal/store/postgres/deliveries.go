package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"cafeteria/internal/core"
)

const deliveryColumns = `id, notification, status, attempts, max_attempts, interval_seconds,
	next_attempt_at, last_error, permanent, created_at, updated_at`

func scanDelivery(row pgx.Row) (*core.Delivery, error) {
	var d core.Delivery
	var payload []byte
	var status string
	var intervalSec int64
	err := row.Scan(&d.ID, &payload, &status, &d.Attempts, &d.MaxAttempts, &intervalSec,
		&d.NextAttemptAt, &d.LastError, &d.Permanent, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &d.Notification); err != nil {
		return nil, fmt.Errorf("failed to decode notification %s: %w", d.ID, err)
	}
	d.Status = core.DeliveryStatus(status)
	d.Interval = time.Duration(intervalSec) * time.Second
	return &d, nil
}

func (s *Store) CreateDelivery(ctx context.Context, d *core.Delivery) error {
	payload, err := json.Marshal(d.Notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO notification_deliveries (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, d.ID, payload, string(d.Status), d.Attempts, d.MaxAttempts, int64(d.Interval/time.Second),
		d.NextAttemptAt, d.LastError, d.Permanent, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}
	return nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *core.Delivery) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_deliveries SET
			status = $1, attempts = $2, max_attempts = $3, interval_seconds = $4,
			next_attempt_at = $5, last_error = $6, permanent = $7, updated_at = $8
		WHERE id = $9
	`, string(d.Status), d.Attempts, d.MaxAttempts, int64(d.Interval/time.Second),
		d.NextAttemptAt, d.LastError, d.Permanent, d.UpdatedAt, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update delivery %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &core.NotFoundError{Entity: "delivery", ID: d.ID}
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, id string) (*core.Delivery, error) {
	d, err := scanDelivery(s.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM notification_deliveries WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "delivery", id)
	}
	return d, nil
}

func (s *Store) DueDeliveries(ctx context.Context, now time.Time, limit int) ([]core.Delivery, error) {
	return s.queryDeliveries(ctx, `
		SELECT `+deliveryColumns+` FROM notification_deliveries
		WHERE status = 'PENDING' AND next_attempt_at IS NOT NULL AND next_attempt_at <= $1
		ORDER BY next_attempt_at
		LIMIT $2
	`, now, limit)
}

func (s *Store) ListDeliveries(ctx context.Context, status core.DeliveryStatus) ([]core.Delivery, error) {
	return s.queryDeliveries(ctx, `
		SELECT `+deliveryColumns+` FROM notification_deliveries
		WHERE $1 = '' OR status = $1
		ORDER BY created_at
	`, string(status))
}

func (s *Store) queryDeliveries(ctx context.Context, sql string, args ...any) ([]core.Delivery, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()
	var out []core.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
