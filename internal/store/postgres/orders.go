package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"cafeteria/internal/core"
)

const orderColumns = `
	po.id, po.supplier_id, s.name, po.created_by, po.origin, po.state, po.created_at,
	po.approved_at, po.confirmed_at, po.cancelled_at, po.expected_delivery_date,
	po.cancellation_reason, po.confirmation_token_id, po.token_expires_at, po.version`

func scanOrder(row pgx.Row) (*core.PurchaseOrder, error) {
	var o core.PurchaseOrder
	var origin, state string
	err := row.Scan(&o.ID, &o.SupplierID, &o.SupplierName, &o.CreatedBy, &origin, &state, &o.CreatedAt,
		&o.ApprovedAt, &o.ConfirmedAt, &o.CancelledAt, &o.ExpectedDeliveryDate,
		&o.CancellationReason, &o.ConfirmationTokenID, &o.TokenExpiresAt, &o.Version)
	if err != nil {
		return nil, err
	}
	o.Origin = core.OrderOrigin(origin)
	o.State = core.OrderState(state)
	return &o, nil
}

func loadLines(ctx context.Context, q querier, orderIDs []int) (map[int][]core.OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT l.id, l.order_id, l.line_number, l.insumo_id, i.name, l.requested_quantity, l.unit, l.availability
		FROM purchase_order_lines l
		JOIN insumos i ON i.id = l.insumo_id
		WHERE l.order_id = ANY($1)
		ORDER BY l.order_id, l.line_number
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()
	out := make(map[int][]core.OrderLine)
	for rows.Next() {
		var l core.OrderLine
		var unit, availability string
		if err := rows.Scan(&l.ID, &l.OrderID, &l.LineNumber, &l.InsumoID, &l.InsumoName, &l.RequestedQuantity, &unit, &availability); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		l.Unit = core.Unit(unit)
		l.Availability = core.Availability(availability)
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}

// CreateOrders inserts every order and its lines in one transaction.
func (s *Store) CreateOrders(ctx context.Context, orders []*core.PurchaseOrder) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, o := range orders {
		if len(o.Lines) == 0 {
			return &core.ValidationError{Field: "lines", Message: "purchase order must have at least one line"}
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO purchase_orders (supplier_id, created_by, origin, state, created_at, version)
			VALUES ($1, $2, $3, $4, $5, 1)
			RETURNING id
		`, o.SupplierID, o.CreatedBy, string(o.Origin), string(o.State), o.CreatedAt).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("failed to insert purchase order for supplier %d: %w", o.SupplierID, err)
		}
		o.Version = 1
		if err := tx.QueryRow(ctx, `SELECT name FROM suppliers WHERE id = $1`, o.SupplierID).Scan(&o.SupplierName); err != nil {
			return notFound(err, "supplier", o.SupplierID)
		}
		for i := range o.Lines {
			l := &o.Lines[i]
			l.OrderID = o.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO purchase_order_lines (order_id, line_number, insumo_id, requested_quantity, unit, availability)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id
			`, o.ID, l.LineNumber, l.InsumoID, l.RequestedQuantity, string(l.Unit), string(l.Availability)).Scan(&l.ID)
			if err != nil {
				return fmt.Errorf("failed to insert line %d of purchase order %d: %w", l.LineNumber, o.ID, err)
			}
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetOrder(ctx context.Context, id int) (*core.PurchaseOrder, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM purchase_orders po JOIN suppliers s ON s.id = po.supplier_id
		WHERE po.id = $1
	`, id))
	if err != nil {
		return nil, notFound(err, "purchase order", id)
	}
	lines, err := loadLines(ctx, s.pool, []int{id})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[id]
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, f core.OrderFilter) ([]core.PurchaseOrder, error) {
	var where []string
	var args []any
	if f.State != "" {
		args = append(args, string(f.State))
		where = append(where, fmt.Sprintf("po.state = $%d", len(args)))
	}
	if f.SupplierID != 0 {
		args = append(args, f.SupplierID)
		where = append(where, fmt.Sprintf("po.supplier_id = $%d", len(args)))
	}
	if f.Origin != "" {
		args = append(args, string(f.Origin))
		where = append(where, fmt.Sprintf("po.origin = $%d", len(args)))
	}
	sql := `SELECT ` + orderColumns + ` FROM purchase_orders po JOIN suppliers s ON s.id = po.supplier_id`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY po.id DESC"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase orders: %w", err)
	}
	var orders []core.PurchaseOrder
	var ids []int
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan purchase order: %w", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}
	lines, err := loadLines(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

// SaveTransition locks the order row, checks the version, and writes the
// header, line availability and token changes in one transaction.
func (s *Store) SaveTransition(ctx context.Context, t core.OrderTransition) error {
	o := t.Order
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var version int
	if err := tx.QueryRow(ctx, `SELECT version FROM purchase_orders WHERE id = $1 FOR UPDATE`, o.ID).Scan(&version); err != nil {
		return notFound(err, "purchase order", o.ID)
	}
	if version != t.ExpectedVersion {
		return core.ErrVersionConflict
	}

	if t.ConsumeTokenID != "" {
		if err := consumeToken(ctx, tx, t.ConsumeTokenID, t.ConsumedAt); err != nil {
			return err
		}
	}
	if t.IssueToken != nil {
		if err := insertToken(ctx, tx, t.IssueToken); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE purchase_orders SET
			state = $1, approved_at = $2, confirmed_at = $3, cancelled_at = $4,
			expected_delivery_date = $5, cancellation_reason = $6,
			confirmation_token_id = $7, token_expires_at = $8, version = version + 1
		WHERE id = $9
	`, string(o.State), o.ApprovedAt, o.ConfirmedAt, o.CancelledAt, dateArg(o.ExpectedDeliveryDate),
		o.CancellationReason, o.ConfirmationTokenID, o.TokenExpiresAt, o.ID)
	if err != nil {
		return fmt.Errorf("failed to update purchase order %d: %w", o.ID, err)
	}
	for _, l := range o.Lines {
		if _, err := tx.Exec(ctx, `
			UPDATE purchase_order_lines SET availability = $1 WHERE id = $2 AND order_id = $3
		`, string(l.Availability), l.ID, o.ID); err != nil {
			return fmt.Errorf("failed to update line %d of purchase order %d: %w", l.ID, o.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(core.DateLayout)
}

// ── Tokens ───────────────────────────────────────────────────────────────────

func insertToken(ctx context.Context, q querier, t *core.ConfirmationToken) error {
	_, err := q.Exec(ctx, `
		INSERT INTO confirmation_tokens (id, subject_type, subject_id, scope_id, scope_ref, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, string(t.SubjectType), t.SubjectID, t.ScopeID, t.ScopeRef, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert confirmation token: %w", err)
	}
	return nil
}

// consumeToken marks a token used, failing with TokenReusedError when another
// request already consumed it.
func consumeToken(ctx context.Context, q querier, id string, at time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE confirmation_tokens SET used_at = $1 WHERE id = $2 AND used_at IS NULL
	`, at, id)
	if err != nil {
		return fmt.Errorf("failed to consume confirmation token: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var usedAt *time.Time
	err = q.QueryRow(ctx, `SELECT used_at FROM confirmation_tokens WHERE id = $1`, id).Scan(&usedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &core.TokenInvalidError{Reason: "unknown token"}
	}
	if err != nil {
		return fmt.Errorf("failed to read confirmation token: %w", err)
	}
	reused := &core.TokenReusedError{}
	if usedAt != nil {
		reused.UsedAt = *usedAt
	}
	return reused
}

func (s *Store) SaveToken(ctx context.Context, t *core.ConfirmationToken) error {
	return insertToken(ctx, s.pool, t)
}

func (s *Store) GetToken(ctx context.Context, id string) (*core.ConfirmationToken, error) {
	var t core.ConfirmationToken
	var subjectType string
	err := s.pool.QueryRow(ctx, `
		SELECT id, subject_type, subject_id, scope_id, scope_ref, issued_at, expires_at, used_at
		FROM confirmation_tokens WHERE id = $1
	`, id).Scan(&t.ID, &subjectType, &t.SubjectID, &t.ScopeID, &t.ScopeRef, &t.IssuedAt, &t.ExpiresAt, &t.UsedAt)
	if err != nil {
		return nil, notFound(err, "confirmation token", id)
	}
	t.SubjectType = core.SubjectType(subjectType)
	return &t, nil
}

// ── Attendance ───────────────────────────────────────────────────────────────

func (s *Store) SaveAttendance(ctx context.Context, rec *core.AttendanceRecord, consumeTokenID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := consumeToken(ctx, tx, consumeTokenID, rec.RecordedAt); err != nil {
		return err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO attendance_records (teacher_id, class_id, attendance_date, service_id, recorded_at, present_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (class_id, attendance_date, service_id) DO UPDATE SET
			teacher_id = EXCLUDED.teacher_id, recorded_at = EXCLUDED.recorded_at, present_count = EXCLUDED.present_count
		RETURNING id
	`, rec.TeacherID, rec.ClassID, rec.Date.Format(core.DateLayout), rec.ServiceID, rec.RecordedAt, rec.PresentCount).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to save attendance record: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM attendance_entries WHERE record_id = $1`, rec.ID); err != nil {
		return fmt.Errorf("failed to reset attendance entries: %w", err)
	}
	for _, e := range rec.Entries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO attendance_entries (record_id, student_id, present) VALUES ($1, $2, $3)
		`, rec.ID, e.StudentID, e.Present); err != nil {
			return fmt.Errorf("failed to save attendance of student %d: %w", e.StudentID, err)
		}
	}
	return tx.Commit(ctx)
}
