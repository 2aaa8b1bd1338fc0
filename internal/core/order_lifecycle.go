package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"cafeteria/internal/metrics"
)

// ReceiptPublisher hands confirmed, available lines to the inventory side.
type ReceiptPublisher interface {
	PublishReceipt(ctx context.Context, ev ReceiptEvent) error
}

// LifecycleDeps wires an OrderLifecycle.
type LifecycleDeps struct {
	Orders    OrderStore
	Suppliers SupplierStore
	Catalog   InsumoCatalog
	Tokens    *TokenService
	Notifier  Notifier
	Receipts  ReceiptPublisher
	Params    ParameterStore
	Clock     Clock
	Metrics   *metrics.Registry
	Logger    *slog.Logger
	// PublicBaseURL prefixes the confirmation link sent to suppliers.
	PublicBaseURL string
}

// ApprovalResult is returned by Approve. The approval is committed even when the
// notification could not be delivered; NotificationError then says why.
type ApprovalResult struct {
	Order             *PurchaseOrder `json:"order"`
	Delivery          *Delivery      `json:"delivery,omitempty"`
	NotificationError string         `json:"notification_error,omitempty"`
}

// ConfirmationResult is returned by Confirm.
type ConfirmationResult struct {
	Order        *PurchaseOrder `json:"order"`
	Receipt      *ReceiptEvent  `json:"receipt,omitempty"`
	PublishError string         `json:"publish_error,omitempty"`
}

// OrderLifecycle drives purchase orders through
// PENDING → APPROVED → CONFIRMED, with CANCELLED reachable from both open states.
// Transitions on the same order are serialized; stale writes are rejected by the store.
type OrderLifecycle struct {
	orders    OrderStore
	suppliers SupplierStore
	catalog   InsumoCatalog
	tokens    *TokenService
	notifier  Notifier
	receipts  ReceiptPublisher
	params    ParameterStore
	clock     Clock
	metrics   *metrics.Registry
	logger    *slog.Logger
	baseURL   string
	locks     keyedMutex
}

func NewOrderLifecycle(d LifecycleDeps) *OrderLifecycle {
	return &OrderLifecycle{
		orders:    d.Orders,
		suppliers: d.Suppliers,
		catalog:   d.Catalog,
		tokens:    d.Tokens,
		notifier:  d.Notifier,
		receipts:  d.Receipts,
		params:    d.Params,
		clock:     d.Clock,
		metrics:   d.Metrics,
		logger:    orDefault(d.Logger),
		baseURL:   strings.TrimRight(d.PublicBaseURL, "/"),
	}
}

func (l *OrderLifecycle) Get(ctx context.Context, id int) (*PurchaseOrder, error) {
	return l.orders.GetOrder(ctx, id)
}

func (l *OrderLifecycle) List(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error) {
	return l.orders.ListOrders(ctx, filter)
}

// CreateManual records a staff-entered order in PENDING. Quantities are converted
// to each insumo's canonical unit; a blank unit means the canonical unit.
func (l *OrderLifecycle) CreateManual(ctx context.Context, supplierID int, lines []ManualLine, createdBy string) (*PurchaseOrder, error) {
	if strings.TrimSpace(createdBy) == "" {
		return nil, &ValidationError{Field: "created_by", Message: "is required"}
	}
	if len(lines) == 0 {
		return nil, &ValidationError{Field: "lines", Message: "purchase order must have at least one line"}
	}
	supplier, err := l.suppliers.GetSupplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	units, err := l.catalog.InsumoUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("load insumo catalog: %w", err)
	}

	seen := make(map[int]bool, len(lines))
	out := make([]OrderLine, 0, len(lines))
	for i, ml := range lines {
		canonical, ok := units[ml.InsumoID]
		if !ok {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].insumo_id", i), Message: fmt.Sprintf("insumo %d does not exist", ml.InsumoID)}
		}
		if seen[ml.InsumoID] {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].insumo_id", i), Message: fmt.Sprintf("insumo %d appears more than once", ml.InsumoID)}
		}
		seen[ml.InsumoID] = true
		if !ml.Quantity.IsPositive() {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Message: "must be greater than zero"}
		}
		unit := canonical
		if ml.Unit != "" {
			unit = NormalizeUnit(string(ml.Unit))
		}
		qty, err := ConvertQuantity(ml.Quantity, unit, canonical)
		if err != nil {
			return nil, err
		}
		out = append(out, OrderLine{
			InsumoID:          ml.InsumoID,
			RequestedQuantity: qty,
			Unit:              canonical,
			Availability:      AvailabilityPending,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InsumoID < out[j].InsumoID })
	for i := range out {
		out[i].LineNumber = i + 1
	}

	order := &PurchaseOrder{
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		CreatedBy:    createdBy,
		Origin:       OriginManual,
		State:        OrderPending,
		CreatedAt:    l.clock.Now(),
		Lines:        out,
	}
	if err := l.orders.CreateOrders(ctx, []*PurchaseOrder{order}); err != nil {
		return nil, fmt.Errorf("persist manual purchase order: %w", err)
	}
	l.metrics.OrderCreated(string(OriginManual), 1)
	l.logger.Info("manual purchase order created", "order_id", order.ID, "supplier_id", supplierID, "created_by", createdBy)
	return order, nil
}

// Approve moves a PENDING order to APPROVED, issues its supplier token and then
// notifies the supplier. A notification failure never rolls back the approval.
func (l *OrderLifecycle) Approve(ctx context.Context, orderID int, actor string) (*ApprovalResult, error) {
	approved, tok, err := l.approve(ctx, orderID)
	if err != nil {
		return nil, err
	}
	l.logger.Info("purchase order approved", "order_id", orderID, "actor", actor)

	result := &ApprovalResult{Order: approved}
	delivery, err := l.notifySupplier(ctx, approved, tok)
	result.Delivery = delivery
	if err != nil {
		l.logger.Error("supplier notification failed", "order_id", orderID, "error", err)
		result.NotificationError = err.Error()
	}
	return result, nil
}

func (l *OrderLifecycle) approve(ctx context.Context, orderID int) (*PurchaseOrder, *ConfirmationToken, error) {
	unlock := l.locks.Lock(orderID)
	defer unlock()

	order, err := l.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if !order.State.CanTransitionTo(OrderApproved) {
		return nil, nil, &InvalidStateTransitionError{OrderID: orderID, From: order.State, To: OrderApproved}
	}
	if len(order.Lines) == 0 {
		return nil, nil, &ValidationError{Field: "lines", Message: "purchase order has no lines"}
	}

	offset, err := ParamInt(ctx, l.params, ParamDeliveryOffsetDays, 2)
	if err != nil {
		return nil, nil, err
	}
	now := l.clock.Now()
	tok, err := l.tokens.NewAt(now, SubjectSupplier, order.SupplierID, order.ID, "")
	if err != nil {
		return nil, nil, err
	}

	delivery := CalendarDate(now).AddDate(0, 0, offset)
	next := order.Clone()
	next.State = OrderApproved
	next.ApprovedAt = &now
	next.ExpectedDeliveryDate = &delivery
	next.ConfirmationTokenID = &tok.ID
	next.TokenExpiresAt = &tok.ExpiresAt

	if err := l.save(ctx, order, OrderTransition{Order: next, ExpectedVersion: order.Version, IssueToken: tok}); err != nil {
		return nil, nil, err
	}
	l.metrics.OrderTransition(string(OrderApproved))
	return next, tok, nil
}

func (l *OrderLifecycle) notifySupplier(ctx context.Context, order *PurchaseOrder, tok *ConfirmationToken) (*Delivery, error) {
	supplier, err := l.suppliers.GetSupplier(ctx, order.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("load supplier %d: %w", order.SupplierID, err)
	}
	link := l.ConfirmationLink(order.ID, tok.Token)

	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s,\n\nEl comedor escolar solicita el pedido #%d:\n\n", supplier.Name, order.ID)
	for _, line := range order.Lines {
		name := line.InsumoName
		if name == "" {
			name = fmt.Sprintf("insumo %d", line.InsumoID)
		}
		fmt.Fprintf(&b, "  %d. %s: %s %s\n", line.LineNumber, name, line.RequestedQuantity.String(), line.Unit)
	}
	if order.ExpectedDeliveryDate != nil {
		fmt.Fprintf(&b, "\nEntrega esperada: %s\n", order.ExpectedDeliveryDate.Format(DateLayout))
	}
	fmt.Fprintf(&b, "\nConfirme la disponibilidad de cada línea antes de %s en:\n%s\n",
		tok.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"), link)

	return l.notifier.Send(ctx, Notification{
		Kind:        NotifyOrderConfirmationRequest,
		Recipient:   Recipient{Name: supplier.Name, Email: supplier.Email, TelegramChatID: supplier.TelegramChatID},
		Subject:     fmt.Sprintf("Pedido #%d: confirmación de disponibilidad", order.ID),
		Body:        b.String(),
		Link:        link,
		ReferenceID: fmt.Sprintf("order:%d", order.ID),
	})
}

// ConfirmationLink is the supplier-facing page for an approved order.
func (l *OrderLifecycle) ConfirmationLink(orderID int, token string) string {
	q := url.Values{}
	q.Set("pedido", fmt.Sprint(orderID))
	q.Set("token", token)
	return l.baseURL + "/confirmar?" + q.Encode()
}

// ResolveConfirmation validates a supplier token for orderID and returns the
// order it grants access to. The token is not consumed.
func (l *OrderLifecycle) ResolveConfirmation(ctx context.Context, orderID int, rawToken string) (*PurchaseOrder, error) {
	tok, err := l.tokens.Validate(ctx, rawToken, SubjectSupplier)
	if err != nil {
		return nil, err
	}
	order, err := l.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := checkOrderScope(tok, order); err != nil {
		return nil, err
	}
	return order, nil
}

func checkOrderScope(tok *ConfirmationToken, order *PurchaseOrder) error {
	if tok.ScopeID != order.ID {
		return &TokenScopeError{Reason: fmt.Sprintf("token was issued for order %d", tok.ScopeID)}
	}
	if tok.SubjectID != order.SupplierID {
		return &TokenScopeError{Reason: "token was issued to a different supplier"}
	}
	if order.ConfirmationTokenID != nil && *order.ConfirmationTokenID != tok.ID {
		return &TokenScopeError{Reason: "token has been superseded"}
	}
	return nil
}

// Confirm records the supplier's per-line availability, consumes the token and
// moves the order to CONFIRMED. Every line must be answered. Available lines are
// published as a receipt after the transition commits.
func (l *OrderLifecycle) Confirm(ctx context.Context, orderID int, rawToken string, answers []LineAvailability) (*ConfirmationResult, error) {
	confirmed, err := l.confirm(ctx, orderID, rawToken, answers)
	if err != nil {
		return nil, err
	}
	l.logger.Info("purchase order confirmed", "order_id", orderID, "supplier_id", confirmed.SupplierID)

	result := &ConfirmationResult{Order: confirmed}
	ev := receiptFor(confirmed)
	if len(ev.Lines) == 0 || l.receipts == nil {
		return result, nil
	}
	result.Receipt = &ev
	if err := l.receipts.PublishReceipt(ctx, ev); err != nil {
		l.metrics.ReceiptPublished("error")
		l.logger.Error("receipt publish failed", "order_id", orderID, "error", err)
		result.PublishError = err.Error()
		return result, nil
	}
	l.metrics.ReceiptPublished("ok")
	return result, nil
}

func (l *OrderLifecycle) confirm(ctx context.Context, orderID int, rawToken string, answers []LineAvailability) (*PurchaseOrder, error) {
	unlock := l.locks.Lock(orderID)
	defer unlock()

	tok, err := l.tokens.Validate(ctx, rawToken, SubjectSupplier)
	if err != nil {
		return nil, err
	}
	order, err := l.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := checkOrderScope(tok, order); err != nil {
		return nil, err
	}
	if !order.State.CanTransitionTo(OrderConfirmed) {
		return nil, &InvalidStateTransitionError{OrderID: orderID, From: order.State, To: OrderConfirmed}
	}

	byLine := make(map[int]Availability, len(answers))
	for i, a := range answers {
		if a.Availability != AvailabilityAvailable && a.Availability != AvailabilityUnavailable {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].availability", i), Message: "must be AVAILABLE or UNAVAILABLE"}
		}
		if _, dup := byLine[a.LineID]; dup {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].line_id", i), Message: fmt.Sprintf("line %d answered more than once", a.LineID)}
		}
		byLine[a.LineID] = a.Availability
	}

	next := order.Clone()
	var missing []int
	for i := range next.Lines {
		av, ok := byLine[next.Lines[i].ID]
		if !ok {
			missing = append(missing, next.Lines[i].ID)
			continue
		}
		next.Lines[i].Availability = av
		delete(byLine, next.Lines[i].ID)
	}
	if len(byLine) > 0 {
		extra := make([]int, 0, len(byLine))
		for id := range byLine {
			extra = append(extra, id)
		}
		sort.Ints(extra)
		return nil, &ValidationError{Field: "lines", Message: fmt.Sprintf("lines %v are not part of order %d", extra, orderID)}
	}
	if len(missing) > 0 {
		return nil, &IncompleteConfirmationError{OrderID: orderID, MissingLines: missing}
	}

	now := l.clock.Now()
	next.State = OrderConfirmed
	next.ConfirmedAt = &now
	err = l.save(ctx, order, OrderTransition{
		Order:           next,
		ExpectedVersion: order.Version,
		ConsumeTokenID:  tok.ID,
		ConsumedAt:      now,
	})
	if err != nil {
		return nil, err
	}
	l.metrics.OrderTransition(string(OrderConfirmed))
	return next, nil
}

func receiptFor(o *PurchaseOrder) ReceiptEvent {
	ev := ReceiptEvent{OrderID: o.ID, SupplierID: o.SupplierID}
	if o.ConfirmedAt != nil {
		ev.ConfirmedAt = *o.ConfirmedAt
	}
	for _, line := range o.Lines {
		if line.Availability != AvailabilityAvailable {
			continue
		}
		ev.Lines = append(ev.Lines, ReceiptLine{
			LineID:   line.ID,
			InsumoID: line.InsumoID,
			Quantity: line.RequestedQuantity,
			Unit:     line.Unit,
		})
	}
	return ev
}

// Cancel moves an open order to CANCELLED. Cancelling a cancelled order is a
// no-op that returns it unchanged; a confirmed order cannot be cancelled.
func (l *OrderLifecycle) Cancel(ctx context.Context, orderID int, reason, actor string) (*PurchaseOrder, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "cancellation reason is required"}
	}

	unlock := l.locks.Lock(orderID)
	defer unlock()

	order, err := l.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.State == OrderCancelled {
		return order, nil
	}
	if !order.State.CanTransitionTo(OrderCancelled) {
		return nil, &InvalidStateTransitionError{OrderID: orderID, From: order.State, To: OrderCancelled}
	}

	now := l.clock.Now()
	next := order.Clone()
	next.State = OrderCancelled
	next.CancelledAt = &now
	next.CancellationReason = &reason
	if err := l.save(ctx, order, OrderTransition{Order: next, ExpectedVersion: order.Version}); err != nil {
		return nil, err
	}
	l.metrics.OrderTransition(string(OrderCancelled))
	l.logger.Info("purchase order cancelled", "order_id", orderID, "actor", actor, "reason", reason)
	return next, nil
}

// save persists t and reports a lost race as an invalid transition from the
// state the winner left behind.
func (l *OrderLifecycle) save(ctx context.Context, current *PurchaseOrder, t OrderTransition) error {
	err := l.orders.SaveTransition(ctx, t)
	if err == nil {
		t.Order.Version = current.Version + 1
		return nil
	}
	if errors.Is(err, ErrVersionConflict) {
		from := current.State
		if latest, gerr := l.orders.GetOrder(ctx, current.ID); gerr == nil {
			from = latest.State
		}
		return &InvalidStateTransitionError{OrderID: current.ID, From: from, To: t.Order.State}
	}
	return fmt.Errorf("save purchase order %d: %w", current.ID, err)
}
