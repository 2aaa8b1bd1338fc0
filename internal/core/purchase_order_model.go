package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderState is the lifecycle state of a purchase order.
type OrderState string

const (
	OrderPending   OrderState = "PENDING"
	OrderApproved  OrderState = "APPROVED"
	OrderConfirmed OrderState = "CONFIRMED"
	OrderCancelled OrderState = "CANCELLED"
)

// orderTransitions lists every allowed edge of the state machine.
var orderTransitions = map[OrderState][]OrderState{
	OrderPending:  {OrderApproved, OrderCancelled},
	OrderApproved: {OrderConfirmed, OrderCancelled},
}

// CanTransitionTo reports whether the state machine has an edge s → next.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OrderState) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// OrderOrigin records whether an order was generated by the engine or entered by staff.
type OrderOrigin string

const (
	OriginManual    OrderOrigin = "MANUAL"
	OriginAutomatic OrderOrigin = "AUTOMATIC"
)

// SystemActor is the createdBy value for orders the scheduler generates.
const SystemActor = "system"

// Availability is the supplier's answer for one order line.
type Availability string

const (
	AvailabilityPending     Availability = "PENDING"
	AvailabilityAvailable   Availability = "AVAILABLE"
	AvailabilityUnavailable Availability = "UNAVAILABLE"
)

// PurchaseOrder is a pedido addressed to exactly one supplier.
type PurchaseOrder struct {
	ID                   int         `json:"id"`
	SupplierID           int         `json:"supplier_id"`
	SupplierName         string      `json:"supplier_name,omitempty"`
	CreatedBy            string      `json:"created_by"`
	Origin               OrderOrigin `json:"origin"`
	State                OrderState  `json:"state"`
	CreatedAt            time.Time   `json:"created_at"`
	ApprovedAt           *time.Time  `json:"approved_at,omitempty"`
	ConfirmedAt          *time.Time  `json:"confirmed_at,omitempty"`
	CancelledAt          *time.Time  `json:"cancelled_at,omitempty"`
	ExpectedDeliveryDate *time.Time  `json:"expected_delivery_date,omitempty"`
	CancellationReason   *string     `json:"cancellation_reason,omitempty"`
	ConfirmationTokenID  *string     `json:"-"`
	TokenExpiresAt       *time.Time  `json:"token_expires_at,omitempty"`
	Version              int         `json:"version"`
	Lines                []OrderLine `json:"lines"`
}

// OrderLine is one insumo requested from the order's supplier.
type OrderLine struct {
	ID                int             `json:"id"`
	OrderID           int             `json:"order_id"`
	LineNumber        int             `json:"line_number"`
	InsumoID          int             `json:"insumo_id"`
	InsumoName        string          `json:"insumo_name,omitempty"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
	Unit              Unit            `json:"unit"`
	Availability      Availability    `json:"availability"`
}

// Clone returns a deep copy so callers can mutate a transition candidate
// without touching the stored value.
func (o *PurchaseOrder) Clone() *PurchaseOrder {
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	return &c
}

// OrderFilter narrows ListOrders. Zero values mean "any".
type OrderFilter struct {
	State      OrderState
	SupplierID int
	Origin     OrderOrigin
}

// LineAvailability is the supplier's answer for one line in a confirmation submission.
type LineAvailability struct {
	LineID       int          `json:"line_id" jsonschema:"required,description=Order line identifier"`
	Availability Availability `json:"availability" jsonschema:"required,enum=AVAILABLE,enum=UNAVAILABLE"`
}

// ManualLine is one line of an order entered by staff.
type ManualLine struct {
	InsumoID int             `json:"insumo_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     Unit            `json:"unit"`
}

// ReceiptLine is a confirmed, available line handed to the inventory collaborator.
type ReceiptLine struct {
	LineID   int             `json:"line_id"`
	InsumoID int             `json:"insumo_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     Unit            `json:"unit"`
}

// ReceiptEvent is emitted once per confirmed order with the lines the supplier will deliver.
type ReceiptEvent struct {
	OrderID     int           `json:"order_id"`
	SupplierID  int           `json:"supplier_id"`
	ConfirmedAt time.Time     `json:"confirmed_at"`
	Lines       []ReceiptLine `json:"lines"`
}
