package app

import (
	"time"

	"github.com/shopspring/decimal"

	"cafeteria/internal/core"
)

// PurchaseOrderResult is returned by single-order operations.
type PurchaseOrderResult struct {
	Order *core.PurchaseOrder `json:"order"`
}

// PurchaseOrdersResult is returned by ListPurchaseOrders.
type PurchaseOrdersResult struct {
	Orders []core.PurchaseOrder `json:"orders"`
}

// SupplierOrderView is the part of an order a supplier sees on the confirmation page.
type SupplierOrderView struct {
	OrderID              int                `json:"order_id"`
	SupplierName         string             `json:"supplier_name"`
	State                core.OrderState    `json:"state"`
	ExpectedDeliveryDate *time.Time         `json:"expected_delivery_date,omitempty"`
	TokenExpiresAt       *time.Time         `json:"token_expires_at,omitempty"`
	Lines                []SupplierLineView `json:"lines"`
}

// SupplierLineView is one requested line.
type SupplierLineView struct {
	LineID   int             `json:"line_id"`
	Insumo   string          `json:"insumo"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     core.Unit       `json:"unit"`
}

// JobRunResult is returned by RunJob.
type JobRunResult struct {
	Job      string        `json:"job"`
	Summary  string        `json:"summary"`
	Duration time.Duration `json:"duration_ns"`
}

// DeliveriesResult is returned by FailedNotifications.
type DeliveriesResult struct {
	Deliveries []core.Delivery `json:"deliveries"`
}
