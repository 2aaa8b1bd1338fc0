package app

import (
	"context"

	"cafeteria/internal/core"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from the procurement domain. Implementations
// contain no display logic; every outcome is an explicit result or a typed error.
type ApplicationService interface {
	// PreviewProcurement computes requirements, deficits and the orders a
	// generation run would create for [start, end] without writing anything.
	PreviewProcurement(ctx context.Context, start, end string) (*core.ProcurementPlan, error)

	// GenerateOrders creates one PENDING purchase order per supplier for the deficits of the range.
	GenerateOrders(ctx context.Context, req GenerateOrdersRequest) (*core.GenerationResult, error)

	// ListPurchaseOrders returns orders, newest first, optionally filtered by state.
	ListPurchaseOrders(ctx context.Context, state string) (*PurchaseOrdersResult, error)

	// GetPurchaseOrder returns a single order with its lines.
	GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrderResult, error)

	// CreatePurchaseOrder records a staff-entered order in PENDING.
	CreatePurchaseOrder(ctx context.Context, req CreatePurchaseOrderRequest) (*PurchaseOrderResult, error)

	// ApprovePurchaseOrder approves a PENDING order and sends the supplier its confirmation link.
	ApprovePurchaseOrder(ctx context.Context, id int, actor string) (*core.ApprovalResult, error)

	// CancelPurchaseOrder cancels an open order. reason is mandatory.
	CancelPurchaseOrder(ctx context.Context, id int, reason, actor string) (*PurchaseOrderResult, error)

	// ResolveSupplierConfirmation returns what the supplier behind token may see of the order.
	ResolveSupplierConfirmation(ctx context.Context, orderID int, token string) (*SupplierOrderView, error)

	// ConfirmPurchaseOrder records the supplier's per-line availability and consumes the token.
	ConfirmPurchaseOrder(ctx context.Context, req ConfirmPurchaseOrderRequest) (*core.ConfirmationResult, error)

	// IssueAttendanceToken sends a teacher a single-use attendance link.
	IssueAttendanceToken(ctx context.Context, req IssueAttendanceRequest) (*core.AttendanceInvitation, error)

	// ResolveAttendance validates an attendance token for the session user.
	ResolveAttendance(ctx context.Context, token string, sessionUserID int) (*core.AttendanceScope, error)

	// RecordAttendance stores attendance for the token's scope on behalf of the session user.
	RecordAttendance(ctx context.Context, req RecordAttendanceRequest) (*core.AttendanceRecord, error)

	// ListJobs returns the registered scheduled jobs.
	ListJobs(ctx context.Context) []string

	// RunJob executes a scheduled job immediately, outside its schedule.
	RunJob(ctx context.Context, name string) (*JobRunResult, error)

	// FailedNotifications lists deliveries in NOTIFICATION_FAILED.
	FailedNotifications(ctx context.Context) (*DeliveriesResult, error)

	// ResendNotification retries a failed delivery with a fresh attempt budget.
	ResendNotification(ctx context.Context, id string) (*core.Delivery, error)
}
