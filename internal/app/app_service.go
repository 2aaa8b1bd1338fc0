package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cafeteria/internal/core"
)

// JobRunner runs scheduled jobs on demand.
type JobRunner interface {
	Jobs() []string
	RunNow(ctx context.Context, name string) (string, error)
}

// NotificationOutbox exposes failed deliveries for operator action.
type NotificationOutbox interface {
	Failed(ctx context.Context) ([]core.Delivery, error)
	Resend(ctx context.Context, id string) (*core.Delivery, error)
}

type appService struct {
	procurement *core.ProcurementService
	lifecycle   *core.OrderLifecycle
	attendance  *core.AttendanceService
	jobs        JobRunner
	outbox      NotificationOutbox
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	procurement *core.ProcurementService,
	lifecycle *core.OrderLifecycle,
	attendance *core.AttendanceService,
	jobs JobRunner,
	outbox NotificationOutbox,
) ApplicationService {
	return &appService{
		procurement: procurement,
		lifecycle:   lifecycle,
		attendance:  attendance,
		jobs:        jobs,
		outbox:      outbox,
	}
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	s, err := core.ParseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, &core.ValidationError{Field: "start", Message: "expected YYYY-MM-DD, got " + start}
	}
	e, err := core.ParseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, &core.ValidationError{Field: "end", Message: "expected YYYY-MM-DD, got " + end}
	}
	return s, e, nil
}

// PreviewProcurement computes the plan for [start, end] without writing.
func (s *appService) PreviewProcurement(ctx context.Context, start, end string) (*core.ProcurementPlan, error) {
	from, to, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	return s.procurement.Preview(ctx, from, to)
}

// GenerateOrders runs a manual generation for the requested range.
func (s *appService) GenerateOrders(ctx context.Context, req GenerateOrdersRequest) (*core.GenerationResult, error) {
	from, to, err := parseRange(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		return nil, &core.ValidationError{Field: "created_by", Message: "is required"}
	}
	return s.procurement.GenerateOrders(ctx, from, to, req.CreatedBy, core.OriginManual)
}

func (s *appService) ListPurchaseOrders(ctx context.Context, state string) (*PurchaseOrdersResult, error) {
	filter := core.OrderFilter{}
	if state != "" {
		st := core.OrderState(strings.ToUpper(strings.TrimSpace(state)))
		switch st {
		case core.OrderPending, core.OrderApproved, core.OrderConfirmed, core.OrderCancelled:
			filter.State = st
		default:
			return nil, &core.ValidationError{Field: "state", Message: fmt.Sprintf("unknown state %q", state)}
		}
	}
	orders, err := s.lifecycle.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []core.PurchaseOrder{}
	}
	return &PurchaseOrdersResult{Orders: orders}, nil
}

func (s *appService) GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrderResult, error) {
	o, err := s.lifecycle.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PurchaseOrderResult{Order: o}, nil
}

func (s *appService) CreatePurchaseOrder(ctx context.Context, req CreatePurchaseOrderRequest) (*PurchaseOrderResult, error) {
	o, err := s.lifecycle.CreateManual(ctx, req.SupplierID, req.Lines, req.CreatedBy)
	if err != nil {
		return nil, err
	}
	return &PurchaseOrderResult{Order: o}, nil
}

func (s *appService) ApprovePurchaseOrder(ctx context.Context, id int, actor string) (*core.ApprovalResult, error) {
	return s.lifecycle.Approve(ctx, id, actor)
}

func (s *appService) CancelPurchaseOrder(ctx context.Context, id int, reason, actor string) (*PurchaseOrderResult, error) {
	o, err := s.lifecycle.Cancel(ctx, id, reason, actor)
	if err != nil {
		return nil, err
	}
	return &PurchaseOrderResult{Order: o}, nil
}

// ResolveSupplierConfirmation validates the token and projects the order for the supplier.
func (s *appService) ResolveSupplierConfirmation(ctx context.Context, orderID int, token string) (*SupplierOrderView, error) {
	o, err := s.lifecycle.ResolveConfirmation(ctx, orderID, token)
	if err != nil {
		return nil, err
	}
	view := &SupplierOrderView{
		OrderID:              o.ID,
		SupplierName:         o.SupplierName,
		State:                o.State,
		ExpectedDeliveryDate: o.ExpectedDeliveryDate,
		TokenExpiresAt:       o.TokenExpiresAt,
		Lines:                make([]SupplierLineView, len(o.Lines)),
	}
	for i, l := range o.Lines {
		name := l.InsumoName
		if name == "" {
			name = fmt.Sprintf("insumo %d", l.InsumoID)
		}
		view.Lines[i] = SupplierLineView{LineID: l.ID, Insumo: name, Quantity: l.RequestedQuantity, Unit: l.Unit}
	}
	return view, nil
}

func (s *appService) ConfirmPurchaseOrder(ctx context.Context, req ConfirmPurchaseOrderRequest) (*core.ConfirmationResult, error) {
	return s.lifecycle.Confirm(ctx, req.OrderID, req.Token, req.Lines)
}

func (s *appService) IssueAttendanceToken(ctx context.Context, req IssueAttendanceRequest) (*core.AttendanceInvitation, error) {
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	return s.attendance.IssueToken(ctx, req.TeacherID, req.ClassID, date, req.ServiceID)
}

func (s *appService) ResolveAttendance(ctx context.Context, token string, sessionUserID int) (*core.AttendanceScope, error) {
	return s.attendance.Resolve(ctx, token, sessionUserID)
}

func (s *appService) RecordAttendance(ctx context.Context, req RecordAttendanceRequest) (*core.AttendanceRecord, error) {
	return s.attendance.Record(ctx, req.Token, req.SessionUserID, req.Entries)
}

func (s *appService) ListJobs(context.Context) []string {
	if s.jobs == nil {
		return nil
	}
	return s.jobs.Jobs()
}

// RunJob executes name synchronously and reports its summary.
func (s *appService) RunJob(ctx context.Context, name string) (*JobRunResult, error) {
	if s.jobs == nil {
		return nil, &core.NotFoundError{Entity: "job", ID: name}
	}
	start := time.Now()
	summary, err := s.jobs.RunNow(ctx, name)
	if err != nil {
		return nil, err
	}
	return &JobRunResult{Job: name, Summary: summary, Duration: time.Since(start)}, nil
}

func (s *appService) FailedNotifications(ctx context.Context) (*DeliveriesResult, error) {
	deliveries, err := s.outbox.Failed(ctx)
	if err != nil {
		return nil, err
	}
	if deliveries == nil {
		deliveries = []core.Delivery{}
	}
	return &DeliveriesResult{Deliveries: deliveries}, nil
}

func (s *appService) ResendNotification(ctx context.Context, id string) (*core.Delivery, error) {
	return s.outbox.Resend(ctx, id)
}
