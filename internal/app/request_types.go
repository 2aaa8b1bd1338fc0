package app

import "cafeteria/internal/core"

// GenerateOrdersRequest is the input for a manual generation run.
type GenerateOrdersRequest struct {
	Start     string // YYYY-MM-DD
	End       string // YYYY-MM-DD
	CreatedBy string
}

// CreatePurchaseOrderRequest is the input for a staff-entered order.
type CreatePurchaseOrderRequest struct {
	SupplierID int
	CreatedBy  string
	Lines      []core.ManualLine
}

// ConfirmPurchaseOrderRequest carries a supplier's answers.
type ConfirmPurchaseOrderRequest struct {
	OrderID int
	Token   string
	Lines   []core.LineAvailability
}

// IssueAttendanceRequest identifies the class session a teacher should report on.
type IssueAttendanceRequest struct {
	TeacherID int
	ClassID   int
	Date      string // YYYY-MM-DD
	ServiceID int
}

// RecordAttendanceRequest is a teacher's attendance submission.
type RecordAttendanceRequest struct {
	Token         string
	SessionUserID int
	Entries       []core.AttendanceEntry
}
