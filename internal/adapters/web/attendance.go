package web

import (
	"net/http"
	"strings"

	"cafeteria/internal/app"
	"cafeteria/internal/core"
)

// apiIssueAttendanceToken handles POST /api/attendance/tokens.
// Body: { teacher_id, class_id, date, service_id }
func (h *Handler) apiIssueAttendanceToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TeacherID int    `json:"teacher_id"`
		ClassID   int    `json:"class_id"`
		Date      string `json:"date"`
		ServiceID int    `json:"service_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	inv, err := h.svc.IssueAttendanceToken(r.Context(), app.IssueAttendanceRequest{
		TeacherID: body.TeacherID,
		ClassID:   body.ClassID,
		Date:      body.Date,
		ServiceID: body.ServiceID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, inv)
}

// apiResolveAttendance handles GET /api/attendance?token=...
func (h *Handler) apiResolveAttendance(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, r, "attendance token is required", "TOKEN_INVALID", http.StatusUnauthorized)
		return
	}
	scope, err := h.svc.ResolveAttendance(r.Context(), token, authFromContext(r.Context()).UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, scope)
}

// attendanceSubmission is the body of a teacher's attendance report.
type attendanceSubmission struct {
	Token   string                 `json:"token" jsonschema:"required"`
	Entries []core.AttendanceEntry `json:"entries" jsonschema:"required,minItems=1"`
}

// apiRecordAttendance handles POST /api/attendance.
// Body: { token, entries: [{student_id, present}] }
func (h *Handler) apiRecordAttendance(w http.ResponseWriter, r *http.Request) {
	var body attendanceSubmission
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Token) == "" {
		writeError(w, r, "attendance token is required", "TOKEN_INVALID", http.StatusUnauthorized)
		return
	}
	rec, err := h.svc.RecordAttendance(r.Context(), app.RecordAttendanceRequest{
		Token:         body.Token,
		SessionUserID: authFromContext(r.Context()).UserID,
		Entries:       body.Entries,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, rec)
}
