package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AttendanceInvitation is the result of issuing an attendance token to a teacher.
type AttendanceInvitation struct {
	Scope             AttendanceScope `json:"scope"`
	Link              string          `json:"link"`
	Delivery          *Delivery       `json:"delivery,omitempty"`
	NotificationError string          `json:"notification_error,omitempty"`
}

// AttendanceService runs the teacher attendance token flow: a token bound to
// one teacher, class, date and service that only that teacher's session may use.
type AttendanceService struct {
	tokens   *TokenService
	teachers TeacherDirectory
	store    AttendanceStore
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
	baseURL  string
}

func NewAttendanceService(tokens *TokenService, teachers TeacherDirectory, store AttendanceStore, notifier Notifier, clock Clock, logger *slog.Logger, publicBaseURL string) *AttendanceService {
	return &AttendanceService{
		tokens:   tokens,
		teachers: teachers,
		store:    store,
		notifier: notifier,
		clock:    clock,
		logger:   orDefault(logger),
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
	}
}

func attendanceScopeRef(date time.Time, serviceID int) string {
	return CalendarDate(date).Format(DateLayout) + "|" + strconv.Itoa(serviceID)
}

func parseAttendanceScopeRef(ref string) (time.Time, int, error) {
	datePart, servicePart, ok := strings.Cut(ref, "|")
	if !ok {
		return time.Time{}, 0, &TokenInvalidError{Reason: "malformed attendance scope"}
	}
	date, err := time.Parse(DateLayout, datePart)
	if err != nil {
		return time.Time{}, 0, &TokenInvalidError{Reason: "malformed attendance date"}
	}
	serviceID, err := strconv.Atoi(servicePart)
	if err != nil {
		return time.Time{}, 0, &TokenInvalidError{Reason: "malformed attendance service"}
	}
	return date, serviceID, nil
}

// IssueToken creates a token for teacherID scoped to class, date and service and
// sends the teacher the attendance link. The token survives a failed notification.
func (s *AttendanceService) IssueToken(ctx context.Context, teacherID, classID int, date time.Time, serviceID int) (*AttendanceInvitation, error) {
	if classID <= 0 {
		return nil, &ValidationError{Field: "class_id", Message: "is required"}
	}
	if serviceID <= 0 {
		return nil, &ValidationError{Field: "service_id", Message: "is required"}
	}
	teacher, err := s.teachers.GetTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	tok, err := s.tokens.Issue(ctx, SubjectTeacher, teacher.ID, classID, attendanceScopeRef(date, serviceID))
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("token", tok.Token)
	inv := &AttendanceInvitation{
		Scope: AttendanceScope{
			TeacherID: teacher.ID,
			ClassID:   classID,
			Date:      CalendarDate(date),
			ServiceID: serviceID,
			ExpiresAt: tok.ExpiresAt,
		},
		Link: s.baseURL + "/asistencia?" + q.Encode(),
	}

	delivery, err := s.notifier.Send(ctx, Notification{
		Kind:      NotifyAttendanceRequest,
		Recipient: Recipient{Name: teacher.Name, Email: teacher.Email, TelegramChatID: teacher.TelegramChatID},
		Subject:   fmt.Sprintf("Registro de asistencia del %s", inv.Scope.Date.Format(DateLayout)),
		Body: fmt.Sprintf("Hola %s,\n\nRegistre la asistencia del curso %d para el servicio %d del %s en:\n%s\n\nEl enlace vence en 24 horas.\n",
			teacher.Name, classID, serviceID, inv.Scope.Date.Format(DateLayout), inv.Link),
		Link:        inv.Link,
		ReferenceID: "attendance:" + tok.ID,
	})
	inv.Delivery = delivery
	if err != nil {
		s.logger.Error("attendance notification failed", "teacher_id", teacher.ID, "class_id", classID, "error", err)
		inv.NotificationError = err.Error()
	}
	return inv, nil
}

// Resolve validates rawToken and checks that sessionUserID is the teacher it
// was issued to. A mismatch is rejected even for a valid, unexpired token.
func (s *AttendanceService) Resolve(ctx context.Context, rawToken string, sessionUserID int) (*AttendanceScope, error) {
	scope, _, err := s.resolve(ctx, rawToken, sessionUserID)
	return scope, err
}

func (s *AttendanceService) resolve(ctx context.Context, rawToken string, sessionUserID int) (*AttendanceScope, *ConfirmationToken, error) {
	tok, err := s.tokens.Validate(ctx, rawToken, SubjectTeacher)
	if err != nil {
		return nil, nil, err
	}
	if tok.SubjectID != sessionUserID {
		return nil, nil, &IdentityMismatchError{Expected: tok.SubjectID, Actual: sessionUserID}
	}
	date, serviceID, err := parseAttendanceScopeRef(tok.ScopeRef)
	if err != nil {
		return nil, nil, err
	}
	return &AttendanceScope{
		TeacherID: tok.SubjectID,
		ClassID:   tok.ScopeID,
		Date:      date,
		ServiceID: serviceID,
		ExpiresAt: tok.ExpiresAt,
	}, tok, nil
}

// Record stores the attendance for the token's scope and consumes the token in
// the same write.
func (s *AttendanceService) Record(ctx context.Context, rawToken string, sessionUserID int, entries []AttendanceEntry) (*AttendanceRecord, error) {
	scope, tok, err := s.resolve(ctx, rawToken, sessionUserID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &ValidationError{Field: "entries", Message: "at least one student is required"}
	}
	seen := make(map[int]bool, len(entries))
	present := 0
	for i, e := range entries {
		if e.StudentID <= 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("entries[%d].student_id", i), Message: "is required"}
		}
		if seen[e.StudentID] {
			return nil, &ValidationError{Field: fmt.Sprintf("entries[%d].student_id", i), Message: fmt.Sprintf("student %d appears more than once", e.StudentID)}
		}
		seen[e.StudentID] = true
		if e.Present {
			present++
		}
	}

	rec := &AttendanceRecord{
		TeacherID:    scope.TeacherID,
		ClassID:      scope.ClassID,
		Date:         scope.Date,
		ServiceID:    scope.ServiceID,
		Entries:      append([]AttendanceEntry(nil), entries...),
		RecordedAt:   s.clock.Now(),
		PresentCount: present,
	}
	if err := s.store.SaveAttendance(ctx, rec, tok.ID); err != nil {
		return nil, err
	}
	s.logger.Info("attendance recorded", "teacher_id", rec.TeacherID, "class_id", rec.ClassID,
		"date", rec.Date.Format(DateLayout), "service_id", rec.ServiceID, "present", present)
	return rec, nil
}
