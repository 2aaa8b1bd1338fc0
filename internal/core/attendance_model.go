package core

import "time"

// AttendanceScope is what an attendance token is bound to.
type AttendanceScope struct {
	TeacherID int       `json:"teacher_id"`
	ClassID   int       `json:"class_id"`
	Date      time.Time `json:"date"`
	ServiceID int       `json:"service_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AttendanceEntry is one student's attendance for a service.
type AttendanceEntry struct {
	StudentID int  `json:"student_id" jsonschema:"required"`
	Present   bool `json:"present"`
}

// AttendanceRecord is the submitted attendance for one class, date and service.
type AttendanceRecord struct {
	ID           int               `json:"id"`
	TeacherID    int               `json:"teacher_id"`
	ClassID      int               `json:"class_id"`
	Date         time.Time         `json:"date"`
	ServiceID    int               `json:"service_id"`
	Entries      []AttendanceEntry `json:"entries"`
	RecordedAt   time.Time         `json:"recorded_at"`
	PresentCount int               `json:"present_count"`
}
