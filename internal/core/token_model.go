package core

import "time"

// TokenTTL is the fixed lifetime of every confirmation token.
const TokenTTL = 24 * time.Hour

// SubjectType identifies who a confirmation token is issued to.
type SubjectType string

const (
	SubjectSupplier SubjectType = "SUPPLIER"
	SubjectTeacher  SubjectType = "TEACHER"
)

// ConfirmationToken grants one external party write access to one scoped resource.
// ScopeID is the order ID for suppliers and the class ID for teachers; ScopeRef
// carries the rest of the scope (date and service) for attendance tokens.
type ConfirmationToken struct {
	ID          string      `json:"id"`
	Token       string      `json:"token,omitempty"`
	SubjectType SubjectType `json:"subject_type"`
	SubjectID   int         `json:"subject_id"`
	ScopeID     int         `json:"scope_id"`
	ScopeRef    string      `json:"scope_ref,omitempty"`
	IssuedAt    time.Time   `json:"issued_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
	UsedAt      *time.Time  `json:"used_at,omitempty"`
}

// Expired reports whether the token is no longer valid at now.
func (t *ConfirmationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
