package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrVersionConflict is returned by stores when an optimistic update finds a
// newer version than the one the caller read.
var ErrVersionConflict = errors.New("version conflict")

// InvalidRangeError reports a date range whose start is after its end.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: start %s is after end %s",
		e.Start.Format(DateLayout), e.End.Format(DateLayout))
}

// UnsupportedUnitError reports a unit pair with no entry in the conversion table.
type UnsupportedUnitError struct {
	From Unit
	To   Unit
}

func (e *UnsupportedUnitError) Error() string {
	return fmt.Sprintf("unsupported unit conversion from %q to %q", e.From, e.To)
}

// IncompleteConfirmationError reports a supplier confirmation that does not
// cover every line of the order.
type IncompleteConfirmationError struct {
	OrderID      int
	MissingLines []int
}

func (e *IncompleteConfirmationError) Error() string {
	ids := make([]string, len(e.MissingLines))
	for i, id := range e.MissingLines {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("purchase order %d: confirmation is missing availability for lines [%s]",
		e.OrderID, strings.Join(ids, ", "))
}

// InvalidStateTransitionError reports a lifecycle transition the state machine does not allow.
type InvalidStateTransitionError struct {
	OrderID int
	From    OrderState
	To      OrderState
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("purchase order %d cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// TokenExpiredError reports a confirmation token presented after its expiry.
type TokenExpiredError struct {
	ExpiresAt time.Time
}

func (e *TokenExpiredError) Error() string {
	return fmt.Sprintf("confirmation token expired at %s", e.ExpiresAt.UTC().Format(time.RFC3339))
}

// TokenReusedError reports a confirmation token that was already consumed.
type TokenReusedError struct {
	UsedAt time.Time
}

func (e *TokenReusedError) Error() string {
	if e.UsedAt.IsZero() {
		return "confirmation token was already used"
	}
	return fmt.Sprintf("confirmation token was already used at %s", e.UsedAt.UTC().Format(time.RFC3339))
}

// TokenInvalidError reports a token that is malformed, badly signed or unknown.
type TokenInvalidError struct {
	Reason string
}

func (e *TokenInvalidError) Error() string {
	return "invalid confirmation token: " + e.Reason
}

// TokenScopeError reports a valid token presented for a resource it was not issued for.
type TokenScopeError struct {
	Reason string
}

func (e *TokenScopeError) Error() string {
	return "confirmation token does not grant access: " + e.Reason
}

// IdentityMismatchError reports a session user that is not the subject a token is bound to.
type IdentityMismatchError struct {
	Expected int
	Actual   int
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("token is bound to user %d, request made by user %d", e.Expected, e.Actual)
}

// ValidationError reports invalid caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
