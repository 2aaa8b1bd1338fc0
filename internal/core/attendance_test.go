package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafeteria/internal/core"
)

const classID = 3

func issueAttendance(t *testing.T, f *fixture) string {
	t.Helper()
	inv, err := f.attendance.IssueToken(context.Background(), teacherID, classID, monday, 1)
	require.NoError(t, err)
	return tokenFromLink(t, inv.Link)
}

func TestAttendance_IssueSendsLinkToTeacher(t *testing.T) {
	f := newFixture(t)

	inv, err := f.attendance.IssueToken(context.Background(), teacherID, classID, monday, 1)
	require.NoError(t, err)
	assert.Equal(t, teacherID, inv.Scope.TeacherID)
	assert.Equal(t, classID, inv.Scope.ClassID)
	assert.Equal(t, monday, inv.Scope.Date)
	assert.Equal(t, start.Add(24*time.Hour), inv.Scope.ExpiresAt)

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, core.NotifyAttendanceRequest, sent[0].Kind)
	assert.Equal(t, "docente@escuela.example", sent[0].Recipient.Email)
	assert.Equal(t, inv.Link, sent[0].Link)
}

func TestAttendance_UnknownTeacher(t *testing.T) {
	f := newFixture(t)
	_, err := f.attendance.IssueToken(context.Background(), 999, classID, monday, 1)
	assert.True(t, core.IsNotFound(err), "want not found, got %v", err)
}

func TestAttendance_ResolveChecksSessionIdentity(t *testing.T) {
	f := newFixture(t)
	raw := issueAttendance(t, f)

	scope, err := f.attendance.Resolve(context.Background(), raw, teacherID)
	require.NoError(t, err)
	assert.Equal(t, classID, scope.ClassID)
	assert.Equal(t, 1, scope.ServiceID)
	assert.Equal(t, monday, scope.Date)

	_, err = f.attendance.Resolve(context.Background(), raw, teacherID+1)
	var mismatch *core.IdentityMismatchError
	require.True(t, errors.As(err, &mismatch), "want IdentityMismatchError, got %v", err)
	assert.Equal(t, teacherID, mismatch.Expected)
	assert.Equal(t, teacherID+1, mismatch.Actual)

	_, err = f.attendance.Record(context.Background(), raw, teacherID+1, []core.AttendanceEntry{{StudentID: 1, Present: true}})
	require.True(t, errors.As(err, &mismatch))
	assert.Empty(t, f.store.Attendance())
}

func TestAttendance_RecordConsumesToken(t *testing.T) {
	f := newFixture(t)
	raw := issueAttendance(t, f)
	entries := []core.AttendanceEntry{
		{StudentID: 1, Present: true},
		{StudentID: 2, Present: false},
		{StudentID: 3, Present: true},
	}

	rec, err := f.attendance.Record(context.Background(), raw, teacherID, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.PresentCount)
	assert.Equal(t, classID, rec.ClassID)
	require.Len(t, f.store.Attendance(), 1)

	_, err = f.attendance.Record(context.Background(), raw, teacherID, entries)
	var reused *core.TokenReusedError
	assert.True(t, errors.As(err, &reused), "want TokenReusedError, got %v", err)
}

func TestAttendance_SupplierTokenRejected(t *testing.T) {
	f := newFixture(t)
	_, raw := f.approvedOrder(t)

	_, err := f.attendance.Resolve(context.Background(), raw, supplierSur)
	var scope *core.TokenScopeError
	assert.True(t, errors.As(err, &scope), "want TokenScopeError, got %v", err)
}

func TestAttendance_InvalidEntries(t *testing.T) {
	f := newFixture(t)
	raw := issueAttendance(t, f)

	for name, entries := range map[string][]core.AttendanceEntry{
		"empty":     nil,
		"no id":     {{StudentID: 0, Present: true}},
		"duplicate": {{StudentID: 4, Present: true}, {StudentID: 4, Present: false}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.attendance.Record(context.Background(), raw, teacherID, entries)
			var vErr *core.ValidationError
			assert.True(t, errors.As(err, &vErr), "want ValidationError, got %v", err)
		})
	}
	assert.Empty(t, f.store.Attendance())
}
