package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cafeteria/internal/core"
)

// Default retry policy for a job whose parameters do not set one.
const (
	DefaultRetryCount    = 2
	DefaultRetryInterval = 10 * time.Minute
)

// Schedule is one job's ScheduleConfig row, read from the parameter store.
type Schedule struct {
	Job     string
	Enabled bool
	// Weekday is nil for jobs that run every day.
	Weekday         *time.Weekday
	Hour            int
	Minute          int
	RetryCount      int
	RetryInterval   time.Duration
	NotifyOnSuccess bool
}

var weekdays = map[string]time.Weekday{
	"domingo":   time.Sunday,
	"lunes":     time.Monday,
	"martes":    time.Tuesday,
	"miercoles": time.Wednesday,
	"jueves":    time.Thursday,
	"viernes":   time.Friday,
	"sabado":    time.Saturday,
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts Spanish or English day names in any case, with or
// without accents. "todos", "diario", "daily" and "" mean every day (nil).
func ParseWeekday(s string) (*time.Weekday, error) {
	key := core.FoldLabel(s)
	switch key {
	case "", "todos", "todos los dias", "diario", "daily", "every day", "*":
		return nil, nil
	}
	if d, ok := weekdays[key]; ok {
		return &d, nil
	}
	if n, err := strconv.Atoi(key); err == nil && n >= 0 && n <= 6 {
		d := time.Weekday(n)
		return &d, nil
	}
	return nil, fmt.Errorf("unknown weekday %q", s)
}

// ParseClock parses "HH:MM" (24-hour).
func ParseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("time %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("time %q has an invalid hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("time %q has an invalid minute", s)
	}
	return h, m, nil
}

// LoadSchedule reads {prefix}_HABILITADO, {prefix}_DIA, {prefix}_HORA,
// CANTIDAD_REINTENTOS_{prefix}, INTERVALO_REINTENTOS_{prefix} (minutes) and
// NOTIFICAR_EXITO_{prefix}. A job without _HABILITADO is disabled.
func LoadSchedule(ctx context.Context, params core.ParameterStore, job, prefix string) (Schedule, error) {
	s := Schedule{Job: job}
	var err error
	if s.Enabled, err = core.ParamBool(ctx, params, prefix+"_HABILITADO", false); err != nil {
		return s, err
	}
	day, err := core.ParamString(ctx, params, prefix+"_DIA", "")
	if err != nil {
		return s, err
	}
	if s.Weekday, err = ParseWeekday(day); err != nil {
		return s, fmt.Errorf("%s_DIA: %w", prefix, err)
	}
	at, err := core.ParamString(ctx, params, prefix+"_HORA", "00:00")
	if err != nil {
		return s, err
	}
	if s.Hour, s.Minute, err = ParseClock(at); err != nil {
		return s, fmt.Errorf("%s_HORA: %w", prefix, err)
	}
	if s.RetryCount, err = core.ParamInt(ctx, params, "CANTIDAD_REINTENTOS_"+prefix, DefaultRetryCount); err != nil {
		return s, err
	}
	if s.RetryCount < 0 {
		return s, fmt.Errorf("CANTIDAD_REINTENTOS_%s must not be negative", prefix)
	}
	minutes, err := core.ParamInt(ctx, params, "INTERVALO_REINTENTOS_"+prefix, int(DefaultRetryInterval/time.Minute))
	if err != nil {
		return s, err
	}
	if minutes < 0 {
		return s, fmt.Errorf("INTERVALO_REINTENTOS_%s must not be negative", prefix)
	}
	s.RetryInterval = time.Duration(minutes) * time.Minute
	if s.NotifyOnSuccess, err = core.ParamBool(ctx, params, "NOTIFICAR_EXITO_"+prefix, false); err != nil {
		return s, err
	}
	return s, nil
}

// Due reports whether now is at or after the configured time on now's date,
// in now's location. A tick that arrives late still fires the day's run; the
// ledger keeps it to one run per date.
func (s Schedule) Due(now time.Time) bool {
	if s.Weekday != nil && now.Weekday() != *s.Weekday {
		return false
	}
	y, m, d := now.Date()
	return !now.Before(time.Date(y, m, d, s.Hour, s.Minute, 0, 0, now.Location()))
}

// SlotKey identifies one scheduled run: a job runs at most once per calendar date.
func SlotKey(job string, now time.Time) string {
	return job + "|" + now.Format(core.DateLayout)
}
