package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafeteria/internal/scheduler"
	"cafeteria/internal/store/memory"
)

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in      string
		want    *time.Weekday
		wantErr bool
	}{
		{in: "Lunes", want: weekday(time.Monday)},
		{in: "miércoles", want: weekday(time.Wednesday)},
		{in: "SÁBADO", want: weekday(time.Saturday)},
		{in: "friday", want: weekday(time.Friday)},
		{in: "0", want: weekday(time.Sunday)},
		{in: "todos"},
		{in: "Diario"},
		{in: ""},
		{in: "feriado", wantErr: true},
		{in: "9", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := scheduler.ParseWeekday(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func weekday(d time.Weekday) *time.Weekday { return &d }

func TestParseClock(t *testing.T) {
	h, m, err := scheduler.ParseClock(" 07:45 ")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 45, m)

	for _, bad := range []string{"24:00", "7", "07:60", "aa:bb"} {
		_, _, err := scheduler.ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadSchedule_Defaults(t *testing.T) {
	st := memory.New()
	s, err := scheduler.LoadSchedule(context.Background(), st, scheduler.JobAutoOrder, scheduler.PrefixAutoOrder)
	require.NoError(t, err)
	assert.False(t, s.Enabled)
	assert.Nil(t, s.Weekday)
	assert.Equal(t, scheduler.DefaultRetryCount, s.RetryCount)
	assert.Equal(t, scheduler.DefaultRetryInterval, s.RetryInterval)
	assert.False(t, s.NotifyOnSuccess)
}

func TestLoadSchedule_FromParameters(t *testing.T) {
	st := memory.New()
	st.SetParameter("PEDIDO_AUTOMATICO_HABILITADO", "Sí")
	st.SetParameter("PEDIDO_AUTOMATICO_DIA", "Viernes")
	st.SetParameter("PEDIDO_AUTOMATICO_HORA", "18:30")
	st.SetParameter("CANTIDAD_REINTENTOS_PEDIDO_AUTOMATICO", "4")
	st.SetParameter("INTERVALO_REINTENTOS_PEDIDO_AUTOMATICO", "30")
	st.SetParameter("NOTIFICAR_EXITO_PEDIDO_AUTOMATICO", "true")

	s, err := scheduler.LoadSchedule(context.Background(), st, scheduler.JobAutoOrder, scheduler.PrefixAutoOrder)
	require.NoError(t, err)
	assert.True(t, s.Enabled)
	require.NotNil(t, s.Weekday)
	assert.Equal(t, time.Friday, *s.Weekday)
	assert.Equal(t, 18, s.Hour)
	assert.Equal(t, 30, s.Minute)
	assert.Equal(t, 4, s.RetryCount)
	assert.Equal(t, 30*time.Minute, s.RetryInterval)
	assert.True(t, s.NotifyOnSuccess)

	st.SetParameter("CANTIDAD_REINTENTOS_PEDIDO_AUTOMATICO", "-1")
	_, err = scheduler.LoadSchedule(context.Background(), st, scheduler.JobAutoOrder, scheduler.PrefixAutoOrder)
	assert.Error(t, err)
}

func TestScheduleDue(t *testing.T) {
	s := scheduler.Schedule{Weekday: weekday(time.Monday), Hour: 8}
	assert.True(t, s.Due(monday0800))
	assert.True(t, s.Due(monday0800.Add(59*time.Second)))
	assert.True(t, s.Due(monday0800.Add(time.Minute)))
	assert.True(t, s.Due(monday0800.Add(15*time.Hour+59*time.Minute)))
	assert.False(t, s.Due(monday0800.Add(-time.Second)))
	assert.False(t, s.Due(monday0800.AddDate(0, 0, 1)))
	assert.False(t, s.Due(monday0800.Add(16*time.Hour)), "tuesday midnight")

	daily := scheduler.Schedule{Hour: 8}
	assert.True(t, daily.Due(monday0800.AddDate(0, 0, 3)))
	assert.False(t, daily.Due(monday0800.AddDate(0, 0, 3).Add(-time.Minute)))
}

func TestSlotKey(t *testing.T) {
	assert.Equal(t, "weekly-auto-order|2024-03-04", scheduler.SlotKey(scheduler.JobAutoOrder, monday0800))
	assert.Equal(t, scheduler.SlotKey("x", monday0800), scheduler.SlotKey("x", monday0800.Add(10*time.Hour)))
}
