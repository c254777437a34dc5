package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorecal/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func TestNextDueDate_Never(t *testing.T) {
	_, ok := NextDueDate(date(2024, 1, 1), model.RepeatNever)
	assert.False(t, ok)
}

func TestNextDueDate_Steps(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		rule model.RepeatOption
		want time.Time
	}{
		{"daily", date(2024, 1, 31), model.RepeatDaily, date(2024, 2, 1)},
		{"daily over leap day", date(2024, 2, 28), model.RepeatDaily, date(2024, 2, 29)},
		{"weekly", date(2024, 12, 28), model.RepeatWeekly, date(2025, 1, 4)},
		{"monthly same day", date(2024, 3, 15), model.RepeatMonthly, date(2024, 4, 15)},
		{"monthly clamps to leap feb", date(2024, 1, 31), model.RepeatMonthly, date(2024, 2, 29)},
		{"monthly clamps to feb", date(2023, 1, 31), model.RepeatMonthly, date(2023, 2, 28)},
		{"monthly clamps to 30", date(2024, 3, 31), model.RepeatMonthly, date(2024, 4, 30)},
		{"monthly over year end", date(2024, 12, 31), model.RepeatMonthly, date(2025, 1, 31)},
		{"yearly", date(2024, 6, 1), model.RepeatYearly, date(2025, 6, 1)},
		{"yearly leap day clamps", date(2024, 2, 29), model.RepeatYearly, date(2025, 2, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextDueDate(tt.from, tt.rule)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestNextDueDate_ClampCarriesForward(t *testing.T) {
	d := date(2024, 1, 31)
	var got []string
	for range 3 {
		d, _ = NextDueDate(d, model.RepeatMonthly)
		got = append(got, d.Format("2006-01-02"))
	}
	assert.Equal(t, []string{"2024-02-29", "2024-03-29", "2024-04-29"}, got)
}

func TestNextDueDate_KeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// DST starts 2024-03-31 in Berlin.
	from := time.Date(2024, 3, 30, 8, 0, 0, 0, loc)
	got, ok := NextDueDate(from, model.RepeatDaily)
	require.True(t, ok)
	assert.Equal(t, 8, got.Hour())
	assert.Equal(t, 31, got.Day())
	assert.Equal(t, 23*time.Hour, got.Sub(from))
}

func TestDayKeyAndStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	ts := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-01-02", DayKey(ts, loc))
	assert.True(t, time.Date(2024, 1, 2, 0, 0, 0, 0, loc).Equal(StartOfDay(ts, loc)))
}
