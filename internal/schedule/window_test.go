package schedule

import (
	"testing"
	"time"

	"github.com/sqlreports/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, hour, min int) time.Time {
	return time.Date(y, m, d, hour, min, 0, 0, time.Local)
}

func TestDailyWindow(t *testing.T) {
	now := date(2009, time.November, 11, 12, 36)

	today, yesterday := DailyWindow(now, 2)
	assert.Equal(t, date(2009, time.November, 11, 2, 0), today)
	assert.Equal(t, date(2009, time.November, 10, 2, 0), yesterday)

	// Month rollover comes from calendar arithmetic, not 86400-second
	// subtraction.
	today, yesterday = DailyWindow(date(2009, time.March, 1, 5, 0), 4)
	assert.Equal(t, date(2009, time.March, 1, 4, 0), today)
	assert.Equal(t, date(2009, time.February, 28, 4, 0), yesterday)
}

func TestWeekWindow(t *testing.T) {
	tests := []struct {
		startWeekday       int
		now                time.Time
		thisWeek, lastWeek time.Time
	}{
		// Start weekday is Sunday.
		{0, date(2009, time.November, 11, 12, 36), date(2009, time.November, 8, 0, 0), date(2009, time.November, 1, 0, 0)},
		{0, date(2009, time.November, 8, 0, 0), date(2009, time.November, 8, 0, 0), date(2009, time.November, 1, 0, 0)},
		{0, date(2009, time.November, 14, 23, 59), date(2009, time.November, 8, 0, 0), date(2009, time.November, 1, 0, 0)},
		// Start weekday is Monday.
		{1, date(2009, time.November, 6, 12, 36), date(2009, time.November, 2, 0, 0), date(2009, time.October, 26, 0, 0)},
		{1, date(2009, time.November, 2, 0, 0), date(2009, time.November, 2, 0, 0), date(2009, time.October, 26, 0, 0)},
		{1, date(2009, time.November, 8, 23, 59), date(2009, time.November, 2, 0, 0), date(2009, time.October, 26, 0, 0)},
		// Start weekday is Saturday.
		{6, date(2009, time.November, 10, 12, 36), date(2009, time.November, 7, 0, 0), date(2009, time.October, 31, 0, 0)},
		{6, date(2009, time.November, 7, 0, 0), date(2009, time.November, 7, 0, 0), date(2009, time.October, 31, 0, 0)},
		{6, date(2009, time.November, 13, 23, 59), date(2009, time.November, 7, 0, 0), date(2009, time.October, 31, 0, 0)},
	}

	for _, tt := range tests {
		thisWeek, lastWeek := WeekWindow(tt.now, tt.startWeekday)
		assert.Equal(t, tt.thisWeek, thisWeek, "this week for %v start %d", tt.now, tt.startWeekday)
		assert.Equal(t, tt.lastWeek, lastWeek, "last week for %v start %d", tt.now, tt.startWeekday)
	}
}

func TestWeekWindowProperties(t *testing.T) {
	for weekday := 0; weekday < 7; weekday++ {
		now := date(2021, time.June, 15, 9, 30)
		thisWeek, lastWeek := WeekWindow(now, weekday)

		assert.False(t, thisWeek.After(now))
		assert.Equal(t, weekday, int(thisWeek.Weekday()))
		assert.Equal(t, thisWeek.AddDate(0, 0, -7), lastWeek)
	}
}

func TestMonthWindow(t *testing.T) {
	thisMonth, lastMonth := MonthWindow(date(2009, time.November, 10, 12, 36))
	assert.Equal(t, date(2009, time.November, 1, 0, 0), thisMonth)
	assert.Equal(t, date(2009, time.October, 1, 0, 0), lastMonth)

	thisMonth, lastMonth = MonthWindow(date(2009, time.November, 1, 0, 0))
	assert.Equal(t, date(2009, time.November, 1, 0, 0), thisMonth)
	assert.Equal(t, date(2009, time.October, 1, 0, 0), lastMonth)

	thisMonth, lastMonth = MonthWindow(date(2009, time.November, 29, 23, 59))
	assert.Equal(t, date(2009, time.November, 1, 0, 0), thisMonth)
	assert.Equal(t, date(2009, time.October, 1, 0, 0), lastMonth)
}

func TestMonthWindowYearRollover(t *testing.T) {
	thisMonth, lastMonth := MonthWindow(date(2009, time.January, 15, 10, 0))
	assert.Equal(t, date(2009, time.January, 1, 0, 0), thisMonth)
	assert.Equal(t, date(2008, time.December, 1, 0, 0), lastMonth)
}

func TestWindowFor(t *testing.T) {
	now := date(2009, time.November, 11, 12, 36)

	report := &models.Report{Runable: models.RunableDaily, At: 2}
	current, previous, err := WindowFor(report, now, 0)
	require.NoError(t, err)
	assert.Equal(t, date(2009, time.November, 11, 2, 0), current)
	assert.Equal(t, date(2009, time.November, 10, 2, 0), previous)

	report = &models.Report{Runable: models.RunableMonthly}
	current, previous, err = WindowFor(report, now, 0)
	require.NoError(t, err)
	assert.Equal(t, date(2009, time.November, 1, 0, 0), current)
	assert.Equal(t, date(2009, time.October, 1, 0, 0), previous)

	report = &models.Report{Runable: models.RunableManual}
	_, _, err = WindowFor(report, now, 0)
	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, models.RunableManual, confErr.Runable)
}
