package schedule

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sqlreports/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func dailyReport(at int, lastRun time.Time) *models.Report {
	return &models.Report{
		Runable: models.RunableDaily,
		At:      at,
		LastRun: lastRun.Unix(),
	}
}

func TestIsDailyReportDue(t *testing.T) {
	today2am := date(2009, time.November, 11, 2, 0)
	yesterday2am := date(2009, time.November, 10, 2, 0)

	// Last run recorded "tomorrow" relative to now: not due.
	assert.False(t, IsDailyReportDue(dailyReport(2, today2am), yesterday2am))

	// Ran at this time yesterday, now is exactly the run time today: due.
	assert.True(t, IsDailyReportDue(dailyReport(1, yesterday2am), today2am))
	assert.True(t, IsDailyReportDue(dailyReport(2, yesterday2am), today2am))

	// Set to run next hour, last ran this hour yesterday: not yet due.
	assert.False(t, IsDailyReportDue(dailyReport(3, yesterday2am), today2am))

	// Should run at 1am and already did; it must not fire again late in
	// the same day.
	oneAM := date(2009, time.November, 11, 1, 0)
	elevenPM := date(2009, time.November, 11, 23, 0)
	assert.False(t, IsDailyReportDue(dailyReport(1, oneAM), elevenPM))

	// Yesterday's pass was delayed, so the 2am report actually ran at
	// 4am. Today it should catch up and run at 2am again.
	fourAMYesterday := date(2009, time.November, 10, 4, 0)
	assert.True(t, IsDailyReportDue(dailyReport(2, fourAMYesterday), today2am))
}

func TestIsDailyReportDueIdempotent(t *testing.T) {
	now := date(2009, time.November, 11, 2, 0)
	report := dailyReport(2, date(2009, time.November, 10, 2, 0))

	require.True(t, IsDailyReportDue(report, now))

	// After the run's bookkeeping, the same pass input no longer
	// selects the report.
	report.LastRun = now.Unix()
	assert.False(t, IsDailyReportDue(report, now))
}

func TestDueReports(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Report{}))

	now := date(2009, time.November, 11, 12, 0) // a Wednesday
	startOfThisWeek, _ := WeekWindow(now, 0)
	startOfThisMonth, _ := MonthWindow(now)

	dueDaily := models.Report{DisplayName: "due daily", CategoryID: 1, QuerySQL: "SELECT 1",
		Runable: models.RunableDaily, At: 2, LastRun: date(2009, time.November, 10, 2, 0).Unix()}
	ranDaily := models.Report{DisplayName: "ran daily", CategoryID: 1, QuerySQL: "SELECT 1",
		Runable: models.RunableDaily, At: 2, LastRun: date(2009, time.November, 11, 2, 0).Unix()}
	dueWeekly := models.Report{DisplayName: "due weekly", CategoryID: 1, QuerySQL: "SELECT 1",
		Runable: models.RunableWeekly, LastRun: startOfThisWeek.AddDate(0, 0, -1).Unix()}
	ranWeekly := models.Report{DisplayName: "ran weekly", CategoryID: 1, QuerySQL: "SELECT 1",
		Runable: models.RunableWeekly, LastRun: startOfThisWeek.Add(time.Hour).Unix()}
	dueMonthly := models.Report{DisplayName: "due monthly", CategoryID: 1, QuerySQL: "SELECT 1",
		Runable: models.RunableMonthly, LastRun: startOfThisMonth.AddDate(0, 0, -3).Unix()}
	manual := models.Report{DisplayName: "manual", CategoryID: 1, QuerySQL: "SELECT 1",
		Runable: models.RunableManual}

	for _, report := range []*models.Report{&dueDaily, &ranDaily, &dueWeekly, &ranWeekly, &dueMonthly, &manual} {
		require.NoError(t, db.Create(report).Error)
	}

	due, err := DueReports(db, now, 0)
	require.NoError(t, err)

	var names []string
	for _, report := range due {
		names = append(names, report.DisplayName)
	}
	// Oldest-starved first: ascending lastrun.
	assert.Equal(t, []string{"due monthly", "due weekly", "due daily"}, names)
}
