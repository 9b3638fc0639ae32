package schedule

import (
	"sort"
	"time"

	"github.com/sqlreports/internal/models"
	"gorm.io/gorm"
)

// IsDailyReportDue decides whether a daily report should run now.
//
// The report must not fire before its configured hour, and must fire at
// most once per calendar day however late the scheduler pass happens. If a
// whole day's pass was missed, the next pass catches up with a single run:
// the report is due as soon as its run time has passed and the last run's
// calendar day is behind today's.
func IsDailyReportDue(report *models.Report, now time.Time) bool {
	runTimeToday, _ := DailyWindow(now, report.At)

	today, _ := DailyWindow(now, 0)
	lastRunDay, _ := DailyWindow(time.Unix(report.LastRun, 0).In(now.Location()), 0)

	return !runTimeToday.After(now) && today.After(lastRunDay)
}

// DueReports returns every report due to run at now, ordered by ascending
// last run so the most starved reports go first. Manual reports are never
// selected.
func DueReports(db *gorm.DB, now time.Time, weekStart int) ([]models.Report, error) {
	var due []models.Report

	var daily []models.Report
	if err := db.Where("runable = ?", models.RunableDaily).Find(&daily).Error; err != nil {
		return nil, err
	}
	for _, report := range daily {
		if IsDailyReportDue(&report, now) {
			due = append(due, report)
		}
	}

	// Weekly and monthly windows do not depend on per-report settings, so
	// they are computed once for the whole pass.
	startOfThisWeek, _ := WeekWindow(now, weekStart)
	startOfThisMonth, _ := MonthWindow(now)

	var scheduled []models.Report
	if err := db.Where("(runable = ? AND last_run < ?) OR (runable = ? AND last_run < ?)",
		models.RunableWeekly, startOfThisWeek.Unix(),
		models.RunableMonthly, startOfThisMonth.Unix()).
		Find(&scheduled).Error; err != nil {
		return nil, err
	}
	due = append(due, scheduled...)

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].LastRun < due[j].LastRun
	})

	return due, nil
}
