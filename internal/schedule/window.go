package schedule

import (
	"fmt"
	"time"

	"github.com/sqlreports/internal/models"
)

// ConfigurationError reports a runable value the window calculator cannot
// handle. It indicates corrupt report data, not a recoverable condition.
type ConfigurationError struct {
	Runable models.Runable
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unexpected report runable value: %q", e.Runable)
}

// DailyWindow returns the instant of hour `at` on the calendar day
// containing now, and the same hour the day before. Calendar arithmetic is
// used, so the result is correct across DST and month boundaries.
func DailyWindow(now time.Time, at int) (today, yesterday time.Time) {
	y, m, d := now.Date()
	today = time.Date(y, m, d, at, 0, 0, 0, now.Location())
	yesterday = time.Date(y, m, d-1, at, 0, 0, 0, now.Location())
	return today, yesterday
}

// WeekWindow returns midnight of the most recent day (including today)
// whose weekday equals startWeekday (0=Sunday..6=Saturday), and the same
// instant a week earlier. The -1 "use calendar default" sentinel must be
// resolved by the caller before this is called.
func WeekWindow(now time.Time, startWeekday int) (thisWeek, lastWeek time.Time) {
	y, m, d := now.Date()
	daysAfterWeekStart := (int(now.Weekday()) - startWeekday + 7) % 7
	thisWeek = time.Date(y, m, d-daysAfterWeekStart, 0, 0, 0, 0, now.Location())
	lastWeek = time.Date(y, m, d-daysAfterWeekStart-7, 0, 0, 0, 0, now.Location())
	return thisWeek, lastWeek
}

// MonthWindow returns midnight on the 1st of the current and the previous
// calendar month. time.Date normalizes month 0 to December of the previous
// year, which gives the January rollover for free.
func MonthWindow(now time.Time) (thisMonth, lastMonth time.Time) {
	y, m, _ := now.Date()
	thisMonth = time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	lastMonth = time.Date(y, m-1, 1, 0, 0, 0, 0, now.Location())
	return thisMonth, lastMonth
}

// WindowFor returns the two window boundaries for a scheduled report:
// current is the boundary for the period containing now, previous the one
// before it. The query window substituted into the SQL runs from previous
// to current; current also names the archive CSV for the run.
func WindowFor(report *models.Report, now time.Time, weekStart int) (current, previous time.Time, err error) {
	switch report.Runable {
	case models.RunableDaily:
		current, previous = DailyWindow(now, report.At)
	case models.RunableWeekly:
		current, previous = WeekWindow(now, weekStart)
	case models.RunableMonthly:
		current, previous = MonthWindow(now)
	default:
		return time.Time{}, time.Time{}, &ConfigurationError{Runable: report.Runable}
	}
	return current, previous, nil
}
