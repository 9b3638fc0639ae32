package csvreport

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/sqlreports/internal/models"
	"github.com/sqlreports/internal/schedule"
)

const (
	reportsSubdir   = "report_queries"
	timestampLayout = "20060102-150405"

	// AccumulatingFileBase is the fixed file an accumulating report
	// appends to across runs.
	AccumulatingFileBase = "accumulate.csv"
)

// FileSystemError reports a failed directory or file operation. It is
// fatal only to the dispatch step of the report it occurred in.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}

func reportDir(dataRoot string, reportID uint) string {
	return filepath.Join(dataRoot, reportsSubdir, strconv.FormatUint(uint64(reportID), 10))
}

func tempDir(dataRoot string, reportID uint) string {
	return filepath.Join(dataRoot, reportsSubdir, "temp", strconv.FormatUint(uint64(reportID), 10))
}

// SelectTarget chooses the CSV artifact for one run of a report: a fresh
// timestamped temp file for a manual run, the fixed accumulating file for
// a single-row report, or a per-window archive file named by the window
// start. The report's directory is created if absent. The returned
// timestamp identifies the run's artifact (zero for accumulating files).
func SelectTarget(dataRoot string, report *models.Report, now time.Time, weekStart int) (string, time.Time, error) {
	if report.Runable == models.RunableManual {
		dir := tempDir(dataRoot, report.ID)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", time.Time{}, &FileSystemError{Op: "mkdir", Path: dir, Err: err}
		}
		return filepath.Join(dir, now.Format(timestampLayout)+".csv"), now, nil
	}

	dir := reportDir(dataRoot, report.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", time.Time{}, &FileSystemError{Op: "mkdir", Path: dir, Err: err}
	}

	if report.SingleRow {
		return filepath.Join(dir, AccumulatingFileBase), time.Time{}, nil
	}

	windowStart, _, err := schedule.WindowFor(report, now, weekStart)
	if err != nil {
		return "", time.Time{}, err
	}
	return filepath.Join(dir, windowStart.Format(timestampLayout)+".csv"), windowStart, nil
}

// OpenTarget opens the target file for writing, appending if it already
// exists. It reports whether the header row still needs to be written.
func OpenTarget(path string) (*os.File, bool, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, false, &FileSystemError{Op: "open", Path: path, Err: err}
		}
		return f, false, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, false, &FileSystemError{Op: "create", Path: path, Err: err}
	}
	return f, true, nil
}

var archiveNameRegexp = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})-(\d{2})(\d{2})(\d{2})\.csv$`)

// ArchiveTimes lists the window start times of a report's archived CSV
// files, newest first. Manual and accumulating reports have no archive.
func ArchiveTimes(dataRoot string, report *models.Report, loc *time.Location) []time.Time {
	if report.Runable == models.RunableManual || report.SingleRow {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(reportDir(dataRoot, report.ID), "*.csv"))
	if err != nil {
		return nil
	}

	var times []time.Time
	for _, file := range files {
		m := archiveNameRegexp.FindStringSubmatch(filepath.Base(file))
		if m == nil {
			continue
		}
		t, err := time.ParseInLocation(timestampLayout, m[1]+m[2]+m[3]+"-"+m[4]+m[5]+m[6], loc)
		if err != nil {
			continue
		}
		times = append(times, t)
	}

	sort.Slice(times, func(i, j int) bool {
		return times[i].After(times[j])
	})
	return times
}

// DeleteOldTempFiles removes manual-run temp CSVs whose timestamped names
// fall before the cutoff. Returns the number of files deleted.
func DeleteOldTempFiles(dataRoot string, upto time.Time) (int, error) {
	cutoff := upto.Format(timestampLayout) + ".csv"

	files, err := filepath.Glob(filepath.Join(dataRoot, reportsSubdir, "temp", "*", "*.csv"))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, file := range files {
		if filepath.Base(file) < cutoff {
			if err := os.Remove(file); err != nil {
				return count, &FileSystemError{Op: "remove", Path: file, Err: err}
			}
			count++
		}
	}
	return count, nil
}
