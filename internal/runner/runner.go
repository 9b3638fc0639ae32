package runner

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sqlreports/internal/config"
	"github.com/sqlreports/internal/csvreport"
	"github.com/sqlreports/internal/models"
	"github.com/sqlreports/internal/notify"
	"github.com/sqlreports/internal/query"
	"github.com/sqlreports/internal/schedule"
	"gorm.io/gorm"
)

// Runner executes due reports: it prepares and runs each query, streams
// the results to CSV, records the run, and fans out to the email and
// custom-directory sinks. Each report's failures are isolated to that
// report; a pass always moves on to the next due report.
type Runner struct {
	db       *gorm.DB
	cfg      *config.Config
	mailer   *notify.Mailer
	slack    *notify.SlackNotifier
	interval time.Duration
	stopChan chan struct{}
}

func New(cfg *config.Config, db *gorm.DB, mailer *notify.Mailer, slack *notify.SlackNotifier) *Runner {
	return &Runner{
		db:       db,
		cfg:      cfg,
		mailer:   mailer,
		slack:    slack,
		interval: time.Duration(cfg.Schedule.Interval) * time.Minute,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic scheduler loop.
func (r *Runner) Start() {
	ticker := time.NewTicker(r.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.RunPass(time.Now())
			case <-r.stopChan:
				return
			}
		}
	}()
}

func (r *Runner) Stop() {
	close(r.stopChan)
}

// RunPass runs everything due at now: old temp files are cleaned up
// first, then each due report executes in ascending last-run order.
func (r *Runner) RunPass(now time.Time) {
	weekStart := r.cfg.WeekStart()

	_, startOfLastWeek := schedule.WeekWindow(now, weekStart)
	if deleted, err := csvreport.DeleteOldTempFiles(r.cfg.Site.DataRoot, startOfLastWeek); err != nil {
		log.Printf("Temp file cleanup: %v", err)
	} else if deleted > 0 {
		log.Printf("Deleted %d old temporary report files", deleted)
	}

	due, err := schedule.DueReports(r.db, now, weekStart)
	if err != nil {
		log.Printf("Failed to select due reports: %v", err)
		return
	}

	userID := r.schedulerUserID()
	for i := range due {
		report := &due[i]
		log.Printf("Running report %q", report.DisplayName)
		if _, err := r.Run(report, now, userID, nil); err != nil {
			log.Printf("REPORT FAILED %q: %v", report.DisplayName, err)
			if r.slack != nil {
				if slackErr := r.slack.NotifyRunFailure(report.DisplayName, err); slackErr != nil {
					log.Printf("Failed to notify slack: %v", slackErr)
				}
			}
		}
	}
}

// schedulerUserID resolves the identity scheduled runs substitute for
// %%USERID%%: the site's first admin user.
func (r *Runner) schedulerUserID() uint {
	var admin models.User
	if err := r.db.Where("role = ?", models.RoleAdmin).Order("id").First(&admin).Error; err != nil {
		return 0
	}
	return admin.ID
}

// Run executes one report at now and dispatches the result. params
// overrides the stored query params when non-nil (manual runs collect
// them from the invoking user). It returns the path of the CSV written,
// empty when the query returned no rows.
//
// The report's lastrun and lastexecutiontime are updated whatever the
// outcome, so a failing or empty report is not retried until its schedule
// next makes it due.
func (r *Runner) Run(report *models.Report, now time.Time, userID uint, params map[string]string) (string, error) {
	started := time.Now()

	csvPath, _, runErr := r.generateCSV(report, now, userID, params)

	elapsed := time.Since(started).Milliseconds()
	if err := r.db.Model(&models.Report{}).Where("id = ?", report.ID).Updates(map[string]interface{}{
		"last_run":            now.Unix(),
		"last_execution_time": elapsed,
	}).Error; err != nil {
		log.Printf("Failed to record run of report %q: %v", report.DisplayName, err)
	}
	report.LastRun = now.Unix()
	report.LastExecutionTime = elapsed

	if runErr != nil {
		return "", runErr
	}

	if report.IsScheduled() {
		if report.EmailTo != "" {
			if err := r.mailer.EmailReport(report, csvPath); err != nil {
				log.Printf("Failed to email report %q: %v", report.DisplayName, err)
			}
		}
		if report.CustomDir != "" {
			if err := r.copyToCustomDir(report, csvPath); err != nil {
				log.Printf("Failed to export report %q: %v", report.DisplayName, err)
			}
		}
	}

	return csvPath, nil
}

// generateCSV runs the query and streams the rows into the report's CSV
// target. No file is created when the query returns no rows. A sentinel
// row is appended when more rows came back than the report's limit.
func (r *Runner) generateCSV(report *models.Report, now time.Time, userID uint, params map[string]string) (string, int, error) {
	weekStart := r.cfg.WeekStart()

	sqlText, err := query.PrepareSQL(report, now, userID, weekStart)
	if err != nil {
		return "", 0, err
	}
	sqlText = query.SubstitutePrefix(sqlText, r.cfg.Database.TablePrefix)

	if params == nil {
		params = report.ParamsMap()
	}
	limit := r.cfg.EffectiveQueryLimit(report.QueryLimit)

	sqlDB, err := r.db.DB()
	if err != nil {
		return "", 0, &query.QueryError{Err: err}
	}

	// One extra row, so we can tell whether the limit was hit.
	rowSet, err := query.Execute(sqlDB, sqlText, params, limit+1)
	if err != nil {
		return "", 0, err
	}
	defer rowSet.Close()

	var (
		file    *os.File
		csvPath string
		count   int
	)
	for {
		row, err := rowSet.Next()
		if err != nil {
			if file != nil {
				file.Close()
			}
			return "", count, err
		}
		if row == nil {
			break
		}

		if file == nil {
			path, _, err := csvreport.SelectTarget(r.cfg.Site.DataRoot, report, now, weekStart)
			if err != nil {
				return "", count, err
			}
			f, needHeader, err := csvreport.OpenTarget(path)
			if err != nil {
				return "", count, err
			}
			file = f
			csvPath = path
			if needHeader {
				if err := csvreport.WriteHeaderRow(file, rowSet.Columns(), report.QuerySQL,
					report.SingleRow, r.cfg.Site.WWWRoot); err != nil {
					file.Close()
					return "", count, err
				}
			}
		}

		fields := make([]string, 0, len(row)+1)
		if report.SingleRow {
			fields = append(fields, now.Format("2006-01-02"))
		}
		for i, value := range row {
			fields = append(fields, csvreport.FormatValue(rowSet.Columns()[i], value, now.Location()))
		}
		if err := csvreport.WriteRow(file, fields, r.cfg.Site.WWWRoot); err != nil {
			file.Close()
			return "", count, err
		}
		count++
	}

	if file != nil {
		if count > limit {
			if err := csvreport.WriteRow(file, []string{csvreport.LimitExceededMarker}, r.cfg.Site.WWWRoot); err != nil {
				file.Close()
				return "", count, err
			}
		}
		if err := file.Close(); err != nil {
			return "", count, &csvreport.FileSystemError{Op: "close", Path: csvPath, Err: err}
		}
	}

	return csvPath, count, nil
}

// copyToCustomDir copies the run's CSV into the report's export location,
// named <reportID>-<basename>. When the run produced no data and the
// target is a single file rather than a directory, the file is reset to
// empty so it cannot carry stale rows from an earlier run.
func (r *Runner) copyToCustomDir(report *models.Report, csvPath string) error {
	if csvPath == "" {
		info, err := os.Stat(report.CustomDir)
		if err == nil && info.IsDir() {
			return nil
		}
		if err := os.WriteFile(report.CustomDir, nil, 0644); err != nil {
			return &csvreport.FileSystemError{Op: "reset", Path: report.CustomDir, Err: err}
		}
		log.Printf("No data so resetting %s", report.CustomDir)
		return nil
	}

	target := report.CustomDir
	if info, err := os.Stat(report.CustomDir); err == nil && info.IsDir() {
		target = filepath.Join(report.CustomDir, fmt.Sprintf("%d-%s", report.ID, filepath.Base(csvPath)))
	}

	if err := copyFile(csvPath, target); err != nil {
		return &csvreport.FileSystemError{Op: "copy", Path: target, Err: err}
	}
	log.Printf("Exported %s to %s", csvPath, target)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
