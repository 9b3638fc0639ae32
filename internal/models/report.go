package models

import (
	"strings"

	"gorm.io/gorm"
)

type Runable string

const (
	RunableManual  Runable = "manual"
	RunableDaily   Runable = "daily"
	RunableWeekly  Runable = "weekly"
	RunableMonthly Runable = "monthly"
)

type EmailWhat string

const (
	EmailNumberOfRows EmailWhat = "emailnumberofrows"
	EmailResults      EmailWhat = "emailresults"
	EmailAttachment   EmailWhat = "emailattachment"
)

// Category groups reports. It cannot be deleted while reports reference it.
type Category struct {
	gorm.Model
	Name string `json:"name" gorm:"uniqueIndex;not null"`
}

// Report is a saved, parameterized read-only SQL query, with optional
// scheduling and dispatch settings.
type Report struct {
	gorm.Model
	CategoryID        uint      `json:"category_id" gorm:"not null;index"`
	DisplayName       string    `json:"display_name" gorm:"not null"`
	Description       string    `json:"description"`
	QuerySQL          string    `json:"query_sql" gorm:"not null"`
	QueryParams       string    `json:"query_params"` // placeholder name=value pairs, one per line
	QueryLimit        int       `json:"query_limit"`  // 0 means use the site default
	Runable           Runable   `json:"runable" gorm:"not null;default:manual"`
	At                int       `json:"at"` // hour of day, 0-23, daily reports only
	SingleRow         bool      `json:"single_row"`
	LastRun           int64     `json:"last_run"`            // epoch seconds, 0 = never executed
	LastExecutionTime int64     `json:"last_execution_time"` // milliseconds
	EmailTo           string    `json:"email_to"`            // comma-separated usernames
	EmailWhat         EmailWhat `json:"email_what"`
	CustomDir         string    `json:"custom_dir"`
	Capability        string    `json:"capability" gorm:"default:reports:view"`
}

// IsScheduled reports whether the report is run by the scheduler rather
// than on demand.
func (r *Report) IsScheduled() bool {
	return r.Runable != RunableManual
}

// Recipients splits the stored emailto value into usernames.
func (r *Report) Recipients() []string {
	var names []string
	for _, name := range strings.FieldsFunc(r.EmailTo, func(c rune) bool {
		return c == ',' || c == ' ' || c == '\t' || c == '\n'
	}) {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ParamsMap parses the stored query params into placeholder name => value.
func (r *Report) ParamsMap() map[string]string {
	params := make(map[string]string)
	for _, line := range strings.Split(r.QueryParams, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		params[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return params
}

// SetParamsMap serializes placeholder name => value for storage.
func (r *Report) SetParamsMap(params map[string]string) {
	var lines []string
	for name, value := range params {
		lines = append(lines, name+"="+value)
	}
	r.QueryParams = strings.Join(lines, "\n")
}

// Normalize enforces the invariants between runable and the scheduling
// fields: manual reports carry no schedule hour, recipients or export dir,
// and single-row accumulation only applies to scheduled reports.
func (r *Report) Normalize() {
	if r.Runable == RunableManual {
		r.At = 0
		r.EmailTo = ""
		r.EmailWhat = ""
		r.CustomDir = ""
	}
	if r.Runable == RunableManual {
		r.SingleRow = false
	}
}
