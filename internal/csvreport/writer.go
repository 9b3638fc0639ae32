package csvreport

import (
	"encoding/csv"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sqlreports/internal/query"
)

// LimitExceededMarker is written as a trailing single-field row when a
// query returned more rows than its limit.
const LimitExceededMarker = "-- ROW LIMIT EXCEEDED --"

// RunDateColumn is prepended to every row of an accumulating report.
const RunDateColumn = "Query run date"

var dateFieldRegexp = regexp.MustCompile(`(?i)^date|date$`)

// IsDateField reports whether a column name marks a date-typed column,
// i.e. it starts or ends with "date".
func IsDateField(name string) bool {
	return dateFieldRegexp.MatchString(name)
}

// FormatValue renders one cell for CSV output. Values in date-typed
// columns that look like positive epoch timestamps are rendered as
// date-time strings; everything else is rendered literally.
func FormatValue(columnName string, value query.Value, loc *time.Location) string {
	if IsDateField(columnName) {
		if n, ok := value.IntValue(); ok && n > 0 {
			return time.Unix(n, 0).In(loc).Format("2006-01-02 15:04:05")
		}
	}
	return value.String()
}

// DeriveHeaders matches up the 'Column name' and 'Column name link url'
// columns from a row of raw column names.
//
// It returns the display headers, and a map where linkColumns[i] = j means
// column i renders as a hyperlink to column j's value, and
// linkColumns[i] = -1 means column i is a consumed link-url source that is
// suppressed from output. A ' link url' column with no matching base
// column stays a plain column.
func DeriveHeaders(raw []string) ([]string, map[int]int) {
	present := make(map[string]int, len(raw))
	for i, name := range raw {
		if _, ok := present[name]; !ok {
			present[name] = i
		}
	}

	var headers []string
	linkColumns := make(map[int]int)

	for i, name := range raw {
		if base, ok := strings.CutSuffix(name, " link url"); ok {
			if _, exists := present[base]; exists {
				// This is the link url source for another column. Skip.
				linkColumns[i] = -1
				continue
			}
		}
		if j, ok := present[name+" link url"]; ok {
			headers = append(headers, name)
			linkColumns[i] = j
		} else {
			headers = append(headers, name)
		}
	}

	return headers, linkColumns
}

// PrettifyColumnNames recovers likely original-case column names.
//
// Database engines tend to lower-case result columns; this scans the
// SELECT clause text for a case-insensitive match and uses its spelling,
// then turns underscores into spaces. Best effort only: complex SQL may
// defeat the pattern, in which case the raw name is kept.
func PrettifyColumnNames(columns []string, querySQL string) []string {
	pretty := make([]string, len(columns))
	for i, name := range columns {
		pattern := regexp.MustCompile(`(?is)SELECT.*?\s(` + regexp.QuoteMeta(name) + `)\b`)
		if m := pattern.FindStringSubmatchIndex(querySQL); m != nil {
			name = querySQL[m[2]:m[3]]
		}
		pretty[i] = strings.ReplaceAll(name, "_", " ")
	}
	return pretty
}

// WriteRow writes one always-quoted, CRLF-terminated CSV row, expanding
// the escape tokens that let query authors embed reserved characters in
// generated values.
func WriteRow(w io.Writer, fields []string, wwwRoot string) error {
	escaped := make([]string, len(fields))
	for i, field := range fields {
		field = strings.ReplaceAll(field, "%%WWWROOT%%", wwwRoot)
		field = strings.ReplaceAll(field, "%%Q%%", "?")
		field = strings.ReplaceAll(field, "%%C%%", ":")
		field = strings.ReplaceAll(field, "%%S%%", ";")
		escaped[i] = `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
	}
	_, err := io.WriteString(w, strings.Join(escaped, ",")+"\r\n")
	return err
}

// WriteHeaderRow writes the header row for a run, prepending the run-date
// column in single-row mode.
func WriteHeaderRow(w io.Writer, rawColumns []string, querySQL string, singleRow bool, wwwRoot string) error {
	names := PrettifyColumnNames(rawColumns, querySQL)
	if singleRow {
		names = append([]string{RunDateColumn}, names...)
	}
	return WriteRow(w, names, wwwRoot)
}

// ReadCSV reads a generated CSV back as header plus data rows.
func ReadCSV(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &FileSystemError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}
