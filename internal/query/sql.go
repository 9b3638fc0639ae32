package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sqlreports/internal/models"
	"github.com/sqlreports/internal/schedule"
)

// Tokens recognized in stored query SQL.
const (
	TokenStartTime = "%%STARTTIME%%"
	TokenEndTime   = "%%ENDTIME%%"
	TokenUserID    = "%%USERID%%"
)

// Matches runs of colons followed by a placeholder-shaped name. Go's RE2
// has no lookbehind, so `::type` casts are filtered out afterwards by
// checking the run length.
var placeholderRegexp = regexp.MustCompile(`:+[a-z][a-z0-9_]*`)

var prefixRegexp = regexp.MustCompile(`(?i)\bprefix_`)

// Placeholders extracts all named placeholders from the SQL, including the
// leading colon, in order of first appearance.
func Placeholders(sqlText string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range placeholderRegexp.FindAllString(sqlText, -1) {
		if strings.HasPrefix(match, "::") {
			continue
		}
		if !seen[match] {
			seen[match] = true
			names = append(names, match)
		}
	}
	return names
}

// PlaceholderNames is Placeholders without the leading colons.
func PlaceholderNames(sqlText string) []string {
	placeholders := Placeholders(sqlText)
	names := make([]string, len(placeholders))
	for i, placeholder := range placeholders {
		names[i] = placeholder[1:]
	}
	return names
}

// SubstituteTimeTokens replaces the window tokens with literal epoch
// second values.
func SubstituteTimeTokens(sqlText string, start, end int64) string {
	sqlText = strings.ReplaceAll(sqlText, TokenStartTime, strconv.FormatInt(start, 10))
	return strings.ReplaceAll(sqlText, TokenEndTime, strconv.FormatInt(end, 10))
}

// SubstituteUserToken replaces %%USERID%% with the invoking user's id.
func SubstituteUserToken(sqlText string, userID uint) string {
	return strings.ReplaceAll(sqlText, TokenUserID, strconv.FormatUint(uint64(userID), 10))
}

// SubstitutePrefix rewrites the `prefix_` table-name placeholder to the
// actual schema prefix.
func SubstitutePrefix(sqlText, prefix string) string {
	return prefixRegexp.ReplaceAllString(sqlText, prefix)
}

// PrepareSQL performs the token substitutions for one run of a report.
// Scheduled reports get the window bounds substituted; manual reports
// supply their own parameters and have no window.
func PrepareSQL(report *models.Report, now time.Time, userID uint, weekStart int) (string, error) {
	sqlText := report.QuerySQL
	if report.IsScheduled() {
		end, start, err := schedule.WindowFor(report, now, weekStart)
		if err != nil {
			return "", err
		}
		sqlText = SubstituteTimeTokens(sqlText, start.Unix(), end.Unix())
	}
	return SubstituteUserToken(sqlText, userID), nil
}

// BadWords is the list of SQL keywords that mark a query as a write query.
func BadWords() []string {
	return []string{"ALTER", "CREATE", "DELETE", "DROP", "GRANT", "INSERT", "INTO",
		"TRUNCATE", "UPDATE"}
}

var badWordRegexp = regexp.MustCompile(`(?i)\b(` + strings.Join(BadWords(), "|") + `)\b`)

// ContainsBadWord reports whether the SQL contains a blocklisted write
// keyword. This is advisory validation applied when a report is saved; it
// is a keyword blocklist, not a SQL parser, and stored queries are trusted
// at execution time.
func ContainsBadWord(sqlText string) bool {
	return badWordRegexp.MatchString(sqlText)
}

// IsIntegerLike reports whether a string round-trips through integer
// parsing unchanged, e.g. "42" but not "42a" or "2013-10-07".
func IsIntegerLike(value string) bool {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false
	}
	return strconv.FormatInt(n, 10) == value
}
