package csvreport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sqlreports/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDateField(t *testing.T) {
	assert.True(t, IsDateField("start_date"))
	assert.True(t, IsDateField("startdate"))
	assert.True(t, IsDateField("date_closed"))
	assert.True(t, IsDateField("dateclosed"))
	assert.True(t, IsDateField("Date"))

	assert.False(t, IsDateField("anythingelse"))
	assert.False(t, IsDateField("not_a_date_field"))
	assert.False(t, IsDateField("mandated"))
}

func TestFormatValue(t *testing.T) {
	when := time.Date(2018, time.November, 22, 7, 30, 0, 0, time.Local)
	epoch := query.Value{Kind: query.KindInt, Int: when.Unix()}

	assert.Equal(t, "2018-11-22 07:30:00", FormatValue("startdate", epoch, time.Local))

	// Same value in a non-date column is left as the raw number.
	assert.Equal(t, epoch.String(), FormatValue("total", epoch, time.Local))

	// Zero and negative values in a date column are not timestamps.
	assert.Equal(t, "0", FormatValue("startdate", query.Value{Kind: query.KindInt}, time.Local))

	// Non-integer values pass through.
	text := query.Value{Kind: query.KindString, Str: "Not a date"}
	assert.Equal(t, "Not a date", FormatValue("startdate", text, time.Local))
}

func TestDeriveHeaders(t *testing.T) {
	raw := []string{
		"String date",
		"Date date",
		"URL to link",
		"Link text",
		"Link text link url",
		"Not link",
		"Just a link url",
		"Not link link url",
		"HTML should be escaped",
	}

	headers, linkColumns := DeriveHeaders(raw)

	assert.Equal(t, []string{
		"String date",
		"Date date",
		"URL to link",
		"Link text",
		"Not link",
		"Just a link url",
		"HTML should be escaped",
	}, headers)
	assert.Equal(t, map[int]int{3: 4, 4: -1, 5: 7, 7: -1}, linkColumns)
}

func TestPrettifyColumnNames(t *testing.T) {
	columns := []string{"column", "column_url", "column_3"}
	querySQL := "SELECT 1 AS First, 2 AS Column_URL, 3 AS column_3"
	assert.Equal(t, []string{"column", "Column URL", "column 3"},
		PrettifyColumnNames(columns, querySQL))
}

func TestPrettifyColumnNamesMultiLine(t *testing.T) {
	columns := []string{"column", "column_url", "column_3"}
	querySQL := `SELECT
                     1 AS First,
                     2 AS Column_URL,
                     3 AS column_3
                FROM somewhere`
	assert.Equal(t, []string{"column", "Column URL", "column 3"},
		PrettifyColumnNames(columns, querySQL))
}

func TestPrettifyColumnNamesSameNameDifferentCase(t *testing.T) {
	columns := []string{"course"}
	querySQL := `SELECT t.course AS Course
                FROM somewhere`
	assert.Equal(t, []string{"Course"}, PrettifyColumnNames(columns, querySQL))
}

func TestPrettifyColumnNamesLinkURLColumns(t *testing.T) {
	columns := []string{"website", "website_link_url", "subpage", "subpage_link_url"}
	querySQL := `
            SELECT c.shortname AS Website,
                   '%%WWWROOT%%/course/view?id=' || c.id AS Website_link_url,
                   s.name AS Subpage,
                   '%%WWWROOT%%/subpage/view?id=' || cm.id AS Subpage_link_url

              FROM subpage_sections ss
              JOIN subpage s ON s.id = ss.subpageid
              JOIN course c ON c.id = s.course

          ORDER BY website, subpage`

	assert.Equal(t, []string{"Website", "Website link url", "Subpage", "Subpage link url"},
		PrettifyColumnNames(columns, querySQL))
}

func TestWriteRow(t *testing.T) {
	var sb strings.Builder
	err := WriteRow(&sb, []string{
		`plain`,
		`has "quotes"`,
		`%%WWWROOT%%/course/view.php%%Q%%id=123`,
		`a%%C%%b%%S%%c`,
	}, "https://example.com")
	require.NoError(t, err)

	assert.Equal(t,
		`"plain","has ""quotes""","https://example.com/course/view.php?id=123","a:b;c"`+"\r\n",
		sb.String())
}

func TestWriteHeaderRow(t *testing.T) {
	var sb strings.Builder
	err := WriteHeaderRow(&sb, []string{"course", "num_students"},
		"SELECT x AS Course, y AS Num_Students", false, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, `"Course","Num Students"`+"\r\n", sb.String())

	sb.Reset()
	err = WriteHeaderRow(&sb, []string{"total"}, "SELECT COUNT(*) AS total", true, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, `"Query run date","total"`+"\r\n", sb.String())
}

func TestReadCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	f, err := os.Create(path)
	require.NoError(t, err)

	require.NoError(t, WriteRow(f, []string{"Name", "Total"}, "https://example.com"))
	require.NoError(t, WriteRow(f, []string{`ann, "the" author`, "12"}, "https://example.com"))
	require.NoError(t, WriteRow(f, []string{"bob", "0"}, "https://example.com"))
	require.NoError(t, f.Close())

	header, rows, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Total"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{`ann, "the" author`, "12"}, rows[0])
	assert.Equal(t, []string{"bob", "0"}, rows[1])
}
