package query

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)

	db, err := gdb.DB()
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE attempts (id INTEGER PRIMARY KEY, student TEXT, score REAL, finished INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO attempts (id, student, score, finished) VALUES
		(1, 'ann', 61.5, 1),
		(2, 'bob', NULL, 0),
		(3, 'cat', 90, 1),
		(4, 'dan', 55, 1)`)
	require.NoError(t, err)
	return db
}

func collectRows(t *testing.T, rs *RowSet) [][]Value {
	t.Helper()

	var rows [][]Value
	for {
		row, err := rs.Next()
		require.NoError(t, err)
		if row == nil {
			return rows
		}
		rows = append(rows, row)
	}
}

func TestExecute(t *testing.T) {
	db := openTestDB(t)

	rs, err := Execute(db, "SELECT student, score FROM attempts ORDER BY id", nil, 0)
	require.NoError(t, err)
	defer rs.Close()

	assert.Equal(t, []string{"student", "score"}, rs.Columns())

	rows := collectRows(t, rs)
	require.Len(t, rows, 4)
	assert.Equal(t, "ann", rows[0][0].String())
	assert.Equal(t, "61.5", rows[0][1].String())
	assert.Equal(t, KindNull, rows[1][1].Kind)
	assert.Equal(t, "", rows[1][1].String())
}

func TestExecuteNamedParams(t *testing.T) {
	db := openTestDB(t)

	// String values that look like integers are bound as integers, so
	// comparisons against integer columns behave.
	rs, err := Execute(db,
		"SELECT student FROM attempts WHERE finished = :finished AND student != :skip ORDER BY id",
		map[string]string{"finished": "1", "skip": "cat"}, 0)
	require.NoError(t, err)
	defer rs.Close()

	rows := collectRows(t, rs)
	require.Len(t, rows, 2)
	assert.Equal(t, "ann", rows[0][0].String())
	assert.Equal(t, "dan", rows[1][0].String())
}

func TestExecuteLimit(t *testing.T) {
	db := openTestDB(t)

	rs, err := Execute(db, "SELECT id FROM attempts ORDER BY id", nil, 2)
	require.NoError(t, err)
	defer rs.Close()

	rows := collectRows(t, rs)
	require.Len(t, rows, 2)

	// Exhausted cursors stay exhausted.
	row, err := rs.Next()
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestExecuteBadSQL(t *testing.T) {
	db := openTestDB(t)

	_, err := Execute(db, "SELECT * FROM no_such_table", nil, 0)
	require.Error(t, err)

	var qerr *QueryError
	assert.ErrorAs(t, err, &qerr)
}

func TestValueIntValue(t *testing.T) {
	n, ok := Value{Kind: KindInt, Int: 7}.IntValue()
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	n, ok = Value{Kind: KindString, Str: "42"}.IntValue()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = Value{Kind: KindString, Str: "2013-10-07"}.IntValue()
	assert.False(t, ok)

	_, ok = Value{Kind: KindFloat, Float: 3.5}.IntValue()
	assert.False(t, ok)
}
