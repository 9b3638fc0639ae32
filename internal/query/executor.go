package query

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// QueryError wraps any failure from the underlying store: malformed SQL,
// an unbound placeholder, a permission error or a timeout. The runner does
// not retry these.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
)

// Value is one scalar cell from a result row.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Str
	}
}

// IntValue returns the value as an integer if it is one, or looks like
// one, following the same round-trip rule as parameter coercion.
func (v Value) IntValue() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindString:
		if IsIntegerLike(v.Str) {
			n, _ := strconv.ParseInt(v.Str, 10, 64)
			return n, true
		}
	}
	return 0, false
}

func toValue(raw interface{}) Value {
	switch value := raw.(type) {
	case nil:
		return Value{Kind: KindNull}
	case int64:
		return Value{Kind: KindInt, Int: value}
	case float64:
		return Value{Kind: KindFloat, Float: value}
	case bool:
		if value {
			return Value{Kind: KindInt, Int: 1}
		}
		return Value{Kind: KindInt, Int: 0}
	case []byte:
		return Value{Kind: KindString, Str: string(value)}
	case string:
		return Value{Kind: KindString, Str: value}
	case time.Time:
		return Value{Kind: KindString, Str: value.Format("2006-01-02 15:04:05")}
	default:
		return Value{Kind: KindString, Str: fmt.Sprintf("%v", value)}
	}
}

// RowSet is a lazy, row-limited cursor over a query result. Column order
// is the engine's.
type RowSet struct {
	rows    *sql.Rows
	columns []string
	limit   int
	fetched int
}

// Execute runs the query with named parameters bound, returning at most
// limit rows. Callers that need to detect truncation pass their row cap
// plus one. Parameter values that look like integers are bound as
// integers; the driver is strict about parameter types otherwise.
func Execute(db *sql.DB, sqlText string, params map[string]string, limit int) (*RowSet, error) {
	args := namedArgs(params)

	rows, err := db.Query(sqlText, args...)
	if err != nil {
		return nil, &QueryError{Err: err}
	}

	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, &QueryError{Err: err}
	}

	return &RowSet{rows: rows, columns: columns, limit: limit}, nil
}

func namedArgs(params map[string]string) []interface{} {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]interface{}, 0, len(names))
	for _, name := range names {
		value := params[name]
		if IsIntegerLike(value) {
			n, _ := strconv.ParseInt(value, 10, 64)
			args = append(args, sql.Named(name, n))
		} else {
			args = append(args, sql.Named(name, value))
		}
	}
	return args
}

// Columns returns the result column names in engine order.
func (rs *RowSet) Columns() []string {
	return rs.columns
}

// Next returns the next row, or nil once the row limit or the end of the
// result is reached.
func (rs *RowSet) Next() ([]Value, error) {
	if rs.limit > 0 && rs.fetched >= rs.limit {
		return nil, nil
	}
	if !rs.rows.Next() {
		if err := rs.rows.Err(); err != nil {
			return nil, &QueryError{Err: err}
		}
		return nil, nil
	}

	raw := make([]interface{}, len(rs.columns))
	dests := make([]interface{}, len(rs.columns))
	for i := range raw {
		dests[i] = &raw[i]
	}
	if err := rs.rows.Scan(dests...); err != nil {
		return nil, &QueryError{Err: err}
	}

	values := make([]Value, len(raw))
	for i, cell := range raw {
		values[i] = toValue(cell)
	}
	rs.fetched++
	return values, nil
}

func (rs *RowSet) Close() error {
	return rs.rows.Close()
}
