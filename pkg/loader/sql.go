package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/state"
)

// Dialect selects placeholder and quoting style for SQL generation.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d Dialect) quote(ident string) string {
	if d == DialectPostgres {
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// likeExpr renders a case-insensitive LIKE. Postgres has ILIKE; MySQL
// folds both sides instead since LIKE sensitivity depends on collation.
func (d Dialect) likeExpr(col, placeholder string) string {
	if d == DialectPostgres {
		return fmt.Sprintf("%s ILIKE %s", col, placeholder)
	}
	return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", col, placeholder)
}

func (d Dialect) emptyExpr(col string) string {
	if d == DialectPostgres {
		return fmt.Sprintf("(%s IS NULL OR %s::text = '')", col, col)
	}
	return fmt.Sprintf("(%s IS NULL OR %s = '')", col, col)
}

// SQLConfig describes the table a SQLLoader reads from.
type SQLConfig struct {
	// Table is the table or view name.
	Table string

	// Columns is the allowlist of selectable columns. Filter, sort and
	// search fields outside this list are rejected.
	Columns []string

	// IDColumn is the stable tie-break column appended to every ORDER
	// BY. Defaults to "id" and must appear in Columns.
	IDColumn string

	// SearchColumns are the columns scanned by quick search. Defaults
	// to all of Columns.
	SearchColumns []string

	Dialect Dialect
}

// SQLLoader serves grid queries from a relational table through
// database/sql. Filters, sorting and pagination are pushed down to the
// database; identifiers are validated against a column allowlist and
// all values travel as bind parameters.
type SQLLoader struct {
	db      *sql.DB
	cfg     SQLConfig
	allowed map[string]bool
	log     *zap.Logger
}

// NewSQL builds a SQL loader. The column allowlist is required since
// it is the only guard between caller-supplied field names and the
// generated statements.
func NewSQL(db *sql.DB, cfg SQLConfig) (*SQLLoader, error) {
	if db == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "sql loader requires a database handle")
	}
	if cfg.Table == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "sql loader requires a table name")
	}
	if len(cfg.Columns) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "sql loader requires a column allowlist")
	}
	if cfg.Dialect == "" {
		cfg.Dialect = DialectMySQL
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	if len(cfg.SearchColumns) == 0 {
		cfg.SearchColumns = cfg.Columns
	}

	allowed := make(map[string]bool, len(cfg.Columns))
	for _, c := range cfg.Columns {
		allowed[c] = true
	}
	if !allowed[cfg.IDColumn] {
		return nil, errors.Newf(errors.ErrorTypeConfig, "id column %q not in column allowlist", cfg.IDColumn)
	}
	for _, c := range cfg.SearchColumns {
		if !allowed[c] {
			return nil, errors.Newf(errors.ErrorTypeConfig, "search column %q not in column allowlist", c)
		}
	}

	return &SQLLoader{
		db:      db,
		cfg:     cfg,
		allowed: allowed,
		log:     logger.Get().Named("loader.sql").With(zap.String("table", cfg.Table)),
	}, nil
}

// Load runs a COUNT for the filtered total and a page SELECT, and
// scans the page into rows keyed by column name.
func (l *SQLLoader) Load(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	where, args, err := l.buildWhere(q)
	if err != nil {
		return Result{}, err
	}

	total, err := l.count(ctx, where, args)
	if err != nil {
		return Result{}, err
	}

	query, queryArgs, err := l.buildSelect(q, where, args)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	rows, err := l.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.ErrorTypeLoader, "page query failed").
			WithDetail("table", l.cfg.Table)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return Result{}, err
	}

	l.log.Debug("page loaded",
		zap.Int("rows", len(out)),
		zap.Int("total", total),
		zap.Int("page", q.Pagination.Page),
		zap.Duration("elapsed", time.Since(start)))

	return Result{Rows: out, TotalCount: total}, nil
}

func (l *SQLLoader) count(ctx context.Context, where string, args []interface{}) (int, error) {
	query := "SELECT COUNT(*) FROM " + l.cfg.Dialect.quote(l.cfg.Table)
	if where != "" {
		query += " WHERE " + where
	}

	var total int
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeLoader, "count query failed").
			WithDetail("table", l.cfg.Table)
	}
	return total, nil
}

// buildWhere renders the filter model plus quick search as a WHERE
// clause. Placeholder numbering starts at 1 since WHERE args always
// bind first.
func (l *SQLLoader) buildWhere(q Query) (string, []interface{}, error) {
	var (
		clauses []string
		args    []interface{}
	)

	next := func() string { return l.cfg.Dialect.placeholder(len(args) + 1) }

	var itemClauses []string
	for _, item := range q.Filter.Items {
		if !l.allowed[item.Field] {
			return "", nil, errors.Newf(errors.ErrorTypeValidation, "filter field %q not in column allowlist", item.Field)
		}
		col := l.cfg.Dialect.quote(item.Field)

		switch item.Operator {
		case state.OpContains:
			itemClauses = append(itemClauses, l.cfg.Dialect.likeExpr(col, next()))
			args = append(args, "%"+escapeLike(formatValue(item.Value))+"%")
		case state.OpStartsWith:
			itemClauses = append(itemClauses, l.cfg.Dialect.likeExpr(col, next()))
			args = append(args, escapeLike(formatValue(item.Value))+"%")
		case state.OpEndsWith:
			itemClauses = append(itemClauses, l.cfg.Dialect.likeExpr(col, next()))
			args = append(args, "%"+escapeLike(formatValue(item.Value)))
		case state.OpEquals:
			itemClauses = append(itemClauses, fmt.Sprintf("%s = %s", col, next()))
			args = append(args, item.Value)
		case state.OpNotEquals:
			itemClauses = append(itemClauses, fmt.Sprintf("%s <> %s", col, next()))
			args = append(args, item.Value)
		case state.OpIsEmpty:
			itemClauses = append(itemClauses, l.cfg.Dialect.emptyExpr(col))
		case state.OpIsNotEmpty:
			itemClauses = append(itemClauses, "NOT "+l.cfg.Dialect.emptyExpr(col))
		case state.OpIsAnyOf:
			values := anySlice(item.Value)
			if len(values) == 0 {
				itemClauses = append(itemClauses, "1 = 0")
				continue
			}
			holes := make([]string, len(values))
			for i, v := range values {
				holes[i] = next()
				args = append(args, v)
			}
			itemClauses = append(itemClauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(holes, ", ")))
		case state.OpGt:
			itemClauses = append(itemClauses, fmt.Sprintf("%s > %s", col, next()))
			args = append(args, item.Value)
		case state.OpGte:
			itemClauses = append(itemClauses, fmt.Sprintf("%s >= %s", col, next()))
			args = append(args, item.Value)
		case state.OpLt:
			itemClauses = append(itemClauses, fmt.Sprintf("%s < %s", col, next()))
			args = append(args, item.Value)
		case state.OpLte:
			itemClauses = append(itemClauses, fmt.Sprintf("%s <= %s", col, next()))
			args = append(args, item.Value)
		default:
			return "", nil, errors.Newf(errors.ErrorTypeValidation, "unsupported filter operator %q", item.Operator)
		}
	}

	if len(itemClauses) > 0 {
		joiner := " AND "
		if q.Filter.Logic == state.FilterOr {
			joiner = " OR "
		}
		clauses = append(clauses, "("+strings.Join(itemClauses, joiner)+")")
	}

	if term := strings.TrimSpace(q.Search); term != "" {
		var searchClauses []string
		for _, c := range l.cfg.SearchColumns {
			searchClauses = append(searchClauses, l.cfg.Dialect.likeExpr(l.cfg.Dialect.quote(c), next()))
			args = append(args, "%"+escapeLike(term)+"%")
		}
		clauses = append(clauses, "("+strings.Join(searchClauses, " OR ")+")")
	}

	return strings.Join(clauses, " AND "), args, nil
}

// buildSelect renders the page query on top of an already built WHERE
// clause, reusing its args and continuing the placeholder numbering.
func (l *SQLLoader) buildSelect(q Query, where string, whereArgs []interface{}) (string, []interface{}, error) {
	cols := make([]string, len(l.cfg.Columns))
	for i, c := range l.cfg.Columns {
		cols[i] = l.cfg.Dialect.quote(c)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(l.cfg.Dialect.quote(l.cfg.Table))
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	var order []string
	for _, item := range q.Sort {
		if !l.allowed[item.Field] {
			return "", nil, errors.Newf(errors.ErrorTypeValidation, "sort field %q not in column allowlist", item.Field)
		}
		dir := "ASC"
		if item.Direction == state.SortDesc {
			dir = "DESC"
		}
		order = append(order, l.cfg.Dialect.quote(item.Field)+" "+dir)
	}
	// The id tie-break keeps page boundaries stable between requests.
	order = append(order, l.cfg.Dialect.quote(l.cfg.IDColumn)+" ASC")
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(order, ", "))

	args := make([]interface{}, len(whereArgs), len(whereArgs)+2)
	copy(args, whereArgs)

	b.WriteString(" LIMIT ")
	b.WriteString(l.cfg.Dialect.placeholder(len(args) + 1))
	args = append(args, q.Pagination.PageSize)
	b.WriteString(" OFFSET ")
	b.WriteString(l.cfg.Dialect.placeholder(len(args) + 1))
	args = append(args, q.Pagination.Page*q.Pagination.PageSize)

	return b.String(), args, nil
}

// scanRows turns a generic result set into rows keyed by column name.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLoader, "failed to read result columns")
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeLoader, "failed to scan row")
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeSQLValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLoader, "result iteration failed")
	}
	return out, nil
}

// normalizeSQLValue maps driver types onto the value set the query
// engine understands. MySQL returns text as []byte.
func normalizeSQLValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}

// escapeLike escapes LIKE wildcards in user input. Both supported
// dialects treat backslash as the default escape character.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
