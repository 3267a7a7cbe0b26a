package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/state"
)

func testSQLLoader(d Dialect) *SQLLoader {
	cfg := SQLConfig{
		Table:         "products",
		Columns:       []string{"id", "sku", "name", "price"},
		IDColumn:      "id",
		SearchColumns: []string{"sku", "name"},
		Dialect:       d,
	}
	allowed := make(map[string]bool, len(cfg.Columns))
	for _, c := range cfg.Columns {
		allowed[c] = true
	}
	return &SQLLoader{cfg: cfg, allowed: allowed, log: zap.NewNop()}
}

func testSQLQuery() Query {
	return Query{
		Pagination: state.PaginationModel{Page: 1, PageSize: 25},
		Sort:       state.SortModel{{Field: "price", Direction: state.SortDesc}},
		Filter: state.FilterModel{Items: []state.FilterItem{
			{Field: "name", Operator: state.OpContains, Value: "anv"},
			{Field: "price", Operator: state.OpGte, Value: 10},
		}},
		Search: "ro",
	}
}

func TestSQLBuilderMySQL(t *testing.T) {
	l := testSQLLoader(DialectMySQL)
	q := testSQLQuery()

	where, args, err := l.buildWhere(q)
	require.NoError(t, err)
	assert.Equal(t,
		"(LOWER(`name`) LIKE LOWER(?) AND `price` >= ?) AND (LOWER(`sku`) LIKE LOWER(?) OR LOWER(`name`) LIKE LOWER(?))",
		where)
	assert.Equal(t, []interface{}{"%anv%", 10, "%ro%", "%ro%"}, args)

	query, queryArgs, err := l.buildSelect(q, where, args)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `id`, `sku`, `name`, `price` FROM `products` WHERE "+
			"(LOWER(`name`) LIKE LOWER(?) AND `price` >= ?) AND (LOWER(`sku`) LIKE LOWER(?) OR LOWER(`name`) LIKE LOWER(?))"+
			" ORDER BY `price` DESC, `id` ASC LIMIT ? OFFSET ?",
		query)
	assert.Equal(t, []interface{}{"%anv%", 10, "%ro%", "%ro%", 25, 25}, queryArgs)
}

func TestSQLBuilderPostgres(t *testing.T) {
	l := testSQLLoader(DialectPostgres)
	q := testSQLQuery()

	where, args, err := l.buildWhere(q)
	require.NoError(t, err)
	assert.Equal(t,
		`("name" ILIKE $1 AND "price" >= $2) AND ("sku" ILIKE $3 OR "name" ILIKE $4)`,
		where)
	assert.Equal(t, []interface{}{"%anv%", 10, "%ro%", "%ro%"}, args)

	query, queryArgs, err := l.buildSelect(q, where, args)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "id", "sku", "name", "price" FROM "products" WHERE `+
			`("name" ILIKE $1 AND "price" >= $2) AND ("sku" ILIKE $3 OR "name" ILIKE $4)`+
			` ORDER BY "price" DESC, "id" ASC LIMIT $5 OFFSET $6`,
		query)
	assert.Equal(t, []interface{}{"%anv%", 10, "%ro%", "%ro%", 25, 25}, queryArgs)
}

func TestSQLBuilderOperators(t *testing.T) {
	l := testSQLLoader(DialectMySQL)

	tests := []struct {
		name      string
		item      state.FilterItem
		wantWhere string
		wantArgs  []interface{}
	}{
		{
			name:      "equals",
			item:      state.FilterItem{Field: "sku", Operator: state.OpEquals, Value: "A-100"},
			wantWhere: "(`sku` = ?)",
			wantArgs:  []interface{}{"A-100"},
		},
		{
			name:      "is empty",
			item:      state.FilterItem{Field: "name", Operator: state.OpIsEmpty},
			wantWhere: "((`name` IS NULL OR `name` = ''))",
			wantArgs:  nil,
		},
		{
			name:      "is any of",
			item:      state.FilterItem{Field: "sku", Operator: state.OpIsAnyOf, Value: []string{"A", "B"}},
			wantWhere: "(`sku` IN (?, ?))",
			wantArgs:  []interface{}{"A", "B"},
		},
		{
			name:      "is any of nothing",
			item:      state.FilterItem{Field: "sku", Operator: state.OpIsAnyOf, Value: []string{}},
			wantWhere: "(1 = 0)",
			wantArgs:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, err := l.buildWhere(Query{Filter: state.FilterModel{Items: []state.FilterItem{tt.item}}})
			require.NoError(t, err)
			assert.Equal(t, tt.wantWhere, where)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSQLBuilderRejectsUnknownFields(t *testing.T) {
	l := testSQLLoader(DialectMySQL)

	_, _, err := l.buildWhere(Query{Filter: state.FilterModel{Items: []state.FilterItem{
		{Field: "password", Operator: state.OpEquals, Value: "x"},
	}}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, _, err = l.buildSelect(Query{
		Pagination: state.PaginationModel{PageSize: 10},
		Sort:       state.SortModel{{Field: "secret", Direction: state.SortAsc}},
	}, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestSQLBuilderNoFilter(t *testing.T) {
	l := testSQLLoader(DialectPostgres)

	where, args, err := l.buildWhere(Query{})
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Empty(t, args)

	query, queryArgs, err := l.buildSelect(Query{
		Pagination: state.PaginationModel{Page: 0, PageSize: 50},
	}, where, args)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "id", "sku", "name", "price" FROM "products" ORDER BY "id" ASC LIMIT $1 OFFSET $2`,
		query)
	assert.Equal(t, []interface{}{50, 0}, queryArgs)
}

func TestNewSQLValidation(t *testing.T) {
	_, err := NewSQL(nil, SQLConfig{Table: "t", Columns: []string{"id"}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off`, escapeLike("50%_off"))
	assert.Equal(t, `c:\\temp`, escapeLike(`c:\temp`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestNormalizeSQLValue(t *testing.T) {
	assert.Equal(t, "text", normalizeSQLValue([]byte("text")))
	assert.Equal(t, int64(7), normalizeSQLValue(int64(7)))
	assert.Nil(t, normalizeSQLValue(nil))
}
