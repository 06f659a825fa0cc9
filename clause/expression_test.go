package clause_test

import (
	"testing"

	"github.com/objectbind/objectbind/clause"
	"github.com/stretchr/testify/assert"
)

func TestLeafExpressions(t *testing.T) {
	col := clause.Column{Name: "size"}

	t.Run("Eq", func(t *testing.T) {
		sql, args := clause.Eq{Column: col, Value: "XL"}.Build()
		assert.Equal(t, "size = ?", sql)
		assert.Equal(t, []any{"XL"}, args)
	})

	t.Run("Between accepts equal bounds", func(t *testing.T) {
		sql, args := clause.Between{Column: col, Min: 5, Max: 5}.Build()
		assert.Equal(t, "size BETWEEN ? AND ?", sql)
		assert.Equal(t, []any{5, 5}, args)
	})

	t.Run("In with empty values is always false", func(t *testing.T) {
		sql, args := clause.In{Column: col}.Build()
		assert.Equal(t, "1 = 0", sql)
		assert.Nil(t, args)
	})

	t.Run("NotIn with empty values is always true", func(t *testing.T) {
		sql, args := clause.NotIn{Column: col}.Build()
		assert.Equal(t, "1 = 1", sql)
		assert.Nil(t, args)
	})
}

func TestStringMatch(t *testing.T) {
	col := clause.Column{Name: "color"}

	t.Run("case-insensitive equality uses COLLATE NOCASE", func(t *testing.T) {
		sql, args := clause.StringMatch{Column: col, Op: clause.StringEq, Value: "blue"}.Build()
		assert.Equal(t, "color COLLATE NOCASE = ?", sql)
		assert.Equal(t, []any{"blue"}, args)
	})

	t.Run("case-sensitive equality omits collation", func(t *testing.T) {
		sql, _ := clause.StringMatch{Column: col, Op: clause.StringEq, Value: "blue", CaseSensitive: true}.Build()
		assert.Equal(t, "color = ?", sql)
	})

	t.Run("contains escapes LIKE metacharacters", func(t *testing.T) {
		sql, args := clause.StringMatch{Column: col, Op: clause.StringContains, Value: "50%_off"}.Build()
		assert.Equal(t, "color COLLATE NOCASE LIKE ? ESCAPE '\\'", sql)
		assert.Equal(t, []any{`%50\%\_off%`}, args)
	})

	t.Run("starts with", func(t *testing.T) {
		_, args := clause.StringMatch{Column: col, Op: clause.StringStartsWith, Value: "bl"}.Build()
		assert.Equal(t, []any{"bl%"}, args)
	})

	t.Run("ends with", func(t *testing.T) {
		_, args := clause.StringMatch{Column: col, Op: clause.StringEndsWith, Value: "ue"}.Build()
		assert.Equal(t, []any{"%ue"}, args)
	})
}

func TestCombinators(t *testing.T) {
	col := clause.Column{Name: "price"}
	blue := clause.Eq{Column: clause.Column{Name: "color"}, Value: "blue"}
	xl := clause.Eq{Column: clause.Column{Name: "size"}, Value: "XL"}
	cheap := clause.Lt{Column: col, Value: 30}

	t.Run("left-associative precedence: (blue AND xl) OR cheap", func(t *testing.T) {
		tree := clause.Or{clause.And{blue, xl}, cheap}
		sql, args := tree.Build()
		assert.Equal(t, "(color = ? AND size = ?) OR (price < ?)", sql)
		assert.Equal(t, []any{"blue", "XL", 30}, args)
	})

	t.Run("empty And is always true", func(t *testing.T) {
		sql, _ := clause.And{}.Build()
		assert.Equal(t, "1 = 1", sql)
	})

	t.Run("empty Or is always false", func(t *testing.T) {
		sql, _ := clause.Or{}.Build()
		assert.Equal(t, "1 = 0", sql)
	})

	t.Run("Not negates", func(t *testing.T) {
		sql, _ := clause.Not{Expr: blue}.Build()
		assert.Equal(t, "NOT (color = ?)", sql)
	})
}

func TestOrderByColumn(t *testing.T) {
	col := clause.Column{Name: "name"}

	t.Run("defaults: ascending, case-insensitive, nulls first", func(t *testing.T) {
		sql := clause.OrderByColumn{Column: col}.Build()
		assert.Equal(t, "name COLLATE NOCASE ASC", sql)
	})

	t.Run("descending, case-sensitive, nulls last", func(t *testing.T) {
		sql := clause.OrderByColumn{Column: col, Desc: true, CaseSensitive: true, NullsLast: true}.Build()
		assert.Equal(t, "name DESC NULLS LAST", sql)
	})

	t.Run("nulls as zero coalesces", func(t *testing.T) {
		sql := clause.OrderByColumn{Column: clause.Column{Name: "score"}, NullsAsZero: true, CaseSensitive: true}.Build()
		assert.Equal(t, "COALESCE(score, 0) ASC", sql)
	})
}
