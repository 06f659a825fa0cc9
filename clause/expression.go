// Package clause implements the SQL-expression algebra used by the concrete
// sqlite-backed StorageBackend to turn a compiled condition tree into
// parameterized SQL. It has no knowledge of QueryBuilder, Query or
// PropertyQuery — those live in the objectbind package and talk to this
// package only through the backend.
package clause

import (
	"fmt"
	"strings"
)

// Columnar is implemented by anything that can name its own SQL column.
type Columnar interface {
	ColumnName() string
}

// Column identifies a database column, optionally table-qualified.
type Column struct {
	Table string
	Name  string
}

// ColumnName returns the column name, table-qualified when Table is set.
func (c Column) ColumnName() string {
	if c.Table != "" {
		return c.Table + "." + c.Name
	}
	return c.Name
}

var _ Columnar = Column{}

// Expression is the base interface for all compiled condition nodes.
type Expression interface {
	Build() (sql string, args []any)
}

// Eq is `column = value`.
type Eq struct {
	Column Column
	Value  any
}

func (e Eq) Build() (string, []any) { return e.Column.ColumnName() + " = ?", []any{e.Value} }

// Neq is `column <> value`.
type Neq struct {
	Column Column
	Value  any
}

func (n Neq) Build() (string, []any) { return n.Column.ColumnName() + " <> ?", []any{n.Value} }

// Gt is `column > value`.
type Gt struct {
	Column Column
	Value  any
}

func (g Gt) Build() (string, []any) { return g.Column.ColumnName() + " > ?", []any{g.Value} }

// Gte is `column >= value`.
type Gte struct {
	Column Column
	Value  any
}

func (g Gte) Build() (string, []any) { return g.Column.ColumnName() + " >= ?", []any{g.Value} }

// Lt is `column < value`.
type Lt struct {
	Column Column
	Value  any
}

func (l Lt) Build() (string, []any) { return l.Column.ColumnName() + " < ?", []any{l.Value} }

// Lte is `column <= value`.
type Lte struct {
	Column Column
	Value  any
}

func (l Lte) Build() (string, []any) { return l.Column.ColumnName() + " <= ?", []any{l.Value} }

// IsNull is `column IS NULL`.
type IsNull struct{ Column Column }

func (i IsNull) Build() (string, []any) { return i.Column.ColumnName() + " IS NULL", nil }

// IsNotNull is `column IS NOT NULL`.
type IsNotNull struct{ Column Column }

func (i IsNotNull) Build() (string, []any) { return i.Column.ColumnName() + " IS NOT NULL", nil }

// Between is `column BETWEEN min AND max`. Accepts Min == Max (equality).
type Between struct {
	Column   Column
	Min, Max any
}

func (b Between) Build() (string, []any) {
	return b.Column.ColumnName() + " BETWEEN ? AND ?", []any{b.Min, b.Max}
}

// In is `column IN (values...)`. An empty Values list compiles to an
// always-false predicate rather than invalid SQL.
type In struct {
	Column Column
	Values []any
}

func (i In) Build() (string, []any) {
	if len(i.Values) == 0 {
		return "1 = 0", nil
	}
	placeholders := make([]string, len(i.Values))
	for idx := range i.Values {
		placeholders[idx] = "?"
	}
	return fmt.Sprintf("%s IN (%s)", i.Column.ColumnName(), strings.Join(placeholders, ", ")), i.Values
}

// NotIn is `column NOT IN (values...)`. An empty Values list compiles to an
// always-true predicate.
type NotIn struct {
	Column Column
	Values []any
}

func (n NotIn) Build() (string, []any) {
	if len(n.Values) == 0 {
		return "1 = 1", nil
	}
	placeholders := make([]string, len(n.Values))
	for idx := range n.Values {
		placeholders[idx] = "?"
	}
	return fmt.Sprintf("%s NOT IN (%s)", n.Column.ColumnName(), strings.Join(placeholders, ", ")), n.Values
}

// StringOp identifies which string-matching SQL a string predicate compiles to.
type StringOp int

const (
	StringEq StringOp = iota
	StringNeq
	StringContains
	StringStartsWith
	StringEndsWith
)

// StringMatch is a string predicate honoring case sensitivity via the
// SQLite `COLLATE NOCASE` modifier rather than wrapping both sides in
// `LOWER()`, so indexes declared `COLLATE NOCASE` remain usable.
type StringMatch struct {
	Column        Column
	Op            StringOp
	Value         string
	CaseSensitive bool
}

func (s StringMatch) Build() (string, []any) {
	col := s.Column.ColumnName()
	collate := ""
	if !s.CaseSensitive {
		collate = " COLLATE NOCASE"
	}
	switch s.Op {
	case StringEq:
		return col + collate + " = ?", []any{s.Value}
	case StringNeq:
		return col + collate + " <> ?", []any{s.Value}
	case StringContains:
		return col + collate + " LIKE ? ESCAPE '\\'", []any{"%" + escapeLike(s.Value) + "%"}
	case StringStartsWith:
		return col + collate + " LIKE ? ESCAPE '\\'", []any{escapeLike(s.Value) + "%"}
	case StringEndsWith:
		return col + collate + " LIKE ? ESCAPE '\\'", []any{"%" + escapeLike(s.Value)}
	default:
		return "1 = 0", nil
	}
}

func escapeLike(v string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(v)
}

// And joins its members with AND, short-circuiting to an always-true
// predicate when empty.
type And []Expression

func (a And) Build() (string, []any) {
	if len(a) == 0 {
		return "1 = 1", nil
	}
	var sqls []string
	var args []any
	for _, expr := range a {
		sql, exprArgs := expr.Build()
		sqls = append(sqls, "("+sql+")")
		args = append(args, exprArgs...)
	}
	return strings.Join(sqls, " AND "), args
}

// Or joins its members with OR, short-circuiting to an always-false
// predicate when empty.
type Or []Expression

func (o Or) Build() (string, []any) {
	if len(o) == 0 {
		return "1 = 0", nil
	}
	var sqls []string
	var args []any
	for _, expr := range o {
		sql, exprArgs := expr.Build()
		sqls = append(sqls, "("+sql+")")
		args = append(args, exprArgs...)
	}
	return strings.Join(sqls, " OR "), args
}

// Not negates its operand.
type Not struct{ Expr Expression }

func (n Not) Build() (string, []any) {
	sql, args := n.Expr.Build()
	return "NOT (" + sql + ")", args
}

// OrderByColumn compiles one ordering clause from the order flags described
// in spec.md §6 (DESCENDING, CASE_SENSITIVE, NULLS_LAST, NULLS_ZERO).
// NULLS_ZERO has no direct SQLite equivalent and is approximated with
// `COALESCE(column, 0)` ordering whenever the flag is set; the column's type
// is not checked. Nulls sort first in both directions unless NullsLast is
// set. UNSIGNED has no field here and does not change the emitted SQL:
// integers are ordered by SQLite's signed comparison.
type OrderByColumn struct {
	Column        Column
	Desc          bool
	CaseSensitive bool
	NullsLast     bool
	NullsAsZero   bool
}

func (o OrderByColumn) Build() string {
	col := o.Column.ColumnName()
	if o.NullsAsZero {
		col = fmt.Sprintf("COALESCE(%s, 0)", col)
	}
	if !o.CaseSensitive {
		col += " COLLATE NOCASE"
	}
	if o.Desc {
		col += " DESC"
	} else {
		col += " ASC"
	}
	if o.NullsLast {
		col += " NULLS LAST"
	} else if o.Desc {
		col += " NULLS FIRST"
	}
	return col
}

// Expr is an escape hatch for raw SQL fragments (used internally by the
// backend's aggregate queries).
type Expr struct {
	SQL  string
	Vars []any
}

func (e Expr) Build() (string, []any) { return e.SQL, e.Vars }
