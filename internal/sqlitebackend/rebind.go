package sqlitebackend

import (
	"fmt"

	"github.com/objectbind/objectbind"
	"github.com/objectbind/objectbind/clause"
)

// rebindValue rewrites the first leaf in expr whose column matches col,
// replacing its comparison value. It returns a new tree; clause.Expression
// values are themselves immutable, so no aliasing hazard exists between the
// old and new queryState.where.
func rebindValue(expr clause.Expression, col string, value any) (clause.Expression, bool) {
	switch e := expr.(type) {
	case clause.Eq:
		if e.Column.Name == col {
			return clause.Eq{Column: e.Column, Value: value}, true
		}
	case clause.Neq:
		if e.Column.Name == col {
			return clause.Neq{Column: e.Column, Value: value}, true
		}
	case clause.Gt:
		if e.Column.Name == col {
			return clause.Gt{Column: e.Column, Value: value}, true
		}
	case clause.Gte:
		if e.Column.Name == col {
			return clause.Gte{Column: e.Column, Value: value}, true
		}
	case clause.Lt:
		if e.Column.Name == col {
			return clause.Lt{Column: e.Column, Value: value}, true
		}
	case clause.Lte:
		if e.Column.Name == col {
			return clause.Lte{Column: e.Column, Value: value}, true
		}
	case clause.StringMatch:
		if e.Column.Name == col {
			if s, ok := value.(string); ok {
				e.Value = s
				return e, true
			}
		}
	case clause.And:
		return rebindList(e, col, value)
	case clause.Or:
		list, ok := rebindList(clause.And(e), col, value)
		if !ok {
			return expr, false
		}
		return clause.Or(list.(clause.And)), true
	case clause.Not:
		inner, ok := rebindValue(e.Expr, col, value)
		if !ok {
			return expr, false
		}
		return clause.Not{Expr: inner}, true
	}
	return expr, false
}

func rebindList(list clause.And, col string, value any) (clause.Expression, bool) {
	out := make(clause.And, len(list))
	changed := false
	for i, sub := range list {
		if !changed {
			if rewritten, ok := rebindValue(sub, col, value); ok {
				out[i] = rewritten
				changed = true
				continue
			}
		}
		out[i] = sub
	}
	return out, changed
}

// rebindRange rewrites the first Between leaf matching col, replacing both
// bounds.
func rebindRange(expr clause.Expression, col string, v1, v2 any) (clause.Expression, bool) {
	switch e := expr.(type) {
	case clause.Between:
		if e.Column.Name == col {
			return clause.Between{Column: e.Column, Min: v1, Max: v2}, true
		}
	case clause.And:
		out := make(clause.And, len(e))
		changed := false
		for i, sub := range e {
			if !changed {
				if rewritten, ok := rebindRange(sub, col, v1, v2); ok {
					out[i] = rewritten
					changed = true
					continue
				}
			}
			out[i] = sub
		}
		return out, changed
	case clause.Or:
		rewritten, ok := rebindRange(clause.And(e), col, v1, v2)
		if !ok {
			return expr, false
		}
		return clause.Or(rewritten.(clause.And)), true
	case clause.Not:
		inner, ok := rebindRange(e.Expr, col, v1, v2)
		if !ok {
			return expr, false
		}
		return clause.Not{Expr: inner}, true
	}
	return expr, false
}

func (b *Backend) rebindOne(h objectbind.QueryHandle, propertyID uint32, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	qs, ok := b.queries[h]
	if !ok {
		return fmt.Errorf("sqlitebackend: unknown query handle")
	}
	col, _, err := b.column(qs.entityName, propertyID)
	if err != nil {
		return err
	}
	rewritten, ok := rebindValue(qs.where, col.Name, value)
	if !ok {
		return fmt.Errorf("sqlitebackend: no bound parameter on column %q", col.Name)
	}
	qs.where = rewritten
	return nil
}

func (b *Backend) rebindTwo(h objectbind.QueryHandle, propertyID uint32, v1, v2 any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	qs, ok := b.queries[h]
	if !ok {
		return fmt.Errorf("sqlitebackend: unknown query handle")
	}
	col, _, err := b.column(qs.entityName, propertyID)
	if err != nil {
		return err
	}
	rewritten, ok := rebindRange(qs.where, col.Name, v1, v2)
	if !ok {
		return fmt.Errorf("sqlitebackend: no bound range on column %q", col.Name)
	}
	qs.where = rewritten
	return nil
}

func (b *Backend) SetParameterString(h objectbind.QueryHandle, propertyID uint32, v string) error {
	return b.rebindOne(h, propertyID, v)
}

func (b *Backend) SetParameterLong(h objectbind.QueryHandle, propertyID uint32, v int64) error {
	return b.rebindOne(h, propertyID, v)
}

func (b *Backend) SetParameterDouble(h objectbind.QueryHandle, propertyID uint32, v float64) error {
	return b.rebindOne(h, propertyID, v)
}

func (b *Backend) SetParametersString(h objectbind.QueryHandle, propertyID uint32, v1, v2 string) error {
	return b.rebindTwo(h, propertyID, v1, v2)
}

func (b *Backend) SetParametersLong(h objectbind.QueryHandle, propertyID uint32, v1, v2 int64) error {
	return b.rebindTwo(h, propertyID, v1, v2)
}

func (b *Backend) SetParametersDouble(h objectbind.QueryHandle, propertyID uint32, v1, v2 float64) error {
	return b.rebindTwo(h, propertyID, v1, v2)
}
