package sqlitebackend

import (
	"errors"

	"github.com/objectbind/objectbind"
	"github.com/objectbind/objectbind/clause"
)

var errUnknownBuilder = errors.New("sqlitebackend: unknown builder handle")

func (b *Backend) leaf(h objectbind.BuilderHandle, propertyID uint32, build func(clause.Column) clause.Expression) (objectbind.ConditionHandle, error) {
	b.mu.Lock()
	bs, ok := b.builders[h]
	b.mu.Unlock()
	if !ok {
		return 0, errUnknownBuilder
	}
	col, _, err := b.column(bs.entityName, propertyID)
	if err != nil {
		return 0, err
	}
	return b.addCondition(h, build(col))
}

func (b *Backend) IsNull(h objectbind.BuilderHandle, propertyID uint32) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression { return clause.IsNull{Column: c} })
}

func (b *Backend) NotNull(h objectbind.BuilderHandle, propertyID uint32) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression { return clause.IsNotNull{Column: c} })
}

func (b *Backend) EqualInt(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression { return clause.Eq{Column: c, Value: v} })
}

func (b *Backend) NotEqualInt(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression { return clause.Neq{Column: c, Value: v} })
}

func (b *Backend) LessInt(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression { return clause.Lt{Column: c, Value: v} })
}

func (b *Backend) GreaterInt(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression { return clause.Gt{Column: c, Value: v} })
}

func (b *Backend) BetweenInt(h objectbind.BuilderHandle, propertyID uint32, v1, v2 int64) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression {
		return clause.Between{Column: c, Min: v1, Max: v2}
	})
}

func (b *Backend) InInt(h objectbind.BuilderHandle, propertyID uint32, values []int64) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression {
		return clause.In{Column: c, Values: int64sToAny(values)}
	})
}

func (b *Backend) NotInInt(h objectbind.BuilderHandle, propertyID uint32, values []int64) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression {
		return clause.NotIn{Column: c, Values: int64sToAny(values)}
	})
}

func (b *Backend) EqualDate(h objectbind.BuilderHandle, propertyID uint32, epochMillis int64) (objectbind.ConditionHandle, error) {
	return b.EqualInt(h, propertyID, epochMillis)
}

func (b *Backend) NotEqualDate(h objectbind.BuilderHandle, propertyID uint32, epochMillis int64) (objectbind.ConditionHandle, error) {
	return b.NotEqualInt(h, propertyID, epochMillis)
}

func (b *Backend) LessDate(h objectbind.BuilderHandle, propertyID uint32, epochMillis int64) (objectbind.ConditionHandle, error) {
	return b.LessInt(h, propertyID, epochMillis)
}

func (b *Backend) GreaterDate(h objectbind.BuilderHandle, propertyID uint32, epochMillis int64) (objectbind.ConditionHandle, error) {
	return b.GreaterInt(h, propertyID, epochMillis)
}

func (b *Backend) BetweenDate(h objectbind.BuilderHandle, propertyID uint32, v1, v2 int64) (objectbind.ConditionHandle, error) {
	return b.BetweenInt(h, propertyID, v1, v2)
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func (b *Backend) EqualBool(h objectbind.BuilderHandle, propertyID uint32, v bool) (objectbind.ConditionHandle, error) {
	return b.EqualInt(h, propertyID, boolToInt(v))
}

func (b *Backend) NotEqualBool(h objectbind.BuilderHandle, propertyID uint32, v bool) (objectbind.ConditionHandle, error) {
	return b.NotEqualInt(h, propertyID, boolToInt(v))
}

func (b *Backend) LessFloat(h objectbind.BuilderHandle, propertyID uint32, v float64) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression { return clause.Lt{Column: c, Value: v} })
}

func (b *Backend) GreaterFloat(h objectbind.BuilderHandle, propertyID uint32, v float64) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression { return clause.Gt{Column: c, Value: v} })
}

func (b *Backend) BetweenFloat(h objectbind.BuilderHandle, propertyID uint32, v1, v2 float64) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression {
		return clause.Between{Column: c, Min: v1, Max: v2}
	})
}

func (b *Backend) EqualString(h objectbind.BuilderHandle, propertyID uint32, v string, caseSensitive bool) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression {
		return clause.StringMatch{Column: c, Op: clause.StringEq, Value: v, CaseSensitive: caseSensitive}
	})
}

func (b *Backend) NotEqualString(h objectbind.BuilderHandle, propertyID uint32, v string, caseSensitive bool) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression {
		return clause.StringMatch{Column: c, Op: clause.StringNeq, Value: v, CaseSensitive: caseSensitive}
	})
}

func (b *Backend) ContainsString(h objectbind.BuilderHandle, propertyID uint32, v string, caseSensitive bool) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression {
		return clause.StringMatch{Column: c, Op: clause.StringContains, Value: v, CaseSensitive: caseSensitive}
	})
}

func (b *Backend) StartsWithString(h objectbind.BuilderHandle, propertyID uint32, v string, caseSensitive bool) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression {
		return clause.StringMatch{Column: c, Op: clause.StringStartsWith, Value: v, CaseSensitive: caseSensitive}
	})
}

func (b *Backend) EndsWithString(h objectbind.BuilderHandle, propertyID uint32, v string, caseSensitive bool) (objectbind.ConditionHandle, error) {
	return b.leaf(h, propertyID, func(c clause.Column) clause.Expression {
		return clause.StringMatch{Column: c, Op: clause.StringEndsWith, Value: v, CaseSensitive: caseSensitive}
	})
}

func int64sToAny(vs []int64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
