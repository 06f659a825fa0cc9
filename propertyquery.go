package objectbind

import "context"

type propertyQueryConfig struct {
	distinct         bool
	distinctCaseless bool // strings only; meaningless otherwise
	unique           bool
	hasNullValue     bool
	nullValueStr     string
	nullValueLong    int64
	nullValueFloat   float64
	nullValueDouble  float64
}

// PropertyQuery derives a single-property retrieval (or aggregate) from a
// compiled Query, with distinct/unique/null-substitution configuration.
type PropertyQuery[T any] struct {
	query      *Query[T]
	propertyID uint32
	tag        TypeTag

	cfg propertyQueryConfig
	err error
}

// Property derives a PropertyQuery for prop from q. The caller is
// responsible for prop belonging to the same entity as q.
func Property[T any, V any](q *Query[T], prop PropertyRef[V]) *PropertyQuery[T] {
	return &PropertyQuery[T]{query: q, propertyID: prop.ID, tag: prop.DeclaredType}
}

func (p *PropertyQuery[T]) ok() bool { return p.err == nil }

// Distinct enables distinct semantics; for String properties this defaults
// to case-insensitive, same as the underlying engine's default collation.
func (p *PropertyQuery[T]) Distinct() *PropertyQuery[T] {
	if !p.ok() {
		return p
	}
	p.cfg.distinct = true
	p.cfg.distinctCaseless = true
	return p
}

// DistinctOrder is Distinct() with explicit case sensitivity; valid only
// when the property's declared type is String.
func (p *PropertyQuery[T]) DistinctOrder(order StringOrder) *PropertyQuery[T] {
	if !p.ok() {
		return p
	}
	if p.tag != String {
		p.err = invalidArgument("distinct(StringOrder) is only valid on a String property, property %d is %s", p.propertyID, p.tag)
		return p
	}
	p.cfg.distinct = true
	p.cfg.distinctCaseless = order == CaseInsensitive
	return p
}

// Unique marks scalar find_* retrievals to fail with NotUniqueError if more
// than one distinct result is found. Ignored by array-returning retrievals.
func (p *PropertyQuery[T]) Unique() *PropertyQuery[T] {
	if !p.ok() {
		return p
	}
	p.cfg.unique = true
	return p
}

// NullValue sets the substitute value returned in lieu of null. v must be a
// string or a number; anything else fails with InvalidArgumentError.
func (p *PropertyQuery[T]) NullValue(v any) *PropertyQuery[T] {
	if !p.ok() {
		return p
	}
	switch val := v.(type) {
	case string:
		p.cfg.nullValueStr = val
	case float32:
		p.cfg.nullValueFloat = float64(val)
	case float64:
		p.cfg.nullValueDouble = val
	case int:
		p.cfg.nullValueLong = int64(val)
	case int8:
		p.cfg.nullValueLong = int64(val)
	case int16:
		p.cfg.nullValueLong = int64(val)
	case int32:
		p.cfg.nullValueLong = int64(val)
	case int64:
		p.cfg.nullValueLong = val
	case uint:
		p.cfg.nullValueLong = int64(val)
	case uint8:
		p.cfg.nullValueLong = int64(val)
	case uint16:
		p.cfg.nullValueLong = int64(val)
	case uint32:
		p.cfg.nullValueLong = int64(val)
	case uint64:
		p.cfg.nullValueLong = int64(val)
	default:
		p.err = invalidArgument("null_value must be a string or a number, got %T", v)
		return p
	}
	p.cfg.hasNullValue = true
	return p
}

// Reset restores the configuration to the state immediately after
// construction.
func (p *PropertyQuery[T]) Reset() *PropertyQuery[T] {
	p.cfg = propertyQueryConfig{}
	p.err = nil
	return p
}

func (p *PropertyQuery[T]) options() PropertyFetchOptions {
	return PropertyFetchOptions{
		Distinct:         p.cfg.distinct,
		DistinctCaseless: p.cfg.distinct && p.tag == String && p.cfg.distinctCaseless,
		Unique:           p.cfg.unique,
		HasNullValue:     p.cfg.hasNullValue,
		NullValueStr:     p.cfg.nullValueStr,
		NullValueFloat:   p.cfg.nullValueFloat,
		NullValueDouble:  p.cfg.nullValueDouble,
		NullValueLong:    p.cfg.nullValueLong,
	}
}

func (p *PropertyQuery[T]) fetchArray(ctx context.Context, tag TypeTag) ([]Scalar, error) {
	if p.err != nil {
		return nil, p.err
	}
	if err := p.query.checkOpen(); err != nil {
		return nil, err
	}
	var result []Scalar
	err := p.query.store.transact(ctx, "property_array", false, func(tx Tx) error {
		vals, err := p.query.store.backend.FindScalars(ctx, tx, p.query.handle, p.propertyID, tag, p.options())
		if err != nil {
			return err
		}
		result = vals
		return nil
	})
	return result, err
}

func (p *PropertyQuery[T]) fetchScalar(ctx context.Context, tag TypeTag) (Scalar, bool, error) {
	if p.err != nil {
		return Scalar{}, false, p.err
	}
	if err := p.query.checkOpen(); err != nil {
		return Scalar{}, false, err
	}
	var result Scalar
	var found bool
	err := p.query.store.transact(ctx, "property_scalar", false, func(tx Tx) error {
		v, ok, count, err := p.query.store.backend.FindScalar(ctx, tx, p.query.handle, p.propertyID, tag, p.options())
		if err != nil {
			return err
		}
		if p.cfg.unique && count > 1 {
			return &NotUniqueError{Count: count}
		}
		result, found = v, ok
		return nil
	})
	return result, found, err
}

// --- array retrievals ---

func (p *PropertyQuery[T]) FindStrings(ctx context.Context) ([]string, error) {
	vals, err := p.fetchArray(ctx, String)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v.Null {
			if p.cfg.hasNullValue {
				out = append(out, p.cfg.nullValueStr)
			}
			continue
		}
		out = append(out, v.Str)
	}
	return out, nil
}

func (p *PropertyQuery[T]) FindLongs(ctx context.Context) ([]int64, error) {
	vals, err := p.fetchArray(ctx, Long)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(vals))
	for _, v := range vals {
		if v.Null {
			if p.cfg.hasNullValue {
				out = append(out, p.cfg.nullValueLong)
			}
			continue
		}
		out = append(out, v.Int)
	}
	return out, nil
}

func (p *PropertyQuery[T]) FindInts(ctx context.Context) ([]int32, error) {
	vals, err := p.fetchArray(ctx, Int)
	if err != nil {
		return nil, err
	}
	out := make([]int32, 0, len(vals))
	for _, v := range vals {
		if v.Null {
			if p.cfg.hasNullValue {
				out = append(out, int32(p.cfg.nullValueLong))
			}
			continue
		}
		out = append(out, int32(v.Int))
	}
	return out, nil
}

func (p *PropertyQuery[T]) FindShorts(ctx context.Context) ([]int16, error) {
	vals, err := p.fetchArray(ctx, Short)
	if err != nil {
		return nil, err
	}
	out := make([]int16, 0, len(vals))
	for _, v := range vals {
		if v.Null {
			if p.cfg.hasNullValue {
				out = append(out, int16(p.cfg.nullValueLong))
			}
			continue
		}
		out = append(out, int16(v.Int))
	}
	return out, nil
}

func (p *PropertyQuery[T]) FindChars(ctx context.Context) ([]rune, error) {
	vals, err := p.fetchArray(ctx, Char)
	if err != nil {
		return nil, err
	}
	out := make([]rune, 0, len(vals))
	for _, v := range vals {
		if v.Null {
			if p.cfg.hasNullValue {
				out = append(out, rune(p.cfg.nullValueLong))
			}
			continue
		}
		out = append(out, rune(v.Int))
	}
	return out, nil
}

// FindBytes returns one []byte blob per matching row with a non-null value;
// null blobs are always omitted (there is no byte-array null_value class).
func (p *PropertyQuery[T]) FindBytes(ctx context.Context) ([][]byte, error) {
	vals, err := p.fetchArray(ctx, ByteArray)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		if v.Null {
			continue
		}
		out = append(out, v.Bytes)
	}
	return out, nil
}

func (p *PropertyQuery[T]) FindFloats(ctx context.Context) ([]float32, error) {
	vals, err := p.fetchArray(ctx, Float)
	if err != nil {
		return nil, err
	}
	out := make([]float32, 0, len(vals))
	for _, v := range vals {
		if v.Null {
			if p.cfg.hasNullValue {
				out = append(out, float32(p.cfg.nullValueFloat))
			}
			continue
		}
		out = append(out, float32(v.Float))
	}
	return out, nil
}

func (p *PropertyQuery[T]) FindDoubles(ctx context.Context) ([]float64, error) {
	vals, err := p.fetchArray(ctx, Double)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v.Null {
			if p.cfg.hasNullValue {
				out = append(out, p.cfg.nullValueDouble)
			}
			continue
		}
		out = append(out, v.Float)
	}
	return out, nil
}

// --- scalar retrievals ---

func (p *PropertyQuery[T]) FindString(ctx context.Context) (string, bool, error) {
	v, ok, err := p.fetchScalar(ctx, String)
	if err != nil || !ok {
		return "", false, err
	}
	if v.Null {
		if p.cfg.hasNullValue {
			return p.cfg.nullValueStr, true, nil
		}
		return "", false, nil
	}
	return v.Str, true, nil
}

func (p *PropertyQuery[T]) FindLong(ctx context.Context) (int64, bool, error) {
	v, ok, err := p.fetchScalar(ctx, Long)
	if err != nil || !ok {
		return 0, false, err
	}
	if v.Null {
		if p.cfg.hasNullValue {
			return p.cfg.nullValueLong, true, nil
		}
		return 0, false, nil
	}
	return v.Int, true, nil
}

func (p *PropertyQuery[T]) FindInt(ctx context.Context) (int32, bool, error) {
	v, ok, err := p.FindLong(ctx)
	return int32(v), ok, err
}

func (p *PropertyQuery[T]) FindShort(ctx context.Context) (int16, bool, error) {
	v, ok, err := p.FindLong(ctx)
	return int16(v), ok, err
}

func (p *PropertyQuery[T]) FindChar(ctx context.Context) (rune, bool, error) {
	v, ok, err := p.FindLong(ctx)
	return rune(v), ok, err
}

func (p *PropertyQuery[T]) FindByte(ctx context.Context) (int8, bool, error) {
	v, ok, err := p.fetchScalar(ctx, Byte)
	if err != nil || !ok {
		return 0, false, err
	}
	if v.Null {
		if p.cfg.hasNullValue {
			return int8(p.cfg.nullValueLong), true, nil
		}
		return 0, false, nil
	}
	return int8(v.Int), true, nil
}

func (p *PropertyQuery[T]) FindBoolean(ctx context.Context) (bool, bool, error) {
	v, ok, err := p.fetchScalar(ctx, Bool)
	if err != nil || !ok {
		return false, false, err
	}
	if v.Null {
		if p.cfg.hasNullValue {
			return p.cfg.nullValueLong != 0, true, nil
		}
		return false, false, nil
	}
	return v.Bool, true, nil
}

func (p *PropertyQuery[T]) FindFloat(ctx context.Context) (float32, bool, error) {
	v, ok, err := p.fetchScalar(ctx, Float)
	if err != nil || !ok {
		return 0, false, err
	}
	if v.Null {
		if p.cfg.hasNullValue {
			return float32(p.cfg.nullValueFloat), true, nil
		}
		return 0, false, nil
	}
	return float32(v.Float), true, nil
}

func (p *PropertyQuery[T]) FindDouble(ctx context.Context) (float64, bool, error) {
	v, ok, err := p.fetchScalar(ctx, Double)
	if err != nil || !ok {
		return 0, false, err
	}
	if v.Null {
		if p.cfg.hasNullValue {
			return p.cfg.nullValueDouble, true, nil
		}
		return 0, false, nil
	}
	return v.Float, true, nil
}

// --- aggregates; post-filter is silently ignored, per spec ---

func (p *PropertyQuery[T]) aggregate(ctx context.Context, fn func(context.Context, Tx) error) error {
	if err := p.query.checkOpen(); err != nil {
		return err
	}
	return p.query.store.transact(ctx, "property_aggregate", false, func(tx Tx) error {
		return fn(ctx, tx)
	})
}

func (p *PropertyQuery[T]) Sum(ctx context.Context) (int64, error) {
	var result int64
	err := p.aggregate(ctx, func(ctx context.Context, tx Tx) error {
		v, err := p.query.store.backend.Sum(ctx, tx, p.query.handle, p.propertyID)
		result = v
		return err
	})
	return result, err
}

func (p *PropertyQuery[T]) SumDouble(ctx context.Context) (float64, error) {
	var result float64
	err := p.aggregate(ctx, func(ctx context.Context, tx Tx) error {
		v, err := p.query.store.backend.SumDouble(ctx, tx, p.query.handle, p.propertyID)
		result = v
		return err
	})
	return result, err
}

func (p *PropertyQuery[T]) Max(ctx context.Context) (int64, error) {
	var result int64
	err := p.aggregate(ctx, func(ctx context.Context, tx Tx) error {
		v, err := p.query.store.backend.Max(ctx, tx, p.query.handle, p.propertyID)
		result = v
		return err
	})
	return result, err
}

func (p *PropertyQuery[T]) MaxDouble(ctx context.Context) (float64, error) {
	var result float64
	err := p.aggregate(ctx, func(ctx context.Context, tx Tx) error {
		v, err := p.query.store.backend.MaxDouble(ctx, tx, p.query.handle, p.propertyID)
		result = v
		return err
	})
	return result, err
}

func (p *PropertyQuery[T]) Min(ctx context.Context) (int64, error) {
	var result int64
	err := p.aggregate(ctx, func(ctx context.Context, tx Tx) error {
		v, err := p.query.store.backend.Min(ctx, tx, p.query.handle, p.propertyID)
		result = v
		return err
	})
	return result, err
}

func (p *PropertyQuery[T]) MinDouble(ctx context.Context) (float64, error) {
	var result float64
	err := p.aggregate(ctx, func(ctx context.Context, tx Tx) error {
		v, err := p.query.store.backend.MinDouble(ctx, tx, p.query.handle, p.propertyID)
		result = v
		return err
	})
	return result, err
}

func (p *PropertyQuery[T]) Avg(ctx context.Context) (float64, error) {
	var result float64
	err := p.aggregate(ctx, func(ctx context.Context, tx Tx) error {
		v, err := p.query.store.backend.Avg(ctx, tx, p.query.handle, p.propertyID)
		result = v
		return err
	})
	return result, err
}
