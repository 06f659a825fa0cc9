package objectbind_test

import (
	"context"
	"fmt"

	"github.com/objectbind/objectbind"
)

// fakeBackend is a minimal in-memory StorageBackend whose conditions compile
// to a parenthesized string representation, letting builder tests assert the
// combinator algebra's shape without a real SQL engine.
type fakeBackend struct {
	nextBuilder uint64
	nextCond    uint64
	nextQuery   uint64

	builders map[objectbind.BuilderHandle]*fakeBuilderState
	queries  map[objectbind.QueryHandle]*fakeQueryState

	lastSetLong      int64
	lastSetLongRange [2]int64
}

type fakeBuilderState struct {
	conditions map[objectbind.ConditionHandle]string
	orders     []string
	root       string
	hasRoot    bool
}

type fakeQueryState struct {
	where   string
	orders  []string
	rows    []objectbind.Row
	scalars []objectbind.Scalar
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		builders: make(map[objectbind.BuilderHandle]*fakeBuilderState),
		queries:  make(map[objectbind.QueryHandle]*fakeQueryState),
	}
}

func (f *fakeBackend) CreateBuilder(ctx context.Context, entityName string) (objectbind.BuilderHandle, error) {
	f.nextBuilder++
	h := objectbind.BuilderHandle(f.nextBuilder)
	f.builders[h] = &fakeBuilderState{conditions: make(map[objectbind.ConditionHandle]string)}
	return h, nil
}

func (f *fakeBackend) DestroyBuilder(h objectbind.BuilderHandle) { delete(f.builders, h) }
func (f *fakeBackend) DestroyQuery(h objectbind.QueryHandle)     { delete(f.queries, h) }

func (f *fakeBackend) addCond(h objectbind.BuilderHandle, s string) (objectbind.ConditionHandle, error) {
	bs := f.builders[h]
	f.nextCond++
	c := objectbind.ConditionHandle(f.nextCond)
	bs.conditions[c] = s
	return c, nil
}

func (f *fakeBackend) Combine(h objectbind.BuilderHandle, c1, c2 objectbind.ConditionHandle, useOr bool) (objectbind.ConditionHandle, error) {
	bs := f.builders[h]
	op := "AND"
	if useOr {
		op = "OR"
	}
	return f.addCond(h, fmt.Sprintf("(%s %s %s)", bs.conditions[c1], op, bs.conditions[c2]))
}

func (f *fakeBackend) SetRoot(h objectbind.BuilderHandle, c objectbind.ConditionHandle) error {
	bs := f.builders[h]
	bs.root = bs.conditions[c]
	bs.hasRoot = true
	return nil
}

func (f *fakeBackend) AddOrder(h objectbind.BuilderHandle, propertyID uint32, flags objectbind.OrderFlags) error {
	bs := f.builders[h]
	bs.orders = append(bs.orders, fmt.Sprintf("p%d:%d", propertyID, flags))
	return nil
}

func (f *fakeBackend) IsNull(h objectbind.BuilderHandle, propertyID uint32) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d IS NULL", propertyID))
}
func (f *fakeBackend) NotNull(h objectbind.BuilderHandle, propertyID uint32) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d IS NOT NULL", propertyID))
}
func (f *fakeBackend) EqualInt(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d = %d", propertyID, v))
}
func (f *fakeBackend) NotEqualInt(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d <> %d", propertyID, v))
}
func (f *fakeBackend) LessInt(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d < %d", propertyID, v))
}
func (f *fakeBackend) GreaterInt(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d > %d", propertyID, v))
}
func (f *fakeBackend) BetweenInt(h objectbind.BuilderHandle, propertyID uint32, v1, v2 int64) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d BETWEEN %d AND %d", propertyID, v1, v2))
}
func (f *fakeBackend) InInt(h objectbind.BuilderHandle, propertyID uint32, values []int64) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d IN %v", propertyID, values))
}
func (f *fakeBackend) NotInInt(h objectbind.BuilderHandle, propertyID uint32, values []int64) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d NOT IN %v", propertyID, values))
}
func (f *fakeBackend) EqualDate(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return f.EqualInt(h, propertyID, v)
}
func (f *fakeBackend) NotEqualDate(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return f.NotEqualInt(h, propertyID, v)
}
func (f *fakeBackend) LessDate(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return f.LessInt(h, propertyID, v)
}
func (f *fakeBackend) GreaterDate(h objectbind.BuilderHandle, propertyID uint32, v int64) (objectbind.ConditionHandle, error) {
	return f.GreaterInt(h, propertyID, v)
}
func (f *fakeBackend) BetweenDate(h objectbind.BuilderHandle, propertyID uint32, v1, v2 int64) (objectbind.ConditionHandle, error) {
	return f.BetweenInt(h, propertyID, v1, v2)
}
func (f *fakeBackend) EqualBool(h objectbind.BuilderHandle, propertyID uint32, v bool) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d = %v", propertyID, v))
}
func (f *fakeBackend) NotEqualBool(h objectbind.BuilderHandle, propertyID uint32, v bool) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d <> %v", propertyID, v))
}
func (f *fakeBackend) LessFloat(h objectbind.BuilderHandle, propertyID uint32, v float64) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d < %v", propertyID, v))
}
func (f *fakeBackend) GreaterFloat(h objectbind.BuilderHandle, propertyID uint32, v float64) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d > %v", propertyID, v))
}
func (f *fakeBackend) BetweenFloat(h objectbind.BuilderHandle, propertyID uint32, v1, v2 float64) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d BETWEEN %v AND %v", propertyID, v1, v2))
}
func (f *fakeBackend) EqualString(h objectbind.BuilderHandle, propertyID uint32, v string, cs bool) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d = %q cs=%v", propertyID, v, cs))
}
func (f *fakeBackend) NotEqualString(h objectbind.BuilderHandle, propertyID uint32, v string, cs bool) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d <> %q cs=%v", propertyID, v, cs))
}
func (f *fakeBackend) ContainsString(h objectbind.BuilderHandle, propertyID uint32, v string, cs bool) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d CONTAINS %q cs=%v", propertyID, v, cs))
}
func (f *fakeBackend) StartsWithString(h objectbind.BuilderHandle, propertyID uint32, v string, cs bool) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d STARTSWITH %q cs=%v", propertyID, v, cs))
}
func (f *fakeBackend) EndsWithString(h objectbind.BuilderHandle, propertyID uint32, v string, cs bool) (objectbind.ConditionHandle, error) {
	return f.addCond(h, fmt.Sprintf("p%d ENDSWITH %q cs=%v", propertyID, v, cs))
}

func (f *fakeBackend) Compile(ctx context.Context, h objectbind.BuilderHandle) (objectbind.QueryHandle, error) {
	bs := f.builders[h]
	f.nextQuery++
	qh := objectbind.QueryHandle(f.nextQuery)
	where := bs.root
	if !bs.hasRoot {
		where = "<always-true>"
	}
	f.queries[qh] = &fakeQueryState{where: where, orders: append([]string(nil), bs.orders...)}
	return qh, nil
}

func (f *fakeBackend) FindFirst(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) (objectbind.Row, bool, error) {
	rows, err := f.FindList(ctx, tx, h)
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	return rows[0], true, nil
}
func (f *fakeBackend) FindUnique(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) (objectbind.Row, bool, int, error) {
	rows, err := f.FindList(ctx, tx, h)
	if err != nil {
		return nil, false, 0, err
	}
	if len(rows) == 0 {
		return nil, false, 0, nil
	}
	return rows[0], true, len(rows), nil
}
func (f *fakeBackend) FindList(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) ([]objectbind.Row, error) {
	return f.queries[h].rows, nil
}
func (f *fakeBackend) FindListPage(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, offset, limit uint64) ([]objectbind.Row, error) {
	rows := f.queries[h].rows
	if offset >= uint64(len(rows)) {
		return nil, nil
	}
	end := offset + limit
	if end > uint64(len(rows)) {
		end = uint64(len(rows))
	}
	return rows[offset:end], nil
}
func (f *fakeBackend) FindIDs(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) ([]int64, error) {
	var ids []int64
	for _, r := range f.queries[h].rows {
		ids = append(ids, r["id"].(int64))
	}
	return ids, nil
}
func (f *fakeBackend) LoadByID(ctx context.Context, tx objectbind.Tx, entityName string, id int64) (objectbind.Row, bool, error) {
	for _, qs := range f.queries {
		for _, r := range qs.rows {
			if r["id"].(int64) == id {
				return r, true, nil
			}
		}
	}
	return nil, false, nil
}
func (f *fakeBackend) Count(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) (uint64, error) {
	return uint64(len(f.queries[h].rows)), nil
}
func (f *fakeBackend) Remove(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle) (uint64, error) {
	n := len(f.queries[h].rows)
	f.queries[h].rows = nil
	return uint64(n), nil
}
func (f *fakeBackend) FindScalars(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32, tag objectbind.TypeTag, opts objectbind.PropertyFetchOptions) ([]objectbind.Scalar, error) {
	all := f.queries[h].scalars
	var out []objectbind.Scalar
	seen := make(map[string]bool)
	for _, s := range all {
		if s.Null {
			if opts.HasNullValue {
				out = append(out, s)
			}
			continue
		}
		if opts.Distinct {
			key := s.Str
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeBackend) FindScalar(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32, tag objectbind.TypeTag, opts objectbind.PropertyFetchOptions) (objectbind.Scalar, bool, int, error) {
	vals, err := f.FindScalars(ctx, tx, h, propertyID, tag, opts)
	if err != nil || len(vals) == 0 {
		return objectbind.Scalar{}, false, 0, err
	}
	return vals[0], true, len(vals), nil
}
func (f *fakeBackend) Sum(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (int64, error) {
	return 0, nil
}
func (f *fakeBackend) SumDouble(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (float64, error) {
	return 0, nil
}
func (f *fakeBackend) Max(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (int64, error) {
	return 0, nil
}
func (f *fakeBackend) MaxDouble(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (float64, error) {
	return 0, nil
}
func (f *fakeBackend) Min(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (int64, error) {
	return 0, nil
}
func (f *fakeBackend) MinDouble(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (float64, error) {
	return 0, nil
}
func (f *fakeBackend) Avg(ctx context.Context, tx objectbind.Tx, h objectbind.QueryHandle, propertyID uint32) (float64, error) {
	return 0, nil
}
func (f *fakeBackend) SetParameterString(h objectbind.QueryHandle, propertyID uint32, v string) error {
	return nil
}
func (f *fakeBackend) SetParameterLong(h objectbind.QueryHandle, propertyID uint32, v int64) error {
	f.lastSetLong = v
	return nil
}
func (f *fakeBackend) SetParameterDouble(h objectbind.QueryHandle, propertyID uint32, v float64) error {
	return nil
}
func (f *fakeBackend) SetParametersString(h objectbind.QueryHandle, propertyID uint32, v1, v2 string) error {
	return nil
}
func (f *fakeBackend) SetParametersLong(h objectbind.QueryHandle, propertyID uint32, v1, v2 int64) error {
	f.lastSetLongRange = [2]int64{v1, v2}
	return nil
}
func (f *fakeBackend) SetParametersDouble(h objectbind.QueryHandle, propertyID uint32, v1, v2 float64) error {
	return nil
}
func (f *fakeBackend) BeginRead(ctx context.Context) (objectbind.Tx, error)  { return fakeTx{}, nil }
func (f *fakeBackend) BeginWrite(ctx context.Context) (objectbind.Tx, error) { return fakeTx{}, nil }

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }
func (fakeTx) Writable() bool  { return true }

var _ objectbind.StorageBackend = (*fakeBackend)(nil)
