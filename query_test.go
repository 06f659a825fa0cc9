package objectbind_test

import (
	"context"
	"testing"
	"time"

	"github.com/objectbind/objectbind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tshirtEntity struct {
	ID    int64
	Color string
}

func tshirtMapper(r objectbind.Row) (*tshirtEntity, error) {
	return &tshirtEntity{ID: r["id"].(int64), Color: r["color"].(string)}, nil
}

func buildSimpleQuery(t *testing.T, backend *fakeBackend, store *objectbind.Store, rows []objectbind.Row) *objectbind.Query[tshirtEntity] {
	t.Helper()
	ctx := context.Background()
	b, err := objectbind.NewQueryBuilder[tshirtEntity](ctx, store, "tshirt", tshirtMapper)
	require.NoError(t, err)
	objectbind.NotNull(b, colorProp)
	q, err := b.Build(ctx)
	require.NoError(t, err)
	h := findQueryHandle(t, backend)
	backend.queries[h].rows = rows
	return q
}

func TestFindRejectsNothingButFindFirstRejectsFilter(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()

	b, err := objectbind.NewQueryBuilder[tshirtEntity](ctx, store, "tshirt", tshirtMapper)
	require.NoError(t, err)
	b.Filter(func(e *tshirtEntity) bool { return true })
	q, err := b.Build(ctx)
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Find(ctx)
	require.NoError(t, err)

	_, _, err = q.FindFirst(ctx)
	require.Error(t, err)
	var unsupported *objectbind.UnsupportedError
	assert.ErrorAs(t, err, &unsupported)
}

func TestFindUniqueDetectsMultipleMatches(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	q := buildSimpleQuery(t, backend, store, []objectbind.Row{
		{"id": int64(1), "color": "blue"},
		{"id": int64(2), "color": "red"},
	})
	defer q.Close()

	_, _, err := q.FindUnique(context.Background())
	require.Error(t, err)
	var notUnique *objectbind.NotUniqueError
	require.ErrorAs(t, err, &notUnique)
	assert.Equal(t, 2, notUnique.Count)
}

func TestFindUniqueSingleMatch(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	q := buildSimpleQuery(t, backend, store, []objectbind.Row{
		{"id": int64(1), "color": "blue"},
	})
	defer q.Close()

	e, ok, err := q.FindUnique(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "blue", e.Color)
}

func TestFindAppliesPostFilterAndComparator(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()

	b, err := objectbind.NewQueryBuilder[tshirtEntity](ctx, store, "tshirt", tshirtMapper)
	require.NoError(t, err)
	objectbind.NotNull(b, colorProp)
	b.Filter(func(e *tshirtEntity) bool { return e.Color != "red" })
	b.Sort(func(a, c *tshirtEntity) int {
		if a.Color == c.Color {
			return 0
		}
		if a.Color < c.Color {
			return -1
		}
		return 1
	})
	q, err := b.Build(ctx)
	require.NoError(t, err)
	defer q.Close()

	h := findQueryHandle(t, backend)
	backend.queries[h].rows = []objectbind.Row{
		{"id": int64(1), "color": "green"},
		{"id": int64(2), "color": "red"},
		{"id": int64(3), "color": "blue"},
	}

	result, err := q.Find(ctx)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "blue", result[0].Color)
	assert.Equal(t, "green", result[1].Color)
}

func TestFindIDsRejectsOrderedQuery(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()

	b, err := objectbind.NewQueryBuilder[tshirtEntity](ctx, store, "tshirt", tshirtMapper)
	require.NoError(t, err)
	objectbind.NotNull(b, colorProp)
	objectbind.Order(b, colorProp)
	q, err := b.Build(ctx)
	require.NoError(t, err)
	defer q.Close()

	_, err = q.FindIDs(ctx)
	require.Error(t, err)
}

func TestForEachBreaksEarly(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	q := buildSimpleQuery(t, backend, store, []objectbind.Row{
		{"id": int64(1), "color": "a"},
		{"id": int64(2), "color": "b"},
		{"id": int64(3), "color": "c"},
		{"id": int64(4), "color": "d"},
	})
	defer q.Close()

	var visited []string
	err := q.ForEach(context.Background(), func(e *tshirtEntity) error {
		visited = append(visited, e.Color)
		if len(visited) == 2 {
			return objectbind.BreakForEach
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, visited)
}

func TestQueryUsedAfterCloseFails(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	q := buildSimpleQuery(t, backend, store, nil)
	require.NoError(t, q.Close())

	_, _, err := q.FindFirst(context.Background())
	require.Error(t, err)
	var illegal *objectbind.IllegalStateError
	assert.ErrorAs(t, err, &illegal)

	// Close is idempotent.
	assert.NoError(t, q.Close())
}

func TestEagerLimitBoundsResolutionToPrefix(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()

	var resolvedFor []int64
	rel := objectbind.RelationDescriptor[tshirtEntity]{
		Name: "sibling",
		Kind: objectbind.ToOne,
		ToOneGetter: func(e *tshirtEntity) (any, error) {
			resolvedFor = append(resolvedFor, e.ID)
			return nil, nil
		},
	}

	b, err := objectbind.NewQueryBuilder[tshirtEntity](ctx, store, "tshirt", tshirtMapper)
	require.NoError(t, err)
	objectbind.NotNull(b, colorProp)
	b.Eager(2, rel)
	q, err := b.Build(ctx)
	require.NoError(t, err)
	defer q.Close()

	h := findQueryHandle(t, backend)
	rows := make([]objectbind.Row, 0, 10)
	for i := int64(1); i <= 10; i++ {
		rows = append(rows, objectbind.Row{"id": i, "color": "blue"})
	}
	backend.queries[h].rows = rows

	_, err = q.Find(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, resolvedFor, "only the first Limit entities should be eagerly resolved")
}

func TestEagerAllResolvesEveryResult(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()

	var resolvedFor []int64
	rel := objectbind.RelationDescriptor[tshirtEntity]{
		Name: "sibling",
		Kind: objectbind.ToOne,
		ToOneGetter: func(e *tshirtEntity) (any, error) {
			resolvedFor = append(resolvedFor, e.ID)
			return nil, nil
		},
	}

	b, err := objectbind.NewQueryBuilder[tshirtEntity](ctx, store, "tshirt", tshirtMapper)
	require.NoError(t, err)
	objectbind.NotNull(b, colorProp)
	b.EagerAll(rel)
	q, err := b.Build(ctx)
	require.NoError(t, err)
	defer q.Close()

	h := findQueryHandle(t, backend)
	backend.queries[h].rows = []objectbind.Row{
		{"id": int64(1), "color": "blue"},
		{"id": int64(2), "color": "red"},
		{"id": int64(3), "color": "green"},
	}

	_, err = q.Find(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, resolvedFor)
}

func TestSetParameterDateCoercesToUnixMilli(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	q := buildSimpleQuery(t, backend, store, nil)
	defer q.Close()

	createdAt := objectbind.NewProperty[time.Time](9, objectbind.Date)
	when := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.SetParameterDate(createdAt.ID, when))
	assert.Equal(t, when.UnixMilli(), backend.lastSetLong)
}

func TestSetParametersDateCoercesBothBoundsToUnixMilli(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	q := buildSimpleQuery(t, backend, store, nil)
	defer q.Close()

	createdAt := objectbind.NewProperty[time.Time](9, objectbind.Date)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, q.SetParametersDate(createdAt.ID, from, to))
	assert.Equal(t, [2]int64{from.UnixMilli(), to.UnixMilli()}, backend.lastSetLongRange)
}

func TestLazyListResolvesOnAccess(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	q := buildSimpleQuery(t, backend, store, []objectbind.Row{
		{"id": int64(1), "color": "blue"},
		{"id": int64(2), "color": "red"},
	})
	defer q.Close()

	lazy, err := q.FindLazy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, lazy.Size())

	e, ok, err := lazy.Get(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "blue", e.Color)

	_, _, err = lazy.Get(context.Background(), 5)
	require.Error(t, err)
}
