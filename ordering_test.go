package objectbind_test

import (
	"context"
	"testing"

	"github.com/objectbind/objectbind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderFlagsHas(t *testing.T) {
	f := objectbind.Descending | objectbind.NullsLast
	assert.True(t, f.Has(objectbind.Descending))
	assert.True(t, f.Has(objectbind.NullsLast))
	assert.False(t, f.Has(objectbind.CaseSensitiveOrder))
	assert.False(t, f.Has(objectbind.NullsAsZero))
}

func TestMultiKeyOrderingRetainsCallOrder(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()

	b, err := objectbind.NewQueryBuilder[struct{}](ctx, store, "tshirt", noopMapper)
	require.NoError(t, err)
	objectbind.Order(b, colorProp)
	objectbind.OrderDesc(b, priceProp)
	objectbind.OrderBy(b, sizeProp, objectbind.NullsAsZero)

	q, err := b.Build(ctx)
	require.NoError(t, err)
	defer q.Close()

	h := findQueryHandle(t, backend)
	orders := backend.queries[h].orders
	require.Len(t, orders, 3)
	assert.Contains(t, orders[0], "p1:")
	assert.Contains(t, orders[1], "p3:")
	assert.Contains(t, orders[2], "p2:")
}
