package entity_test

import (
	"testing"

	"github.com/objectbind/objectbind"
	"github.com/objectbind/objectbind/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tshirt struct {
	ID    int64  `objectbind:"id,id=1,pk"`
	Color string `objectbind:"color,id=2,type=String"`
	Size  string `objectbind:"size,id=3,type=String"`
	Price int64  `objectbind:"price,id=4,type=Long"`
}

func TestRegisterAndLoad(t *testing.T) {
	meta, err := entity.Register[tshirt]("tshirt")
	require.NoError(t, err)
	assert.Equal(t, "tshirt", meta.EntityName())

	name, tag, ok := meta.PropertyColumn(2)
	require.True(t, ok)
	assert.Equal(t, "color", name)
	assert.Equal(t, objectbind.String, tag)

	loaded, err := entity.Load[tshirt]()
	require.NoError(t, err)
	assert.Same(t, meta, loaded)
}

func TestRegisterRejectsMissingPK(t *testing.T) {
	type noPK struct {
		Name string `objectbind:"name,id=1,type=String"`
	}
	_, err := entity.Register[noPK]("no_pk")
	require.Error(t, err)
}

func TestIDProperty(t *testing.T) {
	meta, err := entity.Register[tshirt]("tshirt_id")
	require.NoError(t, err)
	id := meta.IDProperty()
	assert.Equal(t, uint32(1), id.ID)
}

func TestMapper(t *testing.T) {
	meta, err := entity.Register[tshirt]("tshirt_mapper")
	require.NoError(t, err)
	mapper := meta.Mapper()

	row := objectbind.Row{"id": int64(7), "color": "blue", "size": "XL", "price": int64(2500)}
	out, err := mapper(row)
	require.NoError(t, err)
	assert.Equal(t, int64(7), out.ID)
	assert.Equal(t, "blue", out.Color)
	assert.Equal(t, "XL", out.Size)
	assert.Equal(t, int64(2500), out.Price)
}

func TestMapperTypeMismatch(t *testing.T) {
	meta, err := entity.Register[tshirt]("tshirt_mismatch")
	require.NoError(t, err)
	mapper := meta.Mapper()

	row := objectbind.Row{"id": int64(1), "price": []byte("not an int")}
	_, err = mapper(row)
	assert.Error(t, err)
}
