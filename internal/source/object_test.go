package source

import (
	"context"
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/internal/storage"
	"github.com/arkilian/studio/pkg/types"
)

func newObjectSource(t *testing.T) (*Object, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewObject(store, "snapshots/", nil), store
}

func TestObject_WriteSnapshotRoundTrip(t *testing.T) {
	src, store := newObjectSource(t)
	ctx := context.Background()

	require.NoError(t, src.WriteSnapshot(ctx, "course", courseRows()))

	raw, err := store.Get(ctx, "snapshots/course.json.sz")
	require.NoError(t, err)
	_, err = snappy.Decode(nil, raw)
	require.NoError(t, err, "snapshot should be snappy encoded")

	rows, err := src.Read(ctx, fetch.ReadDescriptor{
		Collection: "courses",
		Table:      "course",
		Fields:     []string{"id", "tags"},
		ListFields: []string{"tags"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, types.Row{"id": float64(1), "tags": []string{"go"}}, rows[0])
	assert.Equal(t, []string{"sql", "db"}, rows[1]["tags"])
}

func TestObject_FallsBackToPlainJSON(t *testing.T) {
	src, store := newObjectSource(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "snapshots/student.json", []byte(`[{"name":"Ana"},{"name":"Bia"}]`)))

	rows, err := src.Read(ctx, fetch.ReadDescriptor{Collection: "students", Table: "student", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []types.Row{{"name": "Ana"}}, rows)
}

func TestObject_Errors(t *testing.T) {
	src, store := newObjectSource(t)
	ctx := context.Background()

	_, err := src.Read(ctx, fetch.ReadDescriptor{Collection: "c", Table: "missing"})
	assert.ErrorIs(t, err, studioerrors.ErrTableNotFound)

	require.NoError(t, store.Put(ctx, "snapshots/broken.json.sz", []byte("not snappy")))
	_, err = src.Read(ctx, fetch.ReadDescriptor{Collection: "c", Table: "broken"})
	assert.Equal(t, studioerrors.CodeDecodeFailed, studioerrors.GetCode(err))

	_, err = src.Read(ctx, fetch.ReadDescriptor{Collection: "c", Table: "../escape"})
	assert.Equal(t, studioerrors.ErrCategoryValidation, studioerrors.GetCategory(err))
}

func TestObject_Tables(t *testing.T) {
	src, store := newObjectSource(t)
	ctx := context.Background()

	require.NoError(t, src.WriteSnapshot(ctx, "course", nil))
	require.NoError(t, store.Put(ctx, "snapshots/course.json", []byte("[]")))
	require.NoError(t, store.Put(ctx, "snapshots/student.json", []byte("[]")))
	require.NoError(t, store.Put(ctx, "snapshots/notes.txt", []byte("x")))
	require.NoError(t, store.Put(ctx, "other/lesson.json", []byte("[]")))

	tables, err := src.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"course", "student"}, tables)
}
