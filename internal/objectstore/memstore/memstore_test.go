package memstore_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printsplit/splitengine/internal/objectstore"
	"github.com/printsplit/splitengine/internal/objectstore/memstore"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)

	body := []byte("solid test\nendsolid test\n")
	require.NoError(t, store.Put(ctx, objectstore.Uploads, "abc/model.stl", strings.NewReader(string(body)), int64(len(body)), objectstore.ContentTypeSTL))

	exists, err := store.Exists(ctx, objectstore.Uploads, "abc/model.stl")
	require.NoError(t, err)
	require.True(t, exists)

	got, err := store.Get(ctx, objectstore.Uploads, "abc/model.stl")
	require.NoError(t, err)
	require.Equal(t, body, got)

	info, err := store.Stat(ctx, objectstore.Uploads, "abc/model.stl")
	require.NoError(t, err)
	require.Equal(t, int64(len(body)), info.Size)
}

func TestDeletePrefix(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)

	for _, name := range []string{"part_1_1_1.stl", "part_2_1_1.stl", "all-parts.zip"} {
		require.NoError(t, store.Put(ctx, objectstore.Results, "job-1/"+name, strings.NewReader("x"), 1, objectstore.ContentTypeSTL))
	}
	require.NoError(t, store.Put(ctx, objectstore.Results, "job-2/part_1_1_1.stl", strings.NewReader("x"), 1, objectstore.ContentTypeSTL))

	require.NoError(t, store.DeletePrefix(ctx, objectstore.Results, "job-1/"))

	keys, err := store.List(ctx, objectstore.Results, "")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "job-2/part_1_1_1.stl", keys[0])
}

func TestPresignGetFailsForMissingKey(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	_, err := store.PresignGet(ctx, objectstore.Uploads, "missing", time.Minute)
	require.Error(t, err)
}
