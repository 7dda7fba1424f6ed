package viewstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/ledgerbft/go-ledgerbft/viewstore"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	ds := ds_sync.MutexWrap(datastore.NewMapDatastore())

	subject, err := viewstore.NewStore(ctx, ds, "/ledgerbft/test")
	require.NoError(t, err)

	_, found, err := subject.LoadView(ctx)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, subject.StoreView(ctx, 0))
	require.NoError(t, subject.StoreView(ctx, 3))
	require.NoError(t, subject.StoreView(ctx, 3))
	require.ErrorIs(t, subject.StoreView(ctx, 2), viewstore.ErrViewRegression)

	view, found, err := subject.LoadView(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(3), view)
	require.Equal(t, int64(3), subject.Latest())

	t.Run("reopened store restores the view", func(t *testing.T) {
		reopened, err := viewstore.NewStore(ctx, ds, "/ledgerbft/test")
		require.NoError(t, err)
		require.Equal(t, int64(3), reopened.Latest())
	})
	t.Run("namespaces are isolated", func(t *testing.T) {
		other, err := viewstore.NewStore(ctx, ds, "/ledgerbft/other")
		require.NoError(t, err)
		_, found, err := other.LoadView(ctx)
		require.NoError(t, err)
		require.False(t, found)
	})
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	subject, err := viewstore.NewStore(ctx, ds_sync.MutexWrap(datastore.NewMapDatastore()), "/ledgerbft")
	require.NoError(t, err)
	require.NoError(t, subject.StoreView(ctx, 1))

	ch := make(chan int64, 4)
	last, closer := subject.Subscribe(ch)
	defer closer()
	require.Equal(t, int64(1), last)

	require.NoError(t, subject.StoreView(ctx, 4))
	select {
	case v := <-ch:
		require.Equal(t, int64(4), v)
	case <-time.After(time.Second):
		require.FailNow(t, "no view notification")
	}
}
