package measurements_test

import (
	"context"
	"testing"

	"github.com/ipfs/go-datastore"
	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestMeteredDatastore(t *testing.T) {
	ctx := context.Background()
	meter := noop.NewMeterProvider().Meter("test")
	subject := measurements.NewMeteredDatastore(meter, "test_", datastore.NewMapDatastore())

	key := datastore.NewKey("/certs/1")
	_, err := subject.Get(ctx, key)
	require.ErrorIs(t, err, datastore.ErrNotFound)

	require.NoError(t, subject.Put(ctx, key, []byte("fish")))
	got, err := subject.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("fish"), got)

	batch, err := subject.Batch(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Put(ctx, datastore.NewKey("/certs/2"), []byte("lobster")))
	require.NoError(t, batch.Delete(ctx, key))
	has, err := subject.Has(ctx, datastore.NewKey("/certs/2"))
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, batch.Commit(ctx))
	has, err = subject.Has(ctx, datastore.NewKey("/certs/2"))
	require.NoError(t, err)
	require.True(t, has)
	has, err = subject.Has(ctx, key)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, subject.Close())
}
