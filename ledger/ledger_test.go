package ledger

import (
	"context"
	"testing"

	"github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, o ...Option) *Ledger {
	l, err := New(context.Background(), ds_sync.MutexWrap(datastore.NewMapDatastore()), "/test", o...)
	require.NoError(t, err)
	return l
}

func TestLedger_Submit(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t, WithMaxValueSize(4), WithMaxQueueSize(2))

	require.ErrorIs(t, l.Submit(nil), ErrEmptyValue)
	require.ErrorIs(t, l.Submit([]byte("too long")), ErrValueTooLarge)
	require.NoError(t, l.Submit([]byte("a")))
	require.NoError(t, l.Submit([]byte("b")))
	require.ErrorIs(t, l.Submit([]byte("c")), ErrQueueFull)
	require.Equal(t, 2, l.Pending())
}

func TestLedger_NextValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.NextValue(ctx, 1)
	require.ErrorIs(t, err, pbft.ErrNoValue)

	require.NoError(t, l.Submit([]byte("a")))
	require.NoError(t, l.Submit([]byte("b")))

	v, err := l.NextValue(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), v)

	// The same sequence gets the same value back, e.g. when filling a gap in a
	// new view.
	v, err = l.NextValue(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), v)

	v, err = l.NextValue(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("b"), v)

	_, err = l.NextValue(ctx, 3)
	require.ErrorIs(t, err, pbft.ErrNoValue)
}

func TestLedger_Execute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newTestLedger(t)

	require.NoError(t, l.Submit([]byte("a")))
	require.NoError(t, l.Submit([]byte("b")))
	_, err := l.NextValue(ctx, 1)
	require.NoError(t, err)

	ch := make(chan *pbft.CommitCertificate, 4)
	_, closer := l.Subscribe(ch)
	defer closer()

	t.Run("another value committed at an assigned sequence", func(t *testing.T) {
		require.NoError(t, l.Execute(ctx, makeCert(1, "x")))
		require.Equal(t, uint64(1), l.LastExecuted())
		require.Equal(t, 2, l.Pending())

		// "a" is unassigned again and proposed first.
		v, err := l.NextValue(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, []byte("a"), v)
	})
	t.Run("committed value leaves the queue", func(t *testing.T) {
		require.NoError(t, l.Execute(ctx, makeCert(2, "a")))
		require.Equal(t, 1, l.Pending())
	})
	t.Run("replayed certificate is ignored", func(t *testing.T) {
		require.NoError(t, l.Execute(ctx, makeCert(2, "b")))
		require.Equal(t, 1, l.Pending())
		require.Equal(t, uint64(2), l.LastExecuted())
	})
	t.Run("gap fails", func(t *testing.T) {
		require.ErrorIs(t, l.Execute(ctx, makeCert(5, "b")), ErrGap)
	})

	require.Equal(t, uint64(1), (<-ch).Sequence)
	require.Equal(t, uint64(2), (<-ch).Sequence)
}

func TestLedger_CheckValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newTestLedger(t, WithMaxValueSize(4), WithValueCheck(func(_ context.Context, v []byte) pbft.ValueCheck {
		if string(v) == "bad" {
			return pbft.VALUE_INVALID
		}
		return pbft.VALUE_VALID
	}))

	require.Equal(t, pbft.VALUE_VALID, l.CheckValue(ctx, nil))
	require.Equal(t, pbft.VALUE_VALID, l.CheckValue(ctx, []byte("ok")))
	require.Equal(t, pbft.VALUE_INVALID, l.CheckValue(ctx, []byte("bad")))
	require.Equal(t, pbft.VALUE_INVALID, l.CheckValue(ctx, []byte("too long")))
}

func TestOptions(t *testing.T) {
	t.Parallel()
	_, err := newOptions(WithMaxValueSize(0))
	require.Error(t, err)
	_, err = newOptions(WithMaxQueueSize(0))
	require.Error(t, err)
}
