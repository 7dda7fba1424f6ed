package caching_test

import (
	"testing"

	"github.com/ledgerbft/go-ledgerbft/internal/caching"
	"github.com/stretchr/testify/require"
)

var (
	prepares = []byte("prepare")
	commits  = []byte("commit")
)

func TestSet(t *testing.T) {
	subject := caching.NewSet(2)
	a, b := []byte("sig-a"), []byte("sig-b")

	require.False(t, subject.Contains(prepares, a))
	require.False(t, subject.ContainsOrAdd(prepares, a))
	require.True(t, subject.Contains(prepares, a))
	require.True(t, subject.ContainsOrAdd(prepares, a))

	t.Run("namespaces are distinct", func(t *testing.T) {
		require.False(t, subject.Contains(commits, a))
		// The namespace length is part of the digest.
		require.False(t, subject.Contains([]byte("prepar"), []byte("esig-a")))
	})

	t.Run("forgets samples two generations back", func(t *testing.T) {
		require.False(t, subject.ContainsOrAdd(prepares, b))
		require.True(t, subject.Contains(prepares, a))
		require.True(t, subject.Contains(prepares, b))

		require.False(t, subject.ContainsOrAdd(prepares, []byte("sig-c")))
		require.False(t, subject.ContainsOrAdd(prepares, []byte("sig-d")))
		require.False(t, subject.Contains(prepares, a))
		require.False(t, subject.Contains(prepares, b))
		require.True(t, subject.Contains(prepares, []byte("sig-c")))
	})

	t.Run("clear", func(t *testing.T) {
		subject.Clear()
		require.False(t, subject.Contains(prepares, []byte("sig-c")))
	})
}

func TestSet_MinCapacityIsOne(t *testing.T) {
	subject := caching.NewSet(-1)
	for _, v := range []string{"a", "b", "c"} {
		require.False(t, subject.ContainsOrAdd(nil, []byte(v)))
		require.True(t, subject.ContainsOrAdd(nil, []byte(v)))
	}
	require.False(t, subject.Contains(nil, []byte("a")))
}
