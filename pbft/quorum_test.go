package pbft

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuorumSize(t *testing.T) {
	for n, want := range map[int]int{
		0: 0, 1: 0, 2: 1, 3: 1, 4: 2, 5: 3, 6: 3, 7: 4, 8: 5, 9: 5, 10: 6, 100: 66, 101: 67,
	} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			require.Equal(t, want, QuorumSize(n))
		})
	}
}

func TestQuorumThresholds(t *testing.T) {
	t.Run("prepare threshold is inclusive", func(t *testing.T) {
		require.False(t, hasPrepareQuorum(1, 4))
		require.True(t, hasPrepareQuorum(2, 4))
		require.True(t, hasPrepareQuorum(0, 1))
	})
	t.Run("new view threshold is strict", func(t *testing.T) {
		require.False(t, hasNewViewQuorum(2, 4))
		require.True(t, hasNewViewQuorum(3, 4))
		require.False(t, hasNewViewQuorum(3, 5))
		require.True(t, hasNewViewQuorum(4, 5))
	})
	t.Run("weak quorum is f+1", func(t *testing.T) {
		require.Equal(t, 1, MaxFaulty(4))
		require.False(t, hasWeakQuorum(1, 4))
		require.True(t, hasWeakQuorum(2, 4))
		require.Equal(t, 2, MaxFaulty(7))
		require.True(t, hasWeakQuorum(3, 7))
	})
}
