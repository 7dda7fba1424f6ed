package pbft

import (
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewView_Quorum(t *testing.T) {
	t.Run("accepted with three distinct votes", func(t *testing.T) {
		tn := newTestNetwork(t, 4, 2).start()
		nv := tn.newView(1, 1, tn.viewChange(0, 1), tn.viewChange(1, 1), tn.viewChange(3, 1))
		tn.requireReceive(nv)
		require.Equal(t, int64(1), tn.coordinator.View())
		require.True(t, tn.coordinator.ViewActive())
		require.True(t, tn.host.hasView)
		require.Equal(t, int64(1), tn.host.storedView)

		// Same view again is a no-op.
		tn.requireReceive(nv)
		require.Equal(t, int64(1), tn.coordinator.View())
	})
	t.Run("rejected with exactly quorum votes", func(t *testing.T) {
		tn := newTestNetwork(t, 4, 2).start()
		nv := tn.newView(1, 1, tn.viewChange(0, 1), tn.viewChange(3, 1))
		require.ErrorIs(t, tn.receive(nv), ErrReceivedRejected)
		require.Zero(t, tn.coordinator.View())
		require.False(t, tn.host.hasView)
	})
	t.Run("duplicate voters count once", func(t *testing.T) {
		tn := newTestNetwork(t, 4, 2).start()
		vote := tn.viewChange(0, 1)
		nv := tn.newView(1, 1, vote, vote, tn.viewChange(3, 1))
		require.ErrorIs(t, tn.receive(nv), ErrReceivedRejected)
		require.Zero(t, tn.coordinator.View())
	})
	t.Run("rejected when a vote is for another view", func(t *testing.T) {
		tn := newTestNetwork(t, 4, 2).start()
		nv := tn.newView(1, 1, tn.viewChange(0, 1), tn.viewChange(1, 1), tn.viewChange(3, 2))
		require.ErrorIs(t, tn.receive(nv), ErrReceivedRejected)
		require.Zero(t, tn.coordinator.View())
	})
	t.Run("rejected when a vote is forged", func(t *testing.T) {
		tn := newTestNetwork(t, 4, 2).start()
		forged := tn.viewChange(3, 1)
		forged.Signature[0] ^= 0xff
		nv := tn.newView(1, 1, tn.viewChange(0, 1), tn.viewChange(1, 1), forged)
		require.ErrorIs(t, tn.receive(nv), ErrReceivedRejected)
		require.Zero(t, tn.coordinator.View())
	})
	t.Run("rejected from a replica other than the primary", func(t *testing.T) {
		tn := newTestNetwork(t, 4, 2).start()
		nv := tn.newView(3, 1, tn.viewChange(0, 1), tn.viewChange(1, 1), tn.viewChange(3, 1))
		require.ErrorIs(t, tn.receive(nv), ErrValidationNotPrimary)
	})
}

func TestViewChange_LedgerCloseTimeout(t *testing.T) {
	tn := newTestNetwork(t, 4, 2, WithLedgerCloseTimeout(15*time.Second, time.Second)).start()

	require.NoError(t, tn.fire(LEDGER_CLOSE_CHECK, 0))
	require.Empty(t, tn.host.broadcasts)

	tn.host.clock.Add(15 * time.Second)
	require.NoError(t, tn.fire(LEDGER_CLOSE_CHECK, 0))
	votes := tn.host.broadcastsOf(KIND_VIEW_CHANGE)
	require.Len(t, votes, 1)
	require.Equal(t, int64(1), votes[0].ViewChange.View)
	require.False(t, tn.coordinator.ViewActive())
	require.Zero(t, tn.coordinator.View())

	timer, found := tn.host.timerOf(NEW_VIEW_RESPONSE_TIMEOUT)
	require.True(t, found)
	require.Equal(t, int64(1), timer.Payload)

	t.Run("instance messages are refused while changing view", func(t *testing.T) {
		require.ErrorIs(t, tn.receive(tn.prePrepare(0, 0, 1, "V")), ErrReceivedRejected)
	})
	t.Run("vote is resent after view change timeout", func(t *testing.T) {
		tn.host.resetBroadcasts()
		require.NoError(t, tn.fire(CONSENSUS_CHECK, 0))
		require.Empty(t, tn.host.broadcasts)

		tn.host.clock.Add(defaultViewChangeTimeout)
		require.NoError(t, tn.fire(CONSENSUS_CHECK, 0))
		votes := tn.host.broadcastsOf(KIND_VIEW_CHANGE)
		require.Len(t, votes, 1)
		require.Equal(t, int64(1), votes[0].ViewChange.View)
	})
	t.Run("no new view in time moves to the next view", func(t *testing.T) {
		tn.host.resetBroadcasts()
		require.NoError(t, tn.fire(NEW_VIEW_RESPONSE_TIMEOUT, 1))
		votes := tn.host.broadcastsOf(KIND_VIEW_CHANGE)
		require.Len(t, votes, 1)
		require.Equal(t, int64(2), votes[0].ViewChange.View)

		// The primary of view 2 is this replica; it waits for more votes.
		require.Zero(t, tn.coordinator.View())
	})
	t.Run("primary elect sends new view on quorum", func(t *testing.T) {
		tn.host.resetBroadcasts()
		tn.requireReceive(tn.viewChange(0, 2))
		require.Empty(t, tn.host.broadcastsOf(KIND_NEW_VIEW))
		tn.requireReceive(tn.viewChange(3, 2))

		nvs := tn.host.broadcastsOf(KIND_NEW_VIEW)
		require.Len(t, nvs, 1)
		require.Len(t, nvs[0].NewView.ViewChanges, 3)
		require.Equal(t, int64(2), tn.coordinator.View())
		require.True(t, tn.coordinator.IsPrimary())
		require.True(t, tn.coordinator.ViewActive())
	})
}

func TestViewChange_JoinOnWeakQuorum(t *testing.T) {
	tn := newTestNetwork(t, 4, 3).start()

	tn.requireReceive(tn.viewChange(0, 1))
	require.Empty(t, tn.host.broadcasts)
	require.True(t, tn.coordinator.ViewActive())

	// f+1 votes include a correct replica: join.
	tn.requireReceive(tn.viewChange(2, 1))
	votes := tn.host.broadcastsOf(KIND_VIEW_CHANGE)
	require.Len(t, votes, 1)
	require.Equal(t, int64(3), votes[0].Sender)
	require.False(t, tn.coordinator.ViewActive())

	// Stale view change is refused.
	tn.requireReceive(tn.newView(1, 1, tn.viewChange(0, 1), tn.viewChange(2, 1), votes[0]))
	require.ErrorIs(t, tn.receive(tn.viewChange(0, 1)), ErrReceivedRejected)
}

func TestViewChange_PreparedValueIsReproposed(t *testing.T) {
	// Replica 1 is the primary of view 1.
	tn := newTestNetwork(t, 4, 1).start()

	// Sequence 1 prepared in view 0 at replica 2, unknown to replica 1.
	prepared := tn.prePrepare(0, 0, 1, "carried")
	tn.requireReceive(tn.viewChange(2, 1, prepared))
	tn.requireReceive(tn.viewChange(3, 1, prepared))

	require.Equal(t, int64(1), tn.coordinator.View())
	require.True(t, tn.coordinator.IsPrimary())
	require.Len(t, tn.host.broadcastsOf(KIND_NEW_VIEW), 1)

	pps := tn.host.broadcastsOf(KIND_PRE_PREPARE)
	require.Len(t, pps, 1)
	require.Equal(t, int64(1), pps[0].PrePrepare.View)
	require.Equal(t, uint64(1), pps[0].PrePrepare.Sequence)
	require.Equal(t, []byte("carried"), pps[0].PrePrepare.Value)
	tn.requirePhase(InstanceKey{View: 1, Sequence: 1}, PRE_PREPARED_PHASE)

	// Sequence 1 is in flight: PUBLISH proposes nothing new.
	require.NoError(t, tn.fire(PUBLISH, 0))
	require.Len(t, tn.host.broadcastsOf(KIND_PRE_PREPARE), 1)
}

func TestViewChange_GapBelowPreparedFilled(t *testing.T) {
	tn := newTestNetwork(t, 4, 1).start()
	tn.host.valueErrs = map[uint64]error{1: errors.New("value source unavailable")}

	prepared := tn.prePrepare(0, 0, 3, "carried")
	tn.requireReceive(tn.viewChange(2, 1, prepared))
	tn.requireReceive(tn.viewChange(3, 1, prepared))
	require.Equal(t, int64(1), tn.coordinator.View())

	pps := tn.host.broadcastsOf(KIND_PRE_PREPARE)
	require.Len(t, pps, 3)
	for i, pp := range pps {
		require.Equal(t, int64(1), pp.PrePrepare.View)
		require.Equal(t, uint64(i+1), pp.PrePrepare.Sequence)
	}
	require.Empty(t, pps[0].PrePrepare.Value)
	require.Equal(t, sha256.Sum256(nil), [32]byte(pps[0].PrePrepare.ValueDigest))
	require.Equal(t, []byte("value-2"), pps[1].PrePrepare.Value)
	require.Equal(t, []byte("carried"), pps[2].PrePrepare.Value)
	tn.requirePhase(InstanceKey{View: 1, Sequence: 3}, PRE_PREPARED_PHASE)
}

func TestViewChange_BackupEnforcesReproposal(t *testing.T) {
	tn := newTestNetwork(t, 4, 2).start()
	prepared := tn.prePrepare(0, 0, 1, "carried")
	nv := tn.newView(1, 1,
		tn.viewChange(0, 1, prepared),
		tn.viewChange(1, 1),
		tn.viewChange(3, 1, prepared))
	tn.requireReceive(nv)

	require.ErrorIs(t, tn.receive(tn.prePrepare(1, 1, 1, "other")), ErrConflictingProposal)
	tn.requireReceive(tn.prePrepare(1, 1, 1, "carried"))
	tn.requirePhase(InstanceKey{View: 1, Sequence: 1}, PRE_PREPARED_PHASE)
}

func TestViewChange_FutureMessagesReplayed(t *testing.T) {
	tn := newTestNetwork(t, 4, 2).start()

	// Proposal for view 1 arrives before the new view.
	tn.requireReceive(tn.prePrepare(1, 1, 1, "early"))
	tn.requirePhase(InstanceKey{View: 1, Sequence: 1}, NONE_PHASE)
	require.Empty(t, tn.host.broadcasts)

	tn.requireReceive(tn.newView(1, 1, tn.viewChange(0, 1), tn.viewChange(1, 1), tn.viewChange(3, 1)))
	tn.requirePhase(InstanceKey{View: 1, Sequence: 1}, PRE_PREPARED_PHASE)
	require.Len(t, tn.host.broadcastsOf(KIND_PREPARE), 1)
}

func TestViewChange_PendingQueueBounded(t *testing.T) {
	tn := newTestNetwork(t, 4, 2, WithMaxPendingMessages(1)).start()
	tn.requireReceive(tn.prePrepare(1, 1, 1, "kept"))
	tn.requireReceive(tn.prePrepare(1, 1, 2, "dropped"))

	tn.requireReceive(tn.newView(1, 1, tn.viewChange(0, 1), tn.viewChange(1, 1), tn.viewChange(3, 1)))
	tn.requirePhase(InstanceKey{View: 1, Sequence: 1}, PRE_PREPARED_PHASE)
	_, found := tn.coordinator.InstancePhase(InstanceKey{View: 1, Sequence: 2})
	require.False(t, found)
}

func TestViewChange_NewViewResent(t *testing.T) {
	tn := newTestNetwork(t, 4, 1, WithNewViewResendInterval(5*time.Second)).start()
	tn.requireReceive(tn.viewChange(2, 1))
	tn.requireReceive(tn.viewChange(3, 1))
	require.Equal(t, int64(1), tn.coordinator.View())
	tn.host.resetBroadcasts()

	tn.host.clock.Add(5 * time.Second)
	require.NoError(t, tn.fire(CONSENSUS_CHECK, 0))
	nvs := tn.host.broadcastsOf(KIND_NEW_VIEW)
	require.Len(t, nvs, 1)
	require.Equal(t, uint64(1), nvs[0].NewView.Round)
	require.NoError(t, tn.coordinator.validator.verifySignature(tn.coordinator.directory, nvs[0]))
}

func TestInstanceLog_PruneAfterNewView(t *testing.T) {
	il := newInstanceLog()
	now := time.Now()
	add := func(view int64, seq uint64, phase Phase) InstanceKey {
		key := InstanceKey{View: view, Sequence: seq}
		il.getOrCreate(key, now).phase = phase
		return key
	}
	preparedAbove := add(0, 11, PREPARED_PHASE)
	preparedBelow := add(0, 9, PREPARED_PHASE)
	committedBelow := add(0, 5, COMMITTED_PHASE)
	committedAbove := add(0, 12, COMMITTED_PHASE)
	prePrepared := add(0, 13, PRE_PREPARED_PHASE)
	none := add(0, 14, NONE_PHASE)

	require.Equal(t, 3, il.prune(10))
	require.NotNil(t, il.get(preparedAbove))
	require.NotNil(t, il.get(committedBelow))
	require.NotNil(t, il.get(committedAbove))
	require.Nil(t, il.get(preparedBelow))
	require.Nil(t, il.get(prePrepared))
	require.Nil(t, il.get(none))
}

func TestInstanceLog_PreparedAbove(t *testing.T) {
	tn := newTestNetwork(t, 4, 1)
	il := newInstanceLog()
	now := time.Now()
	add := func(view int64, seq uint64, phase Phase, value string) {
		inst := il.getOrCreate(InstanceKey{View: view, Sequence: seq}, now)
		inst.phase = phase
		inst.prePrepareMsg = tn.prePrepare(tn.coordinator.directory.Primary(view), view, seq, value)
	}
	add(0, 3, PREPARED_PHASE, "old")
	add(2, 3, PREPARED_PHASE, "new")
	add(0, 2, COMMITTED_PHASE, "two")
	add(0, 4, PRE_PREPARED_PHASE, "not prepared")
	add(0, 1, PREPARED_PHASE, "executed")

	got := il.preparedAbove(1)
	require.Len(t, got, 2)
	require.Equal(t, uint64(2), got[0].PrePrepare.Sequence)
	require.Equal(t, []byte("new"), got[1].PrePrepare.Value)
}
