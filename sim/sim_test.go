package sim_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/ledgerbft/go-ledgerbft/sim"
	"github.com/ledgerbft/go-ledgerbft/sim/latency"
	"github.com/stretchr/testify/require"
)

func submitValues(t *testing.T, sm *sim.Simulation, from, to int) {
	for i := from; i < to; i++ {
		require.NoError(t, sm.Submit([]byte(fmt.Sprintf("value-%d", i))))
	}
}

func requireExecuted(t *testing.T, sm *sim.Simulation, id pbft.ReplicaID, want ...string) {
	ctx := context.Background()
	certs, err := sm.Ledger(id).Store().GetRange(ctx, 1, uint64(len(want)))
	require.NoError(t, err)
	got := make([]string, 0, len(certs))
	for _, cert := range certs {
		got = append(got, string(cert.Value))
	}
	require.Equal(t, want, got)
}

func TestSim_HappyPath(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 2, 4, 7} {
		n := n
		t.Run(fmt.Sprintf("replicas %d", n), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			sm, err := sim.NewSimulation(ctx, sim.WithReplicaCount(n))
			require.NoError(t, err)
			require.NoError(t, sm.Start(ctx))

			submitValues(t, sm, 0, 10)
			require.NoError(t, sm.RunUntilHeight(ctx, 10, time.Minute), sm.Describe())
			require.NoError(t, sm.CheckAgreement(ctx, 10))

			var want []string
			for i := 0; i < 10; i++ {
				want = append(want, fmt.Sprintf("value-%d", i))
			}
			requireExecuted(t, sm, pbft.ReplicaID(n-1), want...)
			for i := 0; i < n; i++ {
				require.Zero(t, sm.Coordinator(pbft.ReplicaID(i)).View())
				require.Zero(t, sm.Ledger(pbft.ReplicaID(i)).Pending())
			}
		})
	}
}

func TestSim_NoLatency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm, err := sim.NewSimulation(ctx, sim.WithLatencyModel(latency.None))
	require.NoError(t, err)
	require.NoError(t, sm.Start(ctx))

	submitValues(t, sm, 0, 3)
	require.NoError(t, sm.RunUntilHeight(ctx, 3, 10*time.Second))
	require.NoError(t, sm.CheckAgreement(ctx, 3))
}

func TestSim_PrimaryCrash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm, err := sim.NewSimulation(ctx)
	require.NoError(t, err)
	require.NoError(t, sm.Start(ctx))

	submitValues(t, sm, 0, 2)
	require.NoError(t, sm.RunUntilHeight(ctx, 2, time.Minute))
	require.True(t, sm.Coordinator(0).IsPrimary())

	sm.Crash(0)
	submitValues(t, sm, 2, 5)
	require.NoError(t, sm.RunUntilHeight(ctx, 5, 5*time.Minute), sm.Describe())
	require.NoError(t, sm.CheckAgreement(ctx, 5))
	for id := pbft.ReplicaID(1); id < 4; id++ {
		require.Positive(t, sm.Coordinator(id).View())
		require.True(t, sm.Coordinator(id).ViewActive())
	}
	requireExecuted(t, sm, 1, "value-0", "value-1", "value-2", "value-3", "value-4")
}

func TestSim_SilentReplica(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm, err := sim.NewSimulation(ctx, sim.WithDropRule(func(from, _ pbft.ReplicaID, _ *pbft.SignedMessage) bool {
		return from == 3
	}))
	require.NoError(t, err)
	require.NoError(t, sm.Start(ctx))

	submitValues(t, sm, 0, 5)
	require.NoError(t, sm.RunUntilHeight(ctx, 5, time.Minute), sm.Describe())
	require.NoError(t, sm.CheckAgreement(ctx, 5))
	require.Positive(t, sm.Network().Dropped())
	require.Zero(t, sm.Coordinator(0).View())
}

func TestSim_RecoveredReplicaCatchesUp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm, err := sim.NewSimulation(ctx)
	require.NoError(t, err)
	require.NoError(t, sm.Start(ctx))

	sm.Crash(2)
	submitValues(t, sm, 0, 2)
	require.NoError(t, sm.RunUntilHeight(ctx, 2, time.Minute))
	require.Zero(t, sm.Ledger(2).LastExecuted())

	require.NoError(t, sm.Recover(ctx, 2))
	submitValues(t, sm, 2, 3)
	// The recovered replica does not execute until it holds every earlier
	// certificate, so only the live majority is required to progress.
	require.NoError(t, sm.Run(ctx, time.Minute, func() bool {
		return sm.Ledger(0).LastExecuted() >= 3 && sm.Ledger(1).LastExecuted() >= 3
	}))
}

func TestSim_BLS(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm, err := sim.NewSimulation(ctx, sim.WithSigningBackend(signing.NewBLSBackend()))
	require.NoError(t, err)
	require.NoError(t, sm.Start(ctx))

	submitValues(t, sm, 0, 2)
	require.NoError(t, sm.RunUntilHeight(ctx, 2, time.Minute))
	require.NoError(t, sm.CheckAgreement(ctx, 2))
}

func TestSim_Options(t *testing.T) {
	t.Parallel()
	_, err := sim.NewSimulation(context.Background(), sim.WithReplicaCount(0))
	require.Error(t, err)
}
