package ledgerbft_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/ledgerbft/go-ledgerbft"
	"github.com/ledgerbft/go-ledgerbft/ledger"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/stretchr/testify/require"
)

const testNetworkName pbft.NetworkName = "test"

var _ ledgerbft.Transport = (*memEndpoint)(nil)

// memHub connects in-process endpoints. Messages are copied through their
// wire encoding.
type memHub struct {
	mu        sync.Mutex
	endpoints map[pbft.Address]*memEndpoint
}

type memEndpoint struct {
	hub     *memHub
	self    pbft.Address
	inbox   chan *pbft.SignedMessage
	running atomic.Bool
}

func newMemHub() *memHub {
	return &memHub{endpoints: make(map[pbft.Address]*memEndpoint)}
}

func (h *memHub) endpoint(self pbft.Address) *memEndpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ep, found := h.endpoints[self]; found {
		return ep
	}
	ep := &memEndpoint{hub: h, self: self, inbox: make(chan *pbft.SignedMessage, 4096)}
	h.endpoints[self] = ep
	return ep
}

func (e *memEndpoint) NetworkName() pbft.NetworkName { return testNetworkName }

func (e *memEndpoint) Start(context.Context) error {
	e.running.Store(true)
	return nil
}

func (e *memEndpoint) Stop(context.Context) error {
	e.running.Store(false)
	return nil
}

func (e *memEndpoint) Inbox() <-chan *pbft.SignedMessage { return e.inbox }

func (e *memEndpoint) Broadcast(msg *pbft.SignedMessage) error {
	e.hub.mu.Lock()
	defer e.hub.mu.Unlock()
	for addr, to := range e.hub.endpoints {
		if addr != e.self {
			to.deliver(msg)
		}
	}
	return nil
}

func (e *memEndpoint) Send(addr pbft.Address, msg *pbft.SignedMessage) error {
	e.hub.mu.Lock()
	defer e.hub.mu.Unlock()
	to, found := e.hub.endpoints[addr]
	if !found {
		return fmt.Errorf("unknown peer %s", addr)
	}
	to.deliver(msg)
	return nil
}

func (e *memEndpoint) deliver(msg *pbft.SignedMessage) {
	if !e.running.Load() {
		return
	}
	var buf bytes.Buffer
	if err := msg.MarshalCBOR(&buf); err != nil {
		panic(err)
	}
	var clone pbft.SignedMessage
	if err := clone.UnmarshalCBOR(&buf); err != nil {
		panic(err)
	}
	select {
	case e.inbox <- &clone:
	default:
	}
}

type testReplica struct {
	node   *ledgerbft.Node
	ledger *ledger.Ledger
	ds     datastore.Batching
}

type testCluster struct {
	t          *testing.T
	ctx        context.Context
	hub        *memHub
	backend    *signing.FakeBackend
	validators []pbft.Validator
	replicas   []*testReplica
}

func fastTimers() ledgerbft.Option {
	return ledgerbft.WithPbftOptions(
		pbft.WithConsensusCheckInterval(20*time.Millisecond),
		pbft.WithPublishInterval(10*time.Millisecond),
		pbft.WithLedgerCloseTimeout(5*time.Second, 100*time.Millisecond),
	)
}

func newTestCluster(t *testing.T, n int) *testCluster {
	tc := &testCluster{
		t:       t,
		ctx:     context.Background(),
		hub:     newMemHub(),
		backend: signing.NewFakeBackend(),
	}
	for i := 0; i < n; i++ {
		pubKey, _ := tc.backend.GenerateKey()
		addr, err := tc.backend.Address(pubKey)
		require.NoError(t, err)
		tc.validators = append(tc.validators, pbft.Validator{Address: addr, PubKey: pubKey})
	}
	for i := 0; i < n; i++ {
		tc.replicas = append(tc.replicas, tc.newReplica(i, ds_sync.MutexWrap(datastore.NewMapDatastore())))
	}
	t.Cleanup(func() {
		for _, r := range tc.replicas {
			require.NoError(t, r.node.Close(tc.ctx))
		}
	})
	return tc
}

func (tc *testCluster) newReplica(i int, ds datastore.Batching, o ...ledgerbft.Option) *testReplica {
	l, err := ledger.New(tc.ctx, ds, "/test")
	require.NoError(tc.t, err)
	self := tc.validators[i].Address
	node, err := ledgerbft.New(tc.ctx, self, tc.validators, tc.hub.endpoint(self), tc.backend, l, ds,
		append([]ledgerbft.Option{fastTimers()}, o...)...)
	require.NoError(tc.t, err)
	return &testReplica{node: node, ledger: l, ds: ds}
}

func (tc *testCluster) start() *testCluster {
	for _, r := range tc.replicas {
		require.NoError(tc.t, r.node.Start(tc.ctx))
	}
	return tc
}

func (tc *testCluster) submit(values ...string) {
	for _, r := range tc.replicas {
		for _, v := range values {
			require.NoError(tc.t, r.ledger.Submit([]byte(v)))
		}
	}
}

func (tc *testCluster) requireHeight(height uint64) {
	require.Eventually(tc.t, func() bool {
		for _, r := range tc.replicas {
			if r.ledger.LastExecuted() < height {
				return false
			}
		}
		return true
	}, 10*time.Second, 10*time.Millisecond)
}

// requireAgreement asserts every replica executed the same values.
func (tc *testCluster) requireAgreement(height uint64) {
	want, err := tc.replicas[0].ledger.Store().GetRange(tc.ctx, 1, height)
	require.NoError(tc.t, err)
	for _, r := range tc.replicas[1:] {
		got, err := r.ledger.Store().GetRange(tc.ctx, 1, height)
		require.NoError(tc.t, err)
		require.Len(tc.t, got, len(want))
		for i := range want {
			require.Equal(tc.t, want[i].Value, got[i].Value)
			require.Equal(tc.t, want[i].ValueDigest, got[i].ValueDigest)
		}
	}
}

func TestNode_Agreement(t *testing.T) {
	tc := newTestCluster(t, 4).start()

	commits := make(chan *pbft.CommitCertificate, 16)
	_, closer := tc.replicas[2].node.SubscribeForCommits(commits)
	defer closer()

	tc.submit("a", "b", "c")
	tc.requireHeight(3)
	tc.requireAgreement(3)

	var executed []string
	for i := 0; i < 3; i++ {
		select {
		case cert := <-commits:
			executed = append(executed, string(cert.Value))
		case <-time.After(5 * time.Second):
			require.FailNow(t, "timed out waiting for commit")
		}
	}
	require.Equal(t, []string{"a", "b", "c"}, executed)
	for _, r := range tc.replicas {
		require.Zero(t, r.ledger.Pending())
	}
}

func TestNode_StartStop(t *testing.T) {
	tc := newTestCluster(t, 4)
	node := tc.replicas[0].node

	require.ErrorIs(t, node.Stop(tc.ctx), ledgerbft.ErrNotRunning)
	require.NoError(t, node.Start(tc.ctx))
	require.ErrorIs(t, node.Start(tc.ctx), ledgerbft.ErrAlreadyRunning)
	require.True(t, node.Coordinator().IsPrimary())
	require.NoError(t, node.Stop(tc.ctx))
	require.NoError(t, node.Start(tc.ctx))
}

func TestNode_RestartResumes(t *testing.T) {
	tc := newTestCluster(t, 4)
	walDir := t.TempDir()
	backup := tc.replicas[1]
	require.NoError(t, backup.node.Close(tc.ctx))
	tc.replicas[1] = tc.newReplica(1, backup.ds, ledgerbft.WithWriteAheadLog(walDir))
	tc.start()

	tc.submit("a", "b")
	tc.requireHeight(2)

	restarted := tc.replicas[1]
	require.NoError(t, restarted.node.Close(tc.ctx))
	tc.replicas[1] = tc.newReplica(1, restarted.ds, ledgerbft.WithWriteAheadLog(walDir))
	require.Equal(t, uint64(2), tc.replicas[1].node.Coordinator().LastExecuted())
	require.NoError(t, tc.replicas[1].node.Start(tc.ctx))

	tc.submit("c")
	tc.requireHeight(3)
	tc.requireAgreement(3)
}

func TestNode_ViewChangeOnStoppedPrimary(t *testing.T) {
	tc := newTestCluster(t, 4)
	for _, r := range tc.replicas {
		require.NoError(t, r.node.Close(tc.ctx))
	}
	for i := range tc.replicas {
		tc.replicas[i] = tc.newReplica(i, tc.replicas[i].ds, ledgerbft.WithPbftOptions(
			pbft.WithLedgerCloseTimeout(300*time.Millisecond, 50*time.Millisecond),
		))
	}
	tc.start()

	tc.submit("a")
	tc.requireHeight(1)

	primary := tc.replicas[0].node
	require.True(t, primary.Coordinator().IsPrimary())
	require.NoError(t, primary.Stop(tc.ctx))

	views := make(chan int64, 8)
	lastView, closer := tc.replicas[1].node.SubscribeForViews(views)
	defer closer()

	tc.submit("b")
	require.Eventually(t, func() bool {
		for _, r := range tc.replicas[1:] {
			if r.ledger.LastExecuted() < 2 {
				return false
			}
		}
		return true
	}, 10*time.Second, 10*time.Millisecond)
	require.Positive(t, tc.replicas[1].node.Coordinator().View())

	if lastView == 0 {
		select {
		case view := <-views:
			require.Positive(t, view)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "timed out waiting for view change")
		}
	}
}
