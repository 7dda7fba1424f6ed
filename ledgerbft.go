// Package ledgerbft runs a PBFT replica: it wires a pbft.Coordinator to a
// transport, timers, a signing backend, a persistent view store and an
// application, and feeds it events from a single goroutine.
package ledgerbft

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Kubuxu/go-broadcast"
	"github.com/ipfs/go-datastore"
	"github.com/ledgerbft/go-ledgerbft/internal/clock"
	"github.com/ledgerbft/go-ledgerbft/internal/timer"
	"github.com/ledgerbft/go-ledgerbft/internal/writeaheadlog"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/ledgerbft/go-ledgerbft/viewstore"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyRunning = errors.New("node is already running")
	ErrNotRunning     = errors.New("node is not running")
)

// Transport carries signed messages between replicas. Received messages are
// delivered on Inbox, never for messages this replica sent.
type Transport interface {
	pbft.Network
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Inbox() <-chan *pbft.SignedMessage
}

// Application proposes, checks and executes values.
type Application interface {
	pbft.Executor
	pbft.ValueSource
	pbft.ValueChecker
}

// Node is a single replica.
type Node struct {
	*options

	self      pbft.Address
	transport Transport
	backend   signing.Backend
	app       Application
	clock     clock.Clock
	timers    *timer.Service
	views     *viewstore.Store

	coordinator *pbft.Coordinator
	wal         atomic.Pointer[writeaheadlog.MessageWriteAheadLog]
	busCommits  broadcast.Channel[*pbft.CommitCertificate]

	mu      sync.Mutex
	cancel  context.CancelFunc
	errgrp  *errgroup.Group
	running bool
}

// New creates a replica. The context is used for initialization and to pick
// the clock, not at runtime. If app reports its last executed sequence through
// a LastExecuted() uint64 method, the coordinator resumes after it.
func New(ctx context.Context, self pbft.Address, validators []pbft.Validator, transport Transport,
	backend signing.Backend, app Application, ds datastore.Datastore, o ...Option) (*Node, error) {
	opts, err := newOptions(o...)
	if err != nil {
		return nil, err
	}
	views, err := viewstore.NewStore(ctx, ds, opts.datastorePrefix)
	if err != nil {
		return nil, fmt.Errorf("opening view store: %w", err)
	}
	n := &Node{
		options:   opts,
		self:      self,
		transport: transport,
		backend:   backend,
		app:       app,
		clock:     clock.GetClock(ctx),
		timers:    timer.NewService(ctx, opts.timerCapacity),
		views:     views,
	}

	pbftOpts := append([]pbft.Option{pbft.WithTracer(tracer)}, opts.pbftOptions...)
	if executed, ok := app.(interface{ LastExecuted() uint64 }); ok {
		pbftOpts = append(pbftOpts, pbft.WithLastExecuted(executed.LastExecuted()))
	}
	n.coordinator, err = pbft.NewCoordinator(self, validators, (*nodeHost)(n), pbftOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}
	return n, nil
}

// Start starts the transport, restores the coordinator and runs it until Stop
// is called. ctx is only used for start up.
func (n *Node) Start(ctx context.Context) (_err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return ErrAlreadyRunning
	}

	wal, err := n.openLog()
	if err != nil {
		return err
	}
	defer func() {
		if _err != nil && wal != nil {
			n.wal.Store(nil)
			_err = multierr.Append(_err, wal.Close())
		}
	}()
	n.wal.Store(wal)

	if err := n.transport.Start(ctx); err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}
	if err := n.coordinator.Start(ctx); err != nil {
		return multierr.Append(fmt.Errorf("starting coordinator: %w", err), n.transport.Stop(ctx))
	}
	if wal != nil {
		if err := n.replayLog(ctx, wal); err != nil {
			n.coordinator.Stop()
			return multierr.Append(err, n.transport.Stop(ctx))
		}
	}

	runningCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	errgrp, runningCtx := errgroup.WithContext(runningCtx)
	r := &runner{
		coordinator: n.coordinator,
		clock:       n.clock,
		timers:      n.timers.Events(),
		inbox:       n.transport.Inbox(),
	}
	errgrp.Go(func() error {
		if err := r.run(runningCtx); err != nil {
			log.Errorw("runner exited", "err", err)
			return err
		}
		return nil
	})
	n.cancel = cancel
	n.errgrp = errgrp
	n.running = true
	log.Infow("started node", "self", n.self, "network", n.transport.NetworkName(),
		"replica", n.coordinator.ReplicaID(), "view", n.coordinator.View())
	return nil
}

// Stop stops the runner, the coordinator and the transport. The node may be
// started again.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return ErrNotRunning
	}
	n.cancel()
	err := n.errgrp.Wait()
	n.coordinator.Stop()
	err = multierr.Append(err, n.transport.Stop(ctx))
	if wal := n.wal.Swap(nil); wal != nil {
		err = multierr.Append(err, wal.Close())
	}
	n.running = false
	n.cancel, n.errgrp = nil, nil
	log.Infow("stopped node", "self", n.self, "lastExecuted", n.coordinator.LastExecuted())
	return err
}

// Close stops the node and its timers for good.
func (n *Node) Close(ctx context.Context) error {
	err := n.Stop(ctx)
	if errors.Is(err, ErrNotRunning) {
		err = nil
	}
	n.timers.Close()
	return err
}

func (n *Node) Self() pbft.Address { return n.self }

// Coordinator exposes the replica's state for inspection.
func (n *Node) Coordinator() *pbft.Coordinator { return n.coordinator }

// SetValidators replaces the validator set, see pbft.Coordinator.SetValidators.
func (n *Node) SetValidators(validators []pbft.Validator) (bool, error) {
	return n.coordinator.SetValidators(validators)
}

// SubscribeForCommits relays every executed certificate to ch. A full channel
// is dropped from the subscription and closed.
func (n *Node) SubscribeForCommits(ch chan<- *pbft.CommitCertificate) (last *pbft.CommitCertificate, closer func()) {
	return n.busCommits.Subscribe(ch)
}

// SubscribeForViews relays every adopted view to ch.
func (n *Node) SubscribeForViews(ch chan<- int64) (last int64, closer func()) {
	return n.views.Subscribe(ch)
}
