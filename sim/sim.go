// Package sim runs replicas against a deterministic, simulated network and
// clock.
package sim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/ledgerbft/go-ledgerbft/ledger"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/viewstore"
)

var (
	// ErrTimeout signals that a run exceeded its simulated duration.
	ErrTimeout = errors.New("simulation timed out")
	// ErrStalled signals that nothing was left in flight before the run ended.
	ErrStalled = errors.New("simulation stalled")
)

type Simulation struct {
	*options
	network    *Network
	hosts      []*simHost
	validators []pbft.Validator
}

func NewSimulation(ctx context.Context, o ...Option) (*Simulation, error) {
	opts, err := newOptions(o...)
	if err != nil {
		return nil, err
	}
	s := &Simulation{
		options: opts,
		network: newNetwork(opts.latencyModel, opts.dropRule, opts.traceLevel, opts.networkName),
	}
	for i := 0; i < opts.replicaCount; i++ {
		pubKey, _ := opts.signingBackend.GenerateKey()
		addr, err := opts.signingBackend.Address(pubKey)
		if err != nil {
			return nil, fmt.Errorf("deriving replica address: %w", err)
		}
		s.validators = append(s.validators, pbft.Validator{Address: addr, PubKey: pubKey})
	}
	for i, validator := range s.validators {
		ds := ds_sync.MutexWrap(datastore.NewMapDatastore())
		views, err := viewstore.NewStore(ctx, ds, "/sim")
		if err != nil {
			return nil, err
		}
		l, err := ledger.New(ctx, ds, "/sim", opts.ledgerOptions...)
		if err != nil {
			return nil, err
		}
		host := newHost(pbft.ReplicaID(i), s.network, opts.signingBackend, views, l)
		pbftOpts := append([]pbft.Option{pbft.WithTracer(s.network)}, opts.pbftOptions...)
		if host.coordinator, err = pbft.NewCoordinator(validator.Address, s.validators, host, pbftOpts...); err != nil {
			return nil, fmt.Errorf("creating replica %d: %w", i, err)
		}
		s.network.addHost(host, validator.Address)
		s.hosts = append(s.hosts, host)
	}
	return s, nil
}

// Start starts every replica.
func (s *Simulation) Start(ctx context.Context) error {
	for _, h := range s.hosts {
		if err := h.coordinator.Start(ctx); err != nil {
			return fmt.Errorf("starting replica %d: %w", h.id, err)
		}
	}
	return nil
}

func (s *Simulation) Network() *Network { return s.network }

func (s *Simulation) Validators() []pbft.Validator { return s.validators }

func (s *Simulation) Coordinator(id pbft.ReplicaID) *pbft.Coordinator { return s.hosts[id].coordinator }

func (s *Simulation) Ledger(id pbft.ReplicaID) *ledger.Ledger { return s.hosts[id].Ledger }

// Submit queues value at every live replica, so that whichever is primary
// proposes it.
func (s *Simulation) Submit(value []byte) error {
	for _, h := range s.hosts {
		if h.crashed {
			continue
		}
		if err := h.Ledger.Submit(value); err != nil {
			return fmt.Errorf("submitting to replica %d: %w", h.id, err)
		}
	}
	return nil
}

// Crash stops a replica: it drops every message and timer until recovered.
func (s *Simulation) Crash(id pbft.ReplicaID) {
	h := s.hosts[id]
	h.coordinator.Stop()
	h.crashed = true
}

// Recover restarts a crashed replica from its persisted view and ledger.
func (s *Simulation) Recover(ctx context.Context, id pbft.ReplicaID) error {
	h := s.hosts[id]
	h.crashed = false
	return h.coordinator.Start(ctx)
}

// Run delivers events until done returns true. It fails with ErrTimeout once
// the simulated clock passes maxDuration from the start of the run.
func (s *Simulation) Run(ctx context.Context, maxDuration time.Duration, done func() bool) error {
	deadline := s.network.Time().Add(maxDuration)
	for !done() {
		if next := s.network.queue.Peek(); next != nil && next.deliverAt.After(deadline) {
			return ErrTimeout
		}
		more, err := s.network.Tick(ctx)
		if err != nil {
			return err
		}
		if !more && !done() {
			return ErrStalled
		}
	}
	return nil
}

// RunUntilHeight runs until every live replica executed height sequences.
func (s *Simulation) RunUntilHeight(ctx context.Context, height uint64, maxDuration time.Duration) error {
	return s.Run(ctx, maxDuration, func() bool {
		for _, h := range s.hosts {
			if !h.crashed && h.Ledger.LastExecuted() < height {
				return false
			}
		}
		return true
	})
}

// CheckAgreement verifies that every live replica executed the same values up
// to height.
func (s *Simulation) CheckAgreement(ctx context.Context, height uint64) error {
	var reference []*pbft.CommitCertificate
	var referenceID pbft.ReplicaID
	for _, h := range s.hosts {
		if h.crashed {
			continue
		}
		certs, err := h.Ledger.Store().GetRange(ctx, 1, height)
		if err != nil {
			return fmt.Errorf("replica %d: %w", h.id, err)
		}
		if reference == nil {
			reference, referenceID = certs, h.id
			continue
		}
		for i, cert := range certs {
			if cert.ValueDigest != reference[i].ValueDigest || !bytes.Equal(cert.Value, reference[i].Value) {
				return fmt.Errorf("replica %d executed %q at %d, but replica %d executed %q",
					h.id, cert.Value, cert.Sequence, referenceID, reference[i].Value)
			}
		}
	}
	return nil
}

func (s *Simulation) Describe() string {
	var b strings.Builder
	for _, h := range s.hosts {
		state := "live"
		if h.crashed {
			state = "crashed"
		}
		fmt.Fprintf(&b, "P%d (%s): %s\n", h.id, state, h.coordinator.Describe())
	}
	return b.String()
}
