// Package ledger is a replicated log application: submitted values are
// proposed by the primary and appended in commit order.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"go.opentelemetry.io/otel"
)

var (
	log   = logging.Logger("ledgerbft/ledger")
	meter = otel.Meter("ledgerbft/ledger")

	_ pbft.Executor     = (*Ledger)(nil)
	_ pbft.ValueSource  = (*Ledger)(nil)
	_ pbft.ValueChecker = (*Ledger)(nil)
)

var (
	ErrValueTooLarge = errors.New("value exceeds maximum size")
	ErrQueueFull     = errors.New("submission queue is full")
	ErrEmptyValue    = errors.New("empty value")
)

// Ledger queues submitted values and appends committed ones to a Store.
//
// Values are proposed only when this replica is primary. A value assigned to
// a sequence that ends up committing a different value goes back to the
// front of the queue.
type Ledger struct {
	*options
	store *Store

	mu    sync.Mutex
	queue []*queued
}

type queued struct {
	value []byte
	// sequence is the instance the value was proposed for, zero if unassigned.
	sequence uint64
}

func New(ctx context.Context, ds datastore.Datastore, prefix string, o ...Option) (*Ledger, error) {
	opts, err := newOptions(o...)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(ctx, ds, prefix)
	if err != nil {
		return nil, err
	}
	return &Ledger{options: opts, store: store}, nil
}

// Store returns the store of executed certificates.
func (l *Ledger) Store() *Store { return l.store }

// LastExecuted returns the highest executed sequence.
func (l *Ledger) LastExecuted() uint64 { return l.store.Height() }

// Submit queues a value for proposal.
func (l *Ledger) Submit(value []byte) error {
	switch {
	case len(value) == 0:
		return ErrEmptyValue
	case len(value) > l.maxValueSize:
		return ErrValueTooLarge
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) >= l.maxQueueSize {
		return ErrQueueFull
	}
	l.queue = append(l.queue, &queued{value: bytes.Clone(value)})
	metrics.submitted.Add(context.Background(), 1)
	return nil
}

// Pending returns the number of queued values, assigned or not.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// NextValue returns the value already assigned to seq, or assigns the oldest
// unassigned one. Returns pbft.ErrNoValue when the queue has nothing left.
func (l *Ledger) NextValue(_ context.Context, seq uint64) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, q := range l.queue {
		if q.sequence == seq {
			return q.value, nil
		}
	}
	for _, q := range l.queue {
		if q.sequence == 0 {
			q.sequence = seq
			return q.value, nil
		}
	}
	return nil, pbft.ErrNoValue
}

// CheckValue accepts values within the size limit that pass the configured
// check. Empty values fill sequence gaps and are always valid.
func (l *Ledger) CheckValue(ctx context.Context, value []byte) pbft.ValueCheck {
	switch {
	case len(value) == 0:
		return pbft.VALUE_VALID
	case len(value) > l.maxValueSize:
		return pbft.VALUE_INVALID
	case l.check != nil:
		return l.check(ctx, value)
	default:
		return pbft.VALUE_VALID
	}
}

// Execute appends a committed certificate. Certificates at or below the
// current height are ignored.
func (l *Ledger) Execute(ctx context.Context, cert *pbft.CommitCertificate) error {
	if cert.Sequence <= l.store.Height() {
		return nil
	}
	if err := l.store.Put(ctx, cert); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var matched bool
	kept := l.queue[:0]
	for _, q := range l.queue {
		if !matched && len(cert.Value) > 0 && bytes.Equal(q.value, cert.Value) {
			matched = true
			continue
		}
		if q.sequence != 0 && q.sequence <= cert.Sequence {
			q.sequence = 0
		}
		kept = append(kept, q)
	}
	clear(l.queue[len(kept):])
	l.queue = kept
	metrics.executed.Add(ctx, 1)
	log.Debugw("appended to ledger", "seq", cert.Sequence, "pending", len(l.queue))
	return nil
}

// Subscribe relays every executed certificate to ch. A full channel is
// dropped from the subscription and closed.
func (l *Ledger) Subscribe(ch chan<- *pbft.CommitCertificate) (last *pbft.CommitCertificate, closer func()) {
	return l.store.SubscribeForNewCerts(ch)
}
