package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Kubuxu/go-broadcast"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	"github.com/ipfs/go-datastore/query"
	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"golang.org/x/xerrors"
)

var (
	ErrCertNotFound = errors.New("commit certificate not found")
	// ErrGap signals an attempt to append a certificate that does not follow
	// the latest one.
	ErrGap = errors.New("certificate does not extend the ledger")
)

// Store keeps executed commit certificates by sequence and relays every
// appended certificate to subscribers.
type Store struct {
	writeLk  sync.Mutex
	ds       datastore.Datastore
	busCerts broadcast.Channel[*pbft.CommitCertificate]
}

// NewStore opens a certificate store under the given prefix. The datastore
// must be thread safe.
func NewStore(ctx context.Context, ds datastore.Datastore, prefix string) (*Store, error) {
	cs := &Store{
		ds: measurements.NewMeteredDatastore(meter, "ledgerbft_ledger_",
			namespace.Wrap(ds, datastore.NewKey(prefix).ChildString("ledger"))),
	}
	latest, err := cs.loadLatest(ctx)
	if err != nil {
		return nil, xerrors.Errorf("loading latest certificate: %w", err)
	}
	if latest != nil {
		cs.busCerts.Publish(latest)
	}
	return cs, nil
}

func (cs *Store) loadLatest(ctx context.Context) (*pbft.CommitCertificate, error) {
	res, err := cs.ds.Query(ctx, query.Query{
		Prefix: "/certs",
		Orders: []query.Order{query.OrderByKeyDescending{}},
		Limit:  1,
	})
	if err != nil {
		return nil, xerrors.Errorf("querying for the latest certificate: %w", err)
	}
	defer func() { _ = res.Close() }()
	entry, ok := res.NextSync()
	if !ok {
		return nil, nil
	}
	if entry.Error != nil {
		return nil, xerrors.Errorf("reading the latest certificate: %w", entry.Error)
	}
	var cert pbft.CommitCertificate
	if err := cert.UnmarshalCBOR(bytes.NewReader(entry.Value)); err != nil {
		return nil, xerrors.Errorf("unmarshalling latest certificate: %w", err)
	}
	return &cert, nil
}

// Latest returns the certificate with the highest sequence, or nil.
func (cs *Store) Latest() *pbft.CommitCertificate {
	return cs.busCerts.Last()
}

// Height returns the highest stored sequence, zero when empty.
func (cs *Store) Height() uint64 {
	if latest := cs.Latest(); latest != nil {
		return latest.Sequence
	}
	return 0
}

func (cs *Store) Get(ctx context.Context, seq uint64) (*pbft.CommitCertificate, error) {
	b, err := cs.ds.Get(ctx, keyForSequence(seq))
	if errors.Is(err, datastore.ErrNotFound) {
		return nil, xerrors.Errorf("certificate at %d: %w", seq, ErrCertNotFound)
	}
	if err != nil {
		return nil, xerrors.Errorf("accessing certificate in datastore: %w", err)
	}
	var cert pbft.CommitCertificate
	if err := cert.UnmarshalCBOR(bytes.NewReader(b)); err != nil {
		return nil, xerrors.Errorf("unmarshalling certificate: %w", err)
	}
	return &cert, nil
}

// GetRange returns the certificates from start to end inclusive, in increasing
// order. On a missing certificate it returns those found before it along with
// a wrapped ErrCertNotFound.
func (cs *Store) GetRange(ctx context.Context, start, end uint64) ([]*pbft.CommitCertificate, error) {
	if start > end {
		return nil, xerrors.Errorf("start is larger than end: %d > %d", start, end)
	}
	if end-start > uint64(math.MaxInt)-1 {
		return nil, xerrors.Errorf("range %d to %d is too large", start, end)
	}
	var certs []*pbft.CommitCertificate
	for seq := start; seq <= end; seq++ {
		cert, err := cs.Get(ctx, seq)
		if err != nil {
			return certs, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func keyForSequence(seq uint64) datastore.Key {
	return datastore.NewKey(fmt.Sprintf("/certs/%016X", seq))
}

// Put appends a certificate and notifies subscribers. Putting an already
// stored sequence is a no-op; skipping a sequence fails with ErrGap.
func (cs *Store) Put(ctx context.Context, cert *pbft.CommitCertificate) error {
	var buf bytes.Buffer
	if err := cert.MarshalCBOR(&buf); err != nil {
		return xerrors.Errorf("marshalling certificate %d: %w", cert.Sequence, err)
	}

	cs.writeLk.Lock()
	defer cs.writeLk.Unlock()

	height := cs.Height()
	switch {
	case cert.Sequence <= height:
		return nil
	case cert.Sequence != height+1:
		return xerrors.Errorf("adding certificate %d after %d: %w", cert.Sequence, height, ErrGap)
	}
	key := keyForSequence(cert.Sequence)
	if err := cs.ds.Put(ctx, key, buf.Bytes()); err != nil {
		return xerrors.Errorf("putting the certificate: %w", err)
	}
	if err := cs.ds.Sync(ctx, key); err != nil {
		return xerrors.Errorf("syncing the certificate: %w", err)
	}
	// Publish within the lock to ensure ordering
	cs.busCerts.Publish(cert)
	return nil
}

// SubscribeForNewCerts subscribes ch to appended certificates. A full channel
// is dropped from the subscription and closed.
func (cs *Store) SubscribeForNewCerts(ch chan<- *pbft.CommitCertificate) (last *pbft.CommitCertificate, closer func()) {
	return cs.busCerts.Subscribe(ch)
}
