// Package viewstore persists the last view adopted by a replica.
package viewstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Kubuxu/go-broadcast"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	logging "github.com/ipfs/go-log/v2"
	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	cbg "github.com/whyrusleeping/cbor-gen"
	"go.opentelemetry.io/otel"
)

var (
	log   = logging.Logger("ledgerbft/viewstore")
	meter = otel.Meter("ledgerbft/viewstore")

	viewKey = datastore.NewKey("/view")

	_ pbft.ViewStore = (*Store)(nil)
)

// ErrViewRegression signals an attempt to store a view lower than the stored
// one.
var ErrViewRegression = errors.New("view cannot decrease")

// Store keeps the current view in a datastore and relays every change to
// subscribers.
type Store struct {
	writeLk sync.Mutex
	ds      datastore.Datastore
	busView broadcast.Channel[int64]
}

// NewStore creates a view store under the given namespace. The datastore must
// be thread safe.
func NewStore(ctx context.Context, ds datastore.Datastore, prefix string) (*Store, error) {
	s := &Store{
		ds: measurements.NewMeteredDatastore(meter, "ledgerbft_viewstore_",
			namespace.Wrap(ds, datastore.NewKey(prefix).ChildString("viewstore"))),
	}
	view, found, err := s.LoadView(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading view: %w", err)
	}
	if found {
		s.busView.Publish(view)
	}
	return s, nil
}

// LoadView returns the stored view, or false if none was ever stored.
func (s *Store) LoadView(ctx context.Context) (int64, bool, error) {
	b, err := s.ds.Get(ctx, viewKey)
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("getting view: %w", err)
	}
	var view cbg.CborInt
	if err := view.UnmarshalCBOR(bytes.NewReader(b)); err != nil {
		return 0, false, fmt.Errorf("decoding view: %w", err)
	}
	return int64(view), true, nil
}

// StoreView persists view. Storing the current view again is a no-op.
func (s *Store) StoreView(ctx context.Context, view int64) error {
	s.writeLk.Lock()
	defer s.writeLk.Unlock()

	current, found, err := s.LoadView(ctx)
	if err != nil {
		return err
	}
	if found {
		switch {
		case view == current:
			return nil
		case view < current:
			return fmt.Errorf("storing view %d over %d: %w", view, current, ErrViewRegression)
		}
	}

	var buf bytes.Buffer
	if err := cbg.CborInt(view).MarshalCBOR(&buf); err != nil {
		return fmt.Errorf("encoding view: %w", err)
	}
	if err := s.ds.Put(ctx, viewKey, buf.Bytes()); err != nil {
		return fmt.Errorf("putting view: %w", err)
	}
	if err := s.ds.Sync(ctx, viewKey); err != nil {
		return fmt.Errorf("syncing view: %w", err)
	}
	log.Debugw("stored view", "view", view)
	s.busView.Publish(view) // Publish within the lock to ensure ordering
	return nil
}

// Latest returns the last stored view, or zero if none.
func (s *Store) Latest() int64 {
	return s.busView.Last()
}

// Subscribe delivers every view stored from now on to ch, and returns the
// current view. Passing a channel multiple times to Subscribe panics.
func (s *Store) Subscribe(ch chan<- int64) (last int64, closer func()) {
	return s.busView.Subscribe(ch)
}
