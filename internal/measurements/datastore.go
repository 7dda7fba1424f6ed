package measurements

import (
	"context"
	"time"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type dsOp attribute.KeyValue

func newDsOp(name string) dsOp { return dsOp(attribute.String("operation", name)) }

var (
	opGet    = newDsOp("get")
	opHas    = newDsOp("has")
	opSize   = newDsOp("get-size")
	opQuery  = newDsOp("query")
	opPut    = newDsOp("put")
	opDelete = newDsOp("delete")
	opSync   = newDsOp("sync")
	opClose  = newDsOp("close")
	opBatch  = newDsOp("batch")
	opCommit = newDsOp("commit")
)

// MeteredDatastore records the latency of every operation, and the payload
// size of reads and writes, labelled by operation and status.
type MeteredDatastore struct {
	delegate datastore.Datastore
	latency  metric.Float64Histogram
	bytes    metric.Int64Histogram
}

var _ datastore.Batching = (*MeteredDatastore)(nil)

// NewMeteredDatastore wraps delegate. Metric names start with prefix.
func NewMeteredDatastore(meter metric.Meter, prefix string, delegate datastore.Datastore) *MeteredDatastore {
	return &MeteredDatastore{
		delegate: delegate,
		latency: Must(meter.Float64Histogram(prefix+"latency",
			metric.WithDescription("Datastore operation latency by operation and status."),
			metric.WithUnit("s"))),
		bytes: Must(meter.Int64Histogram(prefix+"bytes",
			metric.WithDescription("Bytes read from or written to the datastore by operation and status."),
			metric.WithUnit("By"))),
	}
}

// observe records one operation that started at start. A negative size is
// not recorded.
func (m *MeteredDatastore) observe(ctx context.Context, op dsOp, start time.Time, size int, err error) {
	attrs := metric.WithAttributes(attribute.KeyValue(op), Status(ctx, err))
	m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
	if size >= 0 {
		m.bytes.Record(ctx, int64(size), attrs)
	}
}

func (m *MeteredDatastore) Get(ctx context.Context, key datastore.Key) ([]byte, error) {
	start := time.Now()
	v, err := m.delegate.Get(ctx, key)
	m.observe(ctx, opGet, start, len(v), err)
	return v, err
}

func (m *MeteredDatastore) Has(ctx context.Context, key datastore.Key) (bool, error) {
	start := time.Now()
	ok, err := m.delegate.Has(ctx, key)
	m.observe(ctx, opHas, start, -1, err)
	return ok, err
}

func (m *MeteredDatastore) GetSize(ctx context.Context, key datastore.Key) (int, error) {
	start := time.Now()
	size, err := m.delegate.GetSize(ctx, key)
	m.observe(ctx, opSize, start, -1, err)
	return size, err
}

func (m *MeteredDatastore) Query(ctx context.Context, q query.Query) (query.Results, error) {
	start := time.Now()
	res, err := m.delegate.Query(ctx, q)
	m.observe(ctx, opQuery, start, -1, err)
	return res, err
}

func (m *MeteredDatastore) Put(ctx context.Context, key datastore.Key, value []byte) error {
	start := time.Now()
	err := m.delegate.Put(ctx, key, value)
	m.observe(ctx, opPut, start, len(value), err)
	return err
}

func (m *MeteredDatastore) Delete(ctx context.Context, key datastore.Key) error {
	start := time.Now()
	err := m.delegate.Delete(ctx, key)
	m.observe(ctx, opDelete, start, -1, err)
	return err
}

func (m *MeteredDatastore) Sync(ctx context.Context, prefix datastore.Key) error {
	start := time.Now()
	err := m.delegate.Sync(ctx, prefix)
	m.observe(ctx, opSync, start, -1, err)
	return err
}

func (m *MeteredDatastore) Close() error {
	start := time.Now()
	err := m.delegate.Close()
	m.observe(context.Background(), opClose, start, -1, err)
	return err
}

// Batch returns a metered batch if the delegate supports batching, and a
// batch that applies each write directly otherwise.
func (m *MeteredDatastore) Batch(ctx context.Context) (datastore.Batch, error) {
	start := time.Now()
	var b datastore.Batch
	var err error
	if batching, ok := m.delegate.(datastore.Batching); ok {
		b, err = batching.Batch(ctx)
	} else {
		b = datastore.NewBasicBatch(m.delegate)
	}
	m.observe(ctx, opBatch, start, -1, err)
	if err != nil {
		return nil, err
	}
	return &meteredBatch{m: m, delegate: b}, nil
}

type meteredBatch struct {
	m        *MeteredDatastore
	delegate datastore.Batch
	size     int
}

func (b *meteredBatch) Put(ctx context.Context, key datastore.Key, value []byte) error {
	b.size += len(value)
	return b.delegate.Put(ctx, key, value)
}

func (b *meteredBatch) Delete(ctx context.Context, key datastore.Key) error {
	return b.delegate.Delete(ctx, key)
}

func (b *meteredBatch) Commit(ctx context.Context) error {
	start := time.Now()
	err := b.delegate.Commit(ctx)
	b.m.observe(ctx, opCommit, start, b.size, err)
	return err
}
