package ledger

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"golang.org/x/xerrors"
)

// maxSigners bounds the replica ids read from a signer bitfield.
const maxSigners = 1 << 16

// ExportSchema is the Arrow schema of exported certificates, one row per
// executed sequence.
var ExportSchema = arrow.NewSchema([]arrow.Field{
	{Name: "sequence", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "view", Type: arrow.PrimitiveTypes.Int64},
	{Name: "value_digest", Type: &arrow.FixedSizeBinaryType{ByteWidth: len(pbft.Digest{})}},
	{Name: "value", Type: arrow.BinaryTypes.Binary},
	{Name: "signers", Type: arrow.ListOf(arrow.PrimitiveTypes.Uint64)},
}, nil)

// Export writes the certificates from..to, inclusive, to w as an Arrow IPC
// stream of record batches holding at most batchSize rows each.
func (cs *Store) Export(ctx context.Context, w io.Writer, from, to uint64, batchSize int) (_err error) {
	if from == 0 || from > to {
		return xerrors.Errorf("invalid range [%d, %d]", from, to)
	}
	batchSize = max(1, batchSize)
	writer := ipc.NewWriter(w, ipc.WithSchema(ExportSchema))
	defer func() {
		if err := writer.Close(); err != nil && _err == nil {
			_err = xerrors.Errorf("closing arrow writer: %w", err)
		}
	}()

	builder := array.NewRecordBuilder(memory.DefaultAllocator, ExportSchema)
	defer builder.Release()
	for start := from; start <= to; start += uint64(batchSize) {
		end := min(to, start+uint64(batchSize)-1)
		certs, err := cs.GetRange(ctx, start, end)
		if err != nil {
			return xerrors.Errorf("loading certificates [%d, %d]: %w", start, end, err)
		}
		for _, cert := range certs {
			if err := appendCertificate(builder, cert); err != nil {
				return err
			}
		}
		record := builder.NewRecord()
		err = writer.Write(record)
		record.Release()
		if err != nil {
			return xerrors.Errorf("writing batch [%d, %d]: %w", start, end, err)
		}
		// Guard against wrap around on to == MaxUint64.
		if end == to {
			break
		}
	}
	return nil
}

func appendCertificate(b *array.RecordBuilder, cert *pbft.CommitCertificate) error {
	signers, err := cert.Signers.All(maxSigners)
	if err != nil {
		return fmt.Errorf("reading signers of %d: %w", cert.Sequence, err)
	}
	b.Field(0).(*array.Uint64Builder).Append(cert.Sequence)
	b.Field(1).(*array.Int64Builder).Append(cert.View)
	b.Field(2).(*array.FixedSizeBinaryBuilder).Append(cert.ValueDigest[:])
	b.Field(3).(*array.BinaryBuilder).Append(cert.Value)
	list := b.Field(4).(*array.ListBuilder)
	list.Append(true)
	list.ValueBuilder().(*array.Uint64Builder).AppendValues(signers, nil)
	return nil
}
