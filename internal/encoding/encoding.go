// Package encoding turns CBOR values into wire payloads, optionally zstd
// compressed.
package encoding

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	cbg "github.com/whyrusleeping/cbor-gen"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultMaxSize bounds the uncompressed size of a payload. It leaves room
// for the largest value a message may carry plus its envelope.
const DefaultMaxSize = 4 << 20

type CBORMarshalUnmarshaler interface {
	cbg.CBORMarshaler
	cbg.CBORUnmarshaler
}

type EncodeDecoder[T CBORMarshalUnmarshaler] interface {
	Encode(v T) ([]byte, error)
	Decode([]byte, T) error
}

// Codec encodes values of type T. The zero value is not usable.
type Codec[T CBORMarshalUnmarshaler] struct {
	maxSize int
	attr    attribute.KeyValue
	// Both nil when compression is off.
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// New returns a codec for payloads of at most maxSize uncompressed bytes,
// or DefaultMaxSize if maxSize is not positive.
func New[T CBORMarshalUnmarshaler](compress bool, maxSize int) (*Codec[T], error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Codec[T]{maxSize: maxSize, attr: attrCodecCbor}
	if !compress {
		return c, nil
	}
	var err error
	if c.compressor, err = zstd.NewWriter(nil); err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	if c.decompressor, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxSize))); err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	c.attr = attrCodecZstd
	return c, nil
}

// Compressed reports whether payloads are zstd compressed.
func (c *Codec[T]) Compressed() bool { return c.compressor != nil }

func (c *Codec[T]) Encode(v T) (_ []byte, _err error) {
	defer c.observe(time.Now(), attrActionEncode, &_err)
	var buf bytes.Buffer
	if err := v.MarshalCBOR(&buf); err != nil {
		return nil, err
	}
	if buf.Len() > c.maxSize {
		return nil, fmt.Errorf("encoded size %d exceeds maximum %d", buf.Len(), c.maxSize)
	}
	if c.compressor == nil {
		return buf.Bytes(), nil
	}
	compressed := c.compressor.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len()))
	if buf.Len() > 0 {
		metrics.compressionRatio.Record(context.Background(), float64(len(compressed))/float64(buf.Len()))
	}
	return compressed, nil
}

func (c *Codec[T]) Decode(data []byte, v T) (_err error) {
	defer c.observe(time.Now(), attrActionDecode, &_err)
	if c.decompressor != nil {
		var err error
		if data, err = c.decompressor.DecodeAll(data, make([]byte, 0, len(data))); err != nil {
			return fmt.Errorf("decompressing: %w", err)
		}
	}
	if len(data) > c.maxSize {
		return fmt.Errorf("payload size %d exceeds maximum %d", len(data), c.maxSize)
	}
	return v.UnmarshalCBOR(bytes.NewReader(data))
}

func (c *Codec[T]) observe(start time.Time, action attribute.KeyValue, err *error) {
	metrics.codecTime.Record(context.Background(), time.Since(start).Seconds(),
		metric.WithAttributes(c.attr, action, attribute.Bool("success", *err == nil)))
}
