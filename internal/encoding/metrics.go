package encoding

import (
	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	attrCodecCbor    = attribute.String("codec", "cbor")
	attrCodecZstd    = attribute.String("codec", "zstd")
	attrActionEncode = attribute.String("action", "encode")
	attrActionDecode = attribute.String("action", "decode")

	meter = otel.Meter("ledgerbft/internal/encoding")

	metrics = struct {
		codecTime        metric.Float64Histogram
		compressionRatio metric.Float64Histogram
	}{
		codecTime: measurements.Must(meter.Float64Histogram("ledgerbft_internal_encoding_time",
			metric.WithDescription("Time spent encoding or decoding a payload."),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
		)),
		compressionRatio: measurements.Must(meter.Float64Histogram("ledgerbft_internal_encoding_zstd_ratio",
			metric.WithDescription("Compressed to uncompressed payload size."),
			metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1.0, 1.5),
		)),
	}
)
