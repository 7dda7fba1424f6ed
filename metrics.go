package ledgerbft

import (
	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("ledgerbft")

	attrKindMessage = attribute.String("kind", "message")
	attrKindTimer   = attribute.String("kind", "timer")
)

var metrics = struct {
	events        metric.Int64Counter
	eventTime     metric.Float64Histogram
	walAppends    metric.Int64Counter
	walReplayed   metric.Int64Counter
	walPurges     metric.Int64Counter
	executed      metric.Int64Counter
	transportSend metric.Int64Counter
}{
	events: measurements.Must(meter.Int64Counter("ledgerbft_runner_events",
		metric.WithDescription("Number of events processed by the runner, by kind and result."))),
	eventTime: measurements.Must(meter.Float64Histogram("ledgerbft_runner_event_time",
		metric.WithDescription("Time spent processing an event by the coordinator."),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
		metric.WithUnit("s"),
	)),
	walAppends: measurements.Must(meter.Int64Counter("ledgerbft_wal_appends",
		metric.WithDescription("Number of own messages appended to the write-ahead log."))),
	walReplayed: measurements.Must(meter.Int64Counter("ledgerbft_wal_replayed",
		metric.WithDescription("Number of own messages replayed from the write-ahead log on start."))),
	walPurges: measurements.Must(meter.Int64Counter("ledgerbft_wal_purges",
		metric.WithDescription("Number of write-ahead log purges."))),
	executed: measurements.Must(meter.Int64Counter("ledgerbft_executed",
		metric.WithDescription("Number of commit certificates handed to the application."))),
	transportSend: measurements.Must(meter.Int64Counter("ledgerbft_transport_sends",
		metric.WithDescription("Number of messages handed to the transport, by path and result."))),
}
