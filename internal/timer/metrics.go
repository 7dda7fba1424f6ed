package timer

import (
	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("ledgerbft/timer")

	metrics = struct {
		dropped metric.Int64Counter
	}{
		dropped: measurements.Must(meter.Int64Counter("ledgerbft_timer_dropped",
			metric.WithDescription("Number of timer events dropped because the event channel was full"))),
	}
)
