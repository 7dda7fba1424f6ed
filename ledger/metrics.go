package ledger

import (
	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"go.opentelemetry.io/otel/metric"
)

var metrics = struct {
	submitted metric.Int64Counter
	executed  metric.Int64Counter
}{
	submitted: measurements.Must(meter.Int64Counter("ledgerbft_ledger_submitted", metric.WithDescription("Number of values submitted for proposal."))),
	executed:  measurements.Must(meter.Int64Counter("ledgerbft_ledger_executed", metric.WithDescription("Number of certificates appended to the ledger."))),
}
