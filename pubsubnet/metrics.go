package pubsubnet

import (
	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("ledgerbft/pubsubnet")

	attrPathGossip = attribute.String("path", "gossip")
	attrPathDirect = attribute.String("path", "direct")
	attrDropped    = attribute.Bool("dropped", true)
	attrDelivered  = attribute.Bool("dropped", false)

	metrics = struct {
		validatedMessages metric.Int64Counter
		validationTime    metric.Float64Histogram
		sent              metric.Int64Counter
		received          metric.Int64Counter
		duplicates        metric.Int64Counter
		sendTime          metric.Float64Histogram
	}{
		validatedMessages: measurements.Must(meter.Int64Counter(
			"ledgerbft_pubsubnet_validated_messages",
			metric.WithDescription("Number of gossiped messages validated, labelled by result."),
			metric.WithUnit("{message}"))),
		validationTime: measurements.Must(meter.Float64Histogram(
			"ledgerbft_pubsubnet_validation_time",
			metric.WithDescription("Time spent validating gossiped messages in seconds."),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0))),
		sent: measurements.Must(meter.Int64Counter(
			"ledgerbft_pubsubnet_sent_messages",
			metric.WithDescription("Number of messages sent, labelled by path and status."),
			metric.WithUnit("{message}"))),
		received: measurements.Must(meter.Int64Counter(
			"ledgerbft_pubsubnet_received_messages",
			metric.WithDescription("Number of messages received, labelled by path and whether the inbox was full."),
			metric.WithUnit("{message}"))),
		duplicates: measurements.Must(meter.Int64Counter(
			"ledgerbft_pubsubnet_duplicate_messages",
			metric.WithDescription("Number of received messages whose signature was seen recently."),
			metric.WithUnit("{message}"))),
		sendTime: measurements.Must(meter.Float64Histogram(
			"ledgerbft_pubsubnet_send_time",
			metric.WithDescription("Time spent sending a direct message in seconds."),
			metric.WithUnit("s"))),
	}
)

func attrFromDropped(dropped bool) attribute.KeyValue {
	if dropped {
		return attrDropped
	}
	return attrDelivered
}
